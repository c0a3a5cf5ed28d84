package service

import (
	"context"
	"errors"

	"github.com/refbot/backend/internal/model"
	"github.com/refbot/backend/internal/repository"
)

var (
	ErrAlreadyLinked     = repository.ErrAlreadyLinked
	ErrProfileIncomplete = errors.New("user has no email or phone on file")
	ErrSelfReferral      = errors.New("user cannot refer themselves")
)

// ReferralService exposes the referral graph: stats, leaderboard and
// personal tracking links.
type ReferralService struct {
	repo  *repository.Repository
	vault *TokenVault

	// buildLink renders the registration URL with utm tokens, see config.ReferralLink.
	buildLink func(medium, campaign, content string) string
}

func NewReferralService(repo *repository.Repository, vault *TokenVault, buildLink func(medium, campaign, content string) string) *ReferralService {
	return &ReferralService{repo: repo, vault: vault, buildLink: buildLink}
}

// Stats returns the user's confirmed referral count and leaderboard rank.
func (s *ReferralService) Stats(ctx context.Context, userID int64) (*model.ReferralStats, error) {
	count, err := s.repo.CountActiveReferrals(ctx, userID)
	if err != nil {
		return nil, err
	}
	rank, err := s.repo.UserRank(ctx, userID)
	if err != nil {
		return nil, err
	}
	return &model.ReferralStats{Count: count, Rank: rank}, nil
}

func (s *ReferralService) ReferralsOf(ctx context.Context, userID int64) ([]model.Referral, error) {
	return s.repo.GetUserReferrals(ctx, userID)
}

func (s *ReferralService) TopReferrers(ctx context.Context, limit int) ([]model.ReferrerCount, error) {
	return s.repo.TopReferrers(ctx, limit)
}

func (s *ReferralService) TotalReferrals(ctx context.Context) (int, error) {
	return s.repo.CountReferrals(ctx)
}

// Link builds the user's personal tracking link. The user must have at
// least email or phone saved, otherwise there is nothing to attribute by.
func (s *ReferralService) Link(ctx context.Context, user *model.User) (string, error) {
	if !user.HasContacts() {
		return "", ErrProfileIncomplete
	}
	medium, campaign, content, err := s.vault.UserTokens(ctx, user)
	if err != nil {
		return "", err
	}
	return s.buildLink(medium, campaign, content), nil
}

// LinkReferral records referrer → referred. Idempotent per referred user:
// a second attempt returns ErrAlreadyLinked regardless of the referrer.
func (s *ReferralService) LinkReferral(ctx context.Context, referrerID, referredID int64) error {
	if referrerID == referredID {
		return ErrSelfReferral
	}
	return s.repo.LinkReferral(ctx, referrerID, referredID)
}
