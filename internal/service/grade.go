package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/refbot/backend/internal/model"
	"github.com/refbot/backend/internal/repository"
)

var (
	ErrGradeNotFound  = repository.ErrGradeNotFound
	ErrAlreadyClaimed = errors.New("grade already claimed by user")
)

type gradeStore interface {
	ListGrades(ctx context.Context) ([]model.Grade, error)
	GetGrade(ctx context.Context, id int64) (*model.Grade, error)
	CreateGrade(ctx context.Context, grade *model.Grade) error
	UpdateGrade(ctx context.Context, grade *model.Grade) error
	DeleteGrade(ctx context.Context, id int64) error
	CountActiveReferrals(ctx context.Context, referrerID int64) (int, error)
	UsersForGrade(ctx context.Context, threshold int) ([]model.ReferrerCount, error)
	HasGradeClaim(ctx context.Context, userID, gradeID int64) (bool, error)
	CreateGradeClaim(ctx context.Context, claim *model.GradeClaim) error
	GetUserGradeClaims(ctx context.Context, userID int64) ([]model.GradeClaim, error)
}

// GradeService manages the reward ladder and its claims.
type GradeService struct {
	repo gradeStore
}

func NewGradeService(repo gradeStore) *GradeService {
	return &GradeService{repo: repo}
}

// Achieved returns the grades whose threshold the count has reached.
func Achieved(grades []model.Grade, count int) []model.Grade {
	var out []model.Grade
	for _, g := range grades {
		if count >= g.ReferralThreshold {
			out = append(out, g)
		}
	}
	return out
}

// Next returns the cheapest grade still above the count, nil when the
// whole ladder is achieved.
func Next(grades []model.Grade, count int) *model.Grade {
	var next *model.Grade
	for i := range grades {
		g := &grades[i]
		if g.ReferralThreshold > count {
			if next == nil || g.ReferralThreshold < next.ReferralThreshold {
				next = g
			}
		}
	}
	return next
}

// NewlyCrossed returns the grades whose threshold equals the count exactly.
// Crossing is detected on the increment, so a count that jumped past a
// threshold without landing on it does not re-fire older grades.
func NewlyCrossed(grades []model.Grade, count int) []model.Grade {
	var out []model.Grade
	for _, g := range grades {
		if g.ReferralThreshold == count {
			out = append(out, g)
		}
	}
	return out
}

func (s *GradeService) ListGrades(ctx context.Context) ([]model.Grade, error) {
	return s.repo.ListGrades(ctx)
}

func (s *GradeService) GetGrade(ctx context.Context, id int64) (*model.Grade, error) {
	return s.repo.GetGrade(ctx, id)
}

func (s *GradeService) CreateGrade(ctx context.Context, threshold int, rewards []string) (*model.Grade, error) {
	if threshold < 0 {
		return nil, fmt.Errorf("referral threshold must be non-negative, got %d", threshold)
	}
	g := &model.Grade{
		ReferralThreshold: threshold,
		Rewards:           model.EncodeRewards(rewards),
	}
	if err := s.repo.CreateGrade(ctx, g); err != nil {
		return nil, err
	}
	return g, nil
}

func (s *GradeService) UpdateGrade(ctx context.Context, g *model.Grade) error {
	if g.ReferralThreshold < 0 {
		return fmt.Errorf("referral threshold must be non-negative, got %d", g.ReferralThreshold)
	}
	return s.repo.UpdateGrade(ctx, g)
}

func (s *GradeService) DeleteGrade(ctx context.Context, id int64) error {
	return s.repo.DeleteGrade(ctx, id)
}

// AchievedByUser returns the grades the user's confirmed referral count reaches.
func (s *GradeService) AchievedByUser(ctx context.Context, userID int64) ([]model.Grade, int, error) {
	count, err := s.repo.CountActiveReferrals(ctx, userID)
	if err != nil {
		return nil, 0, err
	}
	grades, err := s.repo.ListGrades(ctx)
	if err != nil {
		return nil, 0, err
	}
	return Achieved(grades, count), count, nil
}

// UsersForGrade lists users whose referral count reaches the grade's threshold.
func (s *GradeService) UsersForGrade(ctx context.Context, gradeID int64) ([]model.ReferrerCount, error) {
	g, err := s.repo.GetGrade(ctx, gradeID)
	if err != nil {
		return nil, err
	}
	return s.repo.UsersForGrade(ctx, g.ReferralThreshold)
}

// Claim records a reward issuance. The guard is a pre-check, not a
// storage constraint: concurrent admins are not expected here.
func (s *GradeService) Claim(ctx context.Context, userID, gradeID int64, issuedByAdmin int64) error {
	claimed, err := s.repo.HasGradeClaim(ctx, userID, gradeID)
	if err != nil {
		return err
	}
	if claimed {
		return ErrAlreadyClaimed
	}
	return s.repo.CreateGradeClaim(ctx, &model.GradeClaim{
		UserID:        userID,
		GradeID:       gradeID,
		IssuedByAdmin: issuedByAdmin,
	})
}

func (s *GradeService) HasClaim(ctx context.Context, userID, gradeID int64) (bool, error) {
	return s.repo.HasGradeClaim(ctx, userID, gradeID)
}

func (s *GradeService) UserClaims(ctx context.Context, userID int64) ([]model.GradeClaim, error) {
	return s.repo.GetUserGradeClaims(ctx, userID)
}
