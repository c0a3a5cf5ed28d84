package service

import (
	"context"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/refbot/backend/internal/logger"
	"github.com/refbot/backend/internal/model"
)

// Sender delivers broadcast messages to individual chats.
type Sender interface {
	SendText(ctx context.Context, chatID int64, text string) error
	SendPhoto(ctx context.Context, chatID int64, photoID, caption string) error
}

type broadcastStore interface {
	ListUsers(ctx context.Context, activeOnly bool) ([]model.User, error)
	DeactivateUser(ctx context.Context, id int64) error
	CreateBroadcast(ctx context.Context, broadcast *model.Broadcast) error
}

// BroadcastService fans a message out to every active user.
type BroadcastService struct {
	repo   broadcastStore
	sender Sender
}

func NewBroadcastService(repo broadcastStore, sender Sender) *BroadcastService {
	return &BroadcastService{repo: repo, sender: sender}
}

// sendDelay keeps the fan-out under the bot API rate limit.
const sendDelay = 50 * time.Millisecond

// Broadcast sends the message to all active users, one by one. Failed sends
// (blocked bot, deleted account) are counted and skipped.
func (s *BroadcastService) Broadcast(ctx context.Context, text, photoID string) (sent, failed int, err error) {
	users, err := s.repo.ListUsers(ctx, true)
	if err != nil {
		return 0, 0, err
	}

	for _, u := range users {
		var sendErr error
		if photoID != "" {
			sendErr = s.sender.SendPhoto(ctx, u.ID, photoID, text)
		} else {
			sendErr = s.sender.SendText(ctx, u.ID, text)
		}
		if sendErr != nil {
			failed++
			logger.L().Debug("broadcast send failed", zap.Int64("user_id", u.ID), zap.Error(sendErr))
			// a blocked bot or deleted account will never receive anything again
			if strings.Contains(sendErr.Error(), "blocked") || strings.Contains(sendErr.Error(), "deactivated") {
				if err := s.repo.DeactivateUser(ctx, u.ID); err != nil {
					logger.L().Warn("failed to deactivate user", zap.Int64("user_id", u.ID), zap.Error(err))
				}
			}
		} else {
			sent++
		}
		time.Sleep(sendDelay)
	}

	record := &model.Broadcast{MessageText: text, RecipientsCount: sent}
	if err := s.repo.CreateBroadcast(ctx, record); err != nil {
		logger.L().Warn("failed to record broadcast", zap.Error(err))
	}

	logger.L().Info("broadcast finished", zap.Int("sent", sent), zap.Int("failed", failed))
	return sent, failed, nil
}
