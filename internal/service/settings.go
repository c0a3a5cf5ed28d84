package service

import (
	"context"
	"errors"

	"github.com/refbot/backend/internal/model"
	"github.com/refbot/backend/internal/repository"
)

const tipsTextKey = "tips_text"

// defaultTipsText is shown until an admin sets their own.
const defaultTipsText = `💡 <b>Как приглашать эффективнее</b>

1. Делитесь личной ссылкой, а не просто названием — так приглашение засчитается именно вам.
2. Рассказывайте о своём опыте: личная история работает лучше рекламы.
3. Напоминайте друзьям завершить регистрацию: реферал засчитывается только после очного этапа.`

// SettingsService holds admin-editable bot content: the tips text and the
// curator contact list.
type SettingsService struct {
	repo *repository.Repository
}

func NewSettingsService(repo *repository.Repository) *SettingsService {
	return &SettingsService{repo: repo}
}

// TipsText returns the stored tips message, falling back to the default.
func (s *SettingsService) TipsText(ctx context.Context) (string, error) {
	text, err := s.repo.GetSetting(ctx, tipsTextKey)
	if errors.Is(err, repository.ErrSettingNotFound) {
		return defaultTipsText, nil
	}
	if err != nil {
		return "", err
	}
	return text, nil
}

func (s *SettingsService) SetTipsText(ctx context.Context, text string) error {
	return s.repo.SetSetting(ctx, tipsTextKey, text)
}

func (s *SettingsService) ListContacts(ctx context.Context) ([]model.Contact, error) {
	return s.repo.ListContacts(ctx)
}

func (s *SettingsService) AddContact(ctx context.Context, tgUsername string, note string) (*model.Contact, error) {
	contact := &model.Contact{TgUsername: tgUsername}
	if note != "" {
		contact.Note = &note
	}
	if err := s.repo.CreateContact(ctx, contact); err != nil {
		return nil, err
	}
	return contact, nil
}

func (s *SettingsService) DeleteContact(ctx context.Context, id int64) error {
	return s.repo.DeleteContact(ctx, id)
}
