package service

import (
	"context"
	"strings"

	"github.com/refbot/backend/internal/crypto"
	"github.com/refbot/backend/internal/model"
)

type userStore interface {
	GetUser(ctx context.Context, id int64) (*model.User, error)
	CreateUser(ctx context.Context, user *model.User) error
	UpdateUserEmail(ctx context.Context, id int64, encryptedEmail string) error
	UpdateUserPhone(ctx context.Context, id int64, encryptedPhone string) error
	SetSubscribed(ctx context.Context, id int64, subscribed bool) error
	CountUsers(ctx context.Context) (int, error)
	PendingUsers(ctx context.Context) ([]model.User, error)
}

type UserService struct {
	repo   userStore
	cipher *crypto.Cipher
}

func NewUserService(repo userStore, cipher *crypto.Cipher) *UserService {
	return &UserService{repo: repo, cipher: cipher}
}

type TelegramUser struct {
	ID        int64
	Username  string
	FirstName string
	IsAdmin   bool
}

// GetOrCreateUser registers a user on first contact (no referrer; the CRM
// import attaches one later) or refreshes their profile fields.
func (s *UserService) GetOrCreateUser(ctx context.Context, tu TelegramUser) (*model.User, error) {
	user := &model.User{
		ID:        tu.ID,
		FirstName: optional(tu.FirstName),
		IsAdmin:   tu.IsAdmin,
	}
	if tu.Username != "" {
		enc := s.cipher.Encrypt(tu.Username)
		user.Username = &enc
	}
	if err := s.repo.CreateUser(ctx, user); err != nil {
		return nil, err
	}
	return user, nil
}

func (s *UserService) GetUser(ctx context.Context, id int64) (*model.User, error) {
	return s.repo.GetUser(ctx, id)
}

// UpdateEmail normalizes (trim, lowercase) and encrypts the email before
// storing. Normalizing before encryption keeps lookups deterministic.
func (s *UserService) UpdateEmail(ctx context.Context, id int64, email string) error {
	return s.repo.UpdateUserEmail(ctx, id, s.cipher.Encrypt(NormalizeEmail(email)))
}

// UpdatePhone normalizes and encrypts the phone before storing.
func (s *UserService) UpdatePhone(ctx context.Context, id int64, phone string) error {
	return s.repo.UpdateUserPhone(ctx, id, s.cipher.Encrypt(NormalizePhone(phone)))
}

func (s *UserService) SetSubscribed(ctx context.Context, id int64, subscribed bool) error {
	return s.repo.SetSubscribed(ctx, id, subscribed)
}

func (s *UserService) CountActive(ctx context.Context) (int, error) {
	return s.repo.CountUsers(ctx)
}

// PendingUsers lists users who passed the gate but have no referrer yet.
func (s *UserService) PendingUsers(ctx context.Context) ([]model.User, error) {
	return s.repo.PendingUsers(ctx)
}

// DecryptedName resolves a display name: first name, then decrypted username.
func (s *UserService) DecryptedName(user *model.User) string {
	if user.FirstName != nil && *user.FirstName != "" {
		return *user.FirstName
	}
	if user.Username != nil && *user.Username != "" {
		return s.cipher.Decrypt(*user.Username).Value
	}
	return "Аноним"
}

// NormalizeEmail trims and lowercases an email for storage and lookup.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// NormalizePhone keeps only digits and a leading plus.
func NormalizePhone(phone string) string {
	var b strings.Builder
	for i, r := range phone {
		if r >= '0' && r <= '9' || r == '+' && i == 0 {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return strings.TrimSpace(phone)
	}
	return b.String()
}

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
