package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refbot/backend/internal/crypto"
	"github.com/refbot/backend/internal/model"
	"github.com/refbot/backend/internal/repository"
)

// fakeUserStore mirrors the upsert contract of the users table: profile
// fields survive when the sender hides them, is_admin is set on insert only.
type fakeUserStore struct {
	users  map[int64]*model.User
	emails map[int64]string
	phones map[int64]string
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{
		users:  make(map[int64]*model.User),
		emails: make(map[int64]string),
		phones: make(map[int64]string),
	}
}

func (s *fakeUserStore) GetUser(_ context.Context, id int64) (*model.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	return &cp, nil
}

func (s *fakeUserStore) CreateUser(_ context.Context, user *model.User) error {
	existing, ok := s.users[user.ID]
	if !ok {
		cp := *user
		s.users[user.ID] = &cp
		return nil
	}
	if user.Username != nil {
		existing.Username = user.Username
	}
	if user.FirstName != nil {
		existing.FirstName = user.FirstName
	}
	user.IsAdmin = existing.IsAdmin
	user.IsSubscribed = existing.IsSubscribed
	return nil
}

func (s *fakeUserStore) UpdateUserEmail(_ context.Context, id int64, encryptedEmail string) error {
	s.emails[id] = encryptedEmail
	return nil
}

func (s *fakeUserStore) UpdateUserPhone(_ context.Context, id int64, encryptedPhone string) error {
	s.phones[id] = encryptedPhone
	return nil
}

func (s *fakeUserStore) SetSubscribed(_ context.Context, id int64, subscribed bool) error {
	if u, ok := s.users[id]; ok {
		u.IsSubscribed = subscribed
	}
	return nil
}

func (s *fakeUserStore) CountUsers(context.Context) (int, error) { return len(s.users), nil }

func (s *fakeUserStore) PendingUsers(context.Context) ([]model.User, error) { return nil, nil }

func TestGetOrCreateUserEncryptsUsername(t *testing.T) {
	store := newFakeUserStore()
	cipher := crypto.New("test-key")
	svc := NewUserService(store, cipher)

	user, err := svc.GetOrCreateUser(context.Background(), TelegramUser{
		ID:       1,
		Username: "ivan",
	})
	require.NoError(t, err)
	require.NotNil(t, user.Username)
	assert.NotEqual(t, "ivan", *user.Username)
	assert.Equal(t, "ivan", cipher.Decrypt(*user.Username).Value)
}

func TestGetOrCreateUserHiddenUsernameKeepsStored(t *testing.T) {
	store := newFakeUserStore()
	svc := NewUserService(store, crypto.New("test-key"))
	ctx := context.Background()

	_, err := svc.GetOrCreateUser(ctx, TelegramUser{ID: 1, Username: "ivan"})
	require.NoError(t, err)

	// repeat /start with the TG username hidden must not null the column
	_, err = svc.GetOrCreateUser(ctx, TelegramUser{ID: 1})
	require.NoError(t, err)

	stored, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	require.NotNil(t, stored.Username)
}

func TestGetOrCreateUserKeepsAdminFlag(t *testing.T) {
	store := newFakeUserStore()
	svc := NewUserService(store, crypto.New("test-key"))
	ctx := context.Background()

	_, err := svc.GetOrCreateUser(ctx, TelegramUser{ID: 1, IsAdmin: true})
	require.NoError(t, err)

	// a later /start without the config flag must not demote the user
	user, err := svc.GetOrCreateUser(ctx, TelegramUser{ID: 1})
	require.NoError(t, err)
	assert.True(t, user.IsAdmin)

	stored, err := store.GetUser(ctx, 1)
	require.NoError(t, err)
	assert.True(t, stored.IsAdmin)
}

func TestUpdateEmailNormalizesBeforeEncrypting(t *testing.T) {
	store := newFakeUserStore()
	cipher := crypto.New("test-key")
	svc := NewUserService(store, cipher)
	ctx := context.Background()

	require.NoError(t, svc.UpdateEmail(ctx, 1, "  Ivan@Example.COM "))
	assert.Equal(t, cipher.Encrypt("ivan@example.com"), store.emails[1])

	require.NoError(t, svc.UpdatePhone(ctx, 1, "+7 (900) 123-45-67"))
	assert.Equal(t, cipher.Encrypt("+79001234567"), store.phones[1])
}

func TestNormalizePhone(t *testing.T) {
	assert.Equal(t, "+79001234567", NormalizePhone("+7 (900) 123-45-67"))
	assert.Equal(t, "89001234567", NormalizePhone("8 900 123 45 67"))
	assert.Equal(t, "abc", NormalizePhone(" abc "))
}

func TestDecryptedName(t *testing.T) {
	cipher := crypto.New("test-key")
	svc := NewUserService(newFakeUserStore(), cipher)

	name := "Иван"
	assert.Equal(t, "Иван", svc.DecryptedName(&model.User{FirstName: &name}))

	enc := cipher.Encrypt("ivan")
	assert.Equal(t, "ivan", svc.DecryptedName(&model.User{Username: &enc}))

	assert.Equal(t, "Аноним", svc.DecryptedName(&model.User{}))
}
