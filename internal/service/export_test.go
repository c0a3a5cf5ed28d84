package service

import (
	"bytes"
	"context"
	"encoding/csv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/refbot/backend/internal/crypto"
	"github.com/refbot/backend/internal/model"
)

type fakeExportStore struct {
	users  []model.User
	counts map[int64]int
}

func (s *fakeExportStore) ListUsers(_ context.Context, _ bool) ([]model.User, error) {
	return s.users, nil
}

func (s *fakeExportStore) CountActiveReferrals(_ context.Context, referrerID int64) (int, error) {
	return s.counts[referrerID], nil
}

func TestExportUsers(t *testing.T) {
	cipher := crypto.New("test-key")

	email := cipher.Encrypt("ivan@example.com")
	phone := cipher.Encrypt("+79001112233")
	referrerID := int64(99)
	firstName := "Иван"
	store := &fakeExportStore{
		users: []model.User{{
			ID:           42,
			FirstName:    &firstName,
			Email:        &email,
			Phone:        &phone,
			ReferrerID:   &referrerID,
			IsSubscribed: true,
			IsActive:     true,
			CreatedAt:    time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
		}},
		counts: map[int64]int{42: 3},
	}

	svc := NewExportService(store, NewTokenVault(newFakeTokenStore(), cipher), cipher)
	out, err := svc.ExportUsers(context.Background())
	require.NoError(t, err)

	assert.True(t, bytes.HasPrefix(out, []byte{0xEF, 0xBB, 0xBF}), "export carries a BOM")

	records, err := csv.NewReader(bytes.NewReader(out[3:])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "telegram_id", records[0][0])

	row := records[1]
	assert.Equal(t, "42", row[0])
	assert.Equal(t, "ivan@example.com", row[3])
	assert.Equal(t, "+79001112233", row[4])
	assert.Equal(t, "99", row[5])
	assert.Equal(t, "3", row[6])
	assert.Equal(t, "Да", row[8])
	assert.Equal(t, "Нет", row[9])
}

func TestExportTokenKey(t *testing.T) {
	cipher := crypto.New("test-key")
	vault := NewTokenVault(newFakeTokenStore(), cipher)

	ctx := context.Background()
	tok, err := vault.GetOrCreateToken(ctx, cipher.Encrypt("ivan@example.com"), model.ValueTypeEmail)
	require.NoError(t, err)

	svc := NewExportService(&fakeExportStore{}, vault, cipher)
	out, err := svc.ExportTokenKey(ctx)
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(out[3:])).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, []string{"token", "type", "value"}, records[0])
	assert.Equal(t, []string{tok, "email", "ivan@example.com"}, records[1])
}
