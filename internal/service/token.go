package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/refbot/backend/internal/crypto"
	"github.com/refbot/backend/internal/model"
	"github.com/refbot/backend/internal/repository"
)

var ErrTokenNotFound = repository.ErrTokenNotFound

// tokenStore is the vault's storage contract (implemented by *repository.Repository).
type tokenStore interface {
	GetTokenByValue(ctx context.Context, encryptedValue string, valueType model.ValueType) (*model.UtmToken, error)
	GetToken(ctx context.Context, token string) (*model.UtmToken, error)
	CreateToken(ctx context.Context, token *model.UtmToken) error
	ListTokens(ctx context.Context) ([]model.UtmToken, error)
}

// TokenVault maps encrypted PII values to short opaque tokens for tracking
// links, and back. One token per (value, type), created lazily, never rotated.
type TokenVault struct {
	store  tokenStore
	cipher *crypto.Cipher
}

func NewTokenVault(store tokenStore, cipher *crypto.Cipher) *TokenVault {
	return &TokenVault{store: store, cipher: cipher}
}

const tokenCreateRetries = 5

// GetOrCreateToken returns the existing token for (encryptedValue, valueType)
// or generates one, retrying on the rare collision with another token string.
func (v *TokenVault) GetOrCreateToken(ctx context.Context, encryptedValue string, valueType model.ValueType) (string, error) {
	if encryptedValue == "" {
		return "", nil
	}

	existing, err := v.store.GetTokenByValue(ctx, encryptedValue, valueType)
	if err == nil {
		return existing.Token, nil
	}
	if !errors.Is(err, repository.ErrTokenNotFound) {
		return "", err
	}

	for i := 0; i < tokenCreateRetries; i++ {
		tok, err := crypto.GenerateToken(crypto.TokenLength)
		if err != nil {
			return "", err
		}
		entry := &model.UtmToken{
			Token:          tok,
			EncryptedValue: encryptedValue,
			ValueType:      valueType,
		}
		err = v.store.CreateToken(ctx, entry)
		if err == nil {
			return tok, nil
		}
		if !errors.Is(err, repository.ErrTokenCollision) {
			return "", err
		}
		// the value may have been inserted concurrently under another token
		if existing, lookupErr := v.store.GetTokenByValue(ctx, encryptedValue, valueType); lookupErr == nil {
			return existing.Token, nil
		}
	}
	return "", fmt.Errorf("failed to allocate utm token after %d attempts", tokenCreateRetries)
}

// Resolve returns the vault entry behind a token.
func (v *TokenVault) Resolve(ctx context.Context, token string) (*model.UtmToken, error) {
	return v.store.GetToken(ctx, token)
}

// UserTokens returns the user's link tokens (username, email, phone), creating
// missing ones. Medium may be empty when the user has no username.
func (v *TokenVault) UserTokens(ctx context.Context, user *model.User) (medium, campaign, content string, err error) {
	if user.Username != nil {
		medium, err = v.GetOrCreateToken(ctx, *user.Username, model.ValueTypeUsername)
		if err != nil {
			return "", "", "", err
		}
	}
	if user.Email != nil {
		campaign, err = v.GetOrCreateToken(ctx, *user.Email, model.ValueTypeEmail)
		if err != nil {
			return "", "", "", err
		}
	}
	if user.Phone != nil {
		content, err = v.GetOrCreateToken(ctx, *user.Phone, model.ValueTypePhone)
		if err != nil {
			return "", "", "", err
		}
	}
	return medium, campaign, content, nil
}

// KeyRow is one line of the token key export: token → decrypted value.
type KeyRow struct {
	Token     string
	ValueType model.ValueType
	Value     string
	Legacy    bool
}

// KeyRows lists every token with its decrypted value, for the CRM operator
// to substitute tokens back to readable values in spreadsheets.
func (v *TokenVault) KeyRows(ctx context.Context) ([]KeyRow, error) {
	tokens, err := v.store.ListTokens(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]KeyRow, 0, len(tokens))
	for _, t := range tokens {
		res := v.cipher.Decrypt(t.EncryptedValue)
		rows = append(rows, KeyRow{
			Token:     t.Token,
			ValueType: t.ValueType,
			Value:     res.Value,
			Legacy:    res.Legacy,
		})
	}
	return rows, nil
}
