package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/refbot/backend/internal/model"
)

var (
	ErrTokenNotFound = errors.New("utm token not found")
	// ErrTokenCollision means the generated token string clashed with an
	// existing one; callers regenerate and retry.
	ErrTokenCollision = errors.New("utm token collision")
)

const pgUniqueViolation = "23505"

func (r *Repository) GetTokenByValue(ctx context.Context, encryptedValue string, valueType model.ValueType) (*model.UtmToken, error) {
	var token model.UtmToken
	err := r.db.GetContext(ctx, &token,
		"SELECT * FROM utm_tokens WHERE encrypted_value = $1 AND value_type = $2",
		encryptedValue, valueType)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &token, nil
}

func (r *Repository) GetToken(ctx context.Context, tok string) (*model.UtmToken, error) {
	var token model.UtmToken
	err := r.db.GetContext(ctx, &token, "SELECT * FROM utm_tokens WHERE token = $1", tok)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTokenNotFound
		}
		return nil, err
	}
	return &token, nil
}

// CreateToken inserts a vault entry. A clash on the global token uniqueness
// constraint comes back as ErrTokenCollision so the caller can regenerate;
// a clash on (encrypted_value, value_type) means another writer created the
// mapping first, and the caller should re-read it.
func (r *Repository) CreateToken(ctx context.Context, token *model.UtmToken) error {
	err := r.db.QueryRowContext(ctx, `
		INSERT INTO utm_tokens (token, encrypted_value, value_type)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`,
		token.Token, token.EncryptedValue, token.ValueType).Scan(&token.ID, &token.CreatedAt)

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return ErrTokenCollision
	}
	return err
}

func (r *Repository) ListTokens(ctx context.Context) ([]model.UtmToken, error) {
	var tokens []model.UtmToken
	err := r.db.SelectContext(ctx, &tokens, "SELECT * FROM utm_tokens ORDER BY id")
	return tokens, err
}
