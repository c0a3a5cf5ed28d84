package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/refbot/backend/internal/model"
)

var ErrUserNotFound = errors.New("user not found")

func (r *Repository) GetUser(ctx context.Context, id int64) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, "SELECT * FROM users WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

// CreateUser inserts a user or refreshes username/first_name on repeat
// /start. Referrer is never set here: only the CRM import attaches it.
// Profile fields are kept when the sender hides them, and is_admin is never
// touched on update so an operator-set flag survives repeat /start.
func (r *Repository) CreateUser(ctx context.Context, user *model.User) error {
	query := `
		INSERT INTO users (id, username, first_name, is_admin)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET
			username = COALESCE(EXCLUDED.username, users.username),
			first_name = COALESCE(EXCLUDED.first_name, users.first_name),
			updated_at = NOW()
		RETURNING referrer_id, email, phone, is_admin, is_subscribed, is_verified, is_active, created_at, updated_at`

	return r.db.QueryRowContext(ctx, query,
		user.ID,
		user.Username,
		user.FirstName,
		user.IsAdmin,
	).Scan(&user.ReferrerID, &user.Email, &user.Phone, &user.IsAdmin, &user.IsSubscribed, &user.IsVerified, &user.IsActive, &user.CreatedAt, &user.UpdatedAt)
}

// UpdateUserEmail stores the (already encrypted) email.
func (r *Repository) UpdateUserEmail(ctx context.Context, id int64, encryptedEmail string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET email = $2, updated_at = NOW() WHERE id = $1`, id, encryptedEmail)
	return err
}

// UpdateUserPhone stores the (already encrypted) phone.
func (r *Repository) UpdateUserPhone(ctx context.Context, id int64, encryptedPhone string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET phone = $2, updated_at = NOW() WHERE id = $1`, id, encryptedPhone)
	return err
}

func (r *Repository) SetSubscribed(ctx context.Context, id int64, subscribed bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_subscribed = $2, updated_at = NOW() WHERE id = $1`, id, subscribed)
	return err
}

// DeactivateUser soft-deletes a user; rows are never removed.
func (r *Repository) DeactivateUser(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET is_active = false, updated_at = NOW() WHERE id = $1`, id)
	return err
}

// GetUserByEmail looks a user up by the encrypted email column. Encryption is
// deterministic, so callers encrypt the normalized plaintext and compare.
func (r *Repository) GetUserByEmail(ctx context.Context, encryptedEmail string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user, "SELECT * FROM users WHERE email = $1", encryptedEmail)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *Repository) GetUserByEmailAndPhone(ctx context.Context, encryptedEmail, encryptedPhone string) (*model.User, error) {
	var user model.User
	err := r.db.GetContext(ctx, &user,
		"SELECT * FROM users WHERE email = $1 AND phone = $2", encryptedEmail, encryptedPhone)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	return &user, nil
}

func (r *Repository) ListUsers(ctx context.Context, activeOnly bool) ([]model.User, error) {
	query := "SELECT * FROM users"
	if activeOnly {
		query += " WHERE is_active = true"
	}
	var users []model.User
	err := r.db.SelectContext(ctx, &users, query+" ORDER BY created_at")
	return users, err
}

func (r *Repository) CountUsers(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, "SELECT COUNT(*) FROM users WHERE is_active = true")
	return count, err
}

// PendingUsers returns users who passed the gate and left an email but have
// no referrer yet: candidates for the next CRM import to link.
func (r *Repository) PendingUsers(ctx context.Context) ([]model.User, error) {
	var users []model.User
	err := r.db.SelectContext(ctx, &users, `
		SELECT * FROM users
		WHERE is_subscribed = true AND referrer_id IS NULL AND email IS NOT NULL AND is_active = true`)
	return users, err
}
