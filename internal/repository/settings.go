package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/refbot/backend/internal/model"
)

var ErrSettingNotFound = errors.New("setting not found")

func (r *Repository) GetSetting(ctx context.Context, key string) (string, error) {
	var value string
	err := r.db.GetContext(ctx, &value, "SELECT value FROM settings WHERE key = $1", key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", ErrSettingNotFound
		}
		return "", err
	}
	return value, nil
}

func (r *Repository) SetSetting(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO settings (key, value, updated_at) VALUES ($1, $2, NOW())
		ON CONFLICT (key) DO UPDATE SET value = $2, updated_at = NOW()
	`, key, value)
	return err
}

// Contacts shown behind the cabinet's contact button.

func (r *Repository) ListContacts(ctx context.Context) ([]model.Contact, error) {
	var contacts []model.Contact
	err := r.db.SelectContext(ctx, &contacts, "SELECT * FROM contacts ORDER BY id")
	return contacts, err
}

func (r *Repository) CreateContact(ctx context.Context, contact *model.Contact) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO contacts (tg_username, note) VALUES ($1, $2)
		RETURNING id, created_at`,
		contact.TgUsername, contact.Note).Scan(&contact.ID, &contact.CreatedAt)
}

func (r *Repository) DeleteContact(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx, "DELETE FROM contacts WHERE id = $1", id)
	return err
}
