package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/refbot/backend/internal/model"
)

// ErrAlreadyLinked means the referred user already has a referrer; the
// existing edge stands, re-linking is a no-op.
var ErrAlreadyLinked = errors.New("user already linked to a referrer")

// LinkReferral attaches a referrer to a previously unlinked user and inserts
// the referral edge in one transaction. The user is also marked verified,
// since linking only ever happens off a confirmed CRM record. Returns
// ErrAlreadyLinked when referrer_id is already set.
func (r *Repository) LinkReferral(ctx context.Context, referrerID, referredID int64) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		var existing *int64
		err := tx.QueryRowContext(ctx,
			`SELECT referrer_id FROM users WHERE id = $1 FOR UPDATE`, referredID).Scan(&existing)
		if err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return ErrUserNotFound
			}
			return err
		}
		if existing != nil {
			return ErrAlreadyLinked
		}

		_, err = tx.ExecContext(ctx, `
			UPDATE users SET referrer_id = $2, is_verified = true, updated_at = NOW()
			WHERE id = $1`, referredID, referrerID)
		if err != nil {
			return err
		}

		_, err = tx.ExecContext(ctx, `
			INSERT INTO referrals (referrer_id, referred_id) VALUES ($1, $2)`,
			referrerID, referredID)
		return err
	})
}

func (r *Repository) GetUserReferrals(ctx context.Context, referrerID int64) ([]model.Referral, error) {
	var referrals []model.Referral
	err := r.db.SelectContext(ctx, &referrals, `
		SELECT * FROM referrals
		WHERE referrer_id = $1 AND is_active = true
		ORDER BY created_at`, referrerID)
	return referrals, err
}

func (r *Repository) CountActiveReferrals(ctx context.Context, referrerID int64) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM referrals WHERE referrer_id = $1 AND is_active = true", referrerID)
	return count, err
}

func (r *Repository) CountReferrals(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM referrals WHERE is_active = true")
	return count, err
}

// UserRank returns the 1-based leaderboard position: one plus the number of
// referrers with a strictly greater active count. Tied users share a rank.
func (r *Repository) UserRank(ctx context.Context, userID int64) (int, error) {
	count, err := r.CountActiveReferrals(ctx, userID)
	if err != nil {
		return 0, err
	}

	var higher int
	err = r.db.GetContext(ctx, &higher, `
		SELECT COUNT(*) FROM (
			SELECT referrer_id FROM referrals
			WHERE is_active = true
			GROUP BY referrer_id
			HAVING COUNT(*) > $1
		) t`, count)
	if err != nil {
		return 0, err
	}
	return higher + 1, nil
}

// TopReferrers returns up to limit users ordered by descending active count.
// Ties are broken by storage order.
func (r *Repository) TopReferrers(ctx context.Context, limit int) ([]model.ReferrerCount, error) {
	var rows []model.ReferrerCount
	err := r.db.SelectContext(ctx, &rows, `
		SELECT u.*, c.count FROM users u
		INNER JOIN (
			SELECT referrer_id, COUNT(*) AS count FROM referrals
			WHERE is_active = true
			GROUP BY referrer_id
		) c ON c.referrer_id = u.id
		WHERE u.is_active = true
		ORDER BY c.count DESC
		LIMIT $1`, limit)
	return rows, err
}
