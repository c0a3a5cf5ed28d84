package repository

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/refbot/backend/internal/model"
)

var ErrGradeNotFound = errors.New("grade not found")

func (r *Repository) ListGrades(ctx context.Context) ([]model.Grade, error) {
	var grades []model.Grade
	err := r.db.SelectContext(ctx, &grades,
		"SELECT * FROM grades ORDER BY sort_order, referral_threshold")
	return grades, err
}

func (r *Repository) GetGrade(ctx context.Context, id int64) (*model.Grade, error) {
	var grade model.Grade
	err := r.db.GetContext(ctx, &grade, "SELECT * FROM grades WHERE id = $1", id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrGradeNotFound
		}
		return nil, err
	}
	return &grade, nil
}

// CreateGrade inserts a grade; when sort_order is unset it goes after the
// current maximum.
func (r *Repository) CreateGrade(ctx context.Context, grade *model.Grade) error {
	if grade.SortOrder == 0 {
		err := r.db.GetContext(ctx, &grade.SortOrder,
			"SELECT COALESCE(MAX(sort_order), 0) + 1 FROM grades")
		if err != nil {
			return err
		}
	}
	return r.db.QueryRowContext(ctx, `
		INSERT INTO grades (referral_threshold, rewards, sort_order)
		VALUES ($1, $2, $3)
		RETURNING id`,
		grade.ReferralThreshold, grade.Rewards, grade.SortOrder).Scan(&grade.ID)
}

func (r *Repository) UpdateGrade(ctx context.Context, grade *model.Grade) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE grades SET referral_threshold = $2, rewards = $3, sort_order = $4
		WHERE id = $1`,
		grade.ID, grade.ReferralThreshold, grade.Rewards, grade.SortOrder)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrGradeNotFound
	}
	return nil
}

// DeleteGrade removes a grade and cascades to its claims.
func (r *Repository) DeleteGrade(ctx context.Context, id int64) error {
	return r.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx,
			"DELETE FROM grade_claims WHERE grade_id = $1", id); err != nil {
			return err
		}
		res, err := tx.ExecContext(ctx, "DELETE FROM grades WHERE id = $1", id)
		if err != nil {
			return err
		}
		if n, _ := res.RowsAffected(); n == 0 {
			return ErrGradeNotFound
		}
		return nil
	})
}

// UsersForGrade lists active users whose active referral count reached the
// grade's threshold, with the count.
func (r *Repository) UsersForGrade(ctx context.Context, threshold int) ([]model.ReferrerCount, error) {
	var rows []model.ReferrerCount
	err := r.db.SelectContext(ctx, &rows, `
		SELECT u.*, c.count FROM users u
		INNER JOIN (
			SELECT referrer_id, COUNT(*) AS count FROM referrals
			WHERE is_active = true
			GROUP BY referrer_id
		) c ON c.referrer_id = u.id
		WHERE c.count >= $1 AND u.is_active = true
		ORDER BY c.count DESC`, threshold)
	return rows, err
}

func (r *Repository) HasGradeClaim(ctx context.Context, userID, gradeID int64) (bool, error) {
	var count int
	err := r.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM grade_claims WHERE user_id = $1 AND grade_id = $2", userID, gradeID)
	return count > 0, err
}

func (r *Repository) CreateGradeClaim(ctx context.Context, claim *model.GradeClaim) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO grade_claims (user_id, grade_id, issued_by_admin)
		VALUES ($1, $2, $3)
		RETURNING id, claimed_at`,
		claim.UserID, claim.GradeID, claim.IssuedByAdmin).Scan(&claim.ID, &claim.ClaimedAt)
}

func (r *Repository) GetUserGradeClaims(ctx context.Context, userID int64) ([]model.GradeClaim, error) {
	var claims []model.GradeClaim
	err := r.db.SelectContext(ctx, &claims,
		"SELECT * FROM grade_claims WHERE user_id = $1", userID)
	return claims, err
}
