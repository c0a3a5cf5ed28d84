package model

import (
	"time"
)

// User is a bot participant. Username, Email and Phone hold encrypted values;
// decryption happens only for display and CSV export.
type User struct {
	ID           int64      `json:"id" db:"id"` // telegram id
	Username     *string    `json:"username,omitempty" db:"username"`
	FirstName    *string    `json:"first_name,omitempty" db:"first_name"`
	Email        *string    `json:"email,omitempty" db:"email"`
	Phone        *string    `json:"phone,omitempty" db:"phone"`
	ReferrerID   *int64     `json:"referrer_id,omitempty" db:"referrer_id"`
	IsSubscribed bool       `json:"is_subscribed" db:"is_subscribed"` // в закрытом канале = прошёл очный этап
	IsVerified   bool       `json:"is_verified" db:"is_verified"`     // подтверждён импортом из CRM
	IsAdmin      bool       `json:"is_admin" db:"is_admin"`
	IsActive     bool       `json:"is_active" db:"is_active"`
	CreatedAt    time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at" db:"updated_at"`
}

// HasContacts reports whether the user completed registration (email + phone).
func (u *User) HasContacts() bool {
	return u.Email != nil && *u.Email != "" && u.Phone != nil && *u.Phone != ""
}

// ReferrerCount pairs a user with their active referral count (leaderboard,
// per-grade listings).
type ReferrerCount struct {
	User
	Count int `json:"count" db:"count"`
}
