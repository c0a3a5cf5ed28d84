package model

import (
	"time"

	"github.com/google/uuid"
)

// Referral is an edge of the referral graph: referrer brought referred.
// referred_id is unique across all edges, so the graph is a forest.
type Referral struct {
	ID         uuid.UUID `json:"id" db:"id"`
	ReferrerID int64     `json:"referrer_id" db:"referrer_id"`
	ReferredID int64     `json:"referred_id" db:"referred_id"`
	IsActive   bool      `json:"is_active" db:"is_active"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// ReferralStats is the per-user summary shown in the cabinet and API.
type ReferralStats struct {
	Count int `json:"count"`
	Rank  int `json:"rank"`
}
