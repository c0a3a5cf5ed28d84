package model

import (
	"encoding/json"
	"strings"
	"time"
)

// Grade is a referral-count threshold with a reward set. "Achieved" is never
// stored on the user: it is recomputed from the current count on demand.
type Grade struct {
	ID                int64  `json:"id" db:"id"`
	ReferralThreshold int    `json:"referral_threshold" db:"referral_threshold"`
	Rewards           string `json:"rewards" db:"rewards"` // JSON array, legacy rows may hold a comma list
	SortOrder         int    `json:"sort_order" db:"sort_order"`
}

// RewardList parses the rewards column. Non-JSON values fall back to a
// comma-separated split (rows created before the JSON format).
func (g Grade) RewardList() []string {
	s := strings.TrimSpace(g.Rewards)
	if s == "" {
		return nil
	}
	if strings.HasPrefix(s, "[") {
		var out []string
		if err := json.Unmarshal([]byte(s), &out); err == nil {
			return out
		}
		s = strings.Trim(s, "[]")
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// EncodeRewards serializes a reward list for the rewards column.
func EncodeRewards(rewards []string) string {
	b, _ := json.Marshal(rewards)
	return string(b)
}

// GradeClaim records that an admin issued the grade's reward to a user.
// Append-only; at most one claim per (user, grade) pair, guarded by callers.
type GradeClaim struct {
	ID            int64     `json:"id" db:"id"`
	UserID        int64     `json:"user_id" db:"user_id"`
	GradeID       int64     `json:"grade_id" db:"grade_id"`
	ClaimedAt     time.Time `json:"claimed_at" db:"claimed_at"`
	IssuedByAdmin int64     `json:"issued_by_admin" db:"issued_by_admin"`
}
