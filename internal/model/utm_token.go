package model

import (
	"time"
)

type ValueType string

const (
	ValueTypeEmail    ValueType = "email"
	ValueTypePhone    ValueType = "phone"
	ValueTypeUsername ValueType = "username"
)

// UtmToken maps an encrypted PII value to a short token used in tracking
// links. One token per (encrypted_value, value_type); tokens are never
// reassigned or garbage-collected, old CRM exports may still reference them.
type UtmToken struct {
	ID             int64     `json:"id" db:"id"`
	Token          string    `json:"token" db:"token"`
	EncryptedValue string    `json:"encrypted_value" db:"encrypted_value"`
	ValueType      ValueType `json:"value_type" db:"value_type"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`
}
