package model

import (
	"time"

	"github.com/google/uuid"
)

// Broadcast records one admin mailing to all active users.
type Broadcast struct {
	ID              uuid.UUID `json:"id" db:"id"`
	MessageText     string    `json:"message_text" db:"message_text"`
	RecipientsCount int       `json:"recipients_count" db:"recipients_count"`
	SentAt          time.Time `json:"sent_at" db:"sent_at"`
}

// Contact is an organizer contact shown behind the cabinet's contact button.
type Contact struct {
	ID         int64     `json:"id" db:"id"`
	TgUsername string    `json:"tg_username" db:"tg_username"`
	Note       *string   `json:"note,omitempty" db:"note"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}
