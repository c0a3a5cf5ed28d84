package repository

import (
	"context"

	"github.com/refbot/backend/internal/model"
)

func (r *Repository) CreateBroadcast(ctx context.Context, broadcast *model.Broadcast) error {
	return r.db.QueryRowContext(ctx, `
		INSERT INTO broadcasts (message_text, recipients_count)
		VALUES ($1, $2)
		RETURNING id, sent_at`,
		broadcast.MessageText, broadcast.RecipientsCount).Scan(&broadcast.ID, &broadcast.SentAt)
}
