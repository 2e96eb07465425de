package db

import (
	"context"
	"time"

	"vega/internal/types"
)

// WebhookEventRepository is the ledger of applied provider notifications.
// An event key is "<TransactionId>:<Status>".
type WebhookEventRepository struct {
	db DBTX
}

// NewWebhookEventRepository creates a WebhookEventRepository backed by db.
func NewWebhookEventRepository(db DBTX) *WebhookEventRepository {
	return &WebhookEventRepository{db: db}
}

// ClaimEvent records the event key and reports whether this call inserted
// it. Inside a transaction the primary key makes a concurrent claim of the
// same key wait for the first to finish, so exactly one caller sees true.
func (r *WebhookEventRepository) ClaimEvent(ctx context.Context, key, transactionID, status string, at time.Time) (bool, error) {
	tag, err := r.db.Exec(ctx,
		`INSERT INTO webhook_event (event_key, transaction_id, status, processed_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (event_key) DO NOTHING`,
		key,
		transactionID,
		status,
		at,
	)
	if err != nil {
		return false, types.NewAppError(types.ErrCodeInternalDB, "failed to record webhook event", err)
	}
	return tag.RowsAffected() == 1, nil
}
