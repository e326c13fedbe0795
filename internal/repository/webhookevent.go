package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mieledautore/shop-backend/internal/webhook"
)

const (
	insertWebhookEventSQL = `INSERT INTO webhook_events (event_id, event_type)
		VALUES ($1, $2) ON CONFLICT (event_id) DO NOTHING`

	insertWebhookErrorSQL = `INSERT INTO webhook_errors (event_id, event_type, error)
		VALUES ($1, $2, $3)`

	pruneWebhookEventsSQL = `DELETE FROM webhook_events WHERE processed_at < $1`
)

var _ webhook.EventStore = (*WebhookEventRepository)(nil)

// WebhookEventRepository implements webhook.EventStore backed by PostgreSQL.
// The event_id primary key is the durable idempotency guarantee.
type WebhookEventRepository struct {
	pool *pgxpool.Pool
}

// NewWebhookEventRepository returns a WebhookEventRepository that uses the
// given pool.
func NewWebhookEventRepository(pool *pgxpool.Pool) *WebhookEventRepository {
	return &WebhookEventRepository{pool: pool}
}

// InsertOnce records the event id, returning false when it was already
// recorded by an earlier delivery.
func (r *WebhookEventRepository) InsertOnce(ctx context.Context, eventID, eventType string) (bool, error) {
	tag, err := r.pool.Exec(ctx, insertWebhookEventSQL, eventID, eventType)
	if err != nil {
		return false, fmt.Errorf("inserting webhook event %q: %w", eventID, err)
	}
	return tag.RowsAffected() == 1, nil
}

// RecordError stores a processing failure for diagnostics.
func (r *WebhookEventRepository) RecordError(ctx context.Context, eventID, eventType, message string) error {
	_, err := r.pool.Exec(ctx, insertWebhookErrorSQL, eventID, eventType, message)
	if err != nil {
		return fmt.Errorf("recording webhook error for event %q: %w", eventID, err)
	}
	return nil
}

// Prune deletes event records older than the retention window.
func (r *WebhookEventRepository) Prune(ctx context.Context, olderThan time.Duration) (int64, error) {
	tag, err := r.pool.Exec(ctx, pruneWebhookEventsSQL, time.Now().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("pruning webhook events: %w", err)
	}
	return tag.RowsAffected(), nil
}
