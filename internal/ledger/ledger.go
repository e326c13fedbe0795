// Package ledger provides the shared idempotency and rate-limiting state used
// by the checkout initiator and the webhook reconciler.
//
// The interface is deliberately small so single-instance deployments can run
// on the in-memory implementation while multi-instance deployments switch to
// the Redis-backed one without touching callers.
package ledger

import (
	"context"
	"time"
)

// Ledger records already-seen keys (idempotency) and counts requests per key
// within a window (rate limiting).
type Ledger interface {
	// Seen reports whether key was recorded and has not expired.
	Seen(ctx context.Context, key string) (bool, error)

	// Record marks key as seen for the given retention duration.
	Record(ctx context.Context, key string, ttl time.Duration) error

	// Allow reports whether another request for key fits within limit
	// requests per window. A permitted request is counted.
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}
