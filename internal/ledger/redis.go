package ledger

import (
	"context"
	"strconv"
	"time"

	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
)

// Redis is a Ledger backed by a shared Redis instance, required when the
// reconciler runs as more than one replica.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis creates a Redis ledger. prefix namespaces keys so multiple
// services can share one instance.
func NewRedis(addr, prefix string) *Redis {
	return &Redis{
		client: redis.NewClient(&redis.Options{Addr: addr}),
		prefix: prefix,
	}
}

// Ping verifies connectivity, for readiness checks.
func (r *Redis) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *Redis) Close() error {
	return r.client.Close()
}

// Seen reports whether key was recorded and has not expired.
func (r *Redis) Seen(ctx context.Context, key string) (bool, error) {
	_, err := r.client.Get(ctx, r.prefix+":seen:"+key).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, errors.Wrap(err, "redis get")
	}
	return true, nil
}

// Record marks key as seen for ttl. The value is irrelevant; only existence
// matters.
func (r *Redis) Record(ctx context.Context, key string, ttl time.Duration) error {
	if err := r.client.Set(ctx, r.prefix+":seen:"+key, 1, ttl).Err(); err != nil {
		return errors.Wrap(err, "redis set")
	}
	return nil
}

// Allow counts requests in fixed windows: INCR on a per-window key with the
// window duration as expiry. Fixed windows admit at most 2x the limit across
// a boundary, which is acceptable for abuse bounding.
func (r *Redis) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	windowKey := rateKey(r.prefix, key, time.Now(), window)

	pipe := r.client.TxPipeline()
	count := pipe.Incr(ctx, windowKey)
	pipe.Expire(ctx, windowKey, window)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, errors.Wrap(err, "redis incr")
	}

	return count.Val() <= int64(limit), nil
}

// rateKey names the fixed window that now falls into: the window's ordinal
// number since the epoch, in decimal.
func rateKey(prefix, key string, now time.Time, window time.Duration) string {
	bucket := now.UnixNano() / int64(window)
	return prefix + ":rate:" + key + ":" + strconv.FormatInt(bucket, 10)
}
