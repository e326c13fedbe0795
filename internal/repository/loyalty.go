package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mieledautore/shop-backend/internal/webhook"
)

const addLoyaltyPointsSQL = `INSERT INTO loyalty_points (user_id, points)
	VALUES ($1, $2)
	ON CONFLICT (user_id) DO UPDATE
	SET points = loyalty_points.points + EXCLUDED.points, updated_at = now()`

var _ webhook.LoyaltyStore = (*LoyaltyRepository)(nil)

// LoyaltyRepository implements webhook.LoyaltyStore backed by PostgreSQL.
type LoyaltyRepository struct {
	pool *pgxpool.Pool
}

// NewLoyaltyRepository returns a LoyaltyRepository that uses the given pool.
func NewLoyaltyRepository(pool *pgxpool.Pool) *LoyaltyRepository {
	return &LoyaltyRepository{pool: pool}
}

// AddPoints accrues points for a user, creating the balance row on first use.
func (r *LoyaltyRepository) AddPoints(ctx context.Context, userID string, points int) error {
	_, err := r.pool.Exec(ctx, addLoyaltyPointsSQL, userID, points)
	if err != nil {
		return fmt.Errorf("adding %d loyalty points for user %q: %w", points, userID, err)
	}
	return nil
}
