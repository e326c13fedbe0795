package repository

import (
	"context"
	"fmt"

	"github.com/go-faster/errors"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/mieledautore/shop-backend/internal/domain/auth"
)

const getTokenByHashSQL = `SELECT id, token_hash, user_id, name
	FROM api_tokens WHERE token_hash = $1`

var _ auth.Repository = (*TokenRepository)(nil)

// TokenRepository implements auth.Repository backed by PostgreSQL.
type TokenRepository struct {
	pool *pgxpool.Pool
}

// NewTokenRepository returns a TokenRepository that uses the given pool.
func NewTokenRepository(pool *pgxpool.Pool) *TokenRepository {
	return &TokenRepository{pool: pool}
}

// FindByHash looks up a bearer token by its HMAC hash. Returns
// auth.ErrTokenNotFound when no token matches.
func (r *TokenRepository) FindByHash(ctx context.Context, hash string) (*auth.TokenInfo, error) {
	var info auth.TokenInfo
	err := r.pool.QueryRow(ctx, getTokenByHashSQL, hash).Scan(
		&info.ID, &info.TokenHash, &info.UserID, &info.Name,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrTokenNotFound
		}
		return nil, fmt.Errorf("finding token by hash: %w", err)
	}
	return &info, nil
}
