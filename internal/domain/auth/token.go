package auth

import (
	"context"

	"github.com/go-faster/errors"
)

// ErrTokenNotFound is returned when no token matches the given hash.
var ErrTokenNotFound = errors.New("token not found")

// TokenInfo holds the identity resolved from a validated bearer token.
type TokenInfo struct {
	ID        string
	TokenHash string
	UserID    string
	Name      string
}

// Repository provides lookup of bearer tokens by their HMAC hash.
type Repository interface {
	FindByHash(ctx context.Context, hash string) (*TokenInfo, error)
}
