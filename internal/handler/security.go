package handler

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"
	"strings"

	"github.com/mieledautore/shop-backend/internal/domain/auth"
)

type userIDKey struct{}

// UserFromContext returns the authenticated user id, or "" when the request
// was not authenticated.
func UserFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey{}).(string); ok {
		return id
	}
	return ""
}

// Authenticator validates bearer tokens against their HMAC-SHA256 hashes.
// Raw tokens are never stored; the pepper keeps a leaked table useless for
// forging requests.
type Authenticator struct {
	tokens auth.Repository
	pepper []byte
}

// NewAuthenticator creates an Authenticator with the given token repository
// and HMAC pepper.
func NewAuthenticator(tokens auth.Repository, pepper []byte) *Authenticator {
	return &Authenticator{tokens: tokens, pepper: pepper}
}

// HashToken computes the stored form of a raw bearer token.
func (a *Authenticator) HashToken(token string) string {
	mac := hmac.New(sha256.New, a.pepper)
	mac.Write([]byte(token))
	return hex.EncodeToString(mac.Sum(nil))
}

// Middleware authenticates the Authorization bearer token and stores the
// resolved user id in the request context.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || token == "" {
			respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
			return
		}

		mac := hmac.New(sha256.New, a.pepper)
		mac.Write([]byte(token))
		hash := mac.Sum(nil)

		info, err := a.tokens.FindByHash(ctx, hex.EncodeToString(hash))
		if err != nil {
			respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
			return
		}

		// The lookup succeeded, but compare in constant time anyway in case
		// the repository returned a stale row.
		stored, err := hex.DecodeString(info.TokenHash)
		if err != nil || subtle.ConstantTimeCompare(hash, stored) != 1 {
			respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
			return
		}

		next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, userIDKey{}, info.UserID)))
	})
}
