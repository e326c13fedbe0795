// Package handler exposes the HTTP API: checkout initiation and the payment
// webhook endpoint. It translates transport concerns (JSON, status codes,
// authentication) to and from the domain services.
package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/sdk/zctx"
	"go.uber.org/zap"

	"github.com/mieledautore/shop-backend/internal/checkout"
	"github.com/mieledautore/shop-backend/internal/webhook"
)

// CheckoutService runs the checkout pipeline.
type CheckoutService interface {
	Checkout(ctx context.Context, req checkout.Request) (*checkout.Result, error)
}

// WebhookProcessor authenticates and applies one raw webhook payload.
type WebhookProcessor interface {
	Process(ctx context.Context, payload []byte, sigHeader string) (*webhook.Outcome, error)
}

// Handler routes API requests to the domain services.
type Handler struct {
	checkout CheckoutService
	webhooks WebhookProcessor
	auth     *Authenticator
}

// New constructs a Handler with the required dependencies.
func New(checkoutSvc CheckoutService, webhooks WebhookProcessor, auth *Authenticator) *Handler {
	return &Handler{
		checkout: checkoutSvc,
		webhooks: webhooks,
		auth:     auth,
	}
}

// Register mounts the API routes on r. The webhook endpoint is
// signature-authenticated, not token-authenticated: the processor calls it
// directly.
func (h *Handler) Register(r chi.Router) {
	r.Route("/api", func(r chi.Router) {
		r.With(h.auth.Middleware).Post("/checkout", h.Checkout)
		r.Post("/webhooks/stripe", h.StripeWebhook)
	})
}

type response struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func respond(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response{Success: true, Data: data})
}

func respondError(ctx context.Context, w http.ResponseWriter, status int, msg string) {
	if status >= 500 {
		// Internal detail stays in the logs; the client gets a generic line.
		zctx.From(ctx).Error("request failed", zap.String("error", msg))
		msg = "internal server error"
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(response{Success: false, Error: msg})
}
