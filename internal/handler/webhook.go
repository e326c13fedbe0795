package handler

import (
	"io"
	"net/http"
	"time"

	"github.com/go-faster/errors"

	"github.com/mieledautore/shop-backend/internal/payment"
)

// signatureHeader is the header carrying the processor's payload signature.
const signatureHeader = "Stripe-Signature"

// maxWebhookBody bounds event payload size; real processor events are a few
// kilobytes.
const maxWebhookBody = 1 << 20

type webhookResponse struct {
	EventID        string `json:"event_id"`
	Duplicate      bool   `json:"duplicate,omitempty"`
	ProcessingTime string `json:"processing_time"`
}

// StripeWebhook handles POST /api/webhooks/stripe. The raw body is passed to
// signature verification untouched: any re-encoding would break the HMAC.
func (h *Handler) StripeWebhook(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	start := time.Now()

	payload, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		respondError(ctx, w, http.StatusBadRequest, "cannot read request body")
		return
	}

	outcome, err := h.webhooks.Process(ctx, payload, r.Header.Get(signatureHeader))
	if err != nil {
		switch {
		case errors.Is(err, payment.ErrInvalidSignature):
			respondError(ctx, w, http.StatusBadRequest, "invalid signature")
		case errors.Is(err, payment.ErrMalformedEvent):
			respondError(ctx, w, http.StatusBadRequest, "malformed event")
		default:
			// A 500 tells the processor to redeliver; dedup makes the retry safe.
			respondError(ctx, w, http.StatusInternalServerError, err.Error())
		}
		return
	}

	respond(w, http.StatusOK, webhookResponse{
		EventID:        outcome.EventID,
		Duplicate:      outcome.Duplicate,
		ProcessingTime: time.Since(start).String(),
	})
}
