package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-faster/errors"

	"github.com/mieledautore/shop-backend/internal/checkout"
	"github.com/mieledautore/shop-backend/internal/domain/coupon"
	"github.com/mieledautore/shop-backend/internal/domain/order"
)

type checkoutItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type checkoutRequest struct {
	Items           []checkoutItem `json:"items"`
	CouponCode      string         `json:"coupon_code,omitempty"`
	ShippingAddress order.Address  `json:"shipping_address"`
}

type checkoutResponse struct {
	CheckoutURL string `json:"checkout_url"`
	SessionID   string `json:"session_id"`
	OrderID     string `json:"order_id"`
}

// Checkout handles POST /api/checkout.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	userID := UserFromContext(ctx)
	if userID == "" {
		respondError(ctx, w, http.StatusUnauthorized, "unauthorized")
		return
	}

	var req checkoutRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(&req); err != nil {
		respondError(ctx, w, http.StatusBadRequest, "invalid request body")
		return
	}

	items := make([]checkout.ItemRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = checkout.ItemRequest{ProductID: item.ProductID, Quantity: item.Quantity}
	}

	result, err := h.checkout.Checkout(ctx, checkout.Request{
		UserID:          userID,
		Items:           items,
		CouponCode:      req.CouponCode,
		ShippingAddress: req.ShippingAddress,
	})
	if err != nil {
		status, msg := mapCheckoutError(err)
		respondError(ctx, w, status, msg)
		return
	}

	respond(w, http.StatusOK, checkoutResponse{
		CheckoutURL: result.CheckoutURL,
		SessionID:   result.SessionID,
		OrderID:     result.OrderID,
	})
}

// mapCheckoutError translates pipeline errors to HTTP status codes. Client
// mistakes are 400 with the domain message; everything else is internal.
func mapCheckoutError(err error) (int, string) {
	switch {
	case errors.Is(err, checkout.ErrRateLimited):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, checkout.ErrEmptyItems),
		errors.Is(err, checkout.ErrNoValidItems),
		errors.Is(err, checkout.ErrInvalidTotal),
		errors.Is(err, coupon.ErrNotFound),
		errors.Is(err, coupon.ErrExpired),
		errors.Is(err, coupon.ErrExhausted),
		errors.Is(err, coupon.ErrMinimumNotMet):
		return http.StatusBadRequest, err.Error()
	}

	var (
		quantityErr *checkout.InvalidQuantityError
		stockErr    *checkout.InsufficientStockError
	)
	if errors.As(err, &quantityErr) || errors.As(err, &stockErr) {
		return http.StatusBadRequest, err.Error()
	}

	return http.StatusInternalServerError, err.Error()
}
