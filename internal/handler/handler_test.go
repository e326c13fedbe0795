package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/go-faster/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mieledautore/shop-backend/internal/checkout"
	"github.com/mieledautore/shop-backend/internal/domain/auth"
	"github.com/mieledautore/shop-backend/internal/payment"
	"github.com/mieledautore/shop-backend/internal/webhook"
)

type fakeCheckout struct {
	gotReq checkout.Request
	result *checkout.Result
	err    error
}

func (f *fakeCheckout) Checkout(_ context.Context, req checkout.Request) (*checkout.Result, error) {
	f.gotReq = req
	if f.err != nil {
		return nil, f.err
	}
	return f.result, nil
}

type fakeWebhooks struct {
	gotPayload []byte
	gotSig     string
	outcome    *webhook.Outcome
	err        error
}

func (f *fakeWebhooks) Process(_ context.Context, payload []byte, sig string) (*webhook.Outcome, error) {
	f.gotPayload = payload
	f.gotSig = sig
	if f.err != nil {
		return nil, f.err
	}
	return f.outcome, nil
}

type fakeTokenRepo struct {
	byHash map[string]*auth.TokenInfo
}

func (f *fakeTokenRepo) FindByHash(_ context.Context, hash string) (*auth.TokenInfo, error) {
	if info, ok := f.byHash[hash]; ok {
		return info, nil
	}
	return nil, auth.ErrTokenNotFound
}

type testServer struct {
	router   chi.Router
	checkout *fakeCheckout
	webhooks *fakeWebhooks
	token    string
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	const rawToken = "sk_test_abcdef"
	authn := NewAuthenticator(nil, []byte("pepper"))
	repo := &fakeTokenRepo{byHash: map[string]*auth.TokenInfo{}}
	hash := authn.HashToken(rawToken)
	repo.byHash[hash] = &auth.TokenInfo{ID: "tok-1", TokenHash: hash, UserID: "user-1", Name: "frontend"}

	ts := &testServer{
		checkout: &fakeCheckout{result: &checkout.Result{
			OrderID:     "ord-1",
			SessionID:   "cs_123",
			CheckoutURL: "https://checkout.example/cs_123",
		}},
		webhooks: &fakeWebhooks{outcome: &webhook.Outcome{EventID: "evt_1"}},
		token:    rawToken,
	}

	h := New(ts.checkout, ts.webhooks, NewAuthenticator(repo, []byte("pepper")))
	r := chi.NewRouter()
	h.Register(r)
	ts.router = r
	return ts
}

func (ts *testServer) do(method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

const validCheckoutBody = `{
	"items": [{"product_id": "prod-1", "quantity": 2}],
	"coupon_code": "SAVE10",
	"shipping_address": {"name": "Mario Rossi", "city": "Bologna"}
}`

func TestCheckout_Success(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/checkout", validCheckoutBody, ts.token)

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{
		"success": true,
		"data": {
			"checkout_url": "https://checkout.example/cs_123",
			"session_id": "cs_123",
			"order_id": "ord-1"
		}
	}`, w.Body.String())

	assert.Equal(t, "user-1", ts.checkout.gotReq.UserID)
	assert.Equal(t, "SAVE10", ts.checkout.gotReq.CouponCode)
	require.Len(t, ts.checkout.gotReq.Items, 1)
	assert.Equal(t, 2, ts.checkout.gotReq.Items[0].Quantity)
	assert.Equal(t, "Bologna", ts.checkout.gotReq.ShippingAddress.City)
}

func TestCheckout_Unauthorized(t *testing.T) {
	ts := newTestServer(t)

	tests := []struct {
		name  string
		token string
	}{
		{name: "missing token", token: ""},
		{name: "unknown token", token: "sk_test_wrong"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(http.MethodPost, "/api/checkout", validCheckoutBody, tt.token)
			assert.Equal(t, http.StatusUnauthorized, w.Code)
			assert.JSONEq(t, `{"success": false, "error": "unauthorized"}`, w.Body.String())
		})
	}
}

func TestCheckout_InvalidBody(t *testing.T) {
	ts := newTestServer(t)

	w := ts.do(http.MethodPost, "/api/checkout", `{"items": `, ts.token)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestCheckout_ErrorMapping(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "empty items", err: checkout.ErrEmptyItems, wantStatus: http.StatusBadRequest},
		{name: "no valid items", err: checkout.ErrNoValidItems, wantStatus: http.StatusBadRequest},
		{name: "invalid quantity", err: &checkout.InvalidQuantityError{ProductID: "p1"}, wantStatus: http.StatusBadRequest},
		{
			name:       "insufficient stock",
			err:        &checkout.InsufficientStockError{ProductID: "p1", Name: "Miele", Available: 1, Requested: 5},
			wantStatus: http.StatusBadRequest,
		},
		{name: "rate limited", err: checkout.ErrRateLimited, wantStatus: http.StatusTooManyRequests},
		{name: "database down", err: errors.New("connection refused"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.checkout.err = tt.err

			w := ts.do(http.MethodPost, "/api/checkout", validCheckoutBody, ts.token)
			assert.Equal(t, tt.wantStatus, w.Code)

			if tt.wantStatus == http.StatusInternalServerError {
				// Internal detail must not leak to the client.
				assert.NotContains(t, w.Body.String(), "connection refused")
			}
		})
	}
}

func TestStripeWebhook_Success(t *testing.T) {
	ts := newTestServer(t)

	req := httptest.NewRequest(http.MethodPost, "/api/webhooks/stripe", strings.NewReader(`{"id":"evt_1"}`))
	req.Header.Set("Stripe-Signature", "t=1,v1=abc")
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)

	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []byte(`{"id":"evt_1"}`), ts.webhooks.gotPayload)
	assert.Equal(t, "t=1,v1=abc", ts.webhooks.gotSig)
	assert.Contains(t, w.Body.String(), `"event_id":"evt_1"`)
	assert.Contains(t, w.Body.String(), "processing_time")
}

func TestStripeWebhook_Duplicate(t *testing.T) {
	ts := newTestServer(t)
	ts.webhooks.outcome = &webhook.Outcome{EventID: "evt_1", Duplicate: true}

	w := ts.do(http.MethodPost, "/api/webhooks/stripe", `{"id":"evt_1"}`, "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"duplicate":true`)
}

func TestStripeWebhook_Errors(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
	}{
		{name: "invalid signature", err: payment.ErrInvalidSignature, wantStatus: http.StatusBadRequest},
		{name: "malformed event", err: payment.ErrMalformedEvent, wantStatus: http.StatusBadRequest},
		{name: "processing failure", err: errors.New("db down"), wantStatus: http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t)
			ts.webhooks.err = tt.err

			w := ts.do(http.MethodPost, "/api/webhooks/stripe", `{}`, "")
			assert.Equal(t, tt.wantStatus, w.Code)
		})
	}
}
