package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/go-faster/errors"
)

// StripeClient implements Client against the Stripe Checkout Sessions API.
// Requests are form-encoded per Stripe's conventions and carry a bounded
// timeout so a hung processor call cannot hold request resources.
type StripeClient struct {
	secretKey string
	baseURL   string
	http      *http.Client
}

// StripeOption customizes a StripeClient.
type StripeOption func(*StripeClient)

// WithBaseURL overrides the API base URL, for tests and stubs.
func WithBaseURL(u string) StripeOption {
	return func(c *StripeClient) { c.baseURL = strings.TrimRight(u, "/") }
}

// WithTimeout bounds each API call.
func WithTimeout(d time.Duration) StripeOption {
	return func(c *StripeClient) { c.http.Timeout = d }
}

// NewStripeClient creates a client authenticated with the given secret key.
func NewStripeClient(secretKey string, opts ...StripeOption) *StripeClient {
	c := &StripeClient{
		secretKey: secretKey,
		baseURL:   "https://api.stripe.com",
		http:      &http.Client{Timeout: 15 * time.Second},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// sessionResponse is the subset of the processor's session object we consume.
type sessionResponse struct {
	ID            string `json:"id"`
	URL           string `json:"url"`
	PaymentIntent string `json:"payment_intent"`
	Error         *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// CreateCheckoutSession creates a hosted checkout session in payment mode
// with card collection and required billing address.
func (c *StripeClient) CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error) {
	form := url.Values{}
	form.Set("mode", "payment")
	form.Set("success_url", req.SuccessURL)
	form.Set("cancel_url", req.CancelURL)
	form.Set("payment_method_types[0]", "card")
	form.Set("billing_address_collection", "required")

	for i, li := range req.LineItems {
		prefix := fmt.Sprintf("line_items[%d]", i)
		form.Set(prefix+"[price_data][currency]", req.Currency)
		form.Set(prefix+"[price_data][unit_amount]", strconv.FormatInt(li.UnitAmount, 10))
		form.Set(prefix+"[price_data][product_data][name]", li.Name)
		if li.ImageURL != "" {
			form.Set(prefix+"[price_data][product_data][images][0]", li.ImageURL)
		}
		form.Set(prefix+"[quantity]", strconv.Itoa(li.Quantity))
	}

	for k, v := range req.Metadata {
		form.Set("metadata["+k+"]", v)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/checkout/sessions", strings.NewReader(form.Encode()))
	if err != nil {
		return nil, errors.Wrap(err, "build session request")
	}
	httpReq.Header.Set("Authorization", "Bearer "+c.secretKey)
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return nil, errors.Wrap(err, "create checkout session")
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, errors.Wrap(err, "read session response")
	}

	var sr sessionResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, errors.Wrapf(err, "decode session response (status %d)", resp.StatusCode)
	}

	if resp.StatusCode != http.StatusOK {
		msg := "unknown error"
		if sr.Error != nil {
			msg = sr.Error.Message
		}
		return nil, errors.Errorf("processor rejected session (status %d): %s", resp.StatusCode, msg)
	}

	return &Session{
		ID:              sr.ID,
		URL:             sr.URL,
		PaymentIntentID: sr.PaymentIntent,
	}, nil
}
