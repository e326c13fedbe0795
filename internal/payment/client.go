// Package payment is the boundary to the external payment processor: creating
// hosted checkout sessions and authenticating the processor's asynchronous
// webhook events.
package payment

import (
	"context"

	"github.com/shopspring/decimal"
)

// SessionLineItem is one payment line in a checkout session request. Amounts
// are in minor currency units (cents), which is what the processor expects.
type SessionLineItem struct {
	Name       string
	ImageURL   string
	UnitAmount int64
	Quantity   int
}

// SessionRequest describes a hosted checkout session to be created.
type SessionRequest struct {
	LineItems  []SessionLineItem
	Currency   string
	SuccessURL string
	CancelURL  string
	// Metadata is attached to the session and echoed back in webhook events
	// for traceability and cross-checking.
	Metadata map[string]string
}

// Session is the processor's hosted checkout session.
type Session struct {
	ID              string
	URL             string
	PaymentIntentID string
}

// Client creates hosted checkout sessions with the payment processor.
type Client interface {
	CreateCheckoutSession(ctx context.Context, req SessionRequest) (*Session, error)
}

var centFactor = decimal.NewFromInt(100)

// MinorUnits converts a decimal currency amount to integer minor units,
// rounding to the nearest cent.
func MinorUnits(d decimal.Decimal) int64 {
	return d.Mul(centFactor).Round(0).IntPart()
}
