package order

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when no order matches the lookup key.
var ErrNotFound = errors.New("order not found")

// Order represents a customer order. Orders are never deleted, only
// status-transitioned, so the table doubles as an audit trail of monetary
// events.
type Order struct {
	ID              string
	UserID          string
	Status          Status
	Subtotal        decimal.Decimal
	DiscountAmount  decimal.Decimal
	ShippingCost    decimal.Decimal
	Total           decimal.Decimal
	CouponCode      string
	StripeSessionID string
	PaymentIntentID string
	ShippingAddress Address
	BillingAddress  Address
	AdminNotes      string
	Items           []LineItem
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// LineItem is one product-and-quantity entry within an order. Price is a
// snapshot taken at order time and is immune to later catalog changes.
type LineItem struct {
	ID         string
	OrderID    string
	ProductID  string
	Quantity   int
	Price      decimal.Decimal
	TotalPrice decimal.Decimal
	Snapshot   ProductSnapshot
}

// ProductSnapshot denormalizes product display data onto the line item so
// order history survives product deletion.
type ProductSnapshot struct {
	Name     string          `json:"name"`
	Price    decimal.Decimal `json:"price"`
	ImageURL string          `json:"image_url,omitempty"`
}

// Address is a shipping or billing address snapshot.
type Address struct {
	Name       string `json:"name,omitempty"`
	Email      string `json:"email,omitempty"`
	Phone      string `json:"phone,omitempty"`
	Line1      string `json:"line1,omitempty"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city,omitempty"`
	PostalCode string `json:"postal_code,omitempty"`
	Country    string `json:"country,omitempty"`
}

// Repository defines persistence operations for orders.
type Repository interface {
	// Create persists the order header and all line items as a single
	// transaction. No header row survives a line-item insert failure.
	Create(ctx context.Context, o *Order) error

	// SetPaymentSession attaches the payment processor's session and payment
	// intent identifiers to the order.
	SetPaymentSession(ctx context.Context, orderID, sessionID, paymentIntentID string) error

	FindBySessionID(ctx context.Context, sessionID string) (*Order, error)
	FindByPaymentIntentID(ctx context.Context, paymentIntentID string) (*Order, error)

	// Items returns the line items belonging to an order.
	Items(ctx context.Context, orderID string) ([]LineItem, error)

	// Transition performs a conditional status update: the row is modified
	// only when its current status equals from. It returns false when the
	// condition did not match (already transitioned, or unknown order), which
	// callers treat as a benign no-op under concurrent event delivery.
	Transition(ctx context.Context, orderID string, from, to Status) (bool, error)

	// SetConfirmedDetails stores the billing and shipping details confirmed
	// by the payment processor.
	SetConfirmedDetails(ctx context.Context, orderID string, billing, shipping Address) error

	// AppendAdminNote appends a line to the order's free-text admin notes.
	AppendAdminNote(ctx context.Context, orderID, note string) error
}
