package coupon

import (
	"context"
	"time"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// DiscountType enumerates the supported coupon discount strategies.
type DiscountType string

const (
	// DiscountPercentage applies a percentage-based discount to the subtotal.
	DiscountPercentage DiscountType = "percentage"
	// DiscountFixed applies a fixed monetary discount capped at the subtotal.
	DiscountFixed DiscountType = "fixed_amount"
	// DiscountFreeShipping waives the shipping cost; the discount amount
	// itself is zero.
	DiscountFreeShipping DiscountType = "free_shipping"
)

var (
	// ErrNotFound is returned when a coupon code does not exist or is inactive.
	ErrNotFound = errors.New("coupon not found")
	// ErrExpired is returned when a coupon is past its valid_until timestamp.
	ErrExpired = errors.New("coupon expired")
	// ErrExhausted is returned when a coupon has reached its usage limit.
	ErrExhausted = errors.New("coupon usage limit reached")
	// ErrMinimumNotMet is returned when the cart subtotal is below the
	// coupon's minimum order amount.
	ErrMinimumNotMet = errors.New("minimum order amount not met for this coupon")
)

// Rule defines a coupon's discount behaviour and eligibility constraints.
// Codes are stored upper-case; lookups are case-insensitive.
type Rule struct {
	Code            string
	Type            DiscountType
	Value           decimal.Decimal
	MaximumDiscount *decimal.Decimal
	MinimumAmount   decimal.Decimal
	ValidUntil      *time.Time
	UsageLimit      int
	UsageCount      int
	Description     string
}

// Discount holds the outcome of applying a coupon to an order subtotal.
type Discount struct {
	// Amount is the monetary reduction of the subtotal. Zero for
	// free-shipping coupons.
	Amount decimal.Decimal
	// FreeShipping forces the shipping cost to zero downstream.
	FreeShipping bool
	Description  string
}

// Repository provides lookup and mutation of coupon rules.
type Repository interface {
	// FindByCode looks up an active coupon. Implementations must match the
	// code case-insensitively and return ErrNotFound when absent.
	FindByCode(ctx context.Context, code string) (*Rule, error)

	// IncrementUsage bumps the usage counter, refusing to exceed the usage
	// limit when one is set.
	IncrementUsage(ctx context.Context, code string) error
}
