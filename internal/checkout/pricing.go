package checkout

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

// ErrInvalidTotal is returned when the computed total is non-positive or
// exceeds the sane upper bound. It guards against corrupted coupon math
// producing a charge the processor would reject.
var ErrInvalidTotal = errors.New("invalid total amount")

// Quote is the priced breakdown of a cart. The invariant
// Total = Subtotal - Discount + Shipping holds exactly; all values are
// rounded to 2 decimal places.
type Quote struct {
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	Shipping     decimal.Decimal
	Total        decimal.Decimal
	FreeShipping bool
}

// price computes the quote for validated items and an optional coupon code.
func (s *Service) price(ctx context.Context, items []validatedItem, couponCode string) (*Quote, error) {
	subtotal := decimal.Zero
	for _, it := range items {
		qty := decimal.NewFromInt(int64(it.quantity))
		subtotal = subtotal.Add(it.product.Price.Mul(qty))
	}
	subtotal = subtotal.Round(2)

	q := &Quote{Subtotal: subtotal, Discount: decimal.Zero}

	if couponCode != "" {
		d, err := s.coupons.Validate(ctx, couponCode, subtotal)
		if err != nil {
			return nil, err
		}
		q.Discount = d.Amount
		q.FreeShipping = d.FreeShipping
	}

	q.Shipping = s.shippingCost(subtotal.Sub(q.Discount), q.FreeShipping)
	q.Total = subtotal.Sub(q.Discount).Add(q.Shipping).Round(2)

	if !q.Total.IsPositive() || q.Total.GreaterThan(s.cfg.MaxTotal) {
		return nil, ErrInvalidTotal
	}
	return q, nil
}

// shippingCost is zero above the free-shipping threshold or with a
// free-shipping coupon, and the configured flat fee otherwise.
func (s *Service) shippingCost(discounted decimal.Decimal, freeShipping bool) decimal.Decimal {
	if freeShipping || discounted.GreaterThanOrEqual(s.cfg.FreeShippingThreshold) {
		return decimal.Zero
	}
	return s.cfg.FlatShippingFee
}
