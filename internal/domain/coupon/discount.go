package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Apply calculates the discount for the given rule against an order subtotal.
// The returned amount is always in [0, subtotal], rounded to 2 decimal places.
func Apply(rule *Rule, subtotal decimal.Decimal) (Discount, error) {
	switch rule.Type {
	case DiscountPercentage:
		return applyPercentage(rule, subtotal), nil
	case DiscountFixed:
		return applyFixed(rule, subtotal), nil
	case DiscountFreeShipping:
		return Discount{
			Amount:       decimal.Zero,
			FreeShipping: true,
			Description:  rule.Description,
		}, nil
	default:
		return Discount{}, errors.Errorf("unsupported discount type: %q", rule.Type)
	}
}

func applyPercentage(rule *Rule, subtotal decimal.Decimal) Discount {
	amount := subtotal.Mul(rule.Value).Div(hundred)
	if rule.MaximumDiscount != nil {
		amount = decimal.Min(amount, *rule.MaximumDiscount)
	}
	amount = clamp(amount, subtotal).Round(2)

	return Discount{
		Amount:      amount,
		Description: rule.Description,
	}
}

func applyFixed(rule *Rule, subtotal decimal.Decimal) Discount {
	// A fixed discount never exceeds the subtotal.
	amount := clamp(rule.Value, subtotal).Round(2)

	return Discount{
		Amount:      amount,
		Description: rule.Description,
	}
}

// clamp bounds d to the range [0, max].
func clamp(d, max decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(d, max)
}
