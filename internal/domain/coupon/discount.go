package coupon

import (
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Apply calculates the discount for rule against a cart with the given
// subtotal and total item quantity. The result is never negative and never
// exceeds the subtotal.
func Apply(rule *Rule, subtotal decimal.Decimal, itemCount int) (Discount, error) {
	if rule.MinItems > 0 && itemCount < rule.MinItems {
		return Discount{}, ErrCouponMinItems
	}

	var amount decimal.Decimal
	switch rule.DiscountType {
	case DiscountPercentage:
		amount = subtotal.Mul(rule.Value).Div(hundred)
		if rule.MaxDiscount.IsPositive() {
			amount = decimal.Min(amount, rule.MaxDiscount)
		}
	case DiscountFixed:
		amount = rule.Value
	default:
		return Discount{}, errors.Errorf("unsupported discount type: %q", rule.DiscountType)
	}

	// Round before clamping so rounding cannot lift the amount past subtotal.
	amount = clamp(amount.Round(2), subtotal)
	return Discount{
		Code:        rule.Code,
		Amount:      amount,
		Description: rule.Description,
	}, nil
}

// clamp bounds d to [0, limit].
func clamp(d, limit decimal.Decimal) decimal.Decimal {
	if d.IsNegative() || limit.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(d, limit)
}
