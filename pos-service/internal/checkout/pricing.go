package checkout

import (
	"github.com/fjod/go_pos/pos-service/internal/domain"
	"github.com/shopspring/decimal"
)

// DiscountFunc returns the discount for a subtotal. A nil coupon means none
// was applied.
type DiscountFunc func(subtotal decimal.Decimal, coupon *domain.Coupon) decimal.Decimal

// FeeFunc returns the shipping fee for an order.
type FeeFunc func(subtotal decimal.Decimal, fulfillment domain.Fulfillment) decimal.Decimal

var hundred = decimal.NewFromInt(100)

// CouponDiscount applies a percentage or fixed coupon. The discount never
// exceeds the subtotal.
func CouponDiscount(subtotal decimal.Decimal, coupon *domain.Coupon) decimal.Decimal {
	if coupon == nil {
		return decimal.Zero
	}

	var d decimal.Decimal
	switch coupon.Kind {
	case domain.CouponPercentage:
		d = subtotal.Mul(coupon.Value).Div(hundred).Round(2)
	case domain.CouponFixed:
		d = coupon.Value
	default:
		return decimal.Zero
	}

	if d.IsNegative() {
		return decimal.Zero
	}
	return decimal.Min(d, subtotal)
}

// FlatDeliveryFee charges fee for delivery orders only.
func FlatDeliveryFee(fee decimal.Decimal) FeeFunc {
	return func(_ decimal.Decimal, f domain.Fulfillment) decimal.Decimal {
		if f == domain.FulfillmentDelivery {
			return fee
		}
		return decimal.Zero
	}
}

func NoFee(decimal.Decimal, domain.Fulfillment) decimal.Decimal {
	return decimal.Zero
}
