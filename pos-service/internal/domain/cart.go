package domain

import "github.com/shopspring/decimal"

// CartLine is one product-quantity pair. Quantity is always >= 1.
type CartLine struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type CouponKind string

const (
	CouponPercentage CouponKind = "percentage"
	CouponFixed      CouponKind = "fixed"
)

type Coupon struct {
	Code  string          `json:"code"`
	Kind  CouponKind      `json:"kind"`
	Value decimal.Decimal `json:"value"`
}

func (c Coupon) Validate() error {
	if c.Code == "" {
		return ErrInvalidCoupon
	}
	switch c.Kind {
	case CouponPercentage:
		if c.Value.IsNegative() || c.Value.GreaterThan(decimal.NewFromInt(100)) {
			return ErrInvalidCoupon
		}
	case CouponFixed:
		if c.Value.IsNegative() {
			return ErrInvalidCoupon
		}
	default:
		return ErrInvalidCoupon
	}
	return nil
}
