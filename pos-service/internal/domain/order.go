package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type PaymentMethod string

const (
	PaymentCash  PaymentMethod = "cash"
	PaymentCard  PaymentMethod = "card"
	PaymentPix   PaymentMethod = "pix"
	PaymentOther PaymentMethod = "other"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentCash, PaymentCard, PaymentPix, PaymentOther:
		return true
	}
	return false
}

type Fulfillment string

const (
	FulfillmentCounter  Fulfillment = "counter"
	FulfillmentPickup   Fulfillment = "pickup"
	FulfillmentDelivery Fulfillment = "delivery"
)

func (f Fulfillment) Valid() bool {
	switch f {
	case FulfillmentCounter, FulfillmentPickup, FulfillmentDelivery:
		return true
	}
	return false
}

type PaymentInfo struct {
	Method      PaymentMethod    `json:"method"`
	Tendered    *decimal.Decimal `json:"tendered,omitempty"`
	Fulfillment Fulfillment      `json:"fulfillment"`
}

// OrderLine captures the product price at checkout time.
type OrderLine struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type OrderRequest struct {
	IdempotencyKey string           `json:"idempotency_key"`
	TenantSlug     string           `json:"tenant_slug"`
	OperatorID     string           `json:"operator_id"`
	TerminalID     string           `json:"terminal_id,omitempty"`
	Lines          []OrderLine      `json:"lines"`
	Subtotal       decimal.Decimal  `json:"subtotal"`
	Discount       decimal.Decimal  `json:"discount"`
	ShippingFee    decimal.Decimal  `json:"shipping_fee"`
	Total          decimal.Decimal  `json:"total"`
	CouponCode     string           `json:"coupon_code,omitempty"`
	PaymentMethod  PaymentMethod    `json:"payment_method"`
	Fulfillment    Fulfillment      `json:"fulfillment"`
	Tendered       *decimal.Decimal `json:"tendered,omitempty"`
	ChangeDue      *decimal.Decimal `json:"change_due,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

type Receipt struct {
	OrderID string       `json:"order_id"`
	Request OrderRequest `json:"request"`
}
