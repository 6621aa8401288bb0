package orders

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/fjod/go_pos/pos-service/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var ErrOrderNotFound = errors.New("order not found")

const (
	StatusPlaced = "PLACED"

	EventOrderPlaced = "OrderPlaced"
)

type Order struct {
	ID             uuid.UUID            `json:"id"`
	IdempotencyKey string               `json:"idempotency_key"`
	TenantSlug     string               `json:"tenant_slug"`
	OperatorID     string               `json:"operator_id"`
	TerminalID     string               `json:"terminal_id,omitempty"`
	Status         string               `json:"status"`
	Items          []domain.OrderLine   `json:"items"`
	Subtotal       decimal.Decimal      `json:"subtotal"`
	Discount       decimal.Decimal      `json:"discount"`
	ShippingFee    decimal.Decimal      `json:"shipping_fee"`
	Total          decimal.Decimal      `json:"total"`
	CouponCode     string               `json:"coupon_code,omitempty"`
	PaymentMethod  domain.PaymentMethod `json:"payment_method"`
	Fulfillment    domain.Fulfillment   `json:"fulfillment"`
	Tendered       decimal.NullDecimal  `json:"tendered"`
	ChangeDue      decimal.NullDecimal  `json:"change_due"`
	CreatedAt      time.Time            `json:"created_at"`
}

// OutboxEvent is a row of the transactional outbox.
type OutboxEvent struct {
	ID          int64
	AggregateID string
	EventType   string
	Payload     json.RawMessage
	CreatedAt   time.Time
}

// OrderPlacedEvent is published to kafka for every stored order.
type OrderPlacedEvent struct {
	OrderID       string               `json:"order_id"`
	TenantSlug    string               `json:"tenant_slug"`
	OperatorID    string               `json:"operator_id"`
	TerminalID    string               `json:"terminal_id,omitempty"`
	Items         []domain.OrderLine   `json:"items"`
	Subtotal      decimal.Decimal      `json:"subtotal"`
	Discount      decimal.Decimal      `json:"discount"`
	ShippingFee   decimal.Decimal      `json:"shipping_fee"`
	Total         decimal.Decimal      `json:"total"`
	CouponCode    string               `json:"coupon_code,omitempty"`
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Fulfillment   domain.Fulfillment   `json:"fulfillment"`
	PlacedAt      time.Time            `json:"placed_at"`
}

func newOrderPlacedEvent(id uuid.UUID, req *domain.OrderRequest) OrderPlacedEvent {
	return OrderPlacedEvent{
		OrderID:       id.String(),
		TenantSlug:    req.TenantSlug,
		OperatorID:    req.OperatorID,
		TerminalID:    req.TerminalID,
		Items:         req.Lines,
		Subtotal:      req.Subtotal,
		Discount:      req.Discount,
		ShippingFee:   req.ShippingFee,
		Total:         req.Total,
		CouponCode:    req.CouponCode,
		PaymentMethod: req.PaymentMethod,
		Fulfillment:   req.Fulfillment,
		PlacedAt:      req.CreatedAt,
	}
}
