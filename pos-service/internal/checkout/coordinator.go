// Package checkout turns a session cart into an order request and submits it.
package checkout

import (
	"context"
	"fmt"
	"time"

	"github.com/fjod/go_pos/pkg/logger"
	"github.com/fjod/go_pos/pos-service/internal/cart"
	"github.com/fjod/go_pos/pos-service/internal/domain"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// OrderAPI accepts finished orders and returns their id.
type OrderAPI interface {
	Submit(ctx context.Context, req *domain.OrderRequest) (string, error)
}

type Coordinator struct {
	orders   OrderAPI
	discount DiscountFunc
	fee      FeeFunc
	timeout  time.Duration
	now      func() time.Time
	log      *zap.Logger
}

type Option func(*Coordinator)

func WithDiscount(f DiscountFunc) Option {
	return func(c *Coordinator) { c.discount = f }
}

func WithFee(f FeeFunc) Option {
	return func(c *Coordinator) { c.fee = f }
}

// WithTimeout bounds the order submission. Zero means the caller's context only.
func WithTimeout(d time.Duration) Option {
	return func(c *Coordinator) { c.timeout = d }
}

func WithClock(now func() time.Time) Option {
	return func(c *Coordinator) { c.now = now }
}

func NewCoordinator(orders OrderAPI, log *zap.Logger, opts ...Option) *Coordinator {
	c := &Coordinator{
		orders:   orders,
		discount: CouponDiscount,
		fee:      NoFee,
		timeout:  10 * time.Second,
		now:      time.Now,
		log:      log,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Finalize validates the cart, prices it and submits the order once. The cart
// is never modified; clearing it after success is up to the caller.
func (c *Coordinator) Finalize(ctx context.Context, tenant domain.TenantContext, engine *cart.Engine,
	payment domain.PaymentInfo, coupon *domain.Coupon, idempotencyKey string) (*domain.Receipt, error) {

	req, err := c.Build(tenant, engine, payment, coupon)
	if err != nil {
		return nil, err
	}
	req.IdempotencyKey = idempotencyKey

	submitCtx := ctx
	if c.timeout > 0 {
		var cancel context.CancelFunc
		submitCtx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	orderID, err := c.orders.Submit(submitCtx, req)
	if err != nil {
		logger.WithContext(ctx, c.log).Warn("order submit failed",
			zap.String("tenant", tenant.TenantSlug),
			zap.String("idempotency_key", idempotencyKey),
			zap.Error(err))
		return nil, &domain.FetchError{Op: "submit order", Err: err}
	}

	logger.WithContext(ctx, c.log).Info("order submitted",
		zap.String("tenant", tenant.TenantSlug),
		zap.String("order_id", orderID),
		zap.String("total", req.Total.StringFixed(2)))

	return &domain.Receipt{OrderID: orderID, Request: *req}, nil
}

// Build prices the cart without submitting anything.
func (c *Coordinator) Build(tenant domain.TenantContext, engine *cart.Engine,
	payment domain.PaymentInfo, coupon *domain.Coupon) (*domain.OrderRequest, error) {

	if engine.IsEmpty() {
		return nil, domain.ErrEmptyCart
	}
	if !payment.Method.Valid() || !payment.Fulfillment.Valid() {
		return nil, fmt.Errorf("%w: method %q, fulfillment %q", domain.ErrInvalidPayment, payment.Method, payment.Fulfillment)
	}
	if coupon != nil {
		if err := coupon.Validate(); err != nil {
			return nil, err
		}
	}

	snapshot := engine.Catalog()
	lines := engine.Lines()
	orderLines := make([]domain.OrderLine, 0, len(lines))
	for _, l := range lines {
		p, _ := snapshot.Product(l.ProductID)
		orderLines = append(orderLines, domain.OrderLine{
			ProductID:   l.ProductID,
			ProductName: p.Name,
			Quantity:    l.Quantity,
			UnitPrice:   p.UnitPrice,
			Subtotal:    engine.Subtotal(l),
		})
	}

	subtotal := engine.Total()
	discount := c.discount(subtotal, coupon)
	fee := c.fee(subtotal, payment.Fulfillment)
	total := subtotal.Sub(discount).Add(fee)

	req := &domain.OrderRequest{
		TenantSlug:    tenant.TenantSlug,
		OperatorID:    tenant.OperatorID,
		TerminalID:    tenant.TerminalID,
		Lines:         orderLines,
		Subtotal:      subtotal,
		Discount:      discount,
		ShippingFee:   fee,
		Total:         total,
		PaymentMethod: payment.Method,
		Fulfillment:   payment.Fulfillment,
		CreatedAt:     c.now().UTC(),
	}
	if coupon != nil {
		req.CouponCode = coupon.Code
	}

	if payment.Tendered != nil {
		if payment.Tendered.LessThan(total) {
			return nil, fmt.Errorf("%w: tendered %s, total %s", domain.ErrInsufficientTender,
				payment.Tendered.StringFixed(2), total.StringFixed(2))
		}
		tendered := *payment.Tendered
		change := tendered.Sub(total)
		req.Tendered = &tendered
		req.ChangeDue = &change
	}

	return req, nil
}

// Quote is the price breakdown shown before the operator confirms.
type Quote struct {
	Subtotal    decimal.Decimal `json:"subtotal"`
	Discount    decimal.Decimal `json:"discount"`
	ShippingFee decimal.Decimal `json:"shipping_fee"`
	Total       decimal.Decimal `json:"total"`
}

// Quote prices the cart for display. An empty cart quotes zero.
func (c *Coordinator) Quote(engine *cart.Engine, coupon *domain.Coupon, fulfillment domain.Fulfillment) Quote {
	subtotal := engine.Total()
	if engine.IsEmpty() {
		return Quote{Subtotal: subtotal, Discount: decimal.Zero, ShippingFee: decimal.Zero, Total: subtotal}
	}
	discount := c.discount(subtotal, coupon)
	fee := c.fee(subtotal, fulfillment)
	return Quote{
		Subtotal:    subtotal,
		Discount:    discount,
		ShippingFee: fee,
		Total:       subtotal.Sub(discount).Add(fee),
	}
}
