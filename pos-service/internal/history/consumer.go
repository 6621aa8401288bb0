package history

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	Topic   = "pos-orders"
	GroupID = "pos-sales-history"
)

type SaleStore interface {
	UpsertSale(ctx context.Context, sale *Sale) error
}

type MessageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// orderPlacedEvent mirrors the payload written by the order outbox.
type orderPlacedEvent struct {
	OrderID    string `json:"order_id"`
	TenantSlug string `json:"tenant_slug"`
	OperatorID string `json:"operator_id"`
	TerminalID string `json:"terminal_id"`
	Items      []struct {
		ProductID   int64           `json:"product_id"`
		ProductName string          `json:"product_name"`
		Quantity    int             `json:"quantity"`
		UnitPrice   decimal.Decimal `json:"unit_price"`
		Subtotal    decimal.Decimal `json:"subtotal"`
	} `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	ShippingFee   decimal.Decimal `json:"shipping_fee"`
	Total         decimal.Decimal `json:"total"`
	CouponCode    string          `json:"coupon_code"`
	PaymentMethod string          `json:"payment_method"`
	Fulfillment   string          `json:"fulfillment"`
	PlacedAt      time.Time       `json:"placed_at"`
}

type Consumer struct {
	store      SaleStore
	reader     MessageReader
	log        *zap.Logger
	maxBackoff time.Duration
}

func NewKafkaReader(brokers ...string) *kafka.Reader {
	return kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    Topic,
		GroupID:  GroupID,
		MaxBytes: 10e6, // 10MB
	})
}

func NewConsumer(store SaleStore, reader MessageReader, log *zap.Logger) *Consumer {
	return &Consumer{store: store, reader: reader, log: log, maxBackoff: 5 * time.Second}
}

func (c *Consumer) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}
		c.processMessage(ctx)
	}
}

func (c *Consumer) Close() {
	if err := c.reader.Close(); err != nil {
		c.log.Warn("error closing kafka reader", zap.Error(err))
	}
}

func (c *Consumer) processMessage(ctx context.Context) {
	m, err := c.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return
		}
		c.log.Warn("error reading message", zap.Error(err))
		return
	}

	sale, err := decodeSale(m.Value)
	if err != nil {
		// a malformed event will never decode; skip it
		c.log.Error("dropping malformed order event",
			zap.Int64("offset", m.Offset), zap.ByteString("key", m.Key), zap.Error(err))
		c.commit(ctx, m)
		return
	}

	if !c.storeWithBackoff(ctx, sale) {
		return
	}
	c.commit(ctx, m)
	c.log.Debug("sale recorded", zap.String("order_id", sale.OrderID), zap.String("tenant", sale.TenantSlug))
}

// storeWithBackoff keeps retrying the write so the projection never skips an
// order. It returns false only when ctx ends; a sale that can never be stored
// is logged and reported as done so the partition moves on.
func (c *Consumer) storeWithBackoff(ctx context.Context, sale *Sale) bool {
	backoff := 100 * time.Millisecond
	for {
		err := c.store.UpsertSale(ctx, sale)
		if err == nil {
			return true
		}
		if errors.Is(err, ErrInvalidAmount) {
			c.log.Error("dropping sale with invalid amount",
				zap.String("order_id", sale.OrderID), zap.Error(err))
			return true
		}
		c.log.Warn("failed to record sale", zap.String("order_id", sale.OrderID), zap.Error(err))

		select {
		case <-ctx.Done():
			return false
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, c.maxBackoff)
	}
}

func (c *Consumer) commit(ctx context.Context, m kafka.Message) {
	if err := c.reader.CommitMessages(ctx, m); err != nil && ctx.Err() == nil {
		c.log.Warn("failed to commit offset", zap.Int64("offset", m.Offset), zap.Error(err))
	}
}

func decodeSale(payload []byte) (*Sale, error) {
	var ev orderPlacedEvent
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	if ev.OrderID == "" || ev.TenantSlug == "" {
		return nil, errors.New("order event without order_id or tenant_slug")
	}

	sale := &Sale{
		OrderID:       ev.OrderID,
		TenantSlug:    ev.TenantSlug,
		OperatorID:    ev.OperatorID,
		TerminalID:    ev.TerminalID,
		Subtotal:      ev.Subtotal,
		Discount:      ev.Discount,
		ShippingFee:   ev.ShippingFee,
		Total:         ev.Total,
		CouponCode:    ev.CouponCode,
		PaymentMethod: ev.PaymentMethod,
		Fulfillment:   ev.Fulfillment,
		PlacedAt:      ev.PlacedAt,
	}
	for _, it := range ev.Items {
		sale.Items = append(sale.Items, SaleItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
			Subtotal:    it.Subtotal,
		})
	}
	return sale, nil
}
