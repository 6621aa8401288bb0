// Package history projects placed POS orders into a mongo sales collection
// used by the back office reports.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const maxListLimit = 200

var ErrInvalidAmount = errors.New("invalid sale amount")

type SaleItem struct {
	ProductID   int64           `json:"product_id"`
	ProductName string          `json:"product_name"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unit_price"`
	Subtotal    decimal.Decimal `json:"subtotal"`
}

type Sale struct {
	OrderID       string          `json:"order_id"`
	TenantSlug    string          `json:"tenant_slug"`
	OperatorID    string          `json:"operator_id"`
	TerminalID    string          `json:"terminal_id,omitempty"`
	Items         []SaleItem      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	ShippingFee   decimal.Decimal `json:"shipping_fee"`
	Total         decimal.Decimal `json:"total"`
	CouponCode    string          `json:"coupon_code,omitempty"`
	PaymentMethod string          `json:"payment_method"`
	Fulfillment   string          `json:"fulfillment"`
	PlacedAt      time.Time       `json:"placed_at"`
	RecordedAt    time.Time       `json:"recorded_at"`
}

// Summary aggregates the sales of a tenant since a point in time.
type Summary struct {
	Orders  int64           `json:"orders"`
	Revenue decimal.Decimal `json:"revenue"`
}

// money is stored as Decimal128 so mongo can sum it exactly.
type saleItemDoc struct {
	ProductID   int64                `bson:"product_id"`
	ProductName string               `bson:"product_name"`
	Quantity    int                  `bson:"quantity"`
	UnitPrice   primitive.Decimal128 `bson:"unit_price"`
	Subtotal    primitive.Decimal128 `bson:"subtotal"`
}

type saleDoc struct {
	OrderID       string               `bson:"order_id"`
	TenantSlug    string               `bson:"tenant_slug"`
	OperatorID    string               `bson:"operator_id"`
	TerminalID    string               `bson:"terminal_id,omitempty"`
	Items         []saleItemDoc        `bson:"items"`
	Subtotal      primitive.Decimal128 `bson:"subtotal"`
	Discount      primitive.Decimal128 `bson:"discount"`
	ShippingFee   primitive.Decimal128 `bson:"shipping_fee"`
	Total         primitive.Decimal128 `bson:"total"`
	CouponCode    string               `bson:"coupon_code,omitempty"`
	PaymentMethod string               `bson:"payment_method"`
	Fulfillment   string               `bson:"fulfillment"`
	PlacedAt      time.Time            `bson:"placed_at"`
	RecordedAt    time.Time            `bson:"recorded_at"`
}

type MongoStore struct {
	collection *mongo.Collection
}

func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{collection: db.Collection("sales")}
}

func (m *MongoStore) CreateIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "order_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "tenant_slug", Value: 1}, {Key: "placed_at", Value: -1}},
		},
	}

	_, err := m.collection.Indexes().CreateMany(ctx, indexes)
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// UpsertSale records a sale keyed by order id, so replayed events overwrite
// the same document.
func (m *MongoStore) UpsertSale(ctx context.Context, sale *Sale) error {
	if sale.RecordedAt.IsZero() {
		sale.RecordedAt = time.Now().UTC()
	}
	doc, err := toDoc(sale)
	if err != nil {
		return err
	}

	filter := bson.M{"order_id": sale.OrderID}
	update := bson.M{"$set": doc}
	opts := options.Update().SetUpsert(true)

	if _, err := m.collection.UpdateOne(ctx, filter, update, opts); err != nil {
		return fmt.Errorf("failed to upsert sale: %w", err)
	}
	return nil
}

// ListSales returns the newest sales of a tenant first.
func (m *MongoStore) ListSales(ctx context.Context, tenantSlug string, limit int) ([]Sale, error) {
	if limit <= 0 || limit > maxListLimit {
		limit = maxListLimit
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "placed_at", Value: -1}}).
		SetLimit(int64(limit))

	cur, err := m.collection.Find(ctx, bson.M{"tenant_slug": tenantSlug}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list sales: %w", err)
	}
	defer cur.Close(ctx)

	var docs []saleDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode sales: %w", err)
	}

	sales := make([]Sale, 0, len(docs))
	for _, d := range docs {
		s, err := fromDoc(d)
		if err != nil {
			return nil, err
		}
		sales = append(sales, s)
	}
	return sales, nil
}

func (m *MongoStore) Summary(ctx context.Context, tenantSlug string, since time.Time) (Summary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"tenant_slug": tenantSlug, "placed_at": bson.M{"$gte": since}}}},
		{{Key: "$group", Value: bson.M{
			"_id":     nil,
			"orders":  bson.M{"$sum": 1},
			"revenue": bson.M{"$sum": "$total"},
		}}},
	}

	cur, err := m.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return Summary{}, fmt.Errorf("failed to aggregate sales: %w", err)
	}
	defer cur.Close(ctx)

	var rows []struct {
		Orders  int64                `bson:"orders"`
		Revenue primitive.Decimal128 `bson:"revenue"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return Summary{}, fmt.Errorf("failed to decode sales summary: %w", err)
	}
	if len(rows) == 0 {
		return Summary{Revenue: decimal.Zero}, nil
	}

	revenue, err := fromDecimal128(rows[0].Revenue)
	if err != nil {
		return Summary{}, err
	}
	return Summary{Orders: rows[0].Orders, Revenue: revenue}, nil
}

func toDecimal128(d decimal.Decimal) (primitive.Decimal128, error) {
	v, err := primitive.ParseDecimal128(d.String())
	if err != nil {
		return primitive.Decimal128{}, fmt.Errorf("%w: %s", ErrInvalidAmount, d)
	}
	return v, nil
}

func fromDecimal128(v primitive.Decimal128) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v.String())
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("%w: %s", ErrInvalidAmount, v)
	}
	return d, nil
}

func toDoc(s *Sale) (*saleDoc, error) {
	doc := &saleDoc{
		OrderID:       s.OrderID,
		TenantSlug:    s.TenantSlug,
		OperatorID:    s.OperatorID,
		TerminalID:    s.TerminalID,
		CouponCode:    s.CouponCode,
		PaymentMethod: s.PaymentMethod,
		Fulfillment:   s.Fulfillment,
		PlacedAt:      s.PlacedAt.UTC(),
		RecordedAt:    s.RecordedAt.UTC(),
	}

	var err error
	for _, f := range []struct {
		dst *primitive.Decimal128
		src decimal.Decimal
	}{
		{&doc.Subtotal, s.Subtotal},
		{&doc.Discount, s.Discount},
		{&doc.ShippingFee, s.ShippingFee},
		{&doc.Total, s.Total},
	} {
		if *f.dst, err = toDecimal128(f.src); err != nil {
			return nil, err
		}
	}

	doc.Items = make([]saleItemDoc, 0, len(s.Items))
	for _, it := range s.Items {
		item := saleItemDoc{ProductID: it.ProductID, ProductName: it.ProductName, Quantity: it.Quantity}
		if item.UnitPrice, err = toDecimal128(it.UnitPrice); err != nil {
			return nil, err
		}
		if item.Subtotal, err = toDecimal128(it.Subtotal); err != nil {
			return nil, err
		}
		doc.Items = append(doc.Items, item)
	}
	return doc, nil
}

func fromDoc(d saleDoc) (Sale, error) {
	s := Sale{
		OrderID:       d.OrderID,
		TenantSlug:    d.TenantSlug,
		OperatorID:    d.OperatorID,
		TerminalID:    d.TerminalID,
		CouponCode:    d.CouponCode,
		PaymentMethod: d.PaymentMethod,
		Fulfillment:   d.Fulfillment,
		PlacedAt:      d.PlacedAt,
		RecordedAt:    d.RecordedAt,
	}

	var err error
	for _, f := range []struct {
		dst *decimal.Decimal
		src primitive.Decimal128
	}{
		{&s.Subtotal, d.Subtotal},
		{&s.Discount, d.Discount},
		{&s.ShippingFee, d.ShippingFee},
		{&s.Total, d.Total},
	} {
		if *f.dst, err = fromDecimal128(f.src); err != nil {
			return Sale{}, err
		}
	}

	s.Items = make([]SaleItem, 0, len(d.Items))
	for _, it := range d.Items {
		item := SaleItem{ProductID: it.ProductID, ProductName: it.ProductName, Quantity: it.Quantity}
		if item.UnitPrice, err = fromDecimal128(it.UnitPrice); err != nil {
			return Sale{}, err
		}
		if item.Subtotal, err = fromDecimal128(it.Subtotal); err != nil {
			return Sale{}, err
		}
		s.Items = append(s.Items, item)
	}
	return s, nil
}
