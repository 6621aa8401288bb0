// Package orders stores finished POS orders in postgres and relays them to
// kafka through a transactional outbox.
package orders

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_pos/pos-service/internal/domain"
	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/google/uuid"
	_ "github.com/lib/pq"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type Credentials struct {
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
}

type Repository struct {
	db *sql.DB
}

func NewRepository(cred *Credentials) (*Repository, error) {
	psqlconn := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=disable",
		cred.Host,
		cred.Port,
		cred.User,
		cred.Password,
		cred.DBName)

	db, err := sql.Open("postgres", psqlconn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if e2 := db.Ping(); e2 != nil {
		return nil, fmt.Errorf("failed to ping database: %w", e2)
	}

	db.SetMaxOpenConns(50)
	db.SetMaxIdleConns(10)
	return &Repository{db: db}, nil
}

func (r *Repository) RunMigrations() error {
	driver, err := postgres.WithInstance(r.db, &postgres.Config{
		MigrationsTable: "pos_schema_migrations",
	})
	if err != nil {
		return fmt.Errorf("could not create migration driver: %w", err)
	}

	src, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("could not open embedded migrations: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", src, "postgres", driver)
	if err != nil {
		return fmt.Errorf("could not create migrate instance: %w", err)
	}

	if e2 := m.Up(); e2 != nil && !errors.Is(e2, migrate.ErrNoChange) {
		return fmt.Errorf("could not run migrations: %w", e2)
	}

	return nil
}

// Submit stores the order, its items and an OrderPlaced outbox event in one
// transaction. A request whose idempotency key was already used returns the
// id of the stored order and writes nothing.
func (r *Repository) Submit(ctx context.Context, req *domain.OrderRequest) (string, error) {
	if req.IdempotencyKey == "" {
		return "", errors.New("idempotency key is required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	id := uuid.New()
	var tendered, change any
	if req.Tendered != nil {
		tendered = *req.Tendered
	}
	if req.ChangeDue != nil {
		change = *req.ChangeDue
	}

	var inserted uuid.UUID
	err = tx.QueryRowContext(ctx, `
		INSERT INTO pos_orders (id, idempotency_key, tenant_slug, operator_id, terminal_id, status,
			subtotal, discount, shipping_fee, total, coupon_code, payment_method, fulfillment,
			tendered, change_due, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (idempotency_key) DO NOTHING
		RETURNING id`,
		id, req.IdempotencyKey, req.TenantSlug, req.OperatorID, req.TerminalID, StatusPlaced,
		req.Subtotal, req.Discount, req.ShippingFee, req.Total, req.CouponCode,
		string(req.PaymentMethod), string(req.Fulfillment), tendered, change, req.CreatedAt,
	).Scan(&inserted)

	if errors.Is(err, sql.ErrNoRows) {
		var existing uuid.UUID
		if err := tx.QueryRowContext(ctx,
			`SELECT id FROM pos_orders WHERE idempotency_key = $1`, req.IdempotencyKey).Scan(&existing); err != nil {
			return "", fmt.Errorf("query order by idempotency key: %w", err)
		}
		return existing.String(), nil
	}
	if err != nil {
		return "", fmt.Errorf("insert order: %w", err)
	}

	for i, l := range req.Lines {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO pos_order_items (order_id, line_no, product_id, product_name, quantity, unit_price, subtotal)
			VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			id, i+1, l.ProductID, l.ProductName, l.Quantity, l.UnitPrice, l.Subtotal)
		if err != nil {
			return "", fmt.Errorf("insert order item: %w", err)
		}
	}

	payload, err := json.Marshal(newOrderPlacedEvent(id, req))
	if err != nil {
		return "", fmt.Errorf("failed to marshal order payload: %w", err)
	}
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO outbox_events (aggregate_id, event_type, payload) VALUES ($1, $2, $3)`,
		id.String(), EventOrderPlaced, payload); err != nil {
		return "", fmt.Errorf("insert outbox event: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("commit tx: %w", err)
	}
	return id.String(), nil
}

func (r *Repository) GetOrder(ctx context.Context, id uuid.UUID) (*Order, error) {
	var (
		o                   Order
		method, fulfillment string
	)
	err := r.db.QueryRowContext(ctx, `
		SELECT id, idempotency_key, tenant_slug, operator_id, terminal_id, status, subtotal, discount,
			shipping_fee, total, coupon_code, payment_method, fulfillment, tendered, change_due, created_at
		FROM pos_orders WHERE id = $1`, id).Scan(
		&o.ID,
		&o.IdempotencyKey,
		&o.TenantSlug,
		&o.OperatorID,
		&o.TerminalID,
		&o.Status,
		&o.Subtotal,
		&o.Discount,
		&o.ShippingFee,
		&o.Total,
		&o.CouponCode,
		&method,
		&fulfillment,
		&o.Tendered,
		&o.ChangeDue,
		&o.CreatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrOrderNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query order by id: %w", err)
	}
	o.PaymentMethod = domain.PaymentMethod(method)
	o.Fulfillment = domain.Fulfillment(fulfillment)

	rows, err := r.db.QueryContext(ctx, `
		SELECT product_id, product_name, quantity, unit_price, subtotal
		FROM pos_order_items WHERE order_id = $1 ORDER BY line_no`, id)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var l domain.OrderLine
		if err := rows.Scan(&l.ProductID, &l.ProductName, &l.Quantity, &l.UnitPrice, &l.Subtotal); err != nil {
			return nil, fmt.Errorf("scan order item row: %w", err)
		}
		o.Items = append(o.Items, l)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}

	return &o, nil
}

func (r *Repository) GetUnprocessedEvents(ctx context.Context, limit int) ([]*OutboxEvent, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, aggregate_id, event_type, payload, created_at
		FROM outbox_events
		WHERE processed_at IS NULL
		ORDER BY id
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("query outbox events: %w", err)
	}
	defer rows.Close()

	var events []*OutboxEvent
	for rows.Next() {
		var e OutboxEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.AggregateID, &e.EventType, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan outbox row: %w", err)
		}
		e.Payload = payload
		events = append(events, &e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("row iteration error: %w", err)
	}
	return events, nil
}

func (r *Repository) MarkEventAsProcessed(ctx context.Context, id int64) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE outbox_events SET processed_at = NOW() WHERE id = $1 AND processed_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("mark outbox event %d processed: %w", id, err)
	}
	return nil
}

// DeleteProcessedEvents drops relayed outbox rows older than the cutoff.
func (r *Repository) DeleteProcessedEvents(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`DELETE FROM outbox_events WHERE processed_at IS NOT NULL AND processed_at < $1`, olderThan)
	if err != nil {
		return 0, fmt.Errorf("delete processed outbox events: %w", err)
	}
	return res.RowsAffected()
}

func (r *Repository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repository) Close() error {
	return r.db.Close()
}
