package orders

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_pos/pos-service/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

func setupTestDB(t *testing.T) *Repository {
	if testing.Short() {
		t.Skip("skipping postgres container test in short mode")
	}
	ctx := context.Background()

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("testdb"),
		postgres.WithUsername("testuser"),
		postgres.WithPassword("testpass"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	require.NoError(t, err)

	host, err := pgContainer.Host(ctx)
	require.NoError(t, err)

	port, err := pgContainer.MappedPort(ctx, "5432")
	require.NoError(t, err)

	repo, err := NewRepository(&Credentials{
		Host:     host,
		Port:     port.Int(),
		User:     "testuser",
		Password: "testpass",
		DBName:   "testdb",
	})
	require.NoError(t, err)
	require.NoError(t, repo.RunMigrations())

	t.Cleanup(func() {
		_ = repo.Close()
		if err := pgContainer.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %s", err)
		}
	})
	return repo
}

func newTestRequest(key string) *domain.OrderRequest {
	tendered := decimal.RequireFromString("50.00")
	change := decimal.RequireFromString("14.50")
	return &domain.OrderRequest{
		IdempotencyKey: key,
		TenantSlug:     "pizzaria",
		OperatorID:     "op-1",
		TerminalID:     "pdv-1",
		Lines: []domain.OrderLine{
			{ProductID: 42, ProductName: "Margherita", Quantity: 3, UnitPrice: decimal.RequireFromString("10.00"), Subtotal: decimal.RequireFromString("30.00")},
			{ProductID: 7, ProductName: "Cola Lata", Quantity: 1, UnitPrice: decimal.RequireFromString("5.50"), Subtotal: decimal.RequireFromString("5.50")},
		},
		Subtotal:      decimal.RequireFromString("35.50"),
		Discount:      decimal.Zero,
		ShippingFee:   decimal.Zero,
		Total:         decimal.RequireFromString("35.50"),
		PaymentMethod: domain.PaymentCash,
		Fulfillment:   domain.FulfillmentCounter,
		Tendered:      &tendered,
		ChangeDue:     &change,
		CreatedAt:     time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestSubmit_StoresOrderItemsAndOutbox(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	id, err := repo.Submit(ctx, newTestRequest("key-1"))
	require.NoError(t, err)

	orderID, err := uuid.Parse(id)
	require.NoError(t, err)

	o, err := repo.GetOrder(ctx, orderID)
	require.NoError(t, err)
	assert.Equal(t, "pizzaria", o.TenantSlug)
	assert.Equal(t, StatusPlaced, o.Status)
	assert.True(t, o.Total.Equal(decimal.RequireFromString("35.50")))
	assert.Equal(t, domain.PaymentCash, o.PaymentMethod)
	require.True(t, o.ChangeDue.Valid)
	assert.True(t, o.ChangeDue.Decimal.Equal(decimal.RequireFromString("14.50")))
	require.Len(t, o.Items, 2)
	assert.Equal(t, int64(42), o.Items[0].ProductID)
	assert.Equal(t, 3, o.Items[0].Quantity)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, id, events[0].AggregateID)
	assert.Equal(t, EventOrderPlaced, events[0].EventType)

	var ev OrderPlacedEvent
	require.NoError(t, json.Unmarshal(events[0].Payload, &ev))
	assert.Equal(t, id, ev.OrderID)
	assert.Len(t, ev.Items, 2)
}

func TestSubmit_IdempotencyKeyReturnsExistingOrder(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	first, err := repo.Submit(ctx, newTestRequest("key-dup"))
	require.NoError(t, err)
	second, err := repo.Submit(ctx, newTestRequest("key-dup"))
	require.NoError(t, err)
	assert.Equal(t, first, second)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	assert.Len(t, events, 1, "duplicate submit writes no second event")
}

func TestSubmit_ConcurrentDuplicates(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]string, 5)
	errs := make([]error, 5)
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ids[i], errs[i] = repo.Submit(ctx, newTestRequest("key-race"))
		}(i)
	}
	wg.Wait()

	for i := range ids {
		require.NoError(t, errs[i])
		assert.Equal(t, ids[0], ids[i])
	}
}

func TestGetOrder_NotFound(t *testing.T) {
	repo := setupTestDB(t)
	_, err := repo.GetOrder(context.Background(), uuid.New())
	assert.ErrorIs(t, err, ErrOrderNotFound)
}

func TestOutbox_MarkAndCleanup(t *testing.T) {
	repo := setupTestDB(t)
	ctx := context.Background()

	_, err := repo.Submit(ctx, newTestRequest("key-a"))
	require.NoError(t, err)
	_, err = repo.Submit(ctx, newTestRequest("key-b"))
	require.NoError(t, err)

	events, err := repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 2)

	require.NoError(t, repo.MarkEventAsProcessed(ctx, events[0].ID))

	events, err = repo.GetUnprocessedEvents(ctx, 10)
	require.NoError(t, err)
	require.Len(t, events, 1)

	n, err := repo.DeleteProcessedEvents(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}
