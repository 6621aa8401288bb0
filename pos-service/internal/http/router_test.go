package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/fjod/go_pos/pos-service/internal/catalog"
	"github.com/fjod/go_pos/pos-service/internal/checkout"
	"github.com/fjod/go_pos/pos-service/internal/domain"
	"github.com/fjod/go_pos/pos-service/internal/history"
	"github.com/fjod/go_pos/pos-service/internal/session"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

type mockLoader struct {
	err error
}

func (m *mockLoader) Load(context.Context, string) (*catalog.Snapshot, error) {
	if m.err != nil {
		return nil, m.err
	}
	return catalog.NewSnapshot(domain.Listing{
		Products: []domain.Product{
			{ID: 42, Name: "Margherita", UnitPrice: decimal.RequireFromString("10.00"), CategoryID: 1, Active: true},
			{ID: 7, Name: "Cola Lata", Code: "7894900011517", UnitPrice: decimal.RequireFromString("5.50"), CategoryID: 2, Active: true},
		},
		Categories: []domain.Category{{ID: 1, Name: "Pizzas", Active: true}, {ID: 2, Name: "Bebidas", Active: true}},
	}, time.Now()), nil
}

type mockOrderAPI struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (m *mockOrderAPI) Submit(context.Context, *domain.OrderRequest) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return "", m.err
	}
	return "order-1", nil
}

type mockCatalog struct {
	invalidated []string
}

func (m *mockCatalog) Product(_ context.Context, _ string, id int64) (*domain.Product, error) {
	if id == 42 {
		return &domain.Product{ID: 42, Name: "Margherita", Active: true}, nil
	}
	if id == 500 {
		return nil, &domain.FetchError{Op: "get product", Err: errors.New("catalog down")}
	}
	return nil, domain.ErrProductNotFound
}

func (m *mockCatalog) Invalidate(_ context.Context, tenant string) error {
	m.invalidated = append(m.invalidated, tenant)
	return nil
}

type mockSales struct {
	tenant string
	limit  int
	err    error
}

func (m *mockSales) ListSales(_ context.Context, tenant string, limit int) ([]history.Sale, error) {
	m.tenant, m.limit = tenant, limit
	if m.err != nil {
		return nil, m.err
	}
	return []history.Sale{{OrderID: "order-1", TenantSlug: tenant, Total: decimal.NewFromInt(10)}}, nil
}

func (m *mockSales) Summary(_ context.Context, tenant string, _ time.Time) (history.Summary, error) {
	m.tenant = tenant
	return history.Summary{Orders: 3, Revenue: decimal.NewFromInt(30)}, m.err
}

type testServer struct {
	handler http.Handler
	orders  *mockOrderAPI
	catalog *mockCatalog
	sales   *mockSales
	logs    *observer.ObservedLogs
}

func newTestServer(t *testing.T, loader session.CatalogLoader) *testServer {
	t.Helper()
	orders := &mockOrderAPI{}
	coord := checkout.NewCoordinator(orders, zap.NewNop())
	manager := session.NewManager(loader, coord, zap.NewNop())
	cat := &mockCatalog{}
	sales := &mockSales{}
	core, logs := observer.New(zapcore.WarnLevel)

	r := NewRouter(RouterConfig{
		RequestTimeout:     5 * time.Second,
		MaxRequestBodySize: 1 << 20,
		Checks: map[string]Pinger{
			"postgres": func(context.Context) error { return nil },
		},
	},
		NewSessionHandler(manager, 5*time.Second, zap.NewNop()),
		NewCatalogHandler(cat, 5*time.Second),
		NewSalesHandler(sales, 5*time.Second, zap.New(core)),
	)
	return &testServer{handler: r, orders: orders, catalog: cat, sales: sales, logs: logs}
}

func (s *testServer) do(t *testing.T, method, path, tenant string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	if tenant != "" {
		req.Header.Set(HeaderTenantSlug, tenant)
		req.Header.Set(HeaderOperatorID, "op-1")
		req.Header.Set(HeaderTerminalID, "pdv-1")
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) open(t *testing.T) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/v1/pos/sessions", "pizzaria", nil)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var created struct {
		Session struct {
			ID string `json:"id"`
		} `json:"session"`
		Categories []domain.Category `json:"categories"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&created))
	require.NotEmpty(t, created.Session.ID)
	require.Len(t, created.Categories, 2)
	return created.Session.ID
}

func decodeError(t *testing.T, rec *httptest.ResponseRecorder) ErrorResponse {
	t.Helper()
	var resp ErrorResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	return resp
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t, &mockLoader{})

	rec := srv.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodGet, "/ready", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"postgres":"ok"}`, rec.Body.String())
}

func TestTenantMiddleware(t *testing.T) {
	srv := newTestServer(t, &mockLoader{})

	rec := srv.do(t, http.MethodPost, "/api/v1/pos/sessions", "", nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "unauthorized", decodeError(t, rec).Code)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/pos/sessions", nil)
	req.AddCookie(&http.Cookie{Name: CookieTenantSlug, Value: "pizzaria"})
	req.AddCookie(&http.Cookie{Name: CookieOperatorID, Value: "op-9"})
	cookieRec := httptest.NewRecorder()
	srv.handler.ServeHTTP(cookieRec, req)
	assert.Equal(t, http.StatusCreated, cookieRec.Code)
	assert.NotEmpty(t, cookieRec.Header().Get("X-Request-ID"))
}

func TestSessionFlow(t *testing.T) {
	srv := newTestServer(t, &mockLoader{})
	id := srv.open(t)
	base := "/api/v1/pos/sessions/" + id

	rec := srv.do(t, http.MethodPost, base+"/items", "pizzaria", AddItemRequestDTO{ProductID: 42, Quantity: 1})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	rec = srv.do(t, http.MethodPost, base+"/items", "pizzaria", AddItemRequestDTO{ProductID: 42, Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code)
	var v session.View
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	assert.Equal(t, 3, v.Lines[0].Quantity)
	assert.True(t, v.Total.Equal(decimal.RequireFromString("30")))

	rec = srv.do(t, http.MethodPut, base+"/items/42", "pizzaria", UpdateQuantityRequestDTO{Quantity: 0})
	require.Equal(t, http.StatusOK, rec.Code)
	v = session.View{}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	assert.Empty(t, v.Lines)

	rec = srv.do(t, http.MethodGet, base+"/products?q=cola", "pizzaria", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var products []domain.Product
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&products))
	require.Len(t, products, 1)
	assert.Equal(t, int64(7), products[0].ID)

	rec = srv.do(t, http.MethodGet, base+"/products?category_id=x", "pizzaria", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestKeysScanAndFinalizeIntent(t *testing.T) {
	srv := newTestServer(t, &mockLoader{})
	id := srv.open(t)
	base := "/api/v1/pos/sessions/" + id

	for _, k := range []string{"4", "2", "Enter"} {
		rec := srv.do(t, http.MethodPost, base+"/keys", "pizzaria", map[string]any{"key": k})
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	}

	rec := srv.do(t, http.MethodGet, base, "pizzaria", nil)
	var v session.View
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v))
	require.Len(t, v.Lines, 1)
	assert.Equal(t, int64(42), v.Lines[0].ProductID)

	rec = srv.do(t, http.MethodPost, base+"/keys", "pizzaria", map[string]any{"key": "Enter"})
	require.Equal(t, http.StatusOK, rec.Code)
	var res session.KeyResult
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&res))
	assert.Equal(t, "finalize", string(res.Outcome.Intent.Kind))

	rec = srv.do(t, http.MethodPost, base+"/keys", "pizzaria", map[string]any{"key": "1", "focus": "dialog"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestErrorStatusMapping(t *testing.T) {
	srv := newTestServer(t, &mockLoader{})
	id := srv.open(t)
	base := "/api/v1/pos/sessions/" + id

	tests := []struct {
		name   string
		method string
		path   string
		tenant string
		body   any
		status int
		code   string
	}{
		{"unknown product", http.MethodPost, base + "/items", "pizzaria", AddItemRequestDTO{ProductID: 1000}, http.StatusUnprocessableEntity, "unknown_product"},
		{"empty cart", http.MethodPost, base + "/checkout", "pizzaria", CheckoutRequestDTO{PaymentMethod: domain.PaymentCash}, http.StatusConflict, "empty_cart"},
		{"not found", http.MethodGet, "/api/v1/pos/sessions/missing", "pizzaria", nil, http.StatusNotFound, "not_found"},
		{"tenant mismatch", http.MethodGet, base, "sushi", nil, http.StatusForbidden, "tenant_mismatch"},
		{"invalid coupon", http.MethodPut, base + "/coupon", "pizzaria", domain.Coupon{Code: "X", Kind: "weird"}, http.StatusBadRequest, "invalid_coupon"},
		{"bad product id", http.MethodDelete, base + "/items/abc", "pizzaria", nil, http.StatusBadRequest, "invalid_product_id"},
		{"catalog product missing", http.MethodGet, "/api/v1/pos/catalog/products/9", "pizzaria", nil, http.StatusNotFound, "not_found"},
		{"catalog unavailable", http.MethodGet, "/api/v1/pos/catalog/products/500", "pizzaria", nil, http.StatusServiceUnavailable, "service_unavailable"},
		{"add over per-request cap", http.MethodPost, base + "/items", "pizzaria", AddItemRequestDTO{ProductID: 42, Quantity: 100}, http.StatusBadRequest, "invalid_quantity"},
		{"set over per-request cap", http.MethodPut, base + "/items/42", "pizzaria", UpdateQuantityRequestDTO{Quantity: 100}, http.StatusBadRequest, "invalid_quantity"},
		{"set negative", http.MethodPut, base + "/items/42", "pizzaria", UpdateQuantityRequestDTO{Quantity: -1}, http.StatusBadRequest, "invalid_quantity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, tt.method, tt.path, tt.tenant, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.Equal(t, tt.code, decodeError(t, rec).Code)
		})
	}
	assert.Equal(t, 0, srv.orders.calls, "empty checkout never reaches the order api")
}

func TestCheckout(t *testing.T) {
	srv := newTestServer(t, &mockLoader{})
	id := srv.open(t)
	base := "/api/v1/pos/sessions/" + id

	rec := srv.do(t, http.MethodPost, base+"/items", "pizzaria", AddItemRequestDTO{ProductID: 42, Quantity: 2})
	require.Equal(t, http.StatusOK, rec.Code)

	rec = srv.do(t, http.MethodPost, base+"/checkout", "pizzaria",
		map[string]any{"payment_method": "cash", "tendered": "15"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Equal(t, "insufficient_tender", decodeError(t, rec).Code)

	rec = srv.do(t, http.MethodPost, base+"/checkout", "pizzaria",
		map[string]any{"payment_method": "cash", "tendered": "50"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var receipt domain.Receipt
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&receipt))
	assert.Equal(t, "order-1", receipt.OrderID)
	require.NotNil(t, receipt.Request.ChangeDue)
	assert.True(t, receipt.Request.ChangeDue.Equal(decimal.RequireFromString("30")))

	rec = srv.do(t, http.MethodGet, base, "pizzaria", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code, "session is destroyed after checkout")
}

func TestCheckout_OrderAPIDown(t *testing.T) {
	srv := newTestServer(t, &mockLoader{})
	srv.orders.err = errors.New("connection refused")
	id := srv.open(t)
	base := "/api/v1/pos/sessions/" + id

	srv.do(t, http.MethodPost, base+"/items", "pizzaria", AddItemRequestDTO{ProductID: 7})
	rec := srv.do(t, http.MethodPost, base+"/checkout", "pizzaria", CheckoutRequestDTO{PaymentMethod: domain.PaymentPix})
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = srv.do(t, http.MethodGet, base, "pizzaria", nil)
	assert.Equal(t, http.StatusOK, rec.Code, "session survives a failed checkout")
}

func TestOpen_CatalogUnavailable(t *testing.T) {
	srv := newTestServer(t, &mockLoader{err: &domain.FetchError{Op: "load catalog", Err: errors.New("down")}})

	rec := srv.do(t, http.MethodPost, "/api/v1/pos/sessions", "pizzaria", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestCatalogInvalidate(t *testing.T) {
	srv := newTestServer(t, &mockLoader{})

	rec := srv.do(t, http.MethodPost, "/api/v1/pos/catalog/invalidate", "pizzaria", nil)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, []string{"pizzaria"}, srv.catalog.invalidated)
}

func TestSales(t *testing.T) {
	srv := newTestServer(t, &mockLoader{})

	rec := srv.do(t, http.MethodGet, "/api/v1/sales?limit=10", "pizzaria", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "pizzaria", srv.sales.tenant)
	assert.Equal(t, 10, srv.sales.limit)

	rec = srv.do(t, http.MethodGet, "/api/v1/sales?limit=0", "pizzaria", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = srv.do(t, http.MethodGet, "/api/v1/sales/summary", "pizzaria", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"orders":3,"revenue":"30"}`, rec.Body.String())

	srv.sales.err = errors.New("mongo down")
	rec = srv.do(t, http.MethodGet, "/api/v1/sales", "pizzaria", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	rec = srv.do(t, http.MethodGet, "/api/v1/sales/summary", "pizzaria", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	for _, msg := range []string{"list sales failed", "sales summary failed"} {
		entries := srv.logs.FilterMessage(msg).All()
		require.Len(t, entries, 1, msg)
		assert.Equal(t, "mongo down", entries[0].ContextMap()["error"])
		assert.Equal(t, "pizzaria", entries[0].ContextMap()["tenant"])
	}
}
