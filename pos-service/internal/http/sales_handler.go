package http

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_pos/pos-service/internal/history"
	"go.uber.org/zap"
)

type SalesReader interface {
	ListSales(ctx context.Context, tenantSlug string, limit int) ([]history.Sale, error)
	Summary(ctx context.Context, tenantSlug string, since time.Time) (history.Summary, error)
}

type SalesHandler struct {
	sales   SalesReader
	timeout time.Duration
	now     func() time.Time
	log     *zap.Logger
}

func NewSalesHandler(sales SalesReader, timeout time.Duration, log *zap.Logger) *SalesHandler {
	return &SalesHandler{sales: sales, timeout: timeout, now: time.Now, log: log}
}

// GET /api/v1/sales?limit=
func (h *SalesHandler) ListSales(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	tenant, _ := tenantFromContext(r.Context())

	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 200 {
			respondError(w, http.StatusBadRequest, "invalid_limit", "limit must be between 1 and 200")
			return
		}
		limit = n
	}

	sales, err := h.sales.ListSales(ctx, tenant.TenantSlug, limit)
	if err != nil {
		h.log.Warn("list sales failed",
			zap.String("tenant", tenant.TenantSlug),
			zap.String("request_id", getRequestID(r.Context())),
			zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "sales history unavailable")
		return
	}
	respondJSON(w, http.StatusOK, sales)
}

// GET /api/v1/sales/summary?since=RFC3339, defaulting to the start of today (UTC).
func (h *SalesHandler) Summary(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	tenant, _ := tenantFromContext(r.Context())

	since := h.now().UTC().Truncate(24 * time.Hour)
	if raw := r.URL.Query().Get("since"); raw != "" {
		t, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			respondError(w, http.StatusBadRequest, "invalid_since", "since must be an RFC3339 timestamp")
			return
		}
		since = t
	}

	sum, err := h.sales.Summary(ctx, tenant.TenantSlug, since)
	if err != nil {
		h.log.Warn("sales summary failed",
			zap.String("tenant", tenant.TenantSlug),
			zap.Time("since", since),
			zap.String("request_id", getRequestID(r.Context())),
			zap.Error(err))
		respondError(w, http.StatusServiceUnavailable, "service_unavailable", "sales history unavailable")
		return
	}
	respondJSON(w, http.StatusOK, sum)
}
