package http

import (
	"context"
	"net/http"
	"time"

	"github.com/fjod/go_pos/pos-service/internal/domain"
)

type CatalogService interface {
	Product(ctx context.Context, tenantSlug string, id int64) (*domain.Product, error)
	Invalidate(ctx context.Context, tenantSlug string) error
}

type CatalogHandler struct {
	catalog CatalogService
	timeout time.Duration
}

func NewCatalogHandler(catalog CatalogService, timeout time.Duration) *CatalogHandler {
	return &CatalogHandler{catalog: catalog, timeout: timeout}
}

// GET /api/v1/pos/catalog/products/{product_id}
func (h *CatalogHandler) GetProduct(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	tenant, _ := tenantFromContext(r.Context())
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	p, err := h.catalog.Product(ctx, tenant.TenantSlug, productID)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, p)
}

// POST /api/v1/pos/catalog/invalidate drops the cached catalog so the next
// session open reads fresh prices. Open sessions keep their snapshot.
func (h *CatalogHandler) Invalidate(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	tenant, _ := tenantFromContext(r.Context())
	if err := h.catalog.Invalidate(ctx, tenant.TenantSlug); err != nil {
		handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
