package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_pos/pos-service/internal/domain"
	"github.com/fjod/go_pos/pos-service/internal/scanner"
	"github.com/fjod/go_pos/pos-service/internal/session"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

type SessionManager interface {
	Open(ctx context.Context, tenant domain.TenantContext) (*session.Session, error)
	Get(id string, tenant domain.TenantContext) (*session.Session, error)
	Close(id string, tenant domain.TenantContext) error
	Checkout(ctx context.Context, id string, tenant domain.TenantContext, payment domain.PaymentInfo) (*domain.Receipt, error)
}

type SessionHandler struct {
	sessions SessionManager
	timeout  time.Duration
	log      *zap.Logger
}

func NewSessionHandler(sessions SessionManager, timeout time.Duration, log *zap.Logger) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		timeout:  timeout,
		log:      log,
	}
}

type AddItemRequestDTO struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

type UpdateQuantityRequestDTO struct {
	Quantity int `json:"quantity"`
}

type InputStateRequestDTO struct {
	Disabled bool `json:"disabled"`
	Editing  bool `json:"editing"`
}

type CheckoutRequestDTO struct {
	PaymentMethod domain.PaymentMethod `json:"payment_method"`
	Tendered      *decimal.Decimal     `json:"tendered,omitempty"`
	Fulfillment   domain.Fulfillment   `json:"fulfillment"`
}

type SessionCreatedDTO struct {
	Session    session.View      `json:"session"`
	Categories []domain.Category `json:"categories"`
}

// maxQuantity bounds a single request so a mistyped quantity is rejected.
// The cart itself has no cap.
const maxQuantity = 99

// POST /api/v1/pos/sessions
func (h *SessionHandler) Open(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	tenant, ok := tenantFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing tenant or operator")
		return
	}

	s, err := h.sessions.Open(ctx, tenant)
	if err != nil {
		h.log.Warn("open pos session failed",
			zap.String("tenant", tenant.TenantSlug),
			zap.String("request_id", getRequestID(r.Context())),
			zap.Error(err))
		handleDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, SessionCreatedDTO{Session: s.View(), Categories: s.Categories()})
}

// GET /api/v1/pos/sessions/{id}
func (h *SessionHandler) Get(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.View())
}

// DELETE /api/v1/pos/sessions/{id}
func (h *SessionHandler) Close(w http.ResponseWriter, r *http.Request) {
	tenant, _ := tenantFromContext(r.Context())
	if err := h.sessions.Close(chi.URLParam(r, "id"), tenant); err != nil {
		handleDomainError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GET /api/v1/pos/sessions/{id}/products?q=&category_id=
func (h *SessionHandler) SearchProducts(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var categoryID int64
	if raw := r.URL.Query().Get("category_id"); raw != "" {
		id, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || id < 0 {
			respondError(w, http.StatusBadRequest, "invalid_category_id", "category_id must be a positive integer")
			return
		}
		categoryID = id
	}

	respondJSON(w, http.StatusOK, s.Search(r.URL.Query().Get("q"), categoryID))
}

// POST /api/v1/pos/sessions/{id}/items
func (h *SessionHandler) AddItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req AddItemRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.ProductID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be positive")
		return
	}
	if req.Quantity == 0 {
		req.Quantity = 1
	}
	if req.Quantity < -maxQuantity || req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between -99 and 99")
		return
	}

	v, err := s.AddOrIncrement(req.ProductID, req.Quantity)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// PUT /api/v1/pos/sessions/{id}/items/{product_id}
func (h *SessionHandler) UpdateQuantity(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	var req UpdateQuantityRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Quantity < 0 || req.Quantity > maxQuantity {
		respondError(w, http.StatusBadRequest, "invalid_quantity", "quantity must be between 0 and 99")
		return
	}

	v, err := s.SetQuantity(productID, req.Quantity)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// DELETE /api/v1/pos/sessions/{id}/items/{product_id}
func (h *SessionHandler) RemoveItem(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	productID, ok := productIDParam(w, r)
	if !ok {
		return
	}

	v, err := s.Remove(productID)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// POST /api/v1/pos/sessions/{id}/keys
func (h *SessionHandler) HandleKey(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var ev scanner.KeyEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	switch ev.Focus {
	case "":
		ev.Focus = scanner.FocusNone
	case scanner.FocusNone, scanner.FocusSearch, scanner.FocusOther:
	default:
		respondError(w, http.StatusBadRequest, "invalid_focus", "focus must be none, search or other")
		return
	}
	if ev.Key == "" {
		respondError(w, http.StatusBadRequest, "invalid_key", "key is required")
		return
	}

	res, err := s.HandleKey(ev)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// POST /api/v1/pos/sessions/{id}/blur
func (h *SessionHandler) Blur(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.Blur())
}

// PUT /api/v1/pos/sessions/{id}/input
func (h *SessionHandler) SetInput(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var req InputStateRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	respondJSON(w, http.StatusOK, s.SetInput(req.Disabled, req.Editing))
}

// PUT /api/v1/pos/sessions/{id}/coupon
func (h *SessionHandler) ApplyCoupon(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}

	var c domain.Coupon
	if err := json.NewDecoder(r.Body).Decode(&c); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	v, err := s.ApplyCoupon(c)
	if err != nil {
		handleDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, v)
}

// DELETE /api/v1/pos/sessions/{id}/coupon
func (h *SessionHandler) ClearCoupon(w http.ResponseWriter, r *http.Request) {
	s, ok := h.session(w, r)
	if !ok {
		return
	}
	respondJSON(w, http.StatusOK, s.ClearCoupon())
}

// POST /api/v1/pos/sessions/{id}/checkout
func (h *SessionHandler) Checkout(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	tenant, _ := tenantFromContext(r.Context())

	var req CheckoutRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Fulfillment == "" {
		req.Fulfillment = domain.FulfillmentCounter
	}

	receipt, err := h.sessions.Checkout(ctx, chi.URLParam(r, "id"), tenant, domain.PaymentInfo{
		Method:      req.PaymentMethod,
		Tendered:    req.Tendered,
		Fulfillment: req.Fulfillment,
	})
	if err != nil {
		h.log.Warn("pos checkout failed",
			zap.String("tenant", tenant.TenantSlug),
			zap.String("session_id", chi.URLParam(r, "id")),
			zap.String("request_id", getRequestID(r.Context())),
			zap.Error(err))
		handleDomainError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, receipt)
}

func (h *SessionHandler) session(w http.ResponseWriter, r *http.Request) (*session.Session, bool) {
	tenant, ok := tenantFromContext(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing tenant or operator")
		return nil, false
	}
	s, err := h.sessions.Get(chi.URLParam(r, "id"), tenant)
	if err != nil {
		handleDomainError(w, err)
		return nil, false
	}
	return s, true
}

func productIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	productID, err := strconv.ParseInt(chi.URLParam(r, "product_id"), 10, 64)
	if err != nil || productID <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_product_id", "product_id must be a positive integer")
		return 0, false
	}
	return productID, true
}
