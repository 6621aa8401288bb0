package http

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fjod/go_pos/pos-service/internal/domain"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		zap.L().Warn("failed to encode response", zap.Error(err))
	}
}

func respondError(w http.ResponseWriter, status int, code, message string) {
	respondJSON(w, status, ErrorResponse{
		Error:   message,
		Code:    code,
		Details: "",
	})
}

// handleDomainError converts core errors to HTTP status codes.
func handleDomainError(w http.ResponseWriter, err error) {
	var httpStatus int
	var code string

	switch {
	case errors.Is(err, domain.ErrUnknownProduct):
		httpStatus, code = http.StatusUnprocessableEntity, "unknown_product"
	case errors.Is(err, domain.ErrInsufficientTender):
		httpStatus, code = http.StatusUnprocessableEntity, "insufficient_tender"
	case errors.Is(err, domain.ErrEmptyCart):
		httpStatus, code = http.StatusConflict, "empty_cart"
	case errors.Is(err, domain.ErrSuperseded):
		httpStatus, code = http.StatusConflict, "superseded"
	case errors.Is(err, domain.ErrInvalidCoupon):
		httpStatus, code = http.StatusBadRequest, "invalid_coupon"
	case errors.Is(err, domain.ErrInvalidPayment):
		httpStatus, code = http.StatusBadRequest, "invalid_payment"
	case errors.Is(err, domain.ErrSessionNotFound), errors.Is(err, domain.ErrProductNotFound):
		httpStatus, code = http.StatusNotFound, "not_found"
	case errors.Is(err, domain.ErrTenantMismatch):
		httpStatus, code = http.StatusForbidden, "tenant_mismatch"
	case errors.Is(err, domain.ErrMissingTenant):
		httpStatus, code = http.StatusUnauthorized, "unauthorized"
	case errors.Is(err, domain.ErrFetch):
		httpStatus, code = http.StatusServiceUnavailable, "service_unavailable"
	case errors.Is(err, context.DeadlineExceeded):
		httpStatus, code = http.StatusGatewayTimeout, "timeout"
	default:
		zap.L().Error("unhandled error", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
		return
	}

	respondError(w, httpStatus, code, err.Error())
}

func chiRequestID(ctx context.Context) string {
	return middleware.GetReqID(ctx)
}
