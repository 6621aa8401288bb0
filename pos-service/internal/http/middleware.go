package http

import (
	"context"
	"net/http"
	"strings"

	"github.com/fjod/go_pos/pos-service/internal/domain"
)

type ctxKey int

const (
	tenantKey ctxKey = iota
	requestIDKey
)

const (
	HeaderTenantSlug = "X-Tenant-Slug"
	HeaderOperatorID = "X-Operator-ID"
	HeaderTerminalID = "X-Terminal-ID"

	CookieTenantSlug = "tenant_slug"
	CookieOperatorID = "operator_id"
)

// TenantMiddleware builds the tenant context from the admin panel headers,
// falling back to the session cookies it sets after login. Requests without a
// tenant and an operator are rejected.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := domain.TenantContext{
			TenantSlug: headerOrCookie(r, HeaderTenantSlug, CookieTenantSlug),
			OperatorID: headerOrCookie(r, HeaderOperatorID, CookieOperatorID),
			TerminalID: strings.TrimSpace(r.Header.Get(HeaderTerminalID)),
		}
		if !tenant.Valid() {
			respondError(w, http.StatusUnauthorized, "unauthorized", "missing tenant or operator")
			return
		}

		ctx := context.WithValue(r.Context(), tenantKey, tenant)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequestIDMiddleware echoes the caller's X-Request-ID, or chi's generated one.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := r.Header.Get("X-Request-ID")
		if requestID == "" {
			requestID = chiRequestID(r.Context())
		}

		ctx := context.WithValue(r.Context(), requestIDKey, requestID)
		w.Header().Set("X-Request-ID", requestID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func tenantFromContext(ctx context.Context) (domain.TenantContext, bool) {
	t, ok := ctx.Value(tenantKey).(domain.TenantContext)
	return t, ok
}

func getRequestID(ctx context.Context) string {
	if requestID, ok := ctx.Value(requestIDKey).(string); ok {
		return requestID
	}
	return ""
}

func headerOrCookie(r *http.Request, header, cookie string) string {
	if v := strings.TrimSpace(r.Header.Get(header)); v != "" {
		return v
	}
	if c, err := r.Cookie(cookie); err == nil {
		return strings.TrimSpace(c.Value)
	}
	return ""
}
