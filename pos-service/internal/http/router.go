package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Pinger reports whether a dependency is reachable.
type Pinger func(ctx context.Context) error

type RouterConfig struct {
	RequestTimeout     time.Duration
	MaxRequestBodySize int64
	Checks             map[string]Pinger
}

func NewRouter(cfg RouterConfig, sessions *SessionHandler, catalog *CatalogHandler, sales *SalesHandler) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(cfg.RequestTimeout))
	r.Use(middleware.Compress(5))
	if cfg.MaxRequestBodySize > 0 {
		r.Use(middleware.RequestSize(cfg.MaxRequestBodySize))
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Get("/ready", readiness(cfg.Checks))

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(TenantMiddleware)

		r.Route("/pos", func(r chi.Router) {
			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", sessions.Open)
				r.Route("/{id}", func(r chi.Router) {
					r.Get("/", sessions.Get)
					r.Delete("/", sessions.Close)
					r.Get("/products", sessions.SearchProducts)
					r.Post("/items", sessions.AddItem)
					r.Put("/items/{product_id}", sessions.UpdateQuantity)
					r.Delete("/items/{product_id}", sessions.RemoveItem)
					r.Post("/keys", sessions.HandleKey)
					r.Post("/blur", sessions.Blur)
					r.Put("/input", sessions.SetInput)
					r.Put("/coupon", sessions.ApplyCoupon)
					r.Delete("/coupon", sessions.ClearCoupon)
					r.Post("/checkout", sessions.Checkout)
				})
			})
			if catalog != nil {
				r.Get("/catalog/products/{product_id}", catalog.GetProduct)
				r.Post("/catalog/invalidate", catalog.Invalidate)
			}
		})

		if sales != nil {
			r.Get("/sales", sales.ListSales)
			r.Get("/sales/summary", sales.Summary)
		}
	})

	return r
}

func readiness(checks map[string]Pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		status := http.StatusOK
		result := make(map[string]string, len(checks))
		for name, ping := range checks {
			if err := ping(ctx); err != nil {
				result[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			result[name] = "ok"
		}
		respondJSON(w, status, result)
	}
}
