package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/fjod/go_pos/pkg/circuitbreaker"
	"github.com/fjod/go_pos/pkg/logger"
	"github.com/fjod/go_pos/pos-service/internal/domain"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// API is the catalog collaborator the POS depends on.
type API interface {
	List(ctx context.Context, tenantSlug string) (*domain.Listing, error)
	Get(ctx context.Context, tenantSlug string, id int64) (*domain.Product, error)
}

type Loader struct {
	api     API
	cache   Cache
	breaker *circuitbreaker.Breaker[*domain.Listing]
	sfg     singleflight.Group // one catalog fetch per tenant at a time
	log     *zap.Logger
	now     func() time.Time
}

// NewLoader wires the catalog API behind a circuit breaker. cache may be nil.
func NewLoader(api API, cache Cache, log *zap.Logger) *Loader {
	return &Loader{
		api:     api,
		cache:   cache,
		breaker: circuitbreaker.New[*domain.Listing](circuitbreaker.DefaultSettings("catalog"), log),
		log:     log,
		now:     time.Now,
	}
}

// Load returns a fresh snapshot for the tenant. It fails with a
// *domain.FetchError when the catalog cannot be reached.
func (l *Loader) Load(ctx context.Context, tenantSlug string) (*Snapshot, error) {
	v, err, _ := l.sfg.Do(tenantSlug, func() (interface{}, error) {
		log := logger.WithContext(ctx, l.log).With(zap.String("tenant", tenantSlug))

		if l.cache != nil {
			entry, err := l.cache.Get(ctx, tenantSlug)
			if err == nil {
				return NewSnapshot(entry.Listing, entry.FetchedAt), nil
			}
			if !errors.Is(err, ErrCacheMiss) {
				log.Warn("catalog cache get failed", zap.Error(err))
			}
		}

		listing, err := l.breaker.Execute(func() (*domain.Listing, error) {
			return l.api.List(ctx, tenantSlug)
		})
		if err != nil {
			return nil, &domain.FetchError{Op: "load catalog", Err: err}
		}
		fetchedAt := l.now()

		if l.cache != nil {
			entry := &CachedListing{Listing: *listing, FetchedAt: fetchedAt}
			go func() {
				setCtx, cancel := context.WithTimeout(context.Background(), time.Second)
				defer cancel()
				if err := l.cache.Set(setCtx, tenantSlug, entry); err != nil {
					log.Warn("catalog cache set failed", zap.Error(err))
				}
			}()
		}

		return NewSnapshot(*listing, fetchedAt), nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*Snapshot), nil
}

// Product reads one product straight from the catalog, bypassing snapshots.
func (l *Loader) Product(ctx context.Context, tenantSlug string, id int64) (*domain.Product, error) {
	p, err := l.api.Get(ctx, tenantSlug, id)
	if err != nil {
		if errors.Is(err, domain.ErrProductNotFound) {
			return nil, err
		}
		return nil, &domain.FetchError{Op: "get product", Err: err}
	}
	return p, nil
}

// Invalidate drops the cached listing so the next session open reads the
// catalog again. Sessions already open keep their snapshot.
func (l *Loader) Invalidate(ctx context.Context, tenantSlug string) error {
	if l.cache == nil {
		return nil
	}
	return l.cache.Delete(ctx, tenantSlug)
}
