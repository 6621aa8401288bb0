package catalog

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/fjod/go_pos/pos-service/internal/domain"
)

// CachedListing is a tenant listing together with the time it was read from
// the catalog API, so a snapshot built from the cache reports its real age.
type CachedListing struct {
	Listing   domain.Listing `json:"listing"`
	FetchedAt time.Time      `json:"fetched_at"`
}

type Cache interface {
	Get(ctx context.Context, tenantSlug string) (*CachedListing, error)
	Set(ctx context.Context, tenantSlug string, entry *CachedListing) error
	Delete(ctx context.Context, tenantSlug string) error
}

var (
	ErrCacheMiss    = errors.New("cache miss")
	ErrInvalidEntry = errors.New("invalid catalog cache entry")
)

// validate rejects entries a snapshot cannot be built from.
func (e *CachedListing) validate() error {
	if e.FetchedAt.IsZero() {
		return fmt.Errorf("%w: missing fetched_at", ErrInvalidEntry)
	}
	ids := make(map[int64]struct{}, len(e.Listing.Products))
	codes := make(map[string]struct{})
	for _, p := range e.Listing.Products {
		if _, dup := ids[p.ID]; dup {
			return fmt.Errorf("%w: duplicate product %d", ErrInvalidEntry, p.ID)
		}
		ids[p.ID] = struct{}{}
		if p.Code != "" {
			if _, dup := codes[p.Code]; dup {
				return fmt.Errorf("%w: duplicate code %q", ErrInvalidEntry, p.Code)
			}
			codes[p.Code] = struct{}{}
		}
		if p.UnitPrice.IsNegative() {
			return fmt.Errorf("%w: negative price for product %d", ErrInvalidEntry, p.ID)
		}
	}
	return nil
}
