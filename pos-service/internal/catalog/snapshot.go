package catalog

import (
	"strconv"
	"strings"
	"time"

	"github.com/fjod/go_pos/pos-service/internal/domain"
)

// Snapshot is the catalog a POS session works against. It never changes after
// construction, so it can be shared between sessions of the same tenant.
type Snapshot struct {
	products   []domain.Product
	categories []domain.Category
	byID       map[int64]int
	byCode     map[string]int
	loadedAt   time.Time
}

func NewSnapshot(listing domain.Listing, loadedAt time.Time) *Snapshot {
	s := &Snapshot{
		products:   append([]domain.Product(nil), listing.Products...),
		categories: append([]domain.Category(nil), listing.Categories...),
		byID:       make(map[int64]int, len(listing.Products)),
		byCode:     make(map[string]int),
		loadedAt:   loadedAt,
	}
	for i, p := range s.products {
		s.byID[p.ID] = i
		if p.Code != "" {
			s.byCode[p.Code] = i
		}
	}
	return s
}

func (s *Snapshot) LoadedAt() time.Time {
	return s.loadedAt
}

func (s *Snapshot) Product(id int64) (domain.Product, bool) {
	i, ok := s.byID[id]
	if !ok {
		return domain.Product{}, false
	}
	return s.products[i], true
}

func (s *Snapshot) ActiveProduct(id int64) (domain.Product, bool) {
	p, ok := s.Product(id)
	if !ok || !p.Active {
		return domain.Product{}, false
	}
	return p, true
}

// Lookup resolves a typed or scanned code. An exact barcode match wins over an
// id match; inactive products never resolve.
func (s *Snapshot) Lookup(code string) (domain.Product, bool) {
	code = strings.TrimSpace(code)
	if code == "" {
		return domain.Product{}, false
	}
	if i, ok := s.byCode[code]; ok && s.products[i].Active {
		return s.products[i], true
	}
	id, err := strconv.ParseInt(code, 10, 64)
	if err != nil {
		return domain.Product{}, false
	}
	return s.ActiveProduct(id)
}

// Search returns active products whose name or code contains query, in catalog
// order. categoryID 0 matches every category.
func (s *Snapshot) Search(query string, categoryID int64) []domain.Product {
	q := strings.ToLower(strings.TrimSpace(query))
	res := make([]domain.Product, 0)
	for _, p := range s.products {
		if !p.Active {
			continue
		}
		if categoryID != 0 && p.CategoryID != categoryID {
			continue
		}
		if q != "" && !strings.Contains(strings.ToLower(p.Name), q) && !strings.Contains(strings.ToLower(p.Code), q) {
			continue
		}
		res = append(res, p)
	}
	return res
}

func (s *Snapshot) Products() []domain.Product {
	return append([]domain.Product(nil), s.products...)
}

func (s *Snapshot) Categories() []domain.Category {
	return append([]domain.Category(nil), s.categories...)
}

func (s *Snapshot) Listing() domain.Listing {
	return domain.Listing{Products: s.Products(), Categories: s.Categories()}
}
