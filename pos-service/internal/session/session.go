package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fjod/go_pos/pos-service/internal/cart"
	"github.com/fjod/go_pos/pos-service/internal/catalog"
	"github.com/fjod/go_pos/pos-service/internal/domain"
	"github.com/fjod/go_pos/pos-service/internal/scanner"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Session is one open PDV screen: a cart over a catalog snapshot plus the
// keyboard resolver. All methods take the session lock.
type Session struct {
	mu sync.Mutex

	id       string
	tenant   domain.TenantContext
	openedAt time.Time
	engine   *cart.Engine
	resolver *scanner.Resolver
	coupon   *domain.Coupon
	closed   bool

	// idempotencyKey changes whenever the cart changes, so a retried checkout
	// of the same cart never creates a second order.
	idempotencyKey string

	// lastUsed is read by the manager without taking mu.
	lastUsed atomic.Int64

	checkout Checkout
	log      *zap.Logger
}

func newSession(id string, tenant domain.TenantContext, snap *catalog.Snapshot, co Checkout, log *zap.Logger, now time.Time) *Session {
	s := &Session{
		id:             id,
		tenant:         tenant,
		openedAt:       now,
		engine:         cart.NewEngine(snap),
		resolver:       scanner.NewResolver(snap),
		idempotencyKey: uuid.NewString(),
		checkout:       co,
		log:            log.With(zap.String("session_id", id), zap.String("tenant", tenant.TenantSlug)),
	}
	s.lastUsed.Store(now.UnixNano())
	return s
}

func (s *Session) ID() string { return s.id }

func (s *Session) Tenant() domain.TenantContext { return s.tenant }

func (s *Session) AddOrIncrement(productID int64, delta int) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return View{}, domain.ErrSessionNotFound
	}

	if err := s.engine.AddOrIncrement(productID, delta); err != nil {
		return View{}, err
	}
	s.touch()
	return s.view(), nil
}

func (s *Session) SetQuantity(productID int64, quantity int) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return View{}, domain.ErrSessionNotFound
	}

	if err := s.engine.SetQuantity(productID, quantity); err != nil {
		return View{}, err
	}
	s.touch()
	return s.view(), nil
}

func (s *Session) Remove(productID int64) (View, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return View{}, domain.ErrSessionNotFound
	}

	s.engine.Remove(productID)
	s.touch()
	return s.view(), nil
}

// KeyResult is what a key press did to the session.
type KeyResult struct {
	Outcome scanner.Outcome `json:"outcome"`
	View    View            `json:"view"`
}

// HandleKey feeds a key to the resolver and applies the resulting intent.
// Finalize and unresolved intents are only reported; the caller decides how
// to collect payment or show the miss.
func (s *Session) HandleKey(ev scanner.KeyEvent) (KeyResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return KeyResult{}, domain.ErrSessionNotFound
	}

	out := s.resolver.HandleKey(ev)
	switch out.Intent.Kind {
	case scanner.IntentCode:
		err := s.engine.AddOrIncrement(out.Intent.ProductID, 1)
		if errors.Is(err, domain.ErrUnknownProduct) {
			s.log.Warn("scanned product left the catalog", zap.Int64("product_id", out.Intent.ProductID))
			break
		}
		s.touch()
	case scanner.IntentDeleteLine:
		if last, ok := s.engine.LastLine(); ok {
			s.engine.Remove(last.ProductID)
			s.touch()
		}
	case scanner.IntentUnresolved:
		s.log.Debug("code not found", zap.String("code", out.Intent.Code))
	}

	return KeyResult{Outcome: out, View: s.view()}, nil
}

func (s *Session) Blur() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolver.Blur()
	return s.view()
}

// SetInput mirrors the front end's dialog and inline edit state.
func (s *Session) SetInput(disabled, editing bool) View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.resolver.SetDisabled(disabled)
	s.resolver.SetEditing(editing)
	return s.view()
}

func (s *Session) Search(query string, categoryID int64) []domain.Product {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Catalog().Search(query, categoryID)
}

func (s *Session) Categories() []domain.Category {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.engine.Catalog().Categories()
}

func (s *Session) ApplyCoupon(c domain.Coupon) (View, error) {
	if err := c.Validate(); err != nil {
		return View{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return View{}, domain.ErrSessionNotFound
	}
	s.coupon = &c
	s.touch()
	return s.view(), nil
}

func (s *Session) ClearCoupon() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.coupon = nil
	s.touch()
	return s.view()
}

func (s *Session) View() View {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.view()
}

// submit finalizes the cart. The session lock is held for the whole
// submission so a double press cannot produce two orders.
func (s *Session) submit(ctx context.Context, payment domain.PaymentInfo) (*domain.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, domain.ErrSessionNotFound
	}

	receipt, err := s.checkout.Finalize(ctx, s.tenant, s.engine, payment, s.coupon, s.idempotencyKey)
	if err != nil {
		return nil, err
	}
	s.closed = true
	s.log.Info("session checked out", zap.String("order_id", receipt.OrderID))
	return receipt, nil
}

func (s *Session) close() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
}

func (s *Session) touch() {
	s.idempotencyKey = uuid.NewString()
}

// View is the read model rendered by the PDV screen.
type View struct {
	ID              string               `json:"id"`
	Tenant          domain.TenantContext `json:"tenant"`
	Lines           []LineView           `json:"lines"`
	ItemCount       int                  `json:"item_count"`
	Subtotal        decimal.Decimal      `json:"subtotal"`
	Discount        decimal.Decimal      `json:"discount"`
	Total           decimal.Decimal      `json:"total"`
	Coupon          *domain.Coupon       `json:"coupon,omitempty"`
	Scanner         ScannerView          `json:"scanner"`
	OpenedAt        time.Time            `json:"opened_at"`
	CatalogLoadedAt time.Time            `json:"catalog_loaded_at"`
}

type LineView struct {
	ProductID int64           `json:"product_id"`
	Name      string          `json:"name"`
	ImageRef  string          `json:"image_ref,omitempty"`
	Quantity  int             `json:"quantity"`
	UnitPrice decimal.Decimal `json:"unit_price"`
	Subtotal  decimal.Decimal `json:"subtotal"`
}

type ScannerView struct {
	State    string `json:"state"`
	Buffer   string `json:"buffer"`
	Disabled bool   `json:"disabled"`
	Editing  bool   `json:"editing"`
}

func (s *Session) view() View {
	snap := s.engine.Catalog()
	lines := s.engine.Lines()
	lv := make([]LineView, 0, len(lines))
	for _, l := range lines {
		p, _ := snap.Product(l.ProductID)
		lv = append(lv, LineView{
			ProductID: l.ProductID,
			Name:      p.Name,
			ImageRef:  p.ImageRef,
			Quantity:  l.Quantity,
			UnitPrice: p.UnitPrice,
			Subtotal:  s.engine.Subtotal(l),
		})
	}

	q := s.checkout.Quote(s.engine, s.coupon, domain.FulfillmentCounter)
	return View{
		ID:        s.id,
		Tenant:    s.tenant,
		Lines:     lv,
		ItemCount: s.engine.ItemCount(),
		Subtotal:  q.Subtotal,
		Discount:  q.Discount,
		Total:     q.Total,
		Coupon:    s.coupon,
		Scanner: ScannerView{
			State:    s.resolver.State().String(),
			Buffer:   s.resolver.Buffer(),
			Disabled: s.resolver.Disabled(),
			Editing:  s.resolver.Editing(),
		},
		OpenedAt:        s.openedAt,
		CatalogLoadedAt: snap.LoadedAt(),
	}
}
