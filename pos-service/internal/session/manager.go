// Package session owns the open POS sessions of the process, one per PDV
// terminal.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/fjod/go_pos/pkg/logger"
	"github.com/fjod/go_pos/pos-service/internal/cart"
	"github.com/fjod/go_pos/pos-service/internal/catalog"
	"github.com/fjod/go_pos/pos-service/internal/checkout"
	"github.com/fjod/go_pos/pos-service/internal/domain"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

type CatalogLoader interface {
	Load(ctx context.Context, tenantSlug string) (*catalog.Snapshot, error)
}

type Checkout interface {
	Finalize(ctx context.Context, tenant domain.TenantContext, engine *cart.Engine,
		payment domain.PaymentInfo, coupon *domain.Coupon, idempotencyKey string) (*domain.Receipt, error)
	Quote(engine *cart.Engine, coupon *domain.Coupon, fulfillment domain.Fulfillment) checkout.Quote
}

type terminal struct {
	generation uint64
	sessionID  string
	opening    int // Open calls in flight; the entry is kept while > 0
}

type Manager struct {
	mu        sync.Mutex
	sessions  map[string]*Session
	terminals map[string]*terminal

	loader   CatalogLoader
	checkout Checkout
	now      func() time.Time
	log      *zap.Logger
}

func NewManager(loader CatalogLoader, co Checkout, log *zap.Logger) *Manager {
	return &Manager{
		sessions:  make(map[string]*Session),
		terminals: make(map[string]*terminal),
		loader:    loader,
		checkout:  co,
		now:       time.Now,
		log:       log,
	}
}

// Open loads the tenant catalog and starts a fresh session on the caller's
// terminal, replacing the one already there. If another Open for the same
// terminal starts while the catalog is loading, this one returns
// ErrSuperseded and its snapshot is dropped.
func (m *Manager) Open(ctx context.Context, tenant domain.TenantContext) (*Session, error) {
	if !tenant.Valid() {
		return nil, domain.ErrMissingTenant
	}
	key := tenant.TerminalKey()

	m.mu.Lock()
	t, ok := m.terminals[key]
	if !ok {
		t = &terminal{}
		m.terminals[key] = t
	}
	t.generation++
	t.opening++
	gen := t.generation
	m.mu.Unlock()

	snap, err := m.loader.Load(ctx, tenant.TenantSlug)

	m.mu.Lock()
	defer m.mu.Unlock()
	t.opening--
	defer m.pruneTerminalLocked(key, t)

	if err != nil {
		return nil, err
	}

	if t.generation != gen {
		logger.WithContext(ctx, m.log).Info("discarding superseded catalog load",
			zap.String("terminal", key), zap.Uint64("generation", gen))
		return nil, domain.ErrSuperseded
	}

	if prev, ok := m.sessions[t.sessionID]; ok {
		delete(m.sessions, t.sessionID)
		prev.close()
	}

	s := newSession(uuid.NewString(), tenant, snap, m.checkout, m.log, m.now())
	m.sessions[s.id] = s
	t.sessionID = s.id

	logger.WithContext(ctx, m.log).Info("pos session opened",
		zap.String("session_id", s.id),
		zap.String("terminal", key),
		zap.Int("products", len(snap.Products())))
	return s, nil
}

// Get returns the session if it belongs to the caller's tenant.
func (m *Manager) Get(id string, tenant domain.TenantContext) (*Session, error) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	if s.tenant.TenantSlug != tenant.TenantSlug {
		return nil, domain.ErrTenantMismatch
	}
	s.lastUsed.Store(m.now().UnixNano())
	return s, nil
}

func (m *Manager) Close(id string, tenant domain.TenantContext) error {
	s, err := m.Get(id, tenant)
	if err != nil {
		return err
	}
	m.remove(s)
	s.close()
	return nil
}

// Checkout submits the session cart and destroys the session on success.
// On failure the session and its cart stay as they were.
func (m *Manager) Checkout(ctx context.Context, id string, tenant domain.TenantContext, payment domain.PaymentInfo) (*domain.Receipt, error) {
	s, err := m.Get(id, tenant)
	if err != nil {
		return nil, err
	}

	receipt, err := s.submit(ctx, payment)
	if err != nil {
		return nil, err
	}
	m.remove(s)
	return receipt, nil
}

func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// ExpireIdle closes sessions nobody has used for longer than maxIdle and
// returns how many were closed.
func (m *Manager) ExpireIdle(ctx context.Context, maxIdle time.Duration) int {
	cutoff := m.now().Add(-maxIdle).UnixNano()

	m.mu.Lock()
	var expired []*Session
	for _, s := range m.sessions {
		if s.lastUsed.Load() < cutoff {
			m.removeLocked(s)
			expired = append(expired, s)
		}
	}
	m.mu.Unlock()

	for _, s := range expired {
		s.close()
		logger.WithContext(ctx, m.log).Info("idle pos session expired",
			zap.String("session_id", s.id),
			zap.String("terminal", s.tenant.TerminalKey()))
	}
	return len(expired)
}

// RunExpiry calls ExpireIdle every interval until ctx is cancelled.
func (m *Manager) RunExpiry(ctx context.Context, interval, maxIdle time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.ExpireIdle(ctx, maxIdle)
		case <-ctx.Done():
			return
		}
	}
}

// Terminals reports how many terminals the manager is tracking.
func (m *Manager) Terminals() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.terminals)
}

func (m *Manager) remove(s *Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeLocked(s)
}

func (m *Manager) removeLocked(s *Session) {
	delete(m.sessions, s.id)
	key := s.tenant.TerminalKey()
	if t, ok := m.terminals[key]; ok && t.sessionID == s.id {
		t.sessionID = ""
		m.pruneTerminalLocked(key, t)
	}
}

// pruneTerminalLocked forgets a terminal with no session and no Open in
// flight. A pending Open still holds t and compares its generation.
func (m *Manager) pruneTerminalLocked(key string, t *terminal) {
	if t.sessionID == "" && t.opening == 0 && m.terminals[key] == t {
		delete(m.terminals, key)
	}
}
