// Package cart holds the in-memory cart of one POS session.
package cart

import (
	"github.com/fjod/go_pos/pos-service/internal/catalog"
	"github.com/fjod/go_pos/pos-service/internal/domain"
	"github.com/shopspring/decimal"
)

// Engine maps products to quantities in insertion order. It is not safe for
// concurrent use; the owning session serializes calls.
type Engine struct {
	catalog *catalog.Snapshot
	lines   []domain.CartLine
}

func NewEngine(snapshot *catalog.Snapshot) *Engine {
	return &Engine{catalog: snapshot}
}

// AddOrIncrement adds delta to the product's quantity. A missing line is only
// created for a positive delta, and a line whose quantity drops to zero or
// below is removed.
func (e *Engine) AddOrIncrement(productID int64, delta int) error {
	if _, ok := e.catalog.ActiveProduct(productID); !ok {
		return &domain.UnknownProductError{ProductID: productID}
	}

	i := e.index(productID)
	if i < 0 {
		if delta <= 0 {
			return nil
		}
		e.lines = append(e.lines, domain.CartLine{ProductID: productID, Quantity: delta})
		return nil
	}

	q := e.lines[i].Quantity + delta
	if q <= 0 {
		e.removeAt(i)
		return nil
	}
	e.lines[i].Quantity = q
	return nil
}

// Remove drops the product's line. Removing an absent line is a no-op.
func (e *Engine) Remove(productID int64) {
	if i := e.index(productID); i >= 0 {
		e.removeAt(i)
	}
}

// SetQuantity sets an absolute quantity; zero or less removes the line.
func (e *Engine) SetQuantity(productID int64, quantity int) error {
	if quantity <= 0 {
		e.Remove(productID)
		return nil
	}
	if _, ok := e.catalog.ActiveProduct(productID); !ok {
		return &domain.UnknownProductError{ProductID: productID}
	}

	if i := e.index(productID); i >= 0 {
		e.lines[i].Quantity = quantity
		return nil
	}
	e.lines = append(e.lines, domain.CartLine{ProductID: productID, Quantity: quantity})
	return nil
}

// Total is recomputed from the lines on every call.
func (e *Engine) Total() decimal.Decimal {
	total := decimal.Zero
	for _, l := range e.lines {
		total = total.Add(e.Subtotal(l))
	}
	return total
}

func (e *Engine) Subtotal(l domain.CartLine) decimal.Decimal {
	p, _ := e.catalog.Product(l.ProductID)
	return p.UnitPrice.Mul(decimal.NewFromInt(int64(l.Quantity)))
}

func (e *Engine) IsEmpty() bool {
	return len(e.lines) == 0
}

// Lines returns a copy of the lines in display order.
func (e *Engine) Lines() []domain.CartLine {
	return append([]domain.CartLine(nil), e.lines...)
}

func (e *Engine) Quantity(productID int64) int {
	if i := e.index(productID); i >= 0 {
		return e.lines[i].Quantity
	}
	return 0
}

// LastLine is the line shown last on screen.
func (e *Engine) LastLine() (domain.CartLine, bool) {
	if len(e.lines) == 0 {
		return domain.CartLine{}, false
	}
	return e.lines[len(e.lines)-1], true
}

func (e *Engine) ItemCount() int {
	n := 0
	for _, l := range e.lines {
		n += l.Quantity
	}
	return n
}

func (e *Engine) Clear() {
	e.lines = nil
}

func (e *Engine) Catalog() *catalog.Snapshot {
	return e.catalog
}

func (e *Engine) index(productID int64) int {
	for i, l := range e.lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

func (e *Engine) removeAt(i int) {
	e.lines = append(e.lines[:i], e.lines[i+1:]...)
}
