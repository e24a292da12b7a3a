/*
stock.go - Stock Ledger Engine

PURPOSE:
  Applies one stock movement to a product and produces the matching
  audit entry. The function is pure: it reads nothing and writes nothing.
  Callers commit the returned product (OpUpdate at the version they read)
  and the returned StockTransaction (OpCreate) in the same batch.

MOVEMENTS:
  in:         previous + quantity   (purchase, return)
  out:        previous - quantity   (sale, damage); never below zero
  adjustment: quantity              (physical count overrides the book)

INVARIANT:
  For every committed movement, NewStock - PreviousStock equals +q, -q or
  (q - PreviousStock), and the product's stockQuantity equals NewStock.
*/
package ledger

import (
	"time"

	"github.com/google/uuid"
)

// StockMovement is a request to change a product's quantity.
// ID is optional; a UUID is assigned when empty.
type StockMovement struct {
	ID        string
	Type      StockMovementType
	Quantity  int64
	Reason    string
	Reference string
	Actor     string
}

// Validate checks the movement on its own. Zero is allowed only for an
// adjustment, which records a count of an empty shelf.
func (m StockMovement) Validate() error {
	if !m.Type.Valid() {
		return ErrInvalidMovementType
	}
	if m.Quantity < 0 || (m.Quantity == 0 && m.Type != StockAdjustment) {
		return ErrInvalidQuantity
	}
	return nil
}

// ApplyStockMovement returns the product after the movement and its audit entry.
func ApplyStockMovement(p Product, m StockMovement, now time.Time) (Product, StockTransaction, error) {
	if err := m.Validate(); err != nil {
		return p, StockTransaction{}, err
	}

	prev := p.StockQuantity
	var next int64
	switch m.Type {
	case StockIn:
		next = prev + m.Quantity
	case StockOut:
		if m.Quantity > prev {
			return p, StockTransaction{}, &InsufficientStockError{
				ProductID: p.ID,
				Available: prev,
				Requested: m.Quantity,
			}
		}
		next = prev - m.Quantity
	case StockAdjustment:
		next = m.Quantity
	}

	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	now = now.UTC()

	tx := StockTransaction{
		ID:            id,
		ShopID:        p.ShopID,
		ProductID:     p.ID,
		Type:          m.Type,
		Quantity:      m.Quantity,
		PreviousStock: prev,
		NewStock:      next,
		Reason:        m.Reason,
		Reference:     m.Reference,
		CreatedBy:     m.Actor,
		CreatedAt:     now,
	}

	p.StockQuantity = next
	p.UpdatedAt = now
	return p, tx, nil
}
