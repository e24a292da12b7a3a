/*
credit.go - Credit Ledger Engine

PURPOSE:
  Applies one udhar movement to a customer's outstanding balance and
  produces the matching audit entry. Pure, like the stock engine.

MOVEMENTS:
  credit:  due + amount (goods taken on credit)
  payment: due - amount (customer pays down)

A payment larger than the current due is rejected with
*ExcessPaymentError. The balance is never clamped to zero.
*/
package ledger

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// CreditMovement is a request to change a customer's due.
type CreditMovement struct {
	ID          string
	Type        CreditMovementType
	Amount      decimal.Decimal
	Description string
	PaymentMode string
	SaleID      string
	Actor       string
}

// ApplyCreditMovement returns the customer after the movement and its audit entry.
func ApplyCreditMovement(c Customer, m CreditMovement, now time.Time) (Customer, UdharTransaction, error) {
	if !m.Type.Valid() {
		return c, UdharTransaction{}, ErrInvalidMovementType
	}
	if !m.Amount.IsPositive() {
		return c, UdharTransaction{}, ErrInvalidAmount
	}

	due := c.TotalDue
	switch m.Type {
	case CreditCharge:
		due = due.Add(m.Amount)
	case CreditPayment:
		if m.Amount.GreaterThan(due) {
			return c, UdharTransaction{}, &ExcessPaymentError{
				CustomerID: c.ID,
				Due:        c.TotalDue,
				Amount:     m.Amount,
			}
		}
		due = due.Sub(m.Amount)
	}

	id := m.ID
	if id == "" {
		id = uuid.NewString()
	}
	now = now.UTC()

	tx := UdharTransaction{
		ID:          id,
		ShopID:      c.ShopID,
		CustomerID:  c.ID,
		SaleID:      m.SaleID,
		Type:        m.Type,
		Amount:      m.Amount,
		Balance:     due,
		Description: m.Description,
		PaymentMode: m.PaymentMode,
		CreatedBy:   m.Actor,
		CreatedAt:   now,
	}

	c.TotalDue = due
	c.UpdatedAt = now
	return c, tx, nil
}
