package sales

import (
	"context"

	"github.com/smartpasal/pos-ledger/ledger"
)

// =============================================================================
// DIRECT POSTINGS - stock and udhar outside of a sale
// =============================================================================

// RecordStockMovement posts a purchase, damage or count adjustment.
func (c *Coordinator) RecordStockMovement(ctx context.Context, shopID, productID string, m ledger.StockMovement) (ledger.Product, ledger.StockTransaction, error) {
	if err := m.Validate(); err != nil {
		return ledger.Product{}, ledger.StockTransaction{}, err
	}

	var (
		product ledger.Product
		tx      ledger.StockTransaction
	)
	err := c.withRetry(ctx, "stock_movement", func() error {
		current, err := c.loadShopProduct(ctx, shopID, productID)
		if err != nil {
			return err
		}

		next, entry, err := ledger.ApplyStockMovement(current, m, c.now())
		if err != nil {
			return err
		}
		// A retry must reuse the audit id so the entry is written once.
		m.ID = entry.ID

		writes, err := batch(
			func() (ledger.Write, error) { return ledger.Update(next, current.Version) },
			func() (ledger.Write, error) { return ledger.Create(entry) },
		)
		if err != nil {
			return err
		}
		if err := c.store.Commit(ctx, writes); err != nil {
			return err
		}
		product, tx = next, entry
		product.Version = current.Version + 1
		return nil
	})
	if err != nil {
		return ledger.Product{}, ledger.StockTransaction{}, err
	}

	c.metrics.StockMoved(string(tx.Type))
	c.logger.WithContext(ctx).WithOperation("stock_movement").WithShop(shopID).Info("Stock updated",
		"productId", productID,
		"type", tx.Type,
		"quantity", tx.Quantity,
		"previousStock", tx.PreviousStock,
		"newStock", tx.NewStock,
	)
	return product, tx, nil
}

// RecordCreditMovement posts an udhar credit or repayment.
func (c *Coordinator) RecordCreditMovement(ctx context.Context, shopID, customerID string, m ledger.CreditMovement) (ledger.Customer, ledger.UdharTransaction, error) {
	if !m.Type.Valid() {
		return ledger.Customer{}, ledger.UdharTransaction{}, ledger.ErrInvalidMovementType
	}
	if !m.Amount.IsPositive() {
		return ledger.Customer{}, ledger.UdharTransaction{}, ledger.ErrInvalidAmount
	}

	var (
		customer ledger.Customer
		tx       ledger.UdharTransaction
	)
	err := c.withRetry(ctx, "credit_movement", func() error {
		current, err := c.loadShopCustomer(ctx, shopID, customerID)
		if err != nil {
			return err
		}

		next, entry, err := ledger.ApplyCreditMovement(current, m, c.now())
		if err != nil {
			return err
		}
		m.ID = entry.ID

		writes, err := batch(
			func() (ledger.Write, error) { return ledger.Update(next, current.Version) },
			func() (ledger.Write, error) { return ledger.Create(entry) },
		)
		if err != nil {
			return err
		}
		if err := c.store.Commit(ctx, writes); err != nil {
			return err
		}
		customer, tx = next, entry
		customer.Version = current.Version + 1
		return nil
	})
	if err != nil {
		return ledger.Customer{}, ledger.UdharTransaction{}, err
	}

	c.metrics.CreditMoved(string(tx.Type))
	c.logger.WithContext(ctx).WithOperation("credit_movement").WithShop(shopID).Info("Udhar updated",
		"customerId", customerID,
		"type", tx.Type,
		"amount", tx.Amount.String(),
		"balance", tx.Balance.String(),
	)
	return customer, tx, nil
}

func batch(builders ...func() (ledger.Write, error)) ([]ledger.Write, error) {
	writes := make([]ledger.Write, 0, len(builders))
	for _, build := range builders {
		w, err := build()
		if err != nil {
			return nil, err
		}
		writes = append(writes, w)
	}
	return writes, nil
}
