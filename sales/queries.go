package sales

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/smartpasal/pos-ledger/ledger"
)

// DefaultTransactionLimit caps stock transaction listings.
const DefaultTransactionLimit = 100

// =============================================================================
// SALES
// =============================================================================

func (c *Coordinator) GetSale(ctx context.Context, saleID string) (ledger.Sale, error) {
	return ledger.Load[ledger.Sale](ctx, c.store, saleID)
}

// SaleFilter narrows ListSales. Zero values match everything.
// Start and End are inclusive bounds on CreatedAt.
type SaleFilter struct {
	Start       *time.Time
	End         *time.Time
	CustomerID  string
	PaymentMode ledger.PaymentMode
}

func (f SaleFilter) matches(s ledger.Sale) bool {
	if f.Start != nil && s.CreatedAt.Before(*f.Start) {
		return false
	}
	if f.End != nil && s.CreatedAt.After(*f.End) {
		return false
	}
	if f.CustomerID != "" && s.CustomerID != f.CustomerID {
		return false
	}
	if f.PaymentMode != "" && s.PaymentMode != f.PaymentMode {
		return false
	}
	return true
}

// ListSales returns the shop's sales newest first.
func (c *Coordinator) ListSales(ctx context.Context, shopID string, f SaleFilter) ([]ledger.Sale, error) {
	all, err := ledger.LoadAll[ledger.Sale](ctx, c.store, ledger.Query{ShopID: shopID})
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Sale, 0, len(all))
	for _, s := range all {
		if f.matches(s) {
			out = append(out, s)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// =============================================================================
// STOCK HISTORY
// =============================================================================

// ListStockTransactions returns the newest stock entries of a shop,
// optionally for one product. limit <= 0 means DefaultTransactionLimit.
func (c *Coordinator) ListStockTransactions(ctx context.Context, shopID, productID string, limit int) ([]ledger.StockTransaction, error) {
	if limit <= 0 {
		limit = DefaultTransactionLimit
	}
	all, err := ledger.LoadAll[ledger.StockTransaction](ctx, c.store, ledger.Query{ShopID: shopID})
	if err != nil {
		return nil, err
	}

	out := newestFirst(all, func(t ledger.StockTransaction) bool {
		return productID == "" || t.ProductID == productID
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type StockHistory struct {
	Product      ledger.Product            `json:"product"`
	Transactions []ledger.StockTransaction `json:"transactions"`
}

// ProductStockHistory returns a product with all of its stock entries.
func (c *Coordinator) ProductStockHistory(ctx context.Context, productID string) (StockHistory, error) {
	p, err := ledger.Load[ledger.Product](ctx, c.store, productID)
	if err != nil {
		return StockHistory{}, err
	}
	all, err := ledger.LoadAll[ledger.StockTransaction](ctx, c.store, ledger.Query{ShopID: p.ShopID})
	if err != nil {
		return StockHistory{}, err
	}
	return StockHistory{
		Product: p,
		Transactions: newestFirst(all, func(t ledger.StockTransaction) bool {
			return t.ProductID == productID
		}),
	}, nil
}

// =============================================================================
// UDHAR HISTORY
// =============================================================================

func (c *Coordinator) ListUdharTransactions(ctx context.Context, shopID, customerID string) ([]ledger.UdharTransaction, error) {
	all, err := ledger.LoadAll[ledger.UdharTransaction](ctx, c.store, ledger.Query{ShopID: shopID})
	if err != nil {
		return nil, err
	}
	return newestFirst(all, func(t ledger.UdharTransaction) bool {
		return customerID == "" || t.CustomerID == customerID
	}), nil
}

type UdharSummary struct {
	Customer     ledger.Customer           `json:"customer"`
	Transactions []ledger.UdharTransaction `json:"transactions"`
	TotalCredit  decimal.Decimal           `json:"totalCredit"`
	TotalPayment decimal.Decimal           `json:"totalPayment"`
	CurrentDue   decimal.Decimal           `json:"currentDue"`
}

// CustomerUdharSummary returns a customer's udhar history with totals.
func (c *Coordinator) CustomerUdharSummary(ctx context.Context, customerID string) (UdharSummary, error) {
	cust, err := ledger.Load[ledger.Customer](ctx, c.store, customerID)
	if err != nil {
		return UdharSummary{}, err
	}
	txs, err := c.ListUdharTransactions(ctx, cust.ShopID, customerID)
	if err != nil {
		return UdharSummary{}, fmt.Errorf("udhar history of %s: %w", customerID, err)
	}

	sum := UdharSummary{
		Customer:     cust,
		Transactions: txs,
		TotalCredit:  decimal.Zero,
		TotalPayment: decimal.Zero,
		CurrentDue:   cust.TotalDue,
	}
	for _, tx := range txs {
		switch tx.Type {
		case ledger.CreditCharge:
			sum.TotalCredit = sum.TotalCredit.Add(tx.Amount)
		case ledger.CreditPayment:
			sum.TotalPayment = sum.TotalPayment.Add(tx.Amount)
		}
	}
	return sum, nil
}

// newestFirst filters entries and reverses the store's ascending order.
func newestFirst[T any](all []T, keep func(T) bool) []T {
	out := make([]T, 0, len(all))
	for i := len(all) - 1; i >= 0; i-- {
		if keep(all[i]) {
			out = append(out, all[i])
		}
	}
	return out
}
