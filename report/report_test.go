package report_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartpasal/pos-ledger/ledger"
	"github.com/smartpasal/pos-ledger/ledger/store"
	"github.com/smartpasal/pos-ledger/report"
)

var day = time.Date(2025, time.May, 10, 0, 0, 0, 0, time.UTC)

func dec(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func seed(t *testing.T, s ledger.Store, entities ...ledger.Entity) {
	t.Helper()
	for _, e := range entities {
		w, err := ledger.Create(e)
		require.NoError(t, err)
		require.NoError(t, s.Commit(context.Background(), []ledger.Write{w}))
	}
}

func sale(id string, at time.Time, mode ledger.PaymentMode, total, discount string, items ...ledger.SaleItem) ledger.Sale {
	return ledger.Sale{
		ID: id, ShopID: "shop1", Items: items, Total: dec(total), Discount: dec(discount),
		PaymentMode: mode, CreatedAt: at, UpdatedAt: at,
	}
}

func item(productID string, qty int64, total string) ledger.SaleItem {
	return ledger.SaleItem{ProductID: productID, ProductName: "name-" + productID, Quantity: qty, Total: dec(total)}
}

func newReporter(t *testing.T) (*report.Reporter, *store.Memory) {
	t.Helper()
	m := store.NewMemory()
	return report.New(m, report.WithClock(func() time.Time { return day.Add(15 * time.Hour) })), m
}

func TestSales_RequiresPeriod(t *testing.T) {
	r, _ := newReporter(t)
	_, err := r.Sales(context.Background(), "shop1", report.Period{StartDate: day})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	_, err = r.ProfitLoss(context.Background(), "shop1", report.Period{StartDate: day, EndDate: day.Add(-time.Hour)})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

func TestSales_Totals(t *testing.T) {
	ctx := context.Background()
	r, m := newReporter(t)
	seed(t, m,
		sale("s1", day.Add(9*time.Hour), ledger.PaymentCash, "100", "0", item("rice", 2, "100")),
		sale("s2", day.Add(10*time.Hour), ledger.PaymentUdhar, "45", "5", item("dal", 1, "30"), item("rice", 1, "20")),
		sale("s3", day.Add(11*time.Hour), ledger.PaymentEsewa, "60", "0", item("oil", 1, "60")),
		sale("late", day.AddDate(0, 0, 2), ledger.PaymentCash, "999", "0", item("rice", 9, "999")),
		ledger.Sale{ID: "other", ShopID: "shop2", Total: dec("500"), PaymentMode: ledger.PaymentCash, CreatedAt: day.Add(time.Hour)},
	)

	rep, err := r.Sales(ctx, "shop1", report.Period{StartDate: day, EndDate: day.AddDate(0, 0, 1)})
	require.NoError(t, err)
	assert.Equal(t, 3, rep.TotalSales)
	assert.True(t, rep.TotalAmount.Equal(dec("205")))
	assert.True(t, rep.TotalDiscount.Equal(dec("5")))
	assert.True(t, rep.PaymentModes[ledger.PaymentCash].Equal(dec("100")))
	assert.True(t, rep.PaymentModes[ledger.PaymentUdhar].Equal(dec("45")))
	assert.True(t, rep.PaymentModes[ledger.PaymentKhalti].IsZero())

	require.Len(t, rep.TopProducts, 3)
	assert.Equal(t, "rice", rep.TopProducts[0].ProductID)
	assert.Equal(t, int64(3), rep.TopProducts[0].QuantitySold)
	assert.True(t, rep.TopProducts[0].Revenue.Equal(dec("120")))
	assert.Equal(t, "oil", rep.TopProducts[1].ProductID)
}

func TestSales_TopProductsCapped(t *testing.T) {
	r, m := newReporter(t)
	items := make([]ledger.SaleItem, 0, 15)
	for i := 0; i < 15; i++ {
		items = append(items, item(fmt.Sprintf("p%02d", i), 1, fmt.Sprint(i+1)))
	}
	seed(t, m, sale("s1", day.Add(time.Hour), ledger.PaymentCash, "120", "0", items...))

	rep, err := r.Sales(context.Background(), "shop1", report.Period{StartDate: day, EndDate: day.Add(24 * time.Hour)})
	require.NoError(t, err)
	require.Len(t, rep.TopProducts, report.TopN)
	assert.Equal(t, "p14", rep.TopProducts[0].ProductID)
}

func TestProfitLoss(t *testing.T) {
	r, m := newReporter(t)
	seed(t, m,
		ledger.Product{ID: "rice", ShopID: "shop1", CostPrice: dec("40"), UpdatedAt: day},
		ledger.Product{ID: "dal", ShopID: "shop1", CostPrice: dec("25"), UpdatedAt: day},
		sale("s1", day.Add(time.Hour), ledger.PaymentCash, "100", "0", item("rice", 2, "100")),
		sale("s2", day.Add(2*time.Hour), ledger.PaymentCash, "60", "0", item("dal", 1, "30"), item("gone", 3, "30")),
	)

	rep, err := r.ProfitLoss(context.Background(), "shop1", report.Period{StartDate: day, EndDate: day.Add(24 * time.Hour)})
	require.NoError(t, err)
	assert.True(t, rep.TotalRevenue.Equal(dec("160")))
	assert.True(t, rep.TotalCost.Equal(dec("105")))
	assert.True(t, rep.GrossProfit.Equal(dec("55")))
	assert.True(t, rep.ProfitMargin.Equal(dec("34.38")), rep.ProfitMargin.String())

	empty, err := r.ProfitLoss(context.Background(), "shop9", report.Period{StartDate: day, EndDate: day.Add(time.Hour)})
	require.NoError(t, err)
	assert.True(t, empty.ProfitMargin.IsZero())
}

func TestStock(t *testing.T) {
	r, m := newReporter(t)
	seed(t, m,
		ledger.Product{ID: "a", ShopID: "shop1", Name: "A", CostPrice: dec("10"), StockQuantity: 3, LowStockThreshold: 5, UpdatedAt: day},
		ledger.Product{ID: "b", ShopID: "shop1", Name: "B", CostPrice: dec("2.5"), StockQuantity: 0, LowStockThreshold: 5, UpdatedAt: day},
		ledger.Product{ID: "c", ShopID: "shop1", Name: "C", CostPrice: dec("1"), StockQuantity: 100, LowStockThreshold: 5, UpdatedAt: day},
		ledger.Product{ID: "d", ShopID: "shop1", Name: "D", CostPrice: dec("1"), StockQuantity: 1, IsDeleted: true, UpdatedAt: day},
	)

	rep, err := r.Stock(context.Background(), "shop1")
	require.NoError(t, err)
	assert.Equal(t, 3, rep.TotalProducts)
	assert.True(t, rep.TotalStockValue.Equal(dec("130")))
	assert.Equal(t, []report.LowStockItem{{ProductID: "a", ProductName: "A", CurrentStock: 3, Threshold: 5}}, rep.LowStockProducts)
	assert.Equal(t, []report.OutOfStockItem{{ProductID: "b", ProductName: "B"}}, rep.OutOfStockProducts)
}

func TestUdhar(t *testing.T) {
	r, m := newReporter(t)
	seed(t, m,
		ledger.Customer{ID: "c1", ShopID: "shop1", Name: "Ram", TotalDue: dec("150"), UpdatedAt: day},
		ledger.Customer{ID: "c2", ShopID: "shop1", Name: "Sita", TotalDue: dec("300"), UpdatedAt: day},
		ledger.Customer{ID: "c3", ShopID: "shop1", Name: "Gita", TotalDue: decimal.Zero, UpdatedAt: day},
		ledger.Customer{ID: "c4", ShopID: "shop1", Name: "Hari", TotalDue: dec("50"), IsDeleted: true, UpdatedAt: day},
	)

	rep, err := r.Udhar(context.Background(), "shop1")
	require.NoError(t, err)
	assert.Equal(t, 2, rep.TotalCustomers)
	assert.True(t, rep.TotalOutstanding.Equal(dec("450")))
	require.Len(t, rep.TopDebtors, 2)
	assert.Equal(t, "c2", rep.TopDebtors[0].CustomerID)
}

func TestDashboard(t *testing.T) {
	r, m := newReporter(t)
	seed(t, m,
		sale("today1", day.Add(8*time.Hour), ledger.PaymentCash, "80", "0"),
		sale("today2", day.Add(14*time.Hour), ledger.PaymentKhalti, "20", "0"),
		sale("yesterday", day.Add(-time.Hour), ledger.PaymentCash, "500", "0"),
		ledger.Product{ID: "a", ShopID: "shop1", StockQuantity: 1, LowStockThreshold: 5, UpdatedAt: day},
		ledger.Product{ID: "b", ShopID: "shop1", StockQuantity: 50, LowStockThreshold: 5, UpdatedAt: day},
		ledger.Customer{ID: "c1", ShopID: "shop1", TotalDue: dec("75"), UpdatedAt: day},
	)

	d, err := r.Dashboard(context.Background(), "shop1")
	require.NoError(t, err)
	assert.Equal(t, 2, d.TodaySales)
	assert.True(t, d.TodayRevenue.Equal(dec("100")))
	assert.Equal(t, 1, d.LowStockCount)
	assert.True(t, d.TotalUdhar.Equal(dec("75")))
}
