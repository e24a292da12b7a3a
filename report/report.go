/*
Package report computes read-only summaries of a shop's ledger.

REPORTS:
  Sales:        count, amount, discounts, totals per payment mode, top products
  ProfitLoss:   revenue against cost at the products' current cost price
  Stock:        stock value at cost, low-stock and out-of-stock products
  Udhar:        customers with an outstanding due, top debtors
  Dashboard:    today's sales, low-stock count, total outstanding udhar

Nothing here writes. Reports read live documents and tolerate products
that have since been deleted.
*/
package report

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/smartpasal/pos-ledger/ledger"
)

// TopN bounds the top products and top debtors lists.
const TopN = 10

var hundred = decimal.NewFromInt(100)

type Reporter struct {
	store ledger.Store
	now   func() time.Time
	loc   *time.Location
}

type Option func(*Reporter)

func WithClock(now func() time.Time) Option { return func(r *Reporter) { r.now = now } }

// WithLocation sets the shop's time zone, which decides where "today"
// starts on the dashboard.
func WithLocation(loc *time.Location) Option { return func(r *Reporter) { r.loc = loc } }

func New(store ledger.Store, opts ...Option) *Reporter {
	r := &Reporter{store: store, now: time.Now, loc: time.UTC}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Period is an inclusive time range on sale creation.
type Period struct {
	StartDate time.Time `json:"startDate"`
	EndDate   time.Time `json:"endDate"`
}

func (p Period) validate() error {
	if p.StartDate.IsZero() || p.EndDate.IsZero() {
		return ledger.Invalid("startDate", "start date and end date are required")
	}
	if p.EndDate.Before(p.StartDate) {
		return ledger.Invalid("endDate", "must not be before startDate")
	}
	return nil
}

func (p Period) contains(t time.Time) bool {
	return !t.Before(p.StartDate) && !t.After(p.EndDate)
}

func (r *Reporter) salesIn(ctx context.Context, shopID string, p Period) ([]ledger.Sale, error) {
	all, err := ledger.LoadAll[ledger.Sale](ctx, r.store, ledger.Query{ShopID: shopID})
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, s := range all {
		if p.contains(s.CreatedAt) {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *Reporter) liveProducts(ctx context.Context, shopID string) ([]ledger.Product, error) {
	all, err := ledger.LoadAll[ledger.Product](ctx, r.store, ledger.Query{ShopID: shopID})
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, p := range all {
		if !p.IsDeleted {
			out = append(out, p)
		}
	}
	return out, nil
}

func (r *Reporter) liveCustomers(ctx context.Context, shopID string) ([]ledger.Customer, error) {
	all, err := ledger.LoadAll[ledger.Customer](ctx, r.store, ledger.Query{ShopID: shopID})
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, c := range all {
		if !c.IsDeleted {
			out = append(out, c)
		}
	}
	return out, nil
}

// =============================================================================
// SALES
// =============================================================================

type ProductSales struct {
	ProductID    string          `json:"productId"`
	ProductName  string          `json:"productName"`
	QuantitySold int64           `json:"quantitySold"`
	Revenue      decimal.Decimal `json:"revenue"`
}

type SalesReport struct {
	TotalSales    int                                    `json:"totalSales"`
	TotalAmount   decimal.Decimal                        `json:"totalAmount"`
	TotalDiscount decimal.Decimal                        `json:"totalDiscount"`
	PaymentModes  map[ledger.PaymentMode]decimal.Decimal `json:"paymentModes"`
	TopProducts   []ProductSales                         `json:"topProducts"`
}

func (r *Reporter) Sales(ctx context.Context, shopID string, p Period) (SalesReport, error) {
	if err := p.validate(); err != nil {
		return SalesReport{}, err
	}
	sales, err := r.salesIn(ctx, shopID, p)
	if err != nil {
		return SalesReport{}, err
	}

	rep := SalesReport{
		TotalSales:    len(sales),
		TotalAmount:   decimal.Zero,
		TotalDiscount: decimal.Zero,
		PaymentModes: map[ledger.PaymentMode]decimal.Decimal{
			ledger.PaymentCash:   decimal.Zero,
			ledger.PaymentUdhar:  decimal.Zero,
			ledger.PaymentEsewa:  decimal.Zero,
			ledger.PaymentKhalti: decimal.Zero,
		},
	}
	byProduct := map[string]*ProductSales{}
	for _, s := range sales {
		rep.TotalAmount = rep.TotalAmount.Add(s.Total)
		rep.TotalDiscount = rep.TotalDiscount.Add(s.Discount)
		if total, ok := rep.PaymentModes[s.PaymentMode]; ok {
			rep.PaymentModes[s.PaymentMode] = total.Add(s.Total)
		}
		for _, item := range s.Items {
			ps, ok := byProduct[item.ProductID]
			if !ok {
				ps = &ProductSales{ProductID: item.ProductID, ProductName: item.ProductName, Revenue: decimal.Zero}
				byProduct[item.ProductID] = ps
			}
			ps.QuantitySold += item.Quantity
			ps.Revenue = ps.Revenue.Add(item.Total)
		}
	}

	rep.TopProducts = make([]ProductSales, 0, len(byProduct))
	for _, ps := range byProduct {
		rep.TopProducts = append(rep.TopProducts, *ps)
	}
	sort.Slice(rep.TopProducts, func(i, j int) bool {
		a, b := rep.TopProducts[i], rep.TopProducts[j]
		if c := a.Revenue.Cmp(b.Revenue); c != 0 {
			return c > 0
		}
		return a.ProductID < b.ProductID
	})
	if len(rep.TopProducts) > TopN {
		rep.TopProducts = rep.TopProducts[:TopN]
	}
	return rep, nil
}

// =============================================================================
// PROFIT AND LOSS
// =============================================================================

type ProfitLossReport struct {
	TotalRevenue decimal.Decimal `json:"totalRevenue"`
	TotalCost    decimal.Decimal `json:"totalCost"`
	GrossProfit  decimal.Decimal `json:"grossProfit"`
	ProfitMargin decimal.Decimal `json:"profitMargin"` // percent of revenue
	Period       Period          `json:"period"`
}

// ProfitLoss values sold units at the product's current cost price.
// Lines whose product no longer exists count at zero cost.
func (r *Reporter) ProfitLoss(ctx context.Context, shopID string, p Period) (ProfitLossReport, error) {
	if err := p.validate(); err != nil {
		return ProfitLossReport{}, err
	}

	var (
		sales    []ledger.Sale
		products []ledger.Product
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sales, err = r.salesIn(gctx, shopID, p)
		return err
	})
	g.Go(func() (err error) {
		products, err = ledger.LoadAll[ledger.Product](gctx, r.store, ledger.Query{ShopID: shopID})
		return err
	})
	if err := g.Wait(); err != nil {
		return ProfitLossReport{}, err
	}

	cost := make(map[string]decimal.Decimal, len(products))
	for _, prod := range products {
		cost[prod.ID] = prod.CostPrice
	}

	rep := ProfitLossReport{TotalRevenue: decimal.Zero, TotalCost: decimal.Zero, Period: p}
	for _, s := range sales {
		rep.TotalRevenue = rep.TotalRevenue.Add(s.Total)
		for _, item := range s.Items {
			rep.TotalCost = rep.TotalCost.Add(cost[item.ProductID].Mul(decimal.NewFromInt(item.Quantity)))
		}
	}
	rep.GrossProfit = rep.TotalRevenue.Sub(rep.TotalCost)
	rep.ProfitMargin = decimal.Zero
	if rep.TotalRevenue.IsPositive() {
		rep.ProfitMargin = rep.GrossProfit.Div(rep.TotalRevenue).Mul(hundred).Round(2)
	}
	return rep, nil
}

// =============================================================================
// STOCK
// =============================================================================

type LowStockItem struct {
	ProductID    string `json:"productId"`
	ProductName  string `json:"productName"`
	CurrentStock int64  `json:"currentStock"`
	Threshold    int64  `json:"threshold"`
}

type OutOfStockItem struct {
	ProductID   string `json:"productId"`
	ProductName string `json:"productName"`
}

type StockReport struct {
	TotalProducts      int              `json:"totalProducts"`
	TotalStockValue    decimal.Decimal  `json:"totalStockValue"`
	LowStockProducts   []LowStockItem   `json:"lowStockProducts"`
	OutOfStockProducts []OutOfStockItem `json:"outOfStockProducts"`
}

// Stock lists low-stock products that still have units separately from
// those that are out of stock.
func (r *Reporter) Stock(ctx context.Context, shopID string) (StockReport, error) {
	products, err := r.liveProducts(ctx, shopID)
	if err != nil {
		return StockReport{}, err
	}

	rep := StockReport{
		TotalProducts:      len(products),
		TotalStockValue:    decimal.Zero,
		LowStockProducts:   []LowStockItem{},
		OutOfStockProducts: []OutOfStockItem{},
	}
	for _, p := range products {
		rep.TotalStockValue = rep.TotalStockValue.Add(p.CostPrice.Mul(decimal.NewFromInt(p.StockQuantity)))
		switch {
		case p.StockQuantity == 0:
			rep.OutOfStockProducts = append(rep.OutOfStockProducts, OutOfStockItem{ProductID: p.ID, ProductName: p.Name})
		case p.IsLowStock():
			rep.LowStockProducts = append(rep.LowStockProducts, LowStockItem{
				ProductID:    p.ID,
				ProductName:  p.Name,
				CurrentStock: p.StockQuantity,
				Threshold:    p.LowStockThreshold,
			})
		}
	}
	return rep, nil
}

// =============================================================================
// UDHAR
// =============================================================================

type Debtor struct {
	CustomerID   string          `json:"customerId"`
	CustomerName string          `json:"customerName"`
	Outstanding  decimal.Decimal `json:"outstanding"`
}

type UdharReport struct {
	TotalCustomers   int             `json:"totalCustomers"`
	TotalOutstanding decimal.Decimal `json:"totalOutstanding"`
	TopDebtors       []Debtor        `json:"topDebtors"`
}

func (r *Reporter) Udhar(ctx context.Context, shopID string) (UdharReport, error) {
	customers, err := r.liveCustomers(ctx, shopID)
	if err != nil {
		return UdharReport{}, err
	}

	rep := UdharReport{TotalOutstanding: decimal.Zero, TopDebtors: []Debtor{}}
	for _, c := range customers {
		if !c.TotalDue.IsPositive() {
			continue
		}
		rep.TotalCustomers++
		rep.TotalOutstanding = rep.TotalOutstanding.Add(c.TotalDue)
		rep.TopDebtors = append(rep.TopDebtors, Debtor{CustomerID: c.ID, CustomerName: c.Name, Outstanding: c.TotalDue})
	}
	sort.Slice(rep.TopDebtors, func(i, j int) bool {
		a, b := rep.TopDebtors[i], rep.TopDebtors[j]
		if c := a.Outstanding.Cmp(b.Outstanding); c != 0 {
			return c > 0
		}
		return a.CustomerID < b.CustomerID
	})
	if len(rep.TopDebtors) > TopN {
		rep.TopDebtors = rep.TopDebtors[:TopN]
	}
	return rep, nil
}

// =============================================================================
// DASHBOARD
// =============================================================================

type Dashboard struct {
	TodaySales    int             `json:"todaySales"`
	TodayRevenue  decimal.Decimal `json:"todayRevenue"`
	LowStockCount int             `json:"lowStockCount"`
	TotalUdhar    decimal.Decimal `json:"totalUdhar"`
}

func (r *Reporter) Dashboard(ctx context.Context, shopID string) (Dashboard, error) {
	now := r.now().In(r.loc)
	start := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, r.loc)
	today := Period{StartDate: start, EndDate: start.AddDate(0, 0, 1).Add(-time.Nanosecond)}

	var (
		sales     []ledger.Sale
		products  []ledger.Product
		customers []ledger.Customer
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() (err error) {
		sales, err = r.salesIn(gctx, shopID, today)
		return err
	})
	g.Go(func() (err error) {
		products, err = r.liveProducts(gctx, shopID)
		return err
	})
	g.Go(func() (err error) {
		customers, err = r.liveCustomers(gctx, shopID)
		return err
	})
	if err := g.Wait(); err != nil {
		return Dashboard{}, err
	}

	d := Dashboard{TodaySales: len(sales), TodayRevenue: decimal.Zero, TotalUdhar: decimal.Zero}
	for _, s := range sales {
		d.TodayRevenue = d.TodayRevenue.Add(s.Total)
	}
	for _, p := range products {
		if p.IsLowStock() {
			d.LowStockCount++
		}
	}
	for _, c := range customers {
		d.TotalUdhar = d.TotalUdhar.Add(c.TotalDue)
	}
	return d, nil
}
