/*
scenarios.go - Demo scenario loaders for development and demonstrations

PURPOSE:

	Provides pre-built scenarios that fill a shop with realistic data for
	demos and manual testing of the mobile client. Each scenario creates
	products, customers and suppliers through the catalog, then records
	sales and ledger movements through the sale coordinator, so every
	balance and audit entry is produced the same way production data is.

AVAILABLE SCENARIOS:

	kirana-store:  Everyday grocery shop, cash and wallet sales
	udhar-heavy:   Regular customers buying on credit, partial repayments
	low-stock:     Shelves running empty, restock entries

HOW SCENARIOS WORK:
 1. Create catalog entries in the path shop
 2. Record stock movements (opening stock, restocks)
 3. Record sales through CreateSale
 4. Optionally record udhar payments

USAGE VIA API:

	GET  /api/scenarios
	POST /api/shops/{shopId}/scenarios/load
	{"scenarioId": "udhar-heavy"}

NOTE:

	Scenarios add data; they never reset the shop. Routes are mounted in
	the development environment only.

SEE ALSO:
  - server.go: route registration
  - sales/coordinator.go: CreateSale
*/
package api

import (
	"context"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/smartpasal/pos-ledger/catalog"
	"github.com/smartpasal/pos-ledger/ledger"
	"github.com/smartpasal/pos-ledger/sales"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

var scenarios = []ScenarioDTO{
	{
		ID:          "kirana-store",
		Name:        "Kirana Store",
		Description: "Grocery catalog with cash, eSewa and Khalti sales",
	},
	{
		ID:          "udhar-heavy",
		Name:        "Udhar Heavy",
		Description: "Customers buying on credit with partial repayments",
	},
	{
		ID:          "low-stock",
		Name:        "Low Stock",
		Description: "Products at or under their threshold, one sold out",
	},
}

type scenarioLoader func(ctx context.Context, h *Handler, shopID string) error

var scenarioLoaders = map[string]scenarioLoader{
	"kirana-store": loadKiranaStoreScenario,
	"udhar-heavy":  loadUdharHeavyScenario,
	"low-stock":    loadLowStockScenario,
}

// =============================================================================
// HANDLERS
// =============================================================================

// GET /api/scenarios
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, scenarios)
}

type loadScenarioRequest struct {
	ScenarioID string `json:"scenarioId" validate:"required"`
}

// LoadScenario adds a scenario's data to the path shop.
// POST /api/shops/{shopId}/scenarios/load
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req loadScenarioRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		h.writeError(w, r, ledger.Invalid("scenarioId", "unknown scenario %q", req.ScenarioID))
		return
	}

	shopID := chi.URLParam(r, "shopId")
	if err := load(r.Context(), h, shopID); err != nil {
		h.writeError(w, r, fmt.Errorf("load scenario %s: %w", req.ScenarioID, err))
		return
	}

	h.logger.WithContext(r.Context()).WithShop(shopID).Info("Scenario loaded", "scenario", req.ScenarioID)
	writeData(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func loadKiranaStoreScenario(ctx context.Context, h *Handler, shopID string) error {
	s := &scenarioBuilder{ctx: ctx, h: h, shopID: shopID}

	rice := s.product("Jeera Masino Rice 5kg", "Grains", "720", "850", 40, "bag")
	dal := s.product("Musuro Dal 1kg", "Pulses", "150", "180", 60, "kg")
	oil := s.product("Sunflower Oil 1L", "Oil", "260", "295", 30, "ltr")
	noodles := s.product("Wai Wai Noodles", "Snacks", "18", "25", 200, "pcs")
	tea := s.product("Ilam Tea 500g", "Beverages", "320", "380", 25, "pkt")
	s.supplier("Bhatbhateni Wholesale", "9801234567")

	ram := s.customer("Ram Bahadur Thapa", "9841000001")

	s.sale("", ledger.PaymentCash, "", line(rice, 1), line(noodles, 10))
	s.sale("", ledger.PaymentEsewa, "", line(oil, 2), line(dal, 3))
	s.sale(ram.ID, ledger.PaymentKhalti, "", line(tea, 1), line(noodles, 5))
	s.sale("", ledger.PaymentCash, "", line(dal, 2))

	s.stock(noodles, ledger.StockIn, 120, "Weekly restock")
	return s.err
}

func loadUdharHeavyScenario(ctx context.Context, h *Handler, shopID string) error {
	s := &scenarioBuilder{ctx: ctx, h: h, shopID: shopID}

	rice := s.product("Sona Mansuli Rice 25kg", "Grains", "1900", "2150", 20, "bag")
	sugar := s.product("Sugar 1kg", "Essentials", "95", "110", 80, "kg")
	soap := s.product("Lifebuoy Soap", "Personal Care", "38", "45", 100, "pcs")

	hari := s.customer("Hari Prasad Koirala", "9851000002")
	sita := s.customer("Sita Kumari Shrestha", "9861000003")
	gita := s.customer("Gita Gurung", "9811000004")

	s.sale(hari.ID, ledger.PaymentUdhar, "0", line(rice, 1), line(sugar, 5))
	s.sale(sita.ID, ledger.PaymentUdhar, "500", line(rice, 1))
	s.sale(gita.ID, ledger.PaymentUdhar, "0", line(soap, 6), line(sugar, 2))
	s.sale(hari.ID, ledger.PaymentUdhar, "100", line(soap, 4))

	s.payment(hari, "1000", "cash")
	s.payment(sita, "650", "esewa")
	return s.err
}

func loadLowStockScenario(ctx context.Context, h *Handler, shopID string) error {
	s := &scenarioBuilder{ctx: ctx, h: h, shopID: shopID}

	milk := s.product("DDC Milk 500ml", "Dairy", "45", "50", 12, "pkt")
	bread := s.product("Bakery Bread", "Bakery", "55", "65", 6, "pcs")
	eggs := s.product("Eggs (tray of 30)", "Dairy", "480", "540", 3, "tray")
	s.product("Salt 1kg", "Essentials", "20", "25", 50, "kg")

	s.sale("", ledger.PaymentCash, "", line(milk, 9), line(bread, 4))
	s.sale("", ledger.PaymentCash, "", line(eggs, 3))
	s.stock(bread, ledger.StockAdjustment, 1, "Damaged loaves removed")
	return s.err
}

// =============================================================================
// BUILDER
// =============================================================================

// scenarioBuilder records the first error and turns later calls into
// no-ops, keeping loaders free of error plumbing.
type scenarioBuilder struct {
	ctx    context.Context
	h      *Handler
	shopID string
	err    error
}

type saleLine struct {
	product ledger.Product
	qty     int64
}

func line(p ledger.Product, qty int64) saleLine { return saleLine{product: p, qty: qty} }

func (s *scenarioBuilder) product(name, category, cost, price string, stock int64, unit string) ledger.Product {
	if s.err != nil {
		return ledger.Product{}
	}
	p, err := s.h.Catalog.CreateProduct(s.ctx, s.shopID, catalog.NewProduct{
		Name:          name,
		Category:      category,
		CostPrice:     decimal.RequireFromString(cost),
		SellingPrice:  decimal.RequireFromString(price),
		StockQuantity: stock,
		Unit:          unit,
	})
	s.err = err
	return p
}

func (s *scenarioBuilder) customer(name, phone string) ledger.Customer {
	if s.err != nil {
		return ledger.Customer{}
	}
	c, err := s.h.Catalog.CreateCustomer(s.ctx, s.shopID, catalog.NewCustomer{Name: name, PhoneNumber: phone})
	s.err = err
	return c
}

func (s *scenarioBuilder) supplier(name, phone string) {
	if s.err != nil {
		return
	}
	_, s.err = s.h.Catalog.CreateSupplier(s.ctx, s.shopID, catalog.NewSupplier{Name: name, PhoneNumber: phone})
}

// sale records a sale at selling price. An empty paid means paid in full.
func (s *scenarioBuilder) sale(customerID string, mode ledger.PaymentMode, paid string, lines ...saleLine) {
	if s.err != nil {
		return
	}
	items := make([]ledger.SaleItem, len(lines))
	subtotal := decimal.Zero
	for i, l := range lines {
		total := l.product.SellingPrice.Mul(decimal.NewFromInt(l.qty))
		items[i] = ledger.SaleItem{
			ProductID:   l.product.ID,
			ProductName: l.product.Name,
			Quantity:    l.qty,
			Unit:        l.product.Unit,
			Price:       l.product.SellingPrice,
			Total:       total,
		}
		subtotal = subtotal.Add(total)
	}
	amountPaid := subtotal
	if paid != "" {
		amountPaid = decimal.RequireFromString(paid)
	}

	_, s.err = s.h.Sales.CreateSale(s.ctx, sales.CreateSaleCommand{
		ShopID:       s.shopID,
		CustomerID:   customerID,
		Items:        items,
		Subtotal:     subtotal,
		Discount:     decimal.Zero,
		DiscountType: ledger.DiscountAmount,
		Total:        subtotal,
		PaymentMode:  mode,
		AmountPaid:   amountPaid,
		Actor:        "scenario",
	})
}

func (s *scenarioBuilder) stock(p ledger.Product, kind ledger.StockMovementType, qty int64, reason string) {
	if s.err != nil {
		return
	}
	_, _, s.err = s.h.Sales.RecordStockMovement(s.ctx, s.shopID, p.ID, ledger.StockMovement{
		Type:     kind,
		Quantity: qty,
		Reason:   reason,
		Actor:    "scenario",
	})
}

func (s *scenarioBuilder) payment(c ledger.Customer, amount, mode string) {
	if s.err != nil {
		return
	}
	_, _, s.err = s.h.Sales.RecordCreditMovement(s.ctx, s.shopID, c.ID, ledger.CreditMovement{
		Type:        ledger.CreditPayment,
		Amount:      decimal.RequireFromString(amount),
		Description: "Udhar repayment",
		PaymentMode: mode,
		Actor:       "scenario",
	})
}
