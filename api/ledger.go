package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/smartpasal/pos-ledger/ledger"
	"github.com/smartpasal/pos-ledger/sales"
)

// =============================================================================
// SALE HANDLERS
// =============================================================================

// CreateSale records a sale with its stock and udhar movements.
// POST /api/shops/{shopId}/sales
func (h *Handler) CreateSale(w http.ResponseWriter, r *http.Request) {
	var req CreateSaleRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	sale, err := h.Sales.CreateSale(r.Context(), req.command(chi.URLParam(r, "shopId"), actor(r.Context())))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, sale)
}

// ListSales returns the shop's sales, newest first.
// GET /api/shops/{shopId}/sales?startDate=&endDate=&customerId=&paymentMode=
func (h *Handler) ListSales(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := sales.SaleFilter{
		CustomerID:  q.Get("customerId"),
		PaymentMode: ledger.PaymentMode(q.Get("paymentMode")),
	}
	if filter.PaymentMode != "" && !filter.PaymentMode.Valid() {
		h.writeError(w, r, ledger.Invalid("paymentMode", "must be one of cash, udhar, esewa, khalti"))
		return
	}
	var err error
	if filter.Start, err = optionalTime(q.Get("startDate"), "startDate"); err != nil {
		h.writeError(w, r, err)
		return
	}
	if filter.End, err = optionalTime(q.Get("endDate"), "endDate"); err != nil {
		h.writeError(w, r, err)
		return
	}

	list, err := h.Sales.ListSales(r.Context(), chi.URLParam(r, "shopId"), filter)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, list)
}

// GetSale returns one sale.
// GET /api/sales/{saleId}
func (h *Handler) GetSale(w http.ResponseWriter, r *http.Request) {
	sale, err := h.Sales.GetSale(r.Context(), chi.URLParam(r, "saleId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.authorizeShop(r.Context(), sale.ShopID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sale)
}

// UpdateSalePayment adds a later payment to a sale.
// PATCH /api/sales/{saleId}/payment
func (h *Handler) UpdateSalePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentUpdateRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	saleID := chi.URLParam(r, "saleId")
	existing, err := h.Sales.GetSale(r.Context(), saleID)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.authorizeShop(r.Context(), existing.ShopID); err != nil {
		h.writeError(w, r, err)
		return
	}

	sale, err := h.Sales.UpdateSalePayment(r.Context(), saleID, req.AmountPaid)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, sale)
}

// =============================================================================
// STOCK HANDLERS
// =============================================================================

// stockMovementDTO is the response of a stock movement.
type stockMovementDTO struct {
	Product     ledger.Product          `json:"product"`
	Transaction ledger.StockTransaction `json:"transaction"`
}

// RecordStockMovement applies an in, out or adjustment movement.
// POST /api/shops/{shopId}/stock
func (h *Handler) RecordStockMovement(w http.ResponseWriter, r *http.Request) {
	var req StockMovementRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	p, tx, err := h.Sales.RecordStockMovement(r.Context(), chi.URLParam(r, "shopId"), req.ProductID, req.movement(actor(r.Context())))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, stockMovementDTO{Product: p, Transaction: tx})
}

// ListStockTransactions returns the shop's stock audit entries.
// GET /api/shops/{shopId}/stock?productId=&limit=
func (h *Handler) ListStockTransactions(w http.ResponseWriter, r *http.Request) {
	limit := sales.DefaultTransactionLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			h.writeError(w, r, ledger.Invalid("limit", "must be a positive integer"))
			return
		}
		limit = n
	}

	txs, err := h.Sales.ListStockTransactions(r.Context(), chi.URLParam(r, "shopId"), r.URL.Query().Get("productId"), limit)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, txs)
}

// ProductStockHistory returns a product with its stock audit trail.
// GET /api/products/{productId}/stock-history
func (h *Handler) ProductStockHistory(w http.ResponseWriter, r *http.Request) {
	history, err := h.Sales.ProductStockHistory(r.Context(), chi.URLParam(r, "productId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.authorizeShop(r.Context(), history.Product.ShopID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, history)
}

// =============================================================================
// UDHAR HANDLERS
// =============================================================================

type udharMovementDTO struct {
	Customer    ledger.Customer         `json:"customer"`
	Transaction ledger.UdharTransaction `json:"transaction"`
}

// RecordUdhar charges a customer or takes a payment from them.
// POST /api/shops/{shopId}/udhar
func (h *Handler) RecordUdhar(w http.ResponseWriter, r *http.Request) {
	var req UdharRequest
	if err := decodeJSON(r, &req); err != nil {
		h.writeError(w, r, err)
		return
	}

	c, tx, err := h.Sales.RecordCreditMovement(r.Context(), chi.URLParam(r, "shopId"), req.CustomerID, req.movement(actor(r.Context())))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusCreated, udharMovementDTO{Customer: c, Transaction: tx})
}

// ListUdharTransactions returns the shop's udhar entries, newest first.
// GET /api/shops/{shopId}/udhar?customerId=
func (h *Handler) ListUdharTransactions(w http.ResponseWriter, r *http.Request) {
	txs, err := h.Sales.ListUdharTransactions(r.Context(), chi.URLParam(r, "shopId"), r.URL.Query().Get("customerId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, txs)
}

// CustomerUdhar returns a customer's udhar history and totals.
// GET /api/customers/{customerId}/udhar
func (h *Handler) CustomerUdhar(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Sales.CustomerUdharSummary(r.Context(), chi.URLParam(r, "customerId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	if err := h.authorizeShop(r.Context(), summary.Customer.ShopID); err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, summary)
}

// =============================================================================
// QUERY PARSING
// =============================================================================

// parseTime accepts RFC 3339, a plain date (YYYY-MM-DD, UTC midnight) or
// epoch milliseconds.
func parseTime(v, field string) (time.Time, error) {
	t, ok := time.Time{}, false
	if parsed, err := time.Parse(time.RFC3339Nano, v); err == nil {
		t, ok = parsed, true
	} else if parsed, err := time.Parse(time.DateOnly, v); err == nil {
		t, ok = parsed, true
	} else if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		t, ok = time.UnixMilli(ms).UTC(), true
	}
	if !ok {
		return time.Time{}, ledger.Invalid(field, "must be an RFC 3339 time, a date or epoch milliseconds")
	}
	if !ledger.CursorInRange(t) {
		return time.Time{}, ledger.Invalid(field, "is out of range")
	}
	return t, nil
}

func optionalTime(v, field string) (*time.Time, error) {
	if v == "" {
		return nil, nil
	}
	t, err := parseTime(v, field)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
