package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/smartpasal/pos-ledger/report"
)

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// period reads ?startDate=&endDate=. Both are required; Period validates
// the pair.
func period(r *http.Request) (report.Period, error) {
	var p report.Period
	q := r.URL.Query()
	if v := q.Get("startDate"); v != "" {
		t, err := parseTime(v, "startDate")
		if err != nil {
			return p, err
		}
		p.StartDate = t
	}
	if v := q.Get("endDate"); v != "" {
		t, err := parseTime(v, "endDate")
		if err != nil {
			return p, err
		}
		p.EndDate = t
	}
	return p, nil
}

// GET /api/shops/{shopId}/reports/sales?startDate=&endDate=
func (h *Handler) SalesReport(w http.ResponseWriter, r *http.Request) {
	p, err := period(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rep, err := h.Reports.Sales(r.Context(), chi.URLParam(r, "shopId"), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rep)
}

// GET /api/shops/{shopId}/reports/profit-loss?startDate=&endDate=
func (h *Handler) ProfitLossReport(w http.ResponseWriter, r *http.Request) {
	p, err := period(r)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	rep, err := h.Reports.ProfitLoss(r.Context(), chi.URLParam(r, "shopId"), p)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rep)
}

// GET /api/shops/{shopId}/reports/stock
func (h *Handler) StockReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Reports.Stock(r.Context(), chi.URLParam(r, "shopId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rep)
}

// GET /api/shops/{shopId}/reports/udhar
func (h *Handler) UdharReport(w http.ResponseWriter, r *http.Request) {
	rep, err := h.Reports.Udhar(r.Context(), chi.URLParam(r, "shopId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, rep)
}

// GET /api/shops/{shopId}/reports/dashboard
func (h *Handler) Dashboard(w http.ResponseWriter, r *http.Request) {
	d, err := h.Reports.Dashboard(r.Context(), chi.URLParam(r, "shopId"))
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeData(w, http.StatusOK, d)
}
