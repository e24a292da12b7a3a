/*
handlers.go - HTTP handler context and shared helpers

PURPOSE:
  Exposes the ledger service over REST. Handlers parse and validate the
  request, call one domain operation, and write the JSON envelope.

ARCHITECTURE:
  Handler holds the domain services, all built on the same Store:
  - Sales:   sale coordinator, stock and udhar postings
  - Catalog: shops, products, customers, suppliers
  - Sync:    device upload/download
  - Reports: read-only aggregates

RESPONSE ENVELOPE:
  Success: {"success": true, "data": ...}
  Failure: {"success": false, "error": "...", "details": "..."}

ERROR HANDLING:
  Domain errors map to statuses in one place (statusFor):
  - 400: validation, insufficient stock, excess payment, bad JSON
  - 401: missing or invalid token (auth.go)
  - 403: shop not accessible to the caller
  - 404: entity not found or soft-deleted
  - 409: duplicate sale, conflicts that outlived the retries
  - 503: ledger store unavailable (circuit open)
  - 500: anything else; details are logged, not returned

SEE ALSO:
  - dto.go: request bodies
  - server.go: routes and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/smartpasal/pos-ledger/catalog"
	"github.com/smartpasal/pos-ledger/ledger"
	"github.com/smartpasal/pos-ledger/logging"
	"github.com/smartpasal/pos-ledger/metrics"
	"github.com/smartpasal/pos-ledger/reconcile"
	"github.com/smartpasal/pos-ledger/report"
	"github.com/smartpasal/pos-ledger/sales"
)

// maxBodyBytes caps request bodies. Sync uploads are the largest.
const maxBodyBytes = 8 << 20

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Deps are the collaborators NewHandler wires together.
type Deps struct {
	Store       ledger.Store
	Logger      *logging.Logger
	Metrics     *metrics.Metrics
	Sales       sales.Config
	Environment string
	Version     string
	Clock       func() time.Time
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Sales   *sales.Coordinator
	Catalog *catalog.Service
	Sync    *reconcile.Reconciler
	Reports *report.Reporter

	store       ledger.Store
	logger      *logging.Logger
	metrics     *metrics.Metrics
	environment string
	version     string
	started     time.Time
}

func NewHandler(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = logging.Nop()
	}
	if d.Metrics == nil {
		d.Metrics = metrics.New()
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}

	return &Handler{
		Sales: sales.NewCoordinator(d.Store, d.Sales,
			sales.WithLogger(d.Logger),
			sales.WithRecorder(d.Metrics),
			sales.WithClock(d.Clock),
		),
		Catalog: catalog.New(d.Store,
			catalog.WithLogger(d.Logger),
			catalog.WithClock(d.Clock),
		),
		Sync: reconcile.New(d.Store,
			reconcile.WithLogger(d.Logger),
			reconcile.WithRecorder(d.Metrics),
			reconcile.WithClock(d.Clock),
		),
		Reports: report.New(d.Store, report.WithClock(d.Clock)),

		store:       d.Store,
		logger:      d.Logger.WithComponent("api"),
		metrics:     d.Metrics,
		environment: d.Environment,
		version:     d.Version,
		started:     d.Clock(),
	}
}

// =============================================================================
// HEALTH
// =============================================================================

// pinger is implemented by stores that can check their connection.
type pinger interface {
	Ping(ctx context.Context) error
}

type HealthDTO struct {
	Status      string    `json:"status"`
	Message     string    `json:"message"`
	Environment string    `json:"environment"`
	Version     string    `json:"version"`
	Uptime      string    `json:"uptime"`
	Timestamp   time.Time `json:"timestamp"`
}

// Health reports whether the service and its store are reachable.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	dto := HealthDTO{
		Status:      "ok",
		Message:     "Smart Pasal API is running",
		Environment: h.environment,
		Version:     h.version,
		Uptime:      time.Since(h.started).Round(time.Second).String(),
		Timestamp:   time.Now().UTC(),
	}
	if p, ok := h.store.(pinger); ok {
		if err := p.Ping(r.Context()); err != nil {
			h.logger.WithContext(r.Context()).WithError(err).Warn("Health check failed")
			dto.Status, dto.Message = "degraded", "ledger store unreachable"
			writeJSON(w, http.StatusServiceUnavailable, envelope{Success: false, Data: dto, Error: dto.Message})
			return
		}
	}
	writeData(w, http.StatusOK, dto)
}

// =============================================================================
// HELPERS
// =============================================================================

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Details string `json:"details,omitempty"`
}

var errBadRequest = errors.New("bad request")

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeData(w http.ResponseWriter, status int, data any) {
	writeJSON(w, status, envelope{Success: true, Data: data})
}

func writeFailure(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, envelope{Success: false, Error: message})
}

// writeError maps a domain error to its status and writes the envelope.
func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	resp := envelope{Success: false, Error: err.Error()}

	switch {
	case status == http.StatusInternalServerError:
		h.logger.WithContext(r.Context()).WithError(err).Error("Request failed",
			"method", r.Method,
			"path", r.URL.Path,
		)
		resp.Error = "Internal server error"
	case errors.Is(err, ledger.ErrInsufficientStock):
		resp.Error, resp.Details = ledger.ErrInsufficientStock.Error(), err.Error()
	case errors.Is(err, ledger.ErrExcessPayment):
		resp.Error, resp.Details = ledger.ErrExcessPayment.Error(), err.Error()
	}
	writeJSON(w, status, resp)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, errForbidden):
		return http.StatusForbidden
	case errors.Is(err, ledger.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case ledger.IsConflict(err):
		return http.StatusConflict
	case ledger.IsClientError(err), errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// decodeJSON reads a JSON body into dst, rejecting unknown fields, then
// runs struct validation.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid request body: %v", errBadRequest, err)
	}
	return validateStruct(dst)
}
