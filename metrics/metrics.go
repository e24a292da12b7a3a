// Package metrics holds the Prometheus collectors of the ledger service.
// Each Metrics owns its registry so tests can create as many as they like.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "smartpasal"

// Metrics holds all service metrics
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Ledger metrics
	SalesCreated       *prometheus.CounterVec
	StockMovements     *prometheus.CounterVec
	CreditMovements    *prometheus.CounterVec
	CommitConflicts    *prometheus.CounterVec
	SyncEntitiesMerged *prometheus.CounterVec

	// Inventory snapshots, refreshed by the inventory monitor
	LowStockProducts *prometheus.GaugeVec
	OutstandingUdhar *prometheus.GaugeVec

	// Store health
	StoreBreakerState *prometheus.GaugeVec
}

// New creates a new Metrics instance
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	registry.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{registry: registry}

	m.HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests",
		},
		[]string{"method", "route", "status"},
	)

	m.HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds",
			Buckets:   []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		},
		[]string{"method", "route"},
	)

	m.SalesCreated = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sales_created_total",
			Help:      "Sales committed, by payment mode",
		},
		[]string{"payment_mode"},
	)

	m.StockMovements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "stock_movements_total",
			Help:      "Stock ledger movements committed, by type",
		},
		[]string{"type"},
	)

	m.CreditMovements = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "credit_movements_total",
			Help:      "Credit ledger movements committed, by type",
		},
		[]string{"type"},
	)

	m.CommitConflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "commit_conflicts_total",
			Help:      "Optimistic commit conflicts, by operation",
		},
		[]string{"operation"},
	)

	m.SyncEntitiesMerged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sync_entities_merged_total",
			Help:      "Entities accepted from device uploads, by kind",
		},
		[]string{"kind"},
	)

	m.StoreBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "store_breaker_state",
			Help:      "Ledger store circuit breaker state (0 closed, 1 half-open, 2 open)",
		},
		[]string{"name"},
	)

	m.LowStockProducts = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "low_stock_products",
			Help:      "Live products at or under their low-stock threshold, by shop",
		},
		[]string{"shop"},
	)

	m.OutstandingUdhar = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "outstanding_udhar",
			Help:      "Sum of customer dues, by shop",
		},
		[]string{"shop"},
	)

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.SalesCreated,
		m.StockMovements,
		m.CreditMovements,
		m.CommitConflicts,
		m.SyncEntitiesMerged,
		m.LowStockProducts,
		m.OutstandingUdhar,
		m.StoreBreakerState,
	)

	return m
}

// Registry exposes the registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// ObserveHTTP records one finished request.
func (m *Metrics) ObserveHTTP(method, route string, status int, d time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// The methods below let the domain packages record events through a
// small interface without importing Prometheus.

func (m *Metrics) SaleCreated(paymentMode string) {
	m.SalesCreated.WithLabelValues(paymentMode).Inc()
}

func (m *Metrics) StockMoved(movementType string) {
	m.StockMovements.WithLabelValues(movementType).Inc()
}

func (m *Metrics) CreditMoved(movementType string) {
	m.CreditMovements.WithLabelValues(movementType).Inc()
}

func (m *Metrics) CommitConflict(operation string) {
	m.CommitConflicts.WithLabelValues(operation).Inc()
}

func (m *Metrics) EntitiesMerged(kind string, n int) {
	m.SyncEntitiesMerged.WithLabelValues(kind).Add(float64(n))
}

func (m *Metrics) BreakerState(name string, state int) {
	m.StoreBreakerState.WithLabelValues(name).Set(float64(state))
}

func (m *Metrics) ShopInventory(shopID string, lowStock int, outstanding float64) {
	m.LowStockProducts.WithLabelValues(shopID).Set(float64(lowStock))
	m.OutstandingUdhar.WithLabelValues(shopID).Set(outstanding)
}
