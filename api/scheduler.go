/*
scheduler.go - Periodic inventory monitor

PURPOSE:
  Refreshes per-shop gauges that no single request updates: how many
  products sit at or under their low-stock threshold and how much udhar
  is outstanding. Alerting on those lives in Prometheus, not here.

DESIGN:
  - Runs a background goroutine with a configurable check interval
  - Scans every shop and reads the same figures as the dashboard
  - A failing shop is logged and skipped; the scan goes on
  - Read-only: never writes to the ledger store

CONFIGURATION:
  - CheckInterval: How often to scan (default: 5 minutes)
  - Enabled: Whether the monitor runs (default: true)

USAGE:
  monitor := NewInventoryMonitor(handler)
  monitor.Start()
  // ... later
  monitor.Stop()

SEE ALSO:
  - report/report.go: Dashboard
  - metrics/metrics.go: ShopInventory
*/
package api

import (
	"context"
	"sync"
	"time"

	"github.com/smartpasal/pos-ledger/logging"
)

// InventoryMonitor periodically publishes per-shop inventory gauges.
type InventoryMonitor struct {
	Handler       *Handler
	CheckInterval time.Duration
	Enabled       bool

	logger *logging.Logger
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup
	mu     sync.Mutex
}

func NewInventoryMonitor(h *Handler) *InventoryMonitor {
	return &InventoryMonitor{
		Handler:       h,
		CheckInterval: 5 * time.Minute,
		Enabled:       true,
		logger:        h.logger.WithComponent("inventory-monitor"),
	}
}

// Start begins the monitor. The first scan runs immediately.
func (m *InventoryMonitor) Start() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.Enabled {
		m.logger.Info("Inventory monitor disabled, not starting")
		return
	}
	if m.ticker != nil || m.CheckInterval <= 0 {
		return
	}

	m.ticker = time.NewTicker(m.CheckInterval)
	m.stop = make(chan struct{})
	m.wg.Add(1)
	go m.run()

	m.logger.Info("Inventory monitor started", "interval", m.CheckInterval.String())
}

// Stop stops the monitor and waits for a running scan to finish.
func (m *InventoryMonitor) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.ticker != nil {
		m.ticker.Stop()
		close(m.stop)
		m.wg.Wait()
		m.ticker = nil
		m.logger.Info("Inventory monitor stopped")
	}
}

func (m *InventoryMonitor) run() {
	defer m.wg.Done()

	m.RunNow()
	for {
		select {
		case <-m.ticker.C:
			m.RunNow()
		case <-m.stop:
			return
		}
	}
}

// RunNow scans all shops once and returns how many were updated.
func (m *InventoryMonitor) RunNow() int {
	timeout := m.CheckInterval
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	shops, err := m.Handler.Catalog.ListShops(ctx)
	if err != nil {
		m.logger.WithError(err).Error("Listing shops failed")
		return 0
	}

	updated := 0
	for _, shop := range shops {
		d, err := m.Handler.Reports.Dashboard(ctx, shop.ID)
		if err != nil {
			m.logger.WithShop(shop.ID).WithError(err).Warn("Inventory scan failed")
			continue
		}
		outstanding, _ := d.TotalUdhar.Float64()
		m.Handler.metrics.ShopInventory(shop.ID, d.LowStockCount, outstanding)
		updated++
	}

	m.logger.Debug("Inventory scan complete", "shops", len(shops), "updated", updated)
	return updated
}
