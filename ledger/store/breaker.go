package store

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/sony/gobreaker"

	"github.com/smartpasal/pos-ledger/ledger"
)

// =============================================================================
// BREAKER STORE - Fails fast while the backing database is down
// =============================================================================

// BreakerConfig controls when the breaker opens.
type BreakerConfig struct {
	Name                  string
	MaxRequests           uint32        // requests allowed while half-open
	Interval              time.Duration // closed-state count reset (0 = never)
	Timeout               time.Duration // open -> half-open delay
	FailureThreshold      uint32        // consecutive failures that trip
	FailureRatioThreshold float64
	MinRequestsToTrip     uint32
}

func DefaultBreakerConfig(name string) BreakerConfig {
	return BreakerConfig{
		Name:                  name,
		MaxRequests:           3,
		Interval:              time.Minute,
		Timeout:               15 * time.Second,
		FailureThreshold:      5,
		FailureRatioThreshold: 0.6,
		MinRequestsToTrip:     10,
	}
}

// BreakerStore decorates a ledger.Store with a circuit breaker.
// Only infrastructure failures count; not found, conflicts and
// validation errors pass through without affecting the breaker.
type BreakerStore struct {
	next   ledger.Store
	cb     *gobreaker.CircuitBreaker
	logger *slog.Logger
}

// NewBreakerStore wraps next. onStateChange may be nil.
func NewBreakerStore(next ledger.Store, cfg BreakerConfig, logger *slog.Logger, onStateChange func(name string, to gobreaker.State)) *BreakerStore {
	settings := gobreaker.Settings{
		Name:        cfg.Name,
		MaxRequests: cfg.MaxRequests,
		Interval:    cfg.Interval,
		Timeout:     cfg.Timeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			if counts.ConsecutiveFailures >= cfg.FailureThreshold {
				return true
			}
			if counts.Requests >= cfg.MinRequestsToTrip {
				ratio := float64(counts.TotalFailures) / float64(counts.Requests)
				return ratio >= cfg.FailureRatioThreshold
			}
			return false
		},
		IsSuccessful: isHealthy,
		OnStateChange: func(name string, from, to gobreaker.State) {
			logger.Warn("Ledger store breaker state changed",
				"name", name,
				"from", from.String(),
				"to", to.String(),
			)
			if onStateChange != nil {
				onStateChange(name, to)
			}
		},
	}
	return &BreakerStore{
		next:   next,
		cb:     gobreaker.NewCircuitBreaker(settings),
		logger: logger,
	}
}

// isHealthy reports whether err says nothing about store health.
func isHealthy(err error) bool {
	return err == nil ||
		ledger.IsNotFound(err) ||
		ledger.IsConflict(err) ||
		ledger.IsClientError(err) ||
		errors.Is(err, context.Canceled)
}

func (b *BreakerStore) State() gobreaker.State {
	return b.cb.State()
}

func (b *BreakerStore) Get(ctx context.Context, kind ledger.Kind, id string) (ledger.Document, error) {
	res, err := b.execute(func() (interface{}, error) {
		return b.next.Get(ctx, kind, id)
	})
	if err != nil {
		return ledger.Document{}, err
	}
	return res.(ledger.Document), nil
}

func (b *BreakerStore) Query(ctx context.Context, q ledger.Query) ([]ledger.Document, error) {
	res, err := b.execute(func() (interface{}, error) {
		return b.next.Query(ctx, q)
	})
	if err != nil {
		return nil, err
	}
	return res.([]ledger.Document), nil
}

func (b *BreakerStore) Commit(ctx context.Context, writes []ledger.Write) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.next.Commit(ctx, writes)
	})
	return err
}

func (b *BreakerStore) NextSequence(ctx context.Context, name string) (int64, error) {
	res, err := b.execute(func() (interface{}, error) {
		return b.next.NextSequence(ctx, name)
	})
	if err != nil {
		return 0, err
	}
	return res.(int64), nil
}

// Ping checks the wrapped store when it supports health checks.
func (b *BreakerStore) Ping(ctx context.Context) error {
	p, ok := b.next.(interface{ Ping(context.Context) error })
	if !ok {
		return nil
	}
	_, err := b.execute(func() (interface{}, error) {
		return nil, p.Ping(ctx)
	})
	return err
}

func (b *BreakerStore) Close() error {
	return b.next.Close()
}

func (b *BreakerStore) execute(fn func() (interface{}, error)) (interface{}, error) {
	res, err := b.cb.Execute(fn)
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		b.logger.Warn("Ledger store breaker rejected call", "name", b.cb.Name(), "state", b.cb.State().String())
		return nil, ledger.ErrStoreUnavailable
	}
	return res, err
}
