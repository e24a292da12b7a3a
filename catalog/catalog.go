/*
Package catalog manages shops and the master data sales refer to.

PURPOSE:
  Products, customers and suppliers are created, edited and soft-deleted
  here. Balances are not: stock moves through the stock ledger (except an
  explicit admin stock edit), and a customer's due moves only through the
  credit ledger.

EDITS:
  Updates take a patch struct of pointer fields. A nil field is left as
  is. Fields that are not in the patch (id, shopId, createdAt, totalDue,
  ...) cannot be changed by an edit at all.

DELETES:
  Nothing is removed. Deleted entities keep their history and disappear
  from Get and List.

SEE ALSO:
  - sales/movements.go: stock and udhar postings
  - api/catalog.go: HTTP endpoints
*/
package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smartpasal/pos-ledger/ledger"
	"github.com/smartpasal/pos-ledger/logging"
)

const (
	DefaultUnit              = "pcs"
	DefaultLowStockThreshold = 5
	DefaultCurrency          = "NPR"

	// maxAttempts bounds re-reads when an edit races another writer.
	maxAttempts = 3
)

type Service struct {
	store  ledger.Store
	logger *logging.Logger
	now    func() time.Time
}

type Option func(*Service)

func WithLogger(l *logging.Logger) Option    { return func(s *Service) { s.logger = l } }
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func New(store ledger.Store, opts ...Option) *Service {
	s := &Service{
		store:  store,
		logger: logging.Nop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithComponent("catalog")
	return s
}

func (s *Service) clock() time.Time { return s.now().UTC() }

// save runs a read-modify-write until it commits or fails for a reason
// other than a version conflict.
func (s *Service) save(ctx context.Context, attempt func() error) error {
	var err error
	for n := 0; n < maxAttempts; n++ {
		if err = attempt(); !ledger.IsRetryable(err) {
			return err
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return err
}

func (s *Service) create(ctx context.Context, e ledger.Entity) error {
	w, err := ledger.Create(e)
	if err != nil {
		return err
	}
	return s.store.Commit(ctx, []ledger.Write{w})
}

// update commits e at readVersion together with any new entities.
func (s *Service) update(ctx context.Context, e ledger.Entity, readVersion int64, created ...ledger.Entity) error {
	w, err := ledger.Update(e, readVersion)
	if err != nil {
		return err
	}
	writes := []ledger.Write{w}
	for _, c := range created {
		cw, err := ledger.Create(c)
		if err != nil {
			return err
		}
		writes = append(writes, cw)
	}
	return s.store.Commit(ctx, writes)
}

// =============================================================================
// FIELD HELPERS
// =============================================================================

func newID() string { return uuid.NewString() }

func required(field, value string) error {
	if strings.TrimSpace(value) == "" {
		return ledger.Invalid(field, "is required")
	}
	return nil
}

func nonNegative(field string, d decimal.Decimal) error {
	if d.IsNegative() {
		return ledger.Invalid(field, "must not be negative")
	}
	return nil
}

func setString(dst *string, src *string) {
	if src != nil {
		*dst = strings.TrimSpace(*src)
	}
}
