/*
store.go - Persistence interface for ledger documents

PURPOSE:
  Defines the interface between the domain logic and the database.
  Every entity is stored as a JSON document addressed by (kind, id) and
  tagged with its shop. Different implementations use SQLite, MongoDB,
  or in-memory storage.

KEY TYPES:
  Document: one stored entity with its version and cursor timestamp
  Write:    one operation inside an atomic Commit
  Query:    kind/shop/cursor filter
  Store:    the persistence contract

VERSIONS:
  Each document carries a version that starts at 1 and grows by one for
  every committed change. Update writes name the version they read; if
  it moved, the whole Commit fails with ErrConcurrentModification and
  the caller re-reads. This is how two sales of the same product never
  both spend the same unit.

ATOMIC BATCHES:
  Commit() is all-or-nothing. A sale touches the sale, each product, one
  stock transaction per line and possibly a customer and an udhar entry;
  either every write lands or none do.

MERGE WRITES:
  Sync uploads use OpMerge: top-level fields of the incoming document
  overwrite the stored ones when the incoming timestamp is not older.
  A merge that changes nothing keeps the version, so replays are no-ops.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory for testing
  - store/sqlite/sqlite.go: SQLite (default)
  - store/mongodb/mongodb.go: MongoDB

SEE ALSO:
  - sales/coordinator.go: main writer
  - reconcile/reconciler.go: merge writer and cursor reader
*/
package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"
)

// =============================================================================
// DOCUMENTS
// =============================================================================

// Document is a stored entity. UpdatedAt is the sync cursor: updatedAt
// for mutable kinds, createdAt for append-only kinds.
type Document struct {
	Kind      Kind
	ID        string
	ShopID    string
	Version   int64
	UpdatedAt time.Time
	SyncedAt  *time.Time
	Data      json.RawMessage
}

// Cursors are indexed as nanoseconds since the epoch, which bounds the
// times a document can carry.
var (
	MinCursor = time.Unix(0, math.MinInt64).UTC()
	MaxCursor = time.Unix(0, math.MaxInt64).UTC()
)

// CursorInRange reports whether t survives the nanosecond encoding.
func CursorInRange(t time.Time) bool {
	return !t.Before(MinCursor) && !t.After(MaxCursor)
}

// Entity is implemented by every stored type.
type Entity interface {
	DocumentKind() Kind
	DocumentKey() (id, shopID string)
	CursorTime() time.Time
}

func (s Shop) DocumentKind() Kind                { return KindShops }
func (s Shop) DocumentKey() (string, string)     { return s.ID, s.ID }
func (s Shop) CursorTime() time.Time             { return s.UpdatedAt }
func (p Product) DocumentKind() Kind             { return KindProducts }
func (p Product) DocumentKey() (string, string)  { return p.ID, p.ShopID }
func (p Product) CursorTime() time.Time          { return p.UpdatedAt }
func (c Customer) DocumentKind() Kind            { return KindCustomers }
func (c Customer) DocumentKey() (string, string) { return c.ID, c.ShopID }
func (c Customer) CursorTime() time.Time         { return c.UpdatedAt }
func (s Supplier) DocumentKind() Kind            { return KindSuppliers }
func (s Supplier) DocumentKey() (string, string) { return s.ID, s.ShopID }
func (s Supplier) CursorTime() time.Time         { return s.UpdatedAt }
func (s Sale) DocumentKind() Kind                { return KindSales }
func (s Sale) DocumentKey() (string, string)     { return s.ID, s.ShopID }
func (s Sale) CursorTime() time.Time             { return s.UpdatedAt }

func (t StockTransaction) DocumentKind() Kind            { return KindStockTransactions }
func (t StockTransaction) DocumentKey() (string, string) { return t.ID, t.ShopID }
func (t StockTransaction) CursorTime() time.Time         { return t.CreatedAt }
func (t UdharTransaction) DocumentKind() Kind            { return KindUdharTransactions }
func (t UdharTransaction) DocumentKey() (string, string) { return t.ID, t.ShopID }
func (t UdharTransaction) CursorTime() time.Time         { return t.CreatedAt }

func (s *Shop) setStoreFields(d Document)             { s.Version = d.Version }
func (p *Product) setStoreFields(d Document)          { p.Version, p.SyncedAt = d.Version, d.SyncedAt }
func (c *Customer) setStoreFields(d Document)         { c.Version, c.SyncedAt = d.Version, d.SyncedAt }
func (s *Supplier) setStoreFields(d Document)         { s.Version, s.SyncedAt = d.Version, d.SyncedAt }
func (s *Sale) setStoreFields(d Document)             { s.Version, s.SyncedAt = d.Version, d.SyncedAt }
func (t *StockTransaction) setStoreFields(d Document) { t.Version, t.SyncedAt = d.Version, d.SyncedAt }
func (t *UdharTransaction) setStoreFields(d Document) { t.Version, t.SyncedAt = d.Version, d.SyncedAt }

// NewDocument encodes an entity. syncedAt is a store column, not data.
func NewDocument(e Entity) (Document, error) {
	id, shopID := e.DocumentKey()
	if id == "" {
		return Document{}, Invalid("id", "is required")
	}
	data, err := json.Marshal(e)
	if err != nil {
		return Document{}, fmt.Errorf("encode %s/%s: %w", e.DocumentKind(), id, err)
	}
	data, err = stripField(data, "syncedAt")
	if err != nil {
		return Document{}, err
	}
	return Document{
		Kind:      e.DocumentKind(),
		ID:        id,
		ShopID:    shopID,
		UpdatedAt: e.CursorTime().UTC(),
		Data:      data,
	}, nil
}

// Decode unmarshals a document into T and copies the store-managed fields.
//
//	product, err := ledger.Decode[ledger.Product](doc)
func Decode[T any, PT storedEntity[T]](doc Document) (T, error) {
	var v T
	if err := json.Unmarshal(doc.Data, &v); err != nil {
		return v, fmt.Errorf("decode %s/%s: %w", doc.Kind, doc.ID, err)
	}
	PT(&v).setStoreFields(doc)
	return v, nil
}

// =============================================================================
// WRITES
// =============================================================================

type WriteOp int

const (
	OpCreate WriteOp = iota + 1 // insert; ErrAlreadyExists if present
	OpUpdate                    // replace at ExpectedVersion
	OpMerge                     // field-level upsert, newest timestamp wins
)

func (op WriteOp) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpMerge:
		return "merge"
	}
	return "unknown"
}

type Write struct {
	Op              WriteOp
	Doc             Document
	ExpectedVersion int64 // OpUpdate only
}

// Create builds an OpCreate write for e.
func Create(e Entity) (Write, error) {
	doc, err := NewDocument(e)
	if err != nil {
		return Write{}, err
	}
	return Write{Op: OpCreate, Doc: doc}, nil
}

// Update builds an OpUpdate write for e at the version it was read at.
func Update(e Entity, readVersion int64) (Write, error) {
	doc, err := NewDocument(e)
	if err != nil {
		return Write{}, err
	}
	return Write{Op: OpUpdate, Doc: doc, ExpectedVersion: readVersion}, nil
}

// =============================================================================
// QUERIES
// =============================================================================

// Query selects documents of one kind. An empty ShopID matches all shops.
// Results are ordered by UpdatedAt ascending, then ID.
type Query struct {
	Kind         Kind
	ShopID       string
	ChangedAfter *time.Time
}

// Matches applies the query filter to a document.
func (q Query) Matches(d Document) bool {
	if d.Kind != q.Kind {
		return false
	}
	if q.ShopID != "" && d.ShopID != q.ShopID {
		return false
	}
	if q.ChangedAfter != nil && !d.UpdatedAt.After(*q.ChangedAfter) {
		return false
	}
	return true
}

// =============================================================================
// STORE - Interface for document persistence
// =============================================================================

// Store handles persistence of ledger documents.
type Store interface {
	// Get returns one document or ErrNotFound.
	Get(ctx context.Context, kind Kind, id string) (Document, error)

	Query(ctx context.Context, q Query) ([]Document, error)

	// Commit applies all writes atomically. On any failure nothing is
	// written and the error names the first failing write.
	Commit(ctx context.Context, writes []Write) error

	// NextSequence increments and returns the named counter (first value 1).
	NextSequence(ctx context.Context, name string) (int64, error)

	Close() error
}

// =============================================================================
// MERGE HELPERS - shared by all Store implementations
// =============================================================================

// MergeApplies reports whether an incoming merge is new enough to apply.
// Equal timestamps favour the incoming write.
func MergeApplies(stored, incoming time.Time) bool {
	return !incoming.Before(stored)
}

// MergeData overlays the top-level fields of incoming onto stored and
// reports whether the result differs from stored.
func MergeData(stored, incoming json.RawMessage) (json.RawMessage, bool, error) {
	base := map[string]json.RawMessage{}
	if len(stored) > 0 {
		if err := json.Unmarshal(stored, &base); err != nil {
			return nil, false, fmt.Errorf("merge: stored document: %w", err)
		}
	}
	before, err := json.Marshal(base)
	if err != nil {
		return nil, false, err
	}

	var patch map[string]json.RawMessage
	if err := json.Unmarshal(incoming, &patch); err != nil {
		return nil, false, fmt.Errorf("merge: incoming document: %w", err)
	}
	for k, v := range patch {
		base[k] = v
	}

	after, err := json.Marshal(base)
	if err != nil {
		return nil, false, err
	}
	return after, !bytes.Equal(before, after), nil
}

// ApplyWrite computes the document that results from w against current
// (nil when absent). changed is false when nothing needs to be written.
// Store implementations call it under their own lock or transaction.
func ApplyWrite(current *Document, w Write) (next Document, changed bool, err error) {
	if ts := w.Doc.UpdatedAt; !ts.IsZero() && !CursorInRange(ts) {
		return Document{}, false, fmt.Errorf("%s/%s: %w", w.Doc.Kind, w.Doc.ID,
			Invalid("updatedAt", "%s is out of range", ts.Format(time.RFC3339)))
	}
	switch w.Op {
	case OpCreate:
		if current != nil {
			return Document{}, false, fmt.Errorf("%s/%s: %w", w.Doc.Kind, w.Doc.ID, ErrAlreadyExists)
		}
		next = w.Doc
		next.Version = 1
		return next, true, nil

	case OpUpdate:
		if current == nil {
			return Document{}, false, fmt.Errorf("%s/%s: %w", w.Doc.Kind, w.Doc.ID, ErrNotFound)
		}
		if current.Version != w.ExpectedVersion {
			return Document{}, false, fmt.Errorf("%s/%s at version %d, expected %d: %w",
				w.Doc.Kind, w.Doc.ID, current.Version, w.ExpectedVersion, ErrConcurrentModification)
		}
		next = w.Doc
		next.Version = current.Version + 1
		next.SyncedAt = current.SyncedAt
		return next, true, nil

	case OpMerge:
		if current == nil {
			next = w.Doc
			next.Version = 1
			return next, true, nil
		}
		if !MergeApplies(current.UpdatedAt, w.Doc.UpdatedAt) {
			return *current, false, nil
		}
		data, dataChanged, err := MergeData(current.Data, w.Doc.Data)
		if err != nil {
			return Document{}, false, err
		}
		next = *current
		next.SyncedAt = w.Doc.SyncedAt
		if !dataChanged {
			// Bookkeeping only: syncedAt moves, version does not.
			return next, true, nil
		}
		next.Data = data
		next.UpdatedAt = w.Doc.UpdatedAt
		next.Version = current.Version + 1
		return next, true, nil
	}
	return Document{}, false, fmt.Errorf("unknown write op %d", w.Op)
}

func stripField(data json.RawMessage, field string) (json.RawMessage, error) {
	var m map[string]json.RawMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if _, ok := m[field]; !ok {
		return data, nil
	}
	delete(m, field)
	return json.Marshal(m)
}
