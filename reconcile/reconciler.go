/*
Package reconcile exchanges shop data with offline-first mobile devices.

PURPOSE:
  Devices record sales, stock and udhar while offline and later upload
  whole entities. The Reconciler merges those uploads into the ledger
  store and serves every change since a device's last sync back to it.

PUSH (device -> server):
  - Each entity must carry an id; unknown fields are dropped
  - shopId is forced to the shop of the request
  - Merge is field-level and last-write-wins on updatedAt (createdAt for
    stock and udhar transactions); equal timestamps favour the upload
  - The whole payload commits atomically; replaying it changes nothing
  - Uploaded quantities and balances are trusted as-is. The device ran
    the same ledger rules when it recorded them offline.

PULL (server -> device):
  Every document of the six sync kinds whose cursor is after the given
  timestamp, plus the server time to use as the next cursor.

SEE ALSO:
  - ledger/store.go: OpMerge semantics
  - api/sync.go: HTTP endpoints
*/
package reconcile

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"reflect"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/smartpasal/pos-ledger/ledger"
	"github.com/smartpasal/pos-ledger/logging"
)

// Recorder receives sync events for metrics.
type Recorder interface {
	EntitiesMerged(kind string, n int)
}

type nopRecorder struct{}

func (nopRecorder) EntitiesMerged(string, int) {}

type Reconciler struct {
	store   ledger.Store
	logger  *logging.Logger
	metrics Recorder
	now     func() time.Time
}

type Option func(*Reconciler)

func WithLogger(l *logging.Logger) Option    { return func(r *Reconciler) { r.logger = l } }
func WithRecorder(m Recorder) Option         { return func(r *Reconciler) { r.metrics = m } }
func WithClock(now func() time.Time) Option { return func(r *Reconciler) { r.now = now } }

func New(store ledger.Store, opts ...Option) *Reconciler {
	r := &Reconciler{
		store:   store,
		logger:  logging.Nop(),
		metrics: nopRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = r.logger.WithComponent("reconcile")
	return r
}

// =============================================================================
// PAYLOADS
// =============================================================================

// Payload is a device upload: raw entities grouped by kind.
type Payload struct {
	Products          []json.RawMessage `json:"products,omitempty"`
	Sales             []json.RawMessage `json:"sales,omitempty"`
	Customers         []json.RawMessage `json:"customers,omitempty"`
	Suppliers         []json.RawMessage `json:"suppliers,omitempty"`
	UdharTransactions []json.RawMessage `json:"udharTransactions,omitempty"`
	StockTransactions []json.RawMessage `json:"stockTransactions,omitempty"`
}

func (p Payload) byKind() map[ledger.Kind][]json.RawMessage {
	return map[ledger.Kind][]json.RawMessage{
		ledger.KindProducts:          p.Products,
		ledger.KindSales:             p.Sales,
		ledger.KindCustomers:         p.Customers,
		ledger.KindSuppliers:         p.Suppliers,
		ledger.KindUdharTransactions: p.UdharTransactions,
		ledger.KindStockTransactions: p.StockTransactions,
	}
}

// Snapshot is what a device downloads. Entities are returned with
// their stored fields plus syncedAt.
type Snapshot struct {
	Products          []json.RawMessage `json:"products"`
	Sales             []json.RawMessage `json:"sales"`
	Customers         []json.RawMessage `json:"customers"`
	Suppliers         []json.RawMessage `json:"suppliers"`
	UdharTransactions []json.RawMessage `json:"udharTransactions"`
	StockTransactions []json.RawMessage `json:"stockTransactions"`
	LastSyncTimestamp time.Time         `json:"lastSyncTimestamp"`
}

func (s *Snapshot) slot(kind ledger.Kind) *[]json.RawMessage {
	switch kind {
	case ledger.KindProducts:
		return &s.Products
	case ledger.KindSales:
		return &s.Sales
	case ledger.KindCustomers:
		return &s.Customers
	case ledger.KindSuppliers:
		return &s.Suppliers
	case ledger.KindUdharTransactions:
		return &s.UdharTransactions
	case ledger.KindStockTransactions:
		return &s.StockTransactions
	}
	return nil
}

// PushResult reports what an upload did.
type PushResult struct {
	SyncedAt time.Time      `json:"syncedAt"`
	Received map[string]int `json:"received"`
}

// =============================================================================
// PUSH
// =============================================================================

// PushUpstream merges a device upload into the store in one commit.
func (r *Reconciler) PushUpstream(ctx context.Context, shopID string, p Payload) (PushResult, error) {
	if shopID == "" {
		return PushResult{}, ledger.Invalid("shopId", "is required")
	}
	syncedAt := r.now().UTC()
	result := PushResult{SyncedAt: syncedAt, Received: map[string]int{}}

	var writes []ledger.Write
	for _, kind := range ledger.SyncKinds {
		for i, raw := range p.byKind()[kind] {
			doc, err := prepare(kind, shopID, raw, syncedAt)
			if err != nil {
				return PushResult{}, fmt.Errorf("%s[%d]: %w", kind, i, err)
			}
			if err := r.checkOwnership(ctx, doc); err != nil {
				return PushResult{}, fmt.Errorf("%s[%d]: %w", kind, i, err)
			}
			writes = append(writes, ledger.Write{Op: ledger.OpMerge, Doc: doc})
			result.Received[string(kind)]++
		}
	}

	if len(writes) > 0 {
		if err := r.store.Commit(ctx, writes); err != nil {
			return PushResult{}, err
		}
	}

	for kind, n := range result.Received {
		r.metrics.EntitiesMerged(kind, n)
	}
	r.logger.WithContext(ctx).WithOperation("push").WithShop(shopID).Info("Device upload merged",
		"entities", len(writes),
		"syncedAt", syncedAt,
	)
	return result, nil
}

// checkOwnership stops an upload from claiming another shop's document.
func (r *Reconciler) checkOwnership(ctx context.Context, doc ledger.Document) error {
	existing, err := r.store.Get(ctx, doc.Kind, doc.ID)
	if ledger.IsNotFound(err) {
		return nil
	}
	if err != nil {
		return err
	}
	if existing.ShopID != doc.ShopID {
		return ledger.Invalid("id", "%s belongs to another shop", doc.ID)
	}
	return nil
}

// prepare turns one uploaded entity into a merge document.
func prepare(kind ledger.Kind, shopID string, raw json.RawMessage, syncedAt time.Time) (ledger.Document, error) {
	var fields map[string]json.RawMessage
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&fields); err != nil || fields == nil {
		return ledger.Document{}, ledger.Invalid("", "entity must be a JSON object")
	}

	var id string
	if err := json.Unmarshal(fields["id"], &id); err != nil || strings.TrimSpace(id) == "" {
		return ledger.Document{}, ledger.Invalid("id", "is required")
	}

	allowed := allowedFields[kind]
	for name := range fields {
		if !allowed[name] {
			delete(fields, name)
		}
	}
	fields["shopId"], _ = json.Marshal(shopID)

	stamps := make(map[string]time.Time, 2)
	for _, name := range []string{"createdAt", "updatedAt"} {
		if v, ok := fields[name]; ok {
			t, err := parseTimestamp(v)
			if err != nil {
				return ledger.Document{}, ledger.Invalid(name, "%v", err)
			}
			stamps[name] = t
			fields[name], _ = json.Marshal(t)
		}
	}

	cursorField := "updatedAt"
	if kind.IsAppendOnly() {
		cursorField = "createdAt"
	}
	cursor, ok := stamps[cursorField]
	if !ok {
		cursor = syncedAt
		fields[cursorField], _ = json.Marshal(cursor)
	}

	data, err := json.Marshal(fields)
	if err != nil {
		return ledger.Document{}, err
	}
	if err := checkShape(kind, data); err != nil {
		return ledger.Document{}, err
	}

	return ledger.Document{
		Kind:      kind,
		ID:        id,
		ShopID:    shopID,
		UpdatedAt: cursor,
		SyncedAt:  &syncedAt,
		Data:      data,
	}, nil
}

// parseTimestamp accepts RFC 3339 strings and epoch milliseconds within
// the range the stores can order.
func parseTimestamp(v json.RawMessage) (time.Time, error) {
	var t time.Time
	var s string
	var ms int64
	switch {
	case json.Unmarshal(v, &s) == nil:
		parsed, err := time.Parse(time.RFC3339Nano, s)
		if err != nil {
			return time.Time{}, fmt.Errorf("invalid timestamp %q", s)
		}
		t = parsed.UTC()
	case json.Unmarshal(v, &ms) == nil:
		t = time.UnixMilli(ms).UTC()
	default:
		return time.Time{}, fmt.Errorf("timestamp must be an RFC 3339 string or epoch milliseconds")
	}
	if !ledger.CursorInRange(t) {
		return time.Time{}, fmt.Errorf("timestamp %s is outside %d-%d", t.Format(time.RFC3339), ledger.MinCursor.Year(), ledger.MaxCursor.Year())
	}
	return t, nil
}

// checkShape rejects uploads whose field types do not fit the entity,
// so stored documents always decode.
func checkShape(kind ledger.Kind, data []byte) error {
	target := reflect.New(entityTypes[kind])
	if err := json.Unmarshal(data, target.Interface()); err != nil {
		return ledger.Invalid("", "malformed %s: %v", kind, err)
	}
	return nil
}

var entityTypes = map[ledger.Kind]reflect.Type{
	ledger.KindProducts:          reflect.TypeOf(ledger.Product{}),
	ledger.KindSales:             reflect.TypeOf(ledger.Sale{}),
	ledger.KindCustomers:         reflect.TypeOf(ledger.Customer{}),
	ledger.KindSuppliers:         reflect.TypeOf(ledger.Supplier{}),
	ledger.KindUdharTransactions: reflect.TypeOf(ledger.UdharTransaction{}),
	ledger.KindStockTransactions: reflect.TypeOf(ledger.StockTransaction{}),
}

// allowedFields lists the JSON fields a device may send per kind. They
// are read from the entity struct tags; syncedAt is server-owned.
var allowedFields = func() map[ledger.Kind]map[string]bool {
	out := make(map[ledger.Kind]map[string]bool, len(entityTypes))
	for kind, typ := range entityTypes {
		fields := map[string]bool{}
		for i := 0; i < typ.NumField(); i++ {
			name, _, _ := strings.Cut(typ.Field(i).Tag.Get("json"), ",")
			if name == "" || name == "-" || name == "syncedAt" {
				continue
			}
			fields[name] = true
		}
		out[kind] = fields
	}
	return out
}()

// =============================================================================
// PULL
// =============================================================================

// PullDownstream returns every change after since. A zero since returns
// everything the shop has.
func (r *Reconciler) PullDownstream(ctx context.Context, shopID string, since time.Time) (Snapshot, error) {
	snap := Snapshot{LastSyncTimestamp: r.now().UTC()}

	var cursor *time.Time
	if !since.IsZero() {
		cursor = &since
	}

	results := make([][]json.RawMessage, len(ledger.SyncKinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range ledger.SyncKinds {
		i, kind := i, kind
		g.Go(func() error {
			docs, err := r.store.Query(gctx, ledger.Query{Kind: kind, ShopID: shopID, ChangedAfter: cursor})
			if err != nil {
				return fmt.Errorf("pull %s: %w", kind, err)
			}
			out := make([]json.RawMessage, 0, len(docs))
			for _, doc := range docs {
				body, err := withSyncedAt(doc)
				if err != nil {
					return err
				}
				out = append(out, body)
			}
			results[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Snapshot{}, err
	}

	for i, kind := range ledger.SyncKinds {
		*snap.slot(kind) = results[i]
	}
	return snap, nil
}

func withSyncedAt(doc ledger.Document) (json.RawMessage, error) {
	if doc.SyncedAt == nil {
		return doc.Data, nil
	}
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(doc.Data, &fields); err != nil {
		return nil, fmt.Errorf("decode %s/%s: %w", doc.Kind, doc.ID, err)
	}
	fields["syncedAt"], _ = json.Marshal(doc.SyncedAt.UTC())
	return json.Marshal(fields)
}

// LatestTimestamp returns the newest cursor across the shop's sync kinds,
// or the zero time when the shop has no data.
func (r *Reconciler) LatestTimestamp(ctx context.Context, shopID string) (time.Time, error) {
	latest := make([]time.Time, len(ledger.SyncKinds))
	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range ledger.SyncKinds {
		i, kind := i, kind
		g.Go(func() error {
			docs, err := r.store.Query(gctx, ledger.Query{Kind: kind, ShopID: shopID})
			if err != nil {
				return fmt.Errorf("latest %s: %w", kind, err)
			}
			if n := len(docs); n > 0 {
				latest[i] = docs[n-1].UpdatedAt
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return time.Time{}, err
	}

	var max time.Time
	for _, t := range latest {
		if t.After(max) {
			max = t
		}
	}
	return max, nil
}
