package reconcile_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartpasal/pos-ledger/ledger"
	"github.com/smartpasal/pos-ledger/ledger/store"
	"github.com/smartpasal/pos-ledger/reconcile"
)

var t0 = time.Date(2025, time.March, 1, 9, 0, 0, 0, time.UTC)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func raw(t *testing.T, v any) json.RawMessage {
	t.Helper()
	b, err := json.Marshal(v)
	require.NoError(t, err)
	return b
}

func loadProduct(t *testing.T, s ledger.Store, id string) ledger.Product {
	t.Helper()
	p, err := ledger.Load[ledger.Product](context.Background(), s, id)
	require.NoError(t, err)
	return p
}

type countingRecorder struct{ merged map[string]int }

func (c *countingRecorder) EntitiesMerged(kind string, n int) { c.merged[kind] += n }

// =============================================================================
// PUSH
// =============================================================================

func TestPush_ReplayIsNoOp(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r := reconcile.New(s, reconcile.WithClock(fixedClock(t0.Add(time.Hour))))

	payload := reconcile.Payload{
		Products: []json.RawMessage{raw(t, map[string]any{
			"id": "p1", "name": "Noodles", "stockQuantity": 12, "sellingPrice": 25,
			"updatedAt": t0.Format(time.RFC3339),
		})},
		StockTransactions: []json.RawMessage{raw(t, map[string]any{
			"id": "st1", "productId": "p1", "type": "in", "quantity": 12,
			"previousStock": 0, "newStock": 12, "createdAt": t0.Format(time.RFC3339),
		})},
	}

	res, err := r.PushUpstream(ctx, "shop1", payload)
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"products": 1, "stockTransactions": 1}, res.Received)

	first, err := s.Get(ctx, ledger.KindProducts, "p1")
	require.NoError(t, err)

	_, err = r.PushUpstream(ctx, "shop1", payload)
	require.NoError(t, err)

	second, err := s.Get(ctx, ledger.KindProducts, "p1")
	require.NoError(t, err)
	assert.Equal(t, first.Version, second.Version)
	assert.JSONEq(t, string(first.Data), string(second.Data))
	assert.Equal(t, 1, s.Len(ledger.KindStockTransactions))

	p := loadProduct(t, s, "p1")
	assert.Equal(t, int64(12), p.StockQuantity)
	require.NotNil(t, p.SyncedAt)
	assert.True(t, p.SyncedAt.Equal(t0.Add(time.Hour)))
}

func TestPush_LastWriteWinsRegardlessOfOrder(t *testing.T) {
	newer := map[string]any{"id": "p1", "name": "New name", "updatedAt": t0.Add(2 * time.Minute).Format(time.RFC3339)}
	older := map[string]any{"id": "p1", "name": "Old name", "updatedAt": t0.Add(time.Minute).Format(time.RFC3339)}

	for name, order := range map[string][]map[string]any{
		"newer first": {newer, older},
		"older first": {older, newer},
	} {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			s := store.NewMemory()
			r := reconcile.New(s, reconcile.WithClock(fixedClock(t0.Add(time.Hour))))

			for _, e := range order {
				_, err := r.PushUpstream(ctx, "shop1", reconcile.Payload{Products: []json.RawMessage{raw(t, e)}})
				require.NoError(t, err)
			}
			p := loadProduct(t, s, "p1")
			assert.Equal(t, "New name", p.Name)
			assert.True(t, p.UpdatedAt.Equal(t0.Add(2*time.Minute)))
		})
	}
}

func TestPush_FarFutureUploadCannotPinDocument(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r := reconcile.New(s, reconcile.WithClock(fixedClock(t0.Add(time.Hour))))

	_, err := r.PushUpstream(ctx, "shop1", reconcile.Payload{Products: []json.RawMessage{raw(t, map[string]any{
		"id": "p1", "name": "future", "stockQuantity": 9, "updatedAt": "2300-01-01T00:00:00Z",
	})}})
	require.ErrorIs(t, err, ledger.ErrValidation)
	assert.Contains(t, err.Error(), "updatedAt")
	assert.Equal(t, 0, s.Len(ledger.KindProducts))

	_, err = r.PushUpstream(ctx, "shop1", reconcile.Payload{Products: []json.RawMessage{raw(t, map[string]any{
		"id": "p1", "name": "current", "stockQuantity": 1, "updatedAt": t0.Format(time.RFC3339),
	})}})
	require.NoError(t, err)
	p := loadProduct(t, s, "p1")
	assert.Equal(t, "current", p.Name)
	assert.True(t, p.UpdatedAt.Equal(t0))
}

func TestPush_MergeKeepsFieldsNotSent(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r := reconcile.New(s, reconcile.WithClock(fixedClock(t0.Add(time.Hour))))

	_, err := r.PushUpstream(ctx, "shop1", reconcile.Payload{Products: []json.RawMessage{raw(t, map[string]any{
		"id": "p1", "name": "Rice", "unit": "kg", "stockQuantity": 40, "updatedAt": t0.Format(time.RFC3339),
	})}})
	require.NoError(t, err)

	_, err = r.PushUpstream(ctx, "shop1", reconcile.Payload{Products: []json.RawMessage{raw(t, map[string]any{
		"id": "p1", "stockQuantity": 35, "updatedAt": t0.Add(time.Minute).UnixMilli(),
	})}})
	require.NoError(t, err)

	p := loadProduct(t, s, "p1")
	assert.Equal(t, "Rice", p.Name)
	assert.Equal(t, "kg", p.Unit)
	assert.Equal(t, int64(35), p.StockQuantity)
	assert.Equal(t, int64(2), p.Version)
}

func TestPush_ForcesShopAndDropsUnknownFields(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r := reconcile.New(s, reconcile.WithClock(fixedClock(t0)))

	_, err := r.PushUpstream(ctx, "shop1", reconcile.Payload{Customers: []json.RawMessage{raw(t, map[string]any{
		"id": "c1", "shopId": "shop2", "name": "Hari", "totalDue": "150",
		"syncedAt": "2020-01-01T00:00:00Z", "favouriteColour": "blue",
	})}})
	require.NoError(t, err)

	doc, err := s.Get(ctx, ledger.KindCustomers, "c1")
	require.NoError(t, err)
	assert.Equal(t, "shop1", doc.ShopID)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(doc.Data, &fields))
	assert.Equal(t, "shop1", fields["shopId"])
	assert.NotContains(t, fields, "favouriteColour")
	assert.NotContains(t, fields, "syncedAt")
	assert.Contains(t, fields, "updatedAt", "missing cursor is stamped with the sync time")
	require.NotNil(t, doc.SyncedAt)
	assert.True(t, doc.SyncedAt.Equal(t0))
}

func TestPush_RejectsBadEntities(t *testing.T) {
	tests := []struct {
		name    string
		payload reconcile.Payload
	}{
		{"missing id", reconcile.Payload{Products: []json.RawMessage{json.RawMessage(`{"name":"x"}`)}}},
		{"blank id", reconcile.Payload{Sales: []json.RawMessage{json.RawMessage(`{"id":"  "}`)}}},
		{"not an object", reconcile.Payload{Suppliers: []json.RawMessage{json.RawMessage(`[1,2]`)}}},
		{"wrong field type", reconcile.Payload{Products: []json.RawMessage{json.RawMessage(`{"id":"p1","stockQuantity":"many"}`)}}},
		{"bad timestamp", reconcile.Payload{Customers: []json.RawMessage{json.RawMessage(`{"id":"c1","updatedAt":"yesterday"}`)}}},
		{"timestamp past 2262", reconcile.Payload{Products: []json.RawMessage{json.RawMessage(`{"id":"p1","updatedAt":"2300-01-01T00:00:00Z"}`)}}},
		{"epoch ms before 1677", reconcile.Payload{Customers: []json.RawMessage{json.RawMessage(`{"id":"c1","updatedAt":-9300000000000}`)}}},
		{"non-cursor timestamp out of range", reconcile.Payload{Products: []json.RawMessage{json.RawMessage(`{"id":"p1","createdAt":"9999-12-31T00:00:00Z"}`)}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := store.NewMemory()
			r := reconcile.New(s)
			_, err := r.PushUpstream(context.Background(), "shop1", tt.payload)
			assert.ErrorIs(t, err, ledger.ErrValidation)
		})
	}
}

func TestPush_BadEntityRollsBackWholePayload(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r := reconcile.New(s)

	_, err := r.PushUpstream(ctx, "shop1", reconcile.Payload{
		Products:  []json.RawMessage{json.RawMessage(`{"id":"p1","name":"ok"}`)},
		Customers: []json.RawMessage{json.RawMessage(`{"name":"no id"}`)},
	})
	require.Error(t, err)
	assert.Equal(t, 0, s.Len(ledger.KindProducts))
}

func TestPush_CannotClaimAnotherShopsDocument(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r := reconcile.New(s, reconcile.WithClock(fixedClock(t0)))

	_, err := r.PushUpstream(ctx, "shop2", reconcile.Payload{Products: []json.RawMessage{raw(t, map[string]any{"id": "p1", "name": "Theirs"})}})
	require.NoError(t, err)

	_, err = r.PushUpstream(ctx, "shop1", reconcile.Payload{Products: []json.RawMessage{raw(t, map[string]any{"id": "p1", "name": "Mine"})}})
	assert.ErrorIs(t, err, ledger.ErrValidation)

	doc, err := s.Get(ctx, ledger.KindProducts, "p1")
	require.NoError(t, err)
	assert.Equal(t, "shop2", doc.ShopID)
}

func TestPush_RecordsMetricsPerKind(t *testing.T) {
	rec := &countingRecorder{merged: map[string]int{}}
	r := reconcile.New(store.NewMemory(), reconcile.WithRecorder(rec))

	_, err := r.PushUpstream(context.Background(), "shop1", reconcile.Payload{
		Sales: []json.RawMessage{json.RawMessage(`{"id":"s1"}`), json.RawMessage(`{"id":"s2"}`)},
	})
	require.NoError(t, err)
	assert.Equal(t, map[string]int{"sales": 2}, rec.merged)
}

// =============================================================================
// PULL
// =============================================================================

func seed(t *testing.T, s ledger.Store, entities ...ledger.Entity) {
	t.Helper()
	writes := make([]ledger.Write, 0, len(entities))
	for _, e := range entities {
		w, err := ledger.Create(e)
		require.NoError(t, err)
		writes = append(writes, w)
	}
	require.NoError(t, s.Commit(context.Background(), writes))
}

func TestPull_ReturnsChangesAfterCursor(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	seed(t, s,
		ledger.Product{ID: "old", ShopID: "shop1", Name: "Old", UpdatedAt: t0},
		ledger.Product{ID: "new", ShopID: "shop1", Name: "New", UpdatedAt: t0.Add(2 * time.Hour)},
		ledger.Product{ID: "other", ShopID: "shop2", Name: "Other", UpdatedAt: t0.Add(2 * time.Hour)},
		ledger.StockTransaction{ID: "st-old", ShopID: "shop1", ProductID: "old", Type: ledger.StockIn, Quantity: 1, CreatedAt: t0},
		ledger.StockTransaction{ID: "st-new", ShopID: "shop1", ProductID: "new", Type: ledger.StockIn, Quantity: 1, CreatedAt: t0.Add(3 * time.Hour)},
		ledger.UdharTransaction{ID: "u1", ShopID: "shop1", CustomerID: "c1", Type: ledger.CreditCharge, CreatedAt: t0.Add(30 * time.Minute)},
	)

	now := t0.Add(4 * time.Hour)
	r := reconcile.New(s, reconcile.WithClock(fixedClock(now)))

	snap, err := r.PullDownstream(ctx, "shop1", t0.Add(time.Hour))
	require.NoError(t, err)
	assert.True(t, snap.LastSyncTimestamp.Equal(now))

	require.Len(t, snap.Products, 1)
	assert.Contains(t, string(snap.Products[0]), `"id":"new"`)
	require.Len(t, snap.StockTransactions, 1)
	assert.Contains(t, string(snap.StockTransactions[0]), `"id":"st-new"`)
	assert.Empty(t, snap.UdharTransactions)
	assert.Empty(t, snap.Sales)

	full, err := r.PullDownstream(ctx, "shop1", time.Time{})
	require.NoError(t, err)
	assert.Len(t, full.Products, 2)
	assert.Len(t, full.StockTransactions, 2)
	assert.Len(t, full.UdharTransactions, 1)
}

func TestPull_IncludesSyncedAtOfMergedDocuments(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r := reconcile.New(s, reconcile.WithClock(fixedClock(t0)))

	_, err := r.PushUpstream(ctx, "shop1", reconcile.Payload{Suppliers: []json.RawMessage{json.RawMessage(`{"id":"sup1","name":"Bhatbhateni"}`)}})
	require.NoError(t, err)

	snap, err := r.PullDownstream(ctx, "shop1", time.Time{})
	require.NoError(t, err)
	require.Len(t, snap.Suppliers, 1)

	var sup ledger.Supplier
	require.NoError(t, json.Unmarshal(snap.Suppliers[0], &sup))
	assert.Equal(t, "Bhatbhateni", sup.Name)
	require.NotNil(t, sup.SyncedAt)
	assert.True(t, sup.SyncedAt.Equal(t0))
}

func TestLatestTimestamp(t *testing.T) {
	ctx := context.Background()
	s := store.NewMemory()
	r := reconcile.New(s)

	latest, err := r.LatestTimestamp(ctx, "shop1")
	require.NoError(t, err)
	assert.True(t, latest.IsZero())

	seed(t, s,
		ledger.Product{ID: "p1", ShopID: "shop1", UpdatedAt: t0},
		ledger.Customer{ID: "c1", ShopID: "shop1", UpdatedAt: t0.Add(time.Hour)},
		ledger.UdharTransaction{ID: "u1", ShopID: "shop1", CustomerID: "c1", Type: ledger.CreditPayment, CreatedAt: t0.Add(5 * time.Hour)},
		ledger.Sale{ID: "s-other", ShopID: "shop2", UpdatedAt: t0.Add(9 * time.Hour)},
	)

	latest, err = r.LatestTimestamp(ctx, "shop1")
	require.NoError(t, err)
	assert.True(t, latest.Equal(t0.Add(5*time.Hour)))
}
