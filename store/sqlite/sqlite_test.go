package sqlite_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartpasal/pos-ledger/ledger"
	"github.com/smartpasal/pos-ledger/store/sqlite"
)

var t0 = time.Date(2025, time.February, 1, 8, 0, 0, 123456789, time.UTC)

func newStore(t *testing.T) *sqlite.Store {
	t.Helper()
	s, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func create(t *testing.T, e ledger.Entity) ledger.Write {
	t.Helper()
	w, err := ledger.Create(e)
	require.NoError(t, err)
	return w
}

func TestSQLite_CreateAndGet(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Commit(ctx, []ledger.Write{
		create(t, ledger.Product{ID: "p1", ShopID: "shop1", Name: "Dal", StockQuantity: 10, UpdatedAt: t0}),
	}))

	doc, err := s.Get(ctx, ledger.KindProducts, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(1), doc.Version)
	assert.Equal(t, "shop1", doc.ShopID)
	assert.True(t, t0.Equal(doc.UpdatedAt), "nanosecond cursor survives")

	p, err := ledger.Decode[ledger.Product](doc)
	require.NoError(t, err)
	assert.Equal(t, int64(10), p.StockQuantity)

	_, err = s.Get(ctx, ledger.KindProducts, "nope")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestSQLite_QueryFiltersAndOrders(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Commit(ctx, []ledger.Write{
		create(t, ledger.Customer{ID: "c3", ShopID: "shop1", UpdatedAt: t0.Add(2 * time.Hour)}),
		create(t, ledger.Customer{ID: "c1", ShopID: "shop1", UpdatedAt: t0}),
		create(t, ledger.Customer{ID: "c2", ShopID: "shop2", UpdatedAt: t0.Add(time.Hour)}),
	}))

	docs, err := s.Query(ctx, ledger.Query{Kind: ledger.KindCustomers, ShopID: "shop1"})
	require.NoError(t, err)
	require.Len(t, docs, 2)
	assert.Equal(t, "c1", docs[0].ID)
	assert.Equal(t, "c3", docs[1].ID)

	since := t0
	docs, err = s.Query(ctx, ledger.Query{Kind: ledger.KindCustomers, ChangedAfter: &since})
	require.NoError(t, err)
	require.Len(t, docs, 2, "strictly after the cursor")

	docs, err = s.Query(ctx, ledger.Query{Kind: ledger.KindSales, ShopID: "shop1"})
	require.NoError(t, err)
	assert.Empty(t, docs)
}

func TestSQLite_BatchRollsBackOnConflict(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Commit(ctx, []ledger.Write{
		create(t, ledger.Product{ID: "p1", ShopID: "shop1", StockQuantity: 5, UpdatedAt: t0}),
	}))

	stale, err := ledger.Update(ledger.Product{ID: "p1", ShopID: "shop1", StockQuantity: 4, UpdatedAt: t0}, 7)
	require.NoError(t, err)

	err = s.Commit(ctx, []ledger.Write{
		create(t, ledger.StockTransaction{ID: "st1", ShopID: "shop1", ProductID: "p1", CreatedAt: t0}),
		stale,
	})
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)

	_, err = s.Get(ctx, ledger.KindStockTransactions, "st1")
	assert.ErrorIs(t, err, ledger.ErrNotFound, "audit entry rolled back with the product update")
}

func TestSQLite_UpdateBumpsVersion(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.Commit(ctx, []ledger.Write{
		create(t, ledger.Product{ID: "p1", ShopID: "shop1", StockQuantity: 5, UpdatedAt: t0}),
	}))
	for v := int64(1); v <= 3; v++ {
		w, err := ledger.Update(ledger.Product{ID: "p1", ShopID: "shop1", StockQuantity: 5 - v, UpdatedAt: t0}, v)
		require.NoError(t, err)
		require.NoError(t, s.Commit(ctx, []ledger.Write{w}))
	}

	doc, err := s.Get(ctx, ledger.KindProducts, "p1")
	require.NoError(t, err)
	assert.Equal(t, int64(4), doc.Version)
}

func TestSQLite_MergeIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	synced := t0.Add(time.Minute)
	merge := ledger.Write{Op: ledger.OpMerge, Doc: ledger.Document{
		Kind: ledger.KindProducts, ID: "p9", ShopID: "shop1", UpdatedAt: t0, SyncedAt: &synced,
		Data: []byte(`{"id":"p9","shopId":"shop1","name":"Chiura","stockQuantity":12}`),
	}}

	require.NoError(t, s.Commit(ctx, []ledger.Write{merge}))
	first, err := s.Get(ctx, ledger.KindProducts, "p9")
	require.NoError(t, err)

	require.NoError(t, s.Commit(ctx, []ledger.Write{merge}))
	second, err := s.Get(ctx, ledger.KindProducts, "p9")
	require.NoError(t, err)

	assert.Equal(t, first.Version, second.Version)
	assert.JSONEq(t, string(first.Data), string(second.Data))
	require.NotNil(t, second.SyncedAt)
}

func TestSQLite_NextSequence(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	for want := int64(1); want <= 3; want++ {
		got, err := s.NextSequence(ctx, "sale:shop1")
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	got, err := s.NextSequence(ctx, "sale:shop2")
	require.NoError(t, err)
	assert.Equal(t, int64(1), got)
}

func TestSQLite_PersistsAcrossReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "pasal.db")

	s, err := sqlite.New(path)
	require.NoError(t, err)
	require.NoError(t, s.Commit(ctx, []ledger.Write{
		create(t, ledger.Shop{ID: "shop1", OwnerID: "u1", Name: "Ram Kirana", UpdatedAt: t0}),
	}))
	_, err = s.NextSequence(ctx, "sale:shop1")
	require.NoError(t, err)
	require.NoError(t, s.Close())

	s, err = sqlite.New(path)
	require.NoError(t, err)
	defer s.Close()

	doc, err := s.Get(ctx, ledger.KindShops, "shop1")
	require.NoError(t, err)
	shop, err := ledger.Decode[ledger.Shop](doc)
	require.NoError(t, err)
	assert.Equal(t, "Ram Kirana", shop.Name)

	n, err := s.NextSequence(ctx, "sale:shop1")
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
}

func TestSQLite_RejectsCursorBeyondNanosecondRange(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)

	far := time.Date(2300, time.January, 1, 0, 0, 0, 0, time.UTC)
	err := s.Commit(ctx, []ledger.Write{{
		Op:  ledger.OpMerge,
		Doc: ledger.Document{Kind: ledger.KindProducts, ID: "p1", ShopID: "shop1", UpdatedAt: far, Data: []byte(`{"id":"p1","name":"future"}`)},
	}})
	require.ErrorIs(t, err, ledger.ErrValidation)

	_, err = s.Get(ctx, ledger.KindProducts, "p1")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}
