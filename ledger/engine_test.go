package ledger_test

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/smartpasal/pos-ledger/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

var now = time.Date(2025, time.March, 10, 9, 30, 0, 0, time.UTC)

func rupees(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func product(stock, threshold int64) ledger.Product {
	return ledger.Product{
		ID:                "p1",
		ShopID:            "shop1",
		Name:              "Wai Wai",
		StockQuantity:     stock,
		LowStockThreshold: threshold,
		Unit:              "pcs",
		Version:           3,
	}
}

func customer(due string) ledger.Customer {
	return ledger.Customer{ID: "c1", ShopID: "shop1", Name: "Hari", TotalDue: rupees(due)}
}

// =============================================================================
// STOCK LEDGER
// =============================================================================

func TestStockOut_DecrementsAndRecordsAudit(t *testing.T) {
	p, tx, err := ledger.ApplyStockMovement(product(10, 5), ledger.StockMovement{
		Type: ledger.StockOut, Quantity: 3, Reason: "Sale", Reference: "sale-1", Actor: "u1",
	}, now)
	require.NoError(t, err)

	assert.Equal(t, int64(7), p.StockQuantity)
	assert.False(t, p.IsLowStock(), "7 is above threshold 5")
	assert.Equal(t, now, p.UpdatedAt)
	assert.Equal(t, int64(3), p.Version, "engine does not touch the version")

	assert.NotEmpty(t, tx.ID)
	assert.Equal(t, ledger.StockOut, tx.Type)
	assert.Equal(t, int64(10), tx.PreviousStock)
	assert.Equal(t, int64(7), tx.NewStock)
	assert.Equal(t, "sale-1", tx.Reference)
	assert.Equal(t, "shop1", tx.ShopID)
	assert.Equal(t, "u1", tx.CreatedBy)
}

func TestStockIn_Increments(t *testing.T) {
	p, tx, err := ledger.ApplyStockMovement(product(4, 5), ledger.StockMovement{
		Type: ledger.StockIn, Quantity: 20,
	}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(24), p.StockQuantity)
	assert.Equal(t, int64(20), tx.NewStock-tx.PreviousStock)
}

func TestStockAdjustment_OverridesQuantity(t *testing.T) {
	p, tx, err := ledger.ApplyStockMovement(product(40, 5), ledger.StockMovement{
		Type: ledger.StockAdjustment, Quantity: 12, Reason: "count",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(12), p.StockQuantity)
	assert.Equal(t, int64(40), tx.PreviousStock)
	assert.Equal(t, int64(12), tx.NewStock)
}

func TestStockAdjustment_ToZero(t *testing.T) {
	p, tx, err := ledger.ApplyStockMovement(product(7, 5), ledger.StockMovement{
		Type: ledger.StockAdjustment, Quantity: 0, Reason: "shelf empty",
	}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.StockQuantity)
	assert.Equal(t, int64(7), tx.PreviousStock)
	assert.Equal(t, int64(0), tx.NewStock)
}

func TestStockOut_Insufficient(t *testing.T) {
	original := product(3, 5)
	p, _, err := ledger.ApplyStockMovement(original, ledger.StockMovement{
		Type: ledger.StockOut, Quantity: 5,
	}, now)

	require.ErrorIs(t, err, ledger.ErrInsufficientStock)
	var ise *ledger.InsufficientStockError
	require.ErrorAs(t, err, &ise)
	assert.Equal(t, int64(3), ise.Available)
	assert.Equal(t, int64(5), ise.Requested)
	assert.Equal(t, original, p, "product unchanged on rejection")
	assert.True(t, ledger.IsClientError(err))
}

func TestStockOut_ExactlyToZero(t *testing.T) {
	p, _, err := ledger.ApplyStockMovement(product(3, 5), ledger.StockMovement{
		Type: ledger.StockOut, Quantity: 3,
	}, now)
	require.NoError(t, err)
	assert.Equal(t, int64(0), p.StockQuantity)
	assert.True(t, p.IsLowStock())
}

func TestStockMovement_Validation(t *testing.T) {
	tests := []struct {
		name string
		m    ledger.StockMovement
		want error
	}{
		{"zero quantity", ledger.StockMovement{Type: ledger.StockIn, Quantity: 0}, ledger.ErrInvalidQuantity},
		{"negative quantity", ledger.StockMovement{Type: ledger.StockOut, Quantity: -2}, ledger.ErrInvalidQuantity},
		{"unknown type", ledger.StockMovement{Type: "transfer", Quantity: 1}, ledger.ErrInvalidMovementType},
		{"negative adjustment", ledger.StockMovement{Type: ledger.StockAdjustment, Quantity: -1}, ledger.ErrInvalidQuantity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := ledger.ApplyStockMovement(product(10, 5), tt.m, now)
			assert.ErrorIs(t, err, tt.want)
			assert.ErrorIs(t, err, ledger.ErrValidation)
		})
	}
}

// Replaying every movement from its PreviousStock reproduces the final stock.
func TestStockConservation(t *testing.T) {
	p := product(0, 5)
	moves := []ledger.StockMovement{
		{Type: ledger.StockIn, Quantity: 50},
		{Type: ledger.StockOut, Quantity: 7},
		{Type: ledger.StockOut, Quantity: 13},
		{Type: ledger.StockAdjustment, Quantity: 28},
		{Type: ledger.StockIn, Quantity: 2},
		{Type: ledger.StockOut, Quantity: 30},
	}

	var txs []ledger.StockTransaction
	for _, m := range moves {
		var tx ledger.StockTransaction
		var err error
		p, tx, err = ledger.ApplyStockMovement(p, m, now)
		require.NoError(t, err)
		txs = append(txs, tx)
	}

	stock := int64(0)
	for _, tx := range txs {
		assert.Equal(t, stock, tx.PreviousStock)
		switch tx.Type {
		case ledger.StockIn:
			stock += tx.Quantity
		case ledger.StockOut:
			stock -= tx.Quantity
		case ledger.StockAdjustment:
			stock = tx.Quantity
		}
		assert.Equal(t, stock, tx.NewStock)
	}
	assert.Equal(t, stock, p.StockQuantity)
	assert.Equal(t, int64(0), p.StockQuantity)
}

// =============================================================================
// CREDIT LEDGER
// =============================================================================

func TestCreditCharge_IncreasesDue(t *testing.T) {
	c, tx, err := ledger.ApplyCreditMovement(customer("100"), ledger.CreditMovement{
		Type: ledger.CreditCharge, Amount: rupees("50"), Description: "Sale SALE-000001", SaleID: "s1",
	}, now)
	require.NoError(t, err)
	assert.True(t, rupees("150").Equal(c.TotalDue))
	assert.True(t, rupees("150").Equal(tx.Balance))
	assert.Equal(t, "s1", tx.SaleID)
	assert.Equal(t, ledger.CreditCharge, tx.Type)
}

func TestCreditPayment_DecreasesDue(t *testing.T) {
	c, tx, err := ledger.ApplyCreditMovement(customer("80.50"), ledger.CreditMovement{
		Type: ledger.CreditPayment, Amount: rupees("80.50"), PaymentMode: "cash",
	}, now)
	require.NoError(t, err)
	assert.True(t, c.TotalDue.IsZero())
	assert.True(t, tx.Balance.IsZero())
	assert.Equal(t, "cash", tx.PaymentMode)
}

func TestCreditPayment_ExceedsDue(t *testing.T) {
	original := customer("20")
	c, _, err := ledger.ApplyCreditMovement(original, ledger.CreditMovement{
		Type: ledger.CreditPayment, Amount: rupees("30"),
	}, now)

	require.ErrorIs(t, err, ledger.ErrExcessPayment)
	var epe *ledger.ExcessPaymentError
	require.ErrorAs(t, err, &epe)
	assert.True(t, rupees("20").Equal(epe.Due))
	assert.True(t, original.TotalDue.Equal(c.TotalDue))
	assert.Contains(t, err.Error(), "Payment amount exceeds current due")
}

func TestCreditMovement_Validation(t *testing.T) {
	_, _, err := ledger.ApplyCreditMovement(customer("10"), ledger.CreditMovement{
		Type: ledger.CreditCharge, Amount: decimal.Zero,
	}, now)
	assert.ErrorIs(t, err, ledger.ErrInvalidAmount)

	_, _, err = ledger.ApplyCreditMovement(customer("10"), ledger.CreditMovement{
		Type: "refund", Amount: rupees("1"),
	}, now)
	assert.ErrorIs(t, err, ledger.ErrInvalidMovementType)
}

// Sum of credits minus payments equals the change in due.
func TestCreditConservation(t *testing.T) {
	c := customer("0")
	moves := []ledger.CreditMovement{
		{Type: ledger.CreditCharge, Amount: rupees("250")},
		{Type: ledger.CreditPayment, Amount: rupees("100")},
		{Type: ledger.CreditCharge, Amount: rupees("35.75")},
		{Type: ledger.CreditPayment, Amount: rupees("185.75")},
	}
	sum := decimal.Zero
	for _, m := range moves {
		var tx ledger.UdharTransaction
		var err error
		c, tx, err = ledger.ApplyCreditMovement(c, m, now)
		require.NoError(t, err)
		if tx.Type == ledger.CreditCharge {
			sum = sum.Add(tx.Amount)
		} else {
			sum = sum.Sub(tx.Amount)
		}
		assert.True(t, sum.Equal(tx.Balance))
	}
	assert.True(t, c.TotalDue.IsZero())
}

// =============================================================================
// PAYMENT STATUS
// =============================================================================

func TestDerivePaymentStatus(t *testing.T) {
	tests := []struct {
		total, paid string
		want        ledger.PaymentStatus
	}{
		{"100", "100", ledger.StatusPaid},
		{"100", "0", ledger.StatusUnpaid},
		{"100", "40", ledger.StatusPartial},
		{"100", "99.99", ledger.StatusPartial},
		{"0", "0", ledger.StatusPaid},
	}
	for _, tt := range tests {
		got := ledger.DerivePaymentStatus(rupees(tt.total), rupees(tt.paid))
		assert.Equal(t, tt.want, got, "total %s paid %s", tt.total, tt.paid)
	}
}

func TestSaleTotal(t *testing.T) {
	assert.True(t, rupees("90").Equal(ledger.SaleTotal(rupees("100"), rupees("10"), ledger.DiscountAmount)))
	assert.True(t, rupees("87.5").Equal(ledger.SaleTotal(rupees("125"), rupees("30"), ledger.DiscountPercentage)))
	assert.True(t, rupees("100").Equal(ledger.SaleTotal(rupees("100"), decimal.Zero, "")))
}

// =============================================================================
// DOCUMENT CODEC
// =============================================================================

func TestDocumentRoundTrip_KeepsStoreFields(t *testing.T) {
	synced := now.Add(time.Hour)
	p := product(9, 5)
	p.SellingPrice = rupees("25.50")
	p.UpdatedAt = now

	doc, err := ledger.NewDocument(p)
	require.NoError(t, err)
	assert.Equal(t, ledger.KindProducts, doc.Kind)
	assert.Equal(t, "shop1", doc.ShopID)
	assert.Equal(t, now, doc.UpdatedAt)
	assert.NotContains(t, string(doc.Data), "syncedAt")
	assert.Contains(t, string(doc.Data), `"sellingPrice":25.5`)

	doc.Version = 7
	doc.SyncedAt = &synced
	got, err := ledger.Decode[ledger.Product](doc)
	require.NoError(t, err)
	assert.Equal(t, int64(7), got.Version)
	require.NotNil(t, got.SyncedAt)
	assert.True(t, got.SellingPrice.Equal(p.SellingPrice))
}

func TestAuditEntriesUseCreatedAtAsCursor(t *testing.T) {
	_, tx, err := ledger.ApplyStockMovement(product(5, 1), ledger.StockMovement{Type: ledger.StockIn, Quantity: 1}, now)
	require.NoError(t, err)
	doc, err := ledger.NewDocument(tx)
	require.NoError(t, err)
	assert.Equal(t, now, doc.UpdatedAt)
	assert.True(t, ledger.KindStockTransactions.IsAppendOnly())
	assert.False(t, ledger.KindProducts.IsAppendOnly())
}

func TestNewDocument_RequiresID(t *testing.T) {
	_, err := ledger.NewDocument(ledger.Customer{ShopID: "shop1"})
	assert.ErrorIs(t, err, ledger.ErrValidation)
}

// =============================================================================
// WRITE SEMANTICS
// =============================================================================

func doc(id string, version int64, at time.Time, fields map[string]any) ledger.Document {
	data, _ := json.Marshal(fields)
	return ledger.Document{Kind: ledger.KindProducts, ID: id, ShopID: "shop1", Version: version, UpdatedAt: at, Data: data}
}

func TestApplyWrite_Create(t *testing.T) {
	next, changed, err := ledger.ApplyWrite(nil, ledger.Write{Op: ledger.OpCreate, Doc: doc("a", 0, now, nil)})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(1), next.Version)

	existing := next
	_, _, err = ledger.ApplyWrite(&existing, ledger.Write{Op: ledger.OpCreate, Doc: doc("a", 0, now, nil)})
	assert.ErrorIs(t, err, ledger.ErrAlreadyExists)
}

func TestApplyWrite_UpdateChecksVersion(t *testing.T) {
	current := doc("a", 4, now, map[string]any{"stockQuantity": 5})

	next, _, err := ledger.ApplyWrite(&current, ledger.Write{
		Op: ledger.OpUpdate, Doc: doc("a", 0, now, map[string]any{"stockQuantity": 4}), ExpectedVersion: 4,
	})
	require.NoError(t, err)
	assert.Equal(t, int64(5), next.Version)

	_, _, err = ledger.ApplyWrite(&current, ledger.Write{
		Op: ledger.OpUpdate, Doc: doc("a", 0, now, nil), ExpectedVersion: 3,
	})
	assert.ErrorIs(t, err, ledger.ErrConcurrentModification)
	assert.True(t, ledger.IsRetryable(err))

	_, _, err = ledger.ApplyWrite(nil, ledger.Write{Op: ledger.OpUpdate, Doc: doc("a", 0, now, nil), ExpectedVersion: 1})
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestApplyWrite_MergeLastWriteWins(t *testing.T) {
	current := doc("a", 2, now, map[string]any{"name": "Rice", "stockQuantity": 10, "updatedAt": now})

	older := doc("a", 0, now.Add(-time.Minute), map[string]any{"name": "Old"})
	next, changed, err := ledger.ApplyWrite(&current, ledger.Write{Op: ledger.OpMerge, Doc: older})
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, current.Data, next.Data)

	newer := doc("a", 0, now.Add(time.Minute), map[string]any{"name": "Basmati", "updatedAt": now.Add(time.Minute)})
	next, changed, err = ledger.ApplyWrite(&current, ledger.Write{Op: ledger.OpMerge, Doc: newer})
	require.NoError(t, err)
	assert.True(t, changed)
	assert.Equal(t, int64(3), next.Version)

	var fields map[string]any
	require.NoError(t, json.Unmarshal(next.Data, &fields))
	assert.Equal(t, "Basmati", fields["name"])
	assert.EqualValues(t, 10, fields["stockQuantity"], "untouched fields survive a merge")
}

func TestApplyWrite_MergeSameDataKeepsVersion(t *testing.T) {
	current := doc("a", 2, now, map[string]any{"name": "Rice", "updatedAt": now})
	again := doc("a", 0, now, map[string]any{"name": "Rice", "updatedAt": now})

	next, _, err := ledger.ApplyWrite(&current, ledger.Write{Op: ledger.OpMerge, Doc: again})
	require.NoError(t, err)
	assert.Equal(t, int64(2), next.Version)
}

func TestApplyWrite_RejectsCursorOutsideStoredRange(t *testing.T) {
	far := time.Date(2300, time.January, 1, 0, 0, 0, 0, time.UTC)
	assert.False(t, ledger.CursorInRange(far))
	assert.True(t, ledger.CursorInRange(now))

	for _, op := range []ledger.WriteOp{ledger.OpCreate, ledger.OpMerge} {
		_, _, err := ledger.ApplyWrite(nil, ledger.Write{Op: op, Doc: doc("a", 0, far, nil)})
		assert.ErrorIs(t, err, ledger.ErrValidation, op.String())
	}
}

func TestMoneyEncodesAsJSONNumber(t *testing.T) {
	b, err := json.Marshal(ledger.Customer{ID: "c1", TotalDue: decimal.RequireFromString("250.5")})
	require.NoError(t, err)

	var fields map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(b, &fields))
	assert.Equal(t, "250.5", string(fields["totalDue"]))

	var back ledger.Customer
	require.NoError(t, json.Unmarshal([]byte(`{"id":"c1","totalDue":"99.25"}`), &back))
	assert.True(t, back.TotalDue.Equal(decimal.RequireFromString("99.25")), "quoted input still decodes")
}
