/*
dto.go - Request bodies

PURPOSE:
  JSON shapes accepted by the handlers. Field names follow the mobile
  client. Struct tags cover what can be checked without the store; the
  domain packages check the rest (totals, stock, due amounts).

  Responses are the ledger entities themselves, wrapped in the envelope.
  Catalog bodies (catalog.NewProduct, catalog.ShopProfile, ...) are decoded
  directly and are not repeated here.

SEE ALSO:
  - ledger/types.go: response shapes
  - validation.go: tag handling
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/smartpasal/pos-ledger/ledger"
	"github.com/smartpasal/pos-ledger/sales"
)

// =============================================================================
// SALES
// =============================================================================

type SaleItemRequest struct {
	ProductID   string          `json:"productId" validate:"required"`
	ProductName string          `json:"productName" validate:"max=200"`
	Quantity    int64           `json:"quantity" validate:"gt=0"`
	Unit        string          `json:"unit" validate:"max=20"`
	Price       decimal.Decimal `json:"price"`
	Total       decimal.Decimal `json:"total"`
}

// CreateSaleRequest is POST /api/shops/{shopId}/sales. ID is the client
// generated sale id; resending the same id never records the sale twice.
type CreateSaleRequest struct {
	ID           string            `json:"id" validate:"max=64"`
	CustomerID   string            `json:"customerId"`
	Items        []SaleItemRequest `json:"items" validate:"dive"`
	Subtotal     decimal.Decimal   `json:"subtotal"`
	Discount     decimal.Decimal   `json:"discount"`
	DiscountType string            `json:"discountType" validate:"omitempty,oneof=amount percentage"`
	Total        decimal.Decimal   `json:"total"`
	PaymentMode  string            `json:"paymentMode" validate:"required,oneof=cash udhar esewa khalti"`
	AmountPaid   decimal.Decimal   `json:"amountPaid"`
	Notes        string            `json:"notes" validate:"max=1000"`
}

func (r CreateSaleRequest) command(shopID, actor string) sales.CreateSaleCommand {
	items := make([]ledger.SaleItem, len(r.Items))
	for i, it := range r.Items {
		items[i] = ledger.SaleItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			Unit:        it.Unit,
			Price:       it.Price,
			Total:       it.Total,
		}
	}
	return sales.CreateSaleCommand{
		ID:           r.ID,
		ShopID:       shopID,
		CustomerID:   r.CustomerID,
		Items:        items,
		Subtotal:     r.Subtotal,
		Discount:     r.Discount,
		DiscountType: ledger.DiscountType(r.DiscountType),
		Total:        r.Total,
		PaymentMode:  ledger.PaymentMode(r.PaymentMode),
		AmountPaid:   r.AmountPaid,
		Notes:        r.Notes,
		Actor:        actor,
	}
}

// PaymentUpdateRequest is PATCH /api/sales/{saleId}/payment. AmountPaid
// is added to what the sale has already collected.
type PaymentUpdateRequest struct {
	AmountPaid decimal.Decimal `json:"amountPaid"`
}

// =============================================================================
// STOCK
// =============================================================================

type StockMovementRequest struct {
	ID        string `json:"id" validate:"max=64"`
	ProductID string `json:"productId" validate:"required"`
	Type      string `json:"type" validate:"required,oneof=in out adjustment"`
	Quantity  int64  `json:"quantity" validate:"gte=0"`
	Reason    string `json:"reason" validate:"max=500"`
	Reference string `json:"reference" validate:"max=200"`
}

func (r StockMovementRequest) movement(actor string) ledger.StockMovement {
	return ledger.StockMovement{
		ID:        r.ID,
		Type:      ledger.StockMovementType(r.Type),
		Quantity:  r.Quantity,
		Reason:    r.Reason,
		Reference: r.Reference,
		Actor:     actor,
	}
}

// =============================================================================
// UDHAR
// =============================================================================

type UdharRequest struct {
	ID          string          `json:"id" validate:"max=64"`
	CustomerID  string          `json:"customerId" validate:"required"`
	Type        string          `json:"type" validate:"required,oneof=credit payment"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=500"`
	PaymentMode string          `json:"paymentMode" validate:"omitempty,oneof=cash esewa khalti"`
	SaleID      string          `json:"saleId"`
}

func (r UdharRequest) movement(actor string) ledger.CreditMovement {
	return ledger.CreditMovement{
		ID:          r.ID,
		Type:        ledger.CreditMovementType(r.Type),
		Amount:      r.Amount,
		Description: r.Description,
		PaymentMode: r.PaymentMode,
		SaleID:      r.SaleID,
		Actor:       actor,
	}
}

// =============================================================================
// SYNC
// =============================================================================

// SyncTimestampDTO carries the newest cursor in the shop, null when the
// shop has no synced data yet.
type SyncTimestampDTO struct {
	LastSyncTimestamp *time.Time `json:"lastSyncTimestamp"`
}
