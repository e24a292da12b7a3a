/*
Package ledger provides the shop ledger engine.

PURPOSE:
  This package holds the entity model of the point-of-sale system and the
  two movement engines that keep it consistent: the stock ledger (product
  quantities) and the credit ledger (customer udhar balances). It also
  defines the Ledger Store contract that every persistence backend honors.

KEY CONCEPTS IN THIS FILE (types.go):
  - Kind: the collection a document lives in (products, sales, ...)
  - Product / Customer: balances that movements mutate
  - StockTransaction / UdharTransaction: immutable audit entries
  - Sale / SaleItem: the sale record and its embedded line items

DESIGN PRINCIPLES:
  1. Immutability: audit entries are created once, never updated
  2. Precision: money uses decimal.Decimal, stock uses int64
  3. Versioning: every stored document carries a version for compare-and-swap
  4. Wire format: JSON field names match the mobile client (camelCase)

MONEY ENCODING (process-wide):
  Importing this package sets decimal.MarshalJSONWithoutQuotes, so every
  decimal.Decimal in the process encodes as a JSON number (250.5, not
  "250.5"). The mobile client and the stored documents depend on it.
  Decoding accepts both forms. Code sharing a process with this package
  must not expect quoted decimals.

SEE ALSO:
  - stock.go: Stock Ledger Engine
  - credit.go: Credit Ledger Engine
  - store.go: Ledger Store interface and document codec
*/
package ledger

import (
	"time"

	"github.com/shopspring/decimal"
)

// Process-wide; see MONEY ENCODING above.
func init() {
	decimal.MarshalJSONWithoutQuotes = true
}

// =============================================================================
// KINDS - Document collections
// =============================================================================

type Kind string

const (
	KindShops             Kind = "shops"
	KindProducts          Kind = "products"
	KindSales             Kind = "sales"
	KindCustomers         Kind = "customers"
	KindSuppliers         Kind = "suppliers"
	KindUdharTransactions Kind = "udharTransactions"
	KindStockTransactions Kind = "stockTransactions"
)

// SyncKinds are the kinds exchanged with mobile clients, in upload order.
var SyncKinds = []Kind{
	KindProducts,
	KindSales,
	KindCustomers,
	KindSuppliers,
	KindUdharTransactions,
	KindStockTransactions,
}

// IsAppendOnly reports whether documents of this kind are audit entries.
// Their cursor timestamp is createdAt instead of updatedAt.
func (k Kind) IsAppendOnly() bool {
	return k == KindUdharTransactions || k == KindStockTransactions
}

// =============================================================================
// ENUMS
// =============================================================================

type StockMovementType string

const (
	StockIn         StockMovementType = "in"
	StockOut        StockMovementType = "out"
	StockAdjustment StockMovementType = "adjustment"
)

func (t StockMovementType) Valid() bool {
	return t == StockIn || t == StockOut || t == StockAdjustment
}

type CreditMovementType string

const (
	CreditCharge  CreditMovementType = "credit"  // customer owes more
	CreditPayment CreditMovementType = "payment" // customer pays down
)

func (t CreditMovementType) Valid() bool {
	return t == CreditCharge || t == CreditPayment
}

type PaymentMode string

const (
	PaymentCash   PaymentMode = "cash"
	PaymentUdhar  PaymentMode = "udhar"
	PaymentEsewa  PaymentMode = "esewa"
	PaymentKhalti PaymentMode = "khalti"
)

func (m PaymentMode) Valid() bool {
	switch m {
	case PaymentCash, PaymentUdhar, PaymentEsewa, PaymentKhalti:
		return true
	}
	return false
}

type PaymentStatus string

const (
	StatusPaid    PaymentStatus = "paid"
	StatusPartial PaymentStatus = "partial"
	StatusUnpaid  PaymentStatus = "unpaid"
)

type DiscountType string

const (
	DiscountAmount     DiscountType = "amount"
	DiscountPercentage DiscountType = "percentage"
)

// =============================================================================
// ENTITIES
// =============================================================================

// Shop is the tenant every other document belongs to.
type Shop struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"ownerId"`
	Name        string    `json:"name"`
	OwnerName   string    `json:"ownerName"`
	PhoneNumber string    `json:"phoneNumber"`
	Address     string    `json:"address"`
	PAN         string    `json:"pan,omitempty"`
	VAT         string    `json:"vat,omitempty"`
	Currency    string    `json:"currency"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`

	Version int64 `json:"-"`
}

// Product stock is changed only through ApplyStockMovement or an admin edit.
// Products are never removed, only flagged IsDeleted.
type Product struct {
	ID                string          `json:"id"`
	ShopID            string          `json:"shopId"`
	Name              string          `json:"name"`
	Category          string          `json:"category"`
	Barcode           string          `json:"barcode,omitempty"`
	CostPrice         decimal.Decimal `json:"costPrice"`
	SellingPrice      decimal.Decimal `json:"sellingPrice"`
	StockQuantity     int64           `json:"stockQuantity"`
	Unit              string          `json:"unit"`
	LowStockThreshold int64           `json:"lowStockThreshold"`
	Description       string          `json:"description,omitempty"`
	ImageURL          string          `json:"imageUrl,omitempty"`
	IsDeleted         bool            `json:"isDeleted"`
	CreatedAt         time.Time       `json:"createdAt"`
	UpdatedAt         time.Time       `json:"updatedAt"`
	SyncedAt          *time.Time      `json:"syncedAt,omitempty"`

	Version int64 `json:"-"`
}

// IsLowStock reports whether the product is at or under its threshold.
func (p Product) IsLowStock() bool {
	return p.StockQuantity <= p.LowStockThreshold
}

// StockTransaction is the audit entry of one stock movement.
type StockTransaction struct {
	ID            string            `json:"id"`
	ShopID        string            `json:"shopId"`
	ProductID     string            `json:"productId"`
	Type          StockMovementType `json:"type"`
	Quantity      int64             `json:"quantity"`
	PreviousStock int64             `json:"previousStock"`
	NewStock      int64             `json:"newStock"`
	Reason        string            `json:"reason"`
	Reference     string            `json:"reference,omitempty"`
	CreatedBy     string            `json:"createdBy"`
	CreatedAt     time.Time         `json:"createdAt"`
	SyncedAt      *time.Time        `json:"syncedAt,omitempty"`

	Version int64 `json:"-"`
}

// Customer.TotalDue is the outstanding udhar balance. Never negative.
type Customer struct {
	ID             string          `json:"id"`
	ShopID         string          `json:"shopId"`
	Name           string          `json:"name"`
	PhoneNumber    string          `json:"phoneNumber,omitempty"`
	Address        string          `json:"address,omitempty"`
	TotalPurchases decimal.Decimal `json:"totalPurchases"`
	TotalDue       decimal.Decimal `json:"totalDue"`
	IsDeleted      bool            `json:"isDeleted"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	SyncedAt       *time.Time      `json:"syncedAt,omitempty"`

	Version int64 `json:"-"`
}

// UdharTransaction is the audit entry of one credit movement.
// Balance is the customer's TotalDue right after this movement.
type UdharTransaction struct {
	ID          string             `json:"id"`
	ShopID      string             `json:"shopId"`
	CustomerID  string             `json:"customerId"`
	SaleID      string             `json:"saleId,omitempty"`
	Type        CreditMovementType `json:"type"`
	Amount      decimal.Decimal    `json:"amount"`
	Balance     decimal.Decimal    `json:"balance"`
	Description string             `json:"description,omitempty"`
	PaymentMode string             `json:"paymentMode,omitempty"`
	CreatedBy   string             `json:"createdBy"`
	CreatedAt   time.Time          `json:"createdAt"`
	SyncedAt    *time.Time         `json:"syncedAt,omitempty"`

	Version int64 `json:"-"`
}

type Supplier struct {
	ID             string          `json:"id"`
	ShopID         string          `json:"shopId"`
	Name           string          `json:"name"`
	PhoneNumber    string          `json:"phoneNumber,omitempty"`
	Address        string          `json:"address,omitempty"`
	Email          string          `json:"email,omitempty"`
	TotalPurchases decimal.Decimal `json:"totalPurchases"`
	TotalDue       decimal.Decimal `json:"totalDue"`
	IsDeleted      bool            `json:"isDeleted"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
	SyncedAt       *time.Time      `json:"syncedAt,omitempty"`

	Version int64 `json:"-"`
}

// SaleItem is embedded in Sale and has no lifecycle of its own.
type SaleItem struct {
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName,omitempty"`
	Quantity    int64           `json:"quantity"`
	Unit        string          `json:"unit,omitempty"`
	Price       decimal.Decimal `json:"price"`
	Total       decimal.Decimal `json:"total"`
}

// Sale is immutable after creation except for AmountPaid, AmountDue and
// PaymentStatus, which UpdateSalePayment rewrites together.
type Sale struct {
	ID            string          `json:"id"`
	ShopID        string          `json:"shopId"`
	CustomerID    string          `json:"customerId,omitempty"`
	SaleNumber    string          `json:"saleNumber"`
	Items         []SaleItem      `json:"items"`
	Subtotal      decimal.Decimal `json:"subtotal"`
	Discount      decimal.Decimal `json:"discount"`
	DiscountType  DiscountType    `json:"discountType"`
	Total         decimal.Decimal `json:"total"`
	PaymentMode   PaymentMode     `json:"paymentMode"`
	PaymentStatus PaymentStatus   `json:"paymentStatus"`
	AmountPaid    decimal.Decimal `json:"amountPaid"`
	AmountDue     decimal.Decimal `json:"amountDue"`
	Notes         string          `json:"notes,omitempty"`
	CreatedBy     string          `json:"createdBy"`
	CreatedAt     time.Time       `json:"createdAt"`
	UpdatedAt     time.Time       `json:"updatedAt"`
	SyncedAt      *time.Time      `json:"syncedAt,omitempty"`

	Version int64 `json:"-"`
}
