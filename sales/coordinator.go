/*
Package sales records sales and direct ledger postings.

PURPOSE:
  The Coordinator is the only writer of stock and udhar balances outside
  sync. Each operation reads the documents it needs, runs the pure ledger
  engines, and commits every resulting write in one atomic batch.

WORKFLOW (CreateSale):
  1. Validate the command            -> ErrEmptySale / ValidationError
  2. Reserve a sale number           -> SALE-000042 (per shop)
  3. For each line: stock out        -> StockTransaction per line
  4. Udhar sale with due + customer  -> credit movement for the due
  5. Commit sale + products + audit entries together
  6. Version conflict                -> re-read and recompute (bounded)

FAILURE SEMANTICS:
  Any error before or during Commit leaves the store untouched. A sale id
  that already exists is reported as ErrDuplicateSale without side effects,
  which makes client-generated ids a safe idempotency key.

SEE ALSO:
  - ledger/stock.go, ledger/credit.go: the engines
  - movements.go: direct stock and udhar postings
  - queries.go: read side
*/
package sales

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/smartpasal/pos-ledger/ledger"
	"github.com/smartpasal/pos-ledger/logging"
)

// =============================================================================
// CONFIGURATION
// =============================================================================

// MissingProductPolicy decides what a sale line for an unknown product does.
type MissingProductPolicy string

const (
	// SkipMissingProduct records the line without touching stock.
	SkipMissingProduct MissingProductPolicy = "skip"
	// FailOnMissingProduct rejects the sale with ErrProductNotFound.
	FailOnMissingProduct MissingProductPolicy = "fail"
)

func (p MissingProductPolicy) Valid() bool {
	return p == SkipMissingProduct || p == FailOnMissingProduct
}

type Config struct {
	MaxAttempts     int
	BaseBackoff     time.Duration
	MissingProducts MissingProductPolicy
}

func DefaultConfig() Config {
	return Config{
		MaxAttempts:     5,
		BaseBackoff:     5 * time.Millisecond,
		MissingProducts: SkipMissingProduct,
	}
}

// Recorder receives ledger events for metrics.
type Recorder interface {
	SaleCreated(paymentMode string)
	StockMoved(movementType string)
	CreditMoved(movementType string)
	CommitConflict(operation string)
}

type nopRecorder struct{}

func (nopRecorder) SaleCreated(string)    {}
func (nopRecorder) StockMoved(string)     {}
func (nopRecorder) CreditMoved(string)    {}
func (nopRecorder) CommitConflict(string) {}

// =============================================================================
// COORDINATOR
// =============================================================================

type Coordinator struct {
	store   ledger.Store
	cfg     Config
	logger  *logging.Logger
	metrics Recorder
	now     func() time.Time
}

type Option func(*Coordinator)

func WithLogger(l *logging.Logger) Option    { return func(c *Coordinator) { c.logger = l } }
func WithRecorder(r Recorder) Option         { return func(c *Coordinator) { c.metrics = r } }
func WithClock(now func() time.Time) Option { return func(c *Coordinator) { c.now = now } }

func NewCoordinator(store ledger.Store, cfg Config, opts ...Option) *Coordinator {
	defaults := DefaultConfig()
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = defaults.MaxAttempts
	}
	if cfg.BaseBackoff <= 0 {
		cfg.BaseBackoff = defaults.BaseBackoff
	}
	if !cfg.MissingProducts.Valid() {
		cfg.MissingProducts = defaults.MissingProducts
	}

	c := &Coordinator{
		store:   store,
		cfg:     cfg,
		logger:  logging.Nop(),
		metrics: nopRecorder{},
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithComponent("sales")
	return c
}

// =============================================================================
// CREATE SALE
// =============================================================================

// CreateSaleCommand is a validated-at-entry request to record a sale.
// ID is optional; when set it is the idempotency key of the sale.
type CreateSaleCommand struct {
	ID           string
	ShopID       string
	CustomerID   string
	Items        []ledger.SaleItem
	Subtotal     decimal.Decimal
	Discount     decimal.Decimal
	DiscountType ledger.DiscountType
	Total        decimal.Decimal
	PaymentMode  ledger.PaymentMode
	AmountPaid   decimal.Decimal
	Notes        string
	Actor        string
}

// Validate checks the command without reading the store.
func (cmd CreateSaleCommand) Validate() error {
	if cmd.ShopID == "" {
		return ledger.Invalid("shopId", "is required")
	}
	if len(cmd.Items) == 0 {
		return ledger.ErrEmptySale
	}
	for i, item := range cmd.Items {
		if item.ProductID == "" {
			return ledger.Invalid(fmt.Sprintf("items[%d].productId", i), "is required")
		}
		if item.Quantity <= 0 {
			return fmt.Errorf("items[%d]: %w", i, ledger.ErrInvalidQuantity)
		}
		if item.Price.IsNegative() || item.Total.IsNegative() {
			return ledger.Invalid(fmt.Sprintf("items[%d]", i), "price and total must not be negative")
		}
	}
	if !cmd.PaymentMode.Valid() {
		return ledger.Invalid("paymentMode", "must be one of cash, udhar, esewa, khalti")
	}
	switch cmd.DiscountType {
	case "", ledger.DiscountAmount, ledger.DiscountPercentage:
	default:
		return ledger.Invalid("discountType", "must be amount or percentage")
	}
	if cmd.Subtotal.IsNegative() || cmd.Discount.IsNegative() || cmd.Total.IsNegative() || cmd.AmountPaid.IsNegative() {
		return ledger.Invalid("amount", "subtotal, discount, total and amountPaid must not be negative")
	}
	if want := ledger.SaleTotal(cmd.Subtotal, cmd.Discount, cmd.DiscountType); !want.Round(2).Equal(cmd.Total.Round(2)) {
		return ledger.Invalid("total", "expected %s after discount, got %s", want.StringFixed(2), cmd.Total.StringFixed(2))
	}
	if cmd.AmountPaid.GreaterThan(cmd.Total) {
		return ledger.Invalid("amountPaid", "exceeds sale total")
	}
	return nil
}

// CreateSale records a sale and every ledger movement it implies.
func (c *Coordinator) CreateSale(ctx context.Context, cmd CreateSaleCommand) (ledger.Sale, error) {
	if err := cmd.Validate(); err != nil {
		return ledger.Sale{}, err
	}
	if cmd.DiscountType == "" {
		cmd.DiscountType = ledger.DiscountAmount
	}

	saleID := cmd.ID
	if saleID == "" {
		saleID = uuid.NewString()
	} else if _, err := c.store.Get(ctx, ledger.KindSales, saleID); err == nil {
		return ledger.Sale{}, fmt.Errorf("%w: %s", ledger.ErrDuplicateSale, saleID)
	} else if !errors.Is(err, ledger.ErrNotFound) {
		return ledger.Sale{}, err
	}

	seq, err := c.store.NextSequence(ctx, "sale:"+cmd.ShopID)
	if err != nil {
		return ledger.Sale{}, fmt.Errorf("reserve sale number: %w", err)
	}
	saleNumber := FormatSaleNumber(seq)

	log := c.logger.WithContext(ctx).WithOperation("create_sale").WithShop(cmd.ShopID)

	var (
		sale  ledger.Sale
		plan  salePlan
		first = true
	)
	err = c.withRetry(ctx, "create_sale", func() error {
		if !first {
			log.Info("Retrying sale after version conflict", "saleId", saleID)
		}
		first = false

		p, err := c.planSale(ctx, cmd, saleID, saleNumber)
		if err != nil {
			return err
		}
		plan, sale = p, p.sale
		return c.store.Commit(ctx, p.writes)
	})
	if errors.Is(err, ledger.ErrAlreadyExists) {
		return ledger.Sale{}, fmt.Errorf("%w: %s", ledger.ErrDuplicateSale, saleID)
	}
	if err != nil {
		log.WithError(err).Warn("Sale rejected", "saleId", saleID)
		return ledger.Sale{}, err
	}

	c.metrics.SaleCreated(string(sale.PaymentMode))
	for range plan.stockMoves {
		c.metrics.StockMoved(string(ledger.StockOut))
	}
	if plan.credited {
		c.metrics.CreditMoved(string(ledger.CreditCharge))
	}
	log.Info("Sale created",
		"saleId", sale.ID,
		"saleNumber", sale.SaleNumber,
		"total", sale.Total.String(),
		"paymentStatus", sale.PaymentStatus,
		"skippedLines", plan.skipped,
	)
	return sale, nil
}

// FormatSaleNumber renders a shop sequence value.
func FormatSaleNumber(seq int64) string {
	return fmt.Sprintf("SALE-%06d", seq)
}

type salePlan struct {
	sale       ledger.Sale
	writes     []ledger.Write
	stockMoves []ledger.StockTransaction
	credited   bool
	skipped    int
}

// planSale reads current state and computes every write of the sale.
func (c *Coordinator) planSale(ctx context.Context, cmd CreateSaleCommand, saleID, saleNumber string) (salePlan, error) {
	now := c.now().UTC()
	amountDue := cmd.Total.Sub(cmd.AmountPaid)

	sale := ledger.Sale{
		ID:            saleID,
		ShopID:        cmd.ShopID,
		CustomerID:    cmd.CustomerID,
		SaleNumber:    saleNumber,
		Items:         make([]ledger.SaleItem, len(cmd.Items)),
		Subtotal:      cmd.Subtotal,
		Discount:      cmd.Discount,
		DiscountType:  cmd.DiscountType,
		Total:         cmd.Total,
		PaymentMode:   cmd.PaymentMode,
		PaymentStatus: ledger.DerivePaymentStatus(cmd.Total, cmd.AmountPaid),
		AmountPaid:    cmd.AmountPaid,
		AmountDue:     amountDue,
		Notes:         cmd.Notes,
		CreatedBy:     cmd.Actor,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	copy(sale.Items, cmd.Items)

	var plan salePlan

	// Lines for the same product chain on one snapshot; the product is
	// written once at the version it was read at.
	products := map[string]*ledger.Product{}
	readVersion := map[string]int64{}
	var order []string

	for i, item := range sale.Items {
		p, ok := products[item.ProductID]
		if !ok {
			loaded, err := c.loadShopProduct(ctx, cmd.ShopID, item.ProductID)
			if ledger.IsNotFound(err) {
				if c.cfg.MissingProducts == FailOnMissingProduct {
					return salePlan{}, err
				}
				plan.skipped++
				continue
			}
			if err != nil {
				return salePlan{}, err
			}
			p = &loaded
			products[item.ProductID] = p
			readVersion[item.ProductID] = loaded.Version
			order = append(order, item.ProductID)
		}

		next, tx, err := ledger.ApplyStockMovement(*p, ledger.StockMovement{
			Type:      ledger.StockOut,
			Quantity:  item.Quantity,
			Reason:    "Sale",
			Reference: saleID,
			Actor:     cmd.Actor,
		}, now)
		if err != nil {
			return salePlan{}, err
		}
		*p = next
		plan.stockMoves = append(plan.stockMoves, tx)

		if sale.Items[i].ProductName == "" {
			sale.Items[i].ProductName = p.Name
		}
		if sale.Items[i].Unit == "" {
			sale.Items[i].Unit = p.Unit
		}
	}

	saleWrite, err := ledger.Create(sale)
	if err != nil {
		return salePlan{}, err
	}
	plan.writes = append(plan.writes, saleWrite)

	for _, id := range order {
		w, err := ledger.Update(*products[id], readVersion[id])
		if err != nil {
			return salePlan{}, err
		}
		plan.writes = append(plan.writes, w)
	}
	for _, tx := range plan.stockMoves {
		w, err := ledger.Create(tx)
		if err != nil {
			return salePlan{}, err
		}
		plan.writes = append(plan.writes, w)
	}

	if cmd.CustomerID != "" {
		writes, credited, err := c.planCustomer(ctx, sale, now)
		if err != nil {
			return salePlan{}, err
		}
		plan.writes = append(plan.writes, writes...)
		plan.credited = credited
	}

	plan.sale = sale
	return plan, nil
}

// planCustomer bumps lifetime purchases and, for udhar sales with a due,
// charges the due to the customer's credit ledger.
func (c *Coordinator) planCustomer(ctx context.Context, sale ledger.Sale, now time.Time) ([]ledger.Write, bool, error) {
	needsCredit := sale.PaymentMode == ledger.PaymentUdhar && sale.AmountDue.IsPositive()

	cust, err := c.loadShopCustomer(ctx, sale.ShopID, sale.CustomerID)
	if ledger.IsNotFound(err) {
		if needsCredit {
			return nil, false, err
		}
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	readVersion := cust.Version
	cust.TotalPurchases = cust.TotalPurchases.Add(sale.Total)
	cust.UpdatedAt = now

	var writes []ledger.Write
	if needsCredit {
		var tx ledger.UdharTransaction
		cust, tx, err = ledger.ApplyCreditMovement(cust, ledger.CreditMovement{
			Type:        ledger.CreditCharge,
			Amount:      sale.AmountDue,
			Description: "Sale " + sale.SaleNumber,
			PaymentMode: string(ledger.PaymentUdhar),
			SaleID:      sale.ID,
			Actor:       sale.CreatedBy,
		}, now)
		if err != nil {
			return nil, false, err
		}
		w, err := ledger.Create(tx)
		if err != nil {
			return nil, false, err
		}
		writes = append(writes, w)
	}

	w, err := ledger.Update(cust, readVersion)
	if err != nil {
		return nil, false, err
	}
	return append([]ledger.Write{w}, writes...), needsCredit, nil
}

// =============================================================================
// SALE PAYMENT
// =============================================================================

// UpdateSalePayment adds a later payment to a sale. The customer's udhar
// balance is not touched; udhar repayments go through RecordCreditMovement.
func (c *Coordinator) UpdateSalePayment(ctx context.Context, saleID string, additional decimal.Decimal) (ledger.Sale, error) {
	if !additional.IsPositive() {
		return ledger.Sale{}, ledger.ErrInvalidAmount
	}

	var sale ledger.Sale
	err := c.withRetry(ctx, "update_sale_payment", func() error {
		current, err := ledger.Load[ledger.Sale](ctx, c.store, saleID)
		if err != nil {
			return err
		}
		paid := current.AmountPaid.Add(additional)
		if paid.GreaterThan(current.Total) {
			return ledger.Invalid("amount", "payment exceeds remaining due of %s", current.AmountDue.StringFixed(2))
		}

		sale = current
		sale.AmountPaid = paid
		sale.AmountDue = sale.Total.Sub(paid)
		sale.PaymentStatus = ledger.DerivePaymentStatus(sale.Total, paid)
		sale.UpdatedAt = c.now().UTC()

		w, err := ledger.Update(sale, current.Version)
		if err != nil {
			return err
		}
		return c.store.Commit(ctx, []ledger.Write{w})
	})
	if err != nil {
		return ledger.Sale{}, err
	}

	sale.Version++
	c.logger.WithContext(ctx).WithOperation("update_sale_payment").Info("Sale payment recorded",
		"saleId", sale.ID,
		"amount", additional.String(),
		"paymentStatus", sale.PaymentStatus,
	)
	return sale, nil
}

// =============================================================================
// SHOP-SCOPED LOADS
// =============================================================================

// loadShopProduct treats soft-deleted products and products of other
// shops as missing.
func (c *Coordinator) loadShopProduct(ctx context.Context, shopID, productID string) (ledger.Product, error) {
	p, err := ledger.Load[ledger.Product](ctx, c.store, productID)
	if err != nil {
		return p, err
	}
	if p.IsDeleted || p.ShopID != shopID {
		return ledger.Product{}, fmt.Errorf("%w: %s", ledger.ErrProductNotFound, productID)
	}
	return p, nil
}

func (c *Coordinator) loadShopCustomer(ctx context.Context, shopID, customerID string) (ledger.Customer, error) {
	cust, err := ledger.Load[ledger.Customer](ctx, c.store, customerID)
	if err != nil {
		return cust, err
	}
	if cust.IsDeleted || cust.ShopID != shopID {
		return ledger.Customer{}, fmt.Errorf("%w: %s", ledger.ErrCustomerNotFound, customerID)
	}
	return cust, nil
}
