package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/smartpasal/pos-ledger/ledger"
)

// NewProduct is the input of CreateProduct. Zero Unit and a nil
// LowStockThreshold fall back to the shop defaults.
type NewProduct struct {
	Name              string          `json:"name" validate:"required,max=200"`
	Category          string          `json:"category" validate:"required,max=100"`
	Barcode           string          `json:"barcode" validate:"max=64"`
	CostPrice         decimal.Decimal `json:"costPrice"`
	SellingPrice      decimal.Decimal `json:"sellingPrice"`
	StockQuantity     int64           `json:"stockQuantity" validate:"gte=0"`
	Unit              string          `json:"unit" validate:"max=20"`
	LowStockThreshold *int64          `json:"lowStockThreshold" validate:"omitempty,gte=0"`
	Description       string          `json:"description" validate:"max=1000"`
	ImageURL          string          `json:"imageUrl" validate:"omitempty,url"`
}

// ProductPatch edits a product. A changed StockQuantity is posted as a
// stock adjustment in the same commit, so the audit trail keeps chaining.
type ProductPatch struct {
	Name              *string          `json:"name" validate:"omitempty,min=1,max=200"`
	Category          *string          `json:"category" validate:"omitempty,min=1,max=100"`
	Barcode           *string          `json:"barcode" validate:"omitempty,max=64"`
	CostPrice         *decimal.Decimal `json:"costPrice"`
	SellingPrice      *decimal.Decimal `json:"sellingPrice"`
	StockQuantity     *int64           `json:"stockQuantity" validate:"omitempty,gte=0"`
	Unit              *string          `json:"unit" validate:"omitempty,min=1,max=20"`
	LowStockThreshold *int64           `json:"lowStockThreshold" validate:"omitempty,gte=0"`
	Description       *string          `json:"description" validate:"omitempty,max=1000"`
	ImageURL          *string          `json:"imageUrl" validate:"omitempty,url"`

	Actor string `json:"-"`
}

// ProductFilter narrows ListProducts. Search matches name
// case-insensitively or a barcode substring.
type ProductFilter struct {
	Category string
	Search   string
}

func (f ProductFilter) matches(p ledger.Product) bool {
	if p.IsDeleted {
		return false
	}
	if f.Category != "" && p.Category != f.Category {
		return false
	}
	if f.Search != "" {
		term := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(p.Name), term) && !strings.Contains(p.Barcode, term) {
			return false
		}
	}
	return true
}

// =============================================================================
// OPERATIONS
// =============================================================================

func (s *Service) CreateProduct(ctx context.Context, shopID string, in NewProduct) (ledger.Product, error) {
	if err := required("name", in.Name); err != nil {
		return ledger.Product{}, err
	}
	if err := required("category", in.Category); err != nil {
		return ledger.Product{}, err
	}
	if err := nonNegative("costPrice", in.CostPrice); err != nil {
		return ledger.Product{}, err
	}
	if err := nonNegative("sellingPrice", in.SellingPrice); err != nil {
		return ledger.Product{}, err
	}
	if in.StockQuantity < 0 {
		return ledger.Product{}, ledger.Invalid("stockQuantity", "must not be negative")
	}

	now := s.clock()
	p := ledger.Product{
		ID:                newID(),
		ShopID:            shopID,
		Name:              strings.TrimSpace(in.Name),
		Category:          strings.TrimSpace(in.Category),
		Barcode:           strings.TrimSpace(in.Barcode),
		CostPrice:         in.CostPrice,
		SellingPrice:      in.SellingPrice,
		StockQuantity:     in.StockQuantity,
		Unit:              DefaultUnit,
		LowStockThreshold: DefaultLowStockThreshold,
		Description:       in.Description,
		ImageURL:          in.ImageURL,
		CreatedAt:         now,
		UpdatedAt:         now,
	}
	if u := strings.TrimSpace(in.Unit); u != "" {
		p.Unit = u
	}
	if in.LowStockThreshold != nil {
		p.LowStockThreshold = *in.LowStockThreshold
	}

	if err := s.create(ctx, p); err != nil {
		return ledger.Product{}, err
	}
	p.Version = 1
	s.logger.WithContext(ctx).WithShop(shopID).Info("Product created", "productId", p.ID, "name", p.Name)
	return p, nil
}

// GetProduct returns a live product. A non-empty shopID also requires
// the product to belong to that shop.
func (s *Service) GetProduct(ctx context.Context, shopID, productID string) (ledger.Product, error) {
	p, err := ledger.Load[ledger.Product](ctx, s.store, productID)
	if err != nil {
		return ledger.Product{}, err
	}
	if p.IsDeleted || (shopID != "" && p.ShopID != shopID) {
		return ledger.Product{}, fmt.Errorf("%w: %s", ledger.ErrProductNotFound, productID)
	}
	return p, nil
}

func (s *Service) ListProducts(ctx context.Context, shopID string, f ProductFilter) ([]ledger.Product, error) {
	all, err := ledger.LoadAll[ledger.Product](ctx, s.store, ledger.Query{ShopID: shopID})
	if err != nil {
		return nil, err
	}
	out := make([]ledger.Product, 0, len(all))
	for _, p := range all {
		if f.matches(p) {
			out = append(out, p)
		}
	}
	return out, nil
}

// LowStockProducts lists live products at or under their threshold.
func (s *Service) LowStockProducts(ctx context.Context, shopID string) ([]ledger.Product, error) {
	all, err := s.ListProducts(ctx, shopID, ProductFilter{})
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, p := range all {
		if p.IsLowStock() {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *Service) UpdateProduct(ctx context.Context, shopID, productID string, patch ProductPatch) (ledger.Product, error) {
	for field, d := range map[string]*decimal.Decimal{"costPrice": patch.CostPrice, "sellingPrice": patch.SellingPrice} {
		if d != nil {
			if err := nonNegative(field, *d); err != nil {
				return ledger.Product{}, err
			}
		}
	}
	if patch.StockQuantity != nil && *patch.StockQuantity < 0 {
		return ledger.Product{}, ledger.Invalid("stockQuantity", "must not be negative")
	}

	var out ledger.Product
	err := s.save(ctx, func() error {
		p, err := s.GetProduct(ctx, shopID, productID)
		if err != nil {
			return err
		}
		read := p.Version

		setString(&p.Name, patch.Name)
		setString(&p.Category, patch.Category)
		setString(&p.Barcode, patch.Barcode)
		setString(&p.Unit, patch.Unit)
		setString(&p.Description, patch.Description)
		setString(&p.ImageURL, patch.ImageURL)
		if patch.CostPrice != nil {
			p.CostPrice = *patch.CostPrice
		}
		if patch.SellingPrice != nil {
			p.SellingPrice = *patch.SellingPrice
		}
		if patch.LowStockThreshold != nil {
			p.LowStockThreshold = *patch.LowStockThreshold
		}
		if err := required("name", p.Name); err != nil {
			return err
		}
		now := s.clock()
		p.UpdatedAt = now

		var extra []ledger.Entity
		if patch.StockQuantity != nil && *patch.StockQuantity != p.StockQuantity {
			adjusted, tx, err := ledger.ApplyStockMovement(p, ledger.StockMovement{
				Type:     ledger.StockAdjustment,
				Quantity: *patch.StockQuantity,
				Reason:   "Product edited",
				Actor:    patch.Actor,
			}, now)
			if err != nil {
				return err
			}
			p = adjusted
			extra = append(extra, tx)
		}

		if err := s.update(ctx, p, read, extra...); err != nil {
			return err
		}
		p.Version = read + 1
		out = p
		return nil
	})
	if err != nil {
		return ledger.Product{}, err
	}
	s.logger.WithContext(ctx).WithShop(shopID).Info("Product updated", "productId", productID)
	return out, nil
}

// DeleteProduct flags the product deleted. Deleting twice is not found.
func (s *Service) DeleteProduct(ctx context.Context, shopID, productID string) error {
	err := s.save(ctx, func() error {
		p, err := s.GetProduct(ctx, shopID, productID)
		if err != nil {
			return err
		}
		read := p.Version
		p.IsDeleted = true
		p.UpdatedAt = s.clock()
		return s.update(ctx, p, read)
	})
	if err != nil {
		return err
	}
	s.logger.WithContext(ctx).WithShop(shopID).Info("Product deleted", "productId", productID)
	return nil
}
