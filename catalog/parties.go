package catalog

import (
	"context"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/smartpasal/pos-ledger/ledger"
)

// =============================================================================
// CUSTOMERS
// =============================================================================

type NewCustomer struct {
	Name        string `json:"name" validate:"required,max=200"`
	PhoneNumber string `json:"phoneNumber" validate:"max=20"`
	Address     string `json:"address" validate:"max=500"`
}

// CustomerPatch has no balance fields: totalDue moves only through udhar
// postings.
type CustomerPatch struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitempty,max=20"`
	Address     *string `json:"address" validate:"omitempty,max=500"`
}

func (s *Service) CreateCustomer(ctx context.Context, shopID string, in NewCustomer) (ledger.Customer, error) {
	if err := required("name", in.Name); err != nil {
		return ledger.Customer{}, err
	}
	now := s.clock()
	c := ledger.Customer{
		ID:             newID(),
		ShopID:         shopID,
		Name:           strings.TrimSpace(in.Name),
		PhoneNumber:    strings.TrimSpace(in.PhoneNumber),
		Address:        strings.TrimSpace(in.Address),
		TotalPurchases: decimal.Zero,
		TotalDue:       decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.create(ctx, c); err != nil {
		return ledger.Customer{}, err
	}
	c.Version = 1
	s.logger.WithContext(ctx).WithShop(shopID).Info("Customer created", "customerId", c.ID)
	return c, nil
}

func (s *Service) GetCustomer(ctx context.Context, shopID, customerID string) (ledger.Customer, error) {
	c, err := ledger.Load[ledger.Customer](ctx, s.store, customerID)
	if err != nil {
		return ledger.Customer{}, err
	}
	if c.IsDeleted || (shopID != "" && c.ShopID != shopID) {
		return ledger.Customer{}, fmt.Errorf("%w: %s", ledger.ErrCustomerNotFound, customerID)
	}
	return c, nil
}

func (s *Service) ListCustomers(ctx context.Context, shopID string) ([]ledger.Customer, error) {
	all, err := ledger.LoadAll[ledger.Customer](ctx, s.store, ledger.Query{ShopID: shopID})
	if err != nil {
		return nil, err
	}
	return live(all, func(c ledger.Customer) bool { return c.IsDeleted }), nil
}

func (s *Service) UpdateCustomer(ctx context.Context, shopID, customerID string, patch CustomerPatch) (ledger.Customer, error) {
	var out ledger.Customer
	err := s.save(ctx, func() error {
		c, err := s.GetCustomer(ctx, shopID, customerID)
		if err != nil {
			return err
		}
		read := c.Version
		setString(&c.Name, patch.Name)
		setString(&c.PhoneNumber, patch.PhoneNumber)
		setString(&c.Address, patch.Address)
		if err := required("name", c.Name); err != nil {
			return err
		}
		c.UpdatedAt = s.clock()
		if err := s.update(ctx, c, read); err != nil {
			return err
		}
		c.Version = read + 1
		out = c
		return nil
	})
	if err != nil {
		return ledger.Customer{}, err
	}
	return out, nil
}

// DeleteCustomer soft-deletes the customer. Outstanding udhar stays on
// record and still counts in reports of past sales.
func (s *Service) DeleteCustomer(ctx context.Context, shopID, customerID string) error {
	return s.save(ctx, func() error {
		c, err := s.GetCustomer(ctx, shopID, customerID)
		if err != nil {
			return err
		}
		read := c.Version
		c.IsDeleted = true
		c.UpdatedAt = s.clock()
		return s.update(ctx, c, read)
	})
}

// =============================================================================
// SUPPLIERS
// =============================================================================

type NewSupplier struct {
	Name        string `json:"name" validate:"required,max=200"`
	PhoneNumber string `json:"phoneNumber" validate:"max=20"`
	Address     string `json:"address" validate:"max=500"`
	Email       string `json:"email" validate:"omitempty,email"`
}

type SupplierPatch struct {
	Name        *string `json:"name" validate:"omitempty,min=1,max=200"`
	PhoneNumber *string `json:"phoneNumber" validate:"omitempty,max=20"`
	Address     *string `json:"address" validate:"omitempty,max=500"`
	Email       *string `json:"email" validate:"omitempty,email"`
}

func (s *Service) CreateSupplier(ctx context.Context, shopID string, in NewSupplier) (ledger.Supplier, error) {
	if err := required("name", in.Name); err != nil {
		return ledger.Supplier{}, err
	}
	now := s.clock()
	sup := ledger.Supplier{
		ID:             newID(),
		ShopID:         shopID,
		Name:           strings.TrimSpace(in.Name),
		PhoneNumber:    strings.TrimSpace(in.PhoneNumber),
		Address:        strings.TrimSpace(in.Address),
		Email:          strings.TrimSpace(in.Email),
		TotalPurchases: decimal.Zero,
		TotalDue:       decimal.Zero,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.create(ctx, sup); err != nil {
		return ledger.Supplier{}, err
	}
	sup.Version = 1
	s.logger.WithContext(ctx).WithShop(shopID).Info("Supplier created", "supplierId", sup.ID)
	return sup, nil
}

func (s *Service) GetSupplier(ctx context.Context, shopID, supplierID string) (ledger.Supplier, error) {
	sup, err := ledger.Load[ledger.Supplier](ctx, s.store, supplierID)
	if err != nil {
		return ledger.Supplier{}, err
	}
	if sup.IsDeleted || (shopID != "" && sup.ShopID != shopID) {
		return ledger.Supplier{}, fmt.Errorf("%w: %s", ledger.ErrSupplierNotFound, supplierID)
	}
	return sup, nil
}

func (s *Service) ListSuppliers(ctx context.Context, shopID string) ([]ledger.Supplier, error) {
	all, err := ledger.LoadAll[ledger.Supplier](ctx, s.store, ledger.Query{ShopID: shopID})
	if err != nil {
		return nil, err
	}
	return live(all, func(sup ledger.Supplier) bool { return sup.IsDeleted }), nil
}

func (s *Service) UpdateSupplier(ctx context.Context, shopID, supplierID string, patch SupplierPatch) (ledger.Supplier, error) {
	var out ledger.Supplier
	err := s.save(ctx, func() error {
		sup, err := s.GetSupplier(ctx, shopID, supplierID)
		if err != nil {
			return err
		}
		read := sup.Version
		setString(&sup.Name, patch.Name)
		setString(&sup.PhoneNumber, patch.PhoneNumber)
		setString(&sup.Address, patch.Address)
		setString(&sup.Email, patch.Email)
		if err := required("name", sup.Name); err != nil {
			return err
		}
		sup.UpdatedAt = s.clock()
		if err := s.update(ctx, sup, read); err != nil {
			return err
		}
		sup.Version = read + 1
		out = sup
		return nil
	})
	if err != nil {
		return ledger.Supplier{}, err
	}
	return out, nil
}

func (s *Service) DeleteSupplier(ctx context.Context, shopID, supplierID string) error {
	return s.save(ctx, func() error {
		sup, err := s.GetSupplier(ctx, shopID, supplierID)
		if err != nil {
			return err
		}
		read := sup.Version
		sup.IsDeleted = true
		sup.UpdatedAt = s.clock()
		return s.update(ctx, sup, read)
	})
}

func live[T any](all []T, deleted func(T) bool) []T {
	out := make([]T, 0, len(all))
	for _, e := range all {
		if !deleted(e) {
			out = append(out, e)
		}
	}
	return out
}
