package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smartpasal/pos-ledger/ledger"
)

// ShopProfile is what an owner can set on their shop.
type ShopProfile struct {
	Name        string `json:"name" validate:"required,max=200"`
	OwnerName   string `json:"ownerName" validate:"required,max=200"`
	PhoneNumber string `json:"phoneNumber" validate:"required,max=20"`
	Address     string `json:"address" validate:"max=500"`
	PAN         string `json:"pan" validate:"max=20"`
	VAT         string `json:"vat" validate:"max=20"`
}

// SaveShop creates the owner's shop or updates the one they have.
// created reports which of the two happened.
func (s *Service) SaveShop(ctx context.Context, ownerID string, in ShopProfile) (shop ledger.Shop, created bool, err error) {
	if err := required("ownerId", ownerID); err != nil {
		return ledger.Shop{}, false, err
	}
	for field, v := range map[string]string{"name": in.Name, "ownerName": in.OwnerName, "phoneNumber": in.PhoneNumber} {
		if err := required(field, v); err != nil {
			return ledger.Shop{}, false, err
		}
	}

	err = s.save(ctx, func() error {
		existing, err := s.ShopByOwner(ctx, ownerID)
		switch {
		case ledger.IsNotFound(err):
			now := s.clock()
			shop = ledger.Shop{ID: newID(), OwnerID: ownerID, Currency: DefaultCurrency, CreatedAt: now}
			applyProfile(&shop, in, now)
			if err := s.create(ctx, shop); err != nil {
				return err
			}
			shop.Version, created = 1, true
			return nil
		case err != nil:
			return err
		}

		shop = existing
		applyProfile(&shop, in, s.clock())
		if err := s.update(ctx, shop, existing.Version); err != nil {
			return err
		}
		shop.Version, created = existing.Version+1, false
		return nil
	})
	if err != nil {
		return ledger.Shop{}, false, err
	}
	s.logger.WithContext(ctx).WithShop(shop.ID).Info("Shop saved", "ownerId", ownerID, "created", created)
	return shop, created, nil
}

func applyProfile(shop *ledger.Shop, in ShopProfile, now time.Time) {
	shop.Name = trimmed(in.Name)
	shop.OwnerName = trimmed(in.OwnerName)
	shop.PhoneNumber = trimmed(in.PhoneNumber)
	shop.Address = trimmed(in.Address)
	shop.PAN = trimmed(in.PAN)
	shop.VAT = trimmed(in.VAT)
	shop.UpdatedAt = now
}

// ListShops returns every shop, oldest change first.
func (s *Service) ListShops(ctx context.Context) ([]ledger.Shop, error) {
	return ledger.LoadAll[ledger.Shop](ctx, s.store, ledger.Query{})
}

// ShopByOwner returns the shop owned by ownerID. An owner has at most one.
func (s *Service) ShopByOwner(ctx context.Context, ownerID string) (ledger.Shop, error) {
	shops, err := s.ListShops(ctx)
	if err != nil {
		return ledger.Shop{}, err
	}
	for _, shop := range shops {
		if shop.OwnerID == ownerID {
			return shop, nil
		}
	}
	return ledger.Shop{}, fmt.Errorf("%w: owner %s", ledger.ErrShopNotFound, ownerID)
}

func (s *Service) GetShop(ctx context.Context, shopID string) (ledger.Shop, error) {
	return ledger.Load[ledger.Shop](ctx, s.store, shopID)
}

func trimmed(v string) string { return strings.TrimSpace(v) }
