package ledger

import (
	"context"
	"errors"
	"fmt"
)

type storedEntity[T any] interface {
	*T
	setStoreFields(Document)
}

// Load reads and decodes one entity. A missing document yields
// ErrNotFound wrapped with the kind.
func Load[T Entity, PT storedEntity[T]](ctx context.Context, s Store, id string) (T, error) {
	var zero T
	kind := zero.DocumentKind()

	doc, err := s.Get(ctx, kind, id)
	if errors.Is(err, ErrNotFound) {
		return zero, notFound(kind, id)
	}
	if err != nil {
		return zero, err
	}
	return Decode[T, PT](doc)
}

// LoadAll runs q and decodes every result, preserving store order.
func LoadAll[T Entity, PT storedEntity[T]](ctx context.Context, s Store, q Query) ([]T, error) {
	var zero T
	if q.Kind == "" {
		q.Kind = zero.DocumentKind()
	}
	docs, err := s.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(docs))
	for _, doc := range docs {
		v, err := Decode[T, PT](doc)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func notFound(kind Kind, id string) error {
	var sentinel error
	switch kind {
	case KindShops:
		sentinel = ErrShopNotFound
	case KindProducts:
		sentinel = ErrProductNotFound
	case KindCustomers:
		sentinel = ErrCustomerNotFound
	case KindSuppliers:
		sentinel = ErrSupplierNotFound
	case KindSales:
		sentinel = ErrSaleNotFound
	default:
		sentinel = ErrNotFound
	}
	return fmt.Errorf("%w: %s", sentinel, id)
}
