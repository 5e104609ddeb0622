package local

import (
	"context"
	"fmt"

	"soapstock/backend/internal/domain"
)

var entityKeys = map[domain.Entity]string{
	domain.EntitySales:          KeySales,
	domain.EntitySupermarkets:   KeySupermarkets,
	domain.EntityOrders:         KeyOrders,
	domain.EntityStockHistory:   KeyStockHistory,
	domain.EntityFragranceStock: KeyFragranceStock,
}

func KeyFor(entity domain.Entity) (string, bool) {
	key, ok := entityKeys[entity]
	return key, ok
}

// Replace overwrites the local collection of entity with items, which must
// be the matching slice type. Used to mirror remote state once the queue is
// empty.
func (s *Store) Replace(ctx context.Context, entity domain.Entity, items any) error {
	key, ok := KeyFor(entity)
	if !ok {
		return fmt.Errorf("unknown entity %q", entity)
	}
	switch items.(type) {
	case []domain.Sale, []domain.Supermarket, []domain.Order, []domain.StockHistoryEntry, []domain.FragranceStock:
	default:
		return fmt.Errorf("cannot store %T as %s", items, entity)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Put(ctx, key, items)
}
