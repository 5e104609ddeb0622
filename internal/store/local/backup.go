package local

import (
	"context"
	"time"

	"soapstock/backend/internal/domain"
	"soapstock/backend/internal/store"
)

// Backup exports every local collection in one read transaction.
func (s *Store) Backup(ctx context.Context, at time.Time) (domain.Backup, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := &domain.BackupData{}
	err := s.kv.Tx(ctx, func(tx *KV) error {
		var err error
		if data.Sales, err = load[domain.Sale](ctx, tx, KeySales); err != nil {
			return err
		}
		if data.Supermarkets, err = load[domain.Supermarket](ctx, tx, KeySupermarkets); err != nil {
			return err
		}
		if data.Orders, err = load[domain.Order](ctx, tx, KeyOrders); err != nil {
			return err
		}
		if data.StockHistory, err = load[domain.StockHistoryEntry](ctx, tx, KeyStockHistory); err != nil {
			return err
		}
		data.FragranceStock, err = s.fragranceStock(ctx, tx)
		return err
	})
	if err != nil {
		return domain.Backup{}, err
	}
	store.SortSales(data.Sales)
	return domain.Backup{Version: domain.BackupVersion, Timestamp: at.UTC(), Data: data}, nil
}

// Restore replaces every local collection with the backup's content. A
// backup without fragrance levels resets them to the defaults.
func (s *Store) Restore(ctx context.Context, backup domain.Backup) error {
	if err := backup.Validate(); err != nil {
		return err
	}
	data := backup.Data
	for i := range data.Sales {
		data.Sales[i].Recalculate()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return s.kv.Tx(ctx, func(tx *KV) error {
		if err := tx.Delete(ctx, KeySales, KeySupermarkets, KeyOrders, KeyStockHistory, KeyFragranceStock); err != nil {
			return err
		}
		for key, items := range map[string]any{
			KeySales:        nonNil(data.Sales),
			KeySupermarkets: nonNil(data.Supermarkets),
			KeyOrders:       nonNil(data.Orders),
			KeyStockHistory: nonNil(data.StockHistory),
		} {
			if err := tx.Put(ctx, key, items); err != nil {
				return err
			}
		}
		if len(data.FragranceStock) > 0 {
			if err := tx.Put(ctx, KeyFragranceStock, data.FragranceStock); err != nil {
				return err
			}
		}
		return nil
	})
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
