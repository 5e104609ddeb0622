// Package local is the offline store: every entity collection is kept as a
// JSON document in a sqlite key/value table so writes survive restarts.
package local

import (
	"context"
	"fmt"
	"slices"
	"sync"

	"soapstock/backend/internal/business"
	"soapstock/backend/internal/domain"
	"soapstock/backend/internal/store"
)

const (
	KeySales          = "offline_sales"
	KeySupermarkets   = "offline_supermarkets"
	KeyOrders         = "offline_orders"
	KeyStockHistory   = "offline_stock_history"
	KeyFragranceStock = "offline_fragrance_stock"
)

type Store struct {
	kv *KV
	// serializes read-modify-write of the collections
	mu sync.Mutex
}

var (
	_ store.Repository = (*Store)(nil)
	_ store.Importer   = (*Store)(nil)
)

func New(kv *KV) *Store {
	return &Store{kv: kv}
}

func (s *Store) KV() *KV { return s.kv }

func load[T any](ctx context.Context, kv *KV, key string) ([]T, error) {
	var items []T
	if _, err := kv.Get(ctx, key, &items); err != nil {
		return nil, err
	}
	if items == nil {
		items = []T{}
	}
	return items, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	sales, err := load[domain.Sale](ctx, s.kv, KeySales)
	if err != nil {
		return nil, err
	}
	store.SortSales(sales)
	return sales, nil
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out domain.Sale
	err := s.kv.Tx(ctx, func(tx *KV) error {
		sales, err := load[domain.Sale](ctx, tx, KeySales)
		if err != nil {
			return err
		}
		if i := slices.IndexFunc(sales, func(x domain.Sale) bool { return x.ID == sale.ID }); i >= 0 {
			out = sales[i]
			return nil
		}
		sale = store.CloneSale(sale)
		sale.Recalculate()
		sales = append(sales, sale)
		out = sale
		return s.saveSalesWithTotals(ctx, tx, sales)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.kv.Tx(ctx, func(tx *KV) error {
		sales, err := load[domain.Sale](ctx, tx, KeySales)
		if err != nil {
			return err
		}
		i := slices.IndexFunc(sales, func(x domain.Sale) bool { return x.ID == id })
		if i < 0 {
			return store.ErrNotFound
		}
		sales = slices.Delete(sales, i, i+1)
		return s.saveSalesWithTotals(ctx, tx, sales)
	})
}

func (s *Store) AddPayment(ctx context.Context, saleID string, payment domain.Payment) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out domain.Sale
	err := s.kv.Tx(ctx, func(tx *KV) error {
		sales, err := load[domain.Sale](ctx, tx, KeySales)
		if err != nil {
			return err
		}
		i := slices.IndexFunc(sales, func(x domain.Sale) bool { return x.ID == saleID })
		if i < 0 {
			return store.ErrNotFound
		}
		if err := sales[i].AppendPayment(payment); err != nil {
			return err
		}
		out = sales[i]
		return tx.Put(ctx, KeySales, sales)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) saveSalesWithTotals(ctx context.Context, tx *KV, sales []domain.Sale) error {
	supermarkets, err := load[domain.Supermarket](ctx, tx, KeySupermarkets)
	if err != nil {
		return err
	}
	store.ApplyTotals(supermarkets, sales)
	if err := tx.Put(ctx, KeySales, sales); err != nil {
		return err
	}
	return tx.Put(ctx, KeySupermarkets, supermarkets)
}

func (s *Store) ListSupermarkets(ctx context.Context) ([]domain.Supermarket, error) {
	supermarkets, err := load[domain.Supermarket](ctx, s.kv, KeySupermarkets)
	if err != nil {
		return nil, err
	}
	store.SortSupermarkets(supermarkets)
	return supermarkets, nil
}

func (s *Store) CreateSupermarket(ctx context.Context, supermarket domain.Supermarket) (*domain.Supermarket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out domain.Supermarket
	err := s.kv.Tx(ctx, func(tx *KV) error {
		supermarkets, err := load[domain.Supermarket](ctx, tx, KeySupermarkets)
		if err != nil {
			return err
		}
		if i := slices.IndexFunc(supermarkets, func(x domain.Supermarket) bool { return x.ID == supermarket.ID }); i >= 0 {
			out = supermarkets[i]
			return nil
		}
		supermarkets = append(supermarkets, store.CloneSupermarket(supermarket))
		sales, err := load[domain.Sale](ctx, tx, KeySales)
		if err != nil {
			return err
		}
		store.ApplyTotals(supermarkets, sales)
		out = supermarkets[len(supermarkets)-1]
		return tx.Put(ctx, KeySupermarkets, supermarkets)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) UpdateSupermarket(ctx context.Context, id string, patch domain.SupermarketPatch) (*domain.Supermarket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out domain.Supermarket
	err := s.kv.Tx(ctx, func(tx *KV) error {
		supermarkets, err := load[domain.Supermarket](ctx, tx, KeySupermarkets)
		if err != nil {
			return err
		}
		i := slices.IndexFunc(supermarkets, func(x domain.Supermarket) bool { return x.ID == id })
		if i < 0 {
			return store.ErrNotFound
		}
		patch.Apply(&supermarkets[i])
		out = supermarkets[i]
		return tx.Put(ctx, KeySupermarkets, supermarkets)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) DeleteSupermarket(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.kv.Tx(ctx, func(tx *KV) error {
		supermarkets, err := load[domain.Supermarket](ctx, tx, KeySupermarkets)
		if err != nil {
			return err
		}
		i := slices.IndexFunc(supermarkets, func(x domain.Supermarket) bool { return x.ID == id })
		if i < 0 {
			return store.ErrNotFound
		}
		sales, err := load[domain.Sale](ctx, tx, KeySales)
		if err != nil {
			return err
		}
		orders, err := load[domain.Order](ctx, tx, KeyOrders)
		if err != nil {
			return err
		}
		if slices.ContainsFunc(sales, func(x domain.Sale) bool { return x.SupermarketID == id }) ||
			slices.ContainsFunc(orders, func(x domain.Order) bool { return x.SupermarketID == id }) {
			return fmt.Errorf("%w: supermarket %s is referenced by sales or orders", store.ErrConflict, id)
		}
		return tx.Put(ctx, KeySupermarkets, slices.Delete(supermarkets, i, i+1))
	})
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	orders, err := load[domain.Order](ctx, s.kv, KeyOrders)
	if err != nil {
		return nil, err
	}
	supermarkets, err := load[domain.Supermarket](ctx, s.kv, KeySupermarkets)
	if err != nil {
		return nil, err
	}
	store.FillSupermarketNames(orders, supermarkets)
	store.SortOrders(orders)
	return orders, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out domain.Order
	err := s.kv.Tx(ctx, func(tx *KV) error {
		orders, err := load[domain.Order](ctx, tx, KeyOrders)
		if err != nil {
			return err
		}
		if i := slices.IndexFunc(orders, func(x domain.Order) bool { return x.ID == order.ID }); i >= 0 {
			out = orders[i]
			return nil
		}
		orders = append(orders, order)
		out = order
		return tx.Put(ctx, KeyOrders, orders)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out domain.Order
	err := s.kv.Tx(ctx, func(tx *KV) error {
		orders, err := load[domain.Order](ctx, tx, KeyOrders)
		if err != nil {
			return err
		}
		i := slices.IndexFunc(orders, func(x domain.Order) bool { return x.ID == id })
		if i < 0 {
			return store.ErrNotFound
		}
		orders[i].Status = status
		out = orders[i]
		return tx.Put(ctx, KeyOrders, orders)
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.kv.Tx(ctx, func(tx *KV) error {
		orders, err := load[domain.Order](ctx, tx, KeyOrders)
		if err != nil {
			return err
		}
		i := slices.IndexFunc(orders, func(x domain.Order) bool { return x.ID == id })
		if i < 0 {
			return store.ErrNotFound
		}
		return tx.Put(ctx, KeyOrders, slices.Delete(orders, i, i+1))
	})
}

func (s *Store) ListStockHistory(ctx context.Context, limit int) ([]domain.StockHistoryEntry, error) {
	entries, err := load[domain.StockHistoryEntry](ctx, s.kv, KeyStockHistory)
	if err != nil {
		return nil, err
	}
	store.SortStockHistory(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

// ListFragranceStock seeds the eight default fragrances at zero the first
// time it is read.
func (s *Store) ListFragranceStock(ctx context.Context) ([]domain.FragranceStock, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fragranceStock(ctx, s.kv)
}

func (s *Store) fragranceStock(ctx context.Context, kv *KV) ([]domain.FragranceStock, error) {
	var levels []domain.FragranceStock
	found, err := kv.Get(ctx, KeyFragranceStock, &levels)
	if err != nil {
		return nil, err
	}
	if !found {
		levels = domain.DefaultFragranceStock()
		if err := kv.Put(ctx, KeyFragranceStock, levels); err != nil {
			return nil, err
		}
	}
	store.SortFragranceStock(levels)
	return levels, nil
}

func (s *Store) ApplyStockMovement(ctx context.Context, movement domain.StockMovement) (*domain.StockHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out domain.StockHistoryEntry
	err := s.kv.Tx(ctx, func(tx *KV) error {
		history, err := load[domain.StockHistoryEntry](ctx, tx, KeyStockHistory)
		if err != nil {
			return err
		}
		if i := slices.IndexFunc(history, func(x domain.StockHistoryEntry) bool { return x.ID == movement.EntryID }); i >= 0 {
			out = history[i]
			return nil
		}
		levels, err := s.fragranceStock(ctx, tx)
		if err != nil {
			return err
		}
		next, err := business.ApplyDeltas(levels, movement.Deltas)
		if err != nil {
			return err
		}
		out = movement.Entry(business.TotalStock(next))
		if err := tx.Put(ctx, KeyFragranceStock, next); err != nil {
			return err
		}
		return tx.Put(ctx, KeyStockHistory, append(history, out))
	})
	if err != nil {
		return nil, err
	}
	return &out, nil
}

func (s *Store) ImportStockEntry(ctx context.Context, entry domain.StockHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.kv.Tx(ctx, func(tx *KV) error {
		history, err := load[domain.StockHistoryEntry](ctx, tx, KeyStockHistory)
		if err != nil {
			return err
		}
		if i := slices.IndexFunc(history, func(x domain.StockHistoryEntry) bool { return x.ID == entry.ID }); i >= 0 {
			history[i] = entry
		} else {
			history = append(history, entry)
		}
		return tx.Put(ctx, KeyStockHistory, history)
	})
}

func (s *Store) ImportFragranceStock(ctx context.Context, level domain.FragranceStock) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.kv.Tx(ctx, func(tx *KV) error {
		levels, err := s.fragranceStock(ctx, tx)
		if err != nil {
			return err
		}
		if i := slices.IndexFunc(levels, func(x domain.FragranceStock) bool { return x.FragranceID == level.FragranceID }); i >= 0 {
			levels[i] = level
		} else {
			levels = append(levels, level)
		}
		return tx.Put(ctx, KeyFragranceStock, levels)
	})
}
