// Package memory is an in-process remote store used in development (no
// database configured) and as the remote in tests.
package memory

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"soapstock/backend/internal/business"
	"soapstock/backend/internal/domain"
	"soapstock/backend/internal/store"
)

type Store struct {
	mu                sync.RWMutex
	sales             map[string]domain.Sale
	supermarketsByID  map[string]domain.Supermarket
	ordersByID        map[string]domain.Order
	stockHistory      []domain.StockHistoryEntry
	fragranceStock    map[string]domain.FragranceStock
	processedPayments map[string]bool
}

var _ store.RemoteStore = (*Store)(nil)

func New() *Store {
	levels := make(map[string]domain.FragranceStock, len(domain.DefaultFragrances))
	for _, f := range domain.DefaultFragranceStock() {
		levels[f.FragranceID] = f
	}
	return &Store{
		sales:             make(map[string]domain.Sale),
		supermarketsByID:  make(map[string]domain.Supermarket),
		ordersByID:        make(map[string]domain.Order),
		fragranceStock:    levels,
		processedPayments: make(map[string]bool),
	}
}

// NewSeeded returns a store with one supermarket and some stock so the
// development server has something to show.
func NewSeeded() *Store {
	s := New()
	now := time.Now().UTC()
	s.supermarketsByID["demo-supermarket"] = domain.Supermarket{
		ID:           "demo-supermarket",
		Name:         "Supérette Centrale",
		Address:      "Rue Didouche Mourad, Alger",
		PhoneNumbers: []domain.PhoneNumber{{Name: "Gérant", Number: "+213550123456"}},
		Latitude:     36.7538,
		Longitude:    3.0588,
		TotalValue:   decimal.Zero,
	}

	deltas := make(map[string]int, len(domain.DefaultFragrances))
	for _, f := range domain.DefaultFragrances {
		deltas[f.FragranceID] = 10
	}
	if _, err := s.ApplyStockMovement(context.Background(), domain.StockMovement{
		EntryID:  "seed-stock",
		Date:     now,
		Quantity: 10 * len(deltas),
		Type:     domain.StockAdded,
		Reason:   "Stock initial",
		Deltas:   deltas,
	}); err != nil {
		panic(fmt.Sprintf("seed memory store: %v", err))
	}
	return s
}

func (s *Store) ListSales(_ context.Context) ([]domain.Sale, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Sale, 0, len(s.sales))
	for _, sale := range s.sales {
		out = append(out, store.CloneSale(sale))
	}
	store.SortSales(out)
	return out, nil
}

func (s *Store) CreateSale(_ context.Context, sale domain.Sale) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sales[sale.ID]; ok {
		out := store.CloneSale(existing)
		return &out, nil
	}
	if _, ok := s.supermarketsByID[sale.SupermarketID]; !ok {
		return nil, fmt.Errorf("%w: supermarket %s", store.ErrNotFound, sale.SupermarketID)
	}
	sale = store.CloneSale(sale)
	sale.Recalculate()
	for _, p := range sale.Payments {
		s.processedPayments[p.ID] = true
	}
	s.sales[sale.ID] = sale
	s.refreshTotalsLocked(sale.SupermarketID)

	out := store.CloneSale(sale)
	return &out, nil
}

func (s *Store) DeleteSale(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[id]
	if !ok {
		return store.ErrNotFound
	}
	delete(s.sales, id)
	s.refreshTotalsLocked(sale.SupermarketID)
	return nil
}

func (s *Store) AddPayment(_ context.Context, saleID string, payment domain.Payment) (*domain.Sale, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sale, ok := s.sales[saleID]
	if !ok {
		return nil, store.ErrNotFound
	}
	if !s.processedPayments[payment.ID] {
		if err := sale.AppendPayment(payment); err != nil {
			return nil, err
		}
		s.processedPayments[payment.ID] = true
		s.sales[saleID] = sale
	}
	out := store.CloneSale(sale)
	return &out, nil
}

func (s *Store) refreshTotalsLocked(supermarketID string) {
	supermarket, ok := s.supermarketsByID[supermarketID]
	if !ok {
		return
	}
	sales := make([]domain.Sale, 0)
	for _, sale := range s.sales {
		if sale.SupermarketID == supermarketID {
			sales = append(sales, sale)
		}
	}
	one := []domain.Supermarket{supermarket}
	store.ApplyTotals(one, sales)
	s.supermarketsByID[supermarketID] = one[0]
}

func (s *Store) ListSupermarkets(_ context.Context) ([]domain.Supermarket, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Supermarket, 0, len(s.supermarketsByID))
	for _, supermarket := range s.supermarketsByID {
		out = append(out, store.CloneSupermarket(supermarket))
	}
	store.SortSupermarkets(out)
	return out, nil
}

func (s *Store) CreateSupermarket(_ context.Context, supermarket domain.Supermarket) (*domain.Supermarket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.supermarketsByID[supermarket.ID]; ok {
		out := store.CloneSupermarket(existing)
		return &out, nil
	}
	if supermarket.LegacyID != "" {
		for _, existing := range s.supermarketsByID {
			if existing.LegacyID == supermarket.LegacyID {
				return nil, fmt.Errorf("%w: legacy supermarket %s already migrated", store.ErrConflict, supermarket.LegacyID)
			}
		}
	}
	supermarket = store.CloneSupermarket(supermarket)
	s.supermarketsByID[supermarket.ID] = supermarket
	s.refreshTotalsLocked(supermarket.ID)

	out := store.CloneSupermarket(s.supermarketsByID[supermarket.ID])
	return &out, nil
}

func (s *Store) UpdateSupermarket(_ context.Context, id string, patch domain.SupermarketPatch) (*domain.Supermarket, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	supermarket, ok := s.supermarketsByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	patch.Apply(&supermarket)
	s.supermarketsByID[id] = supermarket

	out := store.CloneSupermarket(supermarket)
	return &out, nil
}

func (s *Store) DeleteSupermarket(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.supermarketsByID[id]; !ok {
		return store.ErrNotFound
	}
	for _, sale := range s.sales {
		if sale.SupermarketID == id {
			return fmt.Errorf("%w: supermarket %s has sales", store.ErrConflict, id)
		}
	}
	for _, order := range s.ordersByID {
		if order.SupermarketID == id {
			return fmt.Errorf("%w: supermarket %s has orders", store.ErrConflict, id)
		}
	}
	delete(s.supermarketsByID, id)
	return nil
}

func (s *Store) ListOrders(_ context.Context) ([]domain.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Order, 0, len(s.ordersByID))
	for _, order := range s.ordersByID {
		out = append(out, order)
	}
	supermarkets := make([]domain.Supermarket, 0, len(s.supermarketsByID))
	for _, supermarket := range s.supermarketsByID {
		supermarkets = append(supermarkets, supermarket)
	}
	store.FillSupermarketNames(out, supermarkets)
	store.SortOrders(out)
	return out, nil
}

func (s *Store) CreateOrder(_ context.Context, order domain.Order) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.ordersByID[order.ID]; ok {
		return &existing, nil
	}
	supermarket, ok := s.supermarketsByID[order.SupermarketID]
	if !ok {
		return nil, fmt.Errorf("%w: supermarket %s", store.ErrNotFound, order.SupermarketID)
	}
	order.SupermarketName = supermarket.Name
	s.ordersByID[order.ID] = order
	return &order, nil
}

func (s *Store) UpdateOrderStatus(_ context.Context, id string, status string) (*domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	order, ok := s.ordersByID[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	order.Status = status
	s.ordersByID[id] = order
	return &order, nil
}

func (s *Store) DeleteOrder(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.ordersByID[id]; !ok {
		return store.ErrNotFound
	}
	delete(s.ordersByID, id)
	return nil
}

func (s *Store) ListStockHistory(_ context.Context, limit int) ([]domain.StockHistoryEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := slices.Clone(s.stockHistory)
	store.SortStockHistory(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) ListFragranceStock(_ context.Context) ([]domain.FragranceStock, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.levelsLocked(), nil
}

func (s *Store) levelsLocked() []domain.FragranceStock {
	out := make([]domain.FragranceStock, 0, len(s.fragranceStock))
	for _, level := range s.fragranceStock {
		out = append(out, level)
	}
	store.SortFragranceStock(out)
	return out
}

func (s *Store) ApplyStockMovement(_ context.Context, movement domain.StockMovement) (*domain.StockHistoryEntry, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, entry := range s.stockHistory {
		if entry.ID == movement.EntryID {
			out := entry
			return &out, nil
		}
	}
	next, err := business.ApplyDeltas(s.levelsLocked(), movement.Deltas)
	if err != nil {
		return nil, err
	}
	for _, level := range next {
		s.fragranceStock[level.FragranceID] = level
	}
	entry := movement.Entry(business.TotalStock(next))
	s.stockHistory = append(s.stockHistory, entry)
	return &entry, nil
}

func (s *Store) ImportStockEntry(_ context.Context, entry domain.StockHistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.stockHistory {
		if s.stockHistory[i].ID == entry.ID {
			s.stockHistory[i] = entry
			return nil
		}
	}
	s.stockHistory = append(s.stockHistory, entry)
	return nil
}

func (s *Store) ImportFragranceStock(_ context.Context, level domain.FragranceStock) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fragranceStock[level.FragranceID] = level
	return nil
}
