package store

import (
	"cmp"
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"soapstock/backend/internal/domain"
)

// UnknownSupermarket is the denormalized name used when an order points at a
// supermarket the store does not know.
const UnknownSupermarket = "Unknown"

// ApplyTotals recomputes the running totals of every supermarket from the
// sales that reference it.
func ApplyTotals(supermarkets []domain.Supermarket, sales []domain.Sale) {
	type total struct {
		qty   int
		value decimal.Decimal
	}
	totals := make(map[string]total, len(supermarkets))
	for _, sale := range sales {
		t := totals[sale.SupermarketID]
		t.qty += sale.Quantity
		t.value = t.value.Add(sale.TotalValue)
		totals[sale.SupermarketID] = t
	}
	for i := range supermarkets {
		t := totals[supermarkets[i].ID]
		supermarkets[i].TotalSales = t.qty
		supermarkets[i].TotalValue = t.value
	}
}

// FillSupermarketNames sets SupermarketName on orders that lack one.
func FillSupermarketNames(orders []domain.Order, supermarkets []domain.Supermarket) {
	names := make(map[string]string, len(supermarkets))
	for _, s := range supermarkets {
		names[s.ID] = s.Name
	}
	for i := range orders {
		if name, ok := names[orders[i].SupermarketID]; ok {
			orders[i].SupermarketName = name
		} else if orders[i].SupermarketName == "" {
			orders[i].SupermarketName = UnknownSupermarket
		}
	}
}

func SortSales(sales []domain.Sale) {
	slices.SortStableFunc(sales, func(a, b domain.Sale) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func SortOrders(orders []domain.Order) {
	slices.SortStableFunc(orders, func(a, b domain.Order) int {
		if c := b.Date.Compare(a.Date); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func SortSupermarkets(supermarkets []domain.Supermarket) {
	slices.SortStableFunc(supermarkets, func(a, b domain.Supermarket) int {
		if c := strings.Compare(strings.ToLower(a.Name), strings.ToLower(b.Name)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
}

func SortStockHistory(entries []domain.StockHistoryEntry) {
	slices.SortStableFunc(entries, func(a, b domain.StockHistoryEntry) int {
		return b.Date.Compare(a.Date)
	})
}

func SortFragranceStock(levels []domain.FragranceStock) {
	slices.SortStableFunc(levels, func(a, b domain.FragranceStock) int {
		return cmp.Compare(a.FragranceID, b.FragranceID)
	})
}

// CloneSale deep-copies the slices and maps of a sale.
func CloneSale(s domain.Sale) domain.Sale {
	s.Payments = slices.Clone(s.Payments)
	if s.FragranceDistribution != nil {
		dist := make(map[string]int, len(s.FragranceDistribution))
		for k, v := range s.FragranceDistribution {
			dist[k] = v
		}
		s.FragranceDistribution = dist
	}
	return s
}

func CloneSupermarket(s domain.Supermarket) domain.Supermarket {
	s.PhoneNumbers = slices.Clone(s.PhoneNumbers)
	return s
}
