package service

import (
	"context"
	"fmt"
	"strings"

	"soapstock/backend/internal/business"
	"soapstock/backend/internal/domain"
	"soapstock/backend/internal/xid"
)

const defaultHistoryLimit = 100

func (s *Service) ListStockHistory(ctx context.Context, limit int) ([]domain.StockHistoryEntry, error) {
	if limit < 1 {
		limit = defaultHistoryLimit
	}
	return s.storage.ListStockHistory(ctx, limit)
}

func (s *Service) ListFragranceStock(ctx context.Context) ([]domain.FragranceStock, error) {
	return s.storage.ListFragranceStock(ctx)
}

// UpdateStock records a signed carton movement. Without explicit fragrance
// deltas, additions are spread evenly and removals are taken from the
// best-stocked fragrances.
func (s *Service) UpdateStock(ctx context.Context, req domain.StockUpdateRequest) (domain.StockHistoryEntry, error) {
	if err := check(req); err != nil {
		return domain.StockHistoryEntry{}, err
	}
	switch {
	case req.Type == domain.StockAdded && req.Quantity < 0:
		return domain.StockHistoryEntry{}, domain.Invalid("quantity", "must be positive for an addition")
	case req.Type == domain.StockRemoved && req.Quantity > 0:
		return domain.StockHistoryEntry{}, domain.Invalid("quantity", "must be negative for a removal")
	}

	levels, err := s.storage.ListFragranceStock(ctx)
	if err != nil {
		return domain.StockHistoryEntry{}, err
	}

	deltas := req.FragranceDeltas
	switch {
	case len(deltas) > 0:
		known := make(map[string]bool, len(levels))
		for _, level := range levels {
			known[level.FragranceID] = true
		}
		for id := range deltas {
			if !known[id] {
				return domain.StockHistoryEntry{}, domain.Invalid("fragranceDeltas", fmt.Sprintf("unknown fragrance %q", id))
			}
		}
		if sum := business.SumDistribution(deltas); sum != req.Quantity {
			return domain.StockHistoryEntry{}, domain.Invalid("fragranceDeltas", fmt.Sprintf("deltas total %d cartons, expected %d", sum, req.Quantity))
		}
	case req.Quantity > 0:
		ids := make([]string, 0, len(levels))
		for _, level := range levels {
			ids = append(ids, level.FragranceID)
		}
		deltas = business.EvenDistribution(ids, req.Quantity)
	default:
		taken, err := business.AllocateFromStock(levels, -req.Quantity)
		if err != nil {
			return domain.StockHistoryEntry{}, err
		}
		deltas = business.Negate(taken)
	}
	if _, err := business.ApplyDeltas(levels, deltas); err != nil {
		return domain.StockHistoryEntry{}, err
	}

	entry, err := s.storage.UpdateStock(ctx, domain.StockMovement{
		EntryID:  defaultString(strings.TrimSpace(req.ID), xid.New("stock")),
		Date:     s.today(),
		Quantity: req.Quantity,
		Type:     req.Type,
		Reason:   strings.TrimSpace(req.Reason),
		Deltas:   deltas,
	})
	if err != nil {
		return domain.StockHistoryEntry{}, err
	}
	return *entry, nil
}

// SetFragranceStock sets one fragrance to an absolute level, recorded as an
// adjustment.
func (s *Service) SetFragranceStock(ctx context.Context, fragranceID string, req domain.FragranceStockRequest) (domain.StockHistoryEntry, error) {
	if err := check(req); err != nil {
		return domain.StockHistoryEntry{}, err
	}
	fragranceID = strings.TrimSpace(fragranceID)
	reason := strings.TrimSpace(req.Reason)
	if reason == "" {
		reason = fmt.Sprintf("Ajustement parfum %s", fragranceID)
	}
	entry, err := s.storage.SetFragranceLevel(ctx, fragranceID, req.Quantity, domain.StockMovement{
		EntryID: defaultString(strings.TrimSpace(req.ID), xid.New("stock")),
		Date:    s.today(),
		Reason:  reason,
	})
	if err != nil {
		return domain.StockHistoryEntry{}, err
	}
	return *entry, nil
}
