package service

import (
	"context"
	"fmt"
	"strings"

	"soapstock/backend/internal/business"
	"soapstock/backend/internal/domain"
	"soapstock/backend/internal/store"
	"soapstock/backend/internal/xid"
)

func (s *Service) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return s.storage.ListSales(ctx)
}

// CreateSale validates the sale against current stock, stores it and takes
// its cartons out of stock. Nothing is written when validation fails.
func (s *Service) CreateSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	sale, err := s.prepareSale(ctx, req)
	if err != nil {
		return domain.Sale{}, err
	}
	return s.recordSale(ctx, sale)
}

func (s *Service) prepareSale(ctx context.Context, req domain.SaleCreateRequest) (domain.Sale, error) {
	req.SupermarketID = strings.TrimSpace(req.SupermarketID)
	if err := check(req); err != nil {
		return domain.Sale{}, err
	}
	if !business.IsValidPricePerUnit(req.PricePerUnit) {
		return domain.Sale{}, domain.Invalid("pricePerUnit", fmt.Sprintf("must be one of %v", business.PriceTiers))
	}
	cartons := business.CartonsFromUnits(req.Quantity)
	if req.Cartons != 0 && req.Cartons != cartons {
		return domain.Sale{}, domain.Invalid("cartons", fmt.Sprintf("%d units make %d cartons, got %d", req.Quantity, cartons, req.Cartons))
	}
	if _, err := s.getSupermarket(ctx, req.SupermarketID); err != nil {
		return domain.Sale{}, fmt.Errorf("supermarket %s: %w", req.SupermarketID, err)
	}

	levels, err := s.storage.ListFragranceStock(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	if total := business.TotalStock(levels); !business.HasSufficientStock(total, cartons) {
		return domain.Sale{}, fmt.Errorf("%w: %d cartons in stock, %d requested", domain.ErrInsufficientStock, total, cartons)
	}

	dist := req.FragranceDistribution
	if len(dist) == 0 {
		if dist, err = business.AllocateFromStock(levels, cartons); err != nil {
			return domain.Sale{}, err
		}
	} else if err := business.ValidateDistribution(dist, cartons, levels); err != nil {
		return domain.Sale{}, err
	}
	if _, err := business.ApplyDeltas(levels, business.Negate(dist)); err != nil {
		return domain.Sale{}, err
	}

	now := s.today()
	calc := business.SaleTotals(req.Quantity, req.PricePerUnit)
	sale := domain.Sale{
		ID:                    defaultString(strings.TrimSpace(req.ID), xid.New("sale")),
		Date:                  dateOr(req.Date, now),
		SupermarketID:         req.SupermarketID,
		Quantity:              req.Quantity,
		Cartons:               cartons,
		PricePerUnit:          req.PricePerUnit,
		TotalValue:            calc.TotalValue,
		PaymentNote:           strings.TrimSpace(req.PaymentNote),
		FragranceDistribution: dist,
		Note:                  strings.TrimSpace(req.Note),
	}
	if req.ExpectedPaymentDate != nil {
		expected := req.ExpectedPaymentDate.UTC()
		sale.ExpectedPaymentDate = &expected
	}
	// a sale entered as paid is settled by one payment for its full value
	if req.IsPaid && sale.TotalValue.IsPositive() {
		sale.Payments = []domain.Payment{{
			ID:     sale.ID + "-settle",
			Date:   sale.Date,
			Amount: sale.TotalValue,
			Note:   sale.PaymentNote,
		}}
	}
	sale.Recalculate()
	return sale, nil
}

// recordSale writes a validated sale and its stock removal. When the stock
// write is rejected the sale is removed again.
func (s *Service) recordSale(ctx context.Context, sale domain.Sale) (domain.Sale, error) {
	created, err := s.storage.CreateSale(ctx, sale)
	if err != nil {
		return domain.Sale{}, err
	}
	if sale.Cartons == 0 {
		return *created, nil
	}

	_, err = s.storage.UpdateStock(ctx, domain.StockMovement{
		EntryID:  sale.ID + "-out",
		Date:     sale.Date,
		Quantity: -sale.Cartons,
		Type:     domain.StockRemoved,
		Reason:   fmt.Sprintf("Vente %s", sale.ID),
		Deltas:   business.Negate(sale.FragranceDistribution),
	})
	if err != nil {
		if _, rbErr := s.storage.DeleteSale(ctx, sale.ID); rbErr != nil {
			s.log.Error(s.log.WithField(ctx, "sale_id", sale.ID), "sale left without stock removal", rbErr)
		}
		return domain.Sale{}, err
	}
	s.log.Info(s.log.WithFields(ctx, map[string]any{
		"sale_id": sale.ID,
		"cartons": sale.Cartons,
	}), "sale recorded")
	return *created, nil
}

// DeleteSale removes a sale and puts its cartons back in stock, spread
// evenly across fragrances when the sale carries no distribution.
func (s *Service) DeleteSale(ctx context.Context, id string) error {
	deleted, err := s.storage.DeleteSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if deleted.Cartons == 0 {
		return nil
	}

	dist := deleted.FragranceDistribution
	if business.SumDistribution(dist) != deleted.Cartons {
		ids := make([]string, 0, len(domain.DefaultFragrances))
		for _, f := range domain.DefaultFragrances {
			ids = append(ids, f.FragranceID)
		}
		dist = business.EvenDistribution(ids, deleted.Cartons)
	}
	_, err = s.storage.UpdateStock(ctx, domain.StockMovement{
		EntryID:  deleted.ID + "-return",
		Date:     s.today(),
		Quantity: deleted.Cartons,
		Type:     domain.StockAdded,
		Reason:   fmt.Sprintf("Annulation vente %s", deleted.ID),
		Deltas:   dist,
	})
	if err != nil {
		return fmt.Errorf("restock deleted sale %s: %w", deleted.ID, err)
	}
	return nil
}

// SetSalePaid marks a sale paid by appending a payment for the remaining
// amount. Marking a sale unpaid is only possible while its payments do not
// settle it, in which case nothing changes.
func (s *Service) SetSalePaid(ctx context.Context, id string, req domain.SalePaidRequest) (domain.Sale, error) {
	if err := check(req); err != nil {
		return domain.Sale{}, err
	}
	sale, err := s.getSale(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Sale{}, err
	}

	if !req.IsPaid {
		if sale.IsPaid {
			return domain.Sale{}, domain.Invalid("isPaid", "sale is settled by its payments")
		}
		return sale, nil
	}
	if sale.IsPaid {
		return sale, nil
	}

	updated, err := s.storage.AddPayment(ctx, sale.ID, domain.Payment{
		ID:     xid.New("pay"),
		Date:   dateOr(req.Date, s.today()),
		Amount: sale.RemainingAmount,
		Note:   defaultString(strings.TrimSpace(req.Note), "Solde"),
	})
	if err != nil {
		return domain.Sale{}, err
	}
	return *updated, nil
}

func (s *Service) AddPayment(ctx context.Context, saleID string, req domain.PaymentRequest) (domain.Sale, error) {
	if err := check(req); err != nil {
		return domain.Sale{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.Sale{}, domain.Invalid("amount", "must be positive")
	}
	sale, err := s.getSale(ctx, strings.TrimSpace(saleID))
	if err != nil {
		return domain.Sale{}, err
	}
	if sale.IsPaid {
		for _, p := range sale.Payments {
			if p.ID == req.ID {
				return sale, nil
			}
		}
		return domain.Sale{}, fmt.Errorf("%w: sale %s is already paid", store.ErrConflict, sale.ID)
	}
	if req.Amount.GreaterThan(sale.RemainingAmount) {
		return domain.Sale{}, domain.Invalid("amount", "exceeds remaining amount "+sale.RemainingAmount.StringFixed(2))
	}

	updated, err := s.storage.AddPayment(ctx, sale.ID, domain.Payment{
		ID:     defaultString(strings.TrimSpace(req.ID), xid.New("pay")),
		Date:   dateOr(req.Date, s.today()),
		Amount: req.Amount,
		Note:   strings.TrimSpace(req.Note),
	})
	if err != nil {
		return domain.Sale{}, err
	}
	return *updated, nil
}
