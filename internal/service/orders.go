package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"soapstock/backend/internal/business"
	"soapstock/backend/internal/domain"
	"soapstock/backend/internal/store"
	"soapstock/backend/internal/xid"
)

func (s *Service) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return s.storage.ListOrders(ctx)
}

func (s *Service) CreateOrder(ctx context.Context, req domain.OrderCreateRequest) (domain.Order, error) {
	req.SupermarketID = strings.TrimSpace(req.SupermarketID)
	if err := check(req); err != nil {
		return domain.Order{}, err
	}
	if !business.IsValidPricePerUnit(req.PricePerUnit) {
		return domain.Order{}, domain.Invalid("pricePerUnit", fmt.Sprintf("must be one of %v", business.PriceTiers))
	}

	name := store.UnknownSupermarket
	if supermarket, err := s.getSupermarket(ctx, req.SupermarketID); err == nil {
		name = supermarket.Name
	} else if !errors.Is(err, store.ErrNotFound) {
		return domain.Order{}, err
	}

	created, err := s.storage.CreateOrder(ctx, domain.Order{
		ID:              defaultString(strings.TrimSpace(req.ID), xid.New("order")),
		Date:            dateOr(req.Date, s.today()),
		SupermarketID:   req.SupermarketID,
		SupermarketName: name,
		Quantity:        req.Quantity,
		PricePerUnit:    req.PricePerUnit,
		Status:          domain.OrderPending,
	})
	if err != nil {
		return domain.Order{}, err
	}
	return *created, nil
}

// DeleteOrder removes a pending order. Delivered orders are part of the
// sales record and stay.
func (s *Service) DeleteOrder(ctx context.Context, id string) error {
	order, err := s.getOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return err
	}
	if order.Status != domain.OrderPending {
		return fmt.Errorf("%w: order %s is %s", store.ErrConflict, order.ID, order.Status)
	}
	return s.storage.DeleteOrder(ctx, order.ID)
}

// CompleteOrder delivers a pending order: the matching sale is recorded
// first, then the order is marked delivered. The sale id derives from the
// order id so a retried completion does not sell twice.
func (s *Service) CompleteOrder(ctx context.Context, id string) (domain.Order, error) {
	order, err := s.getOrder(ctx, strings.TrimSpace(id))
	if err != nil {
		return domain.Order{}, err
	}
	if order.Status != domain.OrderPending {
		return domain.Order{}, fmt.Errorf("%w: order %s is %s", store.ErrConflict, order.ID, order.Status)
	}

	saleID := order.ID + "-sale"
	sales, err := s.storage.ListSales(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	if _, err := findSale(sales, saleID); err != nil {
		now := s.today()
		sale, err := s.prepareSale(ctx, domain.SaleCreateRequest{
			ID:            saleID,
			Date:          &now,
			SupermarketID: order.SupermarketID,
			Quantity:      order.Quantity,
			PricePerUnit:  order.PricePerUnit,
		})
		if err != nil {
			return domain.Order{}, err
		}
		sale.FromOrder = true
		sale.Note = fmt.Sprintf("Commande %s", order.ID)
		if _, err := s.recordSale(ctx, sale); err != nil {
			return domain.Order{}, err
		}
	}

	updated, err := s.storage.UpdateOrderStatus(ctx, order.ID, domain.OrderDelivered)
	if err != nil {
		return domain.Order{}, err
	}
	return *updated, nil
}
