package service

import (
	"context"
	"fmt"
	"strings"

	"soapstock/backend/internal/domain"
	"soapstock/backend/internal/store"
	"soapstock/backend/internal/xid"
)

func (s *Service) ListSupermarkets(ctx context.Context) ([]domain.Supermarket, error) {
	return s.storage.ListSupermarkets(ctx)
}

// CreateSupermarket normalizes the phone numbers and, unless coordinates
// are given, geocodes the address.
func (s *Service) CreateSupermarket(ctx context.Context, req domain.SupermarketCreateRequest) (domain.Supermarket, error) {
	req.Name = strings.TrimSpace(req.Name)
	req.Address = strings.TrimSpace(req.Address)
	req.Email = strings.TrimSpace(req.Email)
	if err := check(req); err != nil {
		return domain.Supermarket{}, err
	}
	phones, err := normalizePhones(req.PhoneNumbers, s.phoneRegion)
	if err != nil {
		return domain.Supermarket{}, err
	}
	if len(phones) == 0 {
		return domain.Supermarket{}, domain.Invalid("phoneNumbers", "at least one phone number is required")
	}

	supermarket := domain.Supermarket{
		ID:           defaultString(strings.TrimSpace(req.ID), xid.New("sm")),
		Name:         req.Name,
		Address:      req.Address,
		PhoneNumbers: phones,
		Email:        req.Email,
	}
	if req.Latitude != nil && req.Longitude != nil {
		supermarket.Latitude, supermarket.Longitude = *req.Latitude, *req.Longitude
	} else {
		pos := s.geocoder.Geocode(ctx, req.Address)
		supermarket.Latitude, supermarket.Longitude = pos.Latitude, pos.Longitude
	}

	created, err := s.storage.CreateSupermarket(ctx, supermarket)
	if err != nil {
		return domain.Supermarket{}, err
	}
	return *created, nil
}

func (s *Service) UpdateSupermarket(ctx context.Context, id string, patch domain.SupermarketPatch) (domain.Supermarket, error) {
	if patch.Name != nil {
		name := strings.TrimSpace(*patch.Name)
		if name == "" {
			return domain.Supermarket{}, domain.Invalid("name", "is required")
		}
		patch.Name = &name
	}
	if patch.Address != nil {
		address := strings.TrimSpace(*patch.Address)
		if address == "" {
			return domain.Supermarket{}, domain.Invalid("address", "is required")
		}
		patch.Address = &address
	}
	if patch.Email != nil {
		email := strings.TrimSpace(*patch.Email)
		if email != "" {
			if err := validate.Var(email, "email"); err != nil {
				return domain.Supermarket{}, domain.Invalid("email", "must be a valid email")
			}
		}
		patch.Email = &email
	}
	if patch.PhoneNumbers != nil {
		phones, err := normalizePhones(patch.PhoneNumbers, s.phoneRegion)
		if err != nil {
			return domain.Supermarket{}, err
		}
		if len(phones) == 0 {
			return domain.Supermarket{}, domain.Invalid("phoneNumbers", "at least one phone number is required")
		}
		patch.PhoneNumbers = phones
	}

	updated, err := s.storage.UpdateSupermarket(ctx, strings.TrimSpace(id), patch)
	if err != nil {
		return domain.Supermarket{}, err
	}
	return *updated, nil
}

// DeleteSupermarket refuses while any sale or order still references the
// supermarket.
func (s *Service) DeleteSupermarket(ctx context.Context, id string) error {
	id = strings.TrimSpace(id)
	sales, err := s.storage.ListSales(ctx)
	if err != nil {
		return err
	}
	for _, sale := range sales {
		if sale.SupermarketID == id {
			return fmt.Errorf("%w: supermarket %s still has sales", store.ErrConflict, id)
		}
	}
	orders, err := s.storage.ListOrders(ctx)
	if err != nil {
		return err
	}
	for _, order := range orders {
		if order.SupermarketID == id {
			return fmt.Errorf("%w: supermarket %s still has orders", store.ErrConflict, id)
		}
	}
	return s.storage.DeleteSupermarket(ctx, id)
}
