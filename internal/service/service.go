// Package service implements the dashboard operations on top of the hybrid
// storage facade: input validation, the sale and order lifecycle, stock
// bookkeeping and reports.
package service

import (
	"context"
	"time"

	"soapstock/backend/internal/business"
	"soapstock/backend/internal/domain"
	"soapstock/backend/internal/geocode"
	"soapstock/backend/internal/hybrid"
	"soapstock/backend/internal/logger"
	"soapstock/backend/internal/migration"
	"soapstock/backend/internal/store"
)

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

// Storage is the subset of the hybrid facade the service drives.
type Storage interface {
	ListSales(ctx context.Context) ([]domain.Sale, error)
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) (*domain.Sale, error)
	AddPayment(ctx context.Context, saleID string, payment domain.Payment) (*domain.Sale, error)

	ListSupermarkets(ctx context.Context) ([]domain.Supermarket, error)
	CreateSupermarket(ctx context.Context, supermarket domain.Supermarket) (*domain.Supermarket, error)
	UpdateSupermarket(ctx context.Context, id string, patch domain.SupermarketPatch) (*domain.Supermarket, error)
	DeleteSupermarket(ctx context.Context, id string) error

	ListOrders(ctx context.Context) ([]domain.Order, error)
	CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, id string, status string) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id string) error

	ListStockHistory(ctx context.Context, limit int) ([]domain.StockHistoryEntry, error)
	ListFragranceStock(ctx context.Context) ([]domain.FragranceStock, error)
	UpdateStock(ctx context.Context, movement domain.StockMovement) (*domain.StockHistoryEntry, error)
	SetFragranceLevel(ctx context.Context, fragranceID string, quantity int, movement domain.StockMovement) (*domain.StockHistoryEntry, error)

	SyncStatus(ctx context.Context) (domain.SyncStatus, error)
	ForceSync(ctx context.Context) (hybrid.SyncReport, error)

	Backup(ctx context.Context) (domain.Backup, error)
	Restore(ctx context.Context, backup domain.Backup) error
}

var _ Storage = (*hybrid.Facade)(nil)

type Migrator interface {
	Run(ctx context.Context) migration.Summary
	Status(ctx context.Context) (migration.Status, error)
}

type Options struct {
	Geocoder       geocode.Geocoder
	Migrator       Migrator
	Logger         *logger.Logger
	MaxStockPieces int
	PhoneRegion    string
	Now            func() time.Time
}

type Service struct {
	storage        Storage
	geocoder       geocode.Geocoder
	migrator       Migrator
	log            *logger.Logger
	maxStockPieces int
	phoneRegion    string
	now            func() time.Time
}

func New(storage Storage, opts Options) *Service {
	s := &Service{
		storage:        storage,
		geocoder:       opts.Geocoder,
		migrator:       opts.Migrator,
		log:            opts.Logger.Component("service"),
		maxStockPieces: opts.MaxStockPieces,
		phoneRegion:    opts.PhoneRegion,
		now:            opts.Now,
	}
	if s.geocoder == nil {
		s.geocoder = geocode.NewClient()
	}
	if s.maxStockPieces <= 0 {
		s.maxStockPieces = business.DefaultMaxStockPieces
	}
	if s.phoneRegion == "" {
		s.phoneRegion = DefaultPhoneRegion
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func findSale(sales []domain.Sale, id string) (domain.Sale, error) {
	for _, sale := range sales {
		if sale.ID == id {
			return sale, nil
		}
	}
	return domain.Sale{}, store.ErrNotFound
}

func (s *Service) getSale(ctx context.Context, id string) (domain.Sale, error) {
	sales, err := s.storage.ListSales(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	return findSale(sales, id)
}

func (s *Service) getOrder(ctx context.Context, id string) (domain.Order, error) {
	orders, err := s.storage.ListOrders(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	for _, order := range orders {
		if order.ID == id {
			return order, nil
		}
	}
	return domain.Order{}, store.ErrNotFound
}

func (s *Service) getSupermarket(ctx context.Context, id string) (domain.Supermarket, error) {
	supermarkets, err := s.storage.ListSupermarkets(ctx)
	if err != nil {
		return domain.Supermarket{}, err
	}
	for _, supermarket := range supermarkets {
		if supermarket.ID == id {
			return supermarket, nil
		}
	}
	return domain.Supermarket{}, store.ErrNotFound
}

func (s *Service) today() time.Time {
	return s.now().UTC()
}

func dateOr(t *time.Time, fallback time.Time) time.Time {
	if t == nil || t.IsZero() {
		return fallback
	}
	return t.UTC()
}

func defaultString(value string, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
