package store

import (
	"context"
	"errors"

	"soapstock/backend/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrOffline           = errors.New("remote store unreachable")
	ErrInvalid           = domain.ErrInvalid
	ErrInsufficientStock = domain.ErrInsufficientStock
)

// IsRejection reports whether err is a domain answer from a store rather
// than a failure to reach it. Rejections are returned to the caller as-is;
// anything else from the remote store triggers the local fallback.
func IsRejection(err error) bool {
	return errors.Is(err, ErrNotFound) ||
		errors.Is(err, ErrConflict) ||
		errors.Is(err, ErrInvalid) ||
		errors.Is(err, ErrInsufficientStock)
}

// Repository is implemented by every store: the remote database, the
// in-memory development remote and the local offline store. Create methods
// insert with the caller's id and treat an existing id as already applied.
type Repository interface {
	ListSales(ctx context.Context) ([]domain.Sale, error)
	CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error)
	DeleteSale(ctx context.Context, id string) error
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
	// ApplyStockMovement applies the fragrance deltas, reads back the total
	// and records the history entry, all or nothing. A movement whose entry
	// id already exists returns the stored entry unchanged.
	ApplyStockMovement(ctx context.Context, movement domain.StockMovement) (*domain.StockHistoryEntry, error)
}

// Importer accepts legacy records verbatim during migration.
type Importer interface {
	ImportStockEntry(ctx context.Context, entry domain.StockHistoryEntry) error
	ImportFragranceStock(ctx context.Context, level domain.FragranceStock) error
}

// RemoteStore is the contract of the remote database.
type RemoteStore interface {
	Repository
	Importer
}
