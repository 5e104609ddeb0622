// Package hybrid routes every read and write between the remote store, the
// cache and the local offline store, and replays queued writes once the
// remote is reachable again.
package hybrid

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"soapstock/backend/internal/cache"
	"soapstock/backend/internal/domain"
	"soapstock/backend/internal/logger"
	"soapstock/backend/internal/metrics"
	"soapstock/backend/internal/network"
	"soapstock/backend/internal/queue"
	"soapstock/backend/internal/store"
)

// LocalStore is the offline store. Replace overwrites a whole collection
// with the remote copy during reconciliation.
type LocalStore interface {
	store.Repository
	store.Importer
	Replace(ctx context.Context, entity domain.Entity, items any) error
	Backup(ctx context.Context, at time.Time) (domain.Backup, error)
	Restore(ctx context.Context, backup domain.Backup) error
}

// StorageConfig selects, per entity, whether the remote store is used at
// all. Entities not configured remote live only in the local store.
// StockRemote covers both the stock history and the fragrance levels since
// every movement writes the two together.
type StorageConfig struct {
	SalesRemote        bool
	OrdersRemote       bool
	SupermarketsRemote bool
	StockRemote        bool
}

// AllRemote is the default configuration.
func AllRemote() StorageConfig {
	return StorageConfig{
		SalesRemote:        true,
		OrdersRemote:       true,
		SupermarketsRemote: true,
		StockRemote:        true,
	}
}

func (c StorageConfig) enabled(entity domain.Entity) bool {
	switch entity {
	case domain.EntitySales, domain.EntityPayments:
		return c.SalesRemote
	case domain.EntityOrders:
		return c.OrdersRemote
	case domain.EntitySupermarkets:
		return c.SupermarketsRemote
	case domain.EntityStockHistory, domain.EntityFragranceStock:
		return c.StockRemote
	default:
		return false
	}
}

type Deps struct {
	// Remote may be nil, in which case everything stays local.
	Remote  store.RemoteStore
	Local   LocalStore
	State   queue.KV
	Cache   cache.EntityCache
	Queue   *queue.Queue
	Monitor network.ConnectivityMonitor
	Locker  Locker
	Metrics *metrics.SyncMetrics
	Logger  *logger.Logger
}

type Facade struct {
	remote  store.RemoteStore
	local   LocalStore
	state   queue.KV
	cache   cache.EntityCache
	queue   *queue.Queue
	monitor network.ConnectivityMonitor
	locker  Locker
	metrics *metrics.SyncMetrics
	log     *logger.Logger
	cfg     StorageConfig
	now     func() time.Time

	// mirrorMu is held shared from a local write until it is queued, and
	// exclusively while reconcile replaces a local collection.
	mirrorMu sync.RWMutex

	mu          sync.Mutex
	baseCtx     context.Context
	cancel      context.CancelFunc
	unsubscribe func()
	syncs       sync.WaitGroup
}

func New(deps Deps, cfg StorageConfig) *Facade {
	f := &Facade{
		remote:  deps.Remote,
		local:   deps.Local,
		state:   deps.State,
		cache:   deps.Cache,
		queue:   deps.Queue,
		monitor: deps.Monitor,
		locker:  deps.Locker,
		metrics: deps.Metrics,
		log:     deps.Logger.Component("hybrid"),
		cfg:     cfg,
		now:     time.Now,
	}
	if f.cache == nil {
		f.cache = cache.NoopCache{}
	}
	if f.locker == nil {
		f.locker = NewMutexLocker()
	}
	return f
}

// Online reports the monitor's last known state.
func (f *Facade) Online() bool {
	return f.monitor != nil && f.monitor.IsOnline()
}

func (f *Facade) remoteFor(entity domain.Entity) bool {
	return f.remote != nil && f.cfg.enabled(entity)
}

// usable reports whether writes on entity may go straight to the remote.
func (f *Facade) usable(ctx context.Context, entity domain.Entity, deps ...queue.Key) (bool, error) {
	if !f.remoteFor(entity) || !f.Online() {
		return false, nil
	}
	blocked, err := f.queue.Blocked(ctx, deps...)
	if err != nil {
		return false, err
	}
	return !blocked, nil
}

func list[T any](ctx context.Context, f *Facade, entity domain.Entity, remote, local func(context.Context) (T, error)) (T, error) {
	res, err := First(ctx,
		Step[T]{Source: SourceRemote, Run: func(ctx context.Context) (T, error) {
			var zero T
			if !f.remoteFor(entity) {
				return zero, skip("local only")
			}
			if !f.Online() {
				return zero, skip("offline")
			}
			value, err := remote(ctx)
			if err != nil {
				return zero, err
			}
			if err := f.cache.Set(ctx, entity, value); err != nil {
				f.log.Warn(f.log.WithField(ctx, "entity", entity), "cache write failed", err)
			}
			return value, nil
		}},
		Step[T]{Source: SourceCache, Run: func(ctx context.Context) (T, error) {
			var value T
			if !f.remoteFor(entity) {
				return value, skip("local only")
			}
			entry, ok, err := f.cache.Get(ctx, entity)
			if err != nil {
				return value, err
			}
			if !ok {
				return value, skip("cache miss")
			}
			if err := entry.Decode(&value); err != nil {
				return value, fmt.Errorf("decode cached %s: %w", entity, err)
			}
			return value, nil
		}},
		Step[T]{Source: SourceLocal, Run: local},
	)
	if unexpected := Unexpected(res.Skipped); unexpected != nil {
		f.log.Warn(f.log.WithFields(ctx, map[string]any{"entity": entity, "source": res.Source}), "remote read failed, using fallback", unexpected)
	}
	if err != nil {
		return res.Value, err
	}
	if res.Source != SourceRemote && f.remoteFor(entity) {
		f.metrics.IncFallback(string(entity), string(res.Source))
	}
	return res.Value, nil
}

func (f *Facade) ListSales(ctx context.Context) ([]domain.Sale, error) {
	return list(ctx, f, domain.EntitySales,
		func(ctx context.Context) ([]domain.Sale, error) { return f.remote.ListSales(ctx) },
		f.local.ListSales)
}

func (f *Facade) ListSupermarkets(ctx context.Context) ([]domain.Supermarket, error) {
	return list(ctx, f, domain.EntitySupermarkets,
		func(ctx context.Context) ([]domain.Supermarket, error) { return f.remote.ListSupermarkets(ctx) },
		f.local.ListSupermarkets)
}

func (f *Facade) ListOrders(ctx context.Context) ([]domain.Order, error) {
	return list(ctx, f, domain.EntityOrders,
		func(ctx context.Context) ([]domain.Order, error) { return f.remote.ListOrders(ctx) },
		f.local.ListOrders)
}

// ListStockHistory returns the newest entries first, at most limit when
// limit is positive.
func (f *Facade) ListStockHistory(ctx context.Context, limit int) ([]domain.StockHistoryEntry, error) {
	entries, err := list(ctx, f, domain.EntityStockHistory,
		func(ctx context.Context) ([]domain.StockHistoryEntry, error) {
			return f.remote.ListStockHistory(ctx, 0)
		},
		func(ctx context.Context) ([]domain.StockHistoryEntry, error) { return f.local.ListStockHistory(ctx, 0) })
	if err != nil {
		return nil, err
	}
	store.SortStockHistory(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func (f *Facade) ListFragranceStock(ctx context.Context) ([]domain.FragranceStock, error) {
	return list(ctx, f, domain.EntityFragranceStock,
		func(ctx context.Context) ([]domain.FragranceStock, error) { return f.remote.ListFragranceStock(ctx) },
		f.local.ListFragranceStock)
}

// mutation is one write routed through the facade: applied locally first,
// then sent to the remote or queued. A queued write drops the cached
// collections too, so reads fall through to the local copy that has it.
type mutation[T any] struct {
	entity   domain.Entity
	opType   domain.OpType
	recordID string
	payload  any
	// dependsOn lists queued records that must reach the remote first
	dependsOn  []queue.Key
	invalidate []domain.Entity

	local  func(ctx context.Context) (T, error)
	remote func(ctx context.Context) (T, error)
	// rollback undoes the local write when the remote rejects it
	rollback func(ctx context.Context) error
	// adopt stores the remote result locally when the record was unknown
	// to the local store
	adopt func(ctx context.Context, value T) error
	// known marks a record the read path already returned, so a local miss
	// only means it was never mirrored and the write still goes out
	known bool
}

func write[T any](ctx context.Context, f *Facade, m mutation[T]) (T, error) {
	f.mirrorMu.RLock()
	defer f.mirrorMu.RUnlock()

	var zero T
	localValue, localErr := m.local(ctx)
	if localErr != nil && !errors.Is(localErr, store.ErrNotFound) {
		return zero, localErr
	}
	mirrored := localErr == nil
	if m.known {
		localErr = nil
	}

	if !f.remoteFor(m.entity) {
		return localValue, localErr
	}
	direct, err := f.usable(ctx, m.entity, append(m.dependsOn, queue.Key{Table: m.entity, RecordID: m.recordID})...)
	if err != nil {
		return zero, err
	}
	if !direct {
		if localErr != nil {
			return zero, localErr
		}
		if err := f.enqueue(ctx, m.opType, m.entity, m.recordID, m.payload); err != nil {
			return zero, err
		}
		f.invalidate(ctx, m.invalidate...)
		return localValue, nil
	}

	remoteValue, remoteErr := m.remote(ctx)
	switch {
	case remoteErr == nil:
		f.invalidate(ctx, m.invalidate...)
		if localErr != nil && m.adopt != nil {
			if err := m.adopt(ctx, remoteValue); err != nil {
				f.log.Warn(f.log.WithField(ctx, "record_id", m.recordID), "local copy of remote record failed", err)
			}
		}
		return remoteValue, nil
	case store.IsRejection(remoteErr):
		if mirrored && m.rollback != nil {
			if err := m.rollback(ctx); err != nil {
				f.log.Error(f.log.WithField(ctx, "record_id", m.recordID), "local rollback failed", err)
			}
		}
		return zero, remoteErr
	default:
		f.log.Warn(f.log.WithFields(ctx, map[string]any{"entity": m.entity, "op_type": m.opType, "record_id": m.recordID}),
			"remote write failed, queued for replay", remoteErr)
		if localErr != nil {
			return zero, localErr
		}
		if err := f.enqueue(ctx, m.opType, m.entity, m.recordID, m.payload); err != nil {
			return zero, err
		}
		f.invalidate(ctx, m.invalidate...)
		return localValue, nil
	}
}

func (f *Facade) enqueue(ctx context.Context, opType domain.OpType, table domain.Entity, recordID string, payload any) error {
	op, err := queue.NewOperation(opType, table, recordID, payload)
	if err != nil {
		return err
	}
	if _, err := f.queue.Enqueue(ctx, op); err != nil {
		return fmt.Errorf("queue %s %s: %w", opType, table, err)
	}
	f.metrics.IncQueued(string(table), string(opType))
	if pending, _, err := f.queue.Stats(ctx); err == nil {
		f.metrics.SetPending(pending)
	}
	if f.Online() && f.remoteFor(table) {
		f.kick()
	}
	return nil
}

func (f *Facade) invalidate(ctx context.Context, entities ...domain.Entity) {
	for _, entity := range entities {
		if err := f.cache.Invalidate(ctx, entity); err != nil {
			f.log.Warn(f.log.WithField(ctx, "entity", entity), "cache invalidation failed", err)
		}
	}
}

func findByID[T any](items []T, id string, idOf func(T) string) (T, bool) {
	for _, item := range items {
		if idOf(item) == id {
			return item, true
		}
	}
	var zero T
	return zero, false
}

// CreateSale stores a sale with its client-generated id.
func (f *Facade) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	return write(ctx, f, mutation[*domain.Sale]{
		entity:     domain.EntitySales,
		opType:     domain.OpCreate,
		recordID:   sale.ID,
		payload:    sale,
		dependsOn:  []queue.Key{{Table: domain.EntitySupermarkets, RecordID: sale.SupermarketID}},
		invalidate: []domain.Entity{domain.EntitySales, domain.EntitySupermarkets},
		local:      func(ctx context.Context) (*domain.Sale, error) { return f.local.CreateSale(ctx, sale) },
		remote:     func(ctx context.Context) (*domain.Sale, error) { return f.remote.CreateSale(ctx, sale) },
		rollback:   func(ctx context.Context) error { return f.local.DeleteSale(ctx, sale.ID) },
	})
}

// DeleteSale removes a sale and returns it as it was before deletion.
func (f *Facade) DeleteSale(ctx context.Context, id string) (*domain.Sale, error) {
	existing, err := f.findSale(ctx, id)
	if err != nil {
		return nil, err
	}
	_, err = write(ctx, f, mutation[struct{}]{
		entity:     domain.EntitySales,
		opType:     domain.OpDelete,
		recordID:   id,
		payload:    map[string]string{"id": id},
		invalidate: []domain.Entity{domain.EntitySales, domain.EntitySupermarkets},
		known:      true,
		local: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, f.local.DeleteSale(ctx, id)
		},
		remote: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, f.remote.DeleteSale(ctx, id)
		},
		rollback: func(ctx context.Context) error {
			_, err := f.local.CreateSale(ctx, existing)
			return err
		},
	})
	if err != nil {
		return nil, err
	}
	return &existing, nil
}

// paymentOp is the queued payload of a payment append.
type paymentOp struct {
	SaleID  string         `json:"saleId"`
	Payment domain.Payment `json:"payment"`
}

func (f *Facade) AddPayment(ctx context.Context, saleID string, payment domain.Payment) (*domain.Sale, error) {
	return write(ctx, f, mutation[*domain.Sale]{
		entity:     domain.EntityPayments,
		opType:     domain.OpCreate,
		recordID:   saleID,
		payload:    paymentOp{SaleID: saleID, Payment: payment},
		dependsOn:  []queue.Key{{Table: domain.EntitySales, RecordID: saleID}},
		invalidate: []domain.Entity{domain.EntitySales},
		local: func(ctx context.Context) (*domain.Sale, error) {
			return f.local.AddPayment(ctx, saleID, payment)
		},
		remote: func(ctx context.Context) (*domain.Sale, error) {
			return f.remote.AddPayment(ctx, saleID, payment)
		},
		adopt: func(ctx context.Context, sale *domain.Sale) error {
			_, err := f.local.CreateSale(ctx, *sale)
			return err
		},
	})
}

func (f *Facade) findSale(ctx context.Context, id string) (domain.Sale, error) {
	sales, err := f.ListSales(ctx)
	if err != nil {
		return domain.Sale{}, err
	}
	sale, ok := findByID(sales, id, func(s domain.Sale) string { return s.ID })
	if !ok {
		return domain.Sale{}, store.ErrNotFound
	}
	return sale, nil
}

func (f *Facade) CreateSupermarket(ctx context.Context, supermarket domain.Supermarket) (*domain.Supermarket, error) {
	return write(ctx, f, mutation[*domain.Supermarket]{
		entity:     domain.EntitySupermarkets,
		opType:     domain.OpCreate,
		recordID:   supermarket.ID,
		payload:    supermarket,
		invalidate: []domain.Entity{domain.EntitySupermarkets},
		local: func(ctx context.Context) (*domain.Supermarket, error) {
			return f.local.CreateSupermarket(ctx, supermarket)
		},
		remote: func(ctx context.Context) (*domain.Supermarket, error) {
			return f.remote.CreateSupermarket(ctx, supermarket)
		},
		rollback: func(ctx context.Context) error { return f.local.DeleteSupermarket(ctx, supermarket.ID) },
	})
}

// supermarketPatchOp is the queued payload of a supermarket update.
type supermarketPatchOp struct {
	ID    string                  `json:"id"`
	Patch domain.SupermarketPatch `json:"patch"`
}

func (f *Facade) UpdateSupermarket(ctx context.Context, id string, patch domain.SupermarketPatch) (*domain.Supermarket, error) {
	return write(ctx, f, mutation[*domain.Supermarket]{
		entity:     domain.EntitySupermarkets,
		opType:     domain.OpUpdate,
		recordID:   id,
		payload:    supermarketPatchOp{ID: id, Patch: patch},
		invalidate: []domain.Entity{domain.EntitySupermarkets, domain.EntityOrders},
		local: func(ctx context.Context) (*domain.Supermarket, error) {
			return f.local.UpdateSupermarket(ctx, id, patch)
		},
		remote: func(ctx context.Context) (*domain.Supermarket, error) {
			return f.remote.UpdateSupermarket(ctx, id, patch)
		},
		adopt: func(ctx context.Context, supermarket *domain.Supermarket) error {
			_, err := f.local.CreateSupermarket(ctx, *supermarket)
			return err
		},
	})
}

func (f *Facade) DeleteSupermarket(ctx context.Context, id string) error {
	supermarkets, err := f.ListSupermarkets(ctx)
	if err != nil {
		return err
	}
	existing, ok := findByID(supermarkets, id, func(s domain.Supermarket) string { return s.ID })
	if !ok {
		return store.ErrNotFound
	}
	_, err = write(ctx, f, mutation[struct{}]{
		entity:     domain.EntitySupermarkets,
		opType:     domain.OpDelete,
		recordID:   id,
		payload:    map[string]string{"id": id},
		dependsOn:  []queue.Key{{Table: domain.EntitySales}, {Table: domain.EntityOrders}},
		invalidate: []domain.Entity{domain.EntitySupermarkets},
		known:      true,
		local: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, f.local.DeleteSupermarket(ctx, id)
		},
		remote: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, f.remote.DeleteSupermarket(ctx, id)
		},
		rollback: func(ctx context.Context) error {
			_, err := f.local.CreateSupermarket(ctx, existing)
			return err
		},
	})
	return err
}

func (f *Facade) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	return write(ctx, f, mutation[*domain.Order]{
		entity:     domain.EntityOrders,
		opType:     domain.OpCreate,
		recordID:   order.ID,
		payload:    order,
		dependsOn:  []queue.Key{{Table: domain.EntitySupermarkets, RecordID: order.SupermarketID}},
		invalidate: []domain.Entity{domain.EntityOrders},
		local:      func(ctx context.Context) (*domain.Order, error) { return f.local.CreateOrder(ctx, order) },
		remote:     func(ctx context.Context) (*domain.Order, error) { return f.remote.CreateOrder(ctx, order) },
		rollback:   func(ctx context.Context) error { return f.local.DeleteOrder(ctx, order.ID) },
	})
}

// orderStatusOp is the queued payload of an order status change.
type orderStatusOp struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}

func (f *Facade) UpdateOrderStatus(ctx context.Context, id string, status string) (*domain.Order, error) {
	return write(ctx, f, mutation[*domain.Order]{
		entity:     domain.EntityOrders,
		opType:     domain.OpUpdate,
		recordID:   id,
		payload:    orderStatusOp{ID: id, Status: status},
		invalidate: []domain.Entity{domain.EntityOrders},
		local: func(ctx context.Context) (*domain.Order, error) {
			return f.local.UpdateOrderStatus(ctx, id, status)
		},
		remote: func(ctx context.Context) (*domain.Order, error) {
			return f.remote.UpdateOrderStatus(ctx, id, status)
		},
		adopt: func(ctx context.Context, order *domain.Order) error {
			_, err := f.local.CreateOrder(ctx, *order)
			return err
		},
	})
}

func (f *Facade) DeleteOrder(ctx context.Context, id string) error {
	orders, err := f.ListOrders(ctx)
	if err != nil {
		return err
	}
	existing, ok := findByID(orders, id, func(o domain.Order) string { return o.ID })
	if !ok {
		return store.ErrNotFound
	}
	_, err = write(ctx, f, mutation[struct{}]{
		entity:     domain.EntityOrders,
		opType:     domain.OpDelete,
		recordID:   id,
		payload:    map[string]string{"id": id},
		invalidate: []domain.Entity{domain.EntityOrders},
		known:      true,
		local: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, f.local.DeleteOrder(ctx, id)
		},
		remote: func(ctx context.Context) (struct{}, error) {
			return struct{}{}, f.remote.DeleteOrder(ctx, id)
		},
		rollback: func(ctx context.Context) error {
			_, err := f.local.CreateOrder(ctx, existing)
			return err
		},
	})
	return err
}

// UpdateStock applies one stock movement under the stock lock. The remote
// applies it in a single transaction; when the remote is unreachable the
// local store applies it and the movement is queued.
func (f *Facade) UpdateStock(ctx context.Context, movement domain.StockMovement) (*domain.StockHistoryEntry, error) {
	unlock, err := f.locker.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()
	return f.applyStock(ctx, movement)
}

// SetFragranceLevel records an adjustment that brings one fragrance to
// quantity. The delta is computed under the stock lock from the store that
// will apply it.
func (f *Facade) SetFragranceLevel(ctx context.Context, fragranceID string, quantity int, movement domain.StockMovement) (*domain.StockHistoryEntry, error) {
	unlock, err := f.locker.Lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	var levels []domain.FragranceStock
	direct, err := f.usable(ctx, domain.EntityStockHistory, queue.Key{Table: domain.EntityStockHistory})
	if err != nil {
		return nil, err
	}
	if direct {
		levels, err = f.remote.ListFragranceStock(ctx)
		if err != nil && !store.IsRejection(err) {
			f.log.Warn(ctx, "remote stock read failed, using local levels", err)
			levels, err = f.local.ListFragranceStock(ctx)
		}
	} else {
		levels, err = f.local.ListFragranceStock(ctx)
	}
	if err != nil {
		return nil, err
	}
	current, ok := findByID(levels, fragranceID, func(l domain.FragranceStock) string { return l.FragranceID })
	if !ok {
		return nil, fmt.Errorf("%w: fragrance %s", store.ErrNotFound, fragranceID)
	}

	delta := quantity - current.Quantity
	movement.Type = domain.StockAdjusted
	movement.Quantity = delta
	movement.Deltas = map[string]int{fragranceID: delta}
	return f.applyStock(ctx, movement)
}

func (f *Facade) applyStock(ctx context.Context, movement domain.StockMovement) (*domain.StockHistoryEntry, error) {
	f.mirrorMu.RLock()
	defer f.mirrorMu.RUnlock()

	direct, err := f.usable(ctx, domain.EntityStockHistory, queue.Key{Table: domain.EntityStockHistory})
	if err != nil {
		return nil, err
	}
	if direct {
		entry, err := f.remote.ApplyStockMovement(ctx, movement)
		switch {
		case err == nil:
			f.invalidate(ctx, domain.EntityStockHistory, domain.EntityFragranceStock)
			f.mirrorStock(ctx, entry)
			return entry, nil
		case store.IsRejection(err):
			return nil, err
		default:
			f.log.Warn(f.log.WithField(ctx, "entry_id", movement.EntryID), "remote stock update failed, applying locally", err)
		}
	}

	entry, err := f.local.ApplyStockMovement(ctx, movement)
	if err != nil {
		return nil, err
	}
	if f.remoteFor(domain.EntityStockHistory) {
		if err := f.enqueue(ctx, domain.OpCreate, domain.EntityStockHistory, movement.EntryID, movement); err != nil {
			return nil, err
		}
		f.invalidate(ctx, domain.EntityStockHistory, domain.EntityFragranceStock)
	}
	return entry, nil
}

// mirrorStock copies the remote levels and the new entry into the local
// store so offline reads start from the same state.
func (f *Facade) mirrorStock(ctx context.Context, entry *domain.StockHistoryEntry) {
	levels, err := f.remote.ListFragranceStock(ctx)
	if err == nil {
		err = f.local.Replace(ctx, domain.EntityFragranceStock, levels)
	}
	if err == nil {
		err = f.local.ImportStockEntry(ctx, *entry)
	}
	if err != nil {
		f.log.Warn(f.log.WithField(ctx, "entry_id", entry.ID), "local stock mirror failed", err)
	}
}

// Backup exports the local collections.
func (f *Facade) Backup(ctx context.Context) (domain.Backup, error) {
	return f.local.Backup(ctx, f.now())
}

// Restore replaces the local collections with backup. It refuses while
// operations are queued, since they were recorded against the data being
// replaced. Entities routed to the remote are mirrored over the restored
// copy by the next reconcile.
func (f *Facade) Restore(ctx context.Context, backup domain.Backup) error {
	f.mirrorMu.Lock()
	defer f.mirrorMu.Unlock()

	pending, _, err := f.queue.Stats(ctx)
	if err != nil {
		return err
	}
	if pending > 0 {
		return fmt.Errorf("%w: %d queued operations must be synced before a restore", store.ErrConflict, pending)
	}
	if err := f.local.Restore(ctx, backup); err != nil {
		return err
	}
	f.invalidate(ctx, domain.Entities...)
	f.log.Info(f.log.WithField(ctx, "sales", len(backup.Data.Sales)), "local collections restored from backup")
	return nil
}
