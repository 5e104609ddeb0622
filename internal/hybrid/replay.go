package hybrid

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/multierr"

	"soapstock/backend/internal/domain"
	"soapstock/backend/internal/queue"
	"soapstock/backend/internal/store"
)

// KeyLastSync holds the time of the last completed drain.
const KeyLastSync = "last_sync"

// SyncReport is the outcome of one Sync call.
type SyncReport struct {
	queue.DrainResult
	Pending    int  `json:"pending"`
	Reconciled bool `json:"reconciled"`
}

// Start subscribes to connectivity changes and starts a sync right away if
// the monitor is already online. Every later online transition starts
// another one.
func (f *Facade) Start(ctx context.Context) {
	f.mu.Lock()
	if f.unsubscribe != nil {
		f.mu.Unlock()
		return
	}
	f.baseCtx, f.cancel = context.WithCancel(ctx)
	if f.monitor != nil {
		f.unsubscribe = f.monitor.Subscribe(func(online bool) {
			if online {
				f.log.Info(f.baseCtx, "connectivity restored, syncing pending operations")
				f.kick()
			}
		})
	} else {
		f.unsubscribe = func() {}
	}
	f.mu.Unlock()

	if f.Online() {
		f.kick()
	}
}

// Close stops listening for connectivity changes and waits for running
// syncs to return.
func (f *Facade) Close() {
	f.mu.Lock()
	if f.unsubscribe != nil {
		f.unsubscribe()
	}
	if f.cancel != nil {
		f.cancel()
	}
	f.mu.Unlock()
	f.syncs.Wait()
}

// kick starts a background sync. Overlapping syncs are harmless: the queue
// lets only one drain run at a time.
func (f *Facade) kick() {
	f.mu.Lock()
	ctx := f.baseCtx
	f.mu.Unlock()
	if ctx == nil || ctx.Err() != nil || f.remote == nil {
		return
	}

	f.syncs.Add(1)
	go func() {
		defer f.syncs.Done()
		if _, err := f.Sync(ctx); err != nil && !errors.Is(err, store.ErrOffline) && !errors.Is(err, context.Canceled) {
			f.log.Error(ctx, "background sync failed", err)
		}
	}()
}

// Sync replays the pending queue against the remote store. When the queue
// ends up empty, the local collections are replaced by the remote ones.
func (f *Facade) Sync(ctx context.Context) (SyncReport, error) {
	if f.remote == nil || !f.Online() {
		return SyncReport{}, store.ErrOffline
	}

	start := f.now()
	result, err := f.queue.Drain(ctx, f.replay)
	report := SyncReport{DrainResult: result}
	if err != nil {
		return report, err
	}
	if result.Skipped {
		return report, nil
	}
	f.metrics.ObserveDrain(f.now().Sub(start).Seconds())
	f.metrics.AddReplayed(result.Succeeded, result.Failed)

	if err := f.state.Put(ctx, KeyLastSync, f.now().UTC()); err != nil {
		return report, fmt.Errorf("record last sync: %w", err)
	}

	pending, _, err := f.queue.Stats(ctx)
	if err != nil {
		return report, err
	}
	report.Pending = pending
	f.metrics.SetPending(pending)

	if result.Attempted > 0 {
		f.log.Info(f.log.WithFields(ctx, map[string]any{
			"attempted": result.Attempted,
			"succeeded": result.Succeeded,
			"failed":    result.Failed,
			"deferred":  result.Deferred,
		}), "pending operations replayed")
	}

	if pending == 0 {
		if err := f.reconcile(ctx); err != nil {
			f.log.Warn(ctx, "reconcile incomplete", err)
		} else {
			report.Reconciled = true
		}
	}
	return report, nil
}

// ForceSync is the user-triggered sync. It fails with store.ErrOffline
// instead of doing nothing when the remote is unreachable.
func (f *Facade) ForceSync(ctx context.Context) (SyncReport, error) {
	if f.remote == nil || !f.Online() {
		return SyncReport{}, fmt.Errorf("%w: cannot sync while offline", store.ErrOffline)
	}
	return f.Sync(ctx)
}

func (f *Facade) SyncStatus(ctx context.Context) (domain.SyncStatus, error) {
	pending, failed, err := f.queue.Stats(ctx)
	if err != nil {
		return domain.SyncStatus{}, err
	}
	status := domain.SyncStatus{IsOnline: f.Online(), Pending: pending, Failed: failed}

	var last time.Time
	found, err := f.state.Get(ctx, KeyLastSync, &last)
	if err != nil {
		return domain.SyncStatus{}, err
	}
	if found {
		status.LastSync = &last
	}
	return status, nil
}

func decodePayload(op domain.PendingOperation, dst any) error {
	if err := json.Unmarshal(op.Payload, dst); err != nil {
		return fmt.Errorf("decode %s %s payload: %w", op.Type, op.Table, err)
	}
	return nil
}

// replay applies one queued operation to the remote store. Deleting a record
// the remote no longer has counts as done.
func (f *Facade) replay(ctx context.Context, op domain.PendingOperation) error {
	err := f.replayOp(ctx, op)
	if op.Type == domain.OpDelete && errors.Is(err, store.ErrNotFound) {
		return nil
	}
	return err
}

func (f *Facade) replayOp(ctx context.Context, op domain.PendingOperation) error {
	switch op.Table {
	case domain.EntitySales:
		switch op.Type {
		case domain.OpCreate:
			var sale domain.Sale
			if err := decodePayload(op, &sale); err != nil {
				return err
			}
			_, err := f.remote.CreateSale(ctx, sale)
			return err
		case domain.OpDelete:
			return f.remote.DeleteSale(ctx, op.RecordID)
		}
	case domain.EntityPayments:
		if op.Type == domain.OpCreate {
			var payload paymentOp
			if err := decodePayload(op, &payload); err != nil {
				return err
			}
			_, err := f.remote.AddPayment(ctx, payload.SaleID, payload.Payment)
			return err
		}
	case domain.EntitySupermarkets:
		switch op.Type {
		case domain.OpCreate:
			var supermarket domain.Supermarket
			if err := decodePayload(op, &supermarket); err != nil {
				return err
			}
			_, err := f.remote.CreateSupermarket(ctx, supermarket)
			return err
		case domain.OpUpdate:
			var payload supermarketPatchOp
			if err := decodePayload(op, &payload); err != nil {
				return err
			}
			_, err := f.remote.UpdateSupermarket(ctx, payload.ID, payload.Patch)
			return err
		case domain.OpDelete:
			return f.remote.DeleteSupermarket(ctx, op.RecordID)
		}
	case domain.EntityOrders:
		switch op.Type {
		case domain.OpCreate:
			var order domain.Order
			if err := decodePayload(op, &order); err != nil {
				return err
			}
			_, err := f.remote.CreateOrder(ctx, order)
			return err
		case domain.OpUpdate:
			var payload orderStatusOp
			if err := decodePayload(op, &payload); err != nil {
				return err
			}
			_, err := f.remote.UpdateOrderStatus(ctx, payload.ID, payload.Status)
			return err
		case domain.OpDelete:
			return f.remote.DeleteOrder(ctx, op.RecordID)
		}
	case domain.EntityStockHistory:
		if op.Type == domain.OpCreate {
			var movement domain.StockMovement
			if err := decodePayload(op, &movement); err != nil {
				return err
			}
			unlock, err := f.locker.Lock(ctx)
			if err != nil {
				return err
			}
			defer unlock()
			_, err = f.remote.ApplyStockMovement(ctx, movement)
			return err
		}
	}
	return fmt.Errorf("no replay for %s on %s", op.Type, op.Table)
}

// reconcile copies every remote collection over the local one. Called only
// with an empty queue; each collection is checked and replaced while local
// writes are held off, so nothing queued in between is lost.
func (f *Facade) reconcile(ctx context.Context) error {
	var errs error
	mirror := func(entity domain.Entity, load func(context.Context) (any, error)) {
		if !f.remoteFor(entity) {
			return
		}
		f.mirrorMu.Lock()
		defer f.mirrorMu.Unlock()
		// a write queued since the drain keeps its local copy until the next one
		if blocked, err := f.queue.Blocked(ctx, queuedTables(entity)...); err != nil || blocked {
			errs = multierr.Append(errs, err)
			return
		}
		items, err := load(ctx)
		if err == nil {
			err = f.local.Replace(ctx, entity, items)
		}
		if err == nil {
			err = f.cache.Set(ctx, entity, items)
		}
		if err != nil {
			errs = multierr.Append(errs, fmt.Errorf("%s: %w", entity, err))
		}
	}

	mirror(domain.EntitySupermarkets, func(ctx context.Context) (any, error) { return f.remote.ListSupermarkets(ctx) })
	mirror(domain.EntitySales, func(ctx context.Context) (any, error) { return f.remote.ListSales(ctx) })
	mirror(domain.EntityOrders, func(ctx context.Context) (any, error) { return f.remote.ListOrders(ctx) })
	mirror(domain.EntityStockHistory, func(ctx context.Context) (any, error) { return f.remote.ListStockHistory(ctx, 0) })
	mirror(domain.EntityFragranceStock, func(ctx context.Context) (any, error) { return f.remote.ListFragranceStock(ctx) })
	return errs
}

// queuedTables lists the queue tables whose operations change entity.
func queuedTables(entity domain.Entity) []queue.Key {
	switch entity {
	case domain.EntitySales:
		return []queue.Key{{Table: domain.EntitySales}, {Table: domain.EntityPayments}}
	case domain.EntityFragranceStock:
		return []queue.Key{{Table: domain.EntityStockHistory}}
	default:
		return []queue.Key{{Table: entity}}
	}
}
