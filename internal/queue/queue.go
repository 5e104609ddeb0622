// Package queue persists mutations that were applied locally but not yet
// confirmed by the remote store, and replays them in order.
package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"soapstock/backend/internal/domain"
	"soapstock/backend/internal/logger"
	"soapstock/backend/internal/xid"
)

const KeyPendingOperations = "pending_operations"

// KV is the slice of the local key/value store the queue needs.
type KV interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Put(ctx context.Context, key string, value any) error
}

// SyncFunc applies one operation to the remote store. A nil error means the
// remote confirmed it and the operation can be dropped.
type SyncFunc func(ctx context.Context, op domain.PendingOperation) error

type DrainResult struct {
	Skipped   bool `json:"skipped"`
	Attempted int  `json:"attempted"`
	Succeeded int  `json:"succeeded"`
	Failed    int  `json:"failed"`
	Deferred  int  `json:"deferred"`
}

type Queue struct {
	kv  KV
	log *logger.Logger
	now func() time.Time

	mu       sync.Mutex
	draining atomic.Bool
}

func New(kv KV, log *logger.Logger) *Queue {
	if log == nil {
		log = logger.Nop()
	}
	return &Queue{kv: kv, log: log, now: time.Now}
}

// NewOperation builds an operation carrying payload as JSON.
func NewOperation(opType domain.OpType, table domain.Entity, recordID string, payload any) (domain.PendingOperation, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return domain.PendingOperation{}, fmt.Errorf("encode %s %s payload: %w", opType, table, err)
	}
	return domain.PendingOperation{
		Type:     opType,
		Table:    table,
		RecordID: recordID,
		Payload:  raw,
	}, nil
}

func (q *Queue) load(ctx context.Context) ([]domain.PendingOperation, error) {
	var ops []domain.PendingOperation
	if _, err := q.kv.Get(ctx, KeyPendingOperations, &ops); err != nil {
		return nil, fmt.Errorf("load pending operations: %w", err)
	}
	return ops, nil
}

func (q *Queue) save(ctx context.Context, ops []domain.PendingOperation) error {
	if ops == nil {
		ops = []domain.PendingOperation{}
	}
	if err := q.kv.Put(ctx, KeyPendingOperations, ops); err != nil {
		return fmt.Errorf("save pending operations: %w", err)
	}
	return nil
}

func (q *Queue) Enqueue(ctx context.Context, op domain.PendingOperation) (domain.PendingOperation, error) {
	if op.ID == "" {
		op.ID = xid.New("op")
	}
	if op.Timestamp.IsZero() {
		op.Timestamp = q.now().UTC()
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.load(ctx)
	if err != nil {
		return domain.PendingOperation{}, err
	}
	ops = append(ops, op)
	if err := q.save(ctx, ops); err != nil {
		return domain.PendingOperation{}, err
	}
	return op, nil
}

func (q *Queue) Pending(ctx context.Context) ([]domain.PendingOperation, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Stats returns the number of queued operations and how many of them have
// failed at least once.
func (q *Queue) Stats(ctx context.Context) (pending int, failed int, err error) {
	ops, err := q.Pending(ctx)
	if err != nil {
		return 0, 0, err
	}
	for _, op := range ops {
		if op.Failed {
			failed++
		}
	}
	return len(ops), failed, nil
}

// Key names a record, or a whole table when RecordID is empty.
type Key struct {
	Table    domain.Entity
	RecordID string
}

// Blocked reports whether any queued operation touches one of keys. A write
// on a blocked record must be queued behind it rather than sent directly.
func (q *Queue) Blocked(ctx context.Context, keys ...Key) (bool, error) {
	if len(keys) == 0 {
		return false, nil
	}
	ops, err := q.Pending(ctx)
	if err != nil {
		return false, err
	}
	for _, op := range ops {
		for _, k := range keys {
			if op.Table == k.Table && (k.RecordID == "" || op.RecordID == k.RecordID) {
				return true, nil
			}
		}
	}
	return false, nil
}

func (q *Queue) Clear(ctx context.Context) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.save(ctx, nil)
}

// Drain replays a snapshot of the queue taken when it starts, oldest first.
// Operations enqueued meanwhile wait for the next drain. Confirmed operations
// are removed; failed ones stay, marked failed. Once an operation on a record
// fails, later operations on that record are left untouched so they never
// overtake it. A drain requested while another runs does nothing.
func (q *Queue) Drain(ctx context.Context, syncFn SyncFunc) (DrainResult, error) {
	if !q.draining.CompareAndSwap(false, true) {
		return DrainResult{Skipped: true}, nil
	}
	defer q.draining.Store(false)

	snapshot, err := q.Pending(ctx)
	if err != nil {
		return DrainResult{}, err
	}

	var result DrainResult
	blocked := make(map[string]bool)
	for _, op := range snapshot {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		if op.RecordID != "" && blocked[string(op.Table)+"/"+op.RecordID] {
			result.Deferred++
			continue
		}

		result.Attempted++
		syncErr := q.apply(ctx, syncFn, op)
		if syncErr == nil {
			if err := q.remove(ctx, op.ID); err != nil {
				return result, err
			}
			result.Succeeded++
			continue
		}

		result.Failed++
		if op.RecordID != "" {
			blocked[string(op.Table)+"/"+op.RecordID] = true
		}
		q.log.Warn(q.log.WithFields(ctx, map[string]any{
			"op_id": op.ID, "op_type": op.Type, "table": op.Table, "record_id": op.RecordID,
		}), "pending operation failed", syncErr)
		if err := q.markFailed(ctx, op.ID, syncErr); err != nil {
			return result, err
		}
	}
	return result, nil
}

func (q *Queue) apply(ctx context.Context, syncFn SyncFunc, op domain.PendingOperation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("replay panicked: %v", r)
		}
	}()
	return syncFn(ctx, op)
}

func (q *Queue) remove(ctx context.Context, id string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.load(ctx)
	if err != nil {
		return err
	}
	ops = slices.DeleteFunc(ops, func(op domain.PendingOperation) bool { return op.ID == id })
	return q.save(ctx, ops)
}

func (q *Queue) markFailed(ctx context.Context, id string, cause error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	ops, err := q.load(ctx)
	if err != nil {
		return err
	}
	for i := range ops {
		if ops[i].ID == id {
			ops[i].Attempts++
			ops[i].Failed = true
			ops[i].LastError = cause.Error()
		}
	}
	return q.save(ctx, ops)
}
