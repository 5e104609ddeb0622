package queue

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soapstock/backend/internal/domain"
)

type memKV struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemKV() *memKV { return &memKV{data: map[string][]byte{}} }

func (m *memKV) Get(_ context.Context, key string, dst any) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	raw, ok := m.data[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(raw, dst)
}

func (m *memKV) Put(_ context.Context, key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	m.mu.Lock()
	m.data[key] = raw
	m.mu.Unlock()
	return nil
}

func enqueue(t *testing.T, q *Queue, table domain.Entity, recordID string) domain.PendingOperation {
	t.Helper()
	op, err := NewOperation(domain.OpCreate, table, recordID, map[string]string{"id": recordID})
	require.NoError(t, err)
	op, err = q.Enqueue(context.Background(), op)
	require.NoError(t, err)
	return op
}

func TestDrainReplaysInOrderAndRemovesSuccesses(t *testing.T) {
	ctx := context.Background()
	q := New(newMemKV(), nil)
	enqueue(t, q, domain.EntitySales, "s1")
	enqueue(t, q, domain.EntityOrders, "o1")
	enqueue(t, q, domain.EntitySales, "s2")

	var seen []string
	res, err := q.Drain(ctx, func(_ context.Context, op domain.PendingOperation) error {
		seen = append(seen, op.RecordID)
		if op.RecordID == "o1" {
			return errors.New("remote down")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "o1", "s2"}, seen)
	assert.Equal(t, DrainResult{Attempted: 3, Succeeded: 2, Failed: 1}, res)

	left, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "o1", left[0].RecordID)
	assert.True(t, left[0].Failed)
	assert.Equal(t, 1, left[0].Attempts)
	assert.Equal(t, "remote down", left[0].LastError)

	pending, failed, err := q.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, pending)
	assert.Equal(t, 1, failed)
}

func TestDrainDefersLaterOperationsOnFailedRecord(t *testing.T) {
	ctx := context.Background()
	q := New(newMemKV(), nil)
	enqueue(t, q, domain.EntitySales, "s1")
	enqueue(t, q, domain.EntitySales, "s1")

	calls := 0
	res, err := q.Drain(ctx, func(context.Context, domain.PendingOperation) error {
		calls++
		return errors.New("boom")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, res.Deferred)

	left, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, left, 2)
	assert.True(t, left[0].Failed)
	assert.False(t, left[1].Failed)
}

func TestDrainUsesSnapshot(t *testing.T) {
	ctx := context.Background()
	q := New(newMemKV(), nil)
	enqueue(t, q, domain.EntitySales, "s1")

	attempted := 0
	res, err := q.Drain(ctx, func(context.Context, domain.PendingOperation) error {
		attempted++
		enqueue(t, q, domain.EntitySales, "late")
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 1, attempted)
	assert.Equal(t, 1, res.Succeeded)

	left, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "late", left[0].RecordID)
}

func TestConcurrentDrainIsNoop(t *testing.T) {
	ctx := context.Background()
	q := New(newMemKV(), nil)
	enqueue(t, q, domain.EntitySales, "s1")

	entered := make(chan struct{})
	release := make(chan struct{})
	done := make(chan DrainResult)
	go func() {
		res, _ := q.Drain(ctx, func(context.Context, domain.PendingOperation) error {
			close(entered)
			<-release
			return nil
		})
		done <- res
	}()

	<-entered
	second, err := q.Drain(ctx, func(context.Context, domain.PendingOperation) error {
		t.Fatal("second drain must not replay")
		return nil
	})
	require.NoError(t, err)
	assert.True(t, second.Skipped)

	close(release)
	first := <-done
	assert.Equal(t, 1, first.Succeeded)
}

func TestDrainRecoversPanickingSync(t *testing.T) {
	q := New(newMemKV(), nil)
	enqueue(t, q, domain.EntitySales, "s1")

	res, err := q.Drain(context.Background(), func(context.Context, domain.PendingOperation) error {
		panic("bad payload")
	})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Failed)
}

func TestBlocked(t *testing.T) {
	ctx := context.Background()
	q := New(newMemKV(), nil)
	enqueue(t, q, domain.EntitySales, "s1")

	blocked, err := q.Blocked(ctx, Key{Table: domain.EntitySales, RecordID: "s1"})
	require.NoError(t, err)
	assert.True(t, blocked)

	blocked, err = q.Blocked(ctx, Key{Table: domain.EntitySales, RecordID: "s2"})
	require.NoError(t, err)
	assert.False(t, blocked)

	blocked, err = q.Blocked(ctx, Key{Table: domain.EntitySales})
	require.NoError(t, err)
	assert.True(t, blocked)

	blocked, err = q.Blocked(ctx, Key{Table: domain.EntityOrders})
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestQueueSurvivesReopen(t *testing.T) {
	kv := newMemKV()
	op := enqueue(t, New(kv, nil), domain.EntityStockHistory, "h1")

	left, err := New(kv, nil).Pending(context.Background())
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, op.ID, left[0].ID)
	assert.False(t, left[0].Timestamp.IsZero())
}
