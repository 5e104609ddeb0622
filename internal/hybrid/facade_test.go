package hybrid

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soapstock/backend/internal/cache"
	"soapstock/backend/internal/domain"
	"soapstock/backend/internal/metrics"
	"soapstock/backend/internal/network"
	"soapstock/backend/internal/queue"
	"soapstock/backend/internal/store"
	"soapstock/backend/internal/store/local"
	"soapstock/backend/internal/store/memory"
)

var errUnreachable = errors.New("dial tcp 10.0.0.5:5432: connect: connection refused")

// flakyRemote is a memory remote that can be switched off to simulate an
// unreachable database.
type flakyRemote struct {
	*memory.Store
	down  atomic.Bool
	calls atomic.Int64
	// onListSales runs before every ListSales; set it before use
	onListSales func()
}

func (r *flakyRemote) check() error {
	r.calls.Add(1)
	if r.down.Load() {
		return errUnreachable
	}
	return nil
}

func (r *flakyRemote) ListSales(ctx context.Context) ([]domain.Sale, error) {
	if r.onListSales != nil {
		r.onListSales()
	}
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.Store.ListSales(ctx)
}

func (r *flakyRemote) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.Store.CreateSale(ctx, sale)
}

func (r *flakyRemote) DeleteSale(ctx context.Context, id string) error {
	if err := r.check(); err != nil {
		return err
	}
	return r.Store.DeleteSale(ctx, id)
}

func (r *flakyRemote) AddPayment(ctx context.Context, saleID string, payment domain.Payment) (*domain.Sale, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.Store.AddPayment(ctx, saleID, payment)
}

func (r *flakyRemote) ListSupermarkets(ctx context.Context) ([]domain.Supermarket, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.Store.ListSupermarkets(ctx)
}

func (r *flakyRemote) CreateSupermarket(ctx context.Context, s domain.Supermarket) (*domain.Supermarket, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.Store.CreateSupermarket(ctx, s)
}

func (r *flakyRemote) UpdateSupermarket(ctx context.Context, id string, patch domain.SupermarketPatch) (*domain.Supermarket, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.Store.UpdateSupermarket(ctx, id, patch)
}

func (r *flakyRemote) DeleteSupermarket(ctx context.Context, id string) error {
	if err := r.check(); err != nil {
		return err
	}
	return r.Store.DeleteSupermarket(ctx, id)
}

func (r *flakyRemote) ListOrders(ctx context.Context) ([]domain.Order, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.Store.ListOrders(ctx)
}

func (r *flakyRemote) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.Store.CreateOrder(ctx, order)
}

func (r *flakyRemote) UpdateOrderStatus(ctx context.Context, id string, status string) (*domain.Order, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.Store.UpdateOrderStatus(ctx, id, status)
}

func (r *flakyRemote) DeleteOrder(ctx context.Context, id string) error {
	if err := r.check(); err != nil {
		return err
	}
	return r.Store.DeleteOrder(ctx, id)
}

func (r *flakyRemote) ListStockHistory(ctx context.Context, limit int) ([]domain.StockHistoryEntry, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.Store.ListStockHistory(ctx, limit)
}

func (r *flakyRemote) ListFragranceStock(ctx context.Context) ([]domain.FragranceStock, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.Store.ListFragranceStock(ctx)
}

func (r *flakyRemote) ApplyStockMovement(ctx context.Context, movement domain.StockMovement) (*domain.StockHistoryEntry, error) {
	if err := r.check(); err != nil {
		return nil, err
	}
	return r.Store.ApplyStockMovement(ctx, movement)
}

type harness struct {
	facade   *Facade
	remote   *flakyRemote
	local    *local.Store
	kv       *local.KV
	queue    *queue.Queue
	cache    *cache.LocalCache
	detector *network.Detector
}

func newHarness(t *testing.T, online bool, cfg StorageConfig) *harness {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	kv, err := local.Open("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	h := &harness{
		remote:   &flakyRemote{Store: memory.New()},
		local:    local.New(kv),
		kv:       kv,
		queue:    queue.New(kv, nil),
		cache:    cache.NewLocalCache(kv),
		detector: network.New(network.WithInitialState(online)),
	}
	h.facade = New(Deps{
		Remote:  h.remote,
		Local:   h.local,
		State:   kv,
		Cache:   h.cache,
		Queue:   h.queue,
		Monitor: h.detector,
		Metrics: metrics.NewSyncMetrics(prometheus.NewRegistry()),
	}, cfg)
	t.Cleanup(h.facade.Close)
	return h
}

func (h *harness) pending(t *testing.T) int {
	t.Helper()
	n, _, err := h.queue.Stats(context.Background())
	require.NoError(t, err)
	return n
}

func testSupermarket(id string) domain.Supermarket {
	return domain.Supermarket{
		ID:           id,
		Name:         "Superette " + id,
		Address:      "Bab Ezzouar",
		PhoneNumbers: []domain.PhoneNumber{{Name: "Gérant", Number: "+213550123456"}},
	}
}

func testSale(id, supermarketID string) domain.Sale {
	return domain.Sale{
		ID:            id,
		Date:          time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC),
		SupermarketID: supermarketID,
		Quantity:      27,
		Cartons:       3,
		PricePerUnit:  180,
		TotalValue:    decimal.NewFromInt(27 * 180),
	}
}

func TestOfflineWritesAreDurableAndQueued(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, AllRemote())

	_, err := h.facade.CreateSupermarket(ctx, testSupermarket("m1"))
	require.NoError(t, err)
	sale, err := h.facade.CreateSale(ctx, testSale("s1", "m1"))
	require.NoError(t, err)
	assert.Equal(t, "s1", sale.ID)

	sales, err := local.New(h.kv).ListSales(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, 2, h.pending(t))
	assert.Zero(t, h.remote.calls.Load())

	listed, err := h.facade.ListSales(ctx)
	require.NoError(t, err)
	assert.Len(t, listed, 1)
}

func TestReconnectReplaysQueueOnce(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, AllRemote())
	h.facade.Start(ctx)

	_, err := h.facade.CreateSupermarket(ctx, testSupermarket("m1"))
	require.NoError(t, err)
	_, err = h.facade.CreateSale(ctx, testSale("s1", "m1"))
	require.NoError(t, err)
	_, err = h.facade.AddPayment(ctx, "s1", domain.Payment{ID: "p1", Date: time.Now().UTC(), Amount: decimal.NewFromInt(1000)})
	require.NoError(t, err)
	require.Equal(t, 3, h.pending(t))

	h.detector.SetOnline(true)
	require.Eventually(t, func() bool {
		n, _, err := h.queue.Stats(ctx)
		return err == nil && n == 0
	}, 2*time.Second, 10*time.Millisecond)
	// wait for the background sync to finish before draining by hand
	h.facade.Close()

	// a second replay of the same operations must not duplicate anything
	for _, op := range []domain.PendingOperation{
		mustOp(t, domain.OpCreate, domain.EntitySupermarkets, "m1", testSupermarket("m1")),
		mustOp(t, domain.OpCreate, domain.EntitySales, "s1", testSale("s1", "m1")),
		mustOp(t, domain.OpCreate, domain.EntityPayments, "s1", paymentOp{SaleID: "s1", Payment: domain.Payment{ID: "p1", Date: time.Now().UTC(), Amount: decimal.NewFromInt(1000)}}),
	} {
		_, err := h.queue.Enqueue(ctx, op)
		require.NoError(t, err)
	}
	report, err := h.facade.Sync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, report.Succeeded)
	assert.True(t, report.Reconciled)

	remoteSales, err := h.remote.Store.ListSales(ctx)
	require.NoError(t, err)
	require.Len(t, remoteSales, 1)
	assert.Len(t, remoteSales[0].Payments, 1)
	assert.True(t, decimal.NewFromInt(27*180-1000).Equal(remoteSales[0].RemainingAmount))

	supermarkets, err := h.remote.Store.ListSupermarkets(ctx)
	require.NoError(t, err)
	require.Len(t, supermarkets, 1)
	assert.Equal(t, 27, supermarkets[0].TotalSales)

	status, err := h.facade.SyncStatus(ctx)
	require.NoError(t, err)
	assert.True(t, status.IsOnline)
	assert.Zero(t, status.Pending)
	assert.NotNil(t, status.LastSync)
}

func mustOp(t *testing.T, opType domain.OpType, table domain.Entity, recordID string, payload any) domain.PendingOperation {
	t.Helper()
	op, err := queue.NewOperation(opType, table, recordID, payload)
	require.NoError(t, err)
	return op
}

func TestListPrefersCacheOverLocalWhenRemoteFails(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, AllRemote())

	_, err := h.facade.CreateSupermarket(ctx, testSupermarket("m1"))
	require.NoError(t, err)
	_, err = h.facade.CreateSale(ctx, testSale("s1", "m1"))
	require.NoError(t, err)

	sales, err := h.facade.ListSales(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 1)

	_, err = h.local.CreateSale(ctx, testSale("local-only", "m1"))
	require.NoError(t, err)
	h.remote.down.Store(true)

	sales, err = h.facade.ListSales(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 1, "cached remote copy is served before the local store")
	assert.Equal(t, "s1", sales[0].ID)

	require.NoError(t, h.cache.Invalidate(ctx, domain.EntitySales))
	sales, err = h.facade.ListSales(ctx)
	require.NoError(t, err)
	assert.Len(t, sales, 2)
}

func TestRemoteRejectionRollsBackLocalWrite(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, AllRemote())

	_, err := h.facade.CreateSale(ctx, testSale("s1", "missing"))
	require.ErrorIs(t, err, store.ErrNotFound)

	sales, err := h.local.ListSales(ctx)
	require.NoError(t, err)
	assert.Empty(t, sales)
	assert.Zero(t, h.pending(t))
}

func TestRemoteFailureQueuesWrite(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, AllRemote())
	h.remote.down.Store(true)

	created, err := h.facade.CreateSupermarket(ctx, testSupermarket("m1"))
	require.NoError(t, err)
	assert.Equal(t, "m1", created.ID)
	assert.Equal(t, 1, h.pending(t))

	h.remote.down.Store(false)
	report, err := h.facade.ForceSync(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Succeeded)

	remote, err := h.remote.Store.ListSupermarkets(ctx)
	require.NoError(t, err)
	assert.Len(t, remote, 1)
}

func TestWriteOnQueuedRecordWaitsBehindIt(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, AllRemote())

	_, err := h.facade.CreateSupermarket(ctx, testSupermarket("m1"))
	require.NoError(t, err)

	// online, but the supermarket has not been replayed yet
	h.detector.SetOnline(true)
	_, err = h.facade.CreateSale(ctx, testSale("s1", "m1"))
	require.NoError(t, err)
	assert.Equal(t, 2, h.pending(t))

	remoteSales, err := h.remote.Store.ListSales(ctx)
	require.NoError(t, err)
	assert.Empty(t, remoteSales)

	_, err = h.facade.Sync(ctx)
	require.NoError(t, err)
	remoteSales, err = h.remote.Store.ListSales(ctx)
	require.NoError(t, err)
	assert.Len(t, remoteSales, 1)
}

func TestUpdateStockOfflineThenReplay(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false, AllRemote())

	entry, err := h.facade.UpdateStock(ctx, domain.StockMovement{
		EntryID:  "h1",
		Date:     time.Now().UTC(),
		Quantity: 12,
		Type:     domain.StockAdded,
		Reason:   "Livraison",
		Deltas:   map[string]int{"1": 7, "2": 5},
	})
	require.NoError(t, err)
	assert.Equal(t, 12, entry.CurrentStock)
	assert.Equal(t, 1, h.pending(t))

	levels, err := h.facade.ListFragranceStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, levels[0].Quantity)

	h.detector.SetOnline(true)
	_, err = h.facade.Sync(ctx)
	require.NoError(t, err)

	remoteLevels, err := h.remote.Store.ListFragranceStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 7, remoteLevels[0].Quantity)
	assert.Equal(t, 5, remoteLevels[1].Quantity)
	history, err := h.remote.Store.ListStockHistory(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, 12, history[0].CurrentStock)
}

func TestUpdateStockRejectsOverdraw(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, AllRemote())

	_, err := h.facade.UpdateStock(ctx, domain.StockMovement{
		EntryID: "h1", Quantity: -1, Type: domain.StockRemoved, Deltas: map[string]int{"3": -1},
	})
	require.ErrorIs(t, err, store.ErrInsufficientStock)
	assert.Zero(t, h.pending(t))
}

func TestSetFragranceLevelRecordsAdjustment(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, AllRemote())

	_, err := h.facade.UpdateStock(ctx, domain.StockMovement{
		EntryID: "h1", Quantity: 10, Type: domain.StockAdded, Deltas: map[string]int{"4": 10},
	})
	require.NoError(t, err)

	entry, err := h.facade.SetFragranceLevel(ctx, "4", 6, domain.StockMovement{EntryID: "h2", Reason: "Inventaire"})
	require.NoError(t, err)
	assert.Equal(t, domain.StockAdjusted, entry.Type)
	assert.Equal(t, -4, entry.Quantity)
	assert.Equal(t, 6, entry.CurrentStock)

	localLevels, err := h.local.ListFragranceStock(ctx)
	require.NoError(t, err)
	assert.Equal(t, 6, localLevels[3].Quantity, "remote levels are mirrored locally")

	_, err = h.facade.SetFragranceLevel(ctx, "99", 1, domain.StockMovement{EntryID: "h3"})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestLocalOnlyEntityNeverQueues(t *testing.T) {
	ctx := context.Background()
	cfg := AllRemote()
	cfg.OrdersRemote = false
	h := newHarness(t, true, cfg)

	_, err := h.facade.CreateSupermarket(ctx, testSupermarket("m1"))
	require.NoError(t, err)
	_, err = h.facade.CreateOrder(ctx, domain.Order{ID: "o1", SupermarketID: "m1", Quantity: 9, PricePerUnit: 180, Status: domain.OrderPending})
	require.NoError(t, err)

	assert.Zero(t, h.pending(t))
	remoteOrders, err := h.remote.Store.ListOrders(ctx)
	require.NoError(t, err)
	assert.Empty(t, remoteOrders)

	orders, err := h.facade.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "Superette m1", orders[0].SupermarketName)
}

func TestLocalOnlyStockReadsItsOwnWrites(t *testing.T) {
	ctx := context.Background()
	cfg := AllRemote()
	cfg.StockRemote = false
	h := newHarness(t, true, cfg)

	entry, err := h.facade.UpdateStock(ctx, domain.StockMovement{
		EntryID: "h1", Quantity: 3, Type: domain.StockAdded, Deltas: map[string]int{"1": 3},
	})
	require.NoError(t, err)
	assert.Equal(t, 3, entry.CurrentStock)
	assert.Zero(t, h.pending(t))

	levels, err := h.facade.ListFragranceStock(ctx)
	require.NoError(t, err)
	total := 0
	for _, level := range levels {
		total += level.Quantity
	}
	assert.Equal(t, 3, total)

	remoteLevels, err := h.remote.Store.ListFragranceStock(ctx)
	require.NoError(t, err)
	assert.Zero(t, remoteLevels[0].Quantity)
}

func TestOfflineDeleteOfCachedOnlySaleIsQueued(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, AllRemote())

	_, err := h.remote.Store.CreateSupermarket(ctx, testSupermarket("m1"))
	require.NoError(t, err)
	_, err = h.remote.Store.CreateSale(ctx, testSale("s1", "m1"))
	require.NoError(t, err)
	sales, err := h.facade.ListSales(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 1)

	h.detector.SetOnline(false)
	deleted, err := h.facade.DeleteSale(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, "s1", deleted.ID)
	assert.Equal(t, 1, h.pending(t))

	h.detector.SetOnline(true)
	_, err = h.facade.Sync(ctx)
	require.NoError(t, err)
	remoteSales, err := h.remote.Store.ListSales(ctx)
	require.NoError(t, err)
	assert.Empty(t, remoteSales)
}

func TestWriteQueuedDuringReconcileKeepsLocalCopy(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true, AllRemote())
	_, err := h.facade.CreateSupermarket(ctx, testSupermarket("m1"))
	require.NoError(t, err)

	loading := make(chan struct{})
	release := make(chan struct{})
	var once sync.Once
	h.remote.onListSales = func() {
		once.Do(func() {
			close(loading)
			<-release
		})
	}

	syncDone := make(chan error, 1)
	go func() {
		_, err := h.facade.Sync(ctx)
		syncDone <- err
	}()
	<-loading

	h.detector.SetOnline(false)
	writeDone := make(chan error, 1)
	go func() {
		_, err := h.facade.CreateSale(ctx, testSale("s1", "m1"))
		writeDone <- err
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	require.NoError(t, <-syncDone)
	require.NoError(t, <-writeDone)

	sales, err := h.local.ListSales(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 1)
	assert.Equal(t, "s1", sales[0].ID)
	assert.Equal(t, 1, h.pending(t))
}

func TestForceSyncOffline(t *testing.T) {
	h := newHarness(t, false, AllRemote())
	_, err := h.facade.ForceSync(context.Background())
	assert.ErrorIs(t, err, store.ErrOffline)
}
