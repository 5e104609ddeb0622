// Package migration copies the legacy local collections to the remote store
// once. Each collection has its own done flag so an interrupted run resumes
// where it stopped.
package migration

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"soapstock/backend/internal/domain"
	"soapstock/backend/internal/logger"
	"soapstock/backend/internal/network"
	"soapstock/backend/internal/store"
	"soapstock/backend/internal/xid"
)

// Legacy collection keys in the local key/value store.
const (
	LegacySupermarkets   = "soap_supermarkets"
	LegacySales          = "soap_sales"
	LegacyOrders         = "soap_orders"
	LegacyStock          = "soap_stock"
	LegacyFragranceStock = "soap_fragrance_stock"
)

// Done flags.
const (
	FlagSupermarkets   = "supermarket_migration_done"
	FlagSales          = "sales_migration_done"
	FlagOrders         = "orders_migration_done"
	FlagStock          = "stock_migration_done"
	FlagFragranceStock = "fragrance_stock_migration_done"
	FlagComplete       = "full_migration_complete"
)

var allFlags = []string{FlagSupermarkets, FlagSales, FlagOrders, FlagStock, FlagFragranceStock, FlagComplete}

// KV is the slice of the local key/value store the runner needs.
type KV interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Put(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, keys ...string) error
}

type StepResult struct {
	Success   bool     `json:"success"`
	Migrated  int      `json:"migrated"`
	Errors    int      `json:"errors"`
	Message   string   `json:"message"`
	Unmatched []string `json:"unmatched,omitempty"`
}

type Summary struct {
	Success       bool                  `json:"success"`
	Results       map[string]StepResult `json:"results"`
	TotalMigrated int                   `json:"totalMigrated"`
	TotalErrors   int                   `json:"totalErrors"`
	Message       string                `json:"message,omitempty"`
}

type Status struct {
	Needed         bool `json:"needed"`
	Complete       bool `json:"isComplete"`
	Supermarkets   bool `json:"supermarkets"`
	Sales          bool `json:"sales"`
	Orders         bool `json:"orders"`
	Stock          bool `json:"stock"`
	FragranceStock bool `json:"fragranceStock"`
}

type Runner struct {
	kv      KV
	remote  store.RemoteStore
	monitor network.ConnectivityMonitor
	log     *logger.Logger
	now     func() time.Time
}

func NewRunner(kv KV, remote store.RemoteStore, monitor network.ConnectivityMonitor, log *logger.Logger) *Runner {
	return &Runner{
		kv:      kv,
		remote:  remote,
		monitor: monitor,
		log:     log.Component("migration"),
		now:     time.Now,
	}
}

type step struct {
	name string
	flag string
	noun string
	run  func(ctx context.Context, res *StepResult) error
}

// Run migrates every collection in dependency order. Nothing is written and
// no flag is set while the remote store is unreachable.
func (r *Runner) Run(ctx context.Context) Summary {
	if done, err := r.flag(ctx, FlagComplete); err != nil {
		return Summary{Results: map[string]StepResult{}, TotalErrors: 1, Message: err.Error()}
	} else if done {
		return Summary{Success: true, Results: map[string]StepResult{}, Message: "migration already complete"}
	}
	if r.remote == nil || (r.monitor != nil && r.monitor.IsOffline()) {
		return Summary{Results: map[string]StepResult{}, TotalErrors: 1, Message: "remote store unreachable, migration postponed"}
	}

	steps := []step{
		{name: "supermarkets", flag: FlagSupermarkets, noun: "supermarkets", run: r.migrateSupermarkets},
		{name: "sales", flag: FlagSales, noun: "sales", run: r.migrateSales},
		{name: "orders", flag: FlagOrders, noun: "orders", run: r.migrateOrders},
		{name: "stock", flag: FlagStock, noun: "stock entries", run: r.migrateStock},
		{name: "fragranceStock", flag: FlagFragranceStock, noun: "fragrance stocks", run: r.migrateFragranceStock},
	}

	summary := Summary{Success: true, Results: make(map[string]StepResult, len(steps))}
	for _, s := range steps {
		res := r.runStep(ctx, s)
		summary.Results[s.name] = res
		summary.TotalMigrated += res.Migrated
		summary.TotalErrors += res.Errors
		if !res.Success {
			summary.Success = false
		}
	}

	if !summary.Success {
		summary.Message = "migration incomplete, run it again once the remote store is reachable"
		return summary
	}
	if err := r.kv.Put(ctx, FlagComplete, true); err != nil {
		summary.Success = false
		summary.TotalErrors++
		summary.Message = err.Error()
		return summary
	}
	summary.Message = fmt.Sprintf("migrated %d records", summary.TotalMigrated)
	r.log.Info(r.log.WithFields(ctx, map[string]any{
		"migrated": summary.TotalMigrated,
		"errors":   summary.TotalErrors,
	}), "legacy migration complete")
	return summary
}

// runStep never lets an error escape: record-level rejections are counted,
// anything else ends the step unsuccessful with its flag unset.
func (r *Runner) runStep(ctx context.Context, s step) (res StepResult) {
	defer func() {
		if p := recover(); p != nil {
			res.Success = false
			res.Errors++
			res.Message = fmt.Sprintf("%s migration failed: %v", s.name, p)
		}
	}()

	done, err := r.flag(ctx, s.flag)
	if err != nil {
		return StepResult{Errors: 1, Message: err.Error()}
	}
	if done {
		return StepResult{Success: true, Message: fmt.Sprintf("%s already migrated", s.noun)}
	}

	if err := s.run(ctx, &res); err != nil {
		r.log.Error(r.log.WithField(ctx, "step", s.name), "migration step failed", err)
		res.Success = false
		res.Errors++
		res.Message = fmt.Sprintf("%s migration failed: %v", s.name, err)
		return res
	}
	if err := r.kv.Put(ctx, s.flag, true); err != nil {
		res.Errors++
		res.Message = err.Error()
		return res
	}

	res.Success = true
	switch {
	case res.Migrated == 0 && res.Errors == 0:
		res.Message = fmt.Sprintf("no %s to migrate", s.noun)
	case res.Errors > 0:
		res.Message = fmt.Sprintf("migrated %d %s with %d errors", res.Migrated, s.noun, res.Errors)
	default:
		res.Message = fmt.Sprintf("migrated %d %s", res.Migrated, s.noun)
	}
	return res
}

// record classifies the outcome of one record write. A rejection is counted
// against the step; any other error aborts it.
func record(res *StepResult, id string, err error) error {
	switch {
	case err == nil:
		res.Migrated++
		return nil
	case store.IsRejection(err):
		res.Errors++
		res.Unmatched = append(res.Unmatched, id)
		return nil
	default:
		return fmt.Errorf("%s: %w", id, err)
	}
}

func (r *Runner) flag(ctx context.Context, key string) (bool, error) {
	var done bool
	found, err := r.kv.Get(ctx, key, &done)
	if err != nil {
		return false, fmt.Errorf("read flag %s: %w", key, err)
	}
	return found && done, nil
}

// Status reports which steps have run and whether legacy data is waiting.
func (r *Runner) Status(ctx context.Context) (Status, error) {
	var st Status
	targets := []struct {
		key string
		dst *bool
	}{
		{FlagComplete, &st.Complete},
		{FlagSupermarkets, &st.Supermarkets},
		{FlagSales, &st.Sales},
		{FlagOrders, &st.Orders},
		{FlagStock, &st.Stock},
		{FlagFragranceStock, &st.FragranceStock},
	}
	for _, t := range targets {
		done, err := r.flag(ctx, t.key)
		if err != nil {
			return Status{}, err
		}
		*t.dst = done
	}
	if st.Complete {
		return st, nil
	}
	for _, key := range []string{LegacySupermarkets, LegacySales, LegacyOrders, LegacyStock, LegacyFragranceStock} {
		var items []any
		found, err := r.kv.Get(ctx, key, &items)
		if err != nil {
			return Status{}, fmt.Errorf("read %s: %w", key, err)
		}
		if found && len(items) > 0 {
			st.Needed = true
			break
		}
	}
	return st, nil
}

// Reset clears every flag so the next Run starts over. Already migrated
// records are recognized and not duplicated.
func (r *Runner) Reset(ctx context.Context) error {
	return r.kv.Delete(ctx, allFlags...)
}

func loadLegacy[T any](ctx context.Context, kv KV, key string) ([]T, error) {
	var items []T
	if _, err := kv.Get(ctx, key, &items); err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return items, nil
}

func matchKey(name, address string) string {
	norm := func(s string) string { return strings.Join(strings.Fields(strings.ToLower(s)), " ") }
	return norm(name) + "|" + norm(address)
}

// supermarketIndex resolves legacy supermarket ids to remote ids.
type supermarketIndex struct {
	byLegacyID map[string]domain.Supermarket
	byKey      map[string]domain.Supermarket
	legacy     map[string]legacySupermarket
	ordered    []legacySupermarket
}

func (r *Runner) loadIndex(ctx context.Context) (*supermarketIndex, error) {
	remote, err := r.remote.ListSupermarkets(ctx)
	if err != nil {
		return nil, fmt.Errorf("list remote supermarkets: %w", err)
	}
	legacy, err := loadLegacy[legacySupermarket](ctx, r.kv, LegacySupermarkets)
	if err != nil {
		return nil, err
	}
	idx := &supermarketIndex{
		byLegacyID: make(map[string]domain.Supermarket, len(remote)),
		byKey:      make(map[string]domain.Supermarket, len(remote)),
		legacy:     make(map[string]legacySupermarket, len(legacy)),
		ordered:    legacy,
	}
	for _, s := range remote {
		if s.LegacyID != "" {
			idx.byLegacyID[s.LegacyID] = s
		}
		idx.byKey[matchKey(s.Name, s.Address)] = s
	}
	for _, s := range legacy {
		idx.legacy[s.ID] = s
	}
	return idx, nil
}

func (idx *supermarketIndex) resolve(legacyID string) (domain.Supermarket, bool) {
	if s, ok := idx.byLegacyID[legacyID]; ok {
		return s, true
	}
	old, ok := idx.legacy[legacyID]
	if !ok {
		return domain.Supermarket{}, false
	}
	s, ok := idx.byKey[matchKey(old.Name, old.Address)]
	return s, ok
}

func (r *Runner) migrateSupermarkets(ctx context.Context, res *StepResult) error {
	idx, err := r.loadIndex(ctx)
	if err != nil {
		return err
	}
	for _, old := range idx.ordered {
		if _, ok := idx.resolve(old.ID); ok {
			res.Migrated++
			continue
		}
		created, err := r.remote.CreateSupermarket(ctx, old.toDomain(xid.New("sm")))
		if err := record(res, "supermarket:"+old.ID, err); err != nil {
			return err
		}
		if created != nil {
			idx.byLegacyID[old.ID] = *created
			idx.byKey[matchKey(created.Name, created.Address)] = *created
		}
	}
	return nil
}

func (r *Runner) migrateSales(ctx context.Context, res *StepResult) error {
	idx, err := r.loadIndex(ctx)
	if err != nil {
		return err
	}
	sales, err := loadLegacy[legacySale](ctx, r.kv, LegacySales)
	if err != nil {
		return err
	}
	for _, old := range sales {
		supermarket, ok := idx.resolve(old.SupermarketID)
		if !ok {
			r.log.Warn(r.log.WithField(ctx, "sale_id", old.ID), "no remote supermarket for legacy sale", nil)
			res.Errors++
			res.Unmatched = append(res.Unmatched, "sale:"+old.ID)
			continue
		}
		if err := record(res, "sale:"+old.ID, r.migrateSale(ctx, old, supermarket.ID)); err != nil {
			return err
		}
	}
	return nil
}

// migrateSale creates the sale without payments, appends the legacy
// payments and, for a sale marked paid that they do not cover, one
// settlement payment with a deterministic id.
func (r *Runner) migrateSale(ctx context.Context, old legacySale, supermarketID string) error {
	sale := old.toDomain(supermarketID)
	if _, err := r.remote.CreateSale(ctx, sale); err != nil {
		return err
	}

	paid := decimal.Zero
	for i, p := range old.Payments {
		payment, ok := p.toDomain(old.ID, i, sale.Date)
		if !ok {
			continue
		}
		// Legacy records could overpay; only the outstanding part is kept.
		outstanding := sale.TotalValue.Sub(paid)
		if !outstanding.IsPositive() {
			break
		}
		if payment.Amount.GreaterThan(outstanding) {
			payment.Amount = outstanding
		}
		if _, err := r.remote.AddPayment(ctx, sale.ID, payment); err != nil {
			return fmt.Errorf("payment %s: %w", payment.ID, err)
		}
		paid = paid.Add(payment.Amount)
	}

	gap := sale.TotalValue.Sub(paid)
	if !old.IsPaid || !gap.IsPositive() {
		return nil
	}
	settledAt := sale.Date
	if t, ok := parseTime(old.PaymentDate); ok {
		settledAt = t
	}
	settle := domain.Payment{
		ID:     old.ID + "-settle",
		Date:   settledAt,
		Amount: gap,
		Note:   strings.TrimSpace("legacy settlement " + old.PaymentNote),
	}
	if _, err := r.remote.AddPayment(ctx, sale.ID, settle); err != nil {
		return fmt.Errorf("settlement: %w", err)
	}
	return nil
}

func (r *Runner) migrateOrders(ctx context.Context, res *StepResult) error {
	idx, err := r.loadIndex(ctx)
	if err != nil {
		return err
	}
	orders, err := loadLegacy[legacyOrder](ctx, r.kv, LegacyOrders)
	if err != nil {
		return err
	}
	for _, old := range orders {
		supermarket, ok := idx.resolve(old.SupermarketID)
		if !ok {
			res.Errors++
			res.Unmatched = append(res.Unmatched, "order:"+old.ID)
			continue
		}
		_, err := r.remote.CreateOrder(ctx, old.toDomain(supermarket))
		if err := record(res, "order:"+old.ID, err); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) migrateStock(ctx context.Context, res *StepResult) error {
	entries, err := loadLegacy[legacyStockEntry](ctx, r.kv, LegacyStock)
	if err != nil {
		return err
	}
	for _, old := range entries {
		err := r.remote.ImportStockEntry(ctx, old.toDomain(r.now()))
		if err := record(res, "stock:"+old.ID, err); err != nil {
			return err
		}
	}
	return nil
}

func (r *Runner) migrateFragranceStock(ctx context.Context, res *StepResult) error {
	levels, err := loadLegacy[domain.FragranceStock](ctx, r.kv, LegacyFragranceStock)
	if err != nil {
		return err
	}
	for _, level := range levels {
		if level.Quantity < 0 {
			level.Quantity = 0
		}
		err := r.remote.ImportFragranceStock(ctx, level)
		if err := record(res, "fragrance:"+level.FragranceID, err); err != nil {
			return err
		}
	}
	return nil
}
