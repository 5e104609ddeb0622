package migration

import (
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"soapstock/backend/internal/domain"
	"soapstock/backend/internal/logger"
	"soapstock/backend/internal/network"
	"soapstock/backend/internal/store/local"
	"soapstock/backend/internal/store/memory"
)

const legacySupermarketsJSON = `[
  {"id": "old-1", "name": "Superette Atlas", "address": "12 Rue Didouche, Alger",
   "phoneNumbers": [{"name": "Karim", "number": "+213550123456"}], "totalSales": 0, "totalValue": 0,
   "location": {"lat": 36.77, "lng": 3.05, "formattedAddress": "12 Rue Didouche"}},
  {"id": "old-2", "name": "Marché Bab El Oued", "address": "3 Place des Martyrs",
   "phone": "0661234567", "location": {"lat": 36.79, "lng": 3.06, "formattedAddress": ""}}
]`

const legacySalesJSON = `[
  {"id": "sale-paid", "date": "2024-02-10T09:00:00.000Z", "supermarketId": "old-1", "quantity": 18, "cartons": 2,
   "pricePerUnit": 180, "totalValue": 3240, "isPaid": true, "paymentDate": "2024-02-20T09:00:00.000Z",
   "remainingAmount": 0, "payments": []},
  {"id": "sale-partial", "date": "2024-03-01", "supermarketId": "old-2", "quantity": 9, "cartons": 1,
   "pricePerUnit": 166, "totalValue": 1494, "isPaid": false, "remainingAmount": 494,
   "payments": [{"id": "pay-1", "date": "2024-03-05", "amount": 1000}]},
  {"id": "sale-ghost", "date": "2024-03-02", "supermarketId": "gone", "quantity": 9, "cartons": 1,
   "pricePerUnit": 180, "totalValue": 1620, "isPaid": false}
]`

const legacyOrdersJSON = `[
  {"id": "order-1", "date": "2024-03-03", "supermarketId": "old-1", "quantity": 27, "pricePerUnit": 180, "status": "pending"}
]`

const legacyStockJSON = `[
  {"id": "stock-1", "date": "2024-01-01", "quantity": 40, "type": "added", "reason": "Initial", "currentStock": 40,
   "fragranceDistribution": {"1": 20, "2": 20}}
]`

const legacyFragranceJSON = `[
  {"fragranceId": "1", "name": "Lavande", "quantity": 18, "color": "#9F7AEA"},
  {"fragranceId": "2", "name": "Rose", "quantity": 19, "color": "#F687B3"}
]`

type harness struct {
	kv      *local.KV
	remote  *memory.Store
	monitor *network.Detector
	runner  *Runner
}

func newHarness(t *testing.T, online bool) *harness {
	t.Helper()
	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	kv, err := local.Open("file:" + name + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = kv.Close() })

	h := &harness{
		kv:      kv,
		remote:  memory.New(),
		monitor: network.New(network.WithInitialState(online)),
	}
	h.runner = NewRunner(kv, h.remote, h.monitor, logger.Nop())
	return h
}

func (h *harness) seedLegacy(t *testing.T) {
	t.Helper()
	ctx := context.Background()
	for key, raw := range map[string]string{
		LegacySupermarkets:   legacySupermarketsJSON,
		LegacySales:          legacySalesJSON,
		LegacyOrders:         legacyOrdersJSON,
		LegacyStock:          legacyStockJSON,
		LegacyFragranceStock: legacyFragranceJSON,
	} {
		require.NoError(t, h.kv.Put(ctx, key, json.RawMessage(raw)))
	}
}

func findSale(t *testing.T, sales []domain.Sale, id string) domain.Sale {
	t.Helper()
	for _, s := range sales {
		if s.ID == id {
			return s
		}
	}
	t.Fatalf("sale %s not found", id)
	return domain.Sale{}
}

func TestRunMigratesEveryCollection(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	h.seedLegacy(t)

	summary := h.runner.Run(ctx)
	require.True(t, summary.Success, summary.Message)
	assert.Equal(t, 2, summary.Results["supermarkets"].Migrated)
	assert.Equal(t, 2, summary.Results["sales"].Migrated)
	assert.Equal(t, 1, summary.Results["sales"].Errors)
	assert.Equal(t, []string{"sale:sale-ghost"}, summary.Results["sales"].Unmatched)
	assert.Equal(t, 1, summary.Results["orders"].Migrated)
	assert.Equal(t, 1, summary.Results["stock"].Migrated)
	assert.Equal(t, 2, summary.Results["fragranceStock"].Migrated)
	assert.Equal(t, 8, summary.TotalMigrated)
	assert.Equal(t, 1, summary.TotalErrors)

	supermarkets, err := h.remote.ListSupermarkets(ctx)
	require.NoError(t, err)
	require.Len(t, supermarkets, 2)
	byLegacy := map[string]domain.Supermarket{}
	for _, s := range supermarkets {
		byLegacy[s.LegacyID] = s
	}
	assert.Equal(t, 18, byLegacy["old-1"].TotalSales)
	assert.InDelta(t, 36.77, byLegacy["old-1"].Latitude, 1e-9)
	require.Len(t, byLegacy["old-2"].PhoneNumbers, 1)
	assert.Equal(t, "0661234567", byLegacy["old-2"].PhoneNumbers[0].Number)

	sales, err := h.remote.ListSales(ctx)
	require.NoError(t, err)
	require.Len(t, sales, 2)

	paid := findSale(t, sales, "sale-paid")
	assert.True(t, paid.IsPaid)
	assert.True(t, paid.RemainingAmount.IsZero())
	require.Len(t, paid.Payments, 1)
	assert.Equal(t, "sale-paid-settle", paid.Payments[0].ID)
	assert.True(t, paid.Payments[0].Amount.Equal(decimal.NewFromInt(3240)))
	require.NotNil(t, paid.PaymentDate)
	assert.Equal(t, 20, paid.PaymentDate.Day())

	partial := findSale(t, sales, "sale-partial")
	assert.False(t, partial.IsPaid)
	assert.True(t, partial.RemainingAmount.Equal(decimal.NewFromInt(494)))
	assert.Equal(t, byLegacy["old-2"].ID, partial.SupermarketID)

	orders, err := h.remote.ListOrders(ctx)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "Superette Atlas", orders[0].SupermarketName)

	levels, err := h.remote.ListFragranceStock(ctx)
	require.NoError(t, err)
	for _, level := range levels {
		switch level.FragranceID {
		case "1":
			assert.Equal(t, 18, level.Quantity)
		case "2":
			assert.Equal(t, 19, level.Quantity)
		}
	}

	status, err := h.runner.Status(ctx)
	require.NoError(t, err)
	assert.True(t, status.Complete)
	assert.True(t, status.Sales)
	assert.False(t, status.Needed)
}

func TestRunIsIdempotentAcrossReset(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	h.seedLegacy(t)

	first := h.runner.Run(ctx)
	require.True(t, first.Success)

	again := h.runner.Run(ctx)
	assert.True(t, again.Success)
	assert.Zero(t, again.TotalMigrated)
	assert.Empty(t, again.Results)

	require.NoError(t, h.runner.Reset(ctx))
	status, err := h.runner.Status(ctx)
	require.NoError(t, err)
	assert.False(t, status.Complete)
	assert.True(t, status.Needed)

	rerun := h.runner.Run(ctx)
	require.True(t, rerun.Success)

	supermarkets, err := h.remote.ListSupermarkets(ctx)
	require.NoError(t, err)
	assert.Len(t, supermarkets, 2)

	sales, err := h.remote.ListSales(ctx)
	require.NoError(t, err)
	assert.Len(t, sales, 2)
	assert.Len(t, findSale(t, sales, "sale-paid").Payments, 1)
	assert.Len(t, findSale(t, sales, "sale-partial").Payments, 1)
}

func TestRunMatchesExistingSupermarketByNameAndAddress(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	h.seedLegacy(t)

	_, err := h.remote.CreateSupermarket(ctx, domain.Supermarket{
		ID:           "remote-atlas",
		Name:         "  superette atlas ",
		Address:      "12 rue  Didouche, Alger",
		PhoneNumbers: []domain.PhoneNumber{{Name: "Karim", Number: "+213550123456"}},
	})
	require.NoError(t, err)

	summary := h.runner.Run(ctx)
	require.True(t, summary.Success)

	supermarkets, err := h.remote.ListSupermarkets(ctx)
	require.NoError(t, err)
	assert.Len(t, supermarkets, 2)

	sales, err := h.remote.ListSales(ctx)
	require.NoError(t, err)
	assert.Equal(t, "remote-atlas", findSale(t, sales, "sale-paid").SupermarketID)
}

func TestRunOfflineSetsNoFlags(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, false)
	h.seedLegacy(t)

	summary := h.runner.Run(ctx)
	assert.False(t, summary.Success)
	assert.Zero(t, summary.TotalMigrated)

	status, err := h.runner.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, Status{Needed: true}, status)

	supermarkets, err := h.remote.ListSupermarkets(ctx)
	require.NoError(t, err)
	assert.Empty(t, supermarkets)
}

func TestRunWithoutLegacyData(t *testing.T) {
	h := newHarness(t, true)

	summary := h.runner.Run(context.Background())
	require.True(t, summary.Success)
	assert.Zero(t, summary.TotalMigrated)
	assert.Equal(t, "no sales to migrate", summary.Results["sales"].Message)
}

func TestRunClampsLegacyOverpayment(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, true)
	require.NoError(t, h.kv.Put(ctx, LegacySupermarkets, json.RawMessage(legacySupermarketsJSON)))
	require.NoError(t, h.kv.Put(ctx, LegacySales, json.RawMessage(`[
  {"id": "sale-over", "date": "2024-03-01", "supermarketId": "old-1", "quantity": 9, "cartons": 1,
   "pricePerUnit": 180, "totalValue": 1620, "isPaid": true, "remainingAmount": 0,
   "payments": [{"id": "p-a", "date": "2024-03-02", "amount": 1000}, {"id": "p-b", "date": "2024-03-03", "amount": 1000},
                {"id": "p-c", "date": "2024-03-04", "amount": 50}]}
]`)))

	summary := h.runner.Run(ctx)
	require.True(t, summary.Success, summary.Message)

	sales, err := h.remote.ListSales(ctx)
	require.NoError(t, err)
	sale := findSale(t, sales, "sale-over")
	require.Len(t, sale.Payments, 2)
	assert.True(t, sale.Payments[1].Amount.Equal(decimal.NewFromInt(620)))
	assert.True(t, sale.IsPaid)
	assert.True(t, sale.RemainingAmount.IsZero())
}
