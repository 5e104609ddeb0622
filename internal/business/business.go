// Package business holds the pricing rules and sale aggregations. Every
// function is pure: callers pass the current snapshot of sales or stock.
package business

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"soapstock/backend/internal/domain"
)

const (
	PriceTierHigh = 180
	PriceTierLow  = 166

	ProfitHigh = 25
	ProfitLow  = 17

	SupplierCostHigh = 155
	SupplierCostLow  = 149

	UnitsPerCarton        = 9
	DefaultMaxStockPieces = 2700
)

// PriceTiers lists the accepted unit prices.
var PriceTiers = []int{PriceTierHigh, PriceTierLow}

// ProfitPerUnit returns the margin for a price tier. Unknown tiers yield 0.
func ProfitPerUnit(pricePerUnit int) int {
	switch pricePerUnit {
	case PriceTierHigh:
		return ProfitHigh
	case PriceTierLow:
		return ProfitLow
	default:
		return 0
	}
}

// SupplierCostPerUnit returns the amount owed upstream per unit. Unknown
// tiers yield 0.
func SupplierCostPerUnit(pricePerUnit int) int {
	switch pricePerUnit {
	case PriceTierHigh:
		return SupplierCostHigh
	case PriceTierLow:
		return SupplierCostLow
	default:
		return 0
	}
}

func IsValidPricePerUnit(pricePerUnit int) bool {
	return slices.Contains(PriceTiers, pricePerUnit)
}

func CartonsFromUnits(units int) int {
	return units / UnitsPerCarton
}

func UnitsFromCartons(cartons int) int {
	return cartons * UnitsPerCarton
}

// StockPercentage is min(current/max, 1) * 100. A non-positive max yields 0.
func StockPercentage(current, max int) float64 {
	if max <= 0 {
		return 0
	}
	return math.Min(float64(current)/float64(max), 1) * 100
}

type SaleCalculation struct {
	TotalValue   decimal.Decimal `json:"totalValue"`
	Benefit      decimal.Decimal `json:"benefit"`
	SupplierCost decimal.Decimal `json:"supplierCost"`
	MarginPct    float64         `json:"marginPct"`
}

func SaleTotals(quantity, pricePerUnit int) SaleCalculation {
	total := decimal.NewFromInt(int64(quantity * pricePerUnit))
	benefit := decimal.NewFromInt(int64(quantity * ProfitPerUnit(pricePerUnit)))
	calc := SaleCalculation{
		TotalValue:   total,
		Benefit:      benefit,
		SupplierCost: decimal.NewFromInt(int64(quantity * SupplierCostPerUnit(pricePerUnit))),
	}
	if total.IsPositive() {
		calc.MarginPct = benefit.Div(total).Mul(decimal.NewFromInt(100)).InexactFloat64()
	}
	return calc
}

func saleBenefit(s domain.Sale) decimal.Decimal {
	return decimal.NewFromInt(int64(s.Quantity * ProfitPerUnit(s.PricePerUnit)))
}

func saleSupplierCost(s domain.Sale) decimal.Decimal {
	return decimal.NewFromInt(int64(s.Quantity * SupplierCostPerUnit(s.PricePerUnit)))
}

// MonthKey groups records by calendar month. Labels are a presentation
// concern; String gives a sortable YYYY-MM form.
type MonthKey struct {
	Year  int        `json:"year"`
	Month time.Month `json:"month"`
}

func KeyOf(t time.Time) MonthKey {
	return MonthKey{Year: t.Year(), Month: t.Month()}
}

func (k MonthKey) String() string {
	return fmt.Sprintf("%04d-%02d", k.Year, int(k.Month))
}

func (k MonthKey) Compare(other MonthKey) int {
	if c := cmp.Compare(k.Year, other.Year); c != 0 {
		return c
	}
	return cmp.Compare(k.Month, other.Month)
}

type MonthlyData struct {
	Key          MonthKey        `json:"key"`
	Label        string          `json:"label"`
	Sales        int             `json:"sales"`
	Quantity     int             `json:"quantity"`
	Revenue      decimal.Decimal `json:"revenue"`
	NetBenefit   decimal.Decimal `json:"netBenefit"`
	SupplierCost decimal.Decimal `json:"supplierCost"`
}

func (m *MonthlyData) add(s domain.Sale) {
	m.Sales++
	m.Quantity += s.Quantity
	m.Revenue = m.Revenue.Add(s.TotalValue)
	m.NetBenefit = m.NetBenefit.Add(saleBenefit(s))
	m.SupplierCost = m.SupplierCost.Add(saleSupplierCost(s))
}

func groupByMonth(sales []domain.Sale, keyFn func(domain.Sale) (MonthKey, bool)) []MonthlyData {
	buckets := make(map[MonthKey]*MonthlyData)
	for _, sale := range sales {
		key, ok := keyFn(sale)
		if !ok {
			continue
		}
		bucket, exists := buckets[key]
		if !exists {
			bucket = &MonthlyData{
				Key:          key,
				Label:        key.String(),
				Revenue:      decimal.Zero,
				NetBenefit:   decimal.Zero,
				SupplierCost: decimal.Zero,
			}
			buckets[key] = bucket
		}
		bucket.add(sale)
	}

	out := make([]MonthlyData, 0, len(buckets))
	for _, bucket := range buckets {
		out = append(out, *bucket)
	}
	slices.SortFunc(out, func(a, b MonthlyData) int { return a.Key.Compare(b.Key) })
	return out
}

// MonthlyBreakdown groups every sale by the month of its sale date.
func MonthlyBreakdown(sales []domain.Sale) []MonthlyData {
	return groupByMonth(sales, func(s domain.Sale) (MonthKey, bool) {
		return KeyOf(s.Date), true
	})
}

// MonthlyPaidBenefit groups paid sales by the month they were settled in,
// using the sale date when no payment date was recorded.
func MonthlyPaidBenefit(sales []domain.Sale) []MonthlyData {
	return groupByMonth(sales, func(s domain.Sale) (MonthKey, bool) {
		if !s.IsPaid {
			return MonthKey{}, false
		}
		return KeyOf(paidAt(s)), true
	})
}

func paidAt(s domain.Sale) time.Time {
	if s.PaymentDate != nil {
		return *s.PaymentDate
	}
	return s.Date
}

type MonthSummary struct {
	Key             MonthKey        `json:"key"`
	Quantity        int             `json:"quantity"`
	Revenue         decimal.Decimal `json:"revenue"`
	Profit          decimal.Decimal `json:"profit"`
	PaidProfit      decimal.Decimal `json:"paidProfit"`
	SupplierPayment decimal.Decimal `json:"supplierPayment"`
	StockUnits      int             `json:"stockUnits"`
	StockPercentage float64         `json:"stockPercentage"`
}

// SummarizeMonth reports one month: sale-date figures plus the profit of
// sales settled during that month. currentStock is in cartons.
func SummarizeMonth(sales []domain.Sale, key MonthKey, currentStock, maxStockPieces int) MonthSummary {
	summary := MonthSummary{
		Key:             key,
		Revenue:         decimal.Zero,
		Profit:          decimal.Zero,
		PaidProfit:      decimal.Zero,
		SupplierPayment: decimal.Zero,
		StockUnits:      UnitsFromCartons(currentStock),
	}
	summary.StockPercentage = StockPercentage(summary.StockUnits, maxStockPieces)

	for _, sale := range sales {
		if KeyOf(sale.Date) == key {
			summary.Quantity += sale.Quantity
			summary.Revenue = summary.Revenue.Add(sale.TotalValue)
			summary.Profit = summary.Profit.Add(saleBenefit(sale))
			summary.SupplierPayment = summary.SupplierPayment.Add(saleSupplierCost(sale))
		}
		if sale.IsPaid && KeyOf(paidAt(sale)) == key {
			summary.PaidProfit = summary.PaidProfit.Add(saleBenefit(sale))
		}
	}
	return summary
}

func TotalProfit(sales []domain.Sale, onlyPaid bool) decimal.Decimal {
	total := decimal.Zero
	for _, sale := range sales {
		if onlyPaid && !sale.IsPaid {
			continue
		}
		total = total.Add(saleBenefit(sale))
	}
	return total
}

func TotalSupplierPayment(sales []domain.Sale) decimal.Decimal {
	total := decimal.Zero
	for _, sale := range sales {
		total = total.Add(saleSupplierCost(sale))
	}
	return total
}

type Totals struct {
	Sales       int             `json:"sales"`
	Quantity    int             `json:"quantity"`
	Revenue     decimal.Decimal `json:"revenue"`
	Collected   decimal.Decimal `json:"collected"`
	Outstanding decimal.Decimal `json:"outstanding"`
	Unpaid      int             `json:"unpaid"`
}

func SumSales(sales []domain.Sale) Totals {
	t := Totals{Revenue: decimal.Zero, Collected: decimal.Zero, Outstanding: decimal.Zero}
	for _, sale := range sales {
		t.Sales++
		t.Quantity += sale.Quantity
		t.Revenue = t.Revenue.Add(sale.TotalValue)
		t.Collected = t.Collected.Add(sale.PaidAmount())
		t.Outstanding = t.Outstanding.Add(sale.RemainingAmount)
		if !sale.IsPaid {
			t.Unpaid++
		}
	}
	return t
}
