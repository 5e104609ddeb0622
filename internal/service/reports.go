package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"soapstock/backend/internal/business"
	"soapstock/backend/internal/domain"
)

type MonthlyReport struct {
	Months      []business.MonthlyData `json:"months"`
	PaidBenefit []business.MonthlyData `json:"paidBenefit"`
}

type Summary struct {
	business.Totals
	Profit          decimal.Decimal       `json:"profit"`
	PaidProfit      decimal.Decimal       `json:"paidProfit"`
	SupplierPayment decimal.Decimal       `json:"supplierPayment"`
	CurrentStock    int                   `json:"currentStock"`
	StockPercentage float64               `json:"stockPercentage"`
	Month           business.MonthSummary `json:"month"`
}

func (s *Service) MonthlyReport(ctx context.Context) (MonthlyReport, error) {
	sales, err := s.storage.ListSales(ctx)
	if err != nil {
		return MonthlyReport{}, err
	}
	return MonthlyReport{
		Months:      business.MonthlyBreakdown(sales),
		PaidBenefit: business.MonthlyPaidBenefit(sales),
	}, nil
}

// Summary reports the all-time totals plus one month, the current month when
// month is nil.
func (s *Service) Summary(ctx context.Context, month *business.MonthKey) (Summary, error) {
	sales, err := s.storage.ListSales(ctx)
	if err != nil {
		return Summary{}, err
	}
	levels, err := s.storage.ListFragranceStock(ctx)
	if err != nil {
		return Summary{}, err
	}

	key := business.KeyOf(s.today())
	if month != nil {
		key = *month
	}
	stock := business.TotalStock(levels)
	return Summary{
		Totals:          business.SumSales(sales),
		Profit:          business.TotalProfit(sales, false),
		PaidProfit:      business.TotalProfit(sales, true),
		SupplierPayment: business.TotalSupplierPayment(sales),
		CurrentStock:    stock,
		StockPercentage: business.StockPercentage(business.UnitsFromCartons(stock), s.maxStockPieces),
		Month:           business.SummarizeMonth(sales, key, stock, s.maxStockPieces),
	}, nil
}

type PeriodReport struct {
	Dashboard      business.DashboardPeriod `json:"dashboard"`
	SupplierReturn business.SupplierReturn  `json:"supplierReturn"`
	// Range is set when the caller asks for explicit bounds.
	Range *business.PeriodFigures `json:"range,omitempty"`
}

// PeriodReport reports the dashboard window chosen from the age of unpaid
// sales, the supplier return position and, when both bounds are given, the
// figures for [from, to].
func (s *Service) PeriodReport(ctx context.Context, from, to *time.Time) (PeriodReport, error) {
	if (from == nil) != (to == nil) {
		return PeriodReport{}, domain.Invalid("range", "from and to must be given together")
	}
	if from != nil && to.Before(*from) {
		return PeriodReport{}, domain.Invalid("to", "must not be before from")
	}
	sales, err := s.storage.ListSales(ctx)
	if err != nil {
		return PeriodReport{}, err
	}

	report := PeriodReport{
		Dashboard:      business.DashboardPeriodFor(sales, s.today()),
		SupplierReturn: business.SupplierReturnFor(sales),
	}
	if from != nil {
		figures := business.BenefitsForPeriod(sales, *from, *to)
		report.Range = &figures
	}
	return report, nil
}
