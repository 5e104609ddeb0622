package business

import (
	"math"
	"time"

	"github.com/shopspring/decimal"

	"soapstock/backend/internal/domain"
)

// daysPerMonth is the average month length used to age unpaid sales.
const daysPerMonth = 30.44

// Transfer buckets describe how far back the oldest unpaid sale goes.
type TransferBucket string

const (
	BucketCurrentMonth TransferBucket = "current_month"
	BucketOneToTwo     TransferBucket = "1-2_months"
	BucketTwoToFour    TransferBucket = "2-4_months"
	BucketFourToSix    TransferBucket = "4-6_months"
	BucketSixPlus      TransferBucket = "6+_months"
)

// TransferPeriod is the age of the outstanding bank transfers.
type TransferPeriod struct {
	Period         TransferBucket `json:"period"`
	MonthsBack     int            `json:"monthsBack"`
	OldestDate     *time.Time     `json:"oldestDate,omitempty"`
	HasUnpaidSales bool           `json:"hasUnpaidSales"`
}

// OutstandingTransferPeriod buckets the age of the oldest unpaid sale
// relative to now.
func OutstandingTransferPeriod(sales []domain.Sale, now time.Time) TransferPeriod {
	var oldest *time.Time
	for _, sale := range sales {
		if sale.IsPaid {
			continue
		}
		if oldest == nil || sale.Date.Before(*oldest) {
			d := sale.Date
			oldest = &d
		}
	}
	if oldest == nil {
		return TransferPeriod{Period: BucketCurrentMonth}
	}

	months := now.Sub(*oldest).Hours() / 24 / daysPerMonth
	period := TransferPeriod{
		MonthsBack:     max(int(math.Ceil(months)), 0),
		OldestDate:     oldest,
		HasUnpaidSales: true,
	}
	switch {
	case months > 6:
		period.Period = BucketSixPlus
	case months > 4:
		period.Period = BucketFourToSix
	case months > 2:
		period.Period = BucketTwoToFour
	default:
		period.Period = BucketOneToTwo
	}
	return period
}

type PeriodFigures struct {
	Quantity        int             `json:"quantity"`
	Revenue         decimal.Decimal `json:"revenue"`
	Profit          decimal.Decimal `json:"profit"`
	PaidProfit      decimal.Decimal `json:"paidProfit"`
	SupplierPayment decimal.Decimal `json:"supplierPayment"`
}

// BenefitsForPeriod sums the sales dated within [start, end]. PaidProfit
// counts only sales settled within the same bounds.
func BenefitsForPeriod(sales []domain.Sale, start, end time.Time) PeriodFigures {
	within := func(t time.Time) bool { return !t.Before(start) && !t.After(end) }

	figures := PeriodFigures{
		Revenue:         decimal.Zero,
		Profit:          decimal.Zero,
		PaidProfit:      decimal.Zero,
		SupplierPayment: decimal.Zero,
	}
	for _, sale := range sales {
		if !within(sale.Date) {
			continue
		}
		figures.Quantity += sale.Quantity
		figures.Revenue = figures.Revenue.Add(sale.TotalValue)
		figures.Profit = figures.Profit.Add(saleBenefit(sale))
		figures.SupplierPayment = figures.SupplierPayment.Add(saleSupplierCost(sale))
		if sale.IsPaid && sale.PaymentDate != nil && within(*sale.PaymentDate) {
			figures.PaidProfit = figures.PaidProfit.Add(saleBenefit(sale))
		}
	}
	return figures
}

type SupplierReturn struct {
	TotalUnpaid          decimal.Decimal `json:"totalUnpaid"`
	TotalPaid            decimal.Decimal `json:"totalPaid"`
	CanReturnToSupplier  bool            `json:"canReturnToSupplier"`
	SupplierReturnAmount decimal.Decimal `json:"supplierReturnAmount"`
	UnpaidSalesCount     int             `json:"unpaidSalesCount"`
	PaidSalesCount       int             `json:"paidSalesCount"`
}

// SupplierReturnFor reports what can be paid back upstream. Money goes back
// only once every sale is settled.
func SupplierReturnFor(sales []domain.Sale) SupplierReturn {
	r := SupplierReturn{
		TotalUnpaid:          decimal.Zero,
		TotalPaid:            decimal.Zero,
		SupplierReturnAmount: decimal.Zero,
	}
	for _, sale := range sales {
		if sale.IsPaid {
			r.PaidSalesCount++
			r.TotalPaid = r.TotalPaid.Add(sale.TotalValue.Sub(sale.RemainingAmount))
			continue
		}
		r.UnpaidSalesCount++
		r.TotalUnpaid = r.TotalUnpaid.Add(sale.RemainingAmount)
	}
	r.CanReturnToSupplier = r.UnpaidSalesCount == 0
	if r.CanReturnToSupplier {
		r.SupplierReturnAmount = r.TotalPaid
	}
	return r
}

// Display windows picked by DashboardPeriodFor.
type DisplayWindow string

const (
	WindowCurrentMonth DisplayWindow = "current_month"
	WindowFourMonths   DisplayWindow = "4_months"
	WindowSixMonths    DisplayWindow = "6_months"
)

type DashboardPeriod struct {
	Display        PeriodFigures  `json:"display"`
	Window         DisplayWindow  `json:"window"`
	CurrentMonth   PeriodFigures  `json:"currentMonth"`
	LastFourMonths PeriodFigures  `json:"lastFourMonths"`
	LastSixMonths  PeriodFigures  `json:"lastSixMonths"`
	Transfers      TransferPeriod `json:"transfers"`
}

// DashboardPeriodFor picks the window the dashboard shows: the current month
// when everything is paid, otherwise four or six months depending on how far
// back the unpaid sales go. Windows start on the first of a month in now's
// location and end at now, except the current month which runs to its end.
func DashboardPeriodFor(sales []domain.Sale, now time.Time) DashboardPeriod {
	monthStart := func(offset int) time.Time {
		return time.Date(now.Year(), now.Month()+time.Month(offset), 1, 0, 0, 0, 0, now.Location())
	}

	d := DashboardPeriod{
		CurrentMonth:   BenefitsForPeriod(sales, monthStart(0), monthStart(1).Add(-time.Nanosecond)),
		LastFourMonths: BenefitsForPeriod(sales, monthStart(-3), now),
		LastSixMonths:  BenefitsForPeriod(sales, monthStart(-5), now),
		Transfers:      OutstandingTransferPeriod(sales, now),
	}
	switch {
	case !d.Transfers.HasUnpaidSales:
		d.Display, d.Window = d.CurrentMonth, WindowCurrentMonth
	case d.Transfers.MonthsBack > 4:
		d.Display, d.Window = d.LastSixMonths, WindowSixMonths
	default:
		d.Display, d.Window = d.LastFourMonths, WindowFourMonths
	}
	return d
}
