package migration

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"soapstock/backend/internal/domain"
)

// Legacy records keep their dates as free-form strings; a missing or
// malformed date falls back instead of failing the whole collection.

type legacyLocation struct {
	Lat              float64 `json:"lat"`
	Lng              float64 `json:"lng"`
	FormattedAddress string  `json:"formattedAddress"`
}

type legacySupermarket struct {
	ID           string               `json:"id"`
	Name         string               `json:"name"`
	Address      string               `json:"address"`
	PhoneNumbers []domain.PhoneNumber `json:"phoneNumbers"`
	Phone        string               `json:"phone"`
	Email        string               `json:"email"`
	Location     *legacyLocation      `json:"location"`
}

func (l legacySupermarket) toDomain(id string) domain.Supermarket {
	s := domain.Supermarket{
		ID:           id,
		LegacyID:     l.ID,
		Name:         strings.TrimSpace(l.Name),
		Address:      strings.TrimSpace(l.Address),
		PhoneNumbers: append([]domain.PhoneNumber(nil), l.PhoneNumbers...),
		Email:        l.Email,
		TotalValue:   decimal.Zero,
	}
	if len(s.PhoneNumbers) == 0 && strings.TrimSpace(l.Phone) != "" {
		s.PhoneNumbers = []domain.PhoneNumber{{Name: "Principal", Number: strings.TrimSpace(l.Phone)}}
	}
	if l.Location != nil {
		s.Latitude = l.Location.Lat
		s.Longitude = l.Location.Lng
	}
	return s
}

type legacyPayment struct {
	ID     string          `json:"id"`
	Date   string          `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note"`
}

func (l legacyPayment) toDomain(saleID string, index int, saleDate time.Time) (domain.Payment, bool) {
	if !l.Amount.IsPositive() {
		return domain.Payment{}, false
	}
	id := l.ID
	if id == "" {
		id = fmt.Sprintf("%s-p%d", saleID, index+1)
	}
	date, ok := parseTime(l.Date)
	if !ok {
		date = saleDate
	}
	return domain.Payment{ID: id, Date: date, Amount: l.Amount, Note: l.Note}, true
}

type legacySale struct {
	ID                    string          `json:"id"`
	Date                  string          `json:"date"`
	SupermarketID         string          `json:"supermarketId"`
	Quantity              int             `json:"quantity"`
	Cartons               int             `json:"cartons"`
	PricePerUnit          int             `json:"pricePerUnit"`
	TotalValue            decimal.Decimal `json:"totalValue"`
	IsPaid                bool            `json:"isPaid"`
	PaymentDate           string          `json:"paymentDate"`
	PaymentNote           string          `json:"paymentNote"`
	ExpectedPaymentDate   string          `json:"expectedPaymentDate"`
	Payments              []legacyPayment `json:"payments"`
	FragranceDistribution map[string]int  `json:"fragranceDistribution"`
	FromOrder             bool            `json:"fromOrder"`
	Note                  string          `json:"note"`
}

// toDomain builds the sale without payments; they are appended separately.
func (l legacySale) toDomain(supermarketID string) domain.Sale {
	date, _ := parseTime(l.Date)
	total := l.TotalValue
	if total.IsZero() {
		total = decimal.NewFromInt(int64(l.Quantity * l.PricePerUnit))
	}
	s := domain.Sale{
		ID:                    l.ID,
		Date:                  date,
		SupermarketID:         supermarketID,
		Quantity:              l.Quantity,
		Cartons:               l.Cartons,
		PricePerUnit:          l.PricePerUnit,
		TotalValue:            total,
		PaymentNote:           l.PaymentNote,
		FragranceDistribution: l.FragranceDistribution,
		FromOrder:             l.FromOrder,
		Note:                  l.Note,
	}
	if t, ok := parseTime(l.ExpectedPaymentDate); ok {
		s.ExpectedPaymentDate = &t
	}
	s.Recalculate()
	return s
}

type legacyOrder struct {
	ID            string `json:"id"`
	Date          string `json:"date"`
	SupermarketID string `json:"supermarketId"`
	Quantity      int    `json:"quantity"`
	PricePerUnit  int    `json:"pricePerUnit"`
	Status        string `json:"status"`
}

func (l legacyOrder) toDomain(supermarket domain.Supermarket) domain.Order {
	date, _ := parseTime(l.Date)
	status := l.Status
	if status == "" {
		status = domain.OrderPending
	}
	return domain.Order{
		ID:              l.ID,
		Date:            date,
		SupermarketID:   supermarket.ID,
		SupermarketName: supermarket.Name,
		Quantity:        l.Quantity,
		PricePerUnit:    l.PricePerUnit,
		Status:          status,
	}
}

type legacyStockEntry struct {
	ID                    string         `json:"id"`
	Date                  string         `json:"date"`
	Quantity              int            `json:"quantity"`
	Type                  string         `json:"type"`
	Reason                string         `json:"reason"`
	CurrentStock          int            `json:"currentStock"`
	FragranceDistribution map[string]int `json:"fragranceDistribution"`
}

func (l legacyStockEntry) toDomain(fallback time.Time) domain.StockHistoryEntry {
	date, ok := parseTime(l.Date)
	if !ok {
		date = fallback
	}
	return domain.StockHistoryEntry{
		ID:                    l.ID,
		Date:                  date,
		Quantity:              l.Quantity,
		Type:                  l.Type,
		Reason:                l.Reason,
		CurrentStock:          l.CurrentStock,
		FragranceDistribution: l.FragranceDistribution,
	}
}

var dateLayouts = []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"}

func parseTime(value string) (time.Time, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}
