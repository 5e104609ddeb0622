package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Request ids are optional. A client that retries a write passes the same
// id so the retry is recognized as already applied.

type SaleCreateRequest struct {
	ID                    string         `json:"id"`
	Date                  *time.Time     `json:"date"`
	SupermarketID         string         `json:"supermarketId" validate:"required"`
	Quantity              int            `json:"quantity" validate:"gt=0"`
	Cartons               int            `json:"cartons" validate:"gte=0"`
	PricePerUnit          int            `json:"pricePerUnit" validate:"required"`
	IsPaid                bool           `json:"isPaid"`
	PaymentNote           string         `json:"paymentNote" validate:"max=500"`
	ExpectedPaymentDate   *time.Time     `json:"expectedPaymentDate"`
	FragranceDistribution map[string]int `json:"fragranceDistribution"`
	Note                  string         `json:"note" validate:"max=500"`
}

type SalePaidRequest struct {
	IsPaid bool       `json:"isPaid"`
	Date   *time.Time `json:"date"`
	Note   string     `json:"note" validate:"max=500"`
}

type PaymentRequest struct {
	ID     string          `json:"id"`
	Date   *time.Time      `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note" validate:"max=500"`
}

type OrderCreateRequest struct {
	ID            string     `json:"id"`
	Date          *time.Time `json:"date"`
	SupermarketID string     `json:"supermarketId" validate:"required"`
	Quantity      int        `json:"quantity" validate:"gt=0"`
	PricePerUnit  int        `json:"pricePerUnit" validate:"required"`
}

type StockUpdateRequest struct {
	ID              string         `json:"id"`
	Quantity        int            `json:"quantity" validate:"required"`
	Type            string         `json:"type" validate:"required,oneof=added removed adjusted"`
	Reason          string         `json:"reason" validate:"max=200"`
	FragranceDeltas map[string]int `json:"fragranceDeltas"`
}

type FragranceStockRequest struct {
	ID       string `json:"id"`
	Quantity int    `json:"quantity" validate:"gte=0"`
	Reason   string `json:"reason" validate:"max=200"`
}

type SupermarketCreateRequest struct {
	ID           string        `json:"id"`
	Name         string        `json:"name" validate:"required,max=120"`
	Address      string        `json:"address" validate:"required,max=300"`
	PhoneNumbers []PhoneNumber `json:"phoneNumbers" validate:"required,min=1"`
	Email        string        `json:"email" validate:"omitempty,email"`
	Latitude     *float64      `json:"latitude" validate:"omitempty,latitude"`
	Longitude    *float64      `json:"longitude" validate:"omitempty,longitude"`
}
