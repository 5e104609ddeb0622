package domain

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Entity names a synchronized collection. The value doubles as the remote
// table name carried by pending operations.
type Entity string

const (
	EntitySales          Entity = "sales"
	EntitySupermarkets   Entity = "supermarkets"
	EntityOrders         Entity = "orders"
	EntityStockHistory   Entity = "stock_history"
	EntityFragranceStock Entity = "fragrance_stock"
	EntityPayments       Entity = "payments"
)

// Entities lists the five synchronized collections in dependency order.
var Entities = []Entity{
	EntitySupermarkets,
	EntitySales,
	EntityOrders,
	EntityStockHistory,
	EntityFragranceStock,
}

const (
	OrderPending   = "pending"
	OrderDelivered = "delivered"
	OrderCancelled = "cancelled"
)

const (
	StockAdded    = "added"
	StockRemoved  = "removed"
	StockAdjusted = "adjusted"
)

var (
	// ErrInvalid is the sentinel wrapped by every ValidationError.
	ErrInvalid           = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
)

type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Reason
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Reason)
}

func (e *ValidationError) Unwrap() error { return ErrInvalid }

func Invalid(field, reason string) error {
	return &ValidationError{Field: field, Reason: reason}
}

type Payment struct {
	ID     string          `json:"id"`
	Date   time.Time       `json:"date"`
	Amount decimal.Decimal `json:"amount"`
	Note   string          `json:"note,omitempty"`
}

type Sale struct {
	ID                    string          `json:"id"`
	Date                  time.Time       `json:"date"`
	SupermarketID         string          `json:"supermarketId"`
	Quantity              int             `json:"quantity"`
	Cartons               int             `json:"cartons"`
	PricePerUnit          int             `json:"pricePerUnit"`
	TotalValue            decimal.Decimal `json:"totalValue"`
	IsPaid                bool            `json:"isPaid"`
	PaymentDate           *time.Time      `json:"paymentDate,omitempty"`
	PaymentNote           string          `json:"paymentNote,omitempty"`
	ExpectedPaymentDate   *time.Time      `json:"expectedPaymentDate,omitempty"`
	RemainingAmount       decimal.Decimal `json:"remainingAmount"`
	Payments              []Payment       `json:"payments"`
	FragranceDistribution map[string]int  `json:"fragranceDistribution,omitempty"`
	FromOrder             bool            `json:"fromOrder,omitempty"`
	Note                  string          `json:"note,omitempty"`
}

// PaidAmount is the sum of all recorded payments.
func (s Sale) PaidAmount() decimal.Decimal {
	total := decimal.Zero
	for _, p := range s.Payments {
		total = total.Add(p.Amount)
	}
	return total
}

// Recalculate derives RemainingAmount and IsPaid from TotalValue and the
// payment list. The first time the sale becomes paid, PaymentDate is set to
// the date of the payment that settled it.
func (s *Sale) Recalculate() {
	remaining := s.TotalValue.Sub(s.PaidAmount())
	if remaining.IsNegative() {
		remaining = decimal.Zero
	}
	s.RemainingAmount = remaining
	wasPaid := s.IsPaid
	s.IsPaid = remaining.LessThanOrEqual(decimal.Zero)
	if !s.IsPaid {
		s.PaymentDate = nil
		return
	}
	if !wasPaid || s.PaymentDate == nil {
		settledAt := s.Date
		if n := len(s.Payments); n > 0 {
			settledAt = s.Payments[n-1].Date
		}
		s.PaymentDate = &settledAt
	}
}

// AppendPayment adds a payment and recomputes the derived amounts. A payment
// id already on the sale is a no-op; an amount above the outstanding balance
// is rejected so RemainingAmount stays TotalValue minus the payments.
func (s *Sale) AppendPayment(p Payment) error {
	if !p.Amount.IsPositive() {
		return Invalid("amount", "must be positive")
	}
	for _, existing := range s.Payments {
		if existing.ID == p.ID {
			return nil
		}
	}
	if p.Amount.GreaterThan(s.TotalValue.Sub(s.PaidAmount())) {
		return Invalid("amount", "exceeds remaining amount")
	}
	s.Payments = append(s.Payments, p)
	s.Recalculate()
	return nil
}

type PhoneNumber struct {
	Name   string `json:"name"`
	Number string `json:"number"`
}

type Supermarket struct {
	ID           string          `json:"id"`
	LegacyID     string          `json:"legacyId,omitempty"`
	Name         string          `json:"name"`
	Address      string          `json:"address"`
	PhoneNumbers []PhoneNumber   `json:"phoneNumbers"`
	Email        string          `json:"email,omitempty"`
	Latitude     float64         `json:"latitude"`
	Longitude    float64         `json:"longitude"`
	TotalSales   int             `json:"totalSales"`
	TotalValue   decimal.Decimal `json:"totalValue"`
}

// SupermarketPatch carries the editable supermarket fields. Nil means unchanged.
type SupermarketPatch struct {
	Name         *string       `json:"name,omitempty"`
	Address      *string       `json:"address,omitempty"`
	PhoneNumbers []PhoneNumber `json:"phoneNumbers,omitempty"`
	Email        *string       `json:"email,omitempty"`
	Latitude     *float64      `json:"latitude,omitempty"`
	Longitude    *float64      `json:"longitude,omitempty"`
}

// Apply copies the non-nil patch fields onto s.
func (p SupermarketPatch) Apply(s *Supermarket) {
	if p.Name != nil {
		s.Name = *p.Name
	}
	if p.Address != nil {
		s.Address = *p.Address
	}
	if p.PhoneNumbers != nil {
		s.PhoneNumbers = append([]PhoneNumber(nil), p.PhoneNumbers...)
	}
	if p.Email != nil {
		s.Email = *p.Email
	}
	if p.Latitude != nil {
		s.Latitude = *p.Latitude
	}
	if p.Longitude != nil {
		s.Longitude = *p.Longitude
	}
}

type Order struct {
	ID              string    `json:"id"`
	Date            time.Time `json:"date"`
	SupermarketID   string    `json:"supermarketId"`
	SupermarketName string    `json:"supermarketName"`
	Quantity        int       `json:"quantity"`
	PricePerUnit    int       `json:"pricePerUnit"`
	Status          string    `json:"status"`
}

type StockHistoryEntry struct {
	ID                    string         `json:"id"`
	Date                  time.Time      `json:"date"`
	Quantity              int            `json:"quantity"`
	Type                  string         `json:"type"`
	Reason                string         `json:"reason"`
	CurrentStock          int            `json:"currentStock"`
	FragranceDistribution map[string]int `json:"fragranceDistribution,omitempty"`
}

type FragranceStock struct {
	FragranceID string `json:"fragranceId"`
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	Color       string `json:"color"`
}

// StockMovement is one stock mutation: per-fragrance signed deltas plus the
// history entry describing them. Stores apply it atomically.
type StockMovement struct {
	EntryID  string         `json:"entryId"`
	Date     time.Time      `json:"date"`
	Quantity int            `json:"quantity"`
	Type     string         `json:"type"`
	Reason   string         `json:"reason"`
	Deltas   map[string]int `json:"deltas"`
}

// Entry builds the history entry recorded for the movement once the
// resulting total is known.
func (m StockMovement) Entry(currentStock int) StockHistoryEntry {
	var dist map[string]int
	if len(m.Deltas) > 0 {
		dist = make(map[string]int, len(m.Deltas))
		for id, qty := range m.Deltas {
			dist[id] = qty
		}
	}
	return StockHistoryEntry{
		ID:                    m.EntryID,
		Date:                  m.Date,
		Quantity:              m.Quantity,
		Type:                  m.Type,
		Reason:                m.Reason,
		CurrentStock:          currentStock,
		FragranceDistribution: dist,
	}
}

// DefaultFragrances are the eight fragrances with stable identity.
var DefaultFragrances = []FragranceStock{
	{FragranceID: "1", Name: "Lavande", Color: "#9F7AEA"},
	{FragranceID: "2", Name: "Rose", Color: "#F687B3"},
	{FragranceID: "3", Name: "Citron", Color: "#F6E05E"},
	{FragranceID: "4", Name: "Fraîcheur Marine", Color: "#63B3ED"},
	{FragranceID: "5", Name: "Vanille", Color: "#F6AD55"},
	{FragranceID: "6", Name: "Grenade", Color: "#E53E3E"},
	{FragranceID: "7", Name: "Jasmin", Color: "#10B981"},
	{FragranceID: "8", Name: "Amande", Color: "#8B5CF6"},
}

func DefaultFragranceStock() []FragranceStock {
	out := make([]FragranceStock, len(DefaultFragrances))
	copy(out, DefaultFragrances)
	return out
}

type OpType string

const (
	OpCreate OpType = "create"
	OpUpdate OpType = "update"
	OpDelete OpType = "delete"
)

// PendingOperation is a mutation applied locally and awaiting replay against
// the remote store.
type PendingOperation struct {
	ID        string          `json:"id"`
	Type      OpType          `json:"type"`
	Table     Entity          `json:"table"`
	RecordID  string          `json:"recordId"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp time.Time       `json:"timestamp"`
	Attempts  int             `json:"attempts"`
	Failed    bool            `json:"failed"`
	LastError string          `json:"lastError,omitempty"`
}

type SyncStatus struct {
	LastSync *time.Time `json:"lastSync"`
	IsOnline bool       `json:"isOnline"`
	Pending  int        `json:"pending"`
	Failed   int        `json:"failed"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"accessToken"`
	Role        string `json:"role"`
	ExpiresAt   string `json:"expiresAt"`
}

type Actor struct {
	Username string
	Role     string
}

// BackupVersion is written into every export.
const BackupVersion = "1.0.0"

// Backup is a JSON export of the local collections.
type Backup struct {
	Version   string      `json:"version"`
	Timestamp time.Time   `json:"timestamp"`
	Data      *BackupData `json:"data"`
}

type BackupData struct {
	Sales          []Sale              `json:"sales"`
	Supermarkets   []Supermarket       `json:"supermarkets"`
	Orders         []Order             `json:"orders"`
	StockHistory   []StockHistoryEntry `json:"stockHistory"`
	FragranceStock []FragranceStock    `json:"fragranceStock,omitempty"`
}

// Validate checks the envelope of an uploaded backup.
func (b Backup) Validate() error {
	switch {
	case b.Version == "":
		return Invalid("version", "is required")
	case b.Timestamp.IsZero():
		return Invalid("timestamp", "is required")
	case b.Data == nil:
		return Invalid("data", "is required")
	}
	return nil
}
