// Package postgres is the remote store backed by PostgreSQL.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"soapstock/backend/internal/business"
	"soapstock/backend/internal/domain"
	"soapstock/backend/internal/store"
)

type Store struct {
	db *sql.DB
}

var _ store.RemoteStore = (*Store)(nil)

// Pool tunes the connection pool. Zero values keep the defaults.
type Pool struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func New(ctx context.Context, databaseURL string, pool Pool) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(orDefault(pool.MaxIdleConns, 8))
	db.SetMaxOpenConns(orDefault(pool.MaxOpenConns, 30))
	lifetime := pool.ConnMaxLifetime
	if lifetime <= 0 {
		lifetime = 30 * time.Minute
	}
	db.SetConnMaxLifetime(lifetime)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) DB() *sql.DB {
	return s.db
}

type rowScanner interface {
	Scan(dest ...any) error
}

const saleColumns = `
	id, date, supermarket_id, quantity, cartons, price_per_unit, total_value,
	is_paid, payment_date, payment_note, expected_payment_date, remaining_amount,
	fragrance_distribution, from_order, note`

func scanSale(row rowScanner) (domain.Sale, error) {
	var (
		sale         domain.Sale
		paymentDate  sql.NullTime
		paymentNote  sql.NullString
		expectedDate sql.NullTime
		distribution []byte
		note         sql.NullString
	)
	err := row.Scan(
		&sale.ID, &sale.Date, &sale.SupermarketID, &sale.Quantity, &sale.Cartons, &sale.PricePerUnit, &sale.TotalValue,
		&sale.IsPaid, &paymentDate, &paymentNote, &expectedDate, &sale.RemainingAmount,
		&distribution, &sale.FromOrder, &note,
	)
	if err != nil {
		return domain.Sale{}, err
	}
	sale.Date = sale.Date.UTC()
	sale.PaymentDate = timePtr(paymentDate)
	sale.ExpectedPaymentDate = timePtr(expectedDate)
	sale.PaymentNote = paymentNote.String
	sale.Note = note.String
	if len(distribution) > 0 {
		if err := json.Unmarshal(distribution, &sale.FragranceDistribution); err != nil {
			return domain.Sale{}, fmt.Errorf("decode distribution of sale %s: %w", sale.ID, err)
		}
	}
	sale.Payments = []domain.Payment{}
	return sale, nil
}

func (s *Store) ListSales(ctx context.Context) ([]domain.Sale, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+saleColumns+` FROM sales ORDER BY date DESC, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	sales := make([]domain.Sale, 0, 128)
	index := make(map[string]int)
	for rows.Next() {
		sale, err := scanSale(rows)
		if err != nil {
			return nil, err
		}
		index[sale.ID] = len(sales)
		sales = append(sales, sale)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	paymentRows, err := s.db.QueryContext(ctx, `
		SELECT id, sale_id, date, amount, note
		FROM payments
		ORDER BY date, id
	`)
	if err != nil {
		return nil, err
	}
	defer paymentRows.Close()
	for paymentRows.Next() {
		var (
			p      domain.Payment
			saleID string
			note   sql.NullString
		)
		if err := paymentRows.Scan(&p.ID, &saleID, &p.Date, &p.Amount, &note); err != nil {
			return nil, err
		}
		p.Date = p.Date.UTC()
		p.Note = note.String
		if i, ok := index[saleID]; ok {
			sales[i].Payments = append(sales[i].Payments, p)
		}
	}
	if err := paymentRows.Err(); err != nil {
		return nil, err
	}
	return sales, nil
}

func (s *Store) getSale(ctx context.Context, q querier, id string, lock bool) (*domain.Sale, error) {
	query := `SELECT ` + saleColumns + ` FROM sales WHERE id = $1`
	if lock {
		query += ` FOR UPDATE`
	}
	sale, err := scanSale(q.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}

	rows, err := q.QueryContext(ctx, `
		SELECT id, date, amount, note
		FROM payments
		WHERE sale_id = $1
		ORDER BY date, id
	`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			p    domain.Payment
			note sql.NullString
		)
		if err := rows.Scan(&p.ID, &p.Date, &p.Amount, &note); err != nil {
			return nil, err
		}
		p.Date = p.Date.UTC()
		p.Note = note.String
		sale.Payments = append(sale.Payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return &sale, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *Store) CreateSale(ctx context.Context, sale domain.Sale) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	sale = store.CloneSale(sale)
	sale.Recalculate()
	distribution, err := nullJSON(sale.FragranceDistribution)
	if err != nil {
		return nil, err
	}

	res, err := pgTx.ExecContext(ctx, `
		INSERT INTO sales (
			id, date, supermarket_id, quantity, cartons, price_per_unit, total_value,
			is_paid, payment_date, payment_note, expected_payment_date, remaining_amount,
			fragrance_distribution, from_order, note, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,now())
		ON CONFLICT (id) DO NOTHING
	`, sale.ID, sale.Date, sale.SupermarketID, sale.Quantity, sale.Cartons, sale.PricePerUnit, sale.TotalValue,
		sale.IsPaid, nullTime(sale.PaymentDate), nullIfEmpty(sale.PaymentNote), nullTime(sale.ExpectedPaymentDate),
		sale.RemainingAmount, distribution, sale.FromOrder, nullIfEmpty(sale.Note))
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: supermarket %s", store.ErrNotFound, sale.SupermarketID)
		}
		return nil, err
	}
	inserted, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if inserted == 0 {
		return s.getSale(ctx, pgTx, sale.ID, false)
	}

	for _, p := range sale.Payments {
		if err := insertPayment(ctx, pgTx, sale.ID, p); err != nil {
			return nil, err
		}
	}
	if err := refreshSupermarketTotals(ctx, pgTx, sale.SupermarketID); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &sale, nil
}

func insertPayment(ctx context.Context, q querier, saleID string, p domain.Payment) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO payments (id, sale_id, date, amount, note)
		VALUES ($1,$2,$3,$4,$5)
		ON CONFLICT (id) DO NOTHING
	`, p.ID, saleID, p.Date, p.Amount, nullIfEmpty(p.Note))
	return err
}

func refreshSupermarketTotals(ctx context.Context, q querier, supermarketID string) error {
	_, err := q.ExecContext(ctx, `
		UPDATE supermarkets m
		SET total_sales = t.qty, total_value = t.value
		FROM (
			SELECT COALESCE(SUM(quantity), 0) AS qty, COALESCE(SUM(total_value), 0) AS value
			FROM sales
			WHERE supermarket_id = $1
		) t
		WHERE m.id = $1
	`, supermarketID)
	return err
}

func (s *Store) DeleteSale(ctx context.Context, id string) error {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = pgTx.Rollback() }()

	var supermarketID string
	err = pgTx.QueryRowContext(ctx, `DELETE FROM sales WHERE id = $1 RETURNING supermarket_id`, id).Scan(&supermarketID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return store.ErrNotFound
		}
		return err
	}
	if err := refreshSupermarketTotals(ctx, pgTx, supermarketID); err != nil {
		return err
	}
	return pgTx.Commit()
}

func (s *Store) AddPayment(ctx context.Context, saleID string, payment domain.Payment) (*domain.Sale, error) {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	sale, err := s.getSale(ctx, pgTx, saleID, true)
	if err != nil {
		return nil, err
	}

	var exists bool
	if err := pgTx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM payments WHERE id = $1)`, payment.ID).Scan(&exists); err != nil {
		return nil, err
	}
	if exists {
		return sale, nil
	}

	if err := sale.AppendPayment(payment); err != nil {
		return nil, err
	}
	if err := insertPayment(ctx, pgTx, sale.ID, payment); err != nil {
		return nil, err
	}
	if _, err := pgTx.ExecContext(ctx, `
		UPDATE sales
		SET is_paid = $2, payment_date = $3, remaining_amount = $4
		WHERE id = $1
	`, sale.ID, sale.IsPaid, nullTime(sale.PaymentDate), sale.RemainingAmount); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return sale, nil
}

const supermarketColumns = `
	id, legacy_id, name, address, phone_numbers, email, latitude, longitude, total_sales, total_value`

func scanSupermarket(row rowScanner) (domain.Supermarket, error) {
	var (
		m        domain.Supermarket
		legacyID sql.NullString
		phones   []byte
		email    sql.NullString
	)
	if err := row.Scan(&m.ID, &legacyID, &m.Name, &m.Address, &phones, &email, &m.Latitude, &m.Longitude, &m.TotalSales, &m.TotalValue); err != nil {
		return domain.Supermarket{}, err
	}
	m.LegacyID = legacyID.String
	m.Email = email.String
	m.PhoneNumbers = []domain.PhoneNumber{}
	if len(phones) > 0 {
		if err := json.Unmarshal(phones, &m.PhoneNumbers); err != nil {
			return domain.Supermarket{}, fmt.Errorf("decode phone numbers of supermarket %s: %w", m.ID, err)
		}
	}
	return m, nil
}

func (s *Store) ListSupermarkets(ctx context.Context) ([]domain.Supermarket, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+supermarketColumns+` FROM supermarkets ORDER BY name, id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	supermarkets := make([]domain.Supermarket, 0, 64)
	for rows.Next() {
		m, err := scanSupermarket(rows)
		if err != nil {
			return nil, err
		}
		supermarkets = append(supermarkets, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return supermarkets, nil
}

func (s *Store) getSupermarket(ctx context.Context, q querier, id string) (*domain.Supermarket, error) {
	m, err := scanSupermarket(q.QueryRowContext(ctx, `SELECT `+supermarketColumns+` FROM supermarkets WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	return &m, nil
}

func (s *Store) CreateSupermarket(ctx context.Context, supermarket domain.Supermarket) (*domain.Supermarket, error) {
	phones, err := phoneJSON(supermarket.PhoneNumbers)
	if err != nil {
		return nil, err
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO supermarkets (
			id, legacy_id, name, address, phone_numbers, email, latitude, longitude,
			total_sales, total_value, created_at
		)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,0,0,now())
		ON CONFLICT (id) DO NOTHING
	`, supermarket.ID, nullIfEmpty(supermarket.LegacyID), supermarket.Name, supermarket.Address, phones,
		nullIfEmpty(supermarket.Email), supermarket.Latitude, supermarket.Longitude)
	if err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: legacy supermarket %s already migrated", store.ErrConflict, supermarket.LegacyID)
		}
		return nil, err
	}
	return s.getSupermarket(ctx, s.db, supermarket.ID)
}

func (s *Store) UpdateSupermarket(ctx context.Context, id string, patch domain.SupermarketPatch) (*domain.Supermarket, error) {
	pgTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	m, err := s.getSupermarket(ctx, pgTx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(m)
	phones, err := phoneJSON(m.PhoneNumbers)
	if err != nil {
		return nil, err
	}
	if _, err := pgTx.ExecContext(ctx, `
		UPDATE supermarkets
		SET name = $2, address = $3, phone_numbers = $4, email = $5, latitude = $6, longitude = $7
		WHERE id = $1
	`, id, m.Name, m.Address, phones, nullIfEmpty(m.Email), m.Latitude, m.Longitude); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return m, nil
}

func (s *Store) DeleteSupermarket(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM supermarkets WHERE id = $1`, id)
	if err != nil {
		if isForeignKeyViolation(err) {
			return fmt.Errorf("%w: supermarket %s is referenced by sales or orders", store.ErrConflict, id)
		}
		return err
	}
	return expectAffected(res)
}

func (s *Store) ListOrders(ctx context.Context) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT o.id, o.date, o.supermarket_id, COALESCE(m.name, ''), o.quantity, o.price_per_unit, o.status
		FROM orders o
		LEFT JOIN supermarkets m ON m.id = o.supermarket_id
		ORDER BY o.date DESC, o.id
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orders := make([]domain.Order, 0, 64)
	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(&o.ID, &o.Date, &o.SupermarketID, &o.SupermarketName, &o.Quantity, &o.PricePerUnit, &o.Status); err != nil {
			return nil, err
		}
		o.Date = o.Date.UTC()
		if o.SupermarketName == "" {
			o.SupermarketName = store.UnknownSupermarket
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return orders, nil
}

func (s *Store) getOrder(ctx context.Context, id string) (*domain.Order, error) {
	var o domain.Order
	err := s.db.QueryRowContext(ctx, `
		SELECT o.id, o.date, o.supermarket_id, COALESCE(m.name, ''), o.quantity, o.price_per_unit, o.status
		FROM orders o
		LEFT JOIN supermarkets m ON m.id = o.supermarket_id
		WHERE o.id = $1
	`, id).Scan(&o.ID, &o.Date, &o.SupermarketID, &o.SupermarketName, &o.Quantity, &o.PricePerUnit, &o.Status)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrNotFound
		}
		return nil, err
	}
	o.Date = o.Date.UTC()
	return &o, nil
}

func (s *Store) CreateOrder(ctx context.Context, order domain.Order) (*domain.Order, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO orders (id, date, supermarket_id, quantity, price_per_unit, status, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,now())
		ON CONFLICT (id) DO NOTHING
	`, order.ID, order.Date, order.SupermarketID, order.Quantity, order.PricePerUnit, order.Status)
	if err != nil {
		if isForeignKeyViolation(err) {
			return nil, fmt.Errorf("%w: supermarket %s", store.ErrNotFound, order.SupermarketID)
		}
		if isCheckViolation(err) {
			return nil, domain.Invalid("status", fmt.Sprintf("unknown status %q", order.Status))
		}
		return nil, err
	}
	return s.getOrder(ctx, order.ID)
}

func (s *Store) UpdateOrderStatus(ctx context.Context, id string, status string) (*domain.Order, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE orders SET status = $2 WHERE id = $1`, id, status)
	if err != nil {
		if isCheckViolation(err) {
			return nil, domain.Invalid("status", fmt.Sprintf("unknown status %q", status))
		}
		return nil, err
	}
	if err := expectAffected(res); err != nil {
		return nil, err
	}
	return s.getOrder(ctx, id)
}

func (s *Store) DeleteOrder(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM orders WHERE id = $1`, id)
	if err != nil {
		return err
	}
	return expectAffected(res)
}

func scanStockEntry(row rowScanner) (domain.StockHistoryEntry, error) {
	var (
		entry        domain.StockHistoryEntry
		distribution []byte
	)
	if err := row.Scan(&entry.ID, &entry.Date, &entry.Quantity, &entry.Type, &entry.Reason, &entry.CurrentStock, &distribution); err != nil {
		return domain.StockHistoryEntry{}, err
	}
	entry.Date = entry.Date.UTC()
	if len(distribution) > 0 {
		if err := json.Unmarshal(distribution, &entry.FragranceDistribution); err != nil {
			return domain.StockHistoryEntry{}, fmt.Errorf("decode distribution of stock entry %s: %w", entry.ID, err)
		}
	}
	return entry, nil
}

func (s *Store) ListStockHistory(ctx context.Context, limit int) ([]domain.StockHistoryEntry, error) {
	query := `
		SELECT id, date, quantity, type, reason, current_stock, fragrance_distribution
		FROM stock_history
		ORDER BY date DESC, id`
	args := []any{}
	if limit > 0 {
		query += ` LIMIT $1`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	entries := make([]domain.StockHistoryEntry, 0, 64)
	for rows.Next() {
		entry, err := scanStockEntry(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

func (s *Store) ListFragranceStock(ctx context.Context) ([]domain.FragranceStock, error) {
	return listFragranceStock(ctx, s.db, false)
}

func listFragranceStock(ctx context.Context, q querier, lock bool) ([]domain.FragranceStock, error) {
	query := `SELECT fragrance_id, name, quantity, color FROM fragrance_stock ORDER BY fragrance_id`
	if lock {
		query += ` FOR UPDATE`
	}
	rows, err := q.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	levels := make([]domain.FragranceStock, 0, len(domain.DefaultFragrances))
	for rows.Next() {
		var level domain.FragranceStock
		if err := rows.Scan(&level.FragranceID, &level.Name, &level.Quantity, &level.Color); err != nil {
			return nil, err
		}
		levels = append(levels, level)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	store.SortFragranceStock(levels)
	return levels, nil
}

func (s *Store) ApplyStockMovement(ctx context.Context, movement domain.StockMovement) (*domain.StockHistoryEntry, error) {
	pgTx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer func() { _ = pgTx.Rollback() }()

	existing, err := scanStockEntry(pgTx.QueryRowContext(ctx, `
		SELECT id, date, quantity, type, reason, current_stock, fragrance_distribution
		FROM stock_history
		WHERE id = $1
	`, movement.EntryID))
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	levels, err := listFragranceStock(ctx, pgTx, true)
	if err != nil {
		return nil, err
	}
	next, err := business.ApplyDeltas(levels, movement.Deltas)
	if err != nil {
		return nil, err
	}
	for id, delta := range movement.Deltas {
		if delta == 0 {
			continue
		}
		if _, err := pgTx.ExecContext(ctx, `
			UPDATE fragrance_stock SET quantity = quantity + $2, updated_at = now() WHERE fragrance_id = $1
		`, id, delta); err != nil {
			return nil, err
		}
	}

	entry := movement.Entry(business.TotalStock(next))
	if err := insertStockEntry(ctx, pgTx, entry, false); err != nil {
		return nil, err
	}
	if err := pgTx.Commit(); err != nil {
		return nil, err
	}
	return &entry, nil
}

func insertStockEntry(ctx context.Context, q querier, entry domain.StockHistoryEntry, upsert bool) error {
	distribution, err := nullJSON(entry.FragranceDistribution)
	if err != nil {
		return err
	}
	conflict := `ON CONFLICT (id) DO NOTHING`
	if upsert {
		conflict = `ON CONFLICT (id) DO UPDATE SET
			date = EXCLUDED.date, quantity = EXCLUDED.quantity, type = EXCLUDED.type, reason = EXCLUDED.reason,
			current_stock = EXCLUDED.current_stock, fragrance_distribution = EXCLUDED.fragrance_distribution`
	}
	_, err = q.ExecContext(ctx, `
		INSERT INTO stock_history (id, date, quantity, type, reason, current_stock, fragrance_distribution, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,now())
		`+conflict, entry.ID, entry.Date, entry.Quantity, entry.Type, entry.Reason, entry.CurrentStock, distribution)
	if err != nil && isCheckViolation(err) {
		return domain.Invalid("type", fmt.Sprintf("unknown stock entry type %q", entry.Type))
	}
	return err
}

func (s *Store) ImportStockEntry(ctx context.Context, entry domain.StockHistoryEntry) error {
	return insertStockEntry(ctx, s.db, entry, true)
}

func (s *Store) ImportFragranceStock(ctx context.Context, level domain.FragranceStock) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fragrance_stock (fragrance_id, name, quantity, color, updated_at)
		VALUES ($1,$2,$3,$4,now())
		ON CONFLICT (fragrance_id)
		DO UPDATE SET name = EXCLUDED.name, quantity = EXCLUDED.quantity, color = EXCLUDED.color, updated_at = now()
	`, level.FragranceID, level.Name, level.Quantity, level.Color)
	if err != nil && isCheckViolation(err) {
		return domain.Invalid("quantity", "must not be negative")
	}
	return err
}

func expectAffected(res sql.Result) error {
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return store.ErrNotFound
	}
	return nil
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return pgCode(err) == "23505"
}

func isForeignKeyViolation(err error) bool {
	return pgCode(err) == "23503"
}

func isCheckViolation(err error) bool {
	return pgCode(err) == "23514"
}

func orDefault(v, def int) int {
	if v <= 0 {
		return def
	}
	return v
}

func phoneJSON(numbers []domain.PhoneNumber) (string, error) {
	if numbers == nil {
		numbers = []domain.PhoneNumber{}
	}
	raw, err := json.Marshal(numbers)
	if err != nil {
		return "", fmt.Errorf("encode phone numbers: %w", err)
	}
	return string(raw), nil
}

func nullJSON(dist map[string]int) (any, error) {
	if len(dist) == 0 {
		return nil, nil
	}
	raw, err := json.Marshal(dist)
	if err != nil {
		return nil, fmt.Errorf("encode distribution: %w", err)
	}
	return string(raw), nil
}

func nullIfEmpty(val string) any {
	if val == "" {
		return nil
	}
	return val
}

func nullTime(val *time.Time) any {
	if val == nil {
		return nil
	}
	return *val
}

func timePtr(val sql.NullTime) *time.Time {
	if !val.Valid {
		return nil
	}
	t := val.Time.UTC()
	return &t
}
