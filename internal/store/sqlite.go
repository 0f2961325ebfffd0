// Package store keeps an SQLite index of processed drift products.
package store

import (
	"database/sql"
	"log/slog"
	"time"

	"github.com/rtm0/icedrift/internal/drift"
)

// Store wraps the product index database.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

// New creates a store over an open database.
func New(db *sql.DB, logger *slog.Logger) *Store {
	return &Store{db: db, logger: logger}
}

// Product is the index entry of one processed product.
type Product struct {
	Date        time.Time
	Filename    string
	Source      string
	Location    string
	T0, T1      time.Time
	ElapsedDays float64
	DYVariable  string
	ValidCells  int
	MeanSpeed   sql.NullFloat64
	MaxSpeed    sql.NullFloat64
	ProcessedAt time.Time
}

const dateLayout = "2006-01-02"

// ProductFromRecord builds the index entry of a record.
func ProductFromRecord(rec *drift.Record, source string, processedAt time.Time) Product {
	s := drift.Summarize(rec)
	p := Product{
		Date:        rec.Product.Date,
		Filename:    rec.Product.Filename(),
		Source:      source,
		Location:    rec.Location,
		T0:          rec.T0,
		T1:          rec.T1,
		ElapsedDays: rec.ElapsedDays,
		DYVariable:  rec.DYVariable,
		ValidCells:  s.ValidCells,
		ProcessedAt: processedAt.UTC(),
	}
	if s.ValidCells > 0 {
		p.MeanSpeed = sql.NullFloat64{Float64: s.MeanSpeed, Valid: true}
		p.MaxSpeed = sql.NullFloat64{Float64: s.MaxSpeed, Valid: true}
	}
	return p
}

// UpsertProduct records a processed product, replacing an earlier entry for
// the same date, and clears any missing marker for it.
func (s *Store) UpsertProduct(p Product) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		INSERT INTO products (product_date, filename, source, location, t0, t1, elapsed_days, dy_variable, valid_cells, mean_speed, max_speed, processed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(product_date) DO UPDATE SET
			filename = excluded.filename,
			source = excluded.source,
			location = excluded.location,
			t0 = excluded.t0,
			t1 = excluded.t1,
			elapsed_days = excluded.elapsed_days,
			dy_variable = excluded.dy_variable,
			valid_cells = excluded.valid_cells,
			mean_speed = excluded.mean_speed,
			max_speed = excluded.max_speed,
			processed_at = excluded.processed_at
	`, p.Date.Format(dateLayout), p.Filename, p.Source, p.Location, p.T0.UTC(), p.T1.UTC(), p.ElapsedDays, p.DYVariable, p.ValidCells, p.MeanSpeed, p.MaxSpeed, p.ProcessedAt)
	if err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM missing_products WHERE product_date = ?`, p.Date.Format(dateLayout)); err != nil {
		return err
	}
	return tx.Commit()
}

// MarkMissing records that a product was not available from source.
func (s *Store) MarkMissing(date time.Time, filename, source string, checkedAt time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO missing_products (product_date, filename, source, checked_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(product_date) DO UPDATE SET
			source = excluded.source,
			checked_at = excluded.checked_at
	`, date.Format(dateLayout), filename, source, checkedAt.UTC())
	return err
}

// GetProduct returns the entry for date, or nil when the date has not been
// processed.
func (s *Store) GetProduct(date time.Time) (*Product, error) {
	row := s.db.QueryRow(`
		SELECT product_date, filename, source, location, t0, t1, elapsed_days, dy_variable, valid_cells, mean_speed, max_speed, processed_at
		FROM products
		WHERE product_date = ?
	`, date.Format(dateLayout))

	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

// ListProducts returns the entries between from and to inclusive, oldest
// first.
func (s *Store) ListProducts(from, to time.Time) ([]Product, error) {
	rows, err := s.db.Query(`
		SELECT product_date, filename, source, location, t0, t1, elapsed_days, dy_variable, valid_cells, mean_speed, max_speed, processed_at
		FROM products
		WHERE product_date >= ? AND product_date <= ?
		ORDER BY product_date
	`, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, *p)
	}
	return products, rows.Err()
}

// MissingDates returns the dates recorded as missing between from and to.
func (s *Store) MissingDates(from, to time.Time) ([]time.Time, error) {
	rows, err := s.db.Query(`
		SELECT product_date FROM missing_products
		WHERE product_date >= ? AND product_date <= ?
		ORDER BY product_date
	`, from.Format(dateLayout), to.Format(dateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var dates []time.Time
	for rows.Next() {
		var d string
		if err := rows.Scan(&d); err != nil {
			return nil, err
		}
		t, err := parseDate(d)
		if err != nil {
			return nil, err
		}
		dates = append(dates, t)
	}
	return dates, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanProduct(row scanner) (*Product, error) {
	var p Product
	var date string
	var location, dyVariable sql.NullString
	if err := row.Scan(&date, &p.Filename, &p.Source, &location, &p.T0, &p.T1, &p.ElapsedDays, &dyVariable, &p.ValidCells, &p.MeanSpeed, &p.MaxSpeed, &p.ProcessedAt); err != nil {
		return nil, err
	}
	d, err := parseDate(date)
	if err != nil {
		return nil, err
	}
	p.Date = d
	p.Location = location.String
	p.DYVariable = dyVariable.String
	return &p, nil
}

// parseDate accepts both plain dates and the timestamp form the driver may
// hand back for DATE columns.
func parseDate(s string) (time.Time, error) {
	if len(s) >= len(dateLayout) {
		s = s[:len(dateLayout)]
	}
	return time.Parse(dateLayout, s)
}
