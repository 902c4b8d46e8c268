package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/ayo6706/rates-ingest/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository reads EUR-based rate rows from the destination table. All writes
// go through the warehouse coordinator; this is the query side only.
type Repository struct {
	db        *pgxpool.Pool
	tableName string
}

func NewRepository(db *pgxpool.Pool, destTable string) *Repository {
	return &Repository{db: db, tableName: destTable}
}

func (r *Repository) table() string {
	return pgx.Identifier{r.tableName}.Sanitize()
}

// ListRatesForDate returns all rates observed for one calendar day.
func (r *Repository) ListRatesForDate(ctx context.Context, date time.Time) ([]domain.RateRecord, error) {
	query := fmt.Sprintf(`
		SELECT date, currency, rate_to_eur, observed_at
		FROM %s
		WHERE date = $1
		ORDER BY currency
	`, r.table())
	rows, err := r.db.Query(ctx, query, domain.Day(date))
	if err != nil {
		return nil, fmt.Errorf("failed to list rates: %w", err)
	}
	defer rows.Close()

	var records []domain.RateRecord
	for rows.Next() {
		var rec domain.RateRecord
		if err := rows.Scan(&rec.Date, &rec.Currency, &rec.RateToEUR, &rec.ObservedAt); err != nil {
			return nil, fmt.Errorf("failed to scan rate: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate rates: %w", err)
	}
	return records, nil
}

// GetRate returns one (date, currency) row, or pgx.ErrNoRows-wrapped error.
func (r *Repository) GetRate(ctx context.Context, date time.Time, currency string) (*domain.RateRecord, error) {
	query := fmt.Sprintf(`
		SELECT date, currency, rate_to_eur, observed_at
		FROM %s
		WHERE date = $1 AND currency = $2
	`, r.table())
	rec := &domain.RateRecord{}
	err := r.db.QueryRow(ctx, query, domain.Day(date), currency).
		Scan(&rec.Date, &rec.Currency, &rec.RateToEUR, &rec.ObservedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to get rate: %w", err)
	}
	return rec, nil
}
