package warehouse

import (
	"context"
	"fmt"

	"github.com/ayo6706/rates-ingest/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PgStore implements Store on Postgres. The merge is a delete-matching-keys
// then-insert inside one transaction, which preserves key-based overwrite
// semantics without requiring a unique index on the destination table.
type PgStore struct {
	db       *pgxpool.Pool
	destName string
	stagName string
}

// NewPgStore creates a store writing to the given destination and staging
// table names.
func NewPgStore(db *pgxpool.Pool, destTable, stagingTable string) *PgStore {
	return &PgStore{db: db, destName: destTable, stagName: stagingTable}
}

func (s *PgStore) dest() string    { return pgx.Identifier{s.destName}.Sanitize() }
func (s *PgStore) staging() string { return pgx.Identifier{s.stagName}.Sanitize() }

// EnsureStaging provisions the staging and destination tables. CREATE TABLE
// IF NOT EXISTS never touches an existing schema, so this is cheap to call on
// every run.
func (s *PgStore) EnsureStaging(ctx context.Context) error {
	const columns = `(
		date DATE NOT NULL,
		currency TEXT NOT NULL,
		rate_to_eur DOUBLE PRECISION NOT NULL,
		observed_at TIMESTAMPTZ
	)`
	for _, table := range []string{s.staging(), s.dest()} {
		if _, err := s.db.Exec(ctx, fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s %s", table, columns)); err != nil {
			return fmt.Errorf("create table %s: %w", table, err)
		}
	}
	return nil
}

// TruncateStaging empties the staging table so the current batch is its only
// content, discarding residue from any previously failed run.
func (s *PgStore) TruncateStaging(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, fmt.Sprintf("TRUNCATE %s", s.staging())); err != nil {
		return fmt.Errorf("truncate %s: %w", s.staging(), err)
	}
	return nil
}

// LoadStaging bulk-appends the batch via COPY.
func (s *PgStore) LoadStaging(ctx context.Context, records []domain.RateRecord) error {
	rows := make([][]any, len(records))
	for i, rec := range records {
		rows[i] = []any{rec.Date, rec.Currency, rec.RateToEUR, rec.ObservedAt}
	}
	_, err := s.db.CopyFrom(ctx,
		pgx.Identifier{s.stagName},
		[]string{"date", "currency", "rate_to_eur", "observed_at"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		return fmt.Errorf("copy into %s: %w", s.staging(), err)
	}
	return nil
}

// Merge overwrites destination rows keyed by (date, currency) with the staged
// rows and inserts the rest. Destination rows outside the staged key set are
// never deleted.
func (s *PgStore) Merge(ctx context.Context) error {
	tx, err := s.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin merge transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	deleteStmt := fmt.Sprintf(`
		DELETE FROM %s AS t
		USING %s AS s
		WHERE t.date = s.date AND t.currency = s.currency
	`, s.dest(), s.staging())
	if _, err := tx.Exec(ctx, deleteStmt); err != nil {
		return fmt.Errorf("delete matched keys: %w", err)
	}

	// DISTINCT ON guards against duplicate keys that slipped into staging.
	insertStmt := fmt.Sprintf(`
		INSERT INTO %s (date, currency, rate_to_eur, observed_at)
		SELECT DISTINCT ON (date, currency) date, currency, rate_to_eur, observed_at
		FROM %s
		ORDER BY date, currency
	`, s.dest(), s.staging())
	if _, err := tx.Exec(ctx, insertStmt); err != nil {
		return fmt.Errorf("insert staged rows: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit merge transaction: %w", err)
	}
	return nil
}
