package repository

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/ayo6706/rates-ingest/internal/db"
	"github.com/ayo6706/rates-ingest/internal/domain"
	"github.com/ayo6706/rates-ingest/internal/warehouse"
	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	_ = godotenv.Load("../../.env") // Load from root
}

func TestListAndGetRates(t *testing.T) {
	if os.Getenv("DATABASE_URL") == "" {
		t.Skip("Skipping integration test: DATABASE_URL not set")
	}

	pool, err := db.Connect(context.Background(), os.Getenv("DATABASE_URL"))
	require.NoError(t, err)
	defer pool.Close()

	ctx := context.Background()
	for _, table := range []string{"rates_repo_it", "rates_repo_staging_it"} {
		_, err := pool.Exec(ctx, "DROP TABLE IF EXISTS "+table)
		require.NoError(t, err)
	}

	store := warehouse.NewPgStore(pool, "rates_repo_it", "rates_repo_staging_it")
	day := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	observed := time.Date(2025, 11, 10, 16, 0, 0, 0, time.UTC)
	err = warehouse.NewCoordinator(store).Upsert(ctx, []domain.RateRecord{
		{Date: day, Currency: "USD", RateToEUR: 1.09, ObservedAt: observed},
		{Date: day, Currency: "GBP", RateToEUR: 0.88, ObservedAt: observed},
	})
	require.NoError(t, err)

	repo := NewRepository(pool, "rates_repo_it")

	records, err := repo.ListRatesForDate(ctx, day)
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "GBP", records[0].Currency)
	assert.Equal(t, "USD", records[1].Currency)

	rec, err := repo.GetRate(ctx, day, "USD")
	require.NoError(t, err)
	assert.Equal(t, 1.09, rec.RateToEUR)
	assert.True(t, rec.ObservedAt.Equal(observed))

	_, err = repo.GetRate(ctx, day, "JPY")
	require.Error(t, err)
}
