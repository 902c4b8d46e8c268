package warehouse

import (
	"context"

	"github.com/ayo6706/rates-ingest/internal/domain"
	"github.com/ayo6706/rates-ingest/internal/observability"
	"go.uber.org/zap"
)

// Coordinator applies a batch of rate records in one reconciliation pass:
// ensure staging, truncate it, load the batch, merge into the destination.
// The sequence aborts on the first failing stage and is safe to retry as a
// whole, because truncate-then-load discards anything a failed run left in
// staging.
type Coordinator struct {
	store Store
}

// NewCoordinator creates a coordinator over the given storage collaborator.
func NewCoordinator(store Store) *Coordinator {
	return &Coordinator{store: store}
}

// Upsert reconciles the batch into the destination table. An empty batch is a
// deliberate no-op. Failures carry the protocol stage via *StageError.
func (c *Coordinator) Upsert(ctx context.Context, records []domain.RateRecord) error {
	if len(records) == 0 {
		zap.L().Info("upsert skipped, empty batch")
		return nil
	}

	batch := dedupe(records)
	if dropped := len(records) - len(batch); dropped > 0 {
		zap.L().Warn("dropped duplicate (date, currency) keys from batch", zap.Int("dropped", dropped))
	}

	if err := c.store.EnsureStaging(ctx); err != nil {
		return c.fail(StageProvision, err)
	}
	if err := c.store.TruncateStaging(ctx); err != nil {
		return c.fail(StageTruncate, err)
	}
	if err := c.store.LoadStaging(ctx, batch); err != nil {
		return c.fail(StageLoad, err)
	}
	if err := c.store.Merge(ctx); err != nil {
		return c.fail(StageMerge, err)
	}

	observability.AddRecordsUpserted(len(batch))
	zap.L().Info("upserted rate records", zap.Int("records", len(batch)))
	return nil
}

func (c *Coordinator) fail(stage Stage, err error) error {
	observability.IncrementUpsertStageFailure(string(stage))
	return stageErr(stage, err)
}

// dedupe keeps the last record for each (date, currency) key, preserving the
// first-occurrence order of the keys.
func dedupe(records []domain.RateRecord) []domain.RateRecord {
	type key struct {
		date     int64
		currency string
	}
	index := make(map[key]int, len(records))
	out := make([]domain.RateRecord, 0, len(records))
	for _, rec := range records {
		k := key{date: rec.Date.Unix(), currency: rec.Currency}
		if i, ok := index[k]; ok {
			out[i] = rec
			continue
		}
		index[k] = len(out)
		out = append(out, rec)
	}
	return out
}
