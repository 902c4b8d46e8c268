// Package warehouse applies batches of rate records to the destination table
// through a staging-then-merge protocol.
package warehouse

import (
	"context"
	"fmt"

	"github.com/ayo6706/rates-ingest/internal/domain"
)

// Stage identifies which step of the upsert protocol failed.
type Stage string

const (
	StageProvision Stage = "provision"
	StageTruncate  Stage = "truncate"
	StageLoad      Stage = "load"
	StageMerge     Stage = "merge"
)

// StageError wraps a storage failure with the protocol stage it occurred in,
// so callers can log and alert with stage granularity.
type StageError struct {
	Stage Stage
	Err   error
}

func (e *StageError) Error() string {
	return fmt.Sprintf("upsert %s stage: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

func stageErr(stage Stage, err error) *StageError {
	return &StageError{Stage: stage, Err: err}
}

// Store is the storage collaborator the coordinator drives. Implementations
// own the staging and destination tables; the coordinator owns the ordering.
type Store interface {
	// EnsureStaging provisions the staging (and destination) tables if they
	// do not exist. It never alters an existing schema.
	EnsureStaging(ctx context.Context) error
	// TruncateStaging removes every row from the staging table.
	TruncateStaging(ctx context.Context) error
	// LoadStaging appends the records to the staging table.
	LoadStaging(ctx context.Context, records []domain.RateRecord) error
	// Merge reconciles staging into the destination keyed on (date, currency):
	// matched rows are overwritten, unmatched rows inserted, nothing deleted.
	Merge(ctx context.Context) error
}
