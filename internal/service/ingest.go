package service

import (
	"context"
	"errors"
	"time"

	"github.com/ayo6706/rates-ingest/internal/domain"
	"github.com/ayo6706/rates-ingest/internal/observability"
	"github.com/ayo6706/rates-ingest/internal/rates"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// ErrNoRecords means every day in the window failed to produce records, so
// there was nothing to write.
var ErrNoRecords = errors.New("no records produced for the ingestion window")

// Fetcher retrieves one day's raw USD-based snapshot. Retry policy lives
// inside the implementation, not here.
type Fetcher interface {
	FetchHistorical(ctx context.Context, day time.Time) (rates.Snapshot, error)
}

// Upserter reconciles a batch of records into the warehouse.
type Upserter interface {
	Upsert(ctx context.Context, records []domain.RateRecord) error
}

// DayFailure records why one day of the window produced no records.
type DayFailure struct {
	Date   string `json:"date"`
	Reason string `json:"reason"`
}

// IngestReport summarizes one ingestion run for the caller.
type IngestReport struct {
	RunID          uuid.UUID    `json:"run_id"`
	Status         string       `json:"status"` // success, partial, failed
	WindowDays     int          `json:"window_days"`
	RecordsWritten int          `json:"records_written"`
	DaysFailed     []DayFailure `json:"days_failed,omitempty"`
	StartedAt      time.Time    `json:"started_at"`
	Duration       string       `json:"duration"`
}

// IngestService runs the fetch -> convert -> accumulate -> upsert pipeline
// over a trailing window of calendar days.
type IngestService struct {
	fetcher      Fetcher
	upserter     Upserter
	currencies   []string
	lookbackDays int
	now          func() time.Time
}

// NewIngestService wires the pipeline. Tracked currencies and the lookback
// window length come from configuration, never from constants in here.
func NewIngestService(fetcher Fetcher, upserter Upserter, currencies []string, lookbackDays int) *IngestService {
	if len(currencies) == 0 {
		currencies = domain.DefaultTrackedCurrencies
	}
	if lookbackDays <= 0 {
		lookbackDays = 30
	}
	return &IngestService{
		fetcher:      fetcher,
		upserter:     upserter,
		currencies:   currencies,
		lookbackDays: lookbackDays,
		now:          time.Now,
	}
}

// WithClock overrides the time source, for tests.
func (s *IngestService) WithClock(now func() time.Time) *IngestService {
	s.now = now
	return s
}

// Run executes one ingestion pass. A single bad day is skipped and reported,
// not fatal; a failed upsert or an empty window fails the whole run.
func (s *IngestService) Run(ctx context.Context) (*IngestReport, error) {
	started := s.now()
	report := &IngestReport{
		RunID:      uuid.New(),
		WindowDays: s.lookbackDays,
		StartedAt:  started.UTC(),
	}
	logger := zap.L().With(zap.String("run_id", report.RunID.String()))
	logger.Info("ingest run starting",
		zap.Int("lookback_days", s.lookbackDays),
		zap.Strings("tracked_currencies", s.currencies),
	)

	var batch []domain.RateRecord
	end := domain.Day(started)
	for i := 0; i < s.lookbackDays; i++ {
		day := end.AddDate(0, 0, -i)

		records, err := s.ingestDay(ctx, day)
		if err != nil {
			if ctx.Err() != nil {
				return report, ctx.Err()
			}
			observability.IncrementIngestDayFailed()
			report.DaysFailed = append(report.DaysFailed, DayFailure{
				Date:   day.Format("2006-01-02"),
				Reason: err.Error(),
			})
			logger.Warn("skipping day", zap.Time("day", day), zap.Error(err))
			continue
		}
		batch = append(batch, records...)
	}

	if len(batch) == 0 {
		report.Status = "failed"
		report.Duration = s.now().Sub(started).String()
		observability.IncrementIngestRun("failed")
		return report, ErrNoRecords
	}

	if err := s.upserter.Upsert(ctx, batch); err != nil {
		report.Status = "failed"
		report.Duration = s.now().Sub(started).String()
		observability.IncrementIngestRun("failed")
		return report, err
	}

	report.RecordsWritten = len(batch)
	report.Duration = s.now().Sub(started).String()
	if len(report.DaysFailed) > 0 {
		report.Status = "partial"
		observability.IncrementIngestRun("partial")
	} else {
		report.Status = "success"
		observability.IncrementIngestRun("success")
	}
	logger.Info("ingest run finished",
		zap.String("status", report.Status),
		zap.Int("records", report.RecordsWritten),
		zap.Int("days_failed", len(report.DaysFailed)),
	)
	return report, nil
}

// ingestDay fetches and rebases one day, keeping only tracked currencies.
func (s *IngestService) ingestDay(ctx context.Context, day time.Time) ([]domain.RateRecord, error) {
	snap, err := s.fetcher.FetchHistorical(ctx, day)
	if err != nil {
		return nil, err
	}

	mapping, err := rates.Convert(snap)
	if err != nil {
		return nil, err
	}

	observedAt := s.now().UTC()
	if snap.Timestamp > 0 {
		observedAt = time.Unix(snap.Timestamp, 0).UTC()
	}

	records := make([]domain.RateRecord, 0, len(s.currencies))
	for _, currency := range s.currencies {
		rate, ok := mapping[currency]
		if !ok {
			continue
		}
		records = append(records, domain.RateRecord{
			Date:       day,
			Currency:   currency,
			RateToEUR:  rate,
			ObservedAt: observedAt,
		})
	}
	return records, nil
}
