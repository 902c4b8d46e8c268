package service

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/ayo6706/rates-ingest/internal/domain"
	"github.com/ayo6706/rates-ingest/internal/rates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	snapshots map[string]rates.Snapshot
	failures  map[string]error
}

func (f *fakeFetcher) FetchHistorical(_ context.Context, day time.Time) (rates.Snapshot, error) {
	key := day.Format("2006-01-02")
	if err, ok := f.failures[key]; ok {
		return rates.Snapshot{}, err
	}
	snap, ok := f.snapshots[key]
	if !ok {
		return rates.Snapshot{}, errors.New("unexpected day " + key)
	}
	return snap, nil
}

type fakeUpserter struct {
	batches [][]domain.RateRecord
	err     error
}

func (f *fakeUpserter) Upsert(_ context.Context, records []domain.RateRecord) error {
	f.batches = append(f.batches, records)
	return f.err
}

func snap(r string, ts int64) rates.Snapshot {
	return rates.Snapshot{Rates: json.RawMessage(r), Timestamp: ts}
}

func fixedClock() func() time.Time {
	return func() time.Time {
		return time.Date(2025, 11, 12, 9, 30, 0, 0, time.UTC)
	}
}

func TestRunHappyPath(t *testing.T) {
	fetcher := &fakeFetcher{snapshots: map[string]rates.Snapshot{
		"2025-11-12": snap(`{"EUR": 0.92, "USD": 1.0, "GBP": 0.81, "XAU": 0.0005}`, 1762932000),
		"2025-11-11": snap(`{"EUR": 0.93, "USD": 1.0, "GBP": 0.82}`, 1762845600),
	}}
	sink := &fakeUpserter{}
	svc := NewIngestService(fetcher, sink, []string{"USD", "GBP"}, 2).WithClock(fixedClock())

	report, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "success", report.Status)
	assert.Equal(t, 4, report.RecordsWritten)
	assert.Empty(t, report.DaysFailed)

	require.Len(t, sink.batches, 1)
	batch := sink.batches[0]
	require.Len(t, batch, 4)

	first := batch[0]
	assert.Equal(t, time.Date(2025, 11, 12, 0, 0, 0, 0, time.UTC), first.Date)
	assert.Equal(t, "USD", first.Currency)
	assert.InDelta(t, 1.0/0.92, first.RateToEUR, 1e-10)
	assert.Equal(t, time.Unix(1762932000, 0).UTC(), first.ObservedAt)

	// XAU is untracked and must not appear anywhere in the batch.
	for _, rec := range batch {
		assert.NotEqual(t, "XAU", rec.Currency)
	}
}

func TestRunWindowPartialFailure(t *testing.T) {
	fetcher := &fakeFetcher{
		snapshots: map[string]rates.Snapshot{
			"2025-11-12": snap(`{"EUR": 0.92, "USD": 1.0}`, 0),
			"2025-11-10": snap(`{"EUR": 0.93, "USD": 1.0}`, 0),
		},
		failures: map[string]error{
			"2025-11-11": errors.New("upstream timeout"),
		},
	}
	sink := &fakeUpserter{}
	svc := NewIngestService(fetcher, sink, []string{"USD"}, 3).WithClock(fixedClock())

	report, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "partial", report.Status)
	assert.Equal(t, 2, report.RecordsWritten)
	require.Len(t, report.DaysFailed, 1)
	assert.Equal(t, "2025-11-11", report.DaysFailed[0].Date)
	assert.Contains(t, report.DaysFailed[0].Reason, "upstream timeout")

	require.Len(t, sink.batches, 1)
	require.Len(t, sink.batches[0], 2)
}

func TestRunStructuralErrorSkipsDay(t *testing.T) {
	fetcher := &fakeFetcher{snapshots: map[string]rates.Snapshot{
		"2025-11-12": snap(`{"EUR": 0.92, "USD": 1.0}`, 0),
		"2025-11-11": snap(`{"GBP": 0.81}`, 0), // no EUR pivot
	}}
	sink := &fakeUpserter{}
	svc := NewIngestService(fetcher, sink, []string{"USD"}, 2).WithClock(fixedClock())

	report, err := svc.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "partial", report.Status)
	require.Len(t, report.DaysFailed, 1)
	assert.Equal(t, "2025-11-11", report.DaysFailed[0].Date)
}

func TestRunAllDaysFailed(t *testing.T) {
	fetcher := &fakeFetcher{failures: map[string]error{
		"2025-11-12": errors.New("boom"),
		"2025-11-11": errors.New("boom"),
	}}
	sink := &fakeUpserter{}
	svc := NewIngestService(fetcher, sink, []string{"USD"}, 2).WithClock(fixedClock())

	report, err := svc.Run(context.Background())
	assert.ErrorIs(t, err, ErrNoRecords)
	assert.Equal(t, "failed", report.Status)
	assert.Empty(t, sink.batches)
}

func TestRunUpsertFailure(t *testing.T) {
	fetcher := &fakeFetcher{snapshots: map[string]rates.Snapshot{
		"2025-11-12": snap(`{"EUR": 0.92, "USD": 1.0}`, 0),
	}}
	sink := &fakeUpserter{err: errors.New("merge refused")}
	svc := NewIngestService(fetcher, sink, []string{"USD"}, 1).WithClock(fixedClock())

	report, err := svc.Run(context.Background())
	require.Error(t, err)
	assert.Equal(t, "failed", report.Status)
	assert.Zero(t, report.RecordsWritten)
}
