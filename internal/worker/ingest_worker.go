package worker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/ayo6706/rates-ingest/internal/observability"
	"github.com/ayo6706/rates-ingest/internal/runlock"
	"github.com/ayo6706/rates-ingest/internal/service"
	"go.uber.org/zap"
)

// Runner executes one ingestion pass.
type Runner interface {
	Run(ctx context.Context) (*service.IngestReport, error)
}

// IngestWorker runs the ingestion pipeline on a schedule. Each run takes the
// shared run lock first, so a scheduled run and a manual HTTP trigger can
// never overlap on the staging table.
type IngestWorker struct {
	svc      Runner
	lock     *runlock.Lock
	interval time.Duration
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewIngestWorker constructs a worker with a default daily interval.
func NewIngestWorker(svc Runner, lock *runlock.Lock) *IngestWorker {
	return &IngestWorker{
		svc:      svc,
		lock:     lock,
		interval: 24 * time.Hour,
		stopCh:   make(chan struct{}),
	}
}

// WithInterval updates the run interval.
func (w *IngestWorker) WithInterval(interval time.Duration) *IngestWorker {
	if interval > 0 {
		w.interval = interval
	}
	return w
}

// Start blocks and runs ingestion at the configured interval.
func (w *IngestWorker) Start(ctx context.Context) {
	zap.L().Info("ingest worker starting", zap.Duration("interval", w.interval))
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	// Run once immediately at startup.
	w.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			zap.L().Info("ingest worker context canceled")
			return
		case <-w.stopCh:
			zap.L().Info("ingest worker stop signal received")
			return
		case <-ticker.C:
			w.runOnce(ctx)
		}
	}
}

// Stop stops the running worker loop.
func (w *IngestWorker) Stop() {
	w.stopOnce.Do(func() {
		close(w.stopCh)
	})
}

// Run starts the worker in a goroutine and returns a stop function.
func (w *IngestWorker) Run(ctx context.Context) func() {
	go w.Start(ctx)
	return w.Stop
}

func (w *IngestWorker) runOnce(ctx context.Context) {
	release, err := w.lock.Acquire(ctx)
	if err != nil {
		if errors.Is(err, runlock.ErrHeld) {
			observability.IncrementWorkerRun("ingest", "skipped")
			zap.L().Info("ingest worker skipping tick, run already in progress")
			return
		}
		observability.IncrementWorkerRun("ingest", "failed")
		zap.L().Error("ingest worker could not acquire run lock", zap.Error(err))
		return
	}
	defer release()

	report, err := w.svc.Run(ctx)
	if err != nil {
		observability.IncrementWorkerRun("ingest", "failed")
		zap.L().Error("scheduled ingest run failed", zap.Error(err))
		return
	}
	observability.IncrementWorkerRun("ingest", report.Status)
}
