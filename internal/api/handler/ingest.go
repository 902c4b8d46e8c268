package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/ayo6706/rates-ingest/internal/runlock"
	"github.com/ayo6706/rates-ingest/internal/service"
	"go.uber.org/zap"
)

// IngestRunner executes one ingestion pass over the lookback window.
type IngestRunner interface {
	Run(ctx context.Context) (*service.IngestReport, error)
}

// IngestHandler triggers ingestion runs over HTTP.
type IngestHandler struct {
	runner IngestRunner
	lock   *runlock.Lock
}

func NewIngestHandler(runner IngestRunner, lock *runlock.Lock) *IngestHandler {
	return &IngestHandler{runner: runner, lock: lock}
}

// Trigger starts an ingestion run and blocks until it finishes. Concurrent
// triggers are refused while a run holds the lock; the staging table cannot
// serve two runs at once.
func (h *IngestHandler) Trigger(w http.ResponseWriter, r *http.Request) {
	release, err := h.lock.Acquire(r.Context())
	if err != nil {
		if errors.Is(err, runlock.ErrHeld) {
			RespondError(w, r, http.StatusConflict, "ingest/run-in-progress", "an ingestion run is already in progress")
			return
		}
		zap.L().Error("run lock acquisition failed", zap.Error(err))
		RespondError(w, r, http.StatusServiceUnavailable, "ingest/lock-unavailable", "could not acquire the run lock")
		return
	}
	defer release()

	report, err := h.runner.Run(r.Context())
	if err != nil {
		zap.L().Error("ingest run failed", zap.Error(err))
		if errors.Is(err, service.ErrNoRecords) {
			RespondError(w, r, http.StatusBadRequest, "ingest/no-records", "no records fetched for the window (all days failed or missing EUR rate)")
			return
		}
		RespondError(w, r, http.StatusInternalServerError, "ingest/pipeline-failure", "ingestion pipeline failed: "+err.Error())
		return
	}

	RespondJSON(w, http.StatusOK, report)
}
