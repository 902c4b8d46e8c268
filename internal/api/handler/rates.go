package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ayo6706/rates-ingest/internal/domain"
	"github.com/jackc/pgx/v5"
)

// RateReader serves read access to the destination table.
type RateReader interface {
	ListRatesForDate(ctx context.Context, date time.Time) ([]domain.RateRecord, error)
	GetRate(ctx context.Context, date time.Time, currency string) (*domain.RateRecord, error)
}

// RatesHandler exposes stored EUR-based rates.
type RatesHandler struct {
	reader RateReader
}

func NewRatesHandler(reader RateReader) *RatesHandler {
	return &RatesHandler{reader: reader}
}

// Get returns the stored rates for a date, optionally narrowed to one
// currency: GET /v1/rates?date=2025-11-10[&currency=USD].
func (h *RatesHandler) Get(w http.ResponseWriter, r *http.Request) {
	dateParam := r.URL.Query().Get("date")
	if dateParam == "" {
		RespondError(w, r, http.StatusBadRequest, "rates/missing-date", "date query parameter is required")
		return
	}
	date, err := time.Parse("2006-01-02", dateParam)
	if err != nil {
		RespondError(w, r, http.StatusBadRequest, "rates/invalid-date", "date must be YYYY-MM-DD")
		return
	}

	if currency := r.URL.Query().Get("currency"); currency != "" {
		rec, err := h.reader.GetRate(r.Context(), date, currency)
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				RespondError(w, r, http.StatusNotFound, "rates/not-found", "no rate stored for that date and currency")
				return
			}
			RespondError(w, r, http.StatusInternalServerError, "rates/query-failure", "failed to read rates")
			return
		}
		RespondJSON(w, http.StatusOK, rec)
		return
	}

	records, err := h.reader.ListRatesForDate(r.Context(), date)
	if err != nil {
		RespondError(w, r, http.StatusInternalServerError, "rates/query-failure", "failed to read rates")
		return
	}
	RespondJSON(w, http.StatusOK, map[string]any{
		"date":  date.Format("2006-01-02"),
		"rates": records,
	})
}
