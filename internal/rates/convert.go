// Package rates rebases USD-based rate snapshots to an EUR base.
package rates

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/ayo6706/rates-ingest/internal/domain"
	"go.uber.org/zap"
)

// Structural snapshot errors. Any of these makes the whole snapshot unusable;
// the caller decides whether to skip the day or abort the run.
var (
	ErrMissingRates     = errors.New("snapshot has no rates field")
	ErrInvalidRatesType = errors.New("snapshot rates field is not an object")
	ErrEmptyRates       = errors.New("snapshot rates object is empty")
	ErrMissingBaseRate  = errors.New("snapshot has no EUR rate")
	ErrInvalidBaseRate  = errors.New("snapshot EUR rate is not a positive finite number")
)

// Snapshot is one day's raw API response, USD base. Rates stays raw JSON so
// Convert can tell apart "absent", "wrong type" and "bad individual entry".
type Snapshot struct {
	Rates     json.RawMessage `json:"rates"`
	Timestamp int64           `json:"timestamp"`
}

// Mapping holds EUR-relative rates keyed by currency code. When non-empty it
// always contains an EUR entry of exactly 1.0.
type Mapping map[string]float64

// Convert rebases a USD-based snapshot to EUR. Individual malformed entries
// (null, non-numeric, NaN, Inf, zero, negative) are skipped with a warning;
// a structurally unusable snapshot fails with one of the errors above.
func Convert(snap Snapshot) (Mapping, error) {
	if len(snap.Rates) == 0 {
		return nil, ErrMissingRates
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(snap.Rates, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRatesType, err)
	}
	if raw == nil {
		// JSON null decodes without error but is not a usable mapping.
		return nil, ErrMissingRates
	}
	if len(raw) == 0 {
		return nil, ErrEmptyRates
	}

	baseRaw, ok := raw[domain.BaseCurrency]
	if !ok {
		return nil, ErrMissingBaseRate
	}
	base, ok := parseRate(baseRaw)
	if !ok || !validRate(base) {
		return nil, ErrInvalidBaseRate
	}

	out := make(Mapping, len(raw))
	for code, entry := range raw {
		if code == domain.BaseCurrency {
			out[code] = 1.0
			continue
		}
		v, ok := parseRate(entry)
		if !ok || !validRate(v) {
			zap.L().Warn("skipping malformed rate entry",
				zap.String("currency", code),
				zap.String("raw", string(entry)),
			)
			continue
		}
		out[code] = v / base
	}
	return out, nil
}

func parseRate(raw json.RawMessage) (float64, bool) {
	var v float64
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0, false
	}
	return v, true
}

func validRate(v float64) bool {
	return v > 0 && !math.IsInf(v, 0) && !math.IsNaN(v)
}
