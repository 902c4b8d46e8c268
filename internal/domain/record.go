package domain

import (
	"strings"
	"time"
)

// BaseCurrency is the pivot every stored rate is expressed against.
const BaseCurrency = "EUR"

// DefaultTrackedCurrencies is used when TRACKED_CURRENCIES is not configured.
var DefaultTrackedCurrencies = []string{"USD", "GBP", "JPY", "CHF"}

// RateRecord is one observation of a currency's EUR-relative rate on a
// calendar day. (Date, Currency) is the natural key in the warehouse.
type RateRecord struct {
	Date       time.Time `json:"date"`
	Currency   string    `json:"currency"`
	RateToEUR  float64   `json:"rate_to_eur"`
	ObservedAt time.Time `json:"observed_at"`
}

// Day truncates t to UTC midnight, the canonical form of RateRecord.Date.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// ParseCurrencyList splits a comma-separated currency list, uppercasing and
// dropping blanks. Returns nil when nothing usable remains.
func ParseCurrencyList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		code := strings.ToUpper(strings.TrimSpace(part))
		if code != "" {
			out = append(out, code)
		}
	}
	return out
}
