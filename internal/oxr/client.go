// Package oxr fetches historical USD-based rate snapshots from an Open
// Exchange Rates style API.
package oxr

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ayo6706/rates-ingest/internal/observability"
	"github.com/ayo6706/rates-ingest/internal/rates"
	"go.uber.org/zap"
)

// DefaultBaseURL is the hosted Open Exchange Rates endpoint.
const DefaultBaseURL = "https://openexchangerates.org/api"

// APIError is a non-2xx response from the rate API.
type APIError struct {
	Status int
	Body   string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("rate api returned status %d: %s", e.Status, e.Body)
}

// RetryPolicy is the single retry strategy applied to historical fetches.
// Retryable decides from the response status (0 when the request itself
// failed) and the transport error whether another attempt is worthwhile.
// MaxDelay caps the exponential backoff; zero means defaultMaxDelay.
type RetryPolicy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Retryable   func(status int, err error) bool
}

const defaultMaxDelay = time.Minute

// DefaultRetryPolicy retries transport errors, 5xx and 429 with exponential
// backoff. Other client errors fail immediately.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   2 * time.Second,
		MaxDelay:    defaultMaxDelay,
		Retryable: func(status int, err error) bool {
			if err != nil {
				return true
			}
			return status >= 500 || status == http.StatusTooManyRequests
		},
	}
}

func (p RetryPolicy) delay(attempt int) time.Duration {
	limit := p.MaxDelay
	if limit <= 0 {
		limit = defaultMaxDelay
	}
	d := p.BaseDelay
	for i := 1; i < attempt; i++ {
		d *= 2
		// doubling past the cap, or past the int64 range, returns the cap
		if d <= 0 || d >= limit {
			return limit
		}
	}
	if d > limit {
		return limit
	}
	return d
}

// Client fetches daily historical snapshots.
type Client struct {
	httpClient *http.Client
	baseURL    string
	appID      string
	policy     RetryPolicy
}

// NewClient creates a client for the given endpoint and API key.
func NewClient(baseURL, appID string, policy RetryPolicy) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if policy.MaxAttempts <= 0 {
		policy = DefaultRetryPolicy()
	}
	if policy.Retryable == nil {
		policy.Retryable = DefaultRetryPolicy().Retryable
	}
	return &Client{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		baseURL:    baseURL,
		appID:      appID,
		policy:     policy,
	}
}

// WithHTTPClient overrides the underlying HTTP client, mainly for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// FetchHistorical returns the raw USD-based snapshot for one calendar day.
// It never returns an empty snapshot on failure: either a parsed snapshot or
// an error.
func (c *Client) FetchHistorical(ctx context.Context, day time.Time) (rates.Snapshot, error) {
	reqURL := fmt.Sprintf("%s/historical/%s.json?app_id=%s",
		c.baseURL, day.UTC().Format("2006-01-02"), url.QueryEscape(c.appID))

	var lastErr error
	for attempt := 1; attempt <= c.policy.MaxAttempts; attempt++ {
		snap, status, err := c.fetchOnce(ctx, reqURL)
		if err == nil {
			observability.IncrementFetchAttempt("success")
			return snap, nil
		}
		lastErr = err

		if !c.policy.Retryable(status, transportErr(err)) {
			observability.IncrementFetchAttempt("fatal")
			return rates.Snapshot{}, err
		}
		observability.IncrementFetchAttempt("retryable")
		zap.L().Warn("rate fetch attempt failed",
			zap.Time("day", day),
			zap.Int("attempt", attempt),
			zap.Int("max_attempts", c.policy.MaxAttempts),
			zap.Error(err),
		)

		if attempt == c.policy.MaxAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return rates.Snapshot{}, ctx.Err()
		case <-time.After(c.policy.delay(attempt)):
		}
	}
	return rates.Snapshot{}, fmt.Errorf("fetch rates for %s after %d attempts: %w",
		day.UTC().Format("2006-01-02"), c.policy.MaxAttempts, lastErr)
}

func (c *Client) fetchOnce(ctx context.Context, reqURL string) (rates.Snapshot, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return rates.Snapshot{}, 0, err
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return rates.Snapshot{}, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return rates.Snapshot{}, resp.StatusCode, fmt.Errorf("read response body: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return rates.Snapshot{}, resp.StatusCode, &APIError{Status: resp.StatusCode, Body: truncate(body, 256)}
	}

	var snap rates.Snapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return rates.Snapshot{}, resp.StatusCode, &decodeError{err: err}
	}
	return snap, resp.StatusCode, nil
}

// decodeError is a 200 response whose body failed to parse. The payload is
// not going to change on a retry, so it is treated like a client error.
type decodeError struct {
	err error
}

func (e *decodeError) Error() string { return fmt.Sprintf("decode snapshot: %v", e.err) }

func (e *decodeError) Unwrap() error { return e.err }

// transportErr strips APIError and decodeError so Retryable sees transport
// failures as err and HTTP-level failures as status only.
func transportErr(err error) error {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return nil
	}
	var decErr *decodeError
	if errors.As(err, &decErr) {
		return nil
	}
	return err
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
