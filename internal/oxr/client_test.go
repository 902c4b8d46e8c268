package oxr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testClient(srv *httptest.Server) *Client {
	policy := RetryPolicy{
		MaxAttempts: 3,
		BaseDelay:   time.Millisecond,
		Retryable:   DefaultRetryPolicy().Retryable,
	}
	return NewClient(srv.URL, "test-app-id", policy)
}

func TestFetchHistoricalSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/historical/2025-11-10.json", r.URL.Path)
		assert.Equal(t, "test-app-id", r.URL.Query().Get("app_id"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"timestamp": 1762732800,
			"rates":     map[string]float64{"EUR": 0.92, "USD": 1.0},
		})
	}))
	defer srv.Close()

	day := time.Date(2025, 11, 10, 0, 0, 0, 0, time.UTC)
	snap, err := testClient(srv).FetchHistorical(context.Background(), day)
	require.NoError(t, err)
	assert.Equal(t, int64(1762732800), snap.Timestamp)
	assert.NotEmpty(t, snap.Rates)
}

func TestFetchHistoricalRetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"rates": map[string]float64{"EUR": 0.9}})
	}))
	defer srv.Close()

	_, err := testClient(srv).FetchHistorical(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchHistoricalDoesNotRetryClientErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := testClient(srv).FetchHistorical(context.Background(), time.Now())
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
}

func TestRetryPolicyDelayCapped(t *testing.T) {
	policy := RetryPolicy{BaseDelay: 2 * time.Second, MaxDelay: 30 * time.Second}

	assert.Equal(t, 2*time.Second, policy.delay(1))
	assert.Equal(t, 4*time.Second, policy.delay(2))
	assert.Equal(t, 16*time.Second, policy.delay(4))
	assert.Equal(t, 30*time.Second, policy.delay(5))

	// attempts high enough to overflow a naive shift still land on the cap
	for _, attempt := range []int{34, 63, 100} {
		d := policy.delay(attempt)
		assert.Positivef(t, int64(d), "attempt %d", attempt)
		assert.Equal(t, 30*time.Second, d)
	}

	// zero MaxDelay falls back to the built-in ceiling
	uncapped := RetryPolicy{BaseDelay: 2 * time.Second}
	assert.Equal(t, time.Minute, uncapped.delay(64))
}

func TestFetchHistoricalMalformedBodyNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		_, _ = w.Write([]byte("<html>not json</html>"))
	}))
	defer srv.Close()

	snap, err := testClient(srv).FetchHistorical(context.Background(), time.Now())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode snapshot")
	assert.Empty(t, snap.Rates)
	assert.Equal(t, int32(1), calls.Load())
}

func TestFetchHistoricalExhaustsAttempts(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	_, err := testClient(srv).FetchHistorical(context.Background(), time.Now())
	require.Error(t, err)
	assert.Equal(t, int32(3), calls.Load())
}

func TestFetchHistoricalCanceledContext(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := testClient(srv).FetchHistorical(ctx, time.Now())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
