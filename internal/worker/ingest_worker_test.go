package worker

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/ayo6706/rates-ingest/internal/runlock"
	"github.com/ayo6706/rates-ingest/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingRunner struct {
	runs atomic.Int32
}

func (c *countingRunner) Run(context.Context) (*service.IngestReport, error) {
	c.runs.Add(1)
	return &service.IngestReport{Status: "success"}, nil
}

func testRunLock(t *testing.T) *runlock.Lock {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return runlock.New(client, time.Minute)
}

func TestWorkerRunsImmediatelyAndStops(t *testing.T) {
	runner := &countingRunner{}
	w := NewIngestWorker(runner, testRunLock(t)).WithInterval(time.Hour)

	stop := w.Run(context.Background())
	require.Eventually(t, func() bool { return runner.runs.Load() == 1 }, time.Second, 10*time.Millisecond)
	stop()
	stop() // idempotent
}

func TestWorkerSkipsTickWhenLockHeld(t *testing.T) {
	runner := &countingRunner{}
	lock := testRunLock(t)
	release, err := lock.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	w := NewIngestWorker(runner, lock).WithInterval(time.Hour)
	w.runOnce(context.Background())
	assert.Zero(t, runner.runs.Load())
}
