package runlock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLock(t *testing.T) *Lock {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, time.Minute)
}

func TestAcquireAndRelease(t *testing.T) {
	lock := testLock(t)
	ctx := context.Background()

	release, err := lock.Acquire(ctx)
	require.NoError(t, err)

	_, err = lock.Acquire(ctx)
	assert.ErrorIs(t, err, ErrHeld)

	release()

	release2, err := lock.Acquire(ctx)
	require.NoError(t, err)
	release2()
}

func TestReleaseIsOwnershipChecked(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	lock := New(client, time.Minute)
	ctx := context.Background()

	release, err := lock.Acquire(ctx)
	require.NoError(t, err)

	// Simulate TTL expiry followed by another process taking the lock.
	mr.FastForward(2 * time.Minute)
	release2, err := lock.Acquire(ctx)
	require.NoError(t, err)

	// The stale release must not free the new holder's lock.
	release()
	_, err = lock.Acquire(ctx)
	assert.ErrorIs(t, err, ErrHeld)

	release2()
}
