// Package runlock serializes ingestion runs across processes. The upsert
// protocol shares one staging table, so two overlapping runs could truncate
// each other's loaded batch; the lock enforces at-most-one run at a time.
package runlock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// ErrHeld is returned when another run currently holds the lock.
var ErrHeld = errors.New("ingestion run already in progress")

const lockKey = "rates-ingest:run-lock"

// Lock is a redis SET NX mutex with a TTL safety valve so a crashed run
// cannot wedge the pipeline forever.
type Lock struct {
	redis redis.Cmdable
	ttl   time.Duration
}

// New creates a lock with the given TTL. The TTL should comfortably exceed
// the longest expected run.
func New(client redis.Cmdable, ttl time.Duration) *Lock {
	return &Lock{redis: client, ttl: ttl}
}

// Acquire takes the lock and returns a release function. Fails with ErrHeld
// when the lock is already taken.
func (l *Lock) Acquire(ctx context.Context) (func(), error) {
	token := uuid.NewString()
	ok, err := l.redis.SetNX(ctx, lockKey, token, l.ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("acquire run lock: %w", err)
	}
	if !ok {
		return nil, ErrHeld
	}

	release := func() {
		// Only delete the lock if we still own it; a slow run whose TTL
		// expired must not release a successor's lock.
		const script = `
			if redis.call("get", KEYS[1]) == ARGV[1] then
				return redis.call("del", KEYS[1])
			end
			return 0
		`
		if err := l.redis.Eval(context.Background(), script, []string{lockKey}, token).Err(); err != nil && err != redis.Nil {
			zap.L().Warn("failed to release run lock", zap.Error(err))
		}
	}
	return release, nil
}
