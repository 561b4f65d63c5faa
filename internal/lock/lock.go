// Package lock provides advisory locks that narrow check-then-write races
// between replicas. Store constraints remain the source of truth.
package lock

import (
	"context"
	"errors"
	"time"
)

// ErrTimeout is returned when a lock could not be taken before the wait expired.
var ErrTimeout = errors.New("lock wait timeout")

// Locker takes and releases named locks. Acquire returns a token that must be
// passed to Release.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (string, error)
	Release(ctx context.Context, key, token string) error
}

const retryInterval = 25 * time.Millisecond

// waitFor retries try until it succeeds, ctx ends or wait elapses.
func waitFor(ctx context.Context, wait time.Duration, try func() (bool, error)) error {
	deadline := time.Now().Add(wait)
	for {
		ok, err := try()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}
		if time.Now().After(deadline) {
			return ErrTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(retryInterval):
		}
	}
}
