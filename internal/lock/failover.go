package lock

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
)

const (
	fallbackPrefix = "fallback:"
	recoveryDelay  = time.Minute
)

// FailoverLocker uses primary and switches to fallback while primary is
// failing. Recovery is probed once a minute.
type FailoverLocker struct {
	primary  Locker
	fallback Locker
	logger   *zerolog.Logger

	isDown    atomic.Bool
	mu        sync.Mutex
	lastCheck time.Time
}

func NewFailoverLocker(primary, fallback Locker, logger *zerolog.Logger) *FailoverLocker {
	return &FailoverLocker{primary: primary, fallback: fallback, logger: logger}
}

func (f *FailoverLocker) usePrimary() bool {
	if !f.isDown.Load() {
		return true
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return time.Since(f.lastCheck) > recoveryDelay
}

func (f *FailoverLocker) markDown(err error) {
	f.mu.Lock()
	f.lastCheck = time.Now()
	f.mu.Unlock()
	if !f.isDown.Swap(true) {
		f.logger.Error().Err(err).Msg("Primary locker is down, switching to fallback")
	}
}

func (f *FailoverLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if f.usePrimary() {
		token, err := f.primary.Acquire(ctx, key, ttl)
		if err == nil {
			if f.isDown.Swap(false) {
				f.logger.Info().Msg("Primary locker recovered")
			}
			return token, nil
		}
		if errors.Is(err, ErrTimeout) || errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return "", err
		}
		f.markDown(err)
	}

	token, err := f.fallback.Acquire(ctx, key, ttl)
	if err != nil {
		return "", err
	}
	return fallbackPrefix + token, nil
}

func (f *FailoverLocker) Release(ctx context.Context, key, token string) error {
	if t, ok := strings.CutPrefix(token, fallbackPrefix); ok {
		return f.fallback.Release(ctx, key, t)
	}
	if err := f.primary.Release(ctx, key, token); err != nil {
		// The lock expires by TTL.
		f.logger.Warn().Err(err).Str("key", key).Msg("Failed to release primary lock")
		return err
	}
	return nil
}
