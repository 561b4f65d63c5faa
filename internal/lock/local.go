package lock

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

type localEntry struct {
	token   string
	expires time.Time
}

// LocalLocker is an in-process Locker for single-replica deployments and as
// the failover target when redis is unreachable.
type LocalLocker struct {
	mu    sync.Mutex
	locks map[string]localEntry
	wait  time.Duration
}

func NewLocalLocker(wait time.Duration) *LocalLocker {
	return &LocalLocker{locks: make(map[string]localEntry), wait: wait}
}

func (l *LocalLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	err := waitFor(ctx, l.wait, func() (bool, error) {
		l.mu.Lock()
		defer l.mu.Unlock()
		now := time.Now()
		if cur, ok := l.locks[key]; ok && now.Before(cur.expires) {
			return false, nil
		}
		l.locks[key] = localEntry{token: token, expires: now.Add(ttl)}
		return true, nil
	})
	if err != nil {
		return "", err
	}
	return token, nil
}

func (l *LocalLocker) Release(_ context.Context, key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if cur, ok := l.locks[key]; ok && cur.token == token {
		delete(l.locks, key)
	}
	return nil
}
