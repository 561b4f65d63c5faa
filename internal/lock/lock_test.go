package lock

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func newRedisLocker(t *testing.T, wait time.Duration) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewRedisLocker(client, wait), mr
}

func TestRedisLocker(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLocker(t, 50*time.Millisecond)

	token, err := l.Acquire(ctx, "date:2024-04-05", time.Second)
	require.NoError(t, err)
	assert.True(t, mr.Exists(keyPrefix+"date:2024-04-05"))

	_, err = l.Acquire(ctx, "date:2024-04-05", time.Second)
	assert.ErrorIs(t, err, ErrTimeout)

	// a foreign token does not release the lock
	require.NoError(t, l.Release(ctx, "date:2024-04-05", "other"))
	assert.True(t, mr.Exists(keyPrefix+"date:2024-04-05"))

	require.NoError(t, l.Release(ctx, "date:2024-04-05", token))
	assert.False(t, mr.Exists(keyPrefix+"date:2024-04-05"))

	_, err = l.Acquire(ctx, "date:2024-04-05", time.Second)
	assert.NoError(t, err)
}

func TestRedisLocker_Expiry(t *testing.T) {
	ctx := context.Background()
	l, mr := newRedisLocker(t, 0)

	_, err := l.Acquire(ctx, "facility:sakura", time.Second)
	require.NoError(t, err)
	mr.FastForward(2 * time.Second)

	_, err = l.Acquire(ctx, "facility:sakura", time.Second)
	assert.NoError(t, err)
}

func TestLocalLocker(t *testing.T) {
	ctx := context.Background()
	l := NewLocalLocker(30 * time.Millisecond)

	token, err := l.Acquire(ctx, "booking:sakura_2024-04-05", time.Minute)
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "booking:sakura_2024-04-05", time.Minute)
	assert.ErrorIs(t, err, ErrTimeout)

	require.NoError(t, l.Release(ctx, "booking:sakura_2024-04-05", token))
	_, err = l.Acquire(ctx, "booking:sakura_2024-04-05", time.Minute)
	assert.NoError(t, err)

	_, err = l.Acquire(ctx, "short", time.Millisecond)
	require.NoError(t, err)
	time.Sleep(5 * time.Millisecond)
	_, err = l.Acquire(ctx, "short", time.Minute)
	assert.NoError(t, err, "expired lock is taken over")
}

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	args := m.Called(ctx, key, ttl)
	return args.String(0), args.Error(1)
}

func (m *mockLocker) Release(ctx context.Context, key, token string) error {
	args := m.Called(ctx, key, token)
	return args.Error(0)
}

func TestFailoverLocker(t *testing.T) {
	primary := new(mockLocker)
	fallback := new(mockLocker)
	logger := zerolog.New(io.Discard)
	l := NewFailoverLocker(primary, fallback, &logger)
	ctx := context.Background()

	t.Run("PrimarySuccess", func(t *testing.T) {
		primary.On("Acquire", ctx, "k1", time.Second).Return("p1", nil).Once()
		primary.On("Release", ctx, "k1", "p1").Return(nil).Once()

		token, err := l.Acquire(ctx, "k1", time.Second)
		require.NoError(t, err)
		assert.Equal(t, "p1", token)
		require.NoError(t, l.Release(ctx, "k1", token))
		primary.AssertExpectations(t)
	})

	t.Run("ContentionIsNotFailure", func(t *testing.T) {
		primary.On("Acquire", ctx, "k2", time.Second).Return("", ErrTimeout).Once()

		_, err := l.Acquire(ctx, "k2", time.Second)
		assert.ErrorIs(t, err, ErrTimeout)
		assert.False(t, l.isDown.Load())
	})

	t.Run("PrimaryFailFallbackSuccess", func(t *testing.T) {
		primary.On("Acquire", ctx, "k3", time.Second).Return("", errors.New("connection refused")).Once()
		fallback.On("Acquire", ctx, "k3", time.Second).Return("f3", nil).Once()
		fallback.On("Release", ctx, "k3", "f3").Return(nil).Once()

		token, err := l.Acquire(ctx, "k3", time.Second)
		require.NoError(t, err)
		assert.True(t, l.isDown.Load())
		require.NoError(t, l.Release(ctx, "k3", token))
		fallback.AssertExpectations(t)
	})

	t.Run("StaysOnFallbackWhileDown", func(t *testing.T) {
		fallback.On("Acquire", ctx, "k4", time.Second).Return("f4", nil).Once()

		_, err := l.Acquire(ctx, "k4", time.Second)
		require.NoError(t, err)
		primary.AssertNotCalled(t, "Acquire", ctx, "k4", time.Second)
	})

	t.Run("RecoveryAttempt", func(t *testing.T) {
		l.isDown.Store(true)
		l.lastCheck = time.Now().Add(-2 * time.Minute)
		primary.On("Acquire", ctx, "k5", time.Second).Return("p5", nil).Once()

		token, err := l.Acquire(ctx, "k5", time.Second)
		require.NoError(t, err)
		assert.Equal(t, "p5", token)
		assert.False(t, l.isDown.Load())
		primary.AssertExpectations(t)
	})
}
