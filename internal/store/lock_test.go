package store

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStripedLocker_MutualExclusion(t *testing.T) {
	l := NewStripedLocker(0)

	var (
		wg      sync.WaitGroup
		inside  atomic.Int32
		maxSeen atomic.Int32
	)
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := l.Lock(context.Background(), "same-key")
			require.NoError(t, err)
			n := inside.Add(1)
			if n > maxSeen.Load() {
				maxSeen.Store(n)
			}
			time.Sleep(time.Millisecond)
			inside.Add(-1)
			unlock()
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), maxSeen.Load())
}

func TestStripedLocker_ContextCancelled(t *testing.T) {
	l := NewStripedLocker(1)

	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	defer unlock()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	_, err = l.Lock(ctx, "b")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestStripedLocker_DoubleUnlockIsSafe(t *testing.T) {
	l := NewStripedLocker(1)
	unlock, err := l.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock()
	unlock()

	unlock, err = l.Lock(context.Background(), "a")
	require.NoError(t, err)
	unlock()
}

func setupRedisLocker(t *testing.T, cfg RedisLockConfig) (*RedisLocker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() }) //nolint:errcheck
	return NewRedisLocker(client, cfg), mr
}

func TestRedisLocker_LockAndRelease(t *testing.T) {
	l, mr := setupRedisLocker(t, RedisLockConfig{})

	unlock, err := l.Lock(context.Background(), "https://x.com/a")
	require.NoError(t, err)
	assert.True(t, mr.Exists("leads:lock:https://x.com/a"))

	unlock()
	assert.False(t, mr.Exists("leads:lock:https://x.com/a"))
}

func TestRedisLocker_ContendedLockGivesUp(t *testing.T) {
	l, _ := setupRedisLocker(t, RedisLockConfig{RetryDelay: time.Millisecond, MaxRetries: 3})

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	defer unlock()

	_, err = l.Lock(context.Background(), "k")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrLockNotAcquired))
}

func TestRedisLocker_WaitsForRelease(t *testing.T) {
	l, _ := setupRedisLocker(t, RedisLockConfig{RetryDelay: 5 * time.Millisecond, MaxRetries: 200})

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	go func() {
		time.Sleep(20 * time.Millisecond)
		unlock()
	}()

	unlock2, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)
	unlock2()
}

func TestRedisLocker_ExpiredLockIsNotStolenBack(t *testing.T) {
	l, mr := setupRedisLocker(t, RedisLockConfig{TTL: time.Second})

	unlock, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	unlock2, err := l.Lock(context.Background(), "k")
	require.NoError(t, err)

	// The first holder's release must not delete the second holder's key.
	unlock()
	assert.True(t, mr.Exists("leads:lock:k"))
	unlock2()
	assert.False(t, mr.Exists("leads:lock:k"))
}

func TestRedisLocker_RedisDownIsUnavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1, DialTimeout: 100 * time.Millisecond})
	t.Cleanup(func() { client.Close() }) //nolint:errcheck
	l := NewRedisLocker(client, RedisLockConfig{})
	mr.Close()

	_, err := l.Lock(context.Background(), "k")
	require.Error(t, err)
	assert.True(t, eris.Is(err, ErrUnavailable))
	assert.False(t, eris.Is(err, ErrLockNotAcquired))
}
