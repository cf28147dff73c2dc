package store

import (
	"context"
	"errors"
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// ErrLockNotAcquired is returned when a key lock could not be taken before
// the retry budget ran out.
var ErrLockNotAcquired = eris.New("store: lock not acquired")

// KeyLocker serializes work on a single identity key. The returned function
// releases the lock and is safe to call once.
type KeyLocker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

const defaultStripes = 64

// StripedLocker is an in-process KeyLocker. Keys hash onto a fixed set of
// stripes, so unrelated keys may occasionally wait on each other.
type StripedLocker struct {
	stripes []chan struct{}
}

// NewStripedLocker creates a locker with n stripes; n <= 0 uses 64.
func NewStripedLocker(n int) *StripedLocker {
	if n <= 0 {
		n = defaultStripes
	}
	l := &StripedLocker{stripes: make([]chan struct{}, n)}
	for i := range l.stripes {
		l.stripes[i] = make(chan struct{}, 1)
	}
	return l
}

// Lock implements KeyLocker.
func (l *StripedLocker) Lock(ctx context.Context, key string) (func(), error) {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	stripe := l.stripes[h.Sum32()%uint32(len(l.stripes))]

	select {
	case stripe <- struct{}{}:
	case <-ctx.Done():
		return nil, eris.Wrapf(ctx.Err(), "store: lock %s", key)
	}

	released := false
	return func() {
		if !released {
			released = true
			<-stripe
		}
	}, nil
}

const unlockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end`

// RedisLockConfig holds configuration for RedisLocker.
type RedisLockConfig struct {
	Prefix     string
	TTL        time.Duration
	RetryDelay time.Duration
	MaxRetries int
}

// RedisLocker is a KeyLocker shared across processes. Each lock is a
// SET NX key holding a random token; release deletes the key only while the
// token still matches.
type RedisLocker struct {
	client *redis.Client
	cfg    RedisLockConfig
	unlock *redis.Script
}

// NewRedisLocker creates a RedisLocker. Zero config fields take defaults:
// prefix "leads:lock:", TTL 30s, 100ms retry delay, 50 retries.
func NewRedisLocker(client *redis.Client, cfg RedisLockConfig) *RedisLocker {
	if cfg.Prefix == "" {
		cfg.Prefix = "leads:lock:"
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 100 * time.Millisecond
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 50
	}
	return &RedisLocker{client: client, cfg: cfg, unlock: redis.NewScript(unlockScript)}
}

// Lock implements KeyLocker.
func (l *RedisLocker) Lock(ctx context.Context, key string) (func(), error) {
	redisKey := l.cfg.Prefix + key
	token := uuid.New().String()

	for i := 0; i < l.cfg.MaxRetries; i++ {
		ok, err := l.client.SetNX(ctx, redisKey, token, l.cfg.TTL).Result()
		if err != nil {
			if ctx.Err() != nil {
				return nil, eris.Wrapf(ctx.Err(), "store: lock %s", key)
			}
			// The lock guards every store write, so losing Redis is a store outage.
			return nil, eris.Wrapf(ErrUnavailable, "store: acquire lock %s: %v", key, err)
		}
		if ok {
			return func() { l.release(redisKey, token) }, nil
		}

		select {
		case <-ctx.Done():
			return nil, eris.Wrapf(ctx.Err(), "store: lock %s", key)
		case <-time.After(l.cfg.RetryDelay):
		}
	}
	return nil, eris.Wrapf(ErrLockNotAcquired, "store: lock %s", key)
}

func (l *RedisLocker) release(redisKey, token string) {
	// Release even when the caller's context is already cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	n, err := l.unlock.Run(ctx, l.client, []string{redisKey}, token).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		zap.L().Warn("store: release lock failed", zap.String("key", redisKey), zap.Error(err))
		return
	}
	if n == 0 {
		zap.L().Warn("store: lock expired before release", zap.String("key", redisKey))
	}
}
