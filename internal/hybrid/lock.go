package hybrid

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/bsm/redislock"
)

// StockLockKey guards the stock read-modify-write across processes.
const StockLockKey = "soapstock:stock"

// Locker serializes stock movements. Lock blocks until the lock is held or
// ctx ends and returns the function that releases it.
type Locker interface {
	Lock(ctx context.Context) (unlock func(), err error)
}

// MutexLocker is the in-process locker used when Redis is not configured.
type MutexLocker struct {
	sem chan struct{}
}

func NewMutexLocker() *MutexLocker {
	return &MutexLocker{sem: make(chan struct{}, 1)}
}

func (l *MutexLocker) Lock(ctx context.Context) (func(), error) {
	select {
	case l.sem <- struct{}{}:
		return func() { <-l.sem }, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// RedisLocker holds StockLockKey in Redis for at most ttl, retrying every
// 100ms until ctx ends.
type RedisLocker struct {
	client *redislock.Client
	key    string
	ttl    time.Duration
}

func NewRedisLocker(rdb redislock.RedisClient, ttl time.Duration) *RedisLocker {
	if ttl <= 0 {
		ttl = 10 * time.Second
	}
	return &RedisLocker{client: redislock.New(rdb), key: StockLockKey, ttl: ttl}
}

func (l *RedisLocker) Lock(ctx context.Context) (func(), error) {
	lock, err := l.client.Obtain(ctx, l.key, l.ttl, &redislock.Options{
		RetryStrategy: redislock.LinearBackoff(100 * time.Millisecond),
	})
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, fmt.Errorf("stock lock busy: %w", err)
	}
	if err != nil {
		return nil, fmt.Errorf("obtain stock lock: %w", err)
	}
	return func() {
		// a fresh context: the caller's may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = lock.Release(releaseCtx)
	}, nil
}
