package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	redis "github.com/redis/go-redis/v9"

	"soapstock/backend/internal/domain"
)

const redisNamespace = "soapstock"

type cmdable interface {
	Ping(context.Context) *redis.StatusCmd
	Get(context.Context, string) *redis.StringCmd
	Set(context.Context, string, any, time.Duration) *redis.StatusCmd
	Del(context.Context, ...string) *redis.IntCmd
}

type RedisCache struct {
	store cmdable
	raw   *redis.Client
	now   func() time.Time
}

var _ EntityCache = (*RedisCache)(nil)

func NewRedisCache(addr string, password string, db int) *RedisCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisCache{store: client, raw: client, now: time.Now}
}

// Client exposes the underlying connection so the stock lock can share it.
func (c *RedisCache) Client() *redis.Client {
	return c.raw
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.store.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	if c.raw == nil {
		return nil
	}
	return c.raw.Close()
}

func (c *RedisCache) key(entity domain.Entity) string {
	return redisNamespace + ":" + cacheKey(entity)
}

func (c *RedisCache) Get(ctx context.Context, entity domain.Entity) (*Entry, bool, error) {
	val, err := c.store.Get(ctx, c.key(entity)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}

	var entry Entry
	if err := json.Unmarshal([]byte(val), &entry); err != nil {
		return nil, false, err
	}
	return &entry, true, nil
}

func (c *RedisCache) Set(ctx context.Context, entity domain.Entity, value any) error {
	entry, err := newEntry(value, c.now())
	if err != nil {
		return err
	}
	payload, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return c.store.Set(ctx, c.key(entity), string(payload), 0).Err()
}

func (c *RedisCache) Invalidate(ctx context.Context, entity domain.Entity) error {
	return c.store.Del(ctx, c.key(entity)).Err()
}
