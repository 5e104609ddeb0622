package cache

import (
	"context"
	"time"

	"soapstock/backend/internal/domain"
)

// KV is the slice of the local key/value store the cache needs.
type KV interface {
	Get(ctx context.Context, key string, dst any) (bool, error)
	Put(ctx context.Context, key string, value any) error
	Delete(ctx context.Context, keys ...string) error
}

// LocalCache keeps cache entries next to the offline collections so they
// survive restarts when no Redis is configured.
type LocalCache struct {
	kv  KV
	now func() time.Time
}

var _ EntityCache = (*LocalCache)(nil)

func NewLocalCache(kv KV) *LocalCache {
	return &LocalCache{kv: kv, now: time.Now}
}

func (c *LocalCache) Get(ctx context.Context, entity domain.Entity) (*Entry, bool, error) {
	var entry Entry
	found, err := c.kv.Get(ctx, cacheKey(entity), &entry)
	if err != nil || !found {
		return nil, false, err
	}
	return &entry, true, nil
}

func (c *LocalCache) Set(ctx context.Context, entity domain.Entity, value any) error {
	entry, err := newEntry(value, c.now())
	if err != nil {
		return err
	}
	return c.kv.Put(ctx, cacheKey(entity), entry)
}

func (c *LocalCache) Invalidate(ctx context.Context, entity domain.Entity) error {
	return c.kv.Delete(ctx, cacheKey(entity))
}
