package cache

import (
	"context"
	"encoding/json"
	"time"

	"soapstock/backend/internal/domain"
)

// Entry is the last successful remote read of one entity collection. It has
// no expiry: a stale entry is still served while the remote is unreachable.
type Entry struct {
	Value    json.RawMessage `json:"value"`
	StoredAt time.Time       `json:"storedAt"`
}

// Decode unmarshals the cached collection into dst.
func (e Entry) Decode(dst any) error {
	return json.Unmarshal(e.Value, dst)
}

type EntityCache interface {
	Get(ctx context.Context, entity domain.Entity) (*Entry, bool, error)
	Set(ctx context.Context, entity domain.Entity, value any) error
	Invalidate(ctx context.Context, entity domain.Entity) error
}

func cacheKey(entity domain.Entity) string {
	return "cache:" + string(entity)
}

func newEntry(value any, now time.Time) (*Entry, error) {
	payload, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return &Entry{Value: payload, StoredAt: now.UTC()}, nil
}

type NoopCache struct{}

func (NoopCache) Get(_ context.Context, _ domain.Entity) (*Entry, bool, error) {
	return nil, false, nil
}

func (NoopCache) Set(_ context.Context, _ domain.Entity, _ any) error {
	return nil
}

func (NoopCache) Invalidate(_ context.Context, _ domain.Entity) error {
	return nil
}
