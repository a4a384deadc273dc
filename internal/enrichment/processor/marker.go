package processor

import (
	"context"
	"sync"
	"time"

	platformredis "storecred/internal/platform/redis"
)

// Marker suppresses replays of a finalize event across processor instances.
// SetIfAbsent returns true when the caller is the first holder of the key.
type Marker interface {
	SetIfAbsent(ctx context.Context, key string) (bool, error)
	Clear(ctx context.Context, key string) error
}

// markerTTL caps how long a key pins out replays. Long enough to cover the
// broker's redelivery horizon, short enough that a lost Clear on a crashed
// instance does not block reprocessing forever.
const markerTTL = 24 * time.Hour

// RedisMarker backs the marker with SETNX.
type RedisMarker struct {
	client *platformredis.Client
}

func NewRedisMarker(client *platformredis.Client) *RedisMarker {
	return &RedisMarker{client: client}
}

func (m *RedisMarker) SetIfAbsent(ctx context.Context, key string) (bool, error) {
	return m.client.SetNX(ctx, key, "1", markerTTL).Result()
}

func (m *RedisMarker) Clear(ctx context.Context, key string) error {
	return m.client.Del(ctx, key).Err()
}

// InMemoryMarker is the single-process stand-in used in tests and when
// Redis is not configured alongside the in-process emitter.
type InMemoryMarker struct {
	mu   sync.Mutex
	seen map[string]struct{}
}

func NewInMemoryMarker() *InMemoryMarker {
	return &InMemoryMarker{seen: make(map[string]struct{})}
}

func (m *InMemoryMarker) SetIfAbsent(_ context.Context, key string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.seen[key]; ok {
		return false, nil
	}
	m.seen[key] = struct{}{}
	return true, nil
}

func (m *InMemoryMarker) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.seen, key)
	return nil
}
