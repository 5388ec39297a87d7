package worker

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// DefaultDedupeTTL covers the redelivery window of the webhook providers.
const DefaultDedupeTTL = 10 * time.Minute

// Deduper remembers provider message ids. Seen reports true for an id
// that was already recorded within the TTL, and records it otherwise.
type Deduper interface {
	Seen(ctx context.Context, id string) (bool, error)
}

// MemoryDeduper is a process-local Deduper.
type MemoryDeduper struct {
	mu    sync.Mutex
	ttl   time.Duration
	now   func() time.Time
	ids   map[string]time.Time
	calls int
}

func NewMemoryDeduper(ttl time.Duration) *MemoryDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &MemoryDeduper{ttl: ttl, now: time.Now, ids: make(map[string]time.Time)}
}

func (m *MemoryDeduper) Seen(_ context.Context, id string) (bool, error) {
	now := m.now()
	m.mu.Lock()
	defer m.mu.Unlock()

	m.calls++
	if m.calls%256 == 0 {
		for k, exp := range m.ids {
			if !now.Before(exp) {
				delete(m.ids, k)
			}
		}
	}
	if exp, ok := m.ids[id]; ok && now.Before(exp) {
		return true, nil
	}
	m.ids[id] = now.Add(m.ttl)
	return false, nil
}

// RedisDeduper shares seen ids between instances with SET NX.
type RedisDeduper struct {
	client *redis.Client
	ttl    time.Duration
	prefix string
}

func NewRedisDeduper(client *redis.Client, ttl time.Duration) *RedisDeduper {
	if ttl <= 0 {
		ttl = DefaultDedupeTTL
	}
	return &RedisDeduper{client: client, ttl: ttl, prefix: "msgseen:"}
}

func (r *RedisDeduper) Seen(ctx context.Context, id string) (bool, error) {
	created, err := r.client.SetNX(ctx, r.prefix+id, 1, r.ttl).Result()
	if err != nil {
		return false, err
	}
	return !created, nil
}
