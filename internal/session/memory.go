package session

import (
	"context"
	"sync"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/superst1/chatbot-whatsapp-citas/internal/models"
)

const memoryShards = 16

type memoryShard struct {
	mu       sync.Mutex
	sessions map[string]*models.Session
}

// MemoryStore keeps sessions in process memory, split across shards so
// unrelated users never contend on one lock.
type MemoryStore struct {
	shards [memoryShards]memoryShard
	ttl    time.Duration
	now    func() time.Time
}

// NewMemoryStore creates a store with the given TTL (DefaultTTL when <= 0).
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	m := &MemoryStore{ttl: ttl, now: time.Now}
	for i := range m.shards {
		m.shards[i].sessions = make(map[string]*models.Session)
	}
	return m
}

// WithClock replaces the time source, used by tests.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) shard(userID string) *memoryShard {
	return &m.shards[xxhash.Sum64String(userID)%memoryShards]
}

func (m *MemoryStore) Get(_ context.Context, userID string) (*models.Session, error) {
	if userID == "" {
		return nil, ErrEmptyUserID
	}
	now := m.now()
	sh := m.shard(userID)
	sh.mu.Lock()
	defer sh.mu.Unlock()

	s, ok := sh.sessions[userID]
	if !ok || s.Expired(now) {
		s = models.NewSession(userID)
		s.UpdatedAt = now
		sh.sessions[userID] = s
	}
	s.ExpiresAt = now.Add(m.ttl)
	return s.Clone(), nil
}

func (m *MemoryStore) Save(_ context.Context, s *models.Session) error {
	if s == nil || s.UserID == "" {
		return ErrEmptyUserID
	}
	now := m.now()
	stored := s.Clone()
	stored.UpdatedAt = now
	stored.ExpiresAt = now.Add(m.ttl)

	sh := m.shard(s.UserID)
	sh.mu.Lock()
	sh.sessions[s.UserID] = stored
	sh.mu.Unlock()
	return nil
}

func (m *MemoryStore) Clear(_ context.Context, userID string) error {
	sh := m.shard(userID)
	sh.mu.Lock()
	delete(sh.sessions, userID)
	sh.mu.Unlock()
	return nil
}

// Cleanup removes expired sessions and returns how many were dropped.
func (m *MemoryStore) Cleanup() int {
	now := m.now()
	removed := 0
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		for id, s := range sh.sessions {
			if s.Expired(now) {
				delete(sh.sessions, id)
				removed++
			}
		}
		sh.mu.Unlock()
	}
	return removed
}

// Len returns the number of stored sessions, expired ones included.
func (m *MemoryStore) Len() int {
	n := 0
	for i := range m.shards {
		sh := &m.shards[i]
		sh.mu.Lock()
		n += len(sh.sessions)
		sh.mu.Unlock()
	}
	return n
}
