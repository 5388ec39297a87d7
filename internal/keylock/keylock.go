// Package keylock provides a table of per-key mutexes. Waiters on the same
// key are served in arrival order and entries are dropped once unused, so
// the table only holds keys that are locked or waited on.
package keylock

import (
	"context"
	"sync"

	"github.com/cespare/xxhash/v2"
)

const shardCount = 32

type entry struct {
	waiters []chan struct{}
}

type shard struct {
	mu      sync.Mutex
	entries map[string]*entry
}

// Table is a sharded set of FIFO mutexes keyed by string.
type Table struct {
	shards [shardCount]shard
}

func New() *Table {
	t := &Table{}
	for i := range t.shards {
		t.shards[i].entries = make(map[string]*entry)
	}
	return t
}

func (t *Table) shard(key string) *shard {
	return &t.shards[xxhash.Sum64String(key)%shardCount]
}

// Lock blocks until key is held by the caller or ctx is done.
// The returned function releases the key; calling it more than once is a no-op.
func (t *Table) Lock(ctx context.Context, key string) (func(), error) {
	s := t.shard(key)
	s.mu.Lock()
	e, held := s.entries[key]
	if !held {
		s.entries[key] = &entry{}
		s.mu.Unlock()
		return t.releaser(key), nil
	}
	ch := make(chan struct{})
	e.waiters = append(e.waiters, ch)
	s.mu.Unlock()

	select {
	case <-ch:
		return t.releaser(key), nil
	case <-ctx.Done():
	}

	s.mu.Lock()
	for i, w := range e.waiters {
		if w == ch {
			e.waiters = append(e.waiters[:i], e.waiters[i+1:]...)
			s.mu.Unlock()
			return nil, ctx.Err()
		}
	}
	s.mu.Unlock()
	// ownership was handed over while we gave up; pass it on
	t.release(key)
	return nil, ctx.Err()
}

// TryLock takes key only if nobody holds it.
func (t *Table) TryLock(key string) (func(), bool) {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, held := s.entries[key]; held {
		return nil, false
	}
	s.entries[key] = &entry{}
	return t.releaser(key), true
}

// Len returns the number of keys currently held.
func (t *Table) Len() int {
	n := 0
	for i := range t.shards {
		s := &t.shards[i]
		s.mu.Lock()
		n += len(s.entries)
		s.mu.Unlock()
	}
	return n
}

func (t *Table) releaser(key string) func() {
	var once sync.Once
	return func() {
		once.Do(func() { t.release(key) })
	}
}

func (t *Table) release(key string) {
	s := t.shard(key)
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	if !ok {
		return
	}
	if len(e.waiters) == 0 {
		delete(s.entries, key)
		return
	}
	next := e.waiters[0]
	e.waiters = e.waiters[1:]
	close(next)
}
