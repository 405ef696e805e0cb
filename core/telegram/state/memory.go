package state

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/maypok86/otter"
)

// DefaultMaxSessions bounds the in-process store.
const DefaultMaxSessions = 500

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// MemoryStore is a bounded in-process Store backed by an otter cache.
// The cache evicts by size and by its own TTL; expiresAt is kept per
// entry so reads and Sweep honor the caller-provided ttl and clock.
type MemoryStore struct {
	mu    sync.Mutex
	cache otter.Cache[string, memoryEntry]
	now   Clock
}

// NewMemoryStore builds a store holding at most capacity sessions, each
// retained by the cache for at most ttl.
func NewMemoryStore(capacity int, ttl time.Duration, now Clock) (*MemoryStore, error) {
	if capacity <= 0 {
		capacity = DefaultMaxSessions
	}
	if ttl <= 0 {
		ttl = time.Hour
	}
	if now == nil {
		now = time.Now
	}
	c, err := otter.MustBuilder[string, memoryEntry](capacity).WithTTL(ttl).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create session cache with capacity %d: %w", capacity, err)
	}
	return &MemoryStore{cache: c, now: now}, nil
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, key string) (Session, error) {
	e, ok := m.cache.Get(key)
	if !ok || !m.now().Before(e.expiresAt) {
		return Session{}, ErrNotFound
	}
	return e.session, nil
}

// Put implements Store.
func (m *MemoryStore) Put(_ context.Context, key string, s Session, ttl time.Duration) error {
	if !m.cache.Set(key, memoryEntry{session: s, expiresAt: m.now().Add(ttl)}) {
		return fmt.Errorf("session cache rejected %s", key)
	}
	return nil
}

// Delete drops key if present.
func (m *MemoryStore) Delete(key string) {
	m.cache.Delete(key)
}

// Has reports whether a live entry exists for key.
func (m *MemoryStore) Has(key string) bool {
	_, err := m.Get(context.Background(), key)
	return err == nil
}

// Sweep implements Store.
func (m *MemoryStore) Sweep(_ context.Context) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	var expired []string
	m.cache.Range(func(key string, e memoryEntry) bool {
		if !now.Before(e.expiresAt) {
			expired = append(expired, key)
		}
		return true
	})
	for _, key := range expired {
		m.cache.Delete(key)
	}
	return len(expired), nil
}

// Len implements Store.
func (m *MemoryStore) Len(_ context.Context) (int, error) {
	now := m.now()
	n := 0
	m.cache.Range(func(_ string, e memoryEntry) bool {
		if now.Before(e.expiresAt) {
			n++
		}
		return true
	})
	return n, nil
}

// Keys implements Store.
func (m *MemoryStore) Keys(_ context.Context, limit int) ([]string, error) {
	now := m.now()
	keys := make([]string, 0, m.cache.Size())
	m.cache.Range(func(key string, e memoryEntry) bool {
		if now.Before(e.expiresAt) {
			keys = append(keys, key)
		}
		return true
	})
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

// Kind implements Store.
func (m *MemoryStore) Kind() string { return "memory" }

// Close implements Store.
func (m *MemoryStore) Close() error {
	m.cache.Close()
	return nil
}
