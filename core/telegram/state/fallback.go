package state

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/m3rciful/quizbot/core/logger"
)

// FallbackStore fronts a durable Store with a MemoryStore. Durable
// failures never reach the caller: writes land in memory instead and
// reads fall back to memory. Entries written to memory during an outage
// shadow the durable copy until the next successful durable write.
type FallbackStore struct {
	primary Store
	memory  *MemoryStore

	mu       sync.Mutex
	degraded bool
}

// NewFallbackStore wraps primary with memory as the volatile fallback.
func NewFallbackStore(primary Store, memory *MemoryStore) *FallbackStore {
	return &FallbackStore{primary: primary, memory: memory}
}

// Get implements Store.
func (f *FallbackStore) Get(ctx context.Context, key string) (Session, error) {
	if sess, err := f.memory.Get(ctx, key); err == nil {
		return sess, nil
	}
	sess, err := f.primary.Get(ctx, key)
	switch {
	case err == nil:
		return sess, nil
	case errors.Is(err, ErrNotFound):
		return Session{}, ErrNotFound
	default:
		f.markDegraded(ctx, "get", err)
		return Session{}, ErrNotFound
	}
}

// Put implements Store.
func (f *FallbackStore) Put(ctx context.Context, key string, s Session, ttl time.Duration) error {
	if err := f.primary.Put(ctx, key, s, ttl); err != nil {
		f.markDegraded(ctx, "put", err)
		return f.memory.Put(ctx, key, s, ttl)
	}
	f.memory.Delete(key)
	f.markRecovered(ctx)
	return nil
}

// Sweep implements Store.
func (f *FallbackStore) Sweep(ctx context.Context) (int, error) {
	n, _ := f.memory.Sweep(ctx)
	m, err := f.primary.Sweep(ctx)
	if err != nil {
		f.markDegraded(ctx, "sweep", err)
		return n, nil
	}
	return n + m, nil
}

// Len implements Store. The durable count comes from the backend itself;
// memory entries are added unless they shadow a durable row.
func (f *FallbackStore) Len(ctx context.Context) (int, error) {
	mem, _ := f.memory.Keys(ctx, 0)
	n, err := f.primary.Len(ctx)
	if err != nil {
		f.markDegraded(ctx, "len", err)
		return len(mem), nil
	}
	for _, k := range mem {
		if _, err := f.primary.Get(ctx, k); errors.Is(err, ErrNotFound) {
			n++
		}
	}
	return n, nil
}

// Keys implements Store. Keys present in both backends are listed once.
func (f *FallbackStore) Keys(ctx context.Context, limit int) ([]string, error) {
	mem, _ := f.memory.Keys(ctx, 0)
	seen := make(map[string]struct{}, len(mem))
	keys := append([]string(nil), mem...)
	for _, k := range mem {
		seen[k] = struct{}{}
	}
	durable, err := f.primary.Keys(ctx, 0)
	if err != nil {
		f.markDegraded(ctx, "keys", err)
	}
	for _, k := range durable {
		if _, dup := seen[k]; !dup {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

// Kind implements Store.
func (f *FallbackStore) Kind() string { return f.primary.Kind() }

// Degraded reports whether the durable backend is currently failing.
func (f *FallbackStore) Degraded() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.degraded
}

// Close implements Store.
func (f *FallbackStore) Close() error {
	return errors.Join(f.primary.Close(), f.memory.Close())
}

// markDegraded logs the first failure of an outage only.
func (f *FallbackStore) markDegraded(ctx context.Context, op string, err error) {
	f.mu.Lock()
	first := !f.degraded
	f.degraded = true
	f.mu.Unlock()
	if !first {
		return
	}
	logger.STORE.WarnContext(ctx, "durable store unavailable, using memory",
		slog.String("event", "store.degraded"),
		slog.String("store", f.primary.Kind()),
		slog.String("op", op),
		slog.String("err", err.Error()),
	)
}

func (f *FallbackStore) markRecovered(ctx context.Context) {
	f.mu.Lock()
	was := f.degraded
	f.degraded = false
	f.mu.Unlock()
	if was {
		logger.STORE.InfoContext(ctx, "durable store recovered",
			slog.String("event", "store.recovered"),
			slog.String("store", f.primary.Kind()),
		)
	}
}
