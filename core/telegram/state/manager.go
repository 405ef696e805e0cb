package state

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/quizbot/core/logger"
)

// DefaultTTL is how long a session survives without writes.
const DefaultTTL = time.Hour

// Manager owns session read-modify-write. A single mutex serializes
// updates so overlapping deliveries for the same user cannot interleave.
// The mutex is never held across network calls to Telegram.
type Manager struct {
	mu    sync.Mutex
	store Store
	ttl   time.Duration
	now   Clock
}

// NewManager builds a Manager over store. A zero ttl selects DefaultTTL.
func NewManager(store Store, ttl time.Duration, now Clock) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	if now == nil {
		now = time.Now
	}
	return &Manager{store: store, ttl: ttl, now: now}
}

// TTL returns the configured session time-to-live.
func (m *Manager) TTL() time.Duration { return m.ttl }

// Get returns the user's session, or a fresh idle session when none is
// stored, the stored one is stale, or the store cannot be read.
func (m *Manager) Get(ctx context.Context, userID int64) Session {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.load(ctx, userID)
}

func (m *Manager) load(ctx context.Context, userID int64) Session {
	now := m.now()
	sess, err := m.store.Get(ctx, Key(userID))
	switch {
	case err == nil:
		if !sess.State.Valid() || sess.Expired(now, m.ttl) {
			return NewSession(userID, now)
		}
		return sess
	case errors.Is(err, ErrNotFound):
	default:
		logger.STORE.WarnContext(ctx, "session read failed",
			slog.String("event", "session.read_failed"),
			slog.String("store", m.store.Kind()),
			slog.String("err", err.Error()),
		)
	}
	return NewSession(userID, now)
}

// Update loads the session, applies fn, stamps last activity and persists
// the result. When fn returns an error nothing is written and the
// unmodified session is returned together with that error.
func (m *Manager) Update(ctx context.Context, userID int64, fn func(*Session) error) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	current := m.load(ctx, userID)
	next := current
	if fn != nil {
		if err := fn(&next); err != nil {
			return current, err
		}
	}
	next.UserID = userID
	next.LastActivity = m.now()
	m.save(ctx, next)
	return next, nil
}

// Put stores s as-is apart from the activity timestamp.
func (m *Manager) Put(ctx context.Context, s Session) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.LastActivity = m.now()
	m.save(ctx, s)
}

func (m *Manager) save(ctx context.Context, s Session) {
	if err := m.store.Put(ctx, Key(s.UserID), s, m.ttl); err != nil {
		logger.STORE.WarnContext(ctx, "session write failed",
			slog.String("event", "session.write_failed"),
			slog.String("store", m.store.Kind()),
			slog.String("err", err.Error()),
		)
		return
	}
	logger.STORE.DebugContext(ctx, "session saved",
		slog.String("event", "session.saved"),
		slog.String("state", s.State.String()),
		slog.Bool("anonymous", s.Anonymous),
		slog.Int("quiz_count", s.QuizCount),
	)
}

// Len reports the number of live sessions; store failures count as zero.
func (m *Manager) Len(ctx context.Context) int {
	n, err := m.store.Len(ctx)
	if err != nil {
		return 0
	}
	return n
}

// Keys lists up to limit live session keys.
func (m *Manager) Keys(ctx context.Context, limit int) []string {
	keys, err := m.store.Keys(ctx, limit)
	if err != nil {
		return nil
	}
	return keys
}

// StoreKind names the active backend.
func (m *Manager) StoreKind() string { return m.store.Kind() }

// Persistent reports whether sessions survive a restart.
func (m *Manager) Persistent() bool {
	if fb, ok := m.store.(*FallbackStore); ok {
		return !fb.Degraded()
	}
	_, volatile := m.store.(*MemoryStore)
	return !volatile
}

// Store exposes the underlying store for the sweeper.
func (m *Manager) Store() Store { return m.store }
