package state

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
)

// SQLStore persists sessions in the user_sessions table. It works with
// both the postgres and sqlite drivers; queries are written with '?'
// placeholders and rebound for the connection's driver.
type SQLStore struct {
	db  *sqlx.DB
	now Clock

	getQ, putQ, sweepQ, lenQ, keysQ string
}

type sessionRow struct {
	Payload   string `db:"payload"`
	ExpiresAt int64  `db:"expires_at"`
}

// NewSQLStore wraps an open connection. The schema is created by the
// database package migrations.
func NewSQLStore(db *sqlx.DB, now Clock) *SQLStore {
	if now == nil {
		now = time.Now
	}
	return &SQLStore{
		db:  db,
		now: now,
		getQ: db.Rebind(`SELECT payload, expires_at FROM user_sessions WHERE session_key = ?`),
		putQ: db.Rebind(`INSERT INTO user_sessions (session_key, payload, expires_at) VALUES (?, ?, ?)
ON CONFLICT (session_key) DO UPDATE SET payload = excluded.payload, expires_at = excluded.expires_at`),
		sweepQ: db.Rebind(`DELETE FROM user_sessions WHERE expires_at <= ?`),
		lenQ:   db.Rebind(`SELECT COUNT(*) FROM user_sessions WHERE expires_at > ?`),
		keysQ:  db.Rebind(`SELECT session_key FROM user_sessions WHERE expires_at > ? ORDER BY session_key LIMIT ?`),
	}
}

// Get implements Store.
func (s *SQLStore) Get(ctx context.Context, key string) (Session, error) {
	var row sessionRow
	if err := s.db.GetContext(ctx, &row, s.getQ, key); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("select session %s: %w", key, err)
	}
	if row.ExpiresAt <= s.now().Unix() {
		return Session{}, ErrNotFound
	}
	var sess Session
	if err := json.Unmarshal([]byte(row.Payload), &sess); err != nil {
		return Session{}, fmt.Errorf("decode session %s: %w", key, err)
	}
	return sess, nil
}

// Put implements Store.
func (s *SQLStore) Put(ctx context.Context, key string, sess Session, ttl time.Duration) error {
	payload, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", key, err)
	}
	expires := s.now().Add(ttl).Unix()
	if _, err := s.db.ExecContext(ctx, s.putQ, key, string(payload), expires); err != nil {
		return fmt.Errorf("upsert session %s: %w", key, err)
	}
	return nil
}

// Sweep implements Store.
func (s *SQLStore) Sweep(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx, s.sweepQ, s.now().Unix())
	if err != nil {
		return 0, fmt.Errorf("sweep sessions: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, nil
	}
	return int(n), nil
}

// Len implements Store.
func (s *SQLStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, s.lenQ, s.now().Unix()); err != nil {
		return 0, fmt.Errorf("count sessions: %w", err)
	}
	return n, nil
}

// Keys implements Store.
func (s *SQLStore) Keys(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		limit = 1000
	}
	var keys []string
	if err := s.db.SelectContext(ctx, &keys, s.keysQ, s.now().Unix(), limit); err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	return keys, nil
}

// Kind implements Store.
func (s *SQLStore) Kind() string { return s.db.DriverName() }

// Close implements Store.
func (s *SQLStore) Close() error { return s.db.Close() }
