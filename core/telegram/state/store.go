package state

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned by stores for absent or expired keys.
var ErrNotFound = errors.New("state: session not found")

// Store persists sessions by key with a time-to-live.
type Store interface {
	// Get returns the live session stored under key or ErrNotFound.
	Get(ctx context.Context, key string) (Session, error)
	// Put overwrites the session under key and resets its expiry.
	Put(ctx context.Context, key string, s Session, ttl time.Duration) error
	// Sweep removes expired entries and reports how many were dropped.
	Sweep(ctx context.Context) (int, error)
	// Len reports the number of live entries.
	Len(ctx context.Context) (int, error)
	// Keys lists up to limit live keys in ascending order.
	Keys(ctx context.Context, limit int) ([]string, error)
	// Kind names the backend for diagnostics.
	Kind() string
	Close() error
}

// Clock returns the current time; tests substitute a fixed clock.
type Clock func() time.Time
