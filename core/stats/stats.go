// Package stats keeps process-wide bot counters. Increments are atomic;
// readers get a point-in-time Snapshot.
package stats

import (
	"fmt"
	"sync/atomic"
	"time"
)

// Stats is owned by the application and injected into every component
// that records activity.
type Stats struct {
	startedAt time.Time

	totalRequests    atomic.Int64
	successfulPolls  atomic.Int64
	errors           atomic.Int64
	apiCalls         atomic.Int64
	rateLimitHits    atomic.Int64
	keepAlivePings   atomic.Int64
	recoveryAttempts atomic.Int64
	lastActivity     atomic.Int64 // unix nanoseconds
}

// New returns counters starting at now.
func New(now time.Time) *Stats {
	s := &Stats{startedAt: now}
	s.lastActivity.Store(now.UnixNano())
	return s
}

// IncRequests counts one processed update.
func (s *Stats) IncRequests() { s.totalRequests.Add(1) }

// IncPolls counts one delivered quiz poll.
func (s *Stats) IncPolls() { s.successfulPolls.Add(1) }

// IncErrors counts one failed update or send.
func (s *Stats) IncErrors() { s.errors.Add(1) }

// APICall counts one outbound Bot API call.
func (s *Stats) APICall() { s.apiCalls.Add(1) }

// RateLimited counts one HTTP 429 answer.
func (s *Stats) RateLimited() { s.rateLimitHits.Add(1) }

// KeepAlivePing counts one successful self-ping.
func (s *Stats) KeepAlivePing() { s.keepAlivePings.Add(1) }

// RecoveryAttempt counts one circuit breaker probe.
func (s *Stats) RecoveryAttempt() { s.recoveryAttempts.Add(1) }

// Touch records activity at t.
func (s *Stats) Touch(t time.Time) { s.lastActivity.Store(t.UnixNano()) }

// LastActivity returns the time of the last recorded activity.
func (s *Stats) LastActivity() time.Time {
	return time.Unix(0, s.lastActivity.Load())
}

// StartedAt returns the process start time.
func (s *Stats) StartedAt() time.Time { return s.startedAt }

// Snapshot is a copy of the counters at one instant.
type Snapshot struct {
	StartedAt        time.Time
	LastActivity     time.Time
	Uptime           time.Duration
	TotalRequests    int64
	SuccessfulPolls  int64
	Errors           int64
	APICalls         int64
	RateLimitHits    int64
	KeepAlivePings   int64
	RecoveryAttempts int64
}

// Snapshot reads all counters.
func (s *Stats) Snapshot(now time.Time) Snapshot {
	return Snapshot{
		StartedAt:        s.startedAt,
		LastActivity:     s.LastActivity(),
		Uptime:           now.Sub(s.startedAt),
		TotalRequests:    s.totalRequests.Load(),
		SuccessfulPolls:  s.successfulPolls.Load(),
		Errors:           s.errors.Load(),
		APICalls:         s.apiCalls.Load(),
		RateLimitHits:    s.rateLimitHits.Load(),
		KeepAlivePings:   s.keepAlivePings.Load(),
		RecoveryAttempts: s.recoveryAttempts.Load(),
	}
}

// HumanUptime formats d as "<h>h <m>m".
func HumanUptime(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%dh %dm", int64(d/time.Hour), int64((d%time.Hour)/time.Minute))
}
