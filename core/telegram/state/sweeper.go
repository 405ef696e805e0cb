package state

import (
	"context"
	"log/slog"
	"time"

	"github.com/m3rciful/quizbot/core/logger"
)

// DefaultSweepInterval is how often expired sessions are pruned.
const DefaultSweepInterval = 5 * time.Minute

// Sweeper periodically removes expired sessions from a Store.
type Sweeper struct {
	Store    Store
	Interval time.Duration
}

// Run sweeps every Interval until ctx is cancelled.
func (s Sweeper) Run(ctx context.Context) error {
	interval := s.Interval
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			s.SweepOnce(ctx)
		}
	}
}

// SweepOnce runs a single sweep and logs the outcome.
func (s Sweeper) SweepOnce(ctx context.Context) int {
	start := time.Now()
	n, err := s.Store.Sweep(ctx)
	if err != nil {
		logger.STORE.WarnContext(ctx, "sweep failed",
			slog.String("event", "session.sweep"),
			slog.String("status", "fail"),
			slog.String("store", s.Store.Kind()),
			slog.String("err", err.Error()),
		)
		return 0
	}
	level := slog.LevelDebug
	if n > 0 {
		level = slog.LevelInfo
	}
	logger.STORE.Log(ctx, level, "sessions swept",
		slog.String("event", "session.sweep"),
		slog.String("status", "ok"),
		slog.String("store", s.Store.Kind()),
		slog.Int("swept", n),
		slog.Duration("duration", logger.Took(start)),
	)
	return n
}
