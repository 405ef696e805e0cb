package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/maypok86/otter"
	"golang.org/x/time/rate"

	"github.com/m3rciful/quizbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// RateLimitOptions configures behaviour of the rate limit middleware.
type RateLimitOptions struct {
	// Interval is the minimum gap between two updates of one user.
	Interval time.Duration
	// Exclude lists update kinds that bypass the limiter.
	Exclude map[string]struct{}
	// MaxUsers bounds the number of tracked limiters.
	MaxUsers  int
	OnLimited HandlerFunc
}

// RateLimit returns a middleware that drops updates arriving faster than
// opts.Interval from the same user. A zero interval disables it.
func RateLimit(opts RateLimitOptions) (Middleware, error) {
	if opts.Interval <= 0 {
		return func(next HandlerFunc) HandlerFunc { return next }, nil
	}
	if opts.MaxUsers <= 0 {
		opts.MaxUsers = 10_000
	}
	idle := 10 * opts.Interval
	if idle < time.Minute {
		idle = time.Minute
	}
	limiters, err := otter.MustBuilder[int64, *rate.Limiter](opts.MaxUsers).WithTTL(idle).Build()
	if err != nil {
		return nil, fmt.Errorf("failed to create rate limiter cache: %w", err)
	}

	limiterFor := func(userID int64) *rate.Limiter {
		if l, ok := limiters.Get(userID); ok {
			return l
		}
		l := rate.NewLimiter(rate.Every(opts.Interval), 1)
		limiters.SetIfAbsent(userID, l)
		if cur, ok := limiters.Get(userID); ok {
			return cur
		}
		return l
	}

	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, upd *tele.Update) error {
			user := Sender(upd)
			if user == nil {
				return next(ctx, upd)
			}
			if _, skip := opts.Exclude[Kind(upd)]; skip {
				return next(ctx, upd)
			}
			if limiterFor(user.ID).Allow() {
				return next(ctx, upd)
			}

			logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "tg.rate_limit",
				slog.String("status", "rate_limited"),
				slog.String("kind", Kind(upd)),
			)
			if opts.OnLimited != nil {
				_ = opts.OnLimited(ctx, upd)
			}
			return nil
		}
	}, nil
}
