package telegram

import (
	"strings"
	"time"

	coreconfig "github.com/m3rciful/quizbot/core/config"
	"github.com/m3rciful/quizbot/core/telegram/middleware"
)

// DefaultMiddlewares builds the shared update pipeline: request logging,
// panic recovery, the optional per-user rate limit and response counters.
func DefaultMiddlewares(cfg *coreconfig.Config, onLimited middleware.HandlerFunc) ([]middleware.Middleware, error) {
	mws := []middleware.Middleware{
		middleware.Logger(),
		middleware.Recover,
	}

	if cfg != nil {
		interval := time.Duration(cfg.RateLimit.IntervalMS) * time.Millisecond
		if interval > 0 {
			ex := make(map[string]struct{}, len(cfg.RateLimit.ExcludeUpdates))
			for _, t := range cfg.RateLimit.ExcludeUpdates {
				ex[strings.ToLower(t)] = struct{}{}
			}
			rl, err := middleware.RateLimit(middleware.RateLimitOptions{
				Interval:  interval,
				Exclude:   ex,
				OnLimited: onLimited,
			})
			if err != nil {
				return nil, err
			}
			mws = append(mws, rl)
		}
	}

	return append(mws, middleware.Metrics), nil
}
