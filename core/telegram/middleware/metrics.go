package middleware

import (
	"context"
	"sync/atomic"

	tele "gopkg.in/telebot.v4"
)

type countersKey struct{}

type counters struct {
	messages atomic.Int64
	kb       atomic.Bool
}

// WithCounters returns ctx carrying fresh response counters.
func WithCounters(ctx context.Context) context.Context {
	return context.WithValue(ctx, countersKey{}, &counters{})
}

// CountMessage records one outbound message for the update in ctx.
// It is a no-op when ctx carries no counters.
func CountMessage(ctx context.Context, withKeyboard bool) {
	if ctx == nil {
		return
	}
	c, _ := ctx.Value(countersKey{}).(*counters)
	if c == nil {
		return
	}
	c.messages.Add(1)
	if withKeyboard {
		c.kb.Store(true)
	}
}

// Counters reads message count and keyboard presence from ctx.
func Counters(ctx context.Context) (int, bool) {
	if ctx == nil {
		return 0, false
	}
	c, _ := ctx.Value(countersKey{}).(*counters)
	if c == nil {
		return 0, false
	}
	return int(c.messages.Load()), c.kb.Load()
}

// Metrics instruments ctx to track messages sent and keyboard usage per update.
func Metrics(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, upd *tele.Update) error {
		return next(WithCounters(ctx), upd)
	}
}
