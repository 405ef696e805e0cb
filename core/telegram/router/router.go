// Package router dispatches updates to handlers held by a telegram.Registry.
package router

import (
	"context"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/quizbot/core/logger"
	tg "github.com/m3rciful/quizbot/core/telegram"
	"github.com/m3rciful/quizbot/core/telegram/callbacks"
	"github.com/m3rciful/quizbot/core/telegram/middleware"
)

// Router routes messages to commands, text matchers and the text fallback,
// and callbacks to handlers keyed by callback data.
type Router struct {
	reg *tg.Registry
}

// New returns a router over reg.
func New(reg *tg.Registry) *Router {
	return &Router{reg: reg}
}

// Handle implements middleware.HandlerFunc.
func (r *Router) Handle(ctx context.Context, upd *tele.Update) error {
	start := time.Now()
	switch {
	case upd.Callback != nil:
		return r.handleCallback(ctx, upd, start)
	case upd.Message != nil:
		return r.handleMessage(ctx, upd, start)
	}
	logHandlerSummary(ctx, "unsupported", start, "skip", "ok", nil)
	return nil
}

func (r *Router) handleMessage(ctx context.Context, upd *tele.Update, start time.Time) error {
	text := middleware.Text(upd)

	if key, cmd, ok := r.reg.MatchCommand(text); ok {
		return handleWithSummary(ctx, upd, normalizeHandlerName(key), start, cmd.Handler)
	}
	if m, ok := r.reg.MatchText(text); ok {
		return handleWithSummary(ctx, upd, normalizeHandlerName(m.Name), start, m.Handler)
	}
	if fb := r.reg.TextFallback(); fb != nil {
		return handleWithSummary(ctx, upd, "fallback", start, fb)
	}

	logHandlerSummary(ctx, "unknown_text", start, "skip", "ok", nil)
	return nil
}

func (r *Router) handleCallback(ctx context.Context, upd *tele.Update, start time.Time) error {
	key := callbacks.Key(upd.Callback.Data)
	name := "callback." + normalizeHandlerName(key)
	extras := []slog.Attr{slog.String("cb_key", logger.SanitizeLimit(key, 64))}

	h, ok := r.reg.GetCallback(key)
	if !ok || h == nil {
		h = r.reg.CallbackNotFound()
		extras = append(extras, slog.String("reason", "not_found"))
	}
	if h == nil {
		logHandlerSummary(ctx, name, start, "skip", "ok", nil, extras...)
		return nil
	}
	return handleWithSummary(ctx, upd, name, start, h, extras...)
}
