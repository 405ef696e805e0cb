package middleware

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/telegram/callbacks"

	tele "gopkg.in/telebot.v4"
)

// receipts keeps a short-lived set of update IDs to avoid logging a
// webhook redelivery twice.
type receipts struct {
	mu      sync.Mutex
	seen    map[int]time.Time
	keepFor time.Duration
}

func (r *receipts) firstSeen(updateID int, now time.Time) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, ts := range r.seen {
		if now.Sub(ts) > r.keepFor {
			delete(r.seen, id)
		}
	}
	if _, ok := r.seen[updateID]; ok {
		return false
	}
	r.seen[updateID] = now
	return true
}

// Logger attaches rid and update metadata to ctx and writes one sampled
// receipt line per update.
func Logger() Middleware {
	rec := &receipts{seen: make(map[int]time.Time), keepFor: 10 * time.Second}
	return func(next HandlerFunc) HandlerFunc {
		return func(ctx context.Context, upd *tele.Update) error {
			user := Sender(upd)
			chatID, userID := ChatID(upd), int64(0)
			if user != nil {
				userID = user.ID
			}
			ctx = logger.WithMeta(ctx, logger.Meta{UpdateID: upd.ID, UserID: userID, ChatID: chatID})
			ctx = logger.WithLogger(ctx, logger.TG)

			if rec.firstSeen(upd.ID, time.Now()) && logger.ShouldSampleDebug() {
				attrs := []slog.Attr{
					slog.String("status", "ok"),
					slog.String("kind", Kind(upd)),
				}
				if user != nil {
					if user.Username != "" {
						attrs = append(attrs, slog.String("username", logger.SanitizeLimit(user.Username, 64)))
					}
					if user.LanguageCode != "" {
						attrs = append(attrs, slog.String("lang", user.LanguageCode))
					}
				}
				switch {
				case upd.Callback != nil:
					if key := callbacks.Key(upd.Callback.Data); key != "" {
						attrs = append(attrs, slog.String("cb_key", logger.SanitizeLimit(key, 128)))
					}
				case upd.Message != nil:
					if t := upd.Message.Text; t != "" {
						attrs = append(attrs, slog.String("payload", logger.SanitizeLimit(t, 256)))
					}
				}
				logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "update.received", attrs...)
			}

			return next(ctx, upd)
		}
	}
}
