package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"

	"github.com/m3rciful/quizbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

// Recover turns a panic in a handler into an error so one bad update
// cannot take the process down.
func Recover(next HandlerFunc) HandlerFunc {
	return func(ctx context.Context, upd *tele.Update) (err error) {
		defer func() {
			if r := recover(); r != nil {
				logger.LogEvent(ctx, logger.TG, slog.LevelError, "tg.panic",
					slog.String("status", "fail"),
					slog.Any("err", r),
					slog.String("stack", string(debug.Stack())),
				)
				err = fmt.Errorf("panic in update handler: %v", r)
			}
		}()
		return next(ctx, upd)
	}
}
