package router

import (
	"context"
	"errors"
	"log/slog"
	"reflect"
	"strconv"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/telegram/middleware"
	"github.com/m3rciful/quizbot/core/telegram/sender"
)

func handleWithSummary(ctx context.Context, upd *tele.Update, handlerName string, start time.Time, fn middleware.HandlerFunc, extras ...slog.Attr) error {
	ctx = logger.WithHandler(ctx, handlerName)
	err := fn(ctx, upd)
	logHandlerSummary(ctx, handlerName, start, "", "", err, extras...)
	return err
}

func logHandlerSummary(ctx context.Context, handlerName string, start time.Time, statusOverride, outcomeOverride string, err error, extras ...slog.Attr) {
	ctx = logger.WithHandler(ctx, handlerName)
	msgs, kb := middleware.Counters(ctx)

	status := statusOverride
	if status == "" {
		status = logger.Status(err)
	}
	outcome := outcomeOverride
	if outcome == "" {
		outcome = logger.Status(err)
	}

	attrs := []slog.Attr{
		slog.String("status", status),
		slog.String("handler", handlerName),
		slog.String("outcome", outcome),
		slog.Int("messages", msgs),
		slog.Bool("kb", kb),
		slog.Duration("duration", logger.Took(start)),
	}
	level := slog.LevelInfo
	if err != nil {
		level = slog.LevelWarn
		attrs = append(attrs,
			slog.String("err", logger.SanitizeLimit(err.Error(), 256)),
			slog.String("err_code", deriveErrorCode(err)),
		)
	}
	attrs = append(attrs, extras...)
	logger.LogEvent(ctx, logger.TG, level, "handler.handled", attrs...)
}

func normalizeHandlerName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return "unknown"
	}
	name = strings.TrimPrefix(name, "/")
	name = strings.ReplaceAll(name, " ", "_")
	return strings.ToLower(name)
}

func deriveErrorCode(err error) string {
	if err == nil {
		return ""
	}
	var apiErr *sender.APIError
	if errors.As(err, &apiErr) {
		return "HTTP_" + strconv.Itoa(apiErr.Code)
	}
	if errors.Is(err, sender.ErrCircuitOpen) {
		return "CIRCUIT_OPEN"
	}
	t := reflect.TypeOf(err)
	for t != nil && t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t != nil && t.Name() != "" {
		return strings.ToUpper(t.Name())
	}
	return "UNKNOWN_ERROR"
}
