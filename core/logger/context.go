package logger

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

type ctxKey int

const (
	metaKey ctxKey = iota
	loggerKey
)

// Meta identifies the update a log line belongs to. Zero fields are omitted
// from output.
type Meta struct {
	RID      string
	UpdateID int
	UserID   int64
	ChatID   int64
	Handler  string
}

// WithMeta stores m in ctx. A missing RID is derived from the ids.
func WithMeta(ctx context.Context, m Meta) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if m.RID == "" && m.UpdateID != 0 {
		m.RID = BuildRID(m.UpdateID, m.ChatID, m.UserID)
	}
	return context.WithValue(ctx, metaKey, m)
}

// MetaFrom returns the update metadata stored in ctx, if any.
func MetaFrom(ctx context.Context) Meta {
	if ctx == nil {
		return Meta{}
	}
	m, _ := ctx.Value(metaKey).(Meta)
	return m
}

// WithHandler records the handler name on the metadata already in ctx.
func WithHandler(ctx context.Context, handler string) context.Context {
	if handler == "" {
		return ctx
	}
	m := MetaFrom(ctx)
	m.Handler = handler
	return WithMeta(ctx, m)
}

// WithLogger stores log in ctx; LogEvent falls back to it when called
// without an explicit logger.
func WithLogger(ctx context.Context, log *slog.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if log == nil {
		return ctx
	}
	return context.WithValue(ctx, loggerKey, log)
}

// FromContext returns the logger stored in ctx or L.
func FromContext(ctx context.Context) *slog.Logger {
	if ctx != nil {
		if l, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
			return l
		}
	}
	return L
}

// BuildRID returns updateID:chatID:userID.
func BuildRID(updateID int, chatID, userID int64) string {
	return fmt.Sprintf("%d:%d:%d", updateID, chatID, userID)
}

// CompactRID rewrites a BuildRID value as dot separated base36 segments.
// Anything else is returned unchanged.
func CompactRID(rid string) string {
	rid = strings.TrimSpace(rid)
	parts := strings.Split(rid, ":")
	if len(parts) != 3 {
		return rid
	}
	for i, part := range parts {
		n, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return rid
		}
		parts[i] = strconv.FormatInt(n, 36)
	}
	return strings.Join(parts, ".")
}
