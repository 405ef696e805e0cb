package logger

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"time"
)

type logFormat string

const (
	formatJSON logFormat = "json"
	formatKV   logFormat = "kv"

	timeFormatMillis = "2006-01-02T15:04:05.000Z07:00"
)

type handlerConfig struct {
	level    slog.Leveler
	writer   *asyncWriter
	format   logFormat
	keyOrder []string
}

// structuredHandler renders records as one line each with a stable key
// order. Group names become dotted key prefixes.
type structuredHandler struct {
	cfg    handlerConfig
	encode lineEncoder
	attrs  []slog.Attr
	prefix string
}

func newStructuredHandler(cfg handlerConfig) *structuredHandler {
	if cfg.level == nil {
		cfg.level = slog.LevelInfo
	}
	if cfg.keyOrder == nil {
		cfg.keyOrder = append([]string(nil), defaultKeyOrder...)
	}
	enc := encodeKV
	if cfg.format == formatJSON {
		enc = encodeJSON
	}
	return &structuredHandler{cfg: cfg, encode: enc}
}

func (h *structuredHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.cfg.level.Level()
}

func (h *structuredHandler) Handle(ctx context.Context, r slog.Record) error {
	if h.cfg.writer == nil {
		return errors.New("logger: writer not initialized")
	}

	ts := r.Time.UTC()
	f := make(fields, 16)
	f["ts"] = ts.Truncate(time.Millisecond).Format(timeFormatMillis)
	f["level"] = levelName(r.Level)
	if h.cfg.format == formatJSON {
		f["ts_unix_nano"] = ts.UnixNano()
	}

	for _, a := range h.attrs {
		f.add("", a)
	}
	r.Attrs(func(a slog.Attr) bool {
		f.add(h.prefix, a)
		return true
	})
	f.addMeta(MetaFrom(ctx))
	f.compactRID(h.cfg.format == formatJSON)

	event := r.Message
	if event == "" {
		event = "unknown"
	}
	f.setDefault("event", event)
	f.setDefault("component", "app")

	normalizeEnums(f)
	f.prune()

	var buf bytes.Buffer
	if err := h.encode(&buf, f, h.cfg.keyOrder); err != nil {
		return err
	}
	buf.WriteByte('\n')
	return h.cfg.writer.Write(buf.Bytes())
}

// WithAttrs resolves the group prefix now so later groups do not apply.
func (h *structuredHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	clone := *h
	clone.attrs = append([]slog.Attr(nil), h.attrs...)
	for _, a := range attrs {
		if h.prefix != "" {
			a = slog.Attr{Key: h.prefix, Value: slog.GroupValue(a)}
		}
		clone.attrs = append(clone.attrs, a)
	}
	return &clone
}

func (h *structuredHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	clone := *h
	clone.prefix = joinKey(h.prefix, name)
	return &clone
}

// addMeta copies update metadata from the context without overriding
// explicit attributes.
func (f fields) addMeta(m Meta) {
	if m.RID != "" {
		f.setDefault("rid", m.RID)
	}
	if m.UserID != 0 {
		f.setDefault("user_id", m.UserID)
	}
	if m.UpdateID != 0 {
		f.setDefault("update_id", m.UpdateID)
	}
	if m.ChatID != 0 {
		f.setDefault("chat_id", m.ChatID)
	}
	if m.Handler != "" {
		f.setDefault("handler", m.Handler)
	}
}

// compactRID shortens rid; JSON output also keeps the full form.
func (f fields) compactRID(keepFull bool) {
	rid, ok := stringField(f, "rid")
	if !ok || rid == "" {
		return
	}
	compact := CompactRID(rid)
	if compact == "" || compact == rid {
		return
	}
	if keepFull {
		f.setDefault("rid_full", rid)
	}
	f["rid"] = compact
}
