// Package logger provides the process wide structured logger: a slog
// handler with a stable key order, JSON or key=value lines, token
// redaction and an asynchronous writer, plus one logger per component.
package logger

import (
	"context"
	"errors"
	"io"
	"log"
	"log/slog"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/m3rciful/quizbot/core/buildinfo"
	coreconfig "github.com/m3rciful/quizbot/core/config"
)

var (
	initOnce sync.Once
	closeMu  sync.Mutex
	closed   bool

	logWriter  *asyncWriter
	logClosers []io.Closer

	levelVar slog.LevelVar

	// L is the base logger. Before InitLogger it points at slog.Default().
	L *slog.Logger

	// DB logs database connection events.
	DB *slog.Logger
	// TG logs Telegram transport and gateway events.
	TG *slog.Logger
	// MIG logs database migration events.
	MIG *slog.Logger
	// STORE logs session store events.
	STORE *slog.Logger
	// QUIZ logs quiz dispatch and submission events.
	QUIZ *slog.Logger
	// HTTP logs inbound HTTP server events.
	HTTP *slog.Logger
	// KEEPALIVE logs self-ping worker events.
	KEEPALIVE *slog.Logger
)

type options struct {
	format  logFormat
	order   []string
	level   slog.Level
	profile string
}

func resolveOptions(cfg *coreconfig.Config) options {
	opts := options{
		format:  formatJSON,
		order:   append([]string(nil), defaultKeyOrder...),
		level:   slog.LevelInfo,
		profile: "prod",
	}
	if cfg == nil {
		return opts
	}
	lc := cfg.Logging
	if p := strings.ToLower(strings.TrimSpace(lc.Profile)); p != "" {
		opts.profile = p
	}

	switch strings.ToLower(strings.TrimSpace(lc.Format)) {
	case "kv", "text", "pretty":
		opts.format = formatKV
	case "json":
	default:
		if opts.profile == "debug" || opts.profile == "dev" {
			opts.format = formatKV
		}
	}

	if raw := strings.TrimSpace(lc.KeysOrder); raw != "" && raw != "default" {
		var order []string
		for _, k := range strings.Split(raw, ",") {
			if k = strings.TrimSpace(k); k != "" {
				order = append(order, k)
			}
		}
		if len(order) > 0 {
			opts.order = order
		}
	}

	switch strings.ToLower(strings.TrimSpace(lc.Level)) {
	case "debug":
		opts.level = slog.LevelDebug
	case "warn", "warning":
		opts.level = slog.LevelWarn
	case "error":
		opts.level = slog.LevelError
	}
	return opts
}

// InitLogger configures the global structured logger. Only the first call
// has an effect.
func InitLogger(cfg *coreconfig.Config) error {
	var initErr error
	initOnce.Do(func() {
		opts := resolveOptions(cfg)
		levelVar.Set(opts.level)
		sampling.set(parseDebugEvery(cfg))
		sampling.trace.Store(traceRequested())

		outputs, closers, err := buildOutputs(cfg)
		if err != nil {
			initErr = err
			return
		}
		logClosers = closers
		logWriter = newAsyncWriter(outputs, 64*1024)

		L = slog.New(newStructuredHandler(handlerConfig{
			level:    &levelVar,
			writer:   logWriter,
			format:   opts.format,
			keyOrder: opts.order,
		}))
		slog.SetDefault(L)
		wireComponents()

		L.LogAttrs(context.Background(), slog.LevelInfo, "startup",
			slog.String("component", "app"),
			slog.String("event", "startup"),
			slog.String("go_version", runtime.Version()),
			slog.String("build_version", buildinfo.Version),
			slog.String("build_commit", buildinfo.Commit),
			slog.String("build_time", buildinfo.Date),
			slog.String("cfg_profile", opts.profile),
		)
	})
	return initErr
}

func init() {
	L = slog.Default()
	wireComponents()
}

func wireComponents() {
	DB = L.With("component", "db")
	TG = L.With("component", "tg")
	MIG = L.With("component", "db.migrate")
	STORE = L.With("component", "store")
	QUIZ = L.With("component", "quiz")
	HTTP = L.With("component", "http")
	KEEPALIVE = L.With("component", "keepalive")
}

// Shutdown flushes buffered output and closes file sinks. Later calls are no-ops.
func Shutdown() error {
	closeMu.Lock()
	defer closeMu.Unlock()
	if closed {
		return nil
	}
	closed = true

	var errs []error
	if logWriter != nil {
		errs = append(errs, logWriter.Flush(), logWriter.Close())
	}
	for _, c := range logClosers {
		errs = append(errs, c.Close())
	}
	return errors.Join(errs...)
}

// buildOutputs always writes to stdout and additionally to dir/bot_file
// when both are set. A file that cannot be opened is reported on the
// standard logger and skipped.
func buildOutputs(cfg *coreconfig.Config) ([]io.Writer, []io.Closer, error) {
	writers := []io.Writer{os.Stdout}
	if cfg == nil {
		return writers, nil, nil
	}
	dir := strings.TrimSpace(cfg.Logging.Dir)
	file := strings.TrimSpace(cfg.Logging.BotFile)
	if dir == "" || file == "" {
		return writers, nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("logger: failed to create log dir %s: %v", dir, err)
		return writers, nil, nil
	}
	path := filepath.Join(dir, file)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		log.Printf("logger: failed to open log file %s: %v", path, err)
		return writers, nil, nil
	}
	return append(writers, f), []io.Closer{f}, nil
}

// LogEvent writes one event line. A nil logg falls back to the logger in
// ctx, then to L.
func LogEvent(ctx context.Context, logg *slog.Logger, level slog.Level, event string, attrs ...slog.Attr) {
	if logg == nil {
		logg = FromContext(ctx)
	}
	if logg == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}
	if event != "" {
		attrs = append([]slog.Attr{slog.String("event", event)}, attrs...)
	}
	logg.LogAttrs(ctx, level, "", attrs...)
}
