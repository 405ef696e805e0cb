// Package keepalive pings the bot's own health endpoint while no traffic
// arrives, so a host that suspends idle services keeps it awake.
package keepalive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/telegram/netutil"
)

// Defaults used when Options leave a field zero.
const (
	DefaultInterval = time.Minute
	DefaultIdle     = 10 * time.Minute
)

// Options configures the worker.
type Options struct {
	// URL is the public base URL; "/health" is appended.
	URL      string
	Interval time.Duration
	// Idle is how long the bot must be quiet before a ping is sent.
	Idle time.Duration
	// LastActivity reports the time of the last handled update.
	LastActivity func() time.Time
	Client       *http.Client
	// OnPing is called after every successful ping.
	OnPing func()
	Now    func() time.Time
}

// Worker sends the pings.
type Worker struct {
	opts   Options
	target string
}

// New validates opts and returns a worker.
func New(opts Options) (*Worker, error) {
	base := strings.TrimRight(strings.TrimSpace(opts.URL), "/")
	if base == "" {
		return nil, errors.New("keepalive: url is required")
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Idle <= 0 {
		opts.Idle = DefaultIdle
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.LastActivity == nil {
		opts.LastActivity = opts.Now
	}
	return &Worker{opts: opts, target: base + "/health"}, nil
}

// Target is the URL being pinged.
func (w *Worker) Target() string { return w.target }

// Run checks idleness every Interval until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) error {
	logger.LogEvent(ctx, logger.KEEPALIVE, slog.LevelInfo, "keepalive.start",
		slog.String("target", w.target),
		slog.Duration("interval", w.opts.Interval),
		slog.Duration("idle", w.opts.Idle),
	)
	ticker := time.NewTicker(w.opts.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.Tick(ctx)
		}
	}
}

// Tick pings when the bot has been idle for longer than Idle and reports
// whether a ping was attempted.
func (w *Worker) Tick(ctx context.Context) bool {
	idle := w.opts.Now().Sub(w.opts.LastActivity())
	if idle <= w.opts.Idle {
		return false
	}
	start := time.Now()
	err := w.Ping(ctx)
	attrs := []slog.Attr{
		slog.String("status", logger.Status(err)),
		slog.Duration("idle", idle.Truncate(time.Second)),
		slog.Duration("duration", logger.Took(start)),
	}
	if err != nil {
		attrs = append(attrs,
			slog.String("err", err.Error()),
			slog.String("error_class", netutil.Classify(err)),
		)
		logger.LogEvent(ctx, logger.KEEPALIVE, slog.LevelWarn, "keepalive.ping", attrs...)
		return true
	}
	logger.LogEvent(ctx, logger.KEEPALIVE, slog.LevelInfo, "keepalive.ping", attrs...)
	return true
}

// Ping issues one GET to the health endpoint. A transient network error
// is retried once.
func (w *Worker) Ping(ctx context.Context) error {
	err := w.get(ctx)
	if err != nil && netutil.ShouldRetry(err) {
		err = w.get(ctx)
	}
	if err != nil {
		return err
	}
	if w.opts.OnPing != nil {
		w.opts.OnPing()
	}
	return nil
}

func (w *Worker) get(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, w.target, nil)
	if err != nil {
		return fmt.Errorf("keepalive: build request: %w", err)
	}
	req.Header.Set("User-Agent", "quizbot-keepalive")
	resp, err := w.opts.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("keepalive: %s returned %s", w.target, resp.Status)
	}
	return nil
}
