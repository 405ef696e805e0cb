// Package sender is the single outbound path to the Telegram Bot API.
// Every call is spaced by a limiter, guarded by a circuit breaker and
// retried with exponential backoff when the method is safe to repeat.
package sender

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker/v2"
	"golang.org/x/time/rate"

	"github.com/m3rciful/quizbot/core/logger"
)

const maxResponseBytes = 4 << 20

// idempotentMethods may be repeated after an ambiguous failure without
// producing a visible duplicate in the chat.
var idempotentMethods = map[string]struct{}{
	"getMe":           {},
	"getWebhookInfo":  {},
	"setWebhook":      {},
	"deleteWebhook":   {},
	"setMyCommands":   {},
	"editMessageText": {},
}

// Recorder receives gateway counters.
type Recorder interface {
	APICall()
	RateLimited()
	RecoveryAttempt()
}

type nopRecorder struct{}

func (nopRecorder) APICall()         {}
func (nopRecorder) RateLimited()     {}
func (nopRecorder) RecoveryAttempt() {}

// Options controls the behaviour of the gateway. Zero values select defaults.
type Options struct {
	BaseURL string
	Token   string
	Client  *http.Client

	// MinInterval spaces consecutive calls; negative disables spacing.
	MinInterval time.Duration
	// MaxAttempts bounds attempts for idempotent methods.
	MaxAttempts int
	Backoff     time.Duration
	MaxBackoff  time.Duration
	// MaxRetryAfter caps how long a 429 reply may stall the caller.
	MaxRetryAfter time.Duration

	BreakerFailures uint32
	BreakerTimeout  time.Duration

	// Sleep waits between attempts; tests replace it to avoid real delays.
	Sleep    func(ctx context.Context, d time.Duration) error
	Recorder Recorder
}

// Gateway performs Bot API calls.
type Gateway struct {
	opts     Options
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker[json.RawMessage]
	sleep    func(ctx context.Context, d time.Duration) error
	rec      Recorder
}

// New builds a gateway with sane defaults if options are zeroed.
func New(opts Options) *Gateway {
	if strings.TrimSpace(opts.BaseURL) == "" {
		opts.BaseURL = "https://api.telegram.org"
	}
	if opts.Client == nil {
		opts.Client = &http.Client{Timeout: 30 * time.Second}
	}
	if opts.MinInterval == 0 {
		opts.MinInterval = 100 * time.Millisecond
	}
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 3
	}
	if opts.Backoff <= 0 {
		opts.Backoff = time.Second
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = 10 * time.Second
	}
	if opts.MaxRetryAfter <= 0 {
		opts.MaxRetryAfter = 30 * time.Second
	}
	if opts.BreakerFailures == 0 {
		opts.BreakerFailures = 5
	}
	if opts.BreakerTimeout <= 0 {
		opts.BreakerTimeout = 30 * time.Second
	}
	if opts.Sleep == nil {
		opts.Sleep = sleepContext
	}
	if opts.Recorder == nil {
		opts.Recorder = nopRecorder{}
	}

	limit := rate.Inf
	if opts.MinInterval > 0 {
		limit = rate.Every(opts.MinInterval)
	}

	g := &Gateway{
		opts:     opts,
		endpoint: strings.TrimRight(opts.BaseURL, "/") + "/bot" + opts.Token + "/",
		client:   opts.Client,
		limiter:  rate.NewLimiter(limit, 1),
		sleep:    opts.Sleep,
		rec:      opts.Recorder,
	}
	failures := opts.BreakerFailures
	g.breaker = gobreaker.NewCircuitBreaker[json.RawMessage](gobreaker.Settings{
		Name:        "telegram",
		MaxRequests: 1,
		Timeout:     opts.BreakerTimeout,
		ReadyToTrip: func(c gobreaker.Counts) bool {
			return c.ConsecutiveFailures >= failures
		},
		IsSuccessful: func(err error) bool { return !breakerFailure(err) },
		OnStateChange: func(_ string, from, to gobreaker.State) {
			if to == gobreaker.StateHalfOpen {
				g.rec.RecoveryAttempt()
			}
			level := slog.LevelInfo
			if to == gobreaker.StateOpen {
				level = slog.LevelWarn
			}
			logger.LogEvent(context.Background(), logger.TG, level, "gateway.breaker",
				slog.String("from", from.String()),
				slog.String("breaker", to.String()),
			)
		},
	})
	return g
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Result      json.RawMessage `json:"result"`
	ErrorCode   int             `json:"error_code"`
	Description string          `json:"description"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after"`
	} `json:"parameters"`
}

// Call invokes method with payload encoded as JSON and returns the raw result.
func (g *Gateway) Call(ctx context.Context, method string, payload any) (json.RawMessage, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if payload == nil {
		payload = struct{}{}
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("telegram %s: encode payload: %w", method, err)
	}

	attempts := 1
	if _, ok := idempotentMethods[method]; ok {
		attempts = g.opts.MaxAttempts
	}

	start := time.Now()
	var lastErr error
	attempt := 1
	for ; attempt <= attempts; attempt++ {
		res, err := g.breaker.Execute(func() (json.RawMessage, error) {
			return g.do(ctx, method, body)
		})
		if err == nil {
			attrs := []slog.Attr{slog.String("method", method), slog.Duration("duration", logger.Took(start))}
			if attempt > 1 {
				attrs = append(attrs, slog.Int("attempt", attempt))
			}
			logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "gateway.call", attrs...)
			return res, nil
		}
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			err = fmt.Errorf("%w: %s", ErrCircuitOpen, method)
		}
		lastErr = err

		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.RateLimited() {
			g.waitRetryAfter(ctx, apiErr)
			break
		}
		if attempt == attempts || !retryable(ctx, err) {
			break
		}

		delay := g.backoff(attempt)
		logger.LogEvent(ctx, logger.TG, slog.LevelDebug, "gateway.retry",
			slog.String("method", method),
			slog.Int("attempt", attempt),
			slog.String("error_class", classifyError(err)),
			slog.Duration("backoff", delay),
		)
		if err := g.sleep(ctx, delay); err != nil {
			lastErr = err
			break
		}
	}
	if attempt > attempts {
		attempt = attempts
	}

	level := slog.LevelWarn
	if errors.Is(lastErr, context.Canceled) {
		level = slog.LevelDebug
	}
	logger.LogEvent(ctx, logger.TG, level, "gateway.call_failed",
		slog.String("method", method),
		slog.String("status", "fail"),
		slog.Any("err", lastErr),
		slog.String("error_class", classifyError(lastErr)),
		slog.Int("attempts", attempt),
		slog.Duration("duration", logger.Took(start)),
	)
	return nil, lastErr
}

func (g *Gateway) waitRetryAfter(ctx context.Context, apiErr *APIError) {
	g.rec.RateLimited()
	wait := time.Duration(apiErr.RetryAfter) * time.Second
	if wait > g.opts.MaxRetryAfter {
		wait = g.opts.MaxRetryAfter
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "gateway.rate_limited",
		slog.String("method", apiErr.Method),
		slog.String("status", "rate_limited"),
		slog.Duration("retry_after", wait),
	)
	_ = g.sleep(ctx, wait)
}

func (g *Gateway) backoff(attempt int) time.Duration {
	d := g.opts.Backoff << (attempt - 1)
	if d <= 0 || d > g.opts.MaxBackoff {
		d = g.opts.MaxBackoff
	}
	return d
}

func (g *Gateway) do(ctx context.Context, method string, body []byte) (json.RawMessage, error) {
	if err := g.limiter.Wait(ctx); err != nil {
		return nil, err
	}
	g.rec.APICall()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, g.endpoint+method, bytes.NewReader(body))
	if err != nil {
		return nil, &transportError{method: method, err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.client.Do(req)
	if err != nil {
		return nil, &transportError{method: method, err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, &transportError{method: method, err: err}
	}

	var env apiResponse
	if err := json.Unmarshal(data, &env); err != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, &APIError{
				Method:      method,
				Code:        resp.StatusCode,
				Description: http.StatusText(resp.StatusCode),
				RetryAfter:  retryAfterHeader(resp.Header),
			}
		}
		return nil, fmt.Errorf("telegram %s: decode response: %w", method, err)
	}
	if !env.OK {
		apiErr := &APIError{Method: method, Code: env.ErrorCode, Description: env.Description}
		if apiErr.Code == 0 {
			apiErr.Code = resp.StatusCode
		}
		if env.Parameters != nil && env.Parameters.RetryAfter > 0 {
			apiErr.RetryAfter = env.Parameters.RetryAfter
		} else if apiErr.RateLimited() {
			apiErr.RetryAfter = retryAfterHeader(resp.Header)
		}
		return nil, apiErr
	}
	return env.Result, nil
}

func retryAfterHeader(h http.Header) int {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
