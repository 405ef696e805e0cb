package sender

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/telegram/netutil"
)

// ErrCircuitOpen is returned while the breaker rejects calls after repeated failures.
var ErrCircuitOpen = errors.New("telegram gateway: circuit open")

// APIError is a non-ok reply from the Bot API.
type APIError struct {
	Method      string
	Code        int
	Description string
	// RetryAfter is set for 429 replies from parameters.retry_after or the Retry-After header.
	RetryAfter int
}

func (e *APIError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("telegram %s: %s (%d, retry after %ds)", e.Method, e.Description, e.Code, e.RetryAfter)
	}
	return fmt.Sprintf("telegram %s: %s (%d)", e.Method, e.Description, e.Code)
}

// RateLimited reports whether Telegram asked the bot to slow down.
func (e *APIError) RateLimited() bool {
	return e.Code == http.StatusTooManyRequests
}

// transportError wraps net/http failures so the bot token embedded in
// request URLs never reaches logs or callers.
type transportError struct {
	method string
	err    error
}

func (e *transportError) Error() string {
	return logger.Redact(fmt.Sprintf("telegram %s: %v", e.method, e.err))
}

func (e *transportError) Unwrap() error { return e.err }

// StatusCode returns the HTTP-level code carried by err, or 0.
func StatusCode(err error) int {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	return 0
}

func classifyError(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrCircuitOpen) {
		return "circuit_open"
	}
	switch status := StatusCode(err); {
	case status == http.StatusTooManyRequests:
		return "rate_limited"
	case status >= 500:
		return "http_5xx"
	case status >= 400:
		return "http_4xx"
	}
	if kind := netutil.Classify(err); kind != "" {
		return kind
	}
	return "other"
}

// retryable reports whether another attempt of an idempotent call may succeed.
func retryable(ctx context.Context, err error) bool {
	if ctx.Err() != nil || errors.Is(err, ErrCircuitOpen) {
		return false
	}
	if status := StatusCode(err); status != 0 {
		return status >= 500
	}
	return netutil.ShouldRetry(err)
}

// breakerFailure reports whether err counts against the circuit breaker.
// Client errors and cancellations say nothing about Telegram's health.
func breakerFailure(err error) bool {
	if err == nil || errors.Is(err, context.Canceled) {
		return false
	}
	if status := StatusCode(err); status != 0 {
		return status >= 500
	}
	return true
}
