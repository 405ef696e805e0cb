package sender

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/m3rciful/quizbot/core/telegram/middleware"
)

const testToken = "123456:TEST-token_value"

type countingRecorder struct {
	calls, limited, recoveries atomic.Int64
}

func (r *countingRecorder) APICall()         { r.calls.Add(1) }
func (r *countingRecorder) RateLimited()     { r.limited.Add(1) }
func (r *countingRecorder) RecoveryAttempt() { r.recoveries.Add(1) }

type sleepLog struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepLog) sleep(_ context.Context, d time.Duration) error {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
	return nil
}

type fakeTelegram struct {
	mu       sync.Mutex
	hits     map[string]int
	bodies   map[string][]byte
	handlers map[string]http.HandlerFunc
}

func newFakeTelegram(t *testing.T) (*fakeTelegram, *httptest.Server) {
	t.Helper()
	f := &fakeTelegram{
		hits:     map[string]int{},
		bodies:   map[string][]byte{},
		handlers: map[string]http.HandlerFunc{},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		prefix := "/bot" + testToken + "/"
		if !strings.HasPrefix(r.URL.Path, prefix) {
			http.NotFound(w, r)
			return
		}
		method := strings.TrimPrefix(r.URL.Path, prefix)
		body, _ := io.ReadAll(r.Body)
		f.mu.Lock()
		f.hits[method]++
		f.bodies[method] = body
		h := f.handlers[method]
		f.mu.Unlock()
		if h == nil {
			_, _ = io.WriteString(w, `{"ok":true,"result":{"message_id":1,"chat":{"id":1}}}`)
			return
		}
		h(w, r)
	}))
	t.Cleanup(srv.Close)
	return f, srv
}

func (f *fakeTelegram) handle(method string, h http.HandlerFunc) {
	f.mu.Lock()
	f.handlers[method] = h
	f.mu.Unlock()
}

func (f *fakeTelegram) count(method string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.hits[method]
}

func (f *fakeTelegram) body(method string) []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.bodies[method]
}

func newTestGateway(srv *httptest.Server, rec Recorder, sl *sleepLog) *Gateway {
	return New(Options{
		BaseURL:     srv.URL,
		Token:       testToken,
		Client:      srv.Client(),
		MinInterval: -1,
		Backoff:     time.Second,
		Sleep:       sl.sleep,
		Recorder:    rec,
	})
}

func TestCallDecodesResult(t *testing.T) {
	f, srv := newFakeTelegram(t)
	f.handle("getMe", func(w http.ResponseWriter, _ *http.Request) {
		_, _ = io.WriteString(w, `{"ok":true,"result":{"id":42,"is_bot":true,"first_name":"Quiz","username":"quiz_bot"}}`)
	})
	rec := &countingRecorder{}
	g := newTestGateway(srv, rec, &sleepLog{})

	me, err := g.GetMe(context.Background())
	if err != nil {
		t.Fatalf("GetMe: %v", err)
	}
	if me.ID != 42 || me.Username != "quiz_bot" {
		t.Fatalf("unexpected user: %+v", me)
	}
	if rec.calls.Load() != 1 {
		t.Fatalf("api calls = %d, want 1", rec.calls.Load())
	}
}

func TestIdempotentCallRetriesServerErrors(t *testing.T) {
	f, srv := newFakeTelegram(t)
	f.handle("getWebhookInfo", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":502,"description":"Bad Gateway"}`)
	})
	sl := &sleepLog{}
	g := newTestGateway(srv, nil, sl)

	_, err := g.GetWebhookInfo(context.Background())
	if StatusCode(err) != http.StatusBadGateway {
		t.Fatalf("err = %v, want 502", err)
	}
	if got := f.count("getWebhookInfo"); got != 3 {
		t.Fatalf("attempts = %d, want 3", got)
	}
	want := []time.Duration{time.Second, 2 * time.Second}
	if len(sl.waits) != len(want) || sl.waits[0] != want[0] || sl.waits[1] != want[1] {
		t.Fatalf("backoff = %v, want %v", sl.waits, want)
	}
}

func TestSendMessageIsNotRetried(t *testing.T) {
	f, srv := newFakeTelegram(t)
	f.handle("sendMessage", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":500,"description":"Internal"}`)
	})
	g := newTestGateway(srv, nil, &sleepLog{})

	err := g.Send(context.Background(), 1, "hi", nil)
	if err == nil {
		t.Fatal("expected error")
	}
	if got := f.count("sendMessage"); got != 1 {
		t.Fatalf("attempts = %d, want 1", got)
	}
	if classifyError(err) != "http_5xx" {
		t.Fatalf("class = %q", classifyError(err))
	}
}

func TestRateLimitedWaitsRetryAfter(t *testing.T) {
	f, srv := newFakeTelegram(t)
	f.handle("sendMessage", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":429,"description":"Too Many Requests: retry after 7","parameters":{"retry_after":7}}`)
	})
	f.handle("getMe", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Retry-After", "120")
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":429,"description":"Too Many Requests"}`)
	})
	rec := &countingRecorder{}
	sl := &sleepLog{}
	g := newTestGateway(srv, rec, sl)

	err := g.Send(context.Background(), 1, "hi", nil)
	var apiErr *APIError
	if !errors.As(err, &apiErr) || !apiErr.RateLimited() || apiErr.RetryAfter != 7 {
		t.Fatalf("err = %v, want 429 with retry_after 7", err)
	}
	if _, err := g.GetMe(context.Background()); StatusCode(err) != http.StatusTooManyRequests {
		t.Fatalf("getMe err = %v", err)
	}
	if f.count("getMe") != 1 {
		t.Fatalf("429 must not be retried, got %d attempts", f.count("getMe"))
	}
	if rec.limited.Load() != 2 {
		t.Fatalf("rate limit hits = %d, want 2", rec.limited.Load())
	}
	want := []time.Duration{7 * time.Second, 30 * time.Second}
	if len(sl.waits) != 2 || sl.waits[0] != want[0] || sl.waits[1] != want[1] {
		t.Fatalf("waits = %v, want %v", sl.waits, want)
	}
}

func TestSendQuizEnforcesLimits(t *testing.T) {
	f, srv := newFakeTelegram(t)
	g := newTestGateway(srv, nil, &sleepLog{})

	opts := make([]string, 12)
	for i := range opts {
		opts[i] = strings.Repeat("o", 150)
	}
	q := Quiz{
		Question:    strings.Repeat("q", 350),
		Options:     opts,
		Correct:     11,
		Explanation: strings.Repeat("e", 250),
		Anonymous:   true,
	}
	if _, err := g.SendQuiz(context.Background(), 9, q); err != nil {
		t.Fatalf("SendQuiz: %v", err)
	}

	var got SendPollRequest
	if err := json.Unmarshal(f.body("sendPoll"), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len([]rune(got.Question)) != MaxPollQuestionRunes {
		t.Fatalf("question runes = %d", len([]rune(got.Question)))
	}
	if len(got.Options) != MaxPollOptions {
		t.Fatalf("options = %d", len(got.Options))
	}
	for _, o := range got.Options {
		if len([]rune(o)) != MaxPollOptionRunes {
			t.Fatalf("option runes = %d", len([]rune(o)))
		}
	}
	if len([]rune(got.Explanation)) != MaxExplanationRunes {
		t.Fatalf("explanation runes = %d", len([]rune(got.Explanation)))
	}
	if got.CorrectOptionID != 0 || got.Type != "quiz" || !got.IsAnonymous || got.ChatID != 9 {
		t.Fatalf("unexpected poll request: %+v", got)
	}
}

func TestBuildPollRequestRejectsSingleOption(t *testing.T) {
	if _, err := BuildPollRequest(1, Quiz{Question: "q", Options: []string{"only"}}); err == nil {
		t.Fatal("expected error for one option")
	}
}

func TestSendMessageTruncatesAndCounts(t *testing.T) {
	f, srv := newFakeTelegram(t)
	g := newTestGateway(srv, nil, &sleepLog{})

	ctx := middleware.WithCounters(context.Background())
	if err := g.Send(ctx, 1, strings.Repeat("я", 5000), nil); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := g.Send(ctx, 1, "   ", nil); err != nil {
		t.Fatalf("Send empty: %v", err)
	}
	var got SendMessageRequest
	if err := json.Unmarshal(f.body("sendMessage"), &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got.Text != emptyMessageText {
		t.Fatalf("empty text = %q", got.Text)
	}
	if msgs, _ := middleware.Counters(ctx); msgs != 2 {
		t.Fatalf("messages counted = %d, want 2", msgs)
	}
}

func TestTransportErrorRedactsToken(t *testing.T) {
	_, srv := newFakeTelegram(t)
	srv.Close()
	g := newTestGateway(srv, nil, &sleepLog{})

	err := g.Send(context.Background(), 1, "hi", nil)
	if err == nil {
		t.Fatal("expected transport error")
	}
	if strings.Contains(err.Error(), "TEST-token_value") {
		t.Fatalf("token leaked: %v", err)
	}
}

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	f, srv := newFakeTelegram(t)
	f.handle("sendMessage", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = io.WriteString(w, `{"ok":false,"error_code":503,"description":"Unavailable"}`)
	})
	g := New(Options{
		BaseURL:         srv.URL,
		Token:           testToken,
		Client:          srv.Client(),
		MinInterval:     -1,
		BreakerFailures: 2,
		BreakerTimeout:  time.Hour,
		Sleep:           (&sleepLog{}).sleep,
	})

	for i := 0; i < 2; i++ {
		_ = g.Send(context.Background(), 1, "hi", nil)
	}
	err := g.Send(context.Background(), 1, "hi", nil)
	if !errors.Is(err, ErrCircuitOpen) {
		t.Fatalf("err = %v, want circuit open", err)
	}
	if f.count("sendMessage") != 2 {
		t.Fatalf("open breaker must not reach the server, hits = %d", f.count("sendMessage"))
	}
}

func TestCallsAreSpacedByMinInterval(t *testing.T) {
	_, srv := newFakeTelegram(t)
	const interval = 80 * time.Millisecond
	g := New(Options{
		BaseURL:     srv.URL,
		Token:       testToken,
		Client:      srv.Client(),
		MinInterval: interval,
		Sleep:       (&sleepLog{}).sleep,
	})

	ctx := context.Background()
	start := time.Now()
	for i := 0; i < 3; i++ {
		if _, err := g.Call(ctx, "getMe", nil); err != nil {
			t.Fatalf("call %d: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 2*interval {
		t.Fatalf("3 calls took %v, want at least %v", elapsed, 2*interval)
	}
}

func TestSpacingWaitHonorsContext(t *testing.T) {
	f, srv := newFakeTelegram(t)
	g := New(Options{
		BaseURL:     srv.URL,
		Token:       testToken,
		Client:      srv.Client(),
		MinInterval: time.Hour,
		Sleep:       (&sleepLog{}).sleep,
	})
	if _, err := g.Call(context.Background(), "getMe", nil); err != nil {
		t.Fatalf("first call: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.Call(ctx, "getMe", nil); err == nil {
		t.Fatal("second call inside the interval should fail on its deadline")
	}
	if got := f.count("getMe"); got != 1 {
		t.Fatalf("getMe reached the server %d times, want 1", got)
	}
}
