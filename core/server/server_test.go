package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	tele "gopkg.in/telebot.v4"
)

type fakeBackend struct {
	mu      sync.Mutex
	updates []*tele.Update
	ctxErr  error
	healthy bool
	infoErr error
	panicOn bool
}

func (f *fakeBackend) HandleUpdate(ctx context.Context, upd *tele.Update) {
	if f.panicOn {
		panic("boom")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates = append(f.updates, upd)
	f.ctxErr = ctx.Err()
}

func (f *fakeBackend) Health(context.Context) (any, bool) {
	status := "unhealthy"
	if f.healthy {
		status = "healthy"
	}
	return map[string]any{"status": status}, f.healthy
}

func (f *fakeBackend) Debug(context.Context) any {
	return map[string]any{"bot_state": "running"}
}

func (f *fakeBackend) Metrics(context.Context) string {
	return "# TYPE bot_total_requests counter\nbot_total_requests 3\n"
}

func (f *fakeBackend) RegisterWebhook(context.Context) (any, error) {
	return map[string]string{"url": "https://quiz.example.com/hook"}, nil
}

func (f *fakeBackend) WebhookInfo(context.Context) (any, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return map[string]any{"url": "https://quiz.example.com/hook", "pending_update_count": 0}, nil
}

func do(t *testing.T, h http.Handler, method, path, body string, header map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	for k, v := range header {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
	return out
}

func TestWebhookAcceptsUpdate(t *testing.T) {
	be := &fakeBackend{}
	h := New(Options{WebhookPath: "/hook"}, be).Handler()

	rec := do(t, h, http.MethodPost, "/hook", `{"update_id":7,"message":{"message_id":1,"text":"/start","chat":{"id":5}}}`, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("code = %d body=%s", rec.Code, rec.Body.String())
	}
	if got := decode(t, rec)["ok"]; got != true {
		t.Fatalf("ok = %v", got)
	}
	if len(be.updates) != 1 || be.updates[0].ID != 7 || be.updates[0].Message.Text != "/start" {
		t.Fatalf("unexpected updates: %+v", be.updates)
	}
	if be.ctxErr != nil {
		t.Fatalf("processing ctx already done: %v", be.ctxErr)
	}
}

func TestWebhookRejectsBadInput(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		header  map[string]string
		code    int
		message string
	}{
		{name: "empty", body: "", code: http.StatusBadRequest, message: "No data received"},
		{name: "whitespace", body: "  \n", code: http.StatusBadRequest, message: "No data received"},
		{name: "malformed", body: "{not json", code: http.StatusBadRequest, message: "Invalid JSON"},
		{name: "wrong secret", body: `{"update_id":1}`, header: map[string]string{SecretHeader: "nope"}, code: http.StatusUnauthorized, message: "Unauthorized"},
		{name: "missing secret", body: `{"update_id":1}`, code: http.StatusUnauthorized, message: "Unauthorized"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			be := &fakeBackend{}
			h := New(Options{WebhookPath: "/hook", SecretToken: "s3cret"}, be).Handler()
			hdr := tt.header
			if hdr == nil && tt.name != "missing secret" {
				hdr = map[string]string{SecretHeader: "s3cret"}
			}
			rec := do(t, h, http.MethodPost, "/hook", tt.body, hdr)
			if rec.Code != tt.code {
				t.Fatalf("code = %d, want %d", rec.Code, tt.code)
			}
			if got := decode(t, rec)["error"]; got != tt.message {
				t.Fatalf("error = %v, want %s", got, tt.message)
			}
			if len(be.updates) != 0 {
				t.Fatalf("update should not be processed")
			}
		})
	}
}

func TestWebhookWithMatchingSecret(t *testing.T) {
	be := &fakeBackend{}
	h := New(Options{WebhookPath: "/hook", SecretToken: "s3cret"}, be).Handler()
	rec := do(t, h, http.MethodPost, "/hook", `{"update_id":1}`, map[string]string{SecretHeader: "s3cret"})
	if rec.Code != http.StatusOK || len(be.updates) != 1 {
		t.Fatalf("code = %d, updates = %d", rec.Code, len(be.updates))
	}
}

func TestHealthStatusCode(t *testing.T) {
	be := &fakeBackend{healthy: true}
	h := New(Options{}, be).Handler()
	if rec := do(t, h, http.MethodGet, "/health", "", nil); rec.Code != http.StatusOK {
		t.Fatalf("healthy code = %d", rec.Code)
	}
	be.healthy = false
	rec := do(t, h, http.MethodGet, "/health", "", nil)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy code = %d", rec.Code)
	}
	if got := decode(t, rec)["status"]; got != "unhealthy" {
		t.Fatalf("status = %v", got)
	}
}

func TestDiagnosticRoutes(t *testing.T) {
	be := &fakeBackend{healthy: true}
	h := New(Options{WebhookPath: "/hook"}, be).Handler()

	rec := do(t, h, http.MethodGet, "/metrics", "", nil)
	if rec.Code != http.StatusOK || !strings.HasPrefix(rec.Header().Get("Content-Type"), "text/plain") {
		t.Fatalf("metrics code=%d type=%s", rec.Code, rec.Header().Get("Content-Type"))
	}
	if !strings.Contains(rec.Body.String(), "bot_total_requests 3") {
		t.Fatalf("metrics body = %s", rec.Body.String())
	}

	if got := decode(t, do(t, h, http.MethodGet, "/debug", "", nil))["bot_state"]; got != "running" {
		t.Fatalf("debug bot_state = %v", got)
	}
	if got := decode(t, do(t, h, http.MethodGet, "/set_webhook", "", nil))["ok"]; got != true {
		t.Fatalf("set_webhook ok = %v", got)
	}
	if got := decode(t, do(t, h, http.MethodGet, "/webhook_info", "", nil))["url"]; got != "https://quiz.example.com/hook" {
		t.Fatalf("webhook_info url = %v", got)
	}

	be.infoErr = errors.New(`Post "https://api.telegram.org/bot1:abc/getWebhookInfo": EOF`)
	rec = do(t, h, http.MethodGet, "/webhook_info", "", nil)
	if rec.Code != http.StatusBadGateway || strings.Contains(rec.Body.String(), "bot1:abc") {
		t.Fatalf("webhook_info error code=%d body=%s", rec.Code, rec.Body.String())
	}
}

func TestNotFoundIsJSON(t *testing.T) {
	h := New(Options{WebhookPath: "/hook"}, &fakeBackend{}).Handler()
	rec := do(t, h, http.MethodGet, "/nope", "", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("code = %d", rec.Code)
	}
	if got := decode(t, rec)["error"]; got != "Endpoint not found" {
		t.Fatalf("error = %v", got)
	}
}

func TestRecovererReturns500(t *testing.T) {
	h := New(Options{WebhookPath: "/hook"}, &fakeBackend{panicOn: true}).Handler()
	rec := do(t, h, http.MethodPost, "/hook", `{"update_id":1}`, nil)
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("code = %d", rec.Code)
	}
}
