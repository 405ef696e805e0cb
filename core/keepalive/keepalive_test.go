package keepalive

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestTickPingsOnlyWhenIdle(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Errorf("path = %s", r.URL.Path)
		}
		hits.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	now := time.Unix(1_700_000_000, 0)
	last := now.Add(-5 * time.Minute)
	var pings int
	w, err := New(Options{
		URL:          srv.URL + "/",
		Idle:         10 * time.Minute,
		LastActivity: func() time.Time { return last },
		Client:       srv.Client(),
		OnPing:       func() { pings++ },
		Now:          func() time.Time { return now },
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if w.Target() != srv.URL+"/health" {
		t.Fatalf("target = %s", w.Target())
	}

	if w.Tick(context.Background()) {
		t.Fatalf("should not ping while active")
	}
	last = now.Add(-11 * time.Minute)
	if !w.Tick(context.Background()) {
		t.Fatalf("expected ping after idle threshold")
	}
	if hits.Load() != 1 || pings != 1 {
		t.Fatalf("hits = %d, pings = %d", hits.Load(), pings)
	}
}

func TestPingFailureIsNotCounted(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	var pings int
	w, err := New(Options{URL: srv.URL, Client: srv.Client(), OnPing: func() { pings++ }})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if err := w.Ping(context.Background()); err == nil {
		t.Fatalf("expected error on 503")
	}
	if pings != 0 {
		t.Fatalf("pings = %d", pings)
	}
}

func TestNewRequiresURL(t *testing.T) {
	if _, err := New(Options{URL: "  "}); err == nil {
		t.Fatalf("expected error")
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	w, err := New(Options{URL: "http://127.0.0.1:1", Interval: time.Hour})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Run(ctx) }()
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not stop")
	}
}
