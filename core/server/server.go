// Package server exposes the webhook endpoint and the diagnostic routes
// over a chi router.
package server

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/quizbot/core/logger"
)

// SecretHeader carries the webhook secret token set via setWebhook.
const SecretHeader = "X-Telegram-Bot-Api-Secret-Token"

const maxUpdateBytes = 1 << 20

// Backend is the bot-side surface the routes call into.
type Backend interface {
	// HandleUpdate processes one update. Failures are handled inside.
	HandleUpdate(ctx context.Context, upd *tele.Update)
	// Health returns the health document and whether the bot is healthy.
	Health(ctx context.Context) (any, bool)
	Debug(ctx context.Context) any
	// Metrics renders plain text exposition lines.
	Metrics(ctx context.Context) string
	RegisterWebhook(ctx context.Context) (any, error)
	WebhookInfo(ctx context.Context) (any, error)
}

// Options configures the listener and the webhook route.
type Options struct {
	Listen string
	Port   int
	// WebhookPath is the route Telegram posts updates to. Empty disables it.
	WebhookPath string
	// SecretToken, when set, must match SecretHeader on every webhook call.
	SecretToken string
	// ProcessTimeout bounds the handling of one update after the request
	// has been read.
	ProcessTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// Server is the HTTP front of the bot.
type Server struct {
	opts    Options
	backend Backend
	router  chi.Router
}

// New builds the router. Call Run to start listening.
func New(opts Options, backend Backend) *Server {
	if opts.ProcessTimeout <= 0 {
		opts.ProcessTimeout = 2 * time.Minute
	}
	if opts.ShutdownTimeout <= 0 {
		opts.ShutdownTimeout = 10 * time.Second
	}
	s := &Server{opts: opts, backend: backend}
	s.router = s.routes()
	return s
}

// Handler returns the root handler, mainly for tests.
func (s *Server) Handler() http.Handler { return s.router }

// Addr returns host:port the server listens on.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.opts.Listen, strconv.Itoa(s.opts.Port))
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(s.requestLog)
	r.Use(chimw.Recoverer)

	if p := strings.TrimSpace(s.opts.WebhookPath); p != "" {
		r.Post(p, s.handleWebhook)
	}
	r.Get("/health", s.handleHealth)
	r.Get("/debug", s.handleDebug)
	r.Get("/metrics", s.handleMetrics)
	r.Get("/set_webhook", s.handleSetWebhook)
	r.Get("/webhook_info", s.handleWebhookInfo)

	r.NotFound(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]any{"error": "Endpoint not found"})
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "Method not allowed"})
	})
	return r
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.LogEvent(ctx, logger.HTTP, slog.LevelInfo, "http.listen",
			slog.String("addr", srv.Addr),
			slog.Bool("webhook", s.opts.WebhookPath != ""),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.opts.ShutdownTimeout)
	defer cancel()
	err := srv.Shutdown(shutdownCtx)
	logger.LogEvent(ctx, logger.HTTP, slog.LevelInfo, "http.shutdown",
		slog.String("status", logger.Status(err)),
	)
	if err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if secret := s.opts.SecretToken; secret != "" {
		got := r.Header.Get(SecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			logger.LogEvent(r.Context(), logger.HTTP, slog.LevelWarn, "webhook.rejected",
				slog.String("status", "fail"),
				slog.String("reason", "secret_mismatch"),
				slog.String("remote", r.RemoteAddr),
			)
			writeJSON(w, http.StatusUnauthorized, map[string]any{"error": "Unauthorized"})
			return
		}
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxUpdateBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeJSON(w, http.StatusRequestEntityTooLarge, map[string]any{"error": "Payload too large"})
			return
		}
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "No data received"})
		return
	}
	if len(strings.TrimSpace(string(body))) == 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "No data received"})
		return
	}

	var upd tele.Update
	if err := json.Unmarshal(body, &upd); err != nil {
		logger.LogEvent(r.Context(), logger.HTTP, slog.LevelWarn, "webhook.decode",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": "Invalid JSON"})
		return
	}

	// A dropped connection must not abort a half-sent poll batch.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), s.opts.ProcessTimeout)
	defer cancel()
	s.backend.HandleUpdate(ctx, &upd)

	writeJSON(w, http.StatusOK, map[string]any{"ok": true})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	doc, healthy := s.backend.Health(r.Context())
	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, doc)
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.backend.Debug(r.Context()))
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, s.backend.Metrics(r.Context()))
}

func (s *Server) handleSetWebhook(w http.ResponseWriter, r *http.Request) {
	res, err := s.backend.RegisterWebhook(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"ok": false, "error": logger.Redact(err.Error())})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "result": res})
}

func (s *Server) handleWebhookInfo(w http.ResponseWriter, r *http.Request) {
	res, err := s.backend.WebhookInfo(r.Context())
	if err != nil {
		writeJSON(w, http.StatusBadGateway, map[string]any{"error": "Failed to get webhook info", "detail": logger.Redact(err.Error())})
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.LogEvent(context.Background(), logger.HTTP, slog.LevelWarn, "http.encode",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
}
