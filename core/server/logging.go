package server

import (
	"log/slog"
	"net/http"
	"time"

	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/m3rciful/quizbot/core/logger"
)

// requestLog writes one http.request line per call. The webhook path may
// embed a secret, so it is logged by name only.
func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		path := r.URL.Path
		if s.opts.WebhookPath != "" && path == s.opts.WebhookPath {
			path = "<webhook>"
		}
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		level := slog.LevelDebug
		outcome := "ok"
		if status >= 500 {
			level = slog.LevelWarn
			outcome = "fail"
		}
		logger.LogEvent(r.Context(), logger.HTTP, level, "http.request",
			slog.String("outcome", outcome),
			slog.String("method", r.Method),
			slog.String("path", logger.SanitizeLimit(path, 128)),
			slog.Int("code", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.String("remote", r.RemoteAddr),
			slog.Duration("duration", logger.Took(start)),
		)
	})
}
