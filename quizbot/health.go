package quizbot

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m3rciful/quizbot/core/buildinfo"
	"github.com/m3rciful/quizbot/core/stats"
	tg "github.com/m3rciful/quizbot/core/telegram"
)

// HealthReport is the /health document.
type HealthReport struct {
	Status            string    `json:"status"`
	State             string    `json:"state"`
	Timestamp         time.Time `json:"timestamp"`
	UptimeSeconds     int64     `json:"uptime_seconds"`
	UptimeHuman       string    `json:"uptime_human"`
	ActiveUsers       int       `json:"active_users"`
	TotalRequests     int64     `json:"total_requests"`
	SuccessfulPolls   int64     `json:"successful_polls"`
	Errors            int64     `json:"errors"`
	APICalls          int64     `json:"api_calls"`
	RateLimitHits     int64     `json:"rate_limit_hits"`
	RecoveryAttempts  int64     `json:"recovery_attempts"`
	KeepAlivePings    int64     `json:"keep_alive_pings"`
	LastActivity      time.Time `json:"last_activity"`
	PersistentStorage bool      `json:"persistent_storage"`
	StoreKind         string    `json:"store_kind"`
}

// Report builds a point-in-time health snapshot. It only reads.
func (b *Bot) Report(ctx context.Context) HealthReport {
	now := b.now()
	snap := b.stats.Snapshot(now)
	lc := b.Lifecycle()
	status := "unhealthy"
	if lc == LifecycleRunning {
		status = "healthy"
	}
	return HealthReport{
		Status:            status,
		State:             lc.String(),
		Timestamp:         now.UTC(),
		UptimeSeconds:     int64(snap.Uptime / time.Second),
		UptimeHuman:       stats.HumanUptime(snap.Uptime),
		ActiveUsers:       b.sessions.Len(ctx),
		TotalRequests:     snap.TotalRequests,
		SuccessfulPolls:   snap.SuccessfulPolls,
		Errors:            snap.Errors,
		APICalls:          snap.APICalls,
		RateLimitHits:     snap.RateLimitHits,
		RecoveryAttempts:  snap.RecoveryAttempts,
		KeepAlivePings:    snap.KeepAlivePings,
		LastActivity:      snap.LastActivity.UTC(),
		PersistentStorage: b.sessions.Persistent(),
		StoreKind:         b.sessions.StoreKind(),
	}
}

// Health implements server.Backend.
func (b *Bot) Health(ctx context.Context) (any, bool) {
	r := b.Report(ctx)
	return r, r.Status == "healthy"
}

// Debug implements server.Backend. It includes a live getMe call.
func (b *Bot) Debug(ctx context.Context) any {
	cfg := b.cfg
	out := map[string]any{
		"bot_token_configured": cfg.Telegram.Token != "",
		"run_mode":             cfg.Telegram.RunMode,
		"webhook_url":          cfg.Webhook.BaseURL(),
		"bot_state":            b.Lifecycle().String(),
		"build":                buildinfo.Current(),
		"health_status":        b.Report(ctx),
		"storage_driver":       cfg.Database.Driver,
		"persistent_storage":   b.sessions.Persistent(),
		"memory_store_keys":    b.sessions.Keys(ctx, 10),
		"commands":             b.registry.ListCommands(false),
	}
	me, err := b.api.GetMe(ctx)
	if err != nil {
		out["bot_api_status"] = "error: " + err.Error()
		return out
	}
	out["bot_username"] = me.Username
	out["bot_name"] = me.FirstName
	out["bot_api_status"] = "ok"
	return out
}

type metric struct {
	name, help, kind string
	value            int64
}

// Metrics implements server.Backend with plain text exposition lines.
func (b *Bot) Metrics(ctx context.Context) string {
	r := b.Report(ctx)
	metrics := []metric{
		{"bot_uptime_seconds", "Bot uptime in seconds", "counter", r.UptimeSeconds},
		{"bot_total_requests", "Total number of processed updates", "counter", r.TotalRequests},
		{"bot_successful_polls", "Total quiz polls delivered", "counter", r.SuccessfulPolls},
		{"bot_errors", "Total errors encountered", "counter", r.Errors},
		{"bot_api_calls", "Total Bot API calls", "counter", r.APICalls},
		{"bot_rate_limit_hits", "Total HTTP 429 answers", "counter", r.RateLimitHits},
		{"bot_keep_alive_pings", "Total successful keep-alive pings", "counter", r.KeepAlivePings},
		{"bot_active_users", "Current live sessions", "gauge", int64(r.ActiveUsers)},
	}
	var sb strings.Builder
	for _, m := range metrics {
		fmt.Fprintf(&sb, "# HELP %s %s\n# TYPE %s %s\n%s %d\n", m.name, m.help, m.name, m.kind, m.name, m.value)
	}
	return sb.String()
}

// RegisterWebhook implements server.Backend by calling setWebhook with
// the configured URL.
func (b *Bot) RegisterWebhook(ctx context.Context) (any, error) {
	req := tg.WebhookRequest(&b.cfg.Config)
	if req.URL == "" {
		return nil, fmt.Errorf("webhook url is not configured")
	}
	if err := b.api.SetWebhook(ctx, req); err != nil {
		return nil, err
	}
	return map[string]any{"url": b.cfg.Webhook.BaseURL(), "secret_token": req.SecretToken != ""}, nil
}

// WebhookInfo implements server.Backend.
func (b *Bot) WebhookInfo(ctx context.Context) (any, error) {
	return b.api.GetWebhookInfo(ctx)
}
