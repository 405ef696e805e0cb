package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadYAMLWithEnvOverride(t *testing.T) {
	path := writeConfig(t, `
telegram:
  token: "from-yaml"
webhook:
  url: "https://quiz.example.com/hook/abc"
`)
	t.Setenv("TELEGRAM_BOT_TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "from-env" {
		t.Fatalf("token = %q, want env override", cfg.Telegram.Token)
	}
	if cfg.Telegram.RunMode != RunModeWebhook {
		t.Fatalf("run mode = %q, want webhook when url is set", cfg.Telegram.RunMode)
	}
	if got := cfg.Webhook.Path(); got != "/hook/abc" {
		t.Fatalf("webhook path = %q", got)
	}
	if got := cfg.Webhook.BaseURL(); got != "https://quiz.example.com" {
		t.Fatalf("base url = %q", got)
	}
	if cfg.Webhook.Port != 8080 || cfg.Webhook.Listen != "0.0.0.0" {
		t.Fatalf("listener defaults not applied: %+v", cfg.Webhook)
	}
}

func TestLoadMissingFileUsesEnv(t *testing.T) {
	t.Setenv("BOT_TOKEN", "123:abc")
	t.Setenv("PORT", "10000")

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Telegram.Token != "123:abc" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.RunMode != RunModeLongpoll {
		t.Fatalf("run mode = %q, want longpoll without webhook url", cfg.Telegram.RunMode)
	}
	if cfg.Webhook.Port != 10000 {
		t.Fatalf("port = %d, want 10000 from PORT", cfg.Webhook.Port)
	}
	if cfg.Telegram.APIURL != DefaultAPIURL {
		t.Fatalf("api url = %q", cfg.Telegram.APIURL)
	}
}

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "missing token", cfg: Config{}, wantErr: true},
		{
			name:    "webhook without url",
			cfg:     Config{Telegram: TelegramConfig{Token: "t", RunMode: "webhook"}},
			wantErr: true,
		},
		{
			name:    "relative webhook url",
			cfg:     Config{Telegram: TelegramConfig{Token: "t", RunMode: "webhook"}, Webhook: WebhookConfig{URL: "/hook"}},
			wantErr: true,
		},
		{
			name: "polling alias",
			cfg:  Config{Telegram: TelegramConfig{Token: "t", RunMode: "polling"}},
		},
		{
			name:    "unknown run mode",
			cfg:     Config{Telegram: TelegramConfig{Token: "t", RunMode: "smoke"}},
			wantErr: true,
		},
		{
			name:    "bad rate limit exclusion",
			cfg:     Config{Telegram: TelegramConfig{Token: "t"}, RateLimit: RateLimitConfig{ExcludeUpdates: []string{"poll"}}},
			wantErr: true,
		},
		{
			name:    "port out of range",
			cfg:     Config{Telegram: TelegramConfig{Token: "t"}, Webhook: WebhookConfig{Port: 70000}},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := tt.cfg
			err := Normalize(&cfg)
			if tt.wantErr && err == nil {
				t.Fatalf("expected error")
			}
			if !tt.wantErr && err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestNormalizeDefaults(t *testing.T) {
	cfg := Config{
		Telegram:  TelegramConfig{Token: " t "},
		RateLimit: RateLimitConfig{ExcludeUpdates: []string{" Callback "}},
	}
	if err := Normalize(&cfg); err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if cfg.Telegram.Token != "t" {
		t.Fatalf("token not trimmed: %q", cfg.Telegram.Token)
	}
	if cfg.Telegram.MaxAttempts != 3 || cfg.Telegram.MinRequestIntervalMS != 100 || cfg.Telegram.RequestTimeoutSeconds != 30 {
		t.Fatalf("gateway defaults not applied: %+v", cfg.Telegram)
	}
	if cfg.RateLimit.ExcludeUpdates[0] != UpdateCallback {
		t.Fatalf("exclusion not normalized: %q", cfg.RateLimit.ExcludeUpdates[0])
	}
	if cfg.Webhook.Path() != "/webhook" {
		t.Fatalf("default webhook path = %q", cfg.Webhook.Path())
	}
}
