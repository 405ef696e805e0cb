package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// DefaultAPIURL is the public Telegram Bot API endpoint.
const DefaultAPIURL = "https://api.telegram.org"

// TelegramConfig holds Telegram bot related settings that are common for all bots.
type TelegramConfig struct {
	Token   string `yaml:"token" envconfig:"BOT_TOKEN"`
	RunMode string `yaml:"run_mode" envconfig:"RUN_MODE"`
	// LongPollTimeoutSeconds defines long polling timeout; 0 -> default
	LongPollTimeoutSeconds int `yaml:"longpoll_timeout_seconds" envconfig:"LONGPOLL_TIMEOUT_SECONDS"`
	// APIURL overrides the Bot API base, e.g. for a local bot-api server.
	APIURL string `yaml:"api_url" envconfig:"API_URL"`

	RequestTimeoutSeconds int `yaml:"request_timeout_seconds" envconfig:"REQUEST_TIMEOUT_SECONDS"`
	// MinRequestIntervalMS spaces outgoing API calls; negative disables spacing.
	MinRequestIntervalMS int `yaml:"min_request_interval_ms" envconfig:"MIN_REQUEST_INTERVAL_MS"`
	MaxAttempts          int `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	RetryBackoffMS       int `yaml:"retry_backoff_ms" envconfig:"RETRY_BACKOFF_MS"`
	MaxRetryAfterSeconds int `yaml:"max_retry_after_seconds" envconfig:"MAX_RETRY_AFTER_SECONDS"`
	// SkipCommands disables setMyCommands at startup.
	SkipCommands bool `yaml:"skip_commands" envconfig:"SKIP_COMMANDS"`
}

// WebhookConfig specifies webhook settings. Listen and Port also bind the
// HTTP server that exposes health endpoints in long polling mode.
type WebhookConfig struct {
	URL         string `yaml:"url" envconfig:"WEBHOOK_URL"`
	Listen      string `yaml:"listen" envconfig:"WEBHOOK_LISTEN"`
	Port        int    `yaml:"port" envconfig:"PORT"`
	SecretToken string `yaml:"secret_token" envconfig:"WEBHOOK_SECRET"`
	// Register calls setWebhook on startup.
	Register           bool `yaml:"register" envconfig:"WEBHOOK_REGISTER"`
	DropPending        bool `yaml:"drop_pending" envconfig:"WEBHOOK_DROP_PENDING"`
	MaxConnections     int  `yaml:"max_connections" envconfig:"WEBHOOK_MAX_CONNECTIONS"`
	ProcessTimeoutSecs int  `yaml:"process_timeout_seconds" envconfig:"WEBHOOK_PROCESS_TIMEOUT_SECONDS"`
}

// Path returns the route the webhook is served on, derived from URL.
func (w WebhookConfig) Path() string {
	if u, err := url.Parse(strings.TrimSpace(w.URL)); err == nil && u.Path != "" && u.Path != "/" {
		return u.Path
	}
	return "/webhook"
}

// BaseURL returns scheme://host of the public webhook URL, or "".
func (w WebhookConfig) BaseURL() string {
	u, err := url.Parse(strings.TrimSpace(w.URL))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// LoggingConfig defines logging related configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" envconfig:"LOG_LEVEL"`
	Format      string `yaml:"format" envconfig:"LOG_FORMAT"`
	KeysOrder   string `yaml:"keys_order"`
	DebugSample string `yaml:"debug_sample"`
	Dir         string `yaml:"dir" envconfig:"LOG_DIR"`
	BotFile     string `yaml:"bot_file"`
	// Profile indicates environment profile such as "debug" or "prod".
	Profile string `yaml:"profile" envconfig:"LOG_PROFILE"`
}

const (
	// RunModeWebhook selects webhook mode for Telegram updates.
	RunModeWebhook = "webhook"
	// RunModeLongpoll selects long-polling mode for Telegram updates.
	RunModeLongpoll = "longpoll"
)

const (
	// UpdateCallback identifies callback updates for rate limit exclusions.
	UpdateCallback = "callback"
	// UpdateMessage identifies message updates for rate limit exclusions.
	UpdateMessage = "message"
)

// RateLimitConfig holds settings for per-user rate limiting.
// ExcludeUpdates accepts update types to bypass limiting:
// - "callback": Telegram callback button presses
// - "message": standard text messages
type RateLimitConfig struct {
	IntervalMS     int      `yaml:"interval_ms" envconfig:"RATE_LIMIT_INTERVAL_MS"`
	ExcludeUpdates []string `yaml:"exclude_updates" envconfig:"RATE_LIMIT_EXCLUDE_UPDATES"`
}

// Config aggregates the configuration that belongs to the reusable core.
type Config struct {
	Telegram  TelegramConfig  `yaml:"telegram"`
	Webhook   WebhookConfig   `yaml:"webhook"`
	Logging   LoggingConfig   `yaml:"logging"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
}

// Load reads configuration from a YAML file and environment variables.
func Load(path string) (*Config, error) {
	var cfg Config
	if err := LoadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := Normalize(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadInto fills dst from an optional .env file, an optional YAML file and
// the process environment, in that order of precedence (env wins).
// A missing YAML file is not an error so env-only deployments work.
func LoadInto(path string, dst any) error {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}

	if path = strings.TrimSpace(path); path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, fs.ErrNotExist):
		case err != nil:
			return fmt.Errorf("failed to read config file: %w", err)
		default:
			if err := yaml.Unmarshal(data, dst); err != nil {
				return fmt.Errorf("failed to parse YAML config: %w", err)
			}
		}
	}

	if err := envconfig.Process("", dst); err != nil {
		return fmt.Errorf("failed to process env: %w", err)
	}
	return nil
}

// Normalize performs basic validation of required configuration fields and adjusts defaults.
func Normalize(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("nil config")
	}

	cfg.Telegram.Token = strings.TrimSpace(cfg.Telegram.Token)
	if cfg.Telegram.Token == "" {
		return fmt.Errorf("telegram token is required")
	}
	if strings.TrimSpace(cfg.Telegram.APIURL) == "" {
		cfg.Telegram.APIURL = DefaultAPIURL
	}
	cfg.Telegram.APIURL = strings.TrimRight(strings.TrimSpace(cfg.Telegram.APIURL), "/")

	rm := strings.ToLower(strings.TrimSpace(cfg.Telegram.RunMode))
	if rm == "" {
		rm = RunModeLongpoll
		if strings.TrimSpace(cfg.Webhook.URL) != "" {
			rm = RunModeWebhook
		}
	}
	if rm == "polling" { // accept alias
		rm = RunModeLongpoll
	}
	switch rm {
	case RunModeWebhook:
		if strings.TrimSpace(cfg.Webhook.URL) == "" {
			return fmt.Errorf("webhook.url is required when telegram.run_mode is 'webhook'")
		}
		if cfg.Webhook.BaseURL() == "" {
			return fmt.Errorf("webhook.url %q must be an absolute URL", cfg.Webhook.URL)
		}
	case RunModeLongpoll:
		if cfg.Telegram.LongPollTimeoutSeconds < 0 {
			return fmt.Errorf("telegram.longpoll_timeout_seconds must be >= 0")
		}
	default:
		return fmt.Errorf("invalid telegram.run_mode %q; allowed: webhook, longpoll", cfg.Telegram.RunMode)
	}
	cfg.Telegram.RunMode = rm

	if strings.TrimSpace(cfg.Webhook.Listen) == "" {
		cfg.Webhook.Listen = "0.0.0.0"
	}
	if cfg.Webhook.Port == 0 {
		cfg.Webhook.Port = 8080
	}
	if cfg.Webhook.Port < 0 || cfg.Webhook.Port > 65535 {
		return fmt.Errorf("webhook.port %d out of range", cfg.Webhook.Port)
	}
	if cfg.Webhook.ProcessTimeoutSecs <= 0 {
		cfg.Webhook.ProcessTimeoutSecs = 120
	}

	if cfg.Telegram.RequestTimeoutSeconds <= 0 {
		cfg.Telegram.RequestTimeoutSeconds = 30
	}
	if cfg.Telegram.MinRequestIntervalMS == 0 {
		cfg.Telegram.MinRequestIntervalMS = 100
	}
	if cfg.Telegram.MaxAttempts <= 0 {
		cfg.Telegram.MaxAttempts = 3
	}
	if cfg.Telegram.RetryBackoffMS <= 0 {
		cfg.Telegram.RetryBackoffMS = 1000
	}
	if cfg.Telegram.MaxRetryAfterSeconds <= 0 {
		cfg.Telegram.MaxRetryAfterSeconds = 30
	}

	if cfg.RateLimit.IntervalMS < 0 {
		return fmt.Errorf("rate_limit.interval_ms must be >= 0")
	}
	allowed := map[string]struct{}{
		UpdateCallback: {},
		UpdateMessage:  {},
	}
	for i, v := range cfg.RateLimit.ExcludeUpdates {
		key := strings.ToLower(strings.TrimSpace(v))
		if key == "" {
			continue
		}
		if _, ok := allowed[key]; !ok {
			return fmt.Errorf("invalid rate_limit.exclude_updates value %q; allowed: callback, message", v)
		}
		cfg.RateLimit.ExcludeUpdates[i] = key
	}
	return nil
}
