package quizbot

import (
	"fmt"
	"strings"
	"time"

	coreconfig "github.com/m3rciful/quizbot/core/config"
	"github.com/m3rciful/quizbot/core/database"
	"github.com/m3rciful/quizbot/quiz"
)

// SessionConfig tunes the session store.
type SessionConfig struct {
	TTLSeconds           int `yaml:"ttl_seconds" envconfig:"SESSION_TTL_SECONDS"`
	SweepIntervalSeconds int `yaml:"sweep_interval_seconds" envconfig:"SESSION_SWEEP_INTERVAL_SECONDS"`
	// MaxSessions bounds the in-memory store.
	MaxSessions int `yaml:"max_sessions" envconfig:"SESSION_MAX_SESSIONS"`
}

// QuizConfig tunes submission handling.
type QuizConfig struct {
	MaxQuestions int `yaml:"max_questions" envconfig:"QUIZ_MAX_QUESTIONS"`
	PollDelayMS  int `yaml:"poll_delay_ms" envconfig:"QUIZ_POLL_DELAY_MS"`
}

// KeepAliveConfig tunes the self-ping worker.
type KeepAliveConfig struct {
	Disabled bool `yaml:"disabled" envconfig:"KEEPALIVE_DISABLED"`
	// URL defaults to scheme://host of the webhook URL.
	URL             string `yaml:"url" envconfig:"KEEPALIVE_URL"`
	IntervalSeconds int    `yaml:"interval_seconds" envconfig:"KEEPALIVE_INTERVAL_SECONDS"`
	IdleSeconds     int    `yaml:"idle_seconds" envconfig:"KEEPALIVE_IDLE_SECONDS"`
}

// Config is the full bot configuration.
type Config struct {
	coreconfig.Config `yaml:",inline"`

	Database  database.Config `yaml:"database"`
	Session   SessionConfig   `yaml:"session"`
	Quiz      QuizConfig      `yaml:"quiz"`
	KeepAlive KeepAliveConfig `yaml:"keep_alive"`
}

// CoreConfig exposes the embedded core configuration.
func (c *Config) CoreConfig() *coreconfig.Config { return &c.Config }

// LoadConfig reads path (optional), .env and the environment, then
// validates the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := coreconfig.LoadInto(path, &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Normalize applies defaults and validates every section.
func (c *Config) Normalize() error {
	if err := coreconfig.Normalize(&c.Config); err != nil {
		return err
	}
	if err := c.Database.Normalize(); err != nil {
		return err
	}

	if c.Session.TTLSeconds <= 0 {
		c.Session.TTLSeconds = 3600
	}
	if c.Session.SweepIntervalSeconds <= 0 {
		c.Session.SweepIntervalSeconds = 300
	}
	if c.Session.MaxSessions <= 0 {
		c.Session.MaxSessions = 500
	}

	if c.Quiz.MaxQuestions <= 0 {
		c.Quiz.MaxQuestions = quiz.DefaultMaxQuestions
	}
	if c.Quiz.PollDelayMS < 0 {
		return fmt.Errorf("quiz.poll_delay_ms must be >= 0")
	}
	if c.Quiz.PollDelayMS == 0 {
		c.Quiz.PollDelayMS = 50
	}

	if strings.TrimSpace(c.KeepAlive.URL) == "" {
		c.KeepAlive.URL = c.Webhook.BaseURL()
	}
	c.KeepAlive.URL = strings.TrimRight(strings.TrimSpace(c.KeepAlive.URL), "/")
	if c.KeepAlive.IntervalSeconds <= 0 {
		c.KeepAlive.IntervalSeconds = 60
	}
	if c.KeepAlive.IdleSeconds <= 0 {
		c.KeepAlive.IdleSeconds = 600
	}
	return nil
}

// SessionTTL returns the session time-to-live.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLSeconds) * time.Second
}

// PollDelay returns the pause between consecutive polls.
func (c *Config) PollDelay() time.Duration {
	return time.Duration(c.Quiz.PollDelayMS) * time.Millisecond
}

// KeepAliveEnabled reports whether the self-ping worker should run.
func (c *Config) KeepAliveEnabled() bool {
	return !c.KeepAlive.Disabled && c.KeepAlive.URL != ""
}
