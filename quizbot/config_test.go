package quizbot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/m3rciful/quizbot/core/database"
)

func TestLoadConfigDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
telegram:
  token: "from-yaml"
webhook:
  url: "https://quiz.example.com/hook"
database:
  driver: sqlite3
quiz:
  max_questions: 5
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SESSION_TTL_SECONDS", "120")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if cfg.Telegram.Token != "from-yaml" {
		t.Fatalf("token = %q", cfg.Telegram.Token)
	}
	if cfg.SessionTTL() != 2*time.Minute {
		t.Fatalf("session ttl = %s, want env override", cfg.SessionTTL())
	}
	if cfg.Database.Driver != database.DriverSQLite || cfg.Database.Path != "quizbot.db" {
		t.Fatalf("database = %+v", cfg.Database)
	}
	if cfg.Quiz.MaxQuestions != 5 || cfg.PollDelay() != 50*time.Millisecond {
		t.Fatalf("quiz = %+v", cfg.Quiz)
	}
	if cfg.KeepAlive.URL != "https://quiz.example.com" || !cfg.KeepAliveEnabled() {
		t.Fatalf("keep alive = %+v", cfg.KeepAlive)
	}
	if cfg.Session.MaxSessions != 500 || cfg.Session.SweepIntervalSeconds != 300 {
		t.Fatalf("session = %+v", cfg.Session)
	}
}

func TestNormalizeKeepAliveWithoutURL(t *testing.T) {
	cfg := testConfig(t)
	if cfg.KeepAliveEnabled() {
		t.Fatalf("keep alive enabled without a public url: %+v", cfg.KeepAlive)
	}
}

func TestNormalizeRejectsNegativePollDelay(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "1:test"
	cfg.Quiz.PollDelayMS = -1
	if err := cfg.Normalize(); err == nil {
		t.Fatal("expected error for negative poll delay")
	}
}

func TestNormalizeRejectsUnknownDriver(t *testing.T) {
	cfg := &Config{}
	cfg.Telegram.Token = "1:test"
	cfg.Database.Driver = "mongo"
	if err := cfg.Normalize(); err == nil {
		t.Fatal("expected error for unknown storage driver")
	}
}
