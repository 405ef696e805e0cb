// Package bootstrap initializes logging and durable storage before the bot starts.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"

	coreconfig "github.com/m3rciful/quizbot/core/config"
	coredatabase "github.com/m3rciful/quizbot/core/database"
	"github.com/m3rciful/quizbot/core/logger"
)

// Options control the bootstrap pipeline.
type Options struct {
	Config   *coreconfig.Config
	Database coredatabase.Config

	LoggerInit func(*coreconfig.Config) error
	WaitReady  func(context.Context, coredatabase.Config, time.Duration) error
	Connect    func(context.Context, coredatabase.Config) (*sqlx.DB, error)
	Migrate    func(coredatabase.Config) error
}

// Result exposes infrastructure initialized by the bootstrap pipeline.
type Result struct {
	// DB is nil when the memory driver is selected or storage is degraded.
	DB *sqlx.DB
	// Degraded is set when a durable driver was configured but could not
	// be brought up; sessions then live in memory only.
	Degraded bool
}

// Run initializes the logger, then connects to the database and applies
// migrations. Storage failures are not fatal: the result reports them as
// Degraded so the bot can keep serving from memory.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.Config == nil {
		return nil, fmt.Errorf("bootstrap: nil config provided")
	}

	loggerInit := opts.LoggerInit
	if loggerInit == nil {
		loggerInit = logger.InitLogger
	}
	if err := loggerInit(opts.Config); err != nil {
		return nil, fmt.Errorf("bootstrap: logger init failed: %w", err)
	}

	if !opts.Database.Durable() {
		logger.STORE.Info("memory storage selected",
			slog.String("event", "storage.select"),
			slog.String("driver", opts.Database.Driver),
		)
		return &Result{}, nil
	}

	waitReady := opts.WaitReady
	if waitReady == nil {
		waitReady = coredatabase.WaitReady
	}
	connect := opts.Connect
	if connect == nil {
		connect = coredatabase.Connect
	}
	migrate := opts.Migrate
	if migrate == nil {
		migrate = coredatabase.RunMigrations
	}

	wait := time.Duration(opts.Database.WaitSeconds) * time.Second
	if err := waitReady(ctx, opts.Database, wait); err != nil {
		return degraded(opts.Database, "wait", err), nil
	}
	db, err := connect(ctx, opts.Database)
	if err != nil {
		return degraded(opts.Database, "connect", err), nil
	}
	if err := migrate(opts.Database); err != nil {
		_ = db.Close()
		return degraded(opts.Database, "migrate", err), nil
	}
	return &Result{DB: db}, nil
}

func degraded(cfg coredatabase.Config, stage string, err error) *Result {
	logger.STORE.Warn("durable storage unavailable, using memory",
		slog.String("event", "storage.degraded"),
		slog.String("status", "fail"),
		slog.String("driver", cfg.Driver),
		slog.String("db", cfg.Target()),
		slog.String("stage", stage),
		slog.String("err", err.Error()),
	)
	return &Result{Degraded: true}
}
