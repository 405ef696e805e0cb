// Package cmd holds the process entry helpers shared by bot binaries.
package cmd

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/m3rciful/quizbot/core/logger"
)

// App is a fully assembled bot process.
type App interface {
	Run(ctx context.Context) error
}

// Options describe how to load configuration and build the app.
type Options struct {
	ConfigEnvVar      string
	DefaultConfigPath string

	// Build loads the configuration found at path and assembles the app.
	Build func(ctx context.Context, path string) (App, error)

	ShutdownLogger func() error
}

// Run resolves the config path, builds the app and runs it until SIGINT
// or SIGTERM.
func Run(opts Options) error {
	if opts.Build == nil {
		return fmt.Errorf("cmd: Build is required")
	}

	env := opts.ConfigEnvVar
	if env == "" {
		env = "CONFIG_PATH"
	}
	cfgPath := os.Getenv(env)
	if cfgPath == "" {
		cfgPath = opts.DefaultConfigPath
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("loading config: %s", cfgPath)
	application, err := opts.Build(ctx, cfgPath)
	if err != nil {
		return fmt.Errorf("cmd: bootstrap failed: %w", err)
	}

	shutdownLogger := opts.ShutdownLogger
	if shutdownLogger == nil {
		shutdownLogger = logger.Shutdown
	}
	defer func() {
		if err := shutdownLogger(); err != nil {
			log.Printf("logger shutdown error: %v", err)
		}
	}()

	err = application.Run(ctx)
	logger.L.With("component", "app").Info("shutting down...",
		slog.String("event", "shutdown"),
		slog.String("status", logger.Status(err)),
	)
	return err
}
