package quizbot

import (
	"context"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
	"golang.org/x/sync/errgroup"

	"github.com/m3rciful/quizbot/core/bootstrap"
	coreconfig "github.com/m3rciful/quizbot/core/config"
	"github.com/m3rciful/quizbot/core/keepalive"
	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/server"
	"github.com/m3rciful/quizbot/core/stats"
	tg "github.com/m3rciful/quizbot/core/telegram"
	"github.com/m3rciful/quizbot/core/telegram/sender"
	"github.com/m3rciful/quizbot/core/telegram/state"
)

// App owns every long running part of the process.
type App struct {
	cfg       *Config
	gateway   *sender.Gateway
	bot       *Bot
	server    *server.Server
	keepalive *keepalive.Worker
	sweeper   state.Sweeper
	startedAt time.Time
}

// NewApp initializes logging and storage, then assembles the bot. A
// durable store that cannot be reached leaves the bot on memory sessions.
func NewApp(ctx context.Context, cfg *Config) (*App, error) {
	boot, err := bootstrap.Run(ctx, bootstrap.Options{
		Config:   &cfg.Config,
		Database: cfg.Database,
	})
	if err != nil {
		return nil, err
	}
	return Assemble(cfg, boot.DB)
}

// Assemble builds the app around an already opened database, which may be nil.
func Assemble(cfg *Config, db *sqlx.DB) (*App, error) {
	now := time.Now()
	st := stats.New(now)
	tcfg := cfg.Telegram

	gw := sender.New(sender.Options{
		BaseURL:       tcfg.APIURL,
		Token:         tcfg.Token,
		Client:        tg.BuildHTTPClient(time.Duration(tcfg.RequestTimeoutSeconds) * time.Second),
		MinInterval:   time.Duration(tcfg.MinRequestIntervalMS) * time.Millisecond,
		MaxAttempts:   tcfg.MaxAttempts,
		Backoff:       time.Duration(tcfg.RetryBackoffMS) * time.Millisecond,
		MaxRetryAfter: time.Duration(tcfg.MaxRetryAfterSeconds) * time.Second,
		Recorder:      st,
	})

	store, err := buildStore(cfg, db)
	if err != nil {
		return nil, err
	}
	sessions := state.NewManager(store, cfg.SessionTTL(), time.Now)

	bot, err := New(Deps{
		Config:   cfg,
		API:      gw,
		Sessions: sessions,
		Stats:    st,
	})
	if err != nil {
		return nil, err
	}

	var hookPath string
	if cfg.Telegram.RunMode == coreconfig.RunModeWebhook {
		hookPath = cfg.Webhook.Path()
	}
	srv := server.New(server.Options{
		Listen:         cfg.Webhook.Listen,
		Port:           cfg.Webhook.Port,
		WebhookPath:    hookPath,
		SecretToken:    cfg.Webhook.SecretToken,
		ProcessTimeout: time.Duration(cfg.Webhook.ProcessTimeoutSecs) * time.Second,
	}, bot)

	app := &App{
		cfg:       cfg,
		gateway:   gw,
		bot:       bot,
		server:    srv,
		sweeper:   state.Sweeper{Store: store, Interval: time.Duration(cfg.Session.SweepIntervalSeconds) * time.Second},
		startedAt: now,
	}
	if cfg.KeepAliveEnabled() {
		app.keepalive, err = keepalive.New(keepalive.Options{
			URL:          cfg.KeepAlive.URL,
			Interval:     time.Duration(cfg.KeepAlive.IntervalSeconds) * time.Second,
			Idle:         time.Duration(cfg.KeepAlive.IdleSeconds) * time.Second,
			LastActivity: st.LastActivity,
			OnPing:       st.KeepAlivePing,
		})
		if err != nil {
			return nil, err
		}
	}
	return app, nil
}

func buildStore(cfg *Config, db *sqlx.DB) (state.Store, error) {
	mem, err := state.NewMemoryStore(cfg.Session.MaxSessions, cfg.SessionTTL(), time.Now)
	if err != nil {
		return nil, err
	}
	if db == nil {
		return mem, nil
	}
	return state.NewFallbackStore(state.NewSQLStore(db, time.Now), mem), nil
}

// Bot returns the update handler.
func (a *App) Bot() *Bot { return a.bot }

// Run serves until ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error { return a.server.Run(gctx) })
	g.Go(func() error { return a.sweeper.Run(gctx) })
	if a.keepalive != nil {
		g.Go(func() error { return a.keepalive.Run(gctx) })
	} else {
		logger.LogEvent(ctx, logger.KEEPALIVE, slog.LevelInfo, "keepalive.disabled",
			slog.String("status", "skip"),
		)
	}
	g.Go(func() error {
		return tg.RunTelegram(gctx, tg.RunOptions{
			Config:   &a.cfg.Config,
			Registry: a.bot.Registry(),
			API:      a.gateway,
			Handle:   a.bot.ProcessUpdate,
			OnStart: func(ctx context.Context) error {
				a.bot.SetLifecycle(LifecycleRunning)
				logger.LogEvent(ctx, logger.QUIZ, slog.LevelInfo, "app.ready",
					slog.String("status", "ok"),
					slog.String("mode", a.cfg.Telegram.RunMode),
					slog.Duration("startup_duration", logger.RoundMS(time.Since(a.startedAt))),
				)
				return nil
			},
			OnStop: func(ctx context.Context) error {
				a.bot.SetLifecycle(LifecycleStopping)
				return nil
			},
		})
	})

	err := g.Wait()
	if err != nil {
		a.bot.SetLifecycle(LifecycleError)
	}
	if cerr := a.sweeper.Store.Close(); cerr != nil {
		logger.LogEvent(ctx, logger.STORE, slog.LevelWarn, "storage.close",
			slog.String("status", "fail"),
			slog.String("err", cerr.Error()),
		)
	}
	return err
}
