package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tele "gopkg.in/telebot.v4"

	coreconfig "github.com/m3rciful/quizbot/core/config"
	"github.com/m3rciful/quizbot/core/logger"
	tgsender "github.com/m3rciful/quizbot/core/telegram/sender"
)

// API is the part of the gateway the runner needs at startup.
type API interface {
	GetMe(ctx context.Context) (*tele.User, error)
	SetMyCommands(ctx context.Context, cmds []tele.Command) error
	SetWebhook(ctx context.Context, req tgsender.SetWebhookRequest) error
	DeleteWebhook(ctx context.Context, dropPending bool) error
}

// RunOptions controls the behaviour of RunTelegram.
type RunOptions struct {
	Config   *coreconfig.Config
	Registry *Registry
	API      API
	// Handle receives every update in long polling mode. In webhook mode
	// updates arrive through the HTTP server instead.
	Handle func(ctx context.Context, upd *tele.Update)

	OnStart func(ctx context.Context) error
	OnStop  func(ctx context.Context) error
}

// WebhookRequest builds the setWebhook call for cfg.
func WebhookRequest(cfg *coreconfig.Config) tgsender.SetWebhookRequest {
	return tgsender.SetWebhookRequest{
		URL:                strings.TrimSpace(cfg.Webhook.URL),
		SecretToken:        cfg.Webhook.SecretToken,
		DropPendingUpdates: cfg.Webhook.DropPending,
		MaxConnections:     cfg.Webhook.MaxConnections,
		AllowedUpdates:     AllowedUpdates,
	}
}

// RunTelegram performs the startup calls for the configured mode and then
// serves updates until ctx is done. Startup failures other than an
// unreachable API are fatal.
func RunTelegram(ctx context.Context, opts RunOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	if opts.Config == nil {
		return fmt.Errorf("telegram: nil config provided")
	}
	if opts.API == nil {
		return fmt.Errorf("telegram: nil api provided")
	}
	cfg := opts.Config
	reg := opts.Registry
	if reg == nil {
		reg = NewRegistry()
	}

	startCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()
	announce(startCtx, opts.API)
	if !cfg.Telegram.SkipCommands {
		SetupCommands(startCtx, opts.API, reg)
	}

	var poller *Poller
	switch cfg.Telegram.RunMode {
	case coreconfig.RunModeWebhook:
		logger.TG.Info("webhook mode",
			slog.String("event", "mode"),
			slog.String("mode", coreconfig.RunModeWebhook),
			slog.String("public_url", cfg.Webhook.BaseURL()),
			slog.Bool("register", cfg.Webhook.Register),
		)
		if cfg.Webhook.Register {
			err := opts.API.SetWebhook(startCtx, WebhookRequest(cfg))
			logger.LogEvent(ctx, logger.TG, levelFor(err), "webhook.set",
				slog.String("status", logger.Status(err)),
				errAttr(err),
			)
		}
	default:
		timeout := time.Duration(cfg.Telegram.LongPollTimeoutSeconds) * time.Second
		if opts.Handle == nil {
			return fmt.Errorf("telegram: long polling needs a handler")
		}
		err := opts.API.DeleteWebhook(startCtx, false)
		logger.LogEvent(ctx, logger.TG, levelFor(err), "webhook.delete",
			slog.String("status", logger.Status(err)),
			slog.String("mode", coreconfig.RunModeLongpoll),
			errAttr(err),
		)
		poller, err = NewPoller(PollerOptions{
			Token:   cfg.Telegram.Token,
			APIURL:  cfg.Telegram.APIURL,
			Timeout: timeout,
			Handle:  opts.Handle,
		})
		if err != nil {
			return err
		}
		logger.TG.Info("polling mode",
			slog.String("event", "mode"),
			slog.String("mode", coreconfig.RunModeLongpoll),
			slog.Duration("timeout", poller.opts.Timeout),
		)
	}
	cancel()

	if opts.OnStart != nil {
		if err := opts.OnStart(ctx); err != nil {
			return err
		}
	}

	var runErr error
	if poller != nil {
		runErr = poller.Run(ctx)
	} else {
		<-ctx.Done()
	}

	var stopErr error
	if opts.OnStop != nil {
		stopErr = opts.OnStop(context.WithoutCancel(ctx))
	}
	if stopErr != nil {
		return stopErr
	}
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return nil
}

// SetupCommands publishes the visible commands of reg as the bot menu.
func SetupCommands(ctx context.Context, api API, reg *Registry) {
	cmds := reg.ListCommands(true)
	if len(cmds) == 0 {
		return
	}
	err := api.SetMyCommands(ctx, cmds)
	names := make([]string, 0, len(cmds))
	for _, c := range cmds {
		names = append(names, c.Text)
	}
	preview, truncated := logger.SummarizeStrings(names, 8)
	logger.LogEvent(ctx, logger.TG, levelFor(err), "commands.set",
		slog.String("status", logger.Status(err)),
		slog.Int("count", len(cmds)),
		slog.String("commands", preview),
		slog.Bool("truncated", truncated),
		errAttr(err),
	)
}

func announce(ctx context.Context, api API) {
	me, err := api.GetMe(ctx)
	if err != nil {
		logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "bot.identity",
			slog.String("status", "fail"),
			errAttr(err),
		)
		return
	}
	logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "bot.identity",
		slog.String("status", "ok"),
		slog.String("username", me.Username),
		slog.Int64("bot_id", me.ID),
	)
}

func levelFor(err error) slog.Level {
	if err != nil {
		return slog.LevelWarn
	}
	return slog.LevelInfo
}

func errAttr(err error) slog.Attr {
	if err == nil {
		return slog.Attr{}
	}
	return slog.String("err", err.Error())
}
