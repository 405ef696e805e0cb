// Package quizbot wires the quiz conversation onto the core Telegram
// infrastructure: command registry, session manager, gateway and HTTP server.
package quizbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/stats"
	tg "github.com/m3rciful/quizbot/core/telegram"
	"github.com/m3rciful/quizbot/core/telegram/commands"
	"github.com/m3rciful/quizbot/core/telegram/middleware"
	"github.com/m3rciful/quizbot/core/telegram/router"
	"github.com/m3rciful/quizbot/core/telegram/sender"
	"github.com/m3rciful/quizbot/core/telegram/state"
	"github.com/m3rciful/quizbot/quiz"
)

// API is the Bot API surface the handlers use. *sender.Gateway implements it.
type API interface {
	SendMessage(ctx context.Context, req sender.SendMessageRequest) (*sender.SentMessage, error)
	Send(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) error
	EditMessageText(ctx context.Context, req sender.EditMessageTextRequest) error
	SendQuiz(ctx context.Context, chatID int64, q sender.Quiz) (*sender.SentMessage, error)
	AnswerCallbackQuery(ctx context.Context, id, text string) error
	GetMe(ctx context.Context) (*tele.User, error)
	GetWebhookInfo(ctx context.Context) (*sender.WebhookInfo, error)
	SetWebhook(ctx context.Context, req sender.SetWebhookRequest) error
}

// Lifecycle is the coarse process state reported by /health.
type Lifecycle int32

// Lifecycle states.
const (
	LifecycleStarting Lifecycle = iota
	LifecycleRunning
	LifecycleStopping
	LifecycleError
)

func (l Lifecycle) String() string {
	switch l {
	case LifecycleStarting:
		return "starting"
	case LifecycleRunning:
		return "running"
	case LifecycleStopping:
		return "stopping"
	case LifecycleError:
		return "error"
	}
	return "unknown"
}

// Callback data of the quiz type keyboard.
const (
	CallbackAnonymous = "anon_true"
	CallbackPublic    = "anon_false"
)

// Deps are the collaborators of a Bot.
type Deps struct {
	Config   *Config
	API      API
	Sessions *state.Manager
	Stats    *stats.Stats
	Now      func() time.Time
	// Sleep waits between polls; tests replace it.
	Sleep func(ctx context.Context, d time.Duration) error
}

// Bot routes updates through the middleware chain to the quiz handlers.
type Bot struct {
	cfg      *Config
	api      API
	sessions *state.Manager
	stats    *stats.Stats
	registry *tg.Registry
	handle   middleware.HandlerFunc
	now      func() time.Time
	sleep    func(ctx context.Context, d time.Duration) error

	lifecycle atomic.Int32
}

// New registers the quiz commands and builds the update pipeline.
func New(deps Deps) (*Bot, error) {
	if deps.Config == nil || deps.API == nil || deps.Sessions == nil || deps.Stats == nil {
		return nil, errors.New("quizbot: config, api, sessions and stats are required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if deps.Sleep == nil {
		deps.Sleep = sleepContext
	}
	b := &Bot{
		cfg:      deps.Config,
		api:      deps.API,
		sessions: deps.Sessions,
		stats:    deps.Stats,
		registry: tg.NewRegistry(),
		now:      deps.Now,
		sleep:    deps.Sleep,
	}
	if err := b.register(); err != nil {
		return nil, err
	}
	mws, err := tg.DefaultMiddlewares(&deps.Config.Config, nil)
	if err != nil {
		return nil, err
	}
	b.handle = middleware.Chain(router.New(b.registry).Handle, mws...)
	return b, nil
}

func (b *Bot) register() error {
	cmds := []struct {
		name string
		cmd  commands.Command
	}{
		{"/start", commands.Command{Handler: b.handleStart, Description: "Create a new quiz"}},
		{"/help", commands.Command{Handler: b.handleHelp, Description: "How to use the bot"}},
		{"/status", commands.Command{Handler: b.handleStatus, Description: "Bot status"}},
		{"/template", commands.Command{Handler: b.handleTemplate, Description: "JSON template"}},
	}
	for _, c := range cmds {
		if err := b.registry.RegisterCommand(c.name, c.cmd); err != nil {
			return fmt.Errorf("quizbot: %w", err)
		}
	}
	if err := b.registry.RegisterText(tg.TextMatcher{
		Name:    "submission",
		Match:   quiz.LooksLikeSubmission,
		Handler: b.handleSubmission,
	}); err != nil {
		return fmt.Errorf("quizbot: %w", err)
	}
	b.registry.SetTextFallback(b.handleNudge)

	for _, key := range []string{CallbackAnonymous, CallbackPublic} {
		if err := b.registry.RegisterCallback(key, b.handleQuizType); err != nil {
			return fmt.Errorf("quizbot: %w", err)
		}
	}
	b.registry.SetCallbackNotFound(b.handleUnknownCallback)
	return nil
}

// Registry exposes the command registry, e.g. for setMyCommands.
func (b *Bot) Registry() *tg.Registry { return b.registry }

// SetLifecycle records the process state.
func (b *Bot) SetLifecycle(l Lifecycle) {
	b.lifecycle.Store(int32(l))
	logger.LogEvent(context.Background(), logger.QUIZ, slog.LevelInfo, "bot.lifecycle",
		slog.String("state", l.String()),
	)
}

// Lifecycle returns the current process state.
func (b *Bot) Lifecycle() Lifecycle { return Lifecycle(b.lifecycle.Load()) }

// ProcessUpdate handles one update. It never panics and never returns an
// error: failures are logged and counted.
func (b *Bot) ProcessUpdate(ctx context.Context, upd *tele.Update) {
	if upd == nil {
		return
	}
	b.stats.IncRequests()
	b.stats.Touch(b.now())

	defer func() {
		if r := recover(); r != nil {
			b.stats.IncErrors()
			logger.LogEvent(ctx, logger.QUIZ, slog.LevelError, "update.panic",
				slog.String("status", "fail"),
				slog.Any("err", r),
			)
		}
	}()

	if err := b.handle(ctx, upd); err != nil {
		b.stats.IncErrors()
		logger.LogEvent(ctx, logger.QUIZ, slog.LevelError, "update.failed",
			slog.String("status", "fail"),
			slog.Int("update_id", upd.ID),
			slog.String("err", err.Error()),
		)
	}
}

// HandleUpdate lets the Bot serve as the webhook backend.
func (b *Bot) HandleUpdate(ctx context.Context, upd *tele.Update) {
	b.ProcessUpdate(ctx, upd)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
