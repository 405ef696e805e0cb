package telegram

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/telegram/middleware"
)

// AllowedUpdates lists the update kinds the bot subscribes to.
var AllowedUpdates = []string{"message", "callback_query"}

// PollerOptions configures long polling.
type PollerOptions struct {
	Token  string
	APIURL string
	// Timeout is the server-side long poll timeout; zero selects 10s.
	Timeout time.Duration
	Client  *http.Client
	// Workers bounds how many users are served concurrently within a batch.
	Workers int64
	// ErrorBackoff is the pause after a failed getUpdates call.
	ErrorBackoff time.Duration
	Handle       func(ctx context.Context, upd *tele.Update)
}

// Poller fetches updates with getUpdates through telebot's raw client.
type Poller struct {
	opts   PollerOptions
	bot    *tele.Bot
	sem    *semaphore.Weighted
	offset int
}

// NewPoller builds an offline telebot client for the poll loop.
func NewPoller(opts PollerOptions) (*Poller, error) {
	if opts.Handle == nil {
		return nil, fmt.Errorf("telegram: poller needs a handler")
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.ErrorBackoff <= 0 {
		opts.ErrorBackoff = 3 * time.Second
	}
	if opts.Client == nil {
		opts.Client = BuildHTTPClient(opts.Timeout + 10*time.Second)
	}
	bot, err := tele.NewBot(tele.Settings{
		Token:   opts.Token,
		URL:     opts.APIURL,
		Client:  opts.Client,
		Offline: true,
		OnError: func(err error, _ tele.Context) {
			logger.LogEvent(context.Background(), logger.TG, slog.LevelWarn, "poll.error",
				slog.String("err", logger.Redact(err.Error())),
			)
		},
	})
	if err != nil {
		return nil, fmt.Errorf("telegram: poller init failed: %w", err)
	}
	return &Poller{opts: opts, bot: bot, sem: semaphore.NewWeighted(opts.Workers)}, nil
}

// Run polls until ctx is cancelled. Each batch is fully handled before the
// next offset is acknowledged, so an interrupted batch is redelivered.
func (p *Poller) Run(ctx context.Context) error {
	logger.LogEvent(ctx, logger.TG, slog.LevelInfo, "poll.start",
		slog.Duration("timeout", p.opts.Timeout),
		slog.Int64("workers", p.opts.Workers),
	)
	failures := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		updates, err := p.fetch(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			failures++
			logger.LogEvent(ctx, logger.TG, slog.LevelWarn, "poll.fetch",
				slog.String("status", "fail"),
				slog.Int("attempt", failures),
				slog.String("err", logger.Redact(err.Error())),
			)
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(p.opts.ErrorBackoff):
			}
			continue
		}
		failures = 0
		if len(updates) == 0 {
			continue
		}
		p.dispatch(ctx, updates)
		p.offset = updates[len(updates)-1].ID + 1
	}
}

type fetchResult struct {
	updates []tele.Update
	err     error
}

// fetch runs one getUpdates call. telebot's Raw has no context, so the
// call runs aside and is abandoned on cancellation.
func (p *Poller) fetch(ctx context.Context) ([]tele.Update, error) {
	params := map[string]any{
		"offset":          p.offset,
		"timeout":         int(p.opts.Timeout / time.Second),
		"allowed_updates": AllowedUpdates,
	}
	done := make(chan fetchResult, 1)
	go func() {
		data, err := p.bot.Raw("getUpdates", params)
		if err != nil {
			done <- fetchResult{err: err}
			return
		}
		var resp struct {
			Result []tele.Update `json:"result"`
		}
		if err := json.Unmarshal(data, &resp); err != nil {
			done <- fetchResult{err: fmt.Errorf("decode getUpdates: %w", err)}
			return
		}
		done <- fetchResult{updates: resp.Result}
	}()
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-done:
		return res.updates, res.err
	}
}

// dispatch handles a batch. Updates of one user stay in order; distinct
// users run concurrently up to Workers.
func (p *Poller) dispatch(ctx context.Context, updates []tele.Update) {
	groups := make(map[int64][]*tele.Update)
	var order []int64
	for i := range updates {
		upd := &updates[i]
		key := senderID(upd)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], upd)
	}

	// Handlers run to completion even when shutdown starts mid-batch.
	hctx := context.WithoutCancel(ctx)
	var g errgroup.Group
	for _, key := range order {
		batch := groups[key]
		if err := p.sem.Acquire(hctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer p.sem.Release(1)
			for _, upd := range batch {
				p.opts.Handle(hctx, upd)
			}
			return nil
		})
	}
	_ = g.Wait()
}

func senderID(upd *tele.Update) int64 {
	if u := middleware.Sender(upd); u != nil {
		return u.ID
	}
	return 0
}
