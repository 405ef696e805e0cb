package router

import (
	"context"
	"errors"
	"strings"
	"testing"

	tele "gopkg.in/telebot.v4"

	tg "github.com/m3rciful/quizbot/core/telegram"
	"github.com/m3rciful/quizbot/core/telegram/commands"
	"github.com/m3rciful/quizbot/core/telegram/sender"
)

func recorder(trace *[]string, name string) func(context.Context, *tele.Update) error {
	return func(context.Context, *tele.Update) error {
		*trace = append(*trace, name)
		return nil
	}
}

func newTestRouter(trace *[]string) *Router {
	reg := tg.NewRegistry()
	_ = reg.RegisterCommand("/start", commands.Command{Handler: recorder(trace, "start"), Description: "s"})
	_ = reg.RegisterCommand("/help", commands.Command{Handler: recorder(trace, "help"), Description: "h"})
	_ = reg.RegisterText(tg.TextMatcher{
		Name:    "submission",
		Match:   func(s string) bool { return strings.HasPrefix(s, "{") },
		Handler: recorder(trace, "submission"),
	})
	reg.SetTextFallback(recorder(trace, "nudge"))
	_ = reg.RegisterCallback("anon_true", recorder(trace, "anon_true"))
	reg.SetCallbackNotFound(recorder(trace, "unknown_cb"))
	return New(reg)
}

func msg(text string) *tele.Update {
	return &tele.Update{ID: 1, Message: &tele.Message{Text: text, Sender: &tele.User{ID: 1}, Chat: &tele.Chat{ID: 1}}}
}

func TestRouterDispatch(t *testing.T) {
	var trace []string
	r := newTestRouter(&trace)
	ctx := context.Background()

	updates := []*tele.Update{
		msg("/start"),
		msg(" /help me"),
		msg(`{"all_q":[]}`),
		msg("hello"),
		{ID: 2, Message: &tele.Message{Photo: &tele.Photo{}, Sender: &tele.User{ID: 1}, Chat: &tele.Chat{ID: 1}}},
		{ID: 3, Callback: &tele.Callback{Data: "anon_true", Sender: &tele.User{ID: 1}}},
		{ID: 4, Callback: &tele.Callback{Data: "\fmystery|1", Sender: &tele.User{ID: 1}}},
		{ID: 5},
	}
	for _, u := range updates {
		if err := r.Handle(ctx, u); err != nil {
			t.Fatalf("Handle: %v", err)
		}
	}
	want := "start,help,submission,nudge,nudge,anon_true,unknown_cb"
	if got := strings.Join(trace, ","); got != want {
		t.Fatalf("trace = %s, want %s", got, want)
	}
}

func TestRouterPropagatesHandlerError(t *testing.T) {
	reg := tg.NewRegistry()
	boom := errors.New("boom")
	_ = reg.RegisterCommand("/start", commands.Command{
		Handler:     func(context.Context, *tele.Update) error { return boom },
		Description: "s",
	})
	if err := New(reg).Handle(context.Background(), msg("/start")); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want boom", err)
	}
}

func TestDeriveErrorCode(t *testing.T) {
	if got := deriveErrorCode(&sender.APIError{Code: 403}); got != "HTTP_403" {
		t.Fatalf("api error code = %s", got)
	}
	if got := deriveErrorCode(sender.ErrCircuitOpen); got != "CIRCUIT_OPEN" {
		t.Fatalf("circuit code = %s", got)
	}
	if normalizeHandlerName("/Start Now") != "start_now" {
		t.Fatalf("normalize = %s", normalizeHandlerName("/Start Now"))
	}
}
