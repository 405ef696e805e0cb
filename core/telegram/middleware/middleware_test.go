package middleware

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/m3rciful/quizbot/core/logger"

	tele "gopkg.in/telebot.v4"
)

func textUpdate(id int, userID int64, text string) *tele.Update {
	return &tele.Update{
		ID: id,
		Message: &tele.Message{
			Sender: &tele.User{ID: userID, FirstName: "Ann"},
			Chat:   &tele.Chat{ID: userID},
			Text:   text,
		},
	}
}

func callbackUpdate(id int, userID int64, data string) *tele.Update {
	return &tele.Update{
		ID: id,
		Callback: &tele.Callback{
			ID:     "cb",
			Sender: &tele.User{ID: userID},
			Data:   data,
			Message: &tele.Message{
				ID:   5,
				Chat: &tele.Chat{ID: userID + 1000},
			},
		},
	}
}

func TestChainOrder(t *testing.T) {
	var trace []string
	mark := func(name string) Middleware {
		return func(next HandlerFunc) HandlerFunc {
			return func(ctx context.Context, upd *tele.Update) error {
				trace = append(trace, name)
				return next(ctx, upd)
			}
		}
	}
	h := Chain(func(context.Context, *tele.Update) error {
		trace = append(trace, "handler")
		return nil
	}, mark("outer"), nil, mark("inner"))

	if err := h(context.Background(), textUpdate(1, 1, "x")); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if got := strings.Join(trace, ","); got != "outer,inner,handler" {
		t.Fatalf("order = %s", got)
	}
}

func TestRecoverConvertsPanic(t *testing.T) {
	h := Recover(func(context.Context, *tele.Update) error {
		panic("boom")
	})
	err := h(context.Background(), textUpdate(1, 1, "x"))
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("err = %v, want panic error", err)
	}
}

func TestLoggerAttachesUpdateMeta(t *testing.T) {
	var got context.Context
	h := Logger()(func(ctx context.Context, _ *tele.Update) error {
		got = ctx
		return nil
	})
	if err := h(context.Background(), callbackUpdate(77, 9, "anon_true")); err != nil {
		t.Fatalf("handler: %v", err)
	}
	m := logger.MetaFrom(got)
	if m.UpdateID != 77 || m.UserID != 9 || m.ChatID != 1009 {
		t.Fatalf("meta not attached: %+v", m)
	}
	if m.RID != "77:1009:9" {
		t.Fatalf("rid = %q", m.RID)
	}
}

func TestRateLimitDropsBurstsPerUser(t *testing.T) {
	var handled, limited int
	mw, err := RateLimit(RateLimitOptions{
		Interval: time.Hour,
		Exclude:  map[string]struct{}{KindCallback: {}},
		OnLimited: func(context.Context, *tele.Update) error {
			limited++
			return nil
		},
	})
	if err != nil {
		t.Fatalf("RateLimit: %v", err)
	}
	h := mw(func(context.Context, *tele.Update) error {
		handled++
		return nil
	})

	ctx := context.Background()
	_ = h(ctx, textUpdate(1, 1, "a"))
	_ = h(ctx, textUpdate(2, 1, "b"))
	_ = h(ctx, textUpdate(3, 2, "c"))
	_ = h(ctx, callbackUpdate(4, 1, "anon_true"))

	if handled != 3 || limited != 1 {
		t.Fatalf("handled=%d limited=%d, want 3 and 1", handled, limited)
	}
}

func TestRateLimitDisabled(t *testing.T) {
	mw, err := RateLimit(RateLimitOptions{})
	if err != nil {
		t.Fatalf("RateLimit: %v", err)
	}
	n := 0
	h := mw(func(context.Context, *tele.Update) error { n++; return nil })
	for i := 0; i < 5; i++ {
		_ = h(context.Background(), textUpdate(i, 1, "x"))
	}
	if n != 5 {
		t.Fatalf("handled = %d, want 5", n)
	}
}

func TestMetricsCounters(t *testing.T) {
	var msgs int
	var kb bool
	h := Metrics(func(ctx context.Context, _ *tele.Update) error {
		CountMessage(ctx, false)
		CountMessage(ctx, true)
		msgs, kb = Counters(ctx)
		return nil
	})
	_ = h(context.Background(), textUpdate(1, 1, "x"))
	if msgs != 2 || !kb {
		t.Fatalf("counters = (%d, %v), want (2, true)", msgs, kb)
	}

	CountMessage(context.Background(), true)
	if n, _ := Counters(context.Background()); n != 0 {
		t.Fatalf("bare context must not count, got %d", n)
	}
}

func TestUpdateAccessors(t *testing.T) {
	upd := callbackUpdate(1, 3, " anon_false ")
	if Kind(upd) != KindCallback || Sender(upd).ID != 3 || Text(upd) != "anon_false" {
		t.Fatalf("callback accessors wrong: kind=%s text=%q", Kind(upd), Text(upd))
	}
	empty := &tele.Update{ID: 2}
	if Kind(empty) != KindOther || Sender(empty) != nil || ChatID(empty) != 0 {
		t.Fatal("empty update accessors wrong")
	}
}
