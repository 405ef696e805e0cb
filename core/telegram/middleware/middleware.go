// Package middleware wraps update handlers with recovery, logging,
// per-user rate limiting and response counters.
package middleware

import (
	"context"
	"strings"

	tele "gopkg.in/telebot.v4"
)

// HandlerFunc processes one decoded Telegram update.
type HandlerFunc func(ctx context.Context, upd *tele.Update) error

// Middleware decorates a HandlerFunc.
type Middleware func(next HandlerFunc) HandlerFunc

// Chain wraps h so that the first middleware is the outermost.
func Chain(h HandlerFunc, mws ...Middleware) HandlerFunc {
	for i := len(mws) - 1; i >= 0; i-- {
		if mws[i] != nil {
			h = mws[i](h)
		}
	}
	return h
}

// Update kinds used for rate limit exclusions and logs.
const (
	KindMessage  = "message"
	KindCallback = "callback"
	KindOther    = "other"
)

// Kind classifies upd.
func Kind(upd *tele.Update) string {
	switch {
	case upd == nil:
		return KindOther
	case upd.Callback != nil:
		return KindCallback
	case upd.Message != nil:
		return KindMessage
	}
	return KindOther
}

// Sender returns the user behind upd, or nil.
func Sender(upd *tele.Update) *tele.User {
	switch {
	case upd == nil:
		return nil
	case upd.Callback != nil:
		return upd.Callback.Sender
	case upd.Message != nil:
		return upd.Message.Sender
	}
	return nil
}

// ChatID returns the chat the update belongs to, or 0.
func ChatID(upd *tele.Update) int64 {
	switch {
	case upd == nil:
		return 0
	case upd.Callback != nil:
		if upd.Callback.Message != nil && upd.Callback.Message.Chat != nil {
			return upd.Callback.Message.Chat.ID
		}
		if upd.Callback.Sender != nil {
			return upd.Callback.Sender.ID
		}
	case upd.Message != nil && upd.Message.Chat != nil:
		return upd.Message.Chat.ID
	}
	return 0
}

// Text returns the trimmed message text or callback data.
func Text(upd *tele.Update) string {
	switch {
	case upd == nil:
		return ""
	case upd.Callback != nil:
		return strings.TrimSpace(upd.Callback.Data)
	case upd.Message != nil:
		return strings.TrimSpace(upd.Message.Text)
	}
	return ""
}
