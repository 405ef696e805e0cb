package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/telegram/commands"
	"github.com/m3rciful/quizbot/core/telegram/middleware"
)

// TextMatcher routes free text that is not a command.
type TextMatcher struct {
	Name    string
	Match   func(text string) bool
	Handler middleware.HandlerFunc
}

type namedCommand struct {
	name string
	cmd  commands.Command
}

// Registry holds bot commands, text matchers and callbacks.
// Commands and matchers are tried in registration order.
type Registry struct {
	commands         []namedCommand
	matchers         []TextMatcher
	callbacks        map[string]middleware.HandlerFunc
	callbacksMu      sync.RWMutex
	callbackNotFound middleware.HandlerFunc
	textFallback     middleware.HandlerFunc
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{callbacks: make(map[string]middleware.HandlerFunc)}
}

// RegisterCommand adds a new command. Names must start with '/'.
func (r *Registry) RegisterCommand(name string, cmd commands.Command) error {
	if r == nil || name == "" || cmd.Handler == nil || cmd.Description == "" {
		logger.LogEvent(context.Background(), logger.TG, slog.LevelWarn, "register.command.skip",
			slog.String("name", name),
			slog.String("reason", "invalid"),
		)
		return errors.New("invalid command registration")
	}
	if name[0] != '/' {
		logger.LogEvent(context.Background(), logger.TG, slog.LevelWarn, "register.command.skip",
			slog.String("name", name),
			slog.String("reason", "no_slash_prefix"),
		)
		return fmt.Errorf("command %q must start with '/'", name)
	}
	for _, c := range r.commands {
		if c.name == name {
			logger.LogEvent(context.Background(), logger.TG, slog.LevelWarn, "register.command.duplicate",
				slog.String("name", name),
			)
			return fmt.Errorf("command already registered: %s", name)
		}
	}
	r.commands = append(r.commands, namedCommand{name: name, cmd: cmd})
	return nil
}

// RegisterText adds a matcher consulted after commands.
func (r *Registry) RegisterText(m TextMatcher) error {
	if m.Name == "" || m.Match == nil || m.Handler == nil {
		return errors.New("invalid text matcher registration")
	}
	r.matchers = append(r.matchers, m)
	return nil
}

// ListCommands returns commands in registration order, optionally filtering out hidden ones.
func (r *Registry) ListCommands(visibleOnly bool) []tele.Command {
	list := make([]tele.Command, 0, len(r.commands))
	for _, c := range r.commands {
		if visibleOnly && c.cmd.Hidden {
			continue
		}
		list = append(list, tele.Command{Text: c.name, Description: c.cmd.Description})
	}
	return list
}

// MatchCommand returns the first command whose name or alias prefixes text.
func (r *Registry) MatchCommand(text string) (string, commands.Command, bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", commands.Command{}, false
	}
	for _, c := range r.commands {
		if strings.HasPrefix(text, c.name) {
			return c.name, c.cmd, true
		}
		for _, alias := range c.cmd.Aliases {
			if !strings.HasPrefix(alias, "/") {
				alias = "/" + alias
			}
			if strings.HasPrefix(text, alias) {
				return c.name, c.cmd, true
			}
		}
	}
	return "", commands.Command{}, false
}

// MatchText returns the first matcher accepting text.
func (r *Registry) MatchText(text string) (TextMatcher, bool) {
	for _, m := range r.matchers {
		if m.Match(text) {
			return m, true
		}
	}
	return TextMatcher{}, false
}

// RegisterCallback adds a callback handler mapped to its key.
func (r *Registry) RegisterCallback(key string, handler middleware.HandlerFunc) error {
	if r == nil || key == "" || handler == nil {
		logger.LogEvent(context.Background(), logger.TG, slog.LevelWarn, "register.callback.skip",
			slog.String("key", key),
			slog.Bool("handler_nil", handler == nil),
		)
		return errors.New("invalid callback registration")
	}
	r.callbacksMu.Lock()
	defer r.callbacksMu.Unlock()
	if _, exists := r.callbacks[key]; exists {
		return fmt.Errorf("callback already registered: %s", key)
	}
	r.callbacks[key] = handler
	return nil
}

// GetCallback safely returns handler by key.
func (r *Registry) GetCallback(key string) (middleware.HandlerFunc, bool) {
	r.callbacksMu.RLock()
	defer r.callbacksMu.RUnlock()
	h, ok := r.callbacks[key]
	return h, ok
}

// ListCallbacks returns sorted keys (for diagnostics).
func (r *Registry) ListCallbacks() []string {
	r.callbacksMu.RLock()
	defer r.callbacksMu.RUnlock()
	names := make([]string, 0, len(r.callbacks))
	for k := range r.callbacks {
		names = append(names, k)
	}
	sort.Strings(names)
	return names
}

// SetCallbackNotFound replaces the fallback handler for unknown callbacks.
func (r *Registry) SetCallbackNotFound(h middleware.HandlerFunc) {
	r.callbackNotFound = h
}

// CallbackNotFound returns the current fallback callback handler.
func (r *Registry) CallbackNotFound() middleware.HandlerFunc {
	return r.callbackNotFound
}

// SetTextFallback sets a handler for messages no command or matcher accepts.
func (r *Registry) SetTextFallback(h middleware.HandlerFunc) {
	r.textFallback = h
}

// TextFallback returns the current text fallback handler.
func (r *Registry) TextFallback() middleware.HandlerFunc {
	return r.textFallback
}
