// Package commands declares slash commands served by a bot.
package commands

import "github.com/m3rciful/quizbot/core/telegram/middleware"

// Command represents a bot command with its handler, description, and metadata.
type Command struct {
	Handler     middleware.HandlerFunc
	Description string
	// Hidden commands are served but left out of the Telegram menu.
	Hidden  bool
	Aliases []string
}
