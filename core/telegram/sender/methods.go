package sender

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/quizbot/core/telegram/format"
	"github.com/m3rciful/quizbot/core/telegram/middleware"
)

// Bot API limits enforced before a request leaves the process.
const (
	MaxMessageRunes      = 4096
	MaxCallbackTextRunes = 200
	MaxPollQuestionRunes = 300
	MaxPollOptionRunes   = 100
	MaxPollOptions       = 10
	MinPollOptions       = 2
	MaxExplanationRunes  = 200
)

// ParseModeMarkdown selects legacy Markdown formatting.
const ParseModeMarkdown = "Markdown"

const emptyMessageText = "Empty message"

// SendMessageRequest mirrors the sendMessage parameters used by the bot.
type SendMessageRequest struct {
	ChatID      int64             `json:"chat_id"`
	Text        string            `json:"text"`
	ParseMode   string            `json:"parse_mode,omitempty"`
	ReplyMarkup *tele.ReplyMarkup `json:"reply_markup,omitempty"`
}

// EditMessageTextRequest mirrors editMessageText for chat messages.
type EditMessageTextRequest struct {
	ChatID      int64             `json:"chat_id"`
	MessageID   int               `json:"message_id"`
	Text        string            `json:"text"`
	ParseMode   string            `json:"parse_mode,omitempty"`
	ReplyMarkup *tele.ReplyMarkup `json:"reply_markup,omitempty"`
}

// SendPollRequest mirrors sendPoll for quiz polls.
type SendPollRequest struct {
	ChatID          int64    `json:"chat_id"`
	Question        string   `json:"question"`
	Options         []string `json:"options"`
	IsAnonymous     bool     `json:"is_anonymous"`
	Type            string   `json:"type"`
	CorrectOptionID int      `json:"correct_option_id"`
	Explanation     string   `json:"explanation,omitempty"`
}

// AnswerCallbackRequest mirrors answerCallbackQuery.
type AnswerCallbackRequest struct {
	CallbackQueryID string `json:"callback_query_id"`
	Text            string `json:"text,omitempty"`
	ShowAlert       bool   `json:"show_alert,omitempty"`
}

// SetWebhookRequest mirrors setWebhook without certificate upload.
type SetWebhookRequest struct {
	URL                string   `json:"url"`
	SecretToken        string   `json:"secret_token,omitempty"`
	DropPendingUpdates bool     `json:"drop_pending_updates,omitempty"`
	MaxConnections     int      `json:"max_connections,omitempty"`
	AllowedUpdates     []string `json:"allowed_updates,omitempty"`
}

// WebhookInfo is the getWebhookInfo result.
type WebhookInfo struct {
	URL                  string   `json:"url"`
	HasCustomCertificate bool     `json:"has_custom_certificate"`
	PendingUpdateCount   int      `json:"pending_update_count"`
	IPAddress            string   `json:"ip_address,omitempty"`
	LastErrorDate        int64    `json:"last_error_date,omitempty"`
	LastErrorMessage     string   `json:"last_error_message,omitempty"`
	MaxConnections       int      `json:"max_connections,omitempty"`
	AllowedUpdates       []string `json:"allowed_updates,omitempty"`
}

// SentMessage is the part of a sent message the bot relies on.
type SentMessage struct {
	MessageID int `json:"message_id"`
	Chat      struct {
		ID int64 `json:"id"`
	} `json:"chat"`
}

// Quiz is a poll ready to be sent. Correct is a zero-based option index.
type Quiz struct {
	Question    string
	Options     []string
	Correct     int
	Explanation string
	Anonymous   bool
}

// SendMessage sends text to chatID, truncated to the Bot API limit.
func (g *Gateway) SendMessage(ctx context.Context, req SendMessageRequest) (*SentMessage, error) {
	if strings.TrimSpace(req.Text) == "" {
		req.Text = emptyMessageText
	}
	req.Text = format.Truncate(req.Text, MaxMessageRunes)

	res, err := g.Call(ctx, "sendMessage", req)
	if err != nil {
		return nil, err
	}
	middleware.CountMessage(ctx, req.ReplyMarkup != nil)
	return decodeSent(res)
}

// Send is a shorthand for a Markdown text message.
func (g *Gateway) Send(ctx context.Context, chatID int64, text string, markup *tele.ReplyMarkup) error {
	_, err := g.SendMessage(ctx, SendMessageRequest{
		ChatID:      chatID,
		Text:        text,
		ParseMode:   ParseModeMarkdown,
		ReplyMarkup: markup,
	})
	return err
}

// EditMessageText replaces the text of a previously sent message.
func (g *Gateway) EditMessageText(ctx context.Context, req EditMessageTextRequest) error {
	if strings.TrimSpace(req.Text) == "" {
		req.Text = emptyMessageText
	}
	req.Text = format.Truncate(req.Text, MaxMessageRunes)
	if _, err := g.Call(ctx, "editMessageText", req); err != nil {
		return err
	}
	middleware.CountMessage(ctx, req.ReplyMarkup != nil)
	return nil
}

// SendQuiz sends q as a quiz poll. Limits are enforced here so callers
// cannot produce a request Telegram would reject for length.
func (g *Gateway) SendQuiz(ctx context.Context, chatID int64, q Quiz) (*SentMessage, error) {
	req, err := BuildPollRequest(chatID, q)
	if err != nil {
		return nil, err
	}
	res, err := g.Call(ctx, "sendPoll", req)
	if err != nil {
		return nil, err
	}
	middleware.CountMessage(ctx, false)
	return decodeSent(res)
}

// BuildPollRequest applies Bot API limits to q.
// A correct index outside the truncated option list falls back to 0.
func BuildPollRequest(chatID int64, q Quiz) (SendPollRequest, error) {
	opts := q.Options
	if len(opts) > MaxPollOptions {
		opts = opts[:MaxPollOptions]
	}
	if len(opts) < MinPollOptions {
		return SendPollRequest{}, fmt.Errorf("telegram sendPoll: need at least %d options, got %d", MinPollOptions, len(opts))
	}
	options := make([]string, len(opts))
	for i, o := range opts {
		options[i] = format.Truncate(o, MaxPollOptionRunes)
	}
	correct := q.Correct
	if correct < 0 || correct >= len(options) {
		correct = 0
	}
	return SendPollRequest{
		ChatID:          chatID,
		Question:        format.Truncate(q.Question, MaxPollQuestionRunes),
		Options:         options,
		IsAnonymous:     q.Anonymous,
		Type:            "quiz",
		CorrectOptionID: correct,
		Explanation:     format.Truncate(q.Explanation, MaxExplanationRunes),
	}, nil
}

// AnswerCallbackQuery acknowledges a button press.
func (g *Gateway) AnswerCallbackQuery(ctx context.Context, id, text string) error {
	_, err := g.Call(ctx, "answerCallbackQuery", AnswerCallbackRequest{
		CallbackQueryID: id,
		Text:            format.Truncate(text, MaxCallbackTextRunes),
	})
	return err
}

// SetWebhook registers the public URL Telegram should deliver updates to.
func (g *Gateway) SetWebhook(ctx context.Context, req SetWebhookRequest) error {
	_, err := g.Call(ctx, "setWebhook", req)
	return err
}

// DeleteWebhook removes a webhook so getUpdates can be used.
func (g *Gateway) DeleteWebhook(ctx context.Context, dropPending bool) error {
	_, err := g.Call(ctx, "deleteWebhook", map[string]bool{"drop_pending_updates": dropPending})
	return err
}

// GetWebhookInfo reports the current webhook registration.
func (g *Gateway) GetWebhookInfo(ctx context.Context) (*WebhookInfo, error) {
	res, err := g.Call(ctx, "getWebhookInfo", nil)
	if err != nil {
		return nil, err
	}
	var info WebhookInfo
	if err := json.Unmarshal(res, &info); err != nil {
		return nil, fmt.Errorf("telegram getWebhookInfo: decode result: %w", err)
	}
	return &info, nil
}

// GetMe returns the bot account.
func (g *Gateway) GetMe(ctx context.Context) (*tele.User, error) {
	res, err := g.Call(ctx, "getMe", nil)
	if err != nil {
		return nil, err
	}
	var me tele.User
	if err := json.Unmarshal(res, &me); err != nil {
		return nil, fmt.Errorf("telegram getMe: decode result: %w", err)
	}
	return &me, nil
}

// SetMyCommands publishes the command menu. Leading slashes are stripped.
func (g *Gateway) SetMyCommands(ctx context.Context, cmds []tele.Command) error {
	list := make([]tele.Command, 0, len(cmds))
	for _, c := range cmds {
		c.Text = strings.TrimPrefix(c.Text, "/")
		list = append(list, c)
	}
	_, err := g.Call(ctx, "setMyCommands", map[string]any{"commands": list})
	return err
}

func decodeSent(res json.RawMessage) (*SentMessage, error) {
	var msg SentMessage
	if len(res) == 0 {
		return &msg, nil
	}
	if err := json.Unmarshal(res, &msg); err != nil {
		return nil, fmt.Errorf("telegram: decode sent message: %w", err)
	}
	return &msg, nil
}
