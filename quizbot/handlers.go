package quizbot

import (
	"context"
	"errors"
	"log/slog"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/quizbot/core/logger"
	"github.com/m3rciful/quizbot/core/telegram/callbacks"
	"github.com/m3rciful/quizbot/core/telegram/middleware"
	"github.com/m3rciful/quizbot/core/telegram/sender"
	"github.com/m3rciful/quizbot/core/telegram/state"
	"github.com/m3rciful/quizbot/quiz"
)

func (b *Bot) handleStart(ctx context.Context, upd *tele.Update) error {
	user := middleware.Sender(upd)
	if user == nil {
		return nil
	}
	if _, err := b.sessions.Update(ctx, user.ID, (*state.Session).Start); err != nil {
		return err
	}
	return b.api.Send(ctx, middleware.ChatID(upd), welcomeText(user.FirstName), quizTypeKeyboard())
}

func (b *Bot) handleHelp(ctx context.Context, upd *tele.Update) error {
	return b.api.Send(ctx, middleware.ChatID(upd), helpText(b.registry.ListCommands(true)), nil)
}

func (b *Bot) handleStatus(ctx context.Context, upd *tele.Update) error {
	snap := b.stats.Snapshot(b.now())
	return b.api.Send(ctx, middleware.ChatID(upd), statusText(snap, b.sessions.Len(ctx)), nil)
}

func (b *Bot) handleTemplate(ctx context.Context, upd *tele.Update) error {
	return b.sendTemplate(ctx, middleware.ChatID(upd), textTemplateHint)
}

// sendTemplate sends the header, the raw template and a closing note.
// The template goes out without parse mode so its JSON stays intact.
func (b *Bot) sendTemplate(ctx context.Context, chatID int64, closing string) error {
	if err := b.api.Send(ctx, chatID, textTemplateHeader, nil); err != nil {
		return err
	}
	if _, err := b.api.SendMessage(ctx, sender.SendMessageRequest{ChatID: chatID, Text: quiz.Template}); err != nil {
		return err
	}
	return b.api.Send(ctx, chatID, closing, nil)
}

func (b *Bot) handleNudge(ctx context.Context, upd *tele.Update) error {
	chatID := middleware.ChatID(upd)
	if chatID == 0 {
		return nil
	}
	_, err := b.api.SendMessage(ctx, sender.SendMessageRequest{ChatID: chatID, Text: textNudge})
	return err
}

func (b *Bot) handleQuizType(ctx context.Context, upd *tele.Update) error {
	cb := upd.Callback
	if err := b.api.AnswerCallbackQuery(ctx, cb.ID, ""); err != nil {
		logger.LogEvent(ctx, logger.QUIZ, slog.LevelWarn, "callback.answer",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	if cb.Sender == nil {
		return nil
	}
	anonymous := callbacks.Key(cb.Data) == CallbackAnonymous

	sess, err := b.sessions.Update(ctx, cb.Sender.ID, func(s *state.Session) error {
		// A stale keyboard pressed from another state restarts the flow
		// so only the documented transitions are taken.
		if s.State != state.StateChoosingType {
			if err := s.Start(); err != nil {
				return err
			}
		}
		return s.SelectType(anonymous)
	})
	if err != nil {
		return err
	}
	logger.LogEvent(ctx, logger.QUIZ, slog.LevelInfo, "quiz.type_selected",
		slog.String("state", sess.State.String()),
		slog.Bool("anonymous", sess.Anonymous),
	)

	msg := cb.Message
	if msg == nil || msg.Chat == nil {
		return nil
	}
	chatID := msg.Chat.ID
	if err := b.api.EditMessageText(ctx, sender.EditMessageTextRequest{
		ChatID:    chatID,
		MessageID: msg.ID,
		Text:      typeSelectedText(anonymous),
		ParseMode: sender.ParseModeMarkdown,
	}); err != nil {
		logger.LogEvent(ctx, logger.QUIZ, slog.LevelWarn, "callback.edit",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}
	return b.sendTemplate(ctx, chatID, instructionsText(anonymous))
}

func (b *Bot) handleUnknownCallback(ctx context.Context, upd *tele.Update) error {
	return b.api.AnswerCallbackQuery(ctx, upd.Callback.ID, textUnknownCallback)
}

func (b *Bot) handleSubmission(ctx context.Context, upd *tele.Update) error {
	user := middleware.Sender(upd)
	if user == nil || upd.Message == nil {
		return nil
	}
	chatID := middleware.ChatID(upd)

	sess := b.sessions.Get(ctx, user.ID)
	if sess.State != state.StateWaitingJSON {
		_, err := b.api.SendMessage(ctx, sender.SendMessageRequest{ChatID: chatID, Text: textNeedStart})
		return err
	}

	sub, err := quiz.Parse(upd.Message.Text, b.cfg.Quiz.MaxQuestions)
	switch {
	case errors.Is(err, quiz.ErrMalformed):
		return b.api.Send(ctx, chatID, textInvalidJSON, nil)
	case errors.Is(err, quiz.ErrNoQuestions):
		_, err := b.api.SendMessage(ctx, sender.SendMessageRequest{ChatID: chatID, Text: textNoQuestions})
		return err
	case err != nil:
		return err
	}

	// Claim before sending so a redelivered update cannot post the batch twice.
	claimed, err := b.sessions.Update(ctx, user.ID, (*state.Session).CompleteQuiz)
	if errors.Is(err, state.ErrInvalidTransition) {
		logger.LogEvent(ctx, logger.QUIZ, slog.LevelInfo, "quiz.duplicate",
			slog.String("status", "skip"),
		)
		return nil
	}
	if err != nil {
		return err
	}

	if err := b.api.Send(ctx, chatID, textProcessing, nil); err != nil {
		logger.LogEvent(ctx, logger.QUIZ, slog.LevelWarn, "quiz.processing_notice",
			slog.String("status", "fail"),
			slog.String("err", err.Error()),
		)
	}

	start := time.Now()
	sent, failed := b.sendPolls(ctx, chatID, sub.Questions, claimed.Anonymous)
	logger.LogEvent(ctx, logger.QUIZ, slog.LevelInfo, "quiz.submitted",
		slog.String("status", "ok"),
		slog.Int("questions", len(sub.Questions)),
		slog.Int("polls_sent", sent),
		slog.Int("polls_failed", failed),
		slog.Int("skipped", len(sub.Skipped)),
		slog.Int("dropped", sub.Dropped),
		slog.Int("quiz_count", claimed.QuizCount),
		slog.Duration("duration", logger.Took(start)),
	)

	if err := b.api.Send(ctx, chatID, summaryText(sent, claimed.Anonymous, sub.Skipped, failed), nil); err != nil {
		return err
	}
	return b.api.Send(ctx, chatID, textCreateAnother, nil)
}

// sendPolls posts the questions in order, pausing between sends. A failed
// poll is logged and skipped.
func (b *Bot) sendPolls(ctx context.Context, chatID int64, questions []quiz.Question, anonymous bool) (sent, failed int) {
	delay := b.cfg.PollDelay()
	for i, q := range questions {
		if i > 0 {
			if err := b.sleep(ctx, delay); err != nil {
				failed += len(questions) - i
				logger.LogEvent(ctx, logger.QUIZ, slog.LevelWarn, "quiz.aborted",
					slog.String("status", "cancelled"),
					slog.Int("remaining", len(questions)-i),
				)
				return sent, failed
			}
		}
		_, err := b.api.SendQuiz(ctx, chatID, sender.Quiz{
			Question:    q.Text,
			Options:     q.Options,
			Correct:     q.Correct,
			Explanation: q.Explanation,
			Anonymous:   anonymous,
		})
		if err != nil {
			failed++
			logger.LogEvent(ctx, logger.QUIZ, slog.LevelWarn, "quiz.poll_failed",
				slog.String("status", "fail"),
				slog.Int("question", q.Index+1),
				slog.String("err", err.Error()),
			)
			continue
		}
		sent++
		b.stats.IncPolls()
	}
	return sent, failed
}
