package handlers

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/mp-analyst-bot-go/internal/middleware"
	"github.com/mp-analyst-bot-go/internal/services/knowledge"
	"github.com/mp-analyst-bot-go/pkg/chunk"
	"github.com/mp-analyst-bot-go/pkg/markdown"
)

// Sender is the slice of the Telegram API the handlers use.
// *tgbotapi.BotAPI implements it.
type Sender interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	GetFileDirectURL(fileID string) (string, error)
}

// GuideSource supplies reference material for answering questions
type GuideSource interface {
	BuildContext(ctx context.Context, query string, limit int) string
	All() []knowledge.Guide
}

// replier delivers bot replies: markdown rendering, the Telegram length
// limit, and the plain-text fallback when HTML parsing is rejected
type replier struct {
	bot     Sender
	metrics *middleware.Metrics
	logger  *logrus.Logger
}

func newReplier(bot Sender, metrics *middleware.Metrics, logger *logrus.Logger) *replier {
	return &replier{bot: bot, metrics: metrics, logger: logger}
}

// reply sends a short service message in reply to the user's message
func (r *replier) reply(chatID int64, replyTo int, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyToMessageID = replyTo
	if _, err := r.bot.Send(msg); err != nil {
		r.logger.WithError(err).Error("Failed to send message")
	}
}

// editPlain replaces a progress notice with plain text
func (r *replier) editPlain(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := r.bot.Send(edit); err != nil {
		r.logger.WithError(err).Error("Failed to edit message")
	}
}

// sendAnswer delivers a model reply. The first chunk replaces the
// progress notice, the rest go out as separate messages.
func (r *replier) sendAnswer(chatID int64, noticeID int, text string) {
	chunks := chunk.Split(text, chunk.TelegramMessageLimit)
	if len(chunks) == 0 {
		return
	}

	r.editChunk(chatID, noticeID, chunks[0])
	for _, part := range chunks[1:] {
		r.sendChunk(chatID, part)
	}
	r.metrics.AddReplyChunks(len(chunks))
}

func (r *replier) editChunk(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, markdown.ToTelegramHTML(text))
	edit.ParseMode = "HTML"
	if _, err := r.bot.Send(edit); err != nil {
		r.logger.WithError(err).Warn("Failed to send HTML reply, falling back to plain text")
		edit.ParseMode = ""
		edit.Text = text
		if _, err := r.bot.Send(edit); err != nil {
			r.logger.WithError(err).Error("Failed to send reply")
		}
	}
}

func (r *replier) sendChunk(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, markdown.ToTelegramHTML(text))
	msg.ParseMode = "HTML"
	if _, err := r.bot.Send(msg); err != nil {
		r.logger.WithError(err).Warn("Failed to send HTML reply, falling back to plain text")
		msg.ParseMode = ""
		msg.Text = text
		if _, err := r.bot.Send(msg); err != nil {
			r.logger.WithError(err).Error("Failed to send reply")
		}
	}
}
