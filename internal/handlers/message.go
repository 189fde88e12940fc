package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/mp-analyst-bot-go/internal/config"
	"github.com/mp-analyst-bot-go/internal/i18n"
	"github.com/mp-analyst-bot-go/internal/middleware"
	"github.com/mp-analyst-bot-go/internal/models"
	"github.com/mp-analyst-bot-go/internal/services/ai"
	"github.com/mp-analyst-bot-go/internal/services/cache"
	"github.com/mp-analyst-bot-go/internal/services/storage"
	"github.com/mp-analyst-bot-go/pkg/logger"
)

// How many guides are injected into a completion as reference material.
const guideLimit = 2

// MessageHandler handles plain text questions
type MessageHandler struct {
	*replier
	config      *config.Config
	bot         Sender
	self        tgbotapi.User
	aiService   ai.Service
	guides      GuideSource
	storage     *storage.Manager
	cache       cache.Service
	rateLimiter middleware.RateLimiter
	security    *middleware.SecurityMiddleware
	localizer   *i18n.Localizer
	metrics     *middleware.Metrics
	logger      *logrus.Logger
}

// NewMessageHandler creates a new message handler
func NewMessageHandler(
	cfg *config.Config,
	bot Sender,
	self tgbotapi.User,
	aiService ai.Service,
	guides GuideSource,
	storage *storage.Manager,
	cache cache.Service,
	rateLimiter middleware.RateLimiter,
	localizer *i18n.Localizer,
	metrics *middleware.Metrics,
	log *logrus.Logger,
) *MessageHandler {
	return &MessageHandler{
		replier:     newReplier(bot, metrics, log),
		config:      cfg,
		bot:         bot,
		self:        self,
		aiService:   aiService,
		guides:      guides,
		storage:     storage,
		cache:       cache,
		rateLimiter: rateLimiter,
		security:    middleware.NewSecurityMiddleware(log),
		localizer:   localizer,
		metrics:     metrics,
		logger:      log,
	}
}

// HandleMessage processes a text message
func (h *MessageHandler) HandleMessage(ctx context.Context, update *tgbotapi.Update) error {
	if update.Message == nil || update.Message.IsCommand() || update.Message.Text == "" {
		return nil
	}
	if update.Message.From == nil || update.Message.From.ID == h.self.ID {
		return nil
	}

	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID

	h.metrics.RecordMessageReceived("text")

	if !h.shouldRespond(update.Message) {
		return nil
	}

	lang := h.userLanguage(ctx, userID)

	if !h.rateLimiter.Allow(userID) {
		h.metrics.RecordRateLimitExceeded()
		h.reply(chatID, update.Message.MessageID, h.localizer.Get(lang, i18n.MsgRateLimited, nil))
		return nil
	}

	question := h.cleanMessage(update.Message.Text)
	if err := h.security.ValidateInput(question); err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Warn("Input validation failed")
		h.reply(chatID, update.Message.MessageID, h.localizer.Get(lang, i18n.MsgMessageTooLong, nil))
		return nil
	}

	if err := h.storage.IncrementUserStat(ctx, userID, models.StatMessages); err != nil {
		h.logger.WithError(err).Warn("Failed to update user stats")
	}

	notice := tgbotapi.NewMessage(chatID, h.localizer.Get(lang, i18n.MsgProcessingText, nil))
	notice.ReplyToMessageID = update.Message.MessageID
	sent, err := h.bot.Send(notice)
	if err != nil {
		h.logger.WithError(err).Error("Failed to send progress notice")
		return err
	}

	go h.processQuestion(ctx, chatID, userID, question, sent.MessageID, lang)

	return nil
}

func (h *MessageHandler) processQuestion(ctx context.Context, chatID, userID int64, question string, noticeID int, lang string) {
	log := logger.WithUser(h.logger, chatID, userID)

	conv, err := h.getOrCreateConversation(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Failed to load conversation")
		h.editPlain(chatID, noticeID, h.errorText(lang, err))
		h.metrics.RecordMessageProcessed("error")
		return
	}

	// The depth before this question is part of the cache key: the same
	// wording at another point of the dialogue may deserve another answer.
	historyLen := len(conv.Messages)

	if answer, found := h.cache.Get(ctx, question, historyLen); found {
		h.metrics.RecordCacheHit()
		conv.Append(models.RoleUser, question)
		conv.Append(models.RoleAssistant, answer)
		conv.Trim(h.config.Context.MaxMessages)
		if err := h.storage.SaveConversation(ctx, conv); err != nil {
			log.WithError(err).Warn("Failed to save conversation")
		}
		h.sendAnswer(chatID, noticeID, answer)
		h.metrics.RecordMessageProcessed("success")
		return
	}
	h.metrics.RecordCacheMiss()

	// The question enters the history before the model call so a failed
	// pass does not lose it.
	conv.Append(models.RoleUser, question)
	conv.Trim(h.config.Context.MaxMessages)
	if err := h.storage.SaveConversation(ctx, conv); err != nil {
		log.WithError(err).Warn("Failed to save conversation")
	}

	if err := h.storage.IncrementUserStat(ctx, userID, models.StatAIRequests); err != nil {
		log.WithError(err).Warn("Failed to update user stats")
	}

	start := time.Now()
	completion, err := h.complete(ctx, conv.Messages, question)
	if err != nil {
		h.metrics.RecordAIRequest(h.aiService.CurrentModel(), "error", time.Since(start))
		var exhausted *ai.ExhaustedError
		if errors.As(err, &exhausted) {
			h.metrics.AddModelRotations(exhausted.Attempts)
		}
		log.WithError(err).Error("Completion failed")
		h.editPlain(chatID, noticeID, h.errorText(lang, err))
		h.metrics.RecordMessageProcessed("error")
		return
	}
	h.metrics.RecordAIRequest(completion.Model, "success", time.Since(start))
	h.metrics.AddModelRotations(completion.Attempts - 1)

	answer := h.security.SanitizeOutput(completion.Text)
	conv.Append(models.RoleAssistant, answer)
	conv.Trim(h.config.Context.MaxMessages)
	if err := h.storage.SaveConversation(ctx, conv); err != nil {
		log.WithError(err).Error("Failed to save conversation")
	}

	if err := h.cache.Set(ctx, question, historyLen, answer); err != nil {
		log.WithError(err).Warn("Failed to cache answer")
	}

	h.sendAnswer(chatID, noticeID, answer)
	h.metrics.RecordMessageProcessed("success")

	log.WithFields(logrus.Fields{
		"model":    completion.Model,
		"attempts": completion.Attempts,
	}).Info("Answer sent")
}

// complete runs a completion pass, with reference guides when any match
func (h *MessageHandler) complete(ctx context.Context, messages []models.Message, question string) (*ai.Completion, error) {
	if h.guides != nil && h.config.Knowledge.Enabled {
		if refs := h.guides.BuildContext(ctx, question, guideLimit); refs != "" {
			return h.aiService.CompleteWithKnowledge(ctx, messages, refs)
		}
	}
	return h.aiService.Complete(ctx, messages)
}

// shouldRespond reports whether this message is addressed to the bot.
// Private chats always are; in groups the bot answers when mentioned
// or when the message replies to it.
func (h *MessageHandler) shouldRespond(message *tgbotapi.Message) bool {
	if message.Chat.IsPrivate() {
		return true
	}

	if h.self.UserName != "" &&
		strings.Contains(strings.ToLower(message.Text), "@"+strings.ToLower(h.self.UserName)) {
		return true
	}

	if message.ReplyToMessage != nil && message.ReplyToMessage.From != nil &&
		message.ReplyToMessage.From.ID == h.self.ID {
		return true
	}

	return false
}

func (h *MessageHandler) getOrCreateConversation(ctx context.Context, userID int64) (*models.Conversation, error) {
	conv, err := h.storage.GetConversation(ctx, userID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		conv = &models.Conversation{UserID: userID}
	}
	return conv, nil
}

func (h *MessageHandler) cleanMessage(text string) string {
	if h.self.UserName != "" {
		text = strings.ReplaceAll(text, "@"+h.self.UserName, "")
	}
	return strings.TrimSpace(text)
}

// errorText renders a completion failure the way the user expects it:
// exhaustion gets its own description, everything is wrapped in the
// generic error envelope with the API key hint.
func (h *MessageHandler) errorText(lang string, err error) string {
	desc := err.Error()
	var exhausted *ai.ExhaustedError
	if errors.As(err, &exhausted) {
		desc = h.localizer.Get(lang, i18n.MsgAllModelsFailed, map[string]interface{}{
			"Error": fmt.Sprintf("%v", exhausted.LastErr),
		})
	}
	return h.localizer.Get(lang, i18n.MsgTextError, map[string]interface{}{"Error": desc})
}

func (h *MessageHandler) userLanguage(ctx context.Context, userID int64) string {
	settings, err := h.storage.GetUserSettings(ctx, userID)
	if err != nil || settings == nil || settings.Language == "" {
		return h.config.I18n.DefaultLanguage
	}
	return settings.Language
}
