package handlers

import (
	"context"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/mp-analyst-bot-go/internal/config"
	"github.com/mp-analyst-bot-go/internal/i18n"
	"github.com/mp-analyst-bot-go/internal/middleware"
	"github.com/mp-analyst-bot-go/internal/models"
	"github.com/mp-analyst-bot-go/internal/services/ai"
	"github.com/mp-analyst-bot-go/internal/services/storage"
)

// CommandHandler handles bot commands
type CommandHandler struct {
	*replier
	config    *config.Config
	bot       Sender
	aiService ai.Service
	guides    GuideSource
	storage   *storage.Manager
	localizer *i18n.Localizer
	metrics   *middleware.Metrics
	logger    *logrus.Logger
}

// NewCommandHandler creates a new command handler
func NewCommandHandler(
	cfg *config.Config,
	bot Sender,
	aiService ai.Service,
	guides GuideSource,
	storage *storage.Manager,
	localizer *i18n.Localizer,
	metrics *middleware.Metrics,
	log *logrus.Logger,
) *CommandHandler {
	return &CommandHandler{
		replier:   newReplier(bot, metrics, log),
		config:    cfg,
		bot:       bot,
		aiService: aiService,
		guides:    guides,
		storage:   storage,
		localizer: localizer,
		metrics:   metrics,
		logger:    log,
	}
}

// HandleCommand processes a command message
func (h *CommandHandler) HandleCommand(ctx context.Context, message *tgbotapi.Message) error {
	if message == nil || message.From == nil {
		return nil
	}

	chatID := message.Chat.ID
	userID := message.From.ID
	command := message.Command()

	h.metrics.RecordMessageReceived("command")
	h.metrics.RecordCommandExecuted(command)

	settings, _ := h.storage.GetUserSettings(ctx, userID)
	lang := h.config.I18n.DefaultLanguage
	if settings != nil && settings.Language != "" {
		lang = settings.Language
	}

	switch command {
	case "start":
		return h.handleStart(ctx, chatID, userID, message.MessageID, lang)
	case "help":
		return h.handleHelp(chatID, message.MessageID, lang)
	case "reset":
		return h.handleReset(ctx, chatID, userID, message.MessageID, lang)
	case "models":
		return h.handleModels(chatID, message.MessageID, lang)
	case "stats":
		return h.handleStats(ctx, chatID, userID, message.MessageID, lang)
	case "language":
		return h.handleLanguage(ctx, chatID, userID, message.MessageID, message.CommandArguments(), lang)
	case "guides":
		return h.handleGuides(chatID, message.MessageID, lang)
	default:
		h.reply(chatID, message.MessageID, h.localizer.Get(lang, i18n.MsgUnknownCommand, nil))
		return nil
	}
}

// handleStart greets the user and starts a fresh dialogue
func (h *CommandHandler) handleStart(ctx context.Context, chatID, userID int64, replyTo int, lang string) error {
	if err := h.storage.ClearConversation(ctx, userID); err != nil {
		h.logger.WithError(err).Error("Failed to clear conversation")
	}

	h.reply(chatID, replyTo, h.localizer.Get(lang, i18n.MsgWelcome, nil))
	return nil
}

func (h *CommandHandler) handleHelp(chatID int64, replyTo int, lang string) error {
	h.reply(chatID, replyTo, h.localizer.Get(lang, i18n.MsgHelp, nil))
	return nil
}

// handleReset drops the dialogue history
func (h *CommandHandler) handleReset(ctx context.Context, chatID, userID int64, replyTo int, lang string) error {
	if err := h.storage.ClearConversation(ctx, userID); err != nil {
		h.logger.WithError(err).Error("Failed to clear conversation")
	}

	h.reply(chatID, replyTo, h.localizer.Get(lang, i18n.MsgResetDone, nil))
	return nil
}

// handleModels lists the models of the fallback rotation in order
func (h *CommandHandler) handleModels(chatID int64, replyTo int, lang string) error {
	ids := h.aiService.Models()
	lines := make([]string, 0, len(ids))
	for _, id := range ids {
		lines = append(lines, "• "+id)
	}

	text := h.localizer.Get(lang, i18n.MsgModelsList, map[string]interface{}{
		"Models": strings.Join(lines, "\n"),
	})
	h.reply(chatID, replyTo, text)
	return nil
}

func (h *CommandHandler) handleStats(ctx context.Context, chatID, userID int64, replyTo int, lang string) error {
	stats, err := h.storage.GetUserStats(ctx, userID)
	if err != nil {
		h.logger.WithError(err).Error("Failed to load user stats")
	}
	if stats == nil {
		stats = &models.UserStats{UserID: userID}
	}

	lastActivity := "—"
	if !stats.LastActivity.IsZero() {
		lastActivity = stats.LastActivity.Format("2006-01-02 15:04")
	}

	text := h.localizer.Get(lang, i18n.MsgStats, map[string]interface{}{
		"Messages":     stats.Messages,
		"Files":        stats.Files,
		"AIRequests":   stats.AIRequests,
		"LastActivity": lastActivity,
	})
	h.reply(chatID, replyTo, text)
	return nil
}

// handleLanguage switches the reply language for this user
func (h *CommandHandler) handleLanguage(ctx context.Context, chatID, userID int64, replyTo int, arg, lang string) error {
	arg = strings.ToLower(strings.TrimSpace(arg))
	if arg == "" || !h.localizer.Supported(arg) {
		h.reply(chatID, replyTo, h.localizer.Get(lang, i18n.MsgLanguageUsage, nil))
		return nil
	}

	if err := h.storage.SaveUserSettings(ctx, &models.UserSettings{UserID: userID, Language: arg}); err != nil {
		h.logger.WithError(err).Error("Failed to save user settings")
		h.reply(chatID, replyTo, h.errorReplyText(lang, err))
		return err
	}

	// Confirm in the language just chosen.
	h.reply(chatID, replyTo, h.localizer.Get(arg, i18n.MsgLanguageSet, map[string]interface{}{
		"Language": arg,
	}))
	return nil
}

func (h *CommandHandler) handleGuides(chatID int64, replyTo int, lang string) error {
	if h.guides == nil || !h.config.Knowledge.Enabled {
		h.reply(chatID, replyTo, h.localizer.Get(lang, i18n.MsgGuidesEmpty, nil))
		return nil
	}

	guides := h.guides.All()
	if len(guides) == 0 {
		h.reply(chatID, replyTo, h.localizer.Get(lang, i18n.MsgGuidesEmpty, nil))
		return nil
	}

	lines := make([]string, 0, len(guides))
	for _, g := range guides {
		lines = append(lines, "• "+g.Title)
	}

	text := h.localizer.Get(lang, i18n.MsgGuidesList, map[string]interface{}{
		"Guides": strings.Join(lines, "\n"),
	})
	h.reply(chatID, replyTo, text)
	return nil
}

func (h *CommandHandler) errorReplyText(lang string, err error) string {
	return h.localizer.Get(lang, i18n.MsgTextError, map[string]interface{}{"Error": err.Error()})
}
