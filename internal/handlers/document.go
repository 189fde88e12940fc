package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/mp-analyst-bot-go/internal/config"
	"github.com/mp-analyst-bot-go/internal/i18n"
	"github.com/mp-analyst-bot-go/internal/middleware"
	"github.com/mp-analyst-bot-go/internal/models"
	"github.com/mp-analyst-bot-go/internal/services/ai"
	"github.com/mp-analyst-bot-go/internal/services/spreadsheet"
	"github.com/mp-analyst-bot-go/internal/services/storage"
	"github.com/mp-analyst-bot-go/pkg/logger"
)

// filePrefacePrompt frames an uploaded table for the model. It is part
// of the data protocol, not a user-facing string, so it is not localized.
const filePrefacePrompt = "Вот мои данные с маркетплейса:\n\n"

// DocumentHandler handles uploaded spreadsheet files
type DocumentHandler struct {
	*replier
	config      *config.Config
	bot         Sender
	self        tgbotapi.User
	aiService   ai.Service
	storage     *storage.Manager
	rateLimiter middleware.RateLimiter
	security    *middleware.SecurityMiddleware
	localizer   *i18n.Localizer
	metrics     *middleware.Metrics
	logger      *logrus.Logger
	httpClient  *http.Client
}

// NewDocumentHandler creates a new document handler
func NewDocumentHandler(
	cfg *config.Config,
	bot Sender,
	self tgbotapi.User,
	aiService ai.Service,
	storage *storage.Manager,
	rateLimiter middleware.RateLimiter,
	localizer *i18n.Localizer,
	metrics *middleware.Metrics,
	log *logrus.Logger,
) *DocumentHandler {
	return &DocumentHandler{
		replier:     newReplier(bot, metrics, log),
		config:      cfg,
		bot:         bot,
		self:        self,
		aiService:   aiService,
		storage:     storage,
		rateLimiter: rateLimiter,
		security:    middleware.NewSecurityMiddleware(log),
		localizer:   localizer,
		metrics:     metrics,
		logger:      log,
		httpClient:  &http.Client{Timeout: 30 * time.Second},
	}
}

// HandleDocument processes an uploaded file
func (h *DocumentHandler) HandleDocument(ctx context.Context, update *tgbotapi.Update) error {
	if update.Message == nil || update.Message.Document == nil {
		return nil
	}
	if update.Message.From == nil || update.Message.From.ID == h.self.ID {
		return nil
	}

	chatID := update.Message.Chat.ID
	userID := update.Message.From.ID
	doc := update.Message.Document

	h.metrics.RecordMessageReceived("document")

	lang := h.userLanguage(ctx, userID)

	if !h.rateLimiter.Allow(userID) {
		h.metrics.RecordRateLimitExceeded()
		h.reply(chatID, update.Message.MessageID, h.localizer.Get(lang, i18n.MsgRateLimited, nil))
		return nil
	}

	// An unreadable format is rejected before anything is downloaded,
	// and the dialogue history stays as it was.
	format := spreadsheet.DetectFormat(doc.FileName)
	if format == spreadsheet.FormatUnknown {
		h.metrics.RecordFileProcessed(format.String(), "unsupported")
		h.reply(chatID, update.Message.MessageID, h.localizer.Get(lang, i18n.MsgUnsupportedFormat, nil))
		return nil
	}

	if h.config.Spreadsheet.MaxFileSize > 0 && int64(doc.FileSize) > h.config.Spreadsheet.MaxFileSize {
		h.metrics.RecordFileProcessed(format.String(), "too_large")
		h.reply(chatID, update.Message.MessageID, h.localizer.Get(lang, i18n.MsgFileTooLarge, map[string]interface{}{
			"MaxSize": h.config.Spreadsheet.MaxFileSize >> 20,
		}))
		return nil
	}

	if err := h.storage.IncrementUserStat(ctx, userID, models.StatFiles); err != nil {
		h.logger.WithError(err).Warn("Failed to update user stats")
	}

	notice := tgbotapi.NewMessage(chatID, h.localizer.Get(lang, i18n.MsgProcessingFile, nil))
	notice.ReplyToMessageID = update.Message.MessageID
	sent, err := h.bot.Send(notice)
	if err != nil {
		h.logger.WithError(err).Error("Failed to send progress notice")
		return err
	}

	go h.processDocument(ctx, chatID, userID, doc, sent.MessageID, lang)

	return nil
}

func (h *DocumentHandler) processDocument(ctx context.Context, chatID, userID int64, doc *tgbotapi.Document, noticeID int, lang string) {
	log := logger.WithUser(h.logger, chatID, userID)
	format := spreadsheet.DetectFormat(doc.FileName)

	data, err := h.download(ctx, doc.FileID)
	if err != nil {
		log.WithError(err).Error("Failed to download document")
		h.metrics.RecordFileProcessed(format.String(), "error")
		h.editPlain(chatID, noticeID, h.fileErrorText(lang, err))
		h.metrics.RecordMessageProcessed("error")
		return
	}

	table, err := spreadsheet.Parse(doc.FileName, data)
	if err != nil {
		log.WithError(err).WithField("file", doc.FileName).Error("Failed to parse document")
		h.metrics.RecordFileProcessed(format.String(), "error")
		h.editPlain(chatID, noticeID, h.fileErrorText(lang, err))
		h.metrics.RecordMessageProcessed("error")
		return
	}
	h.metrics.RecordFileProcessed(format.String(), "success")

	preview := spreadsheet.Preview(doc.FileName, table, h.config.Spreadsheet.PreviewMaxRows)

	conv, err := h.getOrCreateConversation(ctx, userID)
	if err != nil {
		log.WithError(err).Error("Failed to load conversation")
		h.editPlain(chatID, noticeID, h.fileErrorText(lang, err))
		h.metrics.RecordMessageProcessed("error")
		return
	}

	// The data snapshot enters the history before the model call so the
	// user can keep asking about it even if this pass fails.
	conv.Append(models.RoleUser, filePrefacePrompt+preview)
	conv.Trim(h.config.Context.MaxMessages)
	if err := h.storage.SaveConversation(ctx, conv); err != nil {
		log.WithError(err).Warn("Failed to save conversation")
	}

	if err := h.storage.IncrementUserStat(ctx, userID, models.StatAIRequests); err != nil {
		log.WithError(err).Warn("Failed to update user stats")
	}

	start := time.Now()
	completion, err := h.aiService.Complete(ctx, conv.Messages)
	if err != nil {
		h.metrics.RecordAIRequest(h.aiService.CurrentModel(), "error", time.Since(start))
		var exhausted *ai.ExhaustedError
		if errors.As(err, &exhausted) {
			h.metrics.AddModelRotations(exhausted.Attempts)
		}
		log.WithError(err).Error("Completion failed")
		h.editPlain(chatID, noticeID, h.fileErrorText(lang, err))
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

	h.sendAnswer(chatID, noticeID, answer)
	h.metrics.RecordMessageProcessed("success")

	log.WithFields(logrus.Fields{
		"file":     doc.FileName,
		"format":   format.String(),
		"rows":     len(table.Rows),
		"model":    completion.Model,
		"attempts": completion.Attempts,
	}).Info("File analyzed")
}

// download fetches the uploaded file from Telegram's file servers
func (h *DocumentHandler) download(ctx context.Context, fileID string) ([]byte, error) {
	url, err := h.bot.GetFileDirectURL(fileID)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve file url: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download file: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("file download returned status %d", resp.StatusCode)
	}

	// Telegram's size field comes from the client, the stream is the truth.
	limit := h.config.Spreadsheet.MaxFileSize
	if limit <= 0 {
		limit = 20 << 20
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(data)) > limit {
		return nil, fmt.Errorf("file exceeds %d bytes", limit)
	}

	return data, nil
}

func (h *DocumentHandler) getOrCreateConversation(ctx context.Context, userID int64) (*models.Conversation, error) {
	conv, err := h.storage.GetConversation(ctx, userID)
	if err != nil {
		return nil, err
	}
	if conv == nil {
		conv = &models.Conversation{UserID: userID}
	}
	return conv, nil
}

// fileErrorText wraps any failure of the file flow, model exhaustion
// included, in the file error envelope
func (h *DocumentHandler) fileErrorText(lang string, err error) string {
	desc := err.Error()
	var exhausted *ai.ExhaustedError
	if errors.As(err, &exhausted) {
		desc = h.localizer.Get(lang, i18n.MsgAllModelsFailed, map[string]interface{}{
			"Error": fmt.Sprintf("%v", exhausted.LastErr),
		})
	}
	return h.localizer.Get(lang, i18n.MsgFileError, map[string]interface{}{"Error": desc})
}

func (h *DocumentHandler) userLanguage(ctx context.Context, userID int64) string {
	settings, err := h.storage.GetUserSettings(ctx, userID)
	if err != nil || settings == nil || settings.Language == "" {
		return h.config.I18n.DefaultLanguage
	}
	return settings.Language
}
