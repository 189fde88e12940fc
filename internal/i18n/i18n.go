package i18n

import (
	"encoding/json"
	"fmt"

	"github.com/nicksnyder/go-i18n/v2/i18n"
	"golang.org/x/text/language"

	"github.com/mp-analyst-bot-go/internal/config"
)

const messageFilePattern = "configs/i18n/%s.json"

// Localizer manages internationalization
type Localizer struct {
	bundle          *i18n.Bundle
	defaultLanguage string
	localizers      map[string]*i18n.Localizer
}

// NewLocalizer creates a localizer with all configured languages loaded
func NewLocalizer(cfg *config.I18nConfig) (*Localizer, error) {
	bundle := i18n.NewBundle(language.Russian)
	bundle.RegisterUnmarshalFunc("json", json.Unmarshal)

	for _, lang := range cfg.Languages {
		if _, err := bundle.LoadMessageFile(fmt.Sprintf(messageFilePattern, lang)); err != nil {
			return nil, fmt.Errorf("failed to load language file %s: %w", lang, err)
		}
	}

	localizers := make(map[string]*i18n.Localizer)
	for _, lang := range cfg.Languages {
		localizers[lang] = i18n.NewLocalizer(bundle, lang)
	}

	return &Localizer{
		bundle:          bundle,
		defaultLanguage: cfg.DefaultLanguage,
		localizers:      localizers,
	}, nil
}

// Get returns a localized message, falling back to the default language
// and finally to the message ID itself
func (l *Localizer) Get(lang, messageID string, data map[string]interface{}) string {
	localizer, exists := l.localizers[lang]
	if !exists {
		localizer = l.localizers[l.defaultLanguage]
	}
	if localizer == nil {
		return messageID
	}

	msg, err := localizer.Localize(&i18n.LocalizeConfig{
		MessageID:    messageID,
		TemplateData: data,
	})
	if err != nil {
		return messageID
	}

	return msg
}

// Supported reports whether lang has its own message catalogue
func (l *Localizer) Supported(lang string) bool {
	_, ok := l.localizers[lang]
	return ok
}

// Message IDs
const (
	MsgWelcome           = "welcome"
	MsgHelp              = "help"
	MsgResetDone         = "reset_done"
	MsgModelsList        = "models_list"
	MsgProcessingFile    = "processing_file"
	MsgProcessingText    = "processing_text"
	MsgUnsupportedFormat = "unsupported_format"
	MsgFileError         = "file_error"
	MsgTextError         = "text_error"
	MsgAllModelsFailed   = "all_models_failed"
	MsgRateLimited       = "rate_limited"
	MsgMessageTooLong    = "message_too_long"
	MsgFileTooLarge      = "file_too_large"
	MsgUnknownCommand    = "unknown_command"
	MsgStats             = "stats"
	MsgLanguageSet       = "language_set"
	MsgLanguageUsage     = "language_usage"
	MsgGuidesList        = "guides_list"
	MsgGuidesEmpty       = "guides_empty"
)
