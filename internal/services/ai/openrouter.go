package ai

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/openai/openai-go/v2"
	"github.com/openai/openai-go/v2/option"
	"github.com/sirupsen/logrus"

	"github.com/mp-analyst-bot-go/internal/config"
	"github.com/mp-analyst-bot-go/internal/models"
)

// Completion is a successful model response.
type Completion struct {
	Text     string
	Model    string
	Attempts int
}

// Service answers conversation histories with a language model.
type Service interface {
	Complete(ctx context.Context, history []models.Message) (*Completion, error)
	CompleteWithKnowledge(ctx context.Context, history []models.Message, knowledge string) (*Completion, error)
	Models() []string
	CurrentModel() string
}

// Client calls OpenRouter's OpenAI-compatible chat completion API, walking
// the model rotation until one model answers. Safe for concurrent use.
type Client struct {
	api          *openai.Client
	rotation     *ModelRotation
	systemPrompt string
	temperature  float64
	maxTokens    int64
	timeout      time.Duration
	logger       *logrus.Logger
}

// NewClient builds an OpenRouter completion client. An empty systemPrompt
// selects DefaultSystemPrompt.
func NewClient(cfg *config.OpenRouterConfig, systemPrompt string, logger *logrus.Logger) *Client {
	if systemPrompt == "" {
		systemPrompt = DefaultSystemPrompt
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	// The SDK retries 5xx with backoff on its own; rotation is the only
	// retry mechanism here, so that stays off.
	api := openai.NewClient(
		option.WithAPIKey(cfg.APIKey),
		option.WithBaseURL(cfg.BaseURL),
		option.WithMaxRetries(0),
	)
	return &Client{
		api:          &api,
		rotation:     NewModelRotation(cfg.Models),
		systemPrompt: systemPrompt,
		temperature:  cfg.Temperature,
		maxTokens:    cfg.MaxTokens,
		timeout:      timeout,
		logger:       logger,
	}
}

// Models returns the rotation's model list in priority order.
func (c *Client) Models() []string {
	return c.rotation.Models()
}

// CurrentModel returns the model the next completion pass tries first.
func (c *Client) CurrentModel() string {
	return c.rotation.Current()
}

// Complete runs one fallback pass over the rotation with the conversation
// history. Each model is tried at most once, with no delay between
// attempts; the first answer wins.
func (c *Client) Complete(ctx context.Context, history []models.Message) (*Completion, error) {
	return c.complete(ctx, history, "")
}

// CompleteWithKnowledge is Complete with reference material appended to the
// system instruction for this call only.
func (c *Client) CompleteWithKnowledge(ctx context.Context, history []models.Message, knowledge string) (*Completion, error) {
	return c.complete(ctx, history, knowledge)
}

func (c *Client) complete(ctx context.Context, history []models.Message, knowledge string) (*Completion, error) {
	total := c.rotation.Len()
	if total == 0 {
		return nil, errors.New("model rotation is empty")
	}

	var lastErr error
	for attempt := 1; attempt <= total; attempt++ {
		// A gone caller must not burn rotation positions.
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		model := c.rotation.Current()
		text, err := c.request(ctx, model, history, knowledge)
		if err == nil {
			c.logger.WithFields(logrus.Fields{
				"model":   model,
				"attempt": attempt,
			}).Info("Completion succeeded")
			return &Completion{Text: text, Model: model, Attempts: attempt}, nil
		}

		lastErr = err
		c.logger.WithError(err).WithField("model", model).Warn("Model failed, advancing rotation")
		c.rotation.Advance()
	}

	return nil, &ExhaustedError{Attempts: total, LastErr: lastErr}
}

func (c *Client) request(ctx context.Context, model string, history []models.Message, knowledge string) (string, error) {
	actx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.Chat.Completions.New(actx, openai.ChatCompletionNewParams{
		Model:       openai.ChatModel(model),
		Messages:    c.buildMessages(history, knowledge),
		Temperature: openai.Float(c.temperature),
		MaxTokens:   openai.Int(c.maxTokens),
	})
	if err != nil {
		return "", &ModelError{Model: model, Err: err}
	}
	if len(resp.Choices) == 0 {
		return "", &ModelError{Model: model, Err: errors.New("response contains no choices")}
	}
	text := resp.Choices[0].Message.Content
	if strings.TrimSpace(text) == "" {
		return "", &ModelError{Model: model, Err: errors.New("response text is empty")}
	}
	return text, nil
}

func (c *Client) buildMessages(history []models.Message, knowledge string) []openai.ChatCompletionMessageParamUnion {
	system := c.systemPrompt
	if knowledge != "" {
		system += "\n\nСправочные материалы:\n" + knowledge
	}

	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(history)+1)
	msgs = append(msgs, openai.SystemMessage(system))
	for _, m := range history {
		if m.Role == models.RoleAssistant {
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		} else {
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	return msgs
}
