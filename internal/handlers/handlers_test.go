package handlers

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
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
)

// fakeSender records everything the handlers send and hands out
// incrementing message ids like the real API would.
type fakeSender struct {
	mu          sync.Mutex
	sent        []tgbotapi.Chattable
	nextID      int
	fileURL     string
	fileLookups int
	rejectHTML  bool
}

func (s *fakeSender) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.rejectHTML {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			if m.ParseMode == "HTML" {
				return tgbotapi.Message{}, fmt.Errorf("Bad Request: can't parse entities")
			}
		case tgbotapi.EditMessageTextConfig:
			if m.ParseMode == "HTML" {
				return tgbotapi.Message{}, fmt.Errorf("Bad Request: can't parse entities")
			}
		}
	}

	s.sent = append(s.sent, c)
	s.nextID++
	return tgbotapi.Message{MessageID: s.nextID}, nil
}

func (s *fakeSender) GetFileDirectURL(fileID string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fileLookups++
	return s.fileURL, nil
}

// texts returns the message texts in the order they were sent,
// edits included
func (s *fakeSender) texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]string, 0, len(s.sent))
	for _, c := range s.sent {
		switch m := c.(type) {
		case tgbotapi.MessageConfig:
			out = append(out, m.Text)
		case tgbotapi.EditMessageTextConfig:
			out = append(out, m.Text)
		}
	}
	return out
}

func (s *fakeSender) lookups() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fileLookups
}

// fakeAI scripts the completion outcome and records what it was asked
type fakeAI struct {
	mu           sync.Mutex
	completion   *ai.Completion
	err          error
	calls        int
	gotHistory   []models.Message
	gotKnowledge string
	modelList    []string
}

func (f *fakeAI) Complete(ctx context.Context, history []models.Message) (*ai.Completion, error) {
	return f.record(history, "")
}

func (f *fakeAI) CompleteWithKnowledge(ctx context.Context, history []models.Message, knowledge string) (*ai.Completion, error) {
	return f.record(history, knowledge)
}

func (f *fakeAI) record(history []models.Message, knowledge string) (*ai.Completion, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls++
	f.gotHistory = append([]models.Message(nil), history...)
	f.gotKnowledge = knowledge
	if f.err != nil {
		return nil, f.err
	}
	return f.completion, nil
}

func (f *fakeAI) Models() []string {
	if f.modelList != nil {
		return f.modelList
	}
	return []string{"org/model-a", "org/model-b"}
}

func (f *fakeAI) CurrentModel() string {
	ids := f.Models()
	if len(ids) == 0 {
		return ""
	}
	return ids[0]
}

func (f *fakeAI) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeAI) lastHistory() []models.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Message(nil), f.gotHistory...)
}

// setupLocalizer loads the real catalogues from a temp working directory
func setupLocalizer(t *testing.T) *i18n.Localizer {
	t.Helper()

	ru, err := os.ReadFile(filepath.Join("..", "..", "configs", "i18n", "ru.json"))
	if err != nil {
		t.Fatalf("read ru catalogue: %v", err)
	}
	en, err := os.ReadFile(filepath.Join("..", "..", "configs", "i18n", "en.json"))
	if err != nil {
		t.Fatalf("read en catalogue: %v", err)
	}

	root := t.TempDir()
	dir := filepath.Join(root, "configs", "i18n")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "ru.json"), ru, 0644); err != nil {
		t.Fatalf("write ru catalogue: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "en.json"), en, 0644); err != nil {
		t.Fatalf("write en catalogue: %v", err)
	}
	wd, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(root); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(wd); err != nil {
			t.Errorf("restore working directory: %v", err)
		}
	})

	localizer, err := i18n.NewLocalizer(&config.I18nConfig{
		DefaultLanguage: "ru",
		Languages:       []string{"ru", "en"},
	})
	if err != nil {
		t.Fatalf("NewLocalizer: %v", err)
	}
	return localizer
}

type testEnv struct {
	cfg       *config.Config
	sender    *fakeSender
	aiSvc     *fakeAI
	store     *storage.Manager
	cache     cache.Service
	limiter   middleware.RateLimiter
	localizer *i18n.Localizer
	metrics   *middleware.Metrics
	log       *logrus.Logger
	self      tgbotapi.User

	msg *MessageHandler
	cmd *CommandHandler
	doc *DocumentHandler
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	log := logrus.New()
	log.SetOutput(io.Discard)

	cfg := &config.Config{
		Context:     config.ContextConfig{MaxMessages: 20},
		Spreadsheet: config.SpreadsheetConfig{PreviewMaxRows: 200, MaxFileSize: 20 << 20},
		Cache:       config.CacheConfig{Enabled: true, TTL: time.Hour, MaxSize: 100},
		RateLimit:   config.RateLimitConfig{Enabled: true, RequestsPerMinute: 600, Burst: 100},
		I18n:        config.I18nConfig{DefaultLanguage: "ru", Languages: []string{"ru", "en"}},
	}

	localizer := setupLocalizer(t)

	store, err := storage.NewManager(&config.StorageConfig{
		Type: "memory",
		Memory: config.MemoryConfig{
			DefaultExpiration: time.Hour,
			CleanupInterval:   time.Hour,
		},
	}, log)
	if err != nil {
		t.Fatalf("NewManager: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	env := &testEnv{
		cfg:       cfg,
		sender:    &fakeSender{},
		aiSvc:     &fakeAI{completion: &ai.Completion{Text: "ответ", Model: "org/model-a", Attempts: 1}},
		store:     store,
		cache:     cache.NewCache(&cfg.Cache, log),
		limiter:   middleware.NewRateLimiter(&cfg.RateLimit, log),
		localizer: localizer,
		metrics:   middleware.NewMetrics(),
		log:       log,
		self:      tgbotapi.User{ID: 999, UserName: "analyst_bot", IsBot: true},
	}

	env.msg = NewMessageHandler(cfg, env.sender, env.self, env.aiSvc, nil, store, env.cache, env.limiter, localizer, env.metrics, log)
	env.cmd = NewCommandHandler(cfg, env.sender, env.aiSvc, nil, store, localizer, env.metrics, log)
	env.doc = NewDocumentHandler(cfg, env.sender, env.self, env.aiSvc, store, env.limiter, localizer, env.metrics, log)

	return env
}

func textUpdate(userID int64, text string) *tgbotapi.Update {
	return &tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		Text:      text,
	}}
}

func documentUpdate(userID int64, filename string, size int) *tgbotapi.Update {
	return &tgbotapi.Update{Message: &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		Document:  &tgbotapi.Document{FileID: "file-1", FileName: filename, FileSize: size},
	}}
}

func commandMessage(userID int64, text string) *tgbotapi.Message {
	cmdLen := len(text)
	if i := strings.IndexByte(text, ' '); i >= 0 {
		cmdLen = i
	}
	return &tgbotapi.Message{
		MessageID: 1,
		From:      &tgbotapi.User{ID: userID},
		Chat:      &tgbotapi.Chat{ID: userID, Type: "private"},
		Text:      text,
		Entities:  []tgbotapi.MessageEntity{{Type: "bot_command", Offset: 0, Length: cmdLen}},
	}
}

// waitFor polls until cond holds or the deadline passes
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func (e *testEnv) waitForSends(t *testing.T, n int) []string {
	t.Helper()
	waitFor(t, func() bool { return len(e.sender.texts()) >= n })
	return e.sender.texts()
}

func (e *testEnv) history(t *testing.T, userID int64) []models.Message {
	t.Helper()
	conv, err := e.store.GetConversation(context.Background(), userID)
	if err != nil {
		t.Fatalf("GetConversation: %v", err)
	}
	if conv == nil {
		return nil
	}
	return conv.Messages
}
