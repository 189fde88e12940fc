package handlers

import (
	"context"
	"strings"
	"testing"

	"github.com/mp-analyst-bot-go/internal/models"
	"github.com/mp-analyst-bot-go/internal/services/knowledge"
)

type fakeGuides struct {
	context string
	guides  []knowledge.Guide
}

func (f *fakeGuides) BuildContext(ctx context.Context, query string, limit int) string {
	return f.context
}

func (f *fakeGuides) All() []knowledge.Guide {
	return f.guides
}

func TestHandleCommandStartClearsHistory(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedHistory(t, env, 100)

	if err := env.cmd.HandleCommand(ctx, commandMessage(100, "/start")); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}

	texts := env.waitForSends(t, 1)
	if !strings.Contains(texts[0], "Привет! Я ваш аналитик маркетплейсов") {
		t.Errorf("greeting = %q", texts[0])
	}
	if got := env.history(t, 100); got != nil {
		t.Errorf("history after /start = %+v", got)
	}
}

func TestHandleCommandReset(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	seedHistory(t, env, 100)

	if err := env.cmd.HandleCommand(ctx, commandMessage(100, "/reset")); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}

	texts := env.waitForSends(t, 1)
	if texts[0] != "🔄 История диалога очищена. Готов к новому анализу!" {
		t.Errorf("reply = %q", texts[0])
	}
	if got := env.history(t, 100); got != nil {
		t.Errorf("history after /reset = %+v", got)
	}
}

func TestHandleCommandModels(t *testing.T) {
	env := newTestEnv(t)

	if err := env.cmd.HandleCommand(context.Background(), commandMessage(100, "/models")); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}

	texts := env.waitForSends(t, 1)
	want := "📋 Доступные модели:\n\n• org/model-a\n• org/model-b"
	if texts[0] != want {
		t.Errorf("reply = %q, want %q", texts[0], want)
	}
}

func TestHandleCommandStats(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.cmd.HandleCommand(ctx, commandMessage(100, "/stats")); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	texts := env.waitForSends(t, 1)
	if !strings.Contains(texts[0], "Сообщений: 0") || !strings.Contains(texts[0], "Последняя активность: —") {
		t.Errorf("fresh stats = %q", texts[0])
	}

	for i := 0; i < 2; i++ {
		if err := env.store.IncrementUserStat(ctx, 100, models.StatMessages); err != nil {
			t.Fatalf("IncrementUserStat: %v", err)
		}
	}
	if err := env.store.IncrementUserStat(ctx, 100, models.StatFiles); err != nil {
		t.Fatalf("IncrementUserStat: %v", err)
	}

	if err := env.cmd.HandleCommand(ctx, commandMessage(100, "/stats")); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	texts = env.waitForSends(t, 2)
	got := texts[1]
	for _, want := range []string{"Сообщений: 2", "Файлов: 1", "Запросов к ИИ: 0"} {
		if !strings.Contains(got, want) {
			t.Errorf("stats reply misses %q: %q", want, got)
		}
	}
	if strings.Contains(got, "Последняя активность: —") {
		t.Errorf("stats reply kept the empty activity marker: %q", got)
	}
}

func TestHandleCommandLanguage(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.cmd.HandleCommand(ctx, commandMessage(100, "/language")); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	texts := env.waitForSends(t, 1)
	if !strings.Contains(texts[0], "/language ru или /language en") {
		t.Errorf("usage reply = %q", texts[0])
	}

	if err := env.cmd.HandleCommand(ctx, commandMessage(100, "/language de")); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	texts = env.waitForSends(t, 2)
	if !strings.Contains(texts[1], "Использование") {
		t.Errorf("unsupported language reply = %q", texts[1])
	}

	if err := env.cmd.HandleCommand(ctx, commandMessage(100, "/language en")); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	texts = env.waitForSends(t, 3)
	if texts[2] != "✅ Language switched: en" {
		t.Errorf("confirmation = %q", texts[2])
	}

	settings, err := env.store.GetUserSettings(ctx, 100)
	if err != nil {
		t.Fatalf("GetUserSettings: %v", err)
	}
	if settings == nil || settings.Language != "en" {
		t.Fatalf("settings = %+v", settings)
	}

	// Later commands answer in the stored language.
	if err := env.cmd.HandleCommand(ctx, commandMessage(100, "/reset")); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	texts = env.waitForSends(t, 4)
	if texts[3] != "🔄 Dialogue history cleared. Ready for a new analysis!" {
		t.Errorf("reply after switch = %q", texts[3])
	}
}

func TestHandleCommandUnknown(t *testing.T) {
	env := newTestEnv(t)

	if err := env.cmd.HandleCommand(context.Background(), commandMessage(100, "/weather")); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}

	texts := env.waitForSends(t, 1)
	if !strings.Contains(texts[0], "Неизвестная команда") {
		t.Errorf("reply = %q", texts[0])
	}
}

func TestHandleCommandGuides(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.cmd.HandleCommand(ctx, commandMessage(100, "/guides")); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	texts := env.waitForSends(t, 1)
	if !strings.Contains(texts[0], "пока не загружены") {
		t.Errorf("empty guides reply = %q", texts[0])
	}

	env.cfg.Knowledge.Enabled = true
	guides := &fakeGuides{guides: []knowledge.Guide{
		{ID: "abc", Title: "ABC-анализ"},
		{ID: "stock", Title: "Анализ остатков"},
	}}
	env.cmd = NewCommandHandler(env.cfg, env.sender, env.aiSvc, guides, env.store, env.localizer, env.metrics, env.log)

	if err := env.cmd.HandleCommand(ctx, commandMessage(100, "/guides")); err != nil {
		t.Fatalf("HandleCommand: %v", err)
	}
	texts = env.waitForSends(t, 2)
	want := "📚 Справочные материалы:\n\n• ABC-анализ\n• Анализ остатков"
	if texts[1] != want {
		t.Errorf("guides reply = %q, want %q", texts[1], want)
	}
}

func TestHandleMessageInjectsKnowledge(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.cfg.Knowledge.Enabled = true
	guides := &fakeGuides{context: "## ABC-анализ\nГруппа A даёт 80% выручки."}
	env.msg = NewMessageHandler(env.cfg, env.sender, env.self, env.aiSvc, guides, env.store, env.cache, env.limiter, env.localizer, env.metrics, env.log)

	if err := env.msg.HandleMessage(ctx, textUpdate(100, "что такое ABC-анализ?")); err != nil {
		t.Fatalf("HandleMessage: %v", err)
	}

	env.waitForSends(t, 2)
	waitFor(t, func() bool { return env.aiSvc.callCount() == 1 })

	env.aiSvc.mu.Lock()
	knowledgeArg := env.aiSvc.gotKnowledge
	env.aiSvc.mu.Unlock()
	if !strings.Contains(knowledgeArg, "Группа A даёт 80% выручки") {
		t.Errorf("knowledge context = %q", knowledgeArg)
	}
}
