package i18n

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mp-analyst-bot-go/internal/config"
)

func writeCatalogue(t *testing.T, dir, lang, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, lang+".json"), []byte(content), 0644); err != nil {
		t.Fatalf("write %s catalogue: %v", lang, err)
	}
}

func newTestLocalizer(t *testing.T) *Localizer {
	t.Helper()

	root := t.TempDir()
	dir := filepath.Join(root, "configs", "i18n")
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeCatalogue(t, dir, "ru", `{
  "reset_done": "🔄 История диалога очищена. Готов к новому анализу!",
  "text_error": "❌ Ошибка: {{.Error}}\nПроверьте OPENROUTER_API_KEY в файле .env"
}`)
	writeCatalogue(t, dir, "en", `{
  "reset_done": "🔄 Dialogue history cleared. Ready for a new analysis!"
}`)
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

	localizer, err := NewLocalizer(&config.I18nConfig{
		DefaultLanguage: "ru",
		Languages:       []string{"ru", "en"},
	})
	if err != nil {
		t.Fatalf("NewLocalizer: %v", err)
	}
	return localizer
}

func TestLocalizerGet(t *testing.T) {
	l := newTestLocalizer(t)

	got := l.Get("ru", MsgResetDone, nil)
	if got != "🔄 История диалога очищена. Готов к новому анализу!" {
		t.Fatalf("unexpected ru message: %q", got)
	}

	got = l.Get("en", MsgResetDone, nil)
	if !strings.Contains(got, "Dialogue history cleared") {
		t.Fatalf("unexpected en message: %q", got)
	}
}

func TestLocalizerTemplateData(t *testing.T) {
	l := newTestLocalizer(t)

	got := l.Get("ru", MsgTextError, map[string]interface{}{"Error": "нет соединения"})
	if !strings.Contains(got, "❌ Ошибка: нет соединения") {
		t.Fatalf("template not rendered: %q", got)
	}
	if !strings.Contains(got, "OPENROUTER_API_KEY") {
		t.Fatalf("hint missing from message: %q", got)
	}
}

func TestLocalizerFallsBackToDefaultLanguage(t *testing.T) {
	l := newTestLocalizer(t)

	got := l.Get("de", MsgResetDone, nil)
	if !strings.Contains(got, "История диалога очищена") {
		t.Fatalf("expected default-language fallback, got %q", got)
	}
}

func TestLocalizerUnknownIDReturnsID(t *testing.T) {
	l := newTestLocalizer(t)

	if got := l.Get("ru", "no_such_message", nil); got != "no_such_message" {
		t.Fatalf("expected raw id, got %q", got)
	}
}

func TestLocalizerSupported(t *testing.T) {
	l := newTestLocalizer(t)

	if !l.Supported("ru") || !l.Supported("en") {
		t.Fatal("configured languages must be supported")
	}
	if l.Supported("fr") {
		t.Fatal("unconfigured language must not be supported")
	}
}
