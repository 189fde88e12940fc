package cache

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/mp-analyst-bot-go/internal/config"
)

func newTestCache(enabled bool) Service {
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	return NewCache(&config.CacheConfig{
		Enabled: enabled,
		TTL:     time.Hour,
		MaxSize: 100,
	}, logger)
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(true)

	if _, found := c.Get(ctx, "как посчитать маржу?", 0); found {
		t.Fatal("expected miss on empty cache")
	}

	if err := c.Set(ctx, "как посчитать маржу?", 0, "выручка минус себестоимость"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	answer, found := c.Get(ctx, "как посчитать маржу?", 0)
	if !found {
		t.Fatal("expected hit after Set")
	}
	if answer != "выручка минус себестоимость" {
		t.Fatalf("unexpected answer: %q", answer)
	}
}

func TestCacheKeyIncludesHistoryDepth(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(true)

	if err := c.Set(ctx, "а дальше?", 2, "ответ в контексте"); err != nil {
		t.Fatalf("Set: %v", err)
	}

	// The same wording deeper in the dialogue is a different question.
	if _, found := c.Get(ctx, "а дальше?", 4); found {
		t.Fatal("expected miss for a different history depth")
	}
	if _, found := c.Get(ctx, "а дальше?", 2); !found {
		t.Fatal("expected hit for the matching depth")
	}
}

func TestCacheDisabled(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(false)

	if err := c.Set(ctx, "вопрос", 0, "ответ"); err != nil {
		t.Fatalf("Set on disabled cache: %v", err)
	}
	if _, found := c.Get(ctx, "вопрос", 0); found {
		t.Fatal("disabled cache must never hit")
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear on disabled cache: %v", err)
	}
}

func TestCacheClear(t *testing.T) {
	ctx := context.Background()
	c := newTestCache(true)

	if err := c.Set(ctx, "вопрос", 0, "ответ"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := c.Clear(ctx); err != nil {
		t.Fatalf("Clear: %v", err)
	}
	if _, found := c.Get(ctx, "вопрос", 0); found {
		t.Fatal("expected miss after Clear")
	}
}
