package cache

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/mp-analyst-bot-go/internal/config"
	"github.com/mp-analyst-bot-go/internal/models"
)

// Service defines answer cache operations
type Service interface {
	Get(ctx context.Context, question string, historyLen int) (string, bool)
	Set(ctx context.Context, question string, historyLen int, answer string) error
	Clear(ctx context.Context) error
}

// Cache stores recent answers keyed by question and history depth.
// The same question at a different point of the dialogue can get a
// different answer, so the depth is part of the key.
type Cache struct {
	enabled bool
	cache   *cache.Cache
	logger  *logrus.Logger
	maxSize int
}

// NewCache creates a new answer cache
func NewCache(cfg *config.CacheConfig, logger *logrus.Logger) Service {
	if !cfg.Enabled {
		return &Cache{enabled: false}
	}

	return &Cache{
		enabled: true,
		cache:   cache.New(cfg.TTL, cfg.TTL*2),
		logger:  logger,
		maxSize: cfg.MaxSize,
	}
}

// Get retrieves a cached answer
func (c *Cache) Get(ctx context.Context, question string, historyLen int) (string, bool) {
	if !c.enabled {
		return "", false
	}

	key := generateKey(question, historyLen)
	if val, found := c.cache.Get(key); found {
		entry := val.(*models.CacheEntry)
		c.logger.WithFields(logrus.Fields{
			"history_len": historyLen,
			"age":         time.Since(entry.CreatedAt),
		}).Debug("Cache hit")
		return entry.Answer, true
	}

	return "", false
}

// Set stores an answer in the cache
func (c *Cache) Set(ctx context.Context, question string, historyLen int, answer string) error {
	if !c.enabled {
		return nil
	}

	if c.cache.ItemCount() >= c.maxSize {
		c.logger.Warn("Cache size limit reached, clearing old entries")
		c.cache.DeleteExpired()
	}

	entry := &models.CacheEntry{
		Question:   question,
		Answer:     answer,
		HistoryLen: historyLen,
		CreatedAt:  time.Now(),
	}
	c.cache.SetDefault(generateKey(question, historyLen), entry)

	return nil
}

// Clear removes all cached entries
func (c *Cache) Clear(ctx context.Context) error {
	if !c.enabled {
		return nil
	}

	c.cache.Flush()
	c.logger.Info("Cache cleared")
	return nil
}

func generateKey(question string, historyLen int) string {
	data := fmt.Sprintf("%d:%s", historyLen, question)
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}
