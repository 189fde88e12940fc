package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/mp-analyst-bot-go/internal/config"
	"github.com/mp-analyst-bot-go/internal/middleware"
	"github.com/mp-analyst-bot-go/internal/models"
)

// Conversations expire after a day of inactivity in the Redis backend;
// the memory backend takes its TTL from configuration.
const conversationTTL = 24 * time.Hour

// Storage defines the persistence operations the bot needs
type Storage interface {
	GetConversation(ctx context.Context, userID int64) (*models.Conversation, error)
	SaveConversation(ctx context.Context, conv *models.Conversation) error
	ClearConversation(ctx context.Context, userID int64) error

	GetUserSettings(ctx context.Context, userID int64) (*models.UserSettings, error)
	SaveUserSettings(ctx context.Context, settings *models.UserSettings) error

	GetUserStats(ctx context.Context, userID int64) (*models.UserStats, error)
	IncrementUserStat(ctx context.Context, userID int64, stat string) error

	Close() error
}

// Manager selects and wraps the configured storage backend
type Manager struct {
	storage Storage
	logger  *logrus.Logger
	metrics *middleware.Metrics
}

// NewManager creates a storage manager for the configured backend
func NewManager(cfg *config.StorageConfig, logger *logrus.Logger) (*Manager, error) {
	var backend Storage

	switch cfg.Type {
	case "redis":
		redisStorage, err := NewRedisStorage(&cfg.Redis, logger)
		if err != nil {
			return nil, err
		}
		backend = redisStorage
	case "memory":
		backend = NewMemoryStorage(&cfg.Memory, logger)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}

	logger.WithField("type", cfg.Type).Info("Storage initialized")
	return &Manager{storage: backend, logger: logger, metrics: middleware.NewMetrics()}, nil
}

func (m *Manager) observe(operation string, start time.Time, err error) {
	status := "success"
	if err != nil {
		status = "error"
	}
	m.metrics.RecordStorageOperation(operation, status, time.Since(start))
}

func (m *Manager) GetConversation(ctx context.Context, userID int64) (*models.Conversation, error) {
	start := time.Now()
	conv, err := m.storage.GetConversation(ctx, userID)
	m.observe("get_conversation", start, err)
	return conv, err
}

func (m *Manager) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	start := time.Now()
	err := m.storage.SaveConversation(ctx, conv)
	m.observe("save_conversation", start, err)
	return err
}

func (m *Manager) ClearConversation(ctx context.Context, userID int64) error {
	start := time.Now()
	err := m.storage.ClearConversation(ctx, userID)
	m.observe("clear_conversation", start, err)
	return err
}

func (m *Manager) GetUserSettings(ctx context.Context, userID int64) (*models.UserSettings, error) {
	start := time.Now()
	settings, err := m.storage.GetUserSettings(ctx, userID)
	m.observe("get_user_settings", start, err)
	return settings, err
}

func (m *Manager) SaveUserSettings(ctx context.Context, settings *models.UserSettings) error {
	start := time.Now()
	err := m.storage.SaveUserSettings(ctx, settings)
	m.observe("save_user_settings", start, err)
	return err
}

func (m *Manager) GetUserStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	start := time.Now()
	stats, err := m.storage.GetUserStats(ctx, userID)
	m.observe("get_user_stats", start, err)
	return stats, err
}

func (m *Manager) IncrementUserStat(ctx context.Context, userID int64, stat string) error {
	start := time.Now()
	err := m.storage.IncrementUserStat(ctx, userID, stat)
	m.observe("increment_user_stat", start, err)
	return err
}

func (m *Manager) Close() error {
	return m.storage.Close()
}

// RedisStorage implements Storage on Redis with JSON values
type RedisStorage struct {
	client *redis.Client
	logger *logrus.Logger
}

func NewRedisStorage(cfg *config.RedisConfig, logger *logrus.Logger) (*RedisStorage, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStorage{client: client, logger: logger}, nil
}

func (r *RedisStorage) GetConversation(ctx context.Context, userID int64) (*models.Conversation, error) {
	data, err := r.client.Get(ctx, fmt.Sprintf("conversation:%d", userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var conv models.Conversation
	if err := json.Unmarshal([]byte(data), &conv); err != nil {
		return nil, err
	}
	return &conv, nil
}

func (r *RedisStorage) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, fmt.Sprintf("conversation:%d", conv.UserID), data, conversationTTL).Err()
}

func (r *RedisStorage) ClearConversation(ctx context.Context, userID int64) error {
	return r.client.Del(ctx, fmt.Sprintf("conversation:%d", userID)).Err()
}

func (r *RedisStorage) GetUserSettings(ctx context.Context, userID int64) (*models.UserSettings, error) {
	data, err := r.client.Get(ctx, fmt.Sprintf("user_settings:%d", userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var settings models.UserSettings
	if err := json.Unmarshal([]byte(data), &settings); err != nil {
		return nil, err
	}
	return &settings, nil
}

func (r *RedisStorage) SaveUserSettings(ctx context.Context, settings *models.UserSettings) error {
	data, err := json.Marshal(settings)
	if err != nil {
		return err
	}
	// Settings outlive conversations, no TTL.
	return r.client.Set(ctx, fmt.Sprintf("user_settings:%d", settings.UserID), data, 0).Err()
}

func (r *RedisStorage) GetUserStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	data, err := r.client.Get(ctx, fmt.Sprintf("user_stats:%d", userID)).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var stats models.UserStats
	if err := json.Unmarshal([]byte(data), &stats); err != nil {
		return nil, err
	}
	return &stats, nil
}

func (r *RedisStorage) IncrementUserStat(ctx context.Context, userID int64, stat string) error {
	stats, err := r.GetUserStats(ctx, userID)
	if err != nil {
		return err
	}
	if stats == nil {
		stats = &models.UserStats{UserID: userID}
	}
	bumpStat(stats, stat)

	data, err := json.Marshal(stats)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, fmt.Sprintf("user_stats:%d", userID), data, 0).Err()
}

func (r *RedisStorage) Close() error {
	return r.client.Close()
}

// MemoryStorage implements Storage in process memory via go-cache
type MemoryStorage struct {
	conversations *cache.Cache
	settings      *cache.Cache
	stats         *cache.Cache
	logger        *logrus.Logger
}

func NewMemoryStorage(cfg *config.MemoryConfig, logger *logrus.Logger) *MemoryStorage {
	return &MemoryStorage{
		conversations: cache.New(cfg.DefaultExpiration, cfg.CleanupInterval),
		settings:      cache.New(cache.NoExpiration, 0),
		stats:         cache.New(cache.NoExpiration, 0),
		logger:        logger,
	}
}

func (m *MemoryStorage) GetConversation(ctx context.Context, userID int64) (*models.Conversation, error) {
	if v, found := m.conversations.Get(fmt.Sprintf("%d", userID)); found {
		return v.(*models.Conversation), nil
	}
	return nil, nil
}

func (m *MemoryStorage) SaveConversation(ctx context.Context, conv *models.Conversation) error {
	m.conversations.Set(fmt.Sprintf("%d", conv.UserID), conv, cache.DefaultExpiration)
	return nil
}

func (m *MemoryStorage) ClearConversation(ctx context.Context, userID int64) error {
	m.conversations.Delete(fmt.Sprintf("%d", userID))
	return nil
}

func (m *MemoryStorage) GetUserSettings(ctx context.Context, userID int64) (*models.UserSettings, error) {
	if v, found := m.settings.Get(fmt.Sprintf("%d", userID)); found {
		return v.(*models.UserSettings), nil
	}
	return nil, nil
}

func (m *MemoryStorage) SaveUserSettings(ctx context.Context, settings *models.UserSettings) error {
	m.settings.Set(fmt.Sprintf("%d", settings.UserID), settings, cache.NoExpiration)
	return nil
}

func (m *MemoryStorage) GetUserStats(ctx context.Context, userID int64) (*models.UserStats, error) {
	if v, found := m.stats.Get(fmt.Sprintf("%d", userID)); found {
		return v.(*models.UserStats), nil
	}
	return nil, nil
}

func (m *MemoryStorage) IncrementUserStat(ctx context.Context, userID int64, stat string) error {
	stats, err := m.GetUserStats(ctx, userID)
	if err != nil {
		return err
	}
	if stats == nil {
		stats = &models.UserStats{UserID: userID}
	}
	bumpStat(stats, stat)
	m.stats.Set(fmt.Sprintf("%d", userID), stats, cache.NoExpiration)
	return nil
}

func (m *MemoryStorage) Close() error {
	m.conversations.Flush()
	return nil
}

func bumpStat(stats *models.UserStats, stat string) {
	switch stat {
	case models.StatMessages:
		stats.Messages++
	case models.StatFiles:
		stats.Files++
	case models.StatAIRequests:
		stats.AIRequests++
	}
	stats.LastActivity = time.Now()
}
