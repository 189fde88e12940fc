package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

// DefaultModels is the shipped OpenRouter fallback chain, in priority order.
var DefaultModels = []string{
	"meta-llama/llama-2-70b-chat",
	"meta-llama/llama-3-70b-instruct",
	"mistralai/mistral-7b-instruct",
	"meta-llama/llama-2-13b-chat",
	"nousresearch/nous-hermes-2-mixtral-8x7b-dpo",
}

type Config struct {
	Bot         BotConfig         `mapstructure:"bot"`
	OpenRouter  OpenRouterConfig  `mapstructure:"openrouter"`
	Context     ContextConfig     `mapstructure:"context"`
	Spreadsheet SpreadsheetConfig `mapstructure:"spreadsheet"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Cache       CacheConfig       `mapstructure:"cache"`
	RateLimit   RateLimitConfig   `mapstructure:"rate_limit"`
	Logging     LoggingConfig     `mapstructure:"logging"`
	Monitoring  MonitoringConfig  `mapstructure:"monitoring"`
	I18n        I18nConfig        `mapstructure:"i18n"`
	Knowledge   KnowledgeConfig   `mapstructure:"knowledge"`
}

type BotConfig struct {
	Token         string        `mapstructure:"token"`
	Webhook       WebhookConfig `mapstructure:"webhook"`
	UpdateTimeout int           `mapstructure:"update_timeout"`
}

type WebhookConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	URL     string `mapstructure:"url"`
	Port    int    `mapstructure:"port"`
}

type OpenRouterConfig struct {
	APIKey         string        `mapstructure:"api_key"`
	BaseURL        string        `mapstructure:"base_url"`
	Models         []string      `mapstructure:"models"`
	Temperature    float64       `mapstructure:"temperature"`
	MaxTokens      int64         `mapstructure:"max_tokens"`
	RequestTimeout time.Duration `mapstructure:"request_timeout"`
}

type ContextConfig struct {
	SystemPrompt string `mapstructure:"system_prompt"`
	MaxMessages  int    `mapstructure:"max_messages"`
}

type SpreadsheetConfig struct {
	PreviewMaxRows int   `mapstructure:"preview_max_rows"`
	MaxFileSize    int64 `mapstructure:"max_file_size"`
}

type StorageConfig struct {
	Type   string       `mapstructure:"type"`
	Redis  RedisConfig  `mapstructure:"redis"`
	Memory MemoryConfig `mapstructure:"memory"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MemoryConfig struct {
	DefaultExpiration time.Duration `mapstructure:"default_expiration"`
	CleanupInterval   time.Duration `mapstructure:"cleanup_interval"`
}

type CacheConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	TTL     time.Duration `mapstructure:"ttl"`
	MaxSize int           `mapstructure:"max_size"`
}

type RateLimitConfig struct {
	Enabled           bool `mapstructure:"enabled"`
	RequestsPerMinute int  `mapstructure:"requests_per_minute"`
	Burst             int  `mapstructure:"burst"`
}

type LoggingConfig struct {
	Level  string     `mapstructure:"level"`
	Format string     `mapstructure:"format"`
	Output string     `mapstructure:"output"`
	File   FileConfig `mapstructure:"file"`
}

type FileConfig struct {
	Path       string `mapstructure:"path"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
}

type MonitoringConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Port    int    `mapstructure:"port"`
	Path    string `mapstructure:"path"`
}

type I18nConfig struct {
	DefaultLanguage string   `mapstructure:"default_language"`
	Languages       []string `mapstructure:"languages"`
}

type KnowledgeConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	Directory string `mapstructure:"directory"`
}

// LoadConfig loads configuration from an optional YAML file and environment
// variables. A missing file is fine (the bot can run on environment alone);
// a present but unreadable one is not.
func LoadConfig(configPath string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.AutomaticEnv()
	v.BindEnv("bot.token", "TELEGRAM_BOT_TOKEN", "BOT_TOKEN")
	v.BindEnv("bot.webhook.url", "WEBHOOK_URL")
	v.BindEnv("openrouter.api_key", "OPENROUTER_API_KEY")
	v.BindEnv("openrouter.base_url", "OPENROUTER_BASE_URL")
	v.BindEnv("openrouter.models", "OPENROUTER_MODELS")
	v.BindEnv("storage.redis.addr", "REDIS_ADDR")
	v.BindEnv("storage.redis.password", "REDIS_PASSWORD")
	v.BindEnv("storage.redis.db", "REDIS_DB")
	v.BindEnv("logging.level", "LOG_LEVEL")

	if _, err := os.Stat(configPath); err == nil {
		v.SetConfigFile(configPath)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	// Split host/port variables, the docker-compose convention.
	if redisHost := os.Getenv("REDIS_HOST"); redisHost != "" {
		redisPort := os.Getenv("REDIS_PORT")
		if redisPort == "" {
			redisPort = "6379"
		}
		config.Storage.Redis.Addr = redisHost + ":" + redisPort
	}

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bot.update_timeout", 60)
	v.SetDefault("bot.webhook.enabled", false)
	v.SetDefault("bot.webhook.port", 8443)

	v.SetDefault("openrouter.base_url", "https://openrouter.ai/api/v1")
	v.SetDefault("openrouter.models", DefaultModels)
	v.SetDefault("openrouter.temperature", 0.7)
	v.SetDefault("openrouter.max_tokens", 4000)
	v.SetDefault("openrouter.request_timeout", 2*time.Minute)

	v.SetDefault("context.max_messages", 20)

	v.SetDefault("spreadsheet.preview_max_rows", 200)
	v.SetDefault("spreadsheet.max_file_size", int64(20<<20))

	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.redis.addr", "localhost:6379")
	v.SetDefault("storage.memory.default_expiration", 24*time.Hour)
	v.SetDefault("storage.memory.cleanup_interval", time.Hour)

	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", time.Hour)
	v.SetDefault("cache.max_size", 1000)

	v.SetDefault("rate_limit.enabled", true)
	v.SetDefault("rate_limit.requests_per_minute", 20)
	v.SetDefault("rate_limit.burst", 5)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "text")
	v.SetDefault("logging.output", "stdout")
	v.SetDefault("logging.file.path", "logs/bot.log")
	v.SetDefault("logging.file.max_size", 100)
	v.SetDefault("logging.file.max_backups", 3)
	v.SetDefault("logging.file.max_age", 28)

	v.SetDefault("monitoring.metrics.enabled", true)
	v.SetDefault("monitoring.metrics.port", 9090)
	v.SetDefault("monitoring.metrics.path", "/metrics")

	v.SetDefault("i18n.default_language", "ru")
	v.SetDefault("i18n.languages", []string{"ru", "en"})

	v.SetDefault("knowledge.enabled", false)
	v.SetDefault("knowledge.directory", "configs/guides")
}

func validateConfig(cfg *Config) error {
	if cfg.Bot.Token == "" {
		return fmt.Errorf("telegram bot token is required: set TELEGRAM_BOT_TOKEN in the environment or .env file")
	}
	if cfg.OpenRouter.APIKey == "" {
		return fmt.Errorf("OpenRouter API key is required: set OPENROUTER_API_KEY in the environment or .env file")
	}
	if len(cfg.OpenRouter.Models) == 0 {
		return fmt.Errorf("at least one model is required in openrouter.models")
	}
	if cfg.Storage.Type != "memory" && cfg.Storage.Type != "redis" {
		return fmt.Errorf("unknown storage type %q, expected memory or redis", cfg.Storage.Type)
	}
	return nil
}
