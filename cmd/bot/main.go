package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"

	"github.com/mp-analyst-bot-go/internal/config"
	"github.com/mp-analyst-bot-go/internal/handlers"
	"github.com/mp-analyst-bot-go/internal/i18n"
	"github.com/mp-analyst-bot-go/internal/middleware"
	"github.com/mp-analyst-bot-go/internal/services/ai"
	"github.com/mp-analyst-bot-go/internal/services/cache"
	"github.com/mp-analyst-bot-go/internal/services/knowledge"
	"github.com/mp-analyst-bot-go/internal/services/storage"
	"github.com/mp-analyst-bot-go/pkg/logger"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "Path to configuration file")
	envFile := flag.String("env", ".env", "Path to .env file")
	flag.Parse()

	// A missing .env is fine, the environment may be set another way.
	if err := godotenv.Load(*envFile); err != nil {
		fmt.Printf("Warning: .env file not found: %v\n", err)
	}

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.NewLogger(&cfg.Logging)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}

	log.Info("Starting marketplace analyst bot...")
	log.WithField("token_length", len(cfg.Bot.Token)).Info("Bot token loaded")

	bot, err := tgbotapi.NewBotAPI(cfg.Bot.Token)
	if err != nil {
		log.WithError(err).Fatal("Failed to create bot")
	}

	bot.Debug = cfg.Logging.Level == "debug"
	log.WithField("username", bot.Self.UserName).Info("Bot authorized")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	storageManager, err := storage.NewManager(&cfg.Storage, log)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize storage")
	}

	aiService := ai.NewClient(&cfg.OpenRouter, cfg.Context.SystemPrompt, log)
	log.WithField("models", len(aiService.Models())).Info("Model rotation ready")

	// guides stays nil unless the library loads, the handlers treat nil
	// as "no reference material".
	var guides handlers.GuideSource
	if cfg.Knowledge.Enabled {
		library := knowledge.NewVectorLibrary(log)
		if err := library.Load(ctx, cfg.Knowledge.Directory); err != nil {
			log.WithError(err).Error("Failed to load guide library")
		} else {
			guides = library
			log.WithField("guides", len(library.All())).Info("Guide library loaded")
		}
	}

	cacheService := cache.NewCache(&cfg.Cache, log)
	rateLimiter := middleware.NewRateLimiter(&cfg.RateLimit, log)

	localizer, err := i18n.NewLocalizer(&cfg.I18n)
	if err != nil {
		log.WithError(err).Fatal("Failed to initialize i18n")
	}

	metrics := middleware.NewMetrics()
	if cfg.Monitoring.Metrics.Enabled {
		go func() {
			log.WithFields(logrus.Fields{
				"port": cfg.Monitoring.Metrics.Port,
				"path": cfg.Monitoring.Metrics.Path,
			}).Info("Starting metrics server")

			if err := middleware.StartMetricsServer(cfg.Monitoring.Metrics.Port, cfg.Monitoring.Metrics.Path); err != nil {
				log.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	commandHandler := handlers.NewCommandHandler(cfg, bot, aiService, guides, storageManager, localizer, metrics, log)
	messageHandler := handlers.NewMessageHandler(cfg, bot, bot.Self, aiService, guides, storageManager, cacheService, rateLimiter, localizer, metrics, log)
	documentHandler := handlers.NewDocumentHandler(cfg, bot, bot.Self, aiService, storageManager, rateLimiter, localizer, metrics, log)

	var updates tgbotapi.UpdatesChannel

	if cfg.Bot.Webhook.Enabled {
		webhookURL := fmt.Sprintf("%s/%s", cfg.Bot.Webhook.URL, bot.Token)
		webhook, err := tgbotapi.NewWebhook(webhookURL)
		if err != nil {
			log.WithError(err).Fatal("Failed to create webhook")
		}

		if _, err := bot.Request(webhook); err != nil {
			log.WithError(err).Fatal("Failed to set webhook")
		}

		updates = bot.ListenForWebhook("/" + bot.Token)
		go func() {
			addr := fmt.Sprintf(":%d", cfg.Bot.Webhook.Port)
			if err := http.ListenAndServe(addr, nil); err != nil {
				log.WithError(err).Fatal("Webhook server failed")
			}
		}()
		log.WithField("url", webhookURL).Info("Webhook set")
	} else {
		u := tgbotapi.NewUpdate(0)
		u.Timeout = cfg.Bot.UpdateTimeout

		updates = bot.GetUpdatesChan(u)
		log.Info("Using long polling")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		for update := range updates {
			if update.Message == nil {
				continue
			}

			switch {
			case update.Message.IsCommand():
				if err := commandHandler.HandleCommand(ctx, update.Message); err != nil {
					log.WithError(err).Error("Failed to handle command")
				}
			case update.Message.Document != nil:
				if err := documentHandler.HandleDocument(ctx, &update); err != nil {
					log.WithError(err).Error("Failed to handle document")
				}
			default:
				if err := messageHandler.HandleMessage(ctx, &update); err != nil {
					log.WithError(err).Error("Failed to handle message")
				}
			}
		}
	}()

	go startPeriodicTasks(ctx, rateLimiter, metrics, log)

	<-sigChan
	log.Info("Shutdown signal received")

	if cfg.Bot.Webhook.Enabled {
		if _, err := bot.Request(tgbotapi.DeleteWebhookConfig{}); err != nil {
			log.WithError(err).Error("Failed to delete webhook")
		}
	} else {
		bot.StopReceivingUpdates()
	}

	cancel()

	// Give the in-flight handler goroutines time to finish.
	time.Sleep(2 * time.Second)

	if err := storageManager.Close(); err != nil {
		log.WithError(err).Error("Failed to close storage")
	}

	log.Info("Bot stopped")
}

// startPeriodicTasks keeps the activity gauge fresh
func startPeriodicTasks(ctx context.Context, limiter middleware.RateLimiter, metrics *middleware.Metrics, log *logrus.Logger) {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			metrics.SetActiveUsers(float64(limiter.Size()))
		}
	}
}
