package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"quackscribe/internal/acquire"
	"quackscribe/internal/config"
	"quackscribe/internal/gate"
	"quackscribe/internal/groq"
	"quackscribe/internal/orchestrator"
	"quackscribe/internal/queue"
	"quackscribe/internal/server"
	"quackscribe/internal/storage"
	"quackscribe/internal/telegram"
	"quackscribe/internal/transcache"
	"quackscribe/pkg/cache"
	"quackscribe/pkg/logger"

	"github.com/joho/godotenv"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/zap"
	tele "gopkg.in/telebot.v4"
)

func main() {
	// Load .env file first
	_ = godotenv.Load()

	// Initialize the logger first
	debug := true
	if err := logger.Init(debug); err != nil {
		panic("Failed to init logger: " + err.Error())
	}
	defer logger.Sync()

	logger.Info("Starting quackscribe bot service")

	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Fatal("Failed to load config", zap.Error(err))
		return
	}

	// Initialize Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
		return
	}
	defer redisCache.Close()

	logger.Info("Redis cache connection established")

	transcripts := transcache.New(redisCache, cfg.Limits.CacheTTL)

	// Initialize Telegram bot. The webhook server owns the HTTP side, so no
	// poller is attached; the bot instance only issues API calls.
	bot, err := tele.NewBot(tele.Settings{Token: cfg.Telegram.Token})
	if err != nil {
		logger.Fatal("Failed to create Telegram bot", zap.Error(err))
		return
	}

	logger.Info("Telegram bot initialized", zap.String("username", bot.Me.Username))

	groqClient := groq.NewClient(cfg.GroqKeys(), cfg.Groq.BaseURL)
	limits := gate.New(cfg.Limits.MaxFileSizeMB, cfg.Limits.MaxDurationMinutes)
	fetcher := acquire.NewFetcher(bot, limits, cfg.FFmpegPath)
	messenger := telegram.NewClient(bot)

	processor := orchestrator.NewProcessor(limits, transcripts, groqClient, fetcher, messenger)

	// Optional S3 audio archive
	if cfg.ArchiveEnabled() {
		s3Storage, err := storage.NewS3Storage(
			cfg.S3.Endpoint,
			cfg.S3.AccessKey,
			cfg.S3.SecretKey,
			cfg.S3.Bucket,
		)
		if err != nil {
			logger.Fatal("Failed to initialize S3 storage", zap.Error(err))
			return
		}
		processor.WithArchiver(s3Storage)
		logger.Info("S3 audio archive enabled")
	}

	// Optional usage stats pipeline
	var db *storage.PostgresStorage
	if cfg.RabbitMQ.URL != "" {
		rabbitMQ, err := queue.NewRabbitMQ(cfg.RabbitMQ.URL)
		if err != nil {
			logger.Fatal("Failed to connect to RabbitMQ", zap.Error(err))
			return
		}
		defer rabbitMQ.Close()
		processor.WithUsagePublisher(rabbitMQ)
	}
	if cfg.Postgres.DSN != "" {
		db, err = storage.NewPostgresStorage(cfg.Postgres.DSN)
		if err != nil {
			logger.Fatal("Failed to connect to database", zap.Error(err))
			return
		}
		defer db.Close()
		logger.Info("Database connection established")
	}

	// server.StatsReader is an interface; a typed nil pointer would not
	// compare equal to nil inside the handler.
	var stats server.StatsReader
	if db != nil {
		stats = db
	}

	handler := server.NewHandler(processor, messenger, stats, bot.Me.Username)

	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Recover())
	handler.Register(e)

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		logger.Info("Starting webhook server", zap.String("addr", cfg.Server.Addr))
		if err := e.Start(cfg.Server.Addr); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Webhook server failed", zap.Error(err))
		}
	}()

	sig := <-sigChan
	logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(ctx); err != nil {
		logger.Error("Failed to shut down webhook server", zap.Error(err))
	}

	logger.Info("Bot service shutdown complete")
}
