package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/xaenox/taskmate/internal/api"
	"github.com/xaenox/taskmate/internal/bot"
	"github.com/xaenox/taskmate/internal/chat"
	"github.com/xaenox/taskmate/internal/classifier"
	"github.com/xaenox/taskmate/internal/oracle"
	"github.com/xaenox/taskmate/internal/storage"
	"github.com/xaenox/taskmate/internal/tools"
	"github.com/xaenox/taskmate/pkg/config"
)

const configPath = "config.yaml"

func main() {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		panic(err)
	}

	logger, err := newLogger(cfg.Log)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	if err := cfg.Validate(); err != nil {
		logger.Fatal("Invalid configuration", zap.Error(err), zap.String("path", configPath))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize storage
	var store storage.Storage
	if cfg.Database.UseInMemory {
		logger.Info("Using in-memory storage")
		store = storage.NewMemoryStorage()
	} else {
		logger.Info("Using PostgreSQL storage")
		store, err = storage.OpenPostgres(ctx, cfg.Database.DSN(), logger)
		if err != nil {
			logger.Fatal("Failed to initialize storage", zap.Error(err))
		}
	}
	defer store.Close()

	if err := store.SeedToolDefinitions(ctx, tools.Definitions()); err != nil {
		logger.Fatal("Failed to seed tool catalog", zap.Error(err))
	}

	llm, err := oracle.NewClient(oracle.Config{
		APIKey:      cfg.OpenAI.APIKey,
		BaseURL:     cfg.OpenAI.BaseURL,
		Model:       cfg.OpenAI.Model,
		MaxTokens:   cfg.OpenAI.MaxTokens,
		Temperature: cfg.OpenAI.Temperature,
		Timeout:     cfg.OpenAI.Timeout,
	}, logger)
	if err != nil {
		logger.Fatal("Failed to create oracle client", zap.Error(err))
	}

	catalog := tools.NewCachedCatalog(store, cfg.Catalog.CacheTTL)
	executor := tools.NewExecutor(catalog, tools.NewTaskAPI(cfg.TaskAPI.BaseURL, cfg.TaskAPI.Timeout, nil), logger)
	clf := classifier.NewGPTClassifier(llm, cfg.Classifier.MinConfidence, logger)

	svc := chat.NewService(store, clf, executor, catalog,
		chat.NewResponder(llm, cfg.Chat.HistoryLimit, logger),
		chat.Options{
			HistoryLimit: cfg.Chat.HistoryLimit,
			DefaultTitle: cfg.Chat.DefaultTitle,
		},
		logger)

	botDone := make(chan struct{})
	if cfg.Telegram.Token != "" {
		b, err := bot.New(cfg.Telegram.Token, svc, logger)
		if err != nil {
			logger.Fatal("Failed to create bot", zap.Error(err))
		}
		go func() {
			defer close(botDone)
			if err := b.Start(ctx); err != nil {
				logger.Error("Bot error", zap.Error(err))
			}
		}()
	} else {
		close(botDone)
	}

	srv := &http.Server{
		Addr:         cfg.Server.Addr,
		Handler:      api.NewRouter(svc, logger),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("HTTP server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("HTTP server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Graceful shutdown failed", zap.Error(err))
	}

	// The store is closed by a deferred call; let the bot finish its turns first.
	<-botDone
}

func newLogger(cfg config.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}

	zcfg := zap.NewProductionConfig()
	if cfg.Development {
		zcfg = zap.NewDevelopmentConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(level)
	return zcfg.Build()
}
