package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/afero"
	"github.com/xaenox/memo-notes/internal/bot"
	"github.com/xaenox/memo-notes/internal/export"
	"github.com/xaenox/memo-notes/internal/storage"
	"github.com/xaenox/memo-notes/internal/summarizer"
	"github.com/xaenox/memo-notes/pkg/config"
	"go.uber.org/zap"
)

const configPath = "config.yaml"

// newBot is replaced in tests to avoid contacting Telegram.
var newBot = bot.New

func main() {
	// Load configuration
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config %s: %v\n", configPath, err)
		os.Exit(1)
	}

	// Initialize logger
	logger, _ := zap.NewProduction()
	if cfg.Log.Level == "debug" {
		logger, _ = zap.NewDevelopment()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err = run(ctx, cfg, logger)
	stop()
	if err != nil {
		logger.Fatal("Bot error", zap.Error(err), zap.String("path", configPath))
	}
	logger.Info("Bot stopped")
	_ = logger.Sync()
}

// run wires every component and blocks until ctx ends. The store is closed
// on every return path.
func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	// Initialize storage
	records, err := openRecords(cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize %s storage: %w", cfg.Storage.Driver, err)
	}
	store := storage.NewEngine(records, logger)
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error("Failed to close storage", zap.Error(err))
		}
	}()

	sum, err := summarizer.New(summarizer.Config{
		Provider:      cfg.Summarizer.Provider,
		Timeout:       cfg.Summarizer.Timeout,
		MaxInputChars: cfg.Summarizer.MaxInputChars,
		OpenAI: summarizer.OpenAIConfig{
			APIKey:      cfg.OpenAI.APIKey,
			Model:       cfg.OpenAI.Model,
			MaxTokens:   cfg.OpenAI.MaxTokens,
			Temperature: cfg.OpenAI.Temperature,
			BaseURL:     cfg.OpenAI.BaseURL,
		},
		Anthropic: summarizer.AnthropicConfig{
			APIKey:    cfg.Anthropic.APIKey,
			Model:     cfg.Anthropic.Model,
			MaxTokens: cfg.Anthropic.MaxTokens,
			BaseURL:   cfg.Anthropic.BaseURL,
		},
	}, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize summarizer: %w", err)
	}

	// Initialize bot
	b, err := newBot(cfg.Telegram.Token, store, sum, export.New(afero.NewOsFs(), logger), bot.Options{
		ExportDir:    cfg.Export.Dir,
		AllowedUsers: cfg.Telegram.AllowedUsers,
	}, logger)
	if err != nil {
		return err
	}

	// Start the bot
	return b.Start(ctx)
}

func openRecords(cfg *config.Config, logger *zap.Logger) (storage.RecordStore, error) {
	switch cfg.Storage.Driver {
	case "memory":
		logger.Info("Using in-memory storage")
		return storage.NewMemoryStore(), nil
	case "sqlite":
		logger.Info("Using SQLite storage", zap.String("path", cfg.Storage.Path))
		return storage.OpenSQLite(cfg.Storage.Path)
	case "postgres":
		logger.Info("Using PostgreSQL storage", zap.String("host", cfg.Database.Host))
		return storage.OpenPostgres(storage.DatabaseConfig{
			Host:     cfg.Database.Host,
			Port:     cfg.Database.Port,
			User:     cfg.Database.User,
			Password: cfg.Database.Password,
			DBName:   cfg.Database.DBName,
			SSLMode:  cfg.Database.SSLMode,
		})
	default:
		logger.Info("Using file storage", zap.String("path", cfg.Storage.Path))
		return storage.OpenFileStore(cfg.Storage.Path, logger)
	}
}
