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

	"github.com/joho/godotenv"

	"github.com/the-missionary-company/parley/internal/api"
	"github.com/the-missionary-company/parley/internal/config"
	"github.com/the-missionary-company/parley/internal/identity"
	"github.com/the-missionary-company/parley/internal/llm"
	"github.com/the-missionary-company/parley/internal/storage/sqlite"
	"github.com/the-missionary-company/parley/internal/transcribe"
	"github.com/the-missionary-company/parley/pkg/logger"
)

func main() {
	configPath := flag.String("config", "", "path to TOML config file")
	flag.Parse()

	// Secrets may live in a .env file next to the binary
	_ = godotenv.Load()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	log, err := logger.New(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	if err := run(cfg, log); err != nil {
		log.Error("Server exited with error", logger.Error(err))
		os.Exit(1)
	}
}

func run(cfg *config.Config, log *logger.Logger) error {
	db, err := sqlite.Open(cfg.Storage.SQLitePath)
	if err != nil {
		return fmt.Errorf("failed to open storage: %w", err)
	}
	defer db.Close()

	convoStorage := sqlite.NewConversationStorage(db, log)

	registry := buildRegistry(cfg, log)

	transcriber := transcribe.NewClient(
		cfg.Transcription.APIKey,
		cfg.Transcription.BaseURL,
		cfg.Transcription.Model,
		cfg.Transcription.Language,
		time.Duration(cfg.Transcription.TimeoutSeconds)*time.Second,
		log,
	)

	router := api.NewRouter(registry, transcriber, convoStorage, identity.Anonymous{}, cfg, log)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:        addr,
		Handler:     router.Routes(),
		ReadTimeout: cfg.Server.ReadTimeout(),
		// WriteTimeout stays zero so long-lived streams are not cut off
		WriteTimeout: cfg.Server.WriteTimeout(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("Server listening",
			logger.String("addr", addr),
			logger.Bool("anthropic_configured", cfg.AnthropicConfigured()),
			logger.Bool("openai_configured", cfg.OpenAIConfigured()),
			logger.Bool("deepgram_configured", cfg.DeepgramConfigured()))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errCh:
		return err
	case sig := <-stop:
		log.Info("Shutting down", logger.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down cleanly: %w", err)
	}

	return nil
}

// buildRegistry wires the provider adapters and the model selector table.
// The selector names are what clients send; unknown selectors resolve to the
// configured default.
func buildRegistry(cfg *config.Config, log *logger.Logger) *llm.Registry {
	registry := llm.NewRegistry(cfg.Chat.DefaultModel, log)

	registry.RegisterProvider(llm.NewAnthropicProvider(
		cfg.Providers.Anthropic.APIKey,
		cfg.Providers.Anthropic.BaseURL,
		time.Duration(cfg.Providers.Anthropic.TimeoutSeconds)*time.Second,
		log,
	))
	registry.RegisterProvider(llm.NewOpenAIProvider(
		cfg.Providers.OpenAI.APIKey,
		time.Duration(cfg.Providers.OpenAI.TimeoutSeconds)*time.Second,
		log,
	))

	registry.Bind("claude-sonnet", "anthropic", "claude-3-5-sonnet-latest")
	registry.Bind("claude-haiku", "anthropic", "claude-3-5-haiku-latest")
	registry.Bind("openai", "openai", "o3-mini-2025-01-31")

	return registry
}
