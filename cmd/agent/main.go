// Package main is the entry point for the reference agent server.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/smart-daily/dailychat/internal/config"
	"github.com/smart-daily/dailychat/internal/handler"
	"github.com/smart-daily/dailychat/internal/llm"
	"github.com/smart-daily/dailychat/internal/middleware"
	natsclient "github.com/smart-daily/dailychat/internal/nats"
	"github.com/smart-daily/dailychat/internal/service"
	"github.com/smart-daily/dailychat/internal/store"
	"github.com/smart-daily/dailychat/pkg/logger"
	"github.com/smart-daily/dailychat/pkg/tracing"
)

// sweepInterval is how often expired import previews are removed.
const sweepInterval = 5 * time.Minute

func main() {
	// Load configuration
	cfg := config.LoadAgent()

	// Initialize logger
	var (
		log *logger.Logger
		err error
	)
	if cfg.Development() {
		log, err = logger.NewDevelopment()
	} else {
		log, err = logger.New(cfg.LogLevel)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	log.Info("starting agent server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Initialize tracing if enabled
	if cfg.TracingEnabled {
		tp, err := tracing.InitTracer(ctx, "dailychat-agent", cfg.TracingEndpoint)
		if err != nil {
			log.Warn("failed to initialize tracing", zap.Error(err))
		} else {
			defer tracing.Shutdown(context.Background(), tp)
		}
	}

	// Open storage
	st, err := store.Open(ctx, cfg.DatabasePath)
	if err != nil {
		log.Fatal("failed to open database", zap.String("path", cfg.DatabasePath), zap.Error(err))
	}
	defer st.Close()

	// Connect to NATS when configured
	var (
		natsClient *natsclient.Client
		publisher  service.Publisher
	)
	if cfg.NATSURL != "" {
		natsClient, err = natsclient.Connect(ctx, natsclient.Config{
			URL:      cfg.NATSURL,
			CAFile:   cfg.NATSCAFile,
			CertFile: cfg.NATSCertFile,
			KeyFile:  cfg.NATSKeyFile,
			Token:    cfg.NATSToken,
		}, log)
		if err != nil {
			log.Fatal("failed to connect to NATS", zap.Error(err))
		}
		defer natsClient.Close()

		streamManager := natsclient.NewStreamManager(natsClient)
		if err := streamManager.EnsureStream(ctx); err != nil {
			log.Fatal("failed to ensure stream", zap.Error(err))
		}
		publisher = streamManager
	} else {
		log.Info("NATS_URL not set, entry publishing disabled")
	}

	summarizer := newSummarizer(cfg, log)

	// Initialize services
	members := make([]service.Member, len(cfg.Users))
	for i, u := range cfg.Users {
		members[i] = service.Member{ID: u.ID, Name: u.Name}
	}
	reportSvc := service.NewReportService(st, publisher, log)
	sessionSvc := service.NewSessionService(st, log)
	importSvc := service.NewImportService(st, members, cfg.ImportTokenTTL, publisher, log)
	importSvc.StartSweeper(ctx, sweepInterval)

	router := handler.NewRouter(handler.Deps{
		Accounts:          cfg.Users,
		Tokens:            middleware.NewTokens(cfg.JWTSecret, cfg.JWTExpiration, cfg.JWTRenewWindow),
		Store:             st,
		Reports:           reportSvc,
		Sessions:          sessionSvc,
		Imports:           importSvc,
		Summarizer:        summarizer,
		NATS:              natsClient,
		ExportDir:         cfg.ExportDir,
		RateLimitRequests: cfg.RateLimitRequests,
		RateLimitWindow:   cfg.RateLimitWindow,
		Logger:            log,
	})

	// Create HTTP server
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  cfg.ServerReadTimeout,
		WriteTimeout: cfg.ServerWriteTimeout,
		IdleTimeout:  120 * time.Second,
	}

	// Start server in goroutine
	go func() {
		log.Info("server listening", zap.String("port", cfg.ServerPort), zap.Int("accounts", len(cfg.Users)))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	// Wait for shutdown signal
	<-ctx.Done()

	log.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error("server forced to shutdown", zap.Error(err))
	}

	log.Info("server stopped")
}

// newSummarizer picks the configured LLM provider, falling back to the
// other provider's key and finally to the rule based summarizer.
func newSummarizer(cfg *config.Agent, log *logger.Logger) service.Summarizer {
	keys := map[llm.Provider]string{
		llm.ProviderAnthropic: cfg.AnthropicAPIKey,
		llm.ProviderOpenAI:    cfg.OpenAIAPIKey,
	}

	order := []llm.Provider{llm.Provider(cfg.DefaultLLM), llm.ProviderAnthropic, llm.ProviderOpenAI}
	for _, p := range order {
		key := keys[p]
		if key == "" {
			continue
		}
		client, err := llm.NewClient(p, key)
		if err != nil {
			log.Warn("failed to create LLM client", zap.String("provider", string(p)), zap.Error(err))
			continue
		}
		log.Info("using LLM summarizer", zap.String("provider", client.Name()))
		return service.NewLLMSummarizer(client, cfg.Model, log)
	}

	log.Warn("no LLM API key configured, using rule based summaries")
	return service.RuleSummarizer{}
}
