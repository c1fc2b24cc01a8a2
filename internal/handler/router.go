package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/smart-daily/dailychat/internal/config"
	"github.com/smart-daily/dailychat/internal/middleware"
	natsclient "github.com/smart-daily/dailychat/internal/nats"
	"github.com/smart-daily/dailychat/internal/service"
	"github.com/smart-daily/dailychat/internal/store"
	"github.com/smart-daily/dailychat/pkg/logger"
)

// Deps are the components the agent router serves.
type Deps struct {
	Accounts   []config.Account
	Tokens     *middleware.Tokens
	Store      *store.Store
	Reports    *service.ReportService
	Sessions   *service.SessionService
	Imports    *service.ImportService
	Summarizer service.Summarizer
	NATS       *natsclient.Client // nil when publishing is disabled
	ExportDir  string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	Logger *logger.Logger
}

// NewRouter builds the agent's HTTP routes.
func NewRouter(d Deps) http.Handler {
	log := logger.OrNop(d.Logger)

	deps := map[string]Pinger{"database": d.Store}
	if d.NATS != nil {
		deps["nats"] = d.NATS
	}
	healthHandler := NewHealthHandler(deps)
	authHandler := NewAuthHandler(d.Accounts, d.Tokens, log)
	sessionHandler := NewSessionHandler(d.Sessions, log)
	chatHandler := NewChatHandler(d.Reports, d.Sessions, d.Summarizer, d.ExportDir, log)
	importHandler := NewImportHandler(d.Imports, log)
	fileHandler := NewFileHandler(d.ExportDir)

	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.Logging(log))
	r.Use(middleware.SecurityHeaders)
	r.Use(chimiddleware.Recoverer)
	r.Use(middleware.CORS())

	// Health endpoints (no auth required)
	r.Get("/health", healthHandler.Health)
	r.Get("/ready", healthHandler.Ready)

	// Metrics endpoint
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/login", authHandler.Login)

		r.Group(func(r chi.Router) {
			r.Use(d.Tokens.Auth)
			if d.RateLimitRequests > 0 {
				r.Use(middleware.RateLimit(d.RateLimitRequests, d.RateLimitWindow))
			}

			r.Post("/chat", chatHandler.Confirm)
			r.Post("/chat/stream", chatHandler.Stream)

			r.Route("/sessions", func(r chi.Router) {
				r.Post("/", sessionHandler.Create)
				r.Get("/", sessionHandler.List)
				r.Delete("/{id}", sessionHandler.Delete)
				r.Get("/{id}/messages", sessionHandler.Messages)
			})

			r.Post("/import/preview", importHandler.Preview)
			r.Post("/import/confirm", importHandler.Confirm)

			r.Get("/files/{name}", fileHandler.Download)
		})
	})

	return r
}
