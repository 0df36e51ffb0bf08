package http

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/m-mizutani/reposync/pkg/domain/interfaces"
)

// StatusProvider reports the state of the background sync runner
type StatusProvider interface {
	Status() (syncing bool, lastRunAt *time.Time, lastError string)
}

// config holds internal HTTP server configuration
type config struct {
	addr          string
	webhookSecret string
	ledger        interfaces.Ledger
	status        StatusProvider
}

// Option is a functional option for Server configuration
type Option func(*config)

// WithAddr sets the server address
func WithAddr(addr string) Option {
	return func(c *config) {
		c.addr = addr
	}
}

// WithWebhookSecret sets the webhook secret
func WithWebhookSecret(secret string) Option {
	return func(c *config) {
		c.webhookSecret = secret
	}
}

// WithLedger exposes ledger entries on /api/ledger
func WithLedger(ledger interfaces.Ledger) Option {
	return func(c *config) {
		c.ledger = ledger
	}
}

// WithStatus adds sync runner state to /health
func WithStatus(status StatusProvider) Option {
	return func(c *config) {
		c.status = status
	}
}

// Server represents the HTTP server
type Server struct {
	*http.Server
}

// NewServer creates a new HTTP server
func NewServer(
	ctx context.Context,
	webhookUC interfaces.WebhookUseCase,
	opts ...Option,
) (*Server, error) {
	// Default configuration
	cfg := &config{
		addr: "localhost:8080",
	}

	// Apply options
	for _, opt := range opts {
		opt(cfg)
	}

	router := chi.NewRouter()

	// Global middleware
	router.Use(middleware.RequestID)
	router.Use(middleware.RealIP)
	router.Use(LoggingMiddleware(ctx))
	router.Use(middleware.Recoverer)

	router.Get("/health", healthHandler(cfg.status))

	if cfg.ledger != nil {
		router.Get("/api/ledger", ledgerHandler(cfg.ledger))
	}

	webhookHandler := NewWebhookHandler(cfg.webhookSecret, webhookUC)
	router.Post("/hooks/github", webhookHandler.Handle)

	server := &Server{
		Server: &http.Server{
			Addr:              cfg.addr,
			Handler:           router,
			ReadHeaderTimeout: 15 * time.Second,
		},
	}

	return server, nil
}
