// Package api provides HTTP API server components.
//
//	@title			Vitrine API
//	@version		1.0
//	@description	Grounded conversational product retrieval.
//	@BasePath		/
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	httpSwagger "github.com/swaggo/http-swagger"

	"github.com/vitrine/vitrine/config"
	"github.com/vitrine/vitrine/pkg/api/handlers"
	"github.com/vitrine/vitrine/pkg/api/middleware"
	"github.com/vitrine/vitrine/pkg/logger"

	_ "github.com/vitrine/vitrine/docs/swagger" // Import generated docs
)

// Handlers holds all HTTP handlers.
type Handlers struct {
	// Turns runs conversation turns
	Turns *handlers.TurnHandler

	// Sessions exposes read-only session state
	Sessions *handlers.SessionHandler

	// WebSocket serves the chat socket; nil when disabled
	WebSocket *handlers.WebSocketHandler

	// Health handles health check endpoints
	Health *handlers.HealthHandler

	// Metrics is the optional metrics recorder
	Metrics middleware.MetricsRecorder
}

// NewRouter creates a new chi router with middleware and routes.
func NewRouter(cfg *config.Config, log logger.Logger, handlers *Handlers) chi.Router {
	r := chi.NewRouter()

	// Tracing wraps the logger so request logs carry trace ids.
	r.Use(middleware.RequestID())
	r.Use(middleware.Tracing(middleware.DefaultTracingOptions()))
	r.Use(middleware.Logger(log))
	r.Use(middleware.Recovery(log))

	if handlers.Metrics != nil {
		r.Use(middleware.Metrics(handlers.Metrics))
	}

	r.Use(middleware.CORS(&cfg.Server.CORS))
	r.Use(middleware.RateLimit(cfg.Server.RateLimit))

	RegisterRoutes(r, handlers, cfg.Server.HTTP.RequestTimeout)

	return r
}

// RegisterRoutes registers all API routes. Every route except the
// websocket is bounded by requestTimeout.
func RegisterRoutes(r chi.Router, handlers *Handlers, requestTimeout time.Duration) {
	r.Route("/api/v1/sessions", func(r chi.Router) {
		r.Group(func(r chi.Router) {
			r.Use(middleware.Timeout(requestTimeout))

			if handlers.Sessions != nil {
				r.Get("/", handlers.Sessions.ListSessions)
				r.Get("/{sessionID}", handlers.Sessions.GetSession)
			}
			if handlers.Turns != nil {
				r.Post("/{sessionID}/turns", handlers.Turns.CreateTurn)
			}
		})

		if handlers.WebSocket != nil {
			r.Get("/{sessionID}/ws", handlers.WebSocket.ServeHTTP)
		}
	})

	// Health check routes (not versioned)
	if handlers.Health != nil {
		r.Get("/health", handlers.Health.Health)
		r.Get("/ready", handlers.Health.Ready)
		r.Get("/status", handlers.Health.Status)
	}

	// Swagger documentation
	r.Get("/swagger/*", httpSwagger.WrapHandler)
}
