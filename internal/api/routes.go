package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/maumercado/ptc/internal/api/handlers"
	apiMiddleware "github.com/maumercado/ptc/internal/api/middleware"
	"github.com/maumercado/ptc/internal/api/websocket"
	"github.com/maumercado/ptc/internal/config"
	"github.com/maumercado/ptc/internal/events"
	"github.com/maumercado/ptc/internal/ptc/coordinator"
	"github.com/maumercado/ptc/internal/ptc/store"
)

// Server represents the HTTP server
type Server struct {
	router         *chi.Mux
	coord          *coordinator.Coordinator
	store          *store.Store
	config         *config.Config
	messageHandler *handlers.MessageHandler
	adminHandler   *handlers.AdminHandler
	wsHub          *websocket.Hub
	wsHandler      *websocket.Handler
	publisher      *events.RedisPubSub
}

// NewServer creates a new HTTP server
func NewServer(cfg *config.Config, coord *coordinator.Coordinator, s *store.Store, publisher *events.RedisPubSub) *Server {
	wsHub := websocket.NewHub(publisher)

	srv := &Server{
		router:         chi.NewRouter(),
		coord:          coord,
		store:          s,
		config:         cfg,
		messageHandler: handlers.NewMessageHandler(coord, s),
		adminHandler:   handlers.NewAdminHandler(coord, s),
		wsHub:          wsHub,
		wsHandler:      websocket.NewHandler(wsHub),
		publisher:      publisher,
	}

	srv.setupMiddleware()
	srv.setupRoutes()

	return srv
}

func (s *Server) setupMiddleware() {
	// Request ID
	s.router.Use(middleware.RequestID)

	// Real IP
	s.router.Use(middleware.RealIP)

	// Logging
	s.router.Use(apiMiddleware.RequestLogger())

	// Recoverer
	s.router.Use(middleware.Recoverer)

	// Heartbeat endpoint for load balancers
	s.router.Use(middleware.Heartbeat("/health"))
}

func (s *Server) setupRoutes() {
	// API v1 routes
	s.router.Route("/api/v1", func(r chi.Router) {
		// Content type for API routes
		r.Use(middleware.AllowContentType("application/json"))

		// Rate limiting for API routes
		if s.config.Queue.RateLimitRPS > 0 {
			r.Use(apiMiddleware.ClientRateLimit(s.config.Queue.RateLimitRPS))
		}

		// Message routes
		r.Route("/messages", func(r chi.Router) {
			r.Post("/", s.messageHandler.Create)
			r.Get("/{messageID}", s.messageHandler.Get)
			r.Post("/{messageID}/ack", s.messageHandler.Acknowledge)
			r.Get("/", s.messageHandler.List)
		})
	})

	// Admin routes
	s.router.Route("/admin", func(r chi.Router) {
		r.Use(middleware.AllowContentType("application/json"))
		r.Use(apiMiddleware.Auth(s.authConfig()))

		r.Get("/health", s.adminHandler.HealthCheck)
		r.Get("/status", s.adminHandler.GetStatus)
		r.Get("/stats", s.adminHandler.GetStats)

		// Worker management
		r.Get("/workers", s.adminHandler.ListWorkers)
		r.Get("/workers/{workerID}", s.adminHandler.GetWorker)

		// Dead letter management
		r.Get("/dead-letters", s.adminHandler.ListDeadLetters)
		r.Post("/dead-letters/{id}/retry", s.adminHandler.RetryDeadLetter)
		r.Post("/dead-letters/{id}/resolve", s.adminHandler.ResolveDeadLetter)
	})

	// WebSocket endpoint
	s.router.Get("/ws", s.wsHandler.ServeWS)

	// Metrics endpoint
	if s.config.Metrics.Enabled {
		s.router.Handle(s.config.Metrics.Path, promhttp.Handler())
	}
}

// Start starts the WebSocket hub
func (s *Server) Start(ctx context.Context) {
	go s.wsHub.Run(ctx)
}

// Stop stops the WebSocket hub
func (s *Server) Stop() {
	s.wsHub.Stop()
}

// Router returns the chi router
func (s *Server) Router() *chi.Mux {
	return s.router
}

// ServeHTTP implements the http.Handler interface
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// Publisher returns the event publisher
func (s *Server) Publisher() *events.RedisPubSub {
	return s.publisher
}

// authConfig adapts the viper-loaded config.AuthConfig to the shape
// apiMiddleware.Auth expects. Auth itself no-ops when disabled, so this
// is always safe to install.
func (s *Server) authConfig() *apiMiddleware.AuthConfig {
	keys := make(map[string]bool, len(s.config.Auth.APIKeys))
	for _, k := range s.config.Auth.APIKeys {
		keys[k] = true
	}
	return &apiMiddleware.AuthConfig{
		Enabled:   s.config.Auth.Enabled,
		JWTSecret: s.config.Auth.JWTSecret,
		APIKeys:   keys,
	}
}
