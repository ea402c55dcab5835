// Package api provides the HTTP API server for CheckPulse.
// It uses Echo framework to serve REST endpoints and the WebSocket
// endpoints agents and status subscribers connect to.
package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"golang.org/x/time/rate"

	"github.com/culture-union/checkpulse/internal/config"
	"github.com/culture-union/checkpulse/internal/dispatch"
	"github.com/culture-union/checkpulse/internal/mailer"
	"github.com/culture-union/checkpulse/internal/registry"
	"github.com/culture-union/checkpulse/internal/status"
	"github.com/culture-union/checkpulse/internal/storage"
)

// Server represents the CheckPulse API server.
type Server struct {
	echo       *echo.Echo
	store      *storage.Storage
	queue      *storage.Queue
	config     *config.Config
	registry   *registry.Registry
	dispatcher *dispatch.Dispatcher
	aggregator *status.Aggregator
	mailer     *mailer.Mailer
	hub        *Hub

	broadcastStop chan struct{}
}

// New creates a new API server instance.
func New(cfg *config.Config, store *storage.Storage, queue *storage.Queue, reg *registry.Registry, disp *dispatch.Dispatcher) *Server {
	e := echo.New()

	e.HideBanner = true
	e.HidePort = true
	e.Debug = cfg.Server.Debug

	e.HTTPErrorHandler = HTTPErrorHandler
	e.Validator = NewValidator()

	hub := NewHub()

	server := &Server{
		echo:          e,
		store:         store,
		queue:         queue,
		config:        cfg,
		registry:      reg,
		dispatcher:    disp,
		aggregator:    status.New(store),
		mailer:        mailer.New(cfg.SMTP),
		hub:           hub,
		broadcastStop: make(chan struct{}),
	}

	// Start WebSocket hub in background
	go hub.Run()
	go server.broadcastLoop()

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures Echo middleware.
func (s *Server) setupMiddleware() {
	// Logger middleware
	s.echo.Use(middleware.LoggerWithConfig(middleware.LoggerConfig{
		Format: "[${time_rfc3339}] ${status} ${method} ${uri} (${latency_human})\n",
	}))

	// Recover middleware
	s.echo.Use(middleware.Recover())

	// Security headers middleware
	s.echo.Use(SecurityHeaders)

	// CORS middleware
	if len(s.config.Security.AllowedOrigins) > 0 {
		s.echo.Use(middleware.CORSWithConfig(middleware.CORSConfig{
			AllowOrigins: s.config.Security.AllowedOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept, echo.HeaderAuthorization},
		}))
	}

	// Request ID middleware
	s.echo.Use(middleware.RequestID())

	// Rate limiting
	if s.config.Security.RateLimit > 0 {
		s.echo.Use(middleware.RateLimiter(middleware.NewRateLimiterMemoryStore(
			rate.Limit(s.config.Security.RateLimit),
		)))
	}

	// Content-Type validation middleware for API routes
	s.echo.Use(ValidateContentType)
}

// setupRoutes configures API routes.
func (s *Server) setupRoutes() {
	// Health check
	s.echo.GET("/health", s.healthCheck)
	s.echo.GET("/", s.healthCheck)

	api := s.echo.Group("/api")

	// Check routes
	checks := api.Group("/checks")
	checks.POST("", s.createCheck)
	checks.GET("/:id", s.getCheck)

	// Agent administration routes
	admin := RequireAdminToken(s.config.Security.AdminToken)
	agents := api.Group("/agents")
	agents.POST("", s.createAgent, admin)
	agents.GET("", s.listAgents, admin)
	agents.GET("/online", s.onlineAgents, admin)
	agents.DELETE("/:id", s.deleteAgent, admin)

	// WebSocket routes
	s.echo.GET("/ws/agent", s.handleAgentSocket)
	s.echo.GET("/ws/status", s.handleStatusSocket)
}

// broadcastLoop pushes the online agent count to status subscribers at
// the configured interval.
func (s *Server) broadcastLoop() {
	interval := s.config.Broadcast.Interval
	if interval <= 0 {
		interval = time.Second
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if s.hub.ClientCount() == 0 {
				continue
			}
			if err := s.hub.BroadcastOnline(s.registry.Count()); err != nil {
				s.echo.Logger.Errorf("broadcast online count: %v", err)
			}
		case <-s.broadcastStop:
			return
		}
	}
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Server.Host, s.config.Server.Port)

	fmt.Printf("Starting CheckPulse API Server\n")
	fmt.Printf("   Address: http://%s\n", addr)
	fmt.Printf("   Database: %s\n", s.store.Path())
	fmt.Printf("   Debug: %v\n", s.config.Server.Debug)
	fmt.Println()

	// Configure server timeouts
	s.echo.Server.ReadTimeout = s.config.Server.ReadTimeout
	s.echo.Server.WriteTimeout = s.config.Server.WriteTimeout

	return s.echo.Start(addr)
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	fmt.Println("\nShutting down CheckPulse API Server...")

	close(s.broadcastStop)

	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("error shutting down server: %w", err)
	}

	fmt.Println("Server shutdown complete")
	return nil
}

// healthCheck handles health check requests.
func (s *Server) healthCheck(c echo.Context) error {
	depth, err := s.queue.Len()
	if err != nil {
		return c.JSON(http.StatusServiceUnavailable, map[string]interface{}{
			"status":  "unhealthy",
			"error":   "database unavailable",
			"details": err.Error(),
		})
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"status":        "healthy",
		"service":       "checkpulse",
		"queue_depth":   depth,
		"agents_online": s.registry.Count(),
	})
}

// ServeHTTP allows Server to implement http.Handler for testing
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.echo.ServeHTTP(w, r)
}
