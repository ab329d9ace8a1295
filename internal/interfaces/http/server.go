// Package http provides HTTP server adapter for the application layer.
// This is a thin adapter layer that translates HTTP requests to application service calls.
package http

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/hr-requests/internal/application/permission"
	"github.com/garyjia/hr-requests/internal/application/request"
	"github.com/garyjia/hr-requests/internal/application/service"
	"github.com/garyjia/hr-requests/internal/application/workflow"
	"github.com/garyjia/hr-requests/internal/domain/entity"
	"github.com/garyjia/hr-requests/internal/domain/event"
)

// Logger interface for logging operations
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	// Location interprets date-only query filters. UTC when nil.
	Location *time.Location
}

// DefaultServerConfig returns default server configuration
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Host:         "0.0.0.0",
		Port:         8080,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		Location:     time.UTC,
	}
}

// Services groups the application services the API exposes
type Services struct {
	Requests    request.Engine
	Workflows   workflow.Store
	Permissions permission.Resolver
	Inbox       service.InboxService

	// Health reports dependency health; nil means always healthy
	Health func(ctx context.Context) error
}

// Server is the HTTP server adapter
type Server struct {
	config     ServerConfig
	httpServer *http.Server
	router     *gin.Engine
	services   Services
	logger     Logger
}

// NewServer creates a new HTTP server with the given services
func NewServer(config ServerConfig, services Services, logger Logger) *Server {
	gin.SetMode(gin.ReleaseMode)

	if config.Location == nil {
		config.Location = time.UTC
	}

	server := &Server{
		config:   config,
		router:   gin.New(),
		services: services,
		logger:   logger,
	}

	server.setupMiddleware()
	server.setupRoutes()

	return server
}

// setupMiddleware configures middleware for the router
func (s *Server) setupMiddleware() {
	s.router.Use(gin.Recovery())
	s.router.Use(correlationMiddleware())
	s.router.Use(s.loggingMiddleware())
}

// loggingMiddleware creates a logging middleware
func (s *Server) loggingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		method := c.Request.Method

		c.Next()

		s.logger.Info("HTTP request",
			"method", method,
			"path", path,
			"status", c.Writer.Status(),
			"latency", time.Since(start).String(),
			"client_ip", c.ClientIP(),
			"user_id", c.GetHeader(HeaderUserID),
			"request_id", event.CorrelationIDFromContext(c.Request.Context()),
		)
	}
}

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() {
	h := NewHandlers(s.services, s.config.Location, s.logger)

	s.router.GET("/health", h.HealthCheck)

	api := s.router.Group("/api", authMiddleware())
	{
		requests := api.Group("/requests")
		requests.POST("", h.CreateRequest)
		requests.GET("", h.ListRequests)
		requests.GET("/export", h.ExportRequests)
		requests.GET("/:id", h.GetRequest)
		requests.POST("/:id/status", h.AdvanceStatus)
		requests.POST("/:id/cancellation", h.RequestCancellation)
		requests.POST("/:id/cancellation/resolve", h.ResolveCancellation)

		workflows := api.Group("/workflows")
		workflows.GET("", h.requirePermission(s.services.Permissions, entity.PermWorkflowsRead), h.ListWorkflows)
		workflows.GET("/:id", h.requirePermission(s.services.Permissions, entity.PermWorkflowsRead), h.GetWorkflow)
		workflows.PUT("/:id/steps", requireAdmin(), h.ReplaceWorkflowSteps)

		steps := api.Group("/steps")
		steps.GET("", h.requirePermission(s.services.Permissions, entity.PermStepsRead), h.ListSteps)
		steps.POST("", requireAdmin(), h.CreateStep)
		steps.PUT("/:id", requireAdmin(), h.UpdateStep)
		steps.DELETE("/:id", requireAdmin(), h.DeleteStep)

		api.GET("/users/:id/permissions", requireAdmin(), h.ListUserPermissions)
		api.PUT("/users/:id/permissions", requireAdmin(), h.SetUserPermissions)

		notifications := api.Group("/notifications")
		notifications.GET("", h.ListNotifications)
		notifications.POST("/read-all", h.MarkAllNotificationsRead)
		notifications.POST("/:id/read", h.MarkNotificationRead)
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled or the listener fails
func (s *Server) Start(ctx context.Context) error {
	addr := s.Address()

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}

	s.logger.Info("Starting HTTP server", "address", addr)

	errCh := make(chan error, 1)
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("HTTP server shutdown requested")
		return s.Stop()
	case err := <-errCh:
		s.logger.Error("HTTP server error", "error", err)
		return err
	}
}

// Stop gracefully stops the HTTP server
func (s *Server) Stop() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.Info("Stopping HTTP server")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
		return err
	}

	s.logger.Info("HTTP server stopped")
	return nil
}

// Router returns the underlying gin router (for testing)
func (s *Server) Router() *gin.Engine {
	return s.router
}

// Address returns the server address
func (s *Server) Address() string {
	return fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
}
