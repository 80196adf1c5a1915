package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	// Port to listen on.
	Port int

	// Host to bind to. Empty means all interfaces.
	Host string

	// ReadTimeout for incoming requests. Covers the request body, so it
	// must be generous enough for image uploads.
	ReadTimeout time.Duration

	// WriteTimeout bounds the whole request, inference included.
	WriteTimeout time.Duration

	// IdleTimeout for keep-alive connections.
	IdleTimeout time.Duration

	// ShutdownTimeout is the grace period for in-flight requests.
	ShutdownTimeout time.Duration

	// LogSkipPaths are not logged by the request middleware.
	LogSkipPaths []string
}

// DefaultServerConfig returns a default server configuration. The write
// timeout is long because a single refinement can take minutes on a
// loaded device.
func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Port:            5000,
		Host:            "localhost",
		ReadTimeout:     60 * time.Second,
		WriteTimeout:    10 * time.Minute,
		IdleTimeout:     120 * time.Second,
		ShutdownTimeout: 30 * time.Second,
		LogSkipPaths:    []string{"/health", "/api/status"},
	}
}

// Server is the HTTP front of the refinement service.
type Server struct {
	config     ServerConfig
	logger     *zap.Logger
	httpServer *http.Server
	mux        *http.ServeMux
	api        *API
	middleware *LoggingMiddleware
}

// NewServer creates the HTTP server around the given API.
func NewServer(config ServerConfig, api *API, logger *zap.Logger) *Server {
	mux := http.NewServeMux()

	s := &Server{
		config:     config,
		logger:     logger,
		mux:        mux,
		api:        api,
		middleware: NewLoggingMiddleware(logger, config.LogSkipPaths),
	}

	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", config.Host, config.Port),
		Handler:      s.middleware.Wrap(mux),
		ReadTimeout:  config.ReadTimeout,
		WriteTimeout: config.WriteTimeout,
		IdleTimeout:  config.IdleTimeout,
	}

	return s
}

func (s *Server) setupRoutes() {
	s.api.RegisterRoutes(s.mux)
	s.mux.HandleFunc("/health", s.handleHealth)
}

// handleHealth is the liveness probe. It answers even while the model
// host is busy, so load balancers never drop a node mid-inference.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte(`{"status":"ok"}`))
}

// Handler returns the root handler with middleware applied. Used by tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Start begins serving. It blocks until the server stops and returns
// nil on a clean shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", zap.String("addr", s.httpServer.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server: %w", err)
	}
	return nil
}

// Shutdown stops the server gracefully, waiting up to ShutdownTimeout
// for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server stopping")

	shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("http server shutdown: %w", err)
	}
	return nil
}
