// Package http provides the HTTP server and handlers.
package http //nolint:revive // package name conflicts with stdlib but is acceptable in this context

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/jobrunner/scenekit/internal/config"
	"github.com/jobrunner/scenekit/internal/domain"
	"github.com/jobrunner/scenekit/internal/ports/input"
)

// Options holds optional server collaborators.
type Options struct {
	Metrics     http.Handler                    // Served at MetricsPath when set
	MetricsPath string                          // Defaults to /metrics
	Middleware  func(http.Handler) http.Handler // Request instrumentation
	Downloads   domain.DownloadRequest          // Folder, grid and format for API downloads
}

// Server wraps the HTTP server with application handlers.
type Server struct {
	server  *http.Server
	router  *mux.Router
	scenes  input.SceneService
	health  input.HealthChecker
	logger  *slog.Logger
	config  config.ServerConfig
	options Options
}

// NewServer creates a new HTTP server.
func NewServer(
	cfg config.ServerConfig,
	scenes input.SceneService,
	health input.HealthChecker,
	logger *slog.Logger,
	opts Options,
) *Server {
	if opts.MetricsPath == "" {
		opts.MetricsPath = "/metrics"
	}

	s := &Server{
		scenes:  scenes,
		health:  health,
		logger:  logger,
		config:  cfg,
		options: opts,
	}

	s.router = s.setupRoutes()

	s.server = &http.Server{
		Addr:              cfg.Address(),
		Handler:           s.router,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      cfg.WriteTimeout,
	}

	return s
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() *mux.Router {
	r := mux.NewRouter()

	// Add middleware
	r.Use(s.loggingMiddleware)
	r.Use(s.recoveryMiddleware)
	if s.options.Middleware != nil {
		r.Use(s.options.Middleware)
	}

	if s.config.CORS.Enabled() {
		r.Use(s.corsMiddleware(newAllowedOrigins(s.config.CORS.AllowedOrigins)))
	}

	// Health endpoints
	r.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/health/live", s.handleLiveness).Methods(http.MethodGet)
	r.HandleFunc("/health/ready", s.handleReadiness).Methods(http.MethodGet)

	// API v1
	api := r.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/sensors", s.handleListSensors).Methods(http.MethodGet)
	api.HandleFunc("/sensors/{sensor}", s.handleGetSensor).Methods(http.MethodGet)
	api.HandleFunc("/collections", s.handleCollection).Methods(http.MethodPost, http.MethodOptions)
	api.HandleFunc("/downloads", s.handleDownload).Methods(http.MethodPost, http.MethodOptions)

	if s.options.Metrics != nil {
		r.Handle(s.options.MetricsPath, s.options.Metrics).Methods(http.MethodGet)
	}

	return r
}

// Router returns the mux router.
func (s *Server) Router() *mux.Router {
	return s.router
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.logger.Info("starting HTTP server", "address", s.config.Address())
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down HTTP server")
	return s.server.Shutdown(ctx)
}

// loggingMiddleware logs incoming requests.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		// Wrap response writer to capture status code
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		s.logger.Info("request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", wrapped.statusCode,
			"duration", time.Since(start),
			"remote_addr", r.RemoteAddr,
		)
	})
}

// recoveryMiddleware recovers from panics.
func (s *Server) recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.logger.Error("panic recovered", "error", err, "path", r.URL.Path)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriter wraps http.ResponseWriter to capture status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}
