// Package server provides the HTTP server that exposes the audit API and
// captures the traffic passing through it.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httputil"
	"net/url"
	"sync"

	"github.com/gorilla/mux"
	"github.com/rs/cors"

	"mercator-hq/apilog/pkg/api"
	"mercator-hq/apilog/pkg/audit/capture"
	"mercator-hq/apilog/pkg/config"
	"mercator-hq/apilog/pkg/server/middleware"
	"mercator-hq/apilog/pkg/telemetry/health"
	"mercator-hq/apilog/pkg/telemetry/metrics"
)

// Dependencies are the components served by the server.
type Dependencies struct {
	// API serves /logs.
	API *api.Handler

	// Interceptor captures every non-excluded request. Nil disables capture.
	Interceptor *capture.Interceptor

	// Health serves the probe endpoints. Nil disables them.
	Health *health.Checker

	// Metrics serves the Prometheus endpoint when metrics are enabled.
	Metrics *metrics.Collector

	// App handles every request the audit API does not. Usually the upstream
	// proxy; nil answers 404 (still captured).
	App http.Handler

	Version   string
	Commit    string
	BuildTime string
}

// Server is the apilog HTTP server.
type Server struct {
	config       *config.ServerConfig
	telemetry    *config.TelemetryConfig
	deps         Dependencies
	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	logger       *slog.Logger
}

// NewServer creates a server.
func NewServer(cfg *config.Config, deps Dependencies) *Server {
	return &Server{
		config:    &cfg.Server,
		telemetry: &cfg.Telemetry,
		deps:      deps,
		logger:    slog.Default().With("component", "server"),
	}
}

// Start starts the HTTP server and blocks until ctx is cancelled or the
// server fails.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.httpServer = &http.Server{
		Addr:           s.config.ListenAddress,
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("starting apilog server",
			"address", s.config.ListenAddress,
			"upstream", s.config.Upstream,
		)
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown gracefully shuts down the server within the configured timeout.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.RLock()
		running := s.isRunning
		s.mu.RUnlock()
		if !running {
			return
		}

		s.logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			s.logger.Error("error during server shutdown", "error", err)
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		s.logger.Info("apilog server stopped")
	})

	return shutdownErr
}

// IsRunning returns true if the server is running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Handler returns the routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	router := mux.NewRouter()

	if s.deps.API != nil {
		s.deps.API.Register(router)
	}

	if s.deps.Health != nil && s.telemetry.Health.Enabled {
		router.Handle(s.telemetry.Health.LivenessPath, s.deps.Health.LivenessHandler())
		router.Handle(s.telemetry.Health.ReadinessPath, s.deps.Health.ReadinessHandler())
		router.Handle("/version", health.VersionHandler(s.deps.Version, s.deps.Commit, s.deps.BuildTime))
	}

	if s.deps.Metrics != nil && s.telemetry.Metrics.Enabled {
		router.Handle(s.telemetry.Metrics.Path, s.deps.Metrics.Handler()).Methods(http.MethodGet)
	}

	if s.deps.App != nil {
		router.PathPrefix("/").Handler(s.deps.App)
	}

	var handler http.Handler = router

	if s.deps.Interceptor != nil {
		handler = s.deps.Interceptor.Middleware(handler)
	}

	if s.config.CORS.Enabled {
		handler = cors.New(cors.Options{
			AllowedOrigins:   s.config.CORS.AllowedOrigins,
			AllowedMethods:   s.config.CORS.AllowedMethods,
			AllowedHeaders:   s.config.CORS.AllowedHeaders,
			ExposedHeaders:   s.config.CORS.ExposedHeaders,
			MaxAge:           s.config.CORS.MaxAge,
			AllowCredentials: s.config.CORS.AllowCredentials,
		}).Handler(handler)
	}

	handler = middleware.Logging(handler)
	handler = middleware.RequestID(handler)
	handler = middleware.Recovery(handler)

	return handler
}

// NewUpstreamProxy returns a reverse proxy to target. Upstream failures are
// answered with 502 and attached to the captured record.
func NewUpstreamProxy(target string) (http.Handler, error) {
	u, err := url.Parse(target)
	if err != nil {
		return nil, fmt.Errorf("invalid upstream URL %q: %w", target, err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("invalid upstream URL %q: must be absolute", target)
	}

	proxy := httputil.NewSingleHostReverseProxy(u)
	proxy.ErrorHandler = func(w http.ResponseWriter, r *http.Request, err error) {
		capture.SetError(r.Context(), fmt.Errorf("upstream error: %w", err))
		slog.WarnContext(r.Context(), "upstream request failed",
			"upstream", u.Host,
			"path", r.URL.Path,
			"error", err,
		)
		w.WriteHeader(http.StatusBadGateway)
	}
	return proxy, nil
}
