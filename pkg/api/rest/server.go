package rest

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/vamanaio/diskann/pkg/api/rest/middleware"
	"github.com/vamanaio/diskann/pkg/config"
	"github.com/vamanaio/diskann/pkg/diskann"
	"github.com/vamanaio/diskann/pkg/observability"
)

// Server is the REST/JSON front door to a single open Engine, a sibling of
// the gRPC Server in pkg/api/grpc: both wrap the same *diskann.Engine
// independently rather than one dialing the other.
type Server struct {
	config  *config.Config
	handler *Handler
	logger  *observability.Logger

	httpServer *http.Server
	mux        *http.ServeMux
}

// NewServer wires a REST server around an already-open Engine.
func NewServer(cfg *config.Config, engine *diskann.Engine, metrics *observability.Metrics, logger *observability.Logger) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	var cache *QueryCache
	if cfg.Cache.Enabled {
		cache = NewQueryCache(cfg.Cache.Capacity, cfg.Cache.TTL)
	}

	s := &Server{
		config:  cfg,
		handler: NewHandler(engine, cache, metrics, logger),
		logger:  logger,
		mux:     http.NewServeMux(),
	}
	s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.Server.RESTAddress(),
		Handler:      s.withMiddleware(s.mux),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/v1/health", s.handler.HealthCheck)
	s.mux.HandleFunc("/v1/stats", s.handler.GetStats)
	s.mux.HandleFunc("/v1/search", s.handler.Search)
	s.mux.HandleFunc("/v1/range_search", s.handler.RangeSearch)
	s.mux.HandleFunc("/v1/warm_cache", s.handler.WarmCache)
	s.mux.HandleFunc("/v1/bfs_cache", s.handler.BFSCache)
}

// withMiddleware wraps the mux with logging, CORS, rate limiting and auth.
func (s *Server) withMiddleware(handler http.Handler) http.Handler {
	handler = loggingMiddleware(s.logger)(handler)

	if s.config.Server.EnableTLS {
		handler = corsMiddleware([]string{"*"})(handler)
	}

	rateLimiter := middleware.NewRateLimiter(middleware.RateLimitConfig{
		Enabled:        false,
		RequestsPerSec: 100,
		Burst:          200,
		PerIP:          true,
	})
	handler = middleware.RateLimitMiddleware(rateLimiter)(handler)

	handler = middleware.AuthMiddleware(middleware.AuthConfig{
		Enabled:     s.config.Auth.Enabled,
		JWTSecret:   s.config.Auth.JWTSecret,
		PublicPaths: []string{"/v1/health"},
	})(handler)

	return handler
}

// Start starts the REST API server.
func (s *Server) Start() error {
	s.logger.Infof("diskann REST server listening on %s", s.config.Server.RESTAddress())
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("REST server error: %w", err)
	}
	return nil
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.Info("Shutting down REST API server...")
	return s.httpServer.Shutdown(ctx)
}

// loggingMiddleware logs all HTTP requests through the shared Logger.
func loggingMiddleware(logger *observability.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(wrapped, r)

			logger.Infof("%s %s %d %v", r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
		})
	}
}

// responseWriter wraps http.ResponseWriter to capture the status code.
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// corsMiddleware adds CORS headers.
func corsMiddleware(allowedOrigins []string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			origin := r.Header.Get("Origin")

			allowed := false
			if len(allowedOrigins) == 0 || (len(allowedOrigins) == 1 && allowedOrigins[0] == "*") {
				allowed = true
				origin = "*"
			} else {
				for _, allowedOrigin := range allowedOrigins {
					if allowedOrigin == origin {
						allowed = true
						break
					}
				}
			}

			if allowed {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
				w.Header().Set("Access-Control-Max-Age", "3600")
			}

			if r.Method == http.MethodOptions {
				w.WriteHeader(http.StatusNoContent)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
