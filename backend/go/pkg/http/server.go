package http

import (
	"DocRAG/backend/go/internal/config"
	"DocRAG/backend/go/pkg/circuitbreaker"
	"DocRAG/backend/go/pkg/httpmiddleware"
	"DocRAG/backend/go/pkg/logger"
	"DocRAG/backend/go/pkg/ratelimiter"
	"context"
	"fmt"
	"net/http"
	"time"
)

// Middleware defines a function to wrap an http.Handler.
type Middleware func(http.Handler) http.Handler

// Server is a custom HTTP server that wraps the standard http.Server
// and provides built-in support for middleware.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	log        *logger.Logger
}

// ServerOption defines a function for configuring a Server.
type ServerOption func(*Server)

// WithAddress sets the address for the server to listen on.
func WithAddress(addr string) ServerOption {
	return func(s *Server) {
		s.httpServer.Addr = addr
	}
}

// WithLogger sets the logger used for server lifecycle messages.
func WithLogger(log *logger.Logger) ServerOption {
	return func(s *Server) {
		s.log = log
	}
}

// NewServer creates and configures a new Server instance based on the provided AppConfig and options.
// It automatically applies rate limiting and circuit breaking middleware if enabled in the config.
func NewServer(cfg *config.AppConfig, opts ...ServerOption) (*Server, error) {
	mux := http.NewServeMux()
	var handler http.Handler = mux

	srv := &Server{
		httpServer: &http.Server{
			Addr:              cfg.Server.Address,
			ReadHeaderTimeout: 10 * time.Second,
		},
		mux: mux,
		log: logger.NewNop(),
	}
	for _, opt := range opts {
		opt(srv)
	}

	// Chain middleware
	var middlewares []Middleware

	if cfg.Middleware.RateLimiter.Enabled {
		limiter, err := createRateLimiter(cfg.Middleware.RateLimiter)
		if err != nil {
			return nil, fmt.Errorf("failed to create rate limiter: %w", err)
		}
		srv.log.Info(fmt.Sprintf("Enabling Rate Limiter middleware with algorithm: %s", cfg.Middleware.RateLimiter.Algorithm))
		middlewares = append(middlewares, httpmiddleware.RateLimit(limiter))
	}

	if cfg.Middleware.CircuitBreaker.Enabled {
		breaker, err := createCircuitBreaker(cfg.Middleware.CircuitBreaker)
		if err != nil {
			return nil, fmt.Errorf("failed to create circuit breaker: %w", err)
		}
		srv.log.Info("Enabling Circuit Breaker middleware.")
		middlewares = append(middlewares, httpmiddleware.CircuitBreak(breaker))
	}

	// Apply all middlewares in reverse order
	for i := len(middlewares) - 1; i >= 0; i-- {
		handler = middlewares[i](handler)
	}
	srv.httpServer.Handler = handler

	if srv.httpServer.Addr == "" {
		srv.httpServer.Addr = ":8080"
	}

	return srv, nil
}

// Handle registers the handler for the given pattern.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// HandleFunc registers the handler function for the given pattern.
func (s *Server) HandleFunc(pattern string, handler http.HandlerFunc) {
	s.mux.HandleFunc(pattern, handler)
}

// Addr is the address the server listens on.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// ListenAndServe starts the HTTP server. It returns nil after a graceful Shutdown.
func (s *Server) ListenAndServe() error {
	if s.httpServer.Addr == "" {
		return fmt.Errorf("server address is not set")
	}
	s.log.Info(fmt.Sprintf("Starting server on %s", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// createRateLimiter initializes a rate limiter based on the configuration.
func createRateLimiter(cfg config.RateLimiterConfig) (ratelimiter.RateLimiter, error) {
	algorithm := cfg.Algorithm
	if algorithm == "" {
		algorithm = "tokenBucket"
	}

	switch algorithm {
	case "tokenBucket":
		conf := cfg.TokenBucket
		if conf.Rate <= 0 || conf.Capacity <= 0 {
			return nil, fmt.Errorf("tokenBucket rate and capacity must be positive")
		}
		return ratelimiter.NewTokenBucket(conf.Rate, conf.Capacity), nil
	case "slidingCounter":
		conf := cfg.SlidingCounter
		window, err := time.ParseDuration(conf.Window)
		if err != nil {
			return nil, fmt.Errorf("invalid slidingCounter duration: %w", err)
		}
		return ratelimiter.NewSlidingWindowCounter(conf.Limit, window, conf.NumBuckets), nil
	default:
		return nil, fmt.Errorf("unknown rate limiter algorithm: %s", cfg.Algorithm)
	}
}

// createCircuitBreaker initializes a circuit breaker based on the configuration.
func createCircuitBreaker(cfg config.CircuitBreakerConfig) (circuitbreaker.CircuitBreaker, error) {
	timeout, err := time.ParseDuration(cfg.Timeout)
	if err != nil {
		return nil, fmt.Errorf("invalid circuit breaker timeout duration: %w", err)
	}
	return circuitbreaker.New(cfg.FailureThreshold, cfg.SuccessThreshold, timeout), nil
}
