package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/tradecore/internal/domain"
	"github.com/alanyoungcy/tradecore/internal/gateway/handler"
	"github.com/alanyoungcy/tradecore/internal/gateway/middleware"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	JWTSecret   string

	// RateLimit is requests per client IP per RateWindow. Zero disables
	// rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health *handler.HealthHandler
	Auth   *handler.AuthHandler
	Trade  *handler.TradeHandler
}

// Server is the public HTTP API for accounts and trading.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. Trade and balance
// routes require a valid session token; signup, signin, and health do not.
func NewServer(cfg Config, handlers Handlers, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	secret := []byte(cfg.JWTSecret)
	auth := middleware.Auth(secret)

	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Account endpoints.
	mux.HandleFunc("POST /api/v1/auth/signup", handlers.Auth.Signup)
	mux.HandleFunc("POST /api/v1/auth/signin", handlers.Auth.Signin)

	// Trading endpoints.
	mux.Handle("POST /api/v1/trade", auth(http.HandlerFunc(handlers.Trade.Place)))
	mux.Handle("POST /api/v1/trade/close", auth(http.HandlerFunc(handlers.Trade.Close)))
	mux.Handle("GET /api/v1/trade", auth(http.HandlerFunc(handlers.Trade.ListClosed)))
	mux.Handle("GET /api/v1/balance", auth(http.HandlerFunc(handlers.Trade.Balance)))

	// Build the middleware chain.
	var h http.Handler = mux

	if limiter != nil && cfg.RateLimit > 0 {
		h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		logger:     logger.With(slog.String("component", "gateway")),
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("gateway: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("gateway: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("gateway: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("gateway: shutdown: %w", err)
	}
	return nil
}
