package quotews

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"
)

// Server exposes the hub's websocket endpoint over HTTP.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with the hub mounted at /ws.
func NewServer(port int, hub *Hub, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /ws", hub.HandleWS)

	return &Server{
		httpServer: &http.Server{
			Addr:        fmt.Sprintf(":%d", port),
			Handler:     mux,
			ReadTimeout: 15 * time.Second,
			IdleTimeout: 60 * time.Second,
		},
		logger: logger.With(slog.String("component", "quotews")),
	}
}

// Start begins listening for websocket upgrade requests. It blocks until the
// server encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("quote server starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("quotews: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("quote server shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("quotews: shutdown: %w", err)
	}
	return nil
}
