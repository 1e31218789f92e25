package gateway

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/harun/conflux/internal/observability"
	"github.com/harun/conflux/pkg/chat"
	"github.com/harun/conflux/pkg/events"
	"github.com/rs/zerolog"
)

const (
	shutdownTimeout = 30 * time.Second
	maxRequestBytes = 1 << 20
)

// ChatService runs chat turns for the transport
type ChatService interface {
	Stream(ctx context.Context, req chat.Request) <-chan events.Event
	Process(ctx context.Context, req chat.Request) (*chat.Response, error)
}

// Config holds server configuration
type Config struct {
	Host              string
	Port              int
	Chat              ChatService
	RequestsPerMinute int
	MaxConcurrent     int
	Logger            zerolog.Logger
}

// Server is the HTTP and WebSocket front of the chat service
type Server struct {
	addr     string
	chat     ChatService
	limiters *limiterRegistry
	upgrader websocket.Upgrader
	logger   zerolog.Logger

	server       *http.Server
	inFlightReqs sync.WaitGroup
	shutdownMu   sync.RWMutex
	shuttingDown bool
}

// NewServer creates a server
func NewServer(cfg Config) (*Server, error) {
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Chat == nil {
		return nil, fmt.Errorf("chat service is required")
	}

	s := &Server{
		addr:     net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		chat:     cfg.Chat,
		limiters: newLimiterRegistry(cfg.RequestsPerMinute, cfg.MaxConcurrent),
		logger:   cfg.Logger,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
		},
	}
	s.server = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s, nil
}

// Addr returns the listen address
func (s *Server) Addr() string {
	return s.addr
}

// Handler returns the routed handler with tracing and rate limiting
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.Handle("POST /api/chat/stream", s.limited(s.handleChatStream))
	mux.Handle("POST /api/chat", s.limited(s.handleChat))
	mux.Handle("GET /api/chat/ws", s.limited(s.handleChatWS))
	mux.HandleFunc("GET /api/supported-commands", s.handleSupportedCommands)
	mux.Handle("GET /metrics", observability.MetricsHandler())
	mux.HandleFunc("GET /healthz", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return s.traced(mux)
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Starting gateway server")

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("gateway server error: %w", err)
	case <-ctx.Done():
	}

	return s.Stop()
}

// Stop rejects new turns, waits for in-flight ones and closes the server
func (s *Server) Stop() error {
	s.shutdownMu.Lock()
	s.shuttingDown = true
	s.shutdownMu.Unlock()

	s.logger.Info().Msg("Shutting down gateway server")

	done := make(chan struct{})
	go func() {
		s.inFlightReqs.Wait()
		close(done)
	}()

	select {
	case <-done:
		s.logger.Info().Msg("All in-flight requests completed")
	case <-time.After(shutdownTimeout):
		s.logger.Warn().Msg("Shutdown timeout reached, forcing close")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("Gateway server stopped")
	return nil
}

func (s *Server) isShuttingDown() bool {
	s.shutdownMu.RLock()
	defer s.shutdownMu.RUnlock()
	return s.shuttingDown
}
