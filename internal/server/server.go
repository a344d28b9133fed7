// Package server exposes the gateway over HTTP and websockets.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/alanyoungcy/alphamarket/internal/server/handler"
	"github.com/alanyoungcy/alphamarket/internal/server/middleware"
	"github.com/alanyoungcy/alphamarket/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // guards write routes; empty disables auth
	// RateLimit is requests per client per RateWindow; zero disables it.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Writes is nil in read-only mode.
type Handlers struct {
	Health     *handler.HealthHandler
	Users      *handler.UsersHandler
	Alphas     *handler.AlphaHandler
	Tokens     *handler.TokenHandler
	Wallet     *handler.WalletHandler
	Operations *handler.OperationHandler
	Writes     *handler.WriteHandler
	Metrics    http.Handler
}

// Server is the HTTP + websocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered on the ServeMux.
// Middleware runs CORS, then logging, then rate limiting, then auth.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	mux.HandleFunc("GET /api/users", handlers.Users.GetUsers)

	mux.HandleFunc("GET /api/alphas", handlers.Alphas.List)
	mux.HandleFunc("GET /api/alphas/mine", handlers.Alphas.Mine)
	mux.HandleFunc("GET /api/alphas/next-id", handlers.Alphas.NextID)
	mux.HandleFunc("GET /api/alphas/{id}", handlers.Alphas.Get)
	mux.HandleFunc("GET /api/alphas/{id}/stats", handlers.Alphas.Stats)

	mux.HandleFunc("GET /api/tokens", handlers.Tokens.Featured)
	mux.HandleFunc("GET /api/tokens/{address}", handlers.Tokens.Get)
	mux.HandleFunc("GET /api/wallet", handlers.Wallet.Get)

	mux.HandleFunc("GET /api/operations/events", handlers.Operations.Events)
	mux.HandleFunc("GET /api/operations/{id}", handlers.Operations.Get)

	if handlers.Writes != nil {
		mux.HandleFunc("POST /api/alphas", handlers.Writes.Create)
		mux.HandleFunc("POST /api/alphas/{id}/bets", handlers.Writes.Bet)
		mux.HandleFunc("POST /api/alphas/{id}/settlement/request", handlers.Writes.RequestSettlement)
		mux.HandleFunc("POST /api/alphas/{id}/settlement/finalize", handlers.Writes.FinalizeSettlement)
		mux.HandleFunc("POST /api/withdrawals", handlers.Writes.Withdraw)
		mux.HandleFunc("POST /api/approvals", handlers.Writes.Approve)
	}

	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           h,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		mux:        mux,
		logger:     logger.With(slog.String("component", "server")),
	}
}

// Handler returns the fully wrapped handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
