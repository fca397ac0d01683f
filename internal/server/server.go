package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/apexarb/arbengine/internal/crypto"
	"github.com/apexarb/arbengine/internal/domain"
	"github.com/apexarb/arbengine/internal/server/handler"
	"github.com/apexarb/arbengine/internal/server/middleware"
	"github.com/apexarb/arbengine/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string

	// BearerToken enables bearer-token auth when set. HMACKey and HMACSecret
	// enable signed requests when both are set. With neither configured,
	// authentication is disabled.
	BearerToken string
	HMACKey     string
	HMACSecret  string

	// RateLimit is the per-client request budget per RateWindow. Zero
	// disables rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates the HTTP handlers the server registers. Nil optional
// handlers leave their routes unregistered.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Intents     *handler.IntentHandler
	Attempts    *handler.AttemptHandler
	Nonce       *handler.NonceHandler
	Receipts    *handler.ReceiptHandler  // optional; requires a receipt cache
	Withdrawals *handler.WithdrawHandler // optional; owner-only deployments
	Metrics     http.Handler             // optional; serves GET /metrics
}

// Server is the headless HTTP + WebSocket API for the arbitrage daemon.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on the ServeMux and
// the middleware chain (CORS, logging, rate limiting, auth) wired up. A nil
// limiter disables rate limiting regardless of config.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	mux.HandleFunc("POST /api/intents", handlers.Intents.SubmitIntent)
	mux.HandleFunc("POST /api/attempts", handlers.Attempts.SubmitAttempt)
	mux.HandleFunc("GET /api/nonce/{signer}", handlers.Nonce.GetNonce)

	if handlers.Receipts != nil {
		mux.HandleFunc("GET /api/receipts/{digest}", handlers.Receipts.GetReceipt)
	}
	if handlers.Withdrawals != nil {
		mux.HandleFunc("POST /api/withdrawals", handlers.Withdrawals.SubmitWithdraw)
	}
	if handlers.Metrics != nil {
		mux.Handle("GET /metrics", handlers.Metrics)
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux

	creds := middleware.Credentials{BearerToken: cfg.BearerToken}
	if cfg.HMACKey != "" && cfg.HMACSecret != "" {
		creds.HMAC = &crypto.RequestAuth{Key: cfg.HMACKey, Secret: cfg.HMACSecret}
	}
	h = middleware.Auth(creds)(h)

	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Second
		}
		h = middleware.RateLimit(limiter, cfg.RateLimit, window)(h)
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
		mux:        mux,
		logger:     logger,
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
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
