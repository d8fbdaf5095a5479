// Package server exposes the operator HTTP and WebSocket API: health and
// status, the exposure ledger, the decision log, markets, the trader roster,
// market links, manual pipeline triggers, and Prometheus metrics.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/whalebridge/internal/domain"
	"github.com/alanyoungcy/whalebridge/internal/server/handler"
	"github.com/alanyoungcy/whalebridge/internal/server/middleware"
	"github.com/alanyoungcy/whalebridge/internal/server/ws"
)

// apiRateLimit caps requests per client IP per window when a rate limiter is
// configured.
const (
	apiRateLimit  = 60
	apiRateWindow = time.Minute
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
}

// Handlers aggregates all HTTP handlers that the server registers.
type Handlers struct {
	Health    *handler.HealthHandler
	Status    *handler.StatusHandler
	Markets   *handler.MarketHandler
	Exposure  *handler.ExposureHandler
	Decisions *handler.DecisionHandler
	Traders   *handler.TraderHandler
	Links     *handler.LinkHandler
	Pipeline  *handler.PipelineHandler
}

// Server is the operator HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. limiter and
// gatherer may be nil; without them per-IP rate limiting and /metrics are
// disabled.
func NewServer(
	cfg Config,
	handlers Handlers,
	wsHub *ws.Hub,
	limiter domain.RateLimiter,
	gatherer prometheus.Gatherer,
	logger *slog.Logger,
) *Server {
	mux := http.NewServeMux()

	// Health check (no auth required).
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Status snapshot.
	mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)

	// Target market endpoints.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)

	// Exposure ledger endpoints.
	mux.HandleFunc("GET /api/exposure", handlers.Exposure.GetSummary)
	mux.HandleFunc("GET /api/exposure/records", handlers.Exposure.ListRecords)

	// Decision log endpoints.
	mux.HandleFunc("GET /api/decisions", handlers.Decisions.ListDecisions)

	// Tracked trader roster.
	mux.HandleFunc("GET /api/traders", handlers.Traders.ListTraders)
	mux.HandleFunc("POST /api/traders", handlers.Traders.AddTrader)
	mux.HandleFunc("PUT /api/traders/{address}/bankroll", handlers.Traders.UpdateBankroll)

	// Confirmed market links.
	mux.HandleFunc("GET /api/links", handlers.Links.ListLinks)
	mux.HandleFunc("DELETE /api/links/{source_id}", handlers.Links.DeleteLink)

	// Manual pipeline triggers.
	mux.HandleFunc("POST /api/pipeline/refresh-index", handlers.Pipeline.RefreshIndex)
	mux.HandleFunc("POST /api/pipeline/archive", handlers.Pipeline.RunArchive)

	// Prometheus metrics (no auth required).
	if gatherer != nil {
		mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	// WebSocket decision feed.
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Build the middleware chain, innermost first.
	var h http.Handler = mux
	h = middleware.Auth(cfg.APIKey)(h)
	if limiter != nil {
		h = middleware.RateLimit(limiter, apiRateLimit, apiRateWindow)(h)
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
