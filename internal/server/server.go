package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/metrics"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/server/handler"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/server/middleware"
	"github.com/benedictprimmer-web/Polymarket-Edge-Finder/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	RateLimit   float64
	RateBurst   int
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Pipeline and Status may be nil.
type Handlers struct {
	Health   *handler.HealthHandler
	Markets  *handler.MarketHandler
	Analysis *handler.AnalysisHandler
	Pipeline *handler.PipelineHandler
	Status   *handler.StatusHandler
}

// Server is the read API over markets, calibration and edges, plus the
// WebSocket report feed and the Prometheus endpoint.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered on a ServeMux and
// the middleware chain applied. wsHub and m may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, m *metrics.Metrics, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewHandler(cfg, handlers, wsHub, m, logger),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       15 * time.Second,
			// Synchronous analysis runs can take a while.
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed and wrapped http.Handler.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{id}", handlers.Markets.GetMarket)

	mux.HandleFunc("GET /api/calibration", handlers.Analysis.GetCalibration)
	mux.HandleFunc("GET /api/edges", handlers.Analysis.ListEdges)
	mux.HandleFunc("GET /api/runs", handlers.Analysis.ListRuns)
	mux.HandleFunc("POST /api/analysis/run", handlers.Analysis.RunAnalysis)

	if handlers.Pipeline != nil {
		mux.HandleFunc("POST /api/pipeline/trigger", handlers.Pipeline.TriggerPipeline)
	}
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}
	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	var h http.Handler = mux
	h = middleware.RateLimit(cfg.RateLimit, cfg.RateBurst)(h)
	h = middleware.Auth(cfg.APIKey)(h)
	h = middleware.Logging(logger, m)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	return h
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
