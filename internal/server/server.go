package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/meridianhealth/meridian/internal/derive"
)

// Server is the Meridian HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Config holds all dependencies and settings for creating a Server.
type Config struct {
	Store  Store
	Engine *derive.Engine
	Logger *slog.Logger

	// MCPServer, when set, is mounted at /mcp over the StreamableHTTP
	// transport. Nil disables the MCP surface.
	MCPServer *mcpserver.MCPServer

	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64
}

// New creates an HTTP server with all routes configured.
func New(cfg Config) *Server {
	h := NewHandlers(HandlersDeps{
		Store:   cfg.Store,
		Engine:  cfg.Engine,
		Logger:  cfg.Logger,
		Version: cfg.Version,
		MaxBody: cfg.MaxRequestBodyBytes,
	})

	mux := http.NewServeMux()

	// Write surfaces.
	mux.HandleFunc("POST /v1/ingest", h.HandleIngest)
	mux.HandleFunc("POST /v1/recompute", h.HandleRecompute)

	// Read-only query surfaces over derived truth.
	mux.HandleFunc("GET /v1/users/{user_id}/daily-facts/{date}", h.HandleGetDailyFacts)
	mux.HandleFunc("GET /v1/users/{user_id}/insights/{date}", h.HandleGetInsights)
	mux.HandleFunc("GET /v1/users/{user_id}/intelligence/{date}", h.HandleGetIntelligence)
	mux.HandleFunc("GET /v1/users/{user_id}/health-score/{date}", h.HandleGetHealthScore)
	mux.HandleFunc("GET /v1/users/{user_id}/health-signals/{date}", h.HandleGetHealthSignals)
	mux.HandleFunc("GET /v1/users/{user_id}/ledger/{date}", h.HandleGetLedgerPointer)
	mux.HandleFunc("GET /v1/users/{user_id}/ledger/{date}/runs", h.HandleListLedgerRuns)
	mux.HandleFunc("GET /v1/users/{user_id}/ledger/runs/{run_id}", h.HandleGetLedgerRun)
	mux.HandleFunc("GET /v1/users/{user_id}/failures", h.HandleListFailures)

	// MCP StreamableHTTP transport.
	if cfg.MCPServer != nil {
		mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(cfg.MCPServer))
	}

	mux.HandleFunc("GET /healthz", h.HandleHealthz)

	// Outermost first: request ID, then tracing, then logging (so the log
	// line carries the span's trace id).
	handler := requestIDMiddleware(tracingMiddleware(loggingMiddleware(cfg.Logger, mux)))

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening. Blocks until the server stops.
func (s *Server) Start() error {
	s.logger.Info("http server listening", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
