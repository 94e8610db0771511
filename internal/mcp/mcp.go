// Package mcp implements the Model Context Protocol surface for Meridian.
//
// Every tool is a read-only view over derived truth: daily facts, insights,
// intelligence context, health score/signals, and the derived ledger. MCP
// agents never write through this surface; recompute stays behind the HTTP
// API and the batch runner.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/meridianhealth/meridian/internal/model"
	"github.com/meridianhealth/meridian/internal/storage"
)

// Store is the read-only slice of the persistence layer the tools serve.
type Store interface {
	GetDailyFacts(ctx context.Context, userID, date string) (model.DailyFacts, error)
	InsightsForDay(ctx context.Context, userID, date string) ([]model.Insight, error)
	GetIntelligenceContext(ctx context.Context, userID, date string) (model.IntelligenceContext, error)
	GetHealthScore(ctx context.Context, userID, date string) (model.HealthScoreDoc, error)
	GetHealthSignals(ctx context.Context, userID, date string) (model.HealthSignalDoc, error)
	ListLedgerRuns(ctx context.Context, userID, date string) ([]model.DerivedLedgerRun, error)
	SnapshotsForRun(ctx context.Context, userID, runID string) ([]model.LedgerSnapshot, error)
}

// Server wraps the MCP server over Meridian's store.
type Server struct {
	mcpServer *mcpserver.MCPServer
	store     Store
	logger    *slog.Logger
}

// New creates and configures an MCP server with all tools registered.
func New(store Store, logger *slog.Logger, version string) *Server {
	s := &Server{store: store, logger: logger}

	s.mcpServer = mcpserver.NewMCPServer(
		"meridian",
		version,
		mcpserver.WithToolCapabilities(true),
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *Server) registerTools() {
	userAndDate := func(tool string) []mcplib.ToolOption {
		return []mcplib.ToolOption{
			mcplib.WithDescription(tool),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("user_id", mcplib.Description("User identifier"), mcplib.Required()),
			mcplib.WithString("date", mcplib.Description("Day key, YYYY-MM-DD"), mcplib.Required()),
		}
	}

	s.mcpServer.AddTool(
		mcplib.NewTool("get_daily_facts",
			userAndDate("Get the aggregated and enriched daily facts for one user-day: sleep, activity, recovery, nutrition, and body buckets with rolling averages, HRV baseline deviation, and per-domain confidence.")...),
		s.handleDailyFacts,
	)
	s.mcpServer.AddTool(
		mcplib.NewTool("get_insights",
			userAndDate("Get the rule-engine insights for one user-day, each with severity, evidence (fact, value, threshold), tags, and the rule version that produced it.")...),
		s.handleInsights,
	)
	s.mcpServer.AddTool(
		mcplib.NewTool("get_intelligence_context",
			userAndDate("Get the deterministic read-optimized context for one user-day: scalar fact snapshot, confidence, insight aggregates, and readiness flags.")...),
		s.handleIntelligence,
	)
	s.mcpServer.AddTool(
		mcplib.NewTool("get_health_score",
			userAndDate("Get the composite and per-domain health score for one user-day.")...),
		s.handleHealthScore,
	)
	s.mcpServer.AddTool(
		mcplib.NewTool("get_health_signals",
			userAndDate("Get the attention signals for one user-day: status, readiness, reasons, missing inputs, and baseline-window evidence.")...),
		s.handleHealthSignals,
	)
	s.mcpServer.AddTool(
		mcplib.NewTool("list_ledger_runs",
			userAndDate("List the derived-ledger runs recorded for one user-day. Every run is immutable and content-hashed; use get_ledger_run for its snapshots.")...),
		s.handleListRuns,
	)
	s.mcpServer.AddTool(
		mcplib.NewTool("get_ledger_run",
			mcplib.WithDescription("Get one derived-ledger run's content-hashed artifact snapshots: the exact derived truth as of that run."),
			mcplib.WithReadOnlyHintAnnotation(true),
			mcplib.WithIdempotentHintAnnotation(true),
			mcplib.WithOpenWorldHintAnnotation(false),
			mcplib.WithString("user_id", mcplib.Description("User identifier"), mcplib.Required()),
			mcplib.WithString("run_id", mcplib.Description("Ledger run identifier"), mcplib.Required()),
		),
		s.handleGetRun,
	)
}

func (s *Server) handleDailyFacts(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return s.fetch(ctx, request, func(ctx context.Context, userID, date string) (any, error) {
		return s.store.GetDailyFacts(ctx, userID, date)
	})
}

func (s *Server) handleInsights(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return s.fetch(ctx, request, func(ctx context.Context, userID, date string) (any, error) {
		insights, err := s.store.InsightsForDay(ctx, userID, date)
		if err != nil {
			return nil, err
		}
		if insights == nil {
			insights = []model.Insight{}
		}
		return map[string]any{"insights": insights}, nil
	})
}

func (s *Server) handleIntelligence(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return s.fetch(ctx, request, func(ctx context.Context, userID, date string) (any, error) {
		return s.store.GetIntelligenceContext(ctx, userID, date)
	})
}

func (s *Server) handleHealthScore(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return s.fetch(ctx, request, func(ctx context.Context, userID, date string) (any, error) {
		return s.store.GetHealthScore(ctx, userID, date)
	})
}

func (s *Server) handleHealthSignals(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return s.fetch(ctx, request, func(ctx context.Context, userID, date string) (any, error) {
		return s.store.GetHealthSignals(ctx, userID, date)
	})
}

func (s *Server) handleListRuns(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	return s.fetch(ctx, request, func(ctx context.Context, userID, date string) (any, error) {
		runs, err := s.store.ListLedgerRuns(ctx, userID, date)
		if err != nil {
			return nil, err
		}
		if runs == nil {
			runs = []model.DerivedLedgerRun{}
		}
		return map[string]any{"runs": runs}, nil
	})
}

func (s *Server) handleGetRun(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	userID := request.GetString("user_id", "")
	runID := request.GetString("run_id", "")
	if userID == "" || runID == "" {
		return errorResult("user_id and run_id are required"), nil
	}

	snapshots, err := s.store.SnapshotsForRun(ctx, userID, runID)
	if err != nil {
		return s.storeError("get_ledger_run", err), nil
	}
	if snapshots == nil {
		snapshots = []model.LedgerSnapshot{}
	}
	return jsonResult(map[string]any{"snapshots": snapshots})
}

// fetch runs the shared user_id/date argument handling for the per-day tools.
func (s *Server) fetch(ctx context.Context, request mcplib.CallToolRequest, get func(ctx context.Context, userID, date string) (any, error)) (*mcplib.CallToolResult, error) {
	userID := request.GetString("user_id", "")
	date := request.GetString("date", "")
	if userID == "" || date == "" {
		return errorResult("user_id and date are required"), nil
	}

	doc, err := get(ctx, userID, date)
	if err != nil {
		return s.storeError(request.Params.Name, err), nil
	}
	return jsonResult(doc)
}

func (s *Server) storeError(tool string, err error) *mcplib.CallToolResult {
	if errors.Is(err, storage.ErrNotFound) {
		return errorResult("no document for that user and key")
	}
	s.logger.Error("mcp tool failed", "tool", tool, "error", err)
	return errorResult(fmt.Sprintf("%s failed: %v", tool, err))
}

func jsonResult(v any) (*mcplib.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("encode result: %v", err)), nil
	}
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: string(data)},
		},
	}, nil
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		IsError: true,
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
	}
}
