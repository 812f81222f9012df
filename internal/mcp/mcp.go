// Package mcp exposes recorded telemetry over the Model Context Protocol.
//
// The server reads from the append-only span log (and the optional SQLite
// index when one is attached) so that MCP-compatible agents can inspect
// traces, recent activity, and aggregate metrics for a running agent.
package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	mcplib "github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/kansatsu-ai/kansatsu/internal/model"
	"github.com/kansatsu-ai/kansatsu/internal/report"
	"github.com/kansatsu-ai/kansatsu/internal/spanlog"
	"github.com/kansatsu-ai/kansatsu/internal/store"
)

// Server wraps the MCP server over the span log and optional span index.
type Server struct {
	mcpServer *mcpserver.MCPServer
	log       *spanlog.Log
	store     *store.Store
	logger    *slog.Logger
}

// New creates and configures an MCP server with all resources and tools.
// The store may be nil, in which case all reads go through the span log.
func New(log *spanlog.Log, st *store.Store, logger *slog.Logger) *Server {
	s := &Server{
		log:    log,
		store:  st,
		logger: logger,
	}

	s.mcpServer = mcpserver.NewMCPServer(
		"kansatsu",
		"0.1.0",
		mcpserver.WithResourceCapabilities(true, true),
		mcpserver.WithToolCapabilities(true),
	)

	s.registerResources()
	s.registerTools()

	return s
}

// MCPServer returns the underlying mcp-go server for transport setup.
func (s *Server) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

// ServeStdio runs the server over stdin/stdout until the client disconnects.
func (s *Server) ServeStdio() error {
	if err := mcpserver.ServeStdio(s.mcpServer); err != nil {
		return fmt.Errorf("mcp: stdio server: %w", err)
	}
	return nil
}

func (s *Server) registerResources() {
	// kansatsu://metrics/summary — aggregate metrics replayed from the log.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"kansatsu://metrics/summary",
			"Metrics Summary",
			mcplib.WithResourceDescription("Aggregate telemetry metrics replayed from the span log"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleMetricsSummary,
	)

	// kansatsu://spans/recent — most recent spans in chronological order.
	s.mcpServer.AddResource(
		mcplib.NewResource(
			"kansatsu://spans/recent",
			"Recent Spans",
			mcplib.WithResourceDescription("Most recently recorded spans in chronological order"),
			mcplib.WithMIMEType("application/json"),
		),
		s.handleSpansRecent,
	)
}

func (s *Server) registerTools() {
	// kansatsu_metrics — aggregate metrics and human-readable summary.
	s.mcpServer.AddTool(
		mcplib.NewTool("kansatsu_metrics",
			mcplib.WithDescription("Replay the span log and return aggregate metrics: call counts, failure counts, success rates, and average LLM latency"),
		),
		s.handleMetrics,
	)

	// kansatsu_trace — all spans for one trace.
	s.mcpServer.AddTool(
		mcplib.NewTool("kansatsu_trace",
			mcplib.WithDescription("Return all spans recorded under a trace in append order"),
			mcplib.WithString("trace_id", mcplib.Description("Trace identifier"), mcplib.Required()),
		),
		s.handleTrace,
	)

	// kansatsu_recent — last N spans.
	s.mcpServer.AddTool(
		mcplib.NewTool("kansatsu_recent",
			mcplib.WithDescription("Return the most recently recorded spans in chronological order"),
			mcplib.WithNumber("limit", mcplib.Description("Maximum spans to return"), mcplib.DefaultNumber(10)),
		),
		s.handleRecent,
	)
}

func (s *Server) handleMetricsSummary(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	metrics, err := s.replayMetrics(ctx)
	if err != nil {
		return nil, fmt.Errorf("mcp: metrics summary: %w", err)
	}

	data, err := json.MarshalIndent(metrics, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal metrics: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "kansatsu://metrics/summary",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleSpansRecent(ctx context.Context, request mcplib.ReadResourceRequest) ([]mcplib.ResourceContents, error) {
	spans, err := s.recentSpans(ctx, 20)
	if err != nil {
		return nil, fmt.Errorf("mcp: recent spans: %w", err)
	}

	data, err := json.MarshalIndent(spans, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("mcp: marshal spans: %w", err)
	}

	return []mcplib.ResourceContents{
		mcplib.TextResourceContents{
			URI:      "kansatsu://spans/recent",
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}

func (s *Server) handleMetrics(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	metrics, err := s.replayMetrics(ctx)
	if err != nil {
		return errorResult(fmt.Sprintf("metrics replay failed: %v", err)), nil
	}

	response := map[string]any{
		"metrics":           metrics,
		"avg_latency_ms":    metrics.AvgLatencyMs(),
		"llm_success_rate":  metrics.LLMSuccessRate(),
		"tool_success_rate": metrics.ToolSuccessRate(),
		"summary":           report.FormatMetrics(metrics),
	}

	data, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal metrics: %v", err)), nil
	}

	return textResult(string(data)), nil
}

func (s *Server) handleTrace(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	traceID := request.GetString("trace_id", "")
	if traceID == "" {
		return errorResult("trace_id is required"), nil
	}

	var (
		spans []model.Span
		err   error
	)
	if s.store != nil {
		spans, err = s.store.SpansByTrace(ctx, traceID)
	} else {
		spans, err = s.log.ByTrace(traceID)
	}
	if err != nil {
		return errorResult(fmt.Sprintf("trace lookup failed: %v", err)), nil
	}

	response := map[string]any{
		"trace_id": traceID,
		"count":    len(spans),
		"spans":    spans,
	}

	data, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal spans: %v", err)), nil
	}

	return textResult(string(data)), nil
}

func (s *Server) handleRecent(ctx context.Context, request mcplib.CallToolRequest) (*mcplib.CallToolResult, error) {
	limit := request.GetInt("limit", 10)
	if limit <= 0 {
		return errorResult("limit must be positive"), nil
	}

	spans, err := s.recentSpans(ctx, limit)
	if err != nil {
		return errorResult(fmt.Sprintf("recent spans lookup failed: %v", err)), nil
	}

	response := map[string]any{
		"count": len(spans),
		"spans": spans,
	}

	data, err := json.MarshalIndent(response, "", "  ")
	if err != nil {
		return errorResult(fmt.Sprintf("failed to marshal spans: %v", err)), nil
	}

	return textResult(string(data)), nil
}

func (s *Server) replayMetrics(ctx context.Context) (model.Metrics, error) {
	if s.store != nil {
		return s.store.ReplayMetrics(ctx)
	}
	spans, err := s.log.All()
	if err != nil {
		return model.Metrics{}, err
	}
	return model.Accumulate(spans), nil
}

func (s *Server) recentSpans(ctx context.Context, limit int) ([]model.Span, error) {
	if s.store != nil {
		return s.store.Recent(ctx, limit)
	}
	return s.log.Recent(limit)
}

func textResult(text string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: text},
		},
	}
}

func errorResult(msg string) *mcplib.CallToolResult {
	return &mcplib.CallToolResult{
		Content: []mcplib.Content{
			mcplib.TextContent{Type: "text", Text: msg},
		},
		IsError: true,
	}
}
