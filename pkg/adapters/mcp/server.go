package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/pipeprobe"
	"github.com/aretw0/pipeprobe/pkg/domain"
	"github.com/aretw0/pipeprobe/pkg/orchestrator"
	"github.com/aretw0/pipeprobe/pkg/symbols"
	"github.com/aretw0/pipeprobe/pkg/topology"
)

// ExtractResponse lists the datasets of a configuration file.
type ExtractResponse struct {
	Path     string                `json:"path" jsonschema_description:"The configuration file that was inspected"`
	Datasets []*domain.DatasetNode `json:"datasets" jsonschema_description:"Datasets found in document order"`
}

// ProbeResponse is the folded result of a probe run.
type ProbeResponse struct {
	SessionID string               `json:"sessionId" jsonschema_description:"Session the run belonged to"`
	Report    *orchestrator.Report `json:"report" jsonschema_description:"Datasets, snapshots and errors of the run"`
	Steps     []StepSummary        `json:"steps" jsonschema_description:"Per-step change counts for every dataset"`
}

// StepSummary condenses one step diff.
type StepSummary struct {
	Dataset   string             `json:"dataset"`
	StepLabel string             `json:"stepLabel"`
	StepIndex int                `json:"stepIndex"`
	Summary   domain.DiffSummary `json:"summary"`
}

// DiffResponse is the result of a snapshot comparison.
type DiffResponse struct {
	Fields  []domain.FieldDiff `json:"fields" jsonschema_description:"Field-level differences, recursively"`
	Summary domain.DiffSummary `json:"summary" jsonschema_description:"Top-level change counts"`
}

// CancelResponse acknowledges a cancellation.
type CancelResponse struct {
	SessionID string `json:"sessionId"`
	Cancelled bool   `json:"cancelled"`
}

// Probe defines what the MCP server needs from the library.
type Probe interface {
	Load(path string) (*topology.Document, error)
	Extract(doc *topology.Document) []topology.Entry
	BuildRequest(doc *topology.Document, address string, values map[string]string) (domain.RunRequest, error)
	RunReport(ctx context.Context, sessionID string, req domain.RunRequest) (*orchestrator.Report, error)
	Cancel(sessionID string) bool
	Symbols() *symbols.Table
}

// Server exposes the probe as an MCP server.
type Server struct {
	probe     Probe
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// NewServer creates a new MCP Server instance.
func NewServer(probe Probe, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		probe:     probe,
		mcpServer: server.NewMCPServer("pipeprobe-mcp", pipeprobe.Version),
		logger:    logger,
	}
	s.registerTools()
	s.registerResources()
	return s
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE starts the server on the given port using SSE.
func (s *Server) ServeSSE(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	baseURL := fmt.Sprintf("http://localhost:%d", port)

	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))

	httpServer := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		s.logger.Info("Shutdown signal received, shutting down MCP server")
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	// TOOL: extract_topology
	extractTool := mcp.NewTool("extract_topology",
		mcp.WithDescription("List the datasets declared in a YAML training configuration, with their wrapped chains and transforms."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the configuration file")),
		outputSchema[ExtractResponse](),
	)
	s.mcpServer.AddTool(extractTool, mcp.NewStructuredToolHandler(s.handleExtract))

	// TOOL: probe_dataset
	probeTool := mcp.NewTool("probe_dataset",
		mcp.WithDescription("Run the first entry of a dataset through its transform pipeline and report a snapshot per step."),
		mcp.WithString("path", mcp.Required(), mcp.Description("Path to the configuration file")),
		mcp.WithString("dataset", mcp.Required(), mcp.Description("Dotted address of the dataset, e.g. train.dataset")),
		mcp.WithString("session_id", mcp.Description("Session to run in (optional, a fresh one is used when omitted)")),
		mcp.WithString("overrides", mcp.Description("JSON object mapping original data roots to replacement paths (optional)")),
		outputSchema[ProbeResponse](),
	)
	s.mcpServer.AddTool(probeTool, mcp.NewStructuredToolHandler(s.handleProbe))

	// TOOL: diff_snapshots
	diffTool := mcp.NewTool("diff_snapshots",
		mcp.WithDescription("Compare two entry snapshots field by field."),
		mcp.WithString("before", mcp.Description("JSON entry snapshot before the step (optional, omitted for the first step)")),
		mcp.WithString("after", mcp.Required(), mcp.Description("JSON entry snapshot after the step")),
		outputSchema[DiffResponse](),
	)
	s.mcpServer.AddTool(diffTool, mcp.NewStructuredToolHandler(s.handleDiff))

	// TOOL: cancel_probe
	cancelTool := mcp.NewTool("cancel_probe",
		mcp.WithDescription("Cancel the probe run of a session."),
		mcp.WithString("session_id", mcp.Required(), mcp.Description("Session whose run to cancel")),
		outputSchema[CancelResponse](),
	)
	s.mcpServer.AddTool(cancelTool, mcp.NewStructuredToolHandler(s.handleCancel))
}

func (s *Server) handleCancel(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (CancelResponse, error) {
	sessionID, _ := args["session_id"].(string)
	if !s.probe.Cancel(sessionID) {
		return CancelResponse{}, fmt.Errorf("no run in progress for session %s", sessionID)
	}
	return CancelResponse{SessionID: sessionID, Cancelled: true}, nil
}

func (s *Server) handleExtract(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ExtractResponse, error) {
	path, _ := args["path"].(string)
	doc, err := s.probe.Load(path)
	if err != nil {
		return ExtractResponse{}, fmt.Errorf("load failed: %w", err)
	}

	resp := ExtractResponse{Path: path, Datasets: []*domain.DatasetNode{}}
	for _, e := range s.probe.Extract(doc) {
		resp.Datasets = append(resp.Datasets, e.Node)
	}
	return resp, nil
}

func (s *Server) handleProbe(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (ProbeResponse, error) {
	path, _ := args["path"].(string)
	dataset, _ := args["dataset"].(string)
	sessionID, _ := args["session_id"].(string)
	if sessionID == "" {
		sessionID = "mcp-" + uuid.NewString()
	}

	var values map[string]string
	if raw, ok := args["overrides"].(string); ok && raw != "" {
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			return ProbeResponse{}, fmt.Errorf("invalid overrides: %w", err)
		}
	}

	doc, err := s.probe.Load(path)
	if err != nil {
		return ProbeResponse{}, fmt.Errorf("load failed: %w", err)
	}
	req, err := s.probe.BuildRequest(doc, dataset, values)
	if err != nil {
		return ProbeResponse{}, err
	}

	report, err := s.probe.RunReport(ctx, sessionID, req)
	if err != nil {
		if errors.Is(err, domain.ErrRunInProgress) {
			s.logger.Warn("MCP Probe: session busy", "session_id", sessionID)
		}
		return ProbeResponse{}, fmt.Errorf("probe failed: %w", err)
	}

	resp := ProbeResponse{SessionID: sessionID, Report: report, Steps: []StepSummary{}}
	for _, ds := range report.Datasets {
		for _, d := range ds.Diffs() {
			resp.Steps = append(resp.Steps, StepSummary{
				Dataset:   ds.Address,
				StepLabel: d.StepLabel,
				StepIndex: d.StepIndex,
				Summary:   d.Summary,
			})
		}
	}
	return resp, nil
}

func (s *Server) handleDiff(ctx context.Context, request mcp.CallToolRequest, args map[string]interface{}) (DiffResponse, error) {
	var before, after *domain.EntrySnapshot
	if raw, ok := args["before"].(string); ok && raw != "" {
		before = &domain.EntrySnapshot{}
		if err := json.Unmarshal([]byte(raw), before); err != nil {
			return DiffResponse{}, fmt.Errorf("invalid before snapshot: %w", err)
		}
	}
	raw, _ := args["after"].(string)
	after = &domain.EntrySnapshot{}
	if err := json.Unmarshal([]byte(raw), after); err != nil {
		return DiffResponse{}, fmt.Errorf("invalid after snapshot: %w", err)
	}

	fields := domain.DiffEntries(before, after)
	return DiffResponse{Fields: fields, Summary: domain.Summarize(fields)}, nil
}

func (s *Server) registerResources() {
	// EXPOSE: pipeprobe://symbols
	s.mcpServer.AddResource(mcp.NewResource("pipeprobe://symbols", "Known Symbols",
		mcp.WithMIMEType("application/json"),
	), func(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
		jsonBytes, err := json.Marshal(s.probe.Symbols().Records())
		if err != nil {
			return nil, fmt.Errorf("failed to encode symbols: %w", err)
		}

		return []mcp.ResourceContents{
			mcp.TextResourceContents{
				URI:      "pipeprobe://symbols",
				MIMEType: "application/json",
				Text:     string(jsonBytes),
			},
		}, nil
	})
}
