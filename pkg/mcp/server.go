// Package mcp exposes the catalog, validators, patch and autofix engines and execution views as
// Model Context Protocol tools for AI agents.
package mcp

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/dukex/flowguard/pkg/catalog"
	"github.com/dukex/flowguard/pkg/execution"
	"github.com/dukex/flowguard/pkg/log"
	"github.com/dukex/flowguard/pkg/services"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// Version is the MCP server version, set at build time.
var Version = "dev"

var errMissingWorkflow = errors.New("either workflow_id or workflow is required")

// ServerOption configures optional Server behaviour.
type ServerOption func(*Server)

// WithExecutions enables the execution tools.
func WithExecutions(reader *execution.Reader) ServerOption {
	return func(s *Server) {
		s.executions = reader
	}
}

// WithLogger replaces the module logger.
func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) {
		s.logger = logger
	}
}

// Server wraps an MCP server instance with the flowguard tools.
type Server struct {
	mcpServer  *server.MCPServer
	catalog    *catalog.Index
	workflows  *services.Workflow
	executions *execution.Reader // optional; enables get_execution and list_executions
	logger     *slog.Logger
}

// NewServer creates an MCP server with every tool registered.
func NewServer(idx *catalog.Index, workflows *services.Workflow, opts ...ServerOption) *Server {
	s := &Server{
		catalog:   idx,
		workflows: workflows,
		logger:    log.WithModule("mcp"),
	}

	for _, opt := range opts {
		opt(s)
	}

	s.mcpServer = server.NewMCPServer(
		"flowguard",
		Version,
		server.WithToolCapabilities(true),
		server.WithRecovery(),
		server.WithInstructions("flowguard validates and edits node-graph workflows. "+
			"Search the node catalog and templates, validate node configurations and whole workflows, "+
			"apply incremental patch operations and run autofix. Validation and autofix calls need an "+
			"explicit profile (minimal, runtime, ai-friendly, strict); autofix also needs a confidence "+
			"threshold (high, medium, low). Execution tools return previews unless a mode is requested."),
	)

	s.registerCatalogTools()
	s.registerWorkflowTools()

	if s.executions != nil {
		s.registerExecutionTools()
	}

	return s
}

// MCPServer returns the underlying mcp-go server instance.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio serves the tools over standard input/output until stdin closes.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

func marshalToolResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("internal error: %v", err)), nil
	}

	return mcp.NewToolResultText(string(data)), nil
}

// errorResult turns a failed call into a tool error the agent can read and act on.
func (s *Server) errorResult(tool string, err error) *mcp.CallToolResult {
	switch {
	case services.IsValidationError(err), services.IsNotFoundError(err), services.IsConflictError(err):
	default:
		s.logger.Error("tool call failed", "tool", tool, "error", err)
	}

	return mcp.NewToolResultError(err.Error())
}

// decodeArgument re-decodes a structured argument into dst. It reports false when the argument is absent.
func decodeArgument(req mcp.CallToolRequest, key string, dst any) (bool, error) {
	raw, ok := req.GetArguments()[key]
	if !ok || raw == nil {
		return false, nil
	}

	data, err := json.Marshal(raw)
	if err != nil {
		return true, fmt.Errorf("%s: %w", key, err)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return true, fmt.Errorf("%s is malformed: %w", key, err)
	}

	return true, nil
}

// stringSlice reads an array of strings argument, ignoring non-string entries.
func stringSlice(req mcp.CallToolRequest, key string) []string {
	raw, ok := req.GetArguments()[key].([]any)
	if !ok {
		return nil
	}

	out := make([]string, 0, len(raw))

	for _, v := range raw {
		if s, ok := v.(string); ok {
			out = append(out, s)
		}
	}

	return out
}
