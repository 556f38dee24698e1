// Package mcp exposes the workflow service as Model Context Protocol tools.
package mcp

import (
	"context"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/Jinrix-labs/prompt-forge-sub000/internal/logging"
	"github.com/Jinrix-labs/prompt-forge-sub000/internal/workflows"
)

// Tool names.
const (
	ToolExecute       = "promptforge.execute"
	ToolHistory       = "promptforge.history"
	ToolListWorkflows = "promptforge.list_workflows"
)

// ServerDeps holds the dependencies for creating a Server.
type ServerDeps struct {
	Service *workflows.Service
	Version string
	Logger  *slog.Logger
}

// Server wraps an MCP server with prompt-forge tool handlers.
type Server struct {
	svc       *workflows.Service
	logger    *slog.Logger
	mcpServer *server.MCPServer
}

// NewServer creates a Server with all tools registered.
func NewServer(deps ServerDeps) *Server {
	version := deps.Version
	if version == "" {
		version = "dev"
	}
	s := &Server{
		svc:    deps.Service,
		logger: logging.OrDefault(deps.Logger),
	}

	mcpSrv := server.NewMCPServer(
		"promptforge",
		version,
		server.WithToolCapabilities(false),
		server.WithRecovery(),
		server.WithInstructions("prompt-forge runs multi-step LLM prompt workflows. Use promptforge.list_workflows to find a workflow, promptforge.execute to run it with inputs, and promptforge.history to inspect past runs."),
	)
	mcpSrv.AddTools(s.tools()...)
	s.mcpServer = mcpSrv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or stdin closes.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("mcp server listening on stdio")
	stdio := server.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying MCPServer for testing or custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

func (s *Server) tools() []server.ServerTool {
	return []server.ServerTool{
		{Tool: executeTool(), Handler: s.handleExecute},
		{Tool: historyTool(), Handler: s.handleHistory},
		{Tool: listWorkflowsTool(), Handler: s.handleListWorkflows},
	}
}

// --- Tool definitions ---

func executeTool() mcp.Tool {
	return mcp.NewTool(ToolExecute,
		mcp.WithDescription("Run a workflow and return its output and step trace"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow to run")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Identity the run is authorized and metered against")),
		mcp.WithObject("inputs", mcp.Description("Caller inputs, available to steps as {{name}} and user_input.name")),
	)
}

func historyTool() mcp.Tool {
	return mcp.NewTool(ToolHistory,
		mcp.WithDescription("List recent runs of a workflow, newest first"),
		mcp.WithString("workflow_id", mcp.Required(), mcp.Description("ID of the workflow")),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Only this user's runs are returned")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of runs (1-50, default 50)")),
	)
}

func listWorkflowsTool() mcp.Tool {
	return mcp.NewTool(ToolListWorkflows,
		mcp.WithDescription("List the user's workflows and all public workflows"),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Identity whose workflows are listed")),
	)
}
