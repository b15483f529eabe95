package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/evantahler/botholomew-sub001/internal/action"
)

// emptyObjectSchema stands in for actions that take no params; MCP clients
// expect every tool to carry an input schema.
const emptyObjectSchema = `{"type": "object", "properties": {}}`

// MCPServer exposes every registered action as an MCP tool over stdio.
// Tool calls run in system context: the MCP client is trusted like a local
// operator, not like a web session.
type MCPServer struct {
	dispatcher *action.Dispatcher
	logger     *slog.Logger
	mcpServer  *mcpserver.MCPServer
}

// NewMCPServer builds the MCP surface from the action registry.
func NewMCPServer(dispatcher *action.Dispatcher, logger *slog.Logger) *MCPServer {
	s := &MCPServer{
		dispatcher: dispatcher,
		logger:     logger,
	}

	srv := mcpserver.NewMCPServer(
		"botholomew",
		"1.0.0",
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
		mcpserver.WithInstructions("Botholomew runs agent workflows. Every tool maps to one server action; workflow:run:create starts a run and workflow:run:tick advances it one step."),
	)

	srv.AddTools(s.tools()...)
	s.mcpServer = srv
	return s
}

// Serve starts the stdio transport and blocks until ctx is cancelled or
// stdin closes.
func (s *MCPServer) Serve(ctx context.Context) error {
	stdio := mcpserver.NewStdioServer(s.mcpServer)
	return stdio.Listen(ctx, os.Stdin, os.Stdout)
}

// MCPServer returns the underlying server for testing or custom transports.
func (s *MCPServer) MCPServer() *mcpserver.MCPServer {
	return s.mcpServer
}

func (s *MCPServer) tools() []mcpserver.ServerTool {
	acts := s.dispatcher.Registry().List()
	tools := make([]mcpserver.ServerTool, 0, len(acts))
	for _, a := range acts {
		inputSchema := a.InputSchema()
		if len(inputSchema) == 0 {
			inputSchema = json.RawMessage(emptyObjectSchema)
		}
		tool := mcp.NewToolWithRawSchema(a.Name(), a.Description(), inputSchema)
		tools = append(tools, mcpserver.ServerTool{
			Tool:    tool,
			Handler: s.handler(a.Name()),
		})
	}
	return tools
}

func (s *MCPServer) handler(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		params := action.Input(req.GetArguments())

		env := s.dispatcher.ActSystem(ctx, name, params)
		if env.IsError() {
			b, err := json.Marshal(env.Err)
			if err != nil {
				return mcp.NewToolResultError(env.Err.Message), nil
			}
			return mcp.NewToolResultError(string(b)), nil
		}

		b, err := json.Marshal(env.Response)
		if err != nil {
			return mcp.NewToolResultError("failed to encode result: " + err.Error()), nil
		}
		return mcp.NewToolResultText(string(b)), nil
	}
}
