package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/workzone/workzone-mcp/internal/config"
	"github.com/workzone/workzone-mcp/internal/tools"
)

// newMCPHandler exposes the tool registry as MCP over streamable HTTP.
func newMCPHandler(reg *tools.Registry) http.Handler {
	s := mcpserver.NewMCPServer(config.DefaultMCPName, config.Version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithRecovery(),
	)
	for _, t := range reg.Tools() {
		s.AddTool(t.Definition, toolHandler(reg, t.Name()))
	}
	return mcpserver.NewStreamableHTTPServer(s)
}

func toolHandler(reg *tools.Registry, name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		payload, err := reg.Call(ctx, name, req.GetArguments())
		if err != nil {
			return mcp.NewToolResultError("Error: " + err.Error()), nil
		}
		text, err := json.Marshal(payload)
		if err != nil {
			return mcp.NewToolResultError("Error: " + err.Error()), nil
		}
		return mcp.NewToolResultText(string(text)), nil
	}
}
