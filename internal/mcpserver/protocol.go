package mcpserver

import (
	"bytes"
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

// errNotInitialized is returned for tool methods before the handshake.
const errNotInitialized = -32002

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// isNotification reports whether the message carries no id. An explicit
// null id is still a request.
func (r *request) isNotification() bool {
	return len(r.ID) == 0
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func resultResponse(id json.RawMessage, result any) *response {
	return &response{JSONRPC: mcp.JSONRPC_VERSION, ID: id, Result: result}
}

func errorResponse(id json.RawMessage, code int, msg string) *response {
	return &response{JSONRPC: mcp.JSONRPC_VERSION, ID: id, Error: &rpcError{Code: code, Message: msg}}
}

type callParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

// toolResult always carries isError, unlike mcp.CallToolResult which
// omits it when false.
type toolResult struct {
	Content []textContent `json:"content"`
	IsError bool          `json:"isError"`
}

func textResult(text string, isError bool) toolResult {
	return toolResult{
		Content: []textContent{{Type: "text", Text: text}},
		IsError: isError,
	}
}

type listToolsResult struct {
	Tools []mcp.Tool `json:"tools"`
}

type listResourcesResult struct {
	Resources []mcp.Resource `json:"resources"`
}

type listPromptsResult struct {
	Prompts []mcp.Prompt `json:"prompts"`
}

// negotiateVersion echoes the client's protocol version when it is one we
// know, otherwise offers the latest.
func negotiateVersion(requested string) string {
	for _, v := range mcp.ValidProtocolVersions {
		if v == requested {
			return v
		}
	}
	return mcp.LATEST_PROTOCOL_VERSION
}

func isJSONObject(b []byte) bool {
	b = bytes.TrimSpace(b)
	return len(b) > 0 && b[0] == '{'
}
