// Package mcpserver implements the stdio MCP server: a JSON-RPC dispatcher
// for the Workzone tool catalog and the framed transport loop around it.
package mcpserver

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"

	"github.com/workzone/workzone-mcp/internal/metrics"
)

// State of an MCP session.
type State int

const (
	StateUninitialized State = iota
	StateReady
	StateDispatching
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateReady:
		return "ready"
	case StateDispatching:
		return "dispatching"
	case StateClosed:
		return "closed"
	default:
		return "uninitialized"
	}
}

// Catalog is the tool table the dispatcher serves.
type Catalog interface {
	Definitions() []mcp.Tool
	Call(ctx context.Context, name string, args map[string]any) (any, error)
}

// Dispatcher routes JSON-RPC messages of one session. It never returns a
// tool failure as an RPC error; those become error tool results.
type Dispatcher struct {
	catalog Catalog
	info    mcp.Implementation
	metrics *metrics.Metrics

	mu    sync.Mutex
	state State
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithMetrics counts handled JSON-RPC methods.
func WithMetrics(m *metrics.Metrics) DispatcherOption {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(catalog Catalog, name, version string, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		catalog: catalog,
		info:    mcp.Implementation{Name: name, Version: version},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

func (d *Dispatcher) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Close moves the session to its terminal state.
func (d *Dispatcher) Close() {
	d.setState(StateClosed)
}

func (d *Dispatcher) setState(s State) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateClosed {
		d.state = s
	}
}

// Handle processes one raw message and returns the encoded response, or
// nil when nothing must be sent back.
func (d *Dispatcher) Handle(ctx context.Context, msg []byte) []byte {
	resp := d.handle(ctx, msg)
	if resp == nil {
		return nil
	}
	b, err := json.Marshal(resp)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode JSON-RPC response")
		b, _ = json.Marshal(errorResponse(resp.ID, mcp.INTERNAL_ERROR, "failed to encode response"))
	}
	return b
}

func (d *Dispatcher) handle(ctx context.Context, msg []byte) *response {
	if !json.Valid(msg) {
		return parseError()
	}
	if !isJSONObject(msg) {
		return errorResponse(nil, mcp.INVALID_REQUEST, "request must be a JSON object")
	}

	var req request
	if err := json.Unmarshal(msg, &req); err != nil {
		return errorResponse(nil, mcp.INVALID_REQUEST, fmt.Sprintf("invalid request: %v", err))
	}
	if req.Method == "" {
		if req.isNotification() {
			return nil
		}
		return errorResponse(req.ID, mcp.INVALID_REQUEST, "missing method")
	}

	state := d.State()
	if state == StateClosed {
		return nil
	}
	d.metrics.ObserveRPC(methodLabel(req.Method))

	if req.isNotification() {
		log.Debug().Str("method", req.Method).Msg("MCP notification received")
		return nil
	}

	switch mcp.MCPMethod(req.Method) {
	case mcp.MethodInitialize:
		return d.initialize(req)
	case mcp.MethodPing:
		return resultResponse(req.ID, struct{}{})
	case mcp.MethodToolsList:
		if state == StateUninitialized {
			return errorResponse(req.ID, errNotInitialized, "server not initialized")
		}
		log.Info().Msg("MCP Tools list request received")
		return resultResponse(req.ID, listToolsResult{Tools: d.catalog.Definitions()})
	case mcp.MethodToolsCall:
		if state == StateUninitialized {
			return errorResponse(req.ID, errNotInitialized, "server not initialized")
		}
		return d.callTool(ctx, req)
	case mcp.MethodResourcesList:
		return resultResponse(req.ID, listResourcesResult{Resources: []mcp.Resource{}})
	case mcp.MethodPromptsList:
		return resultResponse(req.ID, listPromptsResult{Prompts: []mcp.Prompt{}})
	default:
		return errorResponse(req.ID, mcp.METHOD_NOT_FOUND, fmt.Sprintf("method not found: %s", req.Method))
	}
}

func (d *Dispatcher) initialize(req request) *response {
	var params mcp.InitializeParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			return errorResponse(req.ID, mcp.INVALID_PARAMS, fmt.Sprintf("invalid initialize params: %v", err))
		}
	}
	log.Info().
		Str("client", params.ClientInfo.Name).
		Str("protocol_version", params.ProtocolVersion).
		Msg("MCP Initialize request received")

	d.setState(StateReady)

	result := mcp.InitializeResult{
		ProtocolVersion: negotiateVersion(params.ProtocolVersion),
		ServerInfo:      d.info,
	}
	result.Capabilities.Tools = &struct {
		ListChanged bool `json:"listChanged,omitempty"`
	}{}
	return resultResponse(req.ID, result)
}

func (d *Dispatcher) callTool(ctx context.Context, req request) *response {
	var params callParams
	if len(req.Params) == 0 {
		return errorResponse(req.ID, mcp.INVALID_PARAMS, "missing tools/call params")
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errorResponse(req.ID, mcp.INVALID_PARAMS, fmt.Sprintf("invalid tools/call params: %v", err))
	}

	log.Info().Str("tool", params.Name).Msg("MCP Tool call request")

	d.setState(StateDispatching)
	defer d.setState(StateReady)

	return resultResponse(req.ID, d.invoke(ctx, params))
}

// invoke runs the tool and folds every outcome, panics included, into a
// tool result.
func (d *Dispatcher) invoke(ctx context.Context, params callParams) (result toolResult) {
	defer func() {
		if r := recover(); r != nil {
			log.Error().Interface("panic", r).Str("tool", params.Name).Msg("Recovered from panic in tool call")
			result = textResult(fmt.Sprintf("Error: internal error: %v", r), true)
		}
	}()

	payload, err := d.catalog.Call(ctx, params.Name, params.Arguments)
	if err != nil {
		log.Error().Err(err).Str("tool", params.Name).Msg("Error calling tool")
		return textResult("Error: "+err.Error(), true)
	}

	text, err := json.Marshal(payload)
	if err != nil {
		log.Error().Err(err).Str("tool", params.Name).Msg("Failed to encode tool payload")
		return textResult("Error: "+err.Error(), true)
	}
	return textResult(string(text), false)
}

func parseError() *response {
	return errorResponse(nil, mcp.PARSE_ERROR, "Parse error")
}

var knownMethods = map[string]bool{
	string(mcp.MethodInitialize):    true,
	string(mcp.MethodPing):          true,
	string(mcp.MethodToolsList):     true,
	string(mcp.MethodToolsCall):     true,
	string(mcp.MethodResourcesList): true,
	string(mcp.MethodPromptsList):   true,
	"notifications/initialized":     true,
	"notifications/cancelled":       true,
}

// methodLabel keeps the rpc metric's label set bounded.
func methodLabel(method string) string {
	if knownMethods[method] {
		return method
	}
	return metrics.UnknownLabel
}
