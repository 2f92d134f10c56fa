package mcpserver_test

import (
	"context"
	"encoding/json"
	"strconv"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/workzone/workzone-mcp/internal/mcpserver"
	"github.com/workzone/workzone-mcp/internal/metrics"
	"github.com/workzone/workzone-mcp/internal/models"
	"github.com/workzone/workzone-mcp/internal/tools"
	"github.com/workzone/workzone-mcp/internal/workzone"
)

type stubService struct{}

func (stubService) GetCase(_ context.Context, id string) (string, error) {
	return `{"id":"` + id + `"}`, nil
}

func (stubService) CreateCase(context.Context, workzone.CaseInput) (string, error) {
	return "C-9", nil
}

func (stubService) UpdateCase(context.Context, string, workzone.CaseUpdate) (bool, error) {
	return true, nil
}

func (stubService) SearchCases(context.Context, string) ([]models.Value, error) {
	return nil, nil
}

type panickingCatalog struct{}

func (panickingCatalog) Definitions() []mcp.Tool { return nil }

func (panickingCatalog) Call(context.Context, string, map[string]any) (any, error) {
	panic("kaboom")
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  json.RawMessage `json:"result"`
	Error   *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

type callResult struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	IsError bool `json:"isError"`
}

func newDispatcher() *mcpserver.Dispatcher {
	return mcpserver.NewDispatcher(tools.NewRegistry(stubService{}), "workzone-mcp-server", "1.0.0")
}

func send(t *testing.T, d *mcpserver.Dispatcher, msg string) *rpcResponse {
	t.Helper()
	out := d.Handle(context.Background(), []byte(msg))
	if out == nil {
		return nil
	}
	var resp rpcResponse
	require.NoError(t, json.Unmarshal(out, &resp), string(out))
	assert.Equal(t, "2.0", resp.JSONRPC)
	return &resp
}

func initialize(t *testing.T, d *mcpserver.Dispatcher) {
	t.Helper()
	resp := send(t, d, `{"jsonrpc":"2.0","id":0,"method":"initialize","params":{"protocolVersion":"2024-11-05","clientInfo":{"name":"test","version":"1"}}}`)
	require.NotNil(t, resp)
	require.Nil(t, resp.Error)
}

func callTool(t *testing.T, d *mcpserver.Dispatcher, name string, args map[string]any) callResult {
	t.Helper()
	params, err := json.Marshal(map[string]any{"name": name, "arguments": args})
	require.NoError(t, err)
	resp := send(t, d, `{"jsonrpc":"2.0","id":7,"method":"tools/call","params":`+string(params)+`}`)
	require.NotNil(t, resp)
	require.Nil(t, resp.Error, "tool failures must not become RPC errors")

	var res callResult
	require.NoError(t, json.Unmarshal(resp.Result, &res))
	require.Len(t, res.Content, 1)
	assert.Equal(t, "text", res.Content[0].Type)
	return res
}

func TestToolMethodsRequireInitialize(t *testing.T) {
	d := newDispatcher()

	for _, msg := range []string{
		`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		`{"jsonrpc":"2.0","id":2,"method":"tools/call","params":{"name":"workzone_get_case","arguments":{"caseId":"C-1"}}}`,
	} {
		resp := send(t, d, msg)
		require.NotNil(t, resp.Error)
		assert.Equal(t, -32002, resp.Error.Code)
		assert.Equal(t, "server not initialized", resp.Error.Message)
	}
	assert.Equal(t, mcpserver.StateUninitialized, d.State())
}

func TestInitialize(t *testing.T) {
	tests := []struct {
		requested string
		want      string
	}{
		{"2024-11-05", "2024-11-05"},
		{"2025-03-26", "2025-03-26"},
		{"0.1.0", mcp.LATEST_PROTOCOL_VERSION},
		{"", mcp.LATEST_PROTOCOL_VERSION},
	}
	for _, tt := range tests {
		t.Run(tt.requested, func(t *testing.T) {
			d := newDispatcher()
			resp := send(t, d, `{"jsonrpc":"2.0","id":"init","method":"initialize","params":{"protocolVersion":"`+tt.requested+`"}}`)
			require.Nil(t, resp.Error)
			assert.JSONEq(t, `"init"`, string(resp.ID))

			var result map[string]any
			require.NoError(t, json.Unmarshal(resp.Result, &result))
			assert.Equal(t, tt.want, result["protocolVersion"])
			assert.Equal(t, map[string]any{"tools": map[string]any{}}, result["capabilities"])
			assert.Equal(t, map[string]any{"name": "workzone-mcp-server", "version": "1.0.0"}, result["serverInfo"])
			assert.Equal(t, mcpserver.StateReady, d.State())
		})
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	d := newDispatcher()
	initialize(t, d)
	initialize(t, d)
	assert.Equal(t, mcpserver.StateReady, d.State())
}

func TestToolsListAlwaysFour(t *testing.T) {
	d := newDispatcher()
	initialize(t, d)

	for i := 0; i < 3; i++ {
		resp := send(t, d, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
		require.Nil(t, resp.Error)
		var result struct {
			Tools []struct {
				Name        string         `json:"name"`
				Description string         `json:"description"`
				InputSchema map[string]any `json:"inputSchema"`
			} `json:"tools"`
		}
		require.NoError(t, json.Unmarshal(resp.Result, &result))
		require.Len(t, result.Tools, 4)
		assert.Equal(t, "workzone_get_case", result.Tools[0].Name)
		assert.Equal(t, []any{"caseId"}, result.Tools[0].InputSchema["required"])
		callTool(t, d, "workzone_get_case", map[string]any{"caseId": "C-1"})
	}
}

func TestToolCallSuccess(t *testing.T) {
	d := newDispatcher()
	initialize(t, d)

	res := callTool(t, d, "workzone_create_case", map[string]any{"title": "Printer"})
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"success":true,"caseId":"C-9","message":"Case created successfully"}`, res.Content[0].Text)
	assert.Equal(t, mcpserver.StateReady, d.State())
}

func TestIsErrorAlwaysSerialized(t *testing.T) {
	d := newDispatcher()
	initialize(t, d)

	out := d.Handle(context.Background(), []byte(`{"jsonrpc":"2.0","id":3,"method":"tools/call","params":{"name":"workzone_search_cases","arguments":{"query":"x"}}}`))
	assert.Contains(t, string(out), `"isError":false`)
}

func TestEmptySearch(t *testing.T) {
	d := newDispatcher()
	initialize(t, d)

	res := callTool(t, d, "workzone_search_cases", map[string]any{"query": "nothing"})
	assert.False(t, res.IsError)
	assert.JSONEq(t, `{"success":true,"cases":[],"count":0}`, res.Content[0].Text)
}

func TestMissingParameterKeepsSession(t *testing.T) {
	d := newDispatcher()
	initialize(t, d)

	res := callTool(t, d, "workzone_get_case", map[string]any{})
	assert.True(t, res.IsError)
	assert.Equal(t, "Error: Missing required parameter: caseId", res.Content[0].Text)

	res = callTool(t, d, "workzone_get_case", map[string]any{"caseId": "C-2"})
	assert.False(t, res.IsError)
}

func TestUnknownTool(t *testing.T) {
	d := newDispatcher()
	initialize(t, d)

	res := callTool(t, d, "workzone_delete_case", map[string]any{"caseId": "C-1"})
	assert.True(t, res.IsError)
	assert.Equal(t, "Error: Unknown tool: workzone_delete_case", res.Content[0].Text)
}

func TestPanicBecomesErrorResult(t *testing.T) {
	d := mcpserver.NewDispatcher(panickingCatalog{}, "workzone-mcp-server", "1.0.0")
	initialize(t, d)

	res := callTool(t, d, "anything", nil)
	assert.True(t, res.IsError)
	assert.Contains(t, res.Content[0].Text, "kaboom")
	assert.Equal(t, mcpserver.StateReady, d.State())
}

func TestNotificationsGetNoResponse(t *testing.T) {
	d := newDispatcher()
	assert.Nil(t, send(t, d, `{"jsonrpc":"2.0","method":"notifications/initialized"}`))
	assert.Nil(t, send(t, d, `{"jsonrpc":"2.0","method":"tools/list"}`))
}

func TestProtocolErrors(t *testing.T) {
	tests := []struct {
		name string
		msg  string
		code int
	}{
		{"unknown method", `{"jsonrpc":"2.0","id":1,"method":"sampling/createMessage"}`, -32601},
		{"bad call params", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":5}}`, -32602},
		{"missing call params", `{"jsonrpc":"2.0","id":1,"method":"tools/call"}`, -32602},
		{"arguments not an object", `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"workzone_get_case","arguments":[1]}}`, -32602},
		{"bad initialize params", `{"jsonrpc":"2.0","id":1,"method":"initialize","params":[]}`, -32602},
		{"not an object", `[1,2]`, -32600},
		{"missing method", `{"jsonrpc":"2.0","id":1}`, -32600},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := newDispatcher()
			initialize(t, d)
			resp := send(t, d, tt.msg)
			require.NotNil(t, resp)
			require.NotNil(t, resp.Error)
			assert.Equal(t, tt.code, resp.Error.Code)
		})
	}
}

func TestParseError(t *testing.T) {
	d := newDispatcher()

	resp := send(t, d, `{"jsonrpc":"2.0","id":1,`)
	require.NotNil(t, resp.Error)
	assert.Equal(t, -32700, resp.Error.Code)
	assert.Equal(t, "null", string(resp.ID))
}

func TestAuxiliaryMethods(t *testing.T) {
	d := newDispatcher()

	resp := send(t, d, `{"jsonrpc":"2.0","id":1,"method":"ping"}`)
	assert.JSONEq(t, `{}`, string(resp.Result))

	resp = send(t, d, `{"jsonrpc":"2.0","id":2,"method":"resources/list"}`)
	assert.JSONEq(t, `{"resources":[]}`, string(resp.Result))

	resp = send(t, d, `{"jsonrpc":"2.0","id":3,"method":"prompts/list"}`)
	assert.JSONEq(t, `{"prompts":[]}`, string(resp.Result))
}

func TestClosedSessionIgnoresMessages(t *testing.T) {
	d := newDispatcher()
	initialize(t, d)
	d.Close()

	assert.Nil(t, send(t, d, `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	assert.Equal(t, mcpserver.StateClosed, d.State())
}

func rpcMethodLabels(t *testing.T, reg *prometheus.Registry) map[string]float64 {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]float64)
	for _, f := range families {
		if f.GetName() != "workzone_mcp_rpc_requests_total" {
			continue
		}
		for _, m := range f.GetMetric() {
			for _, l := range m.GetLabel() {
				out[l.GetValue()] += m.GetCounter().GetValue()
			}
		}
	}
	return out
}

func TestRPCMetricCollapsesUnknownMethods(t *testing.T) {
	reg := prometheus.NewRegistry()
	d := mcpserver.NewDispatcher(tools.NewRegistry(stubService{}), "workzone-mcp-server", "1.0.0",
		mcpserver.WithMetrics(metrics.New(reg)))
	initialize(t, d)

	for i := 0; i < 3; i++ {
		resp := send(t, d, `{"jsonrpc":"2.0","id":1,"method":"made/up/`+strconv.Itoa(i)+`"}`)
		require.NotNil(t, resp.Error)
	}
	send(t, d, `{"jsonrpc":"2.0","id":2,"method":"tools/list"}`)

	labels := rpcMethodLabels(t, reg)
	assert.Equal(t, map[string]float64{
		"initialize": 1,
		"tools/list": 1,
		"unknown":    3,
	}, labels)
}
