package tools

import (
	"context"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/rs/zerolog/log"

	"github.com/workzone/workzone-mcp/internal/metrics"
	"github.com/workzone/workzone-mcp/internal/models"
	"github.com/workzone/workzone-mcp/internal/security"
	"github.com/workzone/workzone-mcp/internal/workzone"
)

// Registry is the immutable tool table. The catalog order is fixed.
type Registry struct {
	tools   []Tool
	byName  map[string]Tool
	metrics *metrics.Metrics
	audit   *security.AuditLogger
}

// Option configures a Registry.
type Option func(*Registry)

// WithMetrics counts tool calls and their latency.
func WithMetrics(m *metrics.Metrics) Option {
	return func(r *Registry) { r.metrics = m }
}

// WithAudit records every call in the audit log.
func WithAudit(a *security.AuditLogger) Option {
	return func(r *Registry) { r.audit = a }
}

func NewRegistry(svc CaseService, opts ...Option) *Registry {
	r := &Registry{
		tools: []Tool{
			{Definition: getCaseDef, Execute: getCase(svc)},
			{Definition: createCaseDef, Execute: createCase(svc)},
			{Definition: updateCaseDef, Execute: updateCase(svc)},
			{Definition: searchCasesDef, Execute: searchCases(svc)},
		},
	}
	r.byName = make(map[string]Tool, len(r.tools))
	for _, t := range r.tools {
		r.byName[t.Name()] = t
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Definitions returns the catalog in its fixed order.
func (r *Registry) Definitions() []mcp.Tool {
	defs := make([]mcp.Tool, len(r.tools))
	for i, t := range r.tools {
		defs[i] = t.Definition
	}
	return defs
}

// Tools returns the registered tools in catalog order.
func (r *Registry) Tools() []Tool {
	return append([]Tool(nil), r.tools...)
}

// Call validates args against the tool's required parameters and runs it.
// The returned payload is ready to be encoded as the tool's JSON text.
func (r *Registry) Call(ctx context.Context, name string, args map[string]any) (payload any, err error) {
	start := time.Now()
	defer func() {
		d := time.Since(start)
		label := name
		if _, known := r.byName[name]; !known {
			label = metrics.UnknownLabel
		}
		r.metrics.ObserveToolCall(label, err != nil, d)
		r.audit.LogToolCall(name, args, d, err)
	}()

	t, ok := r.byName[name]
	if !ok {
		return nil, &UnknownToolError{Name: name}
	}
	if err := checkRequired(t.Required(), args); err != nil {
		return nil, err
	}

	log.Info().Str("tool", name).Msg("Tool call")
	return t.Execute(ctx, args)
}

func checkRequired(required []string, args map[string]any) error {
	for _, p := range required {
		if v, ok := args[p]; !ok || v == nil {
			return &MissingParameterError{Param: p}
		}
	}
	return nil
}

func getCase(svc CaseService) func(context.Context, map[string]any) (any, error) {
	return func(ctx context.Context, args map[string]any) (any, error) {
		var in getCaseArgs
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		data, err := svc.GetCase(ctx, in.CaseID)
		if err != nil {
			return nil, err
		}
		return GetCasePayload{Success: true, Data: data}, nil
	}
}

func createCase(svc CaseService) func(context.Context, map[string]any) (any, error) {
	return func(ctx context.Context, args map[string]any) (any, error) {
		var in createCaseArgs
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		id, err := svc.CreateCase(ctx, workzone.CaseInput{
			Title:       in.Title,
			Description: in.Description,
			CaseType:    in.CaseType,
		})
		if err != nil {
			return nil, err
		}
		return models.CaseCreatedResponse{
			Success: true,
			CaseID:  id,
			Message: "Case created successfully",
		}, nil
	}
}

func updateCase(svc CaseService) func(context.Context, map[string]any) (any, error) {
	return func(ctx context.Context, args map[string]any) (any, error) {
		var in updateCaseArgs
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		ok, err := svc.UpdateCase(ctx, in.CaseID, workzone.CaseUpdate{
			Title:       in.Title,
			Description: in.Description,
			Status:      in.Status,
		})
		if err != nil {
			return nil, err
		}
		return UpdateResult(ok), nil
	}
}

func searchCases(svc CaseService) func(context.Context, map[string]any) (any, error) {
	return func(ctx context.Context, args map[string]any) (any, error) {
		var in searchCasesArgs
		if err := decodeArgs(args, &in); err != nil {
			return nil, err
		}
		cases, err := svc.SearchCases(ctx, in.Query)
		if err != nil {
			return nil, err
		}
		return SearchResult(cases), nil
	}
}

// UpdateResult builds the update payload shared by the tool and REST surfaces.
func UpdateResult(ok bool) models.CaseResultResponse {
	msg := "Update failed"
	if ok {
		msg = "Case updated successfully"
	}
	return models.CaseResultResponse{Success: ok, Message: msg}
}

// SearchResult builds the search payload; cases is never encoded as null.
func SearchResult(cases []models.Value) models.CaseSearchResponse {
	if cases == nil {
		cases = []models.Value{}
	}
	return models.CaseSearchResponse{Success: true, Cases: cases, Count: len(cases)}
}

