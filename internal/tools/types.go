// Package tools defines the fixed Workzone tool catalog and dispatches
// tool calls to the case service.
package tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/workzone/workzone-mcp/internal/models"
	"github.com/workzone/workzone-mcp/internal/workzone"
)

// Tool pairs a catalog entry with the function that executes it.
type Tool struct {
	Definition mcp.Tool
	Execute    func(ctx context.Context, args map[string]any) (any, error)
}

// Name returns the catalog name of the tool.
func (t Tool) Name() string { return t.Definition.Name }

// Required lists the parameters a call must carry.
func (t Tool) Required() []string { return t.Definition.InputSchema.Required }

// CaseService is what the tools need from the Workzone facade.
type CaseService interface {
	GetCase(ctx context.Context, caseID string) (string, error)
	CreateCase(ctx context.Context, in workzone.CaseInput) (string, error)
	UpdateCase(ctx context.Context, caseID string, upd workzone.CaseUpdate) (bool, error)
	SearchCases(ctx context.Context, query string) ([]models.Value, error)
}

// UnknownToolError is returned for a name outside the catalog.
type UnknownToolError struct {
	Name string
}

func (e *UnknownToolError) Error() string {
	return fmt.Sprintf("Unknown tool: %s", e.Name)
}

// MissingParameterError is returned when a required argument is absent or null.
type MissingParameterError struct {
	Param string
}

func (e *MissingParameterError) Error() string {
	return fmt.Sprintf("Missing required parameter: %s", e.Param)
}

// GetCasePayload is the result of workzone_get_case. Data holds the case
// document as JSON text.
type GetCasePayload struct {
	Success bool   `json:"success"`
	Data    string `json:"data"`
}
