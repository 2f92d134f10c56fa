package tools

import "github.com/mark3labs/mcp-go/mcp"

const (
	GetCaseTool     = "workzone_get_case"
	CreateCaseTool  = "workzone_create_case"
	UpdateCaseTool  = "workzone_update_case"
	SearchCasesTool = "workzone_search_cases"
)

var (
	getCaseDef = mcp.NewTool(GetCaseTool,
		mcp.WithDescription("Get a case by ID from Workzone"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("caseId", mcp.Required(), mcp.Description("The ID of the case to retrieve")),
	)

	createCaseDef = mcp.NewTool(CreateCaseTool,
		mcp.WithDescription("Create a new case in Workzone"),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("title", mcp.Required(), mcp.Description("Title of the case")),
		mcp.WithString("description", mcp.Description("Description of the case")),
		mcp.WithString("caseType", mcp.Description("Type of the case")),
	)

	updateCaseDef = mcp.NewTool(UpdateCaseTool,
		mcp.WithDescription("Update an existing case in Workzone"),
		mcp.WithIdempotentHintAnnotation(true),
		mcp.WithString("caseId", mcp.Required(), mcp.Description("The ID of the case to update")),
		mcp.WithString("title", mcp.Description("New title")),
		mcp.WithString("description", mcp.Description("New description")),
		mcp.WithString("status", mcp.Description("New status")),
	)

	searchCasesDef = mcp.NewTool(SearchCasesTool,
		mcp.WithDescription("Search for cases in Workzone"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithDestructiveHintAnnotation(false),
		mcp.WithString("query", mcp.Required(), mcp.Description("Search query")),
	)
)
