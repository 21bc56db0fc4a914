package mcptools

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/halderavik/cbc-design-MCP/catalog"
	"github.com/halderavik/cbc-design-MCP/engine"
	"github.com/halderavik/cbc-design-MCP/internal/api"
	"github.com/halderavik/cbc-design-MCP/power"
)

// DesignTools holds the handlers that work on request-supplied grids
type DesignTools struct {
	Service *engine.Service
	Logger  *slog.Logger
}

// StudyTools holds the handlers backed by the study catalog
type StudyTools struct {
	Service *engine.Service
	Catalog *catalog.Catalog
}

// --- Input types ---

type ListStudiesInput struct{}

// --- Design handlers ---

func (t *DesignTools) GenerateDesign(ctx context.Context, _ *mcp.CallToolRequest, input api.GenerateParams) (*mcp.CallToolResult, any, error) {
	if err := api.Check(input); err != nil {
		return toolError("%v", err), nil, nil
	}
	resp, err := t.Service.Generate(ctx, input.Request())
	if err != nil {
		return toolError("Failed to generate design: %v", err), nil, nil
	}
	return toolJSON(resp)
}

func (t *DesignTools) OptimizeParameters(ctx context.Context, _ *mcp.CallToolRequest, input power.Request) (*mcp.CallToolResult, any, error) {
	res, err := t.Service.Optimize(ctx, input)
	if err != nil {
		return toolError("Failed to optimize parameters: %v", err), nil, nil
	}
	return toolJSON(res)
}

func (t *DesignTools) ValidateDesign(ctx context.Context, _ *mcp.CallToolRequest, input api.ValidateParams) (*mcp.CallToolResult, any, error) {
	if err := api.Check(input); err != nil {
		return toolError("%v", err), nil, nil
	}
	rep, err := t.Service.Validate(ctx, input.Design(), input.Grid, input.Constraints)
	if err != nil {
		return toolError("Failed to validate design: %v", err), nil, nil
	}
	return toolJSON(rep)
}

func (t *DesignTools) EvaluateDesign(ctx context.Context, _ *mcp.CallToolRequest, input api.EvaluateParams) (*mcp.CallToolResult, any, error) {
	if err := api.Check(input); err != nil {
		return toolError("%v", err), nil, nil
	}
	rep, err := t.Service.Evaluate(ctx, api.ValidateParams{Tasks: input.Tasks}.Design(), input.Grid)
	if err != nil {
		return toolError("Failed to evaluate design: %v", err), nil, nil
	}
	return toolJSON(rep)
}

func (t *DesignTools) ExportDesign(ctx context.Context, _ *mcp.CallToolRequest, input api.ExportParams) (*mcp.CallToolResult, any, error) {
	res, err := api.Export(ctx, t.Service, input)
	if err != nil {
		return toolError("Failed to export design: %v", err), nil, nil
	}
	t.Logger.Debug("design exported", "format", res.Format, "tasks", res.Summary.TotalTasks)
	return toolJSON(res)
}

// --- Study handlers ---

func (t *StudyTools) ListStudies(_ context.Context, _ *mcp.CallToolRequest, _ ListStudiesInput) (*mcp.CallToolResult, any, error) {
	studies, err := t.Catalog.ListActive()
	if err != nil {
		return toolError("Failed to list studies: %v", err), nil, nil
	}
	if len(studies) == 0 {
		return toolText("No active studies."), nil, nil
	}
	return toolJSON(studies)
}

func (t *StudyTools) CreateStudy(_ context.Context, _ *mcp.CallToolRequest, input api.StudyParams) (*mcp.CallToolResult, any, error) {
	if err := api.Check(input); err != nil {
		return toolError("%v", err), nil, nil
	}
	s := input.Study()
	if err := t.Catalog.Add(s); err != nil {
		return toolError("Failed to create study: %v", err), nil, nil
	}
	return toolJSON(s)
}

func (t *StudyTools) GenerateFromStudy(ctx context.Context, _ *mcp.CallToolRequest, input api.StudyGenerateParams) (*mcp.CallToolResult, any, error) {
	resp, err := api.GenerateFromStudy(ctx, t.Service, t.Catalog, input)
	if err != nil {
		return toolError("Failed to generate from study %q: %v", input.StudyID, err), nil, nil
	}
	return toolJSON(resp)
}

// --- Helpers ---

func toolText(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func toolError(format string, args ...any) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: fmt.Sprintf(format, args...)}},
		IsError: true,
	}
}

func toolJSON(v any) (*mcp.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return toolError("Failed to encode result: %v", err), nil, nil
	}
	return toolText(string(data)), nil, nil
}
