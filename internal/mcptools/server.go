// Package mcptools exposes the design engine as MCP tools
package mcptools

import (
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/halderavik/cbc-design-MCP/catalog"
	"github.com/halderavik/cbc-design-MCP/engine"
)

// Version is reported to MCP clients during initialization
var Version = "0.1.0"

// New creates an MCP server with every tool registered. The study tools
// are only added when cat is non-nil.
func New(svc *engine.Service, cat *catalog.Catalog, logger *slog.Logger) *mcp.Server {
	if logger == nil {
		logger = slog.Default()
	}
	dt := &DesignTools{Service: svc, Logger: logger}

	srv := mcp.NewServer(&mcp.Implementation{
		Name:    "cbc-design",
		Version: Version,
	}, nil)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "generate_design",
		Description: "Generate a choice-based conjoint design (random, balanced, orthogonal or doptimal) under optional constraints",
	}, dt.GenerateDesign)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "optimize_parameters",
		Description: "Recommend respondents, screens and options per screen for a target statistical power",
	}, dt.OptimizeParameters)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "validate_design",
		Description: "Check a design against a grid and constraint set and report every violation",
	}, dt.ValidateDesign)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "evaluate_design",
		Description: "Score a design: D-efficiency, level balance and frequency tables",
	}, dt.EvaluateDesign)

	mcp.AddTool(srv, &mcp.Tool{
		Name:        "export_design",
		Description: "Generate a design and render it as csv, json or qualtrics",
	}, dt.ExportDesign)

	if cat != nil {
		st := &StudyTools{Service: svc, Catalog: cat}

		mcp.AddTool(srv, &mcp.Tool{
			Name:        "list_studies",
			Description: "List the saved studies that accept generation",
		}, st.ListStudies)

		mcp.AddTool(srv, &mcp.Tool{
			Name:        "create_study",
			Description: "Save a grid, constraint set and generation defaults as a reusable study",
		}, st.CreateStudy)

		mcp.AddTool(srv, &mcp.Tool{
			Name:        "generate_from_study",
			Description: "Generate a design from a saved study, overriding its defaults where given",
		}, st.GenerateFromStudy)
	}

	return srv
}
