// Package api holds the request and response shapes shared by the HTTP,
// MCP and CLI surfaces, and the operations that need more than one
// engine call.
package api

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/halderavik/cbc-design-MCP/catalog"
	"github.com/halderavik/cbc-design-MCP/constraints"
	"github.com/halderavik/cbc-design-MCP/design"
	"github.com/halderavik/cbc-design-MCP/engine"
	"github.com/halderavik/cbc-design-MCP/export"
	"github.com/halderavik/cbc-design-MCP/generator"
)

// ErrInvalidParams is returned when a request fails field validation
var ErrInvalidParams = errors.New("invalid parameters")

var validate *validator.Validate

func init() {
	validate = validator.New()
}

// Check runs the struct's validate tags
func Check(v any) error {
	if err := validate.Struct(v); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s failed %s", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("%w: %s", ErrInvalidParams, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidParams, err)
	}
	return nil
}

// GenerateParams is the wire form of a generate request
type GenerateParams struct {
	Method           string                    `json:"method,omitempty" yaml:"method,omitempty" jsonschema:"random, balanced, orthogonal or doptimal (default random)"`
	Grid             design.Grid               `json:"grid" yaml:"grid" jsonschema:"Attributes and their levels"`
	OptionsPerScreen int                       `json:"options_per_screen" yaml:"options_per_screen" validate:"gte=2,lte=20" jsonschema:"Options shown on each screen"`
	NumScreens       int                       `json:"num_screens" yaml:"num_screens" validate:"gte=1,lte=1000" jsonschema:"Number of choice tasks"`
	Constraints      constraints.ConstraintSet `json:"constraints,omitempty" yaml:"constraints,omitempty" jsonschema:"Prohibited, required, balance and custom rules"`
	Seed             *int64                    `json:"seed,omitempty" yaml:"seed,omitempty" jsonschema:"RNG seed for reproducible designs"`
	Strict           bool                      `json:"strict,omitempty" yaml:"strict,omitempty" jsonschema:"Fail instead of falling back to a simpler method"`
	AllowDuplicates  bool                      `json:"allow_duplicates,omitempty" yaml:"allow_duplicates,omitempty" jsonschema:"Allow identical options within a screen"`
	Anneal           *generator.AnnealParams   `json:"anneal,omitempty" yaml:"anneal,omitempty" jsonschema:"D-optimal search tuning"`
}

// Request converts the wire form for the engine
func (p GenerateParams) Request() engine.GenerateRequest {
	return engine.GenerateRequest{
		Method:           design.Method(p.Method),
		Grid:             p.Grid,
		OptionsPerScreen: p.OptionsPerScreen,
		NumScreens:       p.NumScreens,
		Constraints:      p.Constraints,
		Seed:             p.Seed,
		Strict:           p.Strict,
		AllowDuplicates:  p.AllowDuplicates,
		Anneal:           p.Anneal,
	}
}

// ValidateParams checks an externally produced design
type ValidateParams struct {
	Tasks       []design.ChoiceTask       `json:"tasks" yaml:"tasks" validate:"required,min=1" jsonschema:"The choice tasks to check"`
	Grid        design.Grid               `json:"grid" yaml:"grid" jsonschema:"Attributes and their levels"`
	Constraints constraints.ConstraintSet `json:"constraints,omitempty" yaml:"constraints,omitempty" jsonschema:"Rules to check against"`
}

// Design wraps the tasks for the engine
func (p ValidateParams) Design() design.Design {
	return design.Design{Tasks: p.Tasks}
}

// EvaluateParams scores an externally produced design
type EvaluateParams struct {
	Tasks []design.ChoiceTask `json:"tasks" yaml:"tasks" validate:"required,min=1" jsonschema:"The choice tasks to score"`
	Grid  design.Grid         `json:"grid" yaml:"grid" jsonschema:"Attributes and their levels"`
}

// ExportParams regenerates a design and renders it
type ExportParams struct {
	DesignRequest   GenerateParams `json:"design_request" yaml:"design_request" jsonschema:"The design to generate and export"`
	Format          string         `json:"format,omitempty" yaml:"format,omitempty" jsonschema:"csv (default), json or qualtrics"`
	IncludeMetadata *bool          `json:"include_metadata,omitempty" yaml:"include_metadata,omitempty" jsonschema:"Write a metadata header (default true)"`
	Respondents     int            `json:"respondents,omitempty" yaml:"respondents,omitempty" validate:"gte=0,lte=100000" jsonschema:"Repeat the CSV once per respondent"`
}

// ExportResult carries the rendered content with its summary
type ExportResult struct {
	Content    string             `json:"content"`
	Format     export.Format      `json:"format"`
	Summary    export.Summary     `json:"summary"`
	Validation constraints.Report `json:"validation"`
}

// Export generates the requested design and renders it
func Export(ctx context.Context, svc *engine.Service, p ExportParams) (ExportResult, error) {
	if err := Check(p); err != nil {
		return ExportResult{}, err
	}
	format, err := export.ParseFormat(p.Format)
	if err != nil {
		return ExportResult{}, err
	}

	resp, err := svc.Generate(ctx, p.DesignRequest.Request())
	if err != nil {
		return ExportResult{}, err
	}
	return Render(resp, p.DesignRequest.Grid, format, p.IncludeMetadata == nil || *p.IncludeMetadata, p.Respondents)
}

// Render formats an already generated design
func Render(resp engine.GenerateResponse, g design.Grid, format export.Format, metadata bool, respondents int) (ExportResult, error) {
	content, err := export.RenderString(resp.Design, format, export.Options{
		IncludeMetadata: metadata,
		Respondents:     respondents,
		Grid:            &g,
	})
	if err != nil {
		return ExportResult{}, err
	}
	return ExportResult{
		Content:    content,
		Format:     format,
		Summary:    export.Summarize(resp.Design, &g),
		Validation: resp.Validation,
	}, nil
}

// IsInvalidInput extends engine.IsInvalidInput with the wire-level errors
func IsInvalidInput(err error) bool {
	return engine.IsInvalidInput(err) ||
		errors.Is(err, ErrInvalidParams) ||
		errors.Is(err, export.ErrUnsupportedFormat) ||
		errors.Is(err, catalog.ErrInvalidStudy)
}
