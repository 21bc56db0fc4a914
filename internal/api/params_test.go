package api

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/halderavik/cbc-design-MCP/constraints"
	"github.com/halderavik/cbc-design-MCP/design"
	"github.com/halderavik/cbc-design-MCP/engine"
	"github.com/halderavik/cbc-design-MCP/export"
)

func laptopGrid() design.Grid {
	return design.Grid{Attributes: []design.Attribute{
		{Name: "CPU", Levels: []string{"i5", "i7"}},
		{Name: "RAM", Levels: []string{"8GB", "16GB", "32GB"}},
		{Name: "Price", Levels: []string{"$999", "$1299"}},
	}}
}

func newService() *engine.Service {
	return engine.NewService(engine.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
}

func TestCheck(t *testing.T) {
	testCases := []struct {
		name    string
		params  any
		wantErr bool
	}{
		{"Valid generate", GenerateParams{Grid: laptopGrid(), OptionsPerScreen: 3, NumScreens: 6}, false},
		{"Too few options", GenerateParams{Grid: laptopGrid(), OptionsPerScreen: 1, NumScreens: 6}, true},
		{"No screens", GenerateParams{Grid: laptopGrid(), OptionsPerScreen: 3}, true},
		{"Empty tasks", ValidateParams{Grid: laptopGrid()}, true},
		{"Negative respondents", ExportParams{
			DesignRequest: GenerateParams{Grid: laptopGrid(), OptionsPerScreen: 3, NumScreens: 6},
			Respondents:   -1,
		}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := Check(tc.params)
			if tc.wantErr {
				if !errors.Is(err, ErrInvalidParams) {
					t.Fatalf("expected ErrInvalidParams, got %v", err)
				}
				if !IsInvalidInput(err) {
					t.Error("validation failure not classed as invalid input")
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		})
	}
}

func TestGenerateParams_Request(t *testing.T) {
	seed := int64(7)
	p := GenerateParams{
		Method:           "balanced",
		Grid:             laptopGrid(),
		OptionsPerScreen: 3,
		NumScreens:       6,
		Seed:             &seed,
		Strict:           true,
	}
	req := p.Request()
	if req.Method != design.MethodBalanced || !req.Strict || *req.Seed != 7 || req.NumScreens != 6 {
		t.Errorf("request not converted: %+v", req)
	}
}

func TestExport(t *testing.T) {
	seed := int64(11)
	noMeta := false
	p := ExportParams{
		DesignRequest: GenerateParams{
			Grid:             laptopGrid(),
			OptionsPerScreen: 2,
			NumScreens:       4,
			Seed:             &seed,
			Constraints: constraints.ConstraintSet{
				Prohibited: []constraints.Prohibited{
					{Levels: constraints.Assignment{"CPU": "i7", "Price": "$999"}},
				},
			},
		},
		Format:          "CSV",
		IncludeMetadata: &noMeta,
	}

	res, err := Export(context.Background(), newService(), p)
	if err != nil {
		t.Fatalf("Export failed: %v", err)
	}
	if res.Format != export.FormatCSV {
		t.Errorf("format = %q", res.Format)
	}
	lines := strings.Split(strings.TrimSpace(res.Content), "\n")
	if len(lines) != 9 {
		t.Fatalf("expected header plus 8 rows, got %d lines:\n%s", len(lines), res.Content)
	}
	if lines[0] != "Task_Index,Option_Index,CPU,RAM,Price" {
		t.Errorf("header = %q", lines[0])
	}
	if res.Summary.TotalTasks != 4 || res.Summary.TotalOptions != 8 {
		t.Errorf("summary = %+v", res.Summary)
	}
	if res.Validation.Count(constraints.KindProhibited) != 0 {
		t.Errorf("export contains prohibited options: %v", res.Validation)
	}
	for _, line := range lines[1:] {
		if strings.Contains(line, ",i7,") && strings.HasSuffix(line, ",$999") {
			t.Errorf("prohibited row exported: %q", line)
		}
	}
}

func TestExport_Errors(t *testing.T) {
	base := GenerateParams{Grid: laptopGrid(), OptionsPerScreen: 2, NumScreens: 4}

	testCases := []struct {
		name   string
		params ExportParams
		target error
	}{
		{"Unknown format", ExportParams{DesignRequest: base, Format: "xlsx"}, export.ErrUnsupportedFormat},
		{"Unknown method", ExportParams{DesignRequest: GenerateParams{
			Method: "fancy", Grid: laptopGrid(), OptionsPerScreen: 2, NumScreens: 4,
		}}, design.ErrUnknownMethod},
		{"Bad respondents", ExportParams{DesignRequest: base, Respondents: -3}, ErrInvalidParams},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Export(context.Background(), newService(), tc.params)
			if !errors.Is(err, tc.target) {
				t.Fatalf("expected %v, got %v", tc.target, err)
			}
			if !IsInvalidInput(err) {
				t.Errorf("%v not classed as invalid input", err)
			}
		})
	}
}
