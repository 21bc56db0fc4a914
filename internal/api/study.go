package api

import (
	"context"
	"errors"

	"github.com/halderavik/cbc-design-MCP/catalog"
	"github.com/halderavik/cbc-design-MCP/constraints"
	"github.com/halderavik/cbc-design-MCP/design"
	"github.com/halderavik/cbc-design-MCP/engine"
)

// StudyParams creates or replaces a saved study
type StudyParams struct {
	Name        string                    `json:"name" yaml:"name" validate:"required,max=200" jsonschema:"Display name of the study"`
	Grid        design.Grid               `json:"grid" yaml:"grid" jsonschema:"Attributes and their levels"`
	Constraints constraints.ConstraintSet `json:"constraints,omitempty" yaml:"constraints,omitempty" jsonschema:"Rules every design of the study must follow"`
	Defaults    catalog.Defaults          `json:"defaults,omitempty" yaml:"defaults,omitempty" jsonschema:"Method and sizes used when a generate call leaves them out"`
	Active      *bool                     `json:"active,omitempty" yaml:"active,omitempty" jsonschema:"Inactive studies refuse generation (default true)"`
}

// Study builds a new catalog entry
func (p StudyParams) Study() *catalog.Study {
	s := catalog.NewStudy(p.Name, p.Grid, p.Constraints, p.Defaults)
	if p.Active != nil {
		s.Active = *p.Active
	}
	return s
}

// Apply copies the params onto an existing study, keeping its identity
func (p StudyParams) Apply(s *catalog.Study) {
	s.Name = p.Name
	s.Grid = p.Grid
	s.Constraints = p.Constraints
	s.Defaults = p.Defaults
	if p.Active != nil {
		s.Active = *p.Active
	}
}

// StudyGenerateParams generates from a saved study. Zero fields fall back
// to the study defaults.
type StudyGenerateParams struct {
	StudyID          string `json:"study_id" yaml:"study_id" validate:"required" jsonschema:"ID of the saved study"`
	Method           string `json:"method,omitempty" yaml:"method,omitempty" jsonschema:"Overrides the study's default method"`
	OptionsPerScreen int    `json:"options_per_screen,omitempty" yaml:"options_per_screen,omitempty" validate:"omitempty,gte=2,lte=20" jsonschema:"Overrides the study's options per screen"`
	NumScreens       int    `json:"num_screens,omitempty" yaml:"num_screens,omitempty" validate:"omitempty,gte=1,lte=1000" jsonschema:"Overrides the study's number of screens"`
	Seed             *int64 `json:"seed,omitempty" yaml:"seed,omitempty" jsonschema:"RNG seed for reproducible designs"`
	Strict           bool   `json:"strict,omitempty" yaml:"strict,omitempty" jsonschema:"Fail instead of falling back to a simpler method"`
	AllowDuplicates  bool   `json:"allow_duplicates,omitempty" yaml:"allow_duplicates,omitempty" jsonschema:"Allow identical options within a screen"`
}

// GenerateFromStudy runs a generation against a study's cached rules
func GenerateFromStudy(ctx context.Context, svc *engine.Service, cat *catalog.Catalog, p StudyGenerateParams) (engine.GenerateResponse, error) {
	if err := Check(p); err != nil {
		return engine.GenerateResponse{}, err
	}
	req, rules, err := cat.Request(p.StudyID, engine.GenerateRequest{
		Method:           design.Method(p.Method),
		OptionsPerScreen: p.OptionsPerScreen,
		NumScreens:       p.NumScreens,
		Seed:             p.Seed,
		Strict:           p.Strict,
		AllowDuplicates:  p.AllowDuplicates,
	})
	if err != nil {
		return engine.GenerateResponse{}, err
	}
	return svc.GenerateCompiled(ctx, req, rules)
}

// IsNotFound reports whether err means the study does not exist
func IsNotFound(err error) bool {
	return errors.Is(err, catalog.ErrStudyNotFound)
}

// IsConflict reports whether err means the request clashes with stored state
func IsConflict(err error) bool {
	return errors.Is(err, catalog.ErrStudyExists) || errors.Is(err, catalog.ErrStudyInactive)
}
