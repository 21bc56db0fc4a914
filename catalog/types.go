package catalog

import (
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/halderavik/cbc-design-MCP/constraints"
	"github.com/halderavik/cbc-design-MCP/design"
)

var (
	// ErrStudyNotFound is returned when no study has the requested ID
	ErrStudyNotFound = errors.New("study not found")

	// ErrStudyExists is returned when adding a study whose ID is taken
	ErrStudyExists = errors.New("study already exists")
)

// Defaults are the generation settings a study applies when a request
// leaves them out
type Defaults struct {
	Method           design.Method `json:"method,omitempty" yaml:"method,omitempty"`
	OptionsPerScreen int           `json:"options_per_screen,omitempty" yaml:"options_per_screen,omitempty"`
	NumScreens       int           `json:"num_screens,omitempty" yaml:"num_screens,omitempty"`
}

// Study is a saved grid and constraint set callers can generate from
// repeatedly. Designs themselves are never stored.
type Study struct {
	ID          string                    `json:"id"`
	Name        string                    `json:"name"`
	Grid        design.Grid               `json:"grid"`
	Constraints constraints.ConstraintSet `json:"constraints"`
	Defaults    Defaults                  `json:"defaults"`
	Active      bool                      `json:"active"`
	CreatedAt   time.Time                 `json:"created_at"`
	UpdatedAt   time.Time                 `json:"updated_at"`
}

// NewStudy returns an active study with a fresh ID
func NewStudy(name string, g design.Grid, cs constraints.ConstraintSet, d Defaults) *Study {
	return &Study{
		ID:          uuid.NewString(),
		Name:        name,
		Grid:        g,
		Constraints: cs,
		Defaults:    d,
		Active:      true,
	}
}

// Clone returns a copy sharing no grid slices with s. Custom rule
// predicates are shared; they are never persisted anyway.
func (s *Study) Clone() *Study {
	c := *s
	c.Grid = s.Grid.Clone()
	c.Constraints = cloneConstraints(s.Constraints)
	return &c
}

func cloneConstraints(cs constraints.ConstraintSet) constraints.ConstraintSet {
	out := constraints.ConstraintSet{
		Prohibited:  make([]constraints.Prohibited, len(cs.Prohibited)),
		Required:    make([]constraints.Required, len(cs.Required)),
		Balance:     append([]constraints.LevelBalance(nil), cs.Balance...),
		CustomRules: append([]constraints.CustomRule(nil), cs.CustomRules...),
	}
	for i, p := range cs.Prohibited {
		out.Prohibited[i] = constraints.Prohibited{Levels: cloneAssignment(p.Levels), Reason: p.Reason}
	}
	for i, r := range cs.Required {
		out.Required[i] = constraints.Required{When: cloneAssignment(r.When), Then: cloneAssignment(r.Then), Reason: r.Reason}
	}
	return out
}

func cloneAssignment(a constraints.Assignment) constraints.Assignment {
	if a == nil {
		return nil
	}
	c := make(constraints.Assignment, len(a))
	for k, v := range a {
		c[k] = v
	}
	return c
}
