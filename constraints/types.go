package constraints

import (
	"errors"

	"github.com/halderavik/cbc-design-MCP/design"
)

// ErrInvalidConstraint is returned when a constraint references an unknown
// attribute or level, or when the set contradicts itself
var ErrInvalidConstraint = errors.New("invalid constraint")

// Assignment is a partial option: attribute name -> level name
type Assignment map[string]string

// Prohibited lists attribute/level pairs that may never co-occur in one option
type Prohibited struct {
	Levels Assignment `json:"attributes" yaml:"attributes"`
	Reason string     `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// Required forces co-occurrence. With a When anchor, any option matching
// When must also match Then. Without one, Then must appear in at least one
// option of the design.
type Required struct {
	When   Assignment `json:"when,omitempty" yaml:"when,omitempty"`
	Then   Assignment `json:"then" yaml:"then"`
	Reason string     `json:"reason,omitempty" yaml:"reason,omitempty"`
}

// LevelBalance bounds how often each level of one attribute may occur
// across the whole design. Tolerance is a fraction of the expected count
// (nil means DefaultTolerance).
type LevelBalance struct {
	Attribute    string   `json:"attribute_name" yaml:"attribute_name"`
	MinFrequency *int     `json:"min_frequency,omitempty" yaml:"min_frequency,omitempty"`
	MaxFrequency *int     `json:"max_frequency,omitempty" yaml:"max_frequency,omitempty"`
	Tolerance    *float64 `json:"tolerance,omitempty" yaml:"tolerance,omitempty"`
}

// DefaultTolerance applies when a LevelBalance leaves Tolerance unset
const DefaultTolerance = 0.1

// Action decides what a matching custom rule does to an option
type Action string

const (
	// ActionProhibit rejects options for which the condition holds
	ActionProhibit Action = "prohibit"
	// ActionRequire rejects options for which the condition does not hold
	ActionRequire Action = "require"
)

// CustomRule is the escape hatch: a named predicate over a single option.
// Exactly one of Condition (a CEL expression over `option` and `index`)
// or Predicate must be set.
//
//	option["Brand"] == "Acme" && index["Price"] < 1
type CustomRule struct {
	Name        string `json:"name" yaml:"name"`
	Condition   string `json:"condition,omitempty" yaml:"condition,omitempty"`
	Action      Action `json:"action,omitempty" yaml:"action,omitempty"`
	Description string `json:"description,omitempty" yaml:"description,omitempty"`

	Predicate func(design.Option) bool `json:"-" yaml:"-"`
}

// ConstraintSet is attached to a single generation or validation request
type ConstraintSet struct {
	Prohibited  []Prohibited   `json:"prohibited_combinations,omitempty" yaml:"prohibited_combinations,omitempty"`
	Required    []Required     `json:"required_combinations,omitempty" yaml:"required_combinations,omitempty"`
	Balance     []LevelBalance `json:"level_balance_constraints,omitempty" yaml:"level_balance_constraints,omitempty"`
	CustomRules []CustomRule   `json:"custom_rules,omitempty" yaml:"custom_rules,omitempty"`
}

// IsEmpty reports whether the set carries no rules at all
func (cs ConstraintSet) IsEmpty() bool {
	return len(cs.Prohibited) == 0 && len(cs.Required) == 0 && len(cs.Balance) == 0 && len(cs.CustomRules) == 0
}

// Summary counts the rules of each kind
type Summary struct {
	Prohibited int `json:"prohibited_combinations"`
	Required   int `json:"required_combinations"`
	Balance    int `json:"level_balance_constraints"`
	Custom     int `json:"custom_rules"`
}
