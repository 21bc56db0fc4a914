package design

import (
	"fmt"
	"math"
	"strings"
)

// Method identifies a generation strategy
type Method string

const (
	MethodRandom     Method = "random"
	MethodBalanced   Method = "balanced"
	MethodOrthogonal Method = "orthogonal"
	MethodDOptimal   Method = "doptimal"
)

// Methods lists every supported method in fallback-priority order
var Methods = []Method{MethodRandom, MethodBalanced, MethodOrthogonal, MethodDOptimal}

// ParseMethod resolves a method name, accepting the long-form aliases
// callers have historically sent ("balanced_overlap", "d-optimal", ...)
func ParseMethod(name string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "random":
		return MethodRandom, nil
	case "balanced", "balanced_overlap", "balanced-overlap":
		return MethodBalanced, nil
	case "orthogonal", "orthogonal_array", "orthogonal-array":
		return MethodOrthogonal, nil
	case "doptimal", "d-optimal", "d_optimal":
		return MethodDOptimal, nil
	default:
		return "", fmt.Errorf("%w: %q (must be one of: random, balanced, orthogonal, doptimal)", ErrUnknownMethod, name)
	}
}

// Attribute is one product characteristic and its ordered levels
type Attribute struct {
	Name   string   `json:"name" yaml:"name"`
	Levels []string `json:"levels" yaml:"levels"`
}

// Grid is the ordered attribute domain every algorithm works over.
// Attribute order fixes the column order of any matrix representation.
type Grid struct {
	Attributes []Attribute `json:"attributes" yaml:"attributes"`
}

// NumAttributes returns the number of attributes in the grid
func (g Grid) NumAttributes() int {
	return len(g.Attributes)
}

// LevelCounts returns the level count of every attribute in grid order
func (g Grid) LevelCounts() []int {
	counts := make([]int, len(g.Attributes))
	for i, attr := range g.Attributes {
		counts[i] = len(attr.Levels)
	}
	return counts
}

// AttributeIndex returns the column of the named attribute
func (g Grid) AttributeIndex(name string) (int, bool) {
	for i, attr := range g.Attributes {
		if attr.Name == name {
			return i, true
		}
	}
	return -1, false
}

// LevelIndex returns the position of level within the attribute at column attr
func (g Grid) LevelIndex(attr int, level string) (int, bool) {
	if attr < 0 || attr >= len(g.Attributes) {
		return -1, false
	}
	for i, l := range g.Attributes[attr].Levels {
		if l == level {
			return i, true
		}
	}
	return -1, false
}

// Combinations returns the number of distinct profiles, saturating at math.MaxInt64
func (g Grid) Combinations() int64 {
	total := int64(1)
	for _, attr := range g.Attributes {
		n := int64(len(attr.Levels))
		if n == 0 {
			return 0
		}
		if total > math.MaxInt64/n {
			return math.MaxInt64
		}
		total *= n
	}
	return total
}

// Clone returns a deep copy so callers can never share level slices
func (g Grid) Clone() Grid {
	attrs := make([]Attribute, len(g.Attributes))
	for i, attr := range g.Attributes {
		attrs[i] = Attribute{Name: attr.Name, Levels: append([]string(nil), attr.Levels...)}
	}
	return Grid{Attributes: attrs}
}

// Option maps attribute name to the chosen level name
type Option map[string]string

// Clone returns an independent copy of the option
func (o Option) Clone() Option {
	c := make(Option, len(o))
	for k, v := range o {
		c[k] = v
	}
	return c
}

// Profile is the index form of an Option: one level index per attribute, in grid order
type Profile []int

// Equal reports whether both profiles pick the same level for every attribute
func (p Profile) Equal(q Profile) bool {
	if len(p) != len(q) {
		return false
	}
	for i := range p {
		if p[i] != q[i] {
			return false
		}
	}
	return true
}

// Clone returns an independent copy of the profile
func (p Profile) Clone() Profile {
	return append(Profile(nil), p...)
}

// Encode converts an Option to its Profile.
// The option must carry exactly one known level for every grid attribute.
func (g Grid) Encode(o Option) (Profile, error) {
	if len(o) != len(g.Attributes) {
		return nil, fmt.Errorf("option has %d attributes, grid has %d", len(o), len(g.Attributes))
	}
	p := make(Profile, len(g.Attributes))
	for i, attr := range g.Attributes {
		level, ok := o[attr.Name]
		if !ok {
			return nil, fmt.Errorf("option is missing attribute %q", attr.Name)
		}
		idx, ok := g.LevelIndex(i, level)
		if !ok {
			return nil, fmt.Errorf("unknown level %q for attribute %q", level, attr.Name)
		}
		p[i] = idx
	}
	return p, nil
}

// Decode converts a Profile back to an Option
func (g Grid) Decode(p Profile) Option {
	o := make(Option, len(g.Attributes))
	for i, attr := range g.Attributes {
		o[attr.Name] = attr.Levels[p[i]]
	}
	return o
}
