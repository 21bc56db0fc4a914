package design

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrInvalidGrid is returned when a grid breaks its structural invariants
	ErrInvalidGrid = errors.New("invalid grid")

	// ErrUnknownMethod is returned for an unsupported generation method name
	ErrUnknownMethod = errors.New("unknown design method")
)

const (
	MaxAttributes = 100
	MaxLevels     = 100
	MaxNameLength = 100
)

// ValidateGrid checks the grid invariants: at least one attribute, unique
// attribute names, at least two levels per attribute and unique level names
// within an attribute. Returns an error wrapping ErrInvalidGrid.
func ValidateGrid(g Grid) error {
	if len(g.Attributes) == 0 {
		return fmt.Errorf("%w: grid cannot be empty, must contain at least one attribute", ErrInvalidGrid)
	}
	if len(g.Attributes) > MaxAttributes {
		return fmt.Errorf("%w: grid contains %d attributes, maximum allowed is %d", ErrInvalidGrid, len(g.Attributes), MaxAttributes)
	}

	seen := make(map[string]bool, len(g.Attributes))
	for _, attr := range g.Attributes {
		if err := validateName(attr.Name); err != nil {
			return fmt.Errorf("%w: invalid attribute name %q: %v", ErrInvalidGrid, attr.Name, err)
		}
		if seen[attr.Name] {
			return fmt.Errorf("%w: duplicate attribute name %q", ErrInvalidGrid, attr.Name)
		}
		seen[attr.Name] = true

		if len(attr.Levels) < 2 {
			return fmt.Errorf("%w: attribute %q must have at least 2 levels, has %d", ErrInvalidGrid, attr.Name, len(attr.Levels))
		}
		if len(attr.Levels) > MaxLevels {
			return fmt.Errorf("%w: attribute %q has %d levels, maximum allowed is %d", ErrInvalidGrid, attr.Name, len(attr.Levels), MaxLevels)
		}

		levels := make(map[string]bool, len(attr.Levels))
		for _, level := range attr.Levels {
			if err := validateName(level); err != nil {
				return fmt.Errorf("%w: invalid level %q in attribute %q: %v", ErrInvalidGrid, level, attr.Name, err)
			}
			if levels[level] {
				return fmt.Errorf("%w: duplicate level %q in attribute %q", ErrInvalidGrid, level, attr.Name)
			}
			levels[level] = true
		}
	}

	return nil
}

// validateName enforces the naming rules shared by attributes and levels
func validateName(name string) error {
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("name length %d exceeds maximum of %d characters", len(name), MaxNameLength)
	}
	// Leading/trailing whitespace makes level matching ambiguous
	if strings.TrimSpace(name) != name {
		return fmt.Errorf("name has leading or trailing whitespace")
	}
	return nil
}
