package engine

import (
	"errors"

	"github.com/halderavik/cbc-design-MCP/constraints"
	"github.com/halderavik/cbc-design-MCP/design"
	"github.com/halderavik/cbc-design-MCP/generator"
	"github.com/halderavik/cbc-design-MCP/power"
)

// ErrInvalidDesign is returned when a supplied design does not fit its grid
var ErrInvalidDesign = errors.New("invalid design")

// IsInvalidInput reports whether err is a caller error that retrying
// will not fix
func IsInvalidInput(err error) bool {
	for _, target := range []error{
		design.ErrInvalidGrid,
		design.ErrUnknownMethod,
		constraints.ErrInvalidConstraint,
		power.ErrDegenerateGrid,
		power.ErrInvalidRequest,
		generator.ErrInvalidParams,
		ErrInvalidDesign,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}
