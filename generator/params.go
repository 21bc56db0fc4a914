package generator

import (
	"errors"
	"fmt"
	"time"

	"github.com/halderavik/cbc-design-MCP/design"
)

var (
	// ErrGenerationInfeasible is returned when no strategy, fallbacks
	// included, can meet the hard structural requirements of a request
	ErrGenerationInfeasible = errors.New("generation infeasible")

	// ErrInvalidParams is returned for malformed generation parameters
	ErrInvalidParams = errors.New("invalid generation parameters")

	// ErrFallbackRefused is returned in strict mode instead of falling back
	ErrFallbackRefused = errors.New("fallback refused in strict mode")
)

// FallbackError is how a strategy hands the request to a simpler one
type FallbackError struct {
	From   design.Method
	Next   design.Method
	Reason string
}

func (e *FallbackError) Error() string {
	return fmt.Sprintf("%s unavailable, falling back to %s: %s", e.From, e.Next, e.Reason)
}

const (
	DefaultMaxRetries = 100
	DefaultSwapScan   = 100

	DefaultIterations  = 1000
	DefaultTemperature = 1.0
	DefaultCooling     = 0.95
	DefaultConvergence = 1e-6
	DefaultPatience    = 250
)

// AnnealParams tunes the D-optimal search. Zero values select the defaults.
type AnnealParams struct {
	Iterations  int           `json:"iterations,omitempty" yaml:"iterations,omitempty"`
	Temperature float64       `json:"temperature,omitempty" yaml:"temperature,omitempty"`
	Cooling     float64       `json:"cooling_rate,omitempty" yaml:"cooling_rate,omitempty"`
	Convergence float64       `json:"convergence_threshold,omitempty" yaml:"convergence_threshold,omitempty"`
	// Patience is how many consecutive iterations may improve the best
	// score by less than Convergence before the search stops
	Patience    int           `json:"patience,omitempty" yaml:"patience,omitempty"`
	MaxDuration time.Duration `json:"max_duration,omitempty" yaml:"max_duration,omitempty"`
}

// Params shapes one generation request
type Params struct {
	OptionsPerScreen int  `json:"options_per_screen" yaml:"options_per_screen"`
	NumScreens       int  `json:"num_screens" yaml:"num_screens"`
	AllowDuplicates  bool `json:"allow_duplicates,omitempty" yaml:"allow_duplicates,omitempty"`
	// Strict turns every fallback into ErrFallbackRefused
	Strict     bool         `json:"strict,omitempty" yaml:"strict,omitempty"`
	MaxRetries int          `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	SwapScan   int          `json:"swap_scan,omitempty" yaml:"swap_scan,omitempty"`
	Anneal     AnnealParams `json:"anneal,omitempty" yaml:"anneal,omitempty"`
}

// TotalSlots is the number of options across the whole design
func (p Params) TotalSlots() int {
	return p.OptionsPerScreen * p.NumScreens
}

func (p Params) withDefaults() Params {
	if p.MaxRetries == 0 {
		p.MaxRetries = DefaultMaxRetries
	}
	if p.SwapScan == 0 {
		p.SwapScan = DefaultSwapScan
	}
	a := &p.Anneal
	if a.Iterations == 0 {
		a.Iterations = DefaultIterations
	}
	if a.Temperature == 0 {
		a.Temperature = DefaultTemperature
	}
	if a.Cooling == 0 {
		a.Cooling = DefaultCooling
	}
	if a.Convergence == 0 {
		a.Convergence = DefaultConvergence
	}
	if a.Patience == 0 {
		a.Patience = DefaultPatience
	}
	return p
}

// Validate checks the parameter ranges; it expects defaults applied
func (p Params) Validate() error {
	switch {
	case p.NumScreens < 1:
		return fmt.Errorf("%w: num_screens must be at least 1, got %d", ErrInvalidParams, p.NumScreens)
	case p.OptionsPerScreen < 2:
		return fmt.Errorf("%w: options_per_screen must be at least 2, got %d", ErrInvalidParams, p.OptionsPerScreen)
	case p.MaxRetries < 0:
		return fmt.Errorf("%w: max_retries cannot be negative", ErrInvalidParams)
	case p.SwapScan < 0:
		return fmt.Errorf("%w: swap_scan cannot be negative", ErrInvalidParams)
	case p.Anneal.Iterations < 0:
		return fmt.Errorf("%w: iterations cannot be negative", ErrInvalidParams)
	case p.Anneal.Temperature <= 0:
		return fmt.Errorf("%w: temperature must be positive", ErrInvalidParams)
	case p.Anneal.Cooling <= 0 || p.Anneal.Cooling >= 1:
		return fmt.Errorf("%w: cooling_rate %.3f must be within (0, 1)", ErrInvalidParams, p.Anneal.Cooling)
	case p.Anneal.Convergence < 0:
		return fmt.Errorf("%w: convergence_threshold cannot be negative", ErrInvalidParams)
	case p.Anneal.Patience < 0:
		return fmt.Errorf("%w: patience cannot be negative", ErrInvalidParams)
	case p.Anneal.MaxDuration < 0:
		return fmt.Errorf("%w: max_duration cannot be negative", ErrInvalidParams)
	}
	return nil
}
