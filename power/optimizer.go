package power

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/halderavik/cbc-design-MCP/design"
)

var (
	// ErrDegenerateGrid is returned when the grid has no free parameters
	ErrDegenerateGrid = errors.New("degenerate grid")

	// ErrInvalidRequest is returned for out-of-range targets or bounds
	ErrInvalidRequest = errors.New("invalid optimization request")
)

const (
	DefaultTargetPower    = 0.8
	DefaultEffectSize     = 0.2
	DefaultAlpha          = 0.05
	DefaultMaxRespondents = 2000
	DefaultMaxScreens     = 20
	DefaultMaxOptions     = 5
	DefaultScreens        = 12
	DefaultOptions        = 3

	// MinRespondents is the floor below which no study is recommended
	MinRespondents = 30

	bufferPercent = 15

	// screens are sized so one respondent's comparisons cover the
	// non-intercept parameters this many times
	screenCoverage = 1.5
)

// Request describes the study to size. Zero values select the defaults;
// Screens, Options and Respondents pin that dimension when positive.
type Request struct {
	Grid         design.Grid `json:"grid"`
	TargetPower  float64     `json:"target_power,omitempty"`
	EffectSize   float64     `json:"effect_size,omitempty"`
	Alpha        float64     `json:"alpha,omitempty"`
	Interactions bool        `json:"interactions,omitempty"`

	MaxRespondents int `json:"max_respondents,omitempty"`
	MaxScreens     int `json:"max_screens,omitempty"`
	MaxOptions     int `json:"max_options,omitempty"`

	Respondents int `json:"fixed_respondents,omitempty"`
	Screens     int `json:"fixed_screens,omitempty"`
	Options     int `json:"fixed_options,omitempty"`
}

// Result is the sizing recommendation. It has no identity beyond the call.
type Result struct {
	Respondents              int      `json:"num_respondents"`
	Screens                  int      `json:"num_screens"`
	OptionsPerScreen         int      `json:"options_per_screen"`
	Parameters               int      `json:"parameter_count"`
	ExpectedPower            float64  `json:"expected_power"`
	TargetPower              float64  `json:"target_power"`
	TargetMet                bool     `json:"target_met"`
	Clamped                  bool     `json:"clamped"`
	JohnsonOrme              int      `json:"johnson_orme_respondents"`
	PowerRespondents         int      `json:"power_respondents"`
	DesignComplexity         int64    `json:"design_complexity"`
	ObservationsPerParameter float64  `json:"observations_per_parameter"`
	Rationale                string   `json:"rationale"`
	Notes                    []string `json:"notes,omitempty"`
}

// withDefaults fills zero fields and checks ranges
func (r Request) withDefaults() (Request, error) {
	if r.TargetPower == 0 {
		r.TargetPower = DefaultTargetPower
	}
	if r.EffectSize == 0 {
		r.EffectSize = DefaultEffectSize
	}
	if r.Alpha == 0 {
		r.Alpha = DefaultAlpha
	}
	if r.MaxRespondents == 0 {
		r.MaxRespondents = DefaultMaxRespondents
	}
	if r.MaxScreens == 0 {
		r.MaxScreens = DefaultMaxScreens
	}
	if r.MaxOptions == 0 {
		r.MaxOptions = DefaultMaxOptions
	}

	switch {
	case r.TargetPower <= 0 || r.TargetPower >= 1:
		return r, fmt.Errorf("%w: target_power %.3f must be within (0, 1)", ErrInvalidRequest, r.TargetPower)
	case r.EffectSize <= 0:
		return r, fmt.Errorf("%w: effect_size must be positive", ErrInvalidRequest)
	case r.Alpha <= 0 || r.Alpha >= 1:
		return r, fmt.Errorf("%w: alpha %.3f must be within (0, 1)", ErrInvalidRequest, r.Alpha)
	case r.MaxRespondents < 1:
		return r, fmt.Errorf("%w: max_respondents must be positive", ErrInvalidRequest)
	case r.MaxScreens < 1:
		return r, fmt.Errorf("%w: max_screens must be positive", ErrInvalidRequest)
	case r.MaxOptions < 2:
		return r, fmt.Errorf("%w: max_options must be at least 2", ErrInvalidRequest)
	case r.Respondents < 0 || r.Screens < 0 || r.Options < 0:
		return r, fmt.Errorf("%w: fixed values cannot be negative", ErrInvalidRequest)
	case r.Screens > r.MaxScreens:
		return r, fmt.Errorf("%w: fixed_screens %d exceeds max_screens %d", ErrInvalidRequest, r.Screens, r.MaxScreens)
	case r.Options == 1 || r.Options > r.MaxOptions:
		return r, fmt.Errorf("%w: fixed_options %d must be within [2, %d]", ErrInvalidRequest, r.Options, r.MaxOptions)
	}
	return r, nil
}

// ParameterCount is sum(levels-1) + 1 for the intercept, plus
// sum over attribute pairs of (k_i-1)(k_j-1) when interactions are modelled
func ParameterCount(g design.Grid, interactions bool) (int, error) {
	if len(g.Attributes) == 0 {
		return 0, fmt.Errorf("%w: grid has no attributes", ErrDegenerateGrid)
	}
	free := 0
	for _, attr := range g.Attributes {
		if len(attr.Levels) == 0 {
			return 0, fmt.Errorf("%w: attribute %q has no levels", ErrDegenerateGrid, attr.Name)
		}
		free += len(attr.Levels) - 1
	}
	if free == 0 {
		return 0, fmt.Errorf("%w: no attribute has more than one level", ErrDegenerateGrid)
	}

	params := free + 1
	if interactions {
		counts := g.LevelCounts()
		for i := range counts {
			for j := i + 1; j < len(counts); j++ {
				params += (counts[i] - 1) * (counts[j] - 1)
			}
		}
	}
	return params, nil
}

// complexityFactor is c in the Johnson-Orme rule: the largest level count,
// or the largest pairwise product when interactions are modelled
func complexityFactor(g design.Grid, interactions bool) int {
	counts := g.LevelCounts()
	c := 0
	for _, k := range counts {
		c = max(c, k)
	}
	if interactions && len(counts) > 1 {
		c = 0
		for i := range counts {
			for j := i + 1; j < len(counts); j++ {
				c = max(c, counts[i]*counts[j])
			}
		}
	}
	return c
}

// Optimize recommends respondents, screens and options per screen for the
// grid. Respondents are the larger of the Johnson-Orme minimum and the
// count the power curve needs, plus a 15% buffer, clamped to the bounds.
// Screens and options depend only on the grid and the bounds, so raising
// the power target never lowers the respondent count.
func Optimize(req Request) (Result, error) {
	req, err := req.withDefaults()
	if err != nil {
		return Result{}, err
	}
	params, err := ParameterCount(req.Grid, req.Interactions)
	if err != nil {
		return Result{}, err
	}

	var notes []string
	clamped := false

	// Step 1: options per screen
	options := req.Options
	if options == 0 {
		options = min(DefaultOptions, req.MaxOptions)
	}

	// Step 2: screens per respondent
	screens := req.Screens
	if screens == 0 {
		want := max(DefaultScreens, int(math.Ceil(screenCoverage*float64(params-1)/float64(options-1))))
		screens = min(want, req.MaxScreens)
		if want > req.MaxScreens {
			clamped = true
			notes = append(notes, fmt.Sprintf("%d screens recommended for %d parameters, clamped to max_screens %d", want, params, req.MaxScreens))
		}
	}

	// Step 3: respondents
	c := complexityFactor(req.Grid, req.Interactions)
	jo := johnsonOrme(c, screens, options)
	pw := respondentsForPower(req.TargetPower, screens, options, params, req.EffectSize, req.Alpha)

	respondents := req.Respondents
	if respondents == 0 {
		want := max(withBuffer(max(jo, pw)), MinRespondents)
		respondents = min(want, req.MaxRespondents)
		if want > req.MaxRespondents {
			clamped = true
			notes = append(notes, fmt.Sprintf("%d respondents recommended, clamped to max_respondents %d; target power may not be met", want, req.MaxRespondents))
		}
	}

	// Step 4: expected power of what is actually recommended
	expected := Curve(respondents, screens, options, params, req.EffectSize, req.Alpha)
	obs := Observations(respondents, screens, options)
	perParam := float64(obs) / float64(params)

	met := expected >= req.TargetPower
	if !met {
		notes = append(notes, fmt.Sprintf("expected power %.3f is below target %.3f", expected, req.TargetPower))
	}
	if obs < params {
		notes = append(notes, "insufficient observations for parameter estimation")
	} else if perParam < 5 {
		notes = append(notes, fmt.Sprintf("only %.1f observations per parameter; 5-10 is considered adequate", perParam))
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Johnson-Orme (c=%d, t=%d, a=%d) requires %d respondents; ", c, screens, options, jo)
	fmt.Fprintf(&b, "power %.2f at effect %.2f, alpha %.3f requires %d; ", req.TargetPower, req.EffectSize, req.Alpha, pw)
	if req.Respondents > 0 {
		fmt.Fprintf(&b, "respondents fixed at %d.", respondents)
	} else {
		fmt.Fprintf(&b, "recommending %d after a %d%% quality buffer.", respondents, bufferPercent)
	}
	if clamped {
		b.WriteString(" Bounds were applied; the target power may not be met.")
	}

	return Result{
		Respondents:              respondents,
		Screens:                  screens,
		OptionsPerScreen:         options,
		Parameters:               params,
		ExpectedPower:            expected,
		TargetPower:              req.TargetPower,
		TargetMet:                met,
		Clamped:                  clamped,
		JohnsonOrme:              jo,
		PowerRespondents:         pw,
		DesignComplexity:         req.Grid.Combinations(),
		ObservationsPerParameter: perParam,
		Rationale:                b.String(),
		Notes:                    notes,
	}, nil
}
