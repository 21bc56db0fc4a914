package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand"
	"slices"

	"github.com/halderavik/cbc-design-MCP/constraints"
	"github.com/halderavik/cbc-design-MCP/design"
	"github.com/halderavik/cbc-design-MCP/quality"
)

// Request is what every strategy receives
type Request struct {
	Grid   design.Grid
	Params Params
	Rules  *constraints.CompiledRules
	Logger *slog.Logger
}

// Result is a strategy's raw output: profile rows per task plus any
// constraint violations it accepted in order to terminate
type Result struct {
	Tasks    [][]design.Profile
	Warnings []string
}

// Strategy produces choice tasks for one method. A strategy that cannot
// serve a request returns a *FallbackError naming the next method.
type Strategy interface {
	Method() design.Method
	Generate(ctx context.Context, req Request, rng *rand.Rand) (Result, error)
}

// For returns the strategy implementing a method
func For(m design.Method) (Strategy, error) {
	switch m {
	case design.MethodRandom:
		return Random{}, nil
	case design.MethodBalanced:
		return Balanced{}, nil
	case design.MethodOrthogonal:
		return Orthogonal{}, nil
	case design.MethodDOptimal:
		return DOptimal{}, nil
	default:
		return nil, fmt.Errorf("%w: %q", design.ErrUnknownMethod, m)
	}
}

// feasibilityScanLimit caps the grid size for which allowed profiles are
// counted exhaustively before generation
const feasibilityScanLimit = 1 << 16

// Generate runs the requested method, following fallback transitions
// (orthogonal -> balanced, doptimal -> random) until a strategy delivers.
// The design's provenance records every transition taken. In strict mode
// the first transition fails the call with ErrFallbackRefused.
func Generate(ctx context.Context, method design.Method, g design.Grid, params Params, rules *constraints.CompiledRules, opts ...Option) (design.Design, error) {
	cfg := newConfig(opts)
	log := cfg.logger

	if err := design.ValidateGrid(g); err != nil {
		return design.Design{}, err
	}
	params = params.withDefaults()
	if err := params.Validate(); err != nil {
		return design.Design{}, err
	}
	if rules != nil && !sameGrid(rules.Grid(), g) {
		return design.Design{}, fmt.Errorf("%w: rules were compiled for a different grid", ErrInvalidParams)
	}
	if err := checkFeasible(g, params, rules); err != nil {
		return design.Design{}, err
	}

	req := Request{Grid: g, Params: params, Rules: rules, Logger: log}
	prov := design.Provenance{Requested: method}
	current := method

	var res Result
	for hops := 0; ; hops++ {
		s, err := For(current)
		if err != nil {
			return design.Design{}, err
		}

		res, err = s.Generate(ctx, req, cfg.rng)
		var fb *FallbackError
		if errors.As(err, &fb) {
			if params.Strict {
				return design.Design{}, fmt.Errorf("%w: %v", ErrFallbackRefused, fb)
			}
			if hops >= len(design.Methods) {
				return design.Design{}, fmt.Errorf("%w: fallback chain did not terminate at %s", ErrGenerationInfeasible, current)
			}
			log.Warn("Design method fell back", "requested", method, "from", fb.From, "to", fb.Next, "reason", fb.Reason)
			prov.Fallbacks = append(prov.Fallbacks, fmt.Sprintf("%s: %s", fb.From, fb.Reason))
			current = fb.Next
			continue
		}
		if err != nil {
			return design.Design{}, err
		}
		break
	}
	prov.Delivered = current

	warnings := append([]string(nil), res.Warnings...)
	warnings = append(warnings, placeRequirements(res.Tasks, req, cfg.rng)...)
	for _, w := range warnings {
		log.Warn("Accepted constraint violation", "method", current, "detail", w)
	}

	flat := flatten(res.Tasks)
	rep := quality.EvaluateProfiles(g, flat)

	d := design.Build(g, res.Tasks, prov)
	d.Efficiency = rep.DEfficiency
	d.BalanceScore = rep.BalanceScore
	d.Seed = cfg.seed
	d.Warnings = warnings

	log.Debug("Design generated", "provenance", prov.Tag(), "tasks", params.NumScreens,
		"options", params.OptionsPerScreen, "efficiency", d.Efficiency, "warnings", len(warnings))
	return d, nil
}

// sameGrid reports whether two grids have the same attributes and levels in
// the same order, so level indexes mean the same thing under both
func sameGrid(a, b design.Grid) bool {
	if len(a.Attributes) != len(b.Attributes) {
		return false
	}
	for i, attr := range a.Attributes {
		other := b.Attributes[i]
		if attr.Name != other.Name || !slices.Equal(attr.Levels, other.Levels) {
			return false
		}
	}
	return true
}

// checkFeasible rejects requests no strategy can serve: more unanchored
// requirements than slots, no allowed profile at all, or too few distinct
// allowed profiles to fill one task without duplicates
func checkFeasible(g design.Grid, p Params, rules *constraints.CompiledRules) error {
	if need := rules.MinimumSlots(); need > p.TotalSlots() {
		return fmt.Errorf("%w: required combinations need at least %d option slots, design has %d",
			ErrGenerationInfeasible, need, p.TotalSlots())
	}

	combos := g.Combinations()
	if !rules.HasOptionRules() || combos > feasibilityScanLimit {
		if !p.AllowDuplicates && combos < int64(p.OptionsPerScreen) {
			return fmt.Errorf("%w: grid has %d distinct profiles, cannot fill %d distinct options per screen",
				ErrGenerationInfeasible, combos, p.OptionsPerScreen)
		}
		return nil
	}

	allowed := 0
	counts := g.LevelCounts()
	prof := make(design.Profile, len(counts))
	for {
		if rules.Allows(prof) {
			allowed++
		}
		if !nextProfile(prof, counts) {
			break
		}
	}
	switch {
	case allowed == 0:
		return fmt.Errorf("%w: no profile satisfies the constraints", ErrGenerationInfeasible)
	case !p.AllowDuplicates && allowed < p.OptionsPerScreen:
		return fmt.Errorf("%w: only %d profiles satisfy the constraints, cannot fill %d distinct options per screen",
			ErrGenerationInfeasible, allowed, p.OptionsPerScreen)
	}
	return nil
}

// nextProfile advances p like an odometer; false once it wraps to zero
func nextProfile(p design.Profile, counts []int) bool {
	for i := len(p) - 1; i >= 0; i-- {
		p[i]++
		if p[i] < counts[i] {
			return true
		}
		p[i] = 0
	}
	return false
}

func randomProfile(rng *rand.Rand, counts []int) design.Profile {
	p := make(design.Profile, len(counts))
	for i, k := range counts {
		p[i] = rng.Intn(k)
	}
	return p
}

// duplicateAt reports whether task[idx] equals another option of the task
func duplicateAt(task []design.Profile, idx int) bool {
	for i, q := range task {
		if i != idx && q != nil && q.Equal(task[idx]) {
			return true
		}
	}
	return false
}

func containsProfile(task []design.Profile, p design.Profile) bool {
	for _, q := range task {
		if q != nil && q.Equal(p) {
			return true
		}
	}
	return false
}

func flatten(tasks [][]design.Profile) []design.Profile {
	var out []design.Profile
	for _, task := range tasks {
		out = append(out, task...)
	}
	return out
}

func cloneTasks(tasks [][]design.Profile) [][]design.Profile {
	out := make([][]design.Profile, len(tasks))
	for t, task := range tasks {
		out[t] = make([]design.Profile, len(task))
		for o, p := range task {
			out[t][o] = p.Clone()
		}
	}
	return out
}

func violationWarning(method design.Method, task, option int, detail string) string {
	return fmt.Sprintf("%s: task %d option %d: %s", method, task+1, option+1, detail)
}
