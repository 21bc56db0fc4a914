package generator

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"time"

	"gonum.org/v1/gonum/mat"

	"github.com/halderavik/cbc-design-MCP/design"
	"github.com/halderavik/cbc-design-MCP/quality"
)

// DOptimal maximises log det(X'X) of the effects-coded design matrix by
// simulated annealing over single attribute-level moves. The seed is the
// better of a Random and a Balanced design, the Random one drawn first
// from the same source the Random strategy would use, so the result never
// scores below Random for the same seed. A singular seed falls back to
// Random.
type DOptimal struct{}

func (DOptimal) Method() design.Method { return design.MethodDOptimal }

func (DOptimal) Generate(ctx context.Context, req Request, rng *rand.Rand) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	a := req.Params.Anneal
	log := req.Logger
	if log == nil {
		log = slog.Default()
	}
	start := time.Now()

	// Step 1: seed candidates
	tasks, _ := randomTasks(req, rng)
	score := quality.Score(req.Grid, flatten(tasks))
	alt, _ := balancedTasks(req, rng)
	if s := quality.Score(req.Grid, flatten(alt)); s > score {
		tasks, score = alt, s
	}
	if math.IsInf(score, -1) {
		return Result{}, fallback(design.MethodDOptimal, design.MethodRandom,
			"seed design has a singular information matrix")
	}

	// Step 2: anneal
	coder := quality.NewCoder(req.Grid)
	current := coder.Information(flatten(tasks))
	counts := req.Grid.LevelCounts()
	per := req.Params.OptionsPerScreen

	best, bestTasks := score, cloneTasks(tasks)
	temp := a.Temperature
	stall := 0
	accepted := 0
	var warnings []string

	iter := 0
	for ; iter < a.Iterations; iter++ {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		if a.MaxDuration > 0 && time.Since(start) > a.MaxDuration {
			warnings = append(warnings, fmt.Sprintf("doptimal: stopped after %d iterations at the %s time limit", iter, a.MaxDuration))
			break
		}

		t, o, attr := rng.Intn(len(tasks)), rng.Intn(per), rng.Intn(len(counts))
		old := tasks[t][o]
		lvl := rng.Intn(counts[attr] - 1)
		if lvl >= old[attr] {
			lvl++
		}
		cand := old.Clone()
		cand[attr] = lvl

		if req.Rules.Allows(cand) && (req.Params.AllowDuplicates || !containsProfile(tasks[t], cand)) {
			next := mat.NewSymDense(coder.Params(), nil)
			next.CopySym(current)
			coder.Swap(next, old, cand)
			s := quality.LogDet(next)

			if !math.IsInf(s, -1) {
				delta := s - score
				if delta > 0 || rng.Float64() < math.Exp(delta/temp) {
					tasks[t][o] = cand
					current, score = next, s
					accepted++
				}
			}
		}

		if score > best+a.Convergence {
			best, bestTasks = score, cloneTasks(tasks)
			stall = 0
		} else {
			if score > best {
				best, bestTasks = score, cloneTasks(tasks)
			}
			stall++
		}
		temp *= a.Cooling
		if stall >= a.Patience {
			iter++
			break
		}
	}

	for t, task := range bestTasks {
		for o, p := range task {
			if !req.Rules.Allows(p) {
				warnings = append(warnings, violationWarning(design.MethodDOptimal, t, o, "seed option violates constraints"))
			}
		}
	}

	log.Debug("D-optimal search finished", "iterations", iter, "accepted", accepted,
		"log_det", best, "elapsed", time.Since(start))
	return Result{Tasks: bestTasks, Warnings: warnings}, nil
}
