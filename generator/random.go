package generator

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/halderavik/cbc-design-MCP/design"
)

// Random draws every level independently and uniformly. Rejected options
// are resampled up to MaxRetries times; after that the last draw is kept
// and the violation recorded, so generation always terminates.
type Random struct{}

func (Random) Method() design.Method { return design.MethodRandom }

func (Random) Generate(ctx context.Context, req Request, rng *rand.Rand) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	tasks, warnings := randomTasks(req, rng)
	return Result{Tasks: tasks, Warnings: warnings}, nil
}

// randomTasks is shared with the D-optimal seed so that, for the same
// random source, its first candidate is exactly the Random design
func randomTasks(req Request, rng *rand.Rand) ([][]design.Profile, []string) {
	p := req.Params
	counts := req.Grid.LevelCounts()
	var warnings []string

	tasks := make([][]design.Profile, p.NumScreens)
	for t := range tasks {
		task := make([]design.Profile, 0, p.OptionsPerScreen)
		for o := 0; o < p.OptionsPerScreen; o++ {
			var cand design.Profile
			accepted := false
			for attempt := 0; attempt <= p.MaxRetries; attempt++ {
				cand = randomProfile(rng, counts)
				if p.AllowDuplicates || !containsProfile(task, cand) {
					if req.Rules.Allows(cand) {
						accepted = true
						break
					}
				}
			}
			if !accepted {
				if !p.AllowDuplicates {
					cand = distinctFrom(task, cand, counts)
				}
				warnings = append(warnings, violationWarning(design.MethodRandom, t, o,
					fmt.Sprintf("no allowed option after %d retries", p.MaxRetries)))
			}
			task = append(task, cand)
		}
		tasks[t] = task
	}
	return tasks, warnings
}

// distinctFrom steps p forward until it differs from every option already
// in the task. Feasibility checks guarantee enough distinct profiles.
func distinctFrom(task []design.Profile, p design.Profile, counts []int) design.Profile {
	p = p.Clone()
	for i := 0; containsProfile(task, p) && i <= len(task); i++ {
		nextProfile(p, counts)
	}
	return p
}
