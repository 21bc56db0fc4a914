package generator

import (
	"context"
	"math/rand"

	"github.com/halderavik/cbc-design-MCP/design"
)

// Balanced gives every level of every attribute total/k occurrences, the
// first total%k levels one more, shuffles each attribute's column
// independently and deals it across the option slots. Invalid slots are
// repaired by swapping one attribute between two slots, which keeps every
// level count unchanged.
type Balanced struct{}

func (Balanced) Method() design.Method { return design.MethodBalanced }

func (Balanced) Generate(ctx context.Context, req Request, rng *rand.Rand) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}
	tasks, warnings := balancedTasks(req, rng)
	return Result{Tasks: tasks, Warnings: warnings}, nil
}

func balancedTasks(req Request, rng *rand.Rand) ([][]design.Profile, []string) {
	p := req.Params
	counts := req.Grid.LevelCounts()
	total := p.TotalSlots()

	// Step 1: per-attribute level multisets, shuffled independently
	slots := make([]design.Profile, total)
	for i := range slots {
		slots[i] = make(design.Profile, len(counts))
	}
	for a, k := range counts {
		column := balancedColumn(total, k)
		rng.Shuffle(len(column), func(i, j int) { column[i], column[j] = column[j], column[i] })
		for i, lvl := range column {
			slots[i][a] = lvl
		}
	}

	// Step 2: deal slots into tasks; tasks alias the slot rows
	tasks := make([][]design.Profile, p.NumScreens)
	for t := range tasks {
		tasks[t] = slots[t*p.OptionsPerScreen : (t+1)*p.OptionsPerScreen]
	}

	// Step 3: swap-repair
	r := repairer{req: req, slots: slots, tasks: tasks, attrs: rng.Perm(len(counts))}
	var warnings []string
	for i := range slots {
		if r.bad(i) && !r.repair(i) {
			warnings = append(warnings, violationWarning(design.MethodBalanced, i/p.OptionsPerScreen, i%p.OptionsPerScreen,
				"no balance-preserving swap found"))
		}
	}
	return tasks, warnings
}

// balancedColumn lists total level indexes with counts differing by at most one
func balancedColumn(total, k int) []int {
	column := make([]int, 0, total)
	base, extra := total/k, total%k
	for lvl := 0; lvl < k; lvl++ {
		n := base
		if lvl < extra {
			n++
		}
		for i := 0; i < n; i++ {
			column = append(column, lvl)
		}
	}
	return column
}

type repairer struct {
	req   Request
	slots []design.Profile
	tasks [][]design.Profile
	attrs []int
}

func (r *repairer) bad(i int) bool {
	if !r.req.Rules.Allows(r.slots[i]) {
		return true
	}
	if r.req.Params.AllowDuplicates {
		return false
	}
	per := r.req.Params.OptionsPerScreen
	return duplicateAt(r.tasks[i/per], i%per)
}

// repair looks for a partner slot within the scan window, later slots
// first. A later partner only has to stay valid if it already was; an
// earlier partner has been accepted and must stay valid.
func (r *repairer) repair(i int) bool {
	scan := r.req.Params.SwapScan
	for off := 1; off <= scan; off++ {
		if j := i + off; j < len(r.slots) && r.trySwaps(i, j, !r.bad(j)) {
			return true
		}
	}
	for off := 1; off <= scan; off++ {
		if j := i - off; j >= 0 && r.trySwaps(i, j, true) {
			return true
		}
	}
	return false
}

func (r *repairer) trySwaps(i, j int, keepJ bool) bool {
	for _, a := range r.attrs {
		if r.slots[i][a] == r.slots[j][a] {
			continue
		}
		r.slots[i][a], r.slots[j][a] = r.slots[j][a], r.slots[i][a]
		if !r.bad(i) && (!keepJ || !r.bad(j)) {
			return true
		}
		r.slots[i][a], r.slots[j][a] = r.slots[j][a], r.slots[i][a]
	}
	return false
}
