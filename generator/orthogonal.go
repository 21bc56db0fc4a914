package generator

import (
	"context"
	"fmt"
	"math/rand"
	"slices"

	"github.com/halderavik/cbc-design-MCP/design"
)

// OrthogonalLevels are the level counts with a field construction
var OrthogonalLevels = []int{2, 3, 4, 5, 7, 8, 9}

// Orthogonal builds a strength-2 orthogonal array (over GF(L), or a
// Plackett-Burman array for two levels), replicates it to fill the option
// slots and deals whole rows into tasks, so level balance and pairwise
// co-occurrence are exact. Constraints are met by
// relabeling levels per attribute. Anything it cannot serve falls back to
// Balanced.
type Orthogonal struct{}

func (Orthogonal) Method() design.Method { return design.MethodOrthogonal }

func (Orthogonal) Generate(ctx context.Context, req Request, rng *rand.Rand) (Result, error) {
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	plan, err := orthogonalPlan(req.Grid, req.Params)
	if err != nil {
		return Result{}, fallback(design.MethodOrthogonal, design.MethodBalanced, err.Error())
	}
	base, err := plan.build(req.Grid.NumAttributes())
	if err != nil {
		return Result{}, fallback(design.MethodOrthogonal, design.MethodBalanced, err.Error())
	}
	q := plan.q

	// Step 1: relabel levels until every base row is allowed
	labels, ok := relabel(base, q, req, rng)
	if !ok {
		return Result{}, fallback(design.MethodOrthogonal, design.MethodBalanced,
			fmt.Sprintf("no level relabeling satisfies the constraints after %d attempts", req.Params.MaxRetries))
	}

	// Step 2: replicate the array and shuffle whole rows
	total := req.Params.TotalSlots()
	rows := make([]design.Profile, 0, total)
	for len(rows) < total {
		for _, b := range base {
			rows = append(rows, applyLabels(b, labels))
		}
	}
	rng.Shuffle(len(rows), func(i, j int) { rows[i], rows[j] = rows[j], rows[i] })

	per := req.Params.OptionsPerScreen
	tasks := make([][]design.Profile, req.Params.NumScreens)
	for t := range tasks {
		tasks[t] = rows[t*per : (t+1)*per]
	}

	// Step 3: move duplicate rows to other tasks by whole-row swaps
	var warnings []string
	if !req.Params.AllowDuplicates {
		for t := range tasks {
			for o := range tasks[t] {
				if duplicateAt(tasks[t], o) && !swapRowOut(tasks, t, o) {
					warnings = append(warnings, violationWarning(design.MethodOrthogonal, t, o, "duplicate option could not be swapped out"))
				}
			}
		}
	}

	return Result{Tasks: tasks, Warnings: warnings}, nil
}

func fallback(from, next design.Method, reason string) error {
	return &FallbackError{From: from, Next: next, Reason: reason}
}

// arrayPlan names a base array: the GF(q) Rao-Hamming array with q^k
// runs, or a two-level Plackett-Burman array when k is 0
type arrayPlan struct {
	q, k, runs int
}

func (pl arrayPlan) build(attrs int) ([][]int, error) {
	if pl.k == 0 {
		return plackettBurman(pl.runs, attrs), nil
	}
	f, err := newField(pl.q)
	if err != nil {
		return nil, err
	}
	return raoHamming(f, pl.k, attrs), nil
}

// orthogonalPlan checks applicability and picks the smallest base array
// whose runs divide the option slots and whose columns cover the
// attributes
func orthogonalPlan(g design.Grid, p Params) (arrayPlan, error) {
	counts := g.LevelCounts()
	q := counts[0]
	for _, c := range counts[1:] {
		if c != q {
			return arrayPlan{}, fmt.Errorf("attributes have different level counts")
		}
	}
	if !slices.Contains(OrthogonalLevels, q) {
		return arrayPlan{}, fmt.Errorf("%d levels has no orthogonal array construction", q)
	}
	if p.NumScreens < q {
		return arrayPlan{}, fmt.Errorf("%d screens is fewer than the %d levels", p.NumScreens, q)
	}

	total := p.TotalSlots()
	var best arrayPlan
	rows := q
	for k := 2; ; k++ {
		rows *= q
		if rows > total {
			break
		}
		if (rows-1)/(q-1) >= len(counts) && total%rows == 0 {
			best = arrayPlan{q: q, k: k, runs: rows}
			break
		}
	}
	if q == 2 {
		for _, n := range plackettBurmanRuns {
			if n-1 >= len(counts) && total%n == 0 && (best.runs == 0 || n < best.runs) {
				best = arrayPlan{q: 2, runs: n}
				break
			}
		}
	}
	if best.runs == 0 {
		return arrayPlan{}, fmt.Errorf("no orthogonal array with %d-level columns fits %d option slots for %d attributes", q, total, len(counts))
	}
	return best, nil
}

// relabel searches per-attribute level permutations under which every
// array row is allowed. The identity is tried first.
func relabel(base [][]int, q int, req Request, rng *rand.Rand) ([][]int, bool) {
	attrs := req.Grid.NumAttributes()
	labels := make([][]int, attrs)
	for a := range labels {
		labels[a] = identity(q)
	}
	if !req.Rules.HasOptionRules() {
		return labels, true
	}

	for attempt := 0; attempt <= req.Params.MaxRetries; attempt++ {
		if attempt > 0 {
			for a := range labels {
				labels[a] = rng.Perm(q)
			}
		}
		ok := true
		for _, b := range base {
			if !req.Rules.Allows(applyLabels(b, labels)) {
				ok = false
				break
			}
		}
		if ok {
			return labels, true
		}
	}
	return nil, false
}

func identity(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i
	}
	return out
}

func applyLabels(row []int, labels [][]int) design.Profile {
	p := make(design.Profile, len(row))
	for a, sym := range row {
		p[a] = labels[a][sym]
	}
	return p
}

// swapRowOut exchanges tasks[t][o] with a row of another task so that
// neither task holds a duplicate afterwards
func swapRowOut(tasks [][]design.Profile, t, o int) bool {
	for u := range tasks {
		if u == t {
			continue
		}
		for v := range tasks[u] {
			tasks[t][o], tasks[u][v] = tasks[u][v], tasks[t][o]
			if !duplicateAt(tasks[t], o) && !duplicateAt(tasks[u], v) {
				return true
			}
			tasks[t][o], tasks[u][v] = tasks[u][v], tasks[t][o]
		}
	}
	return false
}
