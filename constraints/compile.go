package constraints

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/halderavik/cbc-design-MCP/design"
)

// Pair pins one attribute (by grid column) to one level index
type Pair struct {
	Attr  int `json:"attr"`
	Level int `json:"level"`
}

// pattern is a partial assignment sorted by attribute column
type pattern []Pair

// matches reports whether the profile carries every pair of the pattern
func (p pattern) matches(prof design.Profile) bool {
	for _, pr := range p {
		if prof[pr.Attr] != pr.Level {
			return false
		}
	}
	return true
}

func (p pattern) level(attr int) (int, bool) {
	for _, pr := range p {
		if pr.Attr == attr {
			return pr.Level, true
		}
	}
	return 0, false
}

// subsetOf reports whether every pair of p also appears in q
func (p pattern) subsetOf(q pattern) bool {
	for _, pr := range p {
		if l, ok := q.level(pr.Attr); !ok || l != pr.Level {
			return false
		}
	}
	return true
}

// conflicts reports whether p and q pin some attribute to different levels
func (p pattern) conflicts(q pattern) bool {
	for _, pr := range p {
		if l, ok := q.level(pr.Attr); ok && l != pr.Level {
			return true
		}
	}
	return false
}

// merge unions two non-conflicting patterns
func (p pattern) merge(q pattern) pattern {
	out := append(pattern(nil), p...)
	for _, pr := range q {
		if _, ok := p.level(pr.Attr); !ok {
			out = append(out, pr)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Attr < out[j].Attr })
	return out
}

func (p pattern) render(g design.Grid) string {
	parts := make([]string, len(p))
	for i, pr := range p {
		attr := g.Attributes[pr.Attr]
		parts[i] = attr.Name + "=" + attr.Levels[pr.Level]
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// newPattern resolves an assignment against the grid
func newPattern(a Assignment, g design.Grid) (pattern, error) {
	if len(a) == 0 {
		return nil, fmt.Errorf("assignment is empty")
	}
	p := make(pattern, 0, len(a))
	for name, level := range a {
		col, ok := g.AttributeIndex(name)
		if !ok {
			return nil, fmt.Errorf("unknown attribute %q", name)
		}
		idx, ok := g.LevelIndex(col, level)
		if !ok {
			return nil, fmt.Errorf("unknown level %q for attribute %q", level, name)
		}
		p = append(p, Pair{Attr: col, Level: idx})
	}
	sort.Slice(p, func(i, j int) bool { return p[i].Attr < p[j].Attr })
	return p, nil
}

// Requirement is an unanchored required combination: its pairs must appear
// together in at least one option of the design
type Requirement struct {
	Name  string `json:"name"`
	Pairs []Pair `json:"pairs"`
}

// SatisfiedBy reports whether the profile carries every pair
func (r Requirement) SatisfiedBy(p design.Profile) bool {
	return pattern(r.Pairs).matches(p)
}

// Apply returns a copy of p with the requirement's levels written in
func (r Requirement) Apply(p design.Profile) design.Profile {
	out := p.Clone()
	for _, pr := range r.Pairs {
		out[pr.Attr] = pr.Level
	}
	return out
}

type namedPattern struct {
	name string
	pat  pattern
}

type anchoredRule struct {
	name string
	when pattern
	then pattern
}

type balanceRule struct {
	name      string
	attr      int
	min       *int
	max       *int
	tolerance float64
}

// bounds returns the allowed [lo, hi] occurrence count of each level for a
// design with total option slots. Explicit min/max override the
// tolerance band on their side.
func (b balanceRule) bounds(total, levels int) (int, int) {
	expected := float64(total) / float64(levels)
	lo := int(math.Floor(expected * (1 - b.tolerance)))
	hi := int(math.Ceil(expected * (1 + b.tolerance)))
	if b.min != nil {
		lo = *b.min
	}
	if b.max != nil {
		hi = *b.max
	}
	return lo, hi
}

// CompiledRules is a ConstraintSet resolved against one grid. It is
// immutable after Compile and safe for concurrent use. A nil
// *CompiledRules allows everything.
type CompiledRules struct {
	grid       design.Grid
	prohibited []namedPattern
	anchored   []anchoredRule
	required   []Requirement
	balance    []balanceRule
	custom     []*compiledCustom
	summary    Summary
}

// Compile resolves every rule against the grid and rejects sets that
// reference unknown attributes or levels, or that contradict themselves.
// Errors wrap ErrInvalidConstraint.
func Compile(cs ConstraintSet, g design.Grid) (*CompiledRules, error) {
	if err := design.ValidateGrid(g); err != nil {
		return nil, err
	}

	r := &CompiledRules{
		grid: g.Clone(),
		summary: Summary{
			Prohibited: len(cs.Prohibited),
			Required:   len(cs.Required),
			Balance:    len(cs.Balance),
			Custom:     len(cs.CustomRules),
		},
	}

	// Step 1: resolve prohibited combinations
	for i, p := range cs.Prohibited {
		pat, err := newPattern(p.Levels, g)
		if err != nil {
			return nil, fmt.Errorf("%w: prohibited combination %d: %v", ErrInvalidConstraint, i+1, err)
		}
		r.prohibited = append(r.prohibited, namedPattern{name: fmt.Sprintf("prohibited[%d]", i+1), pat: pat})
	}

	// Step 2: resolve required combinations, anchored and unanchored
	for i, req := range cs.Required {
		name := fmt.Sprintf("required[%d]", i+1)
		then, err := newPattern(req.Then, g)
		if err != nil {
			return nil, fmt.Errorf("%w: required combination %d: then: %v", ErrInvalidConstraint, i+1, err)
		}
		if len(req.When) == 0 {
			r.required = append(r.required, Requirement{Name: name, Pairs: then})
			continue
		}
		when, err := newPattern(req.When, g)
		if err != nil {
			return nil, fmt.Errorf("%w: required combination %d: when: %v", ErrInvalidConstraint, i+1, err)
		}
		if when.conflicts(then) {
			return nil, fmt.Errorf("%w: required combination %d: when %s conflicts with then %s",
				ErrInvalidConstraint, i+1, when.render(g), then.render(g))
		}
		r.anchored = append(r.anchored, anchoredRule{name: name, when: when, then: then})
	}

	// Step 3: balance bounds
	for i, b := range cs.Balance {
		col, ok := g.AttributeIndex(b.Attribute)
		if !ok {
			return nil, fmt.Errorf("%w: level balance constraint %d: unknown attribute %q", ErrInvalidConstraint, i+1, b.Attribute)
		}
		tol := DefaultTolerance
		if b.Tolerance != nil {
			tol = *b.Tolerance
		}
		if tol < 0 || tol > 1 {
			return nil, fmt.Errorf("%w: level balance constraint %d: tolerance %.3f must be within [0, 1]", ErrInvalidConstraint, i+1, tol)
		}
		if b.MinFrequency != nil && *b.MinFrequency < 0 {
			return nil, fmt.Errorf("%w: level balance constraint %d: min_frequency cannot be negative", ErrInvalidConstraint, i+1)
		}
		if b.MinFrequency != nil && b.MaxFrequency != nil && *b.MinFrequency > *b.MaxFrequency {
			return nil, fmt.Errorf("%w: level balance constraint %d: min_frequency %d exceeds max_frequency %d",
				ErrInvalidConstraint, i+1, *b.MinFrequency, *b.MaxFrequency)
		}
		r.balance = append(r.balance, balanceRule{
			name:      fmt.Sprintf("balance[%s]", b.Attribute),
			attr:      col,
			min:       b.MinFrequency,
			max:       b.MaxFrequency,
			tolerance: tol,
		})
	}

	// Step 4: custom rules
	seen := make(map[string]bool, len(cs.CustomRules))
	for _, rule := range cs.CustomRules {
		if seen[rule.Name] {
			return nil, fmt.Errorf("%w: duplicate custom rule name %q", ErrInvalidConstraint, rule.Name)
		}
		seen[rule.Name] = true
		c, err := compileCustomRule(rule, g)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidConstraint, err)
		}
		r.custom = append(r.custom, c)
	}

	// Step 5: contradictions between required and prohibited rules
	if err := r.checkContradictions(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConstraint, err)
	}

	return r, nil
}

// checkContradictions looks for combinations that are simultaneously
// required and prohibited
func (r *CompiledRules) checkContradictions() error {
	g := r.grid

	for _, a := range r.anchored {
		forced := a.when.merge(a.then)
		for _, p := range r.prohibited {
			if p.pat.subsetOf(forced) {
				return fmt.Errorf("%s forces %s which %s prohibits", a.name, forced.render(g), p.name)
			}
		}
	}

	for _, req := range r.required {
		for _, p := range r.prohibited {
			if p.pat.subsetOf(req.Pairs) {
				return fmt.Errorf("%s requires %s which %s prohibits", req.Name, pattern(req.Pairs).render(g), p.name)
			}
		}
		for _, a := range r.anchored {
			if a.when.subsetOf(req.Pairs) && a.then.conflicts(req.Pairs) {
				return fmt.Errorf("%s requires %s but %s forces %s on it",
					req.Name, pattern(req.Pairs).render(g), a.name, a.then.render(g))
			}
		}
	}

	for i, a := range r.anchored {
		for j, b := range r.anchored {
			if i == j || !a.when.subsetOf(b.when) {
				continue
			}
			if a.then.conflicts(b.then) {
				return fmt.Errorf("%s and %s force conflicting levels on %s", a.name, b.name, b.when.render(g))
			}
		}
	}

	return nil
}

// Grid returns the grid the rules were compiled against
func (r *CompiledRules) Grid() design.Grid {
	return r.grid
}

// Summary counts the rules of each kind
func (r *CompiledRules) Summary() Summary {
	if r == nil {
		return Summary{}
	}
	return r.summary
}

// HasOptionRules reports whether any per-option rule exists, letting
// generators skip the check entirely
func (r *CompiledRules) HasOptionRules() bool {
	return r != nil && (len(r.prohibited) > 0 || len(r.anchored) > 0 || len(r.custom) > 0)
}

// Allows is the per-option predicate every generator consults. It has no
// side effects; balance bounds are design-wide and not checked here.
func (r *CompiledRules) Allows(p design.Profile) bool {
	if !r.HasOptionRules() {
		return true
	}
	for _, pr := range r.prohibited {
		if pr.pat.matches(p) {
			return false
		}
	}
	for _, a := range r.anchored {
		if a.when.matches(p) && !a.then.matches(p) {
			return false
		}
	}
	if len(r.custom) > 0 {
		opt := r.grid.Decode(p)
		for _, c := range r.custom {
			if ok, err := c.allows(opt, p, r.grid); err != nil || !ok {
				return false
			}
		}
	}
	return true
}

// IsAllowed is Allows over the option form. Options that do not fit the
// grid are never allowed.
func (r *CompiledRules) IsAllowed(opt design.Option) bool {
	if r == nil {
		return true
	}
	p, err := r.grid.Encode(opt)
	if err != nil {
		return false
	}
	return r.Allows(p)
}

// IsAllowed reports whether opt satisfies every per-option rule
func IsAllowed(opt design.Option, r *CompiledRules) bool {
	return r.IsAllowed(opt)
}

// Requirements returns the unanchored required combinations that must each
// appear somewhere in a design
func (r *CompiledRules) Requirements() []Requirement {
	if r == nil {
		return nil
	}
	return append([]Requirement(nil), r.required...)
}

// requirementSearchBudget bounds the branch-and-bound searches over
// requirement sets
const requirementSearchBudget = 1 << 16

// shareable reports whether two requirement patterns fit one slot: they pin
// no attribute to different levels and their union is not prohibited
func (r *CompiledRules) shareable(p, q pattern) bool {
	return !p.conflicts(q) && !r.prohibitsPartial(p.merge(q))
}

// MinimumSlots is a lower bound on the option slots the unanchored
// requirements need: the size of the largest set of requirements in which
// no two can share a slot. A search cut short by its budget still returns
// a valid bound.
func (r *CompiledRules) MinimumSlots() int {
	if r == nil || len(r.required) == 0 {
		return 0
	}
	n := len(r.required)
	clash := make([][]bool, n)
	for i := range clash {
		clash[i] = make([]bool, n)
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			c := !r.shareable(r.required[i].Pairs, r.required[j].Pairs)
			clash[i][j], clash[j][i] = c, c
		}
	}

	best, budget := 0, requirementSearchBudget
	var grow func(size int, cand []int)
	grow = func(size int, cand []int) {
		best = max(best, size)
		for i, c := range cand {
			if size+len(cand)-i <= best || budget <= 0 {
				return
			}
			budget--
			var next []int
			for _, d := range cand[i+1:] {
				if clash[c][d] {
					next = append(next, d)
				}
			}
			grow(size+1, next)
		}
	}
	all := make([]int, n)
	for i := range all {
		all[i] = i
	}
	grow(0, all)
	return best
}

// Pack groups the unanchored requirements into at most limit groups whose
// members can all share one option slot. Groups hold indexes into
// Requirements. ok is false when no packing is found within the search
// budget.
func (r *CompiledRules) Pack(limit int) (groups [][]int, ok bool) {
	if r == nil || len(r.required) == 0 {
		return nil, true
	}
	order := make([]int, len(r.required))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(i, j int) bool {
		return len(r.required[order[i]].Pairs) > len(r.required[order[j]].Pairs)
	})

	var merged []pattern
	budget := requirementSearchBudget
	var place func(k int) bool
	place = func(k int) bool {
		if k == len(order) {
			return true
		}
		if budget <= 0 {
			return false
		}
		budget--
		idx := order[k]
		pat := pattern(r.required[idx].Pairs)
		for g := range groups {
			if !r.shareable(merged[g], pat) {
				continue
			}
			prev := merged[g]
			merged[g] = prev.merge(pat)
			groups[g] = append(groups[g], idx)
			if place(k + 1) {
				return true
			}
			merged[g] = prev
			groups[g] = groups[g][:len(groups[g])-1]
		}
		// One new group per level: empty groups are interchangeable
		if len(groups) < limit {
			groups = append(groups, []int{idx})
			merged = append(merged, append(pattern(nil), pat...))
			if place(k + 1) {
				return true
			}
			groups = groups[:len(groups)-1]
			merged = merged[:len(merged)-1]
		}
		return false
	}
	if !place(0) {
		return nil, false
	}
	return groups, true
}

// prohibitsPartial reports whether every completion of the partial pattern
// is ruled out by a prohibited combination
func (r *CompiledRules) prohibitsPartial(p pattern) bool {
	for _, pr := range r.prohibited {
		if pr.pat.subsetOf(p) {
			return true
		}
	}
	return false
}
