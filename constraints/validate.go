package constraints

import (
	"fmt"
	"strings"

	"github.com/halderavik/cbc-design-MCP/design"
)

// Kind classifies a violation
type Kind string

const (
	KindProhibited Kind = "prohibited"
	KindRequired   Kind = "required"
	KindBalance    Kind = "balance"
	KindCustom     Kind = "custom"
	KindDuplicate  Kind = "duplicate"
	KindStructure  Kind = "structure"
)

// Violation is one broken rule. Task and Option are 1-based and zero when
// the violation is design-wide.
type Violation struct {
	Kind    Kind   `json:"kind"`
	Rule    string `json:"rule,omitempty"`
	Task    int    `json:"task_index,omitempty"`
	Option  int    `json:"option_index,omitempty"`
	Message string `json:"message"`
}

// Report is the result of checking a whole design against compiled rules
type Report struct {
	Valid      bool           `json:"valid"`
	Violations []Violation    `json:"violations"`
	Counts     map[Kind]int   `json:"counts"`
	ByRule     map[string]int `json:"by_rule"`
	Summary    Summary        `json:"constraint_summary"`
}

func (rep *Report) add(v Violation) {
	rep.Violations = append(rep.Violations, v)
	rep.Counts[v.Kind]++
	if v.Rule != "" {
		rep.ByRule[v.Rule]++
	}
}

// Count returns the number of violations of one kind
func (rep Report) Count(k Kind) int {
	return rep.Counts[k]
}

// String renders a short human summary
func (rep Report) String() string {
	if rep.Valid {
		return "design satisfies all constraints"
	}
	kinds := []Kind{KindStructure, KindDuplicate, KindProhibited, KindRequired, KindCustom, KindBalance}
	var parts []string
	for _, k := range kinds {
		if n := rep.Counts[k]; n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", n, k))
		}
	}
	return fmt.Sprintf("%d violations (%s)", len(rep.Violations), strings.Join(parts, ", "))
}

// Validate checks a design produced anywhere against the compiled rules.
// Options that cannot be encoded against the grid are structure
// violations and are skipped by every other check.
func Validate(d design.Design, r *CompiledRules) Report {
	rep := Report{
		Violations: []Violation{},
		Counts:     make(map[Kind]int),
		ByRule:     make(map[string]int),
		Summary:    r.Summary(),
	}
	if r == nil {
		rep.Valid = true
		return rep
	}
	g := r.grid

	var profiles []design.Profile
	optionsPerTask := -1
	for t, task := range d.Tasks {
		if task.Index != t+1 {
			rep.add(Violation{Kind: KindStructure, Task: t + 1,
				Message: fmt.Sprintf("task at position %d has index %d", t+1, task.Index)})
		}
		if optionsPerTask < 0 {
			optionsPerTask = len(task.Options)
		} else if len(task.Options) != optionsPerTask {
			rep.add(Violation{Kind: KindStructure, Task: t + 1,
				Message: fmt.Sprintf("task has %d options, expected %d", len(task.Options), optionsPerTask)})
		}

		var inTask []design.Profile
		for o, opt := range task.Options {
			p, err := g.Encode(opt)
			if err != nil {
				rep.add(Violation{Kind: KindStructure, Task: t + 1, Option: o + 1, Message: err.Error()})
				continue
			}
			for prev, q := range inTask {
				if q.Equal(p) {
					rep.add(Violation{Kind: KindDuplicate, Task: t + 1, Option: o + 1,
						Message: fmt.Sprintf("option duplicates option %d", prev+1)})
					break
				}
			}
			inTask = append(inTask, p)
			profiles = append(profiles, p)
			r.checkOption(&rep, p, t+1, o+1)
		}
	}

	for _, req := range r.required {
		found := false
		for _, p := range profiles {
			if req.SatisfiedBy(p) {
				found = true
				break
			}
		}
		if !found {
			rep.add(Violation{Kind: KindRequired, Rule: req.Name,
				Message: fmt.Sprintf("combination %s never appears", pattern(req.Pairs).render(g))})
		}
	}

	r.checkBalance(&rep, profiles)

	rep.Valid = len(rep.Violations) == 0
	return rep
}

func (r *CompiledRules) checkOption(rep *Report, p design.Profile, task, option int) {
	g := r.grid
	for _, pr := range r.prohibited {
		if pr.pat.matches(p) {
			rep.add(Violation{Kind: KindProhibited, Rule: pr.name, Task: task, Option: option,
				Message: fmt.Sprintf("contains prohibited combination %s", pr.pat.render(g))})
		}
	}
	for _, a := range r.anchored {
		if a.when.matches(p) && !a.then.matches(p) {
			rep.add(Violation{Kind: KindRequired, Rule: a.name, Task: task, Option: option,
				Message: fmt.Sprintf("%s present without %s", a.when.render(g), a.then.render(g))})
		}
	}
	if len(r.custom) == 0 {
		return
	}
	opt := g.Decode(p)
	for _, c := range r.custom {
		ok, err := c.allows(opt, p, g)
		switch {
		case err != nil:
			rep.add(Violation{Kind: KindCustom, Rule: c.name, Task: task, Option: option,
				Message: fmt.Sprintf("evaluation failed: %v", err)})
		case !ok:
			rep.add(Violation{Kind: KindCustom, Rule: c.name, Task: task, Option: option,
				Message: fmt.Sprintf("rejected by %s rule", c.action)})
		}
	}
}

func (r *CompiledRules) checkBalance(rep *Report, profiles []design.Profile) {
	if len(r.balance) == 0 || len(profiles) == 0 {
		return
	}
	for _, b := range r.balance {
		attr := r.grid.Attributes[b.attr]
		counts := make([]int, len(attr.Levels))
		for _, p := range profiles {
			counts[p[b.attr]]++
		}
		lo, hi := b.bounds(len(profiles), len(attr.Levels))
		for lvl, n := range counts {
			if n < lo || n > hi {
				rep.add(Violation{Kind: KindBalance, Rule: b.name,
					Message: fmt.Sprintf("%s=%s occurs %d times, allowed range [%d, %d]", attr.Name, attr.Levels[lvl], n, lo, hi)})
			}
		}
	}
}
