package generator

import (
	"fmt"
	"math/rand"

	"github.com/halderavik/cbc-design-MCP/constraints"
	"github.com/halderavik/cbc-design-MCP/design"
)

// placeRequirements makes every unanchored required combination appear at
// least once. Requirements are packed into groups that can share a slot;
// a group no slot already hosts is written into a random free slot whose
// result is allowed and not a duplicate in its task. Slots are modified in
// place. One warning is returned per requirement left unsatisfied.
func placeRequirements(tasks [][]design.Profile, req Request, rng *rand.Rand) []string {
	reqs := req.Rules.Requirements()
	if len(reqs) == 0 || len(tasks) == 0 {
		return nil
	}
	per := len(tasks[0])
	total := len(tasks) * per
	if len(missingRequirements(tasks, reqs)) == 0 {
		return nil
	}

	groups, ok := req.Rules.Pack(total)
	if !ok {
		groups = make([][]int, len(reqs))
		for r := range reqs {
			groups[r] = []int{r}
		}
	}

	// Slots already hosting a whole group are kept for it
	reserved := make(map[int]bool)
	var pending [][]int
	for _, grp := range groups {
		host := -1
		for i := 0; i < total && host < 0; i++ {
			if !reserved[i] && hostsGroup(tasks[i/per][i%per], reqs, grp) {
				host = i
			}
		}
		if host >= 0 {
			reserved[host] = true
		} else {
			pending = append(pending, grp)
		}
	}

	for _, grp := range pending {
		for _, i := range rng.Perm(total) {
			if reserved[i] {
				continue
			}
			t, o := i/per, i%per
			cand := tasks[t][o]
			for _, r := range grp {
				cand = reqs[r].Apply(cand)
			}
			if !req.Rules.Allows(cand) {
				continue
			}
			prev := tasks[t][o]
			tasks[t][o] = cand
			if !req.Params.AllowDuplicates && duplicateAt(tasks[t], o) {
				tasks[t][o] = prev
				continue
			}
			reserved[i] = true
			break
		}
	}

	var warnings []string
	for _, r := range missingRequirements(tasks, reqs) {
		warnings = append(warnings, fmt.Sprintf("%s: required combination could not be placed", reqs[r].Name))
	}
	return warnings
}

func hostsGroup(p design.Profile, reqs []constraints.Requirement, grp []int) bool {
	for _, r := range grp {
		if !reqs[r].SatisfiedBy(p) {
			return false
		}
	}
	return true
}

// missingRequirements lists the requirements no option of the design carries
func missingRequirements(tasks [][]design.Profile, reqs []constraints.Requirement) []int {
	var missing []int
	for r, rq := range reqs {
		found := false
		for _, task := range tasks {
			for _, p := range task {
				if rq.SatisfiedBy(p) {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if !found {
			missing = append(missing, r)
		}
	}
	return missing
}
