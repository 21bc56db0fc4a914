package design

import (
	"fmt"
	"strings"
)

// ChoiceTask is one screen shown to a respondent
type ChoiceTask struct {
	Index   int      `json:"task_index" yaml:"task_index"`
	Options []Option `json:"options" yaml:"options"`
}

// Provenance records which method was asked for and which one actually
// produced the tasks. Fallbacks holds one reason per transition taken.
type Provenance struct {
	Requested Method   `json:"requested" yaml:"requested"`
	Delivered Method   `json:"delivered" yaml:"delivered"`
	Fallbacks []string `json:"fallbacks,omitempty" yaml:"fallbacks,omitempty"`
}

// FellBack reports whether the delivered method differs from the requested one
func (p Provenance) FellBack() bool {
	return p.Requested != p.Delivered
}

// Tag renders the provenance as "orthogonal" or "orthogonal->balanced"
func (p Provenance) Tag() string {
	if !p.FellBack() {
		return string(p.Delivered)
	}
	return string(p.Requested) + "->" + string(p.Delivered)
}

// Design is an immutable set of choice tasks plus its quality score.
// Any further generation creates a new Design.
type Design struct {
	Tasks        []ChoiceTask `json:"tasks" yaml:"tasks"`
	Provenance   Provenance   `json:"provenance" yaml:"provenance"`
	Efficiency   float64      `json:"efficiency" yaml:"efficiency"`
	BalanceScore float64      `json:"balance_score" yaml:"balance_score"`
	Seed         int64        `json:"seed" yaml:"seed"`
	// Warnings lists constraint violations a strategy accepted to terminate
	Warnings []string `json:"warnings,omitempty" yaml:"warnings,omitempty"`
}

// Build decodes profile rows into a Design with 1-based, gap-free task indexes
func Build(g Grid, tasks [][]Profile, prov Provenance) Design {
	d := Design{
		Tasks:      make([]ChoiceTask, len(tasks)),
		Provenance: prov,
	}
	for t, profiles := range tasks {
		opts := make([]Option, len(profiles))
		for o, p := range profiles {
			opts[o] = g.Decode(p)
		}
		d.Tasks[t] = ChoiceTask{Index: t + 1, Options: opts}
	}
	return d
}

// NumOptions returns the total number of option slots across all tasks
func (d Design) NumOptions() int {
	n := 0
	for _, task := range d.Tasks {
		n += len(task.Options)
	}
	return n
}

// Profiles encodes every option of the design against g
func (d Design) Profiles(g Grid) ([][]Profile, error) {
	out := make([][]Profile, len(d.Tasks))
	for t, task := range d.Tasks {
		out[t] = make([]Profile, len(task.Options))
		for o, opt := range task.Options {
			p, err := g.Encode(opt)
			if err != nil {
				return nil, fmt.Errorf("task %d option %d: %w", task.Index, o+1, err)
			}
			out[t][o] = p
		}
	}
	return out, nil
}

// Clone returns a deep copy sharing no maps or slices with d
func (d Design) Clone() Design {
	c := d
	c.Tasks = make([]ChoiceTask, len(d.Tasks))
	for i, task := range d.Tasks {
		opts := make([]Option, len(task.Options))
		for j, opt := range task.Options {
			opts[j] = opt.Clone()
		}
		c.Tasks[i] = ChoiceTask{Index: task.Index, Options: opts}
	}
	c.Provenance.Fallbacks = append([]string(nil), d.Provenance.Fallbacks...)
	c.Warnings = append([]string(nil), d.Warnings...)
	return c
}

// String gives a compact one-line description for logs
func (d Design) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "design[%s] %d tasks", d.Provenance.Tag(), len(d.Tasks))
	if len(d.Tasks) > 0 {
		fmt.Fprintf(&b, " x %d options", len(d.Tasks[0].Options))
	}
	fmt.Fprintf(&b, " efficiency=%.4f", d.Efficiency)
	return b.String()
}
