package quality

import (
	"encoding/json"
	"fmt"
	"math"

	"github.com/halderavik/cbc-design-MCP/design"
)

// LevelFrequency is how often one level occurs across all option slots
type LevelFrequency struct {
	Level string  `json:"level"`
	Count int     `json:"count"`
	Share float64 `json:"share"`
}

// AttributeFrequency is the frequency table of one attribute
type AttributeFrequency struct {
	Attribute string           `json:"attribute"`
	Levels    []LevelFrequency `json:"levels"`
	Balance   float64          `json:"balance"`
}

// Report holds the quality metrics of one design
type Report struct {
	DEfficiency  float64              `json:"d_efficiency"`
	LogDet       float64              `json:"log_det"`
	Singular     bool                 `json:"singular"`
	Parameters   int                  `json:"parameters"`
	Observations int                  `json:"observations"`
	BalanceScore float64              `json:"balance_score"`
	Frequencies  []AttributeFrequency `json:"frequencies"`
}

// MarshalJSON writes a singular log-determinant as null; JSON has no -Inf
func (r Report) MarshalJSON() ([]byte, error) {
	type plain Report
	out := struct {
		plain
		LogDet *float64 `json:"log_det"`
	}{plain: plain(r)}
	if !math.IsInf(r.LogDet, 0) && !math.IsNaN(r.LogDet) {
		out.LogDet = &r.LogDet
	}
	return json.Marshal(out)
}

// Evaluate scores a design against its grid. It fails only when an option
// does not fit the grid.
func Evaluate(d design.Design, g design.Grid) (Report, error) {
	tasks, err := d.Profiles(g)
	if err != nil {
		return Report{}, fmt.Errorf("cannot evaluate design: %w", err)
	}
	return EvaluateProfiles(g, flatten(tasks)), nil
}

// EvaluateProfiles scores a flat list of option profiles
func EvaluateProfiles(g design.Grid, profiles []design.Profile) Report {
	coder := NewCoder(g)
	ld := LogDet(coder.Information(profiles))
	freq := Frequencies(g, profiles)

	rep := Report{
		DEfficiency:  DEfficiency(ld, g, len(profiles)),
		LogDet:       ld,
		Singular:     math.IsInf(ld, -1),
		Parameters:   coder.Params(),
		Observations: len(profiles),
		Frequencies:  freq,
	}
	if len(freq) > 0 {
		sum := 0.0
		for _, f := range freq {
			sum += f.Balance
		}
		rep.BalanceScore = sum / float64(len(freq))
	}
	return rep
}

// Score is log det(X'X) for a flat list of profiles, -Inf when singular
func Score(g design.Grid, profiles []design.Profile) float64 {
	return LogDet(NewCoder(g).Information(profiles))
}

// Frequencies builds the per-attribute level table. An attribute's balance
// is 1 - sum|count-expected| / (2N(1-1/k)): 1 for perfectly even counts,
// 0 when every slot shows the same level.
func Frequencies(g design.Grid, profiles []design.Profile) []AttributeFrequency {
	n := len(profiles)
	out := make([]AttributeFrequency, len(g.Attributes))
	for a, attr := range g.Attributes {
		k := len(attr.Levels)
		counts := make([]int, k)
		for _, p := range profiles {
			counts[p[a]]++
		}

		af := AttributeFrequency{Attribute: attr.Name, Levels: make([]LevelFrequency, k), Balance: 1}
		expected := float64(n) / float64(k)
		dev := 0.0
		for l, c := range counts {
			lf := LevelFrequency{Level: attr.Levels[l], Count: c}
			if n > 0 {
				lf.Share = float64(c) / float64(n)
			}
			af.Levels[l] = lf
			dev += math.Abs(float64(c) - expected)
		}
		if maxDev := 2 * float64(n) * (1 - 1/float64(k)); n > 0 && maxDev > 0 {
			af.Balance = 1 - dev/maxDev
		}
		out[a] = af
	}
	return out
}

func flatten(tasks [][]design.Profile) []design.Profile {
	var out []design.Profile
	for _, task := range tasks {
		out = append(out, task...)
	}
	return out
}
