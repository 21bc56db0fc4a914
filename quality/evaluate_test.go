package quality

import (
	"encoding/json"
	"math"
	"strings"
	"testing"

	"github.com/halderavik/cbc-design-MCP/design"
)

func grid3x3() design.Grid {
	return design.Grid{Attributes: []design.Attribute{
		{Name: "Brand", Levels: []string{"A", "B", "C"}},
		{Name: "Price", Levels: []string{"Low", "Mid", "High"}},
	}}
}

func fullFactorial() []design.Profile {
	var out []design.Profile
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			out = append(out, design.Profile{i, j})
		}
	}
	return out
}

func TestCoderRow(t *testing.T) {
	c := NewCoder(grid3x3())
	if c.Params() != 4 {
		t.Fatalf("Params = %d, want 4", c.Params())
	}

	testCases := []struct {
		profile design.Profile
		want    []float64
	}{
		{design.Profile{0, 0}, []float64{1, 0, 1, 0}},
		{design.Profile{1, 2}, []float64{0, 1, -1, -1}},
		{design.Profile{2, 1}, []float64{-1, -1, 0, 1}},
	}
	for _, tc := range testCases {
		got := c.Row(tc.profile, nil)
		for i := range tc.want {
			if got[i] != tc.want[i] {
				t.Errorf("Row(%v) = %v, want %v", tc.profile, got, tc.want)
				break
			}
		}
	}
}

func TestEvaluateProfiles_FullFactorialIsIdeal(t *testing.T) {
	rep := EvaluateProfiles(grid3x3(), fullFactorial())

	if math.Abs(rep.DEfficiency-1) > 1e-9 {
		t.Errorf("DEfficiency = %v, want 1", rep.DEfficiency)
	}
	if math.Abs(rep.BalanceScore-1) > 1e-12 {
		t.Errorf("BalanceScore = %v, want 1", rep.BalanceScore)
	}
	if rep.Singular {
		t.Error("full factorial should not be singular")
	}
	if rep.Observations != 9 || rep.Parameters != 4 {
		t.Errorf("unexpected sizes: observations=%d parameters=%d", rep.Observations, rep.Parameters)
	}
	if share := rep.Frequencies[0].Levels[0].Share; math.Abs(share-1.0/3) > 1e-12 {
		t.Errorf("share = %v, want 1/3", share)
	}
}

func TestEvaluateProfiles_Singular(t *testing.T) {
	profiles := []design.Profile{{0, 0}, {0, 0}, {0, 0}}
	rep := EvaluateProfiles(grid3x3(), profiles)

	if !rep.Singular || rep.DEfficiency != 0 {
		t.Errorf("expected singular design with zero efficiency, got %+v", rep)
	}
	if rep.BalanceScore != 0 {
		t.Errorf("BalanceScore = %v, want 0 when every slot shows one level", rep.BalanceScore)
	}

	data, err := json.Marshal(rep)
	if err != nil {
		t.Fatalf("Marshal failed: %v", err)
	}
	if !strings.Contains(string(data), `"log_det":null`) {
		t.Errorf("singular log_det should marshal as null: %s", data)
	}
}

func TestEvaluateProfiles_WorseDesignScoresLower(t *testing.T) {
	g := grid3x3()
	good := EvaluateProfiles(g, fullFactorial())
	skewed := EvaluateProfiles(g, []design.Profile{
		{0, 0}, {0, 1}, {1, 0}, {1, 1}, {2, 2}, {0, 0}, {0, 1}, {1, 0}, {2, 1},
	})
	if skewed.Singular {
		t.Fatal("skewed design should still be estimable")
	}
	if skewed.DEfficiency >= good.DEfficiency {
		t.Errorf("skewed efficiency %v should be below ideal %v", skewed.DEfficiency, good.DEfficiency)
	}
	if skewed.BalanceScore >= good.BalanceScore {
		t.Errorf("skewed balance %v should be below ideal %v", skewed.BalanceScore, good.BalanceScore)
	}
}

func TestCoderSwapMatchesRecompute(t *testing.T) {
	g := grid3x3()
	c := NewCoder(g)
	profiles := fullFactorial()
	m := c.Information(profiles)

	c.Swap(m, profiles[4], design.Profile{2, 2})
	profiles[4] = design.Profile{2, 2}

	want := LogDet(c.Information(profiles))
	got := LogDet(m)
	if math.Abs(got-want) > 1e-9 {
		t.Errorf("LogDet after Swap = %v, recomputed = %v", got, want)
	}
}

func TestEvaluate_RejectsForeignOptions(t *testing.T) {
	d := design.Design{Tasks: []design.ChoiceTask{{Index: 1, Options: []design.Option{{"Brand": "Z", "Price": "Low"}}}}}
	if _, err := Evaluate(d, grid3x3()); err == nil {
		t.Error("expected error for option outside the grid")
	}
}
