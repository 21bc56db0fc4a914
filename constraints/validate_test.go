package constraints

import (
	"strings"
	"testing"

	"github.com/halderavik/cbc-design-MCP/design"
)

func buildDesign(g design.Grid, tasks [][]design.Profile) design.Design {
	return design.Build(g, tasks, design.Provenance{Requested: design.MethodRandom, Delivered: design.MethodRandom})
}

func TestValidate_CleanDesign(t *testing.T) {
	g := laptopGrid()
	r := mustCompile(t, ConstraintSet{
		Prohibited: []Prohibited{{Levels: Assignment{"Brand": "Acme", "Price": "$1299"}}},
	})
	d := buildDesign(g, [][]design.Profile{
		{{0, 0, 0, 0}, {1, 1, 1, 1}, {2, 2, 2, 2}},
		{{1, 2, 0, 2}, {2, 0, 1, 0}, {0, 1, 2, 1}},
	})

	rep := Validate(d, r)
	if !rep.Valid {
		t.Fatalf("expected valid design, got: %s %+v", rep, rep.Violations)
	}
	if len(rep.Violations) != 0 {
		t.Errorf("expected no violations, got %d", len(rep.Violations))
	}
	if rep.Summary.Prohibited != 1 {
		t.Errorf("summary should count the prohibited rule, got %+v", rep.Summary)
	}
}

func TestValidate_ReportsEachKind(t *testing.T) {
	g := laptopGrid()
	r := mustCompile(t, ConstraintSet{
		Prohibited: []Prohibited{{Levels: Assignment{"Brand": "Acme", "Price": "$1299"}}},
		Required: []Required{
			{When: Assignment{"CPU": "i9"}, Then: Assignment{"RAM": "32GB"}},
			{Then: Assignment{"Brand": "Initech", "CPU": "i7"}},
		},
		Balance:     []LevelBalance{{Attribute: "Brand", Tolerance: floatPtr(0)}},
		CustomRules: []CustomRule{{Name: "no-globex-8gb", Condition: `option["Brand"] == "Globex" && option["RAM"] == "8GB"`}},
	})

	d := buildDesign(g, [][]design.Profile{
		{{0, 0, 0, 2}, {0, 0, 0, 2}}, // prohibited twice, duplicate once
		{{1, 2, 0, 0}, {1, 0, 1, 0}}, // i9 without 32GB, Globex with 8GB
	})

	rep := Validate(d, r)
	if rep.Valid {
		t.Fatal("expected invalid design")
	}

	// Brand counts are Acme 2, Globex 2, Initech 0 against an expected 4/3,
	// so with zero tolerance the band is [1, 2] and only Initech is out.
	want := map[Kind]int{
		KindProhibited: 2,
		KindDuplicate:  1,
		KindRequired:   2, // anchored violation + missing unanchored combination
		KindCustom:     1,
		KindBalance:    1,
	}

	for kind, n := range want {
		if got := rep.Count(kind); got != n {
			t.Errorf("%s violations = %d, want %d (%+v)", kind, got, n, rep.Violations)
		}
	}
	if rep.ByRule["prohibited[1]"] != 2 {
		t.Errorf("ByRule[prohibited[1]] = %d, want 2", rep.ByRule["prohibited[1]"])
	}
	if rep.ByRule["no-globex-8gb"] != 1 {
		t.Errorf("ByRule[no-globex-8gb] = %d, want 1", rep.ByRule["no-globex-8gb"])
	}
	if !strings.Contains(rep.String(), "violations") {
		t.Errorf("unexpected summary string %q", rep.String())
	}
}

func TestValidate_Structure(t *testing.T) {
	r := mustCompile(t, ConstraintSet{})
	d := design.Design{Tasks: []design.ChoiceTask{
		{Index: 1, Options: []design.Option{
			{"Brand": "Acme", "CPU": "i5", "RAM": "8GB", "Price": "$799"},
			{"Brand": "Acme", "CPU": "i5", "RAM": "8GB", "Price": "$5"},
		}},
		{Index: 3, Options: []design.Option{
			{"Brand": "Acme", "CPU": "i5", "RAM": "8GB", "Price": "$799"},
		}},
	}}

	rep := Validate(d, r)
	// unknown level, index gap, short task
	if got := rep.Count(KindStructure); got != 3 {
		t.Errorf("structure violations = %d, want 3: %+v", got, rep.Violations)
	}
}

func TestValidate_BalanceExplicitBounds(t *testing.T) {
	g := design.Grid{Attributes: []design.Attribute{
		{Name: "Brand", Levels: []string{"A", "B"}},
		{Name: "Price", Levels: []string{"Low", "High"}},
	}}
	r, err := Compile(ConstraintSet{Balance: []LevelBalance{
		{Attribute: "Brand", MinFrequency: intPtr(1), MaxFrequency: intPtr(3)},
	}}, g)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	d := buildDesign(g, [][]design.Profile{
		{{0, 0}, {0, 1}},
		{{0, 0}, {0, 1}},
	})
	rep := Validate(d, r)
	// A occurs 4 times (> 3) and B never (< 1)
	if got := rep.Count(KindBalance); got != 2 {
		t.Errorf("balance violations = %d, want 2: %+v", got, rep.Violations)
	}
	if got := rep.Count(KindDuplicate); got != 0 {
		t.Errorf("duplicates across tasks are allowed, got %d", got)
	}
}
