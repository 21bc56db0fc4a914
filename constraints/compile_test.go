package constraints

import (
	"errors"
	"strings"
	"testing"

	"github.com/halderavik/cbc-design-MCP/design"
)

func laptopGrid() design.Grid {
	return design.Grid{Attributes: []design.Attribute{
		{Name: "Brand", Levels: []string{"Acme", "Globex", "Initech"}},
		{Name: "CPU", Levels: []string{"i5", "i7", "i9"}},
		{Name: "RAM", Levels: []string{"8GB", "16GB", "32GB"}},
		{Name: "Price", Levels: []string{"$799", "$999", "$1299"}},
	}}
}

func intPtr(n int) *int { return &n }

func floatPtr(f float64) *float64 { return &f }

func mustCompile(t *testing.T, cs ConstraintSet) *CompiledRules {
	t.Helper()
	r, err := Compile(cs, laptopGrid())
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}
	return r
}

func TestCompile_Empty(t *testing.T) {
	r := mustCompile(t, ConstraintSet{})
	if r.HasOptionRules() {
		t.Error("empty set should have no option rules")
	}
	if !r.Allows(design.Profile{0, 0, 0, 0}) {
		t.Error("empty set should allow every profile")
	}
}

func TestCompile_NilRulesAllowEverything(t *testing.T) {
	var r *CompiledRules
	if !r.IsAllowed(design.Option{"Brand": "Acme"}) {
		t.Error("nil rules should allow everything")
	}
	if r.MinimumSlots() != 0 || len(r.Requirements()) != 0 {
		t.Error("nil rules should carry no requirements")
	}
}

func TestCompile_InvalidReferences(t *testing.T) {
	testCases := []struct {
		name     string
		set      ConstraintSet
		contains string
	}{
		{"Unknown prohibited attribute", ConstraintSet{Prohibited: []Prohibited{{Levels: Assignment{"Colour": "Red"}}}}, "unknown attribute"},
		{"Unknown prohibited level", ConstraintSet{Prohibited: []Prohibited{{Levels: Assignment{"Brand": "Umbrella"}}}}, "unknown level"},
		{"Empty prohibited", ConstraintSet{Prohibited: []Prohibited{{}}}, "empty"},
		{"Unknown required then", ConstraintSet{Required: []Required{{Then: Assignment{"CPU": "M3"}}}}, "unknown level"},
		{"Unknown required when", ConstraintSet{Required: []Required{{When: Assignment{"GPU": "x"}, Then: Assignment{"CPU": "i9"}}}}, "unknown attribute"},
		{"Unknown balance attribute", ConstraintSet{Balance: []LevelBalance{{Attribute: "Weight"}}}, "unknown attribute"},
		{"Bad tolerance", ConstraintSet{Balance: []LevelBalance{{Attribute: "Brand", Tolerance: floatPtr(1.5)}}}, "tolerance"},
		{"Min above max", ConstraintSet{Balance: []LevelBalance{{Attribute: "Brand", MinFrequency: intPtr(5), MaxFrequency: intPtr(2)}}}, "exceeds max_frequency"},
		{"Custom rule without body", ConstraintSet{CustomRules: []CustomRule{{Name: "empty"}}}, "exactly one"},
		{"Custom rule bad action", ConstraintSet{CustomRules: []CustomRule{{Name: "x", Condition: "true", Action: "skip"}}}, "unknown action"},
		{"Custom rule not bool", ConstraintSet{CustomRules: []CustomRule{{Name: "x", Condition: `index["Price"] + 1`}}}, "must evaluate to bool"},
		{"Custom rule syntax", ConstraintSet{CustomRules: []CustomRule{{Name: "x", Condition: `option["Brand"] ==`}}}, "compile error"},
		{"Custom rule unknown attribute", ConstraintSet{CustomRules: []CustomRule{{Name: "x", Condition: `option["Colour"] == "Red"`}}}, "unknown attribute"},
		{"Custom rule unknown level", ConstraintSet{CustomRules: []CustomRule{{Name: "x", Condition: `option["Brand"] == "Umbrella"`}}}, "unknown level"},
		{"Duplicate custom rule", ConstraintSet{CustomRules: []CustomRule{{Name: "x", Condition: "true"}, {Name: "x", Condition: "false"}}}, "duplicate custom rule"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.set, laptopGrid())
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !errors.Is(err, ErrInvalidConstraint) {
				t.Errorf("expected ErrInvalidConstraint, got: %v", err)
			}
			if !strings.Contains(err.Error(), tc.contains) {
				t.Errorf("expected error to mention %q, got: %v", tc.contains, err)
			}
		})
	}
}

func TestCompile_InvalidGrid(t *testing.T) {
	_, err := Compile(ConstraintSet{}, design.Grid{})
	if !errors.Is(err, design.ErrInvalidGrid) {
		t.Errorf("expected ErrInvalidGrid, got: %v", err)
	}
}

func TestCompile_Contradictions(t *testing.T) {
	testCases := []struct {
		name string
		set  ConstraintSet
	}{
		{"Unanchored requirement prohibited", ConstraintSet{
			Prohibited: []Prohibited{{Levels: Assignment{"Brand": "Acme", "CPU": "i9"}}},
			Required:   []Required{{Then: Assignment{"Brand": "Acme", "CPU": "i9", "RAM": "32GB"}}},
		}},
		{"Anchored requirement forces prohibited", ConstraintSet{
			Prohibited: []Prohibited{{Levels: Assignment{"CPU": "i9", "RAM": "8GB"}}},
			Required:   []Required{{When: Assignment{"CPU": "i9"}, Then: Assignment{"RAM": "8GB"}}},
		}},
		{"When conflicts with then", ConstraintSet{
			Required: []Required{{When: Assignment{"CPU": "i9"}, Then: Assignment{"CPU": "i5"}}},
		}},
		{"Nested anchors disagree", ConstraintSet{
			Required: []Required{
				{When: Assignment{"Brand": "Acme"}, Then: Assignment{"Price": "$799"}},
				{When: Assignment{"Brand": "Acme", "CPU": "i9"}, Then: Assignment{"Price": "$1299"}},
			},
		}},
		{"Unanchored requirement breaks anchor", ConstraintSet{
			Required: []Required{
				{When: Assignment{"CPU": "i9"}, Then: Assignment{"Price": "$1299"}},
				{Then: Assignment{"CPU": "i9", "Price": "$799"}},
			},
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Compile(tc.set, laptopGrid())
			if !errors.Is(err, ErrInvalidConstraint) {
				t.Fatalf("expected ErrInvalidConstraint, got: %v", err)
			}
		})
	}
}

func TestAllows_Prohibited(t *testing.T) {
	r := mustCompile(t, ConstraintSet{
		Prohibited: []Prohibited{{Levels: Assignment{"Brand": "Acme", "Price": "$1299"}, Reason: "Acme is budget only"}},
	})

	allowed := design.Option{"Brand": "Acme", "CPU": "i9", "RAM": "32GB", "Price": "$799"}
	blocked := design.Option{"Brand": "Acme", "CPU": "i5", "RAM": "8GB", "Price": "$1299"}

	if !r.IsAllowed(allowed) {
		t.Error("option without the full prohibited pair should be allowed")
	}
	if IsAllowed(blocked, r) {
		t.Error("option containing the prohibited pair should be rejected")
	}
	if r.IsAllowed(design.Option{"Brand": "Acme"}) {
		t.Error("option that does not fit the grid should be rejected")
	}
}

func TestAllows_AnchoredRequired(t *testing.T) {
	r := mustCompile(t, ConstraintSet{
		Required: []Required{{When: Assignment{"CPU": "i9"}, Then: Assignment{"RAM": "32GB"}}},
	})

	testCases := []struct {
		name string
		opt  design.Option
		want bool
	}{
		{"Anchor with then", design.Option{"Brand": "Acme", "CPU": "i9", "RAM": "32GB", "Price": "$999"}, true},
		{"Anchor without then", design.Option{"Brand": "Acme", "CPU": "i9", "RAM": "8GB", "Price": "$999"}, false},
		{"No anchor", design.Option{"Brand": "Acme", "CPU": "i5", "RAM": "8GB", "Price": "$999"}, true},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.IsAllowed(tc.opt); got != tc.want {
				t.Errorf("IsAllowed = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestAllows_CustomRules(t *testing.T) {
	r := mustCompile(t, ConstraintSet{CustomRules: []CustomRule{
		{Name: "no-cheap-i9", Condition: `option["CPU"] == "i9" && index["Price"] == 0`},
		{Name: "globex-ram", Condition: `option.Brand != "Globex" || option.RAM != "8GB"`, Action: ActionRequire},
		{Name: "no-initech", Predicate: func(o design.Option) bool { return o["Brand"] == "Initech" }},
	}})

	testCases := []struct {
		name string
		opt  design.Option
		want bool
	}{
		{"Passes all", design.Option{"Brand": "Acme", "CPU": "i9", "RAM": "8GB", "Price": "$999"}, true},
		{"Cheap i9", design.Option{"Brand": "Acme", "CPU": "i9", "RAM": "8GB", "Price": "$799"}, false},
		{"Globex with 8GB", design.Option{"Brand": "Globex", "CPU": "i5", "RAM": "8GB", "Price": "$999"}, false},
		{"Initech predicate", design.Option{"Brand": "Initech", "CPU": "i5", "RAM": "16GB", "Price": "$999"}, false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if got := r.IsAllowed(tc.opt); got != tc.want {
				t.Errorf("IsAllowed = %v, want %v", got, tc.want)
			}
		})
	}
}

func TestRequirements_MinimumSlots(t *testing.T) {
	r := mustCompile(t, ConstraintSet{
		Prohibited: []Prohibited{{Levels: Assignment{"Brand": "Acme", "RAM": "32GB"}}},
		Required: []Required{
			{Then: Assignment{"Brand": "Acme", "CPU": "i9"}},
			{Then: Assignment{"Price": "$1299"}},               // shares with the first
			{Then: Assignment{"Brand": "Globex", "CPU": "i9"}}, // conflicts with the first
			{Then: Assignment{"RAM": "32GB", "CPU": "i9"}},     // would complete the prohibited pair with the first
		},
	})

	reqs := r.Requirements()
	if len(reqs) != 4 {
		t.Fatalf("expected 4 requirements, got %d", len(reqs))
	}
	if got := r.MinimumSlots(); got != 2 {
		t.Errorf("MinimumSlots = %d, want 2", got)
	}

	base := design.Profile{2, 0, 0, 0}
	applied := reqs[0].Apply(base)
	if !reqs[0].SatisfiedBy(applied) {
		t.Errorf("Apply did not satisfy requirement: %v", applied)
	}
	if base[0] != 2 {
		t.Error("Apply must not modify its input")
	}
}

func TestRequirements_PackSharesOptions(t *testing.T) {
	g := design.Grid{Attributes: []design.Attribute{
		{Name: "A", Levels: []string{"a1", "a2"}},
		{Name: "B", Levels: []string{"b1", "b2"}},
	}}
	r, err := Compile(ConstraintSet{Required: []Required{
		{Then: Assignment{"A": "a1"}},
		{Then: Assignment{"B": "b1"}},
		{Then: Assignment{"A": "a2", "B": "b1"}},
		{Then: Assignment{"A": "a1", "B": "b2"}},
	}}, g)
	if err != nil {
		t.Fatalf("Compile failed: %v", err)
	}

	// {a1,b2} and {a2,b1} host all four; greedy order would need three
	if got := r.MinimumSlots(); got != 2 {
		t.Errorf("MinimumSlots = %d, want 2", got)
	}
	if _, ok := r.Pack(1); ok {
		t.Error("Pack(1) should fail")
	}

	groups, ok := r.Pack(2)
	if !ok {
		t.Fatal("Pack(2) failed")
	}
	if len(groups) != 2 {
		t.Fatalf("expected 2 groups, got %v", groups)
	}
	reqs := r.Requirements()
	seen := make(map[int]bool)
	for _, grp := range groups {
		p := design.Profile{0, 0}
		for _, i := range grp {
			p = reqs[i].Apply(p)
			seen[i] = true
		}
		for _, i := range grp {
			if !reqs[i].SatisfiedBy(p) {
				t.Errorf("group %v: %s not satisfied by %v", grp, reqs[i].Name, p)
			}
		}
	}
	if len(seen) != len(reqs) {
		t.Errorf("groups %v cover %d of %d requirements", groups, len(seen), len(reqs))
	}
}

func TestRequirements_MinimumSlotsIsLowerBound(t *testing.T) {
	testCases := []struct {
		name     string
		required []Required
		want     int
	}{
		{"None", nil, 0},
		{"Single", []Required{{Then: Assignment{"Brand": "Acme"}}}, 1},
		{"Pairwise clash", []Required{
			{Then: Assignment{"Brand": "Acme"}},
			{Then: Assignment{"Brand": "Globex"}},
			{Then: Assignment{"Brand": "Initech"}},
		}, 3},
		{"All compatible", []Required{
			{Then: Assignment{"Brand": "Acme"}},
			{Then: Assignment{"CPU": "i9"}},
			{Then: Assignment{"RAM": "32GB", "Price": "$799"}},
		}, 1},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			r := mustCompile(t, ConstraintSet{Required: tc.required})
			got := r.MinimumSlots()
			if got != tc.want {
				t.Errorf("MinimumSlots = %d, want %d", got, tc.want)
			}
			if got > 0 {
				if _, ok := r.Pack(got); !ok {
					t.Errorf("Pack(%d) failed", got)
				}
			}
		})
	}
}

func TestCompile_Summary(t *testing.T) {
	r := mustCompile(t, ConstraintSet{
		Prohibited:  []Prohibited{{Levels: Assignment{"Brand": "Acme", "Price": "$1299"}}},
		Balance:     []LevelBalance{{Attribute: "Brand"}},
		CustomRules: []CustomRule{{Name: "always", Condition: "false"}},
	})
	s := r.Summary()
	if s.Prohibited != 1 || s.Required != 0 || s.Balance != 1 || s.Custom != 1 {
		t.Errorf("unexpected summary %+v", s)
	}
}
