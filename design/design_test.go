package design

import (
	"math"
	"strings"
	"testing"
)

func TestEncodeDecodeProfile(t *testing.T) {
	g := laptopGrid()
	opt := Option{"Brand": "Globex", "CPU": "i9", "RAM": "8GB", "Price": "$999"}

	p, err := g.Encode(opt)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	want := Profile{1, 2, 0, 1}
	if !p.Equal(want) {
		t.Fatalf("Encode = %v, want %v", p, want)
	}

	back := g.Decode(p)
	for k, v := range opt {
		if back[k] != v {
			t.Errorf("Decode mismatch for %s: got %s, want %s", k, back[k], v)
		}
	}
}

func TestEncode_Errors(t *testing.T) {
	g := laptopGrid()
	testCases := []struct {
		name     string
		opt      Option
		contains string
	}{
		{"Missing attribute", Option{"Brand": "Acme", "CPU": "i5", "RAM": "8GB", "Colour": "Red"}, "missing attribute"},
		{"Unknown level", Option{"Brand": "Acme", "CPU": "i3", "RAM": "8GB", "Price": "$799"}, "unknown level"},
		{"Too few attributes", Option{"Brand": "Acme"}, "has 1 attributes"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := g.Encode(tc.opt)
			if err == nil || !strings.Contains(err.Error(), tc.contains) {
				t.Errorf("expected error containing %q, got: %v", tc.contains, err)
			}
		})
	}
}

func TestBuild_IndexesAndImmutability(t *testing.T) {
	g := laptopGrid()
	tasks := [][]Profile{
		{{0, 0, 0, 0}, {1, 1, 1, 1}},
		{{2, 2, 2, 2}, {0, 1, 2, 0}},
	}
	d := Build(g, tasks, Provenance{Requested: MethodRandom, Delivered: MethodRandom})

	for i, task := range d.Tasks {
		if task.Index != i+1 {
			t.Errorf("task %d has index %d", i, task.Index)
		}
	}
	if d.NumOptions() != 4 {
		t.Errorf("NumOptions = %d, want 4", d.NumOptions())
	}

	c := d.Clone()
	c.Tasks[0].Options[0]["Brand"] = "Initech"
	if d.Tasks[0].Options[0]["Brand"] != "Acme" {
		t.Error("Clone shares option maps with the original design")
	}

	profiles, err := d.Profiles(g)
	if err != nil {
		t.Fatalf("Profiles failed: %v", err)
	}
	if !profiles[1][1].Equal(tasks[1][1]) {
		t.Errorf("Profiles round trip = %v, want %v", profiles[1][1], tasks[1][1])
	}
}

func TestProvenanceTag(t *testing.T) {
	p := Provenance{Requested: MethodOrthogonal, Delivered: MethodBalanced}
	if !p.FellBack() || p.Tag() != "orthogonal->balanced" {
		t.Errorf("unexpected tag %q", p.Tag())
	}
	p = Provenance{Requested: MethodRandom, Delivered: MethodRandom}
	if p.FellBack() || p.Tag() != "random" {
		t.Errorf("unexpected tag %q", p.Tag())
	}
}

func TestCombinations(t *testing.T) {
	if got := laptopGrid().Combinations(); got != 81 {
		t.Errorf("Combinations = %d, want 81", got)
	}

	var huge Grid
	for i := 0; i < 80; i++ {
		huge.Attributes = append(huge.Attributes, Attribute{Name: string(rune('A' + i)), Levels: []string{"a", "b", "c", "d", "e"}})
	}
	if got := huge.Combinations(); got != math.MaxInt64 {
		t.Errorf("Combinations should saturate, got %d", got)
	}
}
