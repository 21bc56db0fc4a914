package engine

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/halderavik/cbc-design-MCP/constraints"
	"github.com/halderavik/cbc-design-MCP/design"
	"github.com/halderavik/cbc-design-MCP/generator"
	"github.com/halderavik/cbc-design-MCP/power"
)

type fakeRecorder struct {
	mu          sync.Mutex
	generations []design.Method
	failures    int
	optimized   int
	validated   int
}

func (f *fakeRecorder) ObserveGeneration(requested, delivered design.Method, fallbacks, warnings int, elapsed time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err != nil {
		f.failures++
		return
	}
	f.generations = append(f.generations, delivered)
}

func (f *fakeRecorder) ObserveOptimization(elapsed time.Duration, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.optimized++
}

func (f *fakeRecorder) ObserveValidation(valid bool, violations int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.validated++
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func phoneGrid() design.Grid {
	return design.Grid{Attributes: []design.Attribute{
		{Name: "Brand", Levels: []string{"Apple", "Samsung", "Google"}},
		{Name: "Storage", Levels: []string{"128GB", "256GB"}},
		{Name: "Price", Levels: []string{"$699", "$899", "$1099"}},
	}}
}

func seed(v int64) *int64 { return &v }

func TestService_Generate(t *testing.T) {
	rec := &fakeRecorder{}
	svc := NewService(WithLogger(quietLogger()), WithRecorder(rec))

	req := GenerateRequest{
		Method:           design.MethodRandom,
		Grid:             phoneGrid(),
		OptionsPerScreen: 3,
		NumScreens:       8,
		Seed:             seed(42),
		Constraints: constraints.ConstraintSet{
			Prohibited: []constraints.Prohibited{
				{Levels: constraints.Assignment{"Brand": "Apple", "Price": "$699"}},
			},
		},
	}

	resp, err := svc.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if len(resp.Design.Tasks) != 8 {
		t.Errorf("got %d tasks, want 8", len(resp.Design.Tasks))
	}
	if resp.Design.Seed != 42 {
		t.Errorf("seed = %d, want 42", resp.Design.Seed)
	}
	if resp.Validation.Count(constraints.KindProhibited) != 0 {
		t.Errorf("prohibited combination generated: %s", resp.Validation)
	}
	if resp.Quality.Observations != 24 {
		t.Errorf("quality observations = %d, want 24", resp.Quality.Observations)
	}
	if resp.Quality.DEfficiency != resp.Design.Efficiency {
		t.Errorf("quality D-efficiency %v differs from design efficiency %v", resp.Quality.DEfficiency, resp.Design.Efficiency)
	}

	again, err := svc.Generate(context.Background(), req)
	if err != nil {
		t.Fatalf("second Generate failed: %v", err)
	}
	for i := range resp.Design.Tasks {
		for j := range resp.Design.Tasks[i].Options {
			for k, v := range resp.Design.Tasks[i].Options[j] {
				if again.Design.Tasks[i].Options[j][k] != v {
					t.Fatalf("same seed produced different designs at task %d option %d", i+1, j+1)
				}
			}
		}
	}

	if len(rec.generations) != 2 || rec.generations[0] != design.MethodRandom {
		t.Errorf("recorder saw %v, want two random generations", rec.generations)
	}
}

func TestService_GenerateDefaultsToRandom(t *testing.T) {
	svc := NewService(WithLogger(quietLogger()))
	resp, err := svc.Generate(context.Background(), GenerateRequest{
		Grid:             phoneGrid(),
		OptionsPerScreen: 2,
		NumScreens:       4,
		Seed:             seed(1),
	})
	if err != nil {
		t.Fatalf("Generate failed: %v", err)
	}
	if resp.Design.Provenance.Requested != design.MethodRandom || resp.Design.Provenance.Delivered != design.MethodRandom {
		t.Errorf("provenance %s, want random", resp.Design.Provenance.Tag())
	}
}

func TestService_GenerateErrors(t *testing.T) {
	testCases := []struct {
		name   string
		req    GenerateRequest
		target error
	}{
		{
			name:   "Unknown method",
			req:    GenerateRequest{Method: "genetic", Grid: phoneGrid(), OptionsPerScreen: 3, NumScreens: 4},
			target: design.ErrUnknownMethod,
		},
		{
			name:   "Empty grid",
			req:    GenerateRequest{Method: design.MethodRandom, OptionsPerScreen: 3, NumScreens: 4},
			target: design.ErrInvalidGrid,
		},
		{
			name:   "Too many slots",
			req:    GenerateRequest{Method: design.MethodRandom, Grid: phoneGrid(), OptionsPerScreen: 5, NumScreens: 1001},
			target: generator.ErrInvalidParams,
		},
		{
			name: "Unknown level in constraint",
			req: GenerateRequest{
				Method: design.MethodRandom, Grid: phoneGrid(), OptionsPerScreen: 3, NumScreens: 4,
				Constraints: constraints.ConstraintSet{Prohibited: []constraints.Prohibited{
					{Levels: constraints.Assignment{"Brand": "Nokia", "Price": "$699"}},
				}},
			},
			target: constraints.ErrInvalidConstraint,
		},
	}

	rec := &fakeRecorder{}
	svc := NewService(WithLogger(quietLogger()), WithRecorder(rec))
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := svc.Generate(context.Background(), tc.req)
			if !errors.Is(err, tc.target) {
				t.Fatalf("expected %v, got %v", tc.target, err)
			}
			if !IsInvalidInput(err) {
				t.Errorf("IsInvalidInput(%v) = false", err)
			}
		})
	}
	if rec.failures != len(testCases) {
		t.Errorf("recorder saw %d failures, want %d", rec.failures, len(testCases))
	}
}

func TestService_GenerateInfeasibleIsNotInputError(t *testing.T) {
	svc := NewService(WithLogger(quietLogger()))
	g := design.Grid{Attributes: []design.Attribute{
		{Name: "Color", Levels: []string{"Red", "Blue"}},
	}}
	_, err := svc.Generate(context.Background(), GenerateRequest{
		Method: design.MethodRandom, Grid: g, OptionsPerScreen: 3, NumScreens: 2,
	})
	if !errors.Is(err, generator.ErrGenerationInfeasible) {
		t.Fatalf("expected ErrGenerationInfeasible, got %v", err)
	}
	if IsInvalidInput(err) {
		t.Error("infeasible generation should not be classified as invalid input")
	}
}

func TestService_Optimize(t *testing.T) {
	rec := &fakeRecorder{}
	svc := NewService(WithLogger(quietLogger()), WithRecorder(rec), WithLimits(Limits{
		MaxOptionSlots: 100,
		MaxRespondents: 40,
		MaxScreens:     10,
		MaxOptions:     4,
	}))

	res, err := svc.Optimize(context.Background(), power.Request{Grid: phoneGrid()})
	if err != nil {
		t.Fatalf("Optimize failed: %v", err)
	}
	if res.Respondents > 40 {
		t.Errorf("respondents %d exceed the service limit", res.Respondents)
	}
	if res.Screens > 10 || res.OptionsPerScreen > 4 {
		t.Errorf("got %d screens x %d options, want within 10 x 4", res.Screens, res.OptionsPerScreen)
	}
	if rec.optimized != 1 {
		t.Errorf("recorder saw %d optimizations, want 1", rec.optimized)
	}

	_, err = svc.Optimize(context.Background(), power.Request{Grid: phoneGrid(), TargetPower: 1.5})
	if !errors.Is(err, power.ErrInvalidRequest) || !IsInvalidInput(err) {
		t.Errorf("expected invalid request, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := svc.Optimize(ctx, power.Request{Grid: phoneGrid()}); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestService_ValidateAndEvaluate(t *testing.T) {
	rec := &fakeRecorder{}
	svc := NewService(WithLogger(quietLogger()), WithRecorder(rec))
	g := phoneGrid()

	d := design.Design{Tasks: []design.ChoiceTask{
		{Index: 1, Options: []design.Option{
			{"Brand": "Apple", "Storage": "128GB", "Price": "$699"},
			{"Brand": "Google", "Storage": "256GB", "Price": "$899"},
		}},
		{Index: 2, Options: []design.Option{
			{"Brand": "Samsung", "Storage": "256GB", "Price": "$1099"},
			{"Brand": "Samsung", "Storage": "256GB", "Price": "$1099"},
		}},
	}}
	cs := constraints.ConstraintSet{Prohibited: []constraints.Prohibited{
		{Levels: constraints.Assignment{"Brand": "Apple", "Price": "$699"}},
	}}

	rep, err := svc.Validate(context.Background(), d, g, cs)
	if err != nil {
		t.Fatalf("Validate failed: %v", err)
	}
	if rep.Valid {
		t.Error("design with a prohibited option and a duplicate reported valid")
	}
	if rep.Count(constraints.KindProhibited) != 1 || rep.Count(constraints.KindDuplicate) != 1 {
		t.Errorf("unexpected violation counts: %v", rep.Counts)
	}
	if rec.validated != 1 {
		t.Errorf("recorder saw %d validations, want 1", rec.validated)
	}

	q, err := svc.Evaluate(context.Background(), d, g)
	if err != nil {
		t.Fatalf("Evaluate failed: %v", err)
	}
	if q.Observations != 4 {
		t.Errorf("observations = %d, want 4", q.Observations)
	}

	bad := d.Clone()
	bad.Tasks[0].Options[0]["Brand"] = "Nokia"
	_, err = svc.Evaluate(context.Background(), bad, g)
	if !errors.Is(err, ErrInvalidDesign) || !IsInvalidInput(err) {
		t.Errorf("expected ErrInvalidDesign, got %v", err)
	}
}

func TestIsInvalidInput(t *testing.T) {
	if IsInvalidInput(nil) {
		t.Error("nil is not an input error")
	}
	if IsInvalidInput(errors.New("database unavailable")) {
		t.Error("plain error classified as input error")
	}
	if !IsInvalidInput(errors.Join(errors.New("wrapped"), constraints.ErrInvalidConstraint)) {
		t.Error("joined constraint error not classified as input error")
	}
}

func TestDefaultLimits_MatchOptimizer(t *testing.T) {
	l := DefaultLimits()
	if l.MaxRespondents != power.DefaultMaxRespondents {
		t.Errorf("MaxRespondents = %d, optimizer default is %d", l.MaxRespondents, power.DefaultMaxRespondents)
	}
	if l.MaxScreens != power.DefaultMaxScreens || l.MaxOptions != power.DefaultMaxOptions {
		t.Errorf("screen/option limits %d/%d differ from optimizer defaults %d/%d",
			l.MaxScreens, l.MaxOptions, power.DefaultMaxScreens, power.DefaultMaxOptions)
	}
}
