package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/halderavik/cbc-design-MCP/design"
	"github.com/halderavik/cbc-design-MCP/engine"
	"github.com/halderavik/cbc-design-MCP/generator"
)

var _ engine.Recorder = (*Metrics)(nil)

func TestMetrics_ObserveGeneration(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveGeneration(design.MethodOrthogonal, design.MethodBalanced, 1, 2, 10*time.Millisecond, nil)
	m.ObserveGeneration(design.MethodOrthogonal, design.MethodOrthogonal, 0, 0, time.Millisecond, nil)
	m.ObserveGeneration(design.MethodRandom, "", 0, 0, time.Millisecond,
		fmt.Errorf("wrapped: %w", generator.ErrGenerationInfeasible))

	if got := testutil.ToFloat64(m.Generations.WithLabelValues("orthogonal", "balanced")); got != 1 {
		t.Errorf("orthogonal->balanced generations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Fallbacks.WithLabelValues("orthogonal")); got != 1 {
		t.Errorf("fallbacks = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.AcceptedViolations); got != 2 {
		t.Errorf("accepted violations = %v, want 2", got)
	}
	if got := testutil.ToFloat64(m.GenerationFailures.WithLabelValues("infeasible")); got != 1 {
		t.Errorf("infeasible failures = %v, want 1", got)
	}
}

func TestMetrics_OtherObservations(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveOptimization(time.Millisecond, nil)
	m.ObserveOptimization(time.Millisecond, errors.New("boom"))
	m.ObserveValidation(false, 3)
	m.ObserveRequest("/rpc", 200, time.Millisecond)

	if got := testutil.ToFloat64(m.Optimizations.WithLabelValues("error")); got != 1 {
		t.Errorf("optimization errors = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Validations.WithLabelValues("false")); got != 1 {
		t.Errorf("invalid validations = %v, want 1", got)
	}
	if got := testutil.ToFloat64(m.Requests.WithLabelValues("/rpc", "200")); got != 1 {
		t.Errorf("requests = %v, want 1", got)
	}
}

func TestMetrics_NilIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveGeneration(design.MethodRandom, design.MethodRandom, 0, 0, 0, nil)
	m.ObserveOptimization(0, nil)
	m.ObserveValidation(true, 0)
	m.ObserveRequest("/", 200, 0)
}

func TestFailureReason(t *testing.T) {
	testCases := map[string]error{
		"fallback_refused": generator.ErrFallbackRefused,
		"invalid_input":    design.ErrInvalidGrid,
		"other":            errors.New("database down"),
	}
	for want, err := range testCases {
		if got := failureReason(err); got != want {
			t.Errorf("failureReason(%v) = %q, want %q", err, got, want)
		}
	}
}
