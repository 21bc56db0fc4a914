package metrics

import (
	"errors"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/halderavik/cbc-design-MCP/design"
	"github.com/halderavik/cbc-design-MCP/generator"
	"github.com/halderavik/cbc-design-MCP/internal/logger"
)

// Metrics holds the service collectors. A nil *Metrics records nothing.
type Metrics struct {
	Generations        *prometheus.CounterVec
	Fallbacks          *prometheus.CounterVec
	AcceptedViolations prometheus.Counter
	GenerationFailures *prometheus.CounterVec
	GenerationSeconds  *prometheus.HistogramVec
	Optimizations      *prometheus.CounterVec
	OptimizeSeconds    prometheus.Histogram
	Validations        *prometheus.CounterVec
	Requests           *prometheus.CounterVec
	RequestSeconds     *prometheus.HistogramVec
}

var (
	defaultOnce     sync.Once
	defaultInstance *Metrics
)

// Default registers on the global registry once per process
func Default() *Metrics {
	defaultOnce.Do(func() {
		defaultInstance = New(prometheus.DefaultRegisterer)
	})
	return defaultInstance
}

// New registers a fresh set of collectors on reg
func New(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	m := &Metrics{
		Generations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cbc_designs_generated_total",
			Help: "Designs generated, by requested and delivered method",
		}, []string{"requested", "delivered"}),
		Fallbacks: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cbc_generation_fallbacks_total",
			Help: "Fallback transitions taken, by requested method",
		}, []string{"requested"}),
		AcceptedViolations: f.NewCounter(prometheus.CounterOpts{
			Name: "cbc_accepted_violations_total",
			Help: "Constraint violations a strategy accepted in order to terminate",
		}),
		GenerationFailures: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cbc_generation_failures_total",
			Help: "Failed generation requests, by reason",
		}, []string{"reason"}),
		GenerationSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cbc_generation_duration_seconds",
			Help:    "Wall time of generation requests",
			Buckets: []float64{.001, .005, .025, .1, .5, 1, 2.5, 5, 10, 30},
		}, []string{"delivered"}),
		Optimizations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cbc_optimizations_total",
			Help: "Sample-size optimizations, by outcome",
		}, []string{"outcome"}),
		OptimizeSeconds: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "cbc_optimize_duration_seconds",
			Help:    "Wall time of sample-size optimizations",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 8),
		}),
		Validations: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cbc_validations_total",
			Help: "Design validations, by result",
		}, []string{"valid"}),
		Requests: f.NewCounterVec(prometheus.CounterOpts{
			Name: "cbc_http_requests_total",
			Help: "HTTP requests, by route and status",
		}, []string{"route", "status"}),
		RequestSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cbc_http_request_duration_seconds",
			Help:    "HTTP request latency, by route",
			Buckets: prometheus.DefBuckets,
		}, []string{"route"}),
	}

	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "cbc_log_warnings_total",
		Help: "Warnings logged, counted before sampling",
	}, func() float64 { return float64(logger.TotalWarnings.Load()) })
	f.NewCounterFunc(prometheus.CounterOpts{
		Name: "cbc_log_errors_total",
		Help: "Errors logged, counted before sampling",
	}, func() float64 { return float64(logger.TotalErrors.Load()) })

	return m
}

// ObserveGeneration implements engine.Recorder
func (m *Metrics) ObserveGeneration(requested, delivered design.Method, fallbacks, warnings int, elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	if err != nil {
		m.GenerationFailures.WithLabelValues(failureReason(err)).Inc()
		return
	}
	m.Generations.WithLabelValues(string(requested), string(delivered)).Inc()
	if fallbacks > 0 {
		m.Fallbacks.WithLabelValues(string(requested)).Add(float64(fallbacks))
	}
	m.AcceptedViolations.Add(float64(warnings))
	m.GenerationSeconds.WithLabelValues(string(delivered)).Observe(elapsed.Seconds())
}

// ObserveOptimization implements engine.Recorder
func (m *Metrics) ObserveOptimization(elapsed time.Duration, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.Optimizations.WithLabelValues(outcome).Inc()
	m.OptimizeSeconds.Observe(elapsed.Seconds())
}

// ObserveValidation implements engine.Recorder
func (m *Metrics) ObserveValidation(valid bool, _ int) {
	if m == nil {
		return
	}
	m.Validations.WithLabelValues(strconv.FormatBool(valid)).Inc()
}

// ObserveRequest records one HTTP request against its route pattern
func (m *Metrics) ObserveRequest(route string, status int, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(route, strconv.Itoa(status)).Inc()
	m.RequestSeconds.WithLabelValues(route).Observe(elapsed.Seconds())
}

func failureReason(err error) string {
	switch {
	case errors.Is(err, generator.ErrGenerationInfeasible):
		return "infeasible"
	case errors.Is(err, generator.ErrFallbackRefused):
		return "fallback_refused"
	case errors.Is(err, generator.ErrInvalidParams), errors.Is(err, design.ErrInvalidGrid), errors.Is(err, design.ErrUnknownMethod):
		return "invalid_input"
	default:
		return "other"
	}
}
