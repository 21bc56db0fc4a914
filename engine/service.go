package engine

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/halderavik/cbc-design-MCP/constraints"
	"github.com/halderavik/cbc-design-MCP/design"
	"github.com/halderavik/cbc-design-MCP/generator"
	"github.com/halderavik/cbc-design-MCP/power"
	"github.com/halderavik/cbc-design-MCP/quality"
)

// Recorder receives per-call measurements. Implementations must be safe
// for concurrent use; a nil Recorder disables recording.
type Recorder interface {
	ObserveGeneration(requested, delivered design.Method, fallbacks, warnings int, elapsed time.Duration, err error)
	ObserveOptimization(elapsed time.Duration, err error)
	ObserveValidation(valid bool, violations int)
}

// Limits bound request sizes at the service boundary
type Limits struct {
	MaxOptionSlots int `yaml:"max_option_slots"`
	MaxRespondents int `yaml:"max_respondents"`
	MaxScreens     int `yaml:"max_screens"`
	MaxOptions     int `yaml:"max_options"`
}

// DefaultLimits match the shipped configuration
func DefaultLimits() Limits {
	return Limits{
		MaxOptionSlots: 5000,
		MaxRespondents: power.DefaultMaxRespondents,
		MaxScreens:     power.DefaultMaxScreens,
		MaxOptions:     power.DefaultMaxOptions,
	}
}

// Service is the stateless facade over the engine packages. It holds only
// configuration; every call works on its own copies.
type Service struct {
	logger   *slog.Logger
	recorder Recorder
	limits   Limits
	anneal   generator.AnnealParams
}

// ServiceOption configures a Service
type ServiceOption func(*Service)

// WithLogger sets the service logger
func WithLogger(l *slog.Logger) ServiceOption {
	return func(s *Service) { s.logger = l }
}

// WithRecorder attaches a metrics recorder
func WithRecorder(r Recorder) ServiceOption {
	return func(s *Service) { s.recorder = r }
}

// WithLimits overrides DefaultLimits
func WithLimits(l Limits) ServiceOption {
	return func(s *Service) { s.limits = l }
}

// WithAnnealDefaults sets the D-optimal tuning used when a request leaves it unset
func WithAnnealDefaults(a generator.AnnealParams) ServiceOption {
	return func(s *Service) { s.anneal = a }
}

// NewService builds a Service
func NewService(opts ...ServiceOption) *Service {
	s := &Service{limits: DefaultLimits()}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	return s
}

// GenerateRequest is the transport-neutral generate operation
type GenerateRequest struct {
	Method           design.Method             `json:"method" yaml:"method"`
	Grid             design.Grid               `json:"grid" yaml:"grid"`
	OptionsPerScreen int                       `json:"options_per_screen" yaml:"options_per_screen"`
	NumScreens       int                       `json:"num_screens" yaml:"num_screens"`
	Constraints      constraints.ConstraintSet `json:"constraints,omitempty" yaml:"constraints,omitempty"`
	Seed             *int64                    `json:"seed,omitempty" yaml:"seed,omitempty"`
	Strict           bool                      `json:"strict,omitempty" yaml:"strict,omitempty"`
	AllowDuplicates  bool                      `json:"allow_duplicates,omitempty" yaml:"allow_duplicates,omitempty"`
	Anneal           *generator.AnnealParams   `json:"anneal,omitempty" yaml:"anneal,omitempty"`
}

// GenerateResponse carries the design with its quality and constraint reports
type GenerateResponse struct {
	Design     design.Design      `json:"design"`
	Quality    quality.Report     `json:"quality"`
	Validation constraints.Report `json:"validation"`
}

// Generate compiles the constraints, runs the requested strategy (with its
// fallbacks) and scores the result
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error) {
	return s.GenerateCompiled(ctx, req, nil)
}

// GenerateCompiled is Generate with constraints compiled ahead of time.
// rules must have been compiled against req.Grid; req.Constraints is
// ignored when rules is non-nil.
func (s *Service) GenerateCompiled(ctx context.Context, req GenerateRequest, rules *constraints.CompiledRules) (GenerateResponse, error) {
	start := time.Now()
	resp, err := s.generate(ctx, req, rules)

	if s.recorder != nil {
		delivered := resp.Design.Provenance.Delivered
		s.recorder.ObserveGeneration(req.Method, delivered, len(resp.Design.Provenance.Fallbacks),
			len(resp.Design.Warnings), time.Since(start), err)
	}
	if err != nil {
		s.logger.Warn("Design generation failed", "method", req.Method, "error", err)
		return GenerateResponse{}, err
	}
	s.logger.Info("Design generated",
		"provenance", resp.Design.Provenance.Tag(),
		"tasks", len(resp.Design.Tasks),
		"efficiency", resp.Design.Efficiency,
		"violations", len(resp.Validation.Violations),
		"duration", time.Since(start))
	return resp, nil
}

func (s *Service) generate(ctx context.Context, req GenerateRequest, rules *constraints.CompiledRules) (GenerateResponse, error) {
	if req.Method == "" {
		req.Method = design.MethodRandom
	}
	method, err := design.ParseMethod(string(req.Method))
	if err != nil {
		return GenerateResponse{}, err
	}
	if err := design.ValidateGrid(req.Grid); err != nil {
		return GenerateResponse{}, err
	}
	if s.limits.MaxOptionSlots > 0 && req.OptionsPerScreen*req.NumScreens > s.limits.MaxOptionSlots {
		return GenerateResponse{}, fmt.Errorf("%w: %d option slots exceeds the limit of %d",
			generator.ErrInvalidParams, req.OptionsPerScreen*req.NumScreens, s.limits.MaxOptionSlots)
	}

	if rules == nil {
		if rules, err = constraints.Compile(req.Constraints, req.Grid); err != nil {
			return GenerateResponse{}, err
		}
	}

	params := generator.Params{
		OptionsPerScreen: req.OptionsPerScreen,
		NumScreens:       req.NumScreens,
		AllowDuplicates:  req.AllowDuplicates,
		Strict:           req.Strict,
		Anneal:           s.anneal,
	}
	if req.Anneal != nil {
		params.Anneal = *req.Anneal
	}

	opts := []generator.Option{generator.WithLogger(s.logger)}
	if req.Seed != nil {
		opts = append(opts, generator.WithSeed(*req.Seed))
	}

	d, err := generator.Generate(ctx, method, req.Grid, params, rules, opts...)
	if err != nil {
		return GenerateResponse{}, err
	}

	rep, err := quality.Evaluate(d, req.Grid)
	if err != nil {
		return GenerateResponse{}, fmt.Errorf("evaluating generated design: %w", err)
	}
	return GenerateResponse{
		Design:     d,
		Quality:    rep,
		Validation: constraints.Validate(d, rules),
	}, nil
}

// Optimize sizes a study. Service limits fill bounds the request leaves unset.
func (s *Service) Optimize(ctx context.Context, req power.Request) (power.Result, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return power.Result{}, err
	}
	if req.MaxRespondents == 0 {
		req.MaxRespondents = s.limits.MaxRespondents
	}
	if req.MaxScreens == 0 {
		req.MaxScreens = s.limits.MaxScreens
	}
	if req.MaxOptions == 0 {
		req.MaxOptions = s.limits.MaxOptions
	}

	res, err := power.Optimize(req)
	if s.recorder != nil {
		s.recorder.ObserveOptimization(time.Since(start), err)
	}
	if err != nil {
		return power.Result{}, err
	}
	s.logger.Info("Study sized", "respondents", res.Respondents, "screens", res.Screens,
		"options", res.OptionsPerScreen, "expected_power", res.ExpectedPower, "clamped", res.Clamped)
	return res, nil
}

// Validate checks a design produced anywhere against a grid and constraints
func (s *Service) Validate(ctx context.Context, d design.Design, g design.Grid, cs constraints.ConstraintSet) (constraints.Report, error) {
	if err := ctx.Err(); err != nil {
		return constraints.Report{}, err
	}
	rules, err := constraints.Compile(cs, g)
	if err != nil {
		return constraints.Report{}, err
	}
	rep := constraints.Validate(d, rules)
	if s.recorder != nil {
		s.recorder.ObserveValidation(rep.Valid, len(rep.Violations))
	}
	s.logger.Debug("Design validated", "valid", rep.Valid, "violations", len(rep.Violations))
	return rep, nil
}

// Evaluate scores a design produced anywhere
func (s *Service) Evaluate(ctx context.Context, d design.Design, g design.Grid) (quality.Report, error) {
	if err := ctx.Err(); err != nil {
		return quality.Report{}, err
	}
	if err := design.ValidateGrid(g); err != nil {
		return quality.Report{}, err
	}
	rep, err := quality.Evaluate(d, g)
	if err != nil {
		return quality.Report{}, fmt.Errorf("%w: %v", ErrInvalidDesign, err)
	}
	return rep, nil
}
