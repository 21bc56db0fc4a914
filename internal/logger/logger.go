package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"strings"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/contrib/bridges/otelslog"
	"go.opentelemetry.io/otel/exporters/otlp/otlplog/otlploggrpc"
	sdklog "go.opentelemetry.io/otel/sdk/log"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

const (
	LevelTrace   = slog.Level(-8)
	LevelDebug   = slog.LevelDebug
	LevelInfo    = slog.LevelInfo
	LevelWarning = slog.LevelWarn
	LevelError   = slog.LevelError
	LevelFatal   = slog.Level(12)
)

// Counters are incremented for every record at their level, sampled or not
var (
	TotalWarnings  atomic.Int64
	TotalErrors    atomic.Int64
	Total4xxErrors atomic.Int64
	Total5xxErrors atomic.Int64
	Total429Errors atomic.Int64
)

// Options configures Setup
type Options struct {
	Level string
	// Output receives JSON records. The stdio MCP transport owns stdout,
	// so the CLI passes os.Stderr.
	Output io.Writer
	// SampleRate keeps 1 of every N warnings and errors; <= 1 keeps all
	SampleRate int
	// OTEL exports through OTLP/gRPC instead of writing JSON
	OTEL        bool
	ServiceName string
}

var (
	programLevel = new(slog.LevelVar)

	mu           sync.Mutex
	shutdownFunc func(context.Context) error
)

// OptionsFromEnv reads LOG_LEVEL, ERROR_SAMPLE_RATE, OTEL_ENABLED and
// OTEL_SERVICE_NAME
func OptionsFromEnv() Options {
	opts := Options{
		Level:       os.Getenv("LOG_LEVEL"),
		Output:      os.Stdout,
		OTEL:        strings.EqualFold(os.Getenv("OTEL_ENABLED"), "true"),
		ServiceName: os.Getenv("OTEL_SERVICE_NAME"),
	}
	fmt.Sscanf(os.Getenv("ERROR_SAMPLE_RATE"), "%d", &opts.SampleRate)
	return opts
}

// Setup builds the process logger and installs it as slog's default. When
// OTEL setup fails it falls back to JSON and reports why on stderr.
func Setup(opts Options) *slog.Logger {
	level, err := ParseLevel(opts.Level)
	if err != nil && opts.Level != "" {
		fmt.Fprintf(os.Stderr, "%v\n", err)
	}
	programLevel.Set(level)

	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.ServiceName == "" {
		opts.ServiceName = "cbc-design"
	}

	var base slog.Handler
	if opts.OTEL {
		h, shutdown, err := otelHandler(context.Background(), opts.ServiceName)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to setup OTEL logging, falling back to JSON: %v\n", err)
		} else {
			mu.Lock()
			shutdownFunc = shutdown
			mu.Unlock()
			base = h
		}
	}
	if base == nil {
		base = slog.NewJSONHandler(opts.Output, &slog.HandlerOptions{Level: programLevel})
	}

	l := slog.New(&samplingHandler{handler: base, rate: int32(max(opts.SampleRate, 1))})
	slog.SetDefault(l)
	return l
}

func otelHandler(ctx context.Context, serviceName string) (slog.Handler, func(context.Context) error, error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(serviceName)))
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create resource: %w", err)
	}

	exporter, err := otlploggrpc.New(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	provider := sdklog.NewLoggerProvider(
		sdklog.WithResource(res),
		sdklog.WithProcessor(sdklog.NewBatchProcessor(exporter)),
	)
	h := otelslog.NewHandler(serviceName, otelslog.WithLoggerProvider(provider))
	return &levelHandler{level: programLevel, handler: h}, provider.Shutdown, nil
}

// levelHandler filters a handler that has no level option of its own
type levelHandler struct {
	level   slog.Leveler
	handler slog.Handler
}

func (h *levelHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *levelHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.handler.Handle(ctx, r)
}

func (h *levelHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithAttrs(attrs)}
}

func (h *levelHandler) WithGroup(name string) slog.Handler {
	return &levelHandler{level: h.level, handler: h.handler.WithGroup(name)}
}

// samplingHandler counts every warning and error and forwards one in rate
// of them. Everything below WARN and everything at FATAL passes through.
type samplingHandler struct {
	handler slog.Handler
	rate    int32
}

func (h *samplingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

func (h *samplingHandler) Handle(ctx context.Context, r slog.Record) error {
	switch {
	case r.Level >= LevelFatal:
	case r.Level >= LevelError:
		TotalErrors.Add(1)
		if !h.sample() {
			return nil
		}
	case r.Level >= LevelWarning:
		TotalWarnings.Add(1)
		if !h.sample() {
			return nil
		}
	}
	return h.handler.Handle(ctx, r)
}

func (h *samplingHandler) sample() bool {
	return h.rate <= 1 || rand.Int31n(h.rate) == 0
}

func (h *samplingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &samplingHandler{handler: h.handler.WithAttrs(attrs), rate: h.rate}
}

func (h *samplingHandler) WithGroup(name string) slog.Handler {
	return &samplingHandler{handler: h.handler.WithGroup(name), rate: h.rate}
}

// Shutdown flushes the OTEL exporter, if one was set up
func Shutdown(ctx context.Context) error {
	mu.Lock()
	fn := shutdownFunc
	mu.Unlock()
	if fn != nil {
		return fn(ctx)
	}
	return nil
}

// SetLevel changes the minimum level at runtime
func SetLevel(level slog.Level) {
	programLevel.Set(level)
}

// GetLevel returns the current minimum level
func GetLevel() slog.Level {
	return programLevel.Level()
}

// ParseLevel converts a level name to slog.Level. Empty means INFO.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToUpper(strings.TrimSpace(levelStr)) {
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO", "":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarning, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL":
		return LevelFatal, nil
	default:
		return LevelInfo, fmt.Errorf("unknown log level: %s (defaulting to INFO)", levelStr)
	}
}

// Fatal logs at FATAL, flushes OTEL and exits
func Fatal(l *slog.Logger, msg string, args ...any) {
	l.Log(context.Background(), LevelFatal, msg, args...)
	_ = Shutdown(context.Background())
	os.Exit(1)
}

// ObserveStatus feeds the HTTP status counters
func ObserveStatus(status int) {
	switch {
	case status >= 500:
		Total5xxErrors.Add(1)
	case status >= 400:
		Total4xxErrors.Add(1)
		if status == 429 {
			Total429Errors.Add(1)
		}
	}
}
