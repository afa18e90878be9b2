// Package telemetry exports one span per backend call over OTLP/gRPC.
package telemetry

import (
	"context"
	"fmt"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"workloadgen/internal/config"
	"workloadgen/internal/version"
)

const ServiceName = "workloadgen"

// Resource attribute keys describing the run.
const (
	AttrMode    = attribute.Key("workloadgen.mode")
	AttrBackend = attribute.Key("workloadgen.backend")
	AttrTargets = attribute.Key("workloadgen.targets")
)

// Tracer returns the named tracer from the global provider. Spans are no-ops
// until Init installs an exporter.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(ServiceName + "/" + name)
}

// RunAttributes tags every exported span with the run's mode, backend and
// target count so traces from concurrent runs can be told apart.
func RunAttributes(cfg *config.Config) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrMode.String(cfg.Mode),
		AttrBackend.String(cfg.Backend.Kind),
		AttrTargets.Int(len(cfg.TargetNames())),
	}
}

// Init installs a batching OTLP tracer provider when an endpoint is
// configured. Without one it returns a no-op shutdown and spans stay no-ops.
func Init(ctx context.Context, cfg config.TelemetryConfig, attrs ...attribute.KeyValue) (func(context.Context) error, error) {
	opts, ok := exporterOptions(cfg)
	if !ok {
		return func(context.Context) error { return nil }, nil
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("init otlp exporter: %w", err)
	}

	base := []attribute.KeyValue{
		semconv.ServiceNameKey.String(ServiceName),
		semconv.ServiceVersionKey.String(version.Full()),
	}
	res, err := resource.New(ctx, resource.WithAttributes(append(base, attrs...)...))
	if err != nil {
		return nil, fmt.Errorf("init otlp resource: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(sampleRatio(cfg.OTLP.SampleRatio)))),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp.Shutdown, nil
}

// exporterOptions reports false when tracing is off.
func exporterOptions(cfg config.TelemetryConfig) ([]otlptracegrpc.Option, bool) {
	endpoint := strings.TrimSpace(cfg.OTLP.Endpoint)
	if endpoint == "" {
		return nil, false
	}
	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
	if cfg.OTLP.Insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	if cfg.OTLP.Timeout > 0 {
		opts = append(opts, otlptracegrpc.WithTimeout(cfg.OTLP.Timeout))
	}
	if c := strings.ToLower(strings.TrimSpace(cfg.OTLP.Compression)); c != "" {
		opts = append(opts, otlptracegrpc.WithCompressor(c))
	}
	if len(cfg.OTLP.Headers) > 0 {
		opts = append(opts, otlptracegrpc.WithHeaders(cfg.OTLP.Headers))
	}
	return opts, true
}

// sampleRatio clamps out-of-range ratios to "sample everything".
func sampleRatio(r float64) float64 {
	if r <= 0 || r > 1 {
		return 1
	}
	return r
}
