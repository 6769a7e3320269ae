package otel

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/khcheck/khcheck/internal/version"
)

const tracerName = "khcheck"

// Init registers a batching tracer provider globally. The returned
// handle flushes pending spans on Shutdown; a CLI run is short, so
// spans would otherwise be lost on exit.
func Init(ctx context.Context, cfg Config) (*Handle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	exporter, err := newExporter(ctx, cfg.Protocol, resolveEndpoint(cfg), cfg.Insecure)
	if err != nil {
		return nil, fmt.Errorf("otel: create %s exporter: %w", cfg.Protocol, err)
	}
	res, err := serviceResource(cfg.ServiceName)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sampler(cfg.SampleRatio)),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.TraceContext{})

	return &Handle{
		Tracer: tp.Tracer(tracerName, trace.WithInstrumentationVersion(version.BuildVersion())),
		Shutdown: func(ctx context.Context) error {
			return errors.Join(tp.ForceFlush(ctx), tp.Shutdown(ctx))
		},
	}, nil
}

func newExporter(ctx context.Context, protocol, endpoint string, insecure bool) (sdktrace.SpanExporter, error) {
	if protocol == ProtocolGRPC {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if insecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	}

	opt := otlptracehttp.WithEndpoint(endpoint)
	if strings.Contains(endpoint, "://") {
		opt = otlptracehttp.WithEndpointURL(endpoint)
	}
	opts := []otlptracehttp.Option{opt}
	if insecure {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	return otlptracehttp.New(ctx, opts...)
}

// serviceResource describes the khcheck build and the host it ran on
func serviceResource(name string) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(name),
		semconv.ServiceVersion(version.BuildVersion()),
		semconv.TelemetrySDKLanguageGo,
		semconv.TelemetrySDKVersion(otel.Version()),
		semconv.HostArchKey.String(runtime.GOARCH),
	}
	if rev := version.Revision(); rev != "" {
		attrs = append(attrs, attribute.String("khcheck.revision", rev))
	}
	return resource.Merge(resource.Default(), resource.NewWithAttributes(semconv.SchemaURL, attrs...))
}

// resolveEndpoint: flag, then OTEL_EXPORTER_OTLP_ENDPOINT, then the
// protocol's local default
func resolveEndpoint(cfg Config) string {
	switch {
	case cfg.Endpoint != "":
		return cfg.Endpoint
	case os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != "":
		return os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT")
	case cfg.Protocol == ProtocolGRPC:
		return "localhost:4317"
	}
	return "http://localhost:4318"
}

func sampler(ratio float64) sdktrace.Sampler {
	if ratio >= 1 {
		return sdktrace.AlwaysSample()
	}
	if ratio <= 0 {
		return sdktrace.NeverSample()
	}
	return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(ratio))
}

// InitWithProvider wraps an existing provider, for tests
func InitWithProvider(tp trace.TracerProvider) *Handle {
	return &Handle{
		Tracer:   tp.Tracer(tracerName),
		Shutdown: func(context.Context) error { return nil },
	}
}
