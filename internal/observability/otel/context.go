package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/khcheck/khcheck/internal/models"
)

// Span attribute keys
const (
	AttrOpID    = "khcheck.op_id"
	AttrCommand = "khcheck.command"
	AttrArch    = "khcheck.arch"
	AttrKernel  = "khcheck.kernel_version"
	AttrOK      = "khcheck.ok"
	AttrFail    = "khcheck.fail"
	AttrGate    = "khcheck.gate"
)

type handleKey struct{}

// Handle wraps tracer and shutdown
type Handle struct {
	Tracer   trace.Tracer
	Shutdown func(context.Context) error
}

func WithHandle(ctx context.Context, h *Handle) context.Context {
	return context.WithValue(ctx, handleKey{}, h)
}

// From returns nil when tracing is off
func From(ctx context.Context) *Handle {
	h, _ := ctx.Value(handleKey{}).(*Handle)
	return h
}

// StartSpan starts a span on the context's tracer, or a non-recording one
// when tracing is off, so callers never branch on it
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := trace.Tracer(noop.NewTracerProvider().Tracer(tracerName))
	if h := From(ctx); h != nil && h.Tracer != nil {
		tracer = h.Tracer
	}
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// RecordSummary tags a span with check totals
func RecordSummary(span trace.Span, arch models.Arch, sum models.Summary) {
	span.SetAttributes(
		attribute.String(AttrArch, string(arch)),
		attribute.Int(AttrOK, sum.OK),
		attribute.Int(AttrFail, sum.Fail),
	)
}

// RecordError marks the span failed
func RecordError(span trace.Span, err error) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
