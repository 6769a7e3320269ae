package otel

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/khcheck/khcheck/internal/models"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{name: "disabled is always valid", cfg: Config{Enabled: false, Protocol: "invalid", SampleRatio: -1}},
		{name: "valid otlphttp", cfg: Config{Enabled: true, Protocol: ProtocolHTTP, SampleRatio: 0.5}},
		{name: "valid otlpgrpc", cfg: Config{Enabled: true, Protocol: ProtocolGRPC, SampleRatio: 1.0}},
		{name: "invalid protocol", cfg: Config{Enabled: true, Protocol: "zipkin", SampleRatio: 1.0}, wantErr: true},
		{name: "sample ratio below 0", cfg: Config{Enabled: true, Protocol: ProtocolHTTP, SampleRatio: -0.1}, wantErr: true},
		{name: "sample ratio above 1", cfg: Config{Enabled: true, Protocol: ProtocolHTTP, SampleRatio: 1.5}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestResolveEndpoint(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "")

	if got := resolveEndpoint(Config{Protocol: ProtocolHTTP}); got != "http://localhost:4318" {
		t.Errorf("http default = %q", got)
	}
	if got := resolveEndpoint(Config{Protocol: ProtocolGRPC}); got != "localhost:4317" {
		t.Errorf("grpc default = %q", got)
	}
	if got := resolveEndpoint(Config{Protocol: ProtocolGRPC, Endpoint: "collector:4317"}); got != "collector:4317" {
		t.Errorf("explicit endpoint = %q", got)
	}

	t.Setenv("OTEL_EXPORTER_OTLP_ENDPOINT", "http://otel.internal:4318")
	if got := resolveEndpoint(Config{Protocol: ProtocolHTTP}); got != "http://otel.internal:4318" {
		t.Errorf("env endpoint = %q", got)
	}
}

func newRecorder(t *testing.T) (context.Context, *tracetest.SpanRecorder) {
	t.Helper()
	recorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })
	return WithHandle(context.Background(), InitWithProvider(tp)), recorder
}

func attrMap(attrs []attribute.KeyValue) map[string]attribute.Value {
	out := make(map[string]attribute.Value, len(attrs))
	for _, a := range attrs {
		out[string(a.Key)] = a.Value
	}
	return out
}

func TestStartSpan_RecordsSummary(t *testing.T) {
	ctx, recorder := newRecorder(t)

	_, span := StartSpan(ctx, "khcheck.check",
		attribute.String(AttrCommand, "check"),
		attribute.String(AttrOpID, "abc-123"),
	)
	RecordSummary(span, models.ArchARM64, models.Summary{OK: 7, Fail: 2, Total: 9})
	span.SetStatus(codes.Ok, "")
	span.End()

	spans := recorder.Ended()
	if len(spans) != 1 {
		t.Fatalf("expected 1 span, got %d", len(spans))
	}
	s := spans[0]
	if s.Name() != "khcheck.check" {
		t.Errorf("span name = %q, want khcheck.check", s.Name())
	}

	attrs := attrMap(s.Attributes())
	if attrs[AttrCommand].AsString() != "check" {
		t.Errorf("%s = %v", AttrCommand, attrs[AttrCommand])
	}
	if attrs[AttrArch].AsString() != "ARM64" {
		t.Errorf("%s = %v", AttrArch, attrs[AttrArch])
	}
	if attrs[AttrOK].AsInt64() != 7 || attrs[AttrFail].AsInt64() != 2 {
		t.Errorf("ok/fail = %v/%v, want 7/2", attrs[AttrOK], attrs[AttrFail])
	}
}

func TestRecordError(t *testing.T) {
	ctx, recorder := newRecorder(t)

	_, span := StartSpan(ctx, "khcheck.generate")
	RecordError(span, nil)
	RecordError(span, errors.New("unsupported arch"))
	span.End()

	s := recorder.Ended()[0]
	if s.Status().Code != codes.Error {
		t.Errorf("span status = %v, want Error", s.Status().Code)
	}
	found := false
	for _, e := range s.Events() {
		if e.Name == "exception" {
			found = true
		}
	}
	if !found {
		t.Error("expected error event to be recorded")
	}
}

func TestStartSpan_WithoutHandle(t *testing.T) {
	ctx, span := StartSpan(context.Background(), "khcheck.print")
	defer span.End()

	if ctx == nil {
		t.Fatal("context should not be nil")
	}
	if span.IsRecording() {
		t.Error("span without a handle should not record")
	}
}

func TestContextRoundtrip(t *testing.T) {
	ctx := context.Background()
	if h := From(ctx); h != nil {
		t.Error("expected nil handle from empty context")
	}

	handle := &Handle{}
	ctx = WithHandle(ctx, handle)
	if got := From(ctx); got != handle {
		t.Error("expected to retrieve the same handle from context")
	}
}
