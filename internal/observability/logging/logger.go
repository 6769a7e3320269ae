// Package logging is the structured logger threaded through the CLI context.
package logging

import (
	"context"
	"fmt"
	"io"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Logger logs per component; Event emits a named khcheck.* record
type Logger interface {
	Debug(component, msg string, fields ...any)
	Info(component, msg string, fields ...any)
	Warn(component, msg string, fields ...any)
	Error(component, msg string, fields ...any)
	Event(ctx context.Context, event string, fields map[string]any)
	Close() error
}

// discard backs --log-format none and contexts without a logger
var discard Logger = &zapLogger{z: zap.NewNop()}

type ctxKey struct{}

func WithLogger(ctx context.Context, l Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// From never returns nil
func From(ctx context.Context) Logger {
	if l, ok := ctx.Value(ctxKey{}).(Logger); ok {
		return l
	}
	return discard
}

// NewLogger opens cfg.Output through zap's sink registry, so "stderr",
// "stdout" and file paths (appended to) all work
func NewLogger(cfg Config) (Logger, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Format == FormatNone {
		return discard, nil
	}

	out := cfg.Output
	if out == "" {
		out = "stderr"
	}
	sink, closeSink, err := zap.Open(out)
	if err != nil {
		return nil, fmt.Errorf("failed to open log output %s: %w", out, err)
	}
	level, _ := parseLevel(cfg.Level)
	return newZapLogger(sink, closeSink, encoderFor(cfg.Format), level), nil
}

// newWriterLogger is for tests that capture output
func newWriterLogger(w io.Writer, format string, level string) Logger {
	lvl, _ := parseLevel(level)
	return newZapLogger(zapcore.AddSync(w), nil, encoderFor(format), lvl)
}
