package logging

import (
	"context"
	"runtime"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/khcheck/khcheck/internal/observability"
	"github.com/khcheck/khcheck/internal/version"
)

const SchemaVersion = "1.0"

// EventPrefix namespaces events for log pipelines
const EventPrefix = "khcheck."

func encoderConfig() zapcore.EncoderConfig {
	return zapcore.EncoderConfig{
		TimeKey:        "ts",
		LevelKey:       "level",
		MessageKey:     "msg",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.RFC3339NanoTimeEncoder,
		EncodeDuration: zapcore.MillisDurationEncoder,
	}
}

// encoderFor picks JSON lines for jsonl and a console layout otherwise
func encoderFor(format string) zapcore.Encoder {
	cfg := encoderConfig()
	if format == FormatJSONL {
		return zapcore.NewJSONEncoder(cfg)
	}
	cfg.EncodeTime = zapcore.TimeEncoderOfLayout(time.TimeOnly)
	cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	return zapcore.NewConsoleEncoder(cfg)
}

type zapLogger struct {
	z         *zap.Logger
	closeSink func()
}

func newZapLogger(ws zapcore.WriteSyncer, closeSink func(), enc zapcore.Encoder, level zapcore.Level) *zapLogger {
	core := zapcore.NewCore(enc, zapcore.Lock(ws), level)
	z := zap.New(core).With(
		zap.String("schema_version", SchemaVersion),
		zap.String("khcheck_version", version.BuildVersion()),
		zap.String("go_version", runtime.Version()),
	)
	return &zapLogger{z: z, closeSink: closeSink}
}

// pairs turns alternating key/value arguments into zap fields; non-string
// keys are dropped along with their value
func pairs(fields []any) []zap.Field {
	out := make([]zap.Field, 0, len(fields)/2)
	for i := 0; i+1 < len(fields); i += 2 {
		if key, ok := fields[i].(string); ok {
			out = append(out, zap.Any(key, fields[i+1]))
		}
	}
	return out
}

func (l *zapLogger) log(level zapcore.Level, component, msg string, fields ...any) {
	ce := l.z.Check(level, msg)
	if ce == nil {
		return
	}
	ce.Write(append([]zap.Field{zap.String("component", component)}, pairs(fields)...)...)
}

func (l *zapLogger) Debug(component, msg string, fields ...any) {
	l.log(zapcore.DebugLevel, component, msg, fields...)
}

func (l *zapLogger) Info(component, msg string, fields ...any) {
	l.log(zapcore.InfoLevel, component, msg, fields...)
}

func (l *zapLogger) Warn(component, msg string, fields ...any) {
	l.log(zapcore.WarnLevel, component, msg, fields...)
}

func (l *zapLogger) Error(component, msg string, fields ...any) {
	l.log(zapcore.ErrorLevel, component, msg, fields...)
}

// Event always logs at info with the op id from ctx
func (l *zapLogger) Event(ctx context.Context, event string, fields map[string]any) {
	ce := l.z.Check(zapcore.InfoLevel, "")
	if ce == nil {
		return
	}
	zf := []zap.Field{
		zap.String("event", EventPrefix+event),
		zap.String("component", "cli"),
		zap.String("op_id", observability.OpID(ctx)),
	}
	if len(fields) > 0 {
		zf = append(zf, zap.Any("fields", fields))
	}
	ce.Write(zf...)
}

// Close flushes and releases the sink. Sync errors on terminals are
// ignored; they report EINVAL for stderr on Linux.
func (l *zapLogger) Close() error {
	_ = l.z.Sync()
	if l.closeSink != nil {
		l.closeSink()
		l.closeSink = nil
	}
	return nil
}
