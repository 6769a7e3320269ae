package logging

import (
	"fmt"

	"go.uber.org/zap/zapcore"
)

// Config comes from the log.* settings
type Config struct {
	Format string
	Level  string
	Output string
}

const (
	FormatJSONL  = "jsonl"
	FormatPretty = "pretty"
	FormatNone   = "none"
)

const (
	LevelDebug = "debug"
	LevelInfo  = "info"
	LevelWarn  = "warn"
	LevelError = "error"
)

// Validate rejects unknown formats and levels; empty values mean pretty
// and info
func (c Config) Validate() error {
	switch c.Format {
	case "", FormatJSONL, FormatPretty, FormatNone:
	default:
		return fmt.Errorf("unknown log format %q (valid: jsonl, pretty, none)", c.Format)
	}
	_, err := parseLevel(c.Level)
	return err
}

func parseLevel(s string) (zapcore.Level, error) {
	switch s {
	case "", LevelInfo:
		return zapcore.InfoLevel, nil
	case LevelDebug:
		return zapcore.DebugLevel, nil
	case LevelWarn:
		return zapcore.WarnLevel, nil
	case LevelError:
		return zapcore.ErrorLevel, nil
	}
	return zapcore.InfoLevel, fmt.Errorf("unknown log level %q (valid: debug, info, warn, error)", s)
}
