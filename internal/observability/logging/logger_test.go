package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/khcheck/khcheck/internal/observability"
)

func decodeLine(t *testing.T, line string) map[string]any {
	t.Helper()
	var entry map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(line)), &entry); err != nil {
		t.Fatalf("output is not valid JSON: %v\nOutput: %s", err, line)
	}
	return entry
}

func TestJSONL_EventFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newWriterLogger(&buf, FormatJSONL, LevelDebug)

	ctx := observability.WithOpID(context.Background())
	logger.Event(ctx, "check.complete", map[string]any{"duration_ms": 12, "result": "success"})

	entry := decodeLine(t, buf.String())
	for _, field := range []string{"ts", "level", "event", "component", "op_id", "schema_version", "khcheck_version", "go_version"} {
		if _, ok := entry[field]; !ok {
			t.Errorf("missing required field: %s", field)
		}
	}

	if entry["event"] != "khcheck.check.complete" {
		t.Errorf("event = %v, want khcheck.check.complete", entry["event"])
	}
	if entry["op_id"] != observability.OpID(ctx) {
		t.Errorf("op_id = %v, want %v", entry["op_id"], observability.OpID(ctx))
	}
	if entry["schema_version"] != SchemaVersion {
		t.Errorf("schema_version = %v, want %s", entry["schema_version"], SchemaVersion)
	}
	if entry["level"] != "info" {
		t.Errorf("level = %v, want info", entry["level"])
	}

	fields, ok := entry["fields"].(map[string]any)
	if !ok {
		t.Fatal("fields is not a map")
	}
	if fields["duration_ms"] != float64(12) {
		t.Errorf("duration_ms = %v, want 12", fields["duration_ms"])
	}
	if fields["result"] != "success" {
		t.Errorf("result = %v, want success", fields["result"])
	}
}

func TestJSONL_KeyValueFields(t *testing.T) {
	var buf bytes.Buffer
	logger := newWriterLogger(&buf, FormatJSONL, LevelDebug)

	logger.Warn("kconfig", "kernel version not detected", "path", "/boot/config", 42, "dropped", "arch", "X86_64")

	entry := decodeLine(t, buf.String())
	if entry["component"] != "kconfig" {
		t.Errorf("component = %v, want kconfig", entry["component"])
	}
	if entry["msg"] != "kernel version not detected" {
		t.Errorf("msg = %v", entry["msg"])
	}
	if entry["path"] != "/boot/config" {
		t.Errorf("path = %v, want /boot/config", entry["path"])
	}
	if entry["arch"] != "X86_64" {
		t.Errorf("arch = %v, want X86_64", entry["arch"])
	}
	if _, ok := entry["dropped"]; ok {
		t.Error("value after a non-string key should be dropped")
	}
}

func TestLevelFiltering(t *testing.T) {
	tests := []struct {
		level  string
		method func(Logger)
		want   bool
	}{
		{LevelInfo, func(l Logger) { l.Debug("c", "m") }, false},
		{LevelInfo, func(l Logger) { l.Info("c", "m") }, true},
		{LevelWarn, func(l Logger) { l.Info("c", "m") }, false},
		{LevelError, func(l Logger) { l.Warn("c", "m") }, false},
		{LevelError, func(l Logger) { l.Error("c", "m") }, true},
		{"bogus", func(l Logger) { l.Info("c", "m") }, true},
	}

	for _, tt := range tests {
		var buf bytes.Buffer
		tt.method(newWriterLogger(&buf, FormatJSONL, tt.level))

		got := buf.Len() > 0
		if got != tt.want {
			t.Errorf("level=%s: got output=%v, want %v", tt.level, got, tt.want)
		}
	}
}

func TestEvent_SuppressedAboveInfo(t *testing.T) {
	var buf bytes.Buffer
	logger := newWriterLogger(&buf, FormatJSONL, LevelWarn)
	logger.Event(context.Background(), "check.start", nil)
	if buf.Len() != 0 {
		t.Errorf("expected no output at warn level, got %q", buf.String())
	}
}

func TestJSONL_MultipleLines(t *testing.T) {
	var buf bytes.Buffer
	logger := newWriterLogger(&buf, FormatJSONL, LevelDebug)

	ctx := observability.WithOpID(context.Background())
	logger.Event(ctx, "first.event", nil)
	logger.Event(ctx, "second.event", nil)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	for _, line := range lines {
		decodeLine(t, line)
	}
}

func TestPretty_IsHumanReadable(t *testing.T) {
	var buf bytes.Buffer
	logger := newWriterLogger(&buf, FormatPretty, LevelInfo)
	logger.Info("cli", "loaded catalogue", "rules", 120)

	out := buf.String()
	if !strings.Contains(out, "INFO") || !strings.Contains(out, "loaded catalogue") {
		t.Errorf("unexpected pretty output: %q", out)
	}
	if strings.HasPrefix(strings.TrimSpace(out), "{") {
		t.Errorf("pretty output should not be JSON: %q", out)
	}
}

func TestNewLogger_Formats(t *testing.T) {
	tests := []struct {
		format   string
		wantNoop bool
		wantErr  bool
	}{
		{format: FormatJSONL},
		{format: FormatPretty},
		{format: ""},
		{format: FormatNone, wantNoop: true},
		{format: "xml", wantErr: true},
	}

	for _, tt := range tests {
		logger, err := NewLogger(Config{Format: tt.format})
		if tt.wantErr {
			if err == nil {
				t.Errorf("format %q: expected error", tt.format)
			}
			continue
		}
		if err != nil {
			t.Fatalf("format %q: NewLogger failed: %v", tt.format, err)
		}
		isNoop := logger == discard
		if isNoop != tt.wantNoop {
			t.Errorf("format %q: noop = %v, want %v", tt.format, isNoop, tt.wantNoop)
		}
		_ = logger.Close()
	}
}

func TestConfig_Validate(t *testing.T) {
	if err := (Config{Format: FormatJSONL, Level: LevelDebug}).Validate(); err != nil {
		t.Errorf("valid config rejected: %v", err)
	}
	if err := (Config{}).Validate(); err != nil {
		t.Errorf("empty config should default, got %v", err)
	}
	if err := (Config{Level: "trace"}).Validate(); err == nil {
		t.Error("expected error for unknown level")
	}
	if _, err := NewLogger(Config{Format: FormatJSONL, Level: "loud"}); err == nil {
		t.Error("NewLogger should reject unknown levels")
	}
}

func TestNewLogger_FileOutput(t *testing.T) {
	logFile := filepath.Join(t.TempDir(), "khcheck.log")

	for i := 0; i < 2; i++ {
		logger, err := NewLogger(Config{Format: FormatJSONL, Output: logFile})
		if err != nil {
			t.Fatalf("NewLogger failed: %v", err)
		}
		logger.Event(observability.WithOpID(context.Background()), "test.event", nil)
		if err := logger.Close(); err != nil {
			t.Fatalf("Close failed: %v", err)
		}
	}

	data, err := os.ReadFile(logFile)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected the file to be appended to, got %d lines", len(lines))
	}
}

func TestFromContext_NoLogger(t *testing.T) {
	ctx := context.Background()
	logger := From(ctx)

	if logger == nil {
		t.Fatal("From should never return nil")
	}

	logger.Debug("test", "msg")
	logger.Info("test", "msg")
	logger.Warn("test", "msg")
	logger.Error("test", "msg")
	logger.Event(ctx, "test.event", nil)
}

func TestFromContext_WithLogger(t *testing.T) {
	var buf bytes.Buffer
	original := newWriterLogger(&buf, FormatJSONL, LevelDebug)

	ctx := WithLogger(context.Background(), original)
	if From(ctx) != original {
		t.Error("From should return the logger stored in context")
	}
}
