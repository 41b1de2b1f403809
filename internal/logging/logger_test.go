package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew(t *testing.T) {
	output := &bytes.Buffer{}
	logger := New(LevelInfo, output)

	if logger == nil {
		t.Fatal("New() returned nil")
	}
	if logger.GetLevel() != LevelInfo {
		t.Errorf("level = %v, want %v", logger.GetLevel(), LevelInfo)
	}
}

func TestNewFromString(t *testing.T) {
	tests := []struct {
		name      string
		levelStr  string
		wantLevel Level
	}{
		{"debug", "debug", LevelDebug},
		{"info", "info", LevelInfo},
		{"warn", "warn", LevelWarn},
		{"error", "error", LevelError},
		{"DEBUG uppercase", "DEBUG", LevelDebug},
		{"warning alias", "warning", LevelWarn},
		{"unknown defaults to info", "invalid", LevelInfo},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			logger := NewFromString(tt.levelStr, &bytes.Buffer{})

			if logger.GetLevel() != tt.wantLevel {
				t.Errorf("level = %v, want %v", logger.GetLevel(), tt.wantLevel)
			}
		})
	}
}

func TestLevelString(t *testing.T) {
	tests := []struct {
		level Level
		want  string
	}{
		{LevelDebug, "DEBUG"},
		{LevelInfo, "INFO"},
		{LevelWarn, "WARN"},
		{LevelError, "ERROR"},
		{Level(42), "UNKNOWN"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.level.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLogger_LevelFiltering(t *testing.T) {
	tests := []struct {
		name       string
		logLevel   Level
		logFunc    func(*Logger)
		wantOutput bool
	}{
		{"debug level logs debug", LevelDebug, func(l *Logger) { l.Debug("test") }, true},
		{"debug level logs error", LevelDebug, func(l *Logger) { l.Error("test") }, true},
		{"info level filters debug", LevelInfo, func(l *Logger) { l.Debug("test") }, false},
		{"info level logs info", LevelInfo, func(l *Logger) { l.Info("test") }, true},
		{"warn level filters info", LevelWarn, func(l *Logger) { l.Info("test") }, false},
		{"warn level logs warn", LevelWarn, func(l *Logger) { l.Warn("test") }, true},
		{"error level filters warn", LevelError, func(l *Logger) { l.Warn("test") }, false},
		{"error level logs error", LevelError, func(l *Logger) { l.Error("test") }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			output := &bytes.Buffer{}
			logger := New(tt.logLevel, output)

			tt.logFunc(logger)

			if gotOutput := output.Len() > 0; gotOutput != tt.wantOutput {
				t.Errorf("output present = %v, want %v", gotOutput, tt.wantOutput)
			}
		})
	}
}

func TestLogger_TextFormat(t *testing.T) {
	output := &bytes.Buffer{}
	logger := New(LevelDebug, output)

	logger.Debug("test message: %s", "hello")

	got := output.String()
	if !strings.Contains(got, "level=DEBUG") {
		t.Errorf("output missing level=DEBUG: %q", got)
	}
	if !strings.Contains(got, `msg="test message: hello"`) {
		t.Errorf("output missing formatted message: %q", got)
	}
}

func TestLogger_JSONFormat(t *testing.T) {
	output := &bytes.Buffer{}
	logger := NewWithFormat(LevelInfo, FormatJSON, output).With("session_id", "abc")

	logger.Warn("upstream slow: %dms", 1500)

	var record map[string]any
	if err := json.Unmarshal(output.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%q)", err, output.String())
	}
	if record["level"] != "WARN" {
		t.Errorf("level = %v, want WARN", record["level"])
	}
	if record["msg"] != "upstream slow: 1500ms" {
		t.Errorf("msg = %v", record["msg"])
	}
	if record["session_id"] != "abc" {
		t.Errorf("session_id = %v, want abc", record["session_id"])
	}
}

func TestLogger_SetLevel(t *testing.T) {
	output := &bytes.Buffer{}
	logger := New(LevelError, output)
	child := logger.With("component", "web")

	child.Info("hidden")
	if output.Len() != 0 {
		t.Fatalf("info should be filtered at error level, got %q", output.String())
	}

	// Children share the parent's level.
	logger.SetLevel(LevelInfo)
	child.Info("visible")
	if !strings.Contains(output.String(), "visible") {
		t.Errorf("info should be logged after SetLevel, got %q", output.String())
	}
	if logger.GetLevel() != LevelInfo {
		t.Errorf("GetLevel() = %v, want %v", logger.GetLevel(), LevelInfo)
	}
}

func TestDiscard(t *testing.T) {
	logger := Discard()
	logger.Error("nothing to see")
	if logger.GetLevel() != LevelError {
		t.Errorf("GetLevel() = %v, want %v", logger.GetLevel(), LevelError)
	}
}
