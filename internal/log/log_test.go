package log

import (
	"bytes"
	"log/slog"
	"strings"
	"testing"
)

func TestNewWithWriter_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{Level: slog.LevelDebug})

	logger.Debug("hello", "key", "value")

	out := buf.String()
	if !strings.Contains(out, "hello") {
		t.Errorf("output missing message: %q", out)
	}
	if !strings.Contains(out, "key=value") {
		t.Errorf("output missing attribute: %q", out)
	}
}

func TestNewWithWriter_JSONFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewWithWriter(&buf, Config{JSON: true})

	logger.Info("structured")

	out := buf.String()
	if !strings.HasPrefix(out, "{") {
		t.Errorf("expected JSON output, got %q", out)
	}
	if !strings.Contains(out, `"msg":"structured"`) {
		t.Errorf("output missing msg field: %q", out)
	}
}

func TestNewWithWriter_LevelFiltering(t *testing.T) {
	tests := []struct {
		name      string
		level     slog.Level
		logAt     slog.Level
		wantEmpty bool
	}{
		{"debug suppressed at info", slog.LevelInfo, slog.LevelDebug, true},
		{"info passes at info", slog.LevelInfo, slog.LevelInfo, false},
		{"warn passes at info", slog.LevelInfo, slog.LevelWarn, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			logger := NewWithWriter(&buf, Config{Level: tt.level})

			logger.Log(t.Context(), tt.logAt, "probe")

			if got := buf.Len() == 0; got != tt.wantEmpty {
				t.Errorf("empty=%v, want %v (output %q)", got, tt.wantEmpty, buf.String())
			}
		})
	}
}

func TestNewNop_DiscardsOutput(t *testing.T) {
	logger := NewNop()
	// Must not panic and must accept all levels.
	logger.Debug("dropped")
	logger.Error("dropped too")
}
