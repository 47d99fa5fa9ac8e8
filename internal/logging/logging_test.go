package logging

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNewLoggerWritesJSONWithComponent(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(Config{Level: "debug", Format: "json"}, &buf).With().Str("component", "evaluator").Logger()

	logger.Debug().Int64("user_id", 7).Msg("cycle done")

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("decode log line %q: %v", buf.String(), err)
	}
	if entry["component"] != "evaluator" {
		t.Errorf("component = %v, want evaluator", entry["component"])
	}
	if entry["message"] != "cycle done" {
		t.Errorf("message = %v", entry["message"])
	}
	if _, ok := entry["time"]; !ok {
		t.Errorf("timestamp missing from %v", entry)
	}
}

func TestNewLoggerRespectsLevel(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(Config{Level: "warn"}, &buf)

	logger.Info().Msg("hidden")
	if buf.Len() != 0 {
		t.Fatalf("info should be filtered at warn level, got %q", buf.String())
	}

	logger.Warn().Msg("shown")
	if !strings.Contains(buf.String(), "shown") {
		t.Fatalf("warn entry missing: %q", buf.String())
	}
}

func TestNewLoggerConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(Config{Format: "console"}, &buf)

	logger.Info().Str("source", "nbu").Msg("rate source unavailable")

	out := buf.String()
	if strings.HasPrefix(out, "{") {
		t.Fatalf("console format should not emit JSON: %q", out)
	}
	if !strings.Contains(out, "source=nbu") {
		t.Fatalf("console output missing field: %q", out)
	}
}
