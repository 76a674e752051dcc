package logger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"
)

func decodeLines(t *testing.T, buf *bytes.Buffer) []map[string]interface{} {
	t.Helper()
	var out []map[string]interface{}
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		if line == "" {
			continue
		}
		var m map[string]interface{}
		if err := json.Unmarshal([]byte(line), &m); err != nil {
			t.Fatalf("invalid json line %q: %v", line, err)
		}
		out = append(out, m)
	}
	return out
}

func TestNewWithWriter_JSONFields(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "info", Format: FormatJSON}, "material", &buf)

	l.WithComponent("discovery").Info("registered", Fields(FieldServiceID, "material_10.0.0.5", FieldAgent, "10.0.0.1:8500"))

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	got := lines[0]
	if got[FieldService] != "material" {
		t.Errorf("expected service=material, got %v", got[FieldService])
	}
	if got[FieldComponent] != "discovery" {
		t.Errorf("expected component=discovery, got %v", got[FieldComponent])
	}
	if got[FieldServiceID] != "material_10.0.0.5" {
		t.Errorf("expected service_id field, got %v", got[FieldServiceID])
	}
	if got["message"] != "registered" {
		t.Errorf("expected message 'registered', got %v", got["message"])
	}
}

func TestNewWithWriter_LevelFilters(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "warn", Format: FormatJSON}, "", &buf)

	l.Debug("hidden")
	l.Info("hidden")
	l.Warn("shown")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected only the warn line, got %d lines", len(lines))
	}
	if lines[0]["level"] != "warn" {
		t.Errorf("expected level warn, got %v", lines[0]["level"])
	}
}

func TestNewWithWriter_InvalidLevelFallsBackToInfo(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "loud", Format: FormatJSON}, "", &buf)

	l.Debug("hidden")
	l.Info("shown")

	if n := len(decodeLines(t, &buf)); n != 1 {
		t.Errorf("expected 1 line at info fallback, got %d", n)
	}
}

func TestWithContext_RequestID(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "info", Format: FormatJSON}, "", &buf)

	ctx := ContextWithRequestID(context.Background(), "req-42")
	l.WithContext(ctx).Info("handled")
	l.WithContext(context.Background()).Info("plain")

	lines := decodeLines(t, &buf)
	if lines[0][FieldRequestID] != "req-42" {
		t.Errorf("expected request_id=req-42, got %v", lines[0][FieldRequestID])
	}
	if _, ok := lines[1][FieldRequestID]; ok {
		t.Error("expected no request_id without one in context")
	}
}

func TestWithError(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "info", Format: FormatJSON}, "", &buf)

	l.WithError(fmt.Errorf("boom")).Error("failed")

	lines := decodeLines(t, &buf)
	if lines[0]["error"] != "boom" {
		t.Errorf("expected error=boom, got %v", lines[0]["error"])
	}
}

func TestZerolog_SharesContextAndLevel(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "warn", Format: FormatJSON}, "material", &buf)

	zl := l.WithComponent("pool").Zerolog()
	zl.Info().Msg("hidden")
	zl.Warn().Str(FieldAgent, "10.0.0.1:8500").Msg("agent dropped")

	lines := decodeLines(t, &buf)
	if len(lines) != 1 {
		t.Fatalf("expected 1 line, got %d", len(lines))
	}
	if lines[0][FieldService] != "material" || lines[0][FieldComponent] != "pool" {
		t.Errorf("expected service and component fields, got %v", lines[0])
	}
	if lines[0][FieldAgent] != "10.0.0.1:8500" {
		t.Errorf("expected agent field, got %v", lines[0][FieldAgent])
	}
}

func TestConsoleFormat(t *testing.T) {
	var buf bytes.Buffer
	l := NewWithWriter(&Config{Level: "info", Format: FormatConsole, NoColor: true}, "material", &buf)

	l.Info("hello")

	out := buf.String()
	if !strings.Contains(out, "[MAT][INF]") {
		t.Errorf("expected service and level tag, got %q", out)
	}
	if !strings.Contains(out, "hello") {
		t.Errorf("expected message in output, got %q", out)
	}
}

func TestInitSetsGlobal(t *testing.T) {
	l := Init(Config{Level: "info", Format: FormatJSON, Output: "stderr"}, "svc")
	if GetGlobalLogger() != l {
		t.Error("expected Init to install the global logger")
	}
	SetGlobalLogger(nil)
	if GetGlobalLogger() == nil {
		t.Error("expected a default global logger to be created")
	}
}

func TestNop(t *testing.T) {
	Nop().WithComponent("x").Info("discarded", Fields("k", "v"))
}

func TestConfigApplyDefaults(t *testing.T) {
	cfg := Config{}
	cfg.ApplyDefaults()

	if cfg.Level != "info" {
		t.Errorf("expected level 'info', got %q", cfg.Level)
	}
	if cfg.Format != FormatConsole {
		t.Errorf("expected format 'console', got %q", cfg.Format)
	}
	if cfg.Output != "stdout" {
		t.Errorf("expected output 'stdout', got %q", cfg.Output)
	}
	if !cfg.Timestamp {
		t.Error("expected timestamp to be enabled")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr bool
	}{
		{"valid", Config{Level: "debug", Format: FormatJSON}, false},
		{"bad level", Config{Level: "verbose", Format: FormatJSON}, true},
		{"bad format", Config{Level: "info", Format: "xml"}, true},
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

func TestFields(t *testing.T) {
	m := Fields("a", 1, "b", "two", 3, "skipped", "dangling")
	if m["a"] != 1 || m["b"] != "two" {
		t.Errorf("unexpected fields %v", m)
	}
	if len(m) != 2 {
		t.Errorf("expected 2 keys, got %d", len(m))
	}
}

func TestErrorAndDurationFields(t *testing.T) {
	ef := ErrorFields("register", fmt.Errorf("refused"))
	if ef[FieldOperation] != "register" || ef[FieldError] != "refused" {
		t.Errorf("unexpected error fields %v", ef)
	}
	df := DurationFields("discover", 1500*time.Millisecond)
	if df[FieldDuration] != int64(1500) {
		t.Errorf("expected duration_ms=1500, got %v", df[FieldDuration])
	}
}
