package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestNew(t *testing.T) {
	for _, json := range []bool{false, true} {
		l, err := New(json, true)
		if err != nil {
			t.Fatalf("New(json=%v) failed: %v", json, err)
		}
		if !l.Core().Enabled(zapcore.DebugLevel) {
			t.Error("expected debug level to be enabled")
		}
	}

	l, err := New(false, false)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if l.Core().Enabled(zapcore.DebugLevel) {
		t.Error("expected debug level to be disabled")
	}
}

func TestTruncateForLog(t *testing.T) {
	tests := []struct {
		in    string
		limit int
		want  string
	}{
		{"  short  ", 10, "short"},
		{"exactly", 7, "exactly"},
		{"a longer prompt", 8, "a longer..."},
		{"żółć gęś", 4, "żółć..."},
		{"anything", 0, ""},
	}

	for _, tt := range tests {
		if got := TruncateForLog(tt.in, tt.limit); got != tt.want {
			t.Errorf("TruncateForLog(%q, %d) = %q, want %q", tt.in, tt.limit, got, tt.want)
		}
	}
}

func TestStringFields(t *testing.T) {
	fields := StringFields(
		StringField{Key: "  provider  ", Value: "  openai  "},
		StringField{Key: "ignored", Value: "   "},
		StringField{Key: "   ", Value: "empty key"},
	)

	if len(fields) != 1 {
		t.Fatalf("expected 1 field, got %d", len(fields))
	}
	if fields[0].Key != "provider" || fields[0].String != "openai" {
		t.Fatalf("unexpected provider field: %+v", fields[0])
	}
}

func TestForProvider(t *testing.T) {
	core, observed := observer.New(zapcore.InfoLevel)
	l := zap.New(core)

	ForProvider(l, "anthropic", "claude-sonnet").Info("decision batch")

	entries := observed.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}

	ctx := entries[0].ContextMap()
	if ctx[FieldProvider] != "anthropic" {
		t.Errorf("expected provider field anthropic, got %v", ctx[FieldProvider])
	}
	if ctx[FieldModel] != "claude-sonnet" {
		t.Errorf("expected model field claude-sonnet, got %v", ctx[FieldModel])
	}

	if len(ProviderFields("", "")) != 0 {
		t.Error("expected empty values to be dropped")
	}
}

func TestNilLoggerFallback(t *testing.T) {
	if OrNop(nil) == nil {
		t.Fatal("expected no-op logger")
	}
	// Logging through a nil-derived logger must not panic
	ForComponent(nil, "synth").Info("ok")
	WithFields(nil).Warn("ok")
}
