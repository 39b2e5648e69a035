package configutil

import (
	"strings"
	"testing"
	"time"
)

type decoderSettings struct {
	ModelPath  string `mapstructure:"model_path"`
	Language   string `mapstructure:"language"`
	Threads    int    `mapstructure:"threads"`
	Translate  *bool  `mapstructure:"translate"`
	IntervalMS *int   `mapstructure:"interval_ms"`
}

func TestDecodeSettingsNormalizesKeys(t *testing.T) {
	input := map[string]any{
		"Model-Path": "/models/ggml-tiny.bin",
		"LANGUAGE":   "en",
		"threads":    "8",
	}
	var out decoderSettings
	if err := DecodeSettings(input, &out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.ModelPath != "/models/ggml-tiny.bin" {
		t.Fatalf("model path not decoded, got %q", out.ModelPath)
	}
	if out.Language != "en" {
		t.Fatalf("language not decoded, got %q", out.Language)
	}
	if out.Threads != 8 {
		t.Fatalf("expected weakly typed int 8, got %d", out.Threads)
	}
}

func TestValidateSettingsReportsMissingAndUnknown(t *testing.T) {
	schema := Schema{
		Required: []string{"api_key"},
		Optional: []string{"model", "language"},
	}
	err := ValidateSettings(map[string]any{
		"model":   "nova-3",
		"mystery": true,
	}, schema)
	if err == nil {
		t.Fatalf("expected validation error")
	}
	msg := err.Error()
	if want := "missing: api_key"; !strings.Contains(msg, want) {
		t.Fatalf("expected %q in %q", want, msg)
	}
	if want := "unknown: mystery"; !strings.Contains(msg, want) {
		t.Fatalf("expected %q in %q", want, msg)
	}
}

func TestOptionalValueHelpers(t *testing.T) {
	if got := DurationMS(nil, 400*time.Millisecond); got != 400*time.Millisecond {
		t.Fatalf("expected fallback interval, got %v", got)
	}
	ms := 250
	if got := DurationMS(&ms, 400*time.Millisecond); got != 250*time.Millisecond {
		t.Fatalf("expected 250ms, got %v", got)
	}
	flag := true
	if !BoolValue(&flag, false) {
		t.Fatalf("expected pointer value to win")
	}
	if IntValue(nil, 16) != 16 {
		t.Fatalf("expected int fallback")
	}
}
