package scribe

import (
	"testing"

	"github.com/scribekit/scribe/pkg/errorsx"
)

func TestRegistryBuildsMockDecoder(t *testing.T) {
	r := NewProviderRegistry()
	cfg := Config{Provider: ProviderConfig{
		Name:     "mock",
		Settings: map[string]any{"result": "scripted"},
	}}
	dec, err := r.BuildDecoder("mock", cfg)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if dec.Name() != "mock" {
		t.Fatalf("unexpected provider name %q", dec.Name())
	}
}

func TestRegistryUnknownProvider(t *testing.T) {
	r := NewProviderRegistry()
	if _, err := r.BuildDecoder("nope", Config{}); !errorsx.HasReason(err, errorsx.ReasonProviderUnknown) {
		t.Fatalf("expected provider_unknown, got %v", err)
	}
	if _, err := r.BuildStreamer("nope", Config{}, "s1"); !errorsx.HasReason(err, errorsx.ReasonProviderUnknown) {
		t.Fatalf("expected provider_unknown, got %v", err)
	}
}

func TestRegistryStreamingClassification(t *testing.T) {
	r := NewProviderRegistry()
	if !r.IsStreaming("deepgram") || !r.IsStreaming("mock_stream") {
		t.Fatalf("expected deepgram and mock_stream to be streaming providers")
	}
	if r.IsStreaming("mock") || r.IsStreaming("whispercpp") {
		t.Fatalf("batch decoders misclassified as streaming")
	}
	// Case and whitespace normalize.
	if !r.IsStreaming(" Deepgram ") {
		t.Fatalf("name normalization broken")
	}
}

func TestRegistryRejectsUnknownSettingKeys(t *testing.T) {
	r := NewProviderRegistry()
	cfg := Config{Provider: ProviderConfig{
		Name:     "mock",
		Settings: map[string]any{"resultz": "typo"},
	}}
	if _, err := r.BuildDecoder("mock", cfg); !errorsx.HasReason(err, errorsx.ReasonConfigInvalid) {
		t.Fatalf("expected config_invalid for unknown key, got %v", err)
	}
}

func TestRegistryDeepgramRequiresAPIKey(t *testing.T) {
	r := NewProviderRegistry()
	cfg := Config{Provider: ProviderConfig{
		Name:     "deepgram",
		Settings: map[string]any{"model": "nova-2"},
	}}
	if _, err := r.BuildStreamer("deepgram", cfg, "sess1"); !errorsx.HasReason(err, errorsx.ReasonConfigInvalid) {
		t.Fatalf("expected config_invalid for missing api_key, got %v", err)
	}
}

func TestRegistryStreamerCarriesSessionSettings(t *testing.T) {
	r := NewProviderRegistry()
	cfg := Config{
		Engine: EngineConfig{SampleRate: 16000, Language: "en"},
		Provider: ProviderConfig{
			Name:     "mock_stream",
			Settings: map[string]any{"final": "done"},
		},
	}
	st, err := r.BuildStreamer("mock_stream", cfg, "sess1")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if st.Name() != "mock" {
		t.Fatalf("unexpected streamer %q", st.Name())
	}
}
