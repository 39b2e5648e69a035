package scribe

import (
	"fmt"
	"strings"

	"github.com/scribekit/scribe/pkg/asr"
	"github.com/scribekit/scribe/pkg/configutil"
	"github.com/scribekit/scribe/pkg/errorsx"
	"github.com/scribekit/scribe/pkg/providers/deepgram"
	"github.com/scribekit/scribe/pkg/providers/mock"
	"github.com/scribekit/scribe/pkg/providers/whispercpp"
)

// DecoderFactory builds a batch decoder from the provider settings block.
// Decoders are shared across sessions; the factory is called once.
type DecoderFactory func(cfg Config) (asr.Decoder, error)

// StreamerFactory builds a streaming recognizer. Streamers hold one remote
// connection each, so the factory runs once per session.
type StreamerFactory func(cfg Config, sessionID string) (asr.Streamer, error)

// ProviderRegistry maps provider names from configuration to factories.
type ProviderRegistry struct {
	decoders  map[string]DecoderFactory
	streamers map[string]StreamerFactory
}

// NewProviderRegistry returns a registry with the built-in providers:
// decoders "mock" and "whispercpp", streamers "deepgram" and "mock_stream".
func NewProviderRegistry() *ProviderRegistry {
	r := &ProviderRegistry{
		decoders:  make(map[string]DecoderFactory),
		streamers: make(map[string]StreamerFactory),
	}
	r.RegisterDecoder("mock", func(cfg Config) (asr.Decoder, error) {
		if err := validateProviderSettings(cfg.Provider.Settings, configutil.Schema{
			Optional: []string{"result", "results", "delay"},
		}); err != nil {
			return nil, err
		}
		var mc mock.DecoderConfig
		if err := configutil.DecodeSettings(cfg.Provider.Settings, &mc); err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
		}
		return mock.NewDecoder(mc), nil
	})
	r.RegisterDecoder("whispercpp", func(cfg Config) (asr.Decoder, error) {
		if err := validateProviderSettings(cfg.Provider.Settings, configutil.Schema{
			Optional: []string{"model_path", "model_file", "language", "threads"},
		}); err != nil {
			return nil, err
		}
		var wc whispercpp.Config
		if err := configutil.DecodeSettings(cfg.Provider.Settings, &wc); err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
		}
		if wc.Language == "" {
			wc.Language = cfg.Engine.Language
		}
		return whispercpp.New(wc)
	})
	r.RegisterStreamer("deepgram", func(cfg Config, sessionID string) (asr.Streamer, error) {
		if err := validateProviderSettings(cfg.Provider.Settings, configutil.Schema{
			Required: []string{"api_key"},
			Optional: []string{"model", "language", "sample_rate", "encoding", "interim"},
		}); err != nil {
			return nil, err
		}
		var dc deepgram.Config
		if err := configutil.DecodeSettings(cfg.Provider.Settings, &dc); err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
		}
		if dc.SampleRate == 0 {
			dc.SampleRate = cfg.Engine.SampleRate
		}
		if dc.Language == "" {
			dc.Language = cfg.Engine.Language
		}
		dc.SessionID = sessionID
		return deepgram.New(dc), nil
	})
	r.RegisterStreamer("mock_stream", func(cfg Config, sessionID string) (asr.Streamer, error) {
		if err := validateProviderSettings(cfg.Provider.Settings, configutil.Schema{
			Optional: []string{"interims", "final"},
		}); err != nil {
			return nil, err
		}
		var mc mock.StreamerConfig
		if err := configutil.DecodeSettings(cfg.Provider.Settings, &mc); err != nil {
			return nil, errorsx.Wrap(err, errorsx.ReasonConfigInvalid)
		}
		return mock.NewStreamer(mc), nil
	})
	return r
}

func validateProviderSettings(settings map[string]any, schema configutil.Schema) error {
	if err := configutil.ValidateSettings(settings, schema); err != nil {
		return errorsx.Wrap(fmt.Errorf("provider.settings: %w", err), errorsx.ReasonConfigInvalid)
	}
	return nil
}

func (r *ProviderRegistry) RegisterDecoder(name string, factory DecoderFactory) {
	r.decoders[normalizeName(name)] = factory
}

func (r *ProviderRegistry) RegisterStreamer(name string, factory StreamerFactory) {
	r.streamers[normalizeName(name)] = factory
}

// IsStreaming reports whether the named provider is connection-oriented.
func (r *ProviderRegistry) IsStreaming(name string) bool {
	_, ok := r.streamers[normalizeName(name)]
	return ok
}

func (r *ProviderRegistry) BuildDecoder(name string, cfg Config) (asr.Decoder, error) {
	fn := r.decoders[normalizeName(name)]
	if fn == nil {
		return nil, errorsx.Wrap(fmt.Errorf("decoder provider not registered: %s", name), errorsx.ReasonProviderUnknown)
	}
	return fn(cfg)
}

func (r *ProviderRegistry) BuildStreamer(name string, cfg Config, sessionID string) (asr.Streamer, error) {
	fn := r.streamers[normalizeName(name)]
	if fn == nil {
		return nil, errorsx.Wrap(fmt.Errorf("streamer provider not registered: %s", name), errorsx.ReasonProviderUnknown)
	}
	return fn(cfg, sessionID)
}

func normalizeName(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}
