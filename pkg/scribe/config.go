// Package scribe assembles the dictation service from configuration: a
// recognition provider, a transport, observers, and the lifecycle runner
// around them. Library consumers who want just the engine use the
// transcriber package directly.
package scribe

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/scribekit/scribe/pkg/configutil"
	"github.com/scribekit/scribe/pkg/errorsx"
	"github.com/scribekit/scribe/pkg/transcriber"
)

type Config struct {
	Engine        EngineConfig        `mapstructure:"engine"`
	Provider      ProviderConfig      `mapstructure:"provider"`
	Transport     TransportConfig     `mapstructure:"transport"`
	Environment   string              `mapstructure:"environment"`
	LogLevel      string              `mapstructure:"log_level"`
	LogFormat     string              `mapstructure:"log_format"`
	Observability ObservabilityConfig `mapstructure:"observability"`
	Privacy       PrivacyConfig       `mapstructure:"privacy"`
}

// EngineConfig mirrors transcriber.Options in config-file form. Durations
// arrive as millisecond integers.
type EngineConfig struct {
	SampleRate      int    `mapstructure:"sample_rate"`
	FirstIntervalMS int    `mapstructure:"first_interval_ms"`
	IntervalMS      int    `mapstructure:"interval_ms"`
	CommitAfterMS   int    `mapstructure:"commit_after_ms"`
	MinDecodeMS     int    `mapstructure:"min_decode_ms"`
	Strategy        string `mapstructure:"strategy"`
	WindowMS        int    `mapstructure:"window_ms"`
	OverlapMS       int    `mapstructure:"overlap_ms"`
	MaxContextWords int    `mapstructure:"max_context_words"`
	Language        string `mapstructure:"language"`
}

type ProviderConfig struct {
	Name     string         `mapstructure:"name"`
	Settings map[string]any `mapstructure:"settings"`
}

type TransportConfig struct {
	Provider string         `mapstructure:"provider"`
	Settings map[string]any `mapstructure:"settings"`
}

type ObservabilityConfig struct {
	ArtifactsDir  string `mapstructure:"artifacts_dir"`
	RetentionDays int    `mapstructure:"retention_days"`
}

type PrivacyConfig struct {
	RedactPII bool `mapstructure:"redact_pii"`
}

func LoadConfig(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetDefault("engine.sample_rate", 16000)
	v.SetDefault("engine.first_interval_ms", 300)
	v.SetDefault("engine.interval_ms", 400)
	v.SetDefault("engine.commit_after_ms", 25000)
	v.SetDefault("engine.min_decode_ms", 250)
	v.SetDefault("engine.strategy", transcriber.StrategyRebuffer)
	v.SetDefault("engine.window_ms", 12000)
	v.SetDefault("engine.overlap_ms", 1000)
	v.SetDefault("engine.max_context_words", 32)
	v.SetDefault("engine.language", "")
	v.SetDefault("provider.name", "mock")
	v.SetDefault("transport.provider", "ws")
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")
	v.SetDefault("log_format", "text")
	v.SetDefault("observability.artifacts_dir", "")
	v.SetDefault("observability.retention_days", 0)
	v.SetDefault("privacy.redact_pii", true)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal: %w", err)
	}

	expandEnvStrings(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.Provider.Name) == "" {
		return errorsx.Wrap(fmt.Errorf("provider.name is required"), errorsx.ReasonConfigInvalid)
	}
	if strings.TrimSpace(c.Transport.Provider) == "" {
		return errorsx.Wrap(fmt.Errorf("transport.provider is required"), errorsx.ReasonConfigInvalid)
	}
	switch strings.TrimSpace(c.Engine.Strategy) {
	case "", transcriber.StrategyRebuffer, transcriber.StrategyWindow:
	default:
		return errorsx.Wrap(fmt.Errorf("engine.strategy must be %q or %q", transcriber.StrategyRebuffer, transcriber.StrategyWindow), errorsx.ReasonConfigInvalid)
	}
	return nil
}

// EngineOptions converts the config-file engine block into transcriber
// options; zero fields keep the transcriber defaults.
func (c EngineConfig) EngineOptions() transcriber.Options {
	ms := func(v int) time.Duration {
		return configutil.DurationMS(&v, 0)
	}
	return transcriber.Options{
		SampleRate:      c.SampleRate,
		FirstInterval:   ms(c.FirstIntervalMS),
		Interval:        ms(c.IntervalMS),
		CommitAfter:     ms(c.CommitAfterMS),
		MinDecode:       ms(c.MinDecodeMS),
		Strategy:        strings.TrimSpace(c.Strategy),
		Window:          ms(c.WindowMS),
		Overlap:         ms(c.OverlapMS),
		MaxContextWords: c.MaxContextWords,
		Language:        strings.TrimSpace(c.Language),
	}
}

func expandEnvStrings(cfg *Config) {
	expandValue(reflect.ValueOf(cfg))
	cfg.Provider.Settings = expandSettings(cfg.Provider.Settings)
	cfg.Transport.Settings = expandSettings(cfg.Transport.Settings)
}

func expandSettings(settings map[string]any) map[string]any {
	if settings == nil {
		return nil
	}
	for k, v := range settings {
		settings[k] = expandAny(v)
	}
	return settings
}

func expandAny(v any) any {
	switch val := v.(type) {
	case string:
		return os.ExpandEnv(val)
	case []any:
		for i := range val {
			val[i] = expandAny(val[i])
		}
		return val
	case map[string]any:
		for k, v := range val {
			val[k] = expandAny(v)
		}
		return val
	case map[any]any:
		out := make(map[string]any, len(val))
		for k, v := range val {
			ks, ok := k.(string)
			if !ok {
				continue
			}
			out[ks] = expandAny(v)
		}
		return out
	default:
		return v
	}
}

func expandValue(v reflect.Value) {
	if !v.IsValid() {
		return
	}
	if v.Kind() == reflect.Pointer {
		if v.IsNil() {
			return
		}
		expandValue(v.Elem())
		return
	}
	switch v.Kind() {
	case reflect.Struct:
		for i := 0; i < v.NumField(); i++ {
			expandValue(v.Field(i))
		}
	case reflect.String:
		if v.CanSet() {
			v.SetString(os.ExpandEnv(v.String()))
		}
	case reflect.Slice, reflect.Array:
		for i := 0; i < v.Len(); i++ {
			expandValue(v.Index(i))
		}
	case reflect.Map:
		if v.Type().Key().Kind() == reflect.String && v.Type().Elem().Kind() == reflect.String {
			for _, key := range v.MapKeys() {
				val := v.MapIndex(key)
				expanded := os.ExpandEnv(val.String())
				v.SetMapIndex(key, reflect.ValueOf(expanded))
			}
		}
	}
}
