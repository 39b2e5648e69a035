// Package whispercpp runs speech recognition locally through the
// whisper.cpp Go bindings. The native backend is compiled in with the
// whisper_cpp build tag; without it New reports asr.ErrNotBuilt.
package whispercpp

import (
	"os"
	"path/filepath"

	"github.com/scribekit/scribe/pkg/errorsx"
)

// DefaultModelFile is the model looked up when no explicit path is given.
const DefaultModelFile = "ggml-tiny.bin"

// Config configures the local decoder. All fields are optional; an empty
// config resolves the default model from the standard search path.
type Config struct {
	// ModelPath points at a ggml model file. Skips the search path.
	ModelPath string `mapstructure:"model_path"`
	// ModelFile overrides the file name looked up along the search path.
	ModelFile string `mapstructure:"model_file"`
	// Language hint; empty lets the model decide.
	Language string `mapstructure:"language"`
	// Threads for inference. Zero picks a clamp of the CPU count.
	Threads int `mapstructure:"threads"`
}

// Env looks up environment variables during model resolution. Injectable
// so tests can pin XDG paths without touching the process environment.
type Env func(key string) string

// ResolveModelPath finds a model file: explicit path first, then the
// SCRIBE_MODEL variable, then XDG and system data dirs, finally a
// models/ directory relative to the working directory for development
// checkouts.
func ResolveModelPath(cfg Config, env Env) (string, error) {
	if env == nil {
		env = os.Getenv
	}
	file := cfg.ModelFile
	if file == "" {
		file = DefaultModelFile
	}

	if cfg.ModelPath != "" {
		if fileExists(cfg.ModelPath) {
			return cfg.ModelPath, nil
		}
		return "", errorsx.New(errorsx.ReasonModelNotFound)
	}
	if p := env("SCRIBE_MODEL"); p != "" && fileExists(p) {
		return p, nil
	}

	var bases []string
	if xdg := env("XDG_DATA_HOME"); xdg != "" {
		bases = append(bases, xdg)
	} else if home := env("HOME"); home != "" {
		bases = append(bases, filepath.Join(home, ".local", "share"))
	}
	bases = append(bases, "/usr/local/share", "/usr/share")
	for _, base := range bases {
		p := filepath.Join(base, "scribe", "models", file)
		if fileExists(p) {
			return p, nil
		}
	}

	if p := filepath.Join("models", file); fileExists(p) {
		return p, nil
	}
	return "", errorsx.New(errorsx.ReasonModelNotFound)
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}

func clampThreads(n, cpus int) int {
	if n > 0 {
		return n
	}
	t := cpus
	if t < 4 {
		t = 4
	}
	if t > 16 {
		t = 16
	}
	return t
}
