package whispercpp

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/scribekit/scribe/pkg/errorsx"
)

func touchModel(t *testing.T, dir string, parts ...string) string {
	t.Helper()
	path := filepath.Join(append([]string{dir}, parts...)...)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte("ggml"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestResolveModelPathExplicit(t *testing.T) {
	dir := t.TempDir()
	model := touchModel(t, dir, "custom.bin")

	got, err := ResolveModelPath(Config{ModelPath: model}, func(string) string { return "" })
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != model {
		t.Fatalf("expected %s, got %s", model, got)
	}

	_, err = ResolveModelPath(Config{ModelPath: filepath.Join(dir, "missing.bin")}, func(string) string { return "" })
	if !errorsx.HasReason(err, errorsx.ReasonModelNotFound) {
		t.Fatalf("expected model_not_found, got %v", err)
	}
}

func TestResolveModelPathEnvOverride(t *testing.T) {
	dir := t.TempDir()
	model := touchModel(t, dir, "ggml-base.bin")
	env := func(key string) string {
		if key == "SCRIBE_MODEL" {
			return model
		}
		return ""
	}

	got, err := ResolveModelPath(Config{}, env)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != model {
		t.Fatalf("expected %s, got %s", model, got)
	}
}

func TestResolveModelPathXDGDataHome(t *testing.T) {
	dir := t.TempDir()
	model := touchModel(t, dir, "scribe", "models", DefaultModelFile)
	env := func(key string) string {
		if key == "XDG_DATA_HOME" {
			return dir
		}
		return ""
	}

	got, err := ResolveModelPath(Config{}, env)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != model {
		t.Fatalf("expected %s, got %s", model, got)
	}
}

func TestResolveModelPathHomeFallback(t *testing.T) {
	dir := t.TempDir()
	model := touchModel(t, dir, ".local", "share", "scribe", "models", "ggml-small.bin")
	env := func(key string) string {
		if key == "HOME" {
			return dir
		}
		return ""
	}

	got, err := ResolveModelPath(Config{ModelFile: "ggml-small.bin"}, env)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != model {
		t.Fatalf("expected %s, got %s", model, got)
	}
}

func TestResolveModelPathNotFound(t *testing.T) {
	dir := t.TempDir()
	env := func(key string) string {
		if key == "XDG_DATA_HOME" {
			return dir
		}
		return ""
	}
	_, err := ResolveModelPath(Config{}, env)
	if !errorsx.HasReason(err, errorsx.ReasonModelNotFound) {
		t.Fatalf("expected model_not_found, got %v", err)
	}
}

func TestClampThreads(t *testing.T) {
	cases := []struct {
		configured, cpus, want int
	}{
		{0, 2, 4},
		{0, 8, 8},
		{0, 32, 16},
		{6, 32, 6},
	}
	for _, tc := range cases {
		if got := clampThreads(tc.configured, tc.cpus); got != tc.want {
			t.Fatalf("clampThreads(%d, %d) = %d, want %d", tc.configured, tc.cpus, got, tc.want)
		}
	}
}
