package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeTemp(t *testing.T, name, contents string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("writing temp config: %v", err)
	}
	return path
}

func TestLoadValidConfig(t *testing.T) {
	path := writeTemp(t, "run.toml", `
[[sample]]
input_genome = "ref.squiggle"
weight = 1.0

[parameters]
experiment_name = "exp1"
sample_name = "sample1"
flowcell_name = "FAKE00001"
position = "X1"
output_path = "/tmp/out"
experiment_duration_seconds = 3600
channels = 128
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.Sample) != 1 {
		t.Fatalf("len(Sample) = %d, want 1", len(cfg.Sample))
	}
	if cfg.Parameters.Channels != 128 {
		t.Errorf("Channels = %d, want 128", cfg.Parameters.Channels)
	}
	want := filepath.Join("/tmp/out", "exp1", "sample1", "reads")
	if got := cfg.ReadsDir(); got != want {
		t.Errorf("ReadsDir() = %q, want %q", got, want)
	}
}

func TestLoadDefaultsChannels(t *testing.T) {
	path := writeTemp(t, "run.toml", `
[[sample]]
input_genome = "ref.squiggle"
weight = 1.0

[parameters]
experiment_name = "exp1"
sample_name = "sample1"
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Parameters.Channels != DefaultChannels {
		t.Errorf("Channels = %d, want default %d", cfg.Parameters.Channels, DefaultChannels)
	}
}

func TestLoadRejectsNoSamples(t *testing.T) {
	path := writeTemp(t, "run.toml", `
[parameters]
experiment_name = "exp1"
sample_name = "sample1"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for config with no samples")
	}
}

func TestLoadRejectsMissingWeight(t *testing.T) {
	path := writeTemp(t, "run.toml", `
[[sample]]
input_genome = "ref.squiggle"

[parameters]
experiment_name = "exp1"
sample_name = "sample1"
`)
	if _, err := Load(path); err == nil {
		t.Fatal("expected error for sample missing weight/weights_file")
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.toml")); err == nil {
		t.Fatal("expected error for missing config file")
	}
}
