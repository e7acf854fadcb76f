// Package config loads the TOML run configuration that describes the
// reference samples, output location and experiment metadata for a
// simulated sequencing run.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/BurntSushi/toml"
)

// Sample describes one entry under [[sample]] in the config file.
type Sample struct {
	InputGenome   string   `toml:"input_genome"`
	Weight        *float64 `toml:"weight"`
	WeightsFile   string   `toml:"weights_file"`
	Barcode       string   `toml:"barcode"`
	Amplicon      bool     `toml:"amplicon"`
	ReadLenShape  float64  `toml:"read_len_shape"`
	ReadLenScale  float64  `toml:"read_len_scale"`
}

// IsAmplicon reports whether reads drawn from this sample always start at
// offset zero (spec.md §3).
func (s Sample) IsAmplicon() bool { return s.Amplicon }

// Parameters holds the run-wide settings under [parameters].
type Parameters struct {
	ExperimentName           string  `toml:"experiment_name"`
	SampleName               string  `toml:"sample_name"`
	FlowcellName             string  `toml:"flowcell_name"`
	Position                 string  `toml:"position"`
	OutputPath               string  `toml:"output_path"`
	ExperimentDurationSecs   int     `toml:"experiment_duration_seconds"`
	GlobalMeanReadLength     float64 `toml:"global_mean_read_length"`
	Channels                 int     `toml:"channels"`
}

// Config is the root document.
type Config struct {
	Sample     []Sample   `toml:"sample"`
	Parameters Parameters `toml:"parameters"`
}

// DefaultChannels matches the teacher's "if unset, fall back to a sane
// device default" convention (teacher's ServerState struct literal).
const DefaultChannels = 512

// Load reads and validates a TOML config file. Any error here is
// startup-fatal per spec.md §7; Load itself just reports the problem, the
// caller decides how to die.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config %s: %w", path, err)
	}

	var cfg Config
	if _, err := toml.Decode(string(data), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	if cfg.Parameters.Channels == 0 {
		cfg.Parameters.Channels = DefaultChannels
	}

	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.Sample) == 0 {
		return fmt.Errorf("no [[sample]] entries")
	}
	if c.Parameters.Channels < 0 {
		return fmt.Errorf("channels must be non-negative, got %d", c.Parameters.Channels)
	}
	for i, s := range c.Sample {
		if s.InputGenome == "" {
			return fmt.Errorf("sample[%d]: input_genome is required", i)
		}
		if s.Weight == nil && s.WeightsFile == "" {
			return fmt.Errorf("sample[%d]: one of weight or weights_file is required", i)
		}
	}
	return nil
}

// ReadsDir is the directory persisted archives for this run are written
// under, matching spec.md §6's
// {out}/{experiment}/{sample}/reads/ layout.
func (c *Config) ReadsDir() string {
	return filepath.Join(c.Parameters.OutputPath, c.Parameters.ExperimentName, c.Parameters.SampleName, "reads")
}
