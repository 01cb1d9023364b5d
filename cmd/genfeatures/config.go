package main

import (
	"fmt"
	"os"
	"runtime"

	"gopkg.in/yaml.v3"
)

// Config drives a feature-generation run. Flags override the file.
type Config struct {
	// ExpDir holds the experiment tarballs (*.tar.gz).
	ExpDir string `yaml:"exp_dir"`

	// OutDir receives the per-flow feature CSVs and the summary.
	OutDir string `yaml:"out_dir"`

	// Workers bounds the experiments parsed concurrently.
	Workers int `yaml:"workers"`

	// SkipSmoothed drops the EWMA and windowed columns.
	SkipSmoothed bool `yaml:"skip_smoothed"`

	// MaxWin caps the windowed feature multiples. Zero keeps the
	// full set.
	MaxWin int `yaml:"max_win"`

	// Demo replaces the experiment directory with a synthetic
	// two-flow contention scenario.
	Demo     bool  `yaml:"demo"`
	DemoSeed int64 `yaml:"demo_seed"`
}

func DefaultConfig() Config {
	return Config{
		Workers:  runtime.NumCPU(),
		DemoSeed: 1,
	}
}

func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.OutDir == "" {
		return fmt.Errorf("out_dir is required")
	}
	if !c.Demo && c.ExpDir == "" {
		return fmt.Errorf("exp_dir is required unless running the demo")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must not be negative")
	}
	if c.MaxWin < 0 {
		return fmt.Errorf("max_win must not be negative")
	}
	return nil
}
