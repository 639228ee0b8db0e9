// Package config loads the host-side runtime configuration: radio address,
// transport timeouts, and worker defaults. It is deliberately separate from
// the CLI argument parsing, which is an external collaborator's concern.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds everything the runtime needs that isn't supplied
// programmatically through the public radio/waveform API.
type Config struct {
	Radio   RadioConfig   `yaml:"radio"`
	Timeouts TimeoutConfig `yaml:"timeouts"`
	Worker  WorkerConfig  `yaml:"worker"`
}

// RadioConfig addresses the two network surfaces described in spec §6.
type RadioConfig struct {
	Host        string `yaml:"host"`
	ControlPort int    `yaml:"control_port"`
	DataPort    int    `yaml:"data_port"`
}

// TimeoutConfig covers the transport timeout/retry policy spec §4.5 delegates
// to "the transport library" rather than specifying itself.
type TimeoutConfig struct {
	Connect    time.Duration `yaml:"connect"`
	Retry      time.Duration `yaml:"retry"`
	MaxRetries int           `yaml:"max_retries"`
}

// WorkerConfig tunes the worker queue's cooperative-shutdown poll interval
// (spec §4.3's "~1 s timeout") and the size of thread pool D.
type WorkerConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`

	// CallbackWorkers bounds how many status/state/command/response
	// callbacks thread pool D runs concurrently. Zero (the default) means
	// "size it to runtime.NumCPU()" (spec §5's "(NEW)" thread pool D note).
	CallbackWorkers int `yaml:"callback_workers"`
}

// Default returns the configuration the radio package falls back to when no
// file is supplied: default radio ports from spec §6, a 5s connect timeout
// with three retries a second apart, and a 1s worker poll interval.
func Default() Config {
	return Config{
		Radio: RadioConfig{
			ControlPort: 4992,
			DataPort:    4991,
		},
		Timeouts: TimeoutConfig{
			Connect:    5 * time.Second,
			Retry:      time.Second,
			MaxRetries: 3,
		},
		Worker: WorkerConfig{
			PollInterval: time.Second,
		},
	}
}

// searchLocations is tried in order when Load is called with no explicit
// path; the first file found wins.
var searchLocations = []string{
	"wfcore.yaml",
	"config/wfcore.yaml",
	"/etc/wfcore/wfcore.yaml",
}

// Load reads a YAML config file, starting from Default() so that any field
// the file omits keeps its default value. An empty path searches
// searchLocations; if none exist, Load returns Default() with no error.
func Load(path string) (Config, error) {
	cfg := Default()

	if path == "" {
		for _, candidate := range searchLocations {
			if _, err := os.Stat(candidate); err == nil {
				path = candidate
				break
			}
		}
		if path == "" {
			return cfg, nil
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: reading %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parsing %s: %w", path, err)
	}

	return cfg, nil
}
