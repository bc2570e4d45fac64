// Package config holds the benchmark settings so other programs can drive the
// harness without pulling in the CLI.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/i5heu/HPRingBuffer/internal/testbench"
)

const (
	ModeCount = "count"
	ModeTimed = "timed"
)

// Concurrency is an alias for testbench.Config.
type Concurrency = testbench.Config

// Config describes one benchmark session.
type Config struct {
	Mode       string        `yaml:"mode"`
	Slots      uint64        `yaml:"slots"`
	Count      int64         `yaml:"count"`
	Duration   time.Duration `yaml:"duration"`
	Iterations int           `yaml:"iterations"`
	// CPU pins GOMAXPROCS to one value; 0 walks the common CPU counts.
	CPU             int           `yaml:"cpu"`
	Concurrency     []Concurrency `yaml:"concurrency"`
	Implementations []string      `yaml:"implementations"`
	JSONFile        string        `yaml:"jsonfile"`
}

// Default returns the settings of the plain one-producer/one-consumer run:
// 1024 slots, ten million messages.
func Default() Config {
	return Config{
		Mode:       ModeCount,
		Slots:      1024,
		Count:      10_000_000,
		Duration:   5 * time.Second,
		Iterations: 5,
		Concurrency: []Concurrency{
			{NumProducers: 1, NumConsumers: 1},
			{NumProducers: 2, NumConsumers: 2},
			{NumProducers: 10, NumConsumers: 10},
		},
		JSONFile: "test-results.json",
	}
}

// Load reads a YAML file over the defaults. Keys missing from the file keep
// their default value.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("config %q: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("config %q: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("config %q: %w", path, err)
	}
	return cfg, nil
}

var ErrInvalid = errors.New("invalid config")

func (c Config) Validate() error {
	switch c.Mode {
	case ModeCount, ModeTimed:
	default:
		return fmt.Errorf("%w: unknown mode %q", ErrInvalid, c.Mode)
	}
	if c.Slots < 2 || c.Slots&(c.Slots-1) != 0 {
		return fmt.Errorf("%w: slots must be a power of two >= 2, got %d", ErrInvalid, c.Slots)
	}
	if c.Iterations < 1 {
		return fmt.Errorf("%w: iterations must be positive, got %d", ErrInvalid, c.Iterations)
	}
	if c.Mode == ModeCount && c.Count < 1 {
		return fmt.Errorf("%w: count must be positive, got %d", ErrInvalid, c.Count)
	}
	if c.Mode == ModeTimed {
		if c.Duration <= 0 {
			return fmt.Errorf("%w: duration must be positive, got %s", ErrInvalid, c.Duration)
		}
		if len(c.Concurrency) == 0 {
			return fmt.Errorf("%w: timed mode needs at least one concurrency setting", ErrInvalid)
		}
		for _, cc := range c.Concurrency {
			if cc.NumProducers < 1 || cc.NumConsumers < 1 {
				return fmt.Errorf("%w: concurrency %+v needs at least one producer and one consumer", ErrInvalid, cc)
			}
		}
	}
	return nil
}
