package sched

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	yaml "github.com/goccy/go-yaml"
)

// Config mirrors config.yml.
type Config struct {
	ProbeMS     int     `yaml:"probe_ms"`     // 10 (by default), gap between the two estimation samples
	SettleMS    int     `yaml:"settle_ms"`    // 1 (by default), pause between aiming and firing
	RelaxMS     int     `yaml:"relax_ms"`     // 10 (by default), tracking poll interval
	MinSpeed    float64 `yaml:"min_speed"`    // 1 unit/s (by default), slowest admissible approach
	EventBuffer int     `yaml:"event_buffer"` // 256 (by default)
	CSVPath     string  `yaml:"csv_path"`     // empty disables the CSV trace
	LogLevel    string  `yaml:"log_level"`
	LogFormat   string  `yaml:"log_format"`

	Sim SimConfig `yaml:"sim"`
}

// SimConfig configures the built-in simulated world.
type SimConfig struct {
	Width      int     `yaml:"width"`       // 100
	Height     int     `yaml:"height"`      // 400
	MinSpeed   float64 `yaml:"min_speed"`   // 200 units/s
	MaxSpeed   float64 `yaml:"max_speed"`   // 800 units/s
	Rate       float64 `yaml:"rate"`        // 5 arrivals/s, 0 unlimited
	Burst      int     `yaml:"burst"`       // 3
	Tolerance  int     `yaml:"tolerance"`   // 0, exact column hit
	Seed       uint64  `yaml:"seed"`        // 0 picks a random seed
	MaxTargets int     `yaml:"max_targets"` // 0 means unbounded
}

// DefaultConfig is what an empty or missing config file yields.
func DefaultConfig() Config {
	return Config{
		ProbeMS:     10,
		SettleMS:    1,
		RelaxMS:     10,
		MinSpeed:    1,
		EventBuffer: 256,
		LogLevel:    "info",
		LogFormat:   "console",
		Sim: SimConfig{
			Width:    100,
			Height:   400,
			MinSpeed: 200,
			MaxSpeed: 800,
			Rate:     5,
			Burst:    3,
		},
	}
}

// Load reads YAML and overrides defaults; empty path or a missing file
// means defaults only. Malformed YAML is an error.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return DefaultConfig(), fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.clamp()
	return cfg, nil
}

// clamp replaces nonsensical values with defaults.
func (c *Config) clamp() {
	def := DefaultConfig()
	if c.ProbeMS <= 0 {
		c.ProbeMS = def.ProbeMS
	}
	if c.SettleMS < 0 {
		c.SettleMS = def.SettleMS
	}
	if c.RelaxMS <= 0 {
		c.RelaxMS = def.RelaxMS
	}
	if c.MinSpeed < 0 {
		c.MinSpeed = def.MinSpeed
	}
	if c.EventBuffer <= 0 {
		c.EventBuffer = def.EventBuffer
	}

	s := &c.Sim
	if s.Width <= 0 {
		s.Width = def.Sim.Width
	}
	if s.Height <= 0 {
		s.Height = def.Sim.Height
	}
	if s.MinSpeed <= 0 {
		s.MinSpeed = def.Sim.MinSpeed
	}
	if s.MaxSpeed < s.MinSpeed {
		s.MaxSpeed = s.MinSpeed
	}
	if s.Rate < 0 {
		s.Rate = 0 // unlimited
	}
	if s.Burst <= 0 {
		s.Burst = def.Sim.Burst
	}
	if s.Tolerance < 0 {
		s.Tolerance = 0
	}
	if s.MaxTargets < 0 {
		s.MaxTargets = 0
	}
}

func (c Config) ProbeInterval() time.Duration { return time.Duration(c.ProbeMS) * time.Millisecond }
func (c Config) SettleDelay() time.Duration   { return time.Duration(c.SettleMS) * time.Millisecond }
func (c Config) RelaxInterval() time.Duration { return time.Duration(c.RelaxMS) * time.Millisecond }
