// Package config loads server configuration: a preset, then an optional YAML
// file, then INOC_* environment overrides. The result is validated, never clamped.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/inocsim/server/internal/domain/params"
	"github.com/inocsim/server/internal/engine"
)

// ErrInvalid wraps every configuration error reported by Validate.
var ErrInvalid = errors.New("invalid configuration")

// Config is the full server configuration.
type Config struct {
	Preset     string            `yaml:"preset" json:"preset"`
	Simulation Simulation        `yaml:"simulation" json:"simulation"`
	Params     params.Parameters `yaml:"params" json:"params"`
	Server     Server            `yaml:"server" json:"server"`
	Tuning     Tuning            `yaml:"tuning" json:"tuning"`
}

// Simulation configures the engine and the frame loop.
type Simulation struct {
	Hosts         int           `yaml:"hosts" json:"hosts"`
	Seed          int64         `yaml:"seed" json:"seed"`
	SecondsPerDay float64       `yaml:"seconds_per_day" json:"seconds_per_day"`
	Speed         float64       `yaml:"speed" json:"speed"`
	FrameInterval time.Duration `yaml:"frame_interval" json:"frame_interval"`
}

// Server configures the HTTP listener, the ledger and logging.
type Server struct {
	Addr     string `yaml:"addr" json:"addr"`
	DBPath   string `yaml:"db_path" json:"db_path"` // empty disables the SQLite ledger
	LogLevel string `yaml:"log_level" json:"log_level"`
}

// Tuning holds channel buffers, pool sizes and retention limits.
type Tuning struct {
	BroadcastBuffer  int           `yaml:"broadcast_buffer" json:"broadcast_buffer"`
	ClientSendBuffer int           `yaml:"client_send_buffer" json:"client_send_buffer"`
	DBMaxOpenConns   int           `yaml:"db_max_open_conns" json:"db_max_open_conns"`
	EventRetention   int           `yaml:"event_retention" json:"event_retention"`
	SnapshotInterval time.Duration `yaml:"snapshot_interval" json:"snapshot_interval"`
	MaxClients       int           `yaml:"max_clients" json:"max_clients"`
}

// Load builds the configuration. path may be empty.
func Load(path string) (*Config, error) {
	cfg, err := Preset(os.Getenv(EnvPrefix + "PRESET"))
	if err != nil {
		return nil, err
	}

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate reports every invalid field, including the simulation parameters.
func (c *Config) Validate() error {
	var errs []error

	if err := c.Params.Validate(); err != nil {
		errs = append(errs, err)
	}
	if c.Simulation.Hosts < 0 {
		errs = append(errs, fmt.Errorf("simulation.hosts: %d must be >= 0", c.Simulation.Hosts))
	}
	if !(c.Simulation.SecondsPerDay > 0) {
		errs = append(errs, fmt.Errorf("simulation.seconds_per_day: %v must be positive", c.Simulation.SecondsPerDay))
	}
	if !(c.Simulation.Speed > 0) {
		errs = append(errs, fmt.Errorf("simulation.speed: %v must be positive", c.Simulation.Speed))
	}
	if c.Simulation.FrameInterval <= 0 {
		errs = append(errs, fmt.Errorf("simulation.frame_interval: %s must be positive", c.Simulation.FrameInterval))
	}
	if c.Server.Addr == "" {
		errs = append(errs, errors.New("server.addr: must not be empty"))
	}
	if c.Tuning.BroadcastBuffer <= 0 || c.Tuning.ClientSendBuffer <= 0 {
		errs = append(errs, errors.New("tuning: channel buffers must be positive"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// EngineOptions converts the simulation section into engine options.
func (c *Config) EngineOptions() engine.Options {
	return engine.Options{
		Params:        c.Params,
		SecondsPerDay: c.Simulation.SecondsPerDay,
		Speed:         c.Simulation.Speed,
		Seed:          c.Simulation.Seed,
	}
}
