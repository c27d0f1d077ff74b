package config

import (
	"fmt"
	"runtime"
	"time"

	"github.com/inocsim/server/internal/domain/params"
	"github.com/inocsim/server/internal/engine"
	"github.com/inocsim/server/internal/events"
)

// Preset names accepted by INOC_PRESET and the preset key.
const (
	PresetDefault     = "default"
	PresetFastForward = "fast-forward"
	PresetLowResource = "low-resource"
)

// Preset returns the named preset. An empty name selects Default.
func Preset(name string) (*Config, error) {
	switch name {
	case "", PresetDefault:
		return Default(), nil
	case PresetFastForward:
		return FastForward(), nil
	case PresetLowResource:
		return LowResource(), nil
	}
	return nil, fmt.Errorf("%w: unknown preset %q", ErrInvalid, name)
}

// Default returns the reference setup: five hosts, one day per second.
func Default() *Config {
	numCPU := runtime.NumCPU()

	return &Config{
		Preset: PresetDefault,
		Simulation: Simulation{
			Hosts:         5,
			Seed:          1,
			SecondsPerDay: engine.DefaultSecondsPerDay,
			Speed:         1.0,
			FrameInterval: engine.DefaultFrameInterval,
		},
		Params: params.Default(),
		Server: Server{
			Addr:     ":8080",
			LogLevel: "info",
		},
		Tuning: Tuning{
			BroadcastBuffer:  256, // Handle bursts of day boundaries
			ClientSendBuffer: 64,  // Per WebSocket
			DBMaxOpenConns:   numCPU * 4,
			EventRetention:   events.DefaultRetention,
			SnapshotInterval: 30 * time.Second,
			MaxClients:       200,
		},
	}
}

// FastForward runs the maximum slider speed with deeper buffers, for long batch observation.
func FastForward() *Config {
	numCPU := runtime.NumCPU()

	cfg := Default()
	cfg.Preset = PresetFastForward
	cfg.Simulation.Speed = 5.0
	cfg.Simulation.FrameInterval = 20 * time.Millisecond
	cfg.Tuning = Tuning{
		BroadcastBuffer:  1024,
		ClientSendBuffer: 128,
		DBMaxOpenConns:   numCPU * 8,
		EventRetention:   events.DefaultRetention * 5,
		SnapshotInterval: 10 * time.Second,
		MaxClients:       500,
	}
	return cfg
}

// LowResource returns minimal settings for development.
func LowResource() *Config {
	cfg := Default()
	cfg.Preset = PresetLowResource
	cfg.Simulation.FrameInterval = 200 * time.Millisecond
	cfg.Tuning = Tuning{
		BroadcastBuffer:  16,
		ClientSendBuffer: 8,
		DBMaxOpenConns:   2,
		EventRetention:   1000,
		SnapshotInterval: time.Minute,
		MaxClients:       20,
	}
	return cfg
}
