package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/inocsim/server/internal/domain/params"
)

// EnvPrefix is prepended to every environment override.
const EnvPrefix = "INOC_"

// ApplyEnv overrides fields from INOC_* variables. Unset variables are left
// alone; a variable that does not parse is an error.
func (c *Config) ApplyEnv() error {
	if val, ok := lookup("HOSTS"); ok {
		n, err := strconv.Atoi(val)
		if err != nil {
			return envError("HOSTS", err)
		}
		c.Simulation.Hosts = n
	}
	if val, ok := lookup("SEED"); ok {
		n, err := strconv.ParseInt(val, 10, 64)
		if err != nil {
			return envError("SEED", err)
		}
		c.Simulation.Seed = n
	}
	if val, ok := lookup("FRAME_INTERVAL"); ok {
		d, err := time.ParseDuration(val)
		if err != nil {
			return envError("FRAME_INTERVAL", err)
		}
		c.Simulation.FrameInterval = d
	}

	floats := []struct {
		key string
		dst *float64
	}{
		{"SECONDS_PER_DAY", &c.Simulation.SecondsPerDay},
		{"SPEED", &c.Simulation.Speed},
		{"LIVER_STAGE_DAYS", &c.Params.LiverStageDays},
		{"PROPHYLAXIS_DAYS", &c.Params.ProphylaxisDays},
		{"PROB_ACUTE", &c.Params.ProbAcute},
		{"PROB_ACUTE_TO_CHRONIC", &c.Params.ProbAcuteToChronic},
		{"PROB_TREATMENT", &c.Params.ProbTreatment},
		{"INCIDENCE_RATE", &c.Params.IncidenceRate},
	}
	for _, f := range floats {
		val, ok := lookup(f.key)
		if !ok {
			continue
		}
		v, err := strconv.ParseFloat(val, 64)
		if err != nil {
			return envError(f.key, err)
		}
		*f.dst = v
	}

	if val, ok := lookup("DAY_ROUNDING"); ok {
		c.Params.DayRounding = params.Rounding(val)
	}
	if val, ok := lookup("ADDR"); ok {
		c.Server.Addr = val
	}
	if val, ok := lookup("DB_PATH"); ok {
		c.Server.DBPath = val
	}
	if val, ok := lookup("LOG_LEVEL"); ok {
		c.Server.LogLevel = val
	}
	return nil
}

func lookup(key string) (string, bool) {
	val, ok := os.LookupEnv(EnvPrefix + key)
	if !ok || val == "" {
		return "", false
	}
	return val, true
}

func envError(key string, err error) error {
	return fmt.Errorf("%w: %s%s: %w", ErrInvalid, EnvPrefix, key, err)
}
