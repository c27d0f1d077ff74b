// Package params holds the rates, probabilities and sampling distributions that
// govern inoculation transitions. It is pure data plus validation; the engine
// reads a copy at the start of every tick.
package params

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/agnivade/levenshtein"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/inocsim/server/internal/domain/random"
)

// ErrInvalid wraps every configuration error reported by Validate and Set.
var ErrInvalid = errors.New("invalid parameters")

// Uniform is a continuous uniform sampler over [Min, Max).
type Uniform struct {
	Min float64 `json:"min" yaml:"min"`
	Max float64 `json:"max" yaml:"max"`
}

// Sample draws one value using src.
func (u Uniform) Sample(src random.Source) float64 {
	return distuv.Uniform{Min: u.Min, Max: u.Max}.Quantile(src.Float64())
}

// Mean returns the expected value of the distribution.
func (u Uniform) Mean() float64 {
	return distuv.Uniform{Min: u.Min, Max: u.Max}.Mean()
}

func (u Uniform) validate(name string) error {
	switch {
	case !finite(u.Min) || !finite(u.Max):
		return fmt.Errorf("%s: bounds must be finite", name)
	case u.Min < 0:
		return fmt.Errorf("%s: min %.3f must be >= 0", name, u.Min)
	case u.Max <= u.Min:
		return fmt.Errorf("%s: max %.3f must be greater than min %.3f", name, u.Max, u.Min)
	}
	return nil
}

// Rounding converts fractional day counts into whole days.
type Rounding string

const (
	RoundNearest Rounding = "round" // half away from zero
	RoundFloor   Rounding = "floor"
	RoundCeil    Rounding = "ceil"
)

// Days applies the rounding to a non-negative day count.
func (r Rounding) Days(x float64) uint32 {
	var v float64
	switch r {
	case RoundFloor:
		v = math.Floor(x)
	case RoundCeil:
		v = math.Ceil(x)
	default:
		v = math.Round(x)
	}
	if v <= 0 {
		return 0
	}
	return uint32(v)
}

func (r Rounding) valid() bool {
	return r == RoundNearest || r == RoundFloor || r == RoundCeil
}

// Parameters governs every probabilistic decision in the engine.
type Parameters struct {
	LiverStageDays     float64  `json:"liver_stage_days" yaml:"liver_stage_days"`
	ProphylaxisDays    float64  `json:"prophylaxis_days" yaml:"prophylaxis_days"`
	ProbAcute          float64  `json:"prob_acute" yaml:"prob_acute"`
	ProbAcuteToChronic float64  `json:"prob_acute_to_chronic" yaml:"prob_acute_to_chronic"`
	ProbTreatment      float64  `json:"prob_treatment" yaml:"prob_treatment"`
	AcuteDuration      Uniform  `json:"acute_duration" yaml:"acute_duration"`
	ChronicDuration    Uniform  `json:"chronic_duration" yaml:"chronic_duration"`
	TreatmentDelay     Uniform  `json:"treatment_delay" yaml:"treatment_delay"`
	IncidenceRate      float64  `json:"incidence_rate" yaml:"incidence_rate"`
	DayRounding        Rounding `json:"day_rounding" yaml:"day_rounding"`
}

// Default returns the reference parameter set.
func Default() Parameters {
	return Parameters{
		LiverStageDays:     7,
		ProphylaxisDays:    14,
		ProbAcute:          0.7,
		ProbAcuteToChronic: 0.2,
		ProbTreatment:      0.4,
		AcuteDuration:      Uniform{Min: 10, Max: 40},
		ChronicDuration:    Uniform{Min: 100, Max: 400},
		TreatmentDelay:     Uniform{Min: 0, Max: 2},
		IncidenceRate:      0.1,
		DayRounding:        RoundNearest,
	}
}

// Validate reports every out-of-range field. Values are never clamped.
func (p Parameters) Validate() error {
	var errs []error

	for _, f := range []struct {
		name string
		v    float64
	}{
		{"prob_acute", p.ProbAcute},
		{"prob_acute_to_chronic", p.ProbAcuteToChronic},
		{"prob_treatment", p.ProbTreatment},
	} {
		if !finite(f.v) || f.v < 0 || f.v > 1 {
			errs = append(errs, fmt.Errorf("%s: %v outside [0,1]", f.name, f.v))
		}
	}

	for _, f := range []struct {
		name string
		v    float64
	}{
		{"liver_stage_days", p.LiverStageDays},
		{"prophylaxis_days", p.ProphylaxisDays},
		{"incidence_rate", p.IncidenceRate},
	} {
		if !finite(f.v) || f.v < 0 {
			errs = append(errs, fmt.Errorf("%s: %v must be a finite value >= 0", f.name, f.v))
		}
	}

	for _, d := range []struct {
		name string
		u    Uniform
	}{
		{"acute_duration", p.AcuteDuration},
		{"chronic_duration", p.ChronicDuration},
		{"treatment_delay", p.TreatmentDelay},
	} {
		if err := d.u.validate(d.name); err != nil {
			errs = append(errs, err)
		}
	}

	if !p.DayRounding.valid() {
		errs = append(errs, fmt.Errorf("day_rounding: unknown mode %q", p.DayRounding))
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}

// setters maps the externally editable scalar names to their fields.
var setters = map[string]func(p *Parameters, v float64){
	"liver_stage_days":      func(p *Parameters, v float64) { p.LiverStageDays = v },
	"prophylaxis_days":      func(p *Parameters, v float64) { p.ProphylaxisDays = v },
	"prob_acute":            func(p *Parameters, v float64) { p.ProbAcute = v },
	"prob_acute_to_chronic": func(p *Parameters, v float64) { p.ProbAcuteToChronic = v },
	"prob_treatment":        func(p *Parameters, v float64) { p.ProbTreatment = v },
	"incidence_rate":        func(p *Parameters, v float64) { p.IncidenceRate = v },
	"acute_duration.min":    func(p *Parameters, v float64) { p.AcuteDuration.Min = v },
	"acute_duration.max":    func(p *Parameters, v float64) { p.AcuteDuration.Max = v },
	"chronic_duration.min":  func(p *Parameters, v float64) { p.ChronicDuration.Min = v },
	"chronic_duration.max":  func(p *Parameters, v float64) { p.ChronicDuration.Max = v },
	"treatment_delay.min":   func(p *Parameters, v float64) { p.TreatmentDelay.Min = v },
	"treatment_delay.max":   func(p *Parameters, v float64) { p.TreatmentDelay.Max = v },
}

// Names lists every name accepted by Set, sorted.
func Names() []string {
	names := make([]string, 0, len(setters))
	for name := range setters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Set updates one named scalar. The edit is validated on a copy, so p is left
// untouched when it fails.
func (p *Parameters) Set(name string, value float64) error {
	set, ok := setters[name]
	if !ok {
		if hint := suggest(name); hint != "" {
			return fmt.Errorf("%w: unknown parameter %q (did you mean %q?)", ErrInvalid, name, hint)
		}
		return fmt.Errorf("%w: unknown parameter %q", ErrInvalid, name)
	}

	next := *p
	set(&next, value)
	if err := next.Validate(); err != nil {
		return err
	}
	*p = next
	return nil
}

// suggest returns the closest known name, or "" when nothing is close enough.
func suggest(name string) string {
	best, bestDist := "", math.MaxInt
	for _, candidate := range Names() {
		if d := levenshtein.ComputeDistance(name, candidate); d < bestDist {
			best, bestDist = candidate, d
		}
	}
	if bestDist > len(best)/2 {
		return ""
	}
	return best
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
