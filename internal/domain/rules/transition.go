// Package rules contains the pure decision logic for inoculation progression and treatment.
// This package is PURE and must NOT import any infrastructure packages.
package rules

import (
	"github.com/inocsim/server/internal/domain/host"
	"github.com/inocsim/server/internal/domain/params"
	"github.com/inocsim/server/internal/domain/random"
)

// ClearReason explains why an inoculation was removed.
type ClearReason string

const (
	ReasonSuppressed  ClearReason = "SUPPRESSED"  // arrived at threshold while host on prophylaxis
	ReasonSpontaneous ClearReason = "SPONTANEOUS" // acute infection cleared on its own
	ReasonResolved    ClearReason = "RESOLVED"    // chronic infection ran its course
	ReasonTreated     ClearReason = "TREATED"     // forced clearing by treatment
)

// Outcome is the decision for one inoculation whose delay has elapsed.
type Outcome struct {
	Clear  bool
	Reason ClearReason

	Next  host.State
	Delay float64

	// RequestTreatment is set when an acute onset triggers care seeking.
	RequestTreatment bool
	TreatmentDay     uint32
}

// Resolve decides what happens to inoculation i on day. onProphylaxis is the
// owning host's current flag. Draws are taken from src in a fixed order so a
// seeded source reproduces the same run.
func Resolve(i *host.Inoculation, onProphylaxis bool, day uint32, p params.Parameters, src random.Source) Outcome {
	switch i.State {
	case host.StateExposed:
		return resolveExposed(onProphylaxis, day, p, src)
	case host.StateAcute:
		return resolveAcute(p, src)
	default:
		return Outcome{Clear: true, Reason: ReasonResolved}
	}
}

func resolveExposed(onProphylaxis bool, day uint32, p params.Parameters, src random.Source) Outcome {
	if onProphylaxis {
		return Outcome{Clear: true, Reason: ReasonSuppressed}
	}

	if !random.Bernoulli(src, p.ProbAcute) {
		return Outcome{Next: host.StateChronic, Delay: p.ChronicDuration.Sample(src)}
	}

	out := Outcome{Next: host.StateAcute, Delay: p.AcuteDuration.Sample(src)}
	if random.Bernoulli(src, p.ProbTreatment) {
		out.RequestTreatment = true
		out.TreatmentDay = day + p.DayRounding.Days(p.TreatmentDelay.Sample(src))
	}
	return out
}

func resolveAcute(p params.Parameters, src random.Source) Outcome {
	if random.Bernoulli(src, p.ProbAcuteToChronic) {
		return Outcome{Next: host.StateChronic, Delay: p.ChronicDuration.Sample(src)}
	}
	return Outcome{Clear: true, Reason: ReasonSpontaneous}
}

// ProphylaxisEnd returns the day a prophylaxis window started on day will end.
func ProphylaxisEnd(day uint32, p params.Parameters) uint32 {
	return day + p.DayRounding.Days(p.ProphylaxisDays)
}

// InfectionChance is the per-host probability of a new inoculation during a
// frame of wallDelta seconds at the given speed multiplier.
func InfectionChance(p params.Parameters, wallDelta, speed float64) float64 {
	return p.IncidenceRate * wallDelta * speed
}
