// Package engine contains the simulation loop and the state-transition systems.
//
// The Engine owns the clock, the population arena and the current parameters.
// Exactly one step runs at a time; parameter edits and snapshot reads are
// serialized against Tick by the engine mutex.
package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"

	"gonum.org/v1/gonum/stat"

	"github.com/inocsim/server/internal/domain/host"
	"github.com/inocsim/server/internal/domain/params"
	"github.com/inocsim/server/internal/domain/random"
	"github.com/inocsim/server/internal/events"
	"github.com/inocsim/server/internal/platform/logger"
)

var (
	// ErrInvalidSpeed is returned for a non-positive or non-finite speed multiplier.
	ErrInvalidSpeed = errors.New("speed multiplier must be positive and finite")
	// ErrInvalidDelta is returned when Tick receives a negative or non-finite wall delta.
	ErrInvalidDelta = errors.New("wall delta must be a finite value >= 0")
)

// Options configures a new Engine.
type Options struct {
	Params        params.Parameters
	SecondsPerDay float64
	Speed         float64
	// Source drives every random draw. When nil a seeded PCG is built from Seed.
	Source random.Source
	Seed   int64
}

// DefaultOptions returns the reference configuration.
func DefaultOptions() Options {
	return Options{
		Params:        params.Default(),
		SecondsPerDay: DefaultSecondsPerDay,
		Speed:         1.0,
		Seed:          1,
	}
}

// Engine is the central orchestrator that runs the systems in their fixed order.
type Engine struct {
	mu       sync.Mutex
	eventLog *events.EventLog
	logger   *logger.Logger

	clock      *Clock
	population *Population
	params     params.Parameters
	speed      float64
	rng        random.Source

	// Sub-systems
	transitionSystem *TransitionSystem
	treatmentSystem  *TreatmentSystem
	incidenceSystem  *IncidenceSystem
}

// TickResult summarises one call to Tick.
type TickResult struct {
	Day               uint32             `json:"day"`
	DaysCrossed       uint32             `json:"days_crossed"`
	TreatmentRequests []TreatmentRequest `json:"treatment_requests,omitempty"`
	TreatmentsApplied int                `json:"treatments_applied"`
	Spawned           int                `json:"spawned"`
}

// NewEngine validates opts and builds an engine with an empty population.
func NewEngine(opts Options, eventLog *events.EventLog, log *logger.Logger) (*Engine, error) {
	if err := opts.Params.Validate(); err != nil {
		return nil, err
	}
	if err := validSpeed(opts.Speed); err != nil {
		return nil, err
	}
	clock, err := NewClock(opts.SecondsPerDay)
	if err != nil {
		return nil, err
	}

	src := opts.Source
	if src == nil {
		src = random.NewSeeded(opts.Seed)
	}

	return &Engine{
		eventLog:   eventLog,
		logger:     log,
		clock:      clock,
		population: NewPopulation(),
		params:     opts.Params,
		speed:      opts.Speed,
		rng:        src,

		transitionSystem: NewTransitionSystem(eventLog, log),
		treatmentSystem:  NewTreatmentSystem(eventLog, log),
		incidenceSystem:  NewIncidenceSystem(eventLog, log),
	}, nil
}

// Seed creates n hosts, each carrying one freshly created Exposed inoculation.
func (e *Engine) Seed(n int) ([]host.ID, error) {
	if n < 0 {
		return nil, fmt.Errorf("seed: negative host count %d", n)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	day := e.clock.Day()
	ids := make([]host.ID, 0, n)
	for i := 0; i < n; i++ {
		h := e.population.AddHost()
		inoc, err := e.population.Infect(h.ID, day, e.params.LiverStageDays)
		if err != nil {
			return ids, err
		}
		ids = append(ids, h.ID)

		e.eventLog.Append(events.SimEvent{
			Type:     events.EventTypeHostRegistered,
			ActorID:  ActorIncidence,
			TargetID: h.ID.String(),
			Payload: InoculationPayload{
				InoculationID: inoc.ID,
				HostID:        h.ID,
				To:            host.StateExposed,
				DelayDays:     inoc.DelayDays,
			},
			Day: day,
		})
	}
	e.logger.Info("population seeded", "hosts", n, "day", day)
	return ids, nil
}

// Tick advances the simulation by one outer frame of wallDelta seconds.
// Every day boundary crossed gets its own transition pass followed by its own
// treatment pass, in day order. Incidence runs once afterwards.
func (e *Engine) Tick(wallDelta float64) (TickResult, error) {
	if math.IsNaN(wallDelta) || math.IsInf(wallDelta, 0) || wallDelta < 0 {
		return TickResult{}, ErrInvalidDelta
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	p := e.params
	speed := e.speed

	crossed := e.clock.Advance(wallDelta, speed)
	res := TickResult{Day: e.clock.Day(), DaysCrossed: crossed}

	first := res.Day - crossed + 1
	for i := uint32(0); i < crossed; i++ {
		day := first + i
		e.eventLog.Append(events.SimEvent{
			Type:    events.EventTypeDayAdvanced,
			ActorID: ActorClock,
			Payload: DayAdvancedPayload{Day: day, Speed: speed, Inoculations: e.population.InoculationCount()},
			Day:     day,
		})

		requests, err := e.transitionSystem.StepInoculations(day, e.population, p, e.rng)
		res.TreatmentRequests = append(res.TreatmentRequests, requests...)
		if err != nil {
			return res, fmt.Errorf("day %d transitions: %w", day, err)
		}

		applied, err := e.treatmentSystem.StepHosts(day, e.population, p)
		res.TreatmentsApplied += applied
		if err != nil {
			return res, fmt.Errorf("day %d treatment: %w", day, err)
		}
	}

	spawned, err := e.incidenceSystem.SpawnNewInfections(res.Day, wallDelta, speed, p, e.population, e.rng)
	res.Spawned = spawned
	if err != nil {
		return res, fmt.Errorf("incidence: %w", err)
	}

	return res, nil
}

// Day returns the current simulated day.
func (e *Engine) Day() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.clock.Day()
}

// Params returns a copy of the current parameters.
func (e *Engine) Params() params.Parameters {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.params
}

// SetParams replaces every parameter after validation.
func (e *Engine) SetParams(p params.Parameters) error {
	if err := p.Validate(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.params = p
	e.eventLog.Append(events.SimEvent{
		Type:    events.EventTypeParamsUpdated,
		ActorID: ActorOperator,
		Payload: p,
		Day:     e.clock.Day(),
	})
	e.logger.Info("parameters replaced", "day", e.clock.Day())
	return nil
}

// UpdateParam edits one named parameter. Invalid edits leave the engine untouched.
func (e *Engine) UpdateParam(name string, value float64) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := e.params
	if err := next.Set(name, value); err != nil {
		return err
	}
	e.params = next
	e.eventLog.Append(events.SimEvent{
		Type:    events.EventTypeParamsUpdated,
		ActorID: ActorOperator,
		Payload: ParamsUpdatedPayload{Name: name, Value: value},
		Day:     e.clock.Day(),
	})
	e.logger.Info("parameter updated", "name", name, "value", value)
	return nil
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier used by subsequent ticks.
func (e *Engine) SetSpeed(speed float64) error {
	if err := validSpeed(speed); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.speed = speed
	e.eventLog.Append(events.SimEvent{
		Type:    events.EventTypeSpeedChanged,
		ActorID: ActorOperator,
		Payload: ParamsUpdatedPayload{Name: "speed", Value: speed},
		Day:     e.clock.Day(),
	})
	return nil
}

func validSpeed(speed float64) error {
	if !(speed > 0) || math.IsInf(speed, 0) {
		return fmt.Errorf("%w: %v", ErrInvalidSpeed, speed)
	}
	return nil
}

// InoculationView is the read-only view of a live inoculation.
type InoculationView struct {
	ID        host.InoculationID `json:"id"`
	State     host.State         `json:"state"`
	StartDay  uint32             `json:"start_day"`
	DelayDays float64            `json:"delay_days"`
}

// HostView is the read-only view of a host.
type HostView struct {
	ID                  host.ID           `json:"id"`
	Label               string            `json:"label"`
	Status              host.Status       `json:"status"`
	OnProphylaxis       bool              `json:"on_prophylaxis"`
	ProphylaxisEndDay   *uint32           `json:"prophylaxis_end_day,omitempty"`
	PendingTreatmentDay *uint32           `json:"pending_treatment_day,omitempty"`
	Inoculations        []InoculationView `json:"inoculations"`
}

// State is a point-in-time copy of everything an observer may read.
type State struct {
	Day   uint32     `json:"day"`
	Speed float64    `json:"speed"`
	Hosts []HostView `json:"hosts"`
}

// Snapshot returns a deep copy of the observable state.
func (e *Engine) Snapshot() State {
	e.mu.Lock()
	defer e.mu.Unlock()

	st := State{Day: e.clock.Day(), Speed: e.speed}
	for _, h := range e.population.Hosts() {
		owned, err := e.population.Owned(h.ID)
		if err != nil {
			// Only a broken ownership index gets here; report the host without inoculations.
			e.logger.Error("snapshot skipped inoculations", "host", h.ID, "err", err)
		}

		view := HostView{
			ID:                  h.ID,
			Label:               h.ID.String(),
			OnProphylaxis:       h.OnProphylaxis,
			ProphylaxisEndDay:   copyDay(h.ProphylaxisEndDay),
			PendingTreatmentDay: copyDay(h.PendingTreatmentDay),
			Inoculations:        make([]InoculationView, 0, len(owned)),
		}
		states := make([]host.State, 0, len(owned))
		for _, inoc := range owned {
			states = append(states, inoc.State)
			view.Inoculations = append(view.Inoculations, InoculationView{
				ID:        inoc.ID,
				State:     inoc.State,
				StartDay:  inoc.StartDay,
				DelayDays: inoc.DelayDays,
			})
		}
		view.Status = host.DeriveStatus(h.OnProphylaxis, states)
		st.Hosts = append(st.Hosts, view)
	}
	return st
}

func copyDay(d *uint32) *uint32 {
	if d == nil {
		return nil
	}
	v := *d
	return &v
}

// Summary aggregates the population for dashboards and metrics.
type Summary struct {
	Day              uint32              `json:"day"`
	Hosts            int                 `json:"hosts"`
	Inoculations     int                 `json:"inoculations"`
	StatusCounts     map[host.Status]int `json:"status_counts"`
	StateCounts      map[host.State]int  `json:"state_counts"`
	MeanInoculations float64             `json:"mean_inoculations"`
	MaxInoculations  int                 `json:"max_inoculations"`
}

// Summary computes population-level counts.
func (e *Engine) Summary() Summary {
	st := e.Snapshot()

	sum := Summary{
		Day:          st.Day,
		Hosts:        len(st.Hosts),
		StatusCounts: make(map[host.Status]int, len(host.Statuses)),
		StateCounts:  make(map[host.State]int, 3),
	}
	for _, s := range host.Statuses {
		sum.StatusCounts[s] = 0
	}

	perHost := make([]float64, 0, len(st.Hosts))
	for _, h := range st.Hosts {
		sum.StatusCounts[h.Status]++
		n := len(h.Inoculations)
		sum.Inoculations += n
		perHost = append(perHost, float64(n))
		if n > sum.MaxInoculations {
			sum.MaxInoculations = n
		}
		for _, inoc := range h.Inoculations {
			sum.StateCounts[inoc.State]++
		}
	}
	if len(perHost) > 0 {
		sum.MeanInoculations = stat.Mean(perHost, nil)
	}
	return sum
}
