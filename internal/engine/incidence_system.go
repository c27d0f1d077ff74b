package engine

import (
	"github.com/inocsim/server/internal/domain/host"
	"github.com/inocsim/server/internal/domain/params"
	"github.com/inocsim/server/internal/domain/random"
	"github.com/inocsim/server/internal/domain/rules"
	"github.com/inocsim/server/internal/events"
	"github.com/inocsim/server/internal/platform/logger"
)

// IncidenceSystem spawns new inoculations as a continuous-time arrival process.
// It runs every tick, not only on day boundaries.
type IncidenceSystem struct {
	eventLog *events.EventLog
	logger   *logger.Logger
}

// NewIncidenceSystem creates a new incidence generator.
func NewIncidenceSystem(eventLog *events.EventLog, log *logger.Logger) *IncidenceSystem {
	return &IncidenceSystem{eventLog: eventLog, logger: log}
}

// SpawnNewInfections draws one Bernoulli trial per host, independent of the
// host's state, and returns the number of inoculations created.
func (is *IncidenceSystem) SpawnNewInfections(day uint32, wallDelta, speed float64, p params.Parameters, pop *Population, src random.Source) (int, error) {
	chance := rules.InfectionChance(p, wallDelta, speed)
	spawned := 0
	if chance <= 0 {
		// No trials at all: a paused or zero-rate frame consumes no draws.
		return 0, nil
	}

	for _, h := range pop.Hosts() {
		if !random.Bernoulli(src, chance) {
			continue
		}
		inoc, err := pop.Infect(h.ID, day, p.LiverStageDays)
		if err != nil {
			return spawned, err
		}
		spawned++

		is.eventLog.Append(events.SimEvent{
			Type:     events.EventTypeInoculationSpawned,
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
		is.logger.Event(string(events.EventTypeInoculationSpawned), ActorIncidence, "host", h.ID, "day", day)
	}

	return spawned, nil
}
