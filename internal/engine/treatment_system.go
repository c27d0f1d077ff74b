package engine

import (
	"github.com/inocsim/server/internal/domain/host"
	"github.com/inocsim/server/internal/domain/params"
	"github.com/inocsim/server/internal/domain/rules"
	"github.com/inocsim/server/internal/events"
	"github.com/inocsim/server/internal/platform/logger"
)

// TreatmentSystem applies due treatments and expires prophylaxis windows.
type TreatmentSystem struct {
	eventLog *events.EventLog
	logger   *logger.Logger
}

// NewTreatmentSystem creates a new treatment/prophylaxis policy.
func NewTreatmentSystem(eventLog *events.EventLog, log *logger.Logger) *TreatmentSystem {
	return &TreatmentSystem{eventLog: eventLog, logger: log}
}

// StepHosts runs the policy for every host and returns how many treatments took effect.
// A due treatment clears all of the host's inoculations and starts prophylaxis in
// one step; the expiry check then runs against the possibly new window, so a
// zero-length window ends on the day it starts.
func (ts *TreatmentSystem) StepHosts(day uint32, pop *Population, p params.Parameters) (int, error) {
	applied := 0

	for _, h := range pop.Hosts() {
		if h.TreatmentDue(day) {
			removed, err := pop.ClearHost(h.ID)
			if err != nil {
				return applied, err
			}
			end := rules.ProphylaxisEnd(day, p)
			h.StartProphylaxis(end)
			applied++

			for _, id := range removed {
				ts.emit(events.EventTypeInoculationCleared, h.ID, day, InoculationPayload{
					InoculationID: id,
					HostID:        h.ID,
					To:            host.StateCleared,
					Reason:        rules.ReasonTreated,
				})
			}
			ts.emit(events.EventTypeTreatmentApplied, h.ID, day, TreatmentPayload{
				HostID:            h.ID,
				ProphylaxisEndDay: end,
				Cleared:           len(removed),
			})
		}

		if h.ProphylaxisExpired(day) {
			h.EndProphylaxis()
			ts.emit(events.EventTypeProphylaxisEnded, h.ID, day, TreatmentPayload{HostID: h.ID})
		}
	}

	return applied, nil
}

func (ts *TreatmentSystem) emit(t events.EventType, target host.ID, day uint32, payload interface{}) {
	ts.eventLog.Append(events.SimEvent{
		Type:     t,
		ActorID:  ActorTreatment,
		TargetID: target.String(),
		Payload:  payload,
		Day:      day,
	})
	ts.logger.Event(string(t), ActorTreatment, "host", target, "day", day)
}
