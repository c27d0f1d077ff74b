package engine

import (
	"fmt"

	"github.com/inocsim/server/internal/domain/host"
	"github.com/inocsim/server/internal/domain/params"
	"github.com/inocsim/server/internal/domain/random"
	"github.com/inocsim/server/internal/domain/rules"
	"github.com/inocsim/server/internal/events"
	"github.com/inocsim/server/internal/platform/logger"
)

// TreatmentRequest is emitted whenever an acute onset triggers treatment.
// Applied is false when an earlier pending request already won.
type TreatmentRequest struct {
	Host    host.ID `json:"host_id"`
	Day     uint32  `json:"day"`
	Applied bool    `json:"applied"`
}

// TransitionSystem advances inoculations whose dwell time has elapsed.
type TransitionSystem struct {
	eventLog *events.EventLog
	logger   *logger.Logger
}

// NewTransitionSystem creates a new transition processor.
func NewTransitionSystem(eventLog *events.EventLog, log *logger.Logger) *TransitionSystem {
	return &TransitionSystem{eventLog: eventLog, logger: log}
}

// StepInoculations applies the transition rule to every inoculation that existed
// at the start of the pass. Removals are collected and applied after the scan.
func (ts *TransitionSystem) StepInoculations(day uint32, pop *Population, p params.Parameters, src random.Source) ([]TreatmentRequest, error) {
	var (
		requests []TreatmentRequest
		cleared  []host.InoculationID
	)

	for _, id := range pop.InoculationIDs() {
		inoc, err := pop.Inoculation(id)
		if err != nil {
			return requests, err
		}
		if !inoc.Due(day) {
			continue
		}

		owner, err := pop.Host(inoc.Owner)
		if err != nil {
			return requests, fmt.Errorf("inoculation %d: %w", id, err)
		}

		out := rules.Resolve(inoc, owner.OnProphylaxis, day, p, src)
		if out.Clear {
			cleared = append(cleared, id)
			ts.emit(events.EventTypeInoculationCleared, owner.ID, day, InoculationPayload{
				InoculationID: id,
				HostID:        owner.ID,
				From:          inoc.State,
				To:            host.StateCleared,
				Reason:        out.Reason,
			})
			continue
		}

		from := inoc.State
		inoc.Enter(out.Next, day, out.Delay)
		ts.emit(events.EventTypeInoculationProgressed, owner.ID, day, InoculationPayload{
			InoculationID: id,
			HostID:        owner.ID,
			From:          from,
			To:            out.Next,
			DelayDays:     out.Delay,
		})

		if out.RequestTreatment {
			applied := owner.RequestTreatment(out.TreatmentDay)
			requests = append(requests, TreatmentRequest{Host: owner.ID, Day: out.TreatmentDay, Applied: applied})
			ts.emit(events.EventTypeTreatmentScheduled, owner.ID, day, TreatmentPayload{
				HostID:       owner.ID,
				RequestedDay: out.TreatmentDay,
				PendingDay:   *owner.PendingTreatmentDay,
			})
		}
	}

	for _, id := range cleared {
		if err := pop.Remove(id); err != nil {
			return requests, err
		}
	}
	return requests, nil
}

func (ts *TransitionSystem) emit(t events.EventType, target host.ID, day uint32, payload interface{}) {
	ts.eventLog.Append(events.SimEvent{
		Type:     t,
		ActorID:  ActorTransition,
		TargetID: target.String(),
		Payload:  payload,
		Day:      day,
	})
	ts.logger.Event(string(t), ActorTransition, "host", target, "day", day)
}
