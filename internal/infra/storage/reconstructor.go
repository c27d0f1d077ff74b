package storage

import (
	"context"
	"fmt"
	"sort"

	"github.com/inocsim/server/internal/domain/host"
)

// Reconstructor rebuilds host history from the event ledger.
// This is used for:
// 1. Host timelines served over HTTP
// 2. Auditing a run against the periodic snapshots
//
// It is read-only: nothing here feeds back into a running engine.
type Reconstructor struct {
	eventRepo EventRepository
}

// NewReconstructor creates a new ledger reader.
func NewReconstructor(eventRepo EventRepository) *Reconstructor {
	return &Reconstructor{eventRepo: eventRepo}
}

// RebuiltHost is a host's status as implied by its events alone.
type RebuiltHost struct {
	HostID        string                        `json:"host_id"`
	LastDay       uint32                        `json:"last_day"`
	OnProphylaxis bool                          `json:"on_prophylaxis"`
	Inoculations  map[host.InoculationID]string `json:"inoculations"`
	Status        host.Status                   `json:"status"`
}

// TimelineEntry is a simplified event for a host timeline.
type TimelineEntry struct {
	Seq       uint64 `json:"seq"`
	Day       uint32 `json:"day"`
	EventType string `json:"event_type"`
	Summary   string `json:"summary"` // Human-readable description
	Impact    string `json:"impact"`  // "WORSE", "BETTER", "NEUTRAL"
}

// RebuildHost replays the events targeting hostID and derives its status.
func (r *Reconstructor) RebuildHost(ctx context.Context, runID, hostID string) (*RebuiltHost, error) {
	evs, err := r.eventRepo.GetByTarget(ctx, runID, hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events for host: %w", err)
	}

	state := &RebuiltHost{
		HostID:       hostID,
		Inoculations: make(map[host.InoculationID]string),
	}
	for _, e := range evs {
		r.applyEventToState(state, e)
	}

	states := make([]host.State, 0, len(state.Inoculations))
	for _, s := range state.Inoculations {
		states = append(states, host.State(s))
	}
	state.Status = host.DeriveStatus(state.OnProphylaxis, states)
	return state, nil
}

// HostTimeline lists what happened to hostID from sinceDay onwards.
func (r *Reconstructor) HostTimeline(ctx context.Context, runID, hostID string, sinceDay uint32) ([]TimelineEntry, error) {
	evs, err := r.eventRepo.GetByTarget(ctx, runID, hostID)
	if err != nil {
		return nil, fmt.Errorf("failed to get events for host: %w", err)
	}

	timeline := make([]TimelineEntry, 0, len(evs))
	for _, e := range evs {
		if e.Day < sinceDay {
			continue
		}
		timeline = append(timeline, TimelineEntry{
			Seq:       e.Seq,
			Day:       e.Day,
			EventType: e.EventType,
			Summary:   r.summarizeEvent(e),
			Impact:    r.determineImpact(e),
		})
	}

	sort.SliceStable(timeline, func(i, j int) bool { return timeline[i].Seq < timeline[j].Seq })
	return timeline, nil
}

// applyEventToState modifies state based on event type.
func (r *Reconstructor) applyEventToState(state *RebuiltHost, e EventRecord) {
	if e.Day > state.LastDay {
		state.LastDay = e.Day
	}

	id, hasID := inoculationID(e.Payload)
	switch e.EventType {
	case "HOST_REGISTERED", "INOCULATION_SPAWNED", "INOCULATION_PROGRESSED":
		if hasID {
			state.Inoculations[id] = stringField(e.Payload, "to")
		}
	case "INOCULATION_CLEARED":
		if hasID {
			delete(state.Inoculations, id)
		}
	case "TREATMENT_APPLIED":
		state.OnProphylaxis = true
	case "PROPHYLAXIS_ENDED":
		state.OnProphylaxis = false
	}
}

// summarizeEvent creates a human-readable summary.
func (r *Reconstructor) summarizeEvent(e EventRecord) string {
	id, _ := inoculationID(e.Payload)
	switch e.EventType {
	case "HOST_REGISTERED":
		return fmt.Sprintf("Host seeded with inoculation #%d.", id)
	case "INOCULATION_SPAWNED":
		return fmt.Sprintf("New inoculation #%d.", id)
	case "INOCULATION_PROGRESSED":
		return fmt.Sprintf("Inoculation #%d moved from %s to %s.", id,
			stringField(e.Payload, "from"), stringField(e.Payload, "to"))
	case "INOCULATION_CLEARED":
		return fmt.Sprintf("Inoculation #%d cleared (%s).", id, stringField(e.Payload, "reason"))
	case "TREATMENT_SCHEDULED":
		return fmt.Sprintf("Treatment requested for day %d.", uintField(e.Payload, "pending_day"))
	case "TREATMENT_APPLIED":
		return fmt.Sprintf("Treated; prophylaxis until day %d.", uintField(e.Payload, "prophylaxis_end_day"))
	case "PROPHYLAXIS_ENDED":
		return "Prophylaxis ended."
	default:
		return "Host state changed."
	}
}

// determineImpact classifies the event impact.
func (r *Reconstructor) determineImpact(e EventRecord) string {
	switch e.EventType {
	case "HOST_REGISTERED", "INOCULATION_SPAWNED":
		return "WORSE"
	case "INOCULATION_PROGRESSED":
		if stringField(e.Payload, "to") == string(host.StateAcute) {
			return "WORSE"
		}
		return "NEUTRAL"
	case "INOCULATION_CLEARED", "TREATMENT_APPLIED":
		return "BETTER"
	default:
		return "NEUTRAL"
	}
}

func inoculationID(payload map[string]interface{}) (host.InoculationID, bool) {
	v, ok := payload["inoculation_id"].(float64)
	if !ok {
		return 0, false
	}
	return host.InoculationID(v), true
}

func stringField(payload map[string]interface{}, key string) string {
	s, _ := payload[key].(string)
	return s
}

func uintField(payload map[string]interface{}, key string) uint32 {
	v, _ := payload[key].(float64)
	return uint32(v)
}
