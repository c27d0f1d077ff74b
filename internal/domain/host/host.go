// Package host defines the core domain entities: hosts and the inoculations they carry.
// This package is PURE and must NOT import any infrastructure packages (network, events, platform).
package host

import "fmt"

// ID identifies a host. Hosts are created once and never destroyed.
type ID int

func (id ID) String() string {
	return fmt.Sprintf("H%03d", int(id))
}

// Status is the derived, displayable condition of a host.
type Status string

const (
	StatusProphylaxis Status = "PROPHYLAXIS"
	StatusAcute       Status = "ACUTE"
	StatusChronic     Status = "CHRONIC"
	StatusExposed     Status = "EXPOSED"
	StatusSusceptible Status = "SUSCEPTIBLE"
)

// Statuses lists every status in display priority order.
var Statuses = []Status{StatusProphylaxis, StatusAcute, StatusChronic, StatusExposed, StatusSusceptible}

// Host carries treatment and prophylaxis flags. Owned inoculations are indexed
// by the population, not referenced from here.
type Host struct {
	ID                  ID      `json:"id"`
	OnProphylaxis       bool    `json:"on_prophylaxis"`
	ProphylaxisEndDay   *uint32 `json:"prophylaxis_end_day,omitempty"`
	PendingTreatmentDay *uint32 `json:"pending_treatment_day,omitempty"`
}

// NewHost creates a susceptible host with no pending treatment.
func NewHost(id ID) *Host {
	return &Host{ID: id}
}

// RequestTreatment schedules treatment for day unless an earlier request is
// already pending. It reports whether the pending day changed.
func (h *Host) RequestTreatment(day uint32) bool {
	if h.PendingTreatmentDay != nil && *h.PendingTreatmentDay <= day {
		return false
	}
	h.PendingTreatmentDay = &day
	return true
}

// TreatmentDue reports whether a pending treatment takes effect on day.
func (h *Host) TreatmentDue(day uint32) bool {
	return h.PendingTreatmentDay != nil && day >= *h.PendingTreatmentDay
}

// StartProphylaxis marks the host protected until endDay and consumes the pending request.
func (h *Host) StartProphylaxis(endDay uint32) {
	h.OnProphylaxis = true
	h.ProphylaxisEndDay = &endDay
	h.PendingTreatmentDay = nil
}

// ProphylaxisExpired reports whether the protection window has elapsed on day.
func (h *Host) ProphylaxisExpired(day uint32) bool {
	return h.ProphylaxisEndDay != nil && day >= *h.ProphylaxisEndDay
}

// EndProphylaxis clears the protection window.
func (h *Host) EndProphylaxis() {
	h.OnProphylaxis = false
	h.ProphylaxisEndDay = nil
}

// DeriveStatus computes a host's display status from its prophylaxis flag and
// the states of the inoculations it owns.
// Priority: PROPHYLAXIS > ACUTE > CHRONIC > EXPOSED > SUSCEPTIBLE.
func DeriveStatus(onProphylaxis bool, states []State) Status {
	if onProphylaxis {
		return StatusProphylaxis
	}

	var acute, chronic, exposed bool
	for _, s := range states {
		switch s {
		case StateAcute:
			acute = true
		case StateChronic:
			chronic = true
		case StateExposed:
			exposed = true
		}
	}

	switch {
	case acute:
		return StatusAcute
	case chronic:
		return StatusChronic
	case exposed:
		return StatusExposed
	}
	return StatusSusceptible
}
