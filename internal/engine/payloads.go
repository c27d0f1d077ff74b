package engine

import (
	"github.com/inocsim/server/internal/domain/host"
	"github.com/inocsim/server/internal/domain/rules"
)

// Actor IDs stamped on audit events.
const (
	ActorClock      = "SYSTEM_CLOCK"
	ActorTransition = "SYSTEM_TRANSITION"
	ActorTreatment  = "SYSTEM_TREATMENT"
	ActorIncidence  = "SYSTEM_INCIDENCE"
	ActorOperator   = "OPERATOR"
)

// DayAdvancedPayload is attached to each DAY_ADVANCED event.
type DayAdvancedPayload struct {
	Day          uint32  `json:"day"`
	Speed        float64 `json:"speed"`
	Inoculations int     `json:"inoculations"`
}

// InoculationPayload records a spawn, progression or clearance.
type InoculationPayload struct {
	InoculationID host.InoculationID `json:"inoculation_id"`
	HostID        host.ID            `json:"host_id"`
	From          host.State         `json:"from,omitempty"`
	To            host.State         `json:"to"`
	DelayDays     float64            `json:"delay_days,omitempty"`
	Reason        rules.ClearReason  `json:"reason,omitempty"`
}

// TreatmentPayload records scheduling and application of treatment.
type TreatmentPayload struct {
	HostID            host.ID `json:"host_id"`
	RequestedDay      uint32  `json:"requested_day,omitempty"`
	PendingDay        uint32  `json:"pending_day,omitempty"`
	ProphylaxisEndDay uint32  `json:"prophylaxis_end_day,omitempty"`
	Cleared           int     `json:"cleared,omitempty"`
}

// ParamsUpdatedPayload records an operator edit.
type ParamsUpdatedPayload struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
}
