package host

// State is the stored stage of a live inoculation.
type State string

const (
	StateExposed State = "EXPOSED"
	StateAcute   State = "ACUTE"
	StateChronic State = "CHRONIC"
)

// StateCleared is a display and audit value only. Cleared inoculations are
// removed from the population, never stored with this state.
const StateCleared State = "CLEARED"

// InoculationID identifies an inoculation. IDs increase with creation order.
type InoculationID uint64

// Inoculation is one infection event owned by exactly one host.
type Inoculation struct {
	ID        InoculationID `json:"id"`
	Owner     ID            `json:"owner"`
	State     State         `json:"state"`
	StartDay  uint32        `json:"start_day"`
	DelayDays float64       `json:"delay_days"`
}

// Elapsed returns whole days spent in the current state as of day.
func (i *Inoculation) Elapsed(day uint32) float64 {
	if day < i.StartDay {
		return 0
	}
	return float64(day - i.StartDay)
}

// Due reports whether the dwell time in the current state has run out.
func (i *Inoculation) Due(day uint32) bool {
	return i.Elapsed(day) >= i.DelayDays
}

// Enter moves the inoculation into state on day with a freshly sampled delay.
func (i *Inoculation) Enter(state State, day uint32, delay float64) {
	i.State = state
	i.StartDay = day
	i.DelayDays = delay
}
