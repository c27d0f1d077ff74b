package host

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeriveStatusPriority(t *testing.T) {
	cases := []struct {
		name   string
		proph  bool
		states []State
		want   Status
	}{
		{"empty", false, nil, StatusSusceptible},
		{"exposed", false, []State{StateExposed}, StatusExposed},
		{"chronic beats exposed", false, []State{StateExposed, StateChronic}, StatusChronic},
		{"acute beats chronic", false, []State{StateChronic, StateAcute, StateExposed}, StatusAcute},
		{"prophylaxis beats everything", true, []State{StateAcute}, StatusProphylaxis},
		{"prophylaxis without infections", true, nil, StatusProphylaxis},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, DeriveStatus(tc.proph, tc.states))
		})
	}
}

func TestRequestTreatmentEarliestWins(t *testing.T) {
	h := NewHost(1)

	assert.True(t, h.RequestTreatment(9))
	assert.False(t, h.RequestTreatment(12), "later request must not push treatment back")
	assert.Equal(t, uint32(9), *h.PendingTreatmentDay)

	assert.False(t, h.RequestTreatment(9), "equal request is not strictly earlier")
	assert.True(t, h.RequestTreatment(4))
	assert.Equal(t, uint32(4), *h.PendingTreatmentDay)
}

func TestProphylaxisLifecycle(t *testing.T) {
	h := NewHost(2)
	h.RequestTreatment(5)

	assert.False(t, h.TreatmentDue(4))
	assert.True(t, h.TreatmentDue(5))

	h.StartProphylaxis(19)
	assert.True(t, h.OnProphylaxis)
	assert.Nil(t, h.PendingTreatmentDay)
	assert.False(t, h.ProphylaxisExpired(18))
	assert.True(t, h.ProphylaxisExpired(19))

	h.EndProphylaxis()
	assert.False(t, h.OnProphylaxis)
	assert.Nil(t, h.ProphylaxisEndDay)
}

func TestInoculationDue(t *testing.T) {
	i := &Inoculation{State: StateExposed, StartDay: 3, DelayDays: 7}
	assert.False(t, i.Due(9))
	assert.True(t, i.Due(10))

	i.Enter(StateAcute, 10, 12.5)
	assert.Equal(t, StateAcute, i.State)
	assert.Equal(t, uint32(10), i.StartDay)
	assert.False(t, i.Due(22))
	assert.True(t, i.Due(23))
}

func TestIDString(t *testing.T) {
	assert.Equal(t, "H007", ID(7).String())
}
