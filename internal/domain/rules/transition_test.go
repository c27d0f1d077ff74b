package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inocsim/server/internal/domain/host"
	"github.com/inocsim/server/internal/domain/params"
	"github.com/inocsim/server/internal/domain/random"
)

func exposed() *host.Inoculation {
	return &host.Inoculation{State: host.StateExposed, DelayDays: 7}
}

func TestExposedSuppressedOnProphylaxisDrawsNothing(t *testing.T) {
	src := random.NewSequence()
	out := Resolve(exposed(), true, 7, params.Default(), src)

	assert.True(t, out.Clear)
	assert.Equal(t, ReasonSuppressed, out.Reason)
}

func TestExposedToAcuteWithTreatment(t *testing.T) {
	p := params.Default()
	// acute roll, acute duration, treatment roll, treatment delay
	src := random.NewSequence(0.1, 0.5, 0.1, 0.8)

	out := Resolve(exposed(), false, 7, p, src)

	require.False(t, out.Clear)
	assert.Equal(t, host.StateAcute, out.Next)
	assert.InDelta(t, 25.0, out.Delay, 1e-9)
	assert.True(t, out.RequestTreatment)
	// 0.8 of U[0,2) = 1.6, rounds to 2
	assert.Equal(t, uint32(9), out.TreatmentDay)
	assert.Zero(t, src.Remaining())
}

func TestExposedToAcuteWithoutTreatment(t *testing.T) {
	src := random.NewSequence(0.1, 0.0, 0.9)
	out := Resolve(exposed(), false, 7, params.Default(), src)

	assert.Equal(t, host.StateAcute, out.Next)
	assert.InDelta(t, 10.0, out.Delay, 1e-9)
	assert.False(t, out.RequestTreatment)
	assert.Zero(t, src.Remaining())
}

func TestExposedToChronic(t *testing.T) {
	src := random.NewSequence(0.9, 0.5)
	out := Resolve(exposed(), false, 7, params.Default(), src)

	assert.Equal(t, host.StateChronic, out.Next)
	assert.InDelta(t, 250.0, out.Delay, 1e-9)
	assert.False(t, out.RequestTreatment)
}

func TestAcuteOutcomes(t *testing.T) {
	acute := &host.Inoculation{State: host.StateAcute}

	out := Resolve(acute, false, 30, params.Default(), random.NewSequence(0.1, 0.0))
	assert.Equal(t, host.StateChronic, out.Next)
	assert.InDelta(t, 100.0, out.Delay, 1e-9)

	out = Resolve(acute, false, 30, params.Default(), random.NewSequence(0.5))
	assert.True(t, out.Clear)
	assert.Equal(t, ReasonSpontaneous, out.Reason)
}

func TestAcuteIgnoresProphylaxis(t *testing.T) {
	acute := &host.Inoculation{State: host.StateAcute}
	out := Resolve(acute, true, 30, params.Default(), random.NewSequence(0.1, 0.0))
	assert.Equal(t, host.StateChronic, out.Next)
}

func TestChronicAlwaysResolves(t *testing.T) {
	chronic := &host.Inoculation{State: host.StateChronic}
	out := Resolve(chronic, false, 400, params.Default(), random.NewSequence())
	assert.True(t, out.Clear)
	assert.Equal(t, ReasonResolved, out.Reason)
}

func TestProphylaxisEndUsesRounding(t *testing.T) {
	p := params.Default()
	p.ProphylaxisDays = 2.5
	assert.Equal(t, uint32(13), ProphylaxisEnd(10, p))

	p.DayRounding = params.RoundFloor
	assert.Equal(t, uint32(12), ProphylaxisEnd(10, p))
}

func TestInfectionChance(t *testing.T) {
	p := params.Default()
	assert.InDelta(t, 0.01, InfectionChance(p, 0.05, 2), 1e-12)

	p.IncidenceRate = 0
	assert.Zero(t, InfectionChance(p, 10, 5))
}
