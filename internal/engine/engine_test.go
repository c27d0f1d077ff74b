package engine

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inocsim/server/internal/domain/host"
	"github.com/inocsim/server/internal/domain/params"
	"github.com/inocsim/server/internal/domain/random"
	"github.com/inocsim/server/internal/domain/rules"
	"github.com/inocsim/server/internal/events"
	"github.com/inocsim/server/internal/platform/logger"
)

func newTestEngine(t *testing.T, p params.Parameters, src random.Source) (*Engine, *events.EventLog) {
	t.Helper()
	el := events.NewEventLog(nil)
	opts := DefaultOptions()
	opts.Params = p
	opts.Source = src
	eng, err := NewEngine(opts, el, logger.Discard())
	require.NoError(t, err)
	return eng, el
}

func tickDays(t *testing.T, eng *Engine, n int) {
	t.Helper()
	for i := 0; i < n; i++ {
		_, err := eng.Tick(1.0)
		require.NoError(t, err)
	}
}

func quietParams() params.Parameters {
	p := params.Default()
	p.IncidenceRate = 0
	return p
}

func TestExposedBecomesAcuteAtLiverStage(t *testing.T) {
	p := quietParams()
	p.ProbAcute = 1
	p.ProbTreatment = 0

	eng, _ := newTestEngine(t, p, random.Fixed(0.5))
	ids, err := eng.Seed(1)
	require.NoError(t, err)

	tickDays(t, eng, 6)
	inocs, _ := eng.population.Owned(ids[0])
	require.Len(t, inocs, 1)
	assert.Equal(t, host.StateExposed, inocs[0].State)

	tickDays(t, eng, 1)
	inocs, _ = eng.population.Owned(ids[0])
	require.Len(t, inocs, 1)
	assert.Equal(t, host.StateAcute, inocs[0].State)
	assert.Equal(t, uint32(7), inocs[0].StartDay)
	assert.InDelta(t, 25.0, inocs[0].DelayDays, 1e-9)

	h, _ := eng.population.Host(ids[0])
	assert.Nil(t, h.PendingTreatmentDay)
}

func TestPendingTreatmentClearsHostAndStartsProphylaxis(t *testing.T) {
	eng, el := newTestEngine(t, quietParams(), random.Fixed(0.5))
	ids, err := eng.Seed(1)
	require.NoError(t, err)

	_, err = eng.population.Infect(ids[0], 0, 7)
	require.NoError(t, err)
	h, _ := eng.population.Host(ids[0])
	require.True(t, h.RequestTreatment(5))

	tickDays(t, eng, 4)
	assert.Equal(t, 2, eng.population.InoculationCount())

	res, err := eng.Tick(1.0)
	require.NoError(t, err)
	assert.Equal(t, 1, res.TreatmentsApplied)
	assert.Equal(t, 0, eng.population.InoculationCount())
	assert.True(t, h.OnProphylaxis)
	require.NotNil(t, h.ProphylaxisEndDay)
	assert.Equal(t, uint32(19), *h.ProphylaxisEndDay)
	assert.Nil(t, h.PendingTreatmentDay)

	applied := 0
	for _, e := range el.GetByDay(5) {
		if e.Type == events.EventTypeTreatmentApplied {
			applied++
		}
	}
	assert.Equal(t, 1, applied)
}

func TestZeroIncidenceSpawnsNothing(t *testing.T) {
	eng, _ := newTestEngine(t, quietParams(), random.Fixed(0))
	_, err := eng.Seed(3)
	require.NoError(t, err)

	res, err := eng.Tick(3.0)
	require.NoError(t, err)
	assert.Equal(t, 0, res.Spawned)
	assert.Equal(t, 3, eng.population.InoculationCount())
}

func TestCertainIncidenceSpawnsOnePerHost(t *testing.T) {
	p := params.Default()
	p.IncidenceRate = 1

	eng, _ := newTestEngine(t, p, random.Fixed(0.99))
	_, err := eng.Seed(4)
	require.NoError(t, err)

	res, err := eng.Tick(1.0)
	require.NoError(t, err)
	assert.Equal(t, 4, res.Spawned)
	assert.Equal(t, 8, eng.population.InoculationCount())
}

func TestProphylaxisEndsOnItsEndDay(t *testing.T) {
	eng, _ := newTestEngine(t, quietParams(), random.Fixed(0.5))
	ids, _ := eng.Seed(1)
	h, _ := eng.population.Host(ids[0])
	h.StartProphylaxis(10)

	tickDays(t, eng, 9)
	assert.True(t, h.OnProphylaxis)

	tickDays(t, eng, 1)
	assert.False(t, h.OnProphylaxis)
	assert.Nil(t, h.ProphylaxisEndDay)
}

func TestProphylaxisSuppressesExposedAtThreshold(t *testing.T) {
	eng, el := newTestEngine(t, quietParams(), random.Fixed(0.5))
	ids, _ := eng.Seed(1)
	h, _ := eng.population.Host(ids[0])
	h.StartProphylaxis(20)

	tickDays(t, eng, 7)
	assert.Equal(t, 0, eng.population.InoculationCount())
	assert.True(t, h.OnProphylaxis)

	var reasons []rules.ClearReason
	for _, e := range el.GetByTarget(ids[0].String()) {
		if e.Type == events.EventTypeInoculationCleared {
			reasons = append(reasons, e.Payload.(InoculationPayload).Reason)
		}
	}
	assert.Equal(t, []rules.ClearReason{rules.ReasonSuppressed}, reasons)
}

func TestZeroDeltaTickIsIdempotent(t *testing.T) {
	eng, el := newTestEngine(t, params.Default(), random.NewSeeded(7))
	_, err := eng.Seed(5)
	require.NoError(t, err)
	tickDays(t, eng, 3)

	before := eng.Snapshot()
	seq := el.LastSeq()

	res, err := eng.Tick(0)
	require.NoError(t, err)
	assert.Equal(t, uint32(0), res.DaysCrossed)
	assert.Equal(t, 0, res.Spawned)
	assert.Equal(t, before, eng.Snapshot())
	assert.Equal(t, seq, el.LastSeq())
}

func TestTickRejectsInvalidDelta(t *testing.T) {
	eng, _ := newTestEngine(t, params.Default(), random.Fixed(0.5))
	_, err := eng.Tick(-1)
	assert.ErrorIs(t, err, ErrInvalidDelta)
}

func TestMultiDayTickProcessesDaysInOrder(t *testing.T) {
	p := quietParams()
	p.ProbAcute = 1
	p.ProbTreatment = 1
	p.TreatmentDelay = params.Uniform{Min: 1, Max: 2}

	eng, _ := newTestEngine(t, p, random.Fixed(0))
	ids, _ := eng.Seed(1)

	res, err := eng.Tick(10.0)
	require.NoError(t, err)
	assert.Equal(t, uint32(10), res.Day)
	assert.Equal(t, uint32(10), res.DaysCrossed)

	require.Len(t, res.TreatmentRequests, 1)
	assert.Equal(t, TreatmentRequest{Host: ids[0], Day: 8, Applied: true}, res.TreatmentRequests[0])
	assert.Equal(t, 1, res.TreatmentsApplied)

	h, _ := eng.population.Host(ids[0])
	assert.True(t, h.OnProphylaxis)
	assert.Equal(t, uint32(22), *h.ProphylaxisEndDay)
	assert.Equal(t, 0, eng.population.InoculationCount())
}

func TestEarlierTreatmentRequestWins(t *testing.T) {
	p := quietParams()
	p.ProbAcute = 1
	p.ProbTreatment = 1

	// Two inoculations reach acute onset on day 7. Draw order per onset:
	// acute roll, acute duration, treatment roll, treatment delay.
	src := random.NewSequence(
		0, 0.5, 0, 1.0, // delay 2 -> day 9
		0, 0.5, 0, 0.0, // delay 0 -> day 7
	)
	eng, _ := newTestEngine(t, p, src)
	ids, _ := eng.Seed(1)
	_, err := eng.population.Infect(ids[0], 0, 7)
	require.NoError(t, err)

	tickDays(t, eng, 6)
	res, err := eng.Tick(1.0)
	require.NoError(t, err)

	require.Len(t, res.TreatmentRequests, 2)
	assert.True(t, res.TreatmentRequests[0].Applied)
	assert.True(t, res.TreatmentRequests[1].Applied)
	assert.Equal(t, 1, res.TreatmentsApplied, "day-7 request is applied in the same day's treatment pass")
	assert.Equal(t, 0, src.Remaining())
}

func TestUpdateParamRejectsInvalidValue(t *testing.T) {
	eng, _ := newTestEngine(t, params.Default(), random.Fixed(0.5))

	require.NoError(t, eng.UpdateParam("prob_acute", 0.9))
	assert.Equal(t, 0.9, eng.Params().ProbAcute)

	err := eng.UpdateParam("prob_acute", 1.5)
	assert.ErrorIs(t, err, params.ErrInvalid)
	assert.Equal(t, 0.9, eng.Params().ProbAcute)

	assert.ErrorIs(t, eng.SetSpeed(0), ErrInvalidSpeed)
	require.NoError(t, eng.SetSpeed(2.5))
	assert.Equal(t, 2.5, eng.Speed())
}

func TestSpeedScalesDayProgression(t *testing.T) {
	eng, _ := newTestEngine(t, quietParams(), random.Fixed(0.5))
	require.NoError(t, eng.SetSpeed(4))

	res, err := eng.Tick(1.0)
	require.NoError(t, err)
	assert.Equal(t, uint32(4), res.DaysCrossed)
}

var allowedProgressions = map[[2]host.State]bool{
	{host.StateExposed, host.StateAcute}:   true,
	{host.StateExposed, host.StateChronic}: true,
	{host.StateAcute, host.StateChronic}:   true,
}

var allowedClears = map[rules.ClearReason]host.State{
	rules.ReasonSuppressed:  host.StateExposed,
	rules.ReasonSpontaneous: host.StateAcute,
	rules.ReasonResolved:    host.StateChronic,
}

func TestSeededRunOnlyTakesLegalTransitions(t *testing.T) {
	eng, el := newTestEngine(t, params.Default(), random.NewSeeded(42))
	el.SetRetention(0)
	_, err := eng.Seed(20)
	require.NoError(t, err)

	for i := 0; i < 400; i++ {
		_, err := eng.Tick(0.5)
		require.NoError(t, err)

		for _, h := range eng.Snapshot().Hosts {
			if !h.OnProphylaxis {
				assert.Nil(t, h.ProphylaxisEndDay)
			} else {
				assert.Equal(t, host.StatusProphylaxis, h.Status)
			}
		}
	}

	progressed := 0
	for _, e := range el.Replay() {
		switch e.Type {
		case events.EventTypeInoculationProgressed:
			pl := e.Payload.(InoculationPayload)
			assert.True(t, allowedProgressions[[2]host.State{pl.From, pl.To}], "illegal edge %s -> %s", pl.From, pl.To)
			progressed++
		case events.EventTypeInoculationCleared:
			pl := e.Payload.(InoculationPayload)
			if pl.Reason == rules.ReasonTreated {
				continue
			}
			assert.Equal(t, allowedClears[pl.Reason], pl.From, "reason %s", pl.Reason)
		}
	}
	assert.Positive(t, progressed)
	assert.Equal(t, uint32(200), eng.Day())
}

func TestSummaryCountsStatuses(t *testing.T) {
	eng, _ := newTestEngine(t, quietParams(), random.Fixed(0.5))
	ids, _ := eng.Seed(3)
	h, _ := eng.population.Host(ids[2])
	h.StartProphylaxis(30)

	sum := eng.Summary()
	assert.Equal(t, 3, sum.Hosts)
	assert.Equal(t, 3, sum.Inoculations)
	assert.Equal(t, 2, sum.StatusCounts[host.StatusExposed])
	assert.Equal(t, 1, sum.StatusCounts[host.StatusProphylaxis])
	assert.Equal(t, 0, sum.StatusCounts[host.StatusAcute])
	assert.InDelta(t, 1.0, sum.MeanInoculations, 1e-9)
	assert.Equal(t, 1, sum.MaxInoculations)
}
