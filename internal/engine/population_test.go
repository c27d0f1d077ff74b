package engine

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inocsim/server/internal/domain/host"
	"github.com/inocsim/server/internal/domain/random"
	"github.com/inocsim/server/internal/events"
	"github.com/inocsim/server/internal/platform/logger"
)

func TestPopulationOwnershipIndex(t *testing.T) {
	pop := NewPopulation()
	a := pop.AddHost()
	b := pop.AddHost()

	i1, err := pop.Infect(a.ID, 0, 7)
	require.NoError(t, err)
	i2, err := pop.Infect(b.ID, 0, 7)
	require.NoError(t, err)
	i3, err := pop.Infect(a.ID, 2, 7)
	require.NoError(t, err)

	assert.Less(t, i1.ID, i2.ID)
	assert.Less(t, i2.ID, i3.ID)
	assert.Equal(t, []host.InoculationID{i1.ID, i2.ID, i3.ID}, pop.InoculationIDs())

	owned, err := pop.Owned(a.ID)
	require.NoError(t, err)
	require.Len(t, owned, 2)
	assert.Equal(t, i1.ID, owned[0].ID)
	assert.Equal(t, i3.ID, owned[1].ID)

	require.NoError(t, pop.Remove(i1.ID))
	owned, _ = pop.Owned(a.ID)
	assert.Len(t, owned, 1)
	assert.Equal(t, 2, pop.InoculationCount())

	assert.ErrorIs(t, pop.Remove(i1.ID), ErrUnknownInoculation)
}

func TestPopulationClearHost(t *testing.T) {
	pop := NewPopulation()
	a := pop.AddHost()
	b := pop.AddHost()
	pop.Infect(a.ID, 0, 7)
	pop.Infect(a.ID, 0, 7)
	keep, _ := pop.Infect(b.ID, 0, 7)

	removed, err := pop.ClearHost(a.ID)
	require.NoError(t, err)
	assert.Len(t, removed, 2)
	assert.Equal(t, []host.InoculationID{keep.ID}, pop.InoculationIDs())

	owned, err := pop.Owned(a.ID)
	require.NoError(t, err)
	assert.Empty(t, owned)
}

func TestPopulationUnknownHost(t *testing.T) {
	pop := NewPopulation()
	pop.AddHost()

	_, err := pop.Host(5)
	assert.ErrorIs(t, err, ErrUnknownHost)
	_, err = pop.Infect(-1, 0, 7)
	assert.ErrorIs(t, err, ErrUnknownHost)
	_, err = pop.ClearHost(3)
	assert.ErrorIs(t, err, ErrUnknownHost)
}

func TestPopulationOwnedDetectsBrokenIndex(t *testing.T) {
	pop := NewPopulation()
	h := pop.AddHost()
	pop.Infect(h.ID, 0, 7)
	pop.owned[h.ID][99] = struct{}{}

	_, err := pop.Owned(h.ID)
	assert.ErrorIs(t, err, ErrUnknownInoculation)
}

func TestSnapshotStatusFollowsInoculations(t *testing.T) {
	eng, _ := newTestEngine(t, quietParams(), random.Fixed(0.5))
	ids, err := eng.Seed(1)
	require.NoError(t, err)
	h, _ := eng.population.Host(ids[0])
	inocs, _ := eng.population.Owned(ids[0])

	assert.Equal(t, host.StatusExposed, eng.Snapshot().Hosts[0].Status)

	inocs[0].Enter(host.StateAcute, 7, 20)
	assert.Equal(t, host.StatusAcute, eng.Snapshot().Hosts[0].Status)

	h.StartProphylaxis(30)
	assert.Equal(t, host.StatusProphylaxis, eng.Snapshot().Hosts[0].Status)
}

func TestSnapshotLogsBrokenIndex(t *testing.T) {
	var buf bytes.Buffer
	log, err := logger.New(&buf, "info")
	require.NoError(t, err)

	opts := DefaultOptions()
	opts.Params = quietParams()
	eng, err := NewEngine(opts, events.NewEventLog(nil), log)
	require.NoError(t, err)
	ids, err := eng.Seed(2)
	require.NoError(t, err)
	eng.population.owned[ids[1]][99] = struct{}{}

	st := eng.Snapshot()
	require.Len(t, st.Hosts, 2)
	assert.Len(t, st.Hosts[0].Inoculations, 1)
	assert.Empty(t, st.Hosts[1].Inoculations)
	assert.Equal(t, host.StatusSusceptible, st.Hosts[1].Status)
	assert.Contains(t, buf.String(), "snapshot skipped inoculations")
	assert.Contains(t, buf.String(), "unknown inoculation")
}
