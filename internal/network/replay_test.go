package network

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inocsim/server/internal/events"
	"github.com/inocsim/server/internal/platform/logger"
)

func TestReplayFilters(t *testing.T) {
	eng, el := newTestEngine(t, 2)
	_, err := eng.Tick(2.0)
	require.NoError(t, err)

	mux := http.NewServeMux()
	NewReplayHandler(el, logger.Discard()).RegisterRoutes(mux)

	rec := do(mux, http.MethodGet, "/api/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var all ReplayResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &all))
	assert.Equal(t, 4, all.TotalEvents) // 2 registrations + 2 day boundaries
	assert.Equal(t, el.LastSeq(), all.LastSeq)

	rec = do(mux, http.MethodGet, "/api/events?type=DAY_ADVANCED&day=2", "")
	var days ReplayResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &days))
	require.Equal(t, 1, days.TotalEvents)
	assert.Equal(t, events.EventTypeDayAdvanced, days.Events[0].Type)
	assert.Equal(t, "2", days.FilteredBy["day"])

	rec = do(mux, http.MethodGet, "/api/events?since=3", "")
	var tail ReplayResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tail))
	assert.Equal(t, 1, tail.TotalEvents)

	rec = do(mux, http.MethodGet, "/api/events?target=H001", "")
	var target ReplayResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &target))
	assert.Equal(t, 1, target.TotalEvents)

	rec = do(mux, http.MethodGet, "/api/events?day=x", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(mux, http.MethodGet, "/api/events/stats", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"DAY_ADVANCED":2`)
}
