package metrics

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordTickTracksMaxAndErrors(t *testing.T) {
	c := NewCollector()
	c.RecordTick(2*time.Millisecond, nil)
	c.RecordTick(5*time.Millisecond, errors.New("boom"))
	c.RecordTick(1*time.Millisecond, nil)

	assert.Equal(t, int64(3), c.TickCount)
	assert.Equal(t, int64(1), c.TickErrors)
	assert.Equal(t, int64(5*time.Millisecond), c.TickLatencyMax)
}

func TestJSONHandler(t *testing.T) {
	c := NewCollector()
	c.RecordSimulation(2, 3, 1, 1)
	c.ObservePopulation(12, map[string]int{"ACUTE": 2, "SUSCEPTIBLE": 3}, 0.8)

	rec := httptest.NewRecorder()
	c.Handler()(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	sim, ok := decoded["simulation"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(12), sim["day"])
	assert.Equal(t, float64(3), sim["inoculations_spawned"])
	assert.Equal(t, 0.8, sim["mean_inoculations"])
}

func TestPrometheusHandler(t *testing.T) {
	c := NewCollector()
	c.RecordSimulation(1, 0, 0, 0)
	c.ObservePopulation(4, map[string]int{"EXPOSED": 5}, 1)
	c.RecordWSMessage(true)

	rec := httptest.NewRecorder()
	c.PrometheusHandler()(rec, httptest.NewRequest(http.MethodGet, "/metrics/prometheus", nil))

	out := rec.Body.String()
	assert.Contains(t, out, "inocsim_days_advanced 1")
	assert.Contains(t, out, `inocsim_hosts{status="EXPOSED"} 5`)
	assert.Contains(t, out, `inocsim_ws_messages_total{direction="in"} 1`)
	assert.Contains(t, out, "inocsim_day 4")
}
