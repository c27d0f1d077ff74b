// Package metrics provides observability for the simulation server.
package metrics

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
	"time"
)

// Collector gathers performance and simulation metrics.
type Collector struct {
	// Tick metrics
	TickCount      int64
	TickLatencySum int64 // nanoseconds
	TickLatencyMax int64
	TickErrors     int64
	LastTickTime   time.Time

	// Simulation metrics
	DaysAdvanced        int64
	InoculationsSpawned int64
	TreatmentsScheduled int64
	TreatmentsApplied   int64

	// Event metrics
	EventsWritten    int64
	EventWriteLatSum int64
	EventWriteLatMax int64
	EventWriteErrors int64

	// WebSocket metrics
	WSConnectionsActive int64
	WSMessagesIn        int64
	WSMessagesOut       int64
	WSErrors            int64

	// Population gauges, replaced after every tick
	Day              uint32
	StatusCounts     map[string]int
	MeanInoculations float64

	// System
	StartTime time.Time
	mu        sync.RWMutex
}

// Global collector instance
var collector = NewCollector()

// NewCollector creates an empty collector. Tests use their own instance.
func NewCollector() *Collector {
	return &Collector{
		StartTime:    time.Now(),
		StatusCounts: make(map[string]int),
	}
}

// Get returns the global collector.
func Get() *Collector {
	return collector
}

func storeMax(addr *int64, v int64) {
	for {
		cur := atomic.LoadInt64(addr)
		if v <= cur || atomic.CompareAndSwapInt64(addr, cur, v) {
			return
		}
	}
}

// RecordTick records a tick cycle completion.
func (c *Collector) RecordTick(latency time.Duration, err error) {
	atomic.AddInt64(&c.TickCount, 1)
	atomic.AddInt64(&c.TickLatencySum, int64(latency))
	storeMax(&c.TickLatencyMax, int64(latency))
	if err != nil {
		atomic.AddInt64(&c.TickErrors, 1)
	}

	c.mu.Lock()
	c.LastTickTime = time.Now()
	c.mu.Unlock()
}

// RecordSimulation records what one tick did to the population.
func (c *Collector) RecordSimulation(days, spawned, scheduled, applied int) {
	atomic.AddInt64(&c.DaysAdvanced, int64(days))
	atomic.AddInt64(&c.InoculationsSpawned, int64(spawned))
	atomic.AddInt64(&c.TreatmentsScheduled, int64(scheduled))
	atomic.AddInt64(&c.TreatmentsApplied, int64(applied))
}

// ObservePopulation replaces the population gauges.
func (c *Collector) ObservePopulation(day uint32, statusCounts map[string]int, meanInoculations float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.Day = day
	c.StatusCounts = make(map[string]int, len(statusCounts))
	for k, v := range statusCounts {
		c.StatusCounts[k] = v
	}
	c.MeanInoculations = meanInoculations
}

// RecordEventWrite records an event write to the ledger.
func (c *Collector) RecordEventWrite(latency time.Duration, err error) {
	atomic.AddInt64(&c.EventsWritten, 1)
	atomic.AddInt64(&c.EventWriteLatSum, int64(latency))
	storeMax(&c.EventWriteLatMax, int64(latency))

	if err != nil {
		atomic.AddInt64(&c.EventWriteErrors, 1)
	}
}

// RecordWSConnection records WebSocket connection changes.
func (c *Collector) RecordWSConnection(delta int64) {
	atomic.AddInt64(&c.WSConnectionsActive, delta)
}

// RecordWSMessage records WebSocket messages.
func (c *Collector) RecordWSMessage(incoming bool) {
	if incoming {
		atomic.AddInt64(&c.WSMessagesIn, 1)
	} else {
		atomic.AddInt64(&c.WSMessagesOut, 1)
	}
}

// RecordWSError records a WebSocket error.
func (c *Collector) RecordWSError() {
	atomic.AddInt64(&c.WSErrors, 1)
}

// Snapshot returns current metrics as a map.
func (c *Collector) Snapshot() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tickCount := atomic.LoadInt64(&c.TickCount)
	eventsWritten := atomic.LoadInt64(&c.EventsWritten)

	var tickAvg, eventAvg float64
	if tickCount > 0 {
		tickAvg = float64(atomic.LoadInt64(&c.TickLatencySum)) / float64(tickCount) / 1e6 // ms
	}
	if eventsWritten > 0 {
		eventAvg = float64(atomic.LoadInt64(&c.EventWriteLatSum)) / float64(eventsWritten) / 1e6
	}

	statuses := make(map[string]int, len(c.StatusCounts))
	for k, v := range c.StatusCounts {
		statuses[k] = v
	}

	lastTick := ""
	if !c.LastTickTime.IsZero() {
		lastTick = c.LastTickTime.Format(time.RFC3339)
	}

	return map[string]interface{}{
		"uptime_seconds": time.Since(c.StartTime).Seconds(),

		"tick": map[string]interface{}{
			"count":          tickCount,
			"errors":         atomic.LoadInt64(&c.TickErrors),
			"avg_latency_ms": tickAvg,
			"max_latency_ms": float64(atomic.LoadInt64(&c.TickLatencyMax)) / 1e6,
			"last_tick":      lastTick,
		},

		"simulation": map[string]interface{}{
			"day":                  c.Day,
			"days_advanced":        atomic.LoadInt64(&c.DaysAdvanced),
			"inoculations_spawned": atomic.LoadInt64(&c.InoculationsSpawned),
			"treatments_scheduled": atomic.LoadInt64(&c.TreatmentsScheduled),
			"treatments_applied":   atomic.LoadInt64(&c.TreatmentsApplied),
			"status_counts":        statuses,
			"mean_inoculations":    c.MeanInoculations,
		},

		"events": map[string]interface{}{
			"written":          eventsWritten,
			"avg_write_lat_ms": eventAvg,
			"max_write_lat_ms": float64(atomic.LoadInt64(&c.EventWriteLatMax)) / 1e6,
			"errors":           atomic.LoadInt64(&c.EventWriteErrors),
		},

		"websocket": map[string]interface{}{
			"active_connections": atomic.LoadInt64(&c.WSConnectionsActive),
			"messages_in":        atomic.LoadInt64(&c.WSMessagesIn),
			"messages_out":       atomic.LoadInt64(&c.WSMessagesOut),
			"errors":             atomic.LoadInt64(&c.WSErrors),
		},
	}
}

// Handler returns an HTTP handler for the /metrics endpoint.
func (c *Collector) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", "no-cache")
		_ = json.NewEncoder(w).Encode(c.Snapshot())
	}
}

// PrometheusHandler returns metrics in Prometheus text format.
func (c *Collector) PrometheusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")

		counter := func(name, help string, v int64) {
			fmt.Fprintf(w, "# HELP %s %s\n", name, help)
			fmt.Fprintf(w, "# TYPE %s counter\n", name)
			fmt.Fprintf(w, "%s %d\n\n", name, v)
		}

		counter("inocsim_tick_count", "Total tick cycles", atomic.LoadInt64(&c.TickCount))
		counter("inocsim_tick_errors", "Ticks that returned an error", atomic.LoadInt64(&c.TickErrors))
		counter("inocsim_days_advanced", "Simulated day boundaries processed", atomic.LoadInt64(&c.DaysAdvanced))
		counter("inocsim_inoculations_spawned", "Inoculations created by incidence", atomic.LoadInt64(&c.InoculationsSpawned))
		counter("inocsim_treatments_scheduled", "Treatment requests triggered by acute onset", atomic.LoadInt64(&c.TreatmentsScheduled))
		counter("inocsim_treatments_applied", "Treatments that took effect", atomic.LoadInt64(&c.TreatmentsApplied))
		counter("inocsim_events_written", "Events written to the ledger", atomic.LoadInt64(&c.EventsWritten))
		counter("inocsim_event_write_errors", "Ledger write failures", atomic.LoadInt64(&c.EventWriteErrors))

		fmt.Fprintf(w, "# HELP inocsim_tick_latency_max_ms Maximum tick latency\n")
		fmt.Fprintf(w, "# TYPE inocsim_tick_latency_max_ms gauge\n")
		fmt.Fprintf(w, "inocsim_tick_latency_max_ms %.2f\n\n", float64(atomic.LoadInt64(&c.TickLatencyMax))/1e6)

		fmt.Fprintf(w, "# HELP inocsim_ws_connections Active WebSocket connections\n")
		fmt.Fprintf(w, "# TYPE inocsim_ws_connections gauge\n")
		fmt.Fprintf(w, "inocsim_ws_connections %d\n\n", atomic.LoadInt64(&c.WSConnectionsActive))

		fmt.Fprintf(w, "# HELP inocsim_ws_messages_total Total WebSocket messages\n")
		fmt.Fprintf(w, "# TYPE inocsim_ws_messages_total counter\n")
		fmt.Fprintf(w, "inocsim_ws_messages_total{direction=\"in\"} %d\n", atomic.LoadInt64(&c.WSMessagesIn))
		fmt.Fprintf(w, "inocsim_ws_messages_total{direction=\"out\"} %d\n\n", atomic.LoadInt64(&c.WSMessagesOut))

		c.mu.RLock()
		defer c.mu.RUnlock()

		fmt.Fprintf(w, "# HELP inocsim_day Current simulated day\n")
		fmt.Fprintf(w, "# TYPE inocsim_day gauge\n")
		fmt.Fprintf(w, "inocsim_day %d\n\n", c.Day)

		statuses := make([]string, 0, len(c.StatusCounts))
		for s := range c.StatusCounts {
			statuses = append(statuses, s)
		}
		sort.Strings(statuses)

		fmt.Fprintf(w, "# HELP inocsim_hosts Hosts by display status\n")
		fmt.Fprintf(w, "# TYPE inocsim_hosts gauge\n")
		for _, s := range statuses {
			fmt.Fprintf(w, "inocsim_hosts{status=%q} %d\n", s, c.StatusCounts[s])
		}

		fmt.Fprintf(w, "\n# HELP inocsim_mean_inoculations Mean live inoculations per host\n")
		fmt.Fprintf(w, "# TYPE inocsim_mean_inoculations gauge\n")
		fmt.Fprintf(w, "inocsim_mean_inoculations %.4f\n", c.MeanInoculations)
	}
}

// Handler serves the global collector as JSON.
func Handler() http.HandlerFunc {
	return collector.Handler()
}

// PrometheusHandler serves the global collector in Prometheus format.
func PrometheusHandler() http.HandlerFunc {
	return collector.PrometheusHandler()
}
