package config

import (
	"encoding/json"
	"net/http"
	"time"
)

// Recommendations provides suggestions based on observed metrics.
type Recommendations struct {
	IncreaseBroadcastBuffer bool     `json:"increase_broadcast_buffer"`
	IncreaseDBConnections   bool     `json:"increase_db_connections"`
	LowerFrameRate          bool     `json:"lower_frame_rate"`
	Notes                   []string `json:"notes"`
}

// Analyze examines a metrics snapshot and returns tuning recommendations.
func Analyze(metrics map[string]interface{}) *Recommendations {
	rec := &Recommendations{
		Notes: make([]string, 0),
	}

	if tick, ok := metrics["tick"].(map[string]interface{}); ok {
		if maxLat, ok := tick["max_latency_ms"].(float64); ok && maxLat > 50 {
			rec.LowerFrameRate = true
			rec.Notes = append(rec.Notes, "Tick latency exceeds 50ms - raise simulation.frame_interval")
		}
	}

	if events, ok := metrics["events"].(map[string]interface{}); ok {
		if maxLat, ok := events["max_write_lat_ms"].(float64); ok && maxLat > 50 {
			rec.IncreaseDBConnections = true
			rec.Notes = append(rec.Notes, "Ledger write latency exceeds 50ms - increase DB connections")
		}
		if errors, ok := events["errors"].(int64); ok && errors > 0 {
			rec.IncreaseDBConnections = true
			rec.Notes = append(rec.Notes, "Ledger write errors detected - check the SQLite file")
		}
	}

	if ws, ok := metrics["websocket"].(map[string]interface{}); ok {
		if errors, ok := ws["errors"].(int64); ok && errors > 0 {
			rec.IncreaseBroadcastBuffer = true
			rec.Notes = append(rec.Notes, "WebSocket errors detected - increase client send buffer")
		}
	}

	return rec
}

// ApplyRecommendations modifies the tuning section in place.
func (c *Config) ApplyRecommendations(rec *Recommendations) {
	if rec.IncreaseBroadcastBuffer {
		c.Tuning.BroadcastBuffer *= 2
		c.Tuning.ClientSendBuffer *= 2
	}
	if rec.IncreaseDBConnections {
		c.Tuning.DBMaxOpenConns = int(float64(c.Tuning.DBMaxOpenConns) * 1.5)
	}
	if rec.LowerFrameRate {
		c.Simulation.FrameInterval *= 2
	}
}

// Advice is the response of the recommendations endpoint: what the metrics
// suggest and the tuning sections with those suggestions applied.
type Advice struct {
	Recommendations *Recommendations `json:"recommendations"`
	Suggested       Suggested        `json:"suggested"`
}

// Suggested holds the sections ApplyRecommendations may change.
type Suggested struct {
	FrameInterval time.Duration `json:"frame_interval"`
	Tuning        Tuning        `json:"tuning"`
}

// Advise analyzes a metrics snapshot against c without modifying c.
func (c *Config) Advise(metrics map[string]interface{}) Advice {
	rec := Analyze(metrics)
	tuned := *c
	tuned.ApplyRecommendations(rec)
	return Advice{
		Recommendations: rec,
		Suggested:       Suggested{FrameInterval: tuned.Simulation.FrameInterval, Tuning: tuned.Tuning},
	}
}

// RecommendationsHandler serves Advise over the live metrics snapshot.
// GET /metrics/recommendations
func (c *Config) RecommendationsHandler(snapshot func() map[string]interface{}) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(c.Advise(snapshot()))
	}
}
