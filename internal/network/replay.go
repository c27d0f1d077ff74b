package network

import (
	"net/http"
	"strconv"
	"time"

	"github.com/inocsim/server/internal/events"
	"github.com/inocsim/server/internal/platform/logger"
)

// ReplayHandler exposes the in-memory event log for observers catching up.
type ReplayHandler struct {
	eventLog *events.EventLog
	logger   *logger.Logger
}

// NewReplayHandler creates a new replay handler.
func NewReplayHandler(el *events.EventLog, log *logger.Logger) *ReplayHandler {
	return &ReplayHandler{eventLog: el, logger: log}
}

// ReplayResponse is the API response for an event query.
type ReplayResponse struct {
	TotalEvents int               `json:"total_events"`
	LastSeq     uint64            `json:"last_seq"`
	FilteredBy  map[string]string `json:"filtered_by,omitempty"`
	GeneratedAt string            `json:"generated_at"`
	Events      []events.SimEvent `json:"events"`
}

// HandleReplay returns retained events, optionally filtered.
// GET /api/events?since=SEQ&day=N&type=INOCULATION_CLEARED&target=H001
func (rh *ReplayHandler) HandleReplay(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filters := map[string]string{}

	var since uint64
	if s := q.Get("since"); s != "" {
		n, err := strconv.ParseUint(s, 10, 64)
		if err != nil {
			jsonError(w, "Invalid since", http.StatusBadRequest)
			return
		}
		since = n
		filters["since"] = s
	}

	dayFilter := false
	var day uint32
	if s := q.Get("day"); s != "" {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			jsonError(w, "Invalid day", http.StatusBadRequest)
			return
		}
		day, dayFilter = uint32(n), true
		filters["day"] = s
	}

	eventType := q.Get("type")
	if eventType != "" {
		filters["type"] = eventType
	}
	target := q.Get("target")
	if target != "" {
		filters["target"] = target
	}

	result := make([]events.SimEvent, 0)
	for _, e := range rh.eventLog.Since(since) {
		if dayFilter && e.Day != day {
			continue
		}
		if eventType != "" && string(e.Type) != eventType {
			continue
		}
		if target != "" && e.TargetID != target {
			continue
		}
		result = append(result, e)
	}

	resp := ReplayResponse{
		TotalEvents: len(result),
		LastSeq:     rh.eventLog.LastSeq(),
		GeneratedAt: time.Now().Format(time.RFC3339),
		Events:      result,
	}
	if len(filters) > 0 {
		resp.FilteredBy = filters
	}

	rh.logger.Debug("event replay served", "events", len(result), "since", since)
	jsonSuccess(w, resp)
}

// HandleStats returns event counts by type.
// GET /api/events/stats
func (rh *ReplayHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	all := rh.eventLog.Replay()

	stats := map[string]int{"total_events": len(all)}
	for _, e := range all {
		stats[string(e.Type)]++
	}

	jsonSuccess(w, map[string]interface{}{
		"generated_at": time.Now().Format(time.RFC3339),
		"last_seq":     rh.eventLog.LastSeq(),
		"stats":        stats,
	})
}

// RegisterRoutes sets up the replay routes.
func (rh *ReplayHandler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/events", rh.HandleReplay)
	mux.HandleFunc("GET /api/events/stats", rh.HandleStats)
}
