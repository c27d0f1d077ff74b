package network

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/inocsim/server/internal/domain/host"
	"github.com/inocsim/server/internal/domain/params"
	"github.com/inocsim/server/internal/engine"
	"github.com/inocsim/server/internal/infra/storage"
	"github.com/inocsim/server/internal/platform/logger"
)

// TimelineSource reads host history from the ledger. *storage.Reconstructor satisfies it.
type TimelineSource interface {
	HostTimeline(ctx context.Context, runID, hostID string, sinceDay uint32) ([]storage.TimelineEntry, error)
	RebuildHost(ctx context.Context, runID, hostID string) (*storage.RebuiltHost, error)
}

// API serves the read/write HTTP interface around the engine.
type API struct {
	controller Controller
	hub        *Hub
	timeline   TimelineSource
	eventStore storage.EventRepository
	snapshots  storage.SnapshotRepository
	runID      string
	logger     *logger.Logger
}

// NewAPI creates the HTTP handlers. hub may be nil.
func NewAPI(ctrl Controller, hub *Hub, log *logger.Logger) *API {
	return &API{controller: ctrl, hub: hub, logger: log}
}

// WithLedger enables host timelines for runID.
func (a *API) WithLedger(src TimelineSource, runID string) *API {
	a.timeline = src
	a.runID = runID
	return a
}

// WithEventStore enables queries over every persisted event of the run,
// beyond what the in-memory log retains.
func (a *API) WithEventStore(repo storage.EventRepository) *API {
	a.eventStore = repo
	return a
}

// WithSnapshots enables the periodic host status backups.
func (a *API) WithSnapshots(repo storage.SnapshotRepository) *API {
	a.snapshots = repo
	return a
}

// ValueRequest is the body of single-value edits.
type ValueRequest struct {
	Value *float64 `json:"value"`
}

// RegisterRoutes sets up the API routes.
func (a *API) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/state", a.HandleState)
	mux.HandleFunc("GET /api/summary", a.HandleSummary)
	mux.HandleFunc("GET /api/params", a.HandleGetParams)
	mux.HandleFunc("PUT /api/params", a.HandlePutParams)
	mux.HandleFunc("POST /api/params/{name}", a.HandleSetParam)
	mux.HandleFunc("POST /api/speed", a.HandleSpeed)
	mux.HandleFunc("GET /api/hosts/{id}/timeline", a.HandleHostTimeline)
	mux.HandleFunc("GET /api/ledger/events", a.HandleLedgerEvents)
	mux.HandleFunc("GET /api/snapshots", a.HandleSnapshots)
}

// HandleState returns the full observable state.
// GET /api/state
func (a *API) HandleState(w http.ResponseWriter, r *http.Request) {
	jsonSuccess(w, a.controller.Snapshot())
}

// HandleSummary returns population counts.
// GET /api/summary
func (a *API) HandleSummary(w http.ResponseWriter, r *http.Request) {
	jsonSuccess(w, a.controller.Summary())
}

// HandleGetParams returns the current parameters and the editable names.
// GET /api/params
func (a *API) HandleGetParams(w http.ResponseWriter, r *http.Request) {
	jsonSuccess(w, map[string]interface{}{
		"params":   a.controller.Params(),
		"editable": params.Names(),
	})
}

// HandlePutParams replaces every parameter.
// PUT /api/params
func (a *API) HandlePutParams(w http.ResponseWriter, r *http.Request) {
	var p params.Parameters
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		jsonError(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if err := a.controller.SetParams(p); err != nil {
		a.editError(w, err)
		return
	}
	a.notify()
	jsonSuccess(w, map[string]interface{}{"success": true, "params": a.controller.Params()})
}

// HandleSetParam edits one named parameter.
// POST /api/params/{name}
func (a *API) HandleSetParam(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")

	value, ok := decodeValue(w, r)
	if !ok {
		return
	}
	if err := a.controller.UpdateParam(name, value); err != nil {
		a.editError(w, err)
		return
	}
	a.notify()
	jsonSuccess(w, map[string]interface{}{"success": true, "name": name, "value": value})
}

// HandleSpeed changes the speed multiplier.
// POST /api/speed
func (a *API) HandleSpeed(w http.ResponseWriter, r *http.Request) {
	value, ok := decodeValue(w, r)
	if !ok {
		return
	}
	if err := a.controller.SetSpeed(value); err != nil {
		a.editError(w, err)
		return
	}
	a.notify()
	jsonSuccess(w, map[string]interface{}{"success": true, "speed": value})
}

// HandleHostTimeline returns a host's ledger history and its rebuilt status.
// GET /api/hosts/{id}/timeline?since_day=N
func (a *API) HandleHostTimeline(w http.ResponseWriter, r *http.Request) {
	if a.timeline == nil {
		jsonError(w, "Ledger disabled", http.StatusNotFound)
		return
	}

	hostID, ok := a.resolveHost(r.PathValue("id"))
	if !ok {
		jsonError(w, "Unknown host", http.StatusNotFound)
		return
	}

	var since uint32
	if s := r.URL.Query().Get("since_day"); s != "" {
		n, err := strconv.ParseUint(s, 10, 32)
		if err != nil {
			jsonError(w, "Invalid since_day", http.StatusBadRequest)
			return
		}
		since = uint32(n)
	}

	entries, err := a.timeline.HostTimeline(r.Context(), a.runID, hostID, since)
	if err != nil {
		a.logger.Error("timeline query failed", "host", hostID, "err", err)
		jsonError(w, "Ledger query failed", http.StatusInternalServerError)
		return
	}
	rebuilt, err := a.timeline.RebuildHost(r.Context(), a.runID, hostID)
	if err != nil {
		a.logger.Error("host rebuild failed", "host", hostID, "err", err)
		jsonError(w, "Ledger query failed", http.StatusInternalServerError)
		return
	}

	resp := map[string]interface{}{
		"run_id":       a.runID,
		"host_id":      hostID,
		"since_day":    since,
		"entries":      entries,
		"rebuilt":      rebuilt,
		"generated_at": time.Now().Format(time.RFC3339),
	}
	if a.snapshots != nil {
		snap, err := a.snapshots.GetByHostID(r.Context(), a.runID, hostID)
		switch {
		case err == nil:
			resp["last_snapshot"] = snap
		case !errors.Is(err, storage.ErrNotFound):
			a.logger.Warn("snapshot lookup failed", "host", hostID, "err", err)
		}
	}
	jsonSuccess(w, resp)
}

// HandleLedgerEvents queries persisted events by day or by type.
// GET /api/ledger/events?day=N or ?type=TREATMENT_APPLIED
func (a *API) HandleLedgerEvents(w http.ResponseWriter, r *http.Request) {
	if a.eventStore == nil {
		jsonError(w, "Ledger disabled", http.StatusNotFound)
		return
	}

	q := r.URL.Query()
	var (
		records []storage.EventRecord
		err     error
	)
	switch {
	case q.Get("day") != "":
		day, perr := strconv.ParseUint(q.Get("day"), 10, 32)
		if perr != nil {
			jsonError(w, "Invalid day", http.StatusBadRequest)
			return
		}
		records, err = a.eventStore.GetByDay(r.Context(), a.runID, uint32(day))
	case q.Get("type") != "":
		records, err = a.eventStore.GetByEventType(r.Context(), a.runID, q.Get("type"))
	default:
		jsonError(w, "Query needs day or type", http.StatusBadRequest)
		return
	}
	if err != nil {
		a.logger.Error("ledger query failed", "err", err)
		jsonError(w, "Ledger query failed", http.StatusInternalServerError)
		return
	}
	if records == nil {
		records = []storage.EventRecord{}
	}

	jsonSuccess(w, map[string]interface{}{
		"run_id":       a.runID,
		"total_events": len(records),
		"events":       records,
	})
}

// HandleSnapshots returns the latest status backup of every host.
// GET /api/snapshots
func (a *API) HandleSnapshots(w http.ResponseWriter, r *http.Request) {
	if a.snapshots == nil {
		jsonError(w, "Ledger disabled", http.StatusNotFound)
		return
	}
	snaps, err := a.snapshots.GetByRunID(r.Context(), a.runID)
	if err != nil {
		a.logger.Error("snapshot query failed", "err", err)
		jsonError(w, "Ledger query failed", http.StatusInternalServerError)
		return
	}
	if snaps == nil {
		snaps = []storage.HostSnapshot{}
	}
	jsonSuccess(w, map[string]interface{}{"run_id": a.runID, "snapshots": snaps})
}

// resolveHost accepts either a label ("H003") or a bare index ("3").
func (a *API) resolveHost(raw string) (string, bool) {
	label := raw
	if n, err := strconv.Atoi(raw); err == nil {
		label = host.ID(n).String()
	}
	label = strings.ToUpper(label)

	for _, h := range a.controller.Snapshot().Hosts {
		if h.Label == label {
			return label, true
		}
	}
	return "", false
}

// notify pushes the edited state to observers without waiting for the next day.
func (a *API) notify() {
	if a.hub != nil {
		a.hub.BroadcastState()
	}
}

func (a *API) editError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	if errors.Is(err, params.ErrInvalid) || errors.Is(err, engine.ErrInvalidSpeed) {
		status = http.StatusUnprocessableEntity
	}
	a.logger.Warn("rejected edit", "err", err)
	jsonError(w, err.Error(), status)
}

func decodeValue(w http.ResponseWriter, r *http.Request) (float64, bool) {
	var req ValueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Value == nil {
		jsonError(w, "Body must be {\"value\": number}", http.StatusBadRequest)
		return 0, false
	}
	return *req.Value, true
}

// jsonError sends an error response.
func jsonError(w http.ResponseWriter, message string, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}

// jsonSuccess sends a success response.
func jsonSuccess(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(data)
}
