// Package storage provides the audit ledger for simulation runs.
// This package implements the repository pattern; the engine never imports it.
package storage

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when a run or snapshot does not exist.
var ErrNotFound = errors.New("not found")

// Run identifies one server session writing to the ledger.
type Run struct {
	ID        string    `json:"id" db:"run_id"`
	StartedAt time.Time `json:"started_at" db:"started_at"`
	Seed      int64     `json:"seed" db:"seed"`
	Hosts     int       `json:"hosts" db:"hosts"`
	Params    string    `json:"params" db:"params"` // JSON of the parameters at start
}

// RunRepository stores run headers.
type RunRepository interface {
	Create(ctx context.Context, run Run) error
	Get(ctx context.Context, runID string) (*Run, error)
	List(ctx context.Context) ([]Run, error)
}

// EventRecord mirrors the engine event structure for persistence.
// Payloads are stored as JSON and come back as generic maps.
type EventRecord struct {
	ID        string                 `json:"id" db:"id"`
	RunID     string                 `json:"run_id" db:"run_id"`
	Seq       uint64                 `json:"seq" db:"seq"`
	Timestamp time.Time              `json:"timestamp" db:"timestamp"`
	EventType string                 `json:"event_type" db:"event_type"`
	ActorID   string                 `json:"actor_id" db:"actor_id"`
	TargetID  string                 `json:"target_id" db:"target_id"`
	Payload   map[string]interface{} `json:"payload" db:"payload"`
	Day       uint32                 `json:"day" db:"day"`
}

// EventRepository defines the interface for event persistence.
// Every query returns events in Seq order.
type EventRepository interface {
	// Append adds a new event to the immutable ledger.
	Append(ctx context.Context, event EventRecord) error

	// GetByRunID retrieves all events of a run.
	GetByRunID(ctx context.Context, runID string) ([]EventRecord, error)

	// GetByTarget retrieves all events affecting one host.
	GetByTarget(ctx context.Context, runID, targetID string) ([]EventRecord, error)

	// GetByDay retrieves all events from a specific simulated day.
	GetByDay(ctx context.Context, runID string, day uint32) ([]EventRecord, error)

	// GetByEventType retrieves all events of a specific type.
	GetByEventType(ctx context.Context, runID, eventType string) ([]EventRecord, error)
}

// HostSnapshot is the periodic status backup of one host.
type HostSnapshot struct {
	RunID               string    `json:"run_id" db:"run_id"`
	HostID              string    `json:"host_id" db:"host_id"`
	Day                 uint32    `json:"day" db:"day"`
	Status              string    `json:"status" db:"status"`
	OnProphylaxis       bool      `json:"on_prophylaxis" db:"on_prophylaxis"`
	ProphylaxisEndDay   *uint32   `json:"prophylaxis_end_day,omitempty" db:"prophylaxis_end_day"`
	PendingTreatmentDay *uint32   `json:"pending_treatment_day,omitempty" db:"pending_treatment_day"`
	Inoculations        int       `json:"inoculations" db:"inoculations"`
	LastUpdated         time.Time `json:"last_updated" db:"last_updated"`
}

// SnapshotRepository defines the interface for host status snapshots.
type SnapshotRepository interface {
	// Upsert updates or inserts a host snapshot.
	Upsert(ctx context.Context, snapshot HostSnapshot) error

	// GetByHostID retrieves one host's latest snapshot.
	GetByHostID(ctx context.Context, runID, hostID string) (*HostSnapshot, error)

	// GetByRunID retrieves all snapshots of a run.
	GetByRunID(ctx context.Context, runID string) ([]HostSnapshot, error)
}
