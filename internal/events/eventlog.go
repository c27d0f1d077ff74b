// Package events provides the audit log for the simulation.
// Every engine mutation (spawn, progression, clearance, treatment) is appended here.
package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// EventType defines the category of a simulation event.
type EventType string

const (
	EventTypeDayAdvanced           EventType = "DAY_ADVANCED"
	EventTypeHostRegistered        EventType = "HOST_REGISTERED"
	EventTypeInoculationSpawned    EventType = "INOCULATION_SPAWNED"
	EventTypeInoculationProgressed EventType = "INOCULATION_PROGRESSED"
	EventTypeInoculationCleared    EventType = "INOCULATION_CLEARED"
	EventTypeTreatmentScheduled    EventType = "TREATMENT_SCHEDULED"
	EventTypeTreatmentApplied      EventType = "TREATMENT_APPLIED"
	EventTypeProphylaxisEnded      EventType = "PROPHYLAXIS_ENDED"
	EventTypeParamsUpdated         EventType = "PARAMS_UPDATED"
	EventTypeSpeedChanged          EventType = "SPEED_CHANGED"
)

// SimEvent represents an immutable record of a change in the simulation.
type SimEvent struct {
	ID        string      `json:"id"`
	Seq       uint64      `json:"seq"`
	Timestamp time.Time   `json:"timestamp"`
	Type      EventType   `json:"type"`
	ActorID   string      `json:"actor_id"`  // Which system made the change
	TargetID  string      `json:"target_id"` // Affected host (optional)
	Payload   interface{} `json:"payload"`
	Day       uint32      `json:"day"`
}

// EventPersister defines how an event is durably stored.
type EventPersister interface {
	Append(event SimEvent) error
}

// EventLog is the in-memory append-only log of simulation events.
// Old entries are trimmed once the retention limit is reached; Seq keeps
// increasing regardless so readers can resume with Since.
type EventLog struct {
	mu     sync.RWMutex
	events []SimEvent
	seq    uint64
	retain int

	persister EventPersister
	queue     chan SimEvent
	closed    bool
	done      chan struct{}

	errMu   sync.Mutex
	onError func(SimEvent, error)
}

const (
	// DefaultRetention bounds the in-memory history.
	DefaultRetention = 10000
	// DefaultPersistBuffer is how many events may wait for the persister
	// before Append blocks.
	DefaultPersistBuffer = 1024
)

// NewEventLog creates a new event log with an optional persister. With a
// persister, one writer goroutine stores events in Seq order; call Close to
// drain it.
func NewEventLog(persister EventPersister) *EventLog {
	el := &EventLog{
		events:    make([]SimEvent, 0),
		retain:    DefaultRetention,
		persister: persister,
		done:      make(chan struct{}),
	}
	if persister == nil {
		close(el.done)
		return el
	}
	el.queue = make(chan SimEvent, DefaultPersistBuffer)
	go el.writeLoop()
	return el
}

func (el *EventLog) writeLoop() {
	defer close(el.done)
	for e := range el.queue {
		if err := el.persister.Append(e); err != nil {
			el.errMu.Lock()
			onError := el.onError
			el.errMu.Unlock()
			if onError != nil {
				onError(e, err)
			}
		}
	}
}

// Close stops accepting write-throughs and blocks until every queued event has
// been handed to the persister. Later appends are kept in memory only.
// Safe to call more than once.
func (el *EventLog) Close() {
	el.mu.Lock()
	if !el.closed {
		el.closed = true
		if el.queue != nil {
			close(el.queue)
		}
	}
	el.mu.Unlock()
	<-el.done
}

// SetRetention changes how many events are kept in memory. n <= 0 keeps everything.
func (el *EventLog) SetRetention(n int) {
	el.mu.Lock()
	defer el.mu.Unlock()
	el.retain = n
	el.trim()
}

// OnPersistError registers a callback for failed write-throughs.
func (el *EventLog) OnPersistError(fn func(SimEvent, error)) {
	el.errMu.Lock()
	defer el.errMu.Unlock()
	el.onError = fn
}

// Append stamps and records a new event. Events are immutable once appended.
func (el *EventLog) Append(event SimEvent) SimEvent {
	el.mu.Lock()
	defer el.mu.Unlock()

	el.seq++
	event.Seq = el.seq
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}
	el.events = append(el.events, event)
	el.trim()

	// Sent under the lock so the queue order matches Seq.
	if el.queue != nil && !el.closed {
		el.queue <- event
	}
	return event
}

func (el *EventLog) trim() {
	if el.retain > 0 && len(el.events) > el.retain {
		drop := len(el.events) - el.retain
		el.events = append(el.events[:0:0], el.events[drop:]...)
	}
}

// Since returns retained events with Seq greater than seq, oldest first.
func (el *EventLog) Since(seq uint64) []SimEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []SimEvent
	for _, e := range el.events {
		if e.Seq > seq {
			result = append(result, e)
		}
	}
	return result
}

// LastSeq returns the sequence number of the most recent event.
func (el *EventLog) LastSeq() uint64 {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return el.seq
}

// GetByTarget returns all retained events affecting a specific host.
func (el *EventLog) GetByTarget(targetID string) []SimEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []SimEvent
	for _, e := range el.events {
		if e.TargetID == targetID {
			result = append(result, e)
		}
	}
	return result
}

// GetByDay returns all retained events that occurred on a specific day.
func (el *EventLog) GetByDay(day uint32) []SimEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()

	var result []SimEvent
	for _, e := range el.events {
		if e.Day == day {
			result = append(result, e)
		}
	}
	return result
}

// Replay returns a copy of the retained history.
func (el *EventLog) Replay() []SimEvent {
	el.mu.RLock()
	defer el.mu.RUnlock()
	return append([]SimEvent(nil), el.events...)
}
