package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/inocsim/server/internal/events"
	"github.com/inocsim/server/internal/platform/metrics"
)

// DefaultWriteTimeout bounds a single ledger write.
const DefaultWriteTimeout = 5 * time.Second

// LedgerPersister writes engine events through to an EventRepository for one run.
// It satisfies events.EventPersister.
type LedgerPersister struct {
	repo    EventRepository
	runID   string
	timeout time.Duration
	metrics *metrics.Collector
}

// NewLedgerPersister creates a persister bound to runID.
func NewLedgerPersister(repo EventRepository, runID string, m *metrics.Collector) *LedgerPersister {
	return &LedgerPersister{
		repo:    repo,
		runID:   runID,
		timeout: DefaultWriteTimeout,
		metrics: m,
	}
}

// Append converts and stores one event.
func (p *LedgerPersister) Append(event events.SimEvent) error {
	start := time.Now()
	err := p.append(event)
	if p.metrics != nil {
		p.metrics.RecordEventWrite(time.Since(start), err)
	}
	return err
}

func (p *LedgerPersister) append(event events.SimEvent) error {
	rec, err := ToRecord(p.runID, event)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	return p.repo.Append(ctx, rec)
}

// ToRecord flattens an engine event. Typed payloads round-trip through JSON
// so they come back as the same generic map a query would return.
func ToRecord(runID string, event events.SimEvent) (EventRecord, error) {
	rec := EventRecord{
		ID:        event.ID,
		RunID:     runID,
		Seq:       event.Seq,
		Timestamp: event.Timestamp,
		EventType: string(event.Type),
		ActorID:   event.ActorID,
		TargetID:  event.TargetID,
		Day:       event.Day,
	}

	if event.Payload == nil {
		return rec, nil
	}
	raw, err := json.Marshal(event.Payload)
	if err != nil {
		return rec, fmt.Errorf("failed to marshal payload: %w", err)
	}
	if err := json.Unmarshal(raw, &rec.Payload); err != nil {
		return rec, fmt.Errorf("failed to flatten payload: %w", err)
	}
	return rec, nil
}

var _ events.EventPersister = (*LedgerPersister)(nil)
