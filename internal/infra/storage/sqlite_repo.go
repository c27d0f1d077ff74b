package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// SQLiteRunRepository implements RunRepository for SQLite.
type SQLiteRunRepository struct {
	db *sql.DB
}

func NewSQLiteRunRepository(db *sql.DB) *SQLiteRunRepository {
	return &SQLiteRunRepository{db: db}
}

func (r *SQLiteRunRepository) Create(ctx context.Context, run Run) error {
	query := `INSERT INTO runs (run_id, started_at, seed, hosts, params) VALUES (?, ?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, run.ID, run.StartedAt, run.Seed, run.Hosts, run.Params)
	if err != nil {
		return fmt.Errorf("failed to create run: %w", err)
	}
	return nil
}

func (r *SQLiteRunRepository) Get(ctx context.Context, runID string) (*Run, error) {
	query := `SELECT run_id, started_at, seed, hosts, params FROM runs WHERE run_id = ?`
	var run Run
	err := r.db.QueryRowContext(ctx, query, runID).Scan(&run.ID, &run.StartedAt, &run.Seed, &run.Hosts, &run.Params)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("run %s: %w", runID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get run: %w", err)
	}
	return &run, nil
}

func (r *SQLiteRunRepository) List(ctx context.Context) ([]Run, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT run_id, started_at, seed, hosts, params FROM runs ORDER BY started_at ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		if err := rows.Scan(&run.ID, &run.StartedAt, &run.Seed, &run.Hosts, &run.Params); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// ---------------------------------------------------------
// SQLiteEventRepository
// ---------------------------------------------------------

// SQLiteEventRepository implements EventRepository for SQLite.
type SQLiteEventRepository struct {
	db *sql.DB
}

func NewSQLiteEventRepository(db *sql.DB) *SQLiteEventRepository {
	return &SQLiteEventRepository{db: db}
}

const eventColumns = `id, run_id, seq, timestamp, event_type, actor_id, target_id, payload, day`

func (r *SQLiteEventRepository) Append(ctx context.Context, event EventRecord) error {
	payloadBytes, err := json.Marshal(event.Payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	query := `INSERT INTO events (` + eventColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = r.db.ExecContext(ctx, query,
		event.ID, event.RunID, int64(event.Seq), event.Timestamp, event.EventType, event.ActorID,
		event.TargetID, string(payloadBytes), event.Day,
	)
	if err != nil {
		return fmt.Errorf("failed to append event: %w", err)
	}
	return nil
}

func (r *SQLiteEventRepository) getMany(ctx context.Context, where string, args ...interface{}) ([]EventRecord, error) {
	query := `SELECT ` + eventColumns + ` FROM events WHERE ` + where + ` ORDER BY seq ASC`
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query events: %w", err)
	}
	defer rows.Close()

	var events []EventRecord
	for rows.Next() {
		var e EventRecord
		var seq int64
		var payloadStr string
		err := rows.Scan(
			&e.ID, &e.RunID, &seq, &e.Timestamp, &e.EventType, &e.ActorID,
			&e.TargetID, &payloadStr, &e.Day,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan event: %w", err)
		}
		e.Seq = uint64(seq)
		if err := json.Unmarshal([]byte(payloadStr), &e.Payload); err != nil {
			return nil, fmt.Errorf("failed to unmarshal payload: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

func (r *SQLiteEventRepository) GetByRunID(ctx context.Context, runID string) ([]EventRecord, error) {
	return r.getMany(ctx, `run_id = ?`, runID)
}

func (r *SQLiteEventRepository) GetByTarget(ctx context.Context, runID, targetID string) ([]EventRecord, error) {
	return r.getMany(ctx, `run_id = ? AND target_id = ?`, runID, targetID)
}

func (r *SQLiteEventRepository) GetByDay(ctx context.Context, runID string, day uint32) ([]EventRecord, error) {
	return r.getMany(ctx, `run_id = ? AND day = ?`, runID, day)
}

func (r *SQLiteEventRepository) GetByEventType(ctx context.Context, runID, eventType string) ([]EventRecord, error) {
	return r.getMany(ctx, `run_id = ? AND event_type = ?`, runID, eventType)
}

// ---------------------------------------------------------
// SQLiteSnapshotRepository
// ---------------------------------------------------------

// SQLiteSnapshotRepository implements SnapshotRepository for SQLite.
type SQLiteSnapshotRepository struct {
	db *sql.DB
}

func NewSQLiteSnapshotRepository(db *sql.DB) *SQLiteSnapshotRepository {
	return &SQLiteSnapshotRepository{db: db}
}

func (r *SQLiteSnapshotRepository) Upsert(ctx context.Context, snapshot HostSnapshot) error {
	query := `
		INSERT INTO host_snapshots (run_id, host_id, day, status, on_prophylaxis, prophylaxis_end_day, pending_treatment_day, inoculations, last_updated)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, host_id) DO UPDATE SET
			day=excluded.day,
			status=excluded.status,
			on_prophylaxis=excluded.on_prophylaxis,
			prophylaxis_end_day=excluded.prophylaxis_end_day,
			pending_treatment_day=excluded.pending_treatment_day,
			inoculations=excluded.inoculations,
			last_updated=excluded.last_updated
	`
	_, err := r.db.ExecContext(ctx, query,
		snapshot.RunID, snapshot.HostID, snapshot.Day, snapshot.Status, snapshot.OnProphylaxis,
		nullableDay(snapshot.ProphylaxisEndDay), nullableDay(snapshot.PendingTreatmentDay),
		snapshot.Inoculations, time.Now(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert snapshot: %w", err)
	}
	return nil
}

const snapshotColumns = `run_id, host_id, day, status, on_prophylaxis, prophylaxis_end_day, pending_treatment_day, inoculations, last_updated`

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanSnapshot(row rowScanner) (HostSnapshot, error) {
	var s HostSnapshot
	var end, pending sql.NullInt64
	err := row.Scan(&s.RunID, &s.HostID, &s.Day, &s.Status, &s.OnProphylaxis, &end, &pending, &s.Inoculations, &s.LastUpdated)
	if err != nil {
		return s, err
	}
	s.ProphylaxisEndDay = dayFromNull(end)
	s.PendingTreatmentDay = dayFromNull(pending)
	return s, nil
}

func (r *SQLiteSnapshotRepository) GetByHostID(ctx context.Context, runID, hostID string) (*HostSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM host_snapshots WHERE run_id = ? AND host_id = ?`
	s, err := scanSnapshot(r.db.QueryRowContext(ctx, query, runID, hostID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("snapshot %s/%s: %w", runID, hostID, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get snapshot: %w", err)
	}
	return &s, nil
}

func (r *SQLiteSnapshotRepository) GetByRunID(ctx context.Context, runID string) ([]HostSnapshot, error) {
	query := `SELECT ` + snapshotColumns + ` FROM host_snapshots WHERE run_id = ? ORDER BY host_id ASC`
	rows, err := r.db.QueryContext(ctx, query, runID)
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []HostSnapshot
	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		snaps = append(snaps, s)
	}
	return snaps, rows.Err()
}

func nullableDay(d *uint32) sql.NullInt64 {
	if d == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: int64(*d), Valid: true}
}

func dayFromNull(n sql.NullInt64) *uint32 {
	if !n.Valid {
		return nil
	}
	d := uint32(n.Int64)
	return &d
}

// Ensure the SQLite repositories implement their interfaces
var (
	_ RunRepository      = (*SQLiteRunRepository)(nil)
	_ EventRepository    = (*SQLiteEventRepository)(nil)
	_ SnapshotRepository = (*SQLiteSnapshotRepository)(nil)
)
