// Package stats records per-turn outcomes in Postgres for aggregate
// reporting. Aggregates are the only state shared across threads.
package stats

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/seonho-lim/aide/pkg/logging"
)

// TurnEvent is one completed turn's outcome.
type TurnEvent struct {
	ThreadID      string
	TurnID        string
	Reset         bool
	Confidence    int
	Contamination int
	CreatedAt     time.Time
}

// ThreadStats aggregates turn outcomes for one thread.
type ThreadStats struct {
	ThreadID  string
	Turns     int64
	Resets    int64
	AvgScore  float64
	LastTurn  time.Time
	FirstTurn time.Time
}

// Recorder is what the session controller needs; recording is best-effort.
type Recorder interface {
	RecordTurn(ctx context.Context, event TurnEvent) error
}

type db interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGRepository persists turn events to Postgres.
type PGRepository struct {
	db     db
	logger *logging.Logger
}

// NewPGRepository builds a Postgres-backed stats repository.
func NewPGRepository(db db, logger *logging.Logger) *PGRepository {
	if db == nil {
		panic("stats: db cannot be nil")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &PGRepository{db: db, logger: logger}
}

var _ Recorder = (*PGRepository)(nil)

// Schema is the DDL for the turn_events table, applied by the operator.
const Schema = `
CREATE TABLE IF NOT EXISTS turn_events (
	id            BIGSERIAL PRIMARY KEY,
	thread_id     TEXT NOT NULL,
	turn_id       TEXT NOT NULL,
	did_reset     BOOLEAN NOT NULL,
	confidence    INT NOT NULL,
	contamination INT NOT NULL,
	created_at    TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS turn_events_thread_idx ON turn_events (thread_id, created_at);
`

// RecordTurn appends one turn event.
func (r *PGRepository) RecordTurn(ctx context.Context, event TurnEvent) error {
	if event.ThreadID == "" {
		return errors.New("stats: threadID required")
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	if _, err := r.db.Exec(ctx, `
		INSERT INTO turn_events (thread_id, turn_id, did_reset, confidence, contamination, created_at)
		VALUES ($1,$2,$3,$4,$5,$6)
	`, event.ThreadID, event.TurnID, event.Reset, event.Confidence, event.Contamination, event.CreatedAt); err != nil {
		return fmt.Errorf("stats: failed to record turn: %w", err)
	}
	return nil
}

// ThreadStats aggregates one thread's turn history.
func (r *PGRepository) ThreadStats(ctx context.Context, threadID string) (*ThreadStats, error) {
	if threadID == "" {
		return nil, errors.New("stats: threadID required")
	}

	row := r.db.QueryRow(ctx, `
		SELECT COUNT(*),
		       COUNT(*) FILTER (WHERE did_reset),
		       COALESCE(AVG(confidence), 0),
		       COALESCE(MIN(created_at), 'epoch'::timestamptz),
		       COALESCE(MAX(created_at), 'epoch'::timestamptz)
		FROM turn_events
		WHERE thread_id = $1
	`, threadID)

	out := &ThreadStats{ThreadID: threadID}
	if err := row.Scan(&out.Turns, &out.Resets, &out.AvgScore, &out.FirstTurn, &out.LastTurn); err != nil {
		return nil, fmt.Errorf("stats: failed to aggregate thread: %w", err)
	}
	return out, nil
}

// DeleteThread removes a thread's events (thread deletion cascade).
func (r *PGRepository) DeleteThread(ctx context.Context, threadID string) error {
	if threadID == "" {
		return errors.New("stats: threadID required")
	}
	if _, err := r.db.Exec(ctx, `DELETE FROM turn_events WHERE thread_id = $1`, threadID); err != nil {
		return fmt.Errorf("stats: failed to delete thread events: %w", err)
	}
	return nil
}
