package journal

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

//go:embed schema.sql
var schemaSQL string

// Schema version tracking:
// 0 - Initial schema (pre-migration)
// 1 - Added index on events(type) for per-type counts
const currentSchemaVersion = 1

// ErrRunNotFound is returned when a run id is not in the journal.
var ErrRunNotFound = errors.New("journal: run not found")

// Journal is a SQLite-backed history of scheduler runs.
type Journal struct {
	db    *sql.DB
	idGen RunIDGenerator
}

// Option configures a Journal.
type Option func(*Journal)

// WithRunIDGenerator sets the generator for new run ids.
// Default: UUIDv7Generator.
func WithRunIDGenerator(g RunIDGenerator) Option {
	return func(j *Journal) {
		j.idGen = g
	}
}

// Open creates or opens a journal at path, applying pragmas and migrations.
// Safe to call repeatedly on the same file.
func Open(path string, opts ...Option) (*Journal, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// SQLite only supports one writer at a time
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply pragmas: %w", err)
	}
	if err := applySchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to apply schema: %w", err)
	}

	j := &Journal{db: db, idGen: UUIDv7Generator{}}
	for _, opt := range opts {
		opt(j)
	}
	return j, nil
}

// Close closes the database.
func (j *Journal) Close() error {
	if j.db == nil {
		return nil
	}
	return j.db.Close()
}

func applyPragmas(db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			return fmt.Errorf("failed to execute %q: %w", pragma, err)
		}
	}
	return nil
}

func applySchema(db *sql.DB) error {
	if _, err := db.Exec(schemaSQL); err != nil {
		return fmt.Errorf("failed to execute schema: %w", err)
	}
	if err := runMigrations(db); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// runMigrations applies incremental schema migrations based on user_version.
func runMigrations(db *sql.DB) error {
	var version int
	if err := db.QueryRow("PRAGMA user_version").Scan(&version); err != nil {
		return fmt.Errorf("get user_version: %w", err)
	}

	if version < 1 {
		if _, err := db.Exec(`CREATE INDEX IF NOT EXISTS idx_events_type ON events(run_id, type)`); err != nil {
			return fmt.Errorf("migrate to v1: %w", err)
		}
	}

	if _, err := db.Exec(fmt.Sprintf("PRAGMA user_version = %d", currentSchemaVersion)); err != nil {
		return fmt.Errorf("set user_version: %w", err)
	}
	return nil
}

// Run is one journaled scheduler run.
type Run struct {
	ID             string  `json:"id"`
	Label          string  `json:"label,omitempty"`
	Frequency      float64 `json:"frequency"`
	WorkloadDigest string  `json:"workload_digest,omitempty"`
	CreatedSeq     int64   `json:"created_seq"`
}

// EventRecord is one journaled lifecycle event.
type EventRecord struct {
	Seq      int64  `json:"seq"`
	Type     string `json:"type"`
	TaskName string `json:"task,omitempty"`
	TaskRef  uint64 `json:"ref,omitempty"`
	Frame    int    `json:"frame"`
}

// RunStats are the scheduler counters captured when a run ended.
type RunStats struct {
	Frames        int           `json:"frames"`
	FPS           float64       `json:"fps"`
	ExecutionTime time.Duration `json:"execution_time"`
	Tasks         int           `json:"tasks"`
	Queued        int           `json:"queued"`
	Generators    int           `json:"generators"`
}

// BeginRun inserts a run and returns its new id.
func (j *Journal) BeginRun(ctx context.Context, label string, frequency float64, workloadDigest string) (Run, error) {
	var next int64
	if err := j.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(created_seq), 0) + 1 FROM runs`).Scan(&next); err != nil {
		return Run{}, fmt.Errorf("begin run: %w", err)
	}

	run := Run{
		ID:             j.idGen.Generate(),
		Label:          label,
		Frequency:      frequency,
		WorkloadDigest: workloadDigest,
		CreatedSeq:     next,
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, label, frequency, workload_digest, created_seq)
		VALUES (?, ?, ?, ?, ?)
	`, run.ID, run.Label, run.Frequency, run.WorkloadDigest, run.CreatedSeq)
	if err != nil {
		return Run{}, fmt.Errorf("begin run: %w", err)
	}
	return run, nil
}

// WriteEvents appends events to a run in one transaction.
// Re-writing an event with the same seq is ignored.
func (j *Journal) WriteEvents(ctx context.Context, runID string, events []EventRecord) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := j.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO events (run_id, seq, type, task_name, task_ref, frame)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id, seq) DO NOTHING
	`)
	if err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	defer stmt.Close()

	for _, ev := range events {
		if _, err := stmt.ExecContext(ctx, runID, ev.Seq, ev.Type, ev.TaskName, int64(ev.TaskRef), ev.Frame); err != nil {
			return fmt.Errorf("write event seq=%d: %w", ev.Seq, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write events: %w", err)
	}
	return nil
}

// WriteStats stores (or replaces) the final counters of a run.
func (j *Journal) WriteStats(ctx context.Context, runID string, st RunStats) error {
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO run_stats (run_id, frames, fps, execution_us, tasks, queued, generators)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(run_id) DO UPDATE SET
			frames = excluded.frames,
			fps = excluded.fps,
			execution_us = excluded.execution_us,
			tasks = excluded.tasks,
			queued = excluded.queued,
			generators = excluded.generators
	`, runID, st.Frames, st.FPS, st.ExecutionTime.Microseconds(), st.Tasks, st.Queued, st.Generators)
	if err != nil {
		return fmt.Errorf("write stats: %w", err)
	}
	return nil
}
