package journal

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// ReadRuns returns every run, oldest first.
// Returns an empty slice (not nil) if the journal is empty.
func (j *Journal) ReadRuns(ctx context.Context) ([]Run, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT id, label, frequency, workload_digest, created_seq
		FROM runs
		ORDER BY created_seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		var r Run
		if err := rows.Scan(&r.ID, &r.Label, &r.Frequency, &r.WorkloadDigest, &r.CreatedSeq); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate runs: %w", err)
	}
	return runs, nil
}

// ReadRun returns one run. Returns ErrRunNotFound if it does not exist.
func (j *Journal) ReadRun(ctx context.Context, runID string) (Run, error) {
	var r Run
	err := j.db.QueryRowContext(ctx, `
		SELECT id, label, frequency, workload_digest, created_seq
		FROM runs
		WHERE id = ?
	`, runID).Scan(&r.ID, &r.Label, &r.Frequency, &r.WorkloadDigest, &r.CreatedSeq)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return Run{}, fmt.Errorf("read run: %w", err)
	}
	return r, nil
}

// LatestRun returns the most recently created run.
// Returns ErrRunNotFound if the journal is empty.
func (j *Journal) LatestRun(ctx context.Context) (Run, error) {
	var id string
	err := j.db.QueryRowContext(ctx, `SELECT id FROM runs ORDER BY created_seq DESC LIMIT 1`).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrRunNotFound
	}
	if err != nil {
		return Run{}, fmt.Errorf("latest run: %w", err)
	}
	return j.ReadRun(ctx, id)
}

// ReadEvents returns the events of a run ordered by seq.
// Returns an empty slice (not nil) if the run has no events.
func (j *Journal) ReadEvents(ctx context.Context, runID string) ([]EventRecord, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT seq, type, task_name, task_ref, frame
		FROM events
		WHERE run_id = ?
		ORDER BY seq ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	events := []EventRecord{}
	for rows.Next() {
		var ev EventRecord
		var ref int64
		if err := rows.Scan(&ev.Seq, &ev.Type, &ev.TaskName, &ref, &ev.Frame); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		ev.TaskRef = uint64(ref)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// CountEvents returns the number of events of each type in a run.
func (j *Journal) CountEvents(ctx context.Context, runID string) (map[string]int, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT type, COUNT(*)
		FROM events
		WHERE run_id = ?
		GROUP BY type
		ORDER BY type ASC
	`, runID)
	if err != nil {
		return nil, fmt.Errorf("count events: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var typ string
		var n int
		if err := rows.Scan(&typ, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[typ] = n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate counts: %w", err)
	}
	return counts, nil
}

// ReadStats returns the final counters of a run.
// Returns ErrRunNotFound if no stats were written for it.
func (j *Journal) ReadStats(ctx context.Context, runID string) (RunStats, error) {
	var st RunStats
	var us int64
	err := j.db.QueryRowContext(ctx, `
		SELECT frames, fps, execution_us, tasks, queued, generators
		FROM run_stats
		WHERE run_id = ?
	`, runID).Scan(&st.Frames, &st.FPS, &us, &st.Tasks, &st.Queued, &st.Generators)
	if errors.Is(err, sql.ErrNoRows) {
		return RunStats{}, fmt.Errorf("%w: no stats for %s", ErrRunNotFound, runID)
	}
	if err != nil {
		return RunStats{}, fmt.Errorf("read stats: %w", err)
	}
	st.ExecutionTime = time.Duration(us) * time.Microsecond
	return st, nil
}
