package db

import (
	"fmt"

	"github.com/banshee-data/radiance.report/internal/jobs"
)

// RegisterWorker creates or replaces a worker row. Worker IDs are reused
// across restarts, so registration overwrites whatever the previous run
// left behind.
func (db *DB) RegisterWorker(w *jobs.WorkerRecord) error {
	query := `
		INSERT OR REPLACE INTO render_workers (
			worker_id, state, current_job_id, jobs_completed,
			started_unix_nanos, last_heartbeat_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := db.DB.Exec(
		query,
		w.WorkerID,
		w.State,
		w.CurrentJobID,
		w.JobsCompleted,
		w.StartedUnixNanos,
		w.LastHeartbeatUnixNanos,
	)
	if err != nil {
		return fmt.Errorf("failed to register worker: %w", err)
	}

	return nil
}

// UpdateWorkerHeartbeat writes the worker's current state and heartbeat
// time. The full record is replaced so a heartbeat also heals a row the
// stale sweep marked while the worker was merely slow.
func (db *DB) UpdateWorkerHeartbeat(w *jobs.WorkerRecord) error {
	query := `
		INSERT OR REPLACE INTO render_workers (
			worker_id, state, current_job_id, jobs_completed,
			started_unix_nanos, last_heartbeat_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := db.DB.Exec(
		query,
		w.WorkerID,
		w.State,
		w.CurrentJobID,
		w.JobsCompleted,
		w.StartedUnixNanos,
		w.LastHeartbeatUnixNanos,
	)
	if err != nil {
		return fmt.Errorf("failed to update worker heartbeat: %w", err)
	}

	return nil
}

// ListWorkers retrieves all worker rows ordered by ID.
func (db *DB) ListWorkers() ([]*jobs.WorkerRecord, error) {
	query := `
		SELECT
			worker_id, state, current_job_id, jobs_completed,
			started_unix_nanos, last_heartbeat_unix_nanos
		FROM render_workers
		ORDER BY worker_id ASC
	`

	rows, err := db.DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to query workers: %w", err)
	}
	defer rows.Close()

	var workers []*jobs.WorkerRecord
	for rows.Next() {
		var w jobs.WorkerRecord
		err := rows.Scan(
			&w.WorkerID,
			&w.State,
			&w.CurrentJobID,
			&w.JobsCompleted,
			&w.StartedUnixNanos,
			&w.LastHeartbeatUnixNanos,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan worker: %w", err)
		}
		workers = append(workers, &w)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating workers: %w", err)
	}

	return workers, nil
}

// MarkWorkersStale flags live workers whose last heartbeat predates the
// cutoff. Returns the number of rows changed.
func (db *DB) MarkWorkersStale(cutoffUnixNanos int64) (int64, error) {
	query := `
		UPDATE render_workers SET state = ?
		WHERE state IN (?, ?) AND last_heartbeat_unix_nanos < ?
	`

	result, err := db.DB.Exec(query, jobs.WorkerStale, jobs.WorkerIdle, jobs.WorkerBusy, cutoffUnixNanos)
	if err != nil {
		return 0, fmt.Errorf("failed to mark workers stale: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected, nil
}

// MarkWorkerStopped records a clean worker shutdown.
func (db *DB) MarkWorkerStopped(workerID string, atUnixNanos int64) error {
	query := `
		UPDATE render_workers SET
			state = ?,
			current_job_id = NULL,
			last_heartbeat_unix_nanos = ?
		WHERE worker_id = ?
	`

	_, err := db.DB.Exec(query, jobs.WorkerStopped, atUnixNanos, workerID)
	if err != nil {
		return fmt.Errorf("failed to mark worker stopped: %w", err)
	}

	return nil
}
