package db

import (
	"database/sql"
	"fmt"

	"github.com/banshee-data/radiance.report/internal/jobs"
)

// InsertRenderJob creates a new render job row in the queued state.
func (db *DB) InsertRenderJob(j *jobs.RenderJob) error {
	query := `
		INSERT INTO render_jobs (
			job_id, name, status, scene_json, width, height, samples,
			submitted_unix_nanos
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.DB.Exec(
		query,
		j.JobID,
		j.Name,
		j.Status,
		j.SceneJSON,
		j.Width,
		j.Height,
		j.Samples,
		j.SubmittedUnixNanos,
	)
	if err != nil {
		return fmt.Errorf("failed to insert render job: %w", err)
	}

	return nil
}

// GetRenderJob retrieves a render job by ID, including its scene config.
// The image blob itself is not loaded, only its size.
func (db *DB) GetRenderJob(jobID string) (*jobs.RenderJob, error) {
	query := `
		SELECT
			job_id, name, status, scene_json, width, height, samples,
			worker_id, error, submitted_unix_nanos, started_unix_nanos,
			completed_unix_nanos, duration_ms,
			COALESCE(length(image_png), 0)
		FROM render_jobs
		WHERE job_id = ?
	`

	var j jobs.RenderJob
	err := db.DB.QueryRow(query, jobID).Scan(
		&j.JobID,
		&j.Name,
		&j.Status,
		&j.SceneJSON,
		&j.Width,
		&j.Height,
		&j.Samples,
		&j.WorkerID,
		&j.Error,
		&j.SubmittedUnixNanos,
		&j.StartedUnixNanos,
		&j.CompletedUnixNanos,
		&j.DurationMs,
		&j.ImageBytes,
	)

	if err == sql.ErrNoRows {
		return nil, jobs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get render job: %w", err)
	}

	return &j, nil
}

// GetRenderJobImage retrieves the finished PNG for a job. Returns
// jobs.ErrNoImage when the job exists but has not produced a frame.
func (db *DB) GetRenderJobImage(jobID string) ([]byte, error) {
	query := `SELECT image_png FROM render_jobs WHERE job_id = ?`

	var image []byte
	err := db.DB.QueryRow(query, jobID).Scan(&image)

	if err == sql.ErrNoRows {
		return nil, jobs.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get render job image: %w", err)
	}

	if len(image) == 0 {
		return nil, jobs.ErrNoImage
	}

	return image, nil
}

// ListRenderJobs retrieves the most recently submitted jobs, newest first.
// Scene configs are omitted from listings to keep responses small.
func (db *DB) ListRenderJobs(limit int) ([]*jobs.RenderJob, error) {
	query := `
		SELECT
			job_id, name, status, width, height, samples,
			worker_id, error, submitted_unix_nanos, started_unix_nanos,
			completed_unix_nanos, duration_ms,
			COALESCE(length(image_png), 0)
		FROM render_jobs
		ORDER BY submitted_unix_nanos DESC
		LIMIT ?
	`

	rows, err := db.DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query render jobs: %w", err)
	}
	defer rows.Close()

	var list []*jobs.RenderJob
	for rows.Next() {
		var j jobs.RenderJob
		err := rows.Scan(
			&j.JobID,
			&j.Name,
			&j.Status,
			&j.Width,
			&j.Height,
			&j.Samples,
			&j.WorkerID,
			&j.Error,
			&j.SubmittedUnixNanos,
			&j.StartedUnixNanos,
			&j.CompletedUnixNanos,
			&j.DurationMs,
			&j.ImageBytes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan render job: %w", err)
		}
		list = append(list, &j)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating render jobs: %w", err)
	}

	return list, nil
}

// CountRenderJobsByStatus returns a count of jobs per status value.
func (db *DB) CountRenderJobsByStatus() (map[string]int, error) {
	query := `SELECT status, COUNT(*) FROM render_jobs GROUP BY status`

	rows, err := db.DB.Query(query)
	if err != nil {
		return nil, fmt.Errorf("failed to count render jobs: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan job count: %w", err)
		}
		counts[status] = count
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating job counts: %w", err)
	}

	return counts, nil
}

// MarkRenderJobRunning moves a queued job to running and assigns it a
// worker. Returns false if the job was no longer queued, which happens
// when it was cancelled between dequeue and pickup.
func (db *DB) MarkRenderJobRunning(jobID, workerID string, startedUnixNanos int64) (bool, error) {
	query := `
		UPDATE render_jobs SET
			status = ?,
			worker_id = ?,
			started_unix_nanos = ?
		WHERE job_id = ? AND status = ?
	`

	result, err := db.DB.Exec(query, jobs.StatusRunning, workerID, startedUnixNanos, jobID, jobs.StatusQueued)
	if err != nil {
		return false, fmt.Errorf("failed to mark render job running: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// CompleteRenderJob moves a running job to completed and stores its frame.
// Returns false if the job was no longer running, in which case the image
// is discarded.
func (db *DB) CompleteRenderJob(jobID string, completedUnixNanos, durationMs int64, imagePNG []byte) (bool, error) {
	query := `
		UPDATE render_jobs SET
			status = ?,
			completed_unix_nanos = ?,
			duration_ms = ?,
			image_png = ?,
			error = NULL
		WHERE job_id = ? AND status = ?
	`

	result, err := db.DB.Exec(query, jobs.StatusCompleted, completedUnixNanos, durationMs, imagePNG, jobID, jobs.StatusRunning)
	if err != nil {
		return false, fmt.Errorf("failed to complete render job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}

// FailRenderJob moves a job to failed with an error message. Jobs already
// in a terminal state are left untouched.
func (db *DB) FailRenderJob(jobID string, completedUnixNanos int64, errMsg string) error {
	query := `
		UPDATE render_jobs SET
			status = ?,
			completed_unix_nanos = ?,
			error = ?
		WHERE job_id = ? AND status IN (?, ?)
	`

	_, err := db.DB.Exec(query, jobs.StatusFailed, completedUnixNanos, errMsg, jobID, jobs.StatusQueued, jobs.StatusRunning)
	if err != nil {
		return fmt.Errorf("failed to fail render job: %w", err)
	}

	return nil
}

// CancelRenderJob moves a queued or running job to cancelled. Returns
// false if the job had already reached a terminal state.
func (db *DB) CancelRenderJob(jobID string, completedUnixNanos int64) (bool, error) {
	query := `
		UPDATE render_jobs SET
			status = ?,
			completed_unix_nanos = ?
		WHERE job_id = ? AND status IN (?, ?)
	`

	result, err := db.DB.Exec(query, jobs.StatusCancelled, completedUnixNanos, jobID, jobs.StatusQueued, jobs.StatusRunning)
	if err != nil {
		return false, fmt.Errorf("failed to cancel render job: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}

	return rowsAffected > 0, nil
}
