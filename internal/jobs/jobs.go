// Package jobs runs the render node's in-process worker pool: queued render
// jobs are pulled by workers, rendered through the scene they carry, and
// written back as PNG results. Workers report liveness through periodic
// heartbeats, and a background sweep marks silent workers stale.
package jobs

import "errors"

// Job statuses. A job moves queued -> running -> one of the terminal
// states; cancelled can also be reached straight from queued.
const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Worker states as stored in render_workers.
const (
	WorkerIdle    = "idle"
	WorkerBusy    = "busy"
	WorkerStale   = "stale"
	WorkerStopped = "stopped"
)

// ErrNotFound is returned when no job exists under the requested ID.
var ErrNotFound = errors.New("job not found")

// ErrNoImage is returned when a job has no stored image yet.
var ErrNoImage = errors.New("no image for job")

// ErrJobFinished is returned by Cancel for jobs already in a terminal state.
var ErrJobFinished = errors.New("job already finished")

// ErrInvalidScene marks submissions whose scene config failed to parse.
var ErrInvalidScene = errors.New("invalid scene config")

// ErrQueueFull is returned when the job queue cannot take another submission.
var ErrQueueFull = errors.New("job queue full")

// IsTerminalStatus reports whether a job status is final.
func IsTerminalStatus(s string) bool {
	return s == StatusCompleted || s == StatusFailed || s == StatusCancelled
}

// RenderJob matches the render_jobs table structure. SceneJSON holds the
// submitted scene config verbatim; detail queries include it, listings
// leave it empty.
type RenderJob struct {
	JobID              string  `json:"job_id"`
	Name               string  `json:"name,omitempty"`
	Status             string  `json:"status"`
	SceneJSON          string  `json:"scene_json,omitempty"`
	Width              int     `json:"width"`
	Height             int     `json:"height"`
	Samples            int     `json:"samples"`
	WorkerID           *string `json:"worker_id,omitempty"`
	Error              *string `json:"error,omitempty"`
	SubmittedUnixNanos int64   `json:"submitted_unix_nanos"`
	StartedUnixNanos   *int64  `json:"started_unix_nanos,omitempty"`
	CompletedUnixNanos *int64  `json:"completed_unix_nanos,omitempty"`
	DurationMs         *int64  `json:"duration_ms,omitempty"`
	ImageBytes         int64   `json:"image_bytes,omitempty"`
}

// WorkerRecord matches the render_workers table structure.
type WorkerRecord struct {
	WorkerID               string  `json:"worker_id"`
	State                  string  `json:"state"`
	CurrentJobID           *string `json:"current_job_id,omitempty"`
	JobsCompleted          int64   `json:"jobs_completed"`
	StartedUnixNanos       int64   `json:"started_unix_nanos"`
	LastHeartbeatUnixNanos int64   `json:"last_heartbeat_unix_nanos"`
}

// JobStore is an interface required to persist render jobs.
// Implemented by db.DB.
//
// The status transitions are conditional updates: MarkRenderJobRunning only
// moves a queued job and CompleteRenderJob only moves a running one, each
// reporting whether a row changed. That keeps a racing Cancel authoritative
// without a transaction spanning the whole render.
type JobStore interface {
	InsertRenderJob(j *RenderJob) error
	GetRenderJob(jobID string) (*RenderJob, error)
	GetRenderJobImage(jobID string) ([]byte, error)
	ListRenderJobs(limit int) ([]*RenderJob, error)
	CountRenderJobsByStatus() (map[string]int, error)
	MarkRenderJobRunning(jobID, workerID string, startedUnixNanos int64) (bool, error)
	CompleteRenderJob(jobID string, completedUnixNanos, durationMs int64, imagePNG []byte) (bool, error)
	FailRenderJob(jobID string, completedUnixNanos int64, errMsg string) error
	CancelRenderJob(jobID string, completedUnixNanos int64) (bool, error)
}

// WorkerStore is an interface required to persist worker records.
// Implemented by db.DB.
type WorkerStore interface {
	RegisterWorker(w *WorkerRecord) error
	UpdateWorkerHeartbeat(w *WorkerRecord) error
	ListWorkers() ([]*WorkerRecord, error)
	MarkWorkersStale(cutoffUnixNanos int64) (int64, error)
	MarkWorkerStopped(workerID string, atUnixNanos int64) error
}
