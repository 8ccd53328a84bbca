package jobs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/radiance.report/internal/field/voxelgrid"
	"github.com/banshee-data/radiance.report/internal/monitoring"
	"github.com/banshee-data/radiance.report/internal/scene"
	"github.com/banshee-data/radiance.report/internal/timeutil"
)

// Config sizes the worker pool and its liveness bookkeeping.
type Config struct {
	Workers           int           // render workers (default: 2)
	QueueSize         int           // buffered queue capacity (default: 16)
	HeartbeatInterval time.Duration // per-worker heartbeat period (default: 5s)
	StaleAfter        time.Duration // heartbeat age before a worker counts as stale (default: 300s)
	StaleCheckEvery   time.Duration // how often the stale sweep runs (default: 30s)

	// SceneDefaults fills scene fields job submissions omit. The zero
	// value behaves like scene.StockDefaults.
	SceneDefaults scene.Defaults
}

// DefaultConfig returns the pool parameters used when the caller does not
// override them.
func DefaultConfig() Config {
	return Config{
		Workers:           2,
		QueueSize:         16,
		HeartbeatInterval: 5 * time.Second,
		StaleAfter:        300 * time.Second,
		StaleCheckEvery:   30 * time.Second,
	}
}

// Validate checks if the configuration is valid.
func (c Config) Validate() error {
	if c.Workers < 1 {
		return fmt.Errorf("Workers must be at least 1, got %d", c.Workers)
	}
	if c.QueueSize < 1 {
		return fmt.Errorf("QueueSize must be at least 1, got %d", c.QueueSize)
	}
	if c.HeartbeatInterval <= 0 {
		return fmt.Errorf("HeartbeatInterval must be positive, got %s", c.HeartbeatInterval)
	}
	if c.StaleAfter < c.HeartbeatInterval {
		return fmt.Errorf("StaleAfter (%s) must be at least HeartbeatInterval (%s)", c.StaleAfter, c.HeartbeatInterval)
	}
	if c.StaleCheckEvery <= 0 {
		return fmt.Errorf("StaleCheckEvery must be positive, got %s", c.StaleCheckEvery)
	}
	return nil
}

// Manager owns the job queue and worker pool. Submissions are validated,
// persisted, and enqueued; Run consumes the queue until its context is
// cancelled. One manager serves the whole process.
type Manager struct {
	cfg     Config
	jobs    JobStore
	workers WorkerStore
	loader  voxelgrid.SnapshotLoader
	clock   timeutil.Clock
	logf    func(format string, v ...interface{})

	queue chan string

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
}

// NewManager builds a manager. Zero config fields take the defaults; loader
// may be nil when scenes never reference stored snapshots, and a nil clock
// takes the real one.
func NewManager(cfg Config, jobStore JobStore, workerStore WorkerStore, loader voxelgrid.SnapshotLoader, clock timeutil.Clock) (*Manager, error) {
	def := DefaultConfig()
	if cfg.Workers == 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize == 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = def.HeartbeatInterval
	}
	if cfg.StaleAfter == 0 {
		cfg.StaleAfter = def.StaleAfter
	}
	if cfg.StaleCheckEvery == 0 {
		cfg.StaleCheckEvery = def.StaleCheckEvery
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid jobs config: %w", err)
	}
	if jobStore == nil || workerStore == nil {
		return nil, fmt.Errorf("jobs manager needs job and worker stores")
	}
	if clock == nil {
		clock = timeutil.RealClock{}
	}

	return &Manager{
		cfg:     cfg,
		jobs:    jobStore,
		workers: workerStore,
		loader:  loader,
		clock:   clock,
		logf:    monitoring.Prefixed("[Jobs] "),
		queue:   make(chan string, cfg.QueueSize),
		cancels: make(map[string]context.CancelFunc),
	}, nil
}

// Config returns the pool parameters the manager runs with.
func (m *Manager) Config() Config { return m.cfg }

// Submit validates the scene config, persists a queued job, and enqueues
// it. A full queue rejects the submission instead of blocking the caller;
// the persisted row is failed so the rejection is visible in listings.
func (m *Manager) Submit(sceneJSON []byte) (*RenderJob, error) {
	cfg, err := scene.ParseWithDefaults(sceneJSON, m.cfg.SceneDefaults)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidScene, err)
	}

	job := &RenderJob{
		JobID:              uuid.New().String(),
		Name:               cfg.Name,
		Status:             StatusQueued,
		SceneJSON:          string(sceneJSON),
		Width:              cfg.Width,
		Height:             cfg.Height,
		Samples:            cfg.Samples,
		SubmittedUnixNanos: m.clock.Now().UnixNano(),
	}
	if err := m.jobs.InsertRenderJob(job); err != nil {
		return nil, fmt.Errorf("failed to insert render job: %w", err)
	}

	select {
	case m.queue <- job.JobID:
	default:
		if err := m.jobs.FailRenderJob(job.JobID, m.clock.Now().UnixNano(), "job queue full"); err != nil {
			m.logf("failed to record queue-full rejection for %s: %v", job.JobID, err)
		}
		return nil, ErrQueueFull
	}

	m.logf("job %s queued (%q, %dx%d, %d samples)", job.JobID, job.Name, job.Width, job.Height, job.Samples)
	return job, nil
}

// Cancel stops a queued or running job. Queued jobs flip straight to
// cancelled; running jobs have their render context cancelled and stop at
// the next row boundary.
func (m *Manager) Cancel(jobID string) error {
	job, err := m.jobs.GetRenderJob(jobID)
	if err != nil {
		return err
	}
	if IsTerminalStatus(job.Status) {
		return fmt.Errorf("%w: %s is %s", ErrJobFinished, jobID, job.Status)
	}

	ok, err := m.jobs.CancelRenderJob(jobID, m.clock.Now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to cancel job %s: %w", jobID, err)
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrJobFinished, jobID)
	}

	m.cancelRender(jobID)
	m.logf("job %s cancelled", jobID)
	return nil
}

// Job returns one job with its scene config.
func (m *Manager) Job(jobID string) (*RenderJob, error) {
	return m.jobs.GetRenderJob(jobID)
}

// JobImage returns the stored PNG for a completed job.
func (m *Manager) JobImage(jobID string) ([]byte, error) {
	return m.jobs.GetRenderJobImage(jobID)
}

// Jobs lists jobs most recent first. A non-positive limit takes 50.
func (m *Manager) Jobs(limit int) ([]*RenderJob, error) {
	if limit <= 0 {
		limit = 50
	}
	return m.jobs.ListRenderJobs(limit)
}

// Workers lists worker records.
func (m *Manager) Workers() ([]*WorkerRecord, error) {
	return m.workers.ListWorkers()
}

// Status summarizes the pool for the status endpoint.
type Status struct {
	JobCounts   map[string]int `json:"job_counts"`
	WorkerCount int            `json:"worker_count"`
	QueueDepth  int            `json:"queue_depth"`
}

// Status reports job counts by status, the worker count, and the current
// queue depth.
func (m *Manager) Status() (*Status, error) {
	counts, err := m.jobs.CountRenderJobsByStatus()
	if err != nil {
		return nil, fmt.Errorf("failed to count jobs: %w", err)
	}
	workers, err := m.workers.ListWorkers()
	if err != nil {
		return nil, fmt.Errorf("failed to list workers: %w", err)
	}
	return &Status{
		JobCounts:   counts,
		WorkerCount: len(workers),
		QueueDepth:  len(m.queue),
	}, nil
}

func (m *Manager) registerCancel(jobID string, cancel context.CancelFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cancels[jobID] = cancel
}

func (m *Manager) clearCancel(jobID string, cancel context.CancelFunc) {
	cancel()
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.cancels, jobID)
}

func (m *Manager) cancelRender(jobID string) {
	m.mu.Lock()
	cancel := m.cancels[jobID]
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
