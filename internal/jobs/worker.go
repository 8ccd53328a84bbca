package jobs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/radiance.report/internal/render"
	"github.com/banshee-data/radiance.report/internal/scene"
)

// workerState is the mutable view a worker shares with its heartbeat loop.
type workerState struct {
	id string

	mu            sync.Mutex
	state         string
	currentJobID  *string
	jobsCompleted int64
	started       time.Time
}

func newWorkerState(id string, started time.Time) *workerState {
	return &workerState{id: id, state: WorkerIdle, started: started}
}

func (w *workerState) setBusy(jobID string) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = WorkerBusy
	w.currentJobID = &jobID
}

func (w *workerState) setIdle() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = WorkerIdle
	w.currentJobID = nil
}

func (w *workerState) jobDone() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.jobsCompleted++
}

// record snapshots the state into a WorkerRecord stamped with the given
// heartbeat time.
func (w *workerState) record(heartbeat time.Time) *WorkerRecord {
	w.mu.Lock()
	defer w.mu.Unlock()
	return &WorkerRecord{
		WorkerID:               w.id,
		State:                  w.state,
		CurrentJobID:           w.currentJobID,
		JobsCompleted:          w.jobsCompleted,
		StartedUnixNanos:       w.started.UnixNano(),
		LastHeartbeatUnixNanos: heartbeat.UnixNano(),
	}
}

// Run starts the worker pool, the per-worker heartbeat loops, and the stale
// sweep, then blocks until ctx is cancelled and every goroutine has
// drained. Workers register themselves before the first job is pulled.
func (m *Manager) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for i := 1; i <= m.cfg.Workers; i++ {
		w := newWorkerState(fmt.Sprintf("worker-%d", i), m.clock.Now())
		if err := m.workers.RegisterWorker(w.record(w.started)); err != nil {
			m.logf("failed to register %s: %v", w.id, err)
		}

		wg.Add(2)
		go func() {
			defer wg.Done()
			m.runWorker(ctx, w)
		}()
		go func() {
			defer wg.Done()
			m.runHeartbeat(ctx, w)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		m.runStaleSweep(ctx)
	}()

	m.logf("pool started: %d worker(s), queue capacity %d", m.cfg.Workers, m.cfg.QueueSize)
	wg.Wait()
	m.logf("pool stopped")
}

func (m *Manager) runWorker(ctx context.Context, w *workerState) {
	for {
		select {
		case <-ctx.Done():
			if err := m.workers.MarkWorkerStopped(w.id, m.clock.Now().UnixNano()); err != nil {
				m.logf("failed to mark %s stopped: %v", w.id, err)
			}
			return
		case jobID := <-m.queue:
			m.executeJob(ctx, w, jobID)
		}
	}
}

// executeJob runs one job end to end. The queued->running transition is
// conditional, so a job cancelled while waiting in the queue is skipped
// here rather than resurrected.
func (m *Manager) executeJob(ctx context.Context, w *workerState, jobID string) {
	job, err := m.jobs.GetRenderJob(jobID)
	if err != nil {
		m.logf("worker %s: fetch job %s: %v", w.id, jobID, err)
		return
	}
	if job.Status != StatusQueued {
		return
	}

	jobCtx, cancel := context.WithCancel(ctx)
	m.registerCancel(jobID, cancel)
	defer m.clearCancel(jobID, cancel)

	started := m.clock.Now()
	ok, err := m.jobs.MarkRenderJobRunning(jobID, w.id, started.UnixNano())
	if err != nil {
		m.logf("worker %s: mark job %s running: %v", w.id, jobID, err)
		return
	}
	if !ok {
		return
	}

	w.setBusy(jobID)
	defer w.setIdle()
	m.logf("worker %s: job %s started (%dx%d, %d samples)", w.id, jobID, job.Width, job.Height, job.Samples)

	png, renderErr := m.renderScene(jobCtx, job)
	completed := m.clock.Now()

	switch {
	case renderErr == nil:
		durationMs := completed.Sub(started).Milliseconds()
		stored, err := m.jobs.CompleteRenderJob(jobID, completed.UnixNano(), durationMs, png)
		if err != nil {
			m.logf("worker %s: store job %s result: %v", w.id, jobID, err)
			return
		}
		if !stored {
			m.logf("worker %s: job %s finished after cancellation, dropping image", w.id, jobID)
			return
		}
		w.jobDone()
		m.logf("worker %s: job %s completed in %dms (%d byte png)", w.id, jobID, durationMs, len(png))

	case errors.Is(renderErr, context.Canceled) && ctx.Err() == nil:
		// Cancel already moved the row; nothing to write back.
		m.logf("worker %s: job %s cancelled mid-render", w.id, jobID)

	case errors.Is(renderErr, context.Canceled):
		m.failJob(jobID, completed, "render aborted: node shutting down")

	default:
		m.failJob(jobID, completed, renderErr.Error())
	}
}

// renderScene builds the scene's camera and field, renders the frame, and
// encodes it as PNG.
func (m *Manager) renderScene(ctx context.Context, job *RenderJob) ([]byte, error) {
	cfg, err := scene.ParseWithDefaults([]byte(job.SceneJSON), m.cfg.SceneDefaults)
	if err != nil {
		return nil, fmt.Errorf("parse scene: %w", err)
	}
	cam, fld, err := cfg.Build(m.loader)
	if err != nil {
		return nil, fmt.Errorf("build scene: %w", err)
	}
	r, err := render.NewRenderer(cfg.RenderConfig())
	if err != nil {
		return nil, fmt.Errorf("build renderer: %w", err)
	}

	img, err := r.RenderFrame(ctx, cam, fld)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := img.WritePNG(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (m *Manager) failJob(jobID string, at time.Time, msg string) {
	if err := m.jobs.FailRenderJob(jobID, at.UnixNano(), msg); err != nil {
		m.logf("failed to record job %s failure: %v", jobID, err)
		return
	}
	m.logf("job %s failed: %s", jobID, msg)
}

func (m *Manager) runHeartbeat(ctx context.Context, w *workerState) {
	ticker := m.clock.NewTicker(m.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			if err := m.workers.UpdateWorkerHeartbeat(w.record(now)); err != nil {
				m.logf("worker %s: heartbeat: %v", w.id, err)
			}
		}
	}
}

// runStaleSweep periodically marks workers whose heartbeat is older than
// StaleAfter. Live workers refresh themselves, so only rows left behind by
// dead runs are affected.
func (m *Manager) runStaleSweep(ctx context.Context) {
	ticker := m.clock.NewTicker(m.cfg.StaleCheckEvery)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			cutoff := now.Add(-m.cfg.StaleAfter)
			n, err := m.workers.MarkWorkersStale(cutoff.UnixNano())
			if err != nil {
				m.logf("stale worker sweep: %v", err)
				continue
			}
			if n > 0 {
				m.logf("marked %d worker(s) stale (no heartbeat since %s)", n, cutoff.Format(time.RFC3339))
			}
		}
	}
}
