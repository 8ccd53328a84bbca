package db

import (
	"testing"
	"time"

	"github.com/banshee-data/radiance.report/internal/jobs"
)

// newTestDB opens a migrated database in a per-test temp directory.
// A file-backed database is used rather than :memory: because the sql
// pool would otherwise hand each connection its own empty database.
func newTestDB(t *testing.T) *DB {
	t.Helper()

	database, err := NewDB(t.TempDir() + "/test.db")
	if err != nil {
		t.Fatalf("NewDB failed: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}

// seedTestJob inserts a queued render job and returns it.
func seedTestJob(t *testing.T, database *DB, jobID string) *jobs.RenderJob {
	t.Helper()

	j := &jobs.RenderJob{
		JobID:              jobID,
		Name:               "test scene",
		Status:             jobs.StatusQueued,
		SceneJSON:          `{"width":8,"height":8}`,
		Width:              8,
		Height:             8,
		Samples:            16,
		SubmittedUnixNanos: time.Now().UnixNano(),
	}
	if err := database.InsertRenderJob(j); err != nil {
		t.Fatalf("InsertRenderJob failed: %v", err)
	}
	return j
}

// seedTestWorker registers a worker row in the given state.
func seedTestWorker(t *testing.T, database *DB, workerID, state string, heartbeat time.Time) *jobs.WorkerRecord {
	t.Helper()

	w := &jobs.WorkerRecord{
		WorkerID:               workerID,
		State:                  state,
		StartedUnixNanos:       heartbeat.UnixNano(),
		LastHeartbeatUnixNanos: heartbeat.UnixNano(),
	}
	if err := database.RegisterWorker(w); err != nil {
		t.Fatalf("RegisterWorker failed: %v", err)
	}
	return w
}
