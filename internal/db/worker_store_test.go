package db

import (
	"testing"
	"time"

	"github.com/banshee-data/radiance.report/internal/jobs"
)

func TestRegisterAndListWorkers(t *testing.T) {
	db := newTestDB(t)

	now := time.Now()
	seedTestWorker(t, db, "worker-2", jobs.WorkerIdle, now)
	seedTestWorker(t, db, "worker-1", jobs.WorkerBusy, now)

	workers, err := db.ListWorkers()
	if err != nil {
		t.Fatalf("ListWorkers failed: %v", err)
	}
	if len(workers) != 2 {
		t.Fatalf("expected 2 workers, got %d", len(workers))
	}
	if workers[0].WorkerID != "worker-1" || workers[1].WorkerID != "worker-2" {
		t.Errorf("expected workers ordered by ID, got %s then %s",
			workers[0].WorkerID, workers[1].WorkerID)
	}
	if workers[0].State != jobs.WorkerBusy {
		t.Errorf("expected worker-1 busy, got %s", workers[0].State)
	}
}

func TestRegisterWorkerReplacesPreviousRun(t *testing.T) {
	db := newTestDB(t)

	old := time.Now().Add(-time.Hour)
	seedTestWorker(t, db, "worker-1", jobs.WorkerStale, old)

	// A restart re-registers under the same ID.
	now := time.Now()
	seedTestWorker(t, db, "worker-1", jobs.WorkerIdle, now)

	workers, err := db.ListWorkers()
	if err != nil {
		t.Fatalf("ListWorkers failed: %v", err)
	}
	if len(workers) != 1 {
		t.Fatalf("expected 1 worker row, got %d", len(workers))
	}
	if workers[0].State != jobs.WorkerIdle {
		t.Errorf("expected re-registered worker idle, got %s", workers[0].State)
	}
	if workers[0].LastHeartbeatUnixNanos != now.UnixNano() {
		t.Error("expected heartbeat from the new registration")
	}
}

func TestUpdateWorkerHeartbeat(t *testing.T) {
	db := newTestDB(t)

	start := time.Now()
	w := seedTestWorker(t, db, "worker-1", jobs.WorkerIdle, start)

	jobID := "job-9"
	w.State = jobs.WorkerBusy
	w.CurrentJobID = &jobID
	w.JobsCompleted = 3
	w.LastHeartbeatUnixNanos = start.Add(5 * time.Second).UnixNano()
	if err := db.UpdateWorkerHeartbeat(w); err != nil {
		t.Fatalf("UpdateWorkerHeartbeat failed: %v", err)
	}

	workers, err := db.ListWorkers()
	if err != nil {
		t.Fatalf("ListWorkers failed: %v", err)
	}
	got := workers[0]
	if got.State != jobs.WorkerBusy {
		t.Errorf("expected busy, got %s", got.State)
	}
	if got.CurrentJobID == nil || *got.CurrentJobID != "job-9" {
		t.Errorf("expected current job job-9, got %v", got.CurrentJobID)
	}
	if got.JobsCompleted != 3 {
		t.Errorf("expected 3 completed jobs, got %d", got.JobsCompleted)
	}
	if got.LastHeartbeatUnixNanos != w.LastHeartbeatUnixNanos {
		t.Error("heartbeat time was not updated")
	}
}

func TestMarkWorkersStale(t *testing.T) {
	db := newTestDB(t)

	now := time.Now()
	seedTestWorker(t, db, "worker-dead", jobs.WorkerIdle, now.Add(-10*time.Minute))
	seedTestWorker(t, db, "worker-live", jobs.WorkerBusy, now)
	seedTestWorker(t, db, "worker-stopped", jobs.WorkerStopped, now.Add(-10*time.Minute))

	cutoff := now.Add(-5 * time.Minute).UnixNano()
	marked, err := db.MarkWorkersStale(cutoff)
	if err != nil {
		t.Fatalf("MarkWorkersStale failed: %v", err)
	}
	if marked != 1 {
		t.Errorf("expected 1 worker marked stale, got %d", marked)
	}

	workers, err := db.ListWorkers()
	if err != nil {
		t.Fatalf("ListWorkers failed: %v", err)
	}
	states := map[string]string{}
	for _, w := range workers {
		states[w.WorkerID] = w.State
	}
	if states["worker-dead"] != jobs.WorkerStale {
		t.Errorf("expected worker-dead stale, got %s", states["worker-dead"])
	}
	if states["worker-live"] != jobs.WorkerBusy {
		t.Errorf("expected worker-live untouched, got %s", states["worker-live"])
	}
	// Stopped workers are not re-flagged.
	if states["worker-stopped"] != jobs.WorkerStopped {
		t.Errorf("expected worker-stopped untouched, got %s", states["worker-stopped"])
	}
}

func TestMarkWorkerStopped(t *testing.T) {
	db := newTestDB(t)

	start := time.Now()
	w := seedTestWorker(t, db, "worker-1", jobs.WorkerBusy, start)
	jobID := "job-1"
	w.CurrentJobID = &jobID
	if err := db.UpdateWorkerHeartbeat(w); err != nil {
		t.Fatalf("UpdateWorkerHeartbeat failed: %v", err)
	}

	stoppedAt := start.Add(time.Minute).UnixNano()
	if err := db.MarkWorkerStopped("worker-1", stoppedAt); err != nil {
		t.Fatalf("MarkWorkerStopped failed: %v", err)
	}

	workers, err := db.ListWorkers()
	if err != nil {
		t.Fatalf("ListWorkers failed: %v", err)
	}
	got := workers[0]
	if got.State != jobs.WorkerStopped {
		t.Errorf("expected stopped, got %s", got.State)
	}
	if got.CurrentJobID != nil {
		t.Errorf("expected current job cleared, got %v", *got.CurrentJobID)
	}
	if got.LastHeartbeatUnixNanos != stoppedAt {
		t.Error("expected heartbeat set to stop time")
	}
}
