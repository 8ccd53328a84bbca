package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/banshee-data/radiance.report/internal/config"
	"github.com/banshee-data/radiance.report/internal/db"
	"github.com/banshee-data/radiance.report/internal/field/voxelgrid"
	"github.com/banshee-data/radiance.report/internal/jobs"
)

// testScene is a small voxel scene that parses and validates.
const testScene = `{
  "name": "red box",
  "width": 16, "height": 16, "samples": 8,
  "camera": {"position": [0, 0, 3], "target": [0, 0, 0]},
  "field": {"type": "voxel", "voxel": {"fill_density": 10, "fill_color": [1, 0, 0, 1]}}
}`

// testSamples holds two in-bounds samples, one out-of-bounds sample, and
// one malformed line.
const testSamples = `# x,y,z,r,g,b,density
0.0,0.0,0.0,1.0,0.2,0.2,8.0
0.5,0.5,0.5,0.2,1.0,0.2,4.0
5.0,5.0,5.0,0.2,0.2,1.0,4.0
not,a,sample
`

func setupTestServer(t *testing.T) (*Server, *db.DB) {
	t.Helper()
	return setupTestServerWithConfig(t, jobs.Config{})
}

func setupTestServerWithConfig(t *testing.T, cfg jobs.Config) (*Server, *db.DB) {
	t.Helper()
	dbInst := cloneAPITestDB(t)

	manager, err := jobs.NewManager(cfg, dbInst, dbInst, dbInst, nil)
	if err != nil {
		t.Fatalf("failed to build jobs manager: %v", err)
	}

	return NewServer(manager, dbInst, nil), dbInst
}

func decodeErrorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error body: %v", err)
	}
	return body["error"]
}

func submitTestJob(t *testing.T, mux *http.ServeMux, scene string) string {
	t.Helper()
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(scene)))
	if w.Code != http.StatusAccepted {
		t.Fatalf("submit: expected status 202, got %d: %s", w.Code, w.Body.String())
	}
	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode submit response: %v", err)
	}
	if resp["job_id"] == "" {
		t.Fatal("submit response has no job_id")
	}
	return resp["job_id"]
}

func TestHandleStatus(t *testing.T) {
	server, _ := setupTestServer(t)
	mux := server.ServeMux()

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/status", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q, want application/json", ct)
	}

	var st nodeStatus
	if err := json.NewDecoder(w.Body).Decode(&st); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if st.Version == "" {
		t.Error("Expected a version string")
	}
	if st.WorkerCount != 0 {
		t.Errorf("Expected 0 workers on a fresh node, got %d", st.WorkerCount)
	}
	if st.UptimeSeconds < 0 {
		t.Errorf("Expected non-negative uptime, got %f", st.UptimeSeconds)
	}
	if st.JobCounts == nil {
		t.Error("Expected job_counts to be present")
	}
}

func TestSubmitAndGetJob(t *testing.T) {
	server, _ := setupTestServer(t)
	mux := server.ServeMux()

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(testScene)))

	if w.Code != http.StatusAccepted {
		t.Fatalf("Expected status 202, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["job_id"] == "" {
		t.Fatal("Expected a job_id")
	}
	if resp["status"] != jobs.StatusQueued {
		t.Errorf("Expected status %q, got %q", jobs.StatusQueued, resp["status"])
	}

	// Job detail is served on the bare ID and on /status.
	for _, path := range []string{"/api/jobs/" + resp["job_id"], "/api/jobs/" + resp["job_id"] + "/status"} {
		w = httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))

		if w.Code != http.StatusOK {
			t.Fatalf("GET %s: expected status 200, got %d", path, w.Code)
		}
		var job jobs.RenderJob
		if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
			t.Fatalf("GET %s: failed to decode job: %v", path, err)
		}
		if job.JobID != resp["job_id"] {
			t.Errorf("GET %s: job_id = %q, want %q", path, job.JobID, resp["job_id"])
		}
		if job.Name != "red box" || job.Width != 16 || job.Height != 16 || job.Samples != 8 {
			t.Errorf("GET %s: job = %q %dx%d %d samples, want red box 16x16 8",
				path, job.Name, job.Width, job.Height, job.Samples)
		}
	}
}

func TestSubmitJobInvalidScene(t *testing.T) {
	server, _ := setupTestServer(t)
	mux := server.ServeMux()

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(`{"width": -1}`)))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("Expected status 400, got %d", w.Code)
	}
	if msg := decodeErrorBody(t, w); msg == "" {
		t.Error("Expected an error message")
	}
}

func TestSubmitJobQueueFull(t *testing.T) {
	server, _ := setupTestServerWithConfig(t, jobs.Config{QueueSize: 1})
	mux := server.ServeMux()

	// No worker pool is running, so the first job occupies the whole queue.
	submitTestJob(t, mux, testScene)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/jobs", strings.NewReader(testScene)))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("Expected status 503, got %d", w.Code)
	}
	if msg := decodeErrorBody(t, w); msg != "job queue full" {
		t.Errorf("error = %q, want %q", msg, "job queue full")
	}
}

func TestListJobs(t *testing.T) {
	server, _ := setupTestServer(t)
	mux := server.ServeMux()

	for i := 0; i < 3; i++ {
		scene := fmt.Sprintf(`{"name": "scene-%d", "width": 8, "height": 8, "samples": 4,
			"field": {"type": "voxel", "voxel": {"fill_density": 1}}}`, i)
		submitTestJob(t, mux, scene)
	}

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs?limit=2", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp struct {
		Jobs  []jobs.RenderJob `json:"jobs"`
		Count int              `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Count != 2 || len(resp.Jobs) != 2 {
		t.Fatalf("Expected 2 jobs, got count=%d len=%d", resp.Count, len(resp.Jobs))
	}
	// Most recent first.
	if resp.Jobs[0].Name != "scene-2" || resp.Jobs[1].Name != "scene-1" {
		t.Errorf("Expected [scene-2 scene-1], got [%s %s]", resp.Jobs[0].Name, resp.Jobs[1].Name)
	}
	// Listings omit the scene body.
	if resp.Jobs[0].SceneJSON != "" {
		t.Error("Expected scene_json omitted from listings")
	}
}

func TestListJobsInvalidLimit(t *testing.T) {
	server, _ := setupTestServer(t)

	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs?limit=banana", nil))
	if w.Code != http.StatusBadRequest {
		t.Errorf("Expected status 400, got %d", w.Code)
	}
}

func TestJobNotFound(t *testing.T) {
	server, _ := setupTestServer(t)
	mux := server.ServeMux()

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodGet, "/api/jobs/missing/status"},
		{http.MethodGet, "/api/jobs/missing/image"},
		{http.MethodDelete, "/api/jobs/missing"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != http.StatusNotFound {
			t.Errorf("%s %s: expected status 404, got %d", tc.method, tc.path, w.Code)
			continue
		}
		if msg := decodeErrorBody(t, w); msg != "Job not found" {
			t.Errorf("%s %s: error = %q, want %q", tc.method, tc.path, msg, "Job not found")
		}
	}
}

func TestJobUnknownSubPath(t *testing.T) {
	server, _ := setupTestServer(t)

	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/abc/frames", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("Expected status 404, got %d", w.Code)
	}
}

func TestJobImage(t *testing.T) {
	server, dbInst := setupTestServer(t)
	mux := server.ServeMux()

	jobID := submitTestJob(t, mux, testScene)

	// No image until the job completes.
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID+"/image", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("image before completion: expected status 404, got %d", w.Code)
	}
	if msg := decodeErrorBody(t, w); msg != "Image not ready" {
		t.Errorf("error = %q, want %q", msg, "Image not ready")
	}

	// Complete the job through the store.
	now := time.Now().UnixNano()
	if ok, err := dbInst.MarkRenderJobRunning(jobID, "worker-test", now); err != nil || !ok {
		t.Fatalf("MarkRenderJobRunning() = %v, %v", ok, err)
	}
	png := []byte{0x89, 'P', 'N', 'G', 0x0d, 0x0a, 0x1a, 0x0a, 1, 2, 3}
	if ok, err := dbInst.CompleteRenderJob(jobID, now+1000, 1, png); err != nil || !ok {
		t.Fatalf("CompleteRenderJob() = %v, %v", ok, err)
	}

	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID+"/image", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("image after completion: expected status 200, got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); ct != "image/png" {
		t.Errorf("Content-Type = %q, want image/png", ct)
	}
	if !bytes.Equal(w.Body.Bytes(), png) {
		t.Error("image bytes do not round trip")
	}
}

func TestCancelJob(t *testing.T) {
	server, _ := setupTestServer(t)
	mux := server.ServeMux()

	jobID := submitTestJob(t, mux, testScene)

	w := httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/jobs/"+jobID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d: %s", w.Code, w.Body.String())
	}

	var resp map[string]string
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp["status"] != "cancelled" || resp["job_id"] != jobID {
		t.Errorf("response = %v, want cancelled %s", resp, jobID)
	}

	// The job record reflects the cancellation.
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/jobs/"+jobID+"/status", nil))
	var job jobs.RenderJob
	if err := json.NewDecoder(w.Body).Decode(&job); err != nil {
		t.Fatalf("Failed to decode job: %v", err)
	}
	if job.Status != jobs.StatusCancelled {
		t.Errorf("job status = %q, want %q", job.Status, jobs.StatusCancelled)
	}

	// Cancelling a finished job conflicts.
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodDelete, "/api/jobs/"+jobID, nil))
	if w.Code != http.StatusConflict {
		t.Errorf("second cancel: expected status 409, got %d", w.Code)
	}
}

func TestHandleWorkers(t *testing.T) {
	server, dbInst := setupTestServer(t)

	now := time.Now().UnixNano()
	rec := &jobs.WorkerRecord{
		WorkerID:               "worker-0",
		State:                  jobs.WorkerIdle,
		StartedUnixNanos:       now,
		LastHeartbeatUnixNanos: now,
	}
	if err := dbInst.RegisterWorker(rec); err != nil {
		t.Fatalf("RegisterWorker() error: %v", err)
	}

	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/workers", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var resp struct {
		Workers []struct {
			WorkerID            string  `json:"worker_id"`
			State               string  `json:"state"`
			HeartbeatAgeSeconds float64 `json:"heartbeat_age_seconds"`
		} `json:"workers"`
		Count int `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if resp.Count != 1 || len(resp.Workers) != 1 {
		t.Fatalf("Expected 1 worker, got count=%d len=%d", resp.Count, len(resp.Workers))
	}
	if resp.Workers[0].WorkerID != "worker-0" || resp.Workers[0].State != jobs.WorkerIdle {
		t.Errorf("worker = %+v, want worker-0 idle", resp.Workers[0])
	}
	if age := resp.Workers[0].HeartbeatAgeSeconds; age < 0 || age > 60 {
		t.Errorf("heartbeat_age_seconds = %f, want a small non-negative age", age)
	}
}

func TestUploadFieldAndGet(t *testing.T) {
	server, _ := setupTestServer(t)
	mux := server.ServeMux()

	req := httptest.NewRequest(http.MethodPost, "/api/fields?nx=4&ny=4&nz=4&name=api-upload",
		strings.NewReader(testSamples))
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, req)
	if w.Code != http.StatusCreated {
		t.Fatalf("Expected status 201, got %d: %s", w.Code, w.Body.String())
	}

	var created struct {
		SnapshotID string `json:"snapshot_id"`
		Kept       int    `json:"kept"`
		Dropped    int    `json:"dropped"`
	}
	if err := json.NewDecoder(w.Body).Decode(&created); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if created.SnapshotID == "" {
		t.Fatal("Expected a snapshot_id")
	}
	if created.Kept != 2 {
		t.Errorf("kept = %d, want 2", created.Kept)
	}
	// One malformed line plus one out-of-bounds sample.
	if created.Dropped != 2 {
		t.Errorf("dropped = %d, want 2", created.Dropped)
	}

	// The snapshot shows up in the listing.
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/fields", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list: expected status 200, got %d", w.Code)
	}
	var list struct {
		Snapshots []voxelgrid.Snapshot `json:"snapshots"`
		Count     int                  `json:"count"`
	}
	if err := json.NewDecoder(w.Body).Decode(&list); err != nil {
		t.Fatalf("Failed to decode list response: %v", err)
	}
	if list.Count != 1 || len(list.Snapshots) != 1 {
		t.Fatalf("Expected 1 snapshot, got count=%d len=%d", list.Count, len(list.Snapshots))
	}
	if list.Snapshots[0].SnapshotID != created.SnapshotID {
		t.Errorf("listed snapshot_id = %q, want %q", list.Snapshots[0].SnapshotID, created.SnapshotID)
	}

	// Metadata by ID carries the geometry but not the blob.
	w = httptest.NewRecorder()
	mux.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/fields/"+created.SnapshotID, nil))
	if w.Code != http.StatusOK {
		t.Fatalf("get: expected status 200, got %d", w.Code)
	}
	var snap voxelgrid.Snapshot
	if err := json.NewDecoder(w.Body).Decode(&snap); err != nil {
		t.Fatalf("Failed to decode snapshot: %v", err)
	}
	if snap.Name != "api-upload" || snap.Source != "upload" {
		t.Errorf("snapshot = %q/%q, want api-upload/upload", snap.Name, snap.Source)
	}
	if snap.Nx != 4 || snap.Ny != 4 || snap.Nz != 4 {
		t.Errorf("snapshot resolution = (%d,%d,%d), want (4,4,4)", snap.Nx, snap.Ny, snap.Nz)
	}
	if snap.SampleCount != 2 {
		t.Errorf("sample_count = %d, want 2", snap.SampleCount)
	}
	if snap.BlobBytes <= 0 {
		t.Errorf("blob_bytes = %d, want positive", snap.BlobBytes)
	}
}

func TestUploadFieldBadRequest(t *testing.T) {
	server, _ := setupTestServer(t)
	mux := server.ServeMux()

	tests := []struct {
		name string
		url  string
		body string
	}{
		{"unparsable grid param", "/api/fields?nx=banana", testSamples},
		{"invalid grid geometry", "/api/fields?nx=0", testSamples},
		{"no usable samples", "/api/fields", "# header only\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			mux.ServeHTTP(w, httptest.NewRequest(http.MethodPost, tt.url, strings.NewReader(tt.body)))
			if w.Code != http.StatusBadRequest {
				t.Errorf("Expected status 400, got %d", w.Code)
			}
		})
	}
}

func TestFieldNotFound(t *testing.T) {
	server, _ := setupTestServer(t)

	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/fields/missing", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("Expected status 404, got %d", w.Code)
	}
	if msg := decodeErrorBody(t, w); msg != "Snapshot not found" {
		t.Errorf("error = %q, want %q", msg, "Snapshot not found")
	}
}

func TestHandleConfig(t *testing.T) {
	server, _ := setupTestServer(t)

	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var cfg config.TuningConfig
	if err := json.NewDecoder(w.Body).Decode(&cfg); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if cfg.ImageWidth == nil || *cfg.ImageWidth != 512 {
		t.Errorf("image_width = %v, want 512", cfg.ImageWidth)
	}
	if cfg.HeartbeatInterval == nil || *cfg.HeartbeatInterval != "5s" {
		t.Errorf("heartbeat_interval = %v, want '5s'", cfg.HeartbeatInterval)
	}
}

func TestHandleConfigCustomTuning(t *testing.T) {
	dbInst := cloneAPITestDB(t)
	manager, err := jobs.NewManager(jobs.Config{}, dbInst, dbInst, dbInst, nil)
	if err != nil {
		t.Fatalf("failed to build jobs manager: %v", err)
	}

	width := 128
	server := NewServer(manager, dbInst, &config.TuningConfig{ImageWidth: &width})

	w := httptest.NewRecorder()
	server.ServeMux().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/config", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}

	var cfg config.TuningConfig
	if err := json.NewDecoder(w.Body).Decode(&cfg); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	if cfg.ImageWidth == nil || *cfg.ImageWidth != 128 {
		t.Errorf("image_width = %v, want 128", cfg.ImageWidth)
	}
	// Focal length follows the overridden width.
	if cfg.FocalLength == nil || *cfg.FocalLength != 64 {
		t.Errorf("focal_length = %v, want 64", cfg.FocalLength)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	server, _ := setupTestServer(t)
	mux := server.ServeMux()

	cases := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/status"},
		{http.MethodDelete, "/api/jobs"},
		{http.MethodPost, "/api/workers"},
		{http.MethodDelete, "/api/fields"},
		{http.MethodPost, "/api/config"},
		{http.MethodPost, "/api/fields/some-id"},
		{http.MethodPut, "/api/jobs/some-id"},
	}
	for _, tc := range cases {
		w := httptest.NewRecorder()
		mux.ServeHTTP(w, httptest.NewRequest(tc.method, tc.path, nil))
		if w.Code != http.StatusMethodNotAllowed {
			t.Errorf("%s %s: expected status 405, got %d", tc.method, tc.path, w.Code)
		}
	}
}

func TestStatusCodeColor(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, colorBoldGreen + "200" + colorReset},
		{302, colorYellow + "302" + colorReset},
		{404, colorBoldRed + "404" + colorReset},
		{500, colorBoldRed + "500" + colorReset},
		{100, "100"},
	}
	for _, tt := range tests {
		if got := statusCodeColor(tt.code); got != tt.want {
			t.Errorf("statusCodeColor(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}

func TestLoggingMiddlewarePreservesResponse(t *testing.T) {
	handler := LoggingMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		fmt.Fprint(w, "short and stout")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/anything", nil))

	if w.Code != http.StatusTeapot {
		t.Errorf("Expected status 418, got %d", w.Code)
	}
	if w.Body.String() != "short and stout" {
		t.Errorf("body = %q, want %q", w.Body.String(), "short and stout")
	}
}
