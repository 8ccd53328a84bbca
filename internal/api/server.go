// Package api serves the render node's HTTP surface: job submission and
// inspection, worker liveness, field snapshot uploads, and the effective
// tuning config. All endpoints speak JSON except the rendered PNG.
package api

import (
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/radiance.report/internal/aggregate"
	"github.com/banshee-data/radiance.report/internal/config"
	"github.com/banshee-data/radiance.report/internal/db"
	"github.com/banshee-data/radiance.report/internal/field/voxelgrid"
	"github.com/banshee-data/radiance.report/internal/httputil"
	"github.com/banshee-data/radiance.report/internal/jobs"
	"github.com/banshee-data/radiance.report/internal/version"
)

// ANSI escape codes for cyan and reset
const colorCyan = "\033[36m"
const colorReset = "\033[0m"
const colorYellow = "\033[33m"
const colorBoldGreen = "\033[1;32m"
const colorBoldRed = "\033[1;31m"

// maxSceneBody caps the request body for job submissions (scene JSON).
const maxSceneBody = 1 << 20 // 1MB

// maxSampleBody caps the request body for field sample uploads.
const maxSampleBody = 64 << 20 // 64MB

type Server struct {
	manager *jobs.Manager
	db      *db.DB
	tuning  *config.TuningConfig
	started time.Time
}

// NewServer wires the HTTP surface to the job manager, the database, and
// the tuning config served by /api/config. A nil tuning config serves
// the built-in defaults.
func NewServer(manager *jobs.Manager, database *db.DB, tuning *config.TuningConfig) *Server {
	if tuning == nil {
		tuning = config.EmptyTuningConfig()
	}
	return &Server{
		manager: manager,
		db:      database,
		tuning:  tuning,
		started: time.Now(),
	}
}

type loggingResponseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (lrw *loggingResponseWriter) WriteHeader(code int) {
	lrw.statusCode = code
	lrw.ResponseWriter.WriteHeader(code)
}

func (lrw *loggingResponseWriter) Flush() {
	if flusher, ok := lrw.ResponseWriter.(http.Flusher); ok {
		flusher.Flush()
	}
}

func statusCodeColor(statusCode int) string {
	switch {
	case statusCode >= 200 && statusCode < 300:
		return colorBoldGreen + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 300 && statusCode < 400:
		return colorYellow + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 400 && statusCode < 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	case statusCode >= 500:
		return colorBoldRed + strconv.Itoa(statusCode) + colorReset
	default:
		return strconv.Itoa(statusCode)
	}
}

// LoggingMiddleware logs method, path, query, status, and duration
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		lrw := &loggingResponseWriter{w, http.StatusOK}
		next.ServeHTTP(lrw, r)
		log.Printf(
			"[%s] %s %s%s%s %vms",
			statusCodeColor(lrw.statusCode), r.Method,
			colorCyan, r.RequestURI, colorReset,
			float64(time.Since(start).Nanoseconds())/1e6,
		)
	})
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/jobs", s.handleJobs)
	mux.HandleFunc("/api/jobs/", s.handleJobByID)
	mux.HandleFunc("/api/workers", s.handleWorkers)
	mux.HandleFunc("/api/fields", s.handleFields)
	mux.HandleFunc("/api/fields/", s.handleFieldByID)
	mux.HandleFunc("/api/config", s.handleConfig)
	return mux
}

// nodeStatus is the /api/status response body.
type nodeStatus struct {
	Version       string         `json:"version"`
	GitSHA        string         `json:"git_sha"`
	UptimeSeconds float64        `json:"uptime_seconds"`
	JobCounts     map[string]int `json:"job_counts"`
	WorkerCount   int            `json:"worker_count"`
	QueueDepth    int            `json:"queue_depth"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	st, err := s.manager.Status()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to read status: %v", err))
		return
	}

	httputil.WriteJSONOK(w, nodeStatus{
		Version:       version.Version,
		GitSHA:        version.GitSHA,
		UptimeSeconds: time.Since(s.started).Seconds(),
		JobCounts:     st.JobCounts,
		WorkerCount:   st.WorkerCount,
		QueueDepth:    st.QueueDepth,
	})
}

// handleJobs handles list and submit operations.
func (s *Server) handleJobs(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListJobs(w, r)
	case http.MethodPost:
		s.handleSubmitJob(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleListJobs(w http.ResponseWriter, r *http.Request) {
	limit := 0
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			httputil.BadRequest(w, fmt.Sprintf("invalid limit %q", v))
			return
		}
		limit = n
	}

	list, err := s.manager.Jobs(limit)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list jobs: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"jobs":  list,
		"count": len(list),
	})
}

func (s *Server) handleSubmitJob(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxSceneBody))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("failed to read scene config: %v", err))
		return
	}

	job, err := s.manager.Submit(body)
	if errors.Is(err, jobs.ErrInvalidScene) {
		httputil.BadRequest(w, err.Error())
		return
	}
	if errors.Is(err, jobs.ErrQueueFull) {
		httputil.ServiceUnavailable(w, "job queue full")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to submit job: %v", err))
		return
	}

	httputil.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": job.Status,
	})
}

// handleJobByID routes /api/jobs/{id}, /api/jobs/{id}/status, and
// /api/jobs/{id}/image.
func (s *Server) handleJobByID(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	parts := strings.SplitN(rest, "/", 2)
	jobID := strings.TrimSpace(parts[0])
	sub := ""
	if len(parts) == 2 {
		sub = parts[1]
	}

	if jobID == "" {
		httputil.BadRequest(w, "job_id is required")
		return
	}

	switch sub {
	case "":
		switch r.Method {
		case http.MethodGet:
			s.handleJobStatus(w, jobID)
		case http.MethodDelete:
			s.handleCancelJob(w, jobID)
		default:
			httputil.MethodNotAllowed(w)
		}
	case "status":
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		s.handleJobStatus(w, jobID)
	case "image":
		if r.Method != http.MethodGet {
			httputil.MethodNotAllowed(w)
			return
		}
		s.handleJobImage(w, jobID)
	default:
		httputil.NotFound(w, fmt.Sprintf("unknown job endpoint %q", sub))
	}
}

func (s *Server) handleJobStatus(w http.ResponseWriter, jobID string) {
	job, err := s.manager.Job(jobID)
	if errors.Is(err, jobs.ErrNotFound) {
		httputil.NotFound(w, "Job not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load job: %v", err))
		return
	}
	httputil.WriteJSONOK(w, job)
}

func (s *Server) handleJobImage(w http.ResponseWriter, jobID string) {
	png, err := s.manager.JobImage(jobID)
	if errors.Is(err, jobs.ErrNotFound) {
		httputil.NotFound(w, "Job not found")
		return
	}
	if errors.Is(err, jobs.ErrNoImage) {
		httputil.NotFound(w, "Image not ready")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load image: %v", err))
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Content-Length", strconv.Itoa(len(png)))
	w.Write(png)
}

func (s *Server) handleCancelJob(w http.ResponseWriter, jobID string) {
	err := s.manager.Cancel(jobID)
	if errors.Is(err, jobs.ErrNotFound) {
		httputil.NotFound(w, "Job not found")
		return
	}
	if errors.Is(err, jobs.ErrJobFinished) {
		httputil.Conflict(w, err.Error())
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to cancel job: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]string{
		"status": "cancelled",
		"job_id": jobID,
	})
}

// workerStatus decorates a worker record with its heartbeat age so
// clients don't have to compare nanosecond clocks themselves.
type workerStatus struct {
	*jobs.WorkerRecord
	HeartbeatAgeSeconds float64 `json:"heartbeat_age_seconds"`
}

func (s *Server) handleWorkers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	records, err := s.manager.Workers()
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list workers: %v", err))
		return
	}

	now := time.Now().UnixNano()
	workers := make([]workerStatus, 0, len(records))
	for _, rec := range records {
		age := float64(now-rec.LastHeartbeatUnixNanos) / 1e9
		if age < 0 {
			age = 0
		}
		workers = append(workers, workerStatus{WorkerRecord: rec, HeartbeatAgeSeconds: age})
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"workers": workers,
		"count":   len(workers),
	})
}

// handleFields handles snapshot list and sample upload operations.
func (s *Server) handleFields(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListFields(w, r)
	case http.MethodPost:
		s.handleUploadField(w, r)
	default:
		httputil.MethodNotAllowed(w)
	}
}

func (s *Server) handleListFields(w http.ResponseWriter, r *http.Request) {
	snaps, err := s.db.ListGridSnapshots(-1)
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to list snapshots: %v", err))
		return
	}

	httputil.WriteJSONOK(w, map[string]interface{}{
		"snapshots": snaps,
		"count":     len(snaps),
	})
}

// handleUploadField parses a text sample body, merges it into a voxel
// grid sized by the query params, and persists the result as a snapshot.
func (s *Server) handleUploadField(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	cfg := aggregate.DefaultGridConfig()

	var err error
	if cfg.Nx, err = intParam(q, "nx", cfg.Nx); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if cfg.Ny, err = intParam(q, "ny", cfg.Ny); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if cfg.Nz, err = intParam(q, "nz", cfg.Nz); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if cfg.BoundsMin.X, err = floatParam(q, "min_x", cfg.BoundsMin.X); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if cfg.BoundsMin.Y, err = floatParam(q, "min_y", cfg.BoundsMin.Y); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if cfg.BoundsMin.Z, err = floatParam(q, "min_z", cfg.BoundsMin.Z); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if cfg.BoundsMax.X, err = floatParam(q, "max_x", cfg.BoundsMax.X); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if cfg.BoundsMax.Y, err = floatParam(q, "max_y", cfg.BoundsMax.Y); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}
	if cfg.BoundsMax.Z, err = floatParam(q, "max_z", cfg.BoundsMax.Z); err != nil {
		httputil.BadRequest(w, err.Error())
		return
	}

	name := q.Get("name")
	if name == "" {
		name = "upload"
	}

	samples, malformed, err := aggregate.ParseSamples(http.MaxBytesReader(w, r.Body, maxSampleBody))
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("failed to read samples: %v", err))
		return
	}
	if len(samples) == 0 {
		httputil.BadRequest(w, "no parsable samples in request body")
		return
	}

	res, err := aggregate.BuildGrid(cfg, samples)
	if err != nil {
		httputil.BadRequest(w, fmt.Sprintf("failed to build grid: %v", err))
		return
	}

	snapshotID, err := res.Grid.Persist(s.db, name, "upload", int64(res.Kept))
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to persist snapshot: %v", err))
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, map[string]interface{}{
		"snapshot_id": snapshotID,
		"kept":        res.Kept,
		"dropped":     malformed + res.Dropped,
	})
}

// handleFieldByID serves snapshot metadata; the grid blob itself never
// leaves the database through this endpoint.
func (s *Server) handleFieldByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/fields/")
	snapshotID := strings.TrimSpace(path)

	if snapshotID == "" {
		httputil.BadRequest(w, "snapshot_id is required")
		return
	}
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}

	snap, err := s.db.GetGridSnapshot(snapshotID)
	if errors.Is(err, voxelgrid.ErrSnapshotNotFound) {
		httputil.NotFound(w, "Snapshot not found")
		return
	}
	if err != nil {
		httputil.InternalServerError(w, fmt.Sprintf("failed to load snapshot: %v", err))
		return
	}

	httputil.WriteJSONOK(w, snap)
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		httputil.MethodNotAllowed(w)
		return
	}
	httputil.WriteJSONOK(w, s.tuning.Effective())
}

func intParam(q url.Values, key string, def int) (int, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return n, nil
}

func floatParam(q url.Values, key string, def float64) (float64, error) {
	v := q.Get(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", key, v)
	}
	return f, nil
}
