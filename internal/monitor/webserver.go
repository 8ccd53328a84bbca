// Package monitor serves the render node's debug surface over HTTP: a
// status page, health checks, voxel grid charts, ray profile plots, and
// the database console mounted under /debug/.
package monitor

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log"
	"net/http"
	"time"

	"github.com/banshee-data/radiance.report/internal/db"
	"github.com/banshee-data/radiance.report/internal/jobs"
	"github.com/banshee-data/radiance.report/internal/version"
)

//go:embed status.html
var StatusHTML embed.FS

// WebServer handles the HTTP interface for monitoring the render node.
// It provides endpoints for health checks and real-time status information.
type WebServer struct {
	address string
	server  *http.Server
	db      *db.DB
	manager *jobs.Manager
	started time.Time
}

// WebServerConfig contains configuration options for the web server.
// DB and Manager are both optional; endpoints that need them report an
// error when they are absent.
type WebServerConfig struct {
	Address string
	DB      *db.DB
	Manager *jobs.Manager
}

// NewWebServer creates a new web server with the provided configuration
func NewWebServer(cfg WebServerConfig) *WebServer {
	ws := &WebServer{
		address: cfg.Address,
		db:      cfg.DB,
		manager: cfg.Manager,
		started: time.Now(),
	}

	ws.server = &http.Server{
		Addr:    ws.address,
		Handler: ws.setupRoutes(),
	}

	return ws
}

func (ws *WebServer) writeJSONError(w http.ResponseWriter, status int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": msg})
}

// Start begins the HTTP server in a goroutine and handles graceful shutdown
func (ws *WebServer) Start(ctx context.Context) error {
	// Start server in a goroutine so it doesn't block
	go func() {
		log.Printf("Starting monitor HTTP server on %s", ws.address)
		if err := ws.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("failed to start monitor server: %v", err)
		}
	}()

	// Wait for context cancellation to shut down server
	<-ctx.Done()
	log.Println("shutting down monitor HTTP server...")

	// Create a shutdown context with a shorter timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	if err := ws.server.Shutdown(shutdownCtx); err != nil {
		log.Printf("monitor HTTP server shutdown error: %v", err)
		// Force close the server if graceful shutdown fails
		if err := ws.server.Close(); err != nil {
			log.Printf("monitor HTTP server force close error: %v", err)
		}
	}

	log.Printf("monitor HTTP server routine stopped")
	return nil
}

// setupRoutes configures the HTTP routes and handlers
func (ws *WebServer) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/health", ws.handleHealth)
	mux.HandleFunc("/", ws.handleStatus)
	mux.HandleFunc("/debug/charts/grid-slice", ws.handleGridSliceChart)
	mux.HandleFunc("/debug/charts/density-histogram", ws.handleDensityHistogramChart)
	mux.HandleFunc("/debug/charts/ray-profile", ws.handleRayProfileDashboard)
	mux.HandleFunc("/debug/plots/ray-profile.png", ws.handleRayProfilePlot)
	mux.HandleFunc("/debug/export/grid-asc", ws.handleExportGridASC)

	if ws.db != nil {
		ws.db.AttachAdminRoutes(mux)
	}

	return mux
}

// handleHealth handles the health check endpoint
func (ws *WebServer) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{"status": "ok", "service": "render", "timestamp": "%s"}`, time.Now().UTC().Format(time.RFC3339))
}

// snapshotRow is one line of the status page snapshot table, preformatted
// so the template stays dumb.
type snapshotRow struct {
	SnapshotID  string
	Name        string
	Resolution  string
	Taken       string
	SampleCount int64
	BlobBytes   int64
}

// handleStatus handles the main status page endpoint
func (ws *WebServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/html")

	jobCounts := map[string]int{}
	workerCount := 0
	queueDepth := 0
	if ws.manager != nil {
		st, err := ws.manager.Status()
		if err != nil {
			log.Printf("status page: manager status error: %v", err)
		} else {
			jobCounts = st.JobCounts
			workerCount = st.WorkerCount
			queueDepth = st.QueueDepth
		}
	}

	var snapRows []snapshotRow
	if ws.db != nil {
		snaps, err := ws.db.ListGridSnapshots(5)
		if err != nil {
			log.Printf("status page: list snapshots error: %v", err)
		}
		for _, s := range snaps {
			snapRows = append(snapRows, snapshotRow{
				SnapshotID:  s.SnapshotID,
				Name:        s.Name,
				Resolution:  fmt.Sprintf("%dx%dx%d", s.Nx, s.Ny, s.Nz),
				Taken:       time.Unix(0, s.TakenUnixNanos).UTC().Format(time.RFC3339),
				SampleCount: s.SampleCount,
				BlobBytes:   s.BlobBytes,
			})
		}
	}

	// Load and parse the HTML template from embedded filesystem
	tmpl, err := template.ParseFS(StatusHTML, "status.html")
	if err != nil {
		http.Error(w, "Error loading template: "+err.Error(), http.StatusInternalServerError)
		return
	}

	// Template data
	data := struct {
		HTTPAddress string
		Version     string
		GitSHA      string
		Uptime      string
		JobCounts   map[string]int
		WorkerCount int
		QueueDepth  int
		Snapshots   []snapshotRow
		HasDB       bool
		HasManager  bool
	}{
		HTTPAddress: ws.address,
		Version:     version.Version,
		GitSHA:      version.GitSHA,
		Uptime:      time.Since(ws.started).Round(time.Second).String(),
		JobCounts:   jobCounts,
		WorkerCount: workerCount,
		QueueDepth:  queueDepth,
		Snapshots:   snapRows,
		HasDB:       ws.db != nil,
		HasManager:  ws.manager != nil,
	}

	if err := tmpl.Execute(w, data); err != nil {
		http.Error(w, "Error executing template: "+err.Error(), http.StatusInternalServerError)
		return
	}
}

// Close shuts down the web server
func (ws *WebServer) Close() error {
	if ws.server != nil {
		return ws.server.Close()
	}
	return nil
}
