// Command renderd runs the radiance field render node: a job manager with a
// worker pool, the HTTP API for submitting and fetching renders, and a
// monitor server with debug charts and the database console.
//
// Run database migrations with:
//
//	renderd migrate up
package main

import (
	"context"
	"flag"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/banshee-data/radiance.report/internal/api"
	"github.com/banshee-data/radiance.report/internal/config"
	"github.com/banshee-data/radiance.report/internal/db"
	"github.com/banshee-data/radiance.report/internal/jobs"
	"github.com/banshee-data/radiance.report/internal/monitor"
	"github.com/banshee-data/radiance.report/internal/scene"
	"github.com/banshee-data/radiance.report/internal/version"
)

var (
	listenAddr         = flag.String("listen", ":8080", "HTTP listen address for the render API")
	debugListenAddr    = flag.String("debug-listen", ":8081", "HTTP listen address for the monitor and debug pages")
	dbPath             = flag.String("db", "render_data.db", "Path to SQLite database file")
	configPath         = flag.String("config", "", "Path to a tuning config JSON file (compiled-in defaults when empty)")
	workerCount        = flag.Int("workers", 0, "Render worker count, overrides the tuning config when positive")
	skipMigrationCheck = flag.Bool("skip-migration-check", false, "Skip database migration version check at startup")
)

// jobConfig maps the tuning knobs onto the job manager configuration,
// including the scene fallbacks, so the config file governs what omitted
// scene fields render as. The -workers flag wins over the config file so
// operators can resize the pool without editing JSON.
func jobConfig(tuning *config.TuningConfig) jobs.Config {
	cfg := jobs.Config{
		Workers:           tuning.GetWorkers(),
		QueueSize:         tuning.GetQueueSize(),
		HeartbeatInterval: tuning.GetHeartbeatInterval(),
		StaleAfter:        tuning.GetStaleAfter(),
		StaleCheckEvery:   tuning.GetStaleCheckEvery(),
		SceneDefaults:     scene.DefaultsFromTuning(tuning),
	}
	if *workerCount > 0 {
		cfg.Workers = *workerCount
	}
	return cfg
}

func main() {
	// The migrate subcommand is dispatched before flag parsing so that
	// "renderd migrate up" works without the server flags.
	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		migrateFlags := flag.NewFlagSet("migrate", flag.ExitOnError)
		migrateDB := migrateFlags.String("db", "render_data.db", "Path to SQLite database file")
		migrateFlags.Parse(os.Args[2:])
		db.RunMigrateCommand(migrateFlags.Args(), *migrateDB)
		return
	}

	flag.Parse()

	if *listenAddr == "" {
		log.Fatal("HTTP listen address is required")
	}

	log.Printf("renderd %s (%s)", version.Version, version.GitSHA)

	var tuning *config.TuningConfig
	if *configPath != "" {
		var err error
		tuning, err = config.LoadTuningConfig(*configPath)
		if err != nil {
			log.Fatalf("Failed to load tuning config: %v", err)
		}
		log.Printf("Loaded tuning config from %s", *configPath)
	} else {
		tuning = config.DefaultTuningConfig()
	}

	database, err := db.NewDBWithMigrationCheck(*dbPath, *skipMigrationCheck)
	if err != nil {
		log.Fatalf("Failed to initialize database: %v", err)
	}
	defer database.Close()

	manager, err := jobs.NewManager(jobConfig(tuning), database, database, database, nil)
	if err != nil {
		log.Fatalf("Failed to create job manager: %v", err)
	}

	// Create a context that cancels on SIGINT or SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var wg sync.WaitGroup

	// Worker pool goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		manager.Run(ctx)
		log.Printf("Worker pool stopped")
	}()

	// Monitor server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()
		monitorServer := monitor.NewWebServer(monitor.WebServerConfig{
			Address: *debugListenAddr,
			DB:      database,
			Manager: manager,
		})
		if err := monitorServer.Start(ctx); err != nil {
			log.Printf("Monitor server error: %v", err)
		}
	}()

	// API server goroutine
	wg.Add(1)
	go func() {
		defer wg.Done()

		apiServer := api.NewServer(manager, database, tuning)
		server := &http.Server{
			Addr:    *listenAddr,
			Handler: api.LoggingMiddleware(apiServer.ServeMux()),
		}

		// Start server in a goroutine so it doesn't block
		go func() {
			log.Printf("Starting API server on %s", *listenAddr)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				log.Fatalf("Failed to start API server: %v", err)
			}
		}()

		// Wait for context cancellation to shut down server
		<-ctx.Done()
		log.Println("shutting down API server...")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Printf("API server shutdown error: %v", err)
		}

		log.Printf("API server routine stopped")
	}()

	// Wait for all goroutines to finish
	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
