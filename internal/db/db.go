// Package db stores render jobs, worker heartbeats, and voxel grid
// snapshots in a single SQLite file. The schema is managed by embedded
// migrations; DB implements the store interfaces the jobs and voxelgrid
// packages define.
package db

import (
	"compress/gzip"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/tailscale/tailsql/server/tailsql"
	_ "modernc.org/sqlite"
	"tailscale.com/tsweb"
)

type DB struct {
	*sql.DB
}

// OpenDB opens the database and applies connection pragmas without touching
// the schema. Callers that need the schema current should use NewDB or
// NewDBWithMigrationCheck instead.
func OpenDB(path string) (*DB, error) {
	sqlDB, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := applyPragmas(sqlDB); err != nil {
		sqlDB.Close()
		return nil, err
	}

	return &DB{sqlDB}, nil
}

// applyPragmas sets the connection pragmas every open path needs. WAL keeps
// readers from blocking the render workers' writes, and the busy timeout
// covers the brief lock contention between the job queue and the API.
func applyPragmas(sqlDB *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA temp_store=MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := sqlDB.Exec(pragma); err != nil {
			return fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return nil
}

// NewDB opens the database and brings the schema up to the latest migration
// version. Fresh database files are bootstrapped, current ones are left
// untouched.
func NewDB(path string) (*DB, error) {
	database, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	migFS, err := getMigrationsFS()
	if err != nil {
		database.Close()
		return nil, err
	}

	if err := database.MigrateUp(migFS); err != nil {
		database.Close()
		return nil, err
	}

	return database, nil
}

// NewDBWithMigrationCheck opens the database and verifies the schema is
// current before returning it. A brand new database file is migrated
// automatically; an existing database that is behind the latest migration
// fails with instructions rather than being upgraded silently. Pass
// skipMigrationCheck to open regardless of schema version.
func NewDBWithMigrationCheck(path string, skipMigrationCheck bool) (*DB, error) {
	database, err := OpenDB(path)
	if err != nil {
		return nil, err
	}

	if skipMigrationCheck {
		return database, nil
	}

	migFS, err := getMigrationsFS()
	if err != nil {
		database.Close()
		return nil, err
	}

	// Probe sqlite_master directly: the migrate machinery creates the
	// schema_migrations table as a side effect of being asked.
	var hasMigrationsTable bool
	err = database.QueryRow(`
		SELECT COUNT(*) > 0
		FROM sqlite_master
		WHERE type='table' AND name='schema_migrations'
	`).Scan(&hasMigrationsTable)
	if err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to check for schema_migrations table: %w", err)
	}

	if !hasMigrationsTable {
		// Fresh database file. Bootstrap the schema.
		if err := database.MigrateUp(migFS); err != nil {
			database.Close()
			return nil, err
		}
		return database, nil
	}

	shouldExit, err := database.CheckAndPromptMigrations(migFS)
	if shouldExit || err != nil {
		database.Close()
		return nil, err
	}

	return database, nil
}

// AttachAdminRoutes mounts the debug surface for the database on mux: a
// tailSQL console for live queries and a one-click gzip'd backup download.
func (db *DB) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)
	// create a tailSQL instance and point it to our DB
	tsql, err := tailsql.NewServer(tailsql.Options{
		RoutePrefix: "/debug/tailsql/",
	})
	if err != nil {
		log.Fatalf("failed to create tailsql server: %v", err)
	}
	tsql.SetDB("sqlite://render.db", db.DB, &tailsql.DBOptions{
		Label: "Render DB",
	})

	// mount the tailSQL server on the debug /tailsql path
	debug.Handle("tailsql/", "SQL live debugging", tsql.NewMux())

	debug.Handle("db-stats", "Database size and per-table row counts", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		stats, err := db.GetDatabaseStats()
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to get database stats: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(stats); err != nil {
			log.Printf("Failed to encode database stats: %v", err)
		}
	}))

	debug.Handle("backup", "Create and download a backup of the database now", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		unixTime := time.Now().Unix()
		backupPath := fmt.Sprintf("backup-%d.db", unixTime)
		if _, err := db.DB.Exec("VACUUM INTO ?", backupPath); err != nil {
			http.Error(w, fmt.Sprintf("Failed to create backup: %v", err), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%s", backupPath))
		w.Header().Set("Content-Type", "application/octet-stream")
		w.Header().Set("Content-Encoding", "gzip")

		// Send the backup file to the client
		backupFile, err := os.Open(backupPath)
		if err != nil {
			http.Error(w, fmt.Sprintf("Failed to open backup file: %v", err), http.StatusInternalServerError)
			return
		}

		// close the backup file after sending it
		// and remove it from the filesystem
		defer func() {
			backupFile.Close()
			if err := os.Remove(backupPath); err != nil {
				log.Printf("Failed to remove backup file: %v", err)
			}
		}()

		gzipWriter := gzip.NewWriter(w)
		defer gzipWriter.Close()

		// Copy the backup file content to the gzip writer
		if _, err := io.Copy(gzipWriter, backupFile); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write backup file: %v", err), http.StatusInternalServerError)
			return
		}
	}))
}
