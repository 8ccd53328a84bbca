package db

import (
	"embed"
	"fmt"
	"io/fs"
	"os"
)

// DevMode switches migration loading from the embedded copy to the on-disk
// migrations directory, so schema changes can be iterated on without a
// rebuild. Leave it false in production builds.
var DevMode bool

// devMigrationsDir is where migrations live relative to the repo root.
const devMigrationsDir = "internal/db/migrations"

//go:embed migrations
var migrationsFS embed.FS

// getMigrationsFS returns the migrations as a filesystem rooted at the
// directory containing the .sql files.
func getMigrationsFS() (fs.FS, error) {
	if DevMode {
		if _, err := os.Stat(devMigrationsDir); err != nil {
			return nil, fmt.Errorf("dev mode migrations directory not found: %w", err)
		}
		return os.DirFS(devMigrationsDir), nil
	}

	sub, err := fs.Sub(migrationsFS, "migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to open embedded migrations: %w", err)
	}
	return sub, nil
}
