package db

import (
	"io/fs"
	"strings"
	"testing"
)

// TestEmbeddedMigrationsFS verifies the embedded migrations filesystem
// contains the expected .sql pairs rooted where newMigrate expects them.
func TestEmbeddedMigrationsFS(t *testing.T) {
	origDevMode := DevMode
	DevMode = false
	defer func() { DevMode = origDevMode }()

	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("Failed to read migrations/ subdirectory: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("No files embedded under migrations/")
	}

	migFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS() failed: %v", err)
	}

	// The returned FS must be rooted at the .sql files themselves.
	names := map[string]bool{}
	rootEntries, err := fs.ReadDir(migFS, ".")
	if err != nil {
		t.Fatalf("Failed to read getMigrationsFS result: %v", err)
	}
	for _, entry := range rootEntries {
		names[entry.Name()] = true
		if !strings.HasSuffix(entry.Name(), ".sql") {
			t.Errorf("Unexpected non-sql file in migrations: %s", entry.Name())
		}
	}

	for _, want := range []string{"0001_init.up.sql", "0001_init.down.sql"} {
		if !names[want] {
			t.Errorf("Expected migration file %s, have %v", want, names)
		}
	}

	// Every up migration needs a matching down migration.
	for name := range names {
		if strings.HasSuffix(name, ".up.sql") {
			down := strings.TrimSuffix(name, ".up.sql") + ".down.sql"
			if !names[down] {
				t.Errorf("Migration %s has no matching down file", name)
			}
		}
	}
}

// TestGetLatestMigrationVersion verifies version parsing from the embedded
// migration filenames.
func TestGetLatestMigrationVersion(t *testing.T) {
	migFS, err := getMigrationsFS()
	if err != nil {
		t.Fatalf("getMigrationsFS() failed: %v", err)
	}

	version, err := GetLatestMigrationVersion(migFS)
	if err != nil {
		t.Fatalf("GetLatestMigrationVersion failed: %v", err)
	}
	if version < 1 {
		t.Errorf("Expected latest migration version >= 1, got %d", version)
	}
}
