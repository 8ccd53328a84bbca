package db

import (
	"database/sql"
	"fmt"

	"github.com/google/uuid"

	"github.com/banshee-data/radiance.report/internal/field/voxelgrid"
)

// InsertGridSnapshot persists a serialized voxel grid. A snapshot ID is
// assigned when the record does not already carry one. Returns the ID.
func (db *DB) InsertGridSnapshot(s *voxelgrid.Snapshot) (string, error) {
	if s.SnapshotID == "" {
		s.SnapshotID = uuid.New().String()
	}

	query := `
		INSERT INTO grid_snapshots (
			snapshot_id, name, source, taken_unix_nanos,
			nx, ny, nz,
			min_x, min_y, min_z, max_x, max_y, max_z,
			sample_count, grid_blob
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.DB.Exec(
		query,
		s.SnapshotID,
		s.Name,
		s.Source,
		s.TakenUnixNanos,
		s.Nx,
		s.Ny,
		s.Nz,
		s.MinX,
		s.MinY,
		s.MinZ,
		s.MaxX,
		s.MaxY,
		s.MaxZ,
		s.SampleCount,
		s.GridBlob,
	)
	if err != nil {
		return "", fmt.Errorf("failed to insert grid snapshot: %w", err)
	}

	return s.SnapshotID, nil
}

// GetGridSnapshot retrieves a snapshot by ID, including the grid blob.
func (db *DB) GetGridSnapshot(snapshotID string) (*voxelgrid.Snapshot, error) {
	query := `
		SELECT
			snapshot_id, name, source, taken_unix_nanos,
			nx, ny, nz,
			min_x, min_y, min_z, max_x, max_y, max_z,
			sample_count, grid_blob
		FROM grid_snapshots
		WHERE snapshot_id = ?
	`

	return db.scanSnapshot(db.DB.QueryRow(query, snapshotID))
}

// GetLatestGridSnapshotByName retrieves the most recent snapshot stored
// under a name, including the grid blob.
func (db *DB) GetLatestGridSnapshotByName(name string) (*voxelgrid.Snapshot, error) {
	query := `
		SELECT
			snapshot_id, name, source, taken_unix_nanos,
			nx, ny, nz,
			min_x, min_y, min_z, max_x, max_y, max_z,
			sample_count, grid_blob
		FROM grid_snapshots
		WHERE name = ?
		ORDER BY taken_unix_nanos DESC
		LIMIT 1
	`

	return db.scanSnapshot(db.DB.QueryRow(query, name))
}

func (db *DB) scanSnapshot(row *sql.Row) (*voxelgrid.Snapshot, error) {
	var s voxelgrid.Snapshot
	err := row.Scan(
		&s.SnapshotID,
		&s.Name,
		&s.Source,
		&s.TakenUnixNanos,
		&s.Nx,
		&s.Ny,
		&s.Nz,
		&s.MinX,
		&s.MinY,
		&s.MinZ,
		&s.MaxX,
		&s.MaxY,
		&s.MaxZ,
		&s.SampleCount,
		&s.GridBlob,
	)

	if err == sql.ErrNoRows {
		return nil, voxelgrid.ErrSnapshotNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get grid snapshot: %w", err)
	}

	s.BlobBytes = int64(len(s.GridBlob))
	return &s, nil
}

// ListGridSnapshots retrieves the most recent snapshots, newest first.
// Grid blobs are omitted from listings, only their sizes are reported.
func (db *DB) ListGridSnapshots(limit int) ([]*voxelgrid.Snapshot, error) {
	query := `
		SELECT
			snapshot_id, name, source, taken_unix_nanos,
			nx, ny, nz,
			min_x, min_y, min_z, max_x, max_y, max_z,
			sample_count, COALESCE(length(grid_blob), 0)
		FROM grid_snapshots
		ORDER BY taken_unix_nanos DESC
		LIMIT ?
	`

	rows, err := db.DB.Query(query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query grid snapshots: %w", err)
	}
	defer rows.Close()

	var snaps []*voxelgrid.Snapshot
	for rows.Next() {
		var s voxelgrid.Snapshot
		err := rows.Scan(
			&s.SnapshotID,
			&s.Name,
			&s.Source,
			&s.TakenUnixNanos,
			&s.Nx,
			&s.Ny,
			&s.Nz,
			&s.MinX,
			&s.MinY,
			&s.MinZ,
			&s.MaxX,
			&s.MaxY,
			&s.MaxZ,
			&s.SampleCount,
			&s.BlobBytes,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan grid snapshot: %w", err)
		}
		snaps = append(snaps, &s)
	}

	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating grid snapshots: %w", err)
	}

	return snaps, nil
}
