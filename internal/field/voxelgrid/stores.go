package voxelgrid

import "errors"

// ErrSnapshotNotFound is returned when no snapshot exists under the
// requested ID or name.
var ErrSnapshotNotFound = errors.New("grid snapshot not found")

// SnapshotStore is an interface required to persist Snapshot records.
// Implemented by db.DB.
type SnapshotStore interface {
	InsertGridSnapshot(s *Snapshot) (string, error)
}

// SnapshotLoader is the read side, for restoring a grid by name or ID.
// Implemented by db.DB.
type SnapshotLoader interface {
	GetGridSnapshot(snapshotID string) (*Snapshot, error)
	GetLatestGridSnapshotByName(name string) (*Snapshot, error)
}
