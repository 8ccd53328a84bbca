// Package voxelgrid owns the discretized radiance-field variant.
//
// Responsibilities: the voxel grid data model, trilinear sampling, and
// snapshot serialization. Key types: VoxelRadianceField, Snapshot.
//
// Dependency rule: voxelgrid may depend on geom and field, never on the
// renderer or the shell. No SQL/database code is allowed in this package;
// persistence happens through the SnapshotStore interface, implemented by
// internal/db.
package voxelgrid
