package voxelgrid

import (
	"bytes"
	"compress/gzip"
	"encoding/gob"
	"fmt"
	"log"
	"time"

	"github.com/banshee-data/radiance.report/internal/geom"
)

// gridBlobVersion is bumped when the envelope layout changes so old blobs
// are rejected instead of misread.
const gridBlobVersion = 1

// gridEnvelope is the gob payload stored in a snapshot blob. It carries the
// geometry alongside the values so a blob is self-describing and can be
// validated against the snapshot row it came from.
type gridEnvelope struct {
	Version          int
	Nx, Ny, Nz       int
	MinX, MinY, MinZ float64
	MaxX, MaxY, MaxZ float64
	Density          []float64
	RGBA             []float64
}

// serializeGrid compresses the grid values using gob encoding and gzip compression.
func serializeGrid(f *VoxelRadianceField) ([]byte, error) {
	env := gridEnvelope{
		Version: gridBlobVersion,
		Nx:      f.nx, Ny: f.ny, Nz: f.nz,
		MinX: f.boundsMin.X, MinY: f.boundsMin.Y, MinZ: f.boundsMin.Z,
		MaxX: f.boundsMax.X, MaxY: f.boundsMax.Y, MaxZ: f.boundsMax.Z,
		Density: f.density,
		RGBA:    f.rgba,
	}
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	enc := gob.NewEncoder(gz)
	if err := enc.Encode(env); err != nil {
		gz.Close()
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// deserializeGrid decompresses and decodes a grid envelope from a gob+gzip blob.
func deserializeGrid(blob []byte) (*gridEnvelope, error) {
	if len(blob) == 0 {
		return nil, fmt.Errorf("empty grid blob")
	}
	gz, err := gzip.NewReader(bytes.NewReader(blob))
	if err != nil {
		return nil, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer gz.Close()

	var env gridEnvelope
	dec := gob.NewDecoder(gz)
	if err := dec.Decode(&env); err != nil {
		return nil, fmt.Errorf("failed to decode grid envelope: %w", err)
	}
	if env.Version != gridBlobVersion {
		return nil, fmt.Errorf("unsupported grid blob version %d", env.Version)
	}
	return &env, nil
}

// Snapshot matches the grid_snapshots table structure for persisting a
// populated grid along with the provenance needed to reload it. The blob
// never serializes to JSON; API responses carry BlobBytes instead.
type Snapshot struct {
	SnapshotID     string  `json:"snapshot_id"`      // assigned by the store on insert
	Name           string  `json:"name"`             // matches name TEXT NOT NULL
	Source         string  `json:"source"`           // matches source TEXT ('aggregate', 'import', 'manual')
	TakenUnixNanos int64   `json:"taken_unix_nanos"` // matches taken_unix_nanos INTEGER NOT NULL
	Nx             int     `json:"nx"`               // matches nx INTEGER NOT NULL
	Ny             int     `json:"ny"`               // matches ny INTEGER NOT NULL
	Nz             int     `json:"nz"`               // matches nz INTEGER NOT NULL
	MinX           float64 `json:"min_x"`            // matches min_x REAL NOT NULL
	MinY           float64 `json:"min_y"`            // matches min_y REAL NOT NULL
	MinZ           float64 `json:"min_z"`            // matches min_z REAL NOT NULL
	MaxX           float64 `json:"max_x"`            // matches max_x REAL NOT NULL
	MaxY           float64 `json:"max_y"`            // matches max_y REAL NOT NULL
	MaxZ           float64 `json:"max_z"`            // matches max_z REAL NOT NULL
	SampleCount    int64   `json:"sample_count"`     // matches sample_count INTEGER NOT NULL
	GridBlob       []byte  `json:"-"`                // matches grid_blob BLOB NOT NULL (compressed grid values)
	BlobBytes      int64   `json:"blob_bytes"`       // derived from length(grid_blob); listings carry this instead of the blob
}

// Persist serializes the grid and writes a Snapshot via the provided store.
// sampleCount records how many input samples built the grid, for provenance.
// Returns the snapshot ID assigned by the store.
func (f *VoxelRadianceField) Persist(store SnapshotStore, name, source string, sampleCount int64) (string, error) {
	if f == nil || store == nil {
		return "", fmt.Errorf("nil grid or store")
	}

	blob, err := serializeGrid(f)
	if err != nil {
		return "", err
	}

	snap := &Snapshot{
		Name:           name,
		Source:         source,
		TakenUnixNanos: time.Now().UnixNano(),
		Nx:             f.nx,
		Ny:             f.ny,
		Nz:             f.nz,
		MinX:           f.boundsMin.X,
		MinY:           f.boundsMin.Y,
		MinZ:           f.boundsMin.Z,
		MaxX:           f.boundsMax.X,
		MaxY:           f.boundsMax.Y,
		MaxZ:           f.boundsMax.Z,
		SampleCount:    sampleCount,
		GridBlob:       blob,
	}

	id, err := store.InsertGridSnapshot(snap)
	if err != nil {
		return "", err
	}

	nonzero := 0
	for _, d := range f.density {
		if d != 0 {
			nonzero++
		}
	}
	percent := 0.0
	if len(f.density) > 0 {
		percent = (float64(nonzero) / float64(len(f.density))) * 100.0
	}
	log.Printf("[VoxelGrid] Persisted snapshot: name=%s, source=%s, nonzero_cells=%d/%d (%.2f%%), grid_blob_size=%d bytes",
		name, source, nonzero, len(f.density), percent, len(blob))

	return id, nil
}

// FromSnapshot rebuilds a grid from a persisted snapshot. The blob geometry
// must agree with the snapshot row; a mismatch means the row was tampered
// with or the blob belongs to a different snapshot.
func FromSnapshot(snap *Snapshot) (*VoxelRadianceField, error) {
	if snap == nil {
		return nil, fmt.Errorf("nil snapshot")
	}

	env, err := deserializeGrid(snap.GridBlob)
	if err != nil {
		return nil, err
	}
	if env.Nx != snap.Nx || env.Ny != snap.Ny || env.Nz != snap.Nz {
		return nil, fmt.Errorf("grid blob resolution (%d,%d,%d) does not match snapshot (%d,%d,%d)",
			env.Nx, env.Ny, env.Nz, snap.Nx, snap.Ny, snap.Nz)
	}

	n := env.Nx * env.Ny * env.Nz
	if len(env.Density) != n || len(env.RGBA) != n*4 {
		return nil, fmt.Errorf("grid blob value counts (%d density, %d rgba) do not match resolution %d",
			len(env.Density), len(env.RGBA), n)
	}

	f, err := New(env.Nx, env.Ny, env.Nz,
		geom.V(env.MinX, env.MinY, env.MinZ),
		geom.V(env.MaxX, env.MaxY, env.MaxZ))
	if err != nil {
		return nil, fmt.Errorf("snapshot carries invalid grid geometry: %w", err)
	}
	copy(f.density, env.Density)
	copy(f.rgba, env.RGBA)
	return f, nil
}
