package voxelgrid

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/radiance.report/internal/geom"
)

// mockSnapshotStore is a minimal SnapshotStore implementation.
type mockSnapshotStore struct {
	lastID    int
	insertErr error
	snapshots []*Snapshot
}

func (m *mockSnapshotStore) InsertGridSnapshot(s *Snapshot) (string, error) {
	if m.insertErr != nil {
		return "", m.insertErr
	}
	m.lastID++
	id := fmt.Sprintf("snap-%d", m.lastID)
	s.SnapshotID = id
	m.snapshots = append(m.snapshots, s)
	return id, nil
}

func makeSnapshotTestGrid(t *testing.T) *VoxelRadianceField {
	t.Helper()
	f, err := New(3, 2, 2, geom.V(-2, 0, 1), geom.V(2, 4, 5))
	require.NoError(t, err)
	for k := 0; k < 2; k++ {
		for j := 0; j < 2; j++ {
			for i := 0; i < 3; i++ {
				d := float64(1 + i + 3*j + 6*k)
				c := geom.Color{R: d / 12, G: 1 - d/12, B: 0.5, A: 1}
				require.NoError(t, f.SetCell(i, j, k, d, c))
			}
		}
	}
	return f
}

func TestPersistBasicSuccess(t *testing.T) {
	t.Parallel()
	f := makeSnapshotTestGrid(t)

	store := &mockSnapshotStore{}
	id, err := f.Persist(store, "lab-scene", "aggregate", 1234)
	require.NoError(t, err)
	assert.Equal(t, "snap-1", id)

	require.Len(t, store.snapshots, 1)
	snap := store.snapshots[0]
	assert.Equal(t, "lab-scene", snap.Name)
	assert.Equal(t, "aggregate", snap.Source)
	assert.Equal(t, 3, snap.Nx)
	assert.Equal(t, 2, snap.Ny)
	assert.Equal(t, 2, snap.Nz)
	assert.Equal(t, -2.0, snap.MinX)
	assert.Equal(t, 5.0, snap.MaxZ)
	assert.Equal(t, int64(1234), snap.SampleCount)
	assert.NotZero(t, snap.TakenUnixNanos)
	assert.NotEmpty(t, snap.GridBlob)
}

func TestPersistNilStore(t *testing.T) {
	t.Parallel()
	f := makeSnapshotTestGrid(t)
	_, err := f.Persist(nil, "x", "manual", 0)
	assert.Error(t, err)
}

func TestPersistInsertError(t *testing.T) {
	t.Parallel()
	f := makeSnapshotTestGrid(t)
	store := &mockSnapshotStore{insertErr: fmt.Errorf("db error")}
	_, err := f.Persist(store, "x", "manual", 0)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "db error")
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	f := makeSnapshotTestGrid(t)

	store := &mockSnapshotStore{}
	_, err := f.Persist(store, "roundtrip", "aggregate", 99)
	require.NoError(t, err)

	restored, err := FromSnapshot(store.snapshots[0])
	require.NoError(t, err)

	nx, ny, nz := restored.Resolution()
	assert.Equal(t, 3, nx)
	assert.Equal(t, 2, ny)
	assert.Equal(t, 2, nz)
	min, max := restored.Bounds()
	assert.Equal(t, geom.V(-2, 0, 1), min)
	assert.Equal(t, geom.V(2, 4, 5), max)

	// Stored values survive exactly.
	for k := 0; k < 2; k++ {
		for j := 0; j < 2; j++ {
			for i := 0; i < 3; i++ {
				wantD, wantC, err := f.Cell(i, j, k)
				require.NoError(t, err)
				gotD, gotC, err := restored.Cell(i, j, k)
				require.NoError(t, err)
				assert.Equal(t, wantD, gotD)
				assert.Equal(t, wantC, gotC)
			}
		}
	}

	// And interpolated queries agree between original and restored grids.
	for _, pos := range []geom.Vec3{
		geom.V(0, 2, 3),
		geom.V(-1.5, 0.5, 1.2),
		geom.V(1.9, 3.9, 4.9),
	} {
		wantD, wantC := f.Query(pos, geom.Vec3{})
		gotD, gotC := restored.Query(pos, geom.Vec3{})
		assert.Equal(t, wantD, gotD)
		assert.Equal(t, wantC, gotC)
	}
}

func TestFromSnapshotErrors(t *testing.T) {
	t.Parallel()

	t.Run("nil snapshot", func(t *testing.T) {
		t.Parallel()
		_, err := FromSnapshot(nil)
		assert.Error(t, err)
	})

	t.Run("empty blob", func(t *testing.T) {
		t.Parallel()
		_, err := FromSnapshot(&Snapshot{Nx: 2, Ny: 2, Nz: 2})
		assert.Error(t, err)
	})

	t.Run("corrupt blob", func(t *testing.T) {
		t.Parallel()
		_, err := FromSnapshot(&Snapshot{Nx: 2, Ny: 2, Nz: 2, GridBlob: []byte("not gzip")})
		assert.Error(t, err)
	})

	t.Run("resolution mismatch", func(t *testing.T) {
		t.Parallel()
		f := makeSnapshotTestGrid(t)
		store := &mockSnapshotStore{}
		_, err := f.Persist(store, "tampered", "manual", 0)
		require.NoError(t, err)

		snap := store.snapshots[0]
		snap.Nx = 7
		_, err = FromSnapshot(snap)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "does not match")
	})
}
