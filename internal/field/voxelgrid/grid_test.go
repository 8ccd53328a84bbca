package voxelgrid

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/radiance.report/internal/geom"
)

func makeTestGrid(t *testing.T, nx, ny, nz int) *VoxelRadianceField {
	t.Helper()
	f, err := New(nx, ny, nz, geom.V(-1, -1, -1), geom.V(1, 1, 1))
	require.NoError(t, err)
	return f
}

func TestNewValidation(t *testing.T) {
	t.Parallel()

	t.Run("zero resolution", func(t *testing.T) {
		t.Parallel()
		_, err := New(0, 4, 4, geom.V(0, 0, 0), geom.V(1, 1, 1))
		assert.Error(t, err)
	})

	t.Run("negative resolution", func(t *testing.T) {
		t.Parallel()
		_, err := New(4, -1, 4, geom.V(0, 0, 0), geom.V(1, 1, 1))
		assert.Error(t, err)
	})

	t.Run("inverted bounds", func(t *testing.T) {
		t.Parallel()
		_, err := New(4, 4, 4, geom.V(1, 0, 0), geom.V(0, 1, 1))
		assert.Error(t, err)
	})

	t.Run("flat bounds", func(t *testing.T) {
		t.Parallel()
		_, err := New(4, 4, 4, geom.V(0, 0, 0), geom.V(1, 0, 1))
		assert.Error(t, err)
	})

	t.Run("valid", func(t *testing.T) {
		t.Parallel()
		f, err := New(2, 3, 4, geom.V(-1, 0, 2), geom.V(1, 5, 3))
		require.NoError(t, err)
		nx, ny, nz := f.Resolution()
		assert.Equal(t, 2, nx)
		assert.Equal(t, 3, ny)
		assert.Equal(t, 4, nz)
		min, max := f.Bounds()
		assert.Equal(t, geom.V(-1, 0, 2), min)
		assert.Equal(t, geom.V(1, 5, 3), max)
	})
}

func TestCellRoundTrip(t *testing.T) {
	t.Parallel()
	f := makeTestGrid(t, 3, 3, 3)

	want := geom.Color{R: 0.25, G: 0.5, B: 0.75, A: 1}
	require.NoError(t, f.SetCell(1, 2, 0, 4.5, want))

	d, c, err := f.Cell(1, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 4.5, d)
	assert.Equal(t, want, c)

	// Untouched cells stay zero.
	d, c, err = f.Cell(0, 0, 0)
	require.NoError(t, err)
	assert.Zero(t, d)
	assert.Equal(t, geom.Color{}, c)
}

func TestCellIndexErrors(t *testing.T) {
	t.Parallel()
	f := makeTestGrid(t, 2, 2, 2)

	err := f.SetCell(2, 0, 0, 1, geom.White)
	assert.True(t, errors.Is(err, ErrCellIndex))

	err = f.SetCell(0, -1, 0, 1, geom.White)
	assert.True(t, errors.Is(err, ErrCellIndex))

	_, _, err = f.Cell(0, 0, 5)
	assert.True(t, errors.Is(err, ErrCellIndex))
}

func TestQueryOutsideBounds(t *testing.T) {
	t.Parallel()
	f := makeTestGrid(t, 2, 2, 2)
	f.Fill(10, geom.Color{R: 1, G: 1, B: 1, A: 1})

	outside := []geom.Vec3{
		geom.V(1.5, 0, 0),
		geom.V(-1.001, 0, 0),
		geom.V(0, 2, 0),
		geom.V(0, 0, -3),
		geom.V(5, 5, 5),
	}
	for _, pos := range outside {
		d, c := f.Query(pos, geom.V(0, 0, 1))
		assert.Zero(t, d, "density at %+v", pos)
		assert.Equal(t, geom.Transparent, c, "color at %+v", pos)
	}
}

func TestQueryBoundaryInclusive(t *testing.T) {
	t.Parallel()
	f := makeTestGrid(t, 2, 2, 2)
	f.Fill(3, geom.Color{R: 0.5, G: 0.5, B: 0.5, A: 1})

	// Positions exactly on the box faces are inside the volume.
	for _, pos := range []geom.Vec3{
		geom.V(-1, -1, -1),
		geom.V(1, 1, 1),
		geom.V(1, 0, 0),
		geom.V(0, -1, 0.5),
	} {
		d, _ := f.Query(pos, geom.Vec3{})
		assert.InDelta(t, 3.0, d, 1e-12, "density at %+v", pos)
	}
}

func TestQueryUniformFill(t *testing.T) {
	t.Parallel()
	f := makeTestGrid(t, 4, 4, 4)
	want := geom.Color{R: 0.2, G: 0.4, B: 0.6, A: 0.8}
	f.Fill(7.5, want)

	// Interpolating a constant field returns the constant everywhere,
	// including positions between grid points.
	for _, pos := range []geom.Vec3{
		geom.V(0, 0, 0),
		geom.V(0.1, -0.3, 0.7),
		geom.V(-0.999, 0.999, 0.123),
	} {
		d, c := f.Query(pos, geom.Vec3{})
		assert.InDelta(t, 7.5, d, 1e-12)
		assert.InDelta(t, want.R, c.R, 1e-12)
		assert.InDelta(t, want.G, c.G, 1e-12)
		assert.InDelta(t, want.B, c.B, 1e-12)
		assert.InDelta(t, want.A, c.A, 1e-12)
	}
}

func TestQueryAtGridPoints(t *testing.T) {
	t.Parallel()
	f := makeTestGrid(t, 2, 2, 2)

	// Give each corner a distinct density so exact grid-point queries can be
	// checked against the stored values.
	for k := 0; k < 2; k++ {
		for j := 0; j < 2; j++ {
			for i := 0; i < 2; i++ {
				d := float64(i + 2*j + 4*k)
				require.NoError(t, f.SetCell(i, j, k, d, geom.Color{R: d / 8, A: 1}))
			}
		}
	}

	// Corner (1,0,1) sits at world position (1,-1,1) and stores density 5.
	d, c := f.Query(geom.V(1, -1, 1), geom.Vec3{})
	assert.InDelta(t, 5.0, d, 1e-12)
	assert.InDelta(t, 5.0/8, c.R, 1e-12)

	d, _ = f.Query(geom.V(-1, -1, -1), geom.Vec3{})
	assert.InDelta(t, 0.0, d, 1e-12)
}

func TestQueryTrilinear(t *testing.T) {
	t.Parallel()
	f := makeTestGrid(t, 2, 2, 2)

	// Density 0 on the x=min face, 8 on the x=max face. Trilinear
	// interpolation along x is linear, so the center of the box reads 4.
	for k := 0; k < 2; k++ {
		for j := 0; j < 2; j++ {
			require.NoError(t, f.SetCell(0, j, k, 0, geom.Color{}))
			require.NoError(t, f.SetCell(1, j, k, 8, geom.Color{R: 1, A: 1}))
		}
	}

	d, c := f.Query(geom.V(0, 0, 0), geom.Vec3{})
	assert.InDelta(t, 4.0, d, 1e-12)
	assert.InDelta(t, 0.5, c.R, 1e-12)

	// Quarter of the way along x.
	d, _ = f.Query(geom.V(-0.5, 0.3, -0.7), geom.Vec3{})
	assert.InDelta(t, 2.0, d, 1e-12)

	// On the faces themselves.
	d, _ = f.Query(geom.V(-1, 0, 0), geom.Vec3{})
	assert.InDelta(t, 0.0, d, 1e-12)
	d, _ = f.Query(geom.V(1, 0, 0), geom.Vec3{})
	assert.InDelta(t, 8.0, d, 1e-12)
}

func TestQuerySingleSampleAxis(t *testing.T) {
	t.Parallel()
	f, err := New(1, 1, 3, geom.V(-1, -1, -1), geom.V(1, 1, 1))
	require.NoError(t, err)
	require.NoError(t, f.SetCell(0, 0, 0, 1, geom.Color{}))
	require.NoError(t, f.SetCell(0, 0, 1, 3, geom.Color{}))
	require.NoError(t, f.SetCell(0, 0, 2, 5, geom.Color{}))

	// The collapsed x and y axes always use their single sample; z still
	// interpolates across its three.
	d, _ := f.Query(geom.V(0.9, -0.9, 0), geom.Vec3{})
	assert.InDelta(t, 3.0, d, 1e-12)

	d, _ = f.Query(geom.V(0, 0, -0.5), geom.Vec3{})
	assert.InDelta(t, 2.0, d, 1e-12)
}

func TestQueryIgnoresDirection(t *testing.T) {
	t.Parallel()
	f := makeTestGrid(t, 3, 3, 3)
	f.Fill(2, geom.Color{R: 0.9, G: 0.1, B: 0.4, A: 1})

	pos := geom.V(0.2, -0.4, 0.6)
	d1, c1 := f.Query(pos, geom.V(0, 0, 1))
	d2, c2 := f.Query(pos, geom.V(-1, 0.5, 0.3))
	assert.Equal(t, d1, d2)
	assert.Equal(t, c1, c2)
}
