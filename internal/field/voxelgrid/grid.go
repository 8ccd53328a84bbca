package voxelgrid

import (
	"errors"
	"fmt"

	"github.com/banshee-data/radiance.report/internal/geom"
)

// ErrCellIndex is returned by cell accessors for indices outside the grid
// resolution.
var ErrCellIndex = errors.New("cell index outside grid resolution")

// VoxelRadianceField is a radiance field sampled on a regular 3D grid of
// density and RGBA values inside an axis-aligned box. Queries interpolate
// trilinearly between the 8 surrounding grid points; positions outside the
// box contribute nothing. The discretized variant has no view dependence,
// so the view direction passed to Query is ignored.
//
// Grid values sit at box corners: point (i,j,k) lies at
// min + (i/(nx-1), j/(ny-1), k/(nz-1)) * (max-min). A resolution of 1 along
// an axis collapses interpolation to that single sample.
type VoxelRadianceField struct {
	nx, ny, nz int
	boundsMin  geom.Vec3
	boundsMax  geom.Vec3
	invSpan    geom.Vec3 // 1/(max-min) per axis, precomputed

	// Flat storage, x-fastest: cell (i,j,k) lives at i + nx*(j + ny*k).
	density []float64
	rgba    []float64 // 4 entries per cell
}

// New constructs an empty (all zero) grid. Resolution must be at least 1
// per axis and bounds strictly ordered component-wise; anything else is a
// construction error and no field is returned.
func New(nx, ny, nz int, boundsMin, boundsMax geom.Vec3) (*VoxelRadianceField, error) {
	if nx < 1 || ny < 1 || nz < 1 {
		return nil, fmt.Errorf("grid resolution must be at least 1 per axis, got (%d,%d,%d)", nx, ny, nz)
	}
	if boundsMin.X >= boundsMax.X || boundsMin.Y >= boundsMax.Y || boundsMin.Z >= boundsMax.Z {
		return nil, fmt.Errorf("grid bounds min %+v must be strictly below max %+v on every axis", boundsMin, boundsMax)
	}

	span := boundsMax.Sub(boundsMin)
	n := nx * ny * nz
	return &VoxelRadianceField{
		nx: nx, ny: ny, nz: nz,
		boundsMin: boundsMin,
		boundsMax: boundsMax,
		invSpan:   geom.V(1/span.X, 1/span.Y, 1/span.Z),
		density:   make([]float64, n),
		rgba:      make([]float64, n*4),
	}, nil
}

// Resolution returns the grid point counts per axis.
func (f *VoxelRadianceField) Resolution() (nx, ny, nz int) {
	return f.nx, f.ny, f.nz
}

// Bounds returns the axis-aligned box the grid spans.
func (f *VoxelRadianceField) Bounds() (min, max geom.Vec3) {
	return f.boundsMin, f.boundsMax
}

func (f *VoxelRadianceField) idx(i, j, k int) int {
	return i + f.nx*(j+f.ny*k)
}

// SetCell stores a density and color sample at grid point (i,j,k). The grid
// is populated cell by cell (by the aggregation step or a snapshot load)
// and is logically frozen once rendering begins.
func (f *VoxelRadianceField) SetCell(i, j, k int, density float64, c geom.Color) error {
	if i < 0 || i >= f.nx || j < 0 || j >= f.ny || k < 0 || k >= f.nz {
		return fmt.Errorf("%w: (%d,%d,%d) in (%d,%d,%d)", ErrCellIndex, i, j, k, f.nx, f.ny, f.nz)
	}
	n := f.idx(i, j, k)
	f.density[n] = density
	f.rgba[n*4] = c.R
	f.rgba[n*4+1] = c.G
	f.rgba[n*4+2] = c.B
	f.rgba[n*4+3] = c.A
	return nil
}

// Cell returns the stored sample at grid point (i,j,k).
func (f *VoxelRadianceField) Cell(i, j, k int) (float64, geom.Color, error) {
	if i < 0 || i >= f.nx || j < 0 || j >= f.ny || k < 0 || k >= f.nz {
		return 0, geom.Color{}, fmt.Errorf("%w: (%d,%d,%d) in (%d,%d,%d)", ErrCellIndex, i, j, k, f.nx, f.ny, f.nz)
	}
	n := f.idx(i, j, k)
	return f.density[n], geom.Color{
		R: f.rgba[n*4],
		G: f.rgba[n*4+1],
		B: f.rgba[n*4+2],
		A: f.rgba[n*4+3],
	}, nil
}

// Fill sets every grid point to the same density and color. Used for
// uniform test scenes and inline voxel scene configs.
func (f *VoxelRadianceField) Fill(density float64, c geom.Color) {
	for n := range f.density {
		f.density[n] = density
		f.rgba[n*4] = c.R
		f.rgba[n*4+1] = c.G
		f.rgba[n*4+2] = c.B
		f.rgba[n*4+3] = c.A
	}
}

// Query samples the grid at pos. The view direction is ignored. Positions
// outside the bounds return zero density and transparent black, which is a
// defined result rather than an error: out-of-volume samples simply
// contribute nothing to a ray.
func (f *VoxelRadianceField) Query(pos, _ geom.Vec3) (float64, geom.Color) {
	u := (pos.X - f.boundsMin.X) * f.invSpan.X
	v := (pos.Y - f.boundsMin.Y) * f.invSpan.Y
	w := (pos.Z - f.boundsMin.Z) * f.invSpan.Z
	if u < 0 || u > 1 || v < 0 || v > 1 || w < 0 || w > 1 {
		return 0, geom.Transparent
	}

	i0, i1, fx := gridCoord(u, f.nx)
	j0, j1, fy := gridCoord(v, f.ny)
	k0, k1, fz := gridCoord(w, f.nz)

	// Gather the 8 corner indices once, then interpolate density and each
	// color channel over them.
	c000 := f.idx(i0, j0, k0)
	c100 := f.idx(i1, j0, k0)
	c010 := f.idx(i0, j1, k0)
	c110 := f.idx(i1, j1, k0)
	c001 := f.idx(i0, j0, k1)
	c101 := f.idx(i1, j0, k1)
	c011 := f.idx(i0, j1, k1)
	c111 := f.idx(i1, j1, k1)

	density := triLerp(
		f.density[c000], f.density[c100], f.density[c010], f.density[c110],
		f.density[c001], f.density[c101], f.density[c011], f.density[c111],
		fx, fy, fz,
	)

	var c geom.Color
	c.R = triLerp(
		f.rgba[c000*4], f.rgba[c100*4], f.rgba[c010*4], f.rgba[c110*4],
		f.rgba[c001*4], f.rgba[c101*4], f.rgba[c011*4], f.rgba[c111*4],
		fx, fy, fz,
	)
	c.G = triLerp(
		f.rgba[c000*4+1], f.rgba[c100*4+1], f.rgba[c010*4+1], f.rgba[c110*4+1],
		f.rgba[c001*4+1], f.rgba[c101*4+1], f.rgba[c011*4+1], f.rgba[c111*4+1],
		fx, fy, fz,
	)
	c.B = triLerp(
		f.rgba[c000*4+2], f.rgba[c100*4+2], f.rgba[c010*4+2], f.rgba[c110*4+2],
		f.rgba[c001*4+2], f.rgba[c101*4+2], f.rgba[c011*4+2], f.rgba[c111*4+2],
		fx, fy, fz,
	)
	c.A = triLerp(
		f.rgba[c000*4+3], f.rgba[c100*4+3], f.rgba[c010*4+3], f.rgba[c110*4+3],
		f.rgba[c001*4+3], f.rgba[c101*4+3], f.rgba[c011*4+3], f.rgba[c111*4+3],
		fx, fy, fz,
	)

	return density, c
}

// gridCoord maps a normalized coordinate in [0,1] to the bracketing grid
// indices and the interpolation fraction between them. The lower index is
// clamped so the upper one never exceeds the last grid point; u == 1 lands
// exactly on it with fraction 1.
func gridCoord(u float64, n int) (lo, hi int, frac float64) {
	if n == 1 {
		return 0, 0, 0
	}
	t := u * float64(n-1)
	lo = int(t)
	if lo > n-2 {
		lo = n - 2
	}
	return lo, lo + 1, t - float64(lo)
}

func lerp(a, b, t float64) float64 {
	return a + (b-a)*t
}

// triLerp interpolates over a cell's 8 corners, x varying fastest.
func triLerp(v000, v100, v010, v110, v001, v101, v011, v111, fx, fy, fz float64) float64 {
	front := lerp(lerp(v000, v100, fx), lerp(v010, v110, fx), fy)
	back := lerp(lerp(v001, v101, fx), lerp(v011, v111, fx), fy)
	return lerp(front, back, fz)
}
