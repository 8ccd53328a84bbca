package aggregate

import (
	"fmt"
	"math"
	"runtime"
	"sync"

	"github.com/banshee-data/radiance.report/internal/field/voxelgrid"
	"github.com/banshee-data/radiance.report/internal/geom"
)

// GridConfig describes the target grid for a merge.
type GridConfig struct {
	Nx, Ny, Nz int       // grid resolution per axis (default: 128)
	BoundsMin  geom.Vec3 // volume lower corner (default: -1,-1,-1)
	BoundsMax  geom.Vec3 // volume upper corner (default: 1,1,1)
	Workers    int       // parallel accumulation workers; 0 means GOMAXPROCS
}

// DefaultGridConfig returns the conventional merge target: a 128-cube grid
// over the unit box.
func DefaultGridConfig() GridConfig {
	return GridConfig{
		Nx: 128, Ny: 128, Nz: 128,
		BoundsMin: geom.V(-1, -1, -1),
		BoundsMax: geom.V(1, 1, 1),
	}
}

// Validate checks if the configuration is valid.
func (c GridConfig) Validate() error {
	if c.Nx < 1 || c.Ny < 1 || c.Nz < 1 {
		return fmt.Errorf("grid resolution must be at least 1 per axis, got (%d,%d,%d)", c.Nx, c.Ny, c.Nz)
	}
	if c.BoundsMin.X >= c.BoundsMax.X || c.BoundsMin.Y >= c.BoundsMax.Y || c.BoundsMin.Z >= c.BoundsMax.Z {
		return fmt.Errorf("bounds min %+v must be strictly below max %+v on every axis", c.BoundsMin, c.BoundsMax)
	}
	if c.Workers < 0 {
		return fmt.Errorf("Workers must be non-negative, got %d", c.Workers)
	}
	return nil
}

// BuildResult carries the merged grid and merge accounting.
type BuildResult struct {
	Grid    *voxelgrid.VoxelRadianceField
	Kept    int // samples deposited into the grid
	Dropped int // samples outside the grid bounds
}

// cellAccumulator collects per-cell running sums. Color sums are weighted
// by each sample's opacity so low-density samples cannot wash out the color
// of a dense cell.
type cellAccumulator struct {
	r, g, b []float64
	alpha   []float64
	density []float64
	count   []int
}

func newCellAccumulator(cells int) *cellAccumulator {
	return &cellAccumulator{
		r:       make([]float64, cells),
		g:       make([]float64, cells),
		b:       make([]float64, cells),
		alpha:   make([]float64, cells),
		density: make([]float64, cells),
		count:   make([]int, cells),
	}
}

func (a *cellAccumulator) merge(o *cellAccumulator) {
	for i := range a.count {
		a.r[i] += o.r[i]
		a.g[i] += o.g[i]
		a.b[i] += o.b[i]
		a.alpha[i] += o.alpha[i]
		a.density[i] += o.density[i]
		a.count[i] += o.count[i]
	}
}

// BuildGrid merges samples into a fresh voxel grid. Samples are deposited
// onto their nearest grid point; samples outside the bounds are dropped and
// counted. Accumulation runs on worker goroutines over disjoint sample
// chunks and worker results are merged in a fixed order, so the output is
// deterministic for a given config and input.
func BuildGrid(cfg GridConfig, samples []Sample) (*BuildResult, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid grid config: %w", err)
	}

	grid, err := voxelgrid.New(cfg.Nx, cfg.Ny, cfg.Nz, cfg.BoundsMin, cfg.BoundsMax)
	if err != nil {
		return nil, err
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(samples) {
		workers = len(samples)
	}
	if workers < 1 {
		workers = 1
	}

	cells := cfg.Nx * cfg.Ny * cfg.Nz
	span := cfg.BoundsMax.Sub(cfg.BoundsMin)
	inv := geom.V(1/span.X, 1/span.Y, 1/span.Z)

	accs := make([]*cellAccumulator, workers)
	droppedPer := make([]int, workers)

	chunk := (len(samples) + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		lo := w * chunk
		hi := lo + chunk
		if hi > len(samples) {
			hi = len(samples)
		}
		if lo >= hi {
			accs[w] = newCellAccumulator(cells)
			continue
		}

		wg.Add(1)
		go func(w int, part []Sample) {
			defer wg.Done()
			acc := newCellAccumulator(cells)
			for _, s := range part {
				// A negative density would deposit negative opacity.
				if s.Density < 0 || math.IsNaN(s.Density) {
					droppedPer[w]++
					continue
				}
				u := (s.Pos.X - cfg.BoundsMin.X) * inv.X
				v := (s.Pos.Y - cfg.BoundsMin.Y) * inv.Y
				q := (s.Pos.Z - cfg.BoundsMin.Z) * inv.Z
				if u < 0 || u > 1 || v < 0 || v > 1 || q < 0 || q > 1 {
					droppedPer[w]++
					continue
				}

				i := nearestIndex(u, cfg.Nx)
				j := nearestIndex(v, cfg.Ny)
				k := nearestIndex(q, cfg.Nz)
				n := i + cfg.Nx*(j+cfg.Ny*k)

				// Sample opacity weights its color contribution.
				alpha := 1 - math.Exp(-s.Density)
				acc.r[n] += s.Color.R * alpha
				acc.g[n] += s.Color.G * alpha
				acc.b[n] += s.Color.B * alpha
				acc.alpha[n] += alpha
				acc.density[n] += s.Density
				acc.count[n]++
			}
			accs[w] = acc
		}(w, samples[lo:hi])
	}
	wg.Wait()

	total := accs[0]
	for _, acc := range accs[1:] {
		total.merge(acc)
	}

	res := &BuildResult{Grid: grid}
	for _, d := range droppedPer {
		res.Dropped += d
	}

	for k := 0; k < cfg.Nz; k++ {
		for j := 0; j < cfg.Ny; j++ {
			for i := 0; i < cfg.Nx; i++ {
				n := i + cfg.Nx*(j+cfg.Ny*k)
				count := total.count[n]
				if count == 0 {
					continue
				}
				res.Kept += count

				c := geom.Color{A: clamp01(total.alpha[n] / float64(count))}
				if total.alpha[n] > 0 {
					c.R = clamp01(total.r[n] / total.alpha[n])
					c.G = clamp01(total.g[n] / total.alpha[n])
					c.B = clamp01(total.b[n] / total.alpha[n])
				}
				if err := grid.SetCell(i, j, k, total.density[n]/float64(count), c); err != nil {
					return nil, err
				}
			}
		}
	}
	return res, nil
}

// nearestIndex maps a normalized coordinate in [0,1] onto the closest of n
// corner-aligned grid points.
func nearestIndex(u float64, n int) int {
	if n == 1 {
		return 0
	}
	i := int(math.Round(u * float64(n-1)))
	if i < 0 {
		return 0
	}
	if i > n-1 {
		return n - 1
	}
	return i
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
