// Chart data preparation, kept separate from the eCharts rendering so the
// transformations can be tested without going through HTTP.

package monitor

import (
	"fmt"
	"math"

	"github.com/banshee-data/radiance.report/internal/field/voxelgrid"
)

// ScatterPoint represents a single point in an XY scatter chart.
type ScatterPoint struct {
	X     float64 `json:"x"`
	Y     float64 `json:"y"`
	Value float64 `json:"value"`
}

// SliceChartData holds prepared data for rendering one axis-aligned slice
// of a voxel grid as a scatter chart.
type SliceChartData struct {
	Points     []ScatterPoint `json:"points"`
	Axis       string         `json:"axis"`
	SliceIndex int            `json:"slice_index"`
	XName      string         `json:"x_name"`
	YName      string         `json:"y_name"`
	MaxAbs     float64        `json:"max_abs"`
	MaxValue   float64        `json:"max_value"`
	Stride     int            `json:"stride"`
	NumPoints  int            `json:"num_points"`
	Occupied   int            `json:"occupied"`
}

// PrepareSliceChartData extracts the occupied cells of one slice through
// the grid. axis selects the slicing axis (x, y, or z; default z) and
// index the cell layer along it, with a negative index meaning the middle
// layer. Occupied cells beyond maxPoints are dropped by stride so chart
// payloads stay bounded.
func PrepareSliceChartData(grid *voxelgrid.VoxelRadianceField, axis string, index, maxPoints int) (*SliceChartData, error) {
	nx, ny, nz := grid.Resolution()
	bmin, bmax := grid.Bounds()

	if maxPoints <= 0 {
		maxPoints = 8000
	}

	var layers int
	switch axis {
	case "x":
		layers = nx
	case "y":
		layers = ny
	case "z", "":
		axis = "z"
		layers = nz
	default:
		return nil, fmt.Errorf("unknown slice axis %q", axis)
	}
	if index < 0 {
		index = layers / 2
	}
	if index >= layers {
		return nil, fmt.Errorf("slice index %d out of range for %s axis with %d layers", index, axis, layers)
	}

	// Cell centers along each world axis
	cellX := func(i int) float64 { return bmin.X + (float64(i)+0.5)*(bmax.X-bmin.X)/float64(nx) }
	cellY := func(j int) float64 { return bmin.Y + (float64(j)+0.5)*(bmax.Y-bmin.Y)/float64(ny) }
	cellZ := func(k int) float64 { return bmin.Z + (float64(k)+0.5)*(bmax.Z-bmin.Z)/float64(nz) }

	data := &SliceChartData{Axis: axis, SliceIndex: index, Stride: 1}

	var occupied []ScatterPoint
	switch axis {
	case "z":
		data.XName, data.YName = "X (world)", "Y (world)"
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				density, _, _ := grid.Cell(i, j, index)
				if density <= 0 {
					continue
				}
				occupied = append(occupied, ScatterPoint{X: cellX(i), Y: cellY(j), Value: density})
			}
		}
	case "y":
		data.XName, data.YName = "X (world)", "Z (world)"
		for k := 0; k < nz; k++ {
			for i := 0; i < nx; i++ {
				density, _, _ := grid.Cell(i, index, k)
				if density <= 0 {
					continue
				}
				occupied = append(occupied, ScatterPoint{X: cellX(i), Y: cellZ(k), Value: density})
			}
		}
	case "x":
		data.XName, data.YName = "Y (world)", "Z (world)"
		for k := 0; k < nz; k++ {
			for j := 0; j < ny; j++ {
				density, _, _ := grid.Cell(index, j, k)
				if density <= 0 {
					continue
				}
				occupied = append(occupied, ScatterPoint{X: cellY(j), Y: cellZ(k), Value: density})
			}
		}
	}
	data.Occupied = len(occupied)

	// Downsample by stride to stay within maxPoints
	if len(occupied) > maxPoints {
		data.Stride = int(math.Ceil(float64(len(occupied)) / float64(maxPoints)))
	}
	data.Points = make([]ScatterPoint, 0, len(occupied)/data.Stride+1)
	for i := 0; i < len(occupied); i += data.Stride {
		p := occupied[i]
		if a := math.Abs(p.X); a > data.MaxAbs {
			data.MaxAbs = a
		}
		if a := math.Abs(p.Y); a > data.MaxAbs {
			data.MaxAbs = a
		}
		if p.Value > data.MaxValue {
			data.MaxValue = p.Value
		}
		data.Points = append(data.Points, p)
	}
	data.NumPoints = len(data.Points)

	return data, nil
}

// DensityHistogramData holds the bucketed density distribution of a grid's
// occupied cells.
type DensityHistogramData struct {
	Labels     []string `json:"labels"`
	Counts     []int    `json:"counts"`
	BucketSize float64  `json:"bucket_size"`
	MaxDensity float64  `json:"max_density"`
	Total      int      `json:"total_cells"`
	Occupied   int      `json:"occupied_cells"`
}

// PrepareDensityHistogram buckets every occupied cell density into bins
// equal-width buckets between zero and the maximum density. Empty cells
// count toward Total but are not bucketed, so sparse grids stay readable.
func PrepareDensityHistogram(grid *voxelgrid.VoxelRadianceField, bins int) *DensityHistogramData {
	nx, ny, nz := grid.Resolution()

	if bins <= 0 {
		bins = 32
	}

	data := &DensityHistogramData{Total: nx * ny * nz}

	var densities []float64
	for k := 0; k < nz; k++ {
		for j := 0; j < ny; j++ {
			for i := 0; i < nx; i++ {
				d, _, _ := grid.Cell(i, j, k)
				if d <= 0 {
					continue
				}
				densities = append(densities, d)
				if d > data.MaxDensity {
					data.MaxDensity = d
				}
			}
		}
	}
	data.Occupied = len(densities)
	if data.Occupied == 0 {
		return data
	}

	data.BucketSize = data.MaxDensity / float64(bins)
	data.Counts = make([]int, bins)
	data.Labels = make([]string, bins)
	for b := 0; b < bins; b++ {
		data.Labels[b] = fmt.Sprintf("%.3g", float64(b)*data.BucketSize)
	}
	for _, d := range densities {
		b := int(d / data.BucketSize)
		if b >= bins {
			// the maximum density lands in the last bucket
			b = bins - 1
		}
		data.Counts[b]++
	}

	return data
}
