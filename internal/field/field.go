// Package field defines the radiance-field abstraction shared by the
// renderer and its two concrete implementations: an MLP evaluated on the
// fly and a precomputed voxel grid (see the voxelgrid subpackage).
//
// Everything in this package is pure computation over immutable state.
// Fields are constructed once, then queried concurrently without locking;
// no function here logs or touches I/O.
package field

import (
	"math"

	"github.com/banshee-data/radiance.report/internal/geom"
)

// RadianceField maps a 3D position and a view direction to a volume density
// and a sample color. Implementations must be safe for concurrent Query
// calls once constructed.
type RadianceField interface {
	Query(pos, dir geom.Vec3) (density float64, color geom.Color)
}

// relu clamps negative activations to zero in place.
func relu(x []float64) {
	for i, v := range x {
		if v < 0 {
			x[i] = 0
		}
	}
}

// sigmoid squashes x into (0, 1).
func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}
