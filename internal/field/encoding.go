package field

import (
	"math"

	"github.com/banshee-data/radiance.report/internal/geom"
)

// EncodedSize returns the feature length produced by Encode for the given
// number of frequency bands: the 3 raw components plus sin/cos per component
// per band.
func EncodedSize(numFrequencies int) int {
	return 3 + 6*numFrequencies
}

// Encode expands v into positional-encoding features. The output starts with
// the raw components (X, Y, Z); then for each band f in 0..numFrequencies-1,
// with scale 2^f, it appends
//
//	sin(scale*X), cos(scale*X), sin(scale*Y), cos(scale*Y), sin(scale*Z), cos(scale*Z)
//
// in exactly that order. The ordering is load-bearing: it determines which
// weight columns of the first network layer see which feature, so it must
// not change.
func Encode(v geom.Vec3, numFrequencies int) []float64 {
	out := make([]float64, EncodedSize(numFrequencies))
	EncodeInto(out, v, numFrequencies)
	return out
}

// EncodeInto writes the encoding of v into dst, which must have length at
// least EncodedSize(numFrequencies). It produces values identical to Encode
// and exists so the render hot path can reuse one buffer per worker.
func EncodeInto(dst []float64, v geom.Vec3, numFrequencies int) {
	dst[0], dst[1], dst[2] = v.X, v.Y, v.Z
	i := 3
	scale := 1.0
	for f := 0; f < numFrequencies; f++ {
		sx, cx := math.Sincos(scale * v.X)
		sy, cy := math.Sincos(scale * v.Y)
		sz, cz := math.Sincos(scale * v.Z)
		dst[i], dst[i+1] = sx, cx
		dst[i+2], dst[i+3] = sy, cy
		dst[i+4], dst[i+5] = sz, cz
		i += 6
		scale *= 2
	}
}
