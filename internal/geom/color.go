package geom

// Color is an RGBA sample. R, G and B are semantically in [0, 1]; A holds
// opacity (accumulated opacity during compositing, per-sample opacity in a
// voxel grid).
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// Transparent is the zero-contribution color returned for samples outside a
// field's domain.
var Transparent = Color{}

// White is the background color composited behind under-saturated rays.
var White = Color{R: 1, G: 1, B: 1, A: 1}

// Scale returns c with R, G and B scaled by s. A is left unchanged.
func (c Color) Scale(s float64) Color {
	return Color{R: c.R * s, G: c.G * s, B: c.B * s, A: c.A}
}
