package geom

// Ray is a half-line with a sampling interval. Dir is unit length by
// construction; TMin and TMax bound the parametric range that is sampled.
// Rays are immutable once constructed and live for a single pixel.
type Ray struct {
	Origin Vec3    `json:"origin"`
	Dir    Vec3    `json:"dir"`
	TMin   float64 `json:"t_min"`
	TMax   float64 `json:"t_max"`
}

// At returns the point Origin + t*Dir.
func (r Ray) At(t float64) Vec3 {
	return r.Origin.Add(r.Dir.Scale(t))
}
