package render

import (
	"github.com/banshee-data/radiance.report/internal/field"
	"github.com/banshee-data/radiance.report/internal/geom"
)

// RaySample records one integration step along a profiled ray.
type RaySample struct {
	Index            int        `json:"index"`
	T                float64    `json:"t"`
	Density          float64    `json:"density"`
	Color            geom.Color `json:"color"`
	Alpha            float64    `json:"alpha"`
	Weight           float64    `json:"weight"`
	AccumulatedAlpha float64    `json:"accumulated_alpha"`
}

// RayProfile is the full integration trace for one ray plus the composited
// result. Samples past early termination are absent, so the trace also
// shows where a ray stopped.
type RayProfile struct {
	Ray     geom.Ray    `json:"ray"`
	Samples []RaySample `json:"samples"`
	Final   geom.Color  `json:"final"`
}

// ProfileRay renders a single ray while recording every evaluated sample.
// It is the diagnostic twin of RenderRay and shares its integration loop,
// so the final color is identical to what RenderRay returns for the same
// ray and field.
func (r *Renderer) ProfileRay(ray geom.Ray, f field.RadianceField) *RayProfile {
	p := &RayProfile{Ray: ray, Samples: make([]RaySample, 0, r.cfg.NumSamples)}
	p.Final = r.integrate(ray, f, func(s RaySample) {
		p.Samples = append(p.Samples, s)
	})
	return p
}
