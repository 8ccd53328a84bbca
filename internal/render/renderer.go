package render

import (
	"context"
	"fmt"
	"math"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/banshee-data/radiance.report/internal/field"
	"github.com/banshee-data/radiance.report/internal/geom"
)

// RenderConfig controls volume integration along each ray.
type RenderConfig struct {
	NumSamples            int     // integration samples per ray (default: 64)
	EarlyTerminationAlpha float64 // stop sampling once accumulated alpha exceeds this (default: 0.99)
	Workers               int     // parallel row workers for RenderFrame; 0 means GOMAXPROCS
}

// DefaultRenderConfig returns the sampling parameters used when a job does
// not specify them.
func DefaultRenderConfig() RenderConfig {
	return RenderConfig{
		NumSamples:            64,
		EarlyTerminationAlpha: 0.99,
	}
}

// Validate checks if the configuration is valid.
func (c RenderConfig) Validate() error {
	if c.NumSamples < 1 {
		return fmt.Errorf("NumSamples must be at least 1, got %d", c.NumSamples)
	}
	if c.EarlyTerminationAlpha <= 0 || c.EarlyTerminationAlpha > 1 {
		return fmt.Errorf("EarlyTerminationAlpha must be in (0, 1], got %f", c.EarlyTerminationAlpha)
	}
	if c.Workers < 0 {
		return fmt.Errorf("Workers must be non-negative, got %d", c.Workers)
	}
	return nil
}

// Renderer integrates rays through a RadianceField. It holds only
// configuration, so one renderer can serve concurrent frames.
type Renderer struct {
	cfg RenderConfig
}

// NewRenderer builds a renderer. A zero EarlyTerminationAlpha takes the
// 0.99 default and zero NumSamples takes 64.
func NewRenderer(cfg RenderConfig) (*Renderer, error) {
	if cfg.NumSamples == 0 {
		cfg.NumSamples = 64
	}
	if cfg.EarlyTerminationAlpha == 0 {
		cfg.EarlyTerminationAlpha = 0.99
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid render config: %w", err)
	}
	return &Renderer{cfg: cfg}, nil
}

// Config returns the sampling parameters the renderer was built with.
func (r *Renderer) Config() RenderConfig { return r.cfg }

// RenderRay integrates the volume rendering equation along one ray and
// composites the remaining transmittance against a white background. The
// returned color always has alpha 1.
func (r *Renderer) RenderRay(ray geom.Ray, f field.RadianceField) geom.Color {
	return r.integrate(ray, f, nil)
}

// integrate is the single integration loop shared by RenderRay and
// ProfileRay. record, when non-nil, observes every evaluated sample.
//
// Samples sit at segment midpoints: t = t_min + (i+0.5)*step. Opacity per
// segment is alpha = 1 - exp(-density*step); each sample contributes
// alpha * (1 - accumulated_alpha) of its color, so accumulated alpha is
// non-decreasing and never exceeds 1. Sampling stops once accumulated
// alpha crosses the early-termination threshold, since the remaining
// transmittance makes further contributions negligible.
func (r *Renderer) integrate(ray geom.Ray, f field.RadianceField, record func(RaySample)) geom.Color {
	step := (ray.TMax - ray.TMin) / float64(r.cfg.NumSamples)

	var acc geom.Color
	for i := 0; i < r.cfg.NumSamples; i++ {
		t := ray.TMin + (float64(i)+0.5)*step
		density, sample := f.Query(ray.At(t), ray.Dir)

		// A field returning a negative or NaN density would make
		// accumulated alpha decrease; integrate it as empty space.
		if density < 0 || math.IsNaN(density) {
			density = 0
		}

		alpha := 1 - math.Exp(-density*step)
		weight := alpha * (1 - acc.A)
		acc.R += weight * sample.R
		acc.G += weight * sample.G
		acc.B += weight * sample.B
		acc.A += weight

		if record != nil {
			record(RaySample{
				Index:            i,
				T:                t,
				Density:          density,
				Color:            sample,
				Alpha:            alpha,
				Weight:           weight,
				AccumulatedAlpha: acc.A,
			})
		}
		if acc.A > r.cfg.EarlyTerminationAlpha {
			break
		}
	}

	// Whatever transmittance is left reaches the white background.
	bg := 1 - acc.A
	acc.R += bg
	acc.G += bg
	acc.B += bg
	acc.A = 1
	return acc
}

// RenderFrame renders every pixel of the camera's image plane. Rows are
// distributed over worker goroutines through an atomic row counter; the
// field is only read, so workers share it without locking. Cancellation is
// checked between rows, and a cancelled context returns ctx.Err() with no
// image.
func (r *Renderer) RenderFrame(ctx context.Context, cam *Camera, f field.RadianceField) (*Image, error) {
	width, height := cam.ImageSize()
	img := NewImage(width, height)

	workers := r.cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > height {
		workers = height
	}

	var nextRow atomic.Int64
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				y := int(nextRow.Add(1)) - 1
				if y >= height || ctx.Err() != nil {
					return
				}
				for x := 0; x < width; x++ {
					img.SetPixel(x, y, r.RenderRay(cam.GenerateRay(x, y), f))
				}
			}
		}()
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return img, nil
}
