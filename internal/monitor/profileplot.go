package monitor

import (
	"fmt"
	"image/color"
	"io"

	"github.com/banshee-data/radiance.report/internal/render"
	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
)

// Profile plot series accepted by the ray profile endpoints.
const (
	SeriesIntegration = "integration"
	SeriesDensity     = "density"
)

// WriteProfilePlot draws one ray's trace as a PNG. The integration series
// shows alpha, weight, and accumulated alpha per sample; the density
// series shows the raw field density along the ray.
func WriteProfilePlot(w io.Writer, prof *render.RayProfile, series, title string) error {
	p := plot.New()
	p.Title.Text = title
	p.X.Label.Text = "t (distance along ray)"

	switch series {
	case SeriesDensity:
		p.Y.Label.Text = "density"

		pts := make(plotter.XYs, 0, len(prof.Samples))
		for _, s := range prof.Samples {
			pts = append(pts, plotter.XY{X: s.T, Y: s.Density})
		}
		line, err := plotter.NewLine(pts)
		if err != nil {
			return err
		}
		line.Color = color.RGBA{R: 0x35, G: 0xb7, B: 0x79, A: 255}
		line.Width = vg.Points(1)
		p.Add(line)
		p.Legend.Add("density", line)

	case SeriesIntegration:
		p.Y.Label.Text = "per-sample value"

		curves := []struct {
			name  string
			value func(s render.RaySample) float64
		}{
			{"alpha", func(s render.RaySample) float64 { return s.Alpha }},
			{"weight", func(s render.RaySample) float64 { return s.Weight }},
			{"accumulated alpha", func(s render.RaySample) float64 { return s.AccumulatedAlpha }},
		}
		colors := generateColors(len(curves))
		for i, curve := range curves {
			pts := make(plotter.XYs, 0, len(prof.Samples))
			for _, s := range prof.Samples {
				pts = append(pts, plotter.XY{X: s.T, Y: curve.value(s)})
			}
			line, err := plotter.NewLine(pts)
			if err != nil {
				return err
			}
			line.Color = colors[i]
			line.Width = vg.Points(1)
			p.Add(line)
			p.Legend.Add(curve.name, line)
		}

	default:
		return fmt.Errorf("unknown profile series %q", series)
	}

	p.Legend.Top = true
	p.Legend.Left = false
	p.Legend.XOffs = -10
	p.Legend.YOffs = -10

	wt, err := p.WriterTo(8*vg.Inch, 4*vg.Inch, "png")
	if err != nil {
		return err
	}
	_, err = wt.WriteTo(w)
	return err
}

// generateColors creates a palette of distinct colors for plot lines
func generateColors(n int) []color.Color {
	if n <= 0 {
		return nil
	}

	colors := make([]color.Color, n)
	for i := 0; i < n; i++ {
		hue := float64(i) / float64(n)
		r, g, b := hslToRGB(hue, 0.7, 0.5)
		colors[i] = color.RGBA{R: r, G: g, B: b, A: 255}
	}
	return colors
}

// hslToRGB converts HSL to RGB (0-255 range)
func hslToRGB(h, s, l float64) (r, g, b uint8) {
	var rf, gf, bf float64

	if s == 0 {
		rf, gf, bf = l, l, l
	} else {
		var q float64
		if l < 0.5 {
			q = l * (1 + s)
		} else {
			q = l + s - l*s
		}
		p := 2*l - q
		rf = hueToRGB(p, q, h+1.0/3.0)
		gf = hueToRGB(p, q, h)
		bf = hueToRGB(p, q, h-1.0/3.0)
	}

	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

func hueToRGB(p, q, t float64) float64 {
	if t < 0 {
		t += 1
	}
	if t > 1 {
		t -= 1
	}
	if t < 1.0/6.0 {
		return p + (q-p)*6*t
	}
	if t < 1.0/2.0 {
		return q
	}
	if t < 2.0/3.0 {
		return p + (q-p)*(2.0/3.0-t)*6
	}
	return p
}
