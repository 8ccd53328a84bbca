// Package aggregate merges point samples of a radiance field into a voxel
// grid. Input samples come from CSV-style lines of "x,y,z,r,g,b,density";
// per-cell color is blended weighted by each sample's opacity, so dense
// samples dominate the merged color the way they dominate a rendered ray.
package aggregate

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/banshee-data/radiance.report/internal/geom"
)

// sampleFields is the column count of the sample line format.
const sampleFields = 7

// Sample is one point measurement of a radiance field.
type Sample struct {
	Pos     geom.Vec3
	Color   geom.Color // R, G, B used; A is derived from density during merging
	Density float64
}

// ParseSamples reads "x,y,z,r,g,b,density" lines from r. Blank lines and
// lines starting with '#' are skipped. Malformed lines are dropped and
// counted rather than failing the whole stream, since sample files are
// produced by external partition jobs that may emit partial records. A
// negative or NaN density counts as malformed: opacity 1-exp(-d) has no
// meaning for it and a grid holding one breaks alpha accumulation.
func ParseSamples(r io.Reader) (samples []Sample, dropped int, err error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		s, ok := parseSampleLine(line)
		if !ok {
			dropped++
			continue
		}
		samples = append(samples, s)
	}
	if err := scanner.Err(); err != nil {
		return nil, 0, fmt.Errorf("read samples: %w", err)
	}
	return samples, dropped, nil
}

func parseSampleLine(line string) (Sample, bool) {
	parts := strings.Split(line, ",")
	if len(parts) != sampleFields {
		return Sample{}, false
	}

	var vals [sampleFields]float64
	for i, p := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return Sample{}, false
		}
		vals[i] = v
	}
	if vals[6] < 0 || math.IsNaN(vals[6]) {
		return Sample{}, false
	}

	return Sample{
		Pos:     geom.V(vals[0], vals[1], vals[2]),
		Color:   geom.Color{R: vals[3], G: vals[4], B: vals[5], A: 1},
		Density: vals[6],
	}, true
}

// WriteSamples writes samples in the line format ParseSamples reads.
func WriteSamples(w io.Writer, samples []Sample) error {
	bw := bufio.NewWriter(w)
	for _, s := range samples {
		_, err := fmt.Fprintf(bw, "%g,%g,%g,%g,%g,%g,%g\n",
			s.Pos.X, s.Pos.Y, s.Pos.Z, s.Color.R, s.Color.G, s.Color.B, s.Density)
		if err != nil {
			return fmt.Errorf("write samples: %w", err)
		}
	}
	return bw.Flush()
}
