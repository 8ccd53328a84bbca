// Command gen-samples generates synthetic radiance sample files for testing
// grid aggregation. Shapes: box, shell, gradient.
package main

import (
	"flag"
	"log"
	"math"
	"math/rand/v2"
	"os"

	"github.com/banshee-data/radiance.report/internal/aggregate"
	"github.com/banshee-data/radiance.report/internal/geom"
)

func main() {
	output := flag.String("o", "samples.txt", "output path")
	count := flag.Int("n", 50000, "number of samples")
	shape := flag.String("shape", "box", "shape to sample: box, shell, gradient")
	seed := flag.Uint64("seed", 1, "random seed")
	flag.Parse()

	rng := rand.New(rand.NewPCG(*seed, *seed))

	var gen func(*rand.Rand) aggregate.Sample
	switch *shape {
	case "box":
		gen = boxSample
	case "shell":
		gen = shellSample
	case "gradient":
		gen = gradientSample
	default:
		log.Fatalf("unknown shape %q", *shape)
	}

	samples := make([]aggregate.Sample, *count)
	for i := range samples {
		samples[i] = gen(rng)
	}

	f, err := os.Create(*output)
	if err != nil {
		log.Fatalf("create output: %v", err)
	}
	defer f.Close()

	if err := aggregate.WriteSamples(f, samples); err != nil {
		log.Fatalf("write samples: %v", err)
	}
	log.Printf("✓ Created: %s (%d %s samples)", *output, *count, *shape)
}

// boxSample returns a point inside a solid half-unit box with constant
// density and a warm color.
func boxSample(rng *rand.Rand) aggregate.Sample {
	return aggregate.Sample{
		Pos:     geom.V(rng.Float64()-0.5, rng.Float64()-0.5, rng.Float64()-0.5),
		Color:   geom.Color{R: 1, G: 0.6, B: 0.2, A: 1},
		Density: 8,
	}
}

// shellSample returns a point on a thin spherical shell of radius 0.7,
// colored by its direction from the origin.
func shellSample(rng *rand.Rand) aggregate.Sample {
	// Gaussian components give a uniform direction after normalizing
	d := geom.V(rng.NormFloat64(), rng.NormFloat64(), rng.NormFloat64())
	if d.Length() == 0 {
		d = geom.V(0, 0, 1)
	}
	d = d.Normalize()
	r := 0.7 + (rng.Float64()-0.5)*0.1
	return aggregate.Sample{
		Pos:     d.Scale(r),
		Color:   geom.Color{R: (d.X + 1) / 2, G: (d.Y + 1) / 2, B: (d.Z + 1) / 2, A: 1},
		Density: 10,
	}
}

// gradientSample returns a point in the unit cube with density ramping
// along X and color fading from blue to red.
func gradientSample(rng *rand.Rand) aggregate.Sample {
	p := geom.V(rng.Float64()*2-1, rng.Float64()*2-1, rng.Float64()*2-1)
	t := (p.X + 1) / 2
	return aggregate.Sample{
		Pos:     p,
		Color:   geom.Color{R: t, G: 0.1, B: 1 - t, A: 1},
		Density: math.Max(0.05, 4*t),
	}
}
