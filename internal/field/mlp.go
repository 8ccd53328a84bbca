package field

import (
	"fmt"
	"math/rand/v2"

	"github.com/banshee-data/radiance.report/internal/geom"
)

// MLPConfig describes the shape of an MLPRadianceField. The zero value is
// not usable; DefaultMLPConfig gives the standard NeRF architecture.
type MLPConfig struct {
	Hidden         int    `json:"hidden"`          // width of hidden layers
	DensityLayers  int    `json:"density_layers"`  // total layers in the density sub-network
	PosFrequencies int    `json:"pos_frequencies"` // positional-encoding bands for positions
	DirFrequencies int    `json:"dir_frequencies"` // positional-encoding bands for view directions
	Seed           uint64 `json:"seed"`            // weight initialization seed
}

// DefaultMLPConfig returns the network shape used when a scene does not
// specify one: 8 density layers of width 256, with 10 positional and 4
// directional encoding bands.
func DefaultMLPConfig() MLPConfig {
	return MLPConfig{
		Hidden:         256,
		DensityLayers:  8,
		PosFrequencies: 10,
		DirFrequencies: 4,
		Seed:           1,
	}
}

// Validate checks the config for constructability.
func (c MLPConfig) Validate() error {
	if c.Hidden < 1 {
		return fmt.Errorf("hidden size must be positive, got %d", c.Hidden)
	}
	if c.DensityLayers < 2 {
		return fmt.Errorf("density sub-network needs at least 2 layers, got %d", c.DensityLayers)
	}
	if c.PosFrequencies < 0 || c.DirFrequencies < 0 {
		return fmt.Errorf("encoding frequencies must be non-negative, got pos=%d dir=%d", c.PosFrequencies, c.DirFrequencies)
	}
	return nil
}

// MLPRadianceField evaluates a small fully-connected network per query. The
// density sub-network maps encoded positions to a non-negative density and a
// hidden feature vector; the color sub-network maps that feature vector plus
// the encoded view direction to an RGB sample.
//
// Weights are randomly initialized and inference-only: nothing here trains.
type MLPRadianceField struct {
	cfg     MLPConfig
	density []*DenseLayer
	color   []*DenseLayer
}

// NewMLPRadianceField builds both sub-networks. Construction is atomic: any
// invalid dimension fails the whole constructor and no partially built field
// is returned.
func NewMLPRadianceField(cfg MLPConfig) (*MLPRadianceField, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid MLP config: %w", err)
	}

	src := rand.NewPCG(cfg.Seed, cfg.Seed)
	posSize := EncodedSize(cfg.PosFrequencies)
	dirSize := EncodedSize(cfg.DirFrequencies)

	// Density sub-network: encoded position in, 1 scalar out, hidden layers
	// of width Hidden in between.
	densitySizes := make([][2]int, 0, cfg.DensityLayers)
	densitySizes = append(densitySizes, [2]int{posSize, cfg.Hidden})
	for i := 0; i < cfg.DensityLayers-2; i++ {
		densitySizes = append(densitySizes, [2]int{cfg.Hidden, cfg.Hidden})
	}
	densitySizes = append(densitySizes, [2]int{cfg.Hidden, 1})

	density := make([]*DenseLayer, 0, len(densitySizes))
	for i, s := range densitySizes {
		l, err := NewDenseLayer(s[0], s[1], true, src)
		if err != nil {
			return nil, fmt.Errorf("build density layer %d: %w", i, err)
		}
		density = append(density, l)
	}

	// Color sub-network: hidden features concatenated with the encoded view
	// direction in, RGB out.
	colorSizes := [][2]int{
		{cfg.Hidden + dirSize, cfg.Hidden},
		{cfg.Hidden, cfg.Hidden},
		{cfg.Hidden, 3},
	}
	color := make([]*DenseLayer, 0, len(colorSizes))
	for i, s := range colorSizes {
		l, err := NewDenseLayer(s[0], s[1], true, src)
		if err != nil {
			return nil, fmt.Errorf("build color layer %d: %w", i, err)
		}
		color = append(color, l)
	}

	return &MLPRadianceField{cfg: cfg, density: density, color: color}, nil
}

// Config returns the network shape the field was built with.
func (f *MLPRadianceField) Config() MLPConfig { return f.cfg }

// Query runs a forward pass. Density is clamped non-negative by a final
// ReLU (it behaves like an absorption coefficient and must not go below
// zero); color channels are squashed into [0,1] by a final Sigmoid. Query
// allocates its own scratch, so concurrent calls on one field are safe.
func (f *MLPRadianceField) Query(pos, dir geom.Vec3) (float64, geom.Color) {
	h := Encode(pos, f.cfg.PosFrequencies)

	// All density layers except the last, ReLU after each. The activation
	// entering the final layer doubles as the feature bottleneck feeding the
	// color branch.
	last := len(f.density) - 1
	for _, l := range f.density[:last] {
		h = l.forward(h)
		relu(h)
	}
	features := h

	out := f.density[last].forward(features)
	density := out[0]
	if density < 0 {
		density = 0
	}

	dirFeat := Encode(dir, f.cfg.DirFrequencies)
	h = make([]float64, 0, len(features)+len(dirFeat))
	h = append(append(h, features...), dirFeat...)

	for i, l := range f.color {
		h = l.forward(h)
		if i < len(f.color)-1 {
			relu(h)
		}
	}

	return density, geom.Color{
		R: sigmoid(h[0]),
		G: sigmoid(h[1]),
		B: sigmoid(h[2]),
		A: 1,
	}
}
