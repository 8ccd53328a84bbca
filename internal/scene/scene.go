// Package scene parses scene config JSON and builds the camera and radiance
// field a render job describes. Scene configs arrive as HTTP job submissions
// or as files for the offline CLI; both go through Parse, so defaults and
// validation are applied in one place.
package scene

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/banshee-data/radiance.report/internal/config"
	"github.com/banshee-data/radiance.report/internal/field"
	"github.com/banshee-data/radiance.report/internal/field/voxelgrid"
	"github.com/banshee-data/radiance.report/internal/geom"
	"github.com/banshee-data/radiance.report/internal/render"
)

// Field types accepted in scene configs.
const (
	FieldMLP   = "mlp"
	FieldVoxel = "voxel"
)

// Image defaults applied when a scene leaves the fields zero.
const (
	DefaultWidth   = 512
	DefaultHeight  = 512
	DefaultSamples = 64
)

// maxSceneBytes caps scene files and uploaded scene bodies.
const maxSceneBytes = 1 << 20

// Defaults carries the node-level tuning values a scene falls back to for
// every field it omits. Zero-valued entries keep this package's own
// conventions (and, further down, the camera and renderer defaults), so a
// zero Defaults behaves like StockDefaults.
type Defaults struct {
	Width   int
	Height  int
	Samples int

	FocalLength           float64 // 0 keeps the width/2 convention
	NearPlane             float64
	FarPlane              float64
	EarlyTerminationAlpha float64

	Hidden         int
	DensityLayers  int
	PosFrequencies int
	DirFrequencies int
}

// StockDefaults returns the fallbacks used when the node runs without a
// tuning config.
func StockDefaults() Defaults {
	return Defaults{Width: DefaultWidth, Height: DefaultHeight, Samples: DefaultSamples}
}

// DefaultsFromTuning maps a tuning config onto scene fallbacks, so editing
// the config file changes what an omitted scene field renders as. The
// focal length only carries over when the config pins it explicitly: the
// width/2 convention must track the scene's own width, not the config's.
func DefaultsFromTuning(t *config.TuningConfig) Defaults {
	d := Defaults{
		Width:                 t.GetImageWidth(),
		Height:                t.GetImageHeight(),
		Samples:               t.GetNumRaySamples(),
		NearPlane:             t.GetNearPlane(),
		FarPlane:              t.GetFarPlane(),
		EarlyTerminationAlpha: t.GetEarlyTerminationAlpha(),
		Hidden:                t.GetHiddenSize(),
		DensityLayers:         t.GetNumDensityLayers(),
		PosFrequencies:        t.GetPosEncodingFrequencies(),
		DirFrequencies:        t.GetDirEncodingFrequencies(),
	}
	if t.FocalLength != nil {
		d.FocalLength = *t.FocalLength
	}
	return d
}

// CameraCfg positions the camera. When both position and target are zero the
// demo pose is used: on the +z axis at distance 3, looking back at the origin.
// A zero up vector takes +y and a zero focal length takes width/2.
type CameraCfg struct {
	Position [3]float64 `json:"position"`
	Target   [3]float64 `json:"target"`
	Up       [3]float64 `json:"up"`
	Focal    float64    `json:"focal,omitempty"`
}

// VoxelCfg selects the source of a voxel field: a stored grid snapshot
// (by ID, or the latest snapshot under a name) or an inline uniform fill
// for synthetic test scenes.
type VoxelCfg struct {
	SnapshotID   string     `json:"snapshot_id,omitempty"`
	SnapshotName string     `json:"snapshot_name,omitempty"`
	Resolution   [3]int     `json:"resolution,omitempty"`
	BoundsMin    [3]float64 `json:"bounds_min,omitempty"`
	BoundsMax    [3]float64 `json:"bounds_max,omitempty"`
	FillDensity  float64    `json:"fill_density,omitempty"`
	FillColor    [4]float64 `json:"fill_color,omitempty"`
}

// FieldCfg names the radiance field type and carries its parameters. The
// mlp block reuses field.MLPConfig, so its JSON naming matches the field
// package exactly.
type FieldCfg struct {
	Type  string           `json:"type"`
	MLP   *field.MLPConfig `json:"mlp,omitempty"`
	Voxel *VoxelCfg        `json:"voxel,omitempty"`
}

// Config is a complete render scene: image geometry, camera pose, and the
// radiance field to sample.
type Config struct {
	Name    string    `json:"name,omitempty"`
	Width   int       `json:"width,omitempty"`
	Height  int       `json:"height,omitempty"`
	Samples int       `json:"samples,omitempty"`
	Camera  CameraCfg `json:"camera"`
	Field   FieldCfg  `json:"field"`

	// Resolved during applyDefaults; not part of the scene JSON. Zero
	// values defer to the camera and renderer defaults at build time.
	nearPlane      float64
	farPlane       float64
	earlyTermAlpha float64
}

// Parse decodes a scene config with the stock fallbacks.
func Parse(data []byte) (*Config, error) {
	return ParseWithDefaults(data, StockDefaults())
}

// ParseWithDefaults decodes a scene config, fills omitted fields from d,
// and validates the result.
func ParseWithDefaults(data []byte, d Defaults) (*Config, error) {
	if len(data) > maxSceneBytes {
		return nil, fmt.Errorf("scene config too large: %d bytes (max %d)", len(data), maxSceneBytes)
	}
	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse scene config: %w", err)
	}
	cfg.applyDefaults(d)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Load reads and parses a scene config file with the stock fallbacks.
func Load(path string) (*Config, error) {
	return LoadWithDefaults(path, StockDefaults())
}

// LoadWithDefaults reads and parses a scene config file with the given
// fallbacks.
func LoadWithDefaults(path string, d Defaults) (*Config, error) {
	if strings.ToLower(filepath.Ext(path)) != ".json" {
		return nil, fmt.Errorf("scene config must be a .json file, got %q", path)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scene config: %w", err)
	}
	return ParseWithDefaults(data, d)
}

// applyDefaults zero-fills omitted fields from d. A scene body of {} is a
// valid scene: the default MLP field rendered from the demo pose.
func (c *Config) applyDefaults(d Defaults) {
	if d.Width == 0 {
		d.Width = DefaultWidth
	}
	if d.Height == 0 {
		d.Height = DefaultHeight
	}
	if d.Samples == 0 {
		d.Samples = DefaultSamples
	}

	if c.Width == 0 {
		c.Width = d.Width
	}
	if c.Height == 0 {
		c.Height = d.Height
	}
	if c.Samples == 0 {
		c.Samples = d.Samples
	}
	c.nearPlane = d.NearPlane
	c.farPlane = d.FarPlane
	c.earlyTermAlpha = d.EarlyTerminationAlpha

	if c.Camera.Position == ([3]float64{}) && c.Camera.Target == ([3]float64{}) {
		c.Camera.Position = [3]float64{0, 0, 3}
	}
	if c.Camera.Up == ([3]float64{}) {
		c.Camera.Up = [3]float64{0, 1, 0}
	}
	if c.Camera.Focal == 0 {
		c.Camera.Focal = d.FocalLength
	}
	if c.Field.Type == "" {
		c.Field.Type = FieldMLP
	}
	if c.Field.Type == FieldMLP && c.Field.MLP == nil {
		c.Field.MLP = &field.MLPConfig{}
	}
	if c.Field.MLP != nil {
		def := field.DefaultMLPConfig()
		if d.Hidden > 0 {
			def.Hidden = d.Hidden
		}
		if d.DensityLayers > 0 {
			def.DensityLayers = d.DensityLayers
		}
		if d.PosFrequencies > 0 {
			def.PosFrequencies = d.PosFrequencies
		}
		if d.DirFrequencies > 0 {
			def.DirFrequencies = d.DirFrequencies
		}
		m := c.Field.MLP
		if m.Hidden == 0 {
			m.Hidden = def.Hidden
		}
		if m.DensityLayers == 0 {
			m.DensityLayers = def.DensityLayers
		}
		if m.PosFrequencies == 0 {
			m.PosFrequencies = def.PosFrequencies
		}
		if m.DirFrequencies == 0 {
			m.DirFrequencies = def.DirFrequencies
		}
		if m.Seed == 0 {
			m.Seed = def.Seed
		}
	}
	if v := c.Field.Voxel; v != nil && v.SnapshotID == "" && v.SnapshotName == "" {
		if v.Resolution == ([3]int{}) {
			v.Resolution = [3]int{2, 2, 2}
		}
		if v.BoundsMin == ([3]float64{}) && v.BoundsMax == ([3]float64{}) {
			v.BoundsMin = [3]float64{-1, -1, -1}
			v.BoundsMax = [3]float64{1, 1, 1}
		}
		if v.FillColor == ([4]float64{}) {
			v.FillColor = [4]float64{1, 1, 1, 1}
		}
	}
}

// Validate checks the scene for buildability. Camera geometry is validated
// later, at construction, since degenerate poses only show up there.
func (c *Config) Validate() error {
	if c.Width < 1 || c.Height < 1 {
		return fmt.Errorf("image size must be at least 1x1, got %dx%d", c.Width, c.Height)
	}
	if c.Samples < 1 {
		return fmt.Errorf("samples must be at least 1, got %d", c.Samples)
	}
	switch c.Field.Type {
	case FieldMLP:
		if c.Field.MLP == nil {
			return fmt.Errorf("field type %q needs an mlp block", c.Field.Type)
		}
		if err := c.Field.MLP.Validate(); err != nil {
			return fmt.Errorf("invalid mlp block: %w", err)
		}
	case FieldVoxel:
		if c.Field.Voxel == nil {
			return fmt.Errorf("field type %q needs a voxel block", c.Field.Type)
		}
	default:
		return fmt.Errorf("unknown field type %q (want %q or %q)", c.Field.Type, FieldMLP, FieldVoxel)
	}
	return nil
}

// RenderConfig returns the sampling parameters the scene asks for.
func (c *Config) RenderConfig() render.RenderConfig {
	cfg := render.DefaultRenderConfig()
	cfg.NumSamples = c.Samples
	if c.earlyTermAlpha > 0 {
		cfg.EarlyTerminationAlpha = c.earlyTermAlpha
	}
	return cfg
}

// Build constructs the camera and radiance field the scene describes. loader
// resolves snapshot-backed voxel fields and may be nil for scenes that do
// not reference stored snapshots.
func (c *Config) Build(loader voxelgrid.SnapshotLoader) (*render.Camera, field.RadianceField, error) {
	cam, err := c.buildCamera()
	if err != nil {
		return nil, nil, err
	}
	fld, err := c.buildField(loader)
	if err != nil {
		return nil, nil, err
	}
	return cam, fld, nil
}

func (c *Config) buildCamera() (*render.Camera, error) {
	cfg := render.CameraConfig{
		Width:       c.Width,
		Height:      c.Height,
		FocalLength: c.Camera.Focal,
		NearPlane:   c.nearPlane,
		FarPlane:    c.farPlane,
	}
	cam, err := render.NewCamera(vec(c.Camera.Position), vec(c.Camera.Target), vec(c.Camera.Up), cfg)
	if err != nil {
		return nil, fmt.Errorf("scene camera: %w", err)
	}
	return cam, nil
}

func (c *Config) buildField(loader voxelgrid.SnapshotLoader) (field.RadianceField, error) {
	switch c.Field.Type {
	case FieldMLP:
		f, err := field.NewMLPRadianceField(*c.Field.MLP)
		if err != nil {
			return nil, fmt.Errorf("scene mlp field: %w", err)
		}
		return f, nil
	case FieldVoxel:
		return c.buildVoxelField(loader)
	default:
		return nil, fmt.Errorf("unknown field type %q", c.Field.Type)
	}
}

func (c *Config) buildVoxelField(loader voxelgrid.SnapshotLoader) (field.RadianceField, error) {
	v := c.Field.Voxel
	if v.SnapshotID != "" || v.SnapshotName != "" {
		if loader == nil {
			return nil, fmt.Errorf("scene references a stored snapshot but no snapshot loader is available")
		}
		var snap *voxelgrid.Snapshot
		var err error
		if v.SnapshotID != "" {
			snap, err = loader.GetGridSnapshot(v.SnapshotID)
		} else {
			snap, err = loader.GetLatestGridSnapshotByName(v.SnapshotName)
		}
		if err != nil {
			return nil, fmt.Errorf("load grid snapshot: %w", err)
		}
		f, err := voxelgrid.FromSnapshot(snap)
		if err != nil {
			return nil, fmt.Errorf("rebuild grid from snapshot %s: %w", snap.SnapshotID, err)
		}
		return f, nil
	}

	f, err := voxelgrid.New(v.Resolution[0], v.Resolution[1], v.Resolution[2], vec(v.BoundsMin), vec(v.BoundsMax))
	if err != nil {
		return nil, fmt.Errorf("scene voxel field: %w", err)
	}
	f.Fill(v.FillDensity, geom.Color{R: v.FillColor[0], G: v.FillColor[1], B: v.FillColor[2], A: v.FillColor[3]})
	return f, nil
}

func vec(a [3]float64) geom.Vec3 {
	return geom.V(a[0], a[1], a[2])
}
