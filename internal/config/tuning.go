package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// DefaultConfigPath is the path to the canonical tuning defaults file.
// This is the single source of truth for all default tuning values.
const DefaultConfigPath = "config/tuning.defaults.json"

// TuningConfig represents the root configuration for render tuning
// parameters. The schema matches the /api/config endpoint so the same
// JSON shape serves both startup configuration and the status surface.
type TuningConfig struct {
	// Image params
	ImageWidth  *int     `json:"image_width,omitempty"`
	ImageHeight *int     `json:"image_height,omitempty"`
	FocalLength *float64 `json:"focal_length,omitempty"` // pixels; unset means image_width/2

	// Ray-march params
	NumRaySamples         *int     `json:"num_ray_samples,omitempty"`
	NearPlane             *float64 `json:"near_plane,omitempty"`
	FarPlane              *float64 `json:"far_plane,omitempty"`
	EarlyTerminationAlpha *float64 `json:"early_termination_alpha,omitempty"`

	// Field network params
	HiddenSize             *int `json:"hidden_size,omitempty"`
	NumDensityLayers       *int `json:"num_density_layers,omitempty"`
	PosEncodingFrequencies *int `json:"pos_encoding_frequencies,omitempty"`
	DirEncodingFrequencies *int `json:"dir_encoding_frequencies,omitempty"`

	// Worker pool params
	Workers           *int    `json:"workers,omitempty"`
	QueueSize         *int    `json:"queue_size,omitempty"`
	HeartbeatInterval *string `json:"heartbeat_interval,omitempty"` // duration string like "5s"
	StaleAfter        *string `json:"stale_after,omitempty"`        // duration string like "300s"
	StaleCheckEvery   *string `json:"stale_check_every,omitempty"`  // duration string like "30s"
}

// Helper functions to create pointers
func ptrFloat64(v float64) *float64 { return &v }
func ptrString(v string) *string    { return &v }
func ptrInt(v int) *int             { return &v }

// EmptyTuningConfig returns a TuningConfig with all fields set to nil.
// Use LoadTuningConfig to load actual values from the defaults file.
func EmptyTuningConfig() *TuningConfig {
	return &TuningConfig{}
}

// DefaultTuningConfig returns a TuningConfig with every field populated
// from the built-in defaults. This is what /api/config serves when the
// node runs without a config file.
func DefaultTuningConfig() *TuningConfig {
	return &TuningConfig{
		ImageWidth:             ptrInt(512),
		ImageHeight:            ptrInt(512),
		FocalLength:            ptrFloat64(256),
		NumRaySamples:          ptrInt(64),
		NearPlane:              ptrFloat64(0.1),
		FarPlane:               ptrFloat64(10.0),
		EarlyTerminationAlpha:  ptrFloat64(0.99),
		HiddenSize:             ptrInt(256),
		NumDensityLayers:       ptrInt(8),
		PosEncodingFrequencies: ptrInt(10),
		DirEncodingFrequencies: ptrInt(4),
		Workers:                ptrInt(2),
		QueueSize:              ptrInt(16),
		HeartbeatInterval:      ptrString("5s"),
		StaleAfter:             ptrString("300s"),
		StaleCheckEvery:        ptrString("30s"),
	}
}

// LoadTuningConfig loads a TuningConfig from a JSON file.
// The file is validated to ensure it has a .json extension and is under the max file size.
// Fields omitted from the JSON file retain their default values, so
// partial configs are safe.
func LoadTuningConfig(path string) (*TuningConfig, error) {
	// Validate the config file path.
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	// Check file size for safety (max 1MB)
	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	// Parse JSON into empty config. The Get* methods provide fallback
	// defaults for any fields not specified in the JSON.
	cfg := EmptyTuningConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	// Validate the configuration
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// MustLoadDefaultConfig loads the canonical tuning defaults from DefaultConfigPath.
// It searches for the file in the current directory and common parent directories.
// Panics if the file cannot be loaded, intended for test setup.
func MustLoadDefaultConfig() *TuningConfig {
	// Try paths from current dir up to repo root
	candidates := []string{
		DefaultConfigPath,
		"../../" + DefaultConfigPath,       // from internal/config/
		"../../../" + DefaultConfigPath,    // from internal/field/voxelgrid/
		"../../../../" + DefaultConfigPath, // deeper packages
	}
	for _, path := range candidates {
		if cfg, err := LoadTuningConfig(path); err == nil {
			return cfg
		}
	}
	panic("cannot find " + DefaultConfigPath + " - run tests from repository root")
}

// Validate checks that the configuration values are valid.
func (c *TuningConfig) Validate() error {
	if c.ImageWidth != nil && *c.ImageWidth < 1 {
		return fmt.Errorf("image_width must be at least 1, got %d", *c.ImageWidth)
	}
	if c.ImageHeight != nil && *c.ImageHeight < 1 {
		return fmt.Errorf("image_height must be at least 1, got %d", *c.ImageHeight)
	}
	if c.FocalLength != nil && *c.FocalLength <= 0 {
		return fmt.Errorf("focal_length must be positive, got %f", *c.FocalLength)
	}
	if c.NumRaySamples != nil && *c.NumRaySamples < 1 {
		return fmt.Errorf("num_ray_samples must be at least 1, got %d", *c.NumRaySamples)
	}
	if c.NearPlane != nil && *c.NearPlane <= 0 {
		return fmt.Errorf("near_plane must be positive, got %f", *c.NearPlane)
	}
	if c.GetNearPlane() >= c.GetFarPlane() {
		return fmt.Errorf("near_plane %f must be below far_plane %f", c.GetNearPlane(), c.GetFarPlane())
	}
	if c.EarlyTerminationAlpha != nil {
		if *c.EarlyTerminationAlpha <= 0 || *c.EarlyTerminationAlpha > 1 {
			return fmt.Errorf("early_termination_alpha must be in (0, 1], got %f", *c.EarlyTerminationAlpha)
		}
	}
	if c.HiddenSize != nil && *c.HiddenSize < 1 {
		return fmt.Errorf("hidden_size must be at least 1, got %d", *c.HiddenSize)
	}
	if c.NumDensityLayers != nil && *c.NumDensityLayers < 2 {
		return fmt.Errorf("num_density_layers must be at least 2, got %d", *c.NumDensityLayers)
	}
	if c.PosEncodingFrequencies != nil && *c.PosEncodingFrequencies < 0 {
		return fmt.Errorf("pos_encoding_frequencies must be non-negative, got %d", *c.PosEncodingFrequencies)
	}
	if c.DirEncodingFrequencies != nil && *c.DirEncodingFrequencies < 0 {
		return fmt.Errorf("dir_encoding_frequencies must be non-negative, got %d", *c.DirEncodingFrequencies)
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.QueueSize != nil && *c.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", *c.QueueSize)
	}

	// Validate HeartbeatInterval can be parsed if set
	if c.HeartbeatInterval != nil && *c.HeartbeatInterval != "" {
		if _, err := time.ParseDuration(*c.HeartbeatInterval); err != nil {
			return fmt.Errorf("invalid heartbeat_interval '%s': %w", *c.HeartbeatInterval, err)
		}
	}

	// Validate StaleAfter can be parsed if set
	if c.StaleAfter != nil && *c.StaleAfter != "" {
		if _, err := time.ParseDuration(*c.StaleAfter); err != nil {
			return fmt.Errorf("invalid stale_after '%s': %w", *c.StaleAfter, err)
		}
	}

	// Validate StaleCheckEvery can be parsed if set
	if c.StaleCheckEvery != nil && *c.StaleCheckEvery != "" {
		if _, err := time.ParseDuration(*c.StaleCheckEvery); err != nil {
			return fmt.Errorf("invalid stale_check_every '%s': %w", *c.StaleCheckEvery, err)
		}
	}

	return nil
}

// Effective returns a copy with every field materialized from the Get*
// accessors, so the serialized form shows the values actually in force.
func (c *TuningConfig) Effective() *TuningConfig {
	return &TuningConfig{
		ImageWidth:             ptrInt(c.GetImageWidth()),
		ImageHeight:            ptrInt(c.GetImageHeight()),
		FocalLength:            ptrFloat64(c.GetFocalLength()),
		NumRaySamples:          ptrInt(c.GetNumRaySamples()),
		NearPlane:              ptrFloat64(c.GetNearPlane()),
		FarPlane:               ptrFloat64(c.GetFarPlane()),
		EarlyTerminationAlpha:  ptrFloat64(c.GetEarlyTerminationAlpha()),
		HiddenSize:             ptrInt(c.GetHiddenSize()),
		NumDensityLayers:       ptrInt(c.GetNumDensityLayers()),
		PosEncodingFrequencies: ptrInt(c.GetPosEncodingFrequencies()),
		DirEncodingFrequencies: ptrInt(c.GetDirEncodingFrequencies()),
		Workers:                ptrInt(c.GetWorkers()),
		QueueSize:              ptrInt(c.GetQueueSize()),
		HeartbeatInterval:      ptrString(c.GetHeartbeatInterval().String()),
		StaleAfter:             ptrString(c.GetStaleAfter().String()),
		StaleCheckEvery:        ptrString(c.GetStaleCheckEvery().String()),
	}
}

// GetImageWidth returns the image_width value or the default.
func (c *TuningConfig) GetImageWidth() int {
	if c.ImageWidth == nil {
		return 512 // default
	}
	return *c.ImageWidth
}

// GetImageHeight returns the image_height value or the default.
func (c *TuningConfig) GetImageHeight() int {
	if c.ImageHeight == nil {
		return 512 // default
	}
	return *c.ImageHeight
}

// GetFocalLength returns the focal_length value or the default, half the
// effective image width.
func (c *TuningConfig) GetFocalLength() float64 {
	if c.FocalLength == nil {
		return float64(c.GetImageWidth()) / 2
	}
	return *c.FocalLength
}

// GetNumRaySamples returns the num_ray_samples value or the default.
func (c *TuningConfig) GetNumRaySamples() int {
	if c.NumRaySamples == nil {
		return 64 // default
	}
	return *c.NumRaySamples
}

// GetNearPlane returns the near_plane value or the default.
func (c *TuningConfig) GetNearPlane() float64 {
	if c.NearPlane == nil {
		return 0.1 // default
	}
	return *c.NearPlane
}

// GetFarPlane returns the far_plane value or the default.
func (c *TuningConfig) GetFarPlane() float64 {
	if c.FarPlane == nil {
		return 10.0 // default
	}
	return *c.FarPlane
}

// GetEarlyTerminationAlpha returns the early_termination_alpha value or the default.
func (c *TuningConfig) GetEarlyTerminationAlpha() float64 {
	if c.EarlyTerminationAlpha == nil {
		return 0.99 // default
	}
	return *c.EarlyTerminationAlpha
}

// GetHiddenSize returns the hidden_size value or the default.
func (c *TuningConfig) GetHiddenSize() int {
	if c.HiddenSize == nil {
		return 256 // default
	}
	return *c.HiddenSize
}

// GetNumDensityLayers returns the num_density_layers value or the default.
func (c *TuningConfig) GetNumDensityLayers() int {
	if c.NumDensityLayers == nil {
		return 8 // default
	}
	return *c.NumDensityLayers
}

// GetPosEncodingFrequencies returns the pos_encoding_frequencies value or the default.
func (c *TuningConfig) GetPosEncodingFrequencies() int {
	if c.PosEncodingFrequencies == nil {
		return 10 // default
	}
	return *c.PosEncodingFrequencies
}

// GetDirEncodingFrequencies returns the dir_encoding_frequencies value or the default.
func (c *TuningConfig) GetDirEncodingFrequencies() int {
	if c.DirEncodingFrequencies == nil {
		return 4 // default
	}
	return *c.DirEncodingFrequencies
}

// GetWorkers returns the workers value or the default.
func (c *TuningConfig) GetWorkers() int {
	if c.Workers == nil {
		return 2 // default
	}
	return *c.Workers
}

// GetQueueSize returns the queue_size value or the default.
func (c *TuningConfig) GetQueueSize() int {
	if c.QueueSize == nil {
		return 16 // default
	}
	return *c.QueueSize
}

// GetHeartbeatInterval parses and returns the HeartbeatInterval as a time.Duration.
func (c *TuningConfig) GetHeartbeatInterval() time.Duration {
	if c.HeartbeatInterval == nil || *c.HeartbeatInterval == "" {
		return 5 * time.Second // default
	}
	d, err := time.ParseDuration(*c.HeartbeatInterval)
	if err != nil {
		return 5 * time.Second // default on parse error
	}
	return d
}

// GetStaleAfter parses and returns the StaleAfter as a time.Duration.
func (c *TuningConfig) GetStaleAfter() time.Duration {
	if c.StaleAfter == nil || *c.StaleAfter == "" {
		return 300 * time.Second // default
	}
	d, err := time.ParseDuration(*c.StaleAfter)
	if err != nil {
		return 300 * time.Second // default on parse error
	}
	return d
}

// GetStaleCheckEvery parses and returns the StaleCheckEvery as a time.Duration.
func (c *TuningConfig) GetStaleCheckEvery() time.Duration {
	if c.StaleCheckEvery == nil || *c.StaleCheckEvery == "" {
		return 30 * time.Second // default
	}
	d, err := time.ParseDuration(*c.StaleCheckEvery)
	if err != nil {
		return 30 * time.Second // default on parse error
	}
	return d
}
