// Package render turns a RadianceField into images: it generates per-pixel
// camera rays, integrates the volume rendering equation along each one, and
// quantizes the result into an 8-bit RGB frame buffer.
package render

import (
	"errors"
	"fmt"

	"github.com/banshee-data/radiance.report/internal/geom"
)

// Clip plane defaults for generated rays.
const (
	DefaultNearPlane = 0.1
	DefaultFarPlane  = 10.0
)

// minBasisLength is the squared-length floor below which a camera basis
// vector counts as degenerate.
const minBasisLength = 1e-9

// ErrDegenerateCamera is returned by NewCamera when no orthonormal view
// basis can be built from the given position, target, and up vector.
var ErrDegenerateCamera = errors.New("degenerate camera geometry")

// CameraConfig holds the projection parameters for ray generation.
type CameraConfig struct {
	Width       int     // image width in pixels
	Height      int     // image height in pixels
	FocalLength float64 // NDC scale in pixels; 0 means Width/2
	NearPlane   float64 // ray t_min (default: 0.1)
	FarPlane    float64 // ray t_max (default: 10.0)
}

// DefaultCameraConfig returns a config for the given image size with the
// conventional focal length (half the image width) and clip planes.
func DefaultCameraConfig(width, height int) CameraConfig {
	return CameraConfig{
		Width:       width,
		Height:      height,
		FocalLength: float64(width) / 2,
		NearPlane:   DefaultNearPlane,
		FarPlane:    DefaultFarPlane,
	}
}

// Validate checks if the configuration is valid.
func (c CameraConfig) Validate() error {
	if c.Width < 1 || c.Height < 1 {
		return fmt.Errorf("image size must be at least 1x1, got %dx%d", c.Width, c.Height)
	}
	if c.FocalLength <= 0 {
		return fmt.Errorf("FocalLength must be positive, got %f", c.FocalLength)
	}
	if c.NearPlane < 0 {
		return fmt.Errorf("NearPlane must be non-negative, got %f", c.NearPlane)
	}
	if c.FarPlane <= c.NearPlane {
		return fmt.Errorf("FarPlane must exceed NearPlane, got near=%f far=%f", c.NearPlane, c.FarPlane)
	}
	return nil
}

// Camera precomputes an orthonormal view basis so per-pixel ray generation
// is a handful of multiply-adds. Cameras are immutable once built and safe
// for concurrent use.
type Camera struct {
	cfg     CameraConfig
	origin  geom.Vec3
	right   geom.Vec3
	up      geom.Vec3
	forward geom.Vec3
}

// NewCamera builds a camera at pos looking at target, with up fixing the
// roll. A zero FocalLength takes the Width/2 convention and each zero clip
// plane takes its default independently, so a config can pin one plane
// without restating the other. Fails with ErrDegenerateCamera when pos and
// target coincide or up is parallel to the view direction; the failure is
// surfaced here, at construction, so GenerateRay never has an error path.
func NewCamera(pos, target, up geom.Vec3, cfg CameraConfig) (*Camera, error) {
	if cfg.FocalLength == 0 {
		cfg.FocalLength = float64(cfg.Width) / 2
	}
	if cfg.NearPlane == 0 {
		cfg.NearPlane = DefaultNearPlane
	}
	if cfg.FarPlane == 0 {
		cfg.FarPlane = DefaultFarPlane
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid camera config: %w", err)
	}

	forward := target.Sub(pos)
	if forward.LengthSquared() < minBasisLength {
		return nil, fmt.Errorf("%w: camera position and target coincide", ErrDegenerateCamera)
	}
	forward = forward.Normalize()

	right := forward.Cross(up)
	if right.LengthSquared() < minBasisLength {
		return nil, fmt.Errorf("%w: up vector is parallel to the view direction", ErrDegenerateCamera)
	}
	right = right.Normalize()

	return &Camera{
		cfg:     cfg,
		origin:  pos,
		right:   right,
		up:      right.Cross(forward),
		forward: forward,
	}, nil
}

// NewCameraFromPose derives the camera from a rigid pose matrix: the
// translation column is the camera position, the Z basis is the view
// direction, and the Y basis is up.
func NewCameraFromPose(pose geom.Mat4, cfg CameraConfig) (*Camera, error) {
	pos := pose.Translation()
	forward := pose.BasisZ()
	return NewCamera(pos, pos.Add(forward), pose.BasisY(), cfg)
}

// ImageSize returns the pixel dimensions the camera projects into.
func (c *Camera) ImageSize() (width, height int) {
	return c.cfg.Width, c.cfg.Height
}

// Origin returns the camera position.
func (c *Camera) Origin() geom.Vec3 { return c.origin }

// GenerateRay returns the world-space ray through pixel (px, py). Pixel
// (0,0) is the top-left corner; image y grows downward, so it is negated
// onto the camera's up axis. The returned direction is unit length.
func (c *Camera) GenerateRay(px, py int) geom.Ray {
	ndcX := (float64(px) - float64(c.cfg.Width)/2) / c.cfg.FocalLength
	ndcY := -(float64(py) - float64(c.cfg.Height)/2) / c.cfg.FocalLength

	dir := c.forward.Add(c.right.Scale(ndcX)).Add(c.up.Scale(ndcY)).Normalize()
	return geom.Ray{Origin: c.origin, Dir: dir, TMin: c.cfg.NearPlane, TMax: c.cfg.FarPlane}
}
