package render

import (
	"fmt"
	"image"
	"image/png"
	"io"
	"math"

	"github.com/banshee-data/radiance.report/internal/geom"
)

// Image is a tightly packed 8-bit RGB frame buffer, row-major from the
// top-left pixel. Alpha is not stored; rays composite to full opacity
// before quantization.
type Image struct {
	Width  int
	Height int
	Pix    []uint8 // 3 bytes per pixel
}

// NewImage allocates a zeroed frame buffer.
func NewImage(width, height int) *Image {
	return &Image{
		Width:  width,
		Height: height,
		Pix:    make([]uint8, width*height*3),
	}
}

// SetPixel quantizes c into the buffer at (x, y). Channels are scaled by
// 255, clamped, and rounded to the nearest byte.
func (img *Image) SetPixel(x, y int, c geom.Color) {
	o := (y*img.Width + x) * 3
	img.Pix[o] = quantizeChannel(c.R)
	img.Pix[o+1] = quantizeChannel(c.G)
	img.Pix[o+2] = quantizeChannel(c.B)
}

// At returns the stored bytes for pixel (x, y).
func (img *Image) At(x, y int) (r, g, b uint8) {
	o := (y*img.Width + x) * 3
	return img.Pix[o], img.Pix[o+1], img.Pix[o+2]
}

// WriteRaw dumps the packed RGB bytes to w. The output carries no header;
// the caller records the dimensions separately.
func (img *Image) WriteRaw(w io.Writer) error {
	if _, err := w.Write(img.Pix); err != nil {
		return fmt.Errorf("write raw image: %w", err)
	}
	return nil
}

// ReadRaw rebuilds an image of known dimensions from a packed RGB stream.
func ReadRaw(r io.Reader, width, height int) (*Image, error) {
	if width < 1 || height < 1 {
		return nil, fmt.Errorf("image size must be at least 1x1, got %dx%d", width, height)
	}
	img := NewImage(width, height)
	if _, err := io.ReadFull(r, img.Pix); err != nil {
		return nil, fmt.Errorf("read raw image: %w", err)
	}
	return img, nil
}

// WritePNG encodes the frame buffer as a fully opaque PNG.
func (img *Image) WritePNG(w io.Writer) error {
	out := image.NewRGBA(image.Rect(0, 0, img.Width, img.Height))
	for i := 0; i < img.Width*img.Height; i++ {
		out.Pix[i*4] = img.Pix[i*3]
		out.Pix[i*4+1] = img.Pix[i*3+1]
		out.Pix[i*4+2] = img.Pix[i*3+2]
		out.Pix[i*4+3] = 255
	}
	enc := png.Encoder{CompressionLevel: png.BestCompression}
	if err := enc.Encode(w, out); err != nil {
		return fmt.Errorf("encode png: %w", err)
	}
	return nil
}

// ReadPNG decodes a PNG back into a frame buffer, discarding alpha. Used to
// load reference images for quality comparison.
func ReadPNG(r io.Reader) (*Image, error) {
	src, err := png.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode png: %w", err)
	}
	b := src.Bounds()
	img := NewImage(b.Dx(), b.Dy())
	for y := 0; y < b.Dy(); y++ {
		for x := 0; x < b.Dx(); x++ {
			cr, cg, cb, _ := src.At(b.Min.X+x, b.Min.Y+y).RGBA()
			o := (y*img.Width + x) * 3
			img.Pix[o] = uint8(cr >> 8)
			img.Pix[o+1] = uint8(cg >> 8)
			img.Pix[o+2] = uint8(cb >> 8)
		}
	}
	return img, nil
}

func quantizeChannel(channel float64) uint8 {
	v := math.Round(math.Min(255, channel*255))
	if v < 0 {
		v = 0
	}
	return uint8(v)
}
