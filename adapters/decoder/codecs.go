// Package decoder provides the default stream decoder and the
// format-specific codecs it dispatches to.
package decoder

import (
	"image"
	"image/gif"
	"image/jpeg"
	"image/png"
	"io"

	"golang.org/x/image/webp"

	"github.com/Skryldev/image-loader/core"
)

// Codec decodes one image format.
type Codec interface {
	Format() core.Format
	Decode(r io.Reader) (image.Image, error)
	DecodeConfig(r io.Reader) (image.Config, error)
}

// ── JPEG ──────────────────────────────────────────────────────────────────────

// JPEG decodes JPEG images using the standard library.
type JPEG struct{}

func (JPEG) Format() core.Format                            { return core.FormatJPEG }
func (JPEG) Decode(r io.Reader) (image.Image, error)        { return jpeg.Decode(r) }
func (JPEG) DecodeConfig(r io.Reader) (image.Config, error) { return jpeg.DecodeConfig(r) }

// ── PNG ───────────────────────────────────────────────────────────────────────

// PNG decodes PNG images using the standard library.
type PNG struct{}

func (PNG) Format() core.Format                            { return core.FormatPNG }
func (PNG) Decode(r io.Reader) (image.Image, error)        { return png.Decode(r) }
func (PNG) DecodeConfig(r io.Reader) (image.Config, error) { return png.DecodeConfig(r) }

// ── GIF ───────────────────────────────────────────────────────────────────────

// GIF decodes the first frame of a GIF.
type GIF struct{}

func (GIF) Format() core.Format                            { return core.FormatGIF }
func (GIF) Decode(r io.Reader) (image.Image, error)        { return gif.Decode(r) }
func (GIF) DecodeConfig(r io.Reader) (image.Config, error) { return gif.DecodeConfig(r) }

// ── WebP ──────────────────────────────────────────────────────────────────────

// WebP decodes WebP images using golang.org/x/image/webp.  Animated WebP is
// not supported.
type WebP struct{}

func (WebP) Format() core.Format                            { return core.FormatWebP }
func (WebP) Decode(r io.Reader) (image.Image, error)        { return webp.Decode(r) }
func (WebP) DecodeConfig(r io.Reader) (image.Config, error) { return webp.DecodeConfig(r) }

// DefaultCodecs returns the pure-Go codecs for every supported format.
func DefaultCodecs() []Codec {
	return []Codec{JPEG{}, PNG{}, GIF{}, WebP{}}
}

// colorSpace returns the colour space of an image.Image.
func colorSpace(img image.Image) core.ColorSpace {
	switch img.(type) {
	case *image.Gray, *image.Gray16:
		return core.ColorSpaceGray
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return core.ColorSpaceRGBA
	case *image.CMYK:
		return core.ColorSpaceCMYK
	}
	return core.ColorSpaceRGB
}

func hasAlpha(img image.Image) bool {
	switch p := img.(type) {
	case *image.RGBA, *image.NRGBA, *image.RGBA64, *image.NRGBA64:
		return true
	case *image.Paletted:
		for _, c := range p.Palette {
			if _, _, _, a := c.RGBA(); a != 0xffff {
				return true
			}
		}
	}
	return false
}
