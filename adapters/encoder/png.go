package encoder

import (
	"bytes"
	"context"
	"image/png"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// PNG encodes images to PNG format.
type PNG struct {
	Compression png.CompressionLevel
}

func NewPNG() *PNG { return &PNG{Compression: png.DefaultCompression} }

func (p *PNG) Format() core.Format { return core.FormatPNG }
func (p *PNG) ContentType() string { return "image/png" }

func (p *PNG) Encode(ctx context.Context, img *core.ImageData) ([]byte, error) {
	if err := checkInput(ctx, "png.encode", img); err != nil {
		return nil, err
	}
	enc := &png.Encoder{CompressionLevel: p.Compression}
	var buf bytes.Buffer
	if err := enc.Encode(&buf, img.Image); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "png.encode", err)
	}
	return buf.Bytes(), nil
}
