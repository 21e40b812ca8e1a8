// Package encoder serialises decoded images for the CLI and the HTTP
// endpoint.
package encoder

import (
	"context"
	"fmt"
	"strings"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// Encoder writes an image in one format.
type Encoder interface {
	Format() core.Format
	ContentType() string
	Encode(ctx context.Context, img *core.ImageData) ([]byte, error)
}

// For returns the encoder for name ("png", "jpeg" or "jpg").  An empty name
// selects PNG, which preserves alpha.
func For(name string, quality int) (Encoder, error) {
	switch strings.ToLower(name) {
	case "", "png":
		return NewPNG(), nil
	case "jpeg", "jpg":
		return NewJPEG(quality), nil
	}
	return nil, apperrors.New(apperrors.CategoryEncode, "encoder.for",
		fmt.Errorf("%w: %q", apperrors.ErrUnsupportedFormat, name))
}

func checkInput(ctx context.Context, op string, img *core.ImageData) error {
	if err := ctx.Err(); err != nil {
		return apperrors.Wrap(apperrors.CategoryEncode, op, err)
	}
	if img == nil || img.Image == nil {
		return apperrors.New(apperrors.CategoryEncode, op, apperrors.ErrEmptyInput)
	}
	return nil
}
