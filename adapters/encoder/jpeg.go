package encoder

import (
	"bytes"
	"context"
	"image/jpeg"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// JPEG encodes images to JPEG format.
type JPEG struct {
	Quality int // 1-100; 0 selects 85
}

func NewJPEG(quality int) *JPEG {
	if quality <= 0 || quality > 100 {
		quality = 85
	}
	return &JPEG{Quality: quality}
}

func (j *JPEG) Format() core.Format { return core.FormatJPEG }
func (j *JPEG) ContentType() string { return "image/jpeg" }

func (j *JPEG) Encode(ctx context.Context, img *core.ImageData) ([]byte, error) {
	if err := checkInput(ctx, "jpeg.encode", img); err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img.Image, &jpeg.Options{Quality: j.Quality}); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryEncode, "jpeg.encode", err)
	}
	return buf.Bytes(), nil
}
