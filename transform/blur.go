package transform

import (
	"fmt"
	"image"

	"github.com/disintegration/imaging"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

const (
	DefaultBlurRadius   = 15
	DefaultBlurSampling = 10
)

// Blur downsamples the image by Sampling, applies a Gaussian blur of the
// given Radius and scales the result back to the original size.  Larger
// sampling trades quality for speed.
type Blur struct {
	radius   int
	sampling int
}

// NewBlur returns a Blur.  radius must be positive and sampling at least 1.
func NewBlur(radius, sampling int) (core.Transformation, error) {
	if radius <= 0 || sampling < 1 {
		return nil, apperrors.New(apperrors.CategoryInvalidArgument, "blur.new",
			fmt.Errorf("%w: radius %d, sampling %d", apperrors.ErrInvalidArgument, radius, sampling))
	}
	return Blur{radius: radius, sampling: sampling}, nil
}

func (b Blur) Key() string {
	return fmt.Sprintf("blur(radius=%d,sampling=%d)", b.radius, b.sampling)
}

func (b Blur) Transform(img image.Image) (image.Image, error) {
	if err := checkInput("blur", img); err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w == 0 || h == 0 {
		return toRGBA(img), nil
	}

	sw, sh := max(w/b.sampling, 1), max(h/b.sampling, 1)
	small := imaging.Resize(img, sw, sh, imaging.Box)
	// A Gaussian with sigma radius/3 falls off within the radius.
	blurred := imaging.Blur(small, float64(b.radius)/3)
	return imaging.Resize(blurred, w, h, imaging.Linear), nil
}
