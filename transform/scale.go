package transform

import (
	"fmt"
	"image"

	xdraw "golang.org/x/image/draw"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
	"github.com/Skryldev/image-loader/utils"
)

// Scale resizes the image, preserving aspect ratio when one axis is 0.
type Scale struct {
	width, height int
}

// NewScale returns a Scale.  Both sizes must be non-negative and at least
// one positive.
func NewScale(width, height int) (core.Transformation, error) {
	if width < 0 || height < 0 || (width == 0 && height == 0) {
		return nil, apperrors.New(apperrors.CategoryInvalidArgument, "scale.new",
			fmt.Errorf("%w: size %dx%d", apperrors.ErrInvalidArgument, width, height))
	}
	return Scale{width: width, height: height}, nil
}

func (s Scale) Key() string {
	return fmt.Sprintf("scale(w=%d,h=%d)", s.width, s.height)
}

func (s Scale) Transform(img image.Image) (image.Image, error) {
	if err := checkInput("scale", img); err != nil {
		return nil, err
	}
	srcB := img.Bounds()
	dstW, dstH := utils.ScaleDimensions(srcB.Dx(), srcB.Dy(), s.width, s.height)
	if dstW <= 0 || dstH <= 0 {
		return nil, apperrors.New(apperrors.CategoryTransform, "scale",
			fmt.Errorf("cannot scale %dx%d to %dx%d", srcB.Dx(), srcB.Dy(), dstW, dstH))
	}

	dst := image.NewRGBA(image.Rect(0, 0, dstW, dstH))
	xdraw.BiLinear.Scale(dst, dst.Bounds(), img, srcB, xdraw.Src, nil)
	return dst, nil
}
