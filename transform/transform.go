// Package transform provides the built-in image transformations.  Every
// transformation is pure: it never writes to its input and always returns a
// freshly allocated image when pixels change.
package transform

import (
	"fmt"
	"image"
	"image/draw"
	"strconv"
	"strings"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// ── Chain ─────────────────────────────────────────────────────────────────────

// Chain applies its members in order.
type Chain []core.Transformation

// NewChain returns a transformation applying ts in order.  Nil members are
// skipped; a single member is returned as is.
func NewChain(ts ...core.Transformation) core.Transformation {
	var c Chain
	for _, t := range ts {
		if t != nil {
			c = append(c, t)
		}
	}
	if len(c) == 1 {
		return c[0]
	}
	return c
}

// Key joins the member keys in application order.
func (c Chain) Key() string {
	keys := make([]string, len(c))
	for i, t := range c {
		keys[i] = t.Key()
	}
	return "chain(" + strings.Join(keys, "|") + ")"
}

func (c Chain) Transform(img image.Image) (image.Image, error) {
	current := img
	for _, t := range c {
		out, err := t.Transform(current)
		if err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryTransform, t.Key(), err)
		}
		current = out
	}
	return current, nil
}

// ── Parsing ───────────────────────────────────────────────────────────────────

// Parse builds a transformation from a comma separated list such as
// "trim,blend,blur:15:10,scale:200:0".  An empty string yields nil.
func Parse(s string) (core.Transformation, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	var ts []core.Transformation
	for _, item := range strings.Split(s, ",") {
		t, err := parseOne(strings.TrimSpace(item))
		if err != nil {
			return nil, apperrors.New(apperrors.CategoryInvalidArgument, "transform.parse",
				fmt.Errorf("%w: %q: %v", apperrors.ErrInvalidArgument, item, err))
		}
		ts = append(ts, t)
	}
	return NewChain(ts...), nil
}

func parseOne(item string) (core.Transformation, error) {
	parts := strings.Split(item, ":")
	args, err := atois(parts[1:])
	if err != nil {
		return nil, err
	}
	switch strings.ToLower(parts[0]) {
	case "blend":
		if len(args) != 0 {
			return nil, fmt.Errorf("blend takes no arguments")
		}
		return Blend{}, nil
	case "trim":
		if len(args) != 0 {
			return nil, fmt.Errorf("trim takes no arguments")
		}
		return Trim{}, nil
	case "blur":
		radius, sampling := DefaultBlurRadius, DefaultBlurSampling
		switch len(args) {
		case 0:
		case 1:
			radius = args[0]
		case 2:
			radius, sampling = args[0], args[1]
		default:
			return nil, fmt.Errorf("blur takes at most 2 arguments")
		}
		return NewBlur(radius, sampling)
	case "scale":
		if len(args) != 2 {
			return nil, fmt.Errorf("scale takes width and height")
		}
		return NewScale(args[0], args[1])
	}
	return nil, fmt.Errorf("unknown transformation")
}

func atois(ss []string) ([]int, error) {
	out := make([]int, len(ss))
	for i, s := range ss {
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil, err
		}
		out[i] = n
	}
	return out, nil
}

// ── Helpers ───────────────────────────────────────────────────────────────────

// toRGBA copies src into a new RGBA buffer whose origin is (0,0).
func toRGBA(src image.Image) *image.RGBA {
	b := src.Bounds()
	dst := image.NewRGBA(image.Rect(0, 0, b.Dx(), b.Dy()))
	draw.Draw(dst, dst.Bounds(), src, b.Min, draw.Src)
	return dst
}

func checkInput(op string, img image.Image) error {
	if img == nil {
		return apperrors.New(apperrors.CategoryTransform, op, apperrors.ErrNilImage)
	}
	return nil
}
