package transform

import (
	"image"
)

// Blend draws the image onto a new buffer and then adds it onto itself, so
// every premultiplied channel doubles and saturates.
type Blend struct{}

func (Blend) Key() string { return "blend" }

func (Blend) Transform(img image.Image) (image.Image, error) {
	if err := checkInput("blend", img); err != nil {
		return nil, err
	}
	dst := toRGBA(img)
	for i, v := range dst.Pix {
		dst.Pix[i] = addSat(v, v)
	}
	return dst, nil
}

func addSat(a, b uint8) uint8 {
	if s := uint16(a) + uint16(b); s < 0xff {
		return uint8(s)
	}
	return 0xff
}
