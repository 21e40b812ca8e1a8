package transform

import (
	"image"
	"image/draw"
)

// Trim crops away fully transparent rows and columns on all four edges.
type Trim struct{}

func (Trim) Key() string { return "trim" }

func (Trim) Transform(img image.Image) (image.Image, error) {
	if err := checkInput("trim", img); err != nil {
		return nil, err
	}
	_, out := TrimBounds(img)
	return out, nil
}

// TrimBounds returns the bounding rectangle of the pixels with non-zero
// alpha, in img's coordinate space, and a cropped copy of that region with
// its origin at (0,0).
//
// A fully transparent image yields its full bounds and a full-size copy.
// An empty image yields an empty rectangle and an empty copy.
func TrimBounds(img image.Image) (image.Rectangle, image.Image) {
	b := img.Bounds()
	if b.Empty() {
		return image.Rectangle{}, image.NewRGBA(image.Rectangle{})
	}

	top, found := b.Min.Y, false
	for y := b.Min.Y; y < b.Max.Y; y++ {
		if !rowClear(img, y, b.Min.X, b.Max.X) {
			top, found = y, true
			break
		}
	}
	if !found {
		return b, toRGBA(img)
	}

	bottom := b.Max.Y
	for y := b.Max.Y - 1; y >= top; y-- {
		if !rowClear(img, y, b.Min.X, b.Max.X) {
			bottom = y + 1
			break
		}
	}
	left := b.Min.X
	for x := b.Min.X; x < b.Max.X; x++ {
		if !colClear(img, x, top, bottom) {
			left = x
			break
		}
	}
	right := b.Max.X
	for x := b.Max.X - 1; x >= left; x-- {
		if !colClear(img, x, top, bottom) {
			right = x + 1
			break
		}
	}

	r := image.Rect(left, top, right, bottom)
	dst := image.NewRGBA(image.Rect(0, 0, r.Dx(), r.Dy()))
	draw.Draw(dst, dst.Bounds(), img, r.Min, draw.Src)
	return r, dst
}

func rowClear(img image.Image, y, x0, x1 int) bool {
	for x := x0; x < x1; x++ {
		if _, _, _, a := img.At(x, y).RGBA(); a != 0 {
			return false
		}
	}
	return true
}

func colClear(img image.Image, x, y0, y1 int) bool {
	for y := y0; y < y1; y++ {
		if _, _, _, a := img.At(x, y).RGBA(); a != 0 {
			return false
		}
	}
	return true
}
