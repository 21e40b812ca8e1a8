package core

import (
	"image"
	"io"
)

// Format identifies an image codec.
type Format string

const (
	FormatJPEG    Format = "jpeg"
	FormatPNG     Format = "png"
	FormatGIF     Format = "gif"
	FormatWebP    Format = "webp"
	FormatUnknown Format = "unknown"
)

// ColorSpace represents the image colour model.
type ColorSpace string

const (
	ColorSpaceRGB  ColorSpace = "rgb"
	ColorSpaceRGBA ColorSpace = "rgba"
	ColorSpaceCMYK ColorSpace = "cmyk"
	ColorSpaceGray ColorSpace = "gray"
)

// BaseDensity is the density, in dots per inch, of an image requested with a
// density factor of 1.
const BaseDensity = 160

// Metadata holds information extracted while decoding.
type Metadata struct {
	Width      int
	Height     int
	Format     Format
	ColorSpace ColorSpace
	HasAlpha   bool
	SizeBytes  int64 // encoded size as fetched
}

// ImageData is the decoded pixel buffer handed to transformations and
// finally to the callback.  Images delivered from the memory cache are
// shared between callers and must be treated as read-only.
type ImageData struct {
	Image   image.Image
	Format  Format
	Meta    Metadata
	Density int // BaseDensity scaled by the request's density factor
}

// WithImage returns a copy of d carrying img, with dimensions refreshed.
func (d *ImageData) WithImage(img image.Image) *ImageData {
	out := *d
	out.Image = img
	if img != nil {
		b := img.Bounds()
		out.Meta.Width = b.Dx()
		out.Meta.Height = b.Dy()
	}
	return &out
}

// ── Fetch results ─────────────────────────────────────────────────────────────

// FetchResult is the tagged outcome of a fetch stage.  The set of variants
// is closed: only types in this package implement it.
type FetchResult interface {
	fetchResult()
}

// StreamResult carries a byte stream.  Ownership of Body passes to the
// decoder, which must close it exactly once.
type StreamResult struct {
	Body        io.ReadCloser
	ContentType string // optional hint
	Size        int64  // -1 if unknown
}

func (StreamResult) fetchResult() {}

// CloseResult releases the resources held by a fetch result that will not
// be decoded.
func CloseResult(r FetchResult) error {
	switch v := r.(type) {
	case StreamResult:
		if v.Body != nil {
			return v.Body.Close()
		}
	}
	return nil
}

// ── Pipeline states ───────────────────────────────────────────────────────────

// Stage names a unit of pipeline work, used by hooks and metrics.
type Stage string

const (
	StageFetch     Stage = "fetch"
	StageDecode    Stage = "decode"
	StageTransform Stage = "transform"
)

// State is the lifecycle position of an in-flight request.
type State int32

const (
	StateEnqueued State = iota
	StateFetching
	StateDecoding
	StateTransforming
	StateDelivering
	StateDone
)

func (s State) String() string {
	switch s {
	case StateEnqueued:
		return "enqueued"
	case StateFetching:
		return "fetching"
	case StateDecoding:
		return "decoding"
	case StateTransforming:
		return "transforming"
	case StateDelivering:
		return "delivering"
	case StateDone:
		return "done"
	}
	return "unknown"
}
