// Package vips provides a libvips-backed core.DecoderFactory.  It handles
// more input formats than the pure-Go codecs and applies EXIF orientation.
package vips

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"runtime"
	"sync"

	govips "github.com/davidbyttow/govips/v2/vips"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
	"github.com/Skryldev/image-loader/utils"
)

// BackendConfig configures the libvips backend.
type BackendConfig struct {
	MaxCacheSize int
	MaxWorkers   int
	ReportLeaks  bool

	MaxBytes   int64 // encoded size limit; 0 = no limit
	MaxPixels  int64 // width*height limit; 0 = no limit
	ChunkSize  int
	AutoRotate bool
}

// Backend is a libvips-powered decoder factory.  Safe for concurrent use.
type Backend struct {
	cfg BackendConfig
}

var startOnce sync.Once

// NewBackend initialises libvips and returns a ready Backend.
// Call Shutdown() when the process exits.
func NewBackend(cfg BackendConfig) *Backend {
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = runtime.NumCPU()
	}
	startOnce.Do(func() {
		govips.Startup(&govips.Config{
			ConcurrencyLevel: cfg.MaxWorkers,
			MaxCacheSize:     cfg.MaxCacheSize,
			ReportLeaks:      cfg.ReportLeaks,
			CollectStats:     true,
		})
	})
	return &Backend{cfg: cfg}
}

// Shutdown releases all libvips resources. Call once at process exit.
func (b *Backend) Shutdown() {
	govips.Shutdown()
}

// Create returns a decoder owning the result's stream.
func (b *Backend) Create(req core.ImageRequest, result core.FetchResult) (core.Decoder, error) {
	switch r := result.(type) {
	case core.StreamResult:
		return &decoder{backend: b, req: req, src: r}, nil
	default:
		return nil, apperrors.New(apperrors.CategoryDecode, "vips.create",
			fmt.Errorf("%w: %T", apperrors.ErrUnsupportedResult, result))
	}
}

// ─── Decoder ──────────────────────────────────────────────────────────────────

type decoder struct {
	backend *Backend
	req     core.ImageRequest
	src     core.StreamResult
	once    sync.Once
}

func (d *decoder) Decode(ctx context.Context) (img *core.ImageData, err error) {
	err = apperrors.New(apperrors.CategoryDecode, "vips.decode", apperrors.ErrAlreadyExecuted)
	d.once.Do(func() {
		img, err = d.decode(ctx)
	})
	return img, err
}

func (d *decoder) decode(ctx context.Context) (*core.ImageData, error) {
	if d.src.Body == nil {
		return nil, apperrors.New(apperrors.CategoryDecode, "vips.decode", apperrors.ErrEmptyInput)
	}
	defer d.src.Body.Close()

	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}

	cfg := d.backend.cfg
	buf, err := utils.DrainReader(ctx, &utils.LimitedReader{R: d.src.Body, Max: cfg.MaxBytes}, cfg.ChunkSize)
	if err != nil {
		if errors.Is(err, utils.ErrLimitExceeded) {
			err = fmt.Errorf("%w: more than %d bytes", apperrors.ErrImageTooLarge, cfg.MaxBytes)
		}
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode.drain", err)
	}
	raw := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)
	if len(raw) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, "vips.decode", apperrors.ErrEmptyInput)
	}

	ref, err := govips.NewImageFromBuffer(raw)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.decode", err)
	}
	defer ref.Close()

	if cfg.MaxPixels > 0 && int64(ref.Width())*int64(ref.Height()) > cfg.MaxPixels {
		return nil, apperrors.New(apperrors.CategoryDecode, "vips.decode",
			fmt.Errorf("%w: %dx%d", apperrors.ErrImageTooLarge, ref.Width(), ref.Height()))
	}
	if cfg.AutoRotate {
		if err := ref.AutoRotate(); err != nil {
			return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.auto_rotate", err)
		}
	}

	format := vipsFormatToCore(ref.Format())
	meta := core.Metadata{
		Width:      ref.Width(),
		Height:     ref.Height(),
		Format:     format,
		ColorSpace: vipsInterpretationToColorSpace(ref.Interpretation()),
		HasAlpha:   ref.HasAlpha(),
		SizeBytes:  int64(len(raw)),
	}

	// Pixels leave libvips as lossless PNG so transformations work on a
	// plain image.Image.
	ep := govips.NewPngExportParams()
	ep.StripMetadata = true
	ep.Compression = 0
	pixels, _, err := ref.ExportPng(ep)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.export", err)
	}
	decoded, err := png.Decode(bytes.NewReader(pixels))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "vips.export", err)
	}
	if decoded == nil {
		return nil, apperrors.New(apperrors.CategoryDecode, "vips.export", apperrors.ErrNilImage)
	}

	return &core.ImageData{
		Image:   decoded,
		Format:  format,
		Meta:    meta,
		Density: d.req.Density(),
	}, nil
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func vipsFormatToCore(f govips.ImageType) core.Format {
	switch f {
	case govips.ImageTypeJPEG:
		return core.FormatJPEG
	case govips.ImageTypePNG:
		return core.FormatPNG
	case govips.ImageTypeGIF:
		return core.FormatGIF
	case govips.ImageTypeWEBP:
		return core.FormatWebP
	default:
		return core.FormatUnknown
	}
}

func vipsInterpretationToColorSpace(i govips.Interpretation) core.ColorSpace {
	switch i {
	case govips.InterpretationSRGB, govips.InterpretationRGB16:
		return core.ColorSpaceRGB
	case govips.InterpretationBW:
		return core.ColorSpaceGray
	case govips.InterpretationCMYK:
		return core.ColorSpaceCMYK
	default:
		return core.ColorSpaceRGB
	}
}

var _ core.DecoderFactory = (*Backend)(nil)
