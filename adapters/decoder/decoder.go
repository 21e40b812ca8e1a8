package decoder

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"sync"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
	"github.com/Skryldev/image-loader/utils"
)

// Options bounds the work a single decode may do.
type Options struct {
	MaxBytes  int64 // encoded size limit; 0 = no limit
	MaxPixels int64 // width*height limit; 0 = no limit
	ChunkSize int   // read chunk size; default 32 KiB
}

// Factory is the default core.DecoderFactory.  It drains the fetched
// stream, sniffs the format and dispatches to the registered codec.
type Factory struct {
	opts   Options
	codecs map[core.Format]Codec
}

// NewFactory returns a Factory using codecs, or DefaultCodecs when none are
// given.  A later codec for the same format replaces an earlier one.
func NewFactory(opts Options, codecs ...Codec) *Factory {
	if len(codecs) == 0 {
		codecs = DefaultCodecs()
	}
	f := &Factory{opts: opts, codecs: make(map[core.Format]Codec, len(codecs))}
	for _, c := range codecs {
		f.codecs[c.Format()] = c
	}
	return f
}

// Create returns the decoder for result.  The decoder takes ownership of
// the result's stream.
func (f *Factory) Create(req core.ImageRequest, result core.FetchResult) (core.Decoder, error) {
	switch r := result.(type) {
	case core.StreamResult:
		return &streamDecoder{factory: f, req: req, src: r}, nil
	default:
		return nil, apperrors.New(apperrors.CategoryDecode, "decoder.create",
			fmt.Errorf("%w: %T", apperrors.ErrUnsupportedResult, result))
	}
}

// ── Stream decoder ────────────────────────────────────────────────────────────

type streamDecoder struct {
	factory *Factory
	req     core.ImageRequest
	src     core.StreamResult
	once    sync.Once
}

// Decode reads, closes and decodes the stream.  It may be called once.
func (d *streamDecoder) Decode(ctx context.Context) (img *core.ImageData, err error) {
	used := true
	d.once.Do(func() {
		used = false
		img, err = d.decode(ctx)
	})
	if used {
		return nil, apperrors.New(apperrors.CategoryDecode, "decoder.decode", apperrors.ErrAlreadyExecuted)
	}
	return img, err
}

func (d *streamDecoder) decode(ctx context.Context) (*core.ImageData, error) {
	if d.src.Body == nil {
		return nil, apperrors.New(apperrors.CategoryDecode, "decoder.decode", apperrors.ErrEmptyInput)
	}
	defer d.src.Body.Close()

	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "decoder.decode", err)
	}

	opts := d.factory.opts
	buf, err := utils.DrainReader(ctx, &utils.LimitedReader{R: d.src.Body, Max: opts.MaxBytes}, opts.ChunkSize)
	if err != nil {
		if errors.Is(err, utils.ErrLimitExceeded) {
			err = fmt.Errorf("%w: more than %d bytes", apperrors.ErrImageTooLarge, opts.MaxBytes)
		}
		return nil, apperrors.Wrap(apperrors.CategoryDecode, "decoder.read", err)
	}
	defer utils.ReleaseBuffer(buf)

	data := buf.Bytes()
	if len(data) == 0 {
		return nil, apperrors.New(apperrors.CategoryDecode, "decoder.decode", apperrors.ErrEmptyInput)
	}

	format := core.Format(utils.DetectFormat(data))
	if format == core.FormatUnknown {
		format = core.Format(utils.FormatFromContentType(d.src.ContentType))
	}
	codec, ok := d.factory.codecs[format]
	if !ok {
		return nil, apperrors.New(apperrors.CategoryDecode, "decoder.decode",
			fmt.Errorf("%w: %s", apperrors.ErrUnsupportedFormat, format))
	}
	op := string(format) + ".decode"

	cfg, err := codec.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	if opts.MaxPixels > 0 && int64(cfg.Width)*int64(cfg.Height) > opts.MaxPixels {
		return nil, apperrors.New(apperrors.CategoryDecode, op,
			fmt.Errorf("%w: %dx%d", apperrors.ErrImageTooLarge, cfg.Width, cfg.Height))
	}

	decoded, err := safeDecode(codec, data)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryDecode, op, err)
	}
	if decoded == nil {
		return nil, apperrors.New(apperrors.CategoryDecode, op, apperrors.ErrNilImage)
	}

	bounds := decoded.Bounds()
	return &core.ImageData{
		Image:  decoded,
		Format: format,
		Meta: core.Metadata{
			Width:      bounds.Dx(),
			Height:     bounds.Dy(),
			Format:     format,
			ColorSpace: colorSpace(decoded),
			HasAlpha:   hasAlpha(decoded),
			SizeBytes:  int64(len(data)),
		},
		Density: d.req.Density(),
	}, nil
}

// safeDecode turns a codec panic on malformed input into an error.
func safeDecode(c Codec, data []byte) (img image.Image, err error) {
	defer func() {
		if r := recover(); r != nil {
			img, err = nil, fmt.Errorf("codec panic: %v", r)
		}
	}()
	return c.Decode(bytes.NewReader(data))
}
