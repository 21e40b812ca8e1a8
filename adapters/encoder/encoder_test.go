package encoder_test

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/jpeg"
	"image/png"
	"testing"

	"github.com/Skryldev/image-loader/adapters/encoder"
	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

func sample() *core.ImageData {
	return &core.ImageData{Image: image.NewNRGBA(image.Rect(0, 0, 6, 4)), Format: core.FormatPNG}
}

func TestFor(t *testing.T) {
	cases := []struct {
		name string
		want core.Format
		ct   string
	}{
		{"", core.FormatPNG, "image/png"},
		{"PNG", core.FormatPNG, "image/png"},
		{"jpg", core.FormatJPEG, "image/jpeg"},
		{"jpeg", core.FormatJPEG, "image/jpeg"},
	}
	for _, tc := range cases {
		enc, err := encoder.For(tc.name, 0)
		if err != nil {
			t.Fatalf("For(%q): %v", tc.name, err)
		}
		if enc.Format() != tc.want || enc.ContentType() != tc.ct {
			t.Errorf("For(%q): %s %s", tc.name, enc.Format(), enc.ContentType())
		}
	}
	if _, err := encoder.For("bmp", 0); !errors.Is(err, apperrors.ErrUnsupportedFormat) {
		t.Errorf("bmp: %v", err)
	}
}

func TestEncode_RoundTrip(t *testing.T) {
	ctx := context.Background()

	data, err := encoder.NewPNG().Encode(ctx, sample())
	if err != nil {
		t.Fatalf("png: %v", err)
	}
	if img, err := png.Decode(bytes.NewReader(data)); err != nil || img.Bounds().Dx() != 6 {
		t.Errorf("png decode: %v", err)
	}

	data, err = encoder.NewJPEG(70).Encode(ctx, sample())
	if err != nil {
		t.Fatalf("jpeg: %v", err)
	}
	if cfg, err := jpeg.DecodeConfig(bytes.NewReader(data)); err != nil || cfg.Width != 6 || cfg.Height != 4 {
		t.Errorf("jpeg decode: %v %+v", err, cfg)
	}
}

func TestEncode_Errors(t *testing.T) {
	if _, err := encoder.NewPNG().Encode(context.Background(), &core.ImageData{}); !errors.Is(err, apperrors.ErrEmptyInput) {
		t.Errorf("empty: %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := encoder.NewJPEG(0).Encode(ctx, sample()); !apperrors.IsCategory(err, apperrors.CategoryEncode) {
		t.Errorf("canceled: %v", err)
	}
}
