package vips_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/jpeg"
	"io"
	"testing"

	"github.com/Skryldev/image-loader/adapters/decoder"
	"github.com/Skryldev/image-loader/adapters/vips"
	"github.com/Skryldev/image-loader/core"
)

func makeJPEG(tb testing.TB, w, h int) []byte {
	tb.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.Set(x, y, color.RGBA{R: uint8(x * 255 / w), G: uint8(y * 255 / h), B: 128, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: 92}); err != nil {
		tb.Fatalf("encode: %v", err)
	}
	return buf.Bytes()
}

var req = core.NewRequest("http://example.com/photo.jpg").MustBuild()

func decodeWith(tb testing.TB, f core.DecoderFactory, raw []byte) *core.ImageData {
	tb.Helper()
	dec, err := f.Create(req, core.StreamResult{Body: io.NopCloser(bytes.NewReader(raw)), Size: int64(len(raw))})
	if err != nil {
		tb.Fatalf("Create: %v", err)
	}
	img, err := dec.Decode(context.Background())
	if err != nil {
		tb.Fatalf("Decode: %v", err)
	}
	return img
}

func TestBackend_Decode(t *testing.T) {
	backend := vips.NewBackend(vips.BackendConfig{})
	img := decodeWith(t, backend, makeJPEG(t, 64, 48))
	if img.Format != core.FormatJPEG || img.Meta.Width != 64 || img.Meta.Height != 48 {
		t.Errorf("got %s %dx%d", img.Format, img.Meta.Width, img.Meta.Height)
	}
	if s := img.Image.Bounds().Size(); s != image.Pt(64, 48) {
		t.Errorf("pixel buffer size %v", s)
	}
	if img.Density != core.BaseDensity {
		t.Errorf("density %d", img.Density)
	}
}

// ─── Decode ───────────────────────────────────────────────────────────────────

func BenchmarkDecode_Stdlib_1920x1080(b *testing.B) {
	raw := makeJPEG(b, 1920, 1080)
	f := decoder.NewFactory(decoder.Options{})
	b.ReportAllocs()
	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		decodeWith(b, f, raw)
	}
}

func BenchmarkDecode_Vips_1920x1080(b *testing.B) {
	raw := makeJPEG(b, 1920, 1080)
	f := vips.NewBackend(vips.BackendConfig{})
	b.ReportAllocs()
	b.SetBytes(int64(len(raw)))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		decodeWith(b, f, raw)
	}
}
