package server_test

import (
	"bytes"
	"encoding/json"
	"errors"
	"image"
	"image/color"
	"image/jpeg"
	"image/png"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"

	imageloader "github.com/Skryldev/image-loader"
	"github.com/Skryldev/image-loader/config"
	apperrors "github.com/Skryldev/image-loader/errors"
	"github.com/Skryldev/image-loader/server"
)

func newUpstream(t *testing.T) *httptest.Server {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 20, 10))
	for y := 0; y < 10; y++ {
		for x := 0; x < 20; x++ {
			img.Set(x, y, color.NRGBA{R: 10, G: 200, B: 10, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/green.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newServer(t *testing.T) *server.Server {
	t.Helper()
	return newServerWith(t, nil, server.Options{Quality: 80})
}

func newServerWith(t *testing.T, mutate func(*config.Config), opts server.Options) *server.Server {
	t.Helper()
	cfg := imageloader.DefaultConfig()
	cfg.WorkerCount = 2
	if mutate != nil {
		mutate(&cfg)
	}
	l, err := imageloader.New(cfg)
	if err != nil {
		t.Fatal(err)
	}
	l.Start()
	t.Cleanup(l.Stop)
	return server.New(l, opts)
}

func expectError(t *testing.T, s *server.Server, target string, status int, cat string) {
	t.Helper()
	resp := get(t, s, target)
	defer resp.Body.Close()
	if resp.StatusCode != status {
		t.Errorf("%s: status %d, want %d", target, resp.StatusCode, status)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("%s: error body: %v", target, err)
	}
	if body["category"] != cat {
		t.Errorf("%s: category %q, want %q", target, body["category"], cat)
	}
}

func get(t *testing.T, s *server.Server, target string) *http.Response {
	t.Helper()
	resp, err := s.App().Test(httptest.NewRequest(http.MethodGet, target, nil), -1)
	if err != nil {
		t.Fatalf("GET %s: %v", target, err)
	}
	return resp
}

func imageURL(upstream, path string, params url.Values) string {
	if params == nil {
		params = url.Values{}
	}
	params.Set("url", upstream+path)
	return "/image?" + params.Encode()
}

func TestImage_PNG(t *testing.T) {
	up := newUpstream(t)
	s := newServer(t)

	resp := get(t, s, imageURL(up.URL, "/green.png", url.Values{"density": {"2"}}))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("content type %q", ct)
	}
	if d := resp.Header.Get("X-Image-Density"); d != "320" {
		t.Errorf("density header %q", d)
	}
	if _, err := png.Decode(resp.Body); err != nil {
		t.Errorf("body is not a png: %v", err)
	}
}

func TestImage_TransformToJPEG(t *testing.T) {
	up := newUpstream(t)
	s := newServer(t)

	resp := get(t, s, imageURL(up.URL, "/green.png", url.Values{"transform": {"scale:10:5"}, "format": {"jpg"}}))
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		t.Fatalf("status %d: %s", resp.StatusCode, body)
	}
	cfg, err := jpeg.DecodeConfig(resp.Body)
	if err != nil || cfg.Width != 10 || cfg.Height != 5 {
		t.Errorf("jpeg: %v %+v", err, cfg)
	}
}

func TestImage_Errors(t *testing.T) {
	up := newUpstream(t)
	s := newServer(t)

	cases := []struct {
		name   string
		target string
		status int
		cat    string
	}{
		{"missing url", "/image", http.StatusBadRequest, "invalid_argument"},
		{"bad scheme", "/image?url=" + url.QueryEscape("gopher://x/a.png"), http.StatusBadRequest, "unsupported_scheme"},
		{"bad transform", imageURL(up.URL, "/green.png", url.Values{"transform": {"sharpen"}}), http.StatusBadRequest, "invalid_argument"},
		{"bad format", imageURL(up.URL, "/green.png", url.Values{"format": {"bmp"}}), http.StatusBadRequest, "encode"},
		{"bad density", imageURL(up.URL, "/green.png", url.Values{"density": {"x"}}), http.StatusBadRequest, ""},
		{"upstream 404", imageURL(up.URL, "/nope.png", nil), http.StatusNotFound, "fetch"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			resp := get(t, s, tc.target)
			defer resp.Body.Close()
			if resp.StatusCode != tc.status {
				t.Errorf("status %d, want %d", resp.StatusCode, tc.status)
			}
			var body map[string]string
			if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
				t.Fatalf("error body: %v", err)
			}
			if body["category"] != tc.cat {
				t.Errorf("category %q, want %q", body["category"], tc.cat)
			}
		})
	}
}

func TestImage_FileScheme(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 3, 2))); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(dir, "local.png")
	if err := os.WriteFile(path, buf.Bytes(), 0o600); err != nil {
		t.Fatal(err)
	}
	fileURL := func(p string) string {
		return "/image?url=" + url.QueryEscape("file://"+filepath.ToSlash(p))
	}
	targets := []string{fileURL(path), fileURL(filepath.Join(dir, "missing.png")), fileURL("/etc/passwd")}

	// Existing and missing paths must be indistinguishable while disabled.
	disabled := newServer(t)
	for _, target := range targets {
		expectError(t, disabled, target, http.StatusBadRequest, "unsupported_scheme")
	}
	enabled := func(c *config.Config) {
		c.File.Enabled = true
		c.File.Root = dir
	}
	notAllowed := newServerWith(t, enabled, server.Options{})
	for _, target := range targets {
		expectError(t, notAllowed, target, http.StatusBadRequest, "unsupported_scheme")
	}

	allowed := newServerWith(t, enabled, server.Options{AllowFile: true})
	resp := get(t, allowed, fileURL(path))
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK || resp.Header.Get("X-Image-Width") != "3" {
		t.Errorf("allowed: status %d width %q", resp.StatusCode, resp.Header.Get("X-Image-Width"))
	}
	expectError(t, allowed, fileURL("/etc/passwd"), http.StatusNotFound, "fetch")
}

func TestHealthAndStats(t *testing.T) {
	up := newUpstream(t)
	s := newServer(t)

	resp := get(t, s, "/healthz")
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz status %d", resp.StatusCode)
	}

	get(t, s, imageURL(up.URL, "/green.png", nil)).Body.Close()

	resp = get(t, s, "/stats")
	defer resp.Body.Close()
	var stats struct {
		Loader  imageloader.Stats `json:"loader"`
		Metrics struct {
			StageCalls map[string]int64 `json:"stage_calls"`
		} `json:"metrics"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&stats); err != nil {
		t.Fatal(err)
	}
	if stats.Loader.Delivered != 1 || stats.Metrics.StageCalls["fetch"] != 1 {
		t.Errorf("stats: %+v", stats)
	}
}

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperrors.New(apperrors.CategoryPipeline, "loader.enqueue", apperrors.ErrQueueFull), http.StatusServiceUnavailable},
		{apperrors.New(apperrors.CategoryFetch, "http.fetch", &apperrors.StatusError{Code: 500}), http.StatusBadGateway},
		{apperrors.New(apperrors.CategoryFetch, "file.fetch", apperrors.ErrNotFound), http.StatusNotFound},
		{apperrors.New(apperrors.CategoryDecode, "decoder", apperrors.ErrUnsupportedFormat), http.StatusUnprocessableEntity},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		if got := server.StatusFor(tc.err); got != tc.want {
			t.Errorf("%v: %d, want %d", tc.err, got, tc.want)
		}
	}
}
