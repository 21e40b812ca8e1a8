package main

import (
	"bytes"
	"image"
	"image/jpeg"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func runCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func pngServer(t *testing.T) *httptest.Server {
	t.Helper()
	var buf bytes.Buffer
	if err := png.Encode(&buf, image.NewNRGBA(image.Rect(0, 0, 12, 8))); err != nil {
		t.Fatal(err)
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			http.NotFound(w, r)
			return
		}
		_, _ = w.Write(buf.Bytes())
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestFetch_WritesFile(t *testing.T) {
	srv := pngServer(t)
	dest := filepath.Join(t.TempDir(), "out.jpg")

	out, err := runCmd(t, "fetch", srv.URL+"/a.png", "-t", "scale:6:4", "-f", "jpeg", "-o", dest)
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if !strings.Contains(out, "(6x4)") {
		t.Errorf("output: %q", out)
	}
	f, err := os.Open(dest)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()
	if cfg, err := jpeg.DecodeConfig(f); err != nil || cfg.Width != 6 {
		t.Errorf("written file: %v %+v", err, cfg)
	}
}

func TestFetch_MultipleIntoDirectory(t *testing.T) {
	srv := pngServer(t)
	dir := t.TempDir()

	_, err := runCmd(t, "fetch", srv.URL+"/a.png", srv.URL+"/missing.png", "-o", dir)
	if err == nil || !strings.Contains(err.Error(), "1 of 2") {
		t.Fatalf("want partial failure, got %v", err)
	}
	if _, err := os.Stat(filepath.Join(dir, "image-000.png")); err != nil {
		t.Errorf("first image not written: %v", err)
	}
}

func TestFetch_InvalidArguments(t *testing.T) {
	for _, args := range [][]string{
		{"fetch"},
		{"fetch", "http://example.com/a.png", "-t", "sharpen"},
		{"fetch", "http://example.com/a.png", "-f", "tiff"},
		{"fetch", "http://example.com/a.png", "-d", "0"},
	} {
		if _, err := runCmd(t, args...); err == nil {
			t.Errorf("%v: expected error", args)
		}
	}
}

func TestOutputPath(t *testing.T) {
	cases := []struct {
		out  string
		i, n int
		want string
	}{
		{"-", 0, 3, "-"},
		{"a.png", 0, 1, "a.png"},
		{"", 2, 3, "./image-002.png"},
		{"dir", 1, 2, "dir/image-001.png"},
	}
	for _, tc := range cases {
		if got := outputPath(tc.out, tc.i, tc.n, "png"); got != tc.want {
			t.Errorf("outputPath(%q, %d, %d) = %q, want %q", tc.out, tc.i, tc.n, got, tc.want)
		}
	}
}
