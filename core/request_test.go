package core_test

import (
	"context"
	"image"
	"math"
	"testing"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
)

// keyedTransform is a no-op transformation with a configurable key.
type keyedTransform struct{ key string }

func (k keyedTransform) Key() string                                    { return k.key }
func (k keyedTransform) Transform(img image.Image) (image.Image, error) { return img, nil }

func TestBuild_Defaults(t *testing.T) {
	req, err := core.NewRequest("https://example.com/a.png").Build()
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	if req.DensityFactor() != core.DefaultDensityFactor {
		t.Errorf("density factor: got %v, want %v", req.DensityFactor(), core.DefaultDensityFactor)
	}
	if req.Density() != core.BaseDensity {
		t.Errorf("density: got %d, want %d", req.Density(), core.BaseDensity)
	}
	if req.Transformation() != nil {
		t.Error("expected no transformation")
	}
	if req.Scheme() != "https" {
		t.Errorf("scheme: got %q", req.Scheme())
	}
	if req.CacheKey() == "" || req.SourceKey() == "" {
		t.Error("keys must be derived at build time")
	}
	if req.CacheKey() != req.SourceKey() {
		t.Error("without a transformation the cache key equals the source key")
	}
}

func TestBuild_InvalidArguments(t *testing.T) {
	tests := []struct {
		name    string
		uri     string
		density float64
	}{
		{"empty uri", "", 1},
		{"blank uri", "   ", 1},
		{"zero density", "https://example.com/a.png", 0},
		{"negative density", "https://example.com/a.png", -2},
		{"nan density", "https://example.com/a.png", math.NaN()},
		{"inf density", "https://example.com/a.png", math.Inf(1)},
		{"bad uri", "http://[::1", 1},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := core.NewRequest(tc.uri).DensityFactor(tc.density).Build()
			if err == nil {
				t.Fatal("expected error")
			}
			if !apperrors.IsCategory(err, apperrors.CategoryInvalidArgument) {
				t.Errorf("category: got %q, want invalid_argument (%v)", apperrors.CategoryOf(err), err)
			}
		})
	}
}

func TestBuild_ValidDensities(t *testing.T) {
	for _, d := range []float64{0.5, 1, 1.5, 2, 3, 1e-6} {
		if _, err := core.NewRequest("https://example.com/a.png").DensityFactor(d).Build(); err != nil {
			t.Errorf("density %v: unexpected error %v", d, err)
		}
	}
}

func TestDensity_Truncates(t *testing.T) {
	cases := []struct {
		factor float64
		want   int
	}{
		{1, 160},
		{2, 320},
		{2.999, 479},
		{0.5, 80},
		{0.01, 1},
	}
	for _, tc := range cases {
		req := core.NewRequest("https://example.com/a.png").DensityFactor(tc.factor).MustBuild()
		if got := req.Density(); got != tc.want {
			t.Errorf("factor %v: got %d, want %d", tc.factor, got, tc.want)
		}
	}
}

func TestCacheKey_Deterministic(t *testing.T) {
	build := func() core.ImageRequest {
		return core.NewRequest("https://example.com/a.png").
			DensityFactor(2).
			Transformation(keyedTransform{"blur(15,10)"}).
			Extra("tag", "x").
			MustBuild()
	}
	a, b := build(), build()
	if a.CacheKey() != b.CacheKey() {
		t.Errorf("identical inputs produced %s and %s", a.CacheKey(), b.CacheKey())
	}

	// Extras are not part of the key.
	c := core.NewRequest("https://example.com/a.png").
		DensityFactor(2).
		Transformation(keyedTransform{"blur(15,10)"}).
		MustBuild()
	if a.CacheKey() != c.CacheKey() {
		t.Error("extras must not change the cache key")
	}
}

func TestCacheKey_ChangesWithEachInput(t *testing.T) {
	reqs := []core.ImageRequest{
		core.NewRequest("https://example.com/a.png").MustBuild(),
		core.NewRequest("https://example.com/b.png").MustBuild(),
		core.NewRequest("https://example.com/a.png").DensityFactor(2).MustBuild(),
		core.NewRequest("https://example.com/a.png").DensityFactor(1.0000001).MustBuild(),
		core.NewRequest("https://example.com/a.png").Transformation(keyedTransform{"blend"}).MustBuild(),
		core.NewRequest("https://example.com/a.png").Transformation(keyedTransform{"trim"}).MustBuild(),
		core.NewRequest("https://example.com/a.png").Transformation(keyedTransform{""}).MustBuild(),
		// Concatenation ambiguity: uri "…a.png1" + density "2" vs "…a.png" + "12".
		core.NewRequest("https://example.com/a.png1").DensityFactor(2).MustBuild(),
		core.NewRequest("https://example.com/a.png").DensityFactor(12).MustBuild(),
	}
	seen := make(map[string]int)
	for i, r := range reqs {
		if j, dup := seen[r.CacheKey()]; dup {
			t.Errorf("requests %d and %d collide on key %s", j, i, r.CacheKey())
		}
		seen[r.CacheKey()] = i
	}
}

func TestSourceKey_IgnoresTransformation(t *testing.T) {
	plain := core.NewRequest("https://example.com/a.png").DensityFactor(2).MustBuild()
	transformed := core.NewRequest("https://example.com/a.png").DensityFactor(2).
		Transformation(keyedTransform{"blend"}).MustBuild()
	if plain.SourceKey() != transformed.SourceKey() {
		t.Error("source key must not depend on the transformation")
	}
	if plain.CacheKey() == transformed.CacheKey() {
		t.Error("cache key must depend on the transformation")
	}
}

func TestRequest_Immutable(t *testing.T) {
	b := core.NewRequest("https://example.com/a.png").Extra("k", "v")
	req := b.MustBuild()

	b.Extra("k", "changed").DensityFactor(3)
	if req.Extra()["k"] != "v" || req.DensityFactor() != 1 {
		t.Error("builder mutation leaked into a built request")
	}

	extra := req.Extra()
	extra["k"] = "mutated"
	if req.Extra()["k"] != "v" {
		t.Error("Extra must return a copy")
	}

	u := req.URI()
	u.Host = "evil.example"
	if req.URI().Host != "example.com" {
		t.Error("URI must return a copy")
	}
}

// ── Registry ──────────────────────────────────────────────────────────────────

type namedFetcher string

func (namedFetcher) Fetch(context.Context) (core.FetchResult, error) { return nil, nil }

func schemeFactory(scheme string, name namedFetcher) core.FetcherFactory {
	return core.FetcherFactoryFunc(func(req core.ImageRequest) (core.Fetcher, bool) {
		if req.Scheme() != scheme {
			return nil, false
		}
		return name, true
	})
}

func TestFetcherRegistry_OrderAndDecline(t *testing.T) {
	reg := core.NewFetcherRegistry(
		schemeFactory("https", "first"),
		schemeFactory("https", "second"),
		schemeFactory("file", "file"),
	)

	f, err := reg.Resolve(core.NewRequest("https://example.com/a.png").MustBuild())
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if f.(namedFetcher) != "first" {
		t.Errorf("got %v, want first registered factory", f)
	}

	f, err = reg.Resolve(core.NewRequest("file:///tmp/a.png").MustBuild())
	if err != nil || f.(namedFetcher) != "file" {
		t.Errorf("file scheme: got %v, %v", f, err)
	}

	reg.Prepend(schemeFactory("https", "override"))
	f, _ = reg.Resolve(core.NewRequest("https://example.com/a.png").MustBuild())
	if f.(namedFetcher) != "override" {
		t.Errorf("prepended factory should win, got %v", f)
	}
}

func TestFetcherRegistry_UnsupportedScheme(t *testing.T) {
	reg := core.NewFetcherRegistry(schemeFactory("https", "https"))
	_, err := reg.Resolve(core.NewRequest("ftp://example.com/a.png").MustBuild())
	if !apperrors.IsCategory(err, apperrors.CategoryUnsupportedScheme) {
		t.Fatalf("got %v, want unsupported_scheme", err)
	}
}
