package core

import (
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"

	apperrors "github.com/Skryldev/image-loader/errors"
)

// DefaultDensityFactor is applied when the builder is not given one.
const DefaultDensityFactor = 1.0

// ImageRequest is an immutable description of an image to load.  Two
// requests with equal CacheKey are interchangeable for caching purposes.
type ImageRequest struct {
	uri            *url.URL
	rawURI         string
	densityFactor  float64
	transformation Transformation
	extra          map[string]string
	sourceKey      string
	cacheKey       string
}

// URI returns a copy of the parsed source URI.
func (r ImageRequest) URI() *url.URL {
	if r.uri == nil {
		return &url.URL{}
	}
	u := *r.uri
	return &u
}

// URIString returns the source URI as given to the builder.
func (r ImageRequest) URIString() string { return r.rawURI }

// Scheme returns the lower-cased URI scheme.
func (r ImageRequest) Scheme() string {
	if r.uri == nil {
		return ""
	}
	return strings.ToLower(r.uri.Scheme)
}

// DensityFactor returns the requested density factor (> 0).
func (r ImageRequest) DensityFactor() float64 { return r.densityFactor }

// Density returns BaseDensity scaled by the density factor, truncated
// toward zero (2.999 gives 479).
func (r ImageRequest) Density() int {
	return int(BaseDensity * r.densityFactor)
}

// Transformation returns the optional transformation, or nil.
func (r ImageRequest) Transformation() Transformation { return r.transformation }

// Extra returns a copy of the caller-supplied tags.  Extras are not part of
// the cache key.
func (r ImageRequest) Extra() map[string]string {
	if len(r.extra) == 0 {
		return nil
	}
	out := make(map[string]string, len(r.extra))
	for k, v := range r.extra {
		out[k] = v
	}
	return out
}

// SourceKey identifies the untransformed image: uri plus density factor.
func (r ImageRequest) SourceKey() string { return r.sourceKey }

// CacheKey identifies the combination of source, density factor and
// transformation.
func (r ImageRequest) CacheKey() string { return r.cacheKey }

// IsZero reports whether r was not produced by a builder.
func (r ImageRequest) IsZero() bool { return r.cacheKey == "" }

func (r ImageRequest) String() string {
	t := "none"
	if r.transformation != nil {
		t = r.transformation.Key()
	}
	return fmt.Sprintf("ImageRequest{uri=%s density=%s transform=%s key=%s}",
		r.rawURI, formatDensity(r.densityFactor), t, r.cacheKey)
}

// Fields returns the request as structured logging fields.
func (r ImageRequest) Fields() []interface{} {
	fields := []interface{}{"uri", r.rawURI, "density_factor", r.densityFactor, "cache_key", r.cacheKey}
	if r.transformation != nil {
		fields = append(fields, "transformation", r.transformation.Key())
	}
	return fields
}

// ── Builder ───────────────────────────────────────────────────────────────────

// RequestBuilder accumulates request options; Build validates them.
type RequestBuilder struct {
	uri            string
	densityFactor  *float64
	transformation Transformation
	extra          map[string]string
}

// NewRequest starts a builder for the given source URI.
func NewRequest(uri string) *RequestBuilder {
	return &RequestBuilder{uri: uri}
}

// DensityFactor sets the density factor; it must be positive.
func (b *RequestBuilder) DensityFactor(f float64) *RequestBuilder {
	b.densityFactor = &f
	return b
}

// Transformation sets the optional transformation.
func (b *RequestBuilder) Transformation(t Transformation) *RequestBuilder {
	b.transformation = t
	return b
}

// Extra attaches a caller tag, e.g. to identify the image in callbacks.
func (b *RequestBuilder) Extra(key, value string) *RequestBuilder {
	if b.extra == nil {
		b.extra = make(map[string]string)
	}
	b.extra[key] = value
	return b
}

// Build validates the options and returns the immutable request.  It fails
// with an invalid_argument error for an empty or unparsable URI or a
// non-positive density factor.
func (b *RequestBuilder) Build() (ImageRequest, error) {
	raw := strings.TrimSpace(b.uri)
	if raw == "" {
		return ImageRequest{}, apperrors.New(apperrors.CategoryInvalidArgument, "request.build",
			fmt.Errorf("%w: uri must not be empty", apperrors.ErrInvalidArgument))
	}
	u, err := url.Parse(raw)
	if err != nil {
		return ImageRequest{}, apperrors.New(apperrors.CategoryInvalidArgument, "request.build",
			fmt.Errorf("%w: %v", apperrors.ErrInvalidArgument, err))
	}

	density := DefaultDensityFactor
	if b.densityFactor != nil {
		density = *b.densityFactor
	}
	if !(density > 0) || math.IsInf(density, 0) {
		return ImageRequest{}, apperrors.New(apperrors.CategoryInvalidArgument, "request.build",
			fmt.Errorf("%w: density factor must be > 0, got %v", apperrors.ErrInvalidArgument, density))
	}

	req := ImageRequest{
		uri:            u,
		rawURI:         raw,
		densityFactor:  density,
		transformation: b.transformation,
	}
	if len(b.extra) > 0 {
		req.extra = make(map[string]string, len(b.extra))
		for k, v := range b.extra {
			req.extra[k] = v
		}
	}
	req.sourceKey = deriveKey(raw, density, nil)
	req.cacheKey = deriveKey(raw, density, b.transformation)
	return req, nil
}

// MustBuild is Build for static inputs; it panics on error.
func (b *RequestBuilder) MustBuild() ImageRequest {
	req, err := b.Build()
	if err != nil {
		panic(err)
	}
	return req
}

// ── Key derivation ────────────────────────────────────────────────────────────

// deriveKey hashes a length-prefixed encoding of the inputs so that no two
// distinct tuples share a preimage.  An absent transformation and one with
// an empty key hash differently.
func deriveKey(uri string, density float64, t Transformation) string {
	d := xxhash.New()
	writeField(d, uri)
	writeField(d, formatDensity(density))
	if t == nil {
		_, _ = d.WriteString("-")
	} else {
		_, _ = d.WriteString("+")
		writeField(d, t.Key())
	}
	return fmt.Sprintf("%016x", d.Sum64())
}

func writeField(d *xxhash.Digest, s string) {
	_, _ = d.WriteString(strconv.Itoa(len(s)))
	_, _ = d.WriteString(":")
	_, _ = d.WriteString(s)
}

func formatDensity(f float64) string {
	return strconv.FormatFloat(f, 'g', -1, 64)
}
