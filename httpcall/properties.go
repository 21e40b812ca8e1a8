// Package httpcall executes single HTTP exchanges with explicit, advisory
// cancellation.  It is the transport collaborator consumed by the HTTP
// fetcher.
package httpcall

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	apperrors "github.com/Skryldev/image-loader/errors"
)

// Method is an HTTP request method.
type Method string

const (
	MethodGet    Method = http.MethodGet
	MethodHead   Method = http.MethodHead
	MethodPost   Method = http.MethodPost
	MethodPut    Method = http.MethodPut
	MethodDelete Method = http.MethodDelete
)

const (
	// DefaultConnectTimeout bounds dialing and the TLS handshake.
	DefaultConnectTimeout = 10 * time.Second
	// DefaultReadTimeout bounds the wait for response headers.
	DefaultReadTimeout = 10 * time.Second
	// MaxRedirects is the number of redirects followed before giving up.
	MaxRedirects = 20
)

// RequestProperties describes one exchange.  Values are immutable once
// built; use ToBuilder to derive a modified copy.
type RequestProperties struct {
	uri                         *url.URL
	method                      Method
	header                      http.Header
	body                        []byte
	connectTimeout              time.Duration
	readTimeout                 time.Duration
	allowCrossProtocolRedirects bool
	useStream                   bool
}

func (p RequestProperties) URI() *url.URL {
	u := *p.uri
	return &u
}
func (p RequestProperties) Method() Method                { return p.method }
func (p RequestProperties) Header() http.Header           { return p.header.Clone() }
func (p RequestProperties) Body() []byte                  { return append([]byte(nil), p.body...) }
func (p RequestProperties) ConnectTimeout() time.Duration { return p.connectTimeout }
func (p RequestProperties) ReadTimeout() time.Duration    { return p.readTimeout }

// AllowCrossProtocolRedirects reports whether redirects between http and
// https are followed.
func (p RequestProperties) AllowCrossProtocolRedirects() bool { return p.allowCrossProtocolRedirects }

// UseStream reports whether the response body is handed out as a live
// stream instead of being buffered.
func (p RequestProperties) UseStream() bool { return p.useStream }

// ToBuilder returns a builder pre-populated with p.
func (p RequestProperties) ToBuilder() *PropertiesBuilder {
	return &PropertiesBuilder{
		uri:                         p.uri.String(),
		method:                      p.method,
		header:                      p.header.Clone(),
		body:                        p.Body(),
		connectTimeout:              p.connectTimeout,
		readTimeout:                 p.readTimeout,
		allowCrossProtocolRedirects: p.allowCrossProtocolRedirects,
		useStream:                   p.useStream,
	}
}

// ── Builder ───────────────────────────────────────────────────────────────────

// PropertiesBuilder accumulates request properties.
type PropertiesBuilder struct {
	uri                         string
	method                      Method
	header                      http.Header
	body                        []byte
	connectTimeout              time.Duration
	readTimeout                 time.Duration
	allowCrossProtocolRedirects bool
	useStream                   bool
}

// NewProperties starts a GET request to uri with default timeouts.
func NewProperties(uri string) *PropertiesBuilder {
	return &PropertiesBuilder{
		uri:            uri,
		method:         MethodGet,
		header:         make(http.Header),
		connectTimeout: DefaultConnectTimeout,
		readTimeout:    DefaultReadTimeout,
	}
}

func (b *PropertiesBuilder) Method(m Method) *PropertiesBuilder { b.method = m; return b }

// Header adds a header value; repeated names accumulate.
func (b *PropertiesBuilder) Header(name, value string) *PropertiesBuilder {
	b.header.Add(name, value)
	return b
}

func (b *PropertiesBuilder) Body(body []byte) *PropertiesBuilder { b.body = body; return b }

func (b *PropertiesBuilder) ConnectTimeout(d time.Duration) *PropertiesBuilder {
	b.connectTimeout = d
	return b
}

func (b *PropertiesBuilder) ReadTimeout(d time.Duration) *PropertiesBuilder {
	b.readTimeout = d
	return b
}

func (b *PropertiesBuilder) AllowCrossProtocolRedirects(allow bool) *PropertiesBuilder {
	b.allowCrossProtocolRedirects = allow
	return b
}

func (b *PropertiesBuilder) UseStream(stream bool) *PropertiesBuilder {
	b.useStream = stream
	return b
}

// Build validates and freezes the properties.
func (b *PropertiesBuilder) Build() (RequestProperties, error) {
	u, err := url.Parse(b.uri)
	if err != nil {
		return RequestProperties{}, invalid("uri: %v", err)
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	default:
		return RequestProperties{}, invalid("uri scheme %q is not http or https", u.Scheme)
	}
	if u.Host == "" {
		return RequestProperties{}, invalid("uri %q has no host", b.uri)
	}
	if b.connectTimeout <= 0 {
		return RequestProperties{}, invalid("connect timeout must be greater than 0")
	}
	if b.readTimeout <= 0 {
		return RequestProperties{}, invalid("read timeout must be greater than 0")
	}
	if b.method == "" {
		b.method = MethodGet
	}
	return RequestProperties{
		uri:                         u,
		method:                      b.method,
		header:                      b.header.Clone(),
		body:                        append([]byte(nil), b.body...),
		connectTimeout:              b.connectTimeout,
		readTimeout:                 b.readTimeout,
		allowCrossProtocolRedirects: b.allowCrossProtocolRedirects,
		useStream:                   b.useStream,
	}, nil
}

func invalid(format string, args ...interface{}) error {
	return apperrors.New(apperrors.CategoryInvalidArgument, "httpcall.properties",
		fmt.Errorf("%w: "+format, append([]interface{}{apperrors.ErrInvalidArgument}, args...)...))
}
