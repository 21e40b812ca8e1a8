// Package fetcher provides the built-in fetcher factories: HTTP(S), local
// files and a byte-store decorator that caches fetched bytes.
package fetcher

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
	"github.com/Skryldev/image-loader/httpcall"
)

// AsyncCall is one cancellable HTTP exchange.
type AsyncCall interface {
	Execute(ctx context.Context) (*httpcall.Response, error)
	Cancel()
	IsCancellationRequested() bool
}

// Transport creates calls.  ClientTransport adapts *httpcall.Client.
type Transport interface {
	NewCall(props httpcall.RequestProperties) AsyncCall
}

// ClientTransport adapts an httpcall.Client to Transport.
type ClientTransport struct {
	Client *httpcall.Client
}

func (t ClientTransport) NewCall(props httpcall.RequestProperties) AsyncCall {
	return t.Client.NewCall(props)
}

// HTTPOptions tunes the requests issued by HTTPFactory.
type HTTPOptions struct {
	ConnectTimeout time.Duration // default httpcall.DefaultConnectTimeout
	ReadTimeout    time.Duration // default httpcall.DefaultReadTimeout
	Header         http.Header   // added to every request
}

// HTTPFactory creates fetchers for http and https URIs.
type HTTPFactory struct {
	transport Transport
	opts      HTTPOptions
}

// NewHTTPFactory returns a factory issuing requests through t.
func NewHTTPFactory(t Transport, opts HTTPOptions) *HTTPFactory {
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = httpcall.DefaultConnectTimeout
	}
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = httpcall.DefaultReadTimeout
	}
	return &HTTPFactory{transport: t, opts: opts}
}

// Create declines every scheme other than http and https.
func (f *HTTPFactory) Create(req core.ImageRequest) (core.Fetcher, bool) {
	switch req.Scheme() {
	case "http", "https":
		return &httpFetcher{factory: f, req: req}, true
	}
	return nil, false
}

type httpFetcher struct {
	factory *HTTPFactory
	req     core.ImageRequest
}

// Fetch issues a streamed GET, following redirects across http and https.
// Only a 2xx response is a success.
func (h *httpFetcher) Fetch(ctx context.Context) (core.FetchResult, error) {
	if err := ctx.Err(); err != nil {
		return nil, apperrors.Wrap(apperrors.CategoryFetch, "http.fetch", err)
	}

	b := httpcall.NewProperties(h.req.URIString()).
		Method(httpcall.MethodGet).
		ConnectTimeout(h.factory.opts.ConnectTimeout).
		ReadTimeout(h.factory.opts.ReadTimeout).
		AllowCrossProtocolRedirects(true).
		UseStream(true)
	for name, values := range h.factory.opts.Header {
		for _, v := range values {
			b.Header(name, v)
		}
	}
	props, err := b.Build()
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryFetch, "http.fetch", err)
	}

	call := h.factory.transport.NewCall(props)
	resp, err := call.Execute(ctx)
	if err != nil {
		return nil, apperrors.New(apperrors.CategoryFetch, "http.fetch", err)
	}
	if call.IsCancellationRequested() {
		_ = resp.Close()
		return nil, apperrors.New(apperrors.CategoryFetch, "http.fetch", apperrors.ErrCanceled)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_ = resp.Close()
		return nil, apperrors.New(apperrors.CategoryFetch, "http.fetch",
			fmt.Errorf("%s: %w", h.req.URIString(), &apperrors.StatusError{Code: resp.StatusCode}))
	}

	size := int64(-1)
	if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil {
		size = n
	}
	return core.StreamResult{
		Body:        resp.Body(),
		ContentType: resp.Header.Get("Content-Type"),
		Size:        size,
	}, nil
}
