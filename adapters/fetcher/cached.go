package fetcher

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/cespare/xxhash/v2"

	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
	"github.com/Skryldev/image-loader/utils"
)

// CachedFactory decorates another factory with a byte store.  Fetched bytes
// are stored under the source URI and served from the store on later
// requests, whatever their density or transformation.
type CachedFactory struct {
	next     core.FetcherFactory
	store    core.StorageAdapter
	logger   core.Logger
	maxBytes int64
}

// NewCachedFactory wraps next.  When maxBytes > 0, a response declaring a
// larger Content-Length is passed through unstored for the decoder to
// reject, and a body that grows past maxBytes while being read fails with
// ErrImageTooLarge in the decode category, as the decoder reports it.
func NewCachedFactory(next core.FetcherFactory, store core.StorageAdapter, logger core.Logger, maxBytes int64) *CachedFactory {
	if logger == nil {
		logger = core.NopLogger{}
	}
	return &CachedFactory{next: next, store: store, logger: logger, maxBytes: maxBytes}
}

// Create accepts exactly the requests the wrapped factory accepts.
func (c *CachedFactory) Create(req core.ImageRequest) (core.Fetcher, bool) {
	inner, ok := c.next.Create(req)
	if !ok || inner == nil {
		return nil, false
	}
	return &cachedFetcher{factory: c, inner: inner, req: req}, true
}

// StoreKey returns the byte-store key of req's source.
func StoreKey(req core.ImageRequest) string {
	return "src/" + strconv.FormatUint(xxhash.Sum64String(req.URIString()), 16)
}

type cachedFetcher struct {
	factory *CachedFactory
	inner   core.Fetcher
	req     core.ImageRequest
}

func (f *cachedFetcher) Fetch(ctx context.Context) (core.FetchResult, error) {
	c := f.factory
	key := StoreKey(f.req)

	rc, err := c.store.Get(ctx, key)
	switch {
	case err == nil:
		c.logger.Debug("fetcher.store.hit", "key", key, "uri", f.req.URIString())
		return core.StreamResult{Body: rc, Size: -1}, nil
	case errors.Is(err, apperrors.ErrNotFound):
	default:
		c.logger.Warn("fetcher.store.get_failed", "key", key, "error", err.Error())
	}

	res, err := f.inner.Fetch(ctx)
	if err != nil {
		return nil, err
	}
	stream, ok := res.(core.StreamResult)
	if !ok {
		return res, nil
	}
	if c.maxBytes > 0 && stream.Size > c.maxBytes {
		return stream, nil
	}

	buf, err := utils.DrainReader(ctx, &utils.LimitedReader{R: stream.Body, Max: c.maxBytes}, 0)
	stream.Body.Close()
	if err != nil {
		if errors.Is(err, utils.ErrLimitExceeded) {
			return nil, apperrors.New(apperrors.CategoryDecode, "fetcher.store.read",
				fmt.Errorf("%w: more than %d bytes", apperrors.ErrImageTooLarge, c.maxBytes))
		}
		return nil, apperrors.New(apperrors.CategoryFetch, "fetcher.store.read", err)
	}
	data := utils.CloneBytes(buf.Bytes())
	utils.ReleaseBuffer(buf)

	meta := map[string]string{"uri": f.req.URIString()}
	if stream.ContentType != "" {
		meta["content_type"] = stream.ContentType
	}
	if err := c.store.Put(ctx, key, bytes.NewReader(data), meta); err != nil {
		c.logger.Warn("fetcher.store.put_failed", "key", key, "error", err.Error())
	}

	return core.StreamResult{
		Body:        io.NopCloser(bytes.NewReader(data)),
		ContentType: stream.ContentType,
		Size:        int64(len(data)),
	}, nil
}
