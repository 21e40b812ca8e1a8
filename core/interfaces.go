package core

import (
	"context"
	"image"
	"io"
	"time"
)

// Fetcher obtains the raw bytes for one request.  Fetch runs on a worker
// goroutine and may block on I/O.
type Fetcher interface {
	Fetch(ctx context.Context) (FetchResult, error)
}

// FetcherFactory creates a Fetcher for req, or reports ok=false when it does
// not handle the request's scheme so the next registered factory is tried.
type FetcherFactory interface {
	Create(req ImageRequest) (f Fetcher, ok bool)
}

// FetcherFactoryFunc adapts a function to FetcherFactory.
type FetcherFactoryFunc func(req ImageRequest) (Fetcher, bool)

func (fn FetcherFactoryFunc) Create(req ImageRequest) (Fetcher, bool) { return fn(req) }

// Decoder turns a FetchResult into a decoded image.  Decode must close the
// underlying stream exactly once, on success and on failure.
type Decoder interface {
	Decode(ctx context.Context) (*ImageData, error)
}

// DecoderFactory creates the Decoder for a request and its fetch result.
// On success the decoder owns the result; on error the caller still does.
type DecoderFactory interface {
	Create(req ImageRequest, result FetchResult) (Decoder, error)
}

// Transformation is a pure, deterministic function over a decoded image.
// Key identifies the behaviour and parameters and becomes part of the
// request's cache key.  Implementations must not mutate the input.
type Transformation interface {
	Key() string
	Transform(img image.Image) (image.Image, error)
}

// Callback receives the terminal outcome of an enqueued request, exactly
// once, on the loader's delivery executor.
type Callback interface {
	OnResponse(req ImageRequest, img *ImageData)
	OnFailure(req ImageRequest, err error)
}

// CallbackFuncs adapts a pair of functions to Callback.  Nil members are
// ignored.
type CallbackFuncs struct {
	Response func(req ImageRequest, img *ImageData)
	Failure  func(req ImageRequest, err error)
}

func (c CallbackFuncs) OnResponse(req ImageRequest, img *ImageData) {
	if c.Response != nil {
		c.Response(req, img)
	}
}

func (c CallbackFuncs) OnFailure(req ImageRequest, err error) {
	if c.Failure != nil {
		c.Failure(req, err)
	}
}

// StorageAdapter persists fetched bytes and retrieves them later.
// Implementations live in adapters/storage/.
type StorageAdapter interface {
	Put(ctx context.Context, key string, r io.Reader, meta map[string]string) error
	Get(ctx context.Context, key string) (io.ReadCloser, error)
	Delete(ctx context.Context, key string) error
	Exists(ctx context.Context, key string) (bool, error)
}

// MetricsCollector receives performance observations from the pipeline.
type MetricsCollector interface {
	RecordStageTime(stage Stage, d time.Duration)
	RecordStageError(stage Stage, category string)
	RecordFetchedBytes(bytes int64)
	RecordCacheHit(hit bool)
}

// Logger is a minimal structured logging interface.
type Logger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
}

// NopLogger discards everything.
type NopLogger struct{}

func (NopLogger) Debug(string, ...interface{}) {}
func (NopLogger) Info(string, ...interface{})  {}
func (NopLogger) Warn(string, ...interface{})  {}
func (NopLogger) Error(string, ...interface{}) {}

// Hook is an optional observer invoked around pipeline stages.
type Hook interface {
	BeforeStage(ctx context.Context, stage Stage, req ImageRequest)
	AfterStage(ctx context.Context, stage Stage, req ImageRequest, img *ImageData, d time.Duration, err error)
}
