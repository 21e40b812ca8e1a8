package imageloader

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"github.com/Skryldev/image-loader/adapters/decoder"
	"github.com/Skryldev/image-loader/adapters/fetcher"
	"github.com/Skryldev/image-loader/adapters/storage"
	"github.com/Skryldev/image-loader/cache"
	"github.com/Skryldev/image-loader/config"
	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
	"github.com/Skryldev/image-loader/hooks"
	"github.com/Skryldev/image-loader/httpcall"
	"github.com/Skryldev/image-loader/loader"
	"github.com/Skryldev/image-loader/pipeline"
	"github.com/Skryldev/image-loader/transform"
)

// Re-export Format constants for convenience.
const (
	JPEG = core.FormatJPEG
	PNG  = core.FormatPNG
	GIF  = core.FormatGIF
	WebP = core.FormatWebP
)

// DefaultConfig returns a sensible production configuration.
func DefaultConfig() config.Config { return config.Default() }

// Option customises New beyond what config.Config expresses.
type Option func(*options)

type options struct {
	logger    core.Logger
	delivery  loader.Executor
	transport fetcher.Transport
	decoders  core.DecoderFactory
	store     core.StorageAdapter
	hooks     []core.Hook
	fetchers  []core.FetcherFactory
}

// WithLogger sets the logger used by the loader and the logging hook.
func WithLogger(l core.Logger) Option { return func(o *options) { o.logger = l } }

// WithDelivery sets the executor callbacks are delivered on.
func WithDelivery(e loader.Executor) Option { return func(o *options) { o.delivery = e } }

// WithTransport replaces the HTTP transport used for http/https URIs.
func WithTransport(t fetcher.Transport) Option { return func(o *options) { o.transport = t } }

// WithDecoders replaces the decoder selected by Config.Decoder.
func WithDecoders(d core.DecoderFactory) Option { return func(o *options) { o.decoders = d } }

// WithStorage replaces the store selected by Config.Storage.
func WithStorage(s core.StorageAdapter) Option { return func(o *options) { o.store = s } }

// WithHook registers a pipeline observer.
func WithHook(h core.Hook) Option { return func(o *options) { o.hooks = append(o.hooks, h) } }

// WithFetcher registers a fetcher factory ahead of the built-in ones.
func WithFetcher(f core.FetcherFactory) Option {
	return func(o *options) { o.fetchers = append(o.fetchers, f) }
}

// Loader is the primary entry point.
type Loader struct {
	inner    *loader.Loader
	registry *core.FetcherRegistry
	metrics  *hooks.InMemoryMetrics
	memory   *cache.Memory
	closers  []io.Closer
}

// New creates a fully wired Loader: the http/https fetcher, the file
// fetcher when cfg.File enables it, the configured decoder, the memory
// cache and the fetched-bytes store.
func New(cfg config.Config, opts ...Option) (*Loader, error) {
	if err := config.Validate(cfg); err != nil {
		return nil, err
	}
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = core.NopLogger{}
	}

	l := &Loader{metrics: hooks.NewInMemoryMetrics()}

	decoders := o.decoders
	if decoders == nil {
		if cfg.Decoder != config.DecoderStd {
			return nil, apperrors.New(apperrors.CategoryConfig, "imageloader.new",
				fmt.Errorf("decoder %q must be supplied with WithDecoders", cfg.Decoder))
		}
		decoders = decoder.NewFactory(decoder.Options{
			MaxBytes:  cfg.MaxImageBytes,
			MaxPixels: cfg.MaxPixels,
			ChunkSize: cfg.ChunkSize,
		})
	}

	store := o.store
	if store == nil {
		var err error
		if store, err = l.openStore(cfg.Storage); err != nil {
			return nil, err
		}
	}

	transport := o.transport
	if transport == nil {
		transport = fetcher.ClientTransport{Client: httpcall.NewClient(httpcall.WithUserAgent(cfg.HTTP.UserAgent))}
	}
	var remote core.FetcherFactory = fetcher.NewHTTPFactory(transport, fetcher.HTTPOptions{
		ConnectTimeout: cfg.HTTP.ConnectTimeout,
		ReadTimeout:    cfg.HTTP.ReadTimeout,
	})
	if store != nil {
		remote = fetcher.NewCachedFactory(remote, store, o.logger, cfg.MaxImageBytes)
	}
	l.registry = core.NewFetcherRegistry(o.fetchers...)
	l.registry.Register(remote)
	if cfg.File.Enabled {
		l.registry.Register(&fetcher.FileFactory{Root: cfg.File.Root})
	}

	p := pipeline.New(decoders).
		AddHook(hooks.NewLoggingHook(o.logger)).
		AddHook(hooks.NewMetricsHook(l.metrics))
	for _, h := range o.hooks {
		p.AddHook(h)
	}

	lopts := loader.Options{
		Workers:    cfg.WorkerCount,
		QueueSize:  cfg.QueueSize,
		JobTimeout: cfg.JobTimeout,
		Delivery:   o.delivery,
		Coalesce:   cfg.Cache.Coalesce,
		Logger:     o.logger,
		Metrics:    l.metrics,
	}
	if cfg.Cache.MemoryBytes > 0 {
		mem, err := cache.NewMemory(cfg.Cache.MemoryBytes)
		if err != nil {
			l.close()
			return nil, apperrors.New(apperrors.CategoryConfig, "imageloader.new", err)
		}
		l.memory = mem
		lopts.Cache = mem
	}
	l.inner = loader.New(l.registry, p, lopts)
	return l, nil
}

func (l *Loader) openStore(cfg config.StorageConfig) (core.StorageAdapter, error) {
	switch cfg.Backend {
	case config.StorageLocal:
		perm, err := cfg.Local.FileMode()
		if err != nil {
			return nil, apperrors.New(apperrors.CategoryConfig, "imageloader.storage", err)
		}
		return storage.NewLocal(cfg.Local.RootDir, perm)
	case config.StorageRedis:
		r, err := storage.DialRedis(context.Background(), &redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, storage.RedisConfig{Prefix: cfg.Redis.Prefix, TTL: cfg.Redis.TTL})
		if err != nil {
			return nil, err
		}
		l.closers = append(l.closers, r)
		return r, nil
	}
	return nil, nil
}

// Start starts the background worker pool.
func (l *Loader) Start() { l.inner.Start() }

// Stop drains the worker pool and releases the storage connection.
func (l *Loader) Stop() {
	l.inner.Stop()
	l.close()
}

func (l *Loader) close() {
	for _, c := range l.closers {
		_ = c.Close()
	}
	l.closers = nil
}

// Enqueue schedules req; cb receives exactly one outcome unless the
// returned handle is canceled first.
func (l *Loader) Enqueue(req core.ImageRequest, cb core.Callback) *loader.Handle {
	return l.inner.Enqueue(req, cb)
}

// EnqueueAll schedules every request with the same callback.
func (l *Loader) EnqueueAll(reqs []core.ImageRequest, cb core.Callback) []*loader.Handle {
	return l.inner.EnqueueAll(reqs, cb)
}

// Execute loads req and waits for the result or for ctx to end.
func (l *Loader) Execute(ctx context.Context, req core.ImageRequest) (*core.ImageData, error) {
	return l.inner.Execute(ctx, req)
}

// Load builds a request for uri and executes it.
func (l *Loader) Load(ctx context.Context, uri string, t core.Transformation) (*core.ImageData, error) {
	req, err := core.NewRequest(uri).Transformation(t).Build()
	if err != nil {
		return nil, err
	}
	return l.Execute(ctx, req)
}

// RegisterFetcher adds a fetcher factory ahead of the built-in ones.
func (l *Loader) RegisterFetcher(f core.FetcherFactory) { l.registry.Prepend(f) }

// Metrics returns a copy of the pipeline counters.
func (l *Loader) Metrics() hooks.MetricsSnapshot { return l.metrics.Snapshot() }

// Stats holds lightweight loader statistics.
type Stats struct {
	InFlight     int   `json:"in_flight"`
	Delivered    int64 `json:"delivered"`
	Failed       int64 `json:"failed"`
	Suppressed   int64 `json:"suppressed"`
	CacheEntries int   `json:"cache_entries"`
	CacheBytes   int64 `json:"cache_bytes"`
}

// Stats returns lightweight loader statistics.
func (l *Loader) Stats() Stats {
	s := Stats{InFlight: l.inner.InFlight()}
	s.Delivered, s.Failed, s.Suppressed = l.inner.Counters()
	if l.memory != nil {
		s.CacheEntries = l.memory.Len()
		s.CacheBytes = l.memory.Bytes()
	}
	return s
}

// NewLogger returns the logger selected by cfg: zerolog console output or
// slog JSON.
func NewLogger(cfg config.LogConfig, w io.Writer) core.Logger {
	if cfg.Format == "json" {
		var level slog.Level
		if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
			level = slog.LevelInfo
		}
		return hooks.NewSlogLogger(slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: level})))
	}
	return hooks.NewConsoleLogger(w, cfg.Level)
}

// ── Request and transformation constructors ───────────────────────────────────

// NewRequest starts building a request for uri.
func NewRequest(uri string) *core.RequestBuilder { return core.NewRequest(uri) }

// Blend returns the additive self-blend transformation.
func Blend() core.Transformation { return transform.Blend{} }

// Trim returns the transformation cropping fully transparent borders.
func Trim() core.Transformation { return transform.Trim{} }

// Blur returns a downsample, blur and upscale transformation.
func Blur(radius, sampling int) (core.Transformation, error) {
	return transform.NewBlur(radius, sampling)
}

// Scale returns a transformation resizing to width x height.
func Scale(width, height int) (core.Transformation, error) { return transform.NewScale(width, height) }

// Chain applies ts in order.
func Chain(ts ...core.Transformation) core.Transformation { return transform.NewChain(ts...) }

// ParseTransformation parses a textual spec such as "trim,blur:8:2".
func ParseTransformation(s string) (core.Transformation, error) { return transform.Parse(s) }
