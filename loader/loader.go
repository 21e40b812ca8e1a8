// Package loader is the orchestration core: it runs requests through the
// pipeline on a bounded worker pool and delivers each outcome exactly once
// through a delivery executor.
package loader

import (
	"context"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Skryldev/image-loader/cache"
	"github.com/Skryldev/image-loader/core"
	apperrors "github.com/Skryldev/image-loader/errors"
	"github.com/Skryldev/image-loader/pipeline"
)

// ImageCache holds decoded images by key.  cache.Memory implements it.
type ImageCache interface {
	Get(key string) (*core.ImageData, bool)
	Add(key string, img *core.ImageData)
}

// Options configures a Loader.  Zero values select defaults.
type Options struct {
	Workers    int           // default runtime.NumCPU()
	QueueSize  int           // default 256
	JobTimeout time.Duration // per request; 0 = none

	// Delivery receives terminal callbacks.  When nil the loader owns a
	// SerialExecutor and closes it in Stop.
	Delivery Executor

	// Cache short-circuits requests whose result or untransformed source is
	// already decoded.  nil disables caching.
	Cache ImageCache
	// Coalesce shares one pipeline run between concurrent requests with the
	// same cache key.
	Coalesce bool

	Logger  core.Logger
	Metrics core.MetricsCollector
}

// Loader is safe for concurrent use.
type Loader struct {
	registry *core.FetcherRegistry
	pipeline *pipeline.Pipeline
	opts     Options

	delivery      Executor
	ownedDelivery *SerialExecutor
	coalescer     *cache.Coalescer

	baseCtx    context.Context
	cancelBase context.CancelFunc

	// Worker pool.
	jobQueue  chan *job
	wg        sync.WaitGroup
	startOnce sync.Once
	mu        sync.RWMutex // guards stopped and sends on jobQueue
	stopped   bool
	stopping  atomic.Bool

	inflightMu sync.Mutex
	inflight   map[string]*Handle

	// callbacks counts callbacks running on the owned executor.
	callbacks atomic.Int32

	deliveredCount int64
	failedCount    int64
	suppressed     int64
}

type job struct {
	handle  *Handle
	cb      core.Callback
	fetcher core.Fetcher
	direct  bool // deliver on the worker instead of the executor
}

// New creates a Loader.  Call Start before results are expected and Stop
// when done.
func New(registry *core.FetcherRegistry, p *pipeline.Pipeline, opts Options) *Loader {
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 256
	}
	if opts.Logger == nil {
		opts.Logger = core.NopLogger{}
	}
	l := &Loader{
		registry: registry,
		pipeline: p,
		opts:     opts,
		delivery: opts.Delivery,
		jobQueue: make(chan *job, opts.QueueSize),
		inflight: make(map[string]*Handle),
	}
	if l.delivery == nil {
		l.ownedDelivery = NewSerialExecutor()
		l.delivery = l.ownedDelivery
	}
	if opts.Coalesce {
		l.coalescer = cache.NewCoalescer()
	}
	l.baseCtx, l.cancelBase = context.WithCancel(context.Background())
	return l
}

// Start launches the worker pool.  It is idempotent.
func (l *Loader) Start() {
	l.startOnce.Do(func() {
		for i := 0; i < l.opts.Workers; i++ {
			l.wg.Add(1)
			go l.worker()
		}
	})
}

// Stop rejects new requests, fails queued ones with ErrStopped, waits for
// running ones and then drains the owned delivery executor.
//
// Called from a callback running on the owned executor, Stop does not wait
// for the remaining deliveries; they run after that callback returns.
func (l *Loader) Stop() {
	l.mu.Lock()
	if l.stopped {
		l.mu.Unlock()
		return
	}
	l.stopped = true
	l.stopping.Store(true)
	close(l.jobQueue)
	l.mu.Unlock()

	l.Start() // workers drain the closed queue even if never started
	l.wg.Wait()
	l.cancelBase()
	if l.ownedDelivery != nil {
		if l.callbacks.Load() > 0 {
			l.ownedDelivery.CloseAsync()
			return
		}
		l.ownedDelivery.Close()
	}
}

// Enqueue schedules req and returns immediately.  cb receives exactly one
// of OnResponse or OnFailure on the delivery executor, unless the handle is
// canceled first.  Requests no fetcher accepts fail without reaching a
// worker.
func (l *Loader) Enqueue(req core.ImageRequest, cb core.Callback) *Handle {
	return l.enqueue(req, cb, false)
}

// EnqueueAll enqueues every request with the same callback.
func (l *Loader) EnqueueAll(reqs []core.ImageRequest, cb core.Callback) []*Handle {
	handles := make([]*Handle, len(reqs))
	for i, req := range reqs {
		handles[i] = l.Enqueue(req, cb)
	}
	return handles
}

// Execute loads req on the worker pool and waits for the outcome.  The
// result bypasses the delivery executor, so Execute may be called from a
// delivery callback.  Canceling ctx cancels the request.
func (l *Loader) Execute(ctx context.Context, req core.ImageRequest) (*core.ImageData, error) {
	type outcome struct {
		img *core.ImageData
		err error
	}
	ch := make(chan outcome, 1)
	h := l.enqueue(req, core.CallbackFuncs{
		Response: func(_ core.ImageRequest, img *core.ImageData) { ch <- outcome{img: img} },
		Failure:  func(_ core.ImageRequest, err error) { ch <- outcome{err: err} },
	}, true)

	select {
	case o := <-ch:
		return o.img, o.err
	case <-ctx.Done():
		h.Cancel()
		return nil, apperrors.New(apperrors.CategoryPipeline, "loader.execute", ctx.Err())
	}
}

// InFlight returns the number of requests not yet delivered.
func (l *Loader) InFlight() int {
	l.inflightMu.Lock()
	defer l.inflightMu.Unlock()
	return len(l.inflight)
}

// Lookup returns the handle of an in-flight request by ID.
func (l *Loader) Lookup(id string) (*Handle, bool) {
	l.inflightMu.Lock()
	defer l.inflightMu.Unlock()
	h, ok := l.inflight[id]
	return h, ok
}

// Counters returns the number of delivered successes, delivered failures
// and suppressed deliveries.
func (l *Loader) Counters() (delivered, failed, suppressed int64) {
	return atomic.LoadInt64(&l.deliveredCount), atomic.LoadInt64(&l.failedCount), atomic.LoadInt64(&l.suppressed)
}

func (l *Loader) enqueue(req core.ImageRequest, cb core.Callback, direct bool) *Handle {
	if cb == nil {
		cb = core.CallbackFuncs{}
	}
	h := newHandle(l.baseCtx, req)
	j := &job{handle: h, cb: cb, direct: direct}

	l.inflightMu.Lock()
	l.inflight[h.id] = h
	l.inflightMu.Unlock()

	if req.IsZero() {
		l.deliver(j, nil, apperrors.New(apperrors.CategoryInvalidArgument, "loader.enqueue",
			fmt.Errorf("%w: request was not built", apperrors.ErrInvalidArgument)))
		return h
	}
	l.opts.Logger.Debug("loader.enqueue", append(req.Fields(), "id", h.id)...)

	if l.opts.Cache != nil {
		if img, ok := l.opts.Cache.Get(req.CacheKey()); ok {
			l.recordCacheHit(true)
			l.opts.Logger.Debug("loader.cache.hit", "id", h.id, "cache_key", req.CacheKey())
			l.deliver(j, img, nil)
			return h
		}
	}

	fetcher, err := l.registry.Resolve(req)
	if err != nil {
		l.deliver(j, nil, err)
		return h
	}
	j.fetcher = fetcher

	l.mu.RLock()
	if l.stopped {
		l.mu.RUnlock()
		l.deliver(j, nil, apperrors.New(apperrors.CategoryPipeline, "loader.enqueue", apperrors.ErrStopped))
		return h
	}
	select {
	case l.jobQueue <- j:
		l.mu.RUnlock()
	default:
		l.mu.RUnlock()
		l.opts.Logger.Warn("loader.queue.full", "id", h.id, "queue_size", l.opts.QueueSize)
		l.deliver(j, nil, apperrors.New(apperrors.CategoryPipeline, "loader.enqueue", apperrors.ErrQueueFull))
	}
	return h
}

// ── worker pool internals ──────────────────────────────────────────────────────

func (l *Loader) worker() {
	defer l.wg.Done()
	for j := range l.jobQueue {
		if l.stopping.Load() {
			l.deliver(j, nil, apperrors.New(apperrors.CategoryPipeline, "loader.worker", apperrors.ErrStopped))
			continue
		}
		l.processJob(j)
	}
}

func (l *Loader) processJob(j *job) {
	h := j.handle
	if h.IsCanceled() {
		l.deliver(j, nil, apperrors.New(apperrors.CategoryPipeline, "loader.worker", apperrors.ErrCanceled))
		return
	}

	ctx := h.ctx
	if l.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, l.opts.JobTimeout)
		defer cancel()
	}

	img, err := l.safeLoad(ctx, j)
	l.deliver(j, img, err)
}

// safeLoad keeps a panic outside the pipeline stages, such as in a cache
// implementation, from killing the worker.
func (l *Loader) safeLoad(ctx context.Context, j *job) (img *core.ImageData, err error) {
	defer func() {
		if r := recover(); r != nil {
			l.opts.Logger.Error("loader.worker.panic", "id", j.handle.id, "panic", fmt.Sprint(r))
			img, err = nil, apperrors.New(apperrors.CategoryPipeline, "loader.worker", fmt.Errorf("panic: %v", r))
		}
	}()
	return l.load(ctx, j)
}

// load runs the pipeline for j, consulting the cache and coalescing
// identical requests when enabled.
func (l *Loader) load(ctx context.Context, j *job) (*core.ImageData, error) {
	req := j.handle.req
	gate := pipeline.Gate(j.handle.enter)

	if l.opts.Cache != nil {
		if img, ok := l.opts.Cache.Get(req.CacheKey()); ok {
			l.recordCacheHit(true)
			return img, nil
		}
		if req.Transformation() != nil {
			if src, ok := l.opts.Cache.Get(req.SourceKey()); ok {
				l.recordCacheHit(true)
				out, err := l.pipeline.Transform(ctx, req, src, gate)
				if err == nil {
					l.opts.Cache.Add(req.CacheKey(), out)
				}
				return out, err
			}
		}
		l.recordCacheHit(false)
	}

	if l.coalescer == nil {
		return l.run(ctx, req, j.fetcher, gate)
	}

	// A shared run must not fail because one of its waiters canceled, so it
	// runs under the loader's context and its gate never refuses.
	shareCtx := l.baseCtx
	if l.opts.JobTimeout > 0 {
		var cancel context.CancelFunc
		shareCtx, cancel = context.WithTimeout(shareCtx, l.opts.JobTimeout)
		defer cancel()
	}
	img, shared, err := l.coalescer.Do(req.CacheKey(), func() (*core.ImageData, error) {
		// An earlier run for this key may have finished between the cache
		// check above and this call.
		if l.opts.Cache != nil {
			if img, ok := l.opts.Cache.Get(req.CacheKey()); ok {
				return img, nil
			}
		}
		return l.run(shareCtx, req, j.fetcher, func(s core.State) bool {
			j.handle.enter(s)
			return true
		})
	})
	if shared {
		l.opts.Logger.Debug("loader.coalesced", "id", j.handle.id, "cache_key", req.CacheKey())
	}
	return img, err
}

func (l *Loader) run(ctx context.Context, req core.ImageRequest, f core.Fetcher, gate pipeline.Gate) (*core.ImageData, error) {
	src, err := l.pipeline.Source(ctx, req, f, gate)
	if err != nil {
		return nil, err
	}
	if l.opts.Cache != nil {
		l.opts.Cache.Add(req.SourceKey(), src)
	}
	out, err := l.pipeline.Transform(ctx, req, src, gate)
	if err != nil {
		return nil, err
	}
	if l.opts.Cache != nil && req.Transformation() != nil {
		l.opts.Cache.Add(req.CacheKey(), out)
	}
	return out, nil
}

// deliver hands the outcome to the callback exactly once.  A canceled
// handle is finished without invoking the callback.
func (l *Loader) deliver(j *job, img *core.ImageData, err error) {
	h := j.handle
	h.state.Store(int32(core.StateDelivering))

	task := func() {
		defer l.finish(h)
		if h.IsCanceled() {
			atomic.AddInt64(&l.suppressed, 1)
			l.opts.Logger.Debug("loader.delivery.suppressed", "id", h.id, "uri", h.req.URIString())
			return
		}
		defer func() {
			if r := recover(); r != nil {
				l.opts.Logger.Error("loader.callback.panic", "id", h.id, "panic", fmt.Sprint(r))
			}
		}()
		if err != nil {
			atomic.AddInt64(&l.failedCount, 1)
			l.opts.Logger.Warn("loader.request.failed", "id", h.id, "uri", h.req.URIString(),
				"category", string(apperrors.CategoryOf(err)), "error", err.Error())
			j.cb.OnFailure(h.req, err)
			return
		}
		atomic.AddInt64(&l.deliveredCount, 1)
		j.cb.OnResponse(h.req, img)
	}

	if j.direct {
		task()
		return
	}
	if l.ownedDelivery != nil {
		l.delivery.Post(func() {
			l.callbacks.Add(1)
			defer l.callbacks.Add(-1)
			task()
		})
		return
	}
	l.delivery.Post(task)
}

func (l *Loader) finish(h *Handle) {
	l.inflightMu.Lock()
	delete(l.inflight, h.id)
	l.inflightMu.Unlock()
	h.finish()
}

func (l *Loader) recordCacheHit(hit bool) {
	if l.opts.Metrics != nil {
		l.opts.Metrics.RecordCacheHit(hit)
	}
}
