package loader

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"

	"github.com/Skryldev/image-loader/core"
)

// Handle tracks one enqueued request until its callback has been delivered
// or suppressed.
type Handle struct {
	id  string
	req core.ImageRequest

	state    atomic.Int32
	canceled atomic.Bool

	ctx    context.Context
	cancel context.CancelFunc

	finishOnce sync.Once
	done       chan struct{}
}

func newHandle(parent context.Context, req core.ImageRequest) *Handle {
	ctx, cancel := context.WithCancel(parent)
	return &Handle{
		id:     uuid.NewString(),
		req:    req,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan struct{}),
	}
}

// ID returns a unique identifier for this enqueue.
func (h *Handle) ID() string { return h.id }

// Request returns the request being loaded.
func (h *Handle) Request() core.ImageRequest { return h.req }

// State returns the current lifecycle state.
func (h *Handle) State() core.State { return core.State(h.state.Load()) }

// Cancel withdraws interest in the result.  The callback will not be
// invoked unless it is already running.  An in-flight network exchange is
// aborted; decode and transform work already started runs to completion
// and is discarded.
func (h *Handle) Cancel() {
	h.canceled.Store(true)
	h.cancel()
}

// IsCanceled reports whether Cancel was called.
func (h *Handle) IsCanceled() bool { return h.canceled.Load() }

// Done is closed once the request reached StateDone.
func (h *Handle) Done() <-chan struct{} { return h.done }

// enter records the state a stage is about to enter.  It reports false
// when the request was canceled and the stage must not run.
func (h *Handle) enter(s core.State) bool {
	if h.canceled.Load() {
		return false
	}
	h.state.Store(int32(s))
	return true
}

func (h *Handle) finish() {
	h.finishOnce.Do(func() {
		h.state.Store(int32(core.StateDone))
		h.cancel()
		close(h.done)
	})
}
