package loader

import (
	"sync"
)

// Executor runs posted tasks on the context callbacks are delivered on.
// Post must not block and must not run the task on the caller's goroutine.
type Executor interface {
	Post(task func())
}

// ── Serial executor ───────────────────────────────────────────────────────────

// SerialExecutor runs tasks one at a time, in posting order, on a single
// goroutine it owns.  Its queue is unbounded so Post never blocks.
type SerialExecutor struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []func()
	closed bool
	done   chan struct{}
}

// NewSerialExecutor starts the executor goroutine.
func NewSerialExecutor() *SerialExecutor {
	e := &SerialExecutor{done: make(chan struct{})}
	e.cond = sync.NewCond(&e.mu)
	go e.loop()
	return e
}

// Post queues task.  Tasks posted after Close run on their own goroutine.
func (e *SerialExecutor) Post(task func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		go task()
		return
	}
	e.queue = append(e.queue, task)
	e.cond.Signal()
}

// Close runs the tasks already queued, then stops the goroutine.  It blocks
// until the queue is drained, so it must not be called from a task; use
// CloseAsync there.
func (e *SerialExecutor) Close() {
	e.CloseAsync()
	<-e.done
}

// CloseAsync marks the executor closed and returns at once.  Queued tasks
// still run; Done is closed once they have.
func (e *SerialExecutor) CloseAsync() {
	e.mu.Lock()
	if !e.closed {
		e.closed = true
		e.cond.Signal()
	}
	e.mu.Unlock()
}

// Done is closed when the executor goroutine has exited.
func (e *SerialExecutor) Done() <-chan struct{} { return e.done }

func (e *SerialExecutor) loop() {
	defer close(e.done)
	for {
		e.mu.Lock()
		for len(e.queue) == 0 && !e.closed {
			e.cond.Wait()
		}
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return
		}
		task := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()
		task()
	}
}

// ── Manual executor ───────────────────────────────────────────────────────────

// ManualExecutor queues tasks until the owner runs them with RunPending.
// It lets a caller drive delivery from its own goroutine, e.g. an event
// loop or a deterministic test.
type ManualExecutor struct {
	mu    sync.Mutex
	queue []func()
	ready chan struct{}
}

// NewManualExecutor returns an empty ManualExecutor.
func NewManualExecutor() *ManualExecutor {
	return &ManualExecutor{ready: make(chan struct{}, 1)}
}

func (e *ManualExecutor) Post(task func()) {
	e.mu.Lock()
	e.queue = append(e.queue, task)
	e.mu.Unlock()
	select {
	case e.ready <- struct{}{}:
	default:
	}
}

// Ready is signalled after a task has been posted.
func (e *ManualExecutor) Ready() <-chan struct{} { return e.ready }

// Pending returns the number of queued tasks.
func (e *ManualExecutor) Pending() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.queue)
}

// RunPending runs every queued task on the calling goroutine, including
// tasks posted while running, and returns how many ran.
func (e *ManualExecutor) RunPending() int {
	n := 0
	for {
		e.mu.Lock()
		if len(e.queue) == 0 {
			e.mu.Unlock()
			return n
		}
		task := e.queue[0]
		e.queue[0] = nil
		e.queue = e.queue[1:]
		e.mu.Unlock()
		task()
		n++
	}
}
