package cache

import (
	"golang.org/x/sync/singleflight"

	"github.com/Skryldev/image-loader/core"
)

// Coalescer runs at most one load per key at a time.  Callers arriving while
// a load for their key is in flight wait for it and share its result.
type Coalescer struct {
	group singleflight.Group
}

// NewCoalescer returns an empty Coalescer.
func NewCoalescer() *Coalescer { return &Coalescer{} }

// Do runs fn for key unless a run is already in flight, in which case it
// waits for that run.  shared reports whether the result went to more than
// one caller.
func (c *Coalescer) Do(key string, fn func() (*core.ImageData, error)) (img *core.ImageData, shared bool, err error) {
	v, err, shared := c.group.Do(key, func() (any, error) {
		return fn()
	})
	if err != nil {
		return nil, shared, err
	}
	return v.(*core.ImageData), shared, nil
}

// Forget makes the next Do for key start a new run even if one is in flight.
func (c *Coalescer) Forget(key string) {
	c.group.Forget(key)
}
