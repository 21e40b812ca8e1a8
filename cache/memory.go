// Package cache holds decoded images in memory and coalesces concurrent
// loads of the same key.
package cache

import (
	"image"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/Skryldev/image-loader/core"
)

// maxEntries caps the entry count independently of the byte budget.
const maxEntries = 1 << 16

// Memory is an LRU of decoded images bounded by an estimate of their pixel
// memory.  Cached images are shared between callers and must be treated as
// read-only.  Memory is safe for concurrent use.
type Memory struct {
	mu       sync.Mutex
	lru      *lru.Cache[string, *core.ImageData]
	maxBytes int64
	bytes    int64
}

// NewMemory returns a cache holding at most maxBytes of pixel data.
func NewMemory(maxBytes int64) (*Memory, error) {
	m := &Memory{maxBytes: maxBytes}
	c, err := lru.NewWithEvict[string, *core.ImageData](maxEntries, func(_ string, v *core.ImageData) {
		m.bytes -= SizeOf(v)
	})
	if err != nil {
		return nil, err
	}
	m.lru = c
	return m, nil
}

// Get returns the image cached under key and marks it recently used.
func (m *Memory) Get(key string) (*core.ImageData, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Get(key)
}

// Add caches img under key, evicting least recently used entries until the
// byte budget holds.  An image larger than the whole budget is not cached.
func (m *Memory) Add(key string, img *core.ImageData) {
	if img == nil || img.Image == nil {
		return
	}
	size := SizeOf(img)
	m.mu.Lock()
	defer m.mu.Unlock()
	if size > m.maxBytes {
		m.lru.Remove(key)
		return
	}
	m.lru.Remove(key)
	m.lru.Add(key, img)
	m.bytes += size
	for m.bytes > m.maxBytes {
		if _, _, ok := m.lru.RemoveOldest(); !ok {
			break
		}
	}
}

// Remove drops key from the cache.
func (m *Memory) Remove(key string) {
	m.mu.Lock()
	m.lru.Remove(key)
	m.mu.Unlock()
}

// Purge empties the cache.
func (m *Memory) Purge() {
	m.mu.Lock()
	m.lru.Purge()
	m.mu.Unlock()
}

// Len returns the number of cached images.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lru.Len()
}

// Bytes returns the estimated pixel memory currently held.
func (m *Memory) Bytes() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.bytes
}

// SizeOf estimates the pixel memory of img.
func SizeOf(img *core.ImageData) int64 {
	if img == nil || img.Image == nil {
		return 0
	}
	switch p := img.Image.(type) {
	case *image.RGBA:
		return int64(len(p.Pix))
	case *image.NRGBA:
		return int64(len(p.Pix))
	case *image.Gray:
		return int64(len(p.Pix))
	case *image.Paletted:
		return int64(len(p.Pix))
	case *image.YCbCr:
		return int64(len(p.Y) + len(p.Cb) + len(p.Cr))
	}
	b := img.Image.Bounds()
	return int64(b.Dx()) * int64(b.Dy()) * 4
}
