package core

import (
	"fmt"
	"sync"

	apperrors "github.com/Skryldev/image-loader/errors"
)

// ── Registry ──────────────────────────────────────────────────────────────────

// FetcherRegistry is an ordered, thread-safe list of fetcher factories.  The
// first factory that accepts a request wins.
type FetcherRegistry struct {
	mu        sync.RWMutex
	factories []FetcherFactory
}

// NewFetcherRegistry returns a registry holding factories in the given order.
func NewFetcherRegistry(factories ...FetcherFactory) *FetcherRegistry {
	r := &FetcherRegistry{}
	for _, f := range factories {
		r.Register(f)
	}
	return r
}

// Register appends f; it is tried after every factory registered before it.
func (r *FetcherRegistry) Register(f FetcherFactory) {
	if f == nil {
		return
	}
	r.mu.Lock()
	r.factories = append(r.factories, f)
	r.mu.Unlock()
}

// Prepend inserts f ahead of every registered factory.
func (r *FetcherRegistry) Prepend(f FetcherFactory) {
	if f == nil {
		return
	}
	r.mu.Lock()
	r.factories = append([]FetcherFactory{f}, r.factories...)
	r.mu.Unlock()
}

// Len returns the number of registered factories.
func (r *FetcherRegistry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.factories)
}

// Resolve returns the fetcher of the first factory that accepts req, or an
// unsupported_scheme error when none does.
func (r *FetcherRegistry) Resolve(req ImageRequest) (Fetcher, error) {
	r.mu.RLock()
	factories := make([]FetcherFactory, len(r.factories))
	copy(factories, r.factories)
	r.mu.RUnlock()

	for _, f := range factories {
		if fetcher, ok := f.Create(req); ok && fetcher != nil {
			return fetcher, nil
		}
	}
	return nil, apperrors.New(apperrors.CategoryUnsupportedScheme, "fetcher.resolve",
		fmt.Errorf("%w: %q", apperrors.ErrUnsupportedScheme, req.Scheme()))
}
