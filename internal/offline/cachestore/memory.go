package cachestore

import (
	"context"
	"net/http"
	"slices"
	"sync"

	"github.com/GriffinCanCode/poolkeeper/internal/offline"
)

// Memory is an in-process cache registry.
type Memory struct {
	mu      sync.RWMutex
	order   []string
	buckets map[string]*memoryBucket
}

// NewMemory creates an empty registry.
func NewMemory() *Memory {
	return &Memory{buckets: make(map[string]*memoryBucket)}
}

// Open returns the named bucket, creating it if needed.
func (m *Memory) Open(ctx context.Context, name string) (offline.Cache, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	if b, ok := m.buckets[name]; ok {
		return b, nil
	}
	b := &memoryBucket{entries: make(map[string]*offline.Response)}
	m.buckets[name] = b
	m.order = append(m.order, name)
	return b, nil
}

// Has reports whether the named bucket exists.
func (m *Memory) Has(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.buckets[name]
	return ok, nil
}

// Delete removes the named bucket and reports whether it existed.
func (m *Memory) Delete(ctx context.Context, name string) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	b, ok := m.buckets[name]
	if !ok {
		return false, nil
	}
	b.detach()
	delete(m.buckets, name)
	m.order = slices.DeleteFunc(m.order, func(n string) bool { return n == name })
	return true, nil
}

// Keys lists bucket names in creation order.
func (m *Memory) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return slices.Clone(m.order), nil
}

// Match looks req up in every bucket, oldest first.
func (m *Memory) Match(ctx context.Context, req *http.Request) (*offline.Response, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, name := range m.order {
		if resp, ok := m.buckets[name].lookup(req); ok {
			return resp, true, nil
		}
	}
	return nil, false, nil
}

// Close is a no-op.
func (m *Memory) Close() error { return nil }

type memoryBucket struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]*offline.Response
	deleted bool
}

func (b *memoryBucket) Match(ctx context.Context, req *http.Request) (*offline.Response, bool, error) {
	if err := ctx.Err(); err != nil {
		return nil, false, err
	}
	resp, ok := b.lookup(req)
	return resp, ok, nil
}

func (b *memoryBucket) Put(ctx context.Context, req *http.Request, resp *offline.Response) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if !offline.Cacheable(req) {
		return offline.ErrNotCacheable
	}
	key := offline.CacheKey(req)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleted {
		return ErrBucketDeleted
	}
	if _, ok := b.entries[key]; !ok {
		b.order = append(b.order, key)
	}
	b.entries[key] = resp.Clone()
	return nil
}

func (b *memoryBucket) Keys(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.order), nil
}

func (b *memoryBucket) lookup(req *http.Request) (*offline.Response, bool) {
	if !offline.Cacheable(req) {
		return nil, false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	resp, ok := b.entries[offline.CacheKey(req)]
	if !ok {
		return nil, false
	}
	return resp.Clone(), true
}

func (b *memoryBucket) detach() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.deleted = true
	b.entries = make(map[string]*offline.Response)
	b.order = nil
}
