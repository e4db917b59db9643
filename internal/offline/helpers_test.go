package offline_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/poolkeeper/internal/offline"
	"github.com/GriffinCanCode/poolkeeper/internal/offline/cachestore"
)

const origin = "http://pool.test"

var errRefused = errors.New("dial tcp: connection refused")

// fakeFetcher answers from a table keyed by request URI. Unknown URLs fail
// like an unreachable network.
type fakeFetcher struct {
	mu        sync.Mutex
	responses map[string]*offline.Response
	calls     []string
	block     bool
}

func newFakeFetcher() *fakeFetcher {
	return &fakeFetcher{responses: make(map[string]*offline.Response)}
}

func (f *fakeFetcher) serve(target string, status int, body string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.responses[target] = &offline.Response{
		URL:    origin + target,
		Status: status,
		Header: http.Header{"Content-Type": {"text/plain"}},
		Body:   []byte(body),
	}
}

func (f *fakeFetcher) drop(target string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.responses, target)
}

func (f *fakeFetcher) Fetch(ctx context.Context, req *http.Request) (*offline.Response, error) {
	f.mu.Lock()
	f.calls = append(f.calls, offline.CacheKey(req))
	resp, ok := f.responses[offline.CacheKey(req)]
	block := f.block
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if !ok {
		return nil, errRefused
	}
	return resp.Clone(), nil
}

func (f *fakeFetcher) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type recordingLifecycle struct {
	skipped bool
	claimed bool
}

func (l *recordingLifecycle) SkipWaiting() { l.skipped = true }

func (l *recordingLifecycle) Claim(context.Context) error {
	l.claimed = true
	return nil
}

// failingOpen lets reads through but refuses to open buckets.
type failingOpen struct {
	*cachestore.Memory
}

func (failingOpen) Open(context.Context, string) (offline.Cache, error) {
	return nil, errors.New("quota exceeded")
}

func newScope(t *testing.T, bypass ...string) *offline.Scope {
	t.Helper()
	scope, err := offline.NewScope(origin, "/serviceWorker.js", bypass)
	require.NoError(t, err)
	return scope
}

func request(method, target string) *http.Request {
	req := httptest.NewRequest(method, target, nil)
	if req.Host == "example.com" {
		req.Host = "pool.test"
	}
	return req
}

func seed(t *testing.T, caches offline.CacheStorage, bucket, target, body string) {
	t.Helper()
	ctx := context.Background()
	c, err := caches.Open(ctx, bucket)
	require.NoError(t, err)
	require.NoError(t, c.Put(ctx, request(http.MethodGet, target), &offline.Response{
		URL:    origin + target,
		Status: http.StatusOK,
		Header: http.Header{},
		Body:   []byte(body),
	}))
}
