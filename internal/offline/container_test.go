package offline_test

import (
	"context"
	"net/http"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/poolkeeper/internal/offline"
	"github.com/GriffinCanCode/poolkeeper/internal/offline/cachestore"
)

const script = "/serviceWorker.js"

type containerFixture struct {
	container *offline.Container
	caches    *cachestore.Memory
	fetcher   *fakeFetcher
	bucket    string
}

func newContainerFixture(t *testing.T) *containerFixture {
	t.Helper()
	f := &containerFixture{
		container: offline.NewContainer(nil, nil),
		caches:    cachestore.NewMemory(),
		fetcher:   newFakeFetcher(),
		bucket:    bucket,
	}
	for _, target := range precache {
		f.fetcher.serve(target, http.StatusOK, target)
	}
	scope := newScope(t)
	f.container.Define(script, func() (*offline.Worker, error) {
		return offline.NewWorker(offline.Config{
			Bucket:   f.bucket,
			Precache: precache,
			Scope:    scope,
		}, f.caches, f.fetcher), nil
	})
	return f
}

func TestRegisterUnknownScript(t *testing.T) {
	f := newContainerFixture(t)

	err := f.container.Register(context.Background(), "/other.js")
	assert.ErrorIs(t, err, offline.ErrUnknownScript)
	assert.Nil(t, f.container.Active("/other.js"))
}

func TestRegisterActivatesAndClaims(t *testing.T) {
	f := newContainerFixture(t)

	require.NoError(t, f.container.Register(context.Background(), script))

	w := f.container.Active(script)
	require.NotNil(t, w)
	assert.Equal(t, offline.StateActivated, w.State())

	// Claimed clients are controlled for subresources too.
	assert.Same(t, w, f.container.Controller(request(http.MethodGet, "/icons/favicon-16x16.png")))

	has, err := f.caches.Has(context.Background(), bucket)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestRegisterIsIdempotent(t *testing.T) {
	f := newContainerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.container.Register(ctx, script))
	first := f.container.Active(script)
	calls := len(f.fetcher.Calls())

	require.NoError(t, f.container.Register(ctx, script))
	assert.Same(t, first, f.container.Active(script))
	assert.Len(t, f.fetcher.Calls(), calls)
}

func TestRegisterInstallFailure(t *testing.T) {
	f := newContainerFixture(t)
	f.fetcher.drop("/manifest.json")

	err := f.container.Register(context.Background(), script)
	require.Error(t, err)
	assert.Nil(t, f.container.Active(script))
	assert.Nil(t, f.container.Controller(request(http.MethodGet, "/")))
}

func TestUpdateReplacesActiveWorker(t *testing.T) {
	f := newContainerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.container.Register(ctx, script))
	previous := f.container.Active(script)

	f.bucket = "precache-v0.8.17"
	require.NoError(t, f.container.Update(ctx, script))

	current := f.container.Active(script)
	require.NotNil(t, current)
	assert.NotEqual(t, previous.ID(), current.ID())
	assert.Equal(t, offline.StateRedundant, previous.State())
	assert.Equal(t, "precache-v0.8.17", current.Bucket())

	names, err := f.caches.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"precache-v0.8.17"}, names)
}

// gatedCaches holds Open for one bucket until released, once armed.
type gatedCaches struct {
	*cachestore.Memory
	name    string
	armed   atomic.Bool
	entered chan struct{}
	release chan struct{}
}

func (g *gatedCaches) Open(ctx context.Context, name string) (offline.Cache, error) {
	if name == g.name && g.armed.Load() {
		g.entered <- struct{}{}
		<-g.release
	}
	return g.Memory.Open(ctx, name)
}

func TestUpdateDrainsStoresBeforeDeletingBuckets(t *testing.T) {
	ctx := context.Background()
	caches := &gatedCaches{
		Memory:  cachestore.NewMemory(),
		name:    "precache-old",
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	fetcher := newFakeFetcher()
	for _, target := range precache {
		fetcher.serve(target, http.StatusOK, target)
	}
	fetcher.serve("/pools", http.StatusOK, "fresh")
	fetcher.serve("/late", http.StatusOK, "late")

	current := "precache-old"
	scope := newScope(t)
	container := offline.NewContainer(nil, nil)
	container.Define(script, func() (*offline.Worker, error) {
		return offline.NewWorker(offline.Config{Bucket: current, Precache: precache, Scope: scope}, caches, fetcher), nil
	})
	require.NoError(t, container.Register(ctx, script))
	old := container.Active(script)

	caches.armed.Store(true)
	_, handled := old.OnFetch(ctx, request(http.MethodGet, "/pools"))
	require.True(t, handled)
	<-caches.entered
	caches.armed.Store(false)

	current = "precache-new"
	done := make(chan error, 1)
	go func() { done <- container.Update(ctx, script) }()

	select {
	case err := <-done:
		t.Fatalf("update finished while a store was pending: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	close(caches.release)
	require.NoError(t, <-done)

	old.Wait()
	names, err := caches.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"precache-new"}, names)
	assert.Equal(t, offline.StateRedundant, old.State())

	// A retired worker still answers but no longer writes.
	resp, handled := old.OnFetch(ctx, request(http.MethodGet, "/late"))
	require.True(t, handled)
	require.NotNil(t, resp)
	old.Wait()
	names, err = caches.Keys(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"precache-new"}, names)
}

func TestUpdateFailureKeepsActiveWorker(t *testing.T) {
	f := newContainerFixture(t)
	ctx := context.Background()

	require.NoError(t, f.container.Register(ctx, script))
	previous := f.container.Active(script)

	f.fetcher.drop("/registerServiceWorker.js")
	require.Error(t, f.container.Update(ctx, script))

	assert.Same(t, previous, f.container.Active(script))
	assert.Equal(t, offline.StateActivated, previous.State())
}

func TestControllerScope(t *testing.T) {
	f := newContainerFixture(t)
	assert.Nil(t, f.container.Controller(request(http.MethodGet, "/")))

	require.NoError(t, f.container.Register(context.Background(), script))
	assert.NotNil(t, f.container.Controller(request(http.MethodGet, "/pools/42")))
}

func TestCloseWaitsAndRejects(t *testing.T) {
	f := newContainerFixture(t)
	ctx := context.Background()
	require.NoError(t, f.container.Register(ctx, script))

	f.fetcher.serve("/pools", http.StatusOK, "fresh")
	w := f.container.Controller(request(http.MethodGet, "/pools"))
	require.NotNil(t, w)
	_, handled := w.OnFetch(ctx, request(http.MethodGet, "/pools"))
	require.True(t, handled)

	require.NoError(t, f.container.Close())

	// The background store finished before Close returned.
	_, ok, err := f.caches.Match(ctx, request(http.MethodGet, "/pools"))
	require.NoError(t, err)
	assert.True(t, ok)

	assert.ErrorIs(t, f.container.Update(ctx, script), offline.ErrContainerClosed)
}

func TestIsNavigation(t *testing.T) {
	tests := []struct {
		name   string
		method string
		header http.Header
		want   bool
	}{
		{name: "fetch metadata navigate", method: http.MethodGet, header: http.Header{"Sec-Fetch-Mode": {"navigate"}}, want: true},
		{name: "fetch metadata cors", method: http.MethodGet, header: http.Header{"Sec-Fetch-Mode": {"cors"}, "Accept": {"text/html"}}},
		{name: "html accept", method: http.MethodGet, header: http.Header{"Accept": {"text/html,application/xhtml+xml"}}, want: true},
		{name: "image", method: http.MethodGet, header: http.Header{"Accept": {"image/png"}}},
		{name: "post form", method: http.MethodPost, header: http.Header{"Accept": {"text/html"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := request(tt.method, "/")
			req.Header = tt.header
			assert.Equal(t, tt.want, offline.IsNavigation(req))
		})
	}
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "activated", offline.StateActivated.String())
	assert.Equal(t, "redundant", offline.StateRedundant.String())
	assert.Equal(t, "unknown", offline.State(42).String())
}
