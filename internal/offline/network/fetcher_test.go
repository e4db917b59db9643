package network

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/poolkeeper/internal/infrastructure/resilience"
)

func newFetcher(t *testing.T, upstream string, breaker *resilience.Breaker) *Fetcher {
	t.Helper()
	f, err := New(Config{Upstream: upstream}, breaker, nil, monitoring.NewMetrics())
	require.NoError(t, err)
	return f
}

func TestNewRequiresAbsoluteUpstream(t *testing.T) {
	_, err := New(Config{Upstream: "localhost:3000"}, nil, nil, nil)
	assert.Error(t, err)

	_, err = New(Config{Upstream: "http://localhost:3000"}, nil, nil, nil)
	assert.NoError(t, err)
}

func TestUpstreamReturnsACopy(t *testing.T) {
	f := newFetcher(t, "http://app:3000/static", nil)

	u := f.Upstream()
	assert.Equal(t, "http://app:3000/static", u.String())

	u.Host = "elsewhere:80"
	assert.Equal(t, "app:3000", f.Upstream().Host)
}

func TestTarget(t *testing.T) {
	tests := []struct {
		upstream string
		target   string
		want     string
	}{
		{upstream: "http://app:3000", target: "/pools?sort=name", want: "http://app:3000/pools?sort=name"},
		{upstream: "http://app:3000/", target: "/manifest.json", want: "http://app:3000/manifest.json"},
		{upstream: "http://app:3000/static", target: "/favicon.ico", want: "http://app:3000/static/favicon.ico"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			f := newFetcher(t, tt.upstream, nil)
			assert.Equal(t, tt.want, f.Target(httptest.NewRequest(http.MethodGet, tt.target, nil)))
		})
	}
}

func TestFetchForwardsRequest(t *testing.T) {
	var (
		mu      sync.Mutex
		got     *http.Request
		gotBody string
	)
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		got = r.Clone(context.Background())
		gotBody = string(body)
		mu.Unlock()
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Pool", "alpha")
		w.WriteHeader(http.StatusCreated)
		_, _ = w.Write([]byte(`{"id":1}`))
	}))
	defer upstream.Close()

	f := newFetcher(t, upstream.URL, nil)
	req := httptest.NewRequest(http.MethodPost, "http://pool.test/pools?x=1", strings.NewReader(`{"name":"alpha"}`))
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Connection", "close")

	resp, err := f.Fetch(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, http.StatusCreated, resp.Status)
	assert.Equal(t, `{"id":1}`, string(resp.Body))
	assert.Equal(t, "alpha", resp.Header.Get("X-Pool"))
	assert.Equal(t, "http://pool.test/pools?x=1", resp.URL)

	mu.Lock()
	defer mu.Unlock()
	require.NotNil(t, got)
	assert.Equal(t, http.MethodPost, got.Method)
	assert.Equal(t, "/pools", got.URL.Path)
	assert.Equal(t, "x=1", got.URL.RawQuery)
	assert.Equal(t, "application/json", got.Header.Get("Accept"))
	assert.Equal(t, "pool.test", got.Header.Get("X-Forwarded-Host"))
	assert.Equal(t, `{"name":"alpha"}`, gotBody)

	// The body is still readable by the next handler.
	rest, err := io.ReadAll(req.Body)
	require.NoError(t, err)
	assert.Equal(t, `{"name":"alpha"}`, string(rest))
}

func TestFetchDoesNotFollowRedirects(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/login", http.StatusFound)
	}))
	defer upstream.Close()

	resp, err := newFetcher(t, upstream.URL, nil).Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "/pools", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusFound, resp.Status)
	assert.Equal(t, "/login", resp.Header.Get("Location"))
	assert.False(t, resp.OK())
}

func TestFetchSniffsContentType(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header()["Content-Type"] = nil
		_, _ = w.Write(png)
	}))
	defer upstream.Close()

	resp, err := newFetcher(t, upstream.URL, nil).Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "/icons/favicon-16x16.png", nil))
	require.NoError(t, err)
	assert.Equal(t, "image/png", resp.Header.Get("Content-Type"))
}

func TestFetchServerErrorIsAResponse(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusBadGateway)
	}))
	defer upstream.Close()

	breaker := resilience.New("upstream", BreakerSettings(2, time.Minute))
	f := newFetcher(t, upstream.URL, breaker)

	resp, err := f.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadGateway, resp.Status)
	assert.Equal(t, uint32(1), breaker.Counts().ConsecutiveFailures)
}

func TestFetchUnreachable(t *testing.T) {
	upstream := httptest.NewServer(http.NotFoundHandler())
	addr := upstream.URL
	upstream.Close()

	_, err := newFetcher(t, addr, nil).Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
}

func TestFetchOpenCircuitFailsFast(t *testing.T) {
	var hits atomic.Int32
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		hits.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer upstream.Close()

	breaker := resilience.New("upstream", BreakerSettings(2, time.Minute))
	f := newFetcher(t, upstream.URL, breaker)

	for range 2 {
		_, err := f.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
		require.NoError(t, err)
	}
	assert.Equal(t, resilience.StateOpen, breaker.State())

	_, err := f.Fetch(context.Background(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUpstream)
	assert.ErrorIs(t, err, resilience.ErrCircuitOpen)
	assert.Equal(t, int32(2), hits.Load())
}

func TestBreakerSettingsIgnoreCancellation(t *testing.T) {
	settings := BreakerSettings(1, time.Second)
	assert.True(t, settings.IsSuccessful(nil))
	assert.True(t, settings.IsSuccessful(context.Canceled))
	assert.False(t, settings.IsSuccessful(errors.New("connection reset")))
	assert.False(t, settings.IsSuccessful(&statusError{status: 503}))
}
