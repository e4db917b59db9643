package offline

import (
	"context"
	"errors"
	"net/http"
)

// ErrNotCacheable is returned when a request cannot be stored in a cache.
var ErrNotCacheable = errors.New("offline: only GET requests can be cached")

// Cache is one named bucket of request → response snapshots.
type Cache interface {
	Match(ctx context.Context, req *http.Request) (*Response, bool, error)
	Put(ctx context.Context, req *http.Request, resp *Response) error
	Keys(ctx context.Context) ([]string, error)
}

// CacheStorage is the registry of named buckets.
type CacheStorage interface {
	// Open returns the named bucket, creating it if needed.
	Open(ctx context.Context, name string) (Cache, error)
	Has(ctx context.Context, name string) (bool, error)
	Delete(ctx context.Context, name string) (bool, error)
	// Keys lists bucket names in creation order.
	Keys(ctx context.Context) ([]string, error)
	// Match looks the request up in every bucket, oldest first.
	Match(ctx context.Context, req *http.Request) (*Response, bool, error)
}

// Fetcher performs network requests.
type Fetcher interface {
	Fetch(ctx context.Context, req *http.Request) (*Response, error)
}

// CacheKey is the key a request is stored under. Only same-origin requests
// are ever cached, so the origin-relative form is enough.
func CacheKey(req *http.Request) string {
	return req.URL.RequestURI()
}

// Cacheable reports whether req may be stored or matched.
func Cacheable(req *http.Request) bool {
	return req.Method == "" || req.Method == http.MethodGet
}
