// Package edge is the catch-all HTTP handler in front of the upstream
// origin.
//
// When a worker controls the request and intercepts it, its answer is
// written back; a request neither the network nor the cache could answer
// becomes an empty 504 with X-Offline-Miss: 1. Everything else is reverse
// proxied to the upstream unchanged, and the worker script itself gets the
// Service-Worker-Allowed header so it may control the whole origin.
package edge
