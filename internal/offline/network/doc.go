// Package network is the offline worker's view of the network: it forwards
// intercepted requests to the upstream origin and buffers the answers.
//
// Requests are sent with go-resty over a pooled transport, without retries
// and without following redirects, so the browser sees exactly what the
// upstream said. Every call runs through a circuit breaker; while the
// circuit is open Fetch fails with ErrUpstream straight away and the worker
// answers from its cache.
//
// Responses that arrive without a Content-Type get one sniffed from the body.
package network
