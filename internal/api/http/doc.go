// Package http provides the API handlers served next to the edge: health
// and Prometheus metrics.
package http
