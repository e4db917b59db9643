// Package middleware provides the gin middleware of the server.
//
// Features:
//   - RequestID: request IDs and a debug access log, on every route
//   - CORS: on the API routes (/health, /metrics, /ports)
//   - RateLimit: per-IP token buckets, on the API routes
//
// The edge route is left out of CORS and rate limiting. It must behave like
// the origin it fronts, so it neither adds CORS headers nor throttles asset
// loads.
package middleware
