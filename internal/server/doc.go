// Package server wires poolkeeper together.
//
// Routes:
//   - GET /health: liveness and worker state
//   - GET /metrics: Prometheus exposition
//   - GET /ports: application ports over WebSocket
//   - everything else: the edge, answered by the worker or the upstream
//
// Reload re-reads the offline manifest and installs a new worker; cmd/server
// calls it on SIGHUP.
package server
