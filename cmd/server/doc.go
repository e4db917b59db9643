// Package main is the entry point for the poolkeeper server.
//
// poolkeeper sits in front of the compiled front-end application. It proxies
// the application's assets, answers them from the offline cache when the
// upstream is unreachable, and carries the application's ports over a
// WebSocket so the chosen pool survives reloads.
//
// Architecture:
//
//	Browser → poolkeeper → Upstream (front-end build)
//	              ↓
//	      SQLite (preferences, cache buckets)
//
// Configuration:
//   - Environment variables (12-factor)
//   - CLI flags (override env vars)
//   - Defaults for development
//
// Usage:
//
//	# Production mode
//	./server -port 8000 -upstream http://localhost:3000
//
//	# Development mode (colored logs, debug level)
//	./server -dev
//
// Signals:
//   - SIGINT, SIGTERM: Graceful shutdown
//   - SIGHUP: Reload the offline manifest and install a new worker
package main
