// Package cachestore provides cache registry backends for the offline
// worker.
//
// Backends:
//   - Memory: maps behind mutexes, lost on restart
//   - SQLite: buckets and entries tables, zstd-compressed bodies
//
// Both keep buckets in creation order, which is the order Match searches
// them in. Only GET requests can be stored; other methods are rejected with
// offline.ErrNotCacheable and never match.
package cachestore
