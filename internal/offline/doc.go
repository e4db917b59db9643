// Package offline implements the offline cache worker and the container that
// drives its lifecycle.
//
// A Worker is built once per instantiation and exposes three entry points:
//   - OnInstall: fetch the precache list and store it in the current bucket
//   - OnActivate: delete every other bucket and claim clients
//   - OnFetch: network first, falling back to the cache registry
//
// Successful network responses are copied into the current bucket in the
// background. The caller never learns whether that store worked; failures
// only show up in logs and metrics.
//
// The Container stands in for the browser's registration machinery. It maps
// script URLs to worker factories, runs install and activate, and answers
// which worker controls a given request.
//
// Storage for buckets and the network are injected through CacheStorage and
// Fetcher. See the cachestore and network subpackages for implementations.
package offline
