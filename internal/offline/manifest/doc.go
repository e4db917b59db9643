// Package manifest describes what the offline worker precaches.
//
// A manifest is a bucket name plus a list of origin-relative URLs:
//
//	bucket: precache-v0.8.16
//	precache:
//	  - /manifest.json
//	  - /favicon.ico
//
// Manifests load from YAML or TOML by file extension, or are generated from
// a build directory with Generate. Bumping the bucket name and reloading the
// server (SIGHUP) installs a new worker whose activation deletes the old
// bucket.
package manifest
