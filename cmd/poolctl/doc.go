// Command poolctl inspects and maintains the data poolkeeper keeps on disk:
// cache buckets, client preferences, and precache manifests.
//
// It reads the same STORAGE_* and CACHE_* environment variables as the
// server; flags override them.
package main
