// Package storage holds the preference stores behind the interop bridge.
//
// Memory keeps values in process; SQLite persists them in a single table with
// upsert-on-write, so the last write always wins. Scoped gives every client
// (browser profile) its own key space inside one store.
package storage
