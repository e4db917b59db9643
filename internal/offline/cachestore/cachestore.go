package cachestore

import (
	"errors"
	"fmt"

	"github.com/GriffinCanCode/poolkeeper/internal/offline"
)

// ErrBucketDeleted is returned when writing through a handle whose bucket
// has since been deleted.
var ErrBucketDeleted = errors.New("cachestore: bucket was deleted")

// Store is a cache registry that can be closed.
type Store interface {
	offline.CacheStorage
	Close() error
}

// Open returns the registry selected by driver ("memory" or "sqlite").
func Open(driver, path string) (Store, error) {
	switch driver {
	case "memory":
		return NewMemory(), nil
	case "sqlite":
		return OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown cache driver %q", driver)
	}
}
