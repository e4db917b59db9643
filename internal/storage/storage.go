package storage

import (
	"context"
	"errors"
	"strings"
)

// ErrClosed is returned by stores that have been closed.
var ErrClosed = errors.New("storage: store is closed")

// Store is durable key-value storage for preferences.
type Store interface {
	GetItem(ctx context.Context, key string) (string, bool, error)
	SetItem(ctx context.Context, key, value string) error
	Close() error
}

// Scoped prefixes every key with scope, giving each client its own
// namespace inside a shared store.
type Scoped struct {
	store  Store
	prefix string
}

// NewScoped returns a view of store restricted to scope.
func NewScoped(store Store, scope string) *Scoped {
	return &Scoped{store: store, prefix: strings.TrimSuffix(scope, "/") + "/"}
}

// GetItem reads key within the scope.
func (s *Scoped) GetItem(ctx context.Context, key string) (string, bool, error) {
	return s.store.GetItem(ctx, s.prefix+key)
}

// SetItem writes key within the scope.
func (s *Scoped) SetItem(ctx context.Context, key, value string) error {
	return s.store.SetItem(ctx, s.prefix+key, value)
}
