package storage

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func backends(t *testing.T) map[string]func(t *testing.T) Store {
	t.Helper()
	return map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemory() },
		"sqlite": func(t *testing.T) Store {
			store, err := OpenSQLite(filepath.Join(t.TempDir(), "prefs", "preferences.db"))
			require.NoError(t, err)
			t.Cleanup(func() { store.Close() })
			return store
		},
	}
}

func TestStoreBehavior(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			_, ok, err := store.GetItem(ctx, "sessionPoolName")
			require.NoError(t, err)
			assert.False(t, ok)

			require.NoError(t, store.SetItem(ctx, "sessionPoolName", `"alpha"`))
			value, ok, err := store.GetItem(ctx, "sessionPoolName")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, `"alpha"`, value)

			require.NoError(t, store.SetItem(ctx, "sessionPoolName", `null`))
			value, _, err = store.GetItem(ctx, "sessionPoolName")
			require.NoError(t, err)
			assert.Equal(t, `null`, value)

			require.NoError(t, store.SetItem(ctx, "sessionPoolName", ""))
			value, ok, err = store.GetItem(ctx, "sessionPoolName")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Empty(t, value)
		})
	}
}

func TestStoreConcurrentWriters(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := open(t)

			var wg sync.WaitGroup
			for i := 0; i < 8; i++ {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					assert.NoError(t, store.SetItem(ctx, "k", string(rune('a'+i))))
				}(i)
			}
			wg.Wait()

			value, ok, err := store.GetItem(ctx, "k")
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Len(t, value, 1)
		})
	}
}

func TestStoreClosed(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			require.NoError(t, store.Close())

			_, _, err := store.GetItem(context.Background(), "k")
			assert.ErrorIs(t, err, ErrClosed)
			assert.ErrorIs(t, store.SetItem(context.Background(), "k", "v"), ErrClosed)
		})
	}
}

func TestCloseDuringWrites(t *testing.T) {
	for name, open := range backends(t) {
		t.Run(name, func(t *testing.T) {
			store := open(t)
			ctx := context.Background()

			var wg sync.WaitGroup
			errs := make(chan error, 40)
			for i := range 20 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					errs <- store.SetItem(ctx, "k", string(rune('a'+i)))
					_, _, err := store.GetItem(ctx, "k")
					errs <- err
				}()
			}
			require.NoError(t, store.Close())
			wg.Wait()
			close(errs)

			for err := range errs {
				if err != nil {
					assert.ErrorIs(t, err, ErrClosed)
				}
			}
		})
	}
}

func TestSQLiteSurvivesReopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "preferences.db")

	store, err := OpenSQLite(path)
	require.NoError(t, err)
	require.NoError(t, store.SetItem(ctx, "client-1/sessionPoolName", `"beta"`))
	require.NoError(t, store.Close())

	reopened, err := OpenSQLite(path)
	require.NoError(t, err)
	defer reopened.Close()

	value, ok, err := reopened.GetItem(ctx, "client-1/sessionPoolName")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `"beta"`, value)
}

func TestOpenSQLiteRequiresPath(t *testing.T) {
	_, err := OpenSQLite("  ")
	assert.Error(t, err)
}

func TestOpen(t *testing.T) {
	store, err := Open("memory", "")
	require.NoError(t, err)
	assert.IsType(t, &Memory{}, store)

	store, err = Open("sqlite", filepath.Join(t.TempDir(), "p.db"))
	require.NoError(t, err)
	assert.IsType(t, &SQLite{}, store)
	store.Close()

	_, err = Open("redis", "")
	assert.Error(t, err)
}

func TestScopedIsolation(t *testing.T) {
	ctx := context.Background()
	store := NewMemory()
	alice := NewScoped(store, "alice")
	bob := NewScoped(store, "bob/")

	require.NoError(t, alice.SetItem(ctx, "sessionPoolName", `"a"`))

	_, ok, err := bob.GetItem(ctx, "sessionPoolName")
	require.NoError(t, err)
	assert.False(t, ok)

	value, ok, err := store.GetItem(ctx, "alice/sessionPoolName")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, `"a"`, value)
}

func TestMemoryRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ctx := context.Background()
		store := NewMemory()
		key := rapid.StringMatching(`[a-z0-9-]{1,12}/sessionPoolName`).Draw(t, "key")
		value := rapid.String().Draw(t, "value")

		if err := store.SetItem(ctx, key, value); err != nil {
			t.Fatalf("set: %v", err)
		}
		got, ok, err := store.GetItem(ctx, key)
		if err != nil || !ok || got != value {
			t.Fatalf("got (%q, %v, %v), want %q", got, ok, err, value)
		}
	})
}
