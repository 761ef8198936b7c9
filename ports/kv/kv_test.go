package kv

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func stores(t *testing.T) map[string]Store {
	t.Helper()
	return map[string]Store{
		"mem":  NewMemStore(),
		"file": NewFileStore(t.TempDir()),
	}
}

func TestStoreCRUD(t *testing.T) {
	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()

			_, err := store.Get(ctx, "missing")
			require.ErrorIs(t, err, ErrNotFound)

			require.NoError(t, store.Put(ctx, "k", []byte("v1")))
			got, err := store.Get(ctx, "k")
			require.NoError(t, err)
			require.Equal(t, []byte("v1"), got)

			require.NoError(t, store.Put(ctx, "k", []byte("v2")))
			got, err = store.Get(ctx, "k")
			require.NoError(t, err)
			require.Equal(t, []byte("v2"), got)

			require.NoError(t, store.Delete(ctx, "k"))
			_, err = store.Get(ctx, "k")
			require.ErrorIs(t, err, ErrNotFound)

			// Deleting an absent key is not an error.
			require.NoError(t, store.Delete(ctx, "k"))
		})
	}
}

func TestTypedPutGet(t *testing.T) {
	type blob struct {
		Name  string  `json:"name"`
		Count float64 `json:"count"`
	}

	for name, store := range stores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := t.Context()

			require.NoError(t, Put(ctx, store, "b", blob{Name: "x", Count: 3}))
			got, err := Get[blob](ctx, store, "b")
			require.NoError(t, err)
			require.Equal(t, blob{Name: "x", Count: 3}, got)

			_, err = Get[blob](ctx, store, "absent")
			require.ErrorIs(t, err, ErrNotFound)
		})
	}
}

func TestMemStoreCopiesValue(t *testing.T) {
	store := NewMemStore()
	ctx := t.Context()

	data := []byte("original")
	require.NoError(t, store.Put(ctx, "k", data))
	data[0] = 'X'

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	require.Equal(t, []byte("original"), got)
}

func TestFileStoreLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	ctx := t.Context()

	require.NoError(t, store.Put(ctx, "settings.cache", []byte(`{"a":1}`)))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "settings.cache", entries[0].Name())
}

func TestFileStoreSanitizesKeys(t *testing.T) {
	dir := t.TempDir()
	store := NewFileStore(dir)
	ctx := t.Context()

	require.NoError(t, store.Put(ctx, "a/b", []byte("v")))
	got, err := store.Get(ctx, "a/b")
	require.NoError(t, err)
	require.Equal(t, []byte("v"), got)

	// The value lives inside dir, not in a subdirectory.
	_, err = os.Stat(filepath.Join(dir, "a_b"))
	require.NoError(t, err)
}
