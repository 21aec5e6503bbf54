package session

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryStore(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, store.Set(ctx, "k", "v"))
	v, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v", v)

	require.NoError(t, store.Delete(ctx, "k"))
	_, err = store.Get(ctx, "k")
	assert.ErrorIs(t, err, ErrNotFound)

	// Deleting a missing key is not an error.
	assert.NoError(t, store.Delete(ctx, "k"))
}

func TestFileStorePersistsAcrossInstances(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	ctx := context.Background()

	store := NewFileStore(path)
	_, err := store.Get(ctx, "missing")
	assert.ErrorIs(t, err, ErrNotFound, "a store with no file yet is just empty")

	require.NoError(t, store.Set(ctx, "guest_key", "guest-abc"))
	require.NoError(t, store.Set(ctx, "other", "x"))

	reopened := NewFileStore(path)
	v, err := reopened.Get(ctx, "guest_key")
	require.NoError(t, err)
	assert.Equal(t, "guest-abc", v)

	require.NoError(t, reopened.Delete(ctx, "other"))
	_, err = NewFileStore(path).Get(ctx, "other")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestFileStoreCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o600))

	_, err := NewFileStore(path).Get(context.Background(), "k")
	assert.Error(t, err)
	assert.NotErrorIs(t, err, ErrNotFound)
}
