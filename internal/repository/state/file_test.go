package state

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// TestFileStore_MissingFileIsEmpty verifies absence of the file is empty state, not an error.
func TestFileStore_MissingFileIsEmpty(t *testing.T) {
	t.Parallel()

	store := NewFileStore(filepath.Join(t.TempDir(), "missing.txt"))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Empty(t, got)
}

// TestFileStore_SaveLoad_Roundtrip ensures Save followed by Load returns the same identifier.
func TestFileStore_SaveLoad_Roundtrip(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "last_release.txt")
	store := NewFileStore(file)

	require.NoError(t, store.Save(context.Background(), "v1.2"))

	got, err := store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "v1.2", got)

	// Overwrite replaces the previous value.
	require.NoError(t, store.Save(context.Background(), "v1.3"))

	got, err = store.Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "v1.3", got)
}

// TestFileStore_TrimsWhitespace tolerates trailing newlines written by hand.
func TestFileStore_TrimsWhitespace(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "last_release.txt")
	require.NoError(t, os.WriteFile(file, []byte("  v2.3\n\n"), 0o600))

	got, err := NewFileStore(file).Load(context.Background())
	require.NoError(t, err)
	require.Equal(t, "v2.3", got)
}
