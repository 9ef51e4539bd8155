package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocalStorageSaveOpenDelete(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	key := "proj-1/thumbs/abc.png"
	written, err := store.SaveStream(key, strings.NewReader("payload"))
	require.NoError(t, err)
	require.Equal(t, int64(7), written)

	f, err := store.Open(key)
	require.NoError(t, err)
	data, err := io.ReadAll(f)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	require.Equal(t, "payload", string(data))

	require.NoError(t, store.Delete(key))
	_, err = store.Open(key)
	require.Error(t, err)

	// Deleting again is a no-op.
	require.NoError(t, store.Delete(key))
}

func TestLocalStorageResolveAnchorsKeys(t *testing.T) {
	base := t.TempDir()
	store, err := NewLocalStorage(base)
	require.NoError(t, err)

	resolved := store.Path("/etc/passwd")
	require.True(t, strings.HasPrefix(resolved, base))
	require.Equal(t, filepath.Join(base, "etc", "passwd"), resolved)

	escaped := store.Path("../../outside")
	require.True(t, strings.HasPrefix(escaped, base))
}

func TestLocalStorageCreatesBaseDir(t *testing.T) {
	base := filepath.Join(t.TempDir(), "nested", "storage")
	_, err := NewLocalStorage(base)
	require.NoError(t, err)

	info, err := os.Stat(base)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestLocalStorageDeleteTree(t *testing.T) {
	store, err := NewLocalStorage(t.TempDir())
	require.NoError(t, err)

	_, err = store.SaveStream("proj1/thumbs/a.png", strings.NewReader("a"))
	require.NoError(t, err)
	_, err = store.SaveStream("proj1/b.txt", strings.NewReader("b"))
	require.NoError(t, err)
	_, err = store.SaveStream("proj2/c.txt", strings.NewReader("c"))
	require.NoError(t, err)

	require.NoError(t, store.DeleteTree("proj1"))

	_, err = store.Open("proj1/thumbs/a.png")
	require.Error(t, err)
	survivor, err := store.Open("proj2/c.txt")
	require.NoError(t, err)
	require.NoError(t, survivor.Close())

	// Removing an absent tree is fine.
	require.NoError(t, store.DeleteTree("proj1"))
}
