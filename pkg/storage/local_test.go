package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewLocalCreatesRoot(t *testing.T) {
	root := filepath.Join(t.TempDir(), "nested", "uploads")
	store, err := NewLocal(root)
	require.NoError(t, err)
	require.Equal(t, root, store.Root())

	info, err := os.Stat(root)
	require.NoError(t, err)
	require.True(t, info.IsDir())
}

func TestLocalSaveWritesExclusively(t *testing.T) {
	store, err := NewLocal(t.TempDir())
	require.NoError(t, err)
	ctx := context.Background()

	path, n, err := store.Save(ctx, "frame.jpg", strings.NewReader("data"))
	require.NoError(t, err)
	require.Equal(t, int64(4), n)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "data", string(content))

	_, _, err = store.Save(ctx, "frame.jpg", strings.NewReader("other"))
	require.ErrorIs(t, err, ErrExists)

	require.NoError(t, store.Remove(path))
	require.NoError(t, store.Remove(path))
}

func TestLocalSaveConfinesNamesToRoot(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocal(root)
	require.NoError(t, err)

	path, _, err := store.Save(context.Background(), "../../escape.jpg", strings.NewReader("x"))
	require.NoError(t, err)
	require.Equal(t, filepath.Join(root, "escape.jpg"), path)
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("stream broken") }

func TestLocalSaveRemovesPartialFile(t *testing.T) {
	root := t.TempDir()
	store, err := NewLocal(root)
	require.NoError(t, err)

	_, _, err = store.Save(context.Background(), "broken.jpg", failingReader{})
	require.Error(t, err)

	_, statErr := os.Stat(filepath.Join(root, "broken.jpg"))
	require.True(t, os.IsNotExist(statErr))
}
