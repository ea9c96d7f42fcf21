package local_test

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/techscan/internal/crawler"
	"github.com/JakeFAU/techscan/internal/storage/local"
)

func TestNew(t *testing.T) {
	t.Parallel()

	t.Run("CreatesMissingDir", func(t *testing.T) {
		t.Parallel()
		dir := filepath.Join(t.TempDir(), "nested", "out")
		store, err := local.New(local.Config{Dir: dir})
		require.NoError(t, err)
		assert.DirExists(t, dir)
		assert.Equal(t, dir, store.Dir())
	})

	t.Run("MissingDir", func(t *testing.T) {
		t.Parallel()
		_, err := local.New(local.Config{})
		assert.Error(t, err)
	})

	t.Run("NotADirectory", func(t *testing.T) {
		t.Parallel()
		path := filepath.Join(t.TempDir(), "file")
		require.NoError(t, os.WriteFile(path, []byte("x"), 0o600))
		_, err := local.New(local.Config{Dir: path})
		assert.Error(t, err)
	})
}

func TestCreateAppendsAndTruncates(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	store, err := local.New(local.Config{Dir: dir})
	require.NoError(t, err)
	ctx := context.Background()

	w, err := store.Create(ctx, "example.com.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("body{}"))
	require.NoError(t, err)
	_, err = w.Write([]byte("<html></html>"))
	require.NoError(t, err)
	require.NoError(t, w.Close())
	assert.Equal(t, "file://"+filepath.Join(dir, "example.com.txt"), w.URI())

	r, err := store.Open(ctx, "example.com.txt")
	require.NoError(t, err)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	require.NoError(t, r.Close())
	assert.Equal(t, "body{}<html></html>", string(data))

	w, err = store.Create(ctx, "example.com.txt")
	require.NoError(t, err)
	_, err = w.Write([]byte("new"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	data, err = os.ReadFile(filepath.Join(dir, "example.com.txt"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestOpenMissing(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	_, err = store.Open(context.Background(), "absent.txt")
	require.ErrorIs(t, err, crawler.ErrObjectNotFound)
}

func TestRejectsTraversal(t *testing.T) {
	t.Parallel()

	store, err := local.New(local.Config{Dir: t.TempDir()})
	require.NoError(t, err)
	_, err = store.Create(context.Background(), "../escape.txt")
	require.Error(t, err)
	_, err = store.Create(context.Background(), " ")
	require.Error(t, err)
}
