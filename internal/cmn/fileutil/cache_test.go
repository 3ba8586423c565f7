package fileutil

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCache_StoreAndLoad(t *testing.T) {
	t.Parallel()

	cache := NewCache[string]("licenses", 10, time.Hour)
	assert.Equal(t, "licenses", cache.Name())

	path := filepath.Join(t.TempDir(), "a.json")
	require.NoError(t, os.WriteFile(path, []byte("content"), 0600))
	fi, err := os.Stat(path)
	require.NoError(t, err)

	cache.Store(path, "parsed", fi)
	assert.Equal(t, 1, cache.Size())

	data, ok := cache.Load(path)
	assert.True(t, ok)
	assert.Equal(t, "parsed", data)

	cache.Invalidate(path)
	_, ok = cache.Load(path)
	assert.False(t, ok)
}

func TestCache_LoadLatest(t *testing.T) {
	t.Parallel()

	cache := NewCache[string]("licenses", 10, time.Hour)
	path := filepath.Join(t.TempDir(), "a.json")
	require.NoError(t, os.WriteFile(path, []byte("v1"), 0600))

	calls := 0
	loader := func() (string, error) {
		calls++
		b, err := os.ReadFile(path)
		return string(b), err
	}

	got, err := cache.LoadLatest(path, loader)
	require.NoError(t, err)
	assert.Equal(t, "v1", got)

	got, err = cache.LoadLatest(path, loader)
	require.NoError(t, err)
	assert.Equal(t, "v1", got)
	assert.Equal(t, 1, calls, "second load should be served from cache")

	// Same size, different content: the mtime alone must mark it stale.
	future := time.Now().Add(2 * time.Second)
	require.NoError(t, os.WriteFile(path, []byte("v2"), 0600))
	require.NoError(t, os.Chtimes(path, future, future))

	got, err = cache.LoadLatest(path, loader)
	require.NoError(t, err)
	assert.Equal(t, "v2", got)
	assert.Equal(t, 2, calls)
}

func TestCache_LoadLatestErrors(t *testing.T) {
	t.Parallel()

	cache := NewCache[string]("licenses", 10, time.Hour)

	_, err := cache.LoadLatest(filepath.Join(t.TempDir(), "missing.json"), func() (string, error) {
		return "", nil
	})
	assert.ErrorIs(t, err, os.ErrNotExist)

	path := filepath.Join(t.TempDir(), "a.json")
	require.NoError(t, os.WriteFile(path, []byte("x"), 0600))
	loadErr := errors.New("boom")
	_, err = cache.LoadLatest(path, func() (string, error) { return "", loadErr })
	assert.ErrorIs(t, err, loadErr)
	assert.Equal(t, 0, cache.Size())
}

func TestCache_CapacityLimit(t *testing.T) {
	t.Parallel()

	cache := NewCache[int]("licenses", 2, time.Hour)
	dir := t.TempDir()
	for i, name := range []string{"a", "b", "c"} {
		path := filepath.Join(dir, name)
		require.NoError(t, os.WriteFile(path, []byte(name), 0600))
		fi, err := os.Stat(path)
		require.NoError(t, err)
		cache.Store(path, i, fi)
	}
	assert.Equal(t, 2, cache.Size())
	_, ok := cache.Load(filepath.Join(dir, "a"))
	assert.False(t, ok, "oldest entry should be evicted")
}
