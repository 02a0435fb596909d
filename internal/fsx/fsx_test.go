package fsx

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteFileAtomic_ReplacesAndLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "mangadex.json")

	require.NoError(t, WriteFileAtomic(path, []byte("one")))
	require.NoError(t, WriteFileAtomic(path, []byte("two")))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "two", string(b))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	for _, e := range entries {
		assert.False(t, strings.HasPrefix(e.Name(), ".mangadex.json.tmp-"), "temp file left behind: %s", e.Name())
	}
}

func TestWriteFileAtomic_RenameFailureKeepsOldContent(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "series.json")
	require.NoError(t, os.WriteFile(path, []byte("old"), 0o644))

	old := renameFunc
	renameFunc = func(string, string) error { return os.ErrPermission }
	defer func() { renameFunc = old }()

	require.Error(t, WriteFileAtomic(path, []byte("new")))

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "old", string(b))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestJSONRoundTripAndMissingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "index.json")

	var out map[string]string
	ok, err := ReadJSON(path, &out)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, WriteJSON(path, map[string]string{"https://example.test/s/1": "Title & More"}))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "\n  \"https://example.test/s/1\"")
	assert.Contains(t, string(raw), "Title & More")

	ok, err = ReadJSON(path, &out)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Title & More", out["https://example.test/s/1"])
}

func TestExists(t *testing.T) {
	dir := t.TempDir()

	ok, err := Exists(filepath.Join(dir, "missing.cbz"))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = Exists(dir)
	require.NoError(t, err)
	assert.True(t, ok)
}
