package walkutil

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTestFiles(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		full := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
	}
}

func TestWalkVisitsRegularFiles(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{
		"a.txt":     "a",
		"sub/b.txt": "b",
	})

	var entries []Entry
	err := Walk(context.Background(), root, nil, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "sub/b.txt"}, SortedPaths(entries))
}

func TestWalkSkipsSymlinks(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{"a.txt": "a"})
	require.NoError(t, os.Symlink(filepath.Join(root, "a.txt"), filepath.Join(root, "link.txt")))

	var entries []Entry
	err := Walk(context.Background(), root, nil, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt"}, SortedPaths(entries))
}

func TestWalkRespectsExcludes(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{
		"keep.txt":     "k",
		"skip.log":     "s",
		"sub/skip.log": "s",
	})

	excl := NewGlobExcluder([]string{"*.log"}, false)
	var entries []Entry
	err := Walk(context.Background(), root, excl, func(e Entry) error {
		entries = append(entries, e)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"keep.txt"}, SortedPaths(entries))
}

func TestGlobExcluderCaseInsensitive(t *testing.T) {
	t.Parallel()

	excl := NewGlobExcluder([]string{"*.LOG"}, true)
	assert.True(t, excl.Excluded("build.log"))
	assert.False(t, excl.Excluded("build.txt"))
}

func TestWalkCancellation(t *testing.T) {
	t.Parallel()

	root := t.TempDir()
	writeTestFiles(t, root, map[string]string{"a.txt": "a", "b.txt": "b"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Walk(ctx, root, nil, func(Entry) error { return nil })
	assert.ErrorIs(t, err, context.Canceled)
}
