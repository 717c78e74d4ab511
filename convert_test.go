package grimoire

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConvertArchiveToManifest(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"a.txt":     "hello world",
		"sub/b.txt": "another file",
	}
	archivePath := buildArchive(t, files, WithChecksumHook(NewCRC32Checksum()))

	manifestPath := filepath.Join(t.TempDir(), "manifest.grim")
	err := Convert(context.Background(), archivePath, manifestPath, WithChecksumHook(NewCRC32Checksum()))
	require.NoError(t, err)

	r, err := Open(manifestPath, WithReaderChecksumHook(NewCRC32Checksum()))
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck // read-only handle in a test

	assert.Equal(t, ModeManifest, r.Mode())
	assert.Equal(t, len(files), r.EntryCount())

	for rel := range files {
		e, err := r.GetEntry("/" + rel)
		require.NoError(t, err)
		assert.NotEmpty(t, e.Checksum)
	}
}

func TestConvertRejectsManifestSource(t *testing.T) {
	t.Parallel()

	srcDir := t.TempDir()
	writeLocalFiles(t, srcDir, map[string]string{"a.txt": "x"})
	manifestPath := filepath.Join(t.TempDir(), "manifest.grim")
	w, err := NewWriter(manifestPath, ModeManifest)
	require.NoError(t, err)
	require.NoError(t, w.AddFile(filepath.Join(srcDir, "a.txt"), "/a.txt", 0))
	require.NoError(t, w.Build(context.Background()))

	err = Convert(context.Background(), manifestPath, filepath.Join(t.TempDir(), "out.grim"))
	assert.ErrorIs(t, err, ErrModeMismatch)
}
