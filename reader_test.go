package grimoire

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildArchive(t *testing.T, files map[string]string, opts ...WriterOption) string {
	t.Helper()
	srcDir := t.TempDir()
	writeLocalFiles(t, srcDir, files)

	out := filepath.Join(t.TempDir(), "c.grim")
	w, err := NewWriter(out, ModeArchive, opts...)
	require.NoError(t, err)
	for rel := range files {
		require.NoError(t, w.AddFile(filepath.Join(srcDir, filepath.FromSlash(rel)), "/"+rel, 0))
	}
	require.NoError(t, w.Build(context.Background()))
	return out
}

func TestOpenRejectsBadMagic(t *testing.T) {
	t.Parallel()

	out := buildArchive(t, map[string]string{"a.txt": "x"})
	_, err := Open(out, WithReaderMagic([4]byte{'N', 'O', 'P', 'E'}))
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestOpenRejectsTruncatedFile(t *testing.T) {
	t.Parallel()

	out := buildArchive(t, map[string]string{"a.txt": "x"})
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	truncated := filepath.Join(t.TempDir(), "truncated.grim")
	require.NoError(t, os.WriteFile(truncated, raw[:10], 0o644))

	_, err = Open(truncated)
	assert.ErrorIs(t, err, ErrHeaderCorrupt)
}

func TestReaderListAllAndListHashesOrdering(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"z.txt": "z",
		"a.txt": "a",
		"m.txt": "m",
	}
	out := buildArchive(t, files)
	r, err := Open(out)
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck // read-only handle in a test

	var hashes []uint64
	for h := range r.ListHashes() {
		hashes = append(hashes, h)
	}
	assert.True(t, sort.SliceIsSorted(hashes, func(i, j int) bool { return hashes[i] < hashes[j] }))

	all, err := r.ListAll()
	require.NoError(t, err)
	var paths []string
	for e := range all {
		paths = append(paths, e.Path)
	}
	assert.Len(t, paths, len(files))
}

func TestReaderGetEntry(t *testing.T) {
	t.Parallel()

	out := buildArchive(t, map[string]string{"a.txt": "hello"}, WithChecksumHook(NewCRC32Checksum()))
	r, err := Open(out, WithReaderChecksumHook(NewCRC32Checksum()))
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck // read-only handle in a test

	e, err := r.GetEntry("/a.txt")
	require.NoError(t, err)
	assert.Equal(t, "/a.txt", e.Path)
	assert.Equal(t, uint64(5), e.RawSize)
	assert.NotEmpty(t, e.Checksum)

	_, err = r.GetEntry("/nope.txt")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestExtractAllWritesEveryEntry(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"a.txt":     "hello",
		"sub/b.txt": "world",
		"sub/c.txt": "!!!",
	}
	out := buildArchive(t, files)
	r, err := Open(out)
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck // read-only handle in a test

	destDir := t.TempDir()
	result, err := r.ExtractAll(context.Background(), destDir, WithConcurrency(4))
	require.NoError(t, err)
	assert.Equal(t, len(files), result.SuccessCount)
	assert.Equal(t, 0, result.FailedCount)

	for rel, content := range files {
		got, err := os.ReadFile(filepath.Join(destDir, filepath.FromSlash(rel)))
		require.NoError(t, err)
		assert.Equal(t, content, string(got))
	}
}

func TestExtractAllRespectsExcludes(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"keep.txt": "keep",
		"skip.log": "skip",
	}
	out := buildArchive(t, files)
	r, err := Open(out)
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck // read-only handle in a test

	destDir := t.TempDir()
	result, err := r.ExtractAll(context.Background(), destDir, WithExcludes("*.log"))
	require.NoError(t, err)
	assert.Equal(t, 1, result.SuccessCount)

	_, statErr := os.Stat(filepath.Join(destDir, "skip.log"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestExtractAllSerialWhenNegativeConcurrency(t *testing.T) {
	t.Parallel()

	files := map[string]string{"a.txt": "1", "b.txt": "2", "c.txt": "3"}
	out := buildArchive(t, files)
	r, err := Open(out)
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck // read-only handle in a test

	destDir := t.TempDir()
	result, err := r.ExtractAll(context.Background(), destDir, WithConcurrency(-1))
	require.NoError(t, err)
	assert.Equal(t, len(files), result.SuccessCount)
	assert.Equal(t, result.SuccessCount+result.FailedCount, len(files))
}

func TestReadReportsModeMismatchForManifest(t *testing.T) {
	t.Parallel()

	srcDir := t.TempDir()
	writeLocalFiles(t, srcDir, map[string]string{"a.txt": "x"})
	out := filepath.Join(t.TempDir(), "c.grim")
	w, err := NewWriter(out, ModeManifest)
	require.NoError(t, err)
	require.NoError(t, w.AddFile(filepath.Join(srcDir, "a.txt"), "/a.txt", 0))
	require.NoError(t, w.Build(context.Background()))

	r, err := Open(out)
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck // read-only handle in a test

	_, err = r.Read(context.Background(), "/a.txt")
	assert.ErrorIs(t, err, ErrModeMismatch)

	_, err = r.ExtractAll(context.Background(), t.TempDir())
	assert.ErrorIs(t, err, ErrModeMismatch)
}

func TestReadDetectsCorruptedPayload(t *testing.T) {
	t.Parallel()

	out := buildArchive(t, map[string]string{"a.txt": "payload worth protecting"}, WithChecksumHook(NewSHA256Checksum()))

	// The data region is the last thing in the file; flipping the final
	// byte corrupts the stored (uncompressed) payload without touching the
	// index.
	raw, err := os.ReadFile(out)
	require.NoError(t, err)
	raw[len(raw)-1] ^= 0xFF
	require.NoError(t, os.WriteFile(out, raw, 0o644))

	r, err := Open(out, WithReaderChecksumHook(NewSHA256Checksum()))
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck // read-only handle in a test

	_, err = r.Read(context.Background(), "/a.txt")
	assert.ErrorIs(t, err, ErrChecksumMismatch)

	got, err := r.Read(context.Background(), "/a.txt", WithVerify(false))
	require.NoError(t, err)
	assert.NotEqual(t, "payload worth protecting", string(got))
}

func TestExtractAllProgressIsMonotonic(t *testing.T) {
	t.Parallel()

	files := map[string]string{"a.txt": "1", "b.txt": "2", "c.txt": "3", "d.txt": "4"}
	out := buildArchive(t, files)
	r, err := Open(out)
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck // read-only handle in a test

	var updates []ProgressInfo
	_, err = r.ExtractAll(context.Background(), t.TempDir(),
		WithConcurrency(-1),
		WithProgress(func(info ProgressInfo) { updates = append(updates, info) }),
	)
	require.NoError(t, err)
	require.NotEmpty(t, updates)

	for i := 1; i < len(updates); i++ {
		assert.GreaterOrEqual(t, updates[i].Current, updates[i-1].Current)
	}
	final := updates[len(updates)-1]
	assert.Equal(t, uint64(len(files)), final.Current)
	assert.InDelta(t, 1.0, final.Progress, 1e-9)
}

func TestOpenRejectsMismatchedPathHashFunc(t *testing.T) {
	t.Parallel()

	custom := PathHashFunc{
		AlgoID: 9,
		Hash: func(p string) uint64 {
			var h uint64 = 1469598103934665603
			for i := 0; i < len(p); i++ {
				h ^= uint64(p[i])
				h *= 1099511628211
			}
			return h
		},
	}

	srcDir := t.TempDir()
	writeLocalFiles(t, srcDir, map[string]string{"a.txt": "x"})
	out := filepath.Join(t.TempDir(), "c.grim")
	w, err := NewWriter(out, ModeArchive, WithPathHashFunc(custom))
	require.NoError(t, err)
	require.NoError(t, w.AddFile(filepath.Join(srcDir, "a.txt"), "/a.txt", 0))
	require.NoError(t, w.Build(context.Background()))

	_, err = Open(out)
	assert.ErrorIs(t, err, ErrUnknownAlgoID)

	r, err := Open(out, WithReaderPathHashFunc(custom))
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck // read-only handle in a test
	assert.True(t, r.Exists("/a.txt"))
}

func TestReaderCompressionRoundTripWithMmap(t *testing.T) {
	t.Parallel()

	srcDir := t.TempDir()
	writeLocalFiles(t, srcDir, map[string]string{"big.txt": "the quick brown fox jumps over the lazy dog, repeatedly, to give zstd something to chew on"})
	out := filepath.Join(t.TempDir(), "c.grim")
	w, err := NewWriter(out, ModeArchive, WithCompressionHooks(NewZstdCompression()))
	require.NoError(t, err)
	require.NoError(t, w.AddFile(filepath.Join(srcDir, "big.txt"), "/big.txt", CompressionZstd))
	require.NoError(t, w.Build(context.Background()))

	r, err := Open(out, WithReaderCompressionHooks(NewZstdCompression()), WithReaderMmap(true))
	require.NoError(t, err)
	defer r.Close() //nolint:errcheck // read-only handle in a test

	got, err := r.Read(context.Background(), "/big.txt")
	require.NoError(t, err)
	assert.Equal(t, "the quick brown fox jumps over the lazy dog, repeatedly, to give zstd something to chew on", string(got))
}
