package grimoire

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuiltinChecksumHooksComputeFileMatchesCompute(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "data.bin")
	content := []byte("the quick brown fox jumps over the lazy dog")
	require.NoError(t, os.WriteFile(path, content, 0o644))

	hooks := []ChecksumHook{NewCRC32Checksum(), NewMD5Checksum(), NewSHA1Checksum(), NewSHA256Checksum()}
	for _, h := range hooks {
		want, err := h.Compute(content)
		require.NoError(t, err)

		bh, ok := h.(BatchChecksumHook)
		require.True(t, ok, "%T must implement BatchChecksumHook", h)
		got, err := bh.ComputeFile(path)
		require.NoError(t, err)

		assert.Equal(t, want, got)
		assert.Len(t, got, int(h.OutputSize()))
	}
}

func TestZstdCompressionRoundTrip(t *testing.T) {
	t.Parallel()

	hook := NewZstdCompression()
	raw := []byte("aaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaaa")

	packed, err := hook.Compress(raw)
	require.NoError(t, err)
	assert.Less(t, len(packed), len(raw))

	got, err := hook.Decompress(packed, uint64(len(raw)))
	require.NoError(t, err)
	assert.Equal(t, raw, got)
}

func TestZstdDecompressRejectsWrongSize(t *testing.T) {
	t.Parallel()

	hook := NewZstdCompression()
	raw := []byte("some content to compress for the mismatch test")
	packed, err := hook.Compress(raw)
	require.NoError(t, err)

	_, err = hook.Decompress(packed, uint64(len(raw))+1)
	assert.ErrorIs(t, err, ErrDecompressError)
}

func TestXORObfuscationRoundTrip(t *testing.T) {
	t.Parallel()

	hook := NewXORObfuscation(7, []byte("k3y"))
	plain := []byte("index bytes worth obscuring, longer than the key")

	ct, err := hook.Encrypt(plain)
	require.NoError(t, err)
	assert.NotEqual(t, plain, ct)
	assert.Len(t, ct, len(plain))

	pt, err := hook.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, plain, pt)
	assert.Equal(t, uint16(7), hook.AlgoID())
}

func TestDefaultPathHashIsDeterministic(t *testing.T) {
	t.Parallel()

	fn := DefaultPathHash()
	assert.Equal(t, uint16(0), fn.AlgoID)
	assert.Equal(t, fn.Hash("/a/b/c.txt"), fn.Hash("/a/b/c.txt"))
	assert.NotEqual(t, fn.Hash("/a/b/c.txt"), fn.Hash("/a/b/d.txt"))
}
