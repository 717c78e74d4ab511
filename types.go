package grimoire

import (
	"github.com/Virace/GrimoireVFS/internal/codec"
	"github.com/Virace/GrimoireVFS/internal/pathdict"
)

// DefaultMagic is the 4-byte magic ("GRIM") a container uses when the
// caller does not configure a domain-specific one.
var DefaultMagic = codec.DefaultMagic

// Mode identifies whether a container carries payload data.
type Mode = codec.Mode

// Container modes.
const (
	ModeManifest = codec.ModeManifest
	ModeArchive  = codec.ModeArchive
)

// Entry is the logical representation of one file in a container.
type Entry struct {
	// Path is the canonical vfs-path ("/a/b/c.ext").
	Path string

	// RawSize is the uncompressed content size in bytes.
	RawSize uint64

	// PackedSize is the on-disk payload size. Equals RawSize in Manifest
	// mode or when the entry is stored uncompressed.
	PackedSize uint64

	// CompressionAlgoID is 0 ("stored") or a registered CompressionHook id.
	CompressionAlgoID uint16

	// Checksum is the fixed-size digest of the raw (uncompressed) bytes,
	// or empty if no checksum hook is active.
	Checksum []byte

	// DataOffset is the byte offset of this entry's packed payload within
	// the data region. Always 0 in Manifest mode.
	DataOffset uint64
}

// NormalizePath canonicalizes a user-supplied path into GrimoireVFS's
// vfs-path form: forward slashes, a single leading slash, no trailing
// slash. See internal/pathdict.Canonicalize for the exact rules.
func NormalizePath(p string, caseInsensitive bool) string {
	return pathdict.Canonicalize(p, caseInsensitive)
}
