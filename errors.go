package grimoire

import (
	"errors"

	"github.com/Virace/GrimoireVFS/internal/codec"
)

// Sentinel errors surfaced to callers. Structural failures (bad magic,
// corrupt header, unsupported version, mode mismatch, index decrypt
// failure) are fatal for the handle that produced them; per-entry
// failures (unknown algo id, duplicate path, not found, checksum
// mismatch, decompress failure, local io) are scoped to a single
// operation and, in batch APIs, route through the configured
// OnErrorPolicy.
var (
	// ErrBadMagic is re-exported from internal/codec: the container's magic
	// bytes do not match what the opener expects.
	ErrBadMagic = codec.ErrBadMagic

	// ErrHeaderCorrupt is re-exported from internal/codec: the FileHeader's
	// CRC does not match its bytes.
	ErrHeaderCorrupt = codec.ErrHeaderCorrupt

	// ErrUnsupportedVersion is re-exported from internal/codec: the format
	// version is not one this package can decode.
	ErrUnsupportedVersion = codec.ErrUnsupportedVersion

	// ErrModeMismatch is returned when an operation specific to one
	// container mode is used on a container of the other mode: Read, Open,
	// and ExtractAll on a Manifest, VerifyFile on an Archive, or Convert
	// given a Manifest source.
	ErrModeMismatch = errors.New("grimoire: mode mismatch")

	// ErrIndexDecryptError is returned when index decryption fails with a
	// supplied IndexCryptoHook.
	ErrIndexDecryptError = errors.New("grimoire: index decrypt error")

	// ErrIndexNotDecrypted is returned by operations that require
	// string-table content (list_all, path-based lookups by iteration) when
	// the index is encrypted and no matching IndexCryptoHook was supplied.
	ErrIndexNotDecrypted = errors.New("grimoire: index not decrypted")

	// ErrUnknownAlgoID is returned when an entry references a checksum or
	// compression algo_id with no registered hook.
	ErrUnknownAlgoID = errors.New("grimoire: unknown algo id")

	// ErrDuplicatePath is returned when staging a vfs-path already added to
	// a Writer.
	ErrDuplicatePath = errors.New("grimoire: duplicate path")

	// ErrNotFound is returned when a lookup path has no matching entry.
	ErrNotFound = errors.New("grimoire: not found")

	// ErrChecksumMismatch is returned when a read's computed checksum does
	// not match the stored one.
	ErrChecksumMismatch = errors.New("grimoire: checksum mismatch")

	// ErrDecompressError is returned when a compression hook's Decompress
	// fails or returns the wrong number of bytes.
	ErrDecompressError = errors.New("grimoire: decompress error")

	// ErrLocalIoError is returned when a local filesystem operation
	// (reading a file to stage or verify) fails.
	ErrLocalIoError = errors.New("grimoire: local io error")

	// ErrBatchAborted is returned by a batch operation run with
	// OnErrorAbort once it stops early. A batch operation whose context is
	// cancelled returns the context's error instead.
	ErrBatchAborted = errors.New("grimoire: batch aborted")

	// ErrDuplicateAlgoID is returned when constructing a Writer or Reader
	// with two hooks of the same kind sharing an algo_id.
	ErrDuplicateAlgoID = errors.New("grimoire: duplicate algo id")

	// ErrLayoutInvariant is returned when a decoded container's entries
	// reference out-of-range string ids, or when a decoded Archive's entry
	// data ranges overlap or exceed the data region.
	ErrLayoutInvariant = errors.New("grimoire: layout invariant violated")
)
