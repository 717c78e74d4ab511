// Package grimoire implements GrimoireVFS: a self-contained binary
// container format and the engines that produce and consume it.
//
// A container is either a Manifest, a catalog of file metadata (path,
// size, checksum) for verifying files already present on disk, or an
// Archive, the same catalog plus embedded file payloads for packaging and
// distribution. Both modes share one on-disk layout: a FileHeader, an
// index region (a hash-sorted entry table plus string tables that may be
// encrypted, leaving hash-keyed lookups available even without the
// decryption key), and, in Archive mode, a data region of concatenated
// packed payloads.
//
// Concrete checksum, compression, and index-encryption algorithms are
// injected through the ChecksumHook, CompressionHook, and IndexCryptoHook
// interfaces rather than hard-coded; Writer and Reader index the supplied
// hooks by algo_id. Reference implementations for testing are in
// hooks_builtin.go.
//
// Writer stages entries in memory and emits a container in one pass at
// Build; the format is not mutable in place and the writer is not safe
// for concurrent staging. Reader opens a container for random-access
// lookup by path hash; once its index is decoded, a Reader is safe for
// concurrent use by multiple goroutines.
package grimoire
