package grimoire

import "log/slog"

// readerConfig holds configuration for a Reader, assembled from
// ReaderOptions.
type readerConfig struct {
	magic           [4]byte
	checksum        ChecksumHook
	compression     []CompressionHook
	indexCrypto     IndexCryptoHook
	pathHash        PathHashFunc
	caseInsensitive bool
	useMmap         bool
	logger          *slog.Logger
}

// ReaderOption configures a Reader.
type ReaderOption func(*readerConfig)

// WithReaderMagic validates the container's magic against the given
// value instead of DefaultMagic.
func WithReaderMagic(magic [4]byte) ReaderOption {
	return func(c *readerConfig) { c.magic = magic }
}

// WithReaderChecksumHook sets the ChecksumHook used to verify entry
// payloads and Manifest files. It must match the container's recorded
// ChecksumAlgoID for verification to succeed.
func WithReaderChecksumHook(hook ChecksumHook) ReaderOption {
	return func(c *readerConfig) { c.checksum = hook }
}

// WithReaderCompressionHooks registers CompressionHooks available to
// decode entries. A container referencing an algo_id with no matching
// hook fails with ErrUnknownAlgoID when that entry is read.
func WithReaderCompressionHooks(hooks ...CompressionHook) ReaderOption {
	return func(c *readerConfig) { c.compression = append(c.compression, hooks...) }
}

// WithReaderIndexCryptoHook sets the IndexCryptoHook used to decrypt the
// index's string tables. A container whose IndexCryptoID is non-zero,
// opened without a hook of that AlgoID, still opens, but ListAll and
// ExtractAll fail with ErrIndexNotDecrypted.
func WithReaderIndexCryptoHook(hook IndexCryptoHook) ReaderOption {
	return func(c *readerConfig) { c.indexCrypto = hook }
}

// WithReaderPathHashFunc sets the path-hash function used for lookups.
// Its AlgoID must match the container's recorded PathHashAlgoID; Open
// fails otherwise. Defaults to DefaultPathHash() if unset.
func WithReaderPathHashFunc(fn PathHashFunc) ReaderOption {
	return func(c *readerConfig) { c.pathHash = fn }
}

// WithReaderCaseInsensitivePaths lower-cases lookup paths during
// canonicalization, matching a container built with
// WithCaseInsensitivePaths.
func WithReaderCaseInsensitivePaths(enabled bool) ReaderOption {
	return func(c *readerConfig) { c.caseInsensitive = enabled }
}

// WithReaderMmap requests that the container file be memory-mapped for
// data-region reads when the platform supports it. Falls back to positional reads
// transparently when unsupported.
func WithReaderMmap(enabled bool) ReaderOption {
	return func(c *readerConfig) { c.useMmap = enabled }
}

// WithReaderLogger sets the logger for open and read diagnostics. If
// unset, logging is disabled.
func WithReaderLogger(logger *slog.Logger) ReaderOption {
	return func(c *readerConfig) { c.logger = logger }
}

func newReaderConfig(opts []ReaderOption) readerConfig {
	cfg := readerConfig{magic: DefaultMagic, pathHash: DefaultPathHash()}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c *readerConfig) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}
