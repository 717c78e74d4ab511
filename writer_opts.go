package grimoire

import "log/slog"

// DefaultMaxFiles caps how many entries a Writer stages before Build, in
// the absence of a WithMaxFiles override.
const DefaultMaxFiles = 200_000

// writerConfig holds configuration for a Writer, assembled from
// WriterOptions.
type writerConfig struct {
	magic           [4]byte
	checksum        ChecksumHook
	compression     []CompressionHook
	indexCrypto     IndexCryptoHook
	pathHash        PathHashFunc
	caseInsensitive bool
	maxFiles        int
	logger          *slog.Logger
}

// WriterOption configures a Writer.
type WriterOption func(*writerConfig)

// WithMagic sets the container's 4-byte magic. Defaults to DefaultMagic
// ("GRIM") if unset.
func WithMagic(magic [4]byte) WriterOption {
	return func(c *writerConfig) { c.magic = magic }
}

// WithChecksumHook sets the single active ChecksumHook for the container.
// The hook's algo_id is recorded in the FileHeader. A nil hook (the
// default) disables checksums.
func WithChecksumHook(hook ChecksumHook) WriterOption {
	return func(c *writerConfig) { c.checksum = hook }
}

// WithCompressionHooks registers CompressionHooks available to AddFile's
// algoID parameter. Construction fails with ErrDuplicateAlgoID if two
// hooks share an id.
func WithCompressionHooks(hooks ...CompressionHook) WriterOption {
	return func(c *writerConfig) { c.compression = append(c.compression, hooks...) }
}

// WithIndexCryptoHook sets the IndexCryptoHook used to encrypt the index
// region. A nil hook (the default) leaves the index unencrypted.
func WithIndexCryptoHook(hook IndexCryptoHook) WriterOption {
	return func(c *writerConfig) { c.indexCrypto = hook }
}

// WithPathHashFunc sets the path-hash function. Defaults to
// DefaultPathHash() if unset.
func WithPathHashFunc(fn PathHashFunc) WriterOption {
	return func(c *writerConfig) { c.pathHash = fn }
}

// WithCaseInsensitivePaths lower-cases vfs-paths during canonicalization,
// for containers modeling case-insensitive filesystems.
func WithCaseInsensitivePaths(enabled bool) WriterOption {
	return func(c *writerConfig) { c.caseInsensitive = enabled }
}

// WithMaxFiles overrides the staged-entry cap (DefaultMaxFiles absent this
// option); a negative value disables the cap entirely.
func WithMaxFiles(n int) WriterOption {
	return func(c *writerConfig) { c.maxFiles = n }
}

// WithWriterLogger sets the logger for staging and build diagnostics. If
// unset, logging is disabled.
func WithWriterLogger(logger *slog.Logger) WriterOption {
	return func(c *writerConfig) { c.logger = logger }
}

func newWriterConfig(opts []WriterOption) writerConfig {
	cfg := writerConfig{
		magic:    DefaultMagic,
		pathHash: DefaultPathHash(),
		maxFiles: DefaultMaxFiles,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	return cfg
}

func (c *writerConfig) log() *slog.Logger {
	if c.logger == nil {
		return slog.New(slog.DiscardHandler)
	}
	return c.logger
}
