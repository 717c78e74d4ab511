package grimoire

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"os"
	"path"
	"runtime"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
	"golang.org/x/sync/singleflight"

	"github.com/Virace/GrimoireVFS/internal/codec"
	"github.com/Virace/GrimoireVFS/internal/mmapfile"
	"github.com/Virace/GrimoireVFS/internal/pathdict"
	"github.com/Virace/GrimoireVFS/internal/pipeline"
	"github.com/Virace/GrimoireVFS/internal/progress"
	"github.com/Virace/GrimoireVFS/internal/walkutil"
)

// resolvedEntry pairs a decoded EntryRecord with its reconstructed
// vfs-path, in on-disk (path_hash-sorted) order.
type resolvedEntry struct {
	rec  codec.EntryRecord
	path string
}

// Reader opens a container for lookup and extraction. Once Open returns,
// a Reader is safe for concurrent use by multiple goroutines: all
// state after open is immutable, and reads go through os.File.ReadAt or
// a read-only mmap.
type Reader struct {
	f       *os.File
	cfg     readerConfig
	header  codec.FileHeader
	compReg *compressionRegistry
	entries []resolvedEntry

	// indexDecoded is false when the container's index-crypto is active and
	// no matching IndexCryptoHook was supplied at Open. Entries are still
	// available by path_hash (ListHashes, and Read/Exists/GetEntry given an
	// already-known vfs-path), but operations needing string-table content
	// (ListAll, ExtractAll) fail with ErrIndexNotDecrypted, and find cannot
	// disambiguate hash collisions by full path.
	indexDecoded bool

	dataBase int64
	mapping  *mmapfile.Mapping

	// reads collapses concurrent Read calls for the same entry (path_hash and
	// data offset) and verify setting into one decode.
	reads singleflight.Group
}

// Open validates and opens the container at path: it checks
// magic, header checksum, and version; decodes (and, if encrypted,
// decrypts) the index; and resolves every entry's path from the
// dir/name/ext string tables.
func Open(containerPath string, opts ...ReaderOption) (*Reader, error) {
	cfg := newReaderConfig(opts)
	compReg, err := newCompressionRegistry(cfg.compression)
	if err != nil {
		return nil, err
	}

	f, err := os.Open(containerPath) //nolint:gosec // caller-controlled container path is intentional
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrLocalIoError, containerPath, err) //nolint:errorlint // wrapping os error as detail text
	}

	r := &Reader{f: f, cfg: cfg, compReg: compReg}
	if err := r.open(); err != nil {
		_ = f.Close() //nolint:errcheck // best-effort cleanup on open failure
		cfg.log().Warn("grimoire: open failed", "path", containerPath, "error", err)
		return nil, err
	}
	cfg.log().Debug("grimoire: opened", "path", containerPath, "mode", r.header.Mode, "entries", len(r.entries), "index_decoded", r.indexDecoded)
	return r, nil
}

func (r *Reader) open() error {
	headerBuf := make([]byte, codec.FileHeaderSize)
	if _, err := r.f.ReadAt(headerBuf, 0); err != nil {
		return fmt.Errorf("%w: read header: %v", ErrHeaderCorrupt, err) //nolint:errorlint // wrapping os error as detail text
	}
	header, err := codec.DecodeFileHeader(headerBuf, r.cfg.magic)
	if err != nil {
		return err
	}
	if header.PathHashAlgoID != r.cfg.pathHash.AlgoID {
		return fmt.Errorf("%w: path hash algo %d (reader configured with %d)", ErrUnknownAlgoID, header.PathHashAlgoID, r.cfg.pathHash.AlgoID)
	}
	r.header = header

	indexBuf := make([]byte, header.IndexLength)
	if _, err := r.f.ReadAt(indexBuf, int64(header.IndexOffset)); err != nil { //nolint:gosec // offsets are bounded by file size
		return fmt.Errorf("%w: read index: %v", ErrHeaderCorrupt, err) //nolint:errorlint // wrapping os error as detail text
	}

	// IndexHeader and the EntryTable are always plaintext; only the
	// StringTables region may be ciphertext (see codec.IndexHeader's doc
	// comment). This lets hash-keyed reads work even when the container's
	// index-crypto hook isn't supplied to Open.
	indexHeader, err := codec.DecodeIndexHeader(indexBuf)
	if err != nil {
		return err
	}
	off := codec.IndexHeaderSize

	tablesPlainLen := int(indexHeader.DirTableLen) + int(indexHeader.NameTableLen) + int(indexHeader.ExtTableLen)
	tablesRegionLen := tablesPlainLen
	if header.IndexCryptoID != 0 {
		tablesRegionLen = int(indexHeader.CryptoLen)
	}
	if off+tablesRegionLen > len(indexBuf) {
		return fmt.Errorf("%w: string tables truncated", ErrHeaderCorrupt)
	}
	tablesRegion := indexBuf[off : off+tablesRegionLen]
	off += tablesRegionLen

	r.indexDecoded = true
	var dirTable, nameTable, extTable []string
	if header.IndexCryptoID != 0 {
		if r.cfg.indexCrypto == nil || r.cfg.indexCrypto.AlgoID() != header.IndexCryptoID {
			r.indexDecoded = false
		} else {
			dec, err := r.cfg.indexCrypto.Decrypt(tablesRegion)
			if err != nil {
				return fmt.Errorf("%w: %v", ErrIndexDecryptError, err) //nolint:errorlint // wrapping hook error as detail text
			}
			if len(dec) != tablesPlainLen {
				return fmt.Errorf("%w: decrypted string tables have wrong length", ErrIndexDecryptError)
			}
			tablesRegion = dec
		}
	}
	if r.indexDecoded {
		toff := 0
		dirTable, err = pathdict.ParseTable(tablesRegion[toff : toff+int(indexHeader.DirTableLen)])
		if err != nil {
			return err
		}
		toff += int(indexHeader.DirTableLen)
		nameTable, err = pathdict.ParseTable(tablesRegion[toff : toff+int(indexHeader.NameTableLen)])
		if err != nil {
			return err
		}
		toff += int(indexHeader.NameTableLen)
		extTable, err = pathdict.ParseTable(tablesRegion[toff : toff+int(indexHeader.ExtTableLen)])
		if err != nil {
			return err
		}
	}

	checksumSize := int(indexHeader.ChecksumSize)
	recordSize := codec.EntryFixedSize + checksumSize
	entries := make([]resolvedEntry, 0, indexHeader.EntryCount)
	for i := uint32(0); i < indexHeader.EntryCount; i++ {
		if off+recordSize > len(indexBuf) {
			return fmt.Errorf("%w: entry table truncated", ErrHeaderCorrupt)
		}
		rec, err := codec.DecodeEntryRecord(indexBuf[off:off+recordSize], checksumSize)
		if err != nil {
			return err
		}
		off += recordSize
		var vfsPath string
		if r.indexDecoded {
			if int(rec.DirID) >= len(dirTable) || int(rec.NameID) >= len(nameTable) || int(rec.ExtID) >= len(extTable) {
				return fmt.Errorf("%w: entry references out-of-range string id", ErrLayoutInvariant)
			}
			vfsPath = pathdict.Join(dirTable[rec.DirID], nameTable[rec.NameID], extTable[rec.ExtID])
		}
		entries = append(entries, resolvedEntry{rec: rec, path: vfsPath})
	}
	r.entries = entries

	if header.Mode == ModeArchive {
		r.dataBase = int64(header.DataOffset) + codec.DataHeaderSize //nolint:gosec // offsets are bounded by file size
		payloadLen := int64(header.DataLength) - codec.DataHeaderSize //nolint:gosec // see above
		if payloadLen < 0 {
			return fmt.Errorf("%w: data region shorter than its header", ErrLayoutInvariant)
		}
		payload := uint64(payloadLen) //nolint:gosec // non-negative, checked above
		var prevEnd uint64
		for _, e := range r.entries {
			if e.rec.DataOffset < prevEnd || e.rec.DataOffset > payload || e.rec.PackedSize > payload-e.rec.DataOffset {
				return fmt.Errorf("%w: entry data range overlaps or exceeds the data region", ErrLayoutInvariant)
			}
			prevEnd = e.rec.DataOffset + e.rec.PackedSize
		}
		if r.cfg.useMmap && mmapfile.Supported && payloadLen > 0 {
			// readPacked reads through the mapping at r.dataBase+entry offset
			// via ReadAt, falling back to positional os.File reads when Open
			// fails (e.g. an unsupported platform at runtime).
			if m, err := mmapfile.Open(r.f.Name()); err == nil {
				r.mapping = m
			}
		}
	}
	return nil
}

// Mode reports whether the container is a Manifest or Archive.
func (r *Reader) Mode() Mode { return r.header.Mode }

// EntryCount returns the number of entries in the container.
func (r *Reader) EntryCount() int { return len(r.entries) }

// Close releases the Reader's underlying file handle and mapping.
func (r *Reader) Close() error {
	if r.mapping != nil {
		_ = r.mapping.Close() //nolint:errcheck // best-effort unmap before closing the file
	}
	return r.f.Close()
}

// find locates vfsPath by binary-searching the path_hash-sorted entry
// table, disambiguating hash collisions by full-path comparison.
// When the index's string tables are not decoded (encrypted, no matching
// hook), full-path disambiguation is unavailable and the first entry with
// a matching hash is returned instead. That is correct for the common
// already-known-path case, but cannot break a genuine hash collision.
func (r *Reader) find(vfsPath string) (*resolvedEntry, error) {
	canon := pathdict.Canonicalize(vfsPath, r.cfg.caseInsensitive)
	hash := r.cfg.pathHash.Hash(canon)
	lo := sort.Search(len(r.entries), func(i int) bool { return r.entries[i].rec.PathHash >= hash })
	if !r.indexDecoded {
		if lo < len(r.entries) && r.entries[lo].rec.PathHash == hash {
			return &r.entries[lo], nil
		}
		return nil, fmt.Errorf("%w: %s", ErrNotFound, canon)
	}
	for i := lo; i < len(r.entries) && r.entries[i].rec.PathHash == hash; i++ {
		if r.entries[i].path == canon {
			return &r.entries[i], nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, canon)
}

// Exists reports whether vfsPath has an entry.
func (r *Reader) Exists(vfsPath string) bool {
	_, err := r.find(vfsPath)
	return err == nil
}

// GetEntry returns the logical Entry for vfsPath.
func (r *Reader) GetEntry(vfsPath string) (Entry, error) {
	e, err := r.find(vfsPath)
	if err != nil {
		return Entry{}, err
	}
	return Entry{
		Path:              e.path,
		RawSize:           e.rec.RawSize,
		PackedSize:        e.rec.PackedSize,
		CompressionAlgoID: e.rec.AlgoID,
		Checksum:          e.rec.Checksum,
		DataOffset:        e.rec.DataOffset,
	}, nil
}

// ListAll iterates every entry's logical Entry in on-disk (path_hash)
// order. It fails with ErrIndexNotDecrypted when the container's index is
// encrypted and no matching IndexCryptoHook was supplied to Open.
func (r *Reader) ListAll() (iter.Seq[Entry], error) {
	if !r.indexDecoded {
		return nil, ErrIndexNotDecrypted
	}
	return func(yield func(Entry) bool) {
		for _, e := range r.entries {
			entry := Entry{
				Path:              e.path,
				RawSize:           e.rec.RawSize,
				PackedSize:        e.rec.PackedSize,
				CompressionAlgoID: e.rec.AlgoID,
				Checksum:          e.rec.Checksum,
				DataOffset:        e.rec.DataOffset,
			}
			if !yield(entry) {
				return
			}
		}
	}, nil
}

// ListHashes iterates every entry's path_hash in on-disk (sorted) order.
func (r *Reader) ListHashes() iter.Seq[uint64] {
	return func(yield func(uint64) bool) {
		for _, e := range r.entries {
			if !yield(e.rec.PathHash) {
				return
			}
		}
	}
}

// readPacked reads an entry's packed payload bytes from the data region,
// via the mmap ReaderAt if configured and supported, otherwise a
// positional os.File read. Both paths read through the same io.ReaderAt
// shape at r.dataBase+entry offset.
func (r *Reader) readPacked(e *resolvedEntry) ([]byte, error) {
	at := io.ReaderAt(r.f)
	if r.mapping != nil {
		at = r.mapping
	}
	buf := make([]byte, e.rec.PackedSize)
	if _, err := at.ReadAt(buf, r.dataBase+int64(e.rec.DataOffset)); err != nil { //nolint:gosec // offsets are bounded by file size
		return nil, fmt.Errorf("%w: read %s: %v", ErrLocalIoError, e.path, err) //nolint:errorlint // wrapping os error as detail text
	}
	return buf, nil
}

// readOptions configures a single Read/Open call.
type readOptions struct {
	verify *bool // nil means "default": on when a matching checksum hook is configured
}

// ReadOption configures one Read or Open call.
type ReadOption func(*readOptions)

// WithVerify overrides whether Read/Open checksums the decompressed bytes
// against the stored checksum. Without this option the default applies:
// verification runs when the Reader's configured ChecksumHook matches the
// container's recorded ChecksumAlgoID, and is skipped otherwise.
func WithVerify(verify bool) ReadOption {
	return func(o *readOptions) { o.verify = &verify }
}

func newReadOptions(opts []ReadOption) readOptions {
	var o readOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Read returns the decompressed bytes of the Archive entry at vfsPath.
// By default the bytes are checksum-verified against the stored digest
// when a matching ChecksumHook is configured; pass WithVerify to force
// verification on or off for this call.
func (r *Reader) Read(ctx context.Context, vfsPath string, opts ...ReadOption) ([]byte, error) {
	if r.header.Mode != ModeArchive {
		return nil, ErrModeMismatch
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e, err := r.find(vfsPath)
	if err != nil {
		return nil, err
	}

	o := newReadOptions(opts)
	var chk pipeline.Checksum
	verify := false
	if r.cfg.checksum != nil && r.cfg.checksum.AlgoID() == r.header.ChecksumAlgoID {
		chk = r.cfg.checksum
		verify = true
	}
	if o.verify != nil {
		verify = *o.verify
	}

	// Keyed by hash and data offset rather than path: entry paths are empty
	// when the index's string tables are encrypted and undecrypted, and
	// distinct entries must not collapse into one flight.
	key := fmt.Sprintf("%d\x00%d\x00%t", e.rec.PathHash, e.rec.DataOffset, verify)
	v, err, _ := r.reads.Do(key, func() (any, error) {
		packed, err := r.readPacked(e)
		if err != nil {
			return nil, err
		}
		var comp pipeline.Compressor
		if e.rec.AlgoID != 0 {
			hook, ok := r.compReg.get(e.rec.AlgoID)
			if !ok {
				return nil, fmt.Errorf("%w: %d", ErrUnknownAlgoID, e.rec.AlgoID)
			}
			comp = hook
		}
		raw, err := pipeline.Read(packed, e.rec.RawSize, e.rec.AlgoID, comp, chk, e.rec.Checksum, verify)
		if errors.Is(err, pipeline.ErrChecksumMismatch) {
			return nil, fmt.Errorf("%w: %s", ErrChecksumMismatch, e.path)
		}
		return raw, err
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil //nolint:forcetypeassert // reads.Do's fn always returns []byte on success
}

// Open returns a streaming reader over an Archive entry's decompressed
// bytes. The full entry is materialized in memory before the returned
// ReadCloser is handed back, matching the Writer's whole-entry staging
// model; there is no partial/streaming decompression path. opts are
// forwarded to Read, so WithVerify applies here too.
func (r *Reader) Open(ctx context.Context, vfsPath string, opts ...ReadOption) (io.ReadCloser, error) {
	data, err := r.Read(ctx, vfsPath, opts...)
	if err != nil {
		return nil, err
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

// VerifyFile checksums the local file at localPath and compares it
// against the Manifest entry recorded for vfsPath.
func (r *Reader) VerifyFile(vfsPath, localPath string) (bool, error) {
	if r.header.Mode != ModeManifest {
		return false, ErrModeMismatch
	}
	if r.cfg.checksum == nil {
		return false, fmt.Errorf("grimoire: verify file: %w: no checksum hook configured", ErrUnknownAlgoID)
	}
	e, err := r.find(vfsPath)
	if err != nil {
		return false, err
	}
	raw, err := os.ReadFile(localPath) //nolint:gosec // caller-controlled local path is intentional
	if err != nil {
		return false, fmt.Errorf("%w: %s: %v", ErrLocalIoError, localPath, err) //nolint:errorlint // wrapping os error as detail text
	}
	sum, err := r.cfg.checksum.Compute(raw)
	if err != nil {
		return false, fmt.Errorf("grimoire: verify file: %w", err)
	}
	return bytesEqual(sum, e.rec.Checksum), nil
}

func bytesEqual(a, b []byte) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

// ExtractAll writes every Archive entry under destDir, mirroring each
// vfs-path as a relative file path, with batch error and progress
// semantics matching the Writer's staging operations.
func (r *Reader) ExtractAll(ctx context.Context, destDir string, opts ...BatchOption) (BatchResult, error) {
	if r.header.Mode != ModeArchive {
		return BatchResult{}, ErrModeMismatch
	}
	if !r.indexDecoded {
		return BatchResult{}, ErrIndexNotDecrypted
	}
	o := newBatchOptions(opts)
	var excl *walkutil.GlobExcluder
	if len(o.excludes) > 0 {
		excl = walkutil.NewGlobExcluder(o.excludes, false)
	}

	start := time.Now()
	total := uint64(len(r.entries)) //nolint:gosec // entry counts are bounded well under 2^63
	emitter := progress.New(o.progress, total)

	workers := o.concurrency
	switch {
	case workers == 0:
		workers = runtime.GOMAXPROCS(0)
	case workers < 0:
		workers = 1
	}

	var (
		mu     sync.Mutex
		result BatchResult
		done   uint64
	)
	g, gctx := errgroup.WithContext(ctx)
	sem := semaphore.NewWeighted(int64(workers))

	for i := range r.entries {
		e := &r.entries[i]
		rel := path.Clean(trimLeadingSlash(e.path))
		if excl != nil && excl.Excluded(rel) {
			mu.Lock()
			done++
			emitter.Report(done, e.path, result.TotalBytes, done == total)
			mu.Unlock()
			continue
		}

		g.Go(func() error {
			if err := sem.Acquire(gctx, 1); err != nil {
				return nil //nolint:nilerr // group already cancelled; let already-running work finish cleanly
			}
			defer sem.Release(1)

			extractErr := r.extractOne(gctx, e, destDir, rel)

			mu.Lock()
			if extractErr == nil {
				result.SuccessCount++
				result.TotalBytes += e.rec.RawSize
			} else {
				result.FailedCount++
				result.FailedFiles = append(result.FailedFiles, FailedFile{Path: e.path, ErrorKind: extractErr, Detail: extractErr.Error()})
			}
			done++
			emitter.Report(done, e.path, result.TotalBytes, done == total)
			mu.Unlock()

			if extractErr != nil {
				switch o.onError {
				case OnErrorRaise:
					return extractErr
				case OnErrorAbort:
					return ErrBatchAborted
				case OnErrorSkip:
				}
			}
			return nil
		})
	}

	err := g.Wait()
	result.Elapsed = time.Since(start)
	return result, err
}

func (r *Reader) extractOne(ctx context.Context, e *resolvedEntry, destDir, rel string) error {
	data, err := r.Read(ctx, e.path)
	if err != nil {
		return err
	}
	target := path.Join(destDir, rel)
	if err := os.MkdirAll(path.Dir(target), 0o755); err != nil {
		return fmt.Errorf("%w: mkdir %s: %v", ErrLocalIoError, path.Dir(target), err) //nolint:errorlint // wrapping os error as detail text
	}
	if err := os.WriteFile(target, data, 0o644); err != nil { //nolint:gosec // extracted file permissions mirror typical archive tooling
		return fmt.Errorf("%w: write %s: %v", ErrLocalIoError, target, err) //nolint:errorlint // wrapping os error as detail text
	}
	return nil
}

func trimLeadingSlash(p string) string {
	if len(p) > 0 && p[0] == '/' {
		return p[1:]
	}
	return p
}
