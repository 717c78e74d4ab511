package grimoire

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/Virace/GrimoireVFS/internal/codec"
	"github.com/Virace/GrimoireVFS/internal/pathdict"
	"github.com/Virace/GrimoireVFS/internal/pipeline"
	"github.com/Virace/GrimoireVFS/internal/progress"
	"github.com/Virace/GrimoireVFS/internal/walkutil"
)

// stagedEntry is one in-memory entry staged by a Writer before Build.
type stagedEntry struct {
	vfsPath    string
	dir        string
	name       string
	ext        string
	rawSize    uint64
	packedSize uint64
	algoID     uint16
	checksum   []byte
	packed     []byte // nil in Manifest mode
	insertion  int
}

// Writer stages entries in memory and emits a container in one pass at
// Build. A Writer is not safe for concurrent use by multiple
// callers.
type Writer struct {
	outputPath string
	mode       Mode
	cfg        writerConfig
	compReg    *compressionRegistry

	dirInterner  *pathdict.Interner
	nameInterner *pathdict.Interner
	extInterner  *pathdict.Interner

	entries  []stagedEntry
	pathSeen map[string]bool
}

// NewWriter constructs a Writer that will emit outputPath in the given
// mode once Build is called. Construction fails if two hooks of the same
// kind share an algo_id.
func NewWriter(outputPath string, mode Mode, opts ...WriterOption) (*Writer, error) {
	cfg := newWriterConfig(opts)
	compReg, err := newCompressionRegistry(cfg.compression)
	if err != nil {
		return nil, err
	}
	return &Writer{
		outputPath:   outputPath,
		mode:         mode,
		cfg:          cfg,
		compReg:      compReg,
		dirInterner:  pathdict.NewInterner(),
		nameInterner: pathdict.NewInterner(),
		extInterner:  pathdict.NewInterner(),
		pathSeen:     make(map[string]bool),
	}, nil
}

// AddFile stages the local file at localPath under vfsPath. algoID
// selects a registered CompressionHook (0 = stored); in Manifest mode
// algoID is ignored since no payload is stored.
//
// In Manifest mode, when the configured ChecksumHook also implements
// BatchChecksumHook, the file is hashed directly via ComputeFile instead
// of being read fully into memory first.
func (w *Writer) AddFile(localPath, vfsPath string, algoID uint16) error {
	if w.mode == ModeManifest {
		if bh, ok := w.cfg.checksum.(BatchChecksumHook); ok {
			info, err := os.Stat(localPath)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrLocalIoError, localPath, err) //nolint:errorlint // wrapping os error as detail text
			}
			sum, err := bh.ComputeFile(localPath)
			if err != nil {
				return fmt.Errorf("%w: %s: %v", ErrLocalIoError, localPath, err) //nolint:errorlint // wrapping os error as detail text
			}
			return w.stagePrecomputed(vfsPath, sum, uint64(info.Size())) //nolint:gosec // file sizes are bounded well under 2^63
		}
	}
	raw, err := os.ReadFile(localPath) //nolint:gosec // caller-controlled local path is intentional
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrLocalIoError, localPath, err) //nolint:errorlint // wrapping os error as detail text
	}
	return w.stageBytes(vfsPath, raw, algoID)
}

func (w *Writer) stageBytes(vfsPath string, raw []byte, algoID uint16) error {
	canon := pathdict.Canonicalize(vfsPath, w.cfg.caseInsensitive)
	if w.pathSeen[canon] {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, canon)
	}
	if w.cfg.maxFiles >= 0 && len(w.entries) >= w.cfg.maxFiles {
		return fmt.Errorf("grimoire: max files (%d) exceeded", w.cfg.maxFiles)
	}

	entry := stagedEntry{vfsPath: canon, insertion: len(w.entries)}
	entry.dir, entry.name, entry.ext = pathdict.Split(canon)

	if w.mode == ModeManifest {
		entry.rawSize = uint64(len(raw)) //nolint:gosec // file sizes are bounded well under 2^63 in practice
		entry.packedSize = entry.rawSize
		entry.algoID = 0
		if w.cfg.checksum != nil {
			sum, err := w.cfg.checksum.Compute(raw)
			if err != nil {
				return fmt.Errorf("grimoire: checksum %s: %w", canon, err)
			}
			entry.checksum = sum
		}
	} else {
		var comp pipeline.Compressor
		if algoID != 0 {
			hook, ok := w.compReg.get(algoID)
			if !ok {
				return fmt.Errorf("%w: %d", ErrUnknownAlgoID, algoID)
			}
			comp = hook
		}
		var chk pipeline.Checksum
		if w.cfg.checksum != nil {
			chk = w.cfg.checksum
		}
		res, err := pipeline.Write(raw, algoID, comp, chk)
		if err != nil {
			return fmt.Errorf("grimoire: stage %s: %w", canon, err)
		}
		entry.rawSize = res.RawSize
		entry.packedSize = res.PackedSize
		entry.algoID = algoID
		entry.checksum = res.Checksum
		entry.packed = res.Packed
	}

	w.dirInterner.Intern(entry.dir)
	w.nameInterner.Intern(entry.name)
	w.extInterner.Intern(entry.ext)

	w.pathSeen[canon] = true
	w.entries = append(w.entries, entry)
	return nil
}

// AddDir recursively stages local dir's files, mapped to
// mountPoint/<rel-path> with forward-slash canonicalization.
func (w *Writer) AddDir(localDir, mountPoint string, algoID uint16) error {
	return walkutil.Walk(context.Background(), localDir, nil, func(e walkutil.Entry) error {
		return w.AddFile(e.AbsPath, filepath.ToSlash(mountPoint)+"/"+e.RelPath, algoID)
	})
}

// BatchFileItem is one (local path, vfs-path) pair for AddFilesBatch.
type BatchFileItem struct {
	LocalPath string
	VfsPath   string
	AlgoID    uint16
}

// AddFilesBatch stages each item, routing per-file failures through the
// configured OnErrorPolicy and emitting rate-limited progress.
func (w *Writer) AddFilesBatch(ctx context.Context, items []BatchFileItem, opts ...BatchOption) (BatchResult, error) {
	o := newBatchOptions(opts)
	start := time.Now()
	emitter := progress.New(o.progress, uint64(len(items))) //nolint:gosec // batch sizes are bounded well under 2^63

	var result BatchResult
	for i, item := range items {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		err := w.AddFile(item.LocalPath, item.VfsPath, item.AlgoID)
		if err == nil {
			result.SuccessCount++
			if st, statErr := os.Stat(item.LocalPath); statErr == nil {
				result.TotalBytes += uint64(st.Size()) //nolint:gosec // file sizes are bounded well under 2^63
			}
		} else {
			if !w.handleBatchError(&result, item.VfsPath, err, o.onError) {
				result.Elapsed = time.Since(start)
				return result, err
			}
			if o.onError == OnErrorAbort {
				result.Elapsed = time.Since(start)
				return result, ErrBatchAborted
			}
		}
		emitter.Report(uint64(i+1), item.VfsPath, result.TotalBytes, i == len(items)-1) //nolint:gosec // batch indices are bounded well under 2^63
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

// AddDirBatch walks localDir, staging each non-excluded file under
// mountPoint, with the same error and progress semantics as
// AddFilesBatch.
func (w *Writer) AddDirBatch(ctx context.Context, localDir, mountPoint string, algoID uint16, opts ...BatchOption) (BatchResult, error) {
	o := newBatchOptions(opts)
	var excl walkutil.Excluder
	if len(o.excludes) > 0 {
		excl = walkutil.NewGlobExcluder(o.excludes, w.cfg.caseInsensitive)
	}

	var items []BatchFileItem
	walkErr := walkutil.Walk(ctx, localDir, excl, func(e walkutil.Entry) error {
		items = append(items, BatchFileItem{
			LocalPath: e.AbsPath,
			VfsPath:   filepath.ToSlash(mountPoint) + "/" + e.RelPath,
			AlgoID:    algoID,
		})
		return nil
	})
	if walkErr != nil {
		return BatchResult{}, walkErr
	}
	return w.AddFilesBatch(ctx, items, opts...)
}

// AddDirBatchWithProvider walks localDir like AddDirBatch, but first asks
// provider to compute checksums in bulk, falling back to per-file hashing
// for any path the provider didn't cover or when the provider itself
// fails. In Archive mode, or with a nil provider, it behaves exactly like
// AddDirBatch and the provider is not called.
func (w *Writer) AddDirBatchWithProvider(ctx context.Context, localDir, mountPoint string, algoID uint16, provider BatchDigestProvider, opts ...BatchOption) (BatchResult, error) {
	if w.mode != ModeManifest || provider == nil {
		return w.AddDirBatch(ctx, localDir, mountPoint, algoID, opts...)
	}

	o := newBatchOptions(opts)
	var excl walkutil.Excluder
	if len(o.excludes) > 0 {
		excl = walkutil.NewGlobExcluder(o.excludes, w.cfg.caseInsensitive)
	}

	var entries []walkutil.Entry
	if err := walkutil.Walk(ctx, localDir, excl, func(e walkutil.Entry) error {
		entries = append(entries, e)
		return nil
	}); err != nil {
		return BatchResult{}, err
	}

	localPaths := make([]string, len(entries))
	for i, e := range entries {
		localPaths[i] = e.AbsPath
	}
	sums, provErr := provider.ComputeFiles(ctx, localPaths)
	if provErr != nil {
		sums = nil // fall back to per-file hashing for every entry below
	}

	start := time.Now()
	emitter := progress.New(o.progress, uint64(len(entries))) //nolint:gosec // batch sizes are bounded well under 2^63
	var result BatchResult
	for i, e := range entries {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		vfsPath := filepath.ToSlash(mountPoint) + "/" + e.RelPath
		var err error
		if sum, ok := sums[e.AbsPath]; ok {
			err = w.stagePrecomputed(vfsPath, sum, uint64(e.Info.Size())) //nolint:gosec // file sizes are bounded well under 2^63
		} else {
			err = w.AddFile(e.AbsPath, vfsPath, algoID)
		}
		if err == nil {
			result.SuccessCount++
			result.TotalBytes += uint64(e.Info.Size()) //nolint:gosec // file sizes are bounded well under 2^63
		} else {
			if !w.handleBatchError(&result, vfsPath, err, o.onError) {
				result.Elapsed = time.Since(start)
				return result, err
			}
			if o.onError == OnErrorAbort {
				result.Elapsed = time.Since(start)
				return result, ErrBatchAborted
			}
		}
		emitter.Report(uint64(i+1), vfsPath, result.TotalBytes, i == len(entries)-1) //nolint:gosec // batch indices are bounded well under 2^63
	}
	result.Elapsed = time.Since(start)
	return result, nil
}

// stagePrecomputed stages a Manifest entry using an externally computed
// checksum, skipping the local read entirely.
func (w *Writer) stagePrecomputed(vfsPath string, checksum []byte, rawSize uint64) error {
	canon := pathdict.Canonicalize(vfsPath, w.cfg.caseInsensitive)
	if w.pathSeen[canon] {
		return fmt.Errorf("%w: %s", ErrDuplicatePath, canon)
	}
	if w.cfg.maxFiles >= 0 && len(w.entries) >= w.cfg.maxFiles {
		return fmt.Errorf("grimoire: max files (%d) exceeded", w.cfg.maxFiles)
	}
	entry := stagedEntry{vfsPath: canon, insertion: len(w.entries), rawSize: rawSize, packedSize: rawSize, checksum: checksum}
	entry.dir, entry.name, entry.ext = pathdict.Split(canon)
	w.dirInterner.Intern(entry.dir)
	w.nameInterner.Intern(entry.name)
	w.extInterner.Intern(entry.ext)
	w.pathSeen[canon] = true
	w.entries = append(w.entries, entry)
	return nil
}

// handleBatchError applies the OnErrorPolicy to a per-file failure.
// Returns false if the caller should return err immediately (OnErrorRaise).
func (w *Writer) handleBatchError(result *BatchResult, path string, err error, policy OnErrorPolicy) bool {
	if policy == OnErrorRaise {
		return false
	}
	result.FailedCount++
	result.FailedFiles = append(result.FailedFiles, FailedFile{
		Path:      path,
		ErrorKind: unwrapSentinel(err),
		Detail:    err.Error(),
	})
	return true
}

// unwrapSentinel maps an error to the sentinel from errors.go it matches,
// for FailedFile.ErrorKind, falling back to the error itself.
func unwrapSentinel(err error) error {
	for _, sentinel := range []error{
		ErrDuplicatePath, ErrLocalIoError, ErrUnknownAlgoID,
		ErrChecksumMismatch, ErrDecompressError,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return err
}

// Build finalizes the container at outputPath in two passes: first sort
// entries, lay out data offsets (Archive only), and serialize the index in
// memory, so the FileHeader's lengths and offsets are known; then write the
// FileHeader, the index, and (Archive only) the data region in file order.
// On any failure the partial output file is removed before the error is
// returned.
func (w *Writer) Build(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f, err := os.Create(w.outputPath) //nolint:gosec // caller-controlled output path is intentional
	if err != nil {
		return fmt.Errorf("grimoire: create %s: %w", w.outputPath, err)
	}

	if buildErr := w.build(f); buildErr != nil {
		_ = f.Close()               //nolint:errcheck // best-effort cleanup before removing the partial file
		_ = os.Remove(w.outputPath) //nolint:errcheck // best-effort cleanup of partial output
		w.cfg.log().Warn("grimoire: build failed, partial output removed", "path", w.outputPath, "error", buildErr)
		return buildErr
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()               //nolint:errcheck // best-effort cleanup before removing the partial file
		_ = os.Remove(w.outputPath) //nolint:errcheck // best-effort cleanup of partial output
		return fmt.Errorf("grimoire: sync %s: %w", w.outputPath, err)
	}
	return f.Close()
}

func (w *Writer) build(f *os.File) error {
	w.cfg.log().Debug("grimoire: build", "mode", w.mode, "entries", len(w.entries))
	sorted := make([]stagedEntry, len(w.entries))
	copy(sorted, w.entries)
	pathHash := w.cfg.pathHash.Hash
	hashes := make([]uint64, len(sorted))
	for i, e := range sorted {
		hashes[i] = pathHash(e.vfsPath)
	}
	order := make([]int, len(sorted))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		ia, ib := order[a], order[b]
		if hashes[ia] != hashes[ib] {
			return hashes[ia] < hashes[ib]
		}
		return sorted[ia].insertion < sorted[ib].insertion
	})

	checksumSize := 0
	if w.cfg.checksum != nil {
		checksumSize = int(w.cfg.checksum.OutputSize())
	}

	dirIDs := internIDs(w.dirInterner)
	nameIDs := internIDs(w.nameInterner)
	extIDs := internIDs(w.extInterner)

	dirTable, err := pathdict.Table(w.dirInterner.Strings())
	if err != nil {
		return err
	}
	nameTable, err := pathdict.Table(w.nameInterner.Strings())
	if err != nil {
		return err
	}
	extTable, err := pathdict.Table(w.extInterner.Strings())
	if err != nil {
		return err
	}

	var dataOffset uint64
	records := make([]codec.EntryRecord, len(order))
	for i, idx := range order {
		e := sorted[idx]
		records[i] = codec.EntryRecord{
			PathHash:   hashes[idx],
			DirID:      dirIDs[e.dir],
			NameID:     nameIDs[e.name],
			ExtID:      extIDs[e.ext],
			RawSize:    e.rawSize,
			PackedSize: e.packedSize,
			DataOffset: dataOffset,
			AlgoID:     e.algoID,
			Checksum:   e.checksum,
		}
		dataOffset += e.packedSize
	}
	totalPacked := dataOffset

	// StringTables are the only part of the index region that index-crypto
	// encrypts (see codec.IndexHeader's doc comment): IndexHeader and
	// EntryTable stay plaintext so hash-keyed lookups work on a Reader
	// opened without the crypto hook.
	tables := make([]byte, 0, len(dirTable)+len(nameTable)+len(extTable))
	tables = append(tables, dirTable...)
	tables = append(tables, nameTable...)
	tables = append(tables, extTable...)

	var cryptoLen uint32
	if w.cfg.indexCrypto != nil {
		enc, err := w.cfg.indexCrypto.Encrypt(tables)
		if err != nil {
			return fmt.Errorf("grimoire: encrypt index: %w", err)
		}
		tables = enc
		cryptoLen = uint32(len(enc)) //nolint:gosec // ciphertext sizes are bounded well under 2^32 in practice
	}

	indexHeader := codec.IndexHeader{
		EntryCount:     uint32(len(records)),  //nolint:gosec // entry counts are bounded well under 2^32 in practice
		ChecksumSize:   uint16(checksumSize),  //nolint:gosec // checksum sizes are small fixed hook outputs
		DirTableLen:    uint32(len(dirTable)), //nolint:gosec // table sizes are bounded well under 2^32 in practice
		NameTableLen:   uint32(len(nameTable)),
		ExtTableLen:    uint32(len(extTable)),
		EntryRecordLen: uint16(codec.EntryFixedSize + checksumSize), //nolint:gosec // bounded by checksum hook output size
		CryptoLen:      cryptoLen,
	}

	indexBuf := make([]byte, 0, codec.IndexHeaderSize+len(tables)+len(records)*(codec.EntryFixedSize+checksumSize))
	indexBuf = append(indexBuf, indexHeader.Encode()...)
	indexBuf = append(indexBuf, tables...)
	for _, r := range records {
		indexBuf = append(indexBuf, r.Encode(checksumSize)...)
	}

	header := codec.FileHeader{
		Magic:          w.cfg.magic,
		Version:        codec.FormatVersion,
		Mode:           w.mode,
		PathHashAlgoID: w.cfg.pathHash.AlgoID,
		IndexOffset:    codec.FileHeaderSize,
		IndexLength:    uint64(len(indexBuf)), //nolint:gosec // index sizes are bounded well under 2^63
	}
	if w.cfg.checksum != nil {
		header.ChecksumAlgoID = w.cfg.checksum.AlgoID()
	}
	if w.cfg.indexCrypto != nil {
		header.IndexCryptoID = w.cfg.indexCrypto.AlgoID()
	}

	if w.mode == ModeArchive {
		header.DataOffset = codec.FileHeaderSize + header.IndexLength
		header.DataLength = codec.DataHeaderSize + totalPacked
	}

	if _, err := f.Write(header.Encode()); err != nil {
		return fmt.Errorf("grimoire: write header: %w", err)
	}
	if _, err := f.Write(indexBuf); err != nil {
		return fmt.Errorf("grimoire: write index: %w", err)
	}

	if w.mode == ModeArchive {
		dataHeader := codec.DataHeader{TotalRawSize: sumRaw(sorted), TotalPackedSize: totalPacked}
		if _, err := f.Write(dataHeader.Encode()); err != nil {
			return fmt.Errorf("grimoire: write data header: %w", err)
		}
		for _, idx := range order {
			if _, err := f.Write(sorted[idx].packed); err != nil {
				return fmt.Errorf("grimoire: write data: %w", err)
			}
		}
	}

	w.cfg.log().Debug("grimoire: build complete", "index_bytes", len(indexBuf), "data_bytes", totalPacked)
	return nil
}

func internIDs(in *pathdict.Interner) map[string]uint32 {
	out := make(map[string]uint32, in.Len())
	for i, s := range in.Strings() {
		out[s] = uint32(i) //nolint:gosec // table sizes are bounded well under 2^32 in practice
	}
	return out
}

func sumRaw(entries []stagedEntry) uint64 {
	var total uint64
	for _, e := range entries {
		total += e.rawSize
	}
	return total
}
