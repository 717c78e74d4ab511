// Package pipeline applies the per-entry checksum/compression steps
// shared by the Writer's build pass and the Reader's read path.
//
// The checksum is always computed over uncompressed bytes, never the
// packed (possibly compressed) form, so a stored checksum does not depend
// on which compression algorithm packed the entry. Read decompresses a
// compressed entry on every call, whether or not verification is
// requested; verification runs over the decompressed bytes.
package pipeline

import "fmt"

// Checksum computes data's fixed-size digest. Write and Read take a nil
// Checksum to mean no checksum hook is active.
type Checksum interface {
	Compute(data []byte) ([]byte, error)
}

// Compressor compresses and decompresses one algo_id's payload encoding.
type Compressor interface {
	Compress(raw []byte) ([]byte, error)
	Decompress(packed []byte, rawSize uint64) ([]byte, error)
}

// WriteResult holds the outcome of staging one entry's bytes.
type WriteResult struct {
	RawSize    uint64
	PackedSize uint64
	Packed     []byte
	Checksum   []byte
}

// Write runs the write-path steps for one entry's raw bytes: optionally
// compress, then checksum the raw (not packed) bytes.
func Write(raw []byte, algoID uint16, compressor Compressor, checksum Checksum) (WriteResult, error) {
	res := WriteResult{RawSize: uint64(len(raw))} //nolint:gosec // entry sizes are bounds-checked by callers before staging
	packed := raw
	if algoID != 0 {
		if compressor == nil {
			return WriteResult{}, fmt.Errorf("pipeline: algo id %d: no compressor", algoID)
		}
		p, err := compressor.Compress(raw)
		if err != nil {
			return WriteResult{}, fmt.Errorf("pipeline: compress: %w", err)
		}
		packed = p
	}
	res.Packed = packed
	res.PackedSize = uint64(len(packed)) //nolint:gosec // see above
	if checksum != nil {
		sum, err := checksum.Compute(raw)
		if err != nil {
			return WriteResult{}, fmt.Errorf("pipeline: checksum: %w", err)
		}
		res.Checksum = sum
	}
	return res, nil
}

// Read runs the read-path steps: decompress the packed bytes (if
// the entry is compressed) and, when verify is requested and a checksum
// hook is active, compare the computed checksum of the raw bytes against
// expectedChecksum.
func Read(packed []byte, rawSize uint64, algoID uint16, compressor Compressor, checksum Checksum, expectedChecksum []byte, verify bool) ([]byte, error) {
	raw := packed
	if algoID != 0 {
		if compressor == nil {
			return nil, fmt.Errorf("pipeline: algo id %d: no compressor", algoID)
		}
		r, err := compressor.Decompress(packed, rawSize)
		if err != nil {
			return nil, fmt.Errorf("pipeline: decompress: %w", err)
		}
		raw = r
	}
	if verify && checksum != nil {
		sum, err := checksum.Compute(raw)
		if err != nil {
			return nil, fmt.Errorf("pipeline: checksum: %w", err)
		}
		if !bytesEqual(sum, expectedChecksum) {
			return nil, ErrChecksumMismatch
		}
	}
	return raw, nil
}

// ErrChecksumMismatch is returned by Read when verification fails.
var ErrChecksumMismatch = errChecksumMismatch{}

type errChecksumMismatch struct{}

func (errChecksumMismatch) Error() string { return "pipeline: checksum mismatch" }

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
