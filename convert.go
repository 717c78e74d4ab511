package grimoire

import (
	"context"
	"fmt"
)

// Convert builds a Manifest container at dstPath from the Archive
// container at srcPath, carrying over each entry's path, sizes, and
// checksum bytes while dropping the data region and compression
// entirely. The caller should pass a WithChecksumHook option whose AlgoID
// matches the source container's ChecksumAlgoID, since Convert copies
// the stored checksum bytes as-is rather than recomputing them from
// payload data that no longer exists after the conversion.
//
// Conversion is one-way: there is no inverse operation, since an Archive
// requires payload bytes a Manifest never stores.
func Convert(ctx context.Context, srcPath, dstPath string, opts ...WriterOption) error {
	src, err := Open(srcPath)
	if err != nil {
		return err
	}
	defer src.Close() //nolint:errcheck // read-only source, nothing to flush

	if src.Mode() != ModeArchive {
		return fmt.Errorf("grimoire: convert: %w", ErrModeMismatch)
	}

	w, err := NewWriter(dstPath, ModeManifest, opts...)
	if err != nil {
		return err
	}

	all, err := src.ListAll()
	if err != nil {
		return fmt.Errorf("grimoire: convert: %w", err)
	}
	for e := range all {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.stagePrecomputed(e.Path, e.Checksum, e.RawSize); err != nil {
			return fmt.Errorf("grimoire: convert %s: %w", e.Path, err)
		}
	}
	return w.Build(ctx)
}
