// Package mmapfile memory-maps a container for random-access reads when
// requested and supported, wrapping golang.org/x/exp/mmap.ReaderAt.
package mmapfile

import "golang.org/x/exp/mmap"

// Supported reports whether mmap is available on this platform.
// golang.org/x/exp/mmap supports darwin, linux, and windows; Open returns
// an error on platforms it doesn't support, and callers fall back to
// positional reads in that case regardless of this constant.
const Supported = true

// Mapping is a memory-mapped read-only view of a file.
type Mapping struct {
	ra *mmap.ReaderAt
}

// Open memory-maps the file at path for read-only access.
func Open(path string) (*Mapping, error) {
	ra, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}
	return &Mapping{ra: ra}, nil
}

// ReadAt reads len(p) bytes from the mapping starting at off, per
// io.ReaderAt.
func (m *Mapping) ReadAt(p []byte, off int64) (int, error) {
	return m.ra.ReadAt(p, off)
}

// Len returns the mapped file's size in bytes.
func (m *Mapping) Len() int { return m.ra.Len() }

// Close unmaps the file.
func (m *Mapping) Close() error { return m.ra.Close() }
