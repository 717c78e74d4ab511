// Package codec implements the little-endian binary primitives used to
// encode and decode a GrimoireVFS container: fixed-width integers,
// length-prefixed strings, and CRC32 header checksums. It does not
// interpret any container semantics beyond byte shapes.
package codec

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
)

// ErrShortBuffer is returned when a decode would read past the end of the
// supplied byte slice.
var ErrShortBuffer = errors.New("codec: short buffer")

// Cursor is a bounds-checked reader over a byte slice. All Read* methods
// advance the cursor and fail with ErrShortBuffer rather than panicking on
// truncated input.
type Cursor struct {
	buf []byte
	pos int
}

// NewCursor returns a Cursor reading from buf starting at offset 0.
func NewCursor(buf []byte) *Cursor {
	return &Cursor{buf: buf}
}

// Pos returns the current read offset.
func (c *Cursor) Pos() int { return c.pos }

// Remaining returns the number of unread bytes.
func (c *Cursor) Remaining() int { return len(c.buf) - c.pos }

func (c *Cursor) take(n int) ([]byte, error) {
	if n < 0 || n > c.Remaining() {
		return nil, fmt.Errorf("%w: need %d, have %d", ErrShortBuffer, n, c.Remaining())
	}
	b := c.buf[c.pos : c.pos+n]
	c.pos += n
	return b, nil
}

// ReadBytes returns the next n raw bytes.
func (c *Cursor) ReadBytes(n int) ([]byte, error) {
	return c.take(n)
}

// ReadU8 reads one byte.
func (c *Cursor) ReadU8() (uint8, error) {
	b, err := c.take(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

// ReadU16 reads a little-endian uint16.
func (c *Cursor) ReadU16() (uint16, error) {
	b, err := c.take(2)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b), nil
}

// ReadU32 reads a little-endian uint32.
func (c *Cursor) ReadU32() (uint32, error) {
	b, err := c.take(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

// ReadU64 reads a little-endian uint64.
func (c *Cursor) ReadU64() (uint64, error) {
	b, err := c.take(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

// ReadString reads a (u16 length, bytes) length-prefixed UTF-8 string, the
// table format used by the dir/name/ext string tables.
func (c *Cursor) ReadString() (string, error) {
	n, err := c.ReadU16()
	if err != nil {
		return "", err
	}
	b, err := c.take(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Builder accumulates bytes for an encoded region.
type Builder struct {
	buf []byte
}

// NewBuilder returns an empty Builder with the given capacity hint.
func NewBuilder(capHint int) *Builder {
	return &Builder{buf: make([]byte, 0, capHint)}
}

// Bytes returns the accumulated bytes.
func (b *Builder) Bytes() []byte { return b.buf }

// Len returns the number of bytes written so far.
func (b *Builder) Len() int { return len(b.buf) }

// WriteU8 appends one byte.
func (b *Builder) WriteU8(v uint8) { b.buf = append(b.buf, v) }

// WriteU16 appends a little-endian uint16.
func (b *Builder) WriteU16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

// WriteU32 appends a little-endian uint32.
func (b *Builder) WriteU32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

// WriteU64 appends a little-endian uint64.
func (b *Builder) WriteU64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	b.buf = append(b.buf, tmp[:]...)
}

// WriteBytes appends raw bytes verbatim.
func (b *Builder) WriteBytes(p []byte) { b.buf = append(b.buf, p...) }

// WriteZeros appends n zero bytes, used for fixed-size checksum padding.
func (b *Builder) WriteZeros(n int) {
	for range n {
		b.buf = append(b.buf, 0)
	}
}

// WriteString appends a (u16 length, bytes) length-prefixed string. It
// returns an error, and appends nothing, when len(s) exceeds 65535 bytes;
// pathdict.Table reports that error as ErrComponentTooLong.
func (b *Builder) WriteString(s string) error {
	if len(s) > 0xFFFF {
		return fmt.Errorf("codec: string too long (%d bytes)", len(s))
	}
	b.WriteU16(uint16(len(s))) //nolint:gosec // bounds checked above
	b.WriteBytes([]byte(s))
	return nil
}

// CRC32 computes the IEEE CRC32 over p, used for the FileHeader's
// header-checksum field.
func CRC32(p []byte) uint32 {
	return crc32.ChecksumIEEE(p)
}
