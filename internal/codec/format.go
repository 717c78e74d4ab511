package codec

import (
	"errors"
	"fmt"
)

// Mode identifies whether a container carries payload data.
type Mode uint8

const (
	// ModeManifest containers carry only metadata and checksums.
	ModeManifest Mode = 0
	// ModeArchive containers carry metadata plus a data region.
	ModeArchive Mode = 1
)

// DefaultMagic is the 4-byte magic GrimoireVFS writes when the caller does
// not supply a domain-specific one.
var DefaultMagic = [4]byte{'G', 'R', 'I', 'M'}

// FormatVersion is the only wire format version this package emits and
// accepts.
const FormatVersion uint8 = 1

// FileHeaderSize is the fixed, on-disk size of FileHeader in bytes. The
// format version is a single byte (values 1..255 are more than
// sufficient), which makes the declared fields sum to exactly 48 bytes
// with no padding needed.
const FileHeaderSize = 48

// FileHeader is the first, fixed-width region of a container.
type FileHeader struct {
	Magic          [4]byte
	Version        uint8
	Mode           Mode
	IndexCryptoID  uint16
	ChecksumAlgoID uint16
	PathHashAlgoID uint16
	IndexOffset    uint64
	IndexLength    uint64
	DataOffset     uint64
	DataLength     uint64
	HeaderChecksum uint32
}

// Encode serializes the header, computing HeaderChecksum over the
// preceding bytes.
func (h FileHeader) Encode() []byte {
	b := NewBuilder(FileHeaderSize)
	b.WriteBytes(h.Magic[:])
	b.WriteU8(h.Version)
	b.WriteU8(uint8(h.Mode))
	b.WriteU16(h.IndexCryptoID)
	b.WriteU16(h.ChecksumAlgoID)
	b.WriteU16(h.PathHashAlgoID)
	b.WriteU64(h.IndexOffset)
	b.WriteU64(h.IndexLength)
	b.WriteU64(h.DataOffset)
	b.WriteU64(h.DataLength)
	crc := CRC32(b.Bytes())
	b.WriteU32(crc)
	return b.Bytes()
}

// ErrBadMagic is returned when a container's magic does not match what the
// opener expects.
var ErrBadMagic = errors.New("codec: bad magic")

// ErrHeaderCorrupt is returned when the header checksum does not match.
var ErrHeaderCorrupt = errors.New("codec: header corrupt")

// ErrUnsupportedVersion is returned for a format version this package
// cannot decode.
var ErrUnsupportedVersion = errors.New("codec: unsupported version")

// DecodeFileHeader parses and validates a FileHeader, checking magic against
// wantMagic (the magic check is skipped when wantMagic is the zero value)
// and verifying the header checksum.
func DecodeFileHeader(buf []byte, wantMagic [4]byte) (FileHeader, error) {
	if len(buf) < FileHeaderSize {
		return FileHeader{}, fmt.Errorf("%w: header truncated", ErrHeaderCorrupt)
	}
	c := NewCursor(buf[:FileHeaderSize])
	var h FileHeader
	magic, err := c.ReadBytes(4)
	if err != nil {
		return FileHeader{}, err
	}
	copy(h.Magic[:], magic)
	if wantMagic != ([4]byte{}) && h.Magic != wantMagic {
		return FileHeader{}, fmt.Errorf("%w: got %q want %q", ErrBadMagic, h.Magic, wantMagic)
	}
	if h.Version, err = c.ReadU8(); err != nil {
		return FileHeader{}, err
	}
	if h.Version != FormatVersion {
		return FileHeader{}, fmt.Errorf("%w: %d", ErrUnsupportedVersion, h.Version)
	}
	modeByte, err := c.ReadU8()
	if err != nil {
		return FileHeader{}, err
	}
	h.Mode = Mode(modeByte)
	if h.IndexCryptoID, err = c.ReadU16(); err != nil {
		return FileHeader{}, err
	}
	if h.ChecksumAlgoID, err = c.ReadU16(); err != nil {
		return FileHeader{}, err
	}
	if h.PathHashAlgoID, err = c.ReadU16(); err != nil {
		return FileHeader{}, err
	}
	if h.IndexOffset, err = c.ReadU64(); err != nil {
		return FileHeader{}, err
	}
	if h.IndexLength, err = c.ReadU64(); err != nil {
		return FileHeader{}, err
	}
	if h.DataOffset, err = c.ReadU64(); err != nil {
		return FileHeader{}, err
	}
	if h.DataLength, err = c.ReadU64(); err != nil {
		return FileHeader{}, err
	}
	if h.HeaderChecksum, err = c.ReadU32(); err != nil {
		return FileHeader{}, err
	}
	gotCRC := CRC32(buf[:FileHeaderSize-4])
	if gotCRC != h.HeaderChecksum {
		return FileHeader{}, fmt.Errorf("%w: crc mismatch", ErrHeaderCorrupt)
	}
	return h, nil
}

// IndexHeaderSize is the fixed size of IndexHeader, the first bytes of the
// index region (always plaintext; see CryptoLen below).
//
// The fixed fields (u32 count, u16 checksum-size, 3x u32 table lengths,
// u16 record size) sum to 20 bytes; the trailing 4 bytes carry CryptoLen
// rather than padding.
const IndexHeaderSize = 24

// IndexHeader is the first fixed-width record of the index region.
//
// CryptoLen is the ciphertext length of the StringTables region when
// index-crypto is active, 0 otherwise. Index-crypto wraps only the
// StringTables bytes; IndexHeader and EntryTable (which carries
// path_hash, offsets, sizes, and checksums) always stay plaintext, so
// hash-keyed operations work without the hook while full-path operations
// (ListAll, path-collision disambiguation) still require it.
type IndexHeader struct {
	EntryCount     uint32
	ChecksumSize   uint16
	DirTableLen    uint32
	NameTableLen   uint32
	ExtTableLen    uint32
	EntryRecordLen uint16
	CryptoLen      uint32
}

// Encode serializes the IndexHeader.
func (h IndexHeader) Encode() []byte {
	b := NewBuilder(IndexHeaderSize)
	b.WriteU32(h.EntryCount)
	b.WriteU16(h.ChecksumSize)
	b.WriteU32(h.DirTableLen)
	b.WriteU32(h.NameTableLen)
	b.WriteU32(h.ExtTableLen)
	b.WriteU16(h.EntryRecordLen)
	b.WriteU32(h.CryptoLen)
	return b.Bytes()
}

// DecodeIndexHeader parses an IndexHeader.
func DecodeIndexHeader(buf []byte) (IndexHeader, error) {
	if len(buf) < IndexHeaderSize {
		return IndexHeader{}, fmt.Errorf("%w: index header truncated", ErrShortBuffer)
	}
	c := NewCursor(buf[:IndexHeaderSize])
	var h IndexHeader
	var err error
	if h.EntryCount, err = c.ReadU32(); err != nil {
		return IndexHeader{}, err
	}
	if h.ChecksumSize, err = c.ReadU16(); err != nil {
		return IndexHeader{}, err
	}
	if h.DirTableLen, err = c.ReadU32(); err != nil {
		return IndexHeader{}, err
	}
	if h.NameTableLen, err = c.ReadU32(); err != nil {
		return IndexHeader{}, err
	}
	if h.ExtTableLen, err = c.ReadU32(); err != nil {
		return IndexHeader{}, err
	}
	if h.EntryRecordLen, err = c.ReadU16(); err != nil {
		return IndexHeader{}, err
	}
	if h.CryptoLen, err = c.ReadU32(); err != nil {
		return IndexHeader{}, err
	}
	return h, nil
}

// EntryFixedSize is the size, in bytes, of an EntryRecord excluding its
// trailing variable-length (but fixed-per-container) checksum field.
const EntryFixedSize = 8 + 4 + 4 + 4 + 8 + 8 + 8 + 2 + 2

// EntryRecord is one fixed-size row of the EntryTable.
type EntryRecord struct {
	PathHash   uint64
	DirID      uint32
	NameID     uint32
	ExtID      uint32
	RawSize    uint64
	PackedSize uint64
	DataOffset uint64
	AlgoID     uint16
	Flags      uint16
	Checksum   []byte // exactly checksumSize bytes, 0-padded
}

// Encode serializes the record, padding or truncating Checksum to
// checksumSize bytes.
func (e EntryRecord) Encode(checksumSize int) []byte {
	b := NewBuilder(EntryFixedSize + checksumSize)
	b.WriteU64(e.PathHash)
	b.WriteU32(e.DirID)
	b.WriteU32(e.NameID)
	b.WriteU32(e.ExtID)
	b.WriteU64(e.RawSize)
	b.WriteU64(e.PackedSize)
	b.WriteU64(e.DataOffset)
	b.WriteU16(e.AlgoID)
	b.WriteU16(e.Flags)
	n := len(e.Checksum)
	if n > checksumSize {
		n = checksumSize
	}
	b.WriteBytes(e.Checksum[:n])
	b.WriteZeros(checksumSize - n)
	return b.Bytes()
}

// DecodeEntryRecord parses one EntryRecord of the given checksum size.
func DecodeEntryRecord(buf []byte, checksumSize int) (EntryRecord, error) {
	need := EntryFixedSize + checksumSize
	if len(buf) < need {
		return EntryRecord{}, fmt.Errorf("%w: entry record truncated", ErrShortBuffer)
	}
	c := NewCursor(buf[:need])
	var e EntryRecord
	var err error
	if e.PathHash, err = c.ReadU64(); err != nil {
		return EntryRecord{}, err
	}
	if e.DirID, err = c.ReadU32(); err != nil {
		return EntryRecord{}, err
	}
	if e.NameID, err = c.ReadU32(); err != nil {
		return EntryRecord{}, err
	}
	if e.ExtID, err = c.ReadU32(); err != nil {
		return EntryRecord{}, err
	}
	if e.RawSize, err = c.ReadU64(); err != nil {
		return EntryRecord{}, err
	}
	if e.PackedSize, err = c.ReadU64(); err != nil {
		return EntryRecord{}, err
	}
	if e.DataOffset, err = c.ReadU64(); err != nil {
		return EntryRecord{}, err
	}
	if e.AlgoID, err = c.ReadU16(); err != nil {
		return EntryRecord{}, err
	}
	if e.Flags, err = c.ReadU16(); err != nil {
		return EntryRecord{}, err
	}
	if checksumSize > 0 {
		cs, err := c.ReadBytes(checksumSize)
		if err != nil {
			return EntryRecord{}, err
		}
		e.Checksum = append([]byte(nil), cs...)
	}
	return e, nil
}

// DataHeaderSize is the fixed size of the Archive-only DataHeader.
const DataHeaderSize = 16

// DataHeader precedes the concatenated packed payloads in Archive mode.
type DataHeader struct {
	TotalRawSize    uint64
	TotalPackedSize uint64
}

// Encode serializes the DataHeader.
func (h DataHeader) Encode() []byte {
	b := NewBuilder(DataHeaderSize)
	b.WriteU64(h.TotalRawSize)
	b.WriteU64(h.TotalPackedSize)
	return b.Bytes()
}

// DecodeDataHeader parses a DataHeader.
func DecodeDataHeader(buf []byte) (DataHeader, error) {
	if len(buf) < DataHeaderSize {
		return DataHeader{}, fmt.Errorf("%w: data header truncated", ErrShortBuffer)
	}
	c := NewCursor(buf[:DataHeaderSize])
	var h DataHeader
	var err error
	if h.TotalRawSize, err = c.ReadU64(); err != nil {
		return DataHeader{}, err
	}
	if h.TotalPackedSize, err = c.ReadU64(); err != nil {
		return DataHeader{}, err
	}
	return h, nil
}
