package codec

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	h := FileHeader{
		Magic:          DefaultMagic,
		Version:        FormatVersion,
		Mode:           ModeArchive,
		IndexCryptoID:  7,
		ChecksumAlgoID: 4,
		PathHashAlgoID: 0,
		IndexOffset:    FileHeaderSize,
		IndexLength:    128,
		DataOffset:     FileHeaderSize + 128,
		DataLength:     512,
	}

	buf := h.Encode()
	require.Len(t, buf, FileHeaderSize)

	got, err := DecodeFileHeader(buf, DefaultMagic)
	require.NoError(t, err)
	h.HeaderChecksum = got.HeaderChecksum // computed during Encode, not set above
	assert.Equal(t, h, got)
}

func TestFileHeaderBadMagic(t *testing.T) {
	t.Parallel()

	h := FileHeader{Magic: DefaultMagic, Version: FormatVersion}
	buf := h.Encode()

	_, err := DecodeFileHeader(buf, [4]byte{'X', 'X', 'X', 'X'})
	assert.ErrorIs(t, err, ErrBadMagic)
}

func TestFileHeaderUnsupportedVersion(t *testing.T) {
	t.Parallel()

	h := FileHeader{Magic: DefaultMagic, Version: 99}
	buf := h.Encode()

	_, err := DecodeFileHeader(buf, DefaultMagic)
	assert.ErrorIs(t, err, ErrUnsupportedVersion)
}

func TestFileHeaderCorruptChecksum(t *testing.T) {
	t.Parallel()

	h := FileHeader{Magic: DefaultMagic, Version: FormatVersion}
	buf := h.Encode()
	buf[0] ^= 0xFF // corrupt a byte covered by the header checksum

	_, err := DecodeFileHeader(buf, [4]byte{})
	assert.ErrorIs(t, err, ErrHeaderCorrupt)
}

func TestFileHeaderTruncated(t *testing.T) {
	t.Parallel()

	_, err := DecodeFileHeader(make([]byte, FileHeaderSize-1), [4]byte{})
	assert.ErrorIs(t, err, ErrHeaderCorrupt)
}

func TestIndexHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	h := IndexHeader{
		EntryCount:     3,
		ChecksumSize:   32,
		DirTableLen:    10,
		NameTableLen:   20,
		ExtTableLen:    5,
		EntryRecordLen: uint16(EntryFixedSize + 32),
		CryptoLen:      37,
	}
	buf := h.Encode()
	require.Len(t, buf, IndexHeaderSize)

	got, err := DecodeIndexHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestIndexHeaderTruncated(t *testing.T) {
	t.Parallel()

	_, err := DecodeIndexHeader(make([]byte, IndexHeaderSize-1))
	assert.ErrorIs(t, err, ErrShortBuffer)
}

func TestEntryRecordRoundTrip(t *testing.T) {
	t.Parallel()

	e := EntryRecord{
		PathHash:   0xDEADBEEFCAFEBABE,
		DirID:      1,
		NameID:     2,
		ExtID:      3,
		RawSize:    1024,
		PackedSize: 512,
		DataOffset: 4096,
		AlgoID:     1,
		Checksum:   []byte{1, 2, 3, 4},
	}
	buf := e.Encode(4)
	require.Len(t, buf, EntryFixedSize+4)

	got, err := DecodeEntryRecord(buf, 4)
	require.NoError(t, err)
	assert.Equal(t, e, got)
}

func TestEntryRecordZeroChecksum(t *testing.T) {
	t.Parallel()

	e := EntryRecord{PathHash: 1, RawSize: 10, PackedSize: 10}
	buf := e.Encode(0)
	require.Len(t, buf, EntryFixedSize)

	got, err := DecodeEntryRecord(buf, 0)
	require.NoError(t, err)
	assert.Nil(t, got.Checksum)
}

func TestDataHeaderRoundTrip(t *testing.T) {
	t.Parallel()

	h := DataHeader{TotalRawSize: 100, TotalPackedSize: 42}
	buf := h.Encode()
	require.Len(t, buf, DataHeaderSize)

	got, err := DecodeDataHeader(buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestCursorShortBuffer(t *testing.T) {
	t.Parallel()

	c := NewCursor([]byte{1, 2})
	_, err := c.ReadU32()
	assert.ErrorIs(t, err, ErrShortBuffer)
}
