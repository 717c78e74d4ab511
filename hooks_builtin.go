package grimoire

import (
	"crypto/md5"  //nolint:gosec // reserved algo id 2 selects MD5; integrity checking, not a security choice
	"crypto/sha1" //nolint:gosec // reserved algo id 3 selects SHA1; integrity checking, not a security choice
	"crypto/sha256"
	"fmt"
	"hash"
	"hash/crc32"
	"io"
	"os"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/klauspost/compress/zstd"
)

// computeFileStreamed hashes localPath by copying it through h without
// buffering the whole file in memory, the BatchChecksumHook.ComputeFile
// extension built-in hooks support.
func computeFileStreamed(localPath string, h hash.Hash) ([]byte, error) {
	f, err := os.Open(localPath) //nolint:gosec // caller-controlled local path is intentional
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // read-only handle, nothing to flush
	if _, err := io.Copy(h, f); err != nil {
		return nil, err
	}
	return h.Sum(nil), nil
}

// Reserved checksum algo ids: 0 = none, handled by the absence of a
// hook; 1 = CRC32, 2 = MD5, 3 = SHA1, 4 = SHA256. External batch providers
// may allocate ids 100+.
const (
	ChecksumCRC32  uint16 = 1
	ChecksumMD5    uint16 = 2
	ChecksumSHA1   uint16 = 3
	ChecksumSHA256 uint16 = 4
)

// CompressionZstd is the reserved algo id for the built-in zstd
// CompressionHook. 0 ("stored") is never dispatched to a hook.
const CompressionZstd uint16 = 1

// DefaultPathHashAlgoID is recorded in the FileHeader when no custom
// PathHashFunc is supplied.
const DefaultPathHashAlgoID uint16 = 0

type crc32Hook struct{}

// NewCRC32Checksum returns the reference CRC32 ChecksumHook (algo id 1,
// 4-byte output).
func NewCRC32Checksum() ChecksumHook { return crc32Hook{} }

func (crc32Hook) AlgoID() uint16     { return ChecksumCRC32 }
func (crc32Hook) OutputSize() uint16 { return 4 }
func (crc32Hook) Compute(data []byte) ([]byte, error) {
	sum := crc32.ChecksumIEEE(data)
	return []byte{byte(sum), byte(sum >> 8), byte(sum >> 16), byte(sum >> 24)}, nil
}

func (crc32Hook) ComputeFile(localPath string) ([]byte, error) {
	sum, err := computeFileStreamed(localPath, crc32.NewIEEE())
	if err != nil {
		return nil, err
	}
	return []byte{sum[3], sum[2], sum[1], sum[0]}, nil
}

type md5Hook struct{}

// NewMD5Checksum returns the reference MD5 ChecksumHook (algo id 2,
// 16-byte output).
func NewMD5Checksum() ChecksumHook { return md5Hook{} }

func (md5Hook) AlgoID() uint16     { return ChecksumMD5 }
func (md5Hook) OutputSize() uint16 { return 16 }
func (md5Hook) Compute(data []byte) ([]byte, error) {
	sum := md5.Sum(data) //nolint:gosec // see import comment
	return sum[:], nil
}

func (md5Hook) ComputeFile(localPath string) ([]byte, error) {
	return computeFileStreamed(localPath, md5.New()) //nolint:gosec // see import comment
}

type sha1Hook struct{}

// NewSHA1Checksum returns the reference SHA1 ChecksumHook (algo id 3,
// 20-byte output).
func NewSHA1Checksum() ChecksumHook { return sha1Hook{} }

func (sha1Hook) AlgoID() uint16     { return ChecksumSHA1 }
func (sha1Hook) OutputSize() uint16 { return 20 }
func (sha1Hook) Compute(data []byte) ([]byte, error) {
	sum := sha1.Sum(data) //nolint:gosec // see import comment
	return sum[:], nil
}

func (sha1Hook) ComputeFile(localPath string) ([]byte, error) {
	return computeFileStreamed(localPath, sha1.New()) //nolint:gosec // see import comment
}

type sha256Hook struct{}

// NewSHA256Checksum returns the reference SHA256 ChecksumHook (algo id 4,
// 32-byte output).
func NewSHA256Checksum() ChecksumHook { return sha256Hook{} }

func (sha256Hook) AlgoID() uint16     { return ChecksumSHA256 }
func (sha256Hook) OutputSize() uint16 { return 32 }
func (sha256Hook) Compute(data []byte) ([]byte, error) {
	sum := sha256.Sum256(data)
	return sum[:], nil
}

func (sha256Hook) ComputeFile(localPath string) ([]byte, error) {
	return computeFileStreamed(localPath, sha256.New())
}

// zstdHook is the reference CompressionHook backed by
// github.com/klauspost/compress/zstd.
//
// Encoders and decoders are pooled with sync.Pool: zstd encoder/decoder
// construction is comparatively expensive and Writer/Reader may process
// many small entries in sequence.
type zstdHook struct {
	encoders sync.Pool
	decoders sync.Pool
}

// NewZstdCompression returns the reference zstd CompressionHook (algo id 1).
func NewZstdCompression() CompressionHook {
	h := &zstdHook{}
	h.encoders.New = func() any {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderConcurrency(1))
		if err != nil {
			return err
		}
		return enc
	}
	h.decoders.New = func() any {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return err
		}
		return dec
	}
	return h
}

func (h *zstdHook) AlgoID() uint16 { return CompressionZstd }

func (h *zstdHook) Compress(raw []byte) ([]byte, error) {
	v := h.encoders.Get()
	enc, ok := v.(*zstd.Encoder)
	if !ok {
		return nil, fmt.Errorf("grimoire: zstd encoder init: %w", v.(error)) //nolint:errcheck,forcetypeassert // New() only ever stores *zstd.Encoder or error
	}
	defer h.encoders.Put(enc)
	return enc.EncodeAll(raw, make([]byte, 0, len(raw))), nil
}

func (h *zstdHook) Decompress(packed []byte, rawSize uint64) ([]byte, error) {
	v := h.decoders.Get()
	dec, ok := v.(*zstd.Decoder)
	if !ok {
		return nil, fmt.Errorf("grimoire: zstd decoder init: %w", v.(error)) //nolint:errcheck,forcetypeassert // New() only ever stores *zstd.Decoder or error
	}
	defer h.decoders.Put(dec)

	out, err := dec.DecodeAll(packed, make([]byte, 0, rawSize))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecompressError, err) //nolint:errorlint // wrapping a foreign error as detail
	}
	if uint64(len(out)) != rawSize { //nolint:gosec // bounded by container size limits upstream
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrDecompressError, len(out), rawSize)
	}
	return out, nil
}

// DefaultPathHash is the built-in PathHashFunc: the path is hashed with
// xxhash, a deterministic non-cryptographic 64-bit hash. Its id is 0; a
// non-zero id in the FileHeader means a custom function was used and
// readers must configure the matching one.
func DefaultPathHash() PathHashFunc {
	return PathHashFunc{
		AlgoID: DefaultPathHashAlgoID,
		Hash:   xxhash.Sum64String,
	}
}

// xorIndexCryptoHook is a reference IndexCryptoHook: a reversible
// keystream XOR over the index's string-table bytes. It demonstrates the hook interface
// end-to-end but provides no confidentiality, so it is named as
// obfuscation rather than presented as encryption.
type xorIndexCryptoHook struct {
	algoID uint16
	key    []byte
}

// NewXORObfuscation returns a reference IndexCryptoHook that XORs the
// index's string tables against a repeating key. It is a demonstration hook, not a
// security control; use a real cipher for confidentiality.
func NewXORObfuscation(algoID uint16, key []byte) IndexCryptoHook {
	k := make([]byte, len(key))
	copy(k, key)
	return &xorIndexCryptoHook{algoID: algoID, key: k}
}

func (h *xorIndexCryptoHook) AlgoID() uint16 { return h.algoID }

func (h *xorIndexCryptoHook) xor(in []byte) []byte {
	if len(h.key) == 0 {
		out := make([]byte, len(in))
		copy(out, in)
		return out
	}
	out := make([]byte, len(in))
	for i, b := range in {
		out[i] = b ^ h.key[i%len(h.key)]
	}
	return out
}

func (h *xorIndexCryptoHook) Encrypt(plaintext []byte) ([]byte, error) {
	return h.xor(plaintext), nil
}

func (h *xorIndexCryptoHook) Decrypt(ciphertext []byte) ([]byte, error) {
	return h.xor(ciphertext), nil
}
