package protocol

import (
	"encoding/binary"
	"errors"

	"github.com/pierrec/lz4/v4"
)

// CompressionThreshold is the minimum payload size worth attempting to
// compress; below it the header overhead outweighs any savings.
const CompressionThreshold = 512

var (
	ErrInvalidCompressedLen = errors.New("protocol: invalid compressed payload length")
	ErrDecompressionFailed  = errors.New("protocol: decompression failed")
	ErrFrameTooLarge        = errors.New("protocol: decompressed size exceeds MaxFrameLength")
)

// CompressPayload LZ4-compresses data, prepending the uncompressed size.
// Format: [uncompressed size (4 bytes, little-endian)][LZ4 block]. It
// returns ok=false when compression would not shrink the payload, in
// which case the caller should send data uncompressed.
func CompressPayload(data []byte) (compressed []byte, ok bool) {
	if len(data) < CompressionThreshold {
		return data, false
	}

	bound := lz4.CompressBlockBound(len(data))
	buf := make([]byte, 4+bound)
	binary.LittleEndian.PutUint32(buf[:4], uint32(len(data)))

	n, err := lz4.CompressBlock(data, buf[4:], nil)
	if err != nil || n == 0 {
		return data, false
	}

	total := 4 + n
	if total >= len(data) {
		return data, false
	}
	return buf[:total], true
}

// DecompressPayload reverses CompressPayload.
func DecompressPayload(data []byte) ([]byte, error) {
	if len(data) < 4 {
		return nil, ErrInvalidCompressedLen
	}

	size := binary.LittleEndian.Uint32(data[:4])
	if size > MaxFrameLength {
		return nil, ErrFrameTooLarge
	}
	out := make([]byte, size)

	n, err := lz4.UncompressBlock(data[4:], out)
	if err != nil {
		return nil, ErrDecompressionFailed
	}
	if n != int(size) {
		return nil, ErrDecompressionFailed
	}
	return out, nil
}
