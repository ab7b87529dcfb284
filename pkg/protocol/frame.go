package protocol

import "errors"

const (
	// HeaderSize is the fixed header width: magic(4) | length(2) |
	// opcode(2) | flags(1) | sequence_id(4).
	HeaderSize = 13

	// MaxFrameLength is the largest value length may carry (64 KiB - 1).
	MaxFrameLength = 1<<16 - 1
)

const (
	FlagEncrypted  uint8 = 1 << 0
	FlagCompressed uint8 = 1 << 1
)

var (
	ErrIncomplete = errors.New("protocol: incomplete frame")
	ErrBadMagic   = errors.New("protocol: unrecognized magic")
	ErrBadLength  = errors.New("protocol: invalid frame length")
	ErrMalformed  = errors.New("protocol: malformed frame")
)

// Frame is one length-prefixed wire packet: header plus payload.
type Frame struct {
	Magic      Magic
	Opcode     Opcode
	Flags      uint8
	SequenceID uint32
	Payload    []byte
}

// EncodedSize returns the number of bytes EncodeFrame would write for f.
func (f *Frame) EncodedSize() int { return HeaderSize + len(f.Payload) }

// DecodeFrame decodes exactly one frame from the head of buf. On success
// it returns the frame and the number of bytes consumed; buf itself is not
// modified. ErrIncomplete means buf does not yet hold a full frame and the
// caller should read more bytes and retry with the same (unconsumed) buf.
func DecodeFrame(buf []byte) (*Frame, int, error) {
	if len(buf) < HeaderSize {
		return nil, 0, ErrIncomplete
	}

	magic := Magic(getUint32(buf[0:4]))
	if !KnownMagic(magic) {
		return nil, 0, ErrBadMagic
	}

	length := getUint16(buf[4:6])
	if int(length) < HeaderSize || int(length) > MaxFrameLength {
		return nil, 0, ErrBadLength
	}
	if len(buf) < int(length) {
		return nil, 0, ErrIncomplete
	}

	opcode := Opcode(getUint16(buf[6:8]))
	flags := getUint8(buf[8:9])
	seq := getUint32(buf[9:13])

	payload := make([]byte, int(length)-HeaderSize)
	copy(payload, buf[HeaderSize:length])

	return &Frame{Magic: magic, Opcode: opcode, Flags: flags, SequenceID: seq, Payload: payload}, int(length), nil
}

// EncodeFrame serializes f into dst and returns the number of bytes
// written, or ErrBufferTooSmall if dst cannot hold the frame.
func EncodeFrame(dst []byte, f *Frame) (int, error) {
	total := f.EncodedSize()
	if total > MaxFrameLength {
		return 0, ErrBadLength
	}
	if len(dst) < total {
		return 0, ErrBufferTooSmall
	}

	putUint32(dst[0:4], uint32(f.Magic))
	putUint16(dst[4:6], uint16(total))
	putUint16(dst[6:8], uint16(f.Opcode))
	putUint8(dst[8:9], f.Flags)
	putUint32(dst[9:13], f.SequenceID)
	copy(dst[HeaderSize:], f.Payload)

	return total, nil
}
