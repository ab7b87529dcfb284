package protocol

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeDecodeFrame(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
	}{
		{
			name: "handshake - fixed payload",
			frame: Frame{
				Magic:      MagicHandshake,
				Opcode:     OpHandshake,
				Flags:      0,
				SequenceID: 1,
				Payload:    make([]byte, 32),
			},
		},
		{
			name: "credentials - encrypted flag set",
			frame: Frame{
				Magic:      MagicCredentials,
				Opcode:     OpLogin,
				Flags:      FlagEncrypted,
				SequenceID: 42,
				Payload:    []byte("encrypted-base64-payload-bytes"),
			},
		},
		{
			name: "directive - empty-ish control payload",
			frame: Frame{
				Magic:      MagicDirective,
				Opcode:     OpRegister,
				Flags:      0,
				SequenceID: 7,
				Payload:    []byte{0, 0, 0, 0},
			},
		},
		{
			name: "logout - no payload",
			frame: Frame{
				Magic:      MagicLogout,
				Opcode:     OpLogout,
				Flags:      0,
				SequenceID: 99,
				Payload:    []byte{},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			buf := make([]byte, tt.frame.EncodedSize())
			n, err := EncodeFrame(buf, &tt.frame)
			require.NoError(t, err)
			assert.Equal(t, len(buf), n)

			decoded, consumed, err := DecodeFrame(buf)
			require.NoError(t, err)
			assert.Equal(t, n, consumed)
			assert.Equal(t, tt.frame.Magic, decoded.Magic)
			assert.Equal(t, tt.frame.Opcode, decoded.Opcode)
			assert.Equal(t, tt.frame.Flags, decoded.Flags)
			assert.Equal(t, tt.frame.SequenceID, decoded.SequenceID)
			assert.Equal(t, tt.frame.Payload, decoded.Payload)
		})
	}
}

func TestEncodeFrameBufferTooSmall(t *testing.T) {
	f := Frame{Magic: MagicHandshake, Opcode: OpHandshake, Payload: make([]byte, 32)}
	buf := make([]byte, HeaderSize)
	_, err := EncodeFrame(buf, &f)
	assert.ErrorIs(t, err, ErrBufferTooSmall)
}

func TestDecodeFrameErrors(t *testing.T) {
	t.Run("empty buffer is incomplete", func(t *testing.T) {
		_, _, err := DecodeFrame(nil)
		assert.ErrorIs(t, err, ErrIncomplete)
	})

	t.Run("header present but payload not yet arrived", func(t *testing.T) {
		f := Frame{Magic: MagicHandshake, Opcode: OpHandshake, Payload: make([]byte, 32)}
		buf := make([]byte, f.EncodedSize())
		_, err := EncodeFrame(buf, &f)
		require.NoError(t, err)

		_, _, err = DecodeFrame(buf[:HeaderSize+10])
		assert.ErrorIs(t, err, ErrIncomplete)
	})

	t.Run("unrecognized magic", func(t *testing.T) {
		buf := make([]byte, HeaderSize)
		putUint32(buf[0:4], 0xDEADBEEF)
		putUint16(buf[4:6], uint16(HeaderSize))
		_, _, err := DecodeFrame(buf)
		assert.ErrorIs(t, err, ErrBadMagic)
	})

	t.Run("length shorter than header", func(t *testing.T) {
		buf := make([]byte, HeaderSize)
		putUint32(buf[0:4], uint32(MagicHandshake))
		putUint16(buf[4:6], 5)
		_, _, err := DecodeFrame(buf)
		assert.ErrorIs(t, err, ErrBadLength)
	})

	t.Run("length at maximum with short buffer is incomplete", func(t *testing.T) {
		buf := make([]byte, HeaderSize)
		putUint32(buf[0:4], uint32(MagicHandshake))
		putUint16(buf[4:6], 0xFFFF)
		_, _, err := DecodeFrame(buf)
		// 0xFFFF equals MaxFrameLength, so the length itself is valid; a
		// 16-bit field cannot exceed it. The buffer holds only the header,
		// so the frame is reported as incomplete.
		assert.ErrorIs(t, err, ErrIncomplete)
	})
}

func TestDecodeFrameDoesNotMutateInput(t *testing.T) {
	f := Frame{Magic: MagicCredentials, Opcode: OpRegister, Payload: []byte("payload")}
	buf := make([]byte, f.EncodedSize())
	_, err := EncodeFrame(buf, &f)
	require.NoError(t, err)

	original := append([]byte(nil), buf...)
	decoded, _, err := DecodeFrame(buf)
	require.NoError(t, err)

	assert.Equal(t, original, buf)
	decoded.Payload[0] = 0xFF
	assert.Equal(t, original, buf, "decoded payload must not alias the input buffer")
}
