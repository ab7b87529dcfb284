// Package protocol implements the wire frame codec and packet classes for
// the game backend's binary TCP protocol: header layout, magic table,
// packet payload encode/decode, and a typed object pool for the hot-path
// packet classes.
package protocol

import (
	"encoding/binary"
	"errors"
)

var (
	ErrBufferTooSmall = errors.New("protocol: buffer too small")
	ErrStringTooLong  = errors.New("protocol: string exceeds maximum length")
)

func putUint8(dst []byte, v uint8) int {
	dst[0] = v
	return 1
}

func putUint16(dst []byte, v uint16) int {
	binary.LittleEndian.PutUint16(dst, v)
	return 2
}

func putUint32(dst []byte, v uint32) int {
	binary.LittleEndian.PutUint32(dst, v)
	return 4
}

func getUint8(src []byte) uint8 { return src[0] }

func getUint16(src []byte) uint16 { return binary.LittleEndian.Uint16(src) }

func getUint32(src []byte) uint32 { return binary.LittleEndian.Uint32(src) }

// putString writes a 2-byte little-endian length prefix followed by the
// UTF-8 bytes of s.
func putString(dst []byte, s string) (int, error) {
	if len(s) > 0xFFFF {
		return 0, ErrStringTooLong
	}
	if len(dst) < 2+len(s) {
		return 0, ErrBufferTooSmall
	}
	binary.LittleEndian.PutUint16(dst, uint16(len(s)))
	copy(dst[2:], s)
	return 2 + len(s), nil
}

// getString reads a length-prefixed UTF-8 string, returning the string and
// the number of bytes consumed.
func getString(src []byte) (string, int, error) {
	if len(src) < 2 {
		return "", 0, ErrMalformed
	}
	n := int(binary.LittleEndian.Uint16(src))
	if len(src) < 2+n {
		return "", 0, ErrMalformed
	}
	return string(src[2 : 2+n]), 2 + n, nil
}

func stringSize(s string) int { return 2 + len(s) }
