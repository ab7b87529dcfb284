// Package crypto provides the server's cryptographic primitives: X25519 key
// agreement, Keccak-256 session key derivation, an authenticated symmetric
// cipher suite, and PBKDF2 password hashing. The functions here hold no
// state: key pairs, nonces and salts are drawn from crypto/rand, Wipe
// zeroes the buffer it is given, and everything else is deterministic.
// Connection and key lifecycle live in pkg/server.
package crypto

import (
	"crypto/rand"
	"errors"
	"io"

	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/sha3"
)

// KeySize is the width in bytes of an X25519 key and a derived session key.
const KeySize = 32

var (
	ErrKeyGeneration = errors.New("crypto: key generation failed")
	ErrKeyAgreement  = errors.New("crypto: key agreement failed")
)

// KeyPair is an X25519 private/public key pair.
type KeyPair struct {
	Public  [KeySize]byte
	Private [KeySize]byte
}

// GenerateKeyPair produces a fresh X25519 key pair using crypto/rand, with
// standard clamping applied to the private scalar.
func GenerateKeyPair() (*KeyPair, error) {
	var priv [KeySize]byte
	if _, err := io.ReadFull(rand.Reader, priv[:]); err != nil {
		return nil, ErrKeyGeneration
	}
	priv[0] &= 248
	priv[31] &= 127
	priv[31] |= 64

	pub, err := curve25519.X25519(priv[:], curve25519.Basepoint)
	if err != nil {
		return nil, ErrKeyGeneration
	}

	kp := &KeyPair{Private: priv}
	copy(kp.Public[:], pub)
	return kp, nil
}

// Agree performs X25519 Diffie-Hellman and returns the raw shared secret.
// It rejects known low-order points, which would otherwise collapse the
// shared secret to a small, guessable set of values.
func Agree(priv, peerPub [KeySize]byte) ([KeySize]byte, error) {
	var shared [KeySize]byte
	if isLowOrderPoint(peerPub) {
		return shared, ErrKeyAgreement
	}
	out, err := curve25519.X25519(priv[:], peerPub[:])
	if err != nil {
		return shared, ErrKeyAgreement
	}
	copy(shared[:], out)
	return shared, nil
}

// DeriveSessionKey hashes a shared secret into a 32-byte session key with
// Keccak-256 (not the later-standardized SHA3-256; the spec's session_key
// definition calls for the original Keccak padding).
func DeriveSessionKey(shared [KeySize]byte) [KeySize]byte {
	var key [KeySize]byte
	h := sha3.NewLegacyKeccak256()
	h.Write(shared[:])
	copy(key[:], h.Sum(nil))
	return key
}

// Wipe zeroes a buffer in place. Used on private keys and shared secrets
// once they have served their purpose.
func Wipe(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// lowOrderPoints are curve points of small order that would make X25519's
// output trivially predictable; a conforming peer never sends one.
var lowOrderPoints = [][32]byte{
	{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	{1, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0},
	{0xe0, 0xeb, 0x7a, 0x7c, 0x3b, 0x41, 0xb8, 0xae, 0x16, 0x56, 0xe3, 0xfa, 0xf1, 0x9f, 0xc4, 0x6a, 0xda, 0x09, 0x8d, 0xeb, 0x9c, 0x32, 0xb1, 0xfd, 0x86, 0x62, 0x05, 0x16, 0x5f, 0x49, 0xb8, 0x00},
	{0x5f, 0x9c, 0x95, 0xbc, 0xa3, 0x50, 0x8c, 0x24, 0xb1, 0xd0, 0xb1, 0x55, 0x9c, 0x83, 0xef, 0x5b, 0x04, 0x44, 0x5c, 0xc4, 0x58, 0x1c, 0x8e, 0x86, 0xd8, 0x22, 0x4e, 0xdd, 0xd0, 0x9f, 0x11, 0x57},
	{0xec, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f},
	{0xed, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f},
	{0xee, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0xff, 0x7f},
}

func isLowOrderPoint(key [32]byte) bool {
	for _, low := range lowOrderPoints {
		if key == low {
			return true
		}
	}
	return false
}
