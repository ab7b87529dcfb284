package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// CipherSuite pins the concrete AEAD the wire protocol's ENCRYPTED flag
// uses: ChaCha20-Poly1305. This resolves the spec's open question on
// cipher choice; see DESIGN.md.
const CipherSuite = "chacha20poly1305"

var (
	ErrInvalidKey        = errors.New("crypto: invalid key size")
	ErrDecryption        = errors.New("crypto: decryption failed")
	ErrInvalidCiphertext = errors.New("crypto: ciphertext too short")
)

// Seal encrypts plaintext under key, returning nonce || ciphertext || tag.
func Seal(key [KeySize]byte, plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, ErrInvalidKey
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, err
	}
	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a buffer produced by Seal.
func Open(key [KeySize]byte, ciphertext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(key[:])
	if err != nil {
		return nil, ErrInvalidKey
	}
	if len(ciphertext) < aead.NonceSize() {
		return nil, ErrInvalidCiphertext
	}
	nonce, ct := ciphertext[:aead.NonceSize()], ciphertext[aead.NonceSize():]
	pt, err := aead.Open(nil, nonce, ct, nil)
	if err != nil {
		return nil, ErrDecryption
	}
	return pt, nil
}

// SealToBase64 encrypts plaintext and frames the result as Base64 text, the
// wire format the ENCRYPTED flag uses for string payload fields.
func SealToBase64(key [KeySize]byte, plaintext string) (string, error) {
	ct, err := Seal(key, []byte(plaintext))
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(ct), nil
}

// OpenFromBase64 reverses SealToBase64.
func OpenFromBase64(key [KeySize]byte, encoded string) (string, error) {
	ct, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", ErrInvalidCiphertext
	}
	pt, err := Open(key, ct)
	if err != nil {
		return "", err
	}
	return string(pt), nil
}
