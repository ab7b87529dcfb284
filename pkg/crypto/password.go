package crypto

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"io"
	"unicode"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// SaltSize and HashSize are both 64 bytes per the credentials record.
	SaltSize = 64
	HashSize = 64

	pbkdf2Iterations = 210000
)

// HashPassword derives a random salt and a PBKDF2-HMAC-SHA512 hash for
// password.
func HashPassword(password string) (salt [SaltSize]byte, hash [HashSize]byte, err error) {
	if _, err = io.ReadFull(rand.Reader, salt[:]); err != nil {
		return salt, hash, err
	}
	derived := pbkdf2.Key([]byte(password), salt[:], pbkdf2Iterations, HashSize, sha512.New)
	copy(hash[:], derived)
	return salt, hash, nil
}

// VerifyPassword recomputes the PBKDF2 hash for password against salt and
// compares it to hash in constant time.
func VerifyPassword(password string, salt [SaltSize]byte, hash [HashSize]byte) bool {
	derived := pbkdf2.Key([]byte(password), salt[:], pbkdf2Iterations, HashSize, sha512.New)
	return subtle.ConstantTimeCompare(derived, hash[:]) == 1
}

// FakeVerify performs a PBKDF2 computation of the same cost as
// VerifyPassword against a fixed dummy salt, without consulting any real
// record. Called when a login's username does not exist, so that an
// attacker cannot distinguish "unknown user" from "wrong password" by
// timing.
func FakeVerify(password string) {
	var dummySalt [SaltSize]byte
	_ = pbkdf2.Key([]byte(password), dummySalt[:], pbkdf2Iterations, HashSize, sha512.New)
}

// IsStrongPassword requires at least 8 characters with a mix of letter
// case, a digit, and a symbol.
func IsStrongPassword(password string) bool {
	if len(password) < 8 || len(password) > 128 {
		return false
	}
	var hasUpper, hasLower, hasDigit, hasSymbol bool
	for _, r := range password {
		switch {
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsDigit(r):
			hasDigit = true
		case unicode.IsPunct(r), unicode.IsSymbol(r):
			hasSymbol = true
		}
	}
	return hasUpper && hasLower && hasDigit && hasSymbol
}
