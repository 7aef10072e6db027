// Package crypto hashes and checks account passwords.
package crypto

import (
	"crypto/rand"
	"crypto/subtle"
	"fmt"

	"golang.org/x/crypto/argon2"
)

// Argon2id parameters for account passwords.
const (
	argonTime    uint32 = 3
	argonMemory  uint32 = 64 * 1024 // KiB
	argonThreads uint8  = 1
	argonKeyLen  uint32 = 32

	// SaltLen is the per-account salt size in bytes.
	SaltLen = 16
)

// Credential is what an account row stores instead of a password.
type Credential struct {
	Salt []byte
	Hash []byte
}

// NewCredential salts and hashes password for a new account.
func NewCredential(password string) (Credential, error) {
	salt, err := RandBytes(SaltLen)
	if err != nil {
		return Credential{}, fmt.Errorf("salt: %w", err)
	}
	return Credential{Salt: salt, Hash: HashPassword([]byte(password), salt)}, nil
}

// Matches reports whether password hashes to c. An empty credential never matches.
func (c Credential) Matches(password string) bool {
	if len(c.Salt) == 0 || len(c.Hash) == 0 {
		return false
	}
	return VerifyPassword([]byte(password), c.Salt, c.Hash)
}

// dummy keeps unknown-account logins as slow as wrong-password ones.
var dummy = Credential{Salt: make([]byte, SaltLen), Hash: make([]byte, argonKeyLen)}

// BurnCompare runs one hash comparison against a fixed credential and always reports false.
func BurnCompare(password string) bool {
	_ = VerifyPassword([]byte(password), dummy.Salt, dummy.Hash)
	return false
}

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// HashPassword derives the Argon2id key of password under salt.
func HashPassword(password, salt []byte) []byte {
	return argon2.IDKey(password, salt, argonTime, argonMemory, argonThreads, argonKeyLen)
}

// VerifyPassword compares in constant time.
func VerifyPassword(password, salt, expected []byte) bool {
	return subtle.ConstantTimeCompare(HashPassword(password, salt), expected) == 1
}
