package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// PBKDF2Iterations is the iteration count for passphrase key derivation.
	PBKDF2Iterations = 100000
	// SaltSize is the size of the PBKDF2 salt stored in every envelope.
	SaltSize = 32
	// KeySize is the derived key size (AES-256).
	KeySize = 32
)

// DeriveKey derives an AES-256 key from a passphrase and salt using
// PBKDF2-HMAC-SHA256. The result is deterministic for a given pair.
// Callers own the returned slice and should wipe it after use.
func DeriveKey(passphrase, salt []byte) ([]byte, error) {
	if len(salt) != SaltSize {
		return nil, fmt.Errorf("%w: got %d, want %d", ErrInvalidSaltSize, len(salt), SaltSize)
	}
	return pbkdf2.Key(passphrase, salt, PBKDF2Iterations, KeySize, sha256.New), nil
}

// NewSalt returns SaltSize bytes from the system CSPRNG.
func NewSalt() ([]byte, error) {
	salt := make([]byte, SaltSize)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("failed to generate salt: %w", err)
	}
	return salt, nil
}
