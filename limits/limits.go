package limits

import (
	"errors"
	"fmt"
)

const (
	// LengthPrefixSize is the size of the frame length header in bytes.
	LengthPrefixSize = 4

	// MaxFrameSize is the default upper bound on a frame payload (64 KiB).
	// An RSA-16384 ciphertext is 2048 bytes, so every supported key size fits.
	MaxFrameSize = 64 * 1024

	// OAEPHashSize is the SHA-256 digest size used for OAEP and MGF1.
	OAEPHashSize = 32

	// OAEPOverhead is the fixed padding cost of OAEP: two digests plus two bytes.
	OAEPOverhead = 2*OAEPHashSize + 2
)

var (
	// ErrPayloadTooLarge indicates a plaintext exceeds the single-shot RSA-OAEP capacity.
	ErrPayloadTooLarge = errors.New("payload too large")

	// ErrFrameTooLarge indicates a frame length exceeds the configured maximum.
	ErrFrameTooLarge = errors.New("frame too large")
)

// OAEPCapacity returns the maximum plaintext length for a modulus of
// modulusBytes bytes. Returns 0 when the modulus is too small for OAEP.
func OAEPCapacity(modulusBytes int) int {
	capacity := modulusBytes - OAEPOverhead
	if capacity < 0 {
		return 0
	}
	return capacity
}

// ValidatePlaintext checks a plaintext against the OAEP capacity of the modulus.
// Empty plaintexts are valid: OAEP can carry zero bytes.
func ValidatePlaintext(plaintext []byte, modulusBytes int) error {
	capacity := OAEPCapacity(modulusBytes)
	if len(plaintext) > capacity {
		return fmt.Errorf("%w: size %d exceeds capacity %d", ErrPayloadTooLarge, len(plaintext), capacity)
	}
	return nil
}

// ValidateFrameLength checks an advertised frame length against maxSize.
// A maxSize of zero selects MaxFrameSize.
func ValidateFrameLength(length, maxSize uint32) error {
	if maxSize == 0 {
		maxSize = MaxFrameSize
	}
	if length > maxSize {
		return fmt.Errorf("%w: length %d exceeds limit %d", ErrFrameTooLarge, length, maxSize)
	}
	return nil
}
