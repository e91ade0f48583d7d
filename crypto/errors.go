package crypto

import (
	"errors"

	"github.com/opd-ai/securemsg/limits"
)

var (
	// ErrInvalidCredentials is returned when a passphrase does not unlock an envelope.
	// A wrong passphrase is only ever detected through padding or key parse failure.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrDecryptionFailed is returned when an RSA-OAEP ciphertext cannot be decrypted
	// with the supplied private key.
	ErrDecryptionFailed = errors.New("decryption failed")

	// ErrPayloadTooLarge is returned when a plaintext exceeds the OAEP capacity.
	ErrPayloadTooLarge = limits.ErrPayloadTooLarge

	// ErrKeyMaterialMissing is returned when an operation needs a key that is not present.
	ErrKeyMaterialMissing = errors.New("key material missing")

	// ErrInvalidEnvelope is returned when an encrypted private key envelope is malformed.
	ErrInvalidEnvelope = errors.New("invalid key envelope")

	// ErrInvalidSaltSize is returned when a KDF salt has the wrong length.
	ErrInvalidSaltSize = errors.New("invalid salt size")

	// ErrInvalidKeyEncoding is returned when an RSAKeyValue document cannot be parsed.
	ErrInvalidKeyEncoding = errors.New("invalid key encoding")

	// ErrWeakKey is returned when a requested modulus is below MinKeyBits.
	ErrWeakKey = errors.New("rsa modulus too small")
)
