package crypto

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"errors"
	"fmt"

	"github.com/opd-ai/securemsg/limits"
)

const (
	// DefaultKeyBits is the modulus size for new accounts.
	DefaultKeyBits = 2048
	// MinKeyBits is the smallest modulus GenerateKeyPair accepts.
	MinKeyBits = 2048
)

// KeyPair holds an RSA key pair.
type KeyPair struct {
	Public  *rsa.PublicKey
	Private *rsa.PrivateKey
}

// GenerateKeyPair creates a new RSA key pair. A bits value of zero selects
// DefaultKeyBits.
func GenerateKeyPair(bits int) (*KeyPair, error) {
	if bits == 0 {
		bits = DefaultKeyBits
	}
	if bits < MinKeyBits {
		return nil, fmt.Errorf("%w: %d bits, minimum %d", ErrWeakKey, bits, MinKeyBits)
	}

	logger := NewLogger("GenerateKeyPair").WithField("bits", bits)
	logger.Debug("Generating RSA key pair")

	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		logger.WithError(err, "rsa_generate").Error("Key generation failed")
		return nil, fmt.Errorf("failed to generate key pair: %w", err)
	}

	logger.WithField("fingerprint", Fingerprint(&priv.PublicKey)).Info("RSA key pair generated")
	return &KeyPair{Public: &priv.PublicKey, Private: priv}, nil
}

// MaxPlaintextSize returns the largest plaintext Encrypt accepts for pub.
func MaxPlaintextSize(pub *rsa.PublicKey) int {
	if pub == nil || pub.N == nil {
		return 0
	}
	return limits.OAEPCapacity(pub.Size())
}

// Encrypt encrypts plaintext for the holder of pub using RSA-OAEP with
// SHA-256 and an empty label. Plaintexts above MaxPlaintextSize fail with
// ErrPayloadTooLarge.
func Encrypt(plaintext []byte, pub *rsa.PublicKey) ([]byte, error) {
	if pub == nil || pub.N == nil {
		return nil, ErrKeyMaterialMissing
	}
	if err := limits.ValidatePlaintext(plaintext, pub.Size()); err != nil {
		return nil, err
	}

	ciphertext, err := rsa.EncryptOAEP(sha256.New(), rand.Reader, pub, plaintext, nil)
	if err != nil {
		// Covered by the capacity check above; only a malformed key lands here.
		if errors.Is(err, rsa.ErrMessageTooLong) {
			return nil, fmt.Errorf("%w: %v", ErrPayloadTooLarge, err)
		}
		return nil, fmt.Errorf("oaep encryption failed: %w", err)
	}
	return ciphertext, nil
}

// Decrypt reverses Encrypt. Any failure is reported as ErrDecryptionFailed
// so a wrong key and a corrupted ciphertext are indistinguishable.
func Decrypt(ciphertext []byte, priv *rsa.PrivateKey) ([]byte, error) {
	if priv == nil {
		return nil, ErrKeyMaterialMissing
	}

	plaintext, err := rsa.DecryptOAEP(sha256.New(), nil, priv, ciphertext, nil)
	if err != nil {
		NewLogger("Decrypt").WithField("ciphertext_size", len(ciphertext)).Debug("OAEP decryption rejected")
		return nil, ErrDecryptionFailed
	}
	return plaintext, nil
}

// SealPrivateKey serializes priv and seals it under passphrase.
func SealPrivateKey(priv *rsa.PrivateKey, passphrase []byte) (*Envelope, error) {
	encoded, err := MarshalPrivateKeyXML(priv)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(encoded)
	return Seal(encoded, passphrase)
}

// UnlockPrivateKey opens env and parses the private key inside it. Both a
// padding failure and an unparseable result mean the passphrase was wrong.
func UnlockPrivateKey(env *Envelope, passphrase []byte) (*rsa.PrivateKey, error) {
	encoded, err := Open(env, passphrase)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(encoded)

	priv, err := ParsePrivateKeyXML(encoded)
	if err != nil {
		NewLogger("UnlockPrivateKey").Debug("Decrypted envelope is not a valid key")
		return nil, ErrInvalidCredentials
	}
	return priv, nil
}
