package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"io"
)

// errBadPadding is internal; Open reports it as ErrInvalidCredentials.
var errBadPadding = errors.New("invalid pkcs7 padding")

// Seal encrypts private key bytes under a passphrase.
//
// A fresh salt and IV are drawn for every call, the key is derived with
// DeriveKey and the data is encrypted with AES-256-CBC and PKCS#7 padding.
// Nothing is persisted.
func Seal(privateKey, passphrase []byte) (*Envelope, error) {
	logger := NewLogger("Seal").WithField("plaintext_size", len(privateKey))
	logger.Debug("Sealing private key")

	salt, err := NewSalt()
	if err != nil {
		return nil, err
	}

	iv := make([]byte, aes.BlockSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("failed to generate iv: %w", err)
	}

	key, err := DeriveKey(passphrase, salt)
	if err != nil {
		return nil, err
	}
	defer ZeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	padded := pkcs7Pad(privateKey, aes.BlockSize)
	defer ZeroBytes(padded)

	ciphertext := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ciphertext, padded)

	logger.WithField("ciphertext_size", len(ciphertext)).Debug("Private key sealed")
	return &Envelope{Salt: salt, IV: iv, CipherText: ciphertext}, nil
}

// Open reverses Seal. A passphrase that yields invalid padding returns
// ErrInvalidCredentials; a structurally broken envelope returns ErrInvalidEnvelope.
func Open(env *Envelope, passphrase []byte) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}

	key, err := DeriveKey(passphrase, env.Salt)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	defer ZeroBytes(key)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}

	padded := make([]byte, len(env.CipherText))
	cipher.NewCBCDecrypter(block, env.IV).CryptBlocks(padded, env.CipherText)

	plaintext, err := pkcs7Unpad(padded, aes.BlockSize)
	if err != nil {
		ZeroBytes(padded)
		NewLogger("Open").Debug("Envelope padding check failed")
		return nil, ErrInvalidCredentials
	}

	out := make([]byte, len(plaintext))
	copy(out, plaintext)
	ZeroBytes(padded)
	return out, nil
}

func pkcs7Pad(data []byte, blockSize int) []byte {
	n := blockSize - len(data)%blockSize
	out := make([]byte, len(data)+n)
	copy(out, data)
	for i := len(data); i < len(out); i++ {
		out[i] = byte(n)
	}
	return out
}

// pkcs7Unpad inspects every padding byte without early exit.
func pkcs7Unpad(data []byte, blockSize int) ([]byte, error) {
	if len(data) == 0 || len(data)%blockSize != 0 {
		return nil, errBadPadding
	}

	n := int(data[len(data)-1])
	if n == 0 || n > blockSize {
		return nil, errBadPadding
	}

	good := 1
	for i := len(data) - n; i < len(data); i++ {
		good &= subtle.ConstantTimeByteEq(data[i], byte(n))
	}
	if good != 1 {
		return nil, errBadPadding
	}
	return data[:len(data)-n], nil
}
