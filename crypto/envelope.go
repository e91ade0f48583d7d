package crypto

import (
	"crypto/aes"
	"encoding/json"
	"fmt"
)

// Envelope is the at-rest form of a private key: the PBKDF2 salt, the CBC IV
// and the padded ciphertext. Its JSON form uses the field names Salt, IV and
// CipherText with standard base64 values.
type Envelope struct {
	Salt       []byte `json:"Salt"`
	IV         []byte `json:"IV"`
	CipherText []byte `json:"CipherText"`
}

// Validate checks field sizes without attempting decryption.
func (e *Envelope) Validate() error {
	if e == nil {
		return fmt.Errorf("%w: nil envelope", ErrInvalidEnvelope)
	}
	if len(e.Salt) != SaltSize {
		return fmt.Errorf("%w: salt is %d bytes, want %d", ErrInvalidEnvelope, len(e.Salt), SaltSize)
	}
	if len(e.IV) != aes.BlockSize {
		return fmt.Errorf("%w: iv is %d bytes, want %d", ErrInvalidEnvelope, len(e.IV), aes.BlockSize)
	}
	if len(e.CipherText) == 0 || len(e.CipherText)%aes.BlockSize != 0 {
		return fmt.Errorf("%w: ciphertext length %d is not a positive multiple of %d",
			ErrInvalidEnvelope, len(e.CipherText), aes.BlockSize)
	}
	return nil
}

// MarshalEnvelope encodes an envelope as the private.enc JSON document.
func MarshalEnvelope(env *Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(env)
}

// UnmarshalEnvelope decodes and validates a private.enc JSON document.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidEnvelope, err)
	}
	if err := env.Validate(); err != nil {
		return nil, err
	}
	return &env, nil
}
