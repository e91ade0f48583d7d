package crypto

import (
	"bytes"
	"crypto/aes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSealOpenRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		plaintext  []byte
		passphrase string
	}{
		{"empty plaintext", []byte{}, "pw"},
		{"one byte", []byte{0x01}, "pw"},
		{"exact block", bytes.Repeat([]byte{0xAB}, aes.BlockSize), "correct-horse"},
		{"multi block", bytes.Repeat([]byte("key material "), 100), "correct-horse battery staple"},
		{"empty passphrase", []byte("secret"), ""},
		{"unicode passphrase", []byte("secret"), "pässwörd-🔑"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Seal(tt.plaintext, []byte(tt.passphrase))
			require.NoError(t, err)
			require.NoError(t, env.Validate())

			got, err := Open(env, []byte(tt.passphrase))
			require.NoError(t, err)
			assert.Equal(t, tt.plaintext, got)
		})
	}
}

func TestSealCiphertextLength(t *testing.T) {
	for _, n := range []int{0, 1, 15, 16, 17, 31, 32, 1000} {
		env, err := Seal(make([]byte, n), []byte("pw"))
		require.NoError(t, err)
		want := (n/aes.BlockSize + 1) * aes.BlockSize
		assert.Len(t, env.CipherText, want, "plaintext length %d", n)
	}
}

func TestSealFreshSaltAndIV(t *testing.T) {
	plaintext := []byte("same private key bytes")

	a, err := Seal(plaintext, []byte("pw"))
	require.NoError(t, err)
	b, err := Seal(plaintext, []byte("pw"))
	require.NoError(t, err)

	assert.NotEqual(t, a.Salt, b.Salt)
	assert.NotEqual(t, a.IV, b.IV)
	assert.NotEqual(t, a.CipherText, b.CipherText)
}

func TestOpenWrongPassphrase(t *testing.T) {
	kp := testKeyPair(t)
	encoded, err := MarshalPrivateKeyXML(kp.Private)
	require.NoError(t, err)

	env, err := Seal(encoded, []byte("correct-horse"))
	require.NoError(t, err)

	for _, wrong := range []string{"wrong", "", "correct-horse ", "Correct-horse"} {
		// Padding can survive a wrong key by chance; the key parse step catches it.
		_, err := UnlockPrivateKey(env, []byte(wrong))
		assert.ErrorIs(t, err, ErrInvalidCredentials, "passphrase %q", wrong)
	}
}

func TestOpenMalformedEnvelope(t *testing.T) {
	good, err := Seal([]byte("data"), []byte("pw"))
	require.NoError(t, err)

	tests := []struct {
		name   string
		mutate func(e *Envelope)
	}{
		{"short salt", func(e *Envelope) { e.Salt = e.Salt[:8] }},
		{"short iv", func(e *Envelope) { e.IV = e.IV[:8] }},
		{"empty ciphertext", func(e *Envelope) { e.CipherText = nil }},
		{"unaligned ciphertext", func(e *Envelope) { e.CipherText = e.CipherText[:len(e.CipherText)-1] }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := &Envelope{
				Salt:       append([]byte(nil), good.Salt...),
				IV:         append([]byte(nil), good.IV...),
				CipherText: append([]byte(nil), good.CipherText...),
			}
			tt.mutate(env)
			_, err := Open(env, []byte("pw"))
			assert.ErrorIs(t, err, ErrInvalidEnvelope)
		})
	}

	_, err = Open(nil, []byte("pw"))
	assert.ErrorIs(t, err, ErrInvalidEnvelope)
}

func TestPKCS7(t *testing.T) {
	padded := pkcs7Pad([]byte("abc"), 16)
	require.Len(t, padded, 16)
	assert.Equal(t, byte(13), padded[15])

	out, err := pkcs7Unpad(padded, 16)
	require.NoError(t, err)
	assert.Equal(t, []byte("abc"), out)

	full := pkcs7Pad(make([]byte, 16), 16)
	assert.Len(t, full, 32)

	bad := append([]byte(nil), padded...)
	bad[14] = 0x01
	_, err = pkcs7Unpad(bad, 16)
	assert.Error(t, err)

	zero := make([]byte, 16)
	_, err = pkcs7Unpad(zero, 16)
	assert.Error(t, err)

	tooBig := bytes.Repeat([]byte{17}, 16)
	_, err = pkcs7Unpad(tooBig, 16)
	assert.Error(t, err)
}
