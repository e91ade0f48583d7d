package messaging

import (
	"context"
	"crypto/rsa"
	"errors"
	"sync"
	"testing"

	"github.com/opd-ai/securemsg/crypto"
	"github.com/stretchr/testify/require"
)

var (
	keyOnce sync.Once
	keys    [2]*crypto.KeyPair
	keyErr  error
)

// testKeys returns two 2048-bit key pairs shared by the package tests.
func testKeys(t testing.TB) (*crypto.KeyPair, *crypto.KeyPair) {
	t.Helper()
	keyOnce.Do(func() {
		for i := range keys {
			if keys[i], keyErr = crypto.GenerateKeyPair(crypto.DefaultKeyBits); keyErr != nil {
				return
			}
		}
	})
	require.NoError(t, keyErr)
	return keys[0], keys[1]
}

type privateKeyDecrypter struct {
	priv *rsa.PrivateKey
}

func (d privateKeyDecrypter) Decrypt(ciphertext []byte) ([]byte, error) {
	return crypto.Decrypt(ciphertext, d.priv)
}

type sentFrame struct {
	address string
	payload []byte
}

type recordingSender struct {
	mu    sync.Mutex
	sent  []sentFrame
	fails error
}

func (s *recordingSender) SendFrame(_ context.Context, address string, payload []byte) error {
	if s.fails != nil {
		return s.fails
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentFrame{address: address, payload: append([]byte(nil), payload...)})
	return nil
}

func (s *recordingSender) frames() []sentFrame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]sentFrame(nil), s.sent...)
}

var errUnreachable = errors.New("connection refused")
