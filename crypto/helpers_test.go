package crypto

import (
	"crypto/rsa"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

var (
	sharedKeyOnce sync.Once
	sharedKey     *KeyPair
	sharedKeyErr  error
)

// testKeyPair returns a 2048-bit key pair shared across tests in this package.
// Key generation dominates test time otherwise.
func testKeyPair(t testing.TB) *KeyPair {
	t.Helper()
	sharedKeyOnce.Do(func() {
		sharedKey, sharedKeyErr = GenerateKeyPair(DefaultKeyBits)
	})
	require.NoError(t, sharedKeyErr)
	return sharedKey
}

func freshPrivateKey(t testing.TB) *rsa.PrivateKey {
	t.Helper()
	kp, err := GenerateKeyPair(DefaultKeyBits)
	require.NoError(t, err)
	return kp.Private
}
