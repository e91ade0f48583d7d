package crypto

import (
	"crypto/rsa"
	"crypto/subtle"
	"errors"
	"runtime"
)

// SecureWipe overwrites a byte slice holding sensitive data with zeros.
// It returns an error if the slice is nil.
func SecureWipe(data []byte) error {
	if data == nil {
		return errors.New("cannot wipe nil data")
	}

	zeros := make([]byte, len(data))
	subtle.ConstantTimeCopy(1, data, zeros)
	runtime.KeepAlive(data)
	return nil
}

// ZeroBytes wipes data, ignoring nil slices.
func ZeroBytes(data []byte) {
	_ = SecureWipe(data)
}

// WipePrivateKey zeroes the exported secret components of an RSA private key.
// This is best effort: big.Int may have copied words during arithmetic, and
// the runtime keeps its own precomputed form. Drop the key after calling it.
func WipePrivateKey(priv *rsa.PrivateKey) {
	if priv == nil {
		return
	}
	if priv.D != nil {
		priv.D.SetInt64(0)
	}
	for _, p := range priv.Primes {
		if p != nil {
			p.SetInt64(0)
		}
	}
	pre := &priv.Precomputed
	if pre.Dp != nil {
		pre.Dp.SetInt64(0)
	}
	if pre.Dq != nil {
		pre.Dq.SetInt64(0)
	}
	if pre.Qinv != nil {
		pre.Qinv.SetInt64(0)
	}
	runtime.KeepAlive(priv)
}
