package account

import (
	"crypto/rsa"
	"sync"
	"time"

	"github.com/opd-ai/securemsg/crypto"
)

// Session holds an unlocked private key. Decrypt may be called from many
// goroutines; Close wipes the key and makes later calls fail.
type Session struct {
	mu       sync.RWMutex
	priv     *rsa.PrivateKey
	pub      *rsa.PublicKey
	openedAt time.Time
}

func newSession(priv *rsa.PrivateKey) *Session {
	pub := priv.PublicKey
	return &Session{priv: priv, pub: &pub, openedAt: time.Now()}
}

// Decrypt opens a ciphertext addressed to this account.
func (s *Session) Decrypt(ciphertext []byte) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.priv == nil {
		return nil, ErrKeyMaterialMissing
	}
	return crypto.Decrypt(ciphertext, s.priv)
}

// PublicKey returns the session's public key. It stays valid after Close.
func (s *Session) PublicKey() *rsa.PublicKey {
	return s.pub
}

// OpenedAt reports when the session was unlocked.
func (s *Session) OpenedAt() time.Time {
	return s.openedAt
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.priv == nil
}

// Close wipes the private key. It is safe to call more than once.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.priv == nil {
		return
	}
	crypto.WipePrivateKey(s.priv)
	s.priv = nil
}
