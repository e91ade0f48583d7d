package account

import (
	"errors"
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/securemsg/crypto"
)

// MaxLoginAttempts is the number of consecutive wrong passphrases tolerated.
const MaxLoginAttempts = 3

// ErrTooManyAttempts is returned once a LoginGuard has locked out.
var ErrTooManyAttempts = errors.New("too many failed login attempts")

// LoginGuard counts consecutive wrong passphrases against a Store.
type LoginGuard struct {
	store *Store
	max   int

	mu       sync.Mutex
	failures int
}

// NewLoginGuard wraps store. A non-positive maxAttempts selects MaxLoginAttempts.
func NewLoginGuard(store *Store, maxAttempts int) *LoginGuard {
	if maxAttempts <= 0 {
		maxAttempts = MaxLoginAttempts
	}
	return &LoginGuard{store: store, max: maxAttempts}
}

// Attempt tries to unlock the account. Only wrong passphrases count toward
// the limit; once it is reached every call fails with ErrTooManyAttempts
// without reading key material.
func (g *LoginGuard) Attempt(passphrase []byte) (*Session, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.failures >= g.max {
		return nil, ErrTooManyAttempts
	}

	session, err := g.store.Unlock(passphrase)
	switch {
	case err == nil:
		g.failures = 0
		return session, nil
	case errors.Is(err, crypto.ErrInvalidCredentials):
		g.failures++
		remaining := g.max - g.failures
		logger("Attempt").WithFields(logrus.Fields{
			"failures":  g.failures,
			"remaining": remaining,
		}).Warn("Login failed")
		if remaining == 0 {
			return nil, fmt.Errorf("%w: %w", ErrTooManyAttempts, err)
		}
		return nil, err
	default:
		return nil, err
	}
}

// Remaining returns how many wrong passphrases are still tolerated.
func (g *LoginGuard) Remaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.max - g.failures
}

// Locked reports whether the guard refuses further attempts.
func (g *LoginGuard) Locked() bool {
	return g.Remaining() <= 0
}

// Reset clears the failure count.
func (g *LoginGuard) Reset() {
	g.mu.Lock()
	g.failures = 0
	g.mu.Unlock()
}
