package account

import (
	"crypto/rsa"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/securemsg/crypto"
)

const (
	// DefaultDir is the key directory used when none is configured.
	DefaultDir = "Keys"
	// PublicKeyFile holds the RSAKeyValue public key document.
	PublicKeyFile = "public.xml"
	// PrivateKeyFile holds the JSON-encoded sealed private key.
	PrivateKeyFile = "private.enc"

	stagingMarker = ".staging-"
	trashMarker   = ".trash-"
)

var (
	// ErrKeyMaterialMissing is returned when no account exists.
	ErrKeyMaterialMissing = crypto.ErrKeyMaterialMissing
	// ErrStorageFailure wraps I/O errors on the key directory.
	ErrStorageFailure = errors.New("key storage failure")
	// ErrKeyMismatch indicates private.enc does not belong to public.xml.
	ErrKeyMismatch = fmt.Errorf("%w: private key does not match public key", crypto.ErrInvalidEnvelope)
)

// Store manages the key directory of a single account.
type Store struct {
	dir     string
	keyBits int

	mu sync.Mutex
}

// Open prepares a store rooted at dir and removes staging or trash
// directories left behind by an interrupted Create or Delete.
func Open(dir string) (*Store, error) {
	if dir == "" {
		dir = DefaultDir
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: resolve %s: %w", ErrStorageFailure, dir, err)
	}

	s := &Store{dir: abs, keyBits: crypto.DefaultKeyBits}
	if err := os.MkdirAll(filepath.Dir(abs), 0o700); err != nil {
		return nil, fmt.Errorf("%w: create parent: %w", ErrStorageFailure, err)
	}
	s.removeStale()
	return s, nil
}

// Dir returns the absolute key directory.
func (s *Store) Dir() string {
	return s.dir
}

// Exists reports whether both key files are present.
func (s *Store) Exists() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.existsLocked()
}

func (s *Store) existsLocked() bool {
	return isRegular(filepath.Join(s.dir, PublicKeyFile)) &&
		isRegular(filepath.Join(s.dir, PrivateKeyFile))
}

// Create generates a key pair, seals the private half under passphrase and
// moves both files into place with one rename. It is a no-op when the
// account already exists.
func (s *Store) Create(passphrase []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logger("Create").WithField("dir", s.dir)
	if s.existsLocked() {
		log.Info("Account already exists, keeping current keys")
		return nil
	}

	kp, err := crypto.GenerateKeyPair(s.keyBits)
	if err != nil {
		return fmt.Errorf("generate key pair: %w", err)
	}
	defer crypto.WipePrivateKey(kp.Private)

	publicXML, err := crypto.MarshalPublicKeyXML(kp.Public)
	if err != nil {
		return err
	}
	env, err := crypto.SealPrivateKey(kp.Private, passphrase)
	if err != nil {
		return err
	}
	sealed, err := crypto.MarshalEnvelope(env)
	if err != nil {
		return err
	}

	staging := s.dir + stagingMarker + uuid.NewString()
	if err := os.Mkdir(staging, 0o700); err != nil {
		return fmt.Errorf("%w: create staging dir: %w", ErrStorageFailure, err)
	}
	committed := false
	defer func() {
		if !committed {
			os.RemoveAll(staging)
		}
	}()

	if err := writeFileSync(filepath.Join(staging, PublicKeyFile), []byte(publicXML), 0o644); err != nil {
		return err
	}
	if err := writeFileSync(filepath.Join(staging, PrivateKeyFile), sealed, 0o600); err != nil {
		return err
	}

	// An incomplete directory from an earlier failure is replaced wholesale.
	if _, err := os.Lstat(s.dir); err == nil {
		log.Warn("Replacing incomplete key directory")
		if err := s.discardLocked(); err != nil {
			return err
		}
	}

	if err := os.Rename(staging, s.dir); err != nil {
		return fmt.Errorf("%w: commit key directory: %w", ErrStorageFailure, err)
	}
	committed = true
	syncDir(filepath.Dir(s.dir))

	log.WithFields(crypto.KeyFields(kp.Public)).Info("Account created")
	return nil
}

// Unlock opens the sealed private key and returns a session holding it.
func (s *Store) Unlock(passphrase []byte) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pub, err := s.publicKeyLocked()
	if err != nil {
		return nil, err
	}
	env, err := s.envelopeLocked()
	if err != nil {
		return nil, err
	}

	priv, err := crypto.UnlockPrivateKey(env, passphrase)
	if err != nil {
		logger("Unlock").WithField("dir", s.dir).Debug("Passphrase rejected")
		return nil, err
	}
	if !priv.PublicKey.Equal(pub) {
		crypto.WipePrivateKey(priv)
		return nil, ErrKeyMismatch
	}

	logger("Unlock").WithFields(crypto.KeyFields(pub)).Debug("Account unlocked")
	return newSession(priv), nil
}

// ValidatePassphrase reports whether passphrase unlocks the account. The
// unlocked key is discarded immediately.
func (s *Store) ValidatePassphrase(passphrase []byte) bool {
	session, err := s.Unlock(passphrase)
	if err != nil {
		return false
	}
	session.Close()
	return true
}

// Delete removes the account. The key directory is renamed away first, so
// Exists turns false atomically even if removing the files later fails.
// Deleting a missing account is not an error.
func (s *Store) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Lstat(s.dir); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := s.discardLocked(); err != nil {
		return err
	}
	logger("Delete").WithField("dir", s.dir).Info("Account deleted")
	return nil
}

func (s *Store) discardLocked() error {
	trash := s.dir + trashMarker + uuid.NewString()
	if err := os.Rename(s.dir, trash); err != nil {
		return fmt.Errorf("%w: move key directory aside: %w", ErrStorageFailure, err)
	}
	syncDir(filepath.Dir(s.dir))

	if err := os.RemoveAll(trash); err != nil {
		// Already invisible; the next Open retries the removal.
		logger("discard").WithError(err).WithField("path", trash).Warn("Failed to remove discarded key directory")
	}
	return nil
}

// PublicKeyXML returns the stored public key document verbatim.
func (s *Store) PublicKeyXML() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := s.readLocked(PublicKeyFile)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// PublicKey returns the parsed public key.
func (s *Store) PublicKey() (*rsa.PublicKey, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.publicKeyLocked()
}

func (s *Store) publicKeyLocked() (*rsa.PublicKey, error) {
	data, err := s.readLocked(PublicKeyFile)
	if err != nil {
		return nil, err
	}
	return crypto.ParsePublicKeyXML(string(data))
}

func (s *Store) envelopeLocked() (*crypto.Envelope, error) {
	data, err := s.readLocked(PrivateKeyFile)
	if err != nil {
		return nil, err
	}
	return crypto.UnmarshalEnvelope(data)
}

func (s *Store) readLocked(name string) ([]byte, error) {
	if !s.existsLocked() {
		return nil, ErrKeyMaterialMissing
	}
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, ErrKeyMaterialMissing
		}
		return nil, fmt.Errorf("%w: read %s: %w", ErrStorageFailure, name, err)
	}
	return data, nil
}

// removeStale deletes sibling staging and trash directories belonging to
// this store.
func (s *Store) removeStale() {
	parent, base := filepath.Split(s.dir)
	entries, err := os.ReadDir(parent)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if !entry.IsDir() {
			continue
		}
		if !strings.HasPrefix(name, base+stagingMarker) && !strings.HasPrefix(name, base+trashMarker) {
			continue
		}
		path := filepath.Join(parent, name)
		if err := os.RemoveAll(path); err != nil {
			logger("Open").WithError(err).WithField("path", path).Warn("Failed to remove stale key directory")
			continue
		}
		logger("Open").WithField("path", path).Debug("Removed stale key directory")
	}
}

func writeFileSync(path string, data []byte, perm os.FileMode) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("%w: create %s: %w", ErrStorageFailure, filepath.Base(path), err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("%w: write %s: %w", ErrStorageFailure, filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("%w: sync %s: %w", ErrStorageFailure, filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %w", ErrStorageFailure, filepath.Base(path), err)
	}
	return nil
}

// syncDir flushes a directory entry change. Not every platform supports it.
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	d.Sync()
	d.Close()
}

func isRegular(path string) bool {
	info, err := os.Lstat(path)
	return err == nil && info.Mode().IsRegular()
}

func logger(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"package":  "account",
		"function": function,
	})
}
