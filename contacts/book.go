// Package contacts keeps the address book of known peers in a JSON file.
package contacts

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/securemsg/crypto"
)

// DefaultFile is the address book used when none is configured.
const DefaultFile = "contacts.json"

var (
	// ErrInvalidContact is returned when a contact fails validation.
	ErrInvalidContact = errors.New("invalid contact")
	// ErrNotFound is returned when no contact has the requested name.
	ErrNotFound = errors.New("contact not found")
)

// Contact is a peer reachable over TCP.
type Contact struct {
	Name      string `json:"Name"`
	IPAddress string `json:"IPAddress"`
	Port      int    `json:"Port"`
	PublicKey string `json:"PublicKey"`
}

// Validate checks the name, port range and public key document.
func (c Contact) Validate() error {
	if strings.TrimSpace(c.Name) == "" {
		return fmt.Errorf("%w: empty name", ErrInvalidContact)
	}
	if strings.TrimSpace(c.IPAddress) == "" {
		return fmt.Errorf("%w: empty address", ErrInvalidContact)
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidContact, c.Port)
	}
	if _, err := crypto.ParsePublicKeyXML(c.PublicKey); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidContact, err)
	}
	return nil
}

// Book is an address book backed by a JSON file. Names are unique,
// compared case-insensitively.
type Book struct {
	path string

	mu       sync.Mutex
	contacts []Contact
}

// Load reads the address book at path. A missing file yields an empty book.
func Load(path string) (*Book, error) {
	if path == "" {
		path = DefaultFile
	}
	b := &Book{path: path}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return b, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read contacts: %w", err)
	}
	if len(strings.TrimSpace(string(data))) == 0 {
		return b, nil
	}
	if err := json.Unmarshal(data, &b.contacts); err != nil {
		return nil, fmt.Errorf("parse contacts %s: %w", path, err)
	}

	logrus.WithFields(logrus.Fields{
		"package":  "contacts",
		"function": "Load",
		"count":    len(b.contacts),
	}).Debug("Loaded contacts")
	return b, nil
}

// Path returns the backing file.
func (b *Book) Path() string {
	return b.path
}

// List returns the contacts sorted by name.
func (b *Book) List() []Contact {
	b.mu.Lock()
	out := append([]Contact(nil), b.contacts...)
	b.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name)
	})
	return out
}

// Find looks a contact up by name.
func (b *Book) Find(name string) (Contact, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if i := b.indexLocked(name); i >= 0 {
		return b.contacts[i], true
	}
	return Contact{}, false
}

// Upsert adds c or replaces the contact with the same name, then saves.
// It reports whether an existing contact was replaced.
func (b *Book) Upsert(c Contact) (bool, error) {
	c.Name = strings.TrimSpace(c.Name)
	c.IPAddress = strings.TrimSpace(c.IPAddress)
	if err := c.Validate(); err != nil {
		return false, err
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	next := append([]Contact(nil), b.contacts...)
	replaced := false
	if i := b.indexLocked(c.Name); i >= 0 {
		next[i] = c
		replaced = true
	} else {
		next = append(next, c)
	}

	if err := b.saveLocked(next); err != nil {
		return false, err
	}
	b.contacts = next
	return replaced, nil
}

// Delete removes the named contact and saves.
func (b *Book) Delete(name string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	i := b.indexLocked(name)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	next := append(append([]Contact(nil), b.contacts[:i]...), b.contacts[i+1:]...)
	if err := b.saveLocked(next); err != nil {
		return err
	}
	b.contacts = next
	return nil
}

func (b *Book) indexLocked(name string) int {
	name = strings.TrimSpace(name)
	for i, c := range b.contacts {
		if strings.EqualFold(c.Name, name) {
			return i
		}
	}
	return -1
}

// saveLocked writes to a temporary file and renames it over the book.
func (b *Book) saveLocked(contacts []Contact) error {
	if contacts == nil {
		contacts = []Contact{}
	}
	data, err := json.MarshalIndent(contacts, "", "  ")
	if err != nil {
		return fmt.Errorf("encode contacts: %w", err)
	}

	dir := filepath.Dir(b.path)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create contacts dir: %w", err)
	}
	tmp := filepath.Join(dir, "."+filepath.Base(b.path)+"."+uuid.NewString()+".tmp")
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("write contacts: %w", err)
	}
	if err := os.Rename(tmp, b.path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("replace contacts: %w", err)
	}
	return nil
}
