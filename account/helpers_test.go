package account

import (
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

const testPassphrase = "correct-horse"

var (
	templateOnce sync.Once
	templateDir  string
	templateErr  error
)

func TestMain(m *testing.M) {
	code := m.Run()
	if templateDir != "" {
		os.RemoveAll(filepath.Dir(templateDir))
	}
	os.Exit(code)
}

// newAccount returns a store holding a copy of a pre-generated account so
// tests do not each pay for RSA key generation.
func newAccount(t *testing.T) *Store {
	t.Helper()
	templateOnce.Do(func() {
		root, err := os.MkdirTemp("", "securemsg-account-")
		if err != nil {
			templateErr = err
			return
		}
		templateDir = filepath.Join(root, DefaultDir)
		store, err := Open(templateDir)
		if err != nil {
			templateErr = err
			return
		}
		templateErr = store.Create([]byte(testPassphrase))
	})
	require.NoError(t, templateErr)

	dir := filepath.Join(t.TempDir(), DefaultDir)
	require.NoError(t, os.Mkdir(dir, 0o700))
	for _, name := range []string{PublicKeyFile, PrivateKeyFile} {
		data, err := os.ReadFile(filepath.Join(templateDir, name))
		require.NoError(t, err)
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), data, 0o600))
	}

	store, err := Open(dir)
	require.NoError(t, err)
	return store
}

func emptyStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), DefaultDir))
	require.NoError(t, err)
	return store
}
