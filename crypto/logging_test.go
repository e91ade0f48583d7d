package crypto

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prevOut, prevLevel, prevFormatter := logrus.StandardLogger().Out, logrus.GetLevel(), logrus.StandardLogger().Formatter
	logrus.SetOutput(&buf)
	logrus.SetLevel(logrus.DebugLevel)
	logrus.SetFormatter(&logrus.JSONFormatter{})
	t.Cleanup(func() {
		logrus.SetOutput(prevOut)
		logrus.SetLevel(prevLevel)
		logrus.SetFormatter(prevFormatter)
	})
	return &buf
}

func TestNewLoggerFields(t *testing.T) {
	logger := NewLogger("Seal")
	assert.Equal(t, "Seal", logger.fields["function"])
	assert.Equal(t, "crypto", logger.fields["package"])
}

func TestLoggerHelperOutput(t *testing.T) {
	buf := captureLogs(t)

	NewLogger("Open").
		WithField("size", 42).
		WithFields(logrus.Fields{"a": 1, "b": 2}).
		WithError(errors.New("boom"), "decrypt").
		Warn("something happened")

	out := buf.String()
	for _, want := range []string{`"function":"Open"`, `"size":42`, `"error":"boom"`, `"operation":"decrypt"`, `"level":"warning"`} {
		assert.Contains(t, out, want)
	}
}

// TestSecretsNotLogged seals and unlocks a key with debug logging on and
// checks the passphrase never reaches the log.
func TestSecretsNotLogged(t *testing.T) {
	buf := captureLogs(t)
	kp := testKeyPair(t)

	env, err := SealPrivateKey(kp.Private, []byte("super-secret-passphrase"))
	assert.NoError(t, err)
	_, _ = UnlockPrivateKey(env, []byte("another-secret"))

	assert.False(t, strings.Contains(buf.String(), "super-secret-passphrase"))
	assert.False(t, strings.Contains(buf.String(), "another-secret"))
}

func TestKeyFields(t *testing.T) {
	kp := testKeyPair(t)
	fields := KeyFields(kp.Public)
	assert.Equal(t, DefaultKeyBits, fields["key_bits"])
	assert.Equal(t, Fingerprint(kp.Public), fields["key_fingerprint"])

	empty := KeyFields(nil)
	assert.Equal(t, 0, empty["key_bits"])
}
