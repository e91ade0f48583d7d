package securemsg

import (
	"errors"

	"github.com/opd-ai/securemsg/account"
	"github.com/opd-ai/securemsg/crypto"
	"github.com/opd-ai/securemsg/transport"
)

// Errors reported by Messenger, comparable with errors.Is.
var (
	ErrInvalidCredentials = crypto.ErrInvalidCredentials
	ErrPayloadTooLarge    = crypto.ErrPayloadTooLarge
	ErrDecryptionFailed   = crypto.ErrDecryptionFailed
	ErrKeyMaterialMissing = crypto.ErrKeyMaterialMissing
	ErrInvalidEnvelope    = crypto.ErrInvalidEnvelope
	ErrInvalidKeyEncoding = crypto.ErrInvalidKeyEncoding
	ErrIncompleteFrame    = transport.ErrIncompleteFrame
	ErrFrameTooLarge      = transport.ErrFrameTooLarge
	ErrStorageFailure     = account.ErrStorageFailure
	ErrTooManyAttempts    = account.ErrTooManyAttempts

	// ErrNotLoggedIn is returned by operations that need an unlocked account.
	ErrNotLoggedIn = errors.New("not logged in")
	// ErrAlreadyListening is returned by StartListening while a listener runs.
	ErrAlreadyListening = errors.New("already listening")
	// ErrInvalidPort is returned for ports outside 0-65535.
	ErrInvalidPort = errors.New("invalid port")
)
