package messaging

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"time"
	"unicode/utf8"
)

// ErrMalformedEnvelope indicates decrypted bytes are not a message envelope.
var ErrMalformedEnvelope = errors.New("malformed message envelope")

// Envelope is the plaintext message carried inside each frame. Only its JSON
// encoding is encrypted; the struct itself holds no cryptographic state.
type Envelope struct {
	Sender    string    `json:"Sender"`
	Timestamp time.Time `json:"Timestamp"`
	Content   string    `json:"Content"`
}

// Marshal encodes the envelope as UTF-8 JSON with an RFC 3339 UTC timestamp.
func (e Envelope) Marshal() ([]byte, error) {
	e.Timestamp = e.Timestamp.UTC()
	return json.Marshal(e)
}

// UnmarshalEnvelope decodes a JSON envelope. Invalid UTF-8, invalid JSON and
// a JSON null are all rejected with ErrMalformedEnvelope.
func UnmarshalEnvelope(data []byte) (*Envelope, error) {
	if !utf8.Valid(data) {
		return nil, fmt.Errorf("%w: invalid utf-8", ErrMalformedEnvelope)
	}
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("%w: empty document", ErrMalformedEnvelope)
	}

	var env Envelope
	if err := json.Unmarshal(trimmed, &env); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	env.Timestamp = env.Timestamp.UTC()
	return &env, nil
}
