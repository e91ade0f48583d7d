package messaging

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvelopeMarshalFieldNames(t *testing.T) {
	ts := time.Date(2024, 3, 9, 14, 30, 0, 0, time.FixedZone("CET", 3600))
	data, err := Envelope{Sender: "alice", Timestamp: ts, Content: "hi"}.Marshal()
	require.NoError(t, err)

	var raw map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))
	assert.Equal(t, "alice", raw["Sender"])
	assert.Equal(t, "hi", raw["Content"])
	assert.Equal(t, "2024-03-09T13:30:00Z", raw["Timestamp"], "timestamp must be rendered in UTC")
	assert.Len(t, raw, 3)
}

func TestUnmarshalEnvelopeAcceptsDotNetTimestamps(t *testing.T) {
	env, err := UnmarshalEnvelope([]byte(`{"Sender":"bob","Timestamp":"2024-01-02T03:04:05.1234567Z","Content":"héllo"}`))
	require.NoError(t, err)

	assert.Equal(t, "bob", env.Sender)
	assert.Equal(t, "héllo", env.Content)
	assert.Equal(t, time.UTC, env.Timestamp.Location())
	assert.Equal(t, 123456700, env.Timestamp.Nanosecond())
}

func TestUnmarshalEnvelopeNormalizesOffsetToUTC(t *testing.T) {
	env, err := UnmarshalEnvelope([]byte(`{"Sender":"bob","Timestamp":"2024-01-02T05:04:05+02:00","Content":""}`))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), env.Timestamp)
}

func TestUnmarshalEnvelopeRejectsMalformed(t *testing.T) {
	cases := map[string][]byte{
		"null":          []byte("null"),
		"padded null":   []byte("  null\n"),
		"empty":         {},
		"not json":      []byte("hello"),
		"truncated":     []byte(`{"Sender":"a"`),
		"wrong type":    []byte(`{"Sender":1}`),
		"invalid utf-8": {'{', '"', 0xff, '"', ':', '1', '}'},
	}
	for name, data := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := UnmarshalEnvelope(data)
			assert.ErrorIs(t, err, ErrMalformedEnvelope)
		})
	}
}

func TestEnvelopeRoundTrip(t *testing.T) {
	in := Envelope{Sender: "alice", Timestamp: time.Date(2025, 6, 1, 8, 0, 0, 500, time.UTC), Content: "line one\nline two"}
	data, err := in.Marshal()
	require.NoError(t, err)

	out, err := UnmarshalEnvelope(data)
	require.NoError(t, err)
	assert.Equal(t, in, *out)
}
