package messaging

import "fmt"

// State is a step in a message's pipeline.
type State uint8

const (
	// StateComposed: outbound content and recipient are known.
	StateComposed State = iota
	// StateSerialized: the envelope has been encoded to JSON.
	StateSerialized
	// StateEncrypted: the JSON has been RSA-OAEP encrypted.
	StateEncrypted
	// StateFramed: the ciphertext fits in a frame.
	StateFramed
	// StateSent: the frame was written to the peer.
	StateSent

	// StateReceived: a frame arrived from the transport.
	StateReceived
	// StateUnframed: the frame payload has been extracted.
	StateUnframed
	// StateDecrypted: the payload decrypted with the session key.
	StateDecrypted
	// StateDeserialized: the plaintext parsed as an envelope.
	StateDeserialized
	// StateDelivered: subscribers have been handed the envelope.
	StateDelivered

	// StateFailed is terminal for any message that aborted.
	StateFailed
)

var stateNames = map[State]string{
	StateComposed:     "composed",
	StateSerialized:   "serialized",
	StateEncrypted:    "encrypted",
	StateFramed:       "framed",
	StateSent:         "sent",
	StateReceived:     "received",
	StateUnframed:     "unframed",
	StateDecrypted:    "decrypted",
	StateDeserialized: "deserialized",
	StateDelivered:    "delivered",
	StateFailed:       "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", uint8(s))
}

// Direction distinguishes the outbound and inbound pipelines.
type Direction string

const (
	Outbound Direction = "outbound"
	Inbound  Direction = "inbound"
)

// StageError reports which transition aborted a message. Stage is the state
// the message failed to reach.
type StageError struct {
	Direction Direction
	Stage     State
	FrameID   string
	Err       error
}

func (e *StageError) Error() string {
	if e.FrameID != "" {
		return fmt.Sprintf("%s message %s failed at %s: %v", e.Direction, e.FrameID, e.Stage, e.Err)
	}
	return fmt.Sprintf("%s message failed at %s: %v", e.Direction, e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}
