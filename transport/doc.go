// Package transport carries opaque byte payloads over TCP using a 4-byte
// length prefix. It knows nothing about encryption.
//
// # Wire Format
//
// Each frame is a little-endian uint32 length followed by exactly that many
// payload bytes. There is no version byte and no magic number:
//
//	+----------------+---------------------------+
//	| length (4, LE) | payload (length bytes)    |
//	+----------------+---------------------------+
//
// [ReadFrame] never interprets a frame until every payload byte has arrived.
// If the stream ends early it returns [ErrIncompleteFrame] and discards what it
// read. The advertised length is checked against a maximum before the buffer
// is allocated ([ErrFrameTooLarge]).
//
// # Connections
//
// Outbound delivery opens one connection per frame:
//
//	sender := transport.NewSender(10*time.Second, 5*time.Second, nil)
//	err := sender.SendFrame(ctx, "203.0.113.7:5000", ciphertext)
//
// Inbound, a [Listener] accepts connections in its own goroutine and hands each
// one to a separate handler that reads a single frame and publishes it on
// [Listener.Frames]:
//
//	l, err := transport.Listen(":5000", transport.ListenerOptions{})
//	for frame := range l.Frames() {
//	    process(frame.Payload)
//	}
//
// [Listener.Close] stops the accept loop, waits up to ShutdownGrace for
// in-flight handlers, force-closes the rest and finally closes the channel.
//
// # Admission Limiting
//
// ListenerOptions.RateLimit enables a per-remote-host token bucket
// (golang.org/x/time/rate). Connections over the budget are closed before any
// bytes are read.
package transport
