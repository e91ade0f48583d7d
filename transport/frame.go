package transport

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/opd-ai/securemsg/limits"
)

var (
	// ErrIncompleteFrame indicates the stream ended or failed before a whole
	// frame was read. Any bytes already received are discarded.
	ErrIncompleteFrame = errors.New("incomplete frame")

	// ErrFrameTooLarge indicates a frame length above the configured maximum.
	ErrFrameTooLarge = limits.ErrFrameTooLarge
)

// WriteFrame writes payload preceded by its 4-byte little-endian length.
// Prefix and payload go out as one buffer; short writes are retried until
// the frame is complete or the writer fails.
func WriteFrame(w io.Writer, payload []byte) error {
	if uint64(len(payload)) > math.MaxUint32 {
		return fmt.Errorf("%w: %d bytes cannot be length-prefixed", ErrFrameTooLarge, len(payload))
	}

	buf := make([]byte, limits.LengthPrefixSize+len(payload))
	binary.LittleEndian.PutUint32(buf, uint32(len(payload)))
	copy(buf[limits.LengthPrefixSize:], payload)

	return writeFull(w, buf)
}

func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		buf = buf[n:]
		if err != nil {
			return err
		}
		if n == 0 {
			return io.ErrShortWrite
		}
	}
	return nil
}

// ReadFrame reads one frame. The advertised length is checked against maxSize
// (zero selects limits.MaxFrameSize) before the payload buffer is allocated.
// A zero-length frame yields an empty, non-nil slice.
func ReadFrame(r io.Reader, maxSize uint32) ([]byte, error) {
	var header [limits.LengthPrefixSize]byte
	if n, err := io.ReadFull(r, header[:]); err != nil {
		return nil, fmt.Errorf("%w: length prefix %d/%d bytes: %w", ErrIncompleteFrame, n, len(header), err)
	}

	length := binary.LittleEndian.Uint32(header[:])
	if err := limits.ValidateFrameLength(length, maxSize); err != nil {
		return nil, err
	}

	payload := make([]byte, length)
	if n, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("%w: payload %d/%d bytes: %w", ErrIncompleteFrame, n, length, err)
	}
	return payload, nil
}
