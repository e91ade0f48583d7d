package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/securemsg/metrics"
)

// Sender delivers frames over short-lived outbound connections: one dial,
// one frame, one close. Concurrent sends share no connection state.
type Sender struct {
	dialTimeout  time.Duration
	writeTimeout time.Duration
	metrics      *metrics.Metrics
}

// NewSender creates a Sender. Zero timeouts select 10s dial and 5s write.
func NewSender(dialTimeout, writeTimeout time.Duration, m *metrics.Metrics) *Sender {
	if dialTimeout <= 0 {
		dialTimeout = 10 * time.Second
	}
	if writeTimeout <= 0 {
		writeTimeout = 5 * time.Second
	}
	return &Sender{dialTimeout: dialTimeout, writeTimeout: writeTimeout, metrics: m}
}

// SendFrame dials address, writes payload as one frame and closes the connection.
func (s *Sender) SendFrame(ctx context.Context, address string, payload []byte) error {
	log := logger("SendFrame").WithFields(logrus.Fields{
		"remote_addr":  address,
		"payload_size": len(payload),
	})

	dialer := net.Dialer{Timeout: s.dialTimeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		log.WithError(err).Warn("Dial failed")
		return fmt.Errorf("failed to connect to %s: %w", address, err)
	}
	defer conn.Close()

	deadline := time.Now().Add(s.writeTimeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetWriteDeadline(deadline); err != nil {
		return fmt.Errorf("failed to set write deadline: %w", err)
	}

	if err := WriteFrame(conn, payload); err != nil {
		log.WithError(err).Warn("Frame write failed")
		return fmt.Errorf("failed to write frame to %s: %w", address, err)
	}

	s.metrics.FrameSent()
	log.Debug("Frame sent")
	return nil
}
