package transport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/securemsg/limits"
	"github.com/opd-ai/securemsg/metrics"
)

// InboundFrame is one complete frame read from an accepted connection.
type InboundFrame struct {
	ID         string
	Payload    []byte
	RemoteAddr net.Addr
	ReceivedAt time.Time
}

// ListenerOptions configures a Listener. Zero values select defaults.
type ListenerOptions struct {
	// MaxFrameSize bounds the advertised payload length.
	MaxFrameSize uint32
	// ReadTimeout bounds how long a peer may take to deliver its frame.
	ReadTimeout time.Duration
	// ShutdownGrace is how long Close waits for in-flight handlers before
	// closing their connections.
	ShutdownGrace time.Duration
	// QueueSize is the capacity of the Frames channel.
	QueueSize int
	// RateLimit is the sustained connections per second admitted from one
	// remote host. Zero disables admission limiting.
	RateLimit float64
	// RateBurst is the bucket size for RateLimit.
	RateBurst int
	// Metrics receives transport counters. May be nil.
	Metrics *metrics.Metrics
}

// DefaultListenerOptions returns the options used when fields are left zero.
func DefaultListenerOptions() ListenerOptions {
	return ListenerOptions{
		MaxFrameSize:  limits.MaxFrameSize,
		ReadTimeout:   30 * time.Second,
		ShutdownGrace: 5 * time.Second,
		QueueSize:     64,
	}
}

func (o ListenerOptions) withDefaults() ListenerOptions {
	d := DefaultListenerOptions()
	if o.MaxFrameSize == 0 {
		o.MaxFrameSize = d.MaxFrameSize
	}
	if o.ReadTimeout == 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.ShutdownGrace == 0 {
		o.ShutdownGrace = d.ShutdownGrace
	}
	if o.QueueSize <= 0 {
		o.QueueSize = d.QueueSize
	}
	return o
}

// Listener accepts TCP connections and reads one frame from each. Every
// connection is handled on its own goroutine, so a slow or failing peer
// never stalls the accept loop or other peers.
type Listener struct {
	listener net.Listener
	opts     ListenerOptions
	limiter  *admissionLimiter
	metrics  *metrics.Metrics

	frames     chan InboundFrame
	acceptDone chan struct{}

	// abandon is cancelled when the shutdown grace period expires.
	abandon       context.Context
	cancelAbandon context.CancelFunc

	mu       sync.Mutex
	conns    map[net.Conn]struct{}
	closed   bool
	handlers sync.WaitGroup

	closeOnce sync.Once
	closeErr  error
}

// Listen binds addr and starts accepting connections.
func Listen(addr string, opts ListenerOptions) (*Listener, error) {
	opts = opts.withDefaults()

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	l := &Listener{
		listener:      ln,
		opts:          opts,
		limiter:       newAdmissionLimiter(opts.RateLimit, opts.RateBurst, 0),
		metrics:       opts.Metrics,
		frames:        make(chan InboundFrame, opts.QueueSize),
		acceptDone:    make(chan struct{}),
		abandon:       ctx,
		cancelAbandon: cancel,
		conns:         make(map[net.Conn]struct{}),
	}

	logger("Listen").WithFields(logrus.Fields{
		"listen_addr":    ln.Addr().String(),
		"max_frame_size": opts.MaxFrameSize,
	}).Info("Listening for inbound frames")

	go l.acceptConnections()
	return l, nil
}

// Addr returns the bound address.
func (l *Listener) Addr() net.Addr {
	return l.listener.Addr()
}

// Frames returns the channel of received frames. It is closed after Close
// has finished with every connection.
func (l *Listener) Frames() <-chan InboundFrame {
	return l.frames
}

// Close stops accepting, gives in-flight handlers ShutdownGrace to finish,
// then closes whatever is left. It is safe to call more than once.
func (l *Listener) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()

		if err := l.listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			l.closeErr = err
		}
		<-l.acceptDone

		done := make(chan struct{})
		go func() {
			l.handlers.Wait()
			close(done)
		}()

		select {
		case <-done:
		case <-time.After(l.opts.ShutdownGrace):
			abandoned := l.closeConnections()
			logger("Close").WithField("abandoned", abandoned).Warn("Shutdown grace expired, abandoning connections")
			<-done
		}

		l.cancelAbandon()
		close(l.frames)
		logger("Close").WithField("listen_addr", l.listener.Addr().String()).Info("Listener stopped")
	})
	return l.closeErr
}

func (l *Listener) acceptConnections() {
	defer close(l.acceptDone)

	for {
		conn, err := l.listener.Accept()
		if err != nil {
			if l.isClosed() || errors.Is(err, net.ErrClosed) {
				return
			}
			logger("acceptConnections").WithError(err).Warn("Accept failed")
			time.Sleep(50 * time.Millisecond)
			continue
		}

		if !l.limiter.Allow(remoteHost(conn.RemoteAddr()), time.Now()) {
			l.metrics.ConnectionRejected()
			logger("acceptConnections").WithField("remote_addr", conn.RemoteAddr().String()).
				Warn("Connection rate exceeded, closing")
			conn.Close()
			continue
		}

		if !l.track(conn) {
			conn.Close()
			return
		}
		go l.handleConnection(conn)
	}
}

// handleConnection reads exactly one frame and publishes it.
func (l *Listener) handleConnection(conn net.Conn) {
	defer l.handlers.Done()
	defer l.untrack(conn)

	l.metrics.ConnectionAccepted()
	defer l.metrics.ConnectionClosed()

	id := uuid.NewString()
	log := logger("handleConnection").WithFields(logrus.Fields{
		"frame_id":    id,
		"remote_addr": conn.RemoteAddr().String(),
	})

	if err := conn.SetReadDeadline(time.Now().Add(l.opts.ReadTimeout)); err != nil {
		log.WithError(err).Warn("Failed to set read deadline")
		return
	}

	payload, err := ReadFrame(conn, l.opts.MaxFrameSize)
	if err != nil {
		l.metrics.FrameError(frameErrorReason(err))
		log.WithError(err).Warn("Dropping connection without a complete frame")
		return
	}
	l.metrics.FrameReceived()

	frame := InboundFrame{
		ID:         id,
		Payload:    payload,
		RemoteAddr: conn.RemoteAddr(),
		ReceivedAt: time.Now(),
	}

	select {
	case l.frames <- frame:
		log.WithField("payload_size", len(payload)).Debug("Frame received")
	case <-l.abandon.Done():
		log.Warn("Listener abandoned, frame discarded")
	}
}

// track registers conn and reserves a handler slot. It fails once Close has begun.
func (l *Listener) track(conn net.Conn) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return false
	}
	l.conns[conn] = struct{}{}
	l.handlers.Add(1)
	return true
}

func (l *Listener) untrack(conn net.Conn) {
	l.mu.Lock()
	delete(l.conns, conn)
	l.mu.Unlock()
	conn.Close()
}

func (l *Listener) closeConnections() int {
	l.cancelAbandon()

	l.mu.Lock()
	defer l.mu.Unlock()
	for conn := range l.conns {
		conn.Close()
	}
	return len(l.conns)
}

func (l *Listener) isClosed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.closed
}

func frameErrorReason(err error) string {
	switch {
	case errors.Is(err, ErrFrameTooLarge):
		return metrics.ReasonTooLarge
	case errors.Is(err, ErrIncompleteFrame):
		return metrics.ReasonIncomplete
	default:
		return metrics.ReasonIO
	}
}

func logger(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"function": function,
		"package":  "transport",
	})
}
