package messaging

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/securemsg/crypto"
	"github.com/opd-ai/securemsg/limits"
	"github.com/opd-ai/securemsg/metrics"
	"github.com/opd-ai/securemsg/transport"
)

// ErrEmptyFrame indicates a frame with no payload reached the inbound pipeline.
var ErrEmptyFrame = errors.New("empty frame payload")

// DefaultWorkers is the number of inbound decrypt workers.
const DefaultWorkers = 4

// FrameSender delivers one framed payload to a peer address.
type FrameSender interface {
	SendFrame(ctx context.Context, address string, payload []byte) error
}

// Decrypter opens ciphertext addressed to the local account.
type Decrypter interface {
	Decrypt(ciphertext []byte) ([]byte, error)
}

// Options configures a Coordinator.
type Options struct {
	SenderName   string
	Workers      int
	MaxFrameSize uint32
	Clock        TimeProvider
	Metrics      *metrics.Metrics
	// ErrorHandler, when set, receives every inbound *StageError.
	ErrorHandler func(error)
}

// Coordinator runs the outbound and inbound message pipelines and fans
// delivered envelopes out to subscribers.
type Coordinator struct {
	sender    FrameSender
	decrypter Decrypter
	opts      Options

	nameMu     sync.RWMutex
	senderName string

	// mu guards the subscriber set only; it is never held while sending.
	mu          sync.RWMutex
	subscribers map[uint64]*Subscription
	nextID      uint64
}

// NewCoordinator creates a coordinator. decrypter may be nil for send-only use;
// inbound frames then fail at the decrypt stage.
func NewCoordinator(sender FrameSender, decrypter Decrypter, opts Options) *Coordinator {
	if opts.Workers <= 0 {
		opts.Workers = DefaultWorkers
	}
	if opts.MaxFrameSize == 0 {
		opts.MaxFrameSize = limits.MaxFrameSize
	}
	if opts.Clock == nil {
		opts.Clock = SystemClock{}
	}
	return &Coordinator{
		sender:      sender,
		decrypter:   decrypter,
		opts:        opts,
		senderName:  opts.SenderName,
		subscribers: make(map[uint64]*Subscription),
	}
}

// SetSenderName changes the name stamped on outgoing envelopes.
func (c *Coordinator) SetSenderName(name string) {
	c.nameMu.Lock()
	c.senderName = name
	c.nameMu.Unlock()
}

// SenderName returns the name stamped on outgoing envelopes.
func (c *Coordinator) SenderName() string {
	c.nameMu.RLock()
	defer c.nameMu.RUnlock()
	return c.senderName
}

// Send encrypts content for recipient and delivers it to address. The
// returned envelope is what the recipient will decode.
func (c *Coordinator) Send(ctx context.Context, content string, recipient *rsa.PublicKey, address string) (*Envelope, error) {
	log := logger("Send").WithField("address", address)

	env := &Envelope{
		Sender:    c.SenderName(),
		Timestamp: c.opts.Clock.Now().UTC(),
		Content:   content,
	}

	plaintext, err := env.Marshal()
	if err != nil {
		return nil, c.outboundFailure(StateSerialized, err)
	}

	ciphertext, err := crypto.Encrypt(plaintext, recipient)
	if err != nil {
		return nil, c.outboundFailure(StateEncrypted, err)
	}

	if uint64(len(ciphertext)) > uint64(c.opts.MaxFrameSize) {
		return nil, c.outboundFailure(StateFramed, fmt.Errorf("%w: %d bytes exceeds %d",
			limits.ErrFrameTooLarge, len(ciphertext), c.opts.MaxFrameSize))
	}

	if err := c.sender.SendFrame(ctx, address, ciphertext); err != nil {
		return nil, c.outboundFailure(StateSent, err)
	}

	c.opts.Metrics.MessageSent()
	log.WithFields(logrus.Fields{
		"bytes":     len(ciphertext),
		"recipient": crypto.Fingerprint(recipient),
	}).Debug("Message sent")
	return env, nil
}

func (c *Coordinator) outboundFailure(stage State, err error) error {
	c.opts.Metrics.MessageFailed(string(Outbound), stage.String())
	return &StageError{Direction: Outbound, Stage: stage, Err: err}
}

// Run consumes frames with the configured number of workers until the
// channel closes or ctx ends. It returns once every worker has stopped.
func (c *Coordinator) Run(ctx context.Context, frames <-chan transport.InboundFrame) {
	logger("Run").WithField("workers", c.opts.Workers).Debug("Starting inbound workers")

	var wg sync.WaitGroup
	for i := 0; i < c.opts.Workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.work(ctx, frames)
		}()
	}
	wg.Wait()

	logger("Run").Debug("Inbound workers stopped")
}

func (c *Coordinator) work(ctx context.Context, frames <-chan transport.InboundFrame) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-frames:
			if !ok {
				return
			}
			if _, err := c.Process(ctx, frame); err != nil {
				c.reportInbound(frame, err)
			}
		}
	}
}

// Process runs one frame through the inbound pipeline and publishes the
// resulting envelope to every current subscriber.
func (c *Coordinator) Process(ctx context.Context, frame transport.InboundFrame) (*Envelope, error) {
	fail := func(stage State, err error) error {
		return &StageError{Direction: Inbound, Stage: stage, FrameID: frame.ID, Err: err}
	}

	if len(frame.Payload) == 0 {
		return nil, fail(StateUnframed, ErrEmptyFrame)
	}

	if c.decrypter == nil {
		return nil, fail(StateDecrypted, crypto.ErrKeyMaterialMissing)
	}
	plaintext, err := c.decrypter.Decrypt(frame.Payload)
	if err != nil {
		return nil, fail(StateDecrypted, err)
	}

	env, err := UnmarshalEnvelope(plaintext)
	crypto.ZeroBytes(plaintext)
	if err != nil {
		return nil, fail(StateDeserialized, err)
	}

	if !c.publish(ctx, *env) {
		return nil, fail(StateDelivered, ctx.Err())
	}
	c.opts.Metrics.MessageDelivered()

	logger("Process").WithFields(logrus.Fields{
		"frame_id": frame.ID,
		"sender":   env.Sender,
		"latency":  time.Since(frame.ReceivedAt).String(),
	}).Debug("Message delivered")
	return env, nil
}

func (c *Coordinator) reportInbound(frame transport.InboundFrame, err error) {
	stage := StateFailed
	var stageErr *StageError
	if errors.As(err, &stageErr) {
		stage = stageErr.Stage
	}
	c.opts.Metrics.MessageFailed(string(Inbound), stage.String())

	fields := logrus.Fields{
		"frame_id": frame.ID,
		"stage":    stage.String(),
		"error":    err.Error(),
	}
	if frame.RemoteAddr != nil {
		fields["remote_addr"] = frame.RemoteAddr.String()
	}
	logger("Process").WithFields(fields).Warn("Dropped inbound message")

	if c.opts.ErrorHandler != nil {
		c.opts.ErrorHandler(err)
	}
}

func logger(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"package":  "messaging",
		"function": function,
	})
}
