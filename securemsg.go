package securemsg

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/securemsg/account"
	"github.com/opd-ai/securemsg/crypto"
	"github.com/opd-ai/securemsg/limits"
	"github.com/opd-ai/securemsg/messaging"
	"github.com/opd-ai/securemsg/metrics"
	"github.com/opd-ai/securemsg/transport"
)

// DefaultPort is the TCP port peers listen on unless configured otherwise.
const DefaultPort = 5000

// Message is a delivered chat message.
type Message = messaging.Envelope

// Options contains configuration options for creating a Messenger.
type Options struct {
	// KeysDir holds public.xml and private.enc.
	KeysDir    string
	SenderName string

	// ListenHost is the interface StartListening binds; empty means all.
	ListenHost    string
	MaxFrameSize  uint32
	ReadTimeout   time.Duration
	ShutdownGrace time.Duration
	QueueSize     int
	RateLimit     float64
	RateBurst     int

	DialTimeout  time.Duration
	WriteTimeout time.Duration

	Workers          int
	MaxLoginAttempts int

	// Registerer receives the Prometheus collectors. Nil leaves them
	// unregistered.
	Registerer prometheus.Registerer
}

// NewOptions creates a new default Options.
func NewOptions() *Options {
	return &Options{
		KeysDir:          account.DefaultDir,
		SenderName:       "Anonymous",
		MaxFrameSize:     limits.MaxFrameSize,
		ReadTimeout:      30 * time.Second,
		ShutdownGrace:    5 * time.Second,
		QueueSize:        64,
		DialTimeout:      10 * time.Second,
		WriteTimeout:     5 * time.Second,
		Workers:          messaging.DefaultWorkers,
		MaxLoginAttempts: account.MaxLoginAttempts,
	}
}

func (o Options) withDefaults() *Options {
	d := NewOptions()
	if o.KeysDir == "" {
		o.KeysDir = d.KeysDir
	}
	if o.MaxFrameSize == 0 {
		o.MaxFrameSize = d.MaxFrameSize
	}
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = d.ReadTimeout
	}
	if o.ShutdownGrace <= 0 {
		o.ShutdownGrace = d.ShutdownGrace
	}
	if o.QueueSize <= 0 {
		o.QueueSize = d.QueueSize
	}
	if o.DialTimeout <= 0 {
		o.DialTimeout = d.DialTimeout
	}
	if o.WriteTimeout <= 0 {
		o.WriteTimeout = d.WriteTimeout
	}
	if o.Workers <= 0 {
		o.Workers = d.Workers
	}
	if o.MaxLoginAttempts <= 0 {
		o.MaxLoginAttempts = d.MaxLoginAttempts
	}
	return &o
}

// Messenger ties the account store, transport and message pipeline together.
// All methods are safe for concurrent use.
type Messenger struct {
	options     *Options
	store       *account.Store
	guard       *account.LoginGuard
	metrics     *metrics.Metrics
	coordinator *messaging.Coordinator

	mu       sync.Mutex
	session  *account.Session
	listener *transport.Listener
	stopRun  context.CancelFunc
	runDone  chan struct{}
}

// New creates a Messenger. Zero fields in options take their NewOptions
// values; nil selects NewOptions() entirely.
func New(options *Options) (*Messenger, error) {
	if options == nil {
		options = NewOptions()
	}
	options = options.withDefaults()

	store, err := account.Open(options.KeysDir)
	if err != nil {
		return nil, err
	}

	m := &Messenger{
		options: options,
		store:   store,
		guard:   account.NewLoginGuard(store, options.MaxLoginAttempts),
		metrics: metrics.New(options.Registerer),
	}
	sender := transport.NewSender(options.DialTimeout, options.WriteTimeout, m.metrics)
	m.coordinator = messaging.NewCoordinator(sender, sessionDecrypter{m}, messaging.Options{
		SenderName:   options.SenderName,
		Workers:      options.Workers,
		MaxFrameSize: options.MaxFrameSize,
		Metrics:      m.metrics,
	})

	logger("New").WithField("keys_dir", store.Dir()).Debug("Messenger created")
	return m, nil
}

// AccountExists reports whether a key pair is stored.
func (m *Messenger) AccountExists() bool {
	return m.store.Exists()
}

// CreateAccount generates and stores a key pair protected by passphrase.
// An existing account is left untouched.
func (m *Messenger) CreateAccount(passphrase string) error {
	return m.store.Create([]byte(passphrase))
}

// Login unlocks the account for receiving. After too many wrong
// passphrases every attempt fails with ErrTooManyAttempts.
func (m *Messenger) Login(passphrase string) error {
	session, err := m.guard.Attempt([]byte(passphrase))
	if err != nil {
		return err
	}

	m.mu.Lock()
	previous := m.session
	m.session = session
	m.mu.Unlock()

	if previous != nil {
		previous.Close()
	}
	logger("Login").WithFields(crypto.KeyFields(session.PublicKey())).Info("Logged in")
	return nil
}

// ValidatePassphrase reports whether passphrase unlocks the account. A
// correct passphrase also logs the Messenger in.
func (m *Messenger) ValidatePassphrase(passphrase string) bool {
	return m.Login(passphrase) == nil
}

// LoginAttemptsRemaining returns how many wrong passphrases are still tolerated.
func (m *Messenger) LoginAttemptsRemaining() int {
	return m.guard.Remaining()
}

// LoggedIn reports whether the account is unlocked.
func (m *Messenger) LoggedIn() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// Logout stops listening and wipes the unlocked private key.
func (m *Messenger) Logout() error {
	err := m.StopListening()

	m.mu.Lock()
	session := m.session
	m.session = nil
	m.mu.Unlock()

	if session != nil {
		session.Close()
	}
	return err
}

// DeleteAccount logs out and removes both key files.
func (m *Messenger) DeleteAccount() error {
	if err := m.Logout(); err != nil {
		logger("DeleteAccount").WithError(err).Warn("Listener did not stop cleanly")
	}
	m.guard.Reset()
	return m.store.Delete()
}

// GetPublicKey returns the account's public key as an RSAKeyValue document.
func (m *Messenger) GetPublicKey() (string, error) {
	return m.store.PublicKeyXML()
}

// SetSenderName changes the name attached to outgoing messages.
func (m *Messenger) SetSenderName(name string) {
	m.coordinator.SetSenderName(name)
}

// SendMessage encrypts content for the holder of recipientPublicKeyXML and
// delivers it to address:port.
func (m *Messenger) SendMessage(ctx context.Context, content, recipientPublicKeyXML, address string, port int) error {
	if !m.LoggedIn() {
		return m.notLoggedIn()
	}
	if port < 1 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}

	recipient, err := crypto.ParsePublicKeyXML(recipientPublicKeyXML)
	if err != nil {
		return err
	}

	_, err = m.coordinator.Send(ctx, content, recipient, net.JoinHostPort(address, strconv.Itoa(port)))
	return err
}

// notLoggedIn also matches ErrKeyMaterialMissing when no account exists yet.
func (m *Messenger) notLoggedIn() error {
	if !m.store.Exists() {
		return fmt.Errorf("%w: %w", ErrNotLoggedIn, ErrKeyMaterialMissing)
	}
	return ErrNotLoggedIn
}

// OnMessageReceived registers callback for every delivered message and
// returns a function that unregisters it. Callbacks run on their own
// goroutine, one message at a time.
func (m *Messenger) OnMessageReceived(callback func(Message)) (cancel func()) {
	return m.coordinator.OnMessage(callback)
}

// Subscribe returns a channel subscription to delivered messages.
func (m *Messenger) Subscribe(buffer int) *messaging.Subscription {
	return m.coordinator.Subscribe(buffer)
}

// StartListening accepts frames on port. Port 0 picks a free port; see
// ListenAddr.
func (m *Messenger) StartListening(port int) error {
	if port < 0 || port > 65535 {
		return fmt.Errorf("%w: %d", ErrInvalidPort, port)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.session == nil {
		return m.notLoggedIn()
	}
	if m.listener != nil {
		return ErrAlreadyListening
	}

	listener, err := transport.Listen(net.JoinHostPort(m.options.ListenHost, strconv.Itoa(port)), transport.ListenerOptions{
		MaxFrameSize:  m.options.MaxFrameSize,
		ReadTimeout:   m.options.ReadTimeout,
		ShutdownGrace: m.options.ShutdownGrace,
		QueueSize:     m.options.QueueSize,
		RateLimit:     m.options.RateLimit,
		RateBurst:     m.options.RateBurst,
		Metrics:       m.metrics,
	})
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		m.coordinator.Run(ctx, listener.Frames())
	}()

	m.listener = listener
	m.stopRun = cancel
	m.runDone = done

	logger("StartListening").WithField("addr", listener.Addr().String()).Info("Listening for messages")
	return nil
}

// StopListening closes the listener and waits for in-flight messages to be
// delivered or dropped. It is a no-op when not listening.
func (m *Messenger) StopListening() error {
	m.mu.Lock()
	listener, cancel, done := m.listener, m.stopRun, m.runDone
	m.listener, m.stopRun, m.runDone = nil, nil, nil
	m.mu.Unlock()

	if listener == nil {
		return nil
	}

	err := listener.Close()
	select {
	case <-done:
	case <-time.After(m.options.ShutdownGrace):
		// Workers blocked on slow subscribers are abandoned.
		cancel()
		<-done
	}
	cancel()

	logger("StopListening").Info("Stopped listening")
	return err
}

// ListenAddr returns the bound address, or nil when not listening.
func (m *Messenger) ListenAddr() net.Addr {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listener == nil {
		return nil
	}
	return m.listener.Addr()
}

// Close stops listening and logs out.
func (m *Messenger) Close() error {
	return m.Logout()
}

// sessionDecrypter resolves the current session per call so a re-login
// takes effect for frames already queued.
type sessionDecrypter struct {
	m *Messenger
}

func (d sessionDecrypter) Decrypt(ciphertext []byte) ([]byte, error) {
	d.m.mu.Lock()
	session := d.m.session
	d.m.mu.Unlock()

	if session == nil {
		return nil, ErrNotLoggedIn
	}
	return session.Decrypt(ciphertext)
}

func logger(function string) *logrus.Entry {
	return logrus.WithFields(logrus.Fields{
		"package":  "securemsg",
		"function": function,
	})
}
