// Package metrics exposes Prometheus instrumentation for the transport and
// messaging layers. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "securemsg"

// Frame error reasons.
const (
	ReasonIncomplete = "incomplete"
	ReasonTooLarge   = "too_large"
	ReasonIO         = "io"
)

// Metrics groups the collectors used across the module.
type Metrics struct {
	framesReceived      prometheus.Counter
	framesSent          prometheus.Counter
	frameErrors         *prometheus.CounterVec
	connectionsAccepted prometheus.Counter
	connectionsRejected prometheus.Counter
	activeConnections   prometheus.Gauge
	messagesSent        prometheus.Counter
	messagesDelivered   prometheus.Counter
	messageFailures     *prometheus.CounterVec
}

// New builds the collectors and registers them with reg. A nil reg leaves
// them unregistered, which tests use to read values directly.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		framesReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "transport", Name: "frames_received_total",
			Help: "Complete frames read from inbound connections.",
		}),
		framesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "transport", Name: "frames_sent_total",
			Help: "Frames fully written to outbound connections.",
		}),
		frameErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "transport", Name: "frame_errors_total",
			Help: "Inbound frames abandoned, by reason.",
		}, []string{"reason"}),
		connectionsAccepted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "transport", Name: "connections_accepted_total",
			Help: "Inbound connections admitted for processing.",
		}),
		connectionsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "transport", Name: "connections_rejected_total",
			Help: "Inbound connections closed by the admission rate limiter.",
		}),
		activeConnections: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace, Subsystem: "transport", Name: "active_connections",
			Help: "Inbound connections currently being handled.",
		}),
		messagesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "messaging", Name: "messages_sent_total",
			Help: "Outbound messages that reached the Sent state.",
		}),
		messagesDelivered: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "messaging", Name: "messages_delivered_total",
			Help: "Inbound messages delivered to subscribers.",
		}),
		messageFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace, Subsystem: "messaging", Name: "message_failures_total",
			Help: "Messages aborted, by direction and the stage that failed.",
		}, []string{"direction", "stage"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.framesReceived, m.framesSent, m.frameErrors,
			m.connectionsAccepted, m.connectionsRejected, m.activeConnections,
			m.messagesSent, m.messagesDelivered, m.messageFailures,
		)
	}
	return m
}

// Handler serves the registry in the Prometheus text format.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}

// FrameReceived counts one complete inbound frame.
func (m *Metrics) FrameReceived() {
	if m != nil {
		m.framesReceived.Inc()
	}
}

// FrameSent counts one frame written to a peer.
func (m *Metrics) FrameSent() {
	if m != nil {
		m.framesSent.Inc()
	}
}

// FrameError counts a frame dropped for reason.
func (m *Metrics) FrameError(reason string) {
	if m != nil {
		m.frameErrors.WithLabelValues(reason).Inc()
	}
}

// ConnectionAccepted counts an accepted connection and marks it active.
func (m *Metrics) ConnectionAccepted() {
	if m != nil {
		m.connectionsAccepted.Inc()
		m.activeConnections.Inc()
	}
}

// ConnectionClosed marks one active connection as finished.
func (m *Metrics) ConnectionClosed() {
	if m != nil {
		m.activeConnections.Dec()
	}
}

// ConnectionRejected counts a connection refused by admission control.
func (m *Metrics) ConnectionRejected() {
	if m != nil {
		m.connectionsRejected.Inc()
	}
}

// MessageSent counts an outbound message that reached the transport.
func (m *Metrics) MessageSent() {
	if m != nil {
		m.messagesSent.Inc()
	}
}

// MessageDelivered counts an inbound message handed to subscribers.
func (m *Metrics) MessageDelivered() {
	if m != nil {
		m.messagesDelivered.Inc()
	}
}

// MessageFailed counts a message that aborted at stage.
func (m *Metrics) MessageFailed(direction, stage string) {
	if m != nil {
		m.messageFailures.WithLabelValues(direction, stage).Inc()
	}
}
