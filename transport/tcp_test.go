package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opd-ai/securemsg/metrics"
)

func newTestListener(t *testing.T, opts ListenerOptions) *Listener {
	t.Helper()
	l, err := Listen("127.0.0.1:0", opts)
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func receiveFrame(t *testing.T, l *Listener) InboundFrame {
	t.Helper()
	select {
	case f, ok := <-l.Frames():
		require.True(t, ok, "frames channel closed")
		return f
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for frame")
		return InboundFrame{}
	}
}

func TestListenerReceivesFrame(t *testing.T) {
	l := newTestListener(t, ListenerOptions{})
	sender := NewSender(time.Second, time.Second, nil)

	require.NoError(t, sender.SendFrame(context.Background(), l.Addr().String(), []byte("ciphertext")))

	frame := receiveFrame(t, l)
	assert.Equal(t, []byte("ciphertext"), frame.Payload)
	assert.NotEmpty(t, frame.ID)
	assert.NotNil(t, frame.RemoteAddr)
	assert.False(t, frame.ReceivedAt.IsZero())
}

func TestListenerEmptyFrame(t *testing.T) {
	l := newTestListener(t, ListenerOptions{})
	sender := NewSender(0, 0, nil)

	require.NoError(t, sender.SendFrame(context.Background(), l.Addr().String(), nil))
	frame := receiveFrame(t, l)
	assert.NotNil(t, frame.Payload)
	assert.Len(t, frame.Payload, 0)
}

func TestListenerConcurrentSenders(t *testing.T) {
	l := newTestListener(t, ListenerOptions{QueueSize: 4})
	sender := NewSender(time.Second, time.Second, nil)

	const n = 20
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			assert.NoError(t, sender.SendFrame(context.Background(), l.Addr().String(), []byte(fmt.Sprintf("msg-%d", i))))
		}(i)
	}

	seen := make(map[string]bool)
	for i := 0; i < n; i++ {
		seen[string(receiveFrame(t, l).Payload)] = true
	}
	wg.Wait()
	assert.Len(t, seen, n)
}

// TestListenerSlowPeerDoesNotBlock holds one connection open mid-frame and
// checks another peer is still served.
func TestListenerSlowPeerDoesNotBlock(t *testing.T) {
	l := newTestListener(t, ListenerOptions{})

	slow, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer slow.Close()
	_, err = slow.Write([]byte{0x05, 0x00})
	require.NoError(t, err)

	sender := NewSender(time.Second, time.Second, nil)
	require.NoError(t, sender.SendFrame(context.Background(), l.Addr().String(), []byte("fast")))
	assert.Equal(t, []byte("fast"), receiveFrame(t, l).Payload)
}

func TestListenerIncompleteFrameIsolated(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	l := newTestListener(t, ListenerOptions{Metrics: m})

	bad, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	_, err = bad.Write([]byte{0x05, 0x00})
	require.NoError(t, err)
	require.NoError(t, bad.Close())

	sender := NewSender(time.Second, time.Second, nil)
	require.NoError(t, sender.SendFrame(context.Background(), l.Addr().String(), []byte("good")))
	assert.Equal(t, []byte("good"), receiveFrame(t, l).Payload)

	assert.Eventually(t, func() bool {
		return gatherCounter(t, reg, "securemsg_transport_frame_errors_total", "incomplete") == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestListenerRejectsOversizeFrame(t *testing.T) {
	l := newTestListener(t, ListenerOptions{MaxFrameSize: 16})
	sender := NewSender(time.Second, time.Second, nil)

	// The write may or may not fail depending on when the peer closes.
	_ = sender.SendFrame(context.Background(), l.Addr().String(), make([]byte, 17))
	require.NoError(t, sender.SendFrame(context.Background(), l.Addr().String(), make([]byte, 16)))

	assert.Len(t, receiveFrame(t, l).Payload, 16)
	select {
	case f := <-l.Frames():
		t.Fatalf("unexpected frame of %d bytes", len(f.Payload))
	case <-time.After(100 * time.Millisecond):
	}
}

func TestListenerReadTimeout(t *testing.T) {
	l := newTestListener(t, ListenerOptions{ReadTimeout: 50 * time.Millisecond})

	idle, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer idle.Close()

	// The listener gives up on the idle peer and closes its side.
	require.NoError(t, idle.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, err = idle.Read(make([]byte, 1))
	assert.Error(t, err)
}

func TestListenerCloseDrainsAndClosesChannel(t *testing.T) {
	l, err := Listen("127.0.0.1:0", ListenerOptions{})
	require.NoError(t, err)

	sender := NewSender(time.Second, time.Second, nil)
	require.NoError(t, sender.SendFrame(context.Background(), l.Addr().String(), []byte("before close")))
	assert.Equal(t, []byte("before close"), receiveFrame(t, l).Payload)

	require.NoError(t, l.Close())
	require.NoError(t, l.Close(), "Close must be idempotent")

	_, ok := <-l.Frames()
	assert.False(t, ok)

	err = sender.SendFrame(context.Background(), l.Addr().String(), []byte("after close"))
	assert.Error(t, err)
}

// TestListenerCloseAbandonsAfterGrace leaves a peer mid-frame; Close must
// return shortly after the grace period rather than waiting for the peer.
func TestListenerCloseAbandonsAfterGrace(t *testing.T) {
	l, err := Listen("127.0.0.1:0", ListenerOptions{ShutdownGrace: 100 * time.Millisecond})
	require.NoError(t, err)

	stuck, err := net.Dial("tcp", l.Addr().String())
	require.NoError(t, err)
	defer stuck.Close()
	_, err = stuck.Write([]byte{0x05})
	require.NoError(t, err)
	time.Sleep(20 * time.Millisecond)

	start := time.Now()
	require.NoError(t, l.Close())
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
	assert.Less(t, elapsed, 3*time.Second)
}

// TestListenerCloseUnblocksPendingPublish fills the queue with no consumer.
func TestListenerCloseUnblocksPendingPublish(t *testing.T) {
	l, err := Listen("127.0.0.1:0", ListenerOptions{QueueSize: 1, ShutdownGrace: 100 * time.Millisecond})
	require.NoError(t, err)

	sender := NewSender(time.Second, time.Second, nil)
	for i := 0; i < 3; i++ {
		require.NoError(t, sender.SendFrame(context.Background(), l.Addr().String(), []byte{byte(i)}))
	}
	time.Sleep(50 * time.Millisecond)

	done := make(chan struct{})
	go func() {
		l.Close()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("Close blocked on an unconsumed frame")
	}
}

func TestListenerRateLimit(t *testing.T) {
	reg := prometheus.NewRegistry()
	l := newTestListener(t, ListenerOptions{RateLimit: 0.001, RateBurst: 2, Metrics: metrics.New(reg)})
	sender := NewSender(time.Second, time.Second, nil)

	for i := 0; i < 4; i++ {
		_ = sender.SendFrame(context.Background(), l.Addr().String(), []byte{byte(i)})
	}

	receiveFrame(t, l)
	receiveFrame(t, l)
	select {
	case <-l.Frames():
		t.Fatal("rate limited connection produced a frame")
	case <-time.After(150 * time.Millisecond):
	}

	assert.Eventually(t, func() bool {
		return gatherCounter(t, reg, "securemsg_transport_connections_rejected_total", "") == 2
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSenderDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	ln.Close()

	err = NewSender(200*time.Millisecond, 0, nil).SendFrame(context.Background(), addr, []byte("x"))
	assert.Error(t, err)
}

func TestSenderContextCancelled(t *testing.T) {
	l := newTestListener(t, ListenerOptions{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := NewSender(time.Second, time.Second, nil).SendFrame(ctx, l.Addr().String(), []byte("x"))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestListenInvalidAddress(t *testing.T) {
	_, err := Listen("256.0.0.1:99999", ListenerOptions{})
	assert.Error(t, err)
}

func gatherCounter(t *testing.T, g prometheus.Gatherer, name, label string) float64 {
	t.Helper()
	families, err := g.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if label == "" {
				return m.GetCounter().GetValue()
			}
			for _, lp := range m.GetLabel() {
				if lp.GetValue() == label {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}
