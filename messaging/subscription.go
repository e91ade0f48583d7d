package messaging

import (
	"context"
	"sync"
)

// DefaultSubscriptionBuffer is used when Subscribe is given a non-positive size.
const DefaultSubscriptionBuffer = 16

// Subscription receives every envelope delivered after it was created.
// C is closed by Close.
type Subscription struct {
	C <-chan Envelope

	ch    chan Envelope
	done  chan struct{}
	once  sync.Once
	id    uint64
	owner *Coordinator

	// sendMu is read-held by publishers for the duration of a send and
	// write-held by Close while ch is closed.
	sendMu sync.RWMutex
}

// Subscribe registers a new subscriber. A full subscriber buffer applies
// backpressure to the inbound worker publishing to it.
func (c *Coordinator) Subscribe(buffer int) *Subscription {
	if buffer <= 0 {
		buffer = DefaultSubscriptionBuffer
	}
	ch := make(chan Envelope, buffer)

	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextID++
	sub := &Subscription{
		C:     ch,
		ch:    ch,
		done:  make(chan struct{}),
		id:    c.nextID,
		owner: c,
	}
	c.subscribers[sub.id] = sub
	return sub
}

// Close unregisters the subscription and closes C. It is safe to call more
// than once and from any goroutine.
func (s *Subscription) Close() {
	s.once.Do(func() {
		// Releases publishers parked on a full buffer before sendMu is taken.
		close(s.done)

		s.owner.mu.Lock()
		delete(s.owner.subscribers, s.id)
		s.owner.mu.Unlock()

		s.sendMu.Lock()
		close(s.ch)
		s.sendMu.Unlock()
	})
}

// OnMessage invokes fn for each delivered envelope, in delivery order, on a
// dedicated goroutine. The returned cancel stops further calls.
func (c *Coordinator) OnMessage(fn func(Envelope)) (cancel func()) {
	sub := c.Subscribe(DefaultSubscriptionBuffer)
	go func() {
		for env := range sub.C {
			fn(env)
		}
	}()
	return sub.Close
}

// SubscriberCount returns the number of open subscriptions.
func (c *Coordinator) SubscriberCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.subscribers)
}

// publish hands env to each subscriber registered when it was called. It
// returns false if ctx ended before every subscriber was served. The
// coordinator lock is released before any send, so a stalled subscriber
// only holds up the worker publishing to it.
func (c *Coordinator) publish(ctx context.Context, env Envelope) bool {
	c.mu.RLock()
	subs := make([]*Subscription, 0, len(c.subscribers))
	for _, sub := range c.subscribers {
		subs = append(subs, sub)
	}
	c.mu.RUnlock()

	for _, sub := range subs {
		if !sub.deliver(ctx, env) {
			return false
		}
	}
	return true
}

// deliver reports false only when ctx ended first. A closed subscription
// counts as served.
func (s *Subscription) deliver(ctx context.Context, env Envelope) bool {
	s.sendMu.RLock()
	defer s.sendMu.RUnlock()

	select {
	case <-s.done:
		return true
	default:
	}

	select {
	case s.ch <- env:
	case <-s.done:
	case <-ctx.Done():
		return false
	}
	return true
}
