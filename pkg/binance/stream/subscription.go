package stream

import (
	"sync"
)

// Subscription receives events for a set of stream names.
type Subscription struct {
	names  []string
	routes map[string]struct{}
	events chan Event
	client *Client

	closed  bool
	closeMu sync.RWMutex
}

// Names returns the stream names this subscription covers.
func (s *Subscription) Names() []string {
	return append([]string(nil), s.names...)
}

// Events returns the channel events are delivered on. The channel is closed
// when the subscription or its client closes.
func (s *Subscription) Events() <-chan Event {
	return s.events
}

// Close removes the subscription and unsubscribes any stream names no other
// subscription still uses.
func (s *Subscription) Close() {
	s.client.unsubscribe(s)
}

func (s *Subscription) close() {
	s.closeMu.Lock()
	defer s.closeMu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.events)
	}
}

// IsClosed returns true if the subscription is closed.
func (s *Subscription) IsClosed() bool {
	s.closeMu.RLock()
	defer s.closeMu.RUnlock()
	return s.closed
}
