package hub

import (
	"sync"

	"classhub/pkg/types"
)

// subscription is an unbounded mailbox for one class
// FUNCTIONAL DISCOVERY: The hub never blocks on a viewer; rows pile up in the
// mailbox and Ready is a level signal with capacity one
type subscription struct {
	hub     *Hub
	classID string
	ready   chan struct{}

	mu      sync.Mutex
	pending []*types.Message
	closed  bool
}

func (s *subscription) ClassID() string { return s.classID }

func (s *subscription) Ready() <-chan struct{} { return s.ready }

// Drain hands out all waiting rows
func (s *subscription) Drain() []*types.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	rows := s.pending
	s.pending = nil
	return rows
}

// Unsubscribe stops delivery synchronously; the hub forgets the mailbox later
func (s *subscription) Unsubscribe() {
	if !s.close() {
		return
	}
	select {
	case s.hub.unsubscribeChannel <- s:
	case <-s.hub.done:
	}
}

func (s *subscription) deliver(msg *types.Message) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.pending = append(s.pending, msg)
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
}

// close reports whether this call performed the transition
func (s *subscription) close() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	s.pending = nil
	return true
}
