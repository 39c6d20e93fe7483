// Package control implements the control channel shared by the daemon and
// the helper process: one pending call slot, a gate that only opens while a
// call is in flight, and a conversation lock that admits one helper at a
// time.
package control

import (
	"errors"
	"sync"

	"github.com/oblq/qnapec/modules/call"
)

var (
	// ErrBusy is returned by OpenSession when no call is expected or a
	// conversation is already underway.
	ErrBusy = errors.New("control channel busy")

	// ErrProtocolViolation is returned for fetch/submit outside of an open
	// session or after the daemon stopped waiting for the result.
	ErrProtocolViolation = errors.New("control channel protocol violation")

	// ErrDenied is returned when the peer is not allowed to talk to the
	// channel at all.
	ErrDenied = errors.New("control channel access denied")
)

// Channel is the daemon side state. The zero value is ready to use.
type Channel struct {
	// guards awaiting and pending
	mutex    sync.Mutex
	awaiting bool
	pending  call.Call

	// held for the whole life of a Session
	conversation sync.Mutex
}

// Expect stores c in the pending slot and opens the gate for one helper.
func (ch *Channel) Expect(c call.Call) {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	ch.pending = c
	ch.awaiting = true
}

// Withdraw closes the gate and returns the content of the slot, as updated
// by the helper if it submitted a result.
func (ch *Channel) Withdraw() call.Call {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	ch.awaiting = false
	return ch.pending
}

// Awaiting reports whether a helper is currently expected.
func (ch *Channel) Awaiting() bool {
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	return ch.awaiting
}

// OpenSession starts a conversation without blocking.
func (ch *Channel) OpenSession() (*Session, error) {
	if !ch.Awaiting() {
		return nil, ErrBusy
	}
	if !ch.conversation.TryLock() {
		return nil, ErrBusy
	}
	return &Session{channel: ch}, nil
}

// Session is one helper conversation. It must be closed on every path.
type Session struct {
	channel *Channel

	mutex  sync.Mutex
	closed bool
}

// Fetch returns a copy of the pending call.
func (s *Session) Fetch() (call.Call, error) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return call.Call{}, ErrProtocolViolation
	}

	ch := s.channel
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	if !ch.awaiting {
		return call.Call{}, ErrProtocolViolation
	}
	return ch.pending, nil
}

// Submit overwrites the pending slot with the helper's copy.
func (s *Session) Submit(c call.Call) error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return ErrProtocolViolation
	}

	ch := s.channel
	ch.mutex.Lock()
	defer ch.mutex.Unlock()

	if !ch.awaiting {
		return ErrProtocolViolation
	}
	ch.pending = c
	return nil
}

// Close releases the conversation lock. Calling it again is a no-op.
func (s *Session) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true
	s.channel.conversation.Unlock()
	return nil
}
