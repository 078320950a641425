package core

import (
	"sync"

	"github.com/meetcall/meetcall/internal/domain"
)

type ConnState int

const (
	StateUnauthenticated ConnState = iota
	StateAuthenticated
	StateWaiting
	StateInCall
)

func (s ConnState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateWaiting:
		return "waiting"
	case StateInCall:
		return "in_call"
	}
	return "unknown"
}

// ClientSession is the mutable per-connection state: identity, state
// machine position, and the current call, if any. The owning read loop
// passes it into every handler; call teardown initiated by the partner
// mutates it from another goroutine, hence the mutex.
type ClientSession struct {
	Conn SignalConnection

	mu        sync.Mutex
	clientID  domain.ClientID
	state     ConnState
	callID    domain.CallID
	partnerID domain.ClientID
	closed    bool
}

func NewClientSession(conn SignalConnection) *ClientSession {
	return &ClientSession{Conn: conn, state: StateUnauthenticated}
}

func (s *ClientSession) ClientID() domain.ClientID {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.clientID
}

func (s *ClientSession) State() ConnState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Call returns the current call and partner, zero values when idle.
func (s *ClientSession) Call() (domain.CallID, domain.ClientID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callID, s.partnerID
}

// SetAuthenticated binds the assigned identity. Only valid once, from the
// unauthenticated state.
func (s *ClientSession) SetAuthenticated(id domain.ClientID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateUnauthenticated {
		return false
	}
	s.clientID = id
	s.state = StateAuthenticated
	return true
}

// SetWaiting marks the session queued. Only valid from the authenticated
// state: a concurrent match may already have moved the session to in-call,
// and that transition must win.
func (s *ClientSession) SetWaiting() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateAuthenticated {
		return false
	}
	s.state = StateWaiting
	return true
}

// SetIdle returns a waiting session to authenticated. A no-op in any
// other state, so a stale leave_queue cannot knock a client out of a call.
func (s *ClientSession) SetIdle() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StateWaiting {
		return false
	}
	s.state = StateAuthenticated
	return true
}

func (s *ClientSession) SetInCall(callID domain.CallID, partnerID domain.ClientID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = StateInCall
	s.callID = callID
	s.partnerID = partnerID
}

// ClearCall drops the call association and returns the session to the
// authenticated state. Safe to call when no call is set.
func (s *ClientSession) ClearCall() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.callID = ""
	s.partnerID = ""
	if s.state == StateInCall {
		s.state = StateAuthenticated
	}
}

// BeginClose flips the session into the terminal state exactly once.
// Disconnect cleanup runs only for the caller that gets true.
func (s *ClientSession) BeginClose() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.closed = true
	return true
}
