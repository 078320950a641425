package core

import "errors"

var (
	// ErrInCall rejects queue operations for a client with an active call.
	ErrInCall = errors.New("client already in a call")
	// ErrNoSuchCall covers lookups of a call that never existed or was
	// already removed. Callers treat it as benign.
	ErrNoSuchCall = errors.New("no such call")
	// ErrCallEnded marks a second teardown of the same call.
	ErrCallEnded = errors.New("call already ended")
	// ErrNotParticipant rejects routing for a client outside the call.
	ErrNotParticipant = errors.New("caller not a participant")
	// ErrSelfPair guards against pairing a client with itself.
	ErrSelfPair = errors.New("a call needs two distinct participants")
)
