package core

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meetcall/meetcall/internal/domain"
)

type callEntry struct {
	call  *domain.Call
	conns map[domain.ClientID]SignalConnection
}

// Tombstones only exist to tell a raced second teardown apart from a
// bogus call id, so a short history is plenty.
const endedHistory = 1024

// CallTable is the single source of truth for active calls. A call is
// inserted for both participants in one critical section and removed the
// same way, so it is never visible to one side only.
type CallTable struct {
	mu         sync.Mutex
	byID       map[domain.CallID]*callEntry
	byClient   map[domain.ClientID]domain.CallID
	ended      map[domain.CallID]struct{}
	endedOrder []domain.CallID
}

func NewCallTable() *CallTable {
	return &CallTable{
		byID:     make(map[domain.CallID]*callEntry),
		byClient: make(map[domain.ClientID]domain.CallID),
		ended:    make(map[domain.CallID]struct{}),
	}
}

// Create allocates a call between two distinct clients. The queue
// invariants should make the in-call checks unreachable, but they are
// kept as a defensive guard.
func (t *CallTable) Create(a domain.ClientID, connA SignalConnection, b domain.ClientID, connB SignalConnection) (*domain.Call, error) {
	if a == b {
		return nil, ErrSelfPair
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, busy := t.byClient[a]; busy {
		return nil, ErrInCall
	}
	if _, busy := t.byClient[b]; busy {
		return nil, ErrInCall
	}

	call := &domain.Call{
		ID:        domain.CallID(uuid.NewString()),
		ClientA:   a,
		ClientB:   b,
		CreatedAt: time.Now(),
		Status:    domain.CallConnecting,
	}
	t.byID[call.ID] = &callEntry{
		call:  call,
		conns: map[domain.ClientID]SignalConnection{a: connA, b: connB},
	}
	t.byClient[a] = call.ID
	t.byClient[b] = call.ID
	log.Info().Str("module", "core.calls").Str("call", string(call.ID)).Str("client_a", string(a)).Str("client_b", string(b)).Msg("call created")
	return call, nil
}

// PartnerHandle resolves the send target for the other participant.
func (t *CallTable) PartnerHandle(callID domain.CallID, from domain.ClientID) (SignalConnection, domain.ClientID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byID[callID]
	if !ok {
		return nil, "", t.notFoundLocked(callID)
	}
	partner, ok := e.call.PartnerOf(from)
	if !ok {
		return nil, "", ErrNotParticipant
	}
	return e.conns[partner], partner, nil
}

// MarkConnected records the external "peers connected" signal.
func (t *CallTable) MarkConnected(callID domain.CallID) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byID[callID]
	if !ok {
		return t.notFoundLocked(callID)
	}
	e.call.Status = domain.CallActive
	return nil
}

// End tears the call down: marks it ended, removes it for both
// participants in the same critical section, and returns the partner's
// handle so the caller can notify them. Ending twice reports
// ErrCallEnded; the identifier is never reused.
func (t *CallTable) End(callID domain.CallID, endedBy domain.ClientID) (SignalConnection, domain.ClientID, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	e, ok := t.byID[callID]
	if !ok {
		return nil, "", t.notFoundLocked(callID)
	}
	partner, ok := e.call.PartnerOf(endedBy)
	if !ok {
		return nil, "", ErrNotParticipant
	}

	e.call.Status = domain.CallEnded
	delete(t.byID, callID)
	delete(t.byClient, e.call.ClientA)
	delete(t.byClient, e.call.ClientB)
	t.ended[callID] = struct{}{}
	t.endedOrder = append(t.endedOrder, callID)
	if len(t.endedOrder) > endedHistory {
		delete(t.ended, t.endedOrder[0])
		t.endedOrder = t.endedOrder[1:]
	}
	log.Info().Str("module", "core.calls").Str("call", string(callID)).Str("ended_by", string(endedBy)).Msg("call ended")
	return e.conns[partner], partner, nil
}

// ActiveCallOf reports the client's current call, if any.
func (t *CallTable) ActiveCallOf(id domain.ClientID) (domain.CallID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	callID, ok := t.byClient[id]
	return callID, ok
}

func (t *CallTable) notFoundLocked(callID domain.CallID) error {
	if _, was := t.ended[callID]; was {
		return ErrCallEnded
	}
	return ErrNoSuchCall
}
