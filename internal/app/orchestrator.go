package app

import (
	"context"

	"github.com/rs/zerolog/log"

	"github.com/meetcall/meetcall/internal/core"
	"github.com/meetcall/meetcall/internal/domain"
	"github.com/meetcall/meetcall/internal/store"
)

// Orchestrator owns the shared call state: the matchmaking queue, the
// call table, the presence registry, and the persistence gateway. When a
// pairing touches both the queue and the table, the queue always goes
// first; nothing ever holds both locks at once.
type Orchestrator struct {
	Registry *Registry
	Queue    *core.MatchQueue
	Calls    *core.CallTable
	Presence *core.PresenceRegistry
	Store    store.Gateway
}

// JoinResult reports the outcome of a join_queue request. Exactly one of
// Position or Call is set.
type JoinResult struct {
	Position    int
	Again       bool
	Call        *domain.Call
	PartnerID   domain.ClientID
	PartnerConn core.SignalConnection
}

// Authenticate validates the token shape, assigns a fresh client id, and
// binds the session. The session stays unauthenticated on failure so the
// client may retry.
func (o *Orchestrator) Authenticate(ctx context.Context, sess *core.ClientSession, token, userAgent, ip string, cancel context.CancelFunc) (domain.ClientID, error) {
	if err := domain.ValidateToken(token); err != nil {
		return "", err
	}
	id := domain.NewClientID()
	if !sess.SetAuthenticated(id) {
		return sess.ClientID(), nil
	}
	o.Registry.Bind(id, sess, cancel)
	o.Presence.MarkActive(id)
	o.record(o.Store.TouchDevice(ctx, id, userAgent, ip), "touch device")
	return id, nil
}

// JoinQueue enqueues the client and pairs it with the longest-waiting
// other client when possible. Clients with an active call are rejected.
func (o *Orchestrator) JoinQueue(ctx context.Context, sess *core.ClientSession) (*JoinResult, error) {
	id := sess.ClientID()
	if _, busy := o.Calls.ActiveCallOf(id); busy {
		return nil, core.ErrInCall
	}

	pair, pos, again := o.Queue.EnqueueAndMatch(id, sess.Conn)
	if pair == nil {
		sess.SetWaiting()
		if !again {
			o.record(o.Store.RecordQueueJoin(ctx, id), "record queue join")
		}
		return &JoinResult{Position: pos, Again: again}, nil
	}

	call, err := o.Calls.Create(pair.WaiterID, pair.Waiter, pair.NewcomerID, pair.Newcomer)
	if err != nil {
		// Defensive: the queue invariants should make this unreachable.
		// Give the waiter its slot back and fail the newcomer's request.
		log.Error().Err(err).Str("module", "app.orch").Str("waiter", string(pair.WaiterID)).Msg("create call failed after match")
		o.Queue.Enqueue(pair.WaiterID, pair.Waiter)
		return nil, err
	}

	partner, ok := o.Registry.Get(pair.WaiterID)
	if !ok {
		// The waiter disconnected between the match and the call insert;
		// its cleanup found nothing to remove. Undo the call and put the
		// newcomer back in the queue instead of pairing it with a ghost.
		log.Warn().Str("module", "app.orch").Str("waiter", string(pair.WaiterID)).Msg("matched waiter vanished, requeueing newcomer")
		if _, _, endErr := o.Calls.End(call.ID, id); endErr != nil {
			log.Error().Err(endErr).Str("module", "app.orch").Str("call", string(call.ID)).Msg("undo orphaned call")
		}
		pos := o.Queue.Enqueue(id, sess.Conn)
		sess.SetWaiting()
		o.record(o.Store.RecordQueueJoin(ctx, id), "record queue join")
		return &JoinResult{Position: pos}, nil
	}

	sess.SetInCall(call.ID, pair.WaiterID)
	partner.SetInCall(call.ID, pair.NewcomerID)

	o.record(o.Store.RecordQueueJoin(ctx, id), "record queue join")
	o.record(o.Store.RecordQueueLeave(ctx, pair.NewcomerID), "record queue leave")
	o.record(o.Store.RecordQueueLeave(ctx, pair.WaiterID), "record queue leave")
	o.record(o.Store.RecordCallStart(ctx, call.ID, call.ClientA, call.ClientB), "record call start")

	return &JoinResult{Call: call, PartnerID: pair.WaiterID, PartnerConn: pair.Waiter}, nil
}

// LeaveQueue removes the client's queue entry, a no-op when not queued.
func (o *Orchestrator) LeaveQueue(ctx context.Context, sess *core.ClientSession) bool {
	id := sess.ClientID()
	removed := o.Queue.Dequeue(id)
	sess.SetIdle()
	if removed {
		o.record(o.Store.RecordQueueLeave(ctx, id), "record queue leave")
	}
	return removed
}

// PartnerHandle resolves the send target for signaling relay.
func (o *Orchestrator) PartnerHandle(sess *core.ClientSession) (core.SignalConnection, domain.ClientID, error) {
	callID, _ := sess.Call()
	if callID == "" {
		return nil, "", core.ErrNoSuchCall
	}
	return o.Calls.PartnerHandle(callID, sess.ClientID())
}

// MarkConnected accepts the external signal that the peers connected.
func (o *Orchestrator) MarkConnected(sess *core.ClientSession) error {
	callID, _ := sess.Call()
	if callID == "" {
		return core.ErrNoSuchCall
	}
	return o.Calls.MarkConnected(callID)
}

// EndCall tears down the client's current call and returns the partner
// handle so the caller can notify them. A second teardown of the same
// call is benign.
func (o *Orchestrator) EndCall(ctx context.Context, sess *core.ClientSession) (core.SignalConnection, domain.ClientID, error) {
	callID, _ := sess.Call()
	if callID == "" {
		return nil, "", core.ErrNoSuchCall
	}

	partnerConn, partnerID, err := o.Calls.End(callID, sess.ClientID())
	sess.ClearCall()
	if err != nil {
		return nil, "", err
	}
	if partner, ok := o.Registry.Get(partnerID); ok {
		partner.ClearCall()
	}
	o.record(o.Store.RecordCallEnd(ctx, callID), "record call end")
	return partnerConn, partnerID, nil
}

// Disconnect runs the full cleanup for a closing connection, exactly
// once: queue removal, call teardown, presence, registry. It returns the
// partner to notify when a call was torn down.
func (o *Orchestrator) Disconnect(ctx context.Context, sess *core.ClientSession) (core.SignalConnection, domain.ClientID, bool) {
	if !sess.BeginClose() {
		return nil, "", false
	}
	id := sess.ClientID()
	if id == "" {
		return nil, "", false
	}

	if o.Queue.Dequeue(id) {
		o.record(o.Store.RecordQueueLeave(ctx, id), "record queue leave")
	}

	var (
		partnerConn core.SignalConnection
		partnerID   domain.ClientID
		tornDown    bool
	)
	if conn, pid, err := o.EndCall(ctx, sess); err == nil {
		partnerConn, partnerID, tornDown = conn, pid, true
	} else if callID, busy := o.Calls.ActiveCallOf(id); busy {
		// The table holds a call the session was never told about: the
		// match raced this disconnect. Tear it down the same way.
		if conn, pid, endErr := o.Calls.End(callID, id); endErr == nil {
			if partner, bound := o.Registry.Get(pid); bound {
				partner.ClearCall()
			}
			o.record(o.Store.RecordCallEnd(ctx, callID), "record call end")
			partnerConn, partnerID, tornDown = conn, pid, true
		}
	}

	o.Presence.MarkInactive(id)
	o.record(o.Store.MarkDeviceOffline(ctx, id), "mark device offline")
	o.Registry.Unbind(id)
	log.Info().Str("module", "app.orch").Str("client", string(id)).Bool("call_torn_down", tornDown).Msg("disconnected")
	return partnerConn, partnerID, tornDown
}

// record logs a failed best-effort persistence call and moves on. The
// in-memory state is the source of truth for live routing.
func (o *Orchestrator) record(err error, op string) {
	if err != nil {
		log.Warn().Err(err).Str("module", "app.orch").Msg(op + " failed")
	}
}
