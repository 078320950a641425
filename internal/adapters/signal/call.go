package signal

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/meetcall/meetcall/internal/core"
	"github.com/meetcall/meetcall/internal/domain"
)

type matchFoundMsg struct {
	Type      string          `json:"type"`
	CallID    domain.CallID   `json:"call_id"`
	PartnerID domain.ClientID `json:"partner_id"`
}

type callEndedMsg struct {
	Type    string `json:"type"`
	EndedBy string `json:"ended_by"`
}

func (ctl *CallWSController) handleAuthenticate(ctx context.Context, cancel context.CancelFunc, sess *core.ClientSession, c *wsConn, data []byte, userAgent, ip string) {
	if sess.State() != core.StateUnauthenticated {
		ctl.sendError(c, "already authenticated")
		return
	}

	var p struct {
		Type  string `json:"type"`
		Token string `json:"token"`
	}
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "Invalid JSON")
		return
	}

	id, err := ctl.Orch.Authenticate(ctx, sess, p.Token, userAgent, ip, cancel)
	if err != nil {
		log.Warn().Str("module", "signal").Msg("invalid token")
		ctl.sendError(c, "invalid token")
		return
	}

	log.Info().Str("module", "signal").Str("client", string(id)).Msg("authenticated")
	ctl.sendJSON(c, struct {
		Type     string          `json:"type"`
		ClientID domain.ClientID `json:"client_id"`
	}{"authenticated", id})
}

func (ctl *CallWSController) handleJoinQueue(ctx context.Context, sess *core.ClientSession, c *wsConn) {
	if sess.State() == core.StateInCall {
		ctl.sendError(c, "cannot join queue during a call")
		return
	}
	if !ctl.Limiter.Allow(sess.ClientID()) {
		ctl.sendError(c, "too many join attempts")
		return
	}

	res, err := ctl.Orch.JoinQueue(ctx, sess)
	if err != nil {
		ctl.sendError(c, "cannot join queue during a call")
		return
	}

	if res.Call == nil {
		ctl.sendJSON(c, struct {
			Type     string `json:"type"`
			Position int    `json:"position"`
		}{"queued", res.Position})
		return
	}

	// Matched immediately: the caller hears it as the requester, the
	// waiting side as the notified party. Same call id on both frames.
	ctl.sendJSON(c, matchFoundMsg{Type: "match_found", CallID: res.Call.ID, PartnerID: res.PartnerID})
	ctl.sendJSON(res.PartnerConn, matchFoundMsg{Type: "match_found", CallID: res.Call.ID, PartnerID: sess.ClientID()})
}

func (ctl *CallWSController) handleLeaveQueue(ctx context.Context, sess *core.ClientSession, c *wsConn) {
	ctl.Orch.LeaveQueue(ctx, sess)
	ctl.sendJSON(c, struct {
		Type string `json:"type"`
	}{"left_queue"})
}

func (ctl *CallWSController) handleEndCall(ctx context.Context, sess *core.ClientSession, c *wsConn) {
	partnerConn, partnerID, err := ctl.Orch.EndCall(ctx, sess)
	if err != nil {
		// A lost race with the partner's end_call or disconnect is benign.
		if errors.Is(err, core.ErrCallEnded) || errors.Is(err, core.ErrNoSuchCall) {
			ctl.sendJSON(c, callEndedMsg{Type: "call_ended", EndedBy: "self"})
			return
		}
		ctl.sendError(c, "no active call")
		return
	}

	ctl.sendJSON(c, callEndedMsg{Type: "call_ended", EndedBy: "self"})
	if partnerConn != nil {
		ctl.sendJSON(partnerConn, callEndedMsg{Type: "call_ended", EndedBy: "partner"})
	}
	log.Info().Str("module", "signal").Str("client", string(sess.ClientID())).Str("partner", string(partnerID)).Msg("call ended by client")
}

func (ctl *CallWSController) handleCallConnected(sess *core.ClientSession, c *wsConn) {
	if err := ctl.Orch.MarkConnected(sess); err != nil {
		ctl.sendError(c, "no active call")
	}
}

func (ctl *CallWSController) handlePing(sess *core.ClientSession, c *wsConn) {
	if id := sess.ClientID(); id != "" {
		ctl.Orch.Presence.MarkActive(id)
	}
	ctl.sendJSON(c, struct {
		Type      string    `json:"type"`
		Timestamp time.Time `json:"timestamp"`
	}{"pong", time.Now()})
}
