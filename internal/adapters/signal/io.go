package signal

import (
	"context"
	"encoding/json"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/meetcall/meetcall/internal/core"
)

const writeDeadline = 5 * time.Second

func (ctl *CallWSController) writePump(ctx context.Context, c *wsConn) {
	period := ctl.PingPeriod
	if period <= 0 {
		period = 54 * time.Second
	}
	ticker := time.NewTicker(period)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				return
			}
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case data, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.conn.SetWriteDeadline(time.Now().Add(writeDeadline)); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump set deadline")
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				log.Error().Err(err).Str("module", "signal").Msg("writePump write error")
				return
			}
		}
	}
}

// readPump owns the connection's inbound stream and guarantees the
// disconnect cleanup on every exit path: read error, context done, or
// panic in a handler unwound by gin's recovery upstream.
func (ctl *CallWSController) readPump(ctx context.Context, cancel context.CancelFunc, sess *core.ClientSession, c *wsConn, userAgent, ip string) {
	defer func() {
		ctl.disconnect(ctx, sess)
		cancel()
		c.Close()
		log.Info().Str("module", "signal").Str("client", string(sess.ClientID())).Msg("readPump closing")
	}()

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.conn.ReadMessage()
			if err != nil {
				log.Debug().Err(err).Str("module", "signal").Str("client", string(sess.ClientID())).Msg("readPump read error")
				return
			}
			ctl.handleMessage(ctx, cancel, sess, c, data, userAgent, ip)
		}
	}
}

// disconnect runs the orchestrator cleanup and notifies the abandoned
// partner. Safe to call more than once; only the first does work.
func (ctl *CallWSController) disconnect(ctx context.Context, sess *core.ClientSession) {
	if id := sess.ClientID(); id != "" {
		ctl.Limiter.Forget(id)
	}
	partnerConn, partnerID, tornDown := ctl.Orch.Disconnect(ctx, sess)
	if tornDown && partnerConn != nil {
		ctl.sendJSON(partnerConn, callEndedMsg{Type: "call_ended", EndedBy: "partner"})
		log.Info().Str("module", "signal").Str("partner", string(partnerID)).Msg("partner notified after disconnect")
	}
}

func (ctl *CallWSController) handleMessage(ctx context.Context, cancel context.CancelFunc, sess *core.ClientSession, c *wsConn, data []byte, userAgent, ip string) {
	var env struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		ctl.sendError(c, "Invalid JSON")
		return
	}

	switch env.Type {
	case "ping":
		ctl.handlePing(sess, c)
		return
	case "authenticate":
		ctl.handleAuthenticate(ctx, cancel, sess, c, data, userAgent, ip)
		return
	}

	// Everything below requires a bound identity.
	if sess.State() == core.StateUnauthenticated {
		ctl.sendError(c, "not authenticated")
		return
	}

	switch env.Type {
	case "join_queue":
		ctl.handleJoinQueue(ctx, sess, c)
	case "leave_queue":
		ctl.handleLeaveQueue(ctx, sess, c)
	case "end_call":
		ctl.handleEndCall(ctx, sess, c)
	case "call_connected":
		ctl.handleCallConnected(sess, c)
	case "webrtc_offer":
		ctl.handleForward(sess, c, data, "offer")
	case "webrtc_answer":
		ctl.handleForward(sess, c, data, "answer")
	case "webrtc_ice":
		ctl.handleForward(sess, c, data, "candidate")
	default:
		log.Warn().Str("module", "signal").Str("type", env.Type).Msg("unknown signal")
		ctl.sendError(c, "unknown message type")
	}
}

func (ctl *CallWSController) sendJSON(c core.SignalConnection, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "signal").Msg("sendJSON marshal")
		return
	}
	// Best effort: a closed or slow peer is not the sender's problem.
	_ = c.TrySend(b)
}

func (ctl *CallWSController) sendError(c core.SignalConnection, msg string) {
	ctl.sendJSON(c, struct {
		Type    string `json:"type"`
		Message string `json:"message"`
	}{"error", msg})
}
