package signal

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/meetcall/meetcall/internal/core"
)

// handleForward relays a webrtc_* payload to the caller's partner. The
// payload itself (SDP or ICE candidate) is opaque here: it is checked for
// presence and passed through byte for byte.
func (ctl *CallWSController) handleForward(sess *core.ClientSession, c *wsConn, data []byte, field string) {
	if sess.State() != core.StateInCall {
		ctl.sendError(c, "no active call")
		return
	}

	var p map[string]json.RawMessage
	if err := json.Unmarshal(data, &p); err != nil {
		ctl.sendError(c, "Invalid JSON")
		return
	}
	payload, ok := p[field]
	if !ok || len(payload) == 0 || string(payload) == "null" {
		ctl.sendError(c, "missing "+field)
		return
	}

	partnerConn, partnerID, err := ctl.Orch.PartnerHandle(sess)
	if err != nil {
		// The call vanished between the state check and the lookup;
		// report it like any other out-of-call signal.
		ctl.sendError(c, "no active call")
		return
	}

	if err := partnerConn.TrySend(data); err != nil {
		log.Warn().Err(err).Str("module", "signal").Str("partner", string(partnerID)).Msg("forward dropped")
	}
}
