package domain

import "time"

type CallID string

type CallStatus string

const (
	CallConnecting CallStatus = "connecting"
	CallActive     CallStatus = "active"
	CallEnded      CallStatus = "ended"
	CallFailed     CallStatus = "failed"
)

// Call pairs two clients for the duration of one call. Participant order
// is fixed at creation but carries no meaning.
type Call struct {
	ID        CallID
	ClientA   ClientID
	ClientB   ClientID
	CreatedAt time.Time
	Status    CallStatus
}

// PartnerOf returns the other participant, false when cid is not part of
// the call.
func (c *Call) PartnerOf(cid ClientID) (ClientID, bool) {
	switch cid {
	case c.ClientA:
		return c.ClientB, true
	case c.ClientB:
		return c.ClientA, true
	}
	return "", false
}
