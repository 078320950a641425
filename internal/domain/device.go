package domain

import "time"

// Device is the persisted record behind a client identifier. The live-users
// API exposes it with the user agent truncated for privacy.
type Device struct {
	ID        ClientID  `json:"uuid"`
	CreatedAt time.Time `json:"created_at"`
	LastSeen  time.Time `json:"last_seen"`
	UserAgent string    `json:"user_agent,omitempty"`
	IPAddress string    `json:"ip_address,omitempty"`
}
