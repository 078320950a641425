package core

import (
	"sort"
	"sync"
	"time"

	"github.com/meetcall/meetcall/internal/domain"
)

// offlineBackdate pushes last-seen far enough into the past that the
// client falls out of any reasonable activity window.
const offlineBackdate = 60 * time.Second

// PresenceInfo is the redacted per-client view handed to subscribers.
type PresenceInfo struct {
	ID       domain.ClientID `json:"id"`
	LastSeen time.Time       `json:"last_seen"`
}

// PresenceRegistry tracks recent activity per client and fans snapshots
// out to subscribed connections. It has no pairing logic; it only shares
// the cleanup-on-disconnect discipline with the call core.
type PresenceRegistry struct {
	mu       sync.Mutex
	lastSeen map[domain.ClientID]time.Time
	subs     map[string]SignalConnection
}

func NewPresenceRegistry() *PresenceRegistry {
	return &PresenceRegistry{
		lastSeen: make(map[domain.ClientID]time.Time),
		subs:     make(map[string]SignalConnection),
	}
}

func (p *PresenceRegistry) MarkActive(id domain.ClientID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastSeen[id] = time.Now()
}

// MarkInactive backdates the entry instead of deleting it, mirroring how
// the activity window treats a silent client.
func (p *PresenceRegistry) MarkInactive(id domain.ClientID) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.lastSeen[id]; ok {
		p.lastSeen[id] = time.Now().Add(-offlineBackdate)
	}
}

func (p *PresenceRegistry) CountActive(window time.Duration) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := time.Now().Add(-window)
	n := 0
	for _, seen := range p.lastSeen {
		if !seen.Before(cutoff) {
			n++
		}
	}
	return n
}

// ActiveSnapshot lists clients seen within the window, most recent first.
func (p *PresenceRegistry) ActiveSnapshot(window time.Duration) []PresenceInfo {
	p.mu.Lock()
	defer p.mu.Unlock()
	cutoff := time.Now().Add(-window)
	out := make([]PresenceInfo, 0, len(p.lastSeen))
	for id, seen := range p.lastSeen {
		if !seen.Before(cutoff) {
			out = append(out, PresenceInfo{ID: id, LastSeen: seen})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LastSeen.After(out[j].LastSeen) })
	return out
}

// Subscribe registers a connection for snapshot broadcasts under an
// opaque key; Unsubscribe with the same key removes it.
func (p *PresenceRegistry) Subscribe(key string, conn SignalConnection) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.subs[key] = conn
}

func (p *PresenceRegistry) Unsubscribe(key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.subs, key)
}

// Broadcast delivers the frame to every subscriber, best effort. Slow or
// closed subscribers are skipped, not retried.
func (p *PresenceRegistry) Broadcast(data Frame) int {
	p.mu.Lock()
	conns := make([]SignalConnection, 0, len(p.subs))
	for _, c := range p.subs {
		conns = append(conns, c)
	}
	p.mu.Unlock()

	sent := 0
	for _, c := range conns {
		if err := c.TrySend(data); err == nil {
			sent++
		}
	}
	return sent
}
