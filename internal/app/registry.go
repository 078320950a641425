package app

import (
	"context"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/meetcall/meetcall/internal/core"
	"github.com/meetcall/meetcall/internal/domain"
)

type clientEntry struct {
	Session *core.ClientSession
	Cancel  context.CancelFunc
}

// Registry maps authenticated client ids to their live sessions. It lets
// call teardown reach the partner's session without walking connections.
type Registry struct {
	mu      sync.RWMutex
	clients map[domain.ClientID]*clientEntry
}

func NewRegistry() *Registry {
	return &Registry{clients: make(map[domain.ClientID]*clientEntry)}
}

func (r *Registry) Bind(id domain.ClientID, sess *core.ClientSession, cancel context.CancelFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.clients[id] = &clientEntry{Session: sess, Cancel: cancel}
	log.Info().Str("module", "app.registry").Str("client", string(id)).Msg("bound session")
}

func (r *Registry) Get(id domain.ClientID) (*core.ClientSession, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if e, ok := r.clients[id]; ok {
		return e.Session, true
	}
	return nil, false
}

func (r *Registry) Unbind(id domain.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.clients, id)
	log.Info().Str("module", "app.registry").Str("client", string(id)).Msg("unbind session")
}

// CloseAll aborts every bound session: cancels its context and closes
// its connection to unblock the read pump. Server.Shutdown leaves
// hijacked WebSocket connections alone, so shutdown calls this.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.clients {
		if e.Cancel != nil {
			e.Cancel()
		}
		e.Session.Conn.Close()
	}
	log.Info().Str("module", "app.registry").Int("sessions", len(r.clients)).Msg("closed all sessions")
	clear(r.clients)
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}
