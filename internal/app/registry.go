package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/rnplay/relay/internal/core"
)

type sessionEntry struct {
	Type   core.ClientType
	Sender core.SignalSender
}

// Registry is the session registry: every connection that completed
// registration, keyed by its generated client id. Connections that never
// sent a register envelope are tracked only by their handler goroutine and
// never appear here.
type Registry struct {
	mu       sync.RWMutex
	sessions map[core.ClientID]*sessionEntry
}

func NewRegistry() *Registry {
	return &Registry{
		sessions: make(map[core.ClientID]*sessionEntry),
	}
}

// Register inserts or overwrites the session for id. Re-registration on a
// live connection just updates the role.
func (r *Registry) Register(id core.ClientID, clientType core.ClientType, sender core.SignalSender) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sessions[id] = &sessionEntry{Type: clientType, Sender: sender}
	log.Info().Str("module", "app.registry").Str("id", string(id)).Str("client_type", string(clientType)).Msg("registered session")
}

func (r *Registry) Remove(id core.ClientID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.sessions, id)
	log.Info().Str("module", "app.registry").Str("id", string(id)).Msg("removed session")
}

// Get returns the sender and type for a registered id.
func (r *Registry) Get(id core.ClientID) (core.SignalSender, core.ClientType, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sessions[id]
	if !ok {
		return nil, "", false
	}
	return e.Sender, e.Type, true
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

type regSnap struct {
	ID     core.ClientID
	Type   core.ClientType
	Sender core.SignalSender
}

// Snapshot copies the current sessions so callers can iterate and send
// without holding the registry lock.
func (r *Registry) Snapshot() []regSnap {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]regSnap, 0, len(r.sessions))
	for id, e := range r.sessions {
		out = append(out, regSnap{ID: id, Type: e.Type, Sender: e.Sender})
	}
	return out
}

// List returns id and type for every registered session.
func (r *Registry) List() []core.ClientInfo {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.ClientInfo, 0, len(r.sessions))
	for id, e := range r.sessions {
		out = append(out, core.ClientInfo{ID: id, Type: e.Type})
	}
	return out
}
