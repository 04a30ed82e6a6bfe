package app

import (
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/rnplay/relay/internal/core"
	"github.com/rnplay/relay/internal/metrics"
	"github.com/rnplay/relay/internal/transform"
)

// Relay routes signaling envelopes between registered sessions. Delivery
// is at-most-once: a target that is missing or whose send buffer is full
// loses the message, and the sender is never told.
type Relay struct {
	Registry    *Registry
	Transformer transform.Transformer
	Metrics     metrics.Collector
}

func NewRelay(reg *Registry, tr transform.Transformer, m metrics.Collector) *Relay {
	if tr == nil {
		tr = transform.Noop{}
	}
	if m == nil {
		m = metrics.Noop{}
	}
	return &Relay{Registry: reg, Transformer: tr, Metrics: m}
}

func (rl *Relay) send(id core.ClientID, sender core.SignalSender, msgType string, v any) {
	b, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Msg("marshal envelope")
		return
	}
	if err := sender.TrySend(b); err != nil {
		log.Warn().Err(err).Str("module", "app.relay").Str("id", string(id)).Str("type", msgType).Msg("dropped envelope")
		return
	}
	rl.Metrics.MessageSent(msgType)
}

// sendTo delivers to a registered target, silently dropping when the
// target is unknown.
func (rl *Relay) sendTo(target core.ClientID, env *core.Envelope) {
	sender, _, ok := rl.Registry.Get(target)
	if !ok {
		log.Warn().Str("module", "app.relay").Str("target", string(target)).Msg("target not registered, dropping")
		return
	}
	rl.send(target, sender, env.Type, env)
}

// broadcast delivers to every registered session except from.
func (rl *Relay) broadcast(from core.ClientID, env *core.Envelope) {
	for _, snap := range rl.Registry.Snapshot() {
		if snap.ID == from {
			continue
		}
		rl.send(snap.ID, snap.Sender, env.Type, env)
	}
}

// Greet sends the generated client id to a freshly accepted connection,
// before any registration.
func (rl *Relay) Greet(id core.ClientID, sender core.SignalSender) {
	rl.send(id, sender, core.TypeClientID, &core.Envelope{Type: core.TypeClientID, ClientID: id})
}

// Register assigns the connection a role, inserts it into the registry and
// announces it to everyone else.
func (rl *Relay) Register(id core.ClientID, clientType core.ClientType, sender core.SignalSender) {
	if clientType == "" {
		clientType = core.ClientTypeWeb
	}
	rl.Registry.Register(id, clientType, sender)
	rl.Metrics.ClientRegistered(string(clientType))
	rl.broadcast(id, &core.Envelope{
		Type:       core.TypeClientConnected,
		ClientID:   id,
		ClientType: clientType,
	})
}

// Offer relays an SDP offer: unicast when targeted, broadcast otherwise.
func (rl *Relay) Offer(from core.ClientID, target core.ClientID, offer json.RawMessage) {
	env := &core.Envelope{Type: core.TypeOffer, Offer: offer, FromID: from}
	if target != "" {
		rl.sendTo(target, env)
		return
	}
	rl.broadcast(from, env)
}

// Answer relays an SDP answer, unicast only. An absent target drops it.
func (rl *Relay) Answer(from core.ClientID, target core.ClientID, answer json.RawMessage) {
	if target == "" {
		log.Warn().Str("module", "app.relay").Str("from", string(from)).Msg("answer without target, dropping")
		return
	}
	rl.sendTo(target, &core.Envelope{Type: core.TypeAnswer, Answer: answer, FromID: from})
}

// Candidate relays an ICE candidate with the same targeting rules as Offer.
func (rl *Relay) Candidate(from core.ClientID, target core.ClientID, candidate json.RawMessage) {
	env := &core.Envelope{Type: core.TypeICECandidate, Candidate: candidate, FromID: from}
	if target != "" {
		rl.sendTo(target, env)
		return
	}
	rl.broadcast(from, env)
}

// CodeUpdate runs the code through the transform collaborator and delivers
// the result to every registered mobile session except the sender. A
// failed transform degrades to relaying the original code untouched.
func (rl *Relay) CodeUpdate(from core.ClientID, code string) {
	transformed, err := rl.Transformer.Transform(code)
	if err != nil {
		log.Error().Err(err).Str("module", "app.relay").Str("from", string(from)).Msg("code transform failed, relaying original")
		transformed = code
	}
	env := &core.Envelope{
		Type:         core.TypeCodeUpdate,
		Code:         transformed,
		OriginalCode: code,
		FromID:       from,
	}
	for _, snap := range rl.Registry.Snapshot() {
		if snap.ID == from || snap.Type != core.ClientTypeMobile {
			continue
		}
		rl.send(snap.ID, snap.Sender, env.Type, env)
	}
}

// ListClients replies with every registered session except the requester.
// The requester itself need not be registered.
func (rl *Relay) ListClients(id core.ClientID, sender core.SignalSender) {
	all := rl.Registry.List()
	clients := make([]core.ClientInfo, 0, len(all))
	for _, c := range all {
		if c.ID == id {
			continue
		}
		clients = append(clients, c)
	}
	resp := struct {
		Type    string            `json:"type"`
		Clients []core.ClientInfo `json:"clients"`
	}{
		Type:    core.TypeClientsList,
		Clients: clients,
	}
	rl.send(id, sender, core.TypeClientsList, resp)
}

// Disconnect removes the session and announces the departure. Safe to call
// for connections that never registered.
func (rl *Relay) Disconnect(id core.ClientID) {
	_, clientType, registered := rl.Registry.Get(id)
	rl.Registry.Remove(id)
	if !registered {
		return
	}
	rl.Metrics.ClientUnregistered(string(clientType))
	rl.broadcast(id, &core.Envelope{Type: core.TypeClientDisconnected, ClientID: id})
}
