package signal

import (
	"encoding/base64"
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/rnplay/relay/internal/core"
)

// handleEnvelope dispatches one inbound message. Envelopes are handled
// strictly in arrival order on their connection; malformed or unknown ones
// are dropped and the connection stays open.
func (ctl *Controller) handleEnvelope(id core.ClientID, c *Conn, data []byte) {
	var env core.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Warn().Err(err).Str("module", "adapters.signal").Str("id", string(id)).Msg("bad json, dropping")
		return
	}
	ctl.Metrics.MessageReceived(env.Type)

	switch env.Type {
	case core.TypeRegister:
		ctl.Relay.Register(id, env.ClientType, c)
	case core.TypeOffer:
		ctl.Relay.Offer(id, env.TargetID, env.Offer)
	case core.TypeAnswer:
		ctl.Relay.Answer(id, env.TargetID, env.Answer)
	case core.TypeICECandidate:
		ctl.Relay.Candidate(id, env.TargetID, env.Candidate)
	case core.TypeCodeUpdate:
		ctl.Relay.CodeUpdate(id, env.Code)
	case core.TypeGetClients:
		ctl.Relay.ListClients(id, c)
	case core.TypeFrame:
		ctl.handleFrame(id, env.Data)
	case core.TypeStop:
		log.Info().Str("module", "adapters.signal").Str("id", string(id)).Msg("stop signal received")
		ctl.Pipeline.Stop()
	default:
		log.Warn().Str("module", "adapters.signal").Str("type", env.Type).Msg("unknown envelope type, dropping")
	}
}

// handleFrame decodes the base64 payload and pushes it to the pipeline.
// Push failures are best-effort drops; the producer is not notified.
func (ctl *Controller) handleFrame(id core.ClientID, data string) {
	if data == "" {
		log.Warn().Str("module", "adapters.signal").Str("id", string(id)).Msg("frame without payload, dropping")
		return
	}
	frame, err := base64.StdEncoding.DecodeString(data)
	if err != nil {
		log.Warn().Err(err).Str("module", "adapters.signal").Str("id", string(id)).Msg("bad frame payload, dropping")
		return
	}
	_ = ctl.Pipeline.PushFrame(frame)
}
