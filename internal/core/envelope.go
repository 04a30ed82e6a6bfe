package core

import "encoding/json"

// Envelope type tags exchanged on the signaling connection. Frame and stop
// ride the same connection but are routed to the stream pipeline, not the
// relay.
const (
	TypeClientID           = "client-id"
	TypeRegister           = "register"
	TypeOffer              = "offer"
	TypeAnswer             = "answer"
	TypeICECandidate       = "ice-candidate"
	TypeCodeUpdate         = "code-update"
	TypeGetClients         = "get-clients"
	TypeClientsList        = "clients-list"
	TypeClientConnected    = "client-connected"
	TypeClientDisconnected = "client-disconnected"
	TypeFrame              = "frame"
	TypeStop               = "stop"
)

// Envelope is the signaling wire message. Only Type is always present;
// every other field is kind-specific. Offer, Answer and Candidate are kept
// raw so payloads are relayed byte-for-byte, never re-encoded. Unknown
// extra fields are ignored on decode.
type Envelope struct {
	Type         string          `json:"type"`
	ClientID     ClientID        `json:"clientId,omitempty"`
	ClientType   ClientType      `json:"clientType,omitempty"`
	Offer        json.RawMessage `json:"offer,omitempty"`
	Answer       json.RawMessage `json:"answer,omitempty"`
	Candidate    json.RawMessage `json:"candidate,omitempty"`
	TargetID     ClientID        `json:"targetId,omitempty"`
	FromID       ClientID        `json:"fromId,omitempty"`
	Code         string          `json:"code,omitempty"`
	OriginalCode string          `json:"originalCode,omitempty"`
	Clients      []ClientInfo    `json:"clients,omitempty"`
	Data         string          `json:"data,omitempty"`
}
