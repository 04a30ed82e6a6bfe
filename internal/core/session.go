package core

// ClientID identifies one live signaling connection. It is generated at
// accept time and never reused while any session still holds it.
type ClientID string

// ClientType is the role a connection registered under.
type ClientType string

const (
	// ClientTypeMobile is the producer side: it supplies frames and
	// receives transformed code updates.
	ClientTypeMobile ClientType = "mobile"
	// ClientTypeWeb is the viewer side: it edits code and watches the
	// stream.
	ClientTypeWeb ClientType = "web"
)

// ClientInfo is the public shape of a registered session, as returned by
// get-clients and the status endpoints.
type ClientInfo struct {
	ID   ClientID   `json:"id"`
	Type ClientType `json:"type"`
}

// SignalSender is the outbound half of a signaling connection. Sends are
// best-effort: a send that cannot complete immediately fails instead of
// blocking the caller.
type SignalSender interface {
	TrySend(data []byte) error
}
