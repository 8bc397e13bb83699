package meshnet

// SignalType distinguishes the two session-description payloads a
// Transport can emit.
type SignalType int

const (
	SignalOffer SignalType = iota
	SignalAnswer
)

// SignalEvent carries a locally generated session description. A Transport
// emits at most one SignalEvent per role: an initiator emits exactly one
// SignalOffer once ICE gathering completes; a responder emits exactly one
// SignalAnswer once it has processed the remote offer and gathered its own
// candidates (spec §6 Transport contract: trickle ICE is disabled, mirroring
// simple-peer's trickle:false mode).
type SignalEvent struct {
	Type SignalType
	SDP  string
}

// Transport is the opaque WebRTC peer handle ConnectionManager drives. It is
// out of scope per spec §1 ("the underlying WebRTC peer implementation...
// treated as an opaque transport with a defined event contract"); this
// interface is that contract. transport.PionTransport is the production
// implementation atop github.com/pion/webrtc/v4.
type Transport interface {
	// Signal feeds a remote SDP in: the initiator's offer (for a
	// responder) or the responder's answer (for an initiator).
	Signal(sdp string) error

	// Signals yields this transport's own locally generated SDP(s).
	Signals() <-chan SignalEvent

	// Data yields inbound application bytes received on the data channel.
	Data() <-chan []byte

	// Send writes bytes to the data channel. Returns an error if not yet
	// connected.
	Send(b []byte) error

	// Connected is closed exactly once, the moment the data channel opens.
	Connected() <-chan struct{}

	// Closed is closed exactly once, on close or error.
	Closed() <-chan struct{}

	// Errors yields transport-level errors (spec §7 "transient transport
	// error").
	Errors() <-chan error

	// IsConnected reports the last known open/closed state without
	// blocking on a channel receive.
	IsConnected() bool

	// DataChannelLabel returns the negotiated data channel's label, or ""
	// if none has been negotiated yet.
	DataChannelLabel() string

	// Close tears the transport down. Idempotent.
	Close() error
}
