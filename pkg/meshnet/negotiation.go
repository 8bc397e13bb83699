package meshnet

// Negotiation is the session-description wire record exchanged over the
// switchboard and, once any connection exists, in-band as offer/answer
// control messages (spec §3, §6).
type Negotiation struct {
	Type         string  `json:"type"` // "offer" | "answer"
	Address      Address `json:"address"`
	SDP          *string `json:"sdp"` // nil while pending
	ConnectionID string  `json:"connectionId"`
	NetworkID    string  `json:"networkId"`
	Timestamp    int64   `json:"timestamp"` // ms epoch
}

// HasSDP reports whether the negotiation record carries session-description
// bytes yet (spec §3 Connection invariant I2).
func (n Negotiation) HasSDP() bool {
	return n.SDP != nil && *n.SDP != ""
}

// NegotiationItem is the envelope the switchboard wire protocol uses to
// route a Negotiation to a specific recipient (spec §6).
type NegotiationItem struct {
	For         Address     `json:"for"`
	From        Address     `json:"from"`
	Negotiation Negotiation `json:"negotiation"`
}

// SwitchboardRequest is the body POSTed to the switchboard on every tick
// (spec §6).
type SwitchboardRequest struct {
	NetworkID        string            `json:"networkId"`
	Address          Address           `json:"address"`
	NegotiationItems []NegotiationItem `json:"negotiationItems"`
}

// SwitchboardResponse is the switchboard's reply shape (spec §6).
type SwitchboardResponse struct {
	Addresses        []Address         `json:"addresses"`
	NegotiationItems []NegotiationItem `json:"negotiationItems"`
}
