package meshnet

// negotiator applies the policy spec §4.2 assigns to offer/answer
// negotiations, whether they arrive as control messages over the mesh or as
// switchboard items: decrypt if needed, then hand to the matching
// ConnectionManager entry point. It holds no state of its own; every
// decision is made from the message and the ConnectionManager's current
// view of connections, which keeps it trivial to test independent of wiring.
type negotiator struct {
	cm       *ConnectionManager
	identity *Identity
}

func newNegotiator(cm *ConnectionManager, identity *Identity) *negotiator {
	return &negotiator{cm: cm, identity: identity}
}

// handleOffer processes an inbound "offer" negotiation (in-mesh or from the
// switchboard): decrypt
// the negotiation's SDP if signing is enabled, then accept it as a new
// responder Connection.
func (n *negotiator) handleOffer(neg Negotiation) (*Connection, error) {
	neg, err := n.decrypt(neg)
	if err != nil {
		return nil, err
	}
	return n.cm.AcceptOffer(neg)
}

// handleAnswer processes an inbound "answer" negotiation (in-mesh or from the
// switchboard): decrypt if needed, then feed it to the initiator Connection
// it names.
func (n *negotiator) handleAnswer(neg Negotiation) error {
	neg, err := n.decrypt(neg)
	if err != nil {
		return err
	}
	return n.cm.SignalAnswer(neg)
}

// decrypt returns neg unchanged when signing/encryption is disabled, per
// spec §4.1 (the encryption hook is the identity function in that mode).
func (n *negotiator) decrypt(neg Negotiation) (Negotiation, error) {
	if !n.identity.Signed() || !neg.HasSDP() {
		return neg, nil
	}
	plain, err := decryptSDP(n.identity, neg.Address, *neg.SDP)
	if err != nil {
		return Negotiation{}, err
	}
	neg.SDP = &plain
	return neg, nil
}
