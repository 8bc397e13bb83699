package meshnet

import (
	"errors"
	"testing"

	"pgregory.net/rapid"
)

// newSignedGossipEngine builds a standalone signed GossipEngine with no
// wired ConnectionManager, enough to exercise signHop/verifyChain in
// isolation (spec §9: GossipEngine holds no connection state of its own).
func newSignedGossipEngine(t *testing.T, address string) *GossipEngine {
	t.Helper()
	id, err := NewSignedIdentity([]byte(address + "-secret-needs-32-bytes-padding!!"))
	if err != nil {
		t.Fatalf("NewSignedIdentity: %v", err)
	}
	cm := &ConnectionManager{self: id.Address, connections: map[string]*Connection{}, byAddress: map[Address]string{}}
	return NewGossipEngine(id.Address, id, cm, NewSeenMemory(MemoryDuration), NewRudeList(0), nil, func(Event) {})
}

// TestPropertySignatureChainTamperDetected checks P3: mutating any field of
// a signed message after it has been hopped invalidates the signature chain
// regardless of which field changes or how many hops preceded it.
func TestPropertySignatureChainTamperDetected(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		g := newSignedGossipEngine(t, "signer")
		hops := rapid.IntRange(1, MaxTTL-1).Draw(rt, "hops")

		msg := Message{
			ID:          "msg-1",
			Address:     g.self,
			AppID:       "app",
			TTL:         MaxTTL,
			Type:        "hello",
			Destination: Wildcard,
		}
		for i := 0; i < hops; i++ {
			sig, err := g.signHop(msg)
			if err != nil {
				rt.Fatalf("signHop: %v", err)
			}
			msg.Signatures = append(msg.Signatures, sig)
		}

		if err := g.verifyChain(msg); err != nil {
			rt.Fatalf("verifyChain on an untampered chain: %v", err)
		}

		field := rapid.SampledFrom([]string{"type", "appId", "destination", "address"}).Draw(rt, "field")
		tampered := msg
		switch field {
		case "type":
			tampered.Type = msg.Type + "-x"
		case "appId":
			tampered.AppID = msg.AppID + "-x"
		case "destination":
			tampered.Destination = msg.Destination + "-x"
		case "address":
			tampered.Address = msg.Address + "-x"
		}

		err := g.verifyChain(tampered)
		if err == nil {
			rt.Fatalf("verifyChain accepted a message tampered in field %q after %d hops", field, hops)
		}
		if !errors.Is(err, ErrBadMessage) {
			rt.Fatalf("verifyChain error = %v, want wrapping ErrBadMessage", err)
		}
	})
}
