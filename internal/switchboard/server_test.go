package switchboard

import (
	"testing"

	"github.com/browser-network/network/pkg/meshnet"
)

func TestTickRoutesItemToDestination(t *testing.T) {
	s := NewServer(nil)

	sdp := "offer-sdp"
	req := meshnet.SwitchboardRequest{
		NetworkID: "net1",
		Address:   "alice",
		NegotiationItems: []meshnet.NegotiationItem{
			{For: "bob", From: "alice", Negotiation: meshnet.Negotiation{Type: "offer", Address: "alice", SDP: &sdp}},
		},
	}
	s.tick(req)

	resp := s.tick(meshnet.SwitchboardRequest{NetworkID: "net1", Address: "bob"})
	if len(resp.NegotiationItems) != 1 {
		t.Fatalf("bob received %d items, want 1", len(resp.NegotiationItems))
	}
	if resp.NegotiationItems[0].From != "alice" {
		t.Fatalf("item.From = %q, want alice", resp.NegotiationItems[0].From)
	}
}

func TestTickDrainsInboxOnce(t *testing.T) {
	s := NewServer(nil)
	sdp := "x"
	s.tick(meshnet.SwitchboardRequest{
		NetworkID: "net1",
		Address:   "alice",
		NegotiationItems: []meshnet.NegotiationItem{
			{For: "bob", From: "alice", Negotiation: meshnet.Negotiation{Type: "offer", SDP: &sdp}},
		},
	})
	first := s.tick(meshnet.SwitchboardRequest{NetworkID: "net1", Address: "bob"})
	second := s.tick(meshnet.SwitchboardRequest{NetworkID: "net1", Address: "bob"})
	if len(first.NegotiationItems) != 1 {
		t.Fatalf("first poll got %d items, want 1", len(first.NegotiationItems))
	}
	if len(second.NegotiationItems) != 0 {
		t.Fatalf("second poll got %d items, want 0 (inbox should drain)", len(second.NegotiationItems))
	}
}

func TestTickListsOtherAddresses(t *testing.T) {
	s := NewServer(nil)
	s.tick(meshnet.SwitchboardRequest{NetworkID: "net1", Address: "alice"})
	resp := s.tick(meshnet.SwitchboardRequest{NetworkID: "net1", Address: "bob"})
	if len(resp.Addresses) != 1 || resp.Addresses[0] != "alice" {
		t.Fatalf("Addresses = %v, want [alice]", resp.Addresses)
	}
}
