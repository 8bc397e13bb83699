package meshnet

import (
	"encoding/base64"
	"testing"

	"github.com/browser-network/network/pkg/meshnet/crypto"
	"github.com/browser-network/network/pkg/meshnet/meshtest"
)

// TestNegotiatorDecryptPassthroughWhenUnsigned checks the spec §4.1 rule
// that the encryption hook is the identity function when signing is
// disabled: decrypt must hand back the negotiation unchanged.
func TestNegotiatorDecryptPassthroughWhenUnsigned(t *testing.T) {
	n := newNegotiator(nil, NewUnsignedIdentity("a"))
	sdp := "plain-sdp"
	neg := Negotiation{Type: "offer", Address: "b", SDP: &sdp}

	got, err := n.decrypt(neg)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got.SDP == nil || *got.SDP != sdp {
		t.Fatalf("SDP = %v, want unchanged %q", got.SDP, sdp)
	}
}

// TestNegotiatorDecryptRoundTrip checks that a negotiation's SDP encrypted
// to a signed node's address (spec §4.1 ECIES encryption) decrypts back to
// the original plaintext through negotiator.decrypt.
func TestNegotiatorDecryptRoundTrip(t *testing.T) {
	recipient, err := NewSignedIdentity([]byte("recipient-secret-at-least-32-bytes!!"))
	if err != nil {
		t.Fatalf("NewSignedIdentity: %v", err)
	}

	// The sender encrypts to recipient's address; Encrypt only checks its kp
	// argument for nil (the ephemeral key is generated fresh), so any signed
	// keypair works here.
	senderKP, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("GenerateKeyPair: %v", err)
	}
	plaintext := "sdp-offer-body"
	ciphertext, err := crypto.Encrypt(senderKP, string(recipient.Address), []byte(plaintext))
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	encoded := base64.StdEncoding.EncodeToString(ciphertext)

	n := newNegotiator(nil, recipient)
	neg := Negotiation{Type: "offer", Address: "sender", SDP: &encoded}

	got, err := n.decrypt(neg)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if got.SDP == nil || *got.SDP != plaintext {
		t.Fatalf("SDP = %v, want %q", got.SDP, plaintext)
	}
}

// TestNegotiatorHandleOfferCreatesResponderConnection checks that
// handleOffer, given a plaintext (unsigned-mode) offer, accepts it through
// the wired ConnectionManager and returns a live responder Connection.
func TestNegotiatorHandleOfferCreatesResponderConnection(t *testing.T) {
	newTransport := func(role Role) (Transport, error) {
		tr := meshtest.NewConnectedTransport(role)
		go func() { tr.EmitSignal(SignalEvent{Type: SignalAnswer, SDP: "answer-sdp"}) }()
		return tr, nil
	}
	cm := NewConnectionManager("b", "net-1", 10, newTransport, NewUnsignedIdentity("b"), NewRudeList(0), func(Event) {}, nil)
	n := newNegotiator(cm, NewUnsignedIdentity("b"))

	sdp := "offer-sdp"
	conn, err := n.handleOffer(Negotiation{Type: "offer", Address: "a", SDP: &sdp, ConnectionID: "conn-1", NetworkID: "net-1"})
	if err != nil {
		t.Fatalf("handleOffer: %v", err)
	}
	if conn.role != RoleResponder {
		t.Fatalf("role = %v, want RoleResponder", conn.role)
	}
}

// TestNegotiatorHandleAnswerRejectsUnknownConnection checks that
// handleAnswer surfaces ErrConnectionNotFound for an answer naming a
// connection id the ConnectionManager has never seen.
func TestNegotiatorHandleAnswerRejectsUnknownConnection(t *testing.T) {
	cm := NewConnectionManager("b", "net-1", 10, func(Role) (Transport, error) {
		return meshtest.NewConnectedTransport(RoleInitiator), nil
	}, NewUnsignedIdentity("b"), NewRudeList(0), func(Event) {}, nil)
	n := newNegotiator(cm, NewUnsignedIdentity("b"))

	sdp := "answer-sdp"
	err := n.handleAnswer(Negotiation{Type: "answer", Address: "a", SDP: &sdp, ConnectionID: "does-not-exist"})
	if err == nil {
		t.Fatal("expected an error for an unknown connection id")
	}
}
