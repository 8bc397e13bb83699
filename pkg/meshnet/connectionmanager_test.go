package meshnet

import (
	"context"
	"testing"
	"time"

	"github.com/browser-network/network/pkg/meshnet/meshtest"
)

func testTransportFactory(t *testing.T) (NewTransport, func() *meshtest.FakeTransport) {
	var last *meshtest.FakeTransport
	return func(role Role) (Transport, error) {
			ft := meshtest.NewConnectedTransport(role)
			last = ft
			go func() {
				if role == RoleInitiator {
					ft.EmitSignal(SignalEvent{Type: SignalOffer, SDP: "fake-offer"})
				} else {
					ft.EmitSignal(SignalEvent{Type: SignalAnswer, SDP: "fake-answer"})
				}
			}()
			return ft, nil
		}, func() *meshtest.FakeTransport { return last }
}

func newTestConnectionManager(t *testing.T, maxConns int) *ConnectionManager {
	t.Helper()
	newT, _ := testTransportFactory(t)
	id := NewUnsignedIdentity("self")
	return NewConnectionManager("self", "net1", maxConns, newT, id, NewRudeList(0), func(Event) {}, func(Address, []byte) {})
}

func TestEnsureInitiatorProducesOffer(t *testing.T) {
	cm := newTestConnectionManager(t, 10)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	conn, err := cm.EnsureInitiator(ctx, "peer-a")
	if err != nil {
		t.Fatalf("EnsureInitiator: %v", err)
	}
	if conn.State() != StateOpen {
		t.Fatalf("state = %v, want Open", conn.State())
	}
	if conn.Offer().SDP == nil {
		t.Fatal("offer has no sdp")
	}
}

func TestEnsureInitiatorDeduplicates(t *testing.T) {
	cm := newTestConnectionManager(t, 10)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	c1, err := cm.EnsureInitiator(ctx, "peer-a")
	if err != nil {
		t.Fatalf("first EnsureInitiator: %v", err)
	}
	c2, err := cm.EnsureInitiator(ctx, "peer-a")
	if err != nil {
		t.Fatalf("second EnsureInitiator: %v", err)
	}
	if c1.ID() != c2.ID() {
		t.Fatalf("expected the same connection to be reused, got %s and %s", c1.ID(), c2.ID())
	}
}

func TestTooManyConnectionsRefused(t *testing.T) {
	cm := newTestConnectionManager(t, 1)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	if _, err := cm.EnsureInitiator(ctx, "peer-a"); err != nil {
		t.Fatalf("first connection: %v", err)
	}
	if _, err := cm.EnsureInitiator(ctx, "peer-b"); err != ErrTooManyConnections {
		t.Fatalf("second connection error = %v, want ErrTooManyConnections", err)
	}
}

func TestAcceptOfferRefusesRudeSender(t *testing.T) {
	newT, _ := testTransportFactory(t)
	rude := NewRudeList(1)
	rude.Register("peer-a")
	rude.Register("peer-a")
	cm := NewConnectionManager("self", "net1", 10, newT, NewUnsignedIdentity("self"), rude, func(Event) {}, func(Address, []byte) {})

	sdp := "remote-offer"
	_, err := cm.AcceptOffer(Negotiation{Type: "offer", Address: "peer-a", SDP: &sdp, ConnectionID: "x"})
	if err != ErrRudeSender {
		t.Fatalf("AcceptOffer error = %v, want ErrRudeSender", err)
	}
}

func TestDestroyRemovesConnection(t *testing.T) {
	cm := newTestConnectionManager(t, 10)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	conn, err := cm.EnsureInitiator(ctx, "peer-a")
	if err != nil {
		t.Fatalf("EnsureInitiator: %v", err)
	}
	cm.Destroy(conn.ID())
	time.Sleep(20 * time.Millisecond)
	if conn.State() != StateDead {
		t.Fatalf("state after Destroy = %v, want Dead", conn.State())
	}
	if got := cm.Active(); got != 0 {
		t.Fatalf("Active() = %d, want 0", got)
	}
}

// TestAcceptOfferReusesExistingConnectionToSameAddress checks property P6:
// once a connection to a remote address has reached Connected, a second
// inbound offer from that same address is handed the existing connection
// rather than spinning up a duplicate.
func TestAcceptOfferReusesExistingConnectionToSameAddress(t *testing.T) {
	newT, _ := testTransportFactory(t)
	cm := NewConnectionManager("self", "net1", 10, newT, NewUnsignedIdentity("self"), NewRudeList(0), func(Event) {}, func(Address, []byte) {})

	sdp := "remote-offer"
	conn, err := cm.AcceptOffer(Negotiation{Type: "offer", Address: "peer-a", SDP: &sdp, ConnectionID: "conn-a"})
	if err != nil {
		t.Fatalf("first AcceptOffer: %v", err)
	}
	conn.transitionTo(StateConnected)
	cm.mu.Lock()
	cm.byAddress["peer-a"] = conn.ID()
	cm.mu.Unlock()

	again, err := cm.AcceptOffer(Negotiation{Type: "offer", Address: "peer-a", SDP: &sdp, ConnectionID: "conn-b"})
	if err != nil {
		t.Fatalf("second AcceptOffer: %v", err)
	}
	if again.ID() != conn.ID() {
		t.Fatalf("expected the existing Connected connection to peer-a to be reused, got a new connection %s", again.ID())
	}
	if cm.Active() != 1 {
		t.Fatalf("Active() = %d, want 1 (only one connection to peer-a)", cm.Active())
	}
}

func TestAcceptOfferRefusesSelfAddress(t *testing.T) {
	newT, _ := testTransportFactory(t)
	cm := NewConnectionManager("self", "net1", 10, newT, NewUnsignedIdentity("self"), NewRudeList(0), func(Event) {}, func(Address, []byte) {})

	sdp := "remote-offer"
	if _, err := cm.AcceptOffer(Negotiation{Type: "offer", Address: "self", SDP: &sdp, ConnectionID: "x"}); err != ErrSelfConnection {
		t.Fatalf("AcceptOffer error = %v, want ErrSelfConnection", err)
	}
}

// TestGCRemovesLabellessDuplicate exercises ConnectionManager.GC's
// duplicate-pair heuristic: of two Connected connections sharing a
// remote_address, the one whose transport never negotiated a data channel
// label is the one collected.
func TestGCRemovesLabellessDuplicate(t *testing.T) {
	cm := newTestConnectionManager(t, 10)

	good := meshtest.NewConnectedTransport(RoleInitiator)
	stuck := meshtest.NewConnectedTransport(RoleInitiator)
	stuck.SetDataChannelLabel("")

	connGood := newConnection("good", RoleInitiator, good, Negotiation{})
	connGood.transitionTo(StateOpen)
	connGood.transitionTo(StateConnected)
	connGood.SetRemoteAddress("peer-a")

	connStuck := newConnection("stuck", RoleInitiator, stuck, Negotiation{})
	connStuck.transitionTo(StateOpen)
	connStuck.transitionTo(StateConnected)
	connStuck.SetRemoteAddress("peer-a")

	cm.mu.Lock()
	cm.connections["good"] = connGood
	cm.connections["stuck"] = connStuck
	cm.mu.Unlock()

	cm.GC(30 * time.Second)

	if connStuck.State() != StateDead {
		t.Fatalf("labelless duplicate state = %v, want Dead", connStuck.State())
	}
	if connGood.State() != StateConnected {
		t.Fatalf("labelled survivor state = %v, want Connected", connGood.State())
	}
	if cm.Active() != 1 {
		t.Fatalf("Active() = %d, want 1", cm.Active())
	}
}
