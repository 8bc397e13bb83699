// Package meshtest provides an in-memory meshnet.Transport pair for tests
// that exercise ConnectionManager, GossipEngine, and Node without a real
// WebRTC stack.
package meshtest

import (
	"fmt"
	"sync"

	"github.com/browser-network/network/pkg/meshnet"
)

// PairedTransports returns two linked fake transports: anything sent on
// one arrives on the other's Data channel. Neither reports Connected until
// MarkConnected is called on it or Signal is called on either of them (which
// marks both), so tests choose whether to skip or drive the offer/answer
// handshake.
func PairedTransports() (a, b *FakeTransport) {
	a = newFakeTransport(meshnet.RoleInitiator)
	b = newFakeTransport(meshnet.RoleResponder)
	a.peer = b
	b.peer = a
	return a, b
}

// FakeTransport is a meshnet.Transport backed by Go channels instead of a
// real WebRTC PeerConnection.
type FakeTransport struct {
	role meshnet.Role
	peer *FakeTransport

	signals   chan meshnet.SignalEvent
	data      chan []byte
	connected chan struct{}
	closed    chan struct{}
	errs      chan error

	mu          sync.Mutex
	isConnected bool
	closeOnce   sync.Once
	label       string
}

func newFakeTransport(role meshnet.Role) *FakeTransport {
	return &FakeTransport{
		role:      role,
		signals:   make(chan meshnet.SignalEvent, 4),
		data:      make(chan []byte, 64),
		connected: make(chan struct{}),
		closed:    make(chan struct{}),
		errs:      make(chan error, 4),
		label:     "meshnet",
	}
}

// SetDataChannelLabel overrides the label DataChannelLabel reports, letting
// a test simulate a Connection whose data channel never finished
// negotiating (an empty label) to exercise ConnectionManager.GC's
// duplicate-pair heuristic.
func (t *FakeTransport) SetDataChannelLabel(label string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.label = label
}

// NewConnectedTransport returns a single FakeTransport with no peer wired,
// already reporting Connected — useful when a test only needs a sink for
// Send calls, e.g. to assert ConnectionManager.SendToAll's fan-out count.
func NewConnectedTransport(role meshnet.Role) *FakeTransport {
	t := newFakeTransport(role)
	t.MarkConnected()
	return t
}

// MarkConnected flips the transport into the connected state and closes the
// Connected() channel, as a real transport would once its data channel
// opens.
func (t *FakeTransport) MarkConnected() {
	t.mu.Lock()
	already := t.isConnected
	t.isConnected = true
	t.mu.Unlock()
	if !already {
		close(t.connected)
	}
}

// Signal simulates feeding the remote SDP in. The fake transport treats the
// SDP string as opaque and simply flips itself and its peer to connected;
// no real ICE/SDP handling takes place.
func (t *FakeTransport) Signal(sdp string) error {
	t.MarkConnected()
	if t.peer != nil {
		t.peer.MarkConnected()
	}
	return nil
}

// EmitSignal lets a test force a specific SignalEvent out of Signals(), to
// drive ConnectionManager's offer/answer plumbing deterministically.
func (t *FakeTransport) EmitSignal(ev meshnet.SignalEvent) {
	t.signals <- ev
}

func (t *FakeTransport) Signals() <-chan meshnet.SignalEvent { return t.signals }
func (t *FakeTransport) Data() <-chan []byte                 { return t.data }
func (t *FakeTransport) Connected() <-chan struct{}          { return t.connected }
func (t *FakeTransport) Closed() <-chan struct{}             { return t.closed }
func (t *FakeTransport) Errors() <-chan error                { return t.errs }

// InjectError pushes a value onto Errors(), simulating a transient
// transport-level error (spec §7).
func (t *FakeTransport) InjectError(err error) {
	select {
	case t.errs <- err:
	default:
	}
}

func (t *FakeTransport) Send(b []byte) error {
	if !t.IsConnected() {
		return fmt.Errorf("meshtest: transport not connected")
	}
	if t.peer == nil {
		return nil
	}
	cp := append([]byte(nil), b...)
	select {
	case t.peer.data <- cp:
	default:
	}
	return nil
}

func (t *FakeTransport) IsConnected() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.isConnected
}

func (t *FakeTransport) DataChannelLabel() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.label
}

func (t *FakeTransport) Close() error {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.isConnected = false
		t.mu.Unlock()
		close(t.closed)
	})
	return nil
}
