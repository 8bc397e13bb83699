// Package transport provides the production meshnet.Transport implementation
// atop github.com/pion/webrtc/v4.
package transport

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/pion/webrtc/v4"

	"github.com/browser-network/network/pkg/meshnet"
)

const dataChannelLabel = "meshnet"

var defaultICEServers = []webrtc.ICEServer{
	{URLs: []string{"stun:stun.l.google.com:19302"}},
}

// PionTransport implements meshnet.Transport on one webrtc.PeerConnection
// with a single negotiated DataChannel. Trickle ICE is disabled: each side
// waits for gathering to complete and exchanges one self-contained SDP blob,
// mirroring simple-peer's trickle:false mode referenced in the wire
// protocol (spec §6).
type PionTransport struct {
	role meshnet.Role
	pc   *webrtc.PeerConnection
	dc   *webrtc.DataChannel

	signals   chan meshnet.SignalEvent
	data      chan []byte
	connected chan struct{}
	closed    chan struct{}
	errs      chan error

	connectOnce sync.Once
	closeOnce   sync.Once

	mu          sync.RWMutex
	isConnected bool
}

// NewPionTransport satisfies meshnet.NewTransport: it builds a PeerConnection
// and, for an initiator, creates the data channel and kicks off offer
// generation; a responder waits for Signal to supply the remote offer
// before creating its answer.
func NewPionTransport(role meshnet.Role) (meshnet.Transport, error) {
	m := &webrtc.MediaEngine{}
	api := webrtc.NewAPI(webrtc.WithMediaEngine(m))

	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: defaultICEServers})
	if err != nil {
		return nil, fmt.Errorf("transport: new peer connection: %w", err)
	}

	t := &PionTransport{
		role:      role,
		pc:        pc,
		signals:   make(chan meshnet.SignalEvent, 1),
		data:      make(chan []byte, 64),
		connected: make(chan struct{}),
		closed:    make(chan struct{}),
		errs:      make(chan error, 8),
	}

	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateFailed, webrtc.PeerConnectionStateClosed:
			t.close()
		case webrtc.PeerConnectionStateDisconnected:
			select {
			case t.errs <- fmt.Errorf("transport: ice disconnected"):
			default:
			}
		}
	})

	if role == meshnet.RoleInitiator {
		dc, err := pc.CreateDataChannel(dataChannelLabel, nil)
		if err != nil {
			pc.Close()
			return nil, fmt.Errorf("transport: create data channel: %w", err)
		}
		t.wireDataChannel(dc)
		if err := t.createOffer(); err != nil {
			pc.Close()
			return nil, err
		}
	} else {
		pc.OnDataChannel(func(dc *webrtc.DataChannel) {
			t.wireDataChannel(dc)
		})
	}

	return t, nil
}

func (t *PionTransport) wireDataChannel(dc *webrtc.DataChannel) {
	t.dc = dc
	dc.OnOpen(func() {
		t.mu.Lock()
		t.isConnected = true
		t.mu.Unlock()
		t.connectOnce.Do(func() { close(t.connected) })
	})
	dc.OnClose(func() { t.close() })
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		select {
		case t.data <- msg.Data:
		default:
			// Slow consumer: drop rather than block pion's internal callback
			// goroutine, which would stall the whole PeerConnection.
		}
	})
}

// createOffer generates an offer, sets it as the local description, waits
// for ICE gathering to complete (trickle disabled), and publishes the final
// SDP on signals.
func (t *PionTransport) createOffer() error {
	offer, err := t.pc.CreateOffer(nil)
	if err != nil {
		return fmt.Errorf("transport: create offer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("transport: set local description: %w", err)
	}
	go func() {
		<-gatherComplete
		final := t.pc.LocalDescription()
		sdp, err := json.Marshal(final)
		if err != nil {
			t.errs <- fmt.Errorf("transport: marshal offer: %w", err)
			return
		}
		t.signals <- meshnet.SignalEvent{Type: meshnet.SignalOffer, SDP: string(sdp)}
	}()
	return nil
}

// createAnswer mirrors createOffer for the responder side, called once the
// remote offer has been applied via Signal.
func (t *PionTransport) createAnswer() error {
	answer, err := t.pc.CreateAnswer(nil)
	if err != nil {
		return fmt.Errorf("transport: create answer: %w", err)
	}
	gatherComplete := webrtc.GatheringCompletePromise(t.pc)
	if err := t.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("transport: set local description: %w", err)
	}
	go func() {
		<-gatherComplete
		final := t.pc.LocalDescription()
		sdp, err := json.Marshal(final)
		if err != nil {
			t.errs <- fmt.Errorf("transport: marshal answer: %w", err)
			return
		}
		t.signals <- meshnet.SignalEvent{Type: meshnet.SignalAnswer, SDP: string(sdp)}
	}()
	return nil
}

// Signal feeds in the remote peer's session description: an offer for a
// responder (which then generates its answer), or an answer for an
// initiator (which completes negotiation).
func (t *PionTransport) Signal(sdp string) error {
	var desc webrtc.SessionDescription
	if err := json.Unmarshal([]byte(sdp), &desc); err != nil {
		return fmt.Errorf("transport: decode remote description: %w", err)
	}
	if err := t.pc.SetRemoteDescription(desc); err != nil {
		return fmt.Errorf("transport: set remote description: %w", err)
	}
	if t.role == meshnet.RoleResponder && desc.Type == webrtc.SDPTypeOffer {
		return t.createAnswer()
	}
	return nil
}

func (t *PionTransport) Signals() <-chan meshnet.SignalEvent { return t.signals }
func (t *PionTransport) Data() <-chan []byte                 { return t.data }
func (t *PionTransport) Connected() <-chan struct{}          { return t.connected }
func (t *PionTransport) Closed() <-chan struct{}             { return t.closed }
func (t *PionTransport) Errors() <-chan error                { return t.errs }

func (t *PionTransport) Send(b []byte) error {
	if !t.IsConnected() {
		return fmt.Errorf("transport: not connected")
	}
	return t.dc.Send(b)
}

func (t *PionTransport) IsConnected() bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.isConnected
}

func (t *PionTransport) DataChannelLabel() string {
	if t.dc == nil {
		return ""
	}
	return t.dc.Label()
}

func (t *PionTransport) close() {
	t.closeOnce.Do(func() {
		t.mu.Lock()
		t.isConnected = false
		t.mu.Unlock()
		close(t.closed)
	})
}

func (t *PionTransport) Close() error {
	t.close()
	var err error
	if t.dc != nil {
		err = t.dc.Close()
	}
	if cerr := t.pc.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}
