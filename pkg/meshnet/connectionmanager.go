package meshnet

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// NewTransport constructs a Transport for a freshly created Connection.
// ConnectionManager calls it once per EnsureInitiator/AcceptOffer; the
// production wiring passes transport.NewPionTransport, tests pass an
// in-memory fake.
type NewTransport func(role Role) (Transport, error)

// ConnectionManager owns the set of live Connections, enforces the
// duplicate-connection and max-connections policies, and drives each
// Connection's state machine off its Transport's event channels (spec §4.8).
// Safe for concurrent use: its public methods take an internal mutex in
// addition to the single-writer discipline applied by Node's command
// goroutine, so tests may drive it directly without a Node.
type ConnectionManager struct {
	self         Address
	networkID    string
	maxConns     int
	newTransport NewTransport
	identity     *Identity
	rude         *RudeList
	emit         func(Event)
	onData       func(from Address, data []byte)

	mu          sync.RWMutex
	connections map[string]*Connection
	byAddress   map[Address]string // remote address -> connection id, set once an answer is signaled or the transport connects
}

// NewConnectionManager constructs a ConnectionManager. emit is called
// (synchronously, from whatever goroutine triggers the transition) for every
// connection-lifecycle event; Node supplies its emitter's emit method. onData
// is called for every inbound Data() frame once the sending Connection's
// remote address is known, so GossipEngine.Ingest can attribute it.
func NewConnectionManager(self Address, networkID string, maxConns int, newTransport NewTransport, identity *Identity, rude *RudeList, emit func(Event), onData func(from Address, data []byte)) *ConnectionManager {
	return &ConnectionManager{
		self:         self,
		networkID:    networkID,
		maxConns:     maxConns,
		newTransport: newTransport,
		identity:     identity,
		rude:         rude,
		emit:         emit,
		onData:       onData,
		connections:  make(map[string]*Connection),
		byAddress:    make(map[Address]string),
	}
}

// EnsureInitiator returns the existing non-Dead Connection to addr if one is
// indexed under addr (an answer was signaled or its transport connected) or
// is an initiator already dialing addr (duplicate suppression, spec invariant
// I1); a Pending or Open responder to addr is not reused. Otherwise it
// creates a new initiator Connection, wires its Transport event pump, and
// returns it once an offer has been produced locally.
func (cm *ConnectionManager) EnsureInitiator(ctx context.Context, addr Address) (*Connection, error) {
	cm.mu.Lock()
	if id, ok := cm.byAddress[addr]; ok {
		if conn, ok := cm.connections[id]; ok && conn.State() != StateDead {
			cm.mu.Unlock()
			return conn, nil
		}
	}
	for _, conn := range cm.connections {
		if conn.role != RoleInitiator {
			continue
		}
		if remote, known := conn.RemoteAddress(); known && remote == addr && conn.State() != StateDead {
			cm.mu.Unlock()
			return conn, nil
		}
	}
	cm.mu.Unlock()

	if cm.Active() >= cm.maxConns {
		return nil, ErrTooManyConnections
	}
	if cm.rude != nil && cm.rude.IsRude(addr) {
		return nil, ErrRudeSender
	}

	transport, err := cm.newTransport(RoleInitiator)
	if err != nil {
		return nil, fmt.Errorf("meshnet: create initiator transport: %w", err)
	}
	id := newConnectionID()
	conn := newConnection(id, RoleInitiator, transport, Negotiation{})
	conn.SetRemoteAddress(addr)

	cm.mu.Lock()
	cm.connections[id] = conn
	cm.mu.Unlock()

	cm.pumpTransport(conn)
	cm.emit(Event{Kind: EventAddConnection, Connection: conn.Snapshot()})

	select {
	case sig := <-transport.Signals():
		if sig.Type != SignalOffer {
			return nil, fmt.Errorf("meshnet: expected offer signal, got %v", sig.Type)
		}
		sdp := sig.SDP
		offer := Negotiation{
			Type:         "offer",
			Address:      cm.self,
			SDP:          &sdp,
			ConnectionID: id,
			NetworkID:    cm.networkID,
			Timestamp:    time.Now().UnixMilli(),
		}
		conn.SetOffer(offer)
		conn.transitionTo(StateOpen)
		cm.emit(Event{Kind: EventConnectionProcess, Connection: conn.Snapshot()})
		return conn, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// AcceptOffer creates a responder Connection from a remote peer's offer
// negotiation, refusing it if it names our own address, the sender is rude,
// or max_connections is already reached (spec §4.2, §4.5). If a Connected
// Connection to neg.Address already exists it is returned unchanged;
// otherwise every other (necessarily non-Connected) Connection to that
// address is destroyed before the new one is created (spec §4.1 duplicate
// policy).
func (cm *ConnectionManager) AcceptOffer(neg Negotiation) (*Connection, error) {
	if !neg.HasSDP() {
		return nil, ErrNoOffer
	}
	if neg.Address == cm.self {
		return nil, ErrSelfConnection
	}
	if cm.rude != nil && cm.rude.IsRude(neg.Address) {
		return nil, ErrRudeSender
	}
	if cm.Active() >= cm.maxConns {
		return nil, ErrTooManyConnections
	}

	existing := cm.connectionsTo(neg.Address)
	for _, conn := range existing {
		if conn.State() == StateConnected {
			return conn, nil
		}
	}
	cm.destroyAll(existing)

	transport, err := cm.newTransport(RoleResponder)
	if err != nil {
		return nil, fmt.Errorf("meshnet: create responder transport: %w", err)
	}
	id := neg.ConnectionID
	if id == "" {
		id = newConnectionID()
	}
	conn := newConnection(id, RoleResponder, transport, neg)
	conn.SetRemoteAddress(neg.Address)

	cm.mu.Lock()
	cm.connections[id] = conn
	cm.mu.Unlock()

	cm.pumpTransport(conn)
	cm.emit(Event{Kind: EventAddConnection, Connection: conn.Snapshot()})

	if err := transport.Signal(*neg.SDP); err != nil {
		conn.transitionTo(StateDead)
		return nil, fmt.Errorf("meshnet: signal offer into transport: %w", err)
	}

	select {
	case sig := <-transport.Signals():
		if sig.Type != SignalAnswer {
			return nil, fmt.Errorf("meshnet: expected answer signal, got %v", sig.Type)
		}
		sdp := sig.SDP
		answer := Negotiation{
			Type:         "answer",
			Address:      cm.self,
			SDP:          &sdp,
			ConnectionID: id,
			NetworkID:    cm.networkID,
			Timestamp:    time.Now().UnixMilli(),
		}
		conn.SetAnswer(answer)
		conn.transitionTo(StateOpen)
		cm.emit(Event{Kind: EventConnectionProcess, Connection: conn.Snapshot()})
		return conn, nil
	case <-time.After(30 * time.Second):
		conn.transitionTo(StateDead)
		return nil, fmt.Errorf("meshnet: timed out waiting for local answer")
	}
}

// SignalAnswer feeds a remote peer's answer into the matching initiator
// Connection (spec §4.2 Negotiator rules): the connection must exist, be an
// initiator, be Open, and not already have a remote answer recorded.
func (cm *ConnectionManager) SignalAnswer(neg Negotiation) error {
	if !neg.HasSDP() {
		return ErrNoOffer
	}
	cm.mu.RLock()
	conn, ok := cm.connections[neg.ConnectionID]
	cm.mu.RUnlock()
	if !ok {
		return ErrConnectionNotFound
	}
	if conn.role != RoleInitiator {
		return ErrNotInitiator
	}
	if conn.State() != StateOpen {
		return ErrNotOpen
	}
	if _, hasAnswer := conn.Answer(); hasAnswer {
		return ErrRemoteAddressSet
	}
	if err := conn.Transport().Signal(*neg.SDP); err != nil {
		return fmt.Errorf("meshnet: signal answer into transport: %w", err)
	}
	conn.SetAnswer(neg)

	cm.mu.Lock()
	cm.byAddress[neg.Address] = conn.ID()
	cm.mu.Unlock()
	return nil
}

// pumpTransport starts a goroutine translating one Connection's Transport
// events into state transitions and ConnectionManager bookkeeping. Exits
// when the transport closes.
func (cm *ConnectionManager) pumpTransport(conn *Connection) {
	go func() {
		// Connected() and Closed() are each closed at most once, so each gets
		// its own one-shot goroutine: selecting on an already-closed channel
		// inside the main loop below would fire on every iteration and spin
		// the CPU once the connection settles.
		go func() {
			select {
			case <-conn.Transport().Connected():
				conn.transitionTo(StateConnected)
				if addr, ok := conn.RemoteAddress(); ok {
					cm.mu.Lock()
					cm.byAddress[addr] = conn.ID()
					cm.mu.Unlock()
					cm.destroyOthers(addr, conn.ID())
				}
				cm.emit(Event{Kind: EventConnectionProcess, Connection: conn.Snapshot()})
			case <-conn.Transport().Closed():
			}
		}()

		for {
			select {
			case data := <-conn.Transport().Data():
				if cm.onData == nil {
					continue
				}
				if addr, ok := conn.RemoteAddress(); ok {
					cm.onData(addr, data)
				}
			case err := <-conn.Transport().Errors():
				cm.emit(Event{Kind: EventConnectionError, Connection: conn.Snapshot(), Err: err})
				_ = conn.Transport().Close()
				cm.destroy(conn)
				return
			case <-conn.Transport().Closed():
				cm.destroy(conn)
				return
			}
		}
	}()
}

// connectionsTo returns every non-Dead Connection whose remote address is
// addr, across both roles (spec §4.1 duplicate policy).
func (cm *ConnectionManager) connectionsTo(addr Address) []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	var out []*Connection
	for _, conn := range cm.connections {
		if conn.State() == StateDead {
			continue
		}
		if remote, known := conn.RemoteAddress(); known && remote == addr {
			out = append(out, conn)
		}
	}
	return out
}

// HasConnectionTo reports whether any non-Dead Connection to addr already
// exists. Node uses it to decide whether a presence announcement or a
// switchboard-discovered address calls for initiating a new connection
// (spec §4.1, §4.3 step 5, §4.4).
func (cm *ConnectionManager) HasConnectionTo(addr Address) bool {
	return len(cm.connectionsTo(addr)) > 0
}

// destroyAll tears every given Connection down.
func (cm *ConnectionManager) destroyAll(conns []*Connection) {
	for _, conn := range conns {
		_ = conn.Transport().Close()
		cm.destroy(conn)
	}
}

// destroyOthers tears down every Connection to addr other than keep (spec
// §4.1: "after transport connect, any other Connection with the same
// remote_address and a different id is destroyed").
func (cm *ConnectionManager) destroyOthers(addr Address, keep string) {
	for _, conn := range cm.connectionsTo(addr) {
		if conn.ID() == keep {
			continue
		}
		_ = conn.Transport().Close()
		cm.destroy(conn)
	}
}

// destroy moves conn to Dead, removes it from the address index, and emits
// EventDestroyConnection. Idempotent.
func (cm *ConnectionManager) destroy(conn *Connection) {
	if !conn.transitionTo(StateDead) {
		return
	}
	cm.mu.Lock()
	delete(cm.connections, conn.ID())
	if addr, ok := conn.RemoteAddress(); ok {
		if cm.byAddress[addr] == conn.ID() {
			delete(cm.byAddress, addr)
		}
	}
	cm.mu.Unlock()
	cm.emit(Event{Kind: EventDestroyConnection, Connection: conn.Snapshot()})
}

// Destroy tears down the Connection with the given id, closing its
// Transport. A no-op if no such connection exists.
func (cm *ConnectionManager) Destroy(id string) {
	cm.mu.RLock()
	conn, ok := cm.connections[id]
	cm.mu.RUnlock()
	if !ok {
		return
	}
	_ = conn.Transport().Close()
	cm.destroy(conn)
}

// Connections returns a snapshot of every known Connection, live or dead.
func (cm *ConnectionManager) Connections() []ConnectionSnapshot {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]ConnectionSnapshot, 0, len(cm.connections))
	for _, conn := range cm.connections {
		out = append(out, conn.Snapshot())
	}
	return out
}

// Active returns the count of Connections not in StateDead.
func (cm *ConnectionManager) Active() int {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	n := 0
	for _, conn := range cm.connections {
		if conn.State() != StateDead {
			n++
		}
	}
	return n
}

// ConnectedPeers returns every Connection currently in StateConnected, the
// set GossipEngine broadcasts to.
func (cm *ConnectionManager) ConnectedPeers() []*Connection {
	cm.mu.RLock()
	defer cm.mu.RUnlock()
	out := make([]*Connection, 0, len(cm.connections))
	for _, conn := range cm.connections {
		if conn.State() == StateConnected {
			out = append(out, conn)
		}
	}
	return out
}

// SendToAll writes b to every StateConnected peer concurrently, bounded by
// errgroup so a stuck Send on one peer cannot block delivery to the rest
// (spec §9 Design Notes: broadcast fan-out uses a bounded worker pool rather
// than one goroutine per peer per message).
func (cm *ConnectionManager) SendToAll(ctx context.Context, b []byte) error {
	peers := cm.ConnectedPeers()
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(16)
	for _, conn := range peers {
		conn := conn
		g.Go(func() error {
			if err := conn.Transport().Send(b); err != nil {
				cm.emit(Event{Kind: EventConnectionError, Connection: conn.Snapshot(), Err: err})
			}
			return nil
		})
	}
	return g.Wait()
}

// GC destroys every Connection that has sat in StatePending or StateOpen
// (never reaching Connected) longer than staleAfter, plus any already-Dead
// entries left in the map. It also groups surviving Connections by
// remote_address and, within any group of two or more, destroys whichever
// ones have a Transport that has not yet negotiated a data channel label,
// since a live duplicate pair should settle on the one with a working
// channel. SeenMemory is not touched here; Node's GC loop sweeps it
// separately.
func (cm *ConnectionManager) GC(staleAfter time.Duration) {
	cm.mu.RLock()
	var stale []*Connection
	byAddr := make(map[Address][]*Connection)
	now := time.Now()
	for _, conn := range cm.connections {
		switch conn.State() {
		case StateDead:
			stale = append(stale, conn)
			continue
		case StatePending, StateOpen:
			if now.Sub(conn.createdAt) > staleAfter {
				stale = append(stale, conn)
				continue
			}
		}
		if addr, ok := conn.RemoteAddress(); ok {
			byAddr[addr] = append(byAddr[addr], conn)
		}
	}
	cm.mu.RUnlock()

	for _, group := range byAddr {
		if len(group) < 2 {
			continue
		}
		for _, conn := range group {
			if conn.Transport().DataChannelLabel() == "" {
				stale = append(stale, conn)
			}
		}
	}

	seen := make(map[string]bool, len(stale))
	for _, conn := range stale {
		if seen[conn.ID()] {
			continue
		}
		seen[conn.ID()] = true
		_ = conn.Transport().Close()
		cm.destroy(conn)
	}
}

// newConnectionID returns a fresh random identifier for a Connection.
func newConnectionID() string {
	return uuid.NewString()
}
