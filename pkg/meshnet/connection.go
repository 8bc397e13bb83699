package meshnet

import (
	"sync"
	"time"
)

// Role fixes whether a Connection initiated or accepted the WebRTC
// negotiation. Fixed at creation (spec §3).
type Role int

const (
	RoleInitiator Role = iota
	RoleResponder
)

func (r Role) String() string {
	if r == RoleInitiator {
		return "initiator"
	}
	return "responder"
}

// State is a Connection's position in its one-way state machine (spec
// §4.8). Transitions are monotone forward; Dead is terminal.
type State int

const (
	StatePending State = iota
	StateOpen
	StateConnected
	StateDead
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateOpen:
		return "open"
	case StateConnected:
		return "connected"
	case StateDead:
		return "dead"
	default:
		return "unknown"
	}
}

// ConnectionSnapshot is an immutable, safe-to-copy view of a Connection for
// events and the public Connections()/ActiveConnections() accessors.
type ConnectionSnapshot struct {
	ID            string
	Role          Role
	RemoteAddress Address // "" if not yet known
	State         State
	Offer         Negotiation
	Answer        Negotiation // zero value if not yet carried
	HasAnswer     bool
	ConnectedAt   time.Time // zero if never connected
}

// Connection wraps one peer-to-peer transport session with its negotiation
// history and state (spec §3). Owned exclusively by ConnectionManager;
// never exposed mutably outside this package.
type Connection struct {
	id        string
	role      Role
	transport Transport
	createdAt time.Time

	mu            sync.RWMutex
	remoteAddress Address
	hasRemote     bool
	offer         Negotiation
	answer        Negotiation
	hasAnswer     bool
	state         State
	connectedAt   time.Time
}

func newConnection(id string, role Role, transport Transport, offer Negotiation) *Connection {
	return &Connection{
		id:        id,
		role:      role,
		transport: transport,
		createdAt: time.Now(),
		offer:     offer,
		state:     StatePending,
	}
}

// ID returns the connection's locally generated identifier.
func (c *Connection) ID() string { return c.id }

// Role returns whether this Connection initiated or accepted negotiation.
func (c *Connection) Role() Role { return c.role }

// State returns the current state machine position.
func (c *Connection) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// RemoteAddress returns the far end's Address and whether it is known yet.
// An initiator Connection may not know it until an answer arrives.
func (c *Connection) RemoteAddress() (Address, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.remoteAddress, c.hasRemote
}

// SetRemoteAddress records the far end's Address, for an initiator
// Connection once the matching answer arrives (Negotiator, spec §4.2).
func (c *Connection) SetRemoteAddress(addr Address) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.remoteAddress = addr
	c.hasRemote = true
}

// Offer returns the offer negotiation record.
func (c *Connection) Offer() Negotiation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.offer
}

// SetOffer replaces the offer record (ConnectionManager, on the transport's
// signal:offer event).
func (c *Connection) SetOffer(n Negotiation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.offer = n
}

// Answer returns the answer negotiation record and whether one has been
// carried yet.
func (c *Connection) Answer() (Negotiation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.answer, c.hasAnswer
}

// SetAnswer replaces the answer record and marks it present.
func (c *Connection) SetAnswer(n Negotiation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.answer = n
	c.hasAnswer = true
}

// Transport returns the underlying opaque transport handle.
func (c *Connection) Transport() Transport { return c.transport }

// transitionTo moves the state machine forward. Transitions to a state
// numerically behind the current one are refused (monotone forward, spec
// §4.8), except that anything may transition to Dead.
func (c *Connection) transitionTo(next State) (moved bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateDead {
		return false
	}
	if next == StateDead {
		c.state = StateDead
		return true
	}
	if next <= c.state {
		return false
	}
	c.state = next
	if next == StateConnected {
		c.connectedAt = time.Now()
	}
	return true
}

// ConnectedAt returns when the Connection reached StateConnected, or the
// zero time if it never has.
func (c *Connection) ConnectedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.connectedAt
}

// Snapshot returns an immutable, safe-to-copy view.
func (c *Connection) Snapshot() ConnectionSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConnectionSnapshot{
		ID:            c.id,
		Role:          c.role,
		RemoteAddress: c.remoteAddress,
		State:         c.state,
		Offer:         c.offer,
		Answer:        c.answer,
		HasAnswer:     c.hasAnswer,
		ConnectedAt:   c.connectedAt,
	}
}
