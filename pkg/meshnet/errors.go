package meshnet

import "errors"

var (
	// ErrUnknownAddress is returned when an operation references an Address
	// with no matching Connection.
	ErrUnknownAddress = errors.New("meshnet: unknown address")

	// ErrConnectionNotFound is returned when an operation references a
	// connection id that ConnectionManager does not hold.
	ErrConnectionNotFound = errors.New("meshnet: connection not found")

	// ErrNotOpen is returned when an operation requires a Connection in
	// state Open but finds it in some other state.
	ErrNotOpen = errors.New("meshnet: connection not open")

	// ErrNotInitiator is returned when an answer references a Connection
	// that was not created as an initiator.
	ErrNotInitiator = errors.New("meshnet: connection is not an initiator")

	// ErrRemoteAddressSet is returned when an answer references an
	// initiator Connection that already has an answer recorded.
	ErrRemoteAddressSet = errors.New("meshnet: connection already has a remote address")

	// ErrTooManyConnections is returned when accepting a new Connection
	// would exceed max_connections.
	ErrTooManyConnections = errors.New("meshnet: too many connections")

	// ErrRudeSender is returned when a new Connection is refused because
	// its remote address is on the RudeList.
	ErrRudeSender = errors.New("meshnet: sender is rude")

	// ErrBadMessage is returned (and surfaced as a bad-message event) when
	// an inbound message fails signature verification or is missing
	// required signatures while signing is enabled.
	ErrBadMessage = errors.New("meshnet: bad message")

	// ErrMissingField reports a contract violation on Broadcast: a
	// required field (type, app_id) was not supplied.
	ErrMissingField = errors.New("meshnet: missing required field")

	// ErrSwitchboard wraps a switchboard I/O or decoding error.
	ErrSwitchboard = errors.New("meshnet: switchboard request failed")

	// ErrTornDown names the torn-down Node condition. No function in this
	// package returns it; operations after Teardown do not report it.
	ErrTornDown = errors.New("meshnet: node torn down")

	// ErrNoOffer is returned when AcceptOffer or SignalAnswer is given a
	// negotiation record with no SDP payload.
	ErrNoOffer = errors.New("meshnet: negotiation has no sdp")

	// ErrSelfConnection is returned when an offer names this node's own
	// address as the remote party.
	ErrSelfConnection = errors.New("meshnet: cannot connect to self")
)
