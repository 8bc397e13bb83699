package meshnet

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/browser-network/network/internal/validate"
)

// GossipEngine implements flood broadcast with duplicate suppression and a
// signature-chain hop bound (spec §4.3). It holds no connection state of its
// own; Node runs Ingest on its command goroutine, while Broadcast runs on
// whichever goroutine calls it (the presence loop, Node.Broadcast callers,
// or the command goroutine replying to a control message).
type GossipEngine struct {
	self     Address
	identity *Identity
	cm       *ConnectionManager
	seen     *SeenMemory
	rude     *RudeList
	limiter  *rate.Limiter
	emit     func(Event)
	handlers map[string]func(Message)
}

// NewGossipEngine constructs a GossipEngine. limiter may be nil to disable
// the coarse ingest safety valve (spec §9 Design Notes: layered in front of,
// not instead of, RudeList's per-address accounting).
func NewGossipEngine(self Address, identity *Identity, cm *ConnectionManager, seen *SeenMemory, rude *RudeList, limiter *rate.Limiter, emit func(Event)) *GossipEngine {
	return &GossipEngine{
		self:     self,
		identity: identity,
		cm:       cm,
		seen:     seen,
		rude:     rude,
		limiter:  limiter,
		emit:     emit,
		handlers: make(map[string]func(Message)),
	}
}

// NewIngestLimiter builds the coarse address-independent token bucket
// GossipEngine uses ahead of RudeList: ratePerSecond tokens refilled per
// second, burst tokens available immediately. A ratePerSecond <= 0 disables
// it (GossipEngine.limiter stays nil).
func NewIngestLimiter(ratePerSecond float64, burst int) *rate.Limiter {
	if ratePerSecond <= 0 {
		return nil
	}
	return rate.NewLimiter(rate.Limit(ratePerSecond), burst)
}

// onControl registers the handler invoked for a NetworkAppID control message
// of the given type, used internally to wire offer/answer/presence/log.
func (g *GossipEngine) onControl(msgType string, h func(Message)) {
	g.handlers[msgType] = h
}

// Broadcast fills in message defaults (id, address, destination, signature)
// and stamps the given ttl, records it in SeenMemory so a copy echoed back
// by a peer is not re-broadcast, and fans it out to every Connected peer
// (spec §4.3 Broadcast). appID and msgType are required; data may be nil.
// ttl is clamped to [0, MaxTTL]; a ttl of 0 still signs and memoizes the
// message (so a later duplicate is suppressed) but never puts it on the
// wire, per the len(signatures) < ttl rule applying to hop zero too.
func (g *GossipEngine) Broadcast(ctx context.Context, appID, msgType string, destination Address, ttl int, data any) (Message, error) {
	if appID == "" || msgType == "" {
		return Message{}, ErrMissingField
	}
	if err := validate.AppID(appID); err != nil {
		return Message{}, err
	}
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return Message{}, fmt.Errorf("meshnet: marshal broadcast data: %w", err)
		}
		raw = b
	}
	if destination == "" {
		destination = Wildcard
	}
	ttl = clampTTL(ttl)

	msg := Message{
		ID:          uuid.NewString(),
		Address:     g.self,
		AppID:       appID,
		TTL:         ttl,
		Type:        msgType,
		Destination: destination,
		Data:        raw,
		Signatures:  nil,
	}

	sig, err := g.signHop(msg)
	if err != nil {
		return Message{}, err
	}
	msg.Signatures = []Signature{sig}

	g.seen.Add(msg.ID)

	if len(msg.Signatures) < msg.TTL {
		encoded, err := json.Marshal(msg)
		if err != nil {
			return Message{}, fmt.Errorf("meshnet: marshal message: %w", err)
		}
		wire, err := encodeWire(encoded)
		if err != nil {
			return Message{}, err
		}
		if err := g.cm.SendToAll(ctx, wire); err != nil {
			return Message{}, err
		}
	}
	g.emit(Event{Kind: EventBroadcastMessage, Message: msg})
	return msg, nil
}

// clampTTL bounds ttl to the [0, MaxTTL] range a Message may carry.
func clampTTL(ttl int) int {
	if ttl < 0 {
		return 0
	}
	if ttl > MaxTTL {
		return MaxTTL
	}
	return ttl
}

// Ingest processes one inbound wire message from a peer (spec §4.3 Ingest):
// parse, rate-limit, dedup, verify, dispatch, and selectively rebroadcast.
func (g *GossipEngine) Ingest(ctx context.Context, raw []byte, from Address) error {
	if g.limiter != nil && !g.limiter.Allow() {
		return nil // coarse safety valve: silently drop, no bad-message event
	}
	if g.rude != nil {
		g.rude.Register(from)
		if g.rude.IsRude(from) {
			return ErrRudeSender
		}
	}

	plain, err := decodeWire(raw)
	if err != nil {
		g.emit(Event{Kind: EventBadMessage, Err: fmt.Errorf("%w: %v", ErrBadMessage, err)})
		return ErrBadMessage
	}

	var msg Message
	if err := json.Unmarshal(plain, &msg); err != nil {
		g.emit(Event{Kind: EventBadMessage, Err: fmt.Errorf("%w: %v", ErrBadMessage, err)})
		return ErrBadMessage
	}

	if g.seen.Has(msg.ID) {
		return nil // duplicate, silently dropped (property P1)
	}
	g.seen.Add(msg.ID)

	if len(msg.Signatures) >= clampTTL(msg.TTL) {
		return nil // hop bound reached (property P2): absorb, do not dispatch or rebroadcast
	}

	if err := g.verifyChain(msg); err != nil {
		g.emit(Event{Kind: EventBadMessage, Message: msg, Err: err})
		return err
	}

	g.dispatch(msg)

	sig, err := g.signHop(msg)
	if err != nil {
		return err
	}
	rebroadcast := msg.withSignatures(append(append([]Signature(nil), msg.Signatures...), sig))
	encoded, err := json.Marshal(rebroadcast)
	if err != nil {
		return fmt.Errorf("meshnet: marshal rebroadcast: %w", err)
	}
	wire, err := encodeWire(encoded)
	if err != nil {
		return err
	}
	return g.cm.SendToAll(ctx, wire)
}

// dispatch routes a verified message to either a registered NetworkAppID
// control handler or the general message event.
func (g *GossipEngine) dispatch(msg Message) {
	if msg.Destination != Wildcard && msg.Destination != g.self {
		return
	}
	if msg.AppID == NetworkAppID {
		if h, ok := g.handlers[msg.Type]; ok {
			h(msg)
			return
		}
	}
	g.emit(Event{Kind: EventMessage, Message: msg})
}

// signHop signs the message's canonical bytes as they stand before this
// hop's signature is appended (so every verifier reproduces the same
// canonical form the signer used), or appends an empty signature when
// signing is disabled so the chain still counts hops (spec §4.3).
func (g *GossipEngine) signHop(msg Message) (Signature, error) {
	canonical, err := msg.Canonical()
	if err != nil {
		return Signature{}, err
	}
	if !g.identity.Signed() {
		return Signature{Signer: g.self, Signature: ""}, nil
	}
	sigHex, err := signCanonical(g.identity, canonical)
	if err != nil {
		return Signature{}, err
	}
	return Signature{Signer: g.self, Signature: sigHex}, nil
}

// verifyChain checks every signature in msg.Signatures against the
// canonical form of the message as it stood immediately before that
// signature was appended (spec §4.3, property P3). An empty chain, or one
// whose first signer is not msg.Address, is rejected as a bad message. A
// no-op when signing is disabled.
func (g *GossipEngine) verifyChain(msg Message) error {
	if !g.identity.Signed() {
		return nil
	}
	if len(msg.Signatures) == 0 {
		return fmt.Errorf("%w: no signatures", ErrBadMessage)
	}
	if msg.Signatures[0].Signer != msg.Address {
		return fmt.Errorf("%w: first signer %s is not originator %s", ErrBadMessage, msg.Signatures[0].Signer, msg.Address)
	}
	for i, sig := range msg.Signatures {
		prefix := msg.withSignatures(msg.Signatures[:i])
		canonical, err := prefix.Canonical()
		if err != nil {
			return err
		}
		ok, err := verifyCanonical(sig.Signer, canonical, sig.Signature)
		if err != nil || !ok {
			return fmt.Errorf("%w: hop %d signer %s", ErrBadMessage, i, sig.Signer)
		}
	}
	return nil
}
