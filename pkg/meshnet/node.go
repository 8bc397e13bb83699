package meshnet

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Node wires every component (ConnectionManager, GossipEngine, Negotiator,
// SwitchboardClient, SeenMemory, RudeList) into the self-healing mesh
// overlay described by this package (spec §2 System Overview). Ingest,
// switchboard responses, and gossip control messages are processed on a
// single command goroutine. Connect, Broadcast, the presence, switchboard and
// GC loops, and the transport pumps call into ConnectionManager and
// GossipEngine from their own goroutines; ConnectionManager, SeenMemory and
// RudeList guard their state with their own mutexes for that reason.
type Node struct {
	self     Address
	identity *Identity
	config   Config
	logger   *slog.Logger
	metrics  *Metrics

	cm      *ConnectionManager
	gossip  *GossipEngine
	neg     *negotiator
	sb      *SwitchboardClient
	seen    *SeenMemory
	rude    *RudeList
	emitter *emitter

	cmds   chan func()
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	tornDown sync.Once
}

// Deps bundles the collaborators Node needs beyond identity/config: the
// transport factory (real pion/webrtc/v4 in production, a fake in tests)
// and the switchboard base URL. Grouped into a struct, following the
// teacher's *Config-struct-of-options pattern for composition constructors.
type Deps struct {
	NewTransport   NewTransport
	SwitchboardURL string
	NetworkID      string
	IngestLimiter  *float64 // requests/sec; nil disables the coarse valve
	IngestBurst    int
}

// NewNode constructs a Node and wires its components together. It does not
// start any background loops; call Run for that.
func NewNode(identity *Identity, cfg Config, deps Deps, logger *slog.Logger) (*Node, error) {
	if identity == nil {
		return nil, fmt.Errorf("meshnet: identity required")
	}
	if deps.NewTransport == nil {
		return nil, fmt.Errorf("meshnet: NewTransport required")
	}
	cfg = cfg.withDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	logger = logger.With("component", "meshnet", "address", string(identity.Address))

	n := &Node{
		self:     identity.Address,
		identity: identity,
		config:   cfg,
		logger:   logger,
		metrics:  NewMetrics("dev"),
		seen:     NewSeenMemory(MemoryDuration),
		rude:     NewRudeList(cfg.MaxMessageRateBeforeRude),
		emitter:  newEmitter(),
		cmds:     make(chan func(), 256),
	}

	n.cm = NewConnectionManager(n.self, deps.NetworkID, cfg.MaxConnections, deps.NewTransport, identity, n.rude, n.emitter.emit, n.Ingest)
	n.neg = newNegotiator(n.cm, identity)

	ingestLimiter := NewIngestLimiter(derefOrZero(deps.IngestLimiter), deps.IngestBurst)
	n.gossip = NewGossipEngine(n.self, identity, n.cm, n.seen, n.rude, ingestLimiter, n.emitter.emit)
	n.gossip.onControl(TypeOffer, n.handleOfferMessage)
	n.gossip.onControl(TypeAnswer, n.handleAnswerMessage)
	n.gossip.onControl(TypePresence, n.handlePresenceMessage)

	n.sb = NewSwitchboardClient(deps.SwitchboardURL, deps.NetworkID, n.self, cfg.FastSwitchboardRequestInterval, cfg.SlowSwitchboardRequestInterval)

	return n, nil
}

func derefOrZero(f *float64) float64 {
	if f == nil {
		return 0
	}
	return *f
}

// Run starts every background loop (presence broadcast, switchboard
// polling, garbage collection, command processing) and blocks until ctx is
// canceled or Teardown is called.
func (n *Node) Run(ctx context.Context) error {
	n.ctx, n.cancel = context.WithCancel(ctx)

	n.wg.Add(4)
	go n.commandLoop()
	go n.presenceLoop()
	go n.switchboardLoop()
	go n.gcLoop()

	n.logger.Info("node started", "max_connections", n.config.MaxConnections)
	<-n.ctx.Done()
	n.wg.Wait()
	return nil
}

// commandLoop is the single writer for every state mutation that does not
// already have its own concurrency-safe path (ConnectionManager and
// SeenMemory/RudeList hold their own locks for direct test access, but
// Node's own orchestration — dispatching switchboard responses, routing
// gossip control messages — runs serialized here to keep event ordering
// sane).
func (n *Node) commandLoop() {
	defer n.wg.Done()
	for {
		select {
		case cmd := <-n.cmds:
			cmd()
		case <-n.ctx.Done():
			return
		}
	}
}

func (n *Node) submit(f func()) {
	select {
	case n.cmds <- f:
	case <-n.ctx.Done():
	}
}

// presenceLoop periodically broadcasts a presence message so peers with a
// stale view of the mesh learn this node is still alive (spec §4.7).
// Jittered by up to 100ms to avoid every node in a freshly formed mesh
// broadcasting in lockstep.
func (n *Node) presenceLoop() {
	defer n.wg.Done()
	for {
		jitter := time.Duration(rand.Int63n(int64(100 * time.Millisecond)))
		select {
		case <-time.After(n.config.PresenceBroadcastInterval + jitter):
			if _, err := n.gossip.Broadcast(n.ctx, NetworkAppID, TypePresence, Wildcard, MaxTTL, nil); err != nil {
				n.logger.Warn("presence broadcast failed", "error", err)
			}
			n.metrics.observeConnectionStates(n.cm.Connections())
		case <-n.ctx.Done():
			return
		}
	}
}

// switchboardLoop polls the switchboard at an interval that adapts to
// whether this node currently has any Connected peer (spec §4.4, property
// P8), applying each returned negotiation item concurrently.
func (n *Node) switchboardLoop() {
	defer n.wg.Done()
	for {
		interval := n.sb.Interval(len(n.cm.ConnectedPeers()))
		select {
		case <-time.After(interval):
			n.runSwitchboardTick()
		case <-n.ctx.Done():
			return
		}
	}
}

func (n *Node) runSwitchboardTick() {
	start := time.Now()
	resp, err := n.sb.Tick(n.ctx)
	n.metrics.SwitchboardLatency.Observe(time.Since(start).Seconds())
	if err != nil {
		n.metrics.SwitchboardRequests.WithLabelValues("error").Inc()
		n.logger.Warn("switchboard tick failed", "error", err)
		return
	}
	n.metrics.SwitchboardRequests.WithLabelValues("ok").Inc()

	if err := ConnectDiscoveredAddresses(n.ctx, resp, n.connectIfNew); err != nil {
		n.logger.Warn("connecting to switchboard-discovered addresses failed", "error", err)
	}

	n.submit(func() {
		if err := ApplyResponse(n.ctx, resp, n.handleSwitchboardItem); err != nil {
			n.logger.Warn("applying switchboard response failed", "error", err)
		}
		n.emitter.emit(Event{Kind: EventSwitchboardResponse})
	})
}

// handleSwitchboardItem routes one NegotiationItem delivered via the
// switchboard to the offer/answer negotiator (spec §4.4: the switchboard
// itself does not interpret negotiation payloads, it only routes them).
func (n *Node) handleSwitchboardItem(item NegotiationItem) error {
	switch item.Negotiation.Type {
	case "offer":
		conn, err := n.neg.handleOffer(item.Negotiation)
		if err != nil {
			return err
		}
		if answer, ok := conn.Answer(); ok {
			n.enqueueAnswer(item.From, answer)
		}
		return nil
	case "answer":
		return n.neg.handleAnswer(item.Negotiation)
	default:
		return fmt.Errorf("meshnet: unknown negotiation type %q", item.Negotiation.Type)
	}
}

// enqueueAnswer stages an answer Negotiation for delivery back to its
// initiator over the switchboard, encrypting the SDP first when signing is
// enabled.
func (n *Node) enqueueAnswer(to Address, answer Negotiation) {
	if answer.SDP != nil {
		encrypted, err := encryptSDP(n.identity, to, *answer.SDP)
		if err != nil {
			n.logger.Warn("encrypt answer sdp failed", "error", err)
			return
		}
		answer.SDP = &encrypted
	}
	n.sb.Enqueue(NegotiationItem{For: to, From: n.self, Negotiation: answer})
}

// Connect initiates a connection to addr, routing the resulting offer
// through the switchboard (spec §4.4 "rendezvous").
func (n *Node) Connect(ctx context.Context, addr Address) error {
	conn, err := n.cm.EnsureInitiator(ctx, addr)
	if err != nil {
		return err
	}
	n.metrics.ConnectionsOpened.WithLabelValues(RoleInitiator.String()).Inc()
	offer := conn.Offer()
	if offer.SDP != nil {
		encrypted, err := encryptSDP(n.identity, addr, *offer.SDP)
		if err != nil {
			return err
		}
		offer.SDP = &encrypted
	}
	n.sb.Enqueue(NegotiationItem{For: addr, From: n.self, Negotiation: offer})
	return nil
}

// connectIfNew initiates a connection toward addr unless it names this node
// itself or a Connection to it already exists, logging and swallowing any
// Connect failure rather than propagating it (spec §4.4: "for each address
// in response.addresses not equal to self and not already having any
// existing Connection, create an initiator Connection"). Errors are
// swallowed so one bad address doesn't cancel the rest of the fan-out in
// ConnectDiscoveredAddresses.
func (n *Node) connectIfNew(ctx context.Context, addr Address) error {
	if addr == n.self || n.cm.HasConnectionTo(addr) {
		return nil
	}
	if err := n.Connect(ctx, addr); err != nil {
		n.logger.Debug("switchboard-discovered connect failed", "peer", addr, "error", err)
	}
	return nil
}

// handleOfferMessage handles an in-mesh offer control message, such as the
// one handlePresenceMessage sends in reply to a presence broadcast, and
// replies with an in-mesh answer control message addressed to the offer's
// originator.
func (n *Node) handleOfferMessage(msg Message) {
	var neg Negotiation
	if err := json.Unmarshal(msg.Data, &neg); err != nil {
		n.logger.Warn("bad offer message", "error", err)
		return
	}
	n.submit(func() {
		conn, err := n.neg.handleOffer(neg)
		if err != nil {
			n.logger.Warn("handle in-mesh offer failed", "error", err)
			return
		}
		answer, ok := conn.Answer()
		if !ok {
			return
		}
		if answer.SDP != nil {
			encrypted, err := encryptSDP(n.identity, msg.Address, *answer.SDP)
			if err != nil {
				n.logger.Warn("encrypt in-mesh answer sdp failed", "error", err)
				return
			}
			answer.SDP = &encrypted
		}
		if _, err := n.gossip.Broadcast(n.ctx, NetworkAppID, TypeAnswer, msg.Address, MaxTTL, answer); err != nil {
			n.logger.Warn("broadcast in-mesh answer failed", "error", err)
		}
	})
}

func (n *Node) handleAnswerMessage(msg Message) {
	var neg Negotiation
	if err := json.Unmarshal(msg.Data, &neg); err != nil {
		n.logger.Warn("bad answer message", "error", err)
		return
	}
	n.submit(func() {
		if err := n.neg.handleAnswer(neg); err != nil {
			n.logger.Warn("handle in-mesh answer failed", "error", err)
		}
	})
}

// handlePresenceMessage reacts to a stranger's presence broadcast by
// initiating a connection toward it when none exists yet, replying with an
// offer over the mesh itself rather than the switchboard, since the
// presence broadcast already proves msg.Address is reachable in-band (spec
// §4.3 step 5, §1c in-band gossip discovery).
func (n *Node) handlePresenceMessage(msg Message) {
	if msg.Address == n.self {
		return
	}
	n.submit(func() {
		if n.cm.HasConnectionTo(msg.Address) {
			return
		}
		conn, err := n.cm.EnsureInitiator(n.ctx, msg.Address)
		if err != nil {
			n.logger.Debug("presence-triggered connect skipped", "peer", msg.Address, "error", err)
			return
		}
		n.metrics.ConnectionsOpened.WithLabelValues(RoleInitiator.String()).Inc()
		offer := conn.Offer()
		if offer.SDP != nil {
			encrypted, err := encryptSDP(n.identity, msg.Address, *offer.SDP)
			if err != nil {
				n.logger.Warn("encrypt presence-reply offer failed", "error", err)
				return
			}
			offer.SDP = &encrypted
		}
		if _, err := n.gossip.Broadcast(n.ctx, NetworkAppID, TypeOffer, msg.Address, MaxTTL, offer); err != nil {
			n.logger.Warn("broadcast presence-reply offer failed", "error", err)
		}
	})
}

// Ingest feeds one inbound wire frame from peer into the gossip engine. The
// ConnectionManager's per-Connection Transport event pump calls this for
// every Data() receive.
func (n *Node) Ingest(raw []byte, from Address) {
	n.submit(func() {
		if err := n.gossip.Ingest(n.ctx, raw, from); err != nil {
			n.metrics.MessagesBad.Inc()
		} else {
			n.metrics.MessagesIngested.Inc()
		}
	})
}

// Broadcast sends an application message to every connected peer (spec
// §4.3). appID must not be NetworkAppID; that namespace is reserved.
func (n *Node) Broadcast(ctx context.Context, appID, msgType string, data any) (Message, error) {
	if appID == NetworkAppID {
		return Message{}, fmt.Errorf("meshnet: app_id %q is reserved", NetworkAppID)
	}
	msg, err := n.gossip.Broadcast(ctx, appID, msgType, Wildcard, MaxTTL, data)
	if err == nil {
		n.metrics.MessagesBroadcast.WithLabelValues(appID).Inc()
	}
	return msg, err
}

// On registers a Handler for the given EventKind, returning a token for
// RemoveListener.
func (n *Node) On(kind EventKind, h Handler) subscription {
	return n.emitter.on(kind, h)
}

// RemoveListener unregisters a Handler previously registered with On.
func (n *Node) RemoveListener(sub subscription) {
	n.emitter.removeListener(sub)
}

// Events returns a channel carrying every emitted Event.
func (n *Node) Events() <-chan Event {
	return n.emitter.All()
}

// Connections returns a snapshot of every known Connection.
func (n *Node) Connections() []ConnectionSnapshot {
	return n.cm.Connections()
}

// ActiveConnections returns the count of non-Dead Connections.
func (n *Node) ActiveConnections() int {
	return n.cm.Active()
}

// MetricsHandler exposes this node's isolated Prometheus registry for
// mounting on an HTTP server.
func (n *Node) MetricsHandler() http.Handler {
	return n.metrics.Handler()
}

// gcLoop periodically sweeps SeenMemory and stale/dead Connections (spec
// §4.7, properties P4/P9).
func (n *Node) gcLoop() {
	defer n.wg.Done()
	for {
		select {
		case <-time.After(n.config.GarbageCollectInterval):
			n.seen.Sweep()
			n.cm.GC(30 * time.Second)
			n.metrics.observeConnectionStates(n.cm.Connections())
		case <-n.ctx.Done():
			return
		}
	}
}

// Teardown stops every background loop and destroys every Connection (spec
// §4.7 "graceful teardown", property P9). Safe to call more than once.
func (n *Node) Teardown() {
	n.tornDown.Do(func() {
		if n.cancel != nil {
			n.cancel()
		}
		var g errgroup.Group
		for _, snap := range n.cm.Connections() {
			id := snap.ID
			g.Go(func() error {
				n.cm.Destroy(id)
				return nil
			})
		}
		_ = g.Wait()
		n.logger.Info("node torn down")
	})
}
