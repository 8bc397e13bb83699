// Package switchboard implements the reference rendezvous server meshnet
// nodes poll to exchange WebRTC negotiation items before any direct
// connection exists between them (spec §4.4, §6). It is intentionally
// dumb: it never interprets a Negotiation's contents, only routes items by
// destination Address within a networkId namespace.
package switchboard

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/browser-network/network/pkg/meshnet"
)

// itemTTL bounds how long an undelivered negotiation item is held before
// being dropped, so an address that never polls again does not leak memory
// forever.
const itemTTL = 2 * time.Minute

type pendingItem struct {
	item    meshnet.NegotiationItem
	addedAt time.Time
}

// Server is the in-memory reference switchboard. Safe for concurrent use.
type Server struct {
	logger *slog.Logger

	mu       sync.Mutex
	networks map[string]*network
}

type network struct {
	addresses map[meshnet.Address]time.Time // last-seen, for the addresses list
	inbox     map[meshnet.Address][]pendingItem
}

// NewServer constructs an empty Server.
func NewServer(logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		logger:   logger.With("component", "switchboard"),
		networks: make(map[string]*network),
	}
}

// Handler returns the http.Handler exposing the switchboard's single
// endpoint, following this codebase's Go 1.22 ServeMux "METHOD /path"
// routing convention.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/switchboard", s.handleTick)
	return mux
}

func (s *Server) handleTick(w http.ResponseWriter, r *http.Request) {
	var req meshnet.SwitchboardRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "bad request body", http.StatusBadRequest)
		return
	}
	if req.NetworkID == "" || req.Address == "" {
		http.Error(w, "networkId and address are required", http.StatusBadRequest)
		return
	}

	resp := s.tick(req)
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.logger.Warn("encode switchboard response failed", "error", err)
	}
}

// tick applies one polling node's request to network state: records it as
// present, files any items it brought for other addresses, and drains
// whatever is waiting for it.
func (s *Server) tick(req meshnet.SwitchboardRequest) meshnet.SwitchboardResponse {
	s.mu.Lock()
	defer s.mu.Unlock()

	net, ok := s.networks[req.NetworkID]
	if !ok {
		net = &network{
			addresses: make(map[meshnet.Address]time.Time),
			inbox:     make(map[meshnet.Address][]pendingItem),
		}
		s.networks[req.NetworkID] = net
	}

	now := time.Now()
	net.addresses[req.Address] = now

	for _, item := range req.NegotiationItems {
		net.inbox[item.For] = append(net.inbox[item.For], pendingItem{item: item, addedAt: now})
	}

	items := net.evictAndDrain(req.Address, now)

	addresses := make([]meshnet.Address, 0, len(net.addresses))
	for addr, lastSeen := range net.addresses {
		if now.Sub(lastSeen) > itemTTL {
			delete(net.addresses, addr)
			continue
		}
		if addr != req.Address {
			addresses = append(addresses, addr)
		}
	}

	return meshnet.SwitchboardResponse{Addresses: addresses, NegotiationItems: items}
}

// evictAndDrain removes stale items destined for addr and returns the rest,
// clearing addr's inbox.
func (n *network) evictAndDrain(addr meshnet.Address, now time.Time) []meshnet.NegotiationItem {
	pending := n.inbox[addr]
	delete(n.inbox, addr)
	out := make([]meshnet.NegotiationItem, 0, len(pending))
	for _, p := range pending {
		if now.Sub(p.addedAt) > itemTTL {
			continue
		}
		out = append(out, p.item)
	}
	return out
}
