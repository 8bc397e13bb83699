package meshnet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// SwitchboardClient polls a switchboard HTTP endpoint, posting this node's
// own outstanding negotiation items and collecting others addressed to it
// (spec §4.4). It switches between a fast and slow poll interval depending
// on whether the node currently has any Connected peer, so a freshly
// started or isolated node rendezvouses quickly without hammering the
// switchboard once steady-state.
type SwitchboardClient struct {
	httpClient *http.Client
	baseURL    string
	networkID  string
	self       Address

	fastInterval time.Duration
	slowInterval time.Duration

	mu      sync.Mutex
	pending []NegotiationItem
}

// NewSwitchboardClient constructs a client against baseURL (e.g.
// "http://switchboard.example:8080").
func NewSwitchboardClient(baseURL, networkID string, self Address, fastInterval, slowInterval time.Duration) *SwitchboardClient {
	return &SwitchboardClient{
		httpClient:   &http.Client{Timeout: 10 * time.Second},
		baseURL:      baseURL,
		networkID:    networkID,
		self:         self,
		fastInterval: fastInterval,
		slowInterval: slowInterval,
	}
}

// Enqueue stages a NegotiationItem to be delivered on the next tick.
func (s *SwitchboardClient) Enqueue(item NegotiationItem) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, item)
}

// Interval returns the fast interval when activeConnections is zero, else
// the slow interval (spec §4.4 adaptive cadence, property P8).
func (s *SwitchboardClient) Interval(activeConnections int) time.Duration {
	if activeConnections == 0 {
		return s.fastInterval
	}
	return s.slowInterval
}

// Tick posts the current pending items and this node's address to the
// switchboard, returning whatever negotiation items the switchboard routed
// back to us. Pending items are taken off the queue before the post, so they
// are dropped whether the post fails or the response cannot be parsed, and
// a malformed response cannot cause unbounded item growth.
func (s *SwitchboardClient) Tick(ctx context.Context) (SwitchboardResponse, error) {
	s.mu.Lock()
	items := s.pending
	s.pending = nil
	s.mu.Unlock()

	reqBody := SwitchboardRequest{
		NetworkID:        s.networkID,
		Address:          s.self,
		NegotiationItems: items,
	}
	body, err := json.Marshal(reqBody)
	if err != nil {
		return SwitchboardResponse{}, fmt.Errorf("%w: marshal request: %v", ErrSwitchboard, err)
	}

	data, status, err := s.do(ctx, "POST", "/v1/switchboard", bytes.NewReader(body))
	if err != nil {
		return SwitchboardResponse{}, err
	}
	if status >= 400 {
		return SwitchboardResponse{}, fmt.Errorf("%w: http %d", ErrSwitchboard, status)
	}

	var resp SwitchboardResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return SwitchboardResponse{}, fmt.Errorf("%w: decode response: %v", ErrSwitchboard, err)
	}
	return resp, nil
}

// do sends an HTTP request against the switchboard base URL, following the
// request/response helper shape used throughout this codebase's other HTTP
// clients.
func (s *SwitchboardClient) do(ctx context.Context, method, path string, body io.Reader) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, method, s.baseURL+path, body)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSwitchboard, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrSwitchboard, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, fmt.Errorf("%w: read response: %v", ErrSwitchboard, err)
	}
	return data, resp.StatusCode, nil
}

// ConnectDiscoveredAddresses initiates a connection toward every address in
// resp.Addresses, concurrently, bounded by errgroup (spec §4.4: the
// switchboard also returns every other address currently registered on the
// network so a node can rendezvous with peers it has no negotiation item
// for yet). connect is responsible for skipping addresses that don't
// warrant a new connection and for swallowing its own per-address errors,
// since one bad address must not abort the others mid-fan-out.
func ConnectDiscoveredAddresses(ctx context.Context, resp SwitchboardResponse, connect func(context.Context, Address) error) error {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, addr := range resp.Addresses {
		addr := addr
		g.Go(func() error {
			return connect(ctx, addr)
		})
	}
	return g.Wait()
}

// ApplyResponse dispatches every NegotiationItem from a switchboard tick
// concurrently through handle (typically Node's offer/answer routing),
// bounded by errgroup so one slow or failing item does not delay the rest
// (spec §9 Design Notes).
func ApplyResponse(ctx context.Context, resp SwitchboardResponse, handle func(NegotiationItem) error) error {
	g, _ := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, item := range resp.NegotiationItems {
		item := item
		g.Go(func() error {
			return handle(item)
		})
	}
	return g.Wait()
}
