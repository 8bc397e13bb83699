package meshnet

import (
	"context"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/browser-network/network/internal/switchboard"
)

func newTestSwitchboard(t *testing.T) string {
	t.Helper()
	srv := switchboard.NewServer(nil)
	httpSrv := httptest.NewServer(srv.Handler())
	t.Cleanup(httpSrv.Close)
	return httpSrv.URL
}

func TestSwitchboardClientTickRoutesItemToRecipient(t *testing.T) {
	url := newTestSwitchboard(t)
	clientA := NewSwitchboardClient(url, "net-1", "a", 10*time.Millisecond, time.Second)
	clientB := NewSwitchboardClient(url, "net-1", "b", 10*time.Millisecond, time.Second)

	sdp := "offer-sdp"
	clientA.Enqueue(NegotiationItem{
		For:  "b",
		From: "a",
		Negotiation: Negotiation{
			Type:         "offer",
			Address:      "a",
			SDP:          &sdp,
			ConnectionID: "conn-1",
			NetworkID:    "net-1",
		},
	})

	if _, err := clientA.Tick(context.Background()); err != nil {
		t.Fatalf("clientA.Tick: %v", err)
	}

	resp, err := clientB.Tick(context.Background())
	if err != nil {
		t.Fatalf("clientB.Tick: %v", err)
	}
	if len(resp.NegotiationItems) != 1 {
		t.Fatalf("NegotiationItems = %d, want 1", len(resp.NegotiationItems))
	}
	item := resp.NegotiationItems[0]
	if item.For != "b" || item.From != "a" || !item.Negotiation.HasSDP() {
		t.Fatalf("unexpected item: %+v", item)
	}

	// A second tick with nothing new pending drains to empty; the
	// switchboard does not redeliver an item once collected.
	resp2, err := clientB.Tick(context.Background())
	if err != nil {
		t.Fatalf("clientB second Tick: %v", err)
	}
	if len(resp2.NegotiationItems) != 0 {
		t.Fatalf("second Tick returned %d items, want 0", len(resp2.NegotiationItems))
	}
}

func TestSwitchboardClientTickReportsOtherAddresses(t *testing.T) {
	url := newTestSwitchboard(t)
	clientA := NewSwitchboardClient(url, "net-1", "a", 10*time.Millisecond, time.Second)
	clientB := NewSwitchboardClient(url, "net-1", "b", 10*time.Millisecond, time.Second)

	if _, err := clientA.Tick(context.Background()); err != nil {
		t.Fatalf("clientA.Tick: %v", err)
	}
	resp, err := clientB.Tick(context.Background())
	if err != nil {
		t.Fatalf("clientB.Tick: %v", err)
	}
	found := false
	for _, addr := range resp.Addresses {
		if addr == "a" {
			found = true
		}
		if addr == "b" {
			t.Fatalf("switchboard reported the polling node's own address back to it")
		}
	}
	if !found {
		t.Fatalf("addresses = %v, want to include %q", resp.Addresses, "a")
	}
}

func TestSwitchboardClientIntervalAdaptsToConnectionCount(t *testing.T) {
	c := NewSwitchboardClient("http://unused", "net-1", "a", 50*time.Millisecond, 5*time.Second)
	if got := c.Interval(0); got != 50*time.Millisecond {
		t.Fatalf("Interval(0) = %s, want fast interval", got)
	}
	if got := c.Interval(1); got != 5*time.Second {
		t.Fatalf("Interval(1) = %s, want slow interval", got)
	}
	if got := c.Interval(3); got != 5*time.Second {
		t.Fatalf("Interval(3) = %s, want slow interval", got)
	}
}

func TestApplyResponseDispatchesEveryItem(t *testing.T) {
	items := []NegotiationItem{
		{For: "a", From: "x"},
		{For: "a", From: "y"},
		{For: "a", From: "z"},
	}
	resp := SwitchboardResponse{NegotiationItems: items}

	seen := make(chan Address, len(items))
	err := ApplyResponse(context.Background(), resp, func(item NegotiationItem) error {
		seen <- item.From
		return nil
	})
	if err != nil {
		t.Fatalf("ApplyResponse: %v", err)
	}
	close(seen)
	count := 0
	for range seen {
		count++
	}
	if count != len(items) {
		t.Fatalf("handled %d items, want %d", count, len(items))
	}
}

func TestConnectDiscoveredAddressesDialsEveryAddress(t *testing.T) {
	resp := SwitchboardResponse{Addresses: []Address{"a", "b", "c"}}

	seen := make(chan Address, len(resp.Addresses))
	err := ConnectDiscoveredAddresses(context.Background(), resp, func(_ context.Context, addr Address) error {
		seen <- addr
		return nil
	})
	if err != nil {
		t.Fatalf("ConnectDiscoveredAddresses: %v", err)
	}
	close(seen)
	got := make(map[Address]bool)
	for addr := range seen {
		got[addr] = true
	}
	for _, want := range resp.Addresses {
		if !got[want] {
			t.Fatalf("address %q was never dialed", want)
		}
	}
}
