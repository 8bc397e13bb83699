package meshnet

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"pgregory.net/rapid"
)

// TestPropertyDuplicateSuppression checks P1 at the SeenMemory level: with
// the same Has-then-Add check Ingest applies, each id is counted as
// delivered exactly once, no matter how many times duplicates arrive.
func TestPropertyDuplicateSuppression(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ids := rapid.SliceOfDistinct(rapid.StringMatching(`[a-z]{4,12}`), func(s string) string { return s }).
			Filter(func(s []string) bool { return len(s) > 0 }).
			Draw(rt, "ids")
		deliveries := rapid.SliceOfN(rapid.IntRange(0, 3), len(ids), len(ids)).Draw(rt, "repeats")

		seen := NewSeenMemory(MemoryDuration)
		delivered := map[string]int{}
		for i, id := range ids {
			repeats := 1 + deliveries[i]
			for r := 0; r < repeats; r++ {
				if seen.Has(id) {
					continue
				}
				seen.Add(id)
				delivered[id]++
			}
		}
		for _, id := range ids {
			if delivered[id] != 1 {
				rt.Fatalf("id %q delivered %d times, want exactly 1", id, delivered[id])
			}
		}
	})
}

// TestPropertyHopBoundAbsorbsMessage checks P2: a message whose signature
// chain has already reached MaxTTL hops is absorbed by Ingest (not
// dispatched, not rebroadcast) regardless of its other field values.
func TestPropertyHopBoundAbsorbsMessage(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		hops := rapid.IntRange(MaxTTL, MaxTTL+5).Draw(rt, "hops")
		appID := rapid.StringMatching(`[a-z]{1,8}`).Draw(rt, "appID")
		msgType := rapid.StringMatching(`[a-z]{1,8}`).Draw(rt, "msgType")

		msg := Message{
			ID:          rapid.StringMatching(`[a-z0-9]{8,16}`).Draw(rt, "id"),
			Address:     "origin",
			AppID:       appID,
			TTL:         MaxTTL,
			Type:        msgType,
			Destination: Wildcard,
		}
		for i := 0; i < hops; i++ {
			msg.Signatures = append(msg.Signatures, Signature{Signer: "origin", Signature: ""})
		}
		encoded, err := json.Marshal(msg)
		if err != nil {
			rt.Fatalf("marshal: %v", err)
		}

		recv := make(chan Message, 1)
		cm := &ConnectionManager{self: "b", connections: map[string]*Connection{}, byAddress: map[Address]string{}}
		g := NewGossipEngine("b", NewUnsignedIdentity("b"), cm, NewSeenMemory(MemoryDuration), NewRudeList(0), nil, func(ev Event) {
			if ev.Kind == EventMessage {
				recv <- ev.Message
			}
		})

		if err := g.Ingest(context.Background(), encoded, "a"); err != nil {
			rt.Fatalf("Ingest at or beyond hop limit should be silently absorbed, got: %v", err)
		}
		select {
		case <-recv:
			rt.Fatalf("message with %d hops (>= MaxTTL %d) was dispatched", hops, MaxTTL)
		case <-time.After(10 * time.Millisecond):
		}
	})
}

// TestPropertySeenMemoryBounded checks P4: once every entry added more than
// MemoryDuration ago is swept, SeenMemory holds at most the number of
// distinct ids added within the retention window, regardless of insertion
// order or how many times each id was re-added.
func TestPropertySeenMemoryBounded(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		ids := rapid.SliceOfDistinct(rapid.StringMatching(`[a-z]{4,12}`), func(s string) string { return s }).Draw(rt, "ids")
		staleIDs := rapid.SliceOfDistinct(rapid.StringMatching(`[A-Z]{4,12}`), func(s string) string { return s }).Draw(rt, "staleIDs")

		clock := time.Unix(0, 0)
		s := NewSeenMemory(MemoryDuration)
		s.now = func() time.Time { return clock }

		for _, id := range staleIDs {
			s.Add(id)
		}
		clock = clock.Add(MemoryDuration + time.Second)
		for _, id := range ids {
			s.Add(id)
			s.Add(id) // re-adding an already-fresh id must not grow the set
		}

		s.Sweep()

		if s.Len() != len(ids) {
			rt.Fatalf("Len() = %d after sweep, want %d (stale entries must be evicted)", s.Len(), len(ids))
		}
		for _, id := range staleIDs {
			if s.Has(id) {
				rt.Fatalf("stale id %q still reported Has() == true after sweep", id)
			}
		}
	})
}
