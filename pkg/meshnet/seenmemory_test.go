package meshnet

import (
	"fmt"
	"testing"
	"time"
)

func TestSeenMemoryHasAfterAdd(t *testing.T) {
	sm := NewSeenMemory(time.Minute)
	if sm.Has("a") {
		t.Fatal("Has(\"a\") = true before Add")
	}
	sm.Add("a")
	if !sm.Has("a") {
		t.Fatal("Has(\"a\") = false after Add")
	}
}

func TestSeenMemoryExpires(t *testing.T) {
	sm := NewSeenMemory(10 * time.Millisecond)
	base := time.Now()
	sm.now = func() time.Time { return base }
	sm.Add("a")
	sm.now = func() time.Time { return base.Add(20 * time.Millisecond) }
	if sm.Has("a") {
		t.Fatal("Has(\"a\") = true after expiry window elapsed")
	}
}

func TestSeenMemorySweepBounded(t *testing.T) {
	sm := NewSeenMemory(10 * time.Millisecond)
	base := time.Now()
	sm.now = func() time.Time { return base }
	for i := 0; i < 50; i++ {
		sm.Add(fmt.Sprintf("old-%d", i))
	}
	sm.now = func() time.Time { return base.Add(20 * time.Millisecond) }
	for i := 0; i < 10; i++ {
		sm.Add(fmt.Sprintf("new-%d", i))
	}
	sm.Sweep()
	if got := sm.Len(); got != 10 {
		t.Fatalf("Len() after sweep = %d, want 10", got)
	}
}
