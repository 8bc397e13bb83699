package meshnet

import (
	"testing"
	"time"
)

func TestRudeListBecomesRude(t *testing.T) {
	rl := NewRudeList(3)
	base := time.Now()
	rl.now = func() time.Time { return base }

	for i := 0; i < 3; i++ {
		rl.Register("alice")
	}
	if rl.IsRude("alice") {
		t.Fatal("IsRude(\"alice\") = true at exactly maxRate")
	}
	rl.Register("alice")
	if !rl.IsRude("alice") {
		t.Fatal("IsRude(\"alice\") = false above maxRate")
	}
}

func TestRudeListWindowExpires(t *testing.T) {
	rl := NewRudeList(1)
	base := time.Now()
	rl.now = func() time.Time { return base }
	rl.Register("bob")
	rl.Register("bob")
	if !rl.IsRude("bob") {
		t.Fatal("expected bob to be rude within window")
	}
	rl.now = func() time.Time { return base.Add(2 * time.Second) }
	if rl.IsRude("bob") {
		t.Fatal("expected bob to no longer be rude once window empties")
	}
}

func TestRudeListDisabled(t *testing.T) {
	rl := NewRudeList(0)
	for i := 0; i < 1000; i++ {
		rl.Register("carol")
	}
	if rl.IsRude("carol") {
		t.Fatal("IsRude() = true with maxRate disabled (0)")
	}
}

func TestRudeListUnknownAddressNotRude(t *testing.T) {
	rl := NewRudeList(1)
	if rl.IsRude("nobody") {
		t.Fatal("IsRude() = true for an address with no history")
	}
}
