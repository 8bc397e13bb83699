package meshnet

import (
	"sync"
	"time"
)

// RudeWindow is the sliding window RudeList uses to count a sender's
// message rate (spec §3, §4.5).
const RudeWindow = time.Second

// RudeList tracks, per Address, a sliding window of receive timestamps so
// GossipEngine and ConnectionManager can refuse new work from senders exceeding the
// configured rate (spec §4.5, testable property P7). Safe for concurrent
// use. A maxRate of 0 disables the check entirely (unbounded rate).
type RudeList struct {
	maxRate int
	now     func() time.Time

	mu   sync.Mutex
	hits map[Address][]time.Time
}

// NewRudeList creates a RudeList enforcing maxRate messages per RudeWindow.
// maxRate <= 0 means no sender is ever considered rude.
func NewRudeList(maxRate int) *RudeList {
	return &RudeList{
		maxRate: maxRate,
		now:     time.Now,
		hits:    make(map[Address][]time.Time),
	}
}

// Register records a receive event from address at the current time.
func (r *RudeList) Register(address Address) {
	if r.maxRate <= 0 {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.hits[address] = append(r.evictLocked(address), r.now())
}

// IsRude evicts timestamps older than RudeWindow and reports whether the
// remaining count exceeds maxRate.
func (r *RudeList) IsRude(address Address) bool {
	if r.maxRate <= 0 {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.evictLocked(address)
	r.hits[address] = kept
	return len(kept) > r.maxRate
}

// evictLocked must be called with r.mu held. It returns address's
// timestamp vector with entries older than RudeWindow removed.
func (r *RudeList) evictLocked(address Address) []time.Time {
	existing := r.hits[address]
	if len(existing) == 0 {
		return existing
	}
	cutoff := r.now().Add(-RudeWindow)
	kept := existing[:0:0]
	for _, t := range existing {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	return kept
}
