package meshnet

import "time"

// Config holds the tunable parameters listed in spec §6. All fields are
// optional; DefaultConfig fills in the spec's defaults and Node applies it
// whenever a caller passes a zero-value field.
type Config struct {
	PresenceBroadcastInterval      time.Duration
	FastSwitchboardRequestInterval time.Duration
	SlowSwitchboardRequestInterval time.Duration
	GarbageCollectInterval         time.Duration
	MaxMessageRateBeforeRude       int // 0 means unbounded, per spec default "∞"
	MaxConnections                 int
}

// DefaultConfig returns the spec §6 defaults.
func DefaultConfig() Config {
	return Config{
		PresenceBroadcastInterval:      5000 * time.Millisecond,
		FastSwitchboardRequestInterval: 500 * time.Millisecond,
		SlowSwitchboardRequestInterval: 3000 * time.Millisecond,
		GarbageCollectInterval:         5000 * time.Millisecond,
		MaxMessageRateBeforeRude:       0,
		MaxConnections:                 10,
	}
}

// withDefaults returns a copy of c with every zero-value field replaced by
// the spec default, so callers may supply a partial Config.
func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.PresenceBroadcastInterval <= 0 {
		c.PresenceBroadcastInterval = d.PresenceBroadcastInterval
	}
	if c.FastSwitchboardRequestInterval <= 0 {
		c.FastSwitchboardRequestInterval = d.FastSwitchboardRequestInterval
	}
	if c.SlowSwitchboardRequestInterval <= 0 {
		c.SlowSwitchboardRequestInterval = d.SlowSwitchboardRequestInterval
	}
	if c.GarbageCollectInterval <= 0 {
		c.GarbageCollectInterval = d.GarbageCollectInterval
	}
	if c.MaxConnections <= 0 {
		c.MaxConnections = d.MaxConnections
	}
	// MaxMessageRateBeforeRude: 0 is a meaningful value (unbounded), not a
	// missing one, so it is never defaulted here.
	return c
}
